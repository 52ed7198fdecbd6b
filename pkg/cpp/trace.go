package cpp

import (
	"fmt"
	"io"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// TraceDocument is the JSON form of a preprocessor run: its input, its
// output and the trace between them.
type TraceDocument struct {
	Original []TokenS
	Produced []TokenS
	Trace    *ActionSequence
}

type tokenSJSON struct {
	T string   `json:"t"`
	D []string `json:"d"`
}

type skipJSON struct {
	Skip any `json:"skip"`
}

type replaceJSON struct {
	Orgn []any    `json:"orgn"`
	Mpn  []any    `json:"mpn"`
	Dsbl []string `json:"dsbl"`
}

type newJSON struct {
	New []string `json:"new"`
}

type subJSON struct {
	Idx  []int `json:"idx"`
	Acts []any `json:"acts"`
}

type envJSON struct {
	Macs  []string `json:"macs,omitempty"`
	Ctr   int      `json:"ctr,omitempty"`
	Stats []int    `json:"stats,omitempty"`
	Once  []string `json:"once,omitempty"`
}

type documentJSON struct {
	Original []any     `json:"original"`
	Produced []any     `json:"produced"`
	Actions  []any     `json:"actions"`
	Envs     []envJSON `json:"envs"`
}

func encodeTokenS(t TokenS) any {
	if t.Disables.Len() == 0 {
		return t.Text
	}
	return tokenSJSON{T: t.Text, D: t.Disables.Names()}
}

func encodeTokens(toks []TokenS) []any {
	out := make([]any, len(toks))
	for i, t := range toks {
		out[i] = encodeTokenS(t)
	}
	return out
}

func encodeActions(actions []Action) []any {
	out := make([]any, len(actions))
	for i, a := range actions {
		out[i] = encodeAction(a)
	}
	return out
}

func encodeAction(a Action) any {
	switch a := a.(type) {
	case *Skip:
		return skipJSON{Skip: encodeTokenS(a.Token)}
	case *Replace:
		r := replaceJSON{
			Orgn: encodeTokens(a.Original),
			Mpn:  make([]any, len(a.Mapping)),
			Dsbl: a.Disables.Names(),
		}
		if r.Dsbl == nil {
			r.Dsbl = []string{}
		}
		for i, seg := range a.Mapping {
			r.Mpn[i] = encodeMapSeg(seg)
		}
		return r
	}
	panic(fmt.Sprintf("cpp: unknown action %T", a))
}

func encodeMapSeg(seg MapSeg) any {
	switch seg := seg.(type) {
	case *New:
		texts := make([]string, len(seg.Tokens))
		for i, t := range seg.Tokens {
			texts[i] = t.Text
		}
		return newJSON{New: texts}
	case *Sub:
		idx := seg.Indices
		if idx == nil {
			idx = []int{}
		}
		return subJSON{Idx: idx, Acts: encodeActions(seg.Actions.Actions)}
	}
	panic(fmt.Sprintf("cpp: unknown mapping segment %T", seg))
}

// encodeEnv leaves out the predefined macros and every field that still
// has its initial value.
func encodeEnv(e Environment) envJSON {
	var j envJSON
	for _, name := range e.Macros.Names() {
		if !strings.HasPrefix(name, "__") {
			j.Macs = append(j.Macs, name)
		}
	}
	j.Ctr = e.Counter
	if e.States != nil && !e.States.Equal(NewStateStack()) {
		for _, st := range e.States.Frames() {
			j.Stats = append(j.Stats, st.Hash())
		}
	}
	j.Once = e.OnceSeen.Paths()
	return j
}

// MarshalJSON encodes an action as {"skip":..} or {"orgn","mpn","dsbl"}.
func (s *Skip) MarshalJSON() ([]byte, error) { return json.Marshal(encodeAction(s)) }

func (r *Replace) MarshalJSON() ([]byte, error) { return json.Marshal(encodeAction(r)) }

func (e Environment) MarshalJSON() ([]byte, error) { return json.Marshal(encodeEnv(e)) }

func (d *TraceDocument) MarshalJSON() ([]byte, error) {
	doc := documentJSON{
		Original: encodeTokens(d.Original),
		Produced: encodeTokens(d.Produced),
		Actions:  []any{},
		Envs:     []envJSON{},
	}
	if d.Trace != nil {
		doc.Actions = encodeActions(d.Trace.Actions)
		for _, e := range d.Trace.Envs {
			doc.Envs = append(doc.Envs, encodeEnv(e))
		}
	}
	return json.Marshal(doc)
}

// WriteTrace writes d to w as indented JSON.
func WriteTrace(w io.Writer, d *TraceDocument) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(d)
}
