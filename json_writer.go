package bankroll

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
)

// jsonObjectWriter builds a JSON object whose members keep their insertion
// order, which encoding/json does not do for maps. The first error sticks and
// is returned by MarshalJSON. The zero value is an empty object.
type jsonObjectWriter struct {
	members [][]byte // `"key":value` or the inner members of an embedded object
	err     error
}

func (w *jsonObjectWriter) fail(err error) *jsonObjectWriter {
	if w.err == nil {
		w.err = err
	}
	return w
}

// Embed merges the members of a raw JSON object.
func (w *jsonObjectWriter) Embed(raw []byte) *jsonObjectWriter {
	if w.err != nil {
		return w
	}
	inner, ok := bytes.CutPrefix(bytes.TrimSpace(raw), []byte("{"))
	if !ok {
		return w.fail(fmt.Errorf("cannot embed %q: not an object", raw))
	}
	inner, ok = bytes.CutSuffix(inner, []byte("}"))
	if !ok {
		return w.fail(fmt.Errorf("cannot embed %q: not an object", raw))
	}
	if inner = bytes.TrimSpace(inner); len(inner) > 0 {
		w.members = append(w.members, inner)
	}
	return w
}

// EmbedFrom merges the members of v marshalled as JSON.
func (w *jsonObjectWriter) EmbedFrom(v any) *jsonObjectWriter {
	if w.err != nil {
		return w
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return w.fail(fmt.Errorf("cannot embed %T: %w", v, err))
	}
	return w.Embed(raw)
}

// Append adds the member key.
func (w *jsonObjectWriter) Append(key string, value any) *jsonObjectWriter {
	if w.err != nil {
		return w
	}
	k, _ := json.Marshal(key)
	v, err := json.Marshal(value)
	if err != nil {
		return w.fail(fmt.Errorf("cannot marshal %q: %w", key, err))
	}
	member := make([]byte, 0, len(k)+1+len(v))
	member = append(member, k...)
	member = append(member, ':')
	w.members = append(w.members, append(member, v...))
	return w
}

// Optional adds the member key unless value is the zero value of its type.
func (w *jsonObjectWriter) Optional(key string, value any) *jsonObjectWriter {
	if v := reflect.ValueOf(value); !v.IsValid() || v.IsZero() {
		return w
	}
	return w.Append(key, value)
}

// MarshalJSON returns the object.
func (w *jsonObjectWriter) MarshalJSON() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	var b bytes.Buffer
	b.WriteByte('{')
	b.Write(bytes.Join(w.members, []byte(",")))
	b.WriteByte('}')
	return b.Bytes(), nil
}
