package extract

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Field is one named value of a Record.
type Field struct {
	Name  string
	Value any
}

// Record is an ordered field -> value mapping. It is both the unit returned to
// callers and the parsed form of every JSON object, so nested objects are
// *Record values as well. Reads are case-insensitive, preferring an exact match.
type Record struct {
	fields []Field
	exact  map[string]int
	folded map[string]int
}

// NewRecord builds a record from fields, in order.
func NewRecord(fields ...Field) *Record {
	r := &Record{
		exact:  make(map[string]int, len(fields)),
		folded: make(map[string]int, len(fields)),
	}
	for _, f := range fields {
		r.Set(f.Name, f.Value)
	}
	return r
}

// Set stores value under name. An existing field with exactly the same name
// is replaced in place.
func (r *Record) Set(name string, value any) {
	if r.exact == nil {
		r.exact = make(map[string]int)
		r.folded = make(map[string]int)
	}
	if i, ok := r.exact[name]; ok {
		r.fields[i].Value = value
		return
	}

	i := len(r.fields)
	r.fields = append(r.fields, Field{Name: name, Value: value})
	r.exact[name] = i
	if _, ok := r.folded[strings.ToLower(name)]; !ok {
		r.folded[strings.ToLower(name)] = i
	}
}

// Get returns the value of the named field.
func (r *Record) Get(name string) (any, bool) {
	if r == nil {
		return nil, false
	}
	if i, ok := r.exact[name]; ok {
		return r.fields[i].Value, true
	}
	if i, ok := r.folded[strings.ToLower(name)]; ok {
		return r.fields[i].Value, true
	}
	return nil, false
}

// String returns the named field formatted as text. Objects and arrays are not
// converted.
func (r *Record) String(name string) (string, bool) {
	v, ok := r.Get(name)
	if !ok {
		return "", false
	}
	return AsString(v)
}

// Len returns the number of fields.
func (r *Record) Len() int {
	if r == nil {
		return 0
	}
	return len(r.fields)
}

// Fields returns a copy of the fields in order.
func (r *Record) Fields() []Field {
	if r == nil {
		return nil
	}
	return append([]Field(nil), r.fields...)
}

// Names returns the field names in order.
func (r *Record) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, len(r.fields))
	for i, f := range r.fields {
		names[i] = f.Name
	}
	return names
}

// Map converts the record, recursively, to plain maps and slices.
func (r *Record) Map() map[string]any {
	if r == nil {
		return nil
	}
	m := make(map[string]any, len(r.fields))
	for _, f := range r.fields {
		m[f.Name] = plain(f.Value)
	}
	return m
}

func plain(v any) any {
	switch t := v.(type) {
	case *Record:
		return t.Map()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = plain(e)
		}
		return out
	default:
		return v
	}
}

// MarshalJSON encodes the record as a JSON object with fields in order.
func (r *Record) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		val, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// AsString formats a scalar JSON value as text.
func AsString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	default:
		return "", false
	}
}

// AsInt64 converts a JSON number, or a string holding an integer, to int64.
func AsInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, true
		}
		if f, err := t.Float64(); err == nil {
			return int64(f), true
		}
		return 0, false
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		return n, err == nil
	case float64:
		return int64(t), true
	case int:
		return int64(t), true
	case int64:
		return t, true
	default:
		return 0, false
	}
}
