// Package extract normalizes vendor response bodies into ordered records.
//
// Bodies are parsed preserving object key order. A dot-separated root path
// locates the records inside the body; a path that does not resolve is a
// legitimate "no data" outcome and yields zero records, never an error.
package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ValueField names the single field of records built from scalar array elements.
const ValueField = "value"

// ErrEmptyBody is returned by Parse for an empty or whitespace-only body.
var ErrEmptyBody = errors.New("empty response body")

// Parse decodes a JSON document. Objects become *Record (key order preserved),
// arrays []any, numbers json.Number.
func Parse(data []byte) (any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyBody
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := parseValue(dec)
	if err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("parse response: trailing data after top-level value")
	}
	return v, nil
}

func parseValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}

	switch delim {
	case '{':
		rec := NewRecord()
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, ok := keyTok.(string)
			if !ok {
				return nil, fmt.Errorf("unexpected object key %v", keyTok)
			}
			val, err := parseValue(dec)
			if err != nil {
				return nil, err
			}
			rec.Set(key, val)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return rec, nil
	case '[':
		arr := []any{}
		for dec.More() {
			val, err := parseValue(dec)
			if err != nil {
				return nil, err
			}
			arr = append(arr, val)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return arr, nil
	default:
		return nil, fmt.Errorf("unexpected delimiter %q", delim)
	}
}

// Lookup walks a dot-separated path through object nodes. An empty path
// returns body itself. Every segment must resolve through a *Record.
func Lookup(body any, path string) (any, bool) {
	path = strings.Trim(path, ".")
	if path == "" {
		return body, body != nil
	}

	node := body
	for _, segment := range strings.Split(path, ".") {
		rec, ok := node.(*Record)
		if !ok {
			return nil, false
		}
		node, ok = rec.Get(segment)
		if !ok {
			return nil, false
		}
	}
	return node, true
}

// LookupString resolves path to a non-empty scalar rendered as text.
func LookupString(body any, path string) (string, bool) {
	v, ok := Lookup(body, path)
	if !ok {
		return "", false
	}
	s, ok := AsString(v)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// LookupInt resolves path to an integer.
func LookupInt(body any, path string) (int64, bool) {
	v, ok := Lookup(body, path)
	if !ok {
		return 0, false
	}
	return AsInt64(v)
}

// Records locates rootPath in body and flattens the node: an array yields one
// record per element (scalars and nulls are wrapped as {"value": x}), an object yields
// exactly one record, anything else yields none.
func Records(body any, rootPath string) []*Record {
	node, ok := Lookup(body, rootPath)
	if !ok {
		return nil
	}

	switch t := node.(type) {
	case []any:
		out := make([]*Record, 0, len(t))
		for _, elem := range t {
			switch e := elem.(type) {
			case *Record:
				out = append(out, e)
			default:
				out = append(out, NewRecord(Field{Name: ValueField, Value: e}))
			}
		}
		return out
	case *Record:
		return []*Record{t}
	default:
		return nil
	}
}

// FromBytes parses data and extracts the records under rootPath. Parse
// failures are returned so callers can log them, alongside zero records.
func FromBytes(data []byte, rootPath string) (any, []*Record, error) {
	body, err := Parse(data)
	if err != nil {
		return nil, nil, err
	}
	return body, Records(body, rootPath), nil
}
