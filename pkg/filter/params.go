package filter

import (
	"net/url"
	"strings"
)

// Param is one query parameter.
type Param struct {
	Key   string
	Value string
}

// Params is an insertion-ordered set of query parameters with case-insensitive
// keys. Setting an existing key replaces it in place (last write wins).
// The zero value is not usable; call NewParams.
type Params struct {
	items []Param
	index map[string]int
}

// NewParams returns an empty parameter set.
func NewParams() *Params {
	return &Params{index: make(map[string]int)}
}

// Set stores value under key, replacing any existing key that differs only in case.
func (p *Params) Set(key, value string) {
	k := strings.ToLower(key)
	if i, ok := p.index[k]; ok {
		p.items[i] = Param{Key: key, Value: value}
		return
	}
	p.index[k] = len(p.items)
	p.items = append(p.items, Param{Key: key, Value: value})
}

// Get returns the value stored under key.
func (p *Params) Get(key string) (string, bool) {
	i, ok := p.index[strings.ToLower(key)]
	if !ok {
		return "", false
	}
	return p.items[i].Value, true
}

// Has reports whether key is present.
func (p *Params) Has(key string) bool {
	_, ok := p.index[strings.ToLower(key)]
	return ok
}

// Del removes key and returns its value.
func (p *Params) Del(key string) (string, bool) {
	k := strings.ToLower(key)
	i, ok := p.index[k]
	if !ok {
		return "", false
	}
	value := p.items[i].Value

	p.items = append(p.items[:i], p.items[i+1:]...)
	delete(p.index, k)
	for j := i; j < len(p.items); j++ {
		p.index[strings.ToLower(p.items[j].Key)] = j
	}
	return value, true
}

// Len returns the number of parameters.
func (p *Params) Len() int {
	return len(p.items)
}

// All returns a copy of the parameters in insertion order.
func (p *Params) All() []Param {
	return append([]Param(nil), p.items...)
}

// Clone returns an independent copy.
func (p *Params) Clone() *Params {
	out := &Params{
		items: append([]Param(nil), p.items...),
		index: make(map[string]int, len(p.index)),
	}
	for k, v := range p.index {
		out.index[k] = v
	}
	return out
}

// Values converts the set to url.Values for the transport. Insertion order is
// not kept: url.Values.Encode sorts by key, so the wire query and the cache key
// derived from it are canonical. Use All when order matters.
func (p *Params) Values() url.Values {
	v := make(url.Values, len(p.items))
	for _, item := range p.items {
		v.Set(item.Key, item.Value)
	}
	return v
}

// Map returns the parameters as a plain map, e.g. for a JSON request body.
func (p *Params) Map() map[string]string {
	m := make(map[string]string, len(p.items))
	for _, item := range p.items {
		m[item.Key] = item.Value
	}
	return m
}
