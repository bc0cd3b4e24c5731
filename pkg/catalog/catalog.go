// Package catalog holds the immutable entity table a connector is built from.
//
// A catalog maps entity names to endpoint templates, required filters, the
// response root path and the pagination contract. It is validated once at
// construction and is safe for concurrent reads afterwards.
package catalog

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEntityNotFound is returned by Lookup for names absent from the catalog.
	ErrEntityNotFound = errors.New("entity not found")

	// ErrInvalidDescriptor marks descriptors rejected at construction.
	ErrInvalidDescriptor = errors.New("invalid entity descriptor")
)

// ConfigError is a configuration problem tied to one entity: an unknown name
// or an internally inconsistent catalog row. It is never retried.
type ConfigError struct {
	Entity string
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("catalog: entity %q: %s", e.Entity, e.Reason)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Catalog is a read-only table of entity descriptors.
type Catalog struct {
	entries []Descriptor
	index   map[string]int
}

// New validates descs and builds a catalog. All invalid rows are reported
// together, joined with errors.Join.
func New(descs ...Descriptor) (*Catalog, error) {
	c := &Catalog{
		entries: make([]Descriptor, 0, len(descs)),
		index:   make(map[string]int, len(descs)),
	}

	var errs []error
	for _, d := range descs {
		d = normalize(d.clone())

		if err := validate(d); err != nil {
			errs = append(errs, err)
			continue
		}

		key := strings.ToLower(d.Name)
		if _, dup := c.index[key]; dup {
			errs = append(errs, invalid(d.Name, "duplicate entity name"))
			continue
		}

		c.index[key] = len(c.entries)
		c.entries = append(c.entries, d)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return c, nil
}

// MustNew is like New but panics on error. Intended for static catalogs.
func MustNew(descs ...Descriptor) *Catalog {
	c, err := New(descs...)
	if err != nil {
		panic(err)
	}
	return c
}

// Lookup returns a copy of the descriptor registered under name (case-insensitive).
func (c *Catalog) Lookup(name string) (Descriptor, error) {
	i, ok := c.index[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Descriptor{}, &ConfigError{
			Entity: name,
			Reason: "not found in catalog",
			Err:    ErrEntityNotFound,
		}
	}
	return c.entries[i].clone(), nil
}

// Names returns the entity names in declaration order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.entries))
	for i, d := range c.entries {
		names[i] = d.Name
	}
	return names
}

// Len returns the number of entities.
func (c *Catalog) Len() int {
	return len(c.entries)
}

// normalize fills style-specific parameter defaults.
func normalize(d Descriptor) Descriptor {
	d.Name = strings.TrimSpace(d.Name)
	d.Method = strings.ToUpper(strings.TrimSpace(d.Method))
	if d.Method == "" {
		d.Method = "GET"
	}
	d.RootPath = strings.Trim(d.RootPath, ".")

	p := &d.Pagination
	if p.Style == "" {
		p.Style = StyleNone
	}
	p.Style = Style(strings.ToLower(string(p.Style)))

	switch p.Style {
	case StyleOffset:
		if p.OffsetParam == "" && p.PageParam == "" {
			p.OffsetParam = "offset"
		}
		if p.SizeParam == "" {
			p.SizeParam = "limit"
		}
	case StyleHeuristic:
		if p.PageParam == "" {
			p.PageParam = "page"
		}
		if p.SizeParam == "" {
			p.SizeParam = "limit"
		}
	case StyleCursor, StyleComputed:
		if p.SizeParam == "" {
			p.SizeParam = "limit"
		}
	}
	return d
}

func validate(d Descriptor) error {
	if d.Name == "" {
		return invalid(d.Name, "name is required")
	}
	if d.Endpoint == "" {
		return invalid(d.Name, "endpoint template is required")
	}
	if d.Method != "GET" && d.Method != "POST" {
		return invalid(d.Name, fmt.Sprintf("unsupported method %q", d.Method))
	}

	declared := make(map[string]bool, len(d.RequiredFilters))
	for _, key := range d.RequiredFilters {
		declared[strings.ToLower(key)] = true
	}

	var undeclared []string
	for _, name := range Placeholders(d.Endpoint) {
		if !declared[strings.ToLower(name)] {
			undeclared = append(undeclared, name)
		}
	}
	if len(undeclared) > 0 {
		return invalid(d.Name, fmt.Sprintf("endpoint %q references undeclared filter keys: %s",
			d.Endpoint, strings.Join(undeclared, ", ")))
	}

	for op, tmpl := range d.Operators {
		if !strings.Contains(tmpl, "{field}") {
			return invalid(d.Name, fmt.Sprintf("operator %q key template %q lacks {field}", op, tmpl))
		}
	}

	p := d.Pagination
	if !p.Style.Valid() {
		return invalid(d.Name, fmt.Sprintf("unknown pagination style %q", p.Style))
	}
	if p.MinSize < 0 || p.MaxSize < 0 || p.DefaultSize < 0 {
		return invalid(d.Name, "page sizes must not be negative")
	}
	if p.MaxSize > 0 && p.MinSize > p.MaxSize {
		return invalid(d.Name, fmt.Sprintf("min_size %d exceeds max_size %d", p.MinSize, p.MaxSize))
	}

	switch p.Style {
	case StyleCursor:
		if p.CursorParam == "" {
			return invalid(d.Name, "cursor pagination requires cursor_param")
		}
		if p.CursorPath == "" && p.NextURLPath == "" {
			return invalid(d.Name, "cursor pagination requires cursor_path or next_url_path")
		}
	case StyleComputed:
		if p.CursorParam == "" {
			return invalid(d.Name, "computed pagination requires cursor_param")
		}
		if p.IDField == "" {
			return invalid(d.Name, "computed pagination requires id_field")
		}
	}
	return nil
}

func invalid(entity, reason string) error {
	return &ConfigError{Entity: entity, Reason: reason, Err: ErrInvalidDescriptor}
}
