// Package endpoint turns an entity's endpoint template into a concrete path.
package endpoint

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/Sternrassler/entity-connector/pkg/catalog"
	"github.com/Sternrassler/entity-connector/pkg/filter"
)

// ValidationError lists every required filter that was missing or blank.
type ValidationError struct {
	Entity  string
	Missing []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Entity == "" {
		return fmt.Sprintf("missing required filters: %s", strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("entity %q: missing required filters: %s", e.Entity, strings.Join(e.Missing, ", "))
}

// Resolve validates that every key in required is present and non-blank in
// params, then substitutes each {key} in template with the path-escaped value.
// Substituted keys are removed from params; the rest stay behind for the query
// string. Placeholders without a value are reported as missing even when they
// are not listed in required.
func Resolve(template string, required []string, params *filter.Params) (string, error) {
	var missing []string
	seen := make(map[string]bool)

	check := func(key string) {
		k := strings.ToLower(key)
		if seen[k] {
			return
		}
		seen[k] = true
		if v, ok := params.Get(key); !ok || strings.TrimSpace(v) == "" {
			missing = append(missing, key)
		}
	}
	for _, key := range required {
		check(key)
	}
	for _, key := range catalog.Placeholders(template) {
		check(key)
	}

	if len(missing) > 0 {
		return "", &ValidationError{Missing: missing}
	}

	consumed := make(map[string]bool)
	path := catalog.ExpandPlaceholders(template, func(key string) string {
		value, _ := params.Get(key)
		consumed[strings.ToLower(key)] = true
		return url.PathEscape(value)
	})
	for key := range consumed {
		params.Del(key)
	}

	return path, nil
}

// ResolveEntity resolves d.Endpoint against params and tags validation errors
// with the entity name.
func ResolveEntity(d catalog.Descriptor, params *filter.Params) (string, error) {
	path, err := Resolve(d.Endpoint, d.RequiredFilters, params)
	if err != nil {
		var vErr *ValidationError
		if errors.As(err, &vErr) {
			vErr.Entity = d.Name
		}
		return "", err
	}
	return path, nil
}
