// Package filter compiles generic filter expressions into vendor query parameters.
package filter

import (
	"fmt"
	"strings"
)

// Operator is a comparison applied by a filter expression.
type Operator int

const (
	// OpEquals is plain equality. Unknown operators degrade to it.
	OpEquals Operator = iota
	OpNotEquals
	OpGreater
	OpGreaterOrEqual
	OpLess
	OpLessOrEqual
	OpContains
)

var operatorNames = [...]string{
	OpEquals:         "eq",
	OpNotEquals:      "ne",
	OpGreater:        "gt",
	OpGreaterOrEqual: "gte",
	OpLess:           "lt",
	OpLessOrEqual:    "lte",
	OpContains:       "contains",
}

// String returns the canonical short name ("eq", "gte", ...).
func (o Operator) String() string {
	if o < 0 || int(o) >= len(operatorNames) {
		return fmt.Sprintf("Operator(%d)", int(o))
	}
	return operatorNames[o]
}

var operatorAliases = map[string]Operator{
	"":           OpEquals,
	"=":          OpEquals,
	"==":         OpEquals,
	"eq":         OpEquals,
	"equals":     OpEquals,
	"!=":         OpNotEquals,
	"<>":         OpNotEquals,
	"ne":         OpNotEquals,
	"neq":        OpNotEquals,
	"not_equals": OpNotEquals,
	">":          OpGreater,
	"gt":         OpGreater,
	"greater":    OpGreater,
	">=":         OpGreaterOrEqual,
	"ge":         OpGreaterOrEqual,
	"gte":        OpGreaterOrEqual,
	"<":          OpLess,
	"lt":         OpLess,
	"less":       OpLess,
	"<=":         OpLessOrEqual,
	"le":         OpLessOrEqual,
	"lte":        OpLessOrEqual,
	"contains":   OpContains,
	"like":       OpContains,
	"~":          OpContains,
}

// ParseOperator maps an operator string to an Operator. The boolean is false
// when the string is not recognized; the returned operator is then OpEquals.
// Falling back to equality is deliberate: callers pass vendor-specific
// operator spellings that must not fail a request.
func ParseOperator(s string) (Operator, bool) {
	op, ok := operatorAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return OpEquals, false
	}
	return op, true
}

// Expression is one (field, operator, value) filter triple.
type Expression struct {
	Field string
	Op    string
	Value string
}

// Eq is shorthand for an equality expression.
func Eq(field, value string) Expression {
	return Expression{Field: field, Op: "eq", Value: value}
}

// ParseExpression parses "field:op:value" or "field:value" (equality).
func ParseExpression(s string) (Expression, error) {
	parts := strings.SplitN(s, ":", 3)
	switch len(parts) {
	case 2:
		if parts[0] == "" {
			return Expression{}, fmt.Errorf("filter %q: empty field", s)
		}
		return Expression{Field: parts[0], Value: parts[1]}, nil
	case 3:
		if parts[0] == "" {
			return Expression{}, fmt.Errorf("filter %q: empty field", s)
		}
		return Expression{Field: parts[0], Op: parts[1], Value: parts[2]}, nil
	default:
		return Expression{}, fmt.Errorf("filter %q: want field:value or field:op:value", s)
	}
}
