package filter

import (
	"strings"

	"github.com/rs/zerolog/log"
)

// KeyPolicy maps a field and a non-equality operator to the vendor query key,
// e.g. ("amount", OpGreater) -> "amount[gt]". Equality never goes through the
// policy: it is always emitted as field=value.
type KeyPolicy func(field string, op Operator) string

// BracketPolicy encodes operators as field[op] (Stripe, Xero and most JSON:API vendors).
func BracketPolicy(field string, op Operator) string {
	return field + "[" + op.String() + "]"
}

// SuffixPolicy encodes operators as field<sep>op, e.g. SuffixPolicy("__") -> amount__gt.
func SuffixPolicy(sep string) KeyPolicy {
	return func(field string, op Operator) string {
		return field + sep + op.String()
	}
}

// TemplatePolicy resolves operators through key templates containing "{field}",
// keyed by any operator spelling ParseOperator accepts. Operators without a
// template use fallback (BracketPolicy when nil).
func TemplatePolicy(templates map[string]string, fallback KeyPolicy) KeyPolicy {
	if fallback == nil {
		fallback = BracketPolicy
	}

	byOp := make(map[Operator]string, len(templates))
	for name, tmpl := range templates {
		op, ok := ParseOperator(name)
		if !ok {
			log.Debug().Str("operator", name).Msg("Ignoring key template for unknown operator")
			continue
		}
		byOp[op] = tmpl
	}

	return func(field string, op Operator) string {
		if tmpl, ok := byOp[op]; ok {
			return strings.ReplaceAll(tmpl, "{field}", field)
		}
		return fallback(field, op)
	}
}

// Compiler turns filter expressions into a Params set.
type Compiler struct {
	policy KeyPolicy
}

// NewCompiler creates a compiler using policy for non-equality operators
// (BracketPolicy when nil).
func NewCompiler(policy KeyPolicy) *Compiler {
	if policy == nil {
		policy = BracketPolicy
	}
	return &Compiler{policy: policy}
}

// Compile builds a fresh parameter set from exprs, in order.
func (c *Compiler) Compile(exprs []Expression) *Params {
	params := NewParams()
	c.CompileInto(params, exprs)
	return params
}

// CompileInto adds exprs to an existing set. Later expressions mapping to the
// same key overwrite earlier ones.
func (c *Compiler) CompileInto(params *Params, exprs []Expression) {
	for _, e := range exprs {
		if e.Field == "" {
			log.Debug().Str("value", e.Value).Msg("Skipping filter without field")
			continue
		}

		op, ok := ParseOperator(e.Op)
		if !ok {
			log.Debug().
				Str("field", e.Field).
				Str("operator", e.Op).
				Msg("Unknown filter operator, falling back to equality")
		}

		if op == OpEquals {
			params.Set(e.Field, e.Value)
			continue
		}
		params.Set(c.policy(e.Field, op), e.Value)
	}
}
