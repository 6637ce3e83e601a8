package policy

import (
	"context"
	"fmt"
	"sort"

	"github.com/open-policy-agent/opa/v1/rego"
)

// DefaultQuery is evaluated when a rule does not name its own query.
const DefaultQuery = "data.contentpack.gates.deny"

// Rule declares a custom gate written in Rego. The query must yield a set or
// array of messages; each message becomes one issue tagged with Gate.
type Rule struct {
	Gate   string   `json:"gate" yaml:"gate"`
	Kinds  []string `json:"kinds,omitempty" yaml:"kinds,omitempty"`
	Query  string   `json:"query,omitempty" yaml:"query,omitempty"`
	Module string   `json:"module" yaml:"module"`
}

// CompiledRule is a Rule prepared for evaluation.
type CompiledRule struct {
	Rule
	prepared rego.PreparedEvalQuery
}

func compileRule(ctx context.Context, idx int, r Rule) (*CompiledRule, error) {
	query := r.Query
	if query == "" {
		query = DefaultQuery
	}
	prepared, err := rego.New(
		rego.Query(query),
		rego.Module(fmt.Sprintf("rule-%d-%s.rego", idx, r.Gate), r.Module),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", r.Gate, err)
	}
	r.Query = query
	return &CompiledRule{Rule: r, prepared: prepared}, nil
}

// Applies reports whether the rule checks content of kind.
func (r *CompiledRule) Applies(kind string) bool {
	if len(r.Kinds) == 0 {
		return true
	}
	for _, k := range r.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Eval runs the rule against input and returns its deny messages, sorted.
func (r *CompiledRule) Eval(ctx context.Context, input interface{}) ([]string, error) {
	rs, err := r.prepared.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", r.Gate, err)
	}
	var msgs []string
	for _, result := range rs {
		for _, expr := range result.Expressions {
			switch v := expr.Value.(type) {
			case []interface{}:
				for _, item := range v {
					msgs = append(msgs, fmt.Sprint(item))
				}
			case string:
				msgs = append(msgs, v)
			case bool:
				if v {
					msgs = append(msgs, "denied by "+r.Query)
				}
			}
		}
	}
	sort.Strings(msgs)
	return msgs, nil
}
