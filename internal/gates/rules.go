package gates

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/fulmenhq/contentpack/internal/schema"
	"github.com/fulmenhq/contentpack/pkg/policy"
	"github.com/fulmenhq/contentpack/pkg/registry"
	"github.com/fulmenhq/contentpack/pkg/safeio"
)

// UnitCheck is a gate evaluated once per resolved unit.
type UnitCheck interface {
	Gate() string
	Check(ctx context.Context, u *Unit) []Issue
}

// CorpusCheck is a gate evaluated once over the whole corpus.
type CorpusCheck interface {
	Gate() string
	CheckCorpus(c Corpus) []Issue
}

func unitIssue(gate string, u *Unit, format string, args ...interface{}) Issue {
	return Issue{
		Gate:       gate,
		Message:    fmt.Sprintf(format, args...),
		File:       u.Entry.Path,
		Identifier: u.Entry.ID.String(),
	}
}

// schemaCheck enforces non-empty, well-formed content with its required
// fields, plus the kind's JSON Schema when one is declared.
type schemaCheck struct {
	compiled map[string]*schema.Compiled // keyed by domain/kind
}

func newSchemaCheck(reg *registry.Registry) (*schemaCheck, []Issue) {
	c := &schemaCheck{compiled: map[string]*schema.Compiled{}}
	var issues []Issue
	for _, d := range reg.Domains {
		for _, k := range d.Kinds {
			if k.Schema == "" {
				continue
			}
			path, err := safeio.JoinContained(reg.Root, k.Schema)
			if err == nil {
				var compiled *schema.Compiled
				compiled, err = schema.CompileFile(path)
				if err == nil {
					c.compiled[d.Name+"/"+k.Name] = compiled
					continue
				}
			}
			issues = append(issues, Issue{
				Gate:    policy.GateSchema,
				Message: fmt.Sprintf("content schema for %s/%s unusable: %v", d.Name, k.Name, err),
				File:    k.Schema,
			})
		}
	}
	return c, issues
}

func (c *schemaCheck) Gate() string { return policy.GateSchema }

func (c *schemaCheck) Check(_ context.Context, u *Unit) []Issue {
	gate := c.Gate()
	if u.ReadErr != nil {
		return []Issue{unitIssue(gate, u, "unreadable content: %v", u.ReadErr)}
	}
	if len(strings.TrimSpace(string(u.Content))) == 0 {
		return []Issue{unitIssue(gate, u, "content is empty")}
	}
	if !u.Kind.JSON() {
		return nil
	}
	if u.ParseErr != nil {
		return []Issue{unitIssue(gate, u, "invalid JSON: %v", u.ParseErr)}
	}

	var issues []Issue
	for _, field := range u.Kind.RequiredFields {
		if _, ok := lookup(u.Doc, field); !ok {
			issues = append(issues, unitIssue(gate, u, "missing required field %q", field))
		}
	}
	if compiled, ok := c.compiled[u.Entry.ID.Domain+"/"+u.Kind.Name]; ok {
		res, err := compiled.Validate(u.Doc)
		switch {
		case err != nil:
			issues = append(issues, unitIssue(gate, u, "schema validation failed: %v", err))
		case !res.Valid:
			for _, verr := range res.Errors {
				issues = append(issues, unitIssue(gate, u, "%s: %s", verr.Path, verr.Message))
			}
		}
	}
	return issues
}

// completenessCheck reports required kinds no tier resolved, and category
// counts that differ from the registry's expectation.
type completenessCheck struct{}

func (completenessCheck) Gate() string { return policy.GateCompleteness }

func (c completenessCheck) CheckCorpus(corpus Corpus) []Issue {
	var issues []Issue
	for _, e := range corpus.Entries {
		if !e.Missing() || e.Optional {
			continue
		}
		issues = append(issues, Issue{
			Gate:       c.Gate(),
			Message:    fmt.Sprintf("%s has no %s content in any tier", e.ID, e.Kind),
			File:       e.Path,
			Identifier: e.ID.String(),
		})
	}
	return issues
}

func (c completenessCheck) Check(_ context.Context, u *Unit) []Issue {
	if u.Doc == nil {
		return nil
	}
	var issues []Issue
	for _, cc := range u.Kind.CategoryCounts {
		v, ok := lookup(u.Doc, cc.Path)
		if !ok {
			issues = append(issues, unitIssue(c.Gate(), u, "category %q absent, expected %d entries", cc.Path, cc.Count))
			continue
		}
		n, countable := size(v)
		switch {
		case !countable:
			issues = append(issues, unitIssue(c.Gate(), u, "category %q is not an object or array", cc.Path))
		case n != cc.Count:
			issues = append(issues, unitIssue(c.Gate(), u, "category %q has %d entries, expected %d", cc.Path, n, cc.Count))
		}
	}
	return issues
}

// rangesCheck bounds scored fields wherever they occur in a document.
type rangesCheck struct{}

func (rangesCheck) Gate() string { return policy.GateRanges }

func (c rangesCheck) Check(_ context.Context, u *Unit) []Issue {
	if u.Doc == nil {
		return nil
	}
	var issues []Issue
	for _, r := range u.Kind.Ranges {
		for _, v := range findAll(u.Doc, r.Field) {
			f, ok := v.(float64)
			if !ok {
				issues = append(issues, unitIssue(c.Gate(), u, "field %q is not numeric: %v", r.Field, v))
				continue
			}
			if r.Min != nil && f < *r.Min {
				issues = append(issues, unitIssue(c.Gate(), u, "field %q = %s below minimum %s", r.Field, num(f), num(*r.Min)))
			}
			if r.Max != nil && f > *r.Max {
				issues = append(issues, unitIssue(c.Gate(), u, "field %q = %s above maximum %s", r.Field, num(f), num(*r.Max)))
			}
		}
	}
	return issues
}

// fallbackCheck reports content served by a fallback tier unless the policy
// accepts fallback for that identifier.
type fallbackCheck struct {
	policy *policy.GatePolicy
}

func (fallbackCheck) Gate() string { return policy.GateFallback }

func (c fallbackCheck) Check(_ context.Context, u *Unit) []Issue {
	e := u.Entry
	if e.Provenance != registry.Fallback || c.policy.AcceptsFallback(e.ID.Domain, e.ID.Key) {
		return nil
	}
	if e.BaseKey != "" {
		return []Issue{unitIssue(c.Gate(), u, "served by fallback tier %s from base %s", e.Tier, e.BaseKey)}
	}
	return []Issue{unitIssue(c.Gate(), u, "served by fallback tier %s", e.Tier)}
}

// regoCheck runs one custom policy rule.
type regoCheck struct {
	rule *policy.CompiledRule
}

func (c regoCheck) Gate() string { return c.rule.Gate }

func (c regoCheck) Check(ctx context.Context, u *Unit) []Issue {
	if !c.rule.Applies(u.Kind.Name) || u.ReadErr != nil {
		return nil
	}
	var content interface{} = string(u.Content)
	if u.Kind.JSON() {
		if u.Doc == nil {
			return nil
		}
		content = u.Doc
	}
	input := map[string]interface{}{
		"identifier": u.Entry.ID.String(),
		"domain":     u.Entry.ID.Domain,
		"key":        u.Entry.ID.Key,
		"kind":       u.Kind.Name,
		"tier":       u.Entry.Tier,
		"provenance": string(u.Entry.Provenance),
		"content":    content,
	}
	msgs, err := c.rule.Eval(ctx, input)
	if err != nil {
		return []Issue{unitIssue(c.Gate(), u, "rule evaluation failed: %v", err)}
	}
	issues := make([]Issue, 0, len(msgs))
	for _, m := range msgs {
		issues = append(issues, unitIssue(c.Gate(), u, "%s", m))
	}
	return issues
}

// lookup resolves a dotted path; numeric segments index arrays.
func lookup(doc interface{}, path string) (interface{}, bool) {
	cur := doc
	for _, seg := range strings.Split(path, ".") {
		switch v := cur.(type) {
		case map[string]interface{}:
			next, ok := v[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case []interface{}:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(v) {
				return nil, false
			}
			cur = v[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// findAll collects every value stored under key at any depth, in a stable order.
func findAll(doc interface{}, key string) []interface{} {
	var out []interface{}
	var walk func(v interface{})
	walk = func(v interface{}) {
		switch t := v.(type) {
		case map[string]interface{}:
			keys := make([]string, 0, len(t))
			for k := range t {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				if k == key {
					out = append(out, t[k])
				}
				walk(t[k])
			}
		case []interface{}:
			for _, item := range t {
				walk(item)
			}
		}
	}
	walk(doc)
	return out
}

func size(v interface{}) (int, bool) {
	switch t := v.(type) {
	case map[string]interface{}:
		return len(t), true
	case []interface{}:
		return len(t), true
	default:
		return 0, false
	}
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
