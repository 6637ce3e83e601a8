package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/fulmenhq/contentpack/internal/gates"
	"github.com/fulmenhq/contentpack/pkg/ascii"
	"github.com/fulmenhq/contentpack/pkg/bundle"
	"github.com/fulmenhq/contentpack/pkg/policy"
)

// DefaultMaxExamples bounds the issues listed per gate in a summary.
const DefaultMaxExamples = 5

// Summary is the structured end-of-run report. It is produced for partial
// results too, so every exit path can print one.
type Summary struct {
	RunID       string                 `json:"run_id"`
	Status      string                 `json:"status"`
	Error       string                 `json:"error,omitempty"`
	SoftMode    bool                   `json:"soft_mode"`
	Policy      string                 `json:"policy,omitempty"`
	Resolved    int64                  `json:"resolved"`
	Bytes       int64                  `json:"bytes"`
	Provenance  map[string]int         `json:"provenance"`
	Missing     []string               `json:"missing"`
	Gates       map[string]GateSummary `json:"gates,omitempty"`
	State       gates.State            `json:"state,omitempty"`
	Fingerprint string                 `json:"aggregate_fingerprint,omitempty"`
	Revision    string                 `json:"source_revision,omitempty"`
	Artifact    *bundle.Artifact       `json:"artifact,omitempty"`
}

// GateSummary counts one gate's issues and keeps the first few.
type GateSummary struct {
	Blocking int           `json:"blocking"`
	Warnings int           `json:"warnings"`
	Examples []gates.Issue `json:"examples"`
}

// Summarize condenses a (possibly partial) result. runErr is the error the
// run ended with, if any.
func Summarize(res *Result, runErr error, maxExamples int) Summary {
	if maxExamples < 0 {
		maxExamples = DefaultMaxExamples
	}
	s := Summary{Status: "ok", Provenance: map[string]int{}, Missing: []string{}}
	if runErr != nil {
		s.Status = "failed"
		s.Error = runErr.Error()
	}
	if res == nil {
		return s
	}
	s.RunID = res.RunID
	s.SoftMode = res.SoftMode
	s.Resolved = res.Resolved
	s.Bytes = res.Bytes
	s.Revision = res.Revision
	s.Artifact = res.Artifact
	if res.Policy.Policy != nil {
		s.Policy = res.Policy.Source
	}
	for _, e := range res.Entries {
		s.Provenance[string(e.Provenance)]++
	}

	s.Missing = missingLabels(res)

	if res.Outcome != nil {
		s.State = res.Outcome.State
		s.Gates = map[string]GateSummary{}
		for _, is := range res.Outcome.Issues {
			g := s.Gates[is.Gate]
			if is.Severity == policy.SeverityBlocking {
				g.Blocking++
			} else {
				g.Warnings++
			}
			if len(g.Examples) < maxExamples {
				g.Examples = append(g.Examples, is)
			}
			s.Gates[is.Gate] = g
		}
		if runErr == nil && res.Outcome.State == gates.StateFailedSoft {
			s.Status = "ok-with-warnings"
		}
	}
	if res.Manifest != nil {
		s.Fingerprint = res.Manifest.AggregateFingerprint
	}
	return s
}

// missingLabels lists each missing identifier once. Keys are qualified as
// domain/key unless the run covers a single domain.
func missingLabels(res *Result) []string {
	domains := map[string]bool{}
	if res.Registry != nil {
		for _, d := range res.Registry.Domains {
			domains[d.Name] = true
		}
	}
	for _, m := range res.Missing {
		domains[m.ID.Domain] = true
	}
	out := []string{}
	seen := map[string]bool{}
	for _, m := range res.Missing {
		label := m.ID.String()
		if len(domains) == 1 {
			label = m.ID.Key
		}
		if !seen[label] {
			seen[label] = true
			out = append(out, label)
		}
	}
	return out
}

// WriteSummary renders s as indented JSON or as a boxed text report.
func WriteSummary(w io.Writer, s Summary, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}

	lines := []string{
		"contentpack run " + s.RunID,
		"status: " + s.Status,
	}
	if s.Error != "" {
		lines = append(lines, "error: "+ascii.TruncateForBox(s.Error, 72))
	}
	if s.State != "" {
		lines = append(lines, fmt.Sprintf("gates: %s (soft mode %t)", s.State, s.SoftMode))
	}
	lines = append(lines, fmt.Sprintf("resolved: %d entries, %d bytes", s.Resolved, s.Bytes))
	for _, p := range sortedNames(s.Provenance) {
		lines = append(lines, fmt.Sprintf("  %s: %d", p, s.Provenance[p]))
	}
	lines = append(lines, "missing = "+quoteList(s.Missing))
	if s.Fingerprint != "" {
		lines = append(lines, "aggregate: "+s.Fingerprint)
	}
	if s.Revision != "" {
		lines = append(lines, "revision: "+s.Revision)
	}
	if s.Artifact != nil {
		lines = append(lines, "output: "+ascii.TruncateForBox(s.Artifact.Dir, 72))
		if s.Artifact.Archive != "" {
			lines = append(lines, "archive: "+ascii.TruncateForBox(s.Artifact.Archive, 72))
		}
	}
	if _, err := io.WriteString(w, ascii.Box(lines)); err != nil {
		return err
	}

	if len(s.Gates) == 0 {
		return nil
	}
	names := make([]string, 0, len(s.Gates))
	for name := range s.Gates {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := [][]string{{"gate", "blocking", "warnings"}}
	for _, name := range names {
		g := s.Gates[name]
		rows = append(rows, []string{name, strconv.Itoa(g.Blocking), strconv.Itoa(g.Warnings)})
	}
	if _, err := io.WriteString(w, ascii.Table(rows)); err != nil {
		return err
	}
	for _, name := range names {
		for _, is := range s.Gates[name].Examples {
			where := is.File
			if where == "" {
				where = is.Identifier
			}
			if _, err := fmt.Fprintf(w, "  [%s] %s: %s\n", is.Severity, where, is.Message); err != nil {
				return err
			}
		}
	}
	return nil
}

func sortedNames(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func quoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, it := range items {
		quoted[i] = strconv.Quote(it)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
