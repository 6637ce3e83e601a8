package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/fulmenhq/contentpack/internal/pipeline"
	"github.com/fulmenhq/contentpack/pkg/ascii"
	"github.com/fulmenhq/contentpack/pkg/registry"
	"github.com/spf13/cobra"
)

type resolveRow struct {
	Identifier string              `json:"identifier"`
	Kind       string              `json:"kind"`
	Tier       string              `json:"tier,omitempty"`
	Provenance registry.Provenance `json:"provenance"`
	Base       string              `json:"base,omitempty"`
	Path       string              `json:"path,omitempty"`
	Optional   bool                `json:"optional,omitempty"`
}

type resolveReport struct {
	RunID    string       `json:"run_id"`
	Root     string       `json:"root"`
	Resolved int64        `json:"resolved"`
	Bytes    int64        `json:"bytes"`
	Entries  []resolveRow `json:"entries"`
	Missing  []string     `json:"missing"`
}

func newResolveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Show which source tier serves each identifier",
		Args:  cobra.NoArgs,
		RunE:  runResolve,
	}
	addSourceFlags(cmd.Flags())
	return cmd
}

func runResolve(cmd *cobra.Command, _ []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	out := cmd.OutOrStdout()

	cfg, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	pc, err := pipelineConfig(cfg)
	if err != nil {
		return err
	}
	res, err := pipeline.Resolve(context.Background(), pc)
	if err != nil {
		return err
	}

	report := resolveReport{
		RunID:    res.RunID,
		Root:     res.Registry.Root,
		Resolved: res.Resolved,
		Bytes:    res.Bytes,
		Entries:  make([]resolveRow, 0, len(res.Entries)),
		Missing:  pipeline.Summarize(res, nil, 0).Missing,
	}
	for _, e := range res.Entries {
		report.Entries = append(report.Entries, resolveRow{
			Identifier: e.ID.String(),
			Kind:       e.Kind,
			Tier:       e.Tier,
			Provenance: e.Provenance,
			Base:       e.BaseKey,
			Path:       e.SourcePath,
			Optional:   e.Optional,
		})
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	rows := [][]string{{"identifier", "kind", "tier", "provenance", "base"}}
	for _, r := range report.Entries {
		tier := r.Tier
		if tier == "" {
			tier = "-"
		}
		rows = append(rows, []string{r.Identifier, r.Kind, tier, string(r.Provenance), r.Base})
	}
	_, _ = fmt.Fprint(out, ascii.Table(rows))
	_, _ = fmt.Fprintf(out, "\nresolved %d entries (%d bytes) from %s\n", report.Resolved, report.Bytes, report.Root)
	_, _ = fmt.Fprintf(out, "missing = %s\n", quoteList(report.Missing))
	return nil
}

func quoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, it := range items {
		quoted[i] = strconv.Quote(it)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
