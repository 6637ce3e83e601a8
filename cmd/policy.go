package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/fulmenhq/contentpack/pkg/ascii"
	"github.com/fulmenhq/contentpack/pkg/policy"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newPolicyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect gate policies",
	}
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective gate policy",
		Long: `Show loads the policy the way bundle and validate do (the --policy document,
else policy.yaml next to the registry, else the embedded default), applies
--soft, and prints the resulting document with each gate's severity.`,
		Args: cobra.NoArgs,
		RunE: runPolicyShow,
	}
	show.Flags().String("registry", "", "Content source registry document (default registry.yaml)")
	addGateFlags(show.Flags())
	show.Flags().Bool("default", false, "Print the embedded default policy and ignore configuration")
	cmd.AddCommand(show)
	return cmd
}

type policyView struct {
	Source     string                     `json:"source" yaml:"source"`
	Fallback   string                     `json:"fallback_warning,omitempty" yaml:"fallback_warning,omitempty"`
	Severities map[string]policy.Severity `json:"severities" yaml:"severities"`
	Document   policy.Document            `json:"document" yaml:"document"`
}

func runPolicyShow(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()
	asJSON, _ := cmd.Flags().GetBool("json")
	useDefault, _ := cmd.Flags().GetBool("default")
	out := cmd.OutOrStdout()

	var loaded policy.LoadResult
	if useDefault {
		var err error
		if loaded, err = policy.Load(ctx, policy.LoadOptions{}); err != nil {
			return err
		}
	} else {
		cfg, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		pc, err := pipelineConfig(cfg)
		if err != nil {
			return err
		}
		loaded, err = policy.Load(ctx, policy.LoadOptions{Path: pc.PolicyPath, Optional: pc.PolicyOptional, Soft: pc.Soft})
		if err != nil {
			return err
		}
		if pc.Soft && !loaded.Policy.SoftMode() {
			loaded.Policy = loaded.Policy.WithSoftMode(true)
		}
	}

	p := loaded.Policy
	view := policyView{
		Source:     loaded.Source,
		Fallback:   loaded.Warning,
		Severities: map[string]policy.Severity{},
		Document:   p.Document(),
	}
	gates := append([]string{}, policy.BuiltinGates...)
	for name := range p.Gates() {
		gates = append(gates, name)
	}
	for _, r := range p.Rules() {
		gates = append(gates, r.Gate)
	}
	for _, g := range gates {
		if g == policy.GateFallback && !p.Names(g) {
			continue // not evaluated
		}
		view.Severities[g] = p.Severity(g)
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}

	_, _ = fmt.Fprintf(out, "# source: %s\n", view.Source)
	if view.Fallback != "" {
		_, _ = fmt.Fprintf(out, "# warning: %s\n", view.Fallback)
	}
	names := make([]string, 0, len(view.Severities))
	for name := range view.Severities {
		names = append(names, name)
	}
	sort.Strings(names)
	rows := [][]string{{"gate", "level", "downgradeable", "severity"}}
	for _, name := range names {
		rows = append(rows, []string{
			name,
			string(p.Level(name)),
			fmt.Sprintf("%t", p.Downgradeable(name)),
			string(view.Severities[name]),
		})
	}
	for _, line := range strings.Split(strings.TrimRight(ascii.Table(rows), "\n"), "\n") {
		_, _ = fmt.Fprintf(out, "# %s\n", strings.TrimRight(line, " "))
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(view.Document); err != nil {
		return err
	}
	return enc.Close()
}
