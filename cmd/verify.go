package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fulmenhq/contentpack/pkg/manifest"
	"github.com/spf13/cobra"
)

var errVerifyFailed = errors.New("bundle drift detected")

func newVerifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify [bundle-dir]",
		Short: "Re-hash a materialized bundle against its manifest",
		Long: `Verify reads manifest.json from the bundle directory (default: the configured
output directory), re-hashes every listed file, and reports missing, changed,
and unlisted files. Exit code 3 signals drift.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runVerify,
	}
}

func runVerify(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	out := cmd.OutOrStdout()

	dir := ""
	if len(args) == 1 {
		dir = args[0]
	} else {
		cfg, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		dir = cfg.Output.Dir
	}

	m, err := manifest.Read(filepath.Join(dir, manifest.FileName))
	if err != nil {
		return err
	}
	report, err := manifest.Verify(dir, m)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
	} else if report.OK {
		_, _ = fmt.Fprintf(out, "✅ Bundle verified: %d files, aggregate %s\n", report.Present, m.AggregateFingerprint)
	} else {
		_, _ = fmt.Fprintln(out, "❌ Bundle drift detected")
		if len(report.Missing) > 0 {
			_, _ = fmt.Fprintf(out, "Missing: %s\n", strings.Join(report.Missing, ", "))
		}
		if len(report.Changed) > 0 {
			_, _ = fmt.Fprintf(out, "Changed: %s\n", strings.Join(report.Changed, ", "))
		}
		if len(report.Extra) > 0 {
			_, _ = fmt.Fprintf(out, "Extra: %s\n", strings.Join(report.Extra, ", "))
		}
		if report.AggregateMismatch {
			_, _ = fmt.Fprintln(out, "Aggregate fingerprint does not match the listed files")
		}
		if report.RoutingMismatch {
			_, _ = fmt.Fprintln(out, "routing.json does not match the recorded routing fingerprint")
		}
	}
	if !report.OK {
		return &reportedError{errVerifyFailed}
	}
	return nil
}
