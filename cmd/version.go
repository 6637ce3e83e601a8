/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package cmd

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/fulmenhq/contentpack/pkg/buildinfo"
	"github.com/fulmenhq/contentpack/pkg/manifest"
	"github.com/spf13/cobra"
)

// versionInfo is the payload of `version --json`.
type versionInfo struct {
	Version         string `json:"version"`
	Module          string `json:"module,omitempty"`
	ManifestVersion string `json:"manifestVersion"`
	GoVersion       string `json:"goVersion"`
	Platform        string `json:"platform"`
	Arch            string `json:"arch"`
}

func newVersionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show contentpack version information",
		Args:  cobra.NoArgs,
		RunE:  runVersion,
	}
	cmd.Flags().Bool("extended", false, "Show build and manifest format details")
	return cmd
}

func runVersion(cmd *cobra.Command, _ []string) error {
	extended, _ := cmd.Flags().GetBool("extended")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	out := cmd.OutOrStdout()

	info := versionInfo{
		Version:         buildinfo.BinaryVersion,
		Module:          buildinfo.ModuleVersion(),
		ManifestVersion: manifest.Version,
		GoVersion:       runtime.Version(),
		Platform:        runtime.GOOS,
		Arch:            runtime.GOARCH,
	}

	if jsonOutput {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	}

	_, _ = fmt.Fprintf(out, "contentpack %s\n", info.Version)
	if extended {
		if info.Module != "" {
			_, _ = fmt.Fprintf(out, "Module version: %s\n", info.Module)
		}
		_, _ = fmt.Fprintf(out, "Manifest format: %s\n", info.ManifestVersion)
		_, _ = fmt.Fprintf(out, "Go version: %s\n", info.GoVersion)
		_, _ = fmt.Fprintf(out, "Platform: %s/%s\n", info.Platform, info.Arch)
	}
	return nil
}
