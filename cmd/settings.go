package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/fulmenhq/contentpack/internal/pipeline"
	"github.com/fulmenhq/contentpack/pkg/bundle"
	"github.com/fulmenhq/contentpack/pkg/config"
	"github.com/fulmenhq/contentpack/pkg/manifest"
	"github.com/fulmenhq/contentpack/pkg/versioning"
	"github.com/fulmenhq/contentpack/pkg/work"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// conventionalPolicy is picked up next to the registry when no policy is named.
const conventionalPolicy = "policy.yaml"

// flagKeys maps command flags onto configuration keys.
var flagKeys = map[string]string{
	"registry":        "registry.path",
	"root":            "registry.root",
	"policy":          "policy.path",
	"soft":            "policy.soft",
	"dataset-name":    "dataset.name",
	"dataset-version": "dataset.version",
	"output":          "output.dir",
	"archive":         "output.archive",
	"archive-path":    "output.archive_path",
	"hash":            "manifest.hash_algorithm",
	"record-revision": "manifest.record_revision",
	"concurrency":     "work.concurrency",
	"max-examples":    "summary.max_examples",
}

// addSourceFlags registers the flags every pipeline command shares.
func addSourceFlags(fs *pflag.FlagSet) {
	fs.String("registry", "", "Content source registry document (default registry.yaml)")
	fs.String("root", "", "Content root, overriding the registry's own (relative to the registry file)")
	fs.Int("concurrency", 0, "Worker count (0 derives from CPU cores)")
}

// addGateFlags registers the flags that shape validation.
func addGateFlags(fs *pflag.FlagSet) {
	fs.String("policy", "", "Gate policy document (YAML, JSON, JSONC, or TOML)")
	fs.Bool("soft", false, "Engage soft mode: downgrade eligible gates to warnings")
	fs.Int("max-examples", pipeline.DefaultMaxExamples, "Issues listed per gate in the summary")
}

// addBundleFlags registers manifest and packaging flags.
func addBundleFlags(fs *pflag.FlagSet) {
	fs.String("dataset-name", "", "Dataset name recorded in the manifest")
	fs.String("dataset-version", "", "Dataset semantic version recorded in the manifest")
	fs.StringP("output", "o", "", "Bundle output directory (default dist/bundle)")
	fs.String("archive", "", "Also write an archive: zip or tar.zst")
	fs.String("archive-path", "", "Archive file path (default <output>.<format>)")
	fs.String("hash", "", "Fingerprint algorithm: sha256 or blake3")
	fs.Bool("record-revision", true, "Record the content root's git revision in the manifest")
}

// loadSettings layers defaults, the project file, environment, and any flags
// the user set, in increasing precedence.
func loadSettings(cmd *cobra.Command) (*config.Config, error) {
	file, _ := cmd.Flags().GetString("config")
	v, err := config.New(".", file)
	if err != nil {
		return nil, &configError{err}
	}
	if err := bindFlags(v, cmd.Flags()); err != nil {
		return nil, &configError{err}
	}
	cfg, err := config.Load(v)
	if err != nil {
		return nil, &configError{err}
	}
	return cfg, nil
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind --%s: %w", name, err)
		}
	}
	return nil
}

// pipelineConfig turns loaded settings into the explicit per-run configuration.
func pipelineConfig(cfg *config.Config) (pipeline.Config, error) {
	alg, err := manifest.ParseAlgorithm(cfg.Manifest.HashAlgorithm)
	if err != nil {
		return pipeline.Config{}, &configError{err}
	}
	archive, err := bundle.ParseArchiveFormat(cfg.Output.Archive)
	if err != nil {
		return pipeline.Config{}, &configError{err}
	}
	version, err := versioning.Canonical(cfg.Dataset.Version)
	if err != nil {
		return pipeline.Config{}, &configError{err}
	}
	generatedAt, err := manifest.SourceDateEpoch()
	if err != nil {
		return pipeline.Config{}, &configError{err}
	}

	pc := pipeline.Config{
		RegistryPath:   cfg.Registry.Path,
		Root:           cfg.Registry.Root,
		PolicyPath:     cfg.Policy.Path,
		Soft:           cfg.Policy.Soft,
		Dataset:        manifest.Dataset{Name: cfg.Dataset.Name, Version: version},
		HashAlgorithm:  alg,
		GeneratedAt:    generatedAt,
		RecordRevision: cfg.Manifest.RecordRevision,
		OutputDir:      cfg.Output.Dir,
		Archive:        archive,
		ArchivePath:    cfg.Output.ArchivePath,
		Workers:        work.Workers(cfg.Work.Concurrency, cfg.Work.ConcurrencyPercent),
	}
	if pc.PolicyPath == "" {
		pc.PolicyPath = filepath.Join(filepath.Dir(pc.RegistryPath), conventionalPolicy)
		pc.PolicyOptional = true
	}
	return pc, nil
}
