package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fulmenhq/contentpack/pkg/versioning"
	"github.com/spf13/viper"
)

// ProjectFileName is the base name of the project configuration file. Viper
// resolves any supported extension (.yaml, .yml, .json, .toml).
const ProjectFileName = ".contentpack"

// EnvPrefix prefixes every environment override, e.g. CONTENTPACK_DATASET_NAME.
const EnvPrefix = "CONTENTPACK"

// Config holds all configuration for contentpack
type Config struct {
	Registry RegistryConfig `mapstructure:"registry"`
	Policy   PolicyConfig   `mapstructure:"policy"`
	Dataset  DatasetConfig  `mapstructure:"dataset"`
	Output   OutputConfig   `mapstructure:"output"`
	Manifest ManifestConfig `mapstructure:"manifest"`
	Work     WorkConfig     `mapstructure:"work"`
	Summary  SummaryConfig  `mapstructure:"summary"`
}

// RegistryConfig locates the content source registry document.
type RegistryConfig struct {
	Path string `mapstructure:"path"`
	// Root overrides the registry's content root; relative to the registry file.
	Root string `mapstructure:"root"`
}

// PolicyConfig selects the gate policy.
type PolicyConfig struct {
	Path string `mapstructure:"path"` // empty means embedded default
	Soft bool   `mapstructure:"soft"`
}

// DatasetConfig names the release recorded in the manifest.
type DatasetConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
}

// OutputConfig holds bundle output settings
type OutputConfig struct {
	Dir         string `mapstructure:"dir"`
	Archive     string `mapstructure:"archive"` // "", "zip", "tar.zst"
	ArchivePath string `mapstructure:"archive_path"`
}

// ManifestConfig holds manifest construction settings
type ManifestConfig struct {
	HashAlgorithm  string `mapstructure:"hash_algorithm"`
	RecordRevision bool   `mapstructure:"record_revision"`
}

// WorkConfig sizes the worker pool.
type WorkConfig struct {
	Concurrency        int `mapstructure:"concurrency"`
	ConcurrencyPercent int `mapstructure:"concurrency_percent"`
}

// SummaryConfig controls the end-of-run summary.
type SummaryConfig struct {
	MaxExamples int `mapstructure:"max_examples"`
}

var defaultConfig = Config{
	Registry: RegistryConfig{Path: "registry.yaml"},
	Dataset:  DatasetConfig{Name: "content", Version: "0.0.0"},
	Output:   OutputConfig{Dir: "dist/bundle"},
	Manifest: ManifestConfig{HashAlgorithm: "sha256", RecordRevision: true},
	Work:     WorkConfig{Concurrency: 0, ConcurrencyPercent: 50},
	Summary:  SummaryConfig{MaxExamples: 5},
}

// Default returns a copy of the built-in defaults.
func Default() Config {
	return defaultConfig
}

// New builds a viper instance with defaults, environment binding, and the
// project file search rooted at dir. An explicit file overrides the search.
func New(dir, file string) (*viper.Viper, error) {
	v := viper.New()

	v.SetDefault("registry.path", defaultConfig.Registry.Path)
	v.SetDefault("registry.root", defaultConfig.Registry.Root)
	v.SetDefault("policy.path", defaultConfig.Policy.Path)
	v.SetDefault("policy.soft", defaultConfig.Policy.Soft)
	v.SetDefault("dataset.name", defaultConfig.Dataset.Name)
	v.SetDefault("dataset.version", defaultConfig.Dataset.Version)
	v.SetDefault("output.dir", defaultConfig.Output.Dir)
	v.SetDefault("output.archive", defaultConfig.Output.Archive)
	v.SetDefault("output.archive_path", defaultConfig.Output.ArchivePath)
	v.SetDefault("manifest.hash_algorithm", defaultConfig.Manifest.HashAlgorithm)
	v.SetDefault("manifest.record_revision", defaultConfig.Manifest.RecordRevision)
	v.SetDefault("work.concurrency", defaultConfig.Work.Concurrency)
	v.SetDefault("work.concurrency_percent", defaultConfig.Work.ConcurrencyPercent)
	v.SetDefault("summary.max_examples", defaultConfig.Summary.MaxExamples)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
		return v, nil
	}

	if dir == "" {
		dir = "."
	}
	v.SetConfigName(ProjectFileName)
	v.AddConfigPath(dir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read project config: %w", err)
		}
	}
	return v, nil
}

// Load unmarshals and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	switch c.Output.Archive {
	case "", "zip", "tar.zst":
	default:
		return fmt.Errorf("output.archive: unsupported format %q (want zip or tar.zst)", c.Output.Archive)
	}
	switch c.Manifest.HashAlgorithm {
	case "sha256", "blake3":
	default:
		return fmt.Errorf("manifest.hash_algorithm: unsupported algorithm %q", c.Manifest.HashAlgorithm)
	}
	if c.Work.Concurrency < 0 {
		return fmt.Errorf("work.concurrency must be >= 0")
	}
	if c.Work.ConcurrencyPercent < 0 || c.Work.ConcurrencyPercent > 100 {
		return fmt.Errorf("work.concurrency_percent must be within 0..100")
	}
	if strings.TrimSpace(c.Dataset.Name) == "" {
		return fmt.Errorf("dataset.name is required")
	}
	if _, err := versioning.Parse(c.Dataset.Version); err != nil {
		return fmt.Errorf("dataset.version: %w", err)
	}
	if c.Summary.MaxExamples < 0 {
		return fmt.Errorf("summary.max_examples must be >= 0")
	}
	return nil
}
