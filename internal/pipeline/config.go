package pipeline

import (
	"time"

	"github.com/fulmenhq/contentpack/pkg/bundle"
	"github.com/fulmenhq/contentpack/pkg/manifest"
)

// Config is threaded explicitly through every stage of a run.
type Config struct {
	RegistryPath string
	// Root overrides the registry's content root; relative to the registry file.
	Root string

	PolicyPath string
	// PolicyOptional lets a missing PolicyPath select the embedded default.
	PolicyOptional bool
	// Soft engages global soft mode on top of the policy's own setting.
	Soft bool

	Dataset       manifest.Dataset
	HashAlgorithm manifest.Algorithm
	// GeneratedAt pins the manifest timestamp; nil derives it from the entries.
	GeneratedAt    *time.Time
	RecordRevision bool

	OutputDir   string
	Archive     bundle.ArchiveFormat
	ArchivePath string

	Workers int
	// StopAfterValidation skips manifest and packaging.
	StopAfterValidation bool
}
