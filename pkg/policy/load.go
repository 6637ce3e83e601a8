package policy

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/fulmenhq/contentpack/internal/assets"
)

// SourceEmbedded names the built-in default policy in LoadResult.Source.
const SourceEmbedded = "embedded:default-policy.yaml"

// LoadError reports a policy document that could not be read, parsed or validated.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load policy %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// LoadOptions selects and qualifies the policy document to load.
type LoadOptions struct {
	// Path to a policy document; empty selects the embedded default.
	Path string
	// Optional marks a path discovered by convention rather than requested,
	// so a missing file quietly selects the default.
	Optional bool
	// Soft downgrades load failures to a warning plus the embedded default.
	Soft bool
}

// LoadResult is the policy in effect and how it was obtained.
type LoadResult struct {
	Policy   *GatePolicy
	Source   string
	Fallback bool   // true when a requested document was replaced by the default
	Warning  string // set when Fallback is true
}

// Default parses the embedded default policy.
func Default(ctx context.Context) (*GatePolicy, error) {
	p, err := Parse(ctx, "default-policy.yaml", assets.DefaultPolicy)
	if err != nil {
		return nil, fmt.Errorf("embedded default policy: %w", err)
	}
	return p, nil
}

// Load resolves the policy for a run.
func Load(ctx context.Context, opts LoadOptions) (LoadResult, error) {
	if opts.Path == "" {
		p, err := Default(ctx)
		if err != nil {
			return LoadResult{}, err
		}
		return LoadResult{Policy: p, Source: SourceEmbedded}, nil
	}

	p, err := loadFile(ctx, opts.Path)
	if err == nil {
		return LoadResult{Policy: p, Source: opts.Path}, nil
	}

	if opts.Optional && errors.Is(err, fs.ErrNotExist) {
		def, derr := Default(ctx)
		if derr != nil {
			return LoadResult{}, derr
		}
		return LoadResult{Policy: def, Source: SourceEmbedded}, nil
	}
	if !opts.Soft {
		return LoadResult{}, err
	}
	def, derr := Default(ctx)
	if derr != nil {
		return LoadResult{}, derr
	}
	return LoadResult{
		Policy:   def,
		Source:   SourceEmbedded,
		Fallback: true,
		Warning:  fmt.Sprintf("%v; using embedded default policy", err),
	}, nil
}

func loadFile(ctx context.Context, path string) (*GatePolicy, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- user-selected policy document
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	p, err := Parse(ctx, path, data)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return p, nil
}
