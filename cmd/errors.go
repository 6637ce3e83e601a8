package cmd

import (
	"errors"
	"io/fs"

	"github.com/fulmenhq/contentpack/internal/pipeline"
	"github.com/fulmenhq/contentpack/pkg/bundle"
	"github.com/fulmenhq/contentpack/pkg/exitcode"
	"github.com/fulmenhq/contentpack/pkg/manifest"
	"github.com/fulmenhq/contentpack/pkg/policy"
	"github.com/fulmenhq/contentpack/pkg/safeio"
)

// configError marks failures to assemble settings from flags, environment,
// and project files.
type configError struct{ err error }

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

// reportedError marks an error whose details were already printed in a
// summary or report, so Execute only sets the exit code.
type reportedError struct{ err error }

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

// exitCodeFor maps a command error onto the CLI exit code contract.
func exitCodeFor(err error) int {
	if err == nil {
		return exitcode.Success
	}
	var (
		cfgErr  *configError
		loadErr *policy.LoadError
		intErr  *manifest.IntegrityError
		pkgErr  *bundle.PackagingError
	)
	switch {
	case errors.Is(err, pipeline.ErrBlocked), errors.Is(err, errVerifyFailed):
		return exitcode.ValidationError
	case errors.As(err, &cfgErr):
		return exitcode.ConfigError
	case errors.As(err, &loadErr):
		return exitcode.PolicyError
	case errors.As(err, &intErr):
		return exitcode.IntegrityError
	case errors.As(err, &pkgErr):
		return exitcode.PackagingError
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, fs.ErrPermission), errors.Is(err, safeio.ErrTraversal):
		return exitcode.FileSystemError
	default:
		return exitcode.GeneralError
	}
}
