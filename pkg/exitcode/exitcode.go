// Package exitcode provides standardized exit codes for contentpack
package exitcode

// Exit codes for contentpack CLI
const (
	Success         = 0
	GeneralError    = 1
	ConfigError     = 2
	ValidationError = 3 // blocking gate issues outside soft mode
	FileSystemError = 4
	PolicyError     = 5
	IntegrityError  = 6
	PackagingError  = 7
)

// String returns a human-readable description of the exit code
func String(code int) string {
	switch code {
	case Success:
		return "Success"
	case GeneralError:
		return "General error"
	case ConfigError:
		return "Configuration error"
	case ValidationError:
		return "Validation error"
	case FileSystemError:
		return "File system error"
	case PolicyError:
		return "Policy load error"
	case IntegrityError:
		return "Integrity computation error"
	case PackagingError:
		return "Packaging error"
	default:
		return "Unknown error"
	}
}
