package policy

// Level is the configured strictness of a gate.
type Level string

const (
	Hard Level = "hard"
	Soft Level = "soft"
)

// Severity is the resolved weight of an issue after policy is applied.
type Severity string

const (
	// SeverityBlocking stops packaging.
	SeverityBlocking Severity = "blocking"
	// SeverityWarning is reported but lets downstream stages proceed.
	SeverityWarning Severity = "warning"
)

// Resolve is the severity decision table:
//
//	level  soft-mode  downgradeable  severity
//	soft   any        any            warning
//	hard   off        any            blocking
//	hard   on         no             blocking
//	hard   on         yes            warning
func Resolve(level Level, softMode, downgradeable bool) Severity {
	if level == Soft {
		return SeverityWarning
	}
	if softMode && downgradeable {
		return SeverityWarning
	}
	return SeverityBlocking
}
