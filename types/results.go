package types

import "fmt"

// FailureKind classifies a failed stage so the pipeline driver can report it
// without inspecting stage internals.
type FailureKind string

const (
	EnvironmentError     FailureKind = "environment"
	DependencyError      FailureKind = "dependency"
	RepositoryError      FailureKind = "repository"
	DiscoveryError       FailureKind = "discovery"
	DiskError            FailureKind = "disk"
	BuildValidationError FailureKind = "build-validation"
)

// ValidationResult is the uniform outcome of every validator and stage.
// Validators never abort on their own; the pipeline driver is the only
// place that decides to stop.
type ValidationResult struct {
	OK      bool
	Kind    FailureKind
	Message string
	// Tail keeps the last diagnostic lines of the underlying tool for
	// operator triage.
	Tail []string
}

// Pass returns a successful result.
func Pass() ValidationResult {
	return ValidationResult{OK: true}
}

// Failf returns a failed result of the given kind.
func Failf(kind FailureKind, format string, args ...interface{}) ValidationResult {
	return ValidationResult{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithTail attaches diagnostic lines to the result.
func (r ValidationResult) WithTail(lines []string) ValidationResult {
	r.Tail = lines
	return r
}

// Error renders the result as an error, nil when it passed.
func (r ValidationResult) Error() error {
	if r.OK {
		return nil
	}
	return fmt.Errorf("%s: %s", r.Kind, r.Message)
}
