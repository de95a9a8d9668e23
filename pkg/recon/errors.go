package recon

import (
	"errors"
	"fmt"

	"github.com/vulntor/fwrecon/pkg/probe"
	"github.com/vulntor/fwrecon/pkg/profile"
	"github.com/vulntor/fwrecon/pkg/target"
)

// Sentinel errors for run-level failures.
var (
	// ErrNoTarget indicates that no scan target was supplied.
	ErrNoTarget = errors.New("no scan target specified")

	// ErrNoDiscoverer indicates the service was built without a discovery engine.
	ErrNoDiscoverer = errors.New("no discovery engine configured")
)

// Error codes used by the CLI suggestion system.
const (
	ErrorCodeInvalidTarget         = "INVALID_TARGET"
	ErrorCodeInvalidProfile        = "INVALID_PROFILE"
	ErrorCodeCapabilityUnavailable = "CAPABILITY_UNAVAILABLE"
	ErrorCodeRunFailure            = "RUN_FAILURE"
)

// codedError wraps an error with an explicit error code.
type codedError struct {
	error
	code string
}

func (e *codedError) Unwrap() error { return e.error }

func (e *codedError) Code() string { return e.code }

// WithErrorCode wraps err with a specific CLI error code.
func WithErrorCode(err error, code string) error {
	if err == nil {
		return nil
	}
	return &codedError{error: err, code: code}
}

// ErrorCode resolves a run error into a CLI error code.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}

	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		if code := coded.Code(); code != "" {
			return code
		}
	}

	switch {
	case errors.Is(err, ErrNoTarget),
		errors.Is(err, target.ErrInvalidTarget),
		errors.Is(err, target.ErrUnresolvable),
		errors.Is(err, target.ErrTooManyHosts):
		return ErrorCodeInvalidTarget
	case errors.Is(err, profile.ErrUnknownProfile):
		return ErrorCodeInvalidProfile
	case errors.Is(err, probe.ErrCapabilityUnavailable),
		errors.Is(err, ErrNoDiscoverer):
		return ErrorCodeCapabilityUnavailable
	}

	return ErrorCodeRunFailure
}

// ExitCode maps run errors to CLI exit codes.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	switch ErrorCode(err) {
	case ErrorCodeInvalidTarget, ErrorCodeInvalidProfile:
		return 2
	case ErrorCodeCapabilityUnavailable:
		return 3
	default:
		return 1
	}
}

// NewInvalidTargetError annotates an invalid target input with context.
func NewInvalidTargetError(input string, reason error) error {
	base := ErrNoTarget
	if input != "" {
		base = fmt.Errorf("invalid target %q: %w", input, reason)
	}
	return WithErrorCode(base, ErrorCodeInvalidTarget)
}

// NewCapabilityError marks a discovery engine that cannot be invoked.
func NewCapabilityError(reason error) error {
	return WithErrorCode(fmt.Errorf("discovery engine unavailable: %w", reason), ErrorCodeCapabilityUnavailable)
}
