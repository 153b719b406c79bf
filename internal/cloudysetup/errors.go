package cloudysetup

import (
	"errors"
	"fmt"
	"strings"
)

// Error category constants classify control-plane failures for diagnostics.
const (
	ErrCategoryPermission    = "permission"
	ErrCategoryConfiguration = "configuration"
	ErrCategoryResource      = "resource"
	ErrCategoryThrottling    = "throttling"
	ErrCategoryTimeout       = "timeout"
	ErrCategoryNetwork       = "network"
)

// ErrPollExhausted is reported by PollOutcome.Err when the attempt budget
// ran out before a terminal status was observed.
var ErrPollExhausted = errors.New("max attempts reached without a terminal status")

// ValidationError rejects a request before any network call is made.
type ValidationError struct {
	// Field names the offending input (e.g. "Operation", "Identifier").
	Field string
	// Message is the primary error description.
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid request: " + e.Message
	}
	return fmt.Sprintf("invalid request: %s: %s", e.Field, e.Message)
}

func newValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ControlPlaneError is a failure reported by (or while reaching) the
// resource control API. It carries a category and a remediation hint derived
// from the upstream message.
type ControlPlaneError struct {
	// Operation is the control-plane call that failed (e.g. "CreateResource").
	Operation string
	// StatusCode is the upstream HTTP status, or 0 when no response arrived.
	StatusCode int
	// Code is the upstream error code (e.g. "AccessDeniedException").
	Code string
	// Message is the primary error description.
	Message string
	// Category classifies the failure (e.g. "permission", "network").
	Category string
	// Remediation is a human-readable hint on how to fix the issue.
	Remediation string
	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface with a diagnostic-rich message.
func (e *ControlPlaneError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s failed", e.Operation)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.StatusCode)
	}
	if e.Code != "" {
		fmt.Fprintf(&b, ": %s", e.Code)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if e.Remediation != "" {
		fmt.Fprintf(&b, " [hint: %s]", e.Remediation)
	}
	return b.String()
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *ControlPlaneError) Unwrap() error {
	return e.Cause
}

// NotFound reports whether the control plane said the resource or request
// does not exist.
func (e *ControlPlaneError) NotFound() bool {
	return e.StatusCode == 404
}

// Retryable reports whether repeating the call may succeed.
func (e *ControlPlaneError) Retryable() bool {
	switch e.Category {
	case ErrCategoryThrottling, ErrCategoryNetwork, ErrCategoryTimeout:
		return true
	}
	return e.StatusCode >= 500
}

// newControlPlaneError builds a ControlPlaneError with automatic message
// classification. Code and status are filled from the cause when it is an
// AWS API error; a missing resource always reports status 404.
func newControlPlaneError(operation string, cause error) *ControlPlaneError {
	var existing *ControlPlaneError
	if errors.As(cause, &existing) {
		return existing
	}
	code, message, status := awsErrorDetails(cause)
	category, remediation := classifyErrorMessage(code + " " + message)
	if isNotFound(cause) {
		status = 404
		category, remediation = ErrCategoryResource, ""
	}
	return &ControlPlaneError{
		Operation:   operation,
		StatusCode:  status,
		Code:        code,
		Message:     message,
		Category:    category,
		Remediation: remediation,
		Cause:       cause,
	}
}

// GenerationError reports a model call that failed or produced no usable
// configuration. Generation is never retried.
type GenerationError struct {
	// Stage is the generation step that failed ("template", "suggestions", "validate").
	Stage string
	// Message is the primary error description.
	Message string
	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *GenerationError) Error() string {
	msg := fmt.Sprintf("generation failed at %s: %s", e.Stage, e.Message)
	if e.Cause != nil {
		msg += fmt.Sprintf(" (cause: %v)", e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *GenerationError) Unwrap() error {
	return e.Cause
}

// classifyErrorMessage determines category and remediation from an error string.
func classifyErrorMessage(msg string) (category, remediation string) {
	lower := strings.ToLower(msg)

	if containsAny(lower, permissionKeywords) {
		return ErrCategoryPermission, hintCheckIAM
	}
	if containsAny(lower, throttlingKeywords) {
		return ErrCategoryThrottling, hintBackOff
	}
	if containsAny(lower, timeoutKeywords) {
		return ErrCategoryTimeout, hintRetryOrTimeout
	}
	if containsAny(lower, networkKeywords) {
		return ErrCategoryNetwork, hintCheckNetwork
	}
	if containsAny(lower, configKeywords) {
		return ErrCategoryConfiguration, hintCheckConfig
	}
	return ErrCategoryResource, ""
}

// Keyword groups for error classification.
var (
	permissionKeywords = []string{
		"accessdenied", "access denied", "unauthorized", "not authorized",
		"forbidden", "unrecognizedclient", "invalidclienttokenid",
		"signaturedoesnotmatch", "expiredtoken",
	}
	throttlingKeywords = []string{
		"throttl", "too many requests", "rate exceeded", "requestlimitexceeded",
	}
	timeoutKeywords = []string{
		"deadline exceeded", "context canceled", "timed out",
	}
	networkKeywords = []string{
		"connection refused", "no such host", "dial tcp",
		"tls handshake", "connection reset",
	}
	configKeywords = []string{
		"validation", "invalid", "malformed", "typenotfound", "unsupportedaction",
	}
)

// Remediation hint constants.
const (
	hintCheckIAM       = "verify the credentials are valid and allow cloudformation:*Resource* actions for the type"
	hintBackOff        = "the control plane is throttling requests; retry after a short wait"
	hintRetryOrTimeout = "the call did not complete in time; raise call_timeout or retry"
	hintCheckNetwork   = "verify the AWS region is correct and network connectivity is available"
	hintCheckConfig    = "check the resource type name and properties match the resource schema"
)

// containsAny returns true if s contains any of the substrings.
func containsAny(s string, substrings []string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// AsValidationError returns the ValidationError if err is (or wraps) one.
func AsValidationError(err error) *ValidationError {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve
	}
	return nil
}

// AsControlPlaneError returns the ControlPlaneError if err is (or wraps) one.
func AsControlPlaneError(err error) *ControlPlaneError {
	var ce *ControlPlaneError
	if errors.As(err, &ce) {
		return ce
	}
	return nil
}

// AsGenerationError returns the GenerationError if err is (or wraps) one.
func AsGenerationError(err error) *GenerationError {
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge
	}
	return nil
}
