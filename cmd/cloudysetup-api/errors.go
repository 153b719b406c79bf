package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/AltairaLabs/cloudysetup/internal/cloudysetup"
)

// Error codes returned in ErrorResponse.Code.
const (
	errCodeInvalidRequest     = "INVALID_REQUEST"
	errCodeMissingCredentials = "MISSING_CREDENTIALS"
	errCodeGenerationFailed   = "GENERATION_FAILED"
	errCodeUpstreamRejected   = "UPSTREAM_REJECTED"
	errCodeUpstreamError      = "UPSTREAM_ERROR"
	errCodeTimeout            = "TIMEOUT"
	errCodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	errCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	errCodeInternalError      = "INTERNAL_ERROR"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"requestId"`
	Timestamp time.Time      `json:"timestamp"`
	Retryable bool           `json:"retryable"`
}

// writeJSON writes v as the JSON response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an ErrorResponse carrying the request ID.
func writeError(
	w http.ResponseWriter, r *http.Request, status int,
	code, message string, retryable bool, details map[string]any,
) {
	requestID := requestIDFrom(r.Context())
	if requestID == "" {
		requestID = uuid.NewString()
	}
	writeJSON(w, status, ErrorResponse{
		Code:      code,
		Message:   message,
		Details:   details,
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
		Retryable: retryable,
	})
}

// errorStatus maps a service error onto an HTTP status, error code and
// retryable flag. Upstream 4xx statuses pass through; anything else from
// the control plane or the model is a bad gateway. GenerationError is
// checked first because it may wrap a ValidationError of the generated
// document.
func errorStatus(err error) (status int, code string, retryable bool) {
	if ge := cloudysetup.AsGenerationError(err); ge != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout, errCodeTimeout, true
		}
		return http.StatusBadGateway, errCodeGenerationFailed, false
	}
	if ve := cloudysetup.AsValidationError(err); ve != nil {
		return http.StatusBadRequest, errCodeInvalidRequest, false
	}
	if ce := cloudysetup.AsControlPlaneError(err); ce != nil {
		if ce.StatusCode >= 400 && ce.StatusCode < 500 {
			return ce.StatusCode, errCodeUpstreamRejected, ce.Retryable()
		}
		return http.StatusBadGateway, errCodeUpstreamError, ce.Retryable()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, errCodeTimeout, true
	}
	return http.StatusInternalServerError, errCodeInternalError, false
}

// errorDetails returns the structured fields of known error types.
func errorDetails(err error) map[string]any {
	if ge := cloudysetup.AsGenerationError(err); ge != nil {
		return map[string]any{"stage": ge.Stage}
	}
	if ve := cloudysetup.AsValidationError(err); ve != nil && ve.Field != "" {
		return map[string]any{"field": ve.Field}
	}
	if ce := cloudysetup.AsControlPlaneError(err); ce != nil {
		d := map[string]any{"operation": ce.Operation}
		if ce.Code != "" {
			d["upstreamCode"] = ce.Code
		}
		if ce.StatusCode != 0 {
			d["upstreamStatus"] = ce.StatusCode
		}
		if ce.Category != "" {
			d["category"] = ce.Category
		}
		if ce.Remediation != "" {
			d["remediation"] = ce.Remediation
		}
		return d
	}
	return nil
}

// writeServiceError reports err from a service call.
func (s *apiServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, retryable := errorStatus(err)
	level := s.log.Warn
	if status >= http.StatusInternalServerError {
		level = s.log.Error
	}
	level("request failed",
		"path", r.URL.Path, "status", status, "code", code,
		"request_id", requestIDFrom(r.Context()), "error", err)
	writeError(w, r, status, code, err.Error(), retryable, errorDetails(err))
}
