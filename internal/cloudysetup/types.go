// Package cloudysetup turns natural-language resource descriptions into AWS
// Cloud Control requests, submits them and polls the resulting asynchronous
// operations until they settle.
package cloudysetup

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// RequestToken identifies one in-flight mutating control-plane operation.
type RequestToken string

// OperationStatus is the normalised state of an asynchronous operation.
type OperationStatus string

// Operation status values. SUCCESS, FAILED and CANCELLED are terminal.
const (
	StatusPending    OperationStatus = "PENDING"
	StatusInProgress OperationStatus = "IN_PROGRESS"
	StatusSuccess    OperationStatus = "SUCCESS"
	StatusFailed     OperationStatus = "FAILED"
	StatusCancelled  OperationStatus = "CANCELLED"
	StatusUnknown    OperationStatus = "UNKNOWN"
)

// IsTerminal reports whether no further polling is meaningful.
func (s OperationStatus) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// ParseOperationStatus maps an upstream status string onto OperationStatus.
// Cloud Control reports cancellation in two steps; the in-flight step is
// treated as still running. Unrecognised values map to UNKNOWN.
func ParseOperationStatus(s string) OperationStatus {
	switch s {
	case "PENDING":
		return StatusPending
	case "IN_PROGRESS", "CANCEL_IN_PROGRESS":
		return StatusInProgress
	case "SUCCESS":
		return StatusSuccess
	case "FAILED":
		return StatusFailed
	case "CANCELLED", "CANCEL_COMPLETE":
		return StatusCancelled
	default:
		return StatusUnknown
	}
}

// Operation is the logical resource action carried by a ResourceDescriptor.
type Operation string

// Supported operations.
const (
	OpCreate Operation = "create"
	OpRead   Operation = "read"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
	OpList   Operation = "list"
)

// SupportedOperations lists the operations the dispatcher understands.
func SupportedOperations() []Operation {
	return []Operation{OpCreate, OpRead, OpUpdate, OpDelete, OpList}
}

// IsValid reports whether op is one of SupportedOperations.
func (op Operation) IsValid() bool {
	switch op {
	case OpCreate, OpRead, OpUpdate, OpDelete, OpList:
		return true
	default:
		return false
	}
}

// IsMutating reports whether op returns a request token to poll.
func (op Operation) IsMutating() bool {
	return op == OpCreate || op == OpUpdate || op == OpDelete
}

// ResourceDescriptor is a structured resource-management request.
type ResourceDescriptor struct {
	TypeName   string     `json:"TypeName" yaml:"TypeName"`
	Identifier string     `json:"Identifier,omitempty" yaml:"Identifier,omitempty"`
	Properties Properties `json:"Properties,omitzero" yaml:"Properties,omitempty"`
	Operation  Operation  `json:"Operation,omitempty" yaml:"Operation,omitempty"`
}

// SubmissionDocument returns the descriptor as it is sent upstream: the
// Operation tag is a local routing hint and is always stripped.
func (d ResourceDescriptor) SubmissionDocument() ([]byte, error) {
	doc := struct {
		TypeName   string     `json:"TypeName"`
		Identifier string     `json:"Identifier,omitempty"`
		Properties Properties `json:"Properties,omitzero"`
	}{d.TypeName, d.Identifier, d.Properties}
	return json.Marshal(doc)
}

// Credentials are forwarded verbatim to the control plane on every call.
// When both keys are empty the default AWS credential chain is used.
type Credentials struct {
	AccessKey    string
	SecretKey    string
	SessionToken string
}

// IsZero reports whether no explicit keys were supplied.
func (c Credentials) IsZero() bool {
	return c.AccessKey == "" && c.SecretKey == ""
}

// String redacts the secret parts so credentials are safe to log.
func (c Credentials) String() string {
	if c.IsZero() {
		return "Credentials{default chain}"
	}
	return fmt.Sprintf("Credentials{AccessKey:%s, SecretKey:<redacted>, SessionToken:%t}",
		redactKey(c.AccessKey), c.SessionToken != "")
}

// LogValue keeps credentials redacted when passed to slog.
func (c Credentials) LogValue() slog.Value { return slog.StringValue(c.String()) }

// redactKey keeps the last four characters of an access key.
func redactKey(k string) string {
	const visible = 4
	if len(k) <= visible {
		return "****"
	}
	return "****" + k[len(k)-visible:]
}

// ProgressEvent is the control plane's view of an asynchronous operation.
type ProgressEvent struct {
	RequestToken    RequestToken    `json:"RequestToken,omitempty" yaml:"RequestToken,omitempty"`
	OperationStatus OperationStatus `json:"OperationStatus" yaml:"OperationStatus"`
	Operation       string          `json:"Operation,omitempty" yaml:"Operation,omitempty"`
	Identifier      string          `json:"Identifier,omitempty" yaml:"Identifier,omitempty"`
	TypeName        string          `json:"TypeName,omitempty" yaml:"TypeName,omitempty"`
	StatusMessage   string          `json:"StatusMessage,omitempty" yaml:"StatusMessage,omitempty"`
	ErrorCode       string          `json:"ErrorCode,omitempty" yaml:"ErrorCode,omitempty"`
	ResourceModel   string          `json:"ResourceModel,omitempty" yaml:"ResourceModel,omitempty"`
	EventTime       *time.Time      `json:"EventTime,omitempty" yaml:"EventTime,omitempty"`
	RetryAfter      *time.Time      `json:"RetryAfter,omitempty" yaml:"RetryAfter,omitempty"`
}

// ResourceModel is the current state of one resource instance.
type ResourceModel struct {
	TypeName   string `json:"TypeName" yaml:"TypeName"`
	Identifier string `json:"Identifier" yaml:"Identifier"`
	Properties string `json:"Properties,omitempty" yaml:"Properties,omitempty"`
}

// ResourcePage is one page of a list call.
type ResourcePage struct {
	TypeName  string          `json:"TypeName" yaml:"TypeName"`
	Resources []ResourceModel `json:"Resources" yaml:"Resources"`
	NextToken string          `json:"NextToken,omitempty" yaml:"NextToken,omitempty"`
}
