package cloudysetup

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	jsonpatch "gopkg.in/evanphx/json-patch.v4"
)

// SimulatedControlPlane is an in-memory ControlPlane used for dry runs and
// tests. Each request reports PENDING, then IN_PROGRESS, then its final
// status on successive status queries. It is safe for concurrent use.
type SimulatedControlPlane struct {
	// StepsToComplete is how many status queries a request takes to settle;
	// defaults to 2.
	StepsToComplete int

	mu        sync.Mutex
	resources map[string]map[string]string // typeName -> identifier -> properties JSON
	requests  map[RequestToken]*simulatedRequest
	calls     map[string]int
}

type simulatedRequest struct {
	event   ProgressEvent
	queries int
	apply   func() error
}

// NewSimulatedControlPlane returns an empty simulated control plane.
func NewSimulatedControlPlane() *SimulatedControlPlane {
	return &SimulatedControlPlane{
		StepsToComplete: 2,
		resources:       make(map[string]map[string]string),
		requests:        make(map[RequestToken]*simulatedRequest),
		calls:           make(map[string]int),
	}
}

// Calls returns how many times the named method was invoked.
func (s *SimulatedControlPlane) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

// TotalCalls returns the number of calls across all methods.
func (s *SimulatedControlPlane) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

// Seed stores a resource directly, bypassing the request lifecycle.
func (s *SimulatedControlPlane) Seed(typeName, identifier, propertiesJSON string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store(typeName)[identifier] = propertiesJSON
}

func (s *SimulatedControlPlane) store(typeName string) map[string]string {
	m, ok := s.resources[typeName]
	if !ok {
		m = make(map[string]string)
		s.resources[typeName] = m
	}
	return m
}

func (s *SimulatedControlPlane) begin(op, typeName, identifier string, apply func() error) *ProgressEvent {
	now := time.Now()
	req := &simulatedRequest{
		event: ProgressEvent{
			RequestToken:    RequestToken(uuid.NewString()),
			OperationStatus: StatusPending,
			Operation:       op,
			TypeName:        typeName,
			Identifier:      identifier,
			EventTime:       &now,
		},
		apply: apply,
	}
	s.requests[req.event.RequestToken] = req
	ev := req.event
	return &ev
}

// SubmitCreate records a pending create. The identifier is taken from a
// string "Name"-like property when present, otherwise generated.
func (s *SimulatedControlPlane) SubmitCreate(
	_ context.Context, typeName string, properties Properties, _ Credentials,
) (*ProgressEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["SubmitCreate"]++

	doc, err := properties.MarshalJSON()
	if err != nil {
		return nil, err
	}
	id := simulatedIdentifier(typeName, properties)
	if _, exists := s.store(typeName)[id]; exists {
		return nil, &ControlPlaneError{
			Operation:  "CreateResource",
			StatusCode: 400,
			Code:       "AlreadyExistsException",
			Message:    fmt.Sprintf("resource %s already exists", describe(typeName, id)),
			Category:   ErrCategoryResource,
		}
	}
	return s.begin("CREATE", typeName, id, func() error {
		s.store(typeName)[id] = string(doc)
		return nil
	}), nil
}

// SubmitDelete records a pending delete.
func (s *SimulatedControlPlane) SubmitDelete(
	_ context.Context, typeName, identifier string, _ Credentials,
) (*ProgressEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["SubmitDelete"]++

	if _, ok := s.store(typeName)[identifier]; !ok {
		return nil, notFoundError("DeleteResource", typeName, identifier)
	}
	return s.begin("DELETE", typeName, identifier, func() error {
		delete(s.store(typeName), identifier)
		return nil
	}), nil
}

// SubmitUpdate records a pending update; the patch is applied when the
// request settles.
func (s *SimulatedControlPlane) SubmitUpdate(
	_ context.Context, typeName, identifier string, patch []byte, _ Credentials,
) (*ProgressEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["SubmitUpdate"]++

	if _, ok := s.store(typeName)[identifier]; !ok {
		return nil, notFoundError("UpdateResource", typeName, identifier)
	}
	decoded, err := jsonpatch.DecodePatch(patch)
	if err != nil {
		return nil, &ControlPlaneError{
			Operation:  "UpdateResource",
			StatusCode: 400,
			Code:       "ValidationException",
			Message:    "invalid patch document: " + err.Error(),
			Category:   ErrCategoryConfiguration,
			Cause:      err,
		}
	}
	return s.begin("UPDATE", typeName, identifier, func() error {
		updated, err := applyPatch([]byte(s.store(typeName)[identifier]), decoded)
		if err != nil {
			return err
		}
		s.store(typeName)[identifier] = string(updated)
		return nil
	}), nil
}

// QueryStatus advances the request one step and returns its progress event.
func (s *SimulatedControlPlane) QueryStatus(
	_ context.Context, token RequestToken, _ Credentials,
) (*ProgressEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["QueryStatus"]++

	req, ok := s.requests[token]
	if !ok {
		return nil, tokenNotFoundError("GetResourceRequestStatus", token)
	}
	if !req.event.OperationStatus.IsTerminal() {
		req.queries++
		steps := s.StepsToComplete
		if steps <= 0 {
			steps = 2
		}
		switch {
		case req.queries >= steps:
			if err := req.apply(); err != nil {
				req.event.OperationStatus = StatusFailed
				req.event.ErrorCode = "GeneralServiceException"
				req.event.StatusMessage = err.Error()
			} else {
				req.event.OperationStatus = StatusSuccess
			}
		default:
			req.event.OperationStatus = StatusInProgress
		}
		now := time.Now()
		req.event.EventTime = &now
	}
	if req.event.OperationStatus == StatusSuccess && req.event.Operation != "DELETE" {
		req.event.ResourceModel = s.store(req.event.TypeName)[req.event.Identifier]
	}
	ev := req.event
	return &ev, nil
}

// Cancel marks a request CANCELLED unless it already settled.
func (s *SimulatedControlPlane) Cancel(
	_ context.Context, token RequestToken, _ Credentials,
) (*ProgressEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["Cancel"]++

	req, ok := s.requests[token]
	if !ok {
		return nil, tokenNotFoundError("CancelResourceRequest", token)
	}
	if req.event.OperationStatus.IsTerminal() {
		return nil, &ControlPlaneError{
			Operation:  "CancelResourceRequest",
			StatusCode: 400,
			Code:       "RequestAlreadyCompletedException",
			Message:    fmt.Sprintf("request %s already completed", token),
			Category:   ErrCategoryResource,
		}
	}
	req.event.OperationStatus = StatusCancelled
	ev := req.event
	return &ev, nil
}

// Read returns the stored resource.
func (s *SimulatedControlPlane) Read(
	_ context.Context, typeName, identifier string, _ Credentials,
) (*ResourceModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["Read"]++

	props, ok := s.store(typeName)[identifier]
	if !ok {
		return nil, notFoundError("GetResource", typeName, identifier)
	}
	return &ResourceModel{TypeName: typeName, Identifier: identifier, Properties: props}, nil
}

// List returns every stored resource of typeName in identifier order, one
// page of at most listPageSize entries per call.
func (s *SimulatedControlPlane) List(
	_ context.Context, typeName, nextToken string, _ Credentials,
) (*ResourcePage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["List"]++

	stored := s.store(typeName)
	ids := make([]string, 0, len(stored))
	for id := range stored {
		if id > nextToken || nextToken == "" {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	page := &ResourcePage{TypeName: typeName, Resources: []ResourceModel{}}
	for i, id := range ids {
		if i == listPageSize {
			page.NextToken = ids[i-1]
			break
		}
		page.Resources = append(page.Resources, ResourceModel{
			TypeName: typeName, Identifier: id, Properties: stored[id],
		})
	}
	return page, nil
}

// applyPatch applies patch one operation at a time. replace and remove
// require their target to exist, as RFC 6902 does; the library alone would
// let replace create a missing member.
func applyPatch(doc []byte, patch jsonpatch.Patch) ([]byte, error) {
	for i, op := range patch {
		switch op.Kind() {
		case "replace", "remove":
			path, err := op.Path()
			if err != nil {
				return nil, fmt.Errorf("operation %d: %w", i, err)
			}
			ok, err := pointerExists(doc, path)
			if err != nil {
				return nil, fmt.Errorf("operation %d: %w", i, err)
			}
			if !ok {
				return nil, fmt.Errorf("operation %d: %s target %q does not exist", i, op.Kind(), path)
			}
		}
		next, err := jsonpatch.Patch{op}.Apply(doc)
		if err != nil {
			return nil, fmt.Errorf("operation %d: %w", i, err)
		}
		doc = next
	}
	return doc, nil
}

// pointerExists reports whether the JSON pointer path resolves in doc.
func pointerExists(doc []byte, path string) (bool, error) {
	var node any
	if err := json.Unmarshal(doc, &node); err != nil {
		return false, fmt.Errorf("decode resource model: %w", err)
	}
	if path == "" {
		return true, nil
	}
	if !strings.HasPrefix(path, "/") {
		return false, fmt.Errorf("invalid pointer %q", path)
	}
	for _, token := range strings.Split(path[1:], "/") {
		token = strings.ReplaceAll(strings.ReplaceAll(token, "~1", "/"), "~0", "~")
		switch n := node.(type) {
		case map[string]any:
			v, ok := n[token]
			if !ok {
				return false, nil
			}
			node = v
		case []any:
			idx, err := strconv.Atoi(token)
			if err != nil || idx < 0 || idx >= len(n) {
				return false, nil
			}
			node = n[idx]
		default:
			return false, nil
		}
	}
	return true, nil
}

func notFoundError(op, typeName, identifier string) *ControlPlaneError {
	return &ControlPlaneError{
		Operation:  op,
		StatusCode: 404,
		Code:       "ResourceNotFoundException",
		Message:    fmt.Sprintf("resource %s not found", describe(typeName, identifier)),
		Category:   ErrCategoryResource,
	}
}

func tokenNotFoundError(op string, token RequestToken) *ControlPlaneError {
	return &ControlPlaneError{
		Operation:  op,
		StatusCode: 404,
		Code:       "RequestTokenNotFoundException",
		Message:    fmt.Sprintf("request token %s not found", token),
		Category:   ErrCategoryResource,
	}
}

// simulatedIdentifier picks the primary identifier for a new resource.
func simulatedIdentifier(typeName string, props Properties) string {
	for _, k := range props.Keys() {
		if len(k) < 4 || k[len(k)-4:] != "Name" {
			continue
		}
		v, _ := props.Get(k)
		if s, ok := v.Str(); ok && s != "" {
			return s
		}
	}
	return fmt.Sprintf("%s-%s", lastSegment(typeName), uuid.NewString()[:8])
}

func lastSegment(typeName string) string {
	for i := len(typeName) - 1; i > 0; i-- {
		if typeName[i] == ':' {
			return typeName[i+1:]
		}
	}
	return typeName
}
