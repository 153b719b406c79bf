package cloudysetup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// DefaultMaxListPages bounds how many pages a list dispatch follows.
const DefaultMaxListPages = 20

// DispatchResult is the immediate result of dispatching one descriptor.
type DispatchResult struct {
	Operation Operation `json:"operation"`
	// RequestToken is set for create, update and delete.
	RequestToken RequestToken `json:"requestToken,omitempty"`
	// Progress is the control plane's initial progress event for mutating calls.
	Progress *ProgressEvent `json:"progress,omitempty"`
	// Resource is set for read.
	Resource *ResourceModel `json:"resource,omitempty"`
	// Resources is set for list.
	Resources []ResourceModel `json:"resources,omitempty"`
	// Truncated is set when a list stopped at the page cap.
	Truncated bool `json:"truncated,omitempty"`
	// Status is the initial operation status; read and list complete
	// synchronously and report SUCCESS.
	Status OperationStatus `json:"status"`
}

// Dispatcher routes a ResourceDescriptor to the matching control-plane call.
type Dispatcher struct {
	Client ControlPlane
	// CallTimeout bounds each control-plane call; defaults to 30s.
	CallTimeout time.Duration
	// MaxListPages bounds list pagination; defaults to 20.
	MaxListPages int
	// ApplyTags adds TagKeyManagedBy and Tags to the Tags property on create.
	ApplyTags bool
	// Tags are user-defined default tags merged in when ApplyTags is set.
	Tags     map[string]string
	Observer Observer
	Logger   *slog.Logger
}

// NewDispatcher returns a Dispatcher with default settings.
func NewDispatcher(client ControlPlane) *Dispatcher {
	return &Dispatcher{Client: client, CallTimeout: DefaultCallTimeout, MaxListPages: DefaultMaxListPages}
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func (d *Dispatcher) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := d.CallTimeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// Dispatch validates desc and issues the matching control-plane call.
// Validation failures are returned as *ValidationError before any network
// call; control-plane failures are returned as *ControlPlaneError.
func (d *Dispatcher) Dispatch(ctx context.Context, desc ResourceDescriptor, creds Credentials) (*DispatchResult, error) {
	if err := ValidateDescriptor(desc); err != nil {
		dispatchTotal.WithLabelValues(string(desc.Operation), "invalid").Inc()
		return nil, err
	}
	if d.Client == nil {
		return nil, fmt.Errorf("dispatcher has no control-plane client")
	}

	ctx, span := startSpan(ctx, "cloudysetup.Dispatch",
		attribute.String("operation", string(desc.Operation)),
		attribute.String("type_name", desc.TypeName),
	)
	res, err := d.dispatch(ctx, desc, creds)
	endSpan(span, err)
	if err != nil {
		dispatchTotal.WithLabelValues(string(desc.Operation), "error").Inc()
		d.logger().Error("dispatch failed",
			"operation", desc.Operation, "resource", describe(desc.TypeName, desc.Identifier), "error", err)
		return nil, err
	}
	dispatchTotal.WithLabelValues(string(desc.Operation), "ok").Inc()
	d.logger().Info("dispatched",
		"operation", desc.Operation, "resource", describe(desc.TypeName, desc.Identifier),
		"token", res.RequestToken, "status", res.Status)
	if res.RequestToken != "" {
		notify(ctx, d.Observer, Event{
			Kind: EventDispatched, Token: res.RequestToken, Status: res.Status,
			Message: fmt.Sprintf("%s %s", desc.Operation, describe(desc.TypeName, desc.Identifier)),
		})
	}
	return res, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, desc ResourceDescriptor, creds Credentials) (*DispatchResult, error) {
	switch desc.Operation {
	case OpCreate:
		props := desc.Properties
		if d.ApplyTags {
			props = applyDefaultTags(props, buildResourceTags(d.Tags))
		}
		return d.mutate(ctx, desc.Operation, "CreateResource", func(ctx context.Context) (*ProgressEvent, error) {
			return d.Client.SubmitCreate(ctx, desc.TypeName, props, creds)
		})
	case OpUpdate:
		patch, err := BuildUpdatePatch(desc.Properties)
		if err != nil {
			return nil, fmt.Errorf("build update patch: %w", err)
		}
		return d.mutate(ctx, desc.Operation, "UpdateResource", func(ctx context.Context) (*ProgressEvent, error) {
			return d.Client.SubmitUpdate(ctx, desc.TypeName, desc.Identifier, patch, creds)
		})
	case OpDelete:
		return d.mutate(ctx, desc.Operation, "DeleteResource", func(ctx context.Context) (*ProgressEvent, error) {
			return d.Client.SubmitDelete(ctx, desc.TypeName, desc.Identifier, creds)
		})
	case OpRead:
		callCtx, cancel := d.callCtx(ctx)
		defer cancel()
		model, err := d.Client.Read(callCtx, desc.TypeName, desc.Identifier, creds)
		if err != nil {
			return nil, newControlPlaneError("GetResource", err)
		}
		return &DispatchResult{Operation: OpRead, Resource: model, Status: StatusSuccess}, nil
	case OpList:
		return d.list(ctx, desc.TypeName, creds)
	}
	return nil, newValidationError("Operation", "unsupported operation %q", desc.Operation)
}

func (d *Dispatcher) mutate(
	ctx context.Context, op Operation, apiName string,
	call func(ctx context.Context) (*ProgressEvent, error),
) (*DispatchResult, error) {
	callCtx, cancel := d.callCtx(ctx)
	defer cancel()
	ev, err := call(callCtx)
	if err != nil {
		return nil, newControlPlaneError(apiName, err)
	}
	if ev == nil || ev.RequestToken == "" {
		return nil, newControlPlaneError(apiName, fmt.Errorf("response carried no request token"))
	}
	return &DispatchResult{
		Operation:    op,
		RequestToken: ev.RequestToken,
		Progress:     ev,
		Status:       ev.OperationStatus,
	}, nil
}

func (d *Dispatcher) list(ctx context.Context, typeName string, creds Credentials) (*DispatchResult, error) {
	maxPages := d.MaxListPages
	if maxPages <= 0 {
		maxPages = DefaultMaxListPages
	}
	res := &DispatchResult{Operation: OpList, Status: StatusSuccess, Resources: []ResourceModel{}}
	next := ""
	for page := range maxPages {
		callCtx, cancel := d.callCtx(ctx)
		out, err := d.Client.List(callCtx, typeName, next, creds)
		cancel()
		if err != nil {
			return nil, newControlPlaneError("ListResources", err)
		}
		res.Resources = append(res.Resources, out.Resources...)
		next = out.NextToken
		if next == "" {
			return res, nil
		}
		if page == maxPages-1 {
			res.Truncated = true
		}
	}
	d.logger().Warn("list truncated at page cap", "type_name", typeName, "pages", maxPages)
	return res, nil
}

// DispatchAndWait dispatches desc and, when wait is set and a request token
// came back, polls it to completion with poller. The PollOutcome is nil when
// no polling happened.
func (d *Dispatcher) DispatchAndWait(
	ctx context.Context, desc ResourceDescriptor, creds Credentials, poller *Poller, wait bool,
) (*DispatchResult, *PollOutcome, error) {
	res, err := d.Dispatch(ctx, desc, creds)
	if err != nil {
		return nil, nil, err
	}
	if !wait || res.RequestToken == "" || poller == nil {
		return res, nil, nil
	}
	if res.Status.IsTerminal() {
		return res, &PollOutcome{
			Token: res.RequestToken, Status: res.Status, Details: res.Progress,
			Reason: ReasonTerminal, LastObserved: res.Status,
		}, nil
	}
	outcome, err := poller.Poll(ctx, res.RequestToken, creds)
	return res, outcome, err
}
