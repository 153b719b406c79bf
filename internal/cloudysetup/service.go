package cloudysetup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// controlPlaneFactory creates a ControlPlane for the given config.
type controlPlaneFactory func(cfg *Config) ControlPlane

// modelFactory creates a ModelClient for the given config and credentials.
type modelFactory func(cfg *Config, creds Credentials) (ModelClient, error)

// Service wires generation, dispatch and polling together for one config.
// It holds no per-request state; credentials are passed on every call.
type Service struct {
	cfg    *Config
	logger *slog.Logger

	controlPlaneFunc controlPlaneFactory
	modelFunc        modelFactory
	identity         IdentityResolver
	blobStoreFunc    blobStoreFactory

	// sleep overrides the poll wait; nil uses a real timer.
	sleep func(ctx context.Context, d time.Duration) error
}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithControlPlane makes the Service use cp for every control-plane call.
func WithControlPlane(cp ControlPlane) ServiceOption {
	return func(s *Service) { s.controlPlaneFunc = func(*Config) ControlPlane { return cp } }
}

// WithModel makes the Service use m for every generation.
func WithModel(m ModelClient) ServiceOption {
	return func(s *Service) {
		s.modelFunc = func(*Config, Credentials) (ModelClient, error) { return m, nil }
	}
}

// WithIdentityResolver overrides the identity lookup.
func WithIdentityResolver(r IdentityResolver) ServiceOption {
	return func(s *Service) { s.identity = r }
}

// WithBlobStore makes s3:// template locations use store.
func WithBlobStore(store BlobStore) ServiceOption {
	return func(s *Service) {
		s.blobStoreFunc = func(context.Context, string, Credentials) (BlobStore, error) { return store, nil }
	}
}

// WithPollSleep replaces the wait between status queries. sleep must return
// ctx.Err() when ctx ends first.
func WithPollSleep(sleep func(ctx context.Context, d time.Duration) error) ServiceOption {
	return func(s *Service) { s.sleep = sleep }
}

// WithLogger sets the logger passed to every component.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// NewService creates a Service. With cfg.DryRun set the control plane and
// identity lookups are simulated in memory; model calls still go out.
func NewService(cfg *Config, opts ...ServiceOption) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	s := &Service{
		cfg:              cfg,
		logger:           slog.Default(),
		controlPlaneFunc: func(c *Config) ControlPlane { return NewAWSControlPlane(c.Region) },
		modelFunc:        NewModelClient,
		identity:         STSIdentity{},
		blobStoreFunc:    newS3BlobStore,
	}
	if cfg.DryRun {
		sim := NewSimulatedControlPlane()
		s.controlPlaneFunc = func(*Config) ControlPlane { return sim }
		s.identity = simulatedIdentity{}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the service configuration.
func (s *Service) Config() *Config { return s.cfg }

// ValidateConfig returns hard validation errors and non-fatal warnings.
func (s *Service) ValidateConfig() (errs []string, warnings []DiagnosticWarning) {
	return s.cfg.validate(), DiagnoseConfig(s.cfg)
}

// PollOptions tunes one poll session.
type PollOptions struct {
	// MaxAttempts overrides Config.MaxAttempts when positive.
	MaxAttempts int
	Observer    Observer
}

// Generate produces a template for actionText.
func (s *Service) Generate(ctx context.Context, creds Credentials, actionText string) (*Template, error) {
	model, err := s.modelFunc(s.cfg, creds)
	if err != nil {
		return nil, &GenerationError{Stage: StageTemplate, Message: "model client unavailable", Cause: err}
	}
	g := NewGenerator(model)
	g.Timeout = s.cfg.ModelTimeout.Std()
	g.Logger = s.logger
	return g.Generate(ctx, actionText)
}

// Dispatch submits desc and, when wait is set, polls the returned token.
func (s *Service) Dispatch(
	ctx context.Context, creds Credentials, desc ResourceDescriptor, wait bool, opts PollOptions,
) (*DispatchResult, *PollOutcome, error) {
	cp := s.controlPlaneFunc(s.cfg)
	return s.dispatcher(cp, opts.Observer).DispatchAndWait(ctx, desc, creds, s.poller(cp, opts), wait)
}

// Poll drives the polling protocol for an existing request token.
func (s *Service) Poll(
	ctx context.Context, creds Credentials, token RequestToken, opts PollOptions,
) (*PollOutcome, error) {
	return s.poller(s.controlPlaneFunc(s.cfg), opts).Poll(ctx, token, creds)
}

// QueryStatus performs a single status query.
func (s *Service) QueryStatus(ctx context.Context, creds Credentials, token RequestToken) (*ProgressEvent, error) {
	if token == "" {
		return nil, newValidationError("RequestToken", "must not be empty")
	}
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout())
	defer cancel()
	ev, err := s.controlPlaneFunc(s.cfg).QueryStatus(ctx, token, creds)
	if err != nil {
		return nil, newControlPlaneError("GetResourceRequestStatus", err)
	}
	if ev == nil {
		return nil, newControlPlaneError("GetResourceRequestStatus", fmt.Errorf("empty progress event"))
	}
	return ev, nil
}

// Cancel asks the control plane to cancel an in-flight request.
func (s *Service) Cancel(ctx context.Context, creds Credentials, token RequestToken) (*ProgressEvent, error) {
	if token == "" {
		return nil, newValidationError("RequestToken", "must not be empty")
	}
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout())
	defer cancel()
	ev, err := s.controlPlaneFunc(s.cfg).Cancel(ctx, token, creds)
	if err != nil {
		return nil, newControlPlaneError("CancelResourceRequest", err)
	}
	if ev == nil {
		return nil, newControlPlaneError("CancelResourceRequest", fmt.Errorf("empty progress event"))
	}
	s.logger.Info("cancel requested", "token", token, "status", ev.OperationStatus)
	return ev, nil
}

// Identity returns the caller behind creds.
func (s *Service) Identity(ctx context.Context, creds Credentials) (*CallerIdentity, error) {
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout())
	defer cancel()
	return s.identity.Identity(ctx, creds, s.cfg.Region)
}

// Templates returns a TemplateStore that uses creds for s3:// locations.
func (s *Service) Templates(creds Credentials) *TemplateStore {
	return &TemplateStore{Region: s.cfg.Region, Credentials: creds, newBlobStore: s.blobStoreFunc}
}

func (s *Service) callTimeout() time.Duration {
	if s.cfg.CallTimeout <= 0 {
		return DefaultCallTimeout
	}
	return s.cfg.CallTimeout.Std()
}

func (s *Service) dispatcher(cp ControlPlane, obs Observer) *Dispatcher {
	return &Dispatcher{
		Client:       cp,
		CallTimeout:  s.cfg.CallTimeout.Std(),
		MaxListPages: DefaultMaxListPages,
		ApplyTags:    s.cfg.ApplyTags,
		Tags:         s.cfg.Tags,
		Observer:     obs,
		Logger:       s.logger,
	}
}

func (s *Service) poller(cp ControlPlane, opts PollOptions) *Poller {
	maxAttempts := s.cfg.MaxAttempts
	if opts.MaxAttempts > 0 {
		maxAttempts = opts.MaxAttempts
	}
	return &Poller{
		Client:      cp,
		MaxAttempts: maxAttempts,
		Backoff:     s.cfg.Backoff(),
		CallTimeout: s.cfg.CallTimeout.Std(),
		Observer:    opts.Observer,
		Logger:      s.logger,
		sleep:       s.sleep,
	}
}
