package main

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/AltairaLabs/cloudysetup/internal/cloudysetup"
)

// Credential headers. Both keys are required on every /v1 route.
const (
	headerAccessKey    = "aws-access-key"
	headerSecretKey    = "aws-secret-key"
	headerSessionToken = "aws-session-token"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20 // 1 MiB

// apiServer serves the HTTP API on top of one shared Service. The Service
// holds no per-request state; credentials travel with each request.
type apiServer struct {
	svc     *cloudysetup.Service
	log     *slog.Logger
	health  *healthHandler
	limiter *rate.Limiter
}

// newAPIServer creates an apiServer rate limited per cfg.
func newAPIServer(svc *cloudysetup.Service, log *slog.Logger, health *healthHandler, cfg *apiConfig) *apiServer {
	return &apiServer{
		svc:     svc,
		log:     log,
		health:  health,
		limiter: rate.NewLimiter(cfg.RateLimit, cfg.RateBurst),
	}
}

// routes lists every endpoint, as reported by GET /.
var routes = []string{
	"GET /",
	"GET /health",
	"GET /metrics",
	"POST /message",
	"POST /v1/templates",
	"POST /v1/resources",
	"GET /v1/requests/{token}",
	"DELETE /v1/requests/{token}",
	"GET /v1/requests/{token}/watch",
	"GET /v1/identity",
}

// handler builds the mux and wraps it in request-ID, access-log and
// OpenTelemetry middleware.
func (s *apiServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.Handle("GET /health", s.health)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /message", s.handleMessage)

	mux.Handle("POST /v1/templates", s.v1(s.handleGenerate))
	mux.Handle("POST /v1/resources", s.v1(s.handleDispatch))
	mux.Handle("GET /v1/requests/{token}", s.v1(s.handleRequestStatus))
	mux.Handle("DELETE /v1/requests/{token}", s.v1(s.handleCancel))
	mux.Handle("GET /v1/requests/{token}/watch", s.v1(s.handleWatch))
	mux.Handle("GET /v1/identity", s.v1(s.handleIdentity))

	var h http.Handler = mux
	h = withAccessLog(s.log, h)
	h = withRequestID(h)
	return otelhttp.NewHandler(h, serviceName)
}

// credentialedHandler is a /v1 handler that receives the caller's AWS
// credentials.
type credentialedHandler func(w http.ResponseWriter, r *http.Request, creds cloudysetup.Credentials)

// v1 applies the rate limit, refuses work while draining and extracts the
// credential headers.
func (s *apiServer) v1(h credentialedHandler) http.Handler {
	return withRateLimit(s.limiter, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.health.isReady() {
			writeError(w, r, http.StatusServiceUnavailable, errCodeServiceUnavailable,
				"service is shutting down", true, nil)
			return
		}
		creds, ok := credentialsFromHeaders(r.Header)
		if !ok {
			writeError(w, r, http.StatusBadRequest, errCodeMissingCredentials,
				headerAccessKey+" and "+headerSecretKey+" headers are required", false, nil)
			return
		}
		h(w, r, creds)
	}))
}

// credentialsFromHeaders reads the credential headers. ok is false when
// either key is missing.
func credentialsFromHeaders(hdr http.Header) (creds cloudysetup.Credentials, ok bool) {
	creds = cloudysetup.Credentials{
		AccessKey:    hdr.Get(headerAccessKey),
		SecretKey:    hdr.Get(headerSecretKey),
		SessionToken: hdr.Get(headerSessionToken),
	}
	return creds, creds.AccessKey != "" && creds.SecretKey != ""
}
