package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/AltairaLabs/cloudysetup/internal/cloudysetup"
)

// rootResponse is the GET / body.
type rootResponse struct {
	Message   string   `json:"message"`
	Name      string   `json:"name"`
	Version   string   `json:"version"`
	Ready     bool     `json:"ready"`
	DryRun    bool     `json:"dryRun"`
	Timestamp string   `json:"timestamp"`
	Routes    []string `json:"routes"`
}

func (s *apiServer) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, rootResponse{
		Message:   "Hello World",
		Name:      serviceName,
		Version:   cloudysetup.Version,
		Ready:     s.health.isReady(),
		DryRun:    s.svc.Config().DryRun,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Routes:    routes,
	})
}

// messageBody is the POST /message request and response.
type messageBody struct {
	Message string `json:"message"`
}

// handleMessage echoes the message back.
func (s *apiServer) handleMessage(w http.ResponseWriter, r *http.Request) {
	var body messageBody
	if !s.decodeBody(w, r, &body) {
		return
	}
	if body.Message == "" {
		writeError(w, r, http.StatusBadRequest, errCodeInvalidRequest, "Message is empty", false, nil)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

// generateRequest is the POST /v1/templates body.
type generateRequest struct {
	Action string `json:"action"`
}

func (s *apiServer) handleGenerate(w http.ResponseWriter, r *http.Request, creds cloudysetup.Credentials) {
	var req generateRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	tmpl, err := s.svc.Generate(r.Context(), creds, req.Action)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tmpl)
}

// dispatchResponse is the POST /v1/resources body. Outcome is set when the
// request was polled.
type dispatchResponse struct {
	Result  *cloudysetup.DispatchResult `json:"result"`
	Outcome *cloudysetup.PollOutcome    `json:"outcome,omitempty"`
}

func (s *apiServer) handleDispatch(w http.ResponseWriter, r *http.Request, creds cloudysetup.Credentials) {
	opts, wait, ok := s.pollParams(w, r)
	if !ok {
		return
	}
	var desc cloudysetup.ResourceDescriptor
	if !s.decodeBody(w, r, &desc) {
		return
	}
	res, outcome, err := s.svc.Dispatch(r.Context(), creds, desc, wait, opts)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	status := http.StatusOK
	if res.RequestToken != "" && outcome == nil && !res.Status.IsTerminal() {
		w.Header().Set("Location", "/v1/requests/"+string(res.RequestToken))
		status = http.StatusAccepted
	}
	writeJSON(w, status, dispatchResponse{Result: res, Outcome: outcome})
}

// handleRequestStatus makes one status query, or polls to completion with
// ?wait=true.
func (s *apiServer) handleRequestStatus(w http.ResponseWriter, r *http.Request, creds cloudysetup.Credentials) {
	token := cloudysetup.RequestToken(r.PathValue("token"))
	opts, wait, ok := s.pollParams(w, r)
	if !ok {
		return
	}
	if !wait {
		ev, err := s.svc.QueryStatus(r.Context(), creds, token)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, ev)
		return
	}
	outcome, err := s.svc.Poll(r.Context(), creds, token, opts)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (s *apiServer) handleCancel(w http.ResponseWriter, r *http.Request, creds cloudysetup.Credentials) {
	ev, err := s.svc.Cancel(r.Context(), creds, cloudysetup.RequestToken(r.PathValue("token")))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *apiServer) handleIdentity(w http.ResponseWriter, r *http.Request, creds cloudysetup.Credentials) {
	id, err := s.svc.Identity(r.Context(), creds)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, id)
}

// pollParams parses the wait and maxAttempts query parameters. It writes a
// 400 and returns ok=false when either is malformed.
func (s *apiServer) pollParams(
	w http.ResponseWriter, r *http.Request,
) (opts cloudysetup.PollOptions, wait, ok bool) {
	q := r.URL.Query()
	if v := q.Get("wait"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, errCodeInvalidRequest,
				fmt.Sprintf("wait: invalid boolean %q", v), false, nil)
			return opts, false, false
		}
		wait = b
	}
	if v := q.Get("maxAttempts"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, r, http.StatusBadRequest, errCodeInvalidRequest,
				fmt.Sprintf("maxAttempts: must be a positive integer, got %q", v), false, nil)
			return opts, false, false
		}
		opts.MaxAttempts = n
	}
	opts.Observer = cloudysetup.SlogObserver{Logger: s.log}
	return opts, wait, true
}

// decodeBody decodes a JSON request body into v. It writes a 400 and
// returns false on failure.
func (s *apiServer) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		writeError(w, r, http.StatusUnsupportedMediaType, errCodeInvalidRequest,
			"Content-Type must be application/json", false, nil)
		return false
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, r, http.StatusBadRequest, errCodeInvalidRequest,
			"invalid JSON body: "+err.Error(), false, nil)
		return false
	}
	return true
}
