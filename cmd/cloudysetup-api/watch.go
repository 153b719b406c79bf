package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AltairaLabs/cloudysetup/internal/cloudysetup"
)

// sseContentType is the MIME type for Server-Sent Events.
const sseContentType = "text/event-stream"

const (
	// wsReadLimit is the maximum message size for WebSocket reads; clients
	// only send close frames.
	wsReadLimit = 4096
	// wsBufferSize is the read/write buffer size for WebSocket connections.
	wsBufferSize = 4096
	// wsWriteTimeout bounds each frame write.
	wsWriteTimeout = 10 * time.Second
)

// upgrader accepts any origin; callers authenticate with credential headers.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  wsBufferSize,
	WriteBufferSize: wsBufferSize,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Watch message types.
const (
	watchEvent   = "event"
	watchOutcome = "outcome"
	watchError   = "error"
	watchDone    = "done"
)

// watchMessage is one frame of a watch stream: every poll event, then the
// outcome (or an error), then done.
type watchMessage struct {
	Type    string                   `json:"type"`
	Event   *cloudysetup.Event       `json:"event,omitempty"`
	Outcome *cloudysetup.PollOutcome `json:"outcome,omitempty"`
	Code    string                   `json:"code,omitempty"`
	Error   string                   `json:"error,omitempty"`
}

// wantsSSE returns true if the client accepts text/event-stream.
func wantsSSE(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), sseContentType)
}

// handleWatch polls a request and streams its progress over a WebSocket or,
// with Accept: text/event-stream, as Server-Sent Events.
func (s *apiServer) handleWatch(w http.ResponseWriter, r *http.Request, creds cloudysetup.Credentials) {
	token := cloudysetup.RequestToken(r.PathValue("token"))
	opts, _, ok := s.pollParams(w, r)
	if !ok {
		return
	}
	switch {
	case websocket.IsWebSocketUpgrade(r):
		s.watchWebSocket(w, r, creds, token, opts)
	case wantsSSE(r):
		s.watchSSE(w, r, creds, token, opts)
	default:
		writeError(w, r, http.StatusNotAcceptable, errCodeInvalidRequest,
			"watch needs a WebSocket upgrade or Accept: "+sseContentType, false, nil)
	}
}

// streamPoll polls token and passes every frame to send. A failed send
// cancels the poll.
func (s *apiServer) streamPoll(
	ctx context.Context, creds cloudysetup.Credentials, token cloudysetup.RequestToken,
	opts cloudysetup.PollOptions, send func(watchMessage) error,
) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	forward := cloudysetup.ObserverFunc(func(_ context.Context, ev cloudysetup.Event) {
		if err := send(watchMessage{Type: watchEvent, Event: &ev}); err != nil {
			s.log.Info("watch client gone", "token", token, "error", err)
			cancel()
		}
	})
	opts.Observer = cloudysetup.MultiObserver{opts.Observer, forward}

	outcome, err := s.svc.Poll(ctx, creds, token, opts)
	if ctx.Err() != nil {
		// The client went away; nobody is left to read the outcome.
		s.log.Info("watch ended early", "token", token, "error", err)
		return
	}
	if outcome != nil {
		if sendErr := send(watchMessage{Type: watchOutcome, Outcome: outcome}); sendErr != nil {
			return
		}
	}
	if err != nil {
		_, code, _ := errorStatus(err)
		if sendErr := send(watchMessage{Type: watchError, Code: code, Error: err.Error()}); sendErr != nil {
			return
		}
	}
	_ = send(watchMessage{Type: watchDone})
}

func (s *apiServer) watchWebSocket(
	w http.ResponseWriter, r *http.Request, creds cloudysetup.Credentials,
	token cloudysetup.RequestToken, opts cloudysetup.PollOptions,
) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("websocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()
	conn.SetReadLimit(wsReadLimit)

	// The read loop only watches for the client going away.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					s.log.Warn("websocket read error", "error", err)
				}
				return
			}
		}
	}()

	s.log.Info("websocket watch started", "token", token)
	s.streamPoll(ctx, creds, token, opts, func(m watchMessage) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteJSON(m)
	})
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, watchDone),
		time.Now().Add(wsWriteTimeout))
}

func (s *apiServer) watchSSE(
	w http.ResponseWriter, r *http.Request, creds cloudysetup.Credentials,
	token cloudysetup.RequestToken, opts cloudysetup.PollOptions,
) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, errCodeInternalError,
			"streaming not supported", false, nil)
		return
	}
	w.Header().Set("Content-Type", sseContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	s.log.Info("sse watch started", "token", token)
	s.streamPoll(r.Context(), creds, token, opts, func(m watchMessage) error {
		return writeSSEEvent(w, flusher, m)
	})
}

// writeSSEEvent writes a single SSE event to the response writer.
func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, m watchMessage) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
