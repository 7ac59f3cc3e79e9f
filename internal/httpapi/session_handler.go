package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/go-chi/chi/v5"

	"github.com/jmylchreest/flvtransmux/internal/config"
	"github.com/jmylchreest/flvtransmux/internal/pipeline"
	"github.com/jmylchreest/flvtransmux/pkg/loader"
)

// heartbeatInterval matches the donor's logs-stream cadence
// (internal/service/logs.HeartbeatInterval) so idle SSE connections are not
// reaped by intermediate proxies.
const heartbeatInterval = 30 * time.Second

// SessionHandler exposes pipeline.Session lifecycle and segment delivery
// over HTTP, grounded on the donor's LogsHandler (Register for OpenAPI-only
// SSE documentation, RegisterSSE for the real raw-chi streaming handler).
type SessionHandler struct {
	cfg      config.Config
	registry *Registry
	logger   *slog.Logger
}

// NewSessionHandler creates a SessionHandler backed by registry.
func NewSessionHandler(cfg config.Config, registry *Registry, logger *slog.Logger) *SessionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionHandler{cfg: cfg, registry: registry, logger: logger}
}

// OpenSessionBody is the request body for opening a session (spec §6
// "open(mediaDataSource, config)").
type OpenSessionBody struct {
	URL             string `json:"url" doc:"Media source URL"`
	IsLive          bool   `json:"is_live,omitempty"`
	CORS            bool   `json:"cors,omitempty"`
	WithCredentials bool   `json:"with_credentials,omitempty"`
	HasAudio        *bool  `json:"has_audio,omitempty"`
	HasVideo        *bool  `json:"has_video,omitempty"`
	FileSize        int64  `json:"file_size,omitempty"`
}

// OpenSessionInput is the input for the open-session endpoint.
type OpenSessionInput struct {
	Body OpenSessionBody
}

// OpenSessionResponse is the response body for a newly opened session.
type OpenSessionResponse struct {
	SessionID string `json:"session_id"`
	StreamURL string `json:"stream_url" doc:"SSE endpoint to subscribe to for init/media segments"`
}

// OpenSessionOutput is the output for the open-session endpoint.
type OpenSessionOutput struct {
	Body OpenSessionResponse
}

// SeekSessionInput is the input for the seek endpoint.
type SeekSessionInput struct {
	ID   string `path:"id" doc:"Session ID"`
	Body struct {
		Milliseconds   float64 `json:"milliseconds"`
		ByteOffsetHint int64   `json:"byte_offset_hint,omitempty"`
	}
}

// SeekSessionOutput is the output for the seek endpoint.
type SeekSessionOutput struct {
	Body struct {
		Message string `json:"message"`
	}
}

// CloseSessionInput is the input for the close endpoint.
type CloseSessionInput struct {
	ID string `path:"id" doc:"Session ID"`
}

// CloseSessionOutput is the output for the close endpoint.
type CloseSessionOutput struct {
	Body struct {
		Message string `json:"message"`
	}
}

// SegmentEvent is the SSE event type wrapper Huma needs for OpenAPI schema
// generation (donor's logs.go LogLogEvent pattern).
type SegmentEvent Event

// SegmentStreamInput defines the path parameter for the segment SSE
// endpoint.
type SegmentStreamInput struct {
	ID string `path:"id" doc:"Session ID"`
}

// Register registers the typed (non-streaming) session operations with api.
func (h *SessionHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "openSession",
		Method:      "POST",
		Path:        "/api/v1/sessions",
		Summary:     "Open a transmux session",
		Description: "Begins fetching a media source and transmuxing it to fragmented MP4. " +
			"Subscribe to /api/v1/sessions/{id}/stream for init and media segments.",
		Tags: []string{"Sessions"},
	}, h.OpenSession)

	huma.Register(api, huma.Operation{
		OperationID: "seekSession",
		Method:      "POST",
		Path:        "/api/v1/sessions/{id}/seek",
		Summary:     "Seek a session to a timestamp",
		Description: "Seeks to the nearest known keyframe at or before the requested timestamp, " +
			"falling back to byte_offset_hint if no keyframe is known yet.",
		Tags: []string{"Sessions"},
	}, h.SeekSession)

	huma.Register(api, huma.Operation{
		OperationID: "closeSession",
		Method:      "DELETE",
		Path:        "/api/v1/sessions/{id}",
		Summary:     "Close a session",
		Description: "Idempotently tears down a session and its loader.",
		Tags:        []string{"Sessions"},
	}, h.CloseSession)

	// Register SSE endpoint with Huma for OpenAPI documentation only; the
	// real handler is RegisterSSE on the chi router, which takes
	// precedence (donor's logs.go Register/RegisterSSE split).
	sse.Register(api, huma.Operation{
		OperationID: "sessionSegmentStream",
		Method:      "GET",
		Path:        "/api/v1/sessions/{id}/stream",
		Summary:     "Subscribe to init/media segment events",
		Description: `Server-Sent Events stream of a session's fMP4 output.

## Connection Protocol
- On connect: receives a ` + "`:connected`" + ` comment
- Every 30s: receives a` + "`:heartbeat <unix_epoch>`" + ` comment

## Event Types
- ` + "`init_segment`" + `: combined ftyp+moov, base64-encoded in data.data
- ` + "`media_segment`" + `: one moof+mdat fragment, base64-encoded in data.data
- ` + "`error`" + `: a fatal or warning-level session error`,
		Tags: []string{"Sessions"},
	}, map[string]any{
		"segment": SegmentEvent{},
	}, func(ctx context.Context, input *SegmentStreamInput, send sse.Sender) {
		// Placeholder for OpenAPI schema generation; RegisterSSE on the
		// chi router handles the real connection.
		<-ctx.Done()
	})
}

// RegisterSSE registers the real streaming handler on a chi router.
func (h *SessionHandler) RegisterSSE(router interface {
	Get(pattern string, handlerFn http.HandlerFunc)
}) {
	router.Get("/api/v1/sessions/{id}/stream", h.handleSSEStream)
}

// OpenSession opens a new session over the requested source and returns its
// ID and streaming URL. The pipeline runs its loader-driven fetch loop on a
// background goroutine; init/media segments reach subscribers via the
// registry's SSE fan-out rather than this response body.
func (h *SessionHandler) OpenSession(ctx context.Context, input *OpenSessionInput) (*OpenSessionOutput, error) {
	ld := loader.NewHTTPLoader(loader.DefaultHTTPConfig())

	session, err := pipeline.NewSession(h.cfg, ld, h.logger)
	if err != nil {
		return nil, huma.Error500InternalServerError("creating session", err)
	}

	id := h.registry.Add(session)

	source := loader.DataSource{
		URL:             input.Body.URL,
		IsLive:          input.Body.IsLive,
		CORS:            input.Body.CORS,
		WithCredentials: input.Body.WithCredentials,
		HasAudio:        input.Body.HasAudio,
		HasVideo:        input.Body.HasVideo,
		FileSize:        input.Body.FileSize,
	}

	go func() {
		if err := session.Open(context.Background(), source); err != nil {
			h.logger.Error("session open failed", "session_id", id, "error", err)
		}
	}()

	return &OpenSessionOutput{Body: OpenSessionResponse{
		SessionID: id,
		StreamURL: "/api/v1/sessions/" + id + "/stream",
	}}, nil
}

// SeekSession seeks the named session.
func (h *SessionHandler) SeekSession(ctx context.Context, input *SeekSessionInput) (*SeekSessionOutput, error) {
	session, ok := h.registry.Get(input.ID)
	if !ok {
		return nil, huma.Error404NotFound("no such session: " + input.ID)
	}
	if err := session.Seek(ctx, input.Body.Milliseconds, input.Body.ByteOffsetHint); err != nil {
		return nil, huma.Error500InternalServerError("seeking session", err)
	}
	out := &SeekSessionOutput{}
	out.Body.Message = "seek accepted"
	return out, nil
}

// CloseSession closes and unregisters the named session.
func (h *SessionHandler) CloseSession(ctx context.Context, input *CloseSessionInput) (*CloseSessionOutput, error) {
	if err := h.registry.Remove(input.ID); err != nil {
		return nil, huma.Error500InternalServerError("closing session", err)
	}
	out := &CloseSessionOutput{}
	out.Body.Message = "session closed"
	return out, nil
}

// handleSSEStream is the raw HTTP handler streaming a session's init/media
// segment events, directly modeled on the donor's LogsHandler.handleSSEStream.
func (h *SessionHandler) handleSSEStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	events, unsubscribe, ok := h.registry.Subscribe(r.Context(), id)
	if !ok {
		http.Error(w, "no such session", http.StatusNotFound)
		return
	}
	defer unsubscribe()

	setCORSHeaders(w, DefaultCORSConfig())
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	rc := http.NewResponseController(w)

	if _, err := fmt.Fprintf(w, ":connected\n\n"); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		h.logger.Error("failed to flush initial SSE connection", "error", err)
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprintf(w, ":heartbeat %d\n\n", time.Now().Unix()); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				h.logger.Debug("heartbeat flush failed, client likely disconnected", "error", err)
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeSSEEvent(w, "segment", ev); err != nil {
				h.logger.Error("failed to write SSE segment event", "error", err)
				return
			}
			if err := rc.Flush(); err != nil {
				h.logger.Debug("event flush failed, client likely disconnected", "error", err)
				return
			}
		}
	}
}

// writeSSEEvent writes a single SSE frame in one Write call, matching the
// donor's atomicity rationale in logs.go's writeSSEEvent.
func writeSSEEvent(w http.ResponseWriter, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	message := fmt.Sprintf("event: %s\ndata: %s\n\n", event, data)
	n, err := w.Write([]byte(message))
	if err != nil {
		return err
	}
	if n < len(message) {
		return fmt.Errorf("short write: wrote %d of %d bytes", n, len(message))
	}
	return nil
}
