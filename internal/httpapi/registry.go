package httpapi

import (
	"context"
	"encoding/base64"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/flvtransmux/internal/pipeline"
	"github.com/jmylchreest/flvtransmux/internal/remux"
)

// EventKind names the three payload-bearing events a streamed session can
// emit (spec §6's InitSegment/MediaSegment/Error, collapsed for the wire).
type EventKind string

const (
	EventInitSegment  EventKind = "init_segment"
	EventMediaSegment EventKind = "media_segment"
	EventError        EventKind = "error"
)

// Event is one SSE frame's worth of session activity. DataBase64 carries the
// binary fMP4 payload (SSE framing is text-only, so raw bytes cannot appear
// in a `data:` line) for init_segment and media_segment events; it is empty
// for error events, which instead use ErrorKind/ErrorDetail.
type Event struct {
	Kind        EventKind `json:"kind"`
	DataBase64  string    `json:"data,omitempty"`
	Codec       string    `json:"codec,omitempty"`
	Track       string    `json:"track,omitempty"`
	ErrorKind   string    `json:"error_kind,omitempty"`
	ErrorDetail string    `json:"error_detail,omitempty"`
}

// subscriber mirrors the donor logs service's Subscriber: a per-connection
// buffered channel plus a Done signal for unsubscribe-on-disconnect.
type subscriber struct {
	id     string
	events chan *Event
	done   chan struct{}
}

// sessionEntry pairs a live pipeline.Session with its SSE fan-out.
type sessionEntry struct {
	mu          sync.Mutex
	session     *pipeline.Session
	subscribers map[string]*subscriber
}

func (e *sessionEntry) broadcast(ev *Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, sub := range e.subscribers {
		select {
		case sub.events <- ev:
		default:
			// Subscriber buffer full; drop rather than block the remuxer.
		}
	}
}

func (e *sessionEntry) subscribe(ctx context.Context) *subscriber {
	e.mu.Lock()
	sub := &subscriber{
		id:     ulid.Make().String(),
		events: make(chan *Event, 64),
		done:   make(chan struct{}),
	}
	e.subscribers[sub.id] = sub
	e.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-sub.done:
		}
		e.unsubscribe(sub.id)
	}()
	return sub
}

func (e *sessionEntry) unsubscribe(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if sub, ok := e.subscribers[id]; ok {
		close(sub.events)
		delete(e.subscribers, id)
	}
}

// Registry holds every currently open Session, keyed by its uuid.UUID
// string form. It is the httpapi layer's analogue of a connection table.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*sessionEntry
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*sessionEntry)}
}

// Add registers s and wires its event callbacks into the registry's SSE
// fan-out, returning s.ID's string form as the registry key.
func (r *Registry) Add(s *pipeline.Session) string {
	entry := &sessionEntry{
		session:     s,
		subscribers: make(map[string]*subscriber),
	}

	s.OnInitSegment = func(seg pipeline.InitSegment) {
		entry.broadcast(&Event{
			Kind:       EventInitSegment,
			DataBase64: base64.StdEncoding.EncodeToString(seg.Data),
			Codec:      seg.Codec,
		})
	}
	s.OnMediaSegment = func(seg remux.MediaSegment) {
		entry.broadcast(&Event{
			Kind:       EventMediaSegment,
			DataBase64: base64.StdEncoding.EncodeToString(seg.Data),
			Track:      seg.Type,
		})
	}
	s.OnError = func(e pipeline.Error) {
		entry.broadcast(&Event{
			Kind:        EventError,
			ErrorKind:   string(e.Kind),
			ErrorDetail: e.Detail,
		})
	}

	key := s.ID.String()
	r.mu.Lock()
	r.entries[key] = entry
	r.mu.Unlock()
	return key
}

// Get returns the Session registered under id, if any.
func (r *Registry) Get(id string) (*pipeline.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return entry.session, true
}

// Remove closes the Session registered under id and drops it from the
// registry. It is a no-op if id is unknown (close() is idempotent per
// pipeline.Session's own contract).
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	entry, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return entry.session.Close()
}

// Subscribe attaches a new SSE listener to id's event stream. The returned
// channel is closed when ctx is cancelled or Unsubscribe fires.
func (r *Registry) Subscribe(ctx context.Context, id string) (<-chan *Event, func(), bool) {
	r.mu.RLock()
	entry, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return nil, nil, false
	}
	sub := entry.subscribe(ctx)
	return sub.events, func() { close(sub.done) }, true
}
