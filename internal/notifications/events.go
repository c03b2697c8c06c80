package notifications

import (
	"sync"

	"wepp/internal/peaks"
)

// Kind identifies an engine event.
type Kind string

const (
	NewRecording            Kind = "new_recording"
	NewSegment              Kind = "new_segment"
	ChannelSelectionChanged Kind = "channel_selection_changed"
	PeaksSaved              Kind = "peaks_saved"
	SessionComplete         Kind = "session_complete"
	PeaksAvailable          Kind = "peaks_available"
	PeaksEmpty              Kind = "peaks_empty"
	SyncResponse            Kind = "sync_response"
	SyncReadyForMore        Kind = "sync_ready_for_more"
	CredentialsChanged      Kind = "credentials_changed"
)

// Event is the payload delivered to handlers. Fields not relevant to a kind
// are left zero.
type Event struct {
	Kind      Kind
	Recording int
	Segment   int
	Channels  []int
	Peaks     []peaks.Record
	Progress  float64
	Count     int
	UploadID  uint64
	Err       error
}

// Succeeded reports whether a SyncResponse carried a positive count.
func (e Event) Succeeded() bool {
	return e.Err == nil && e.Count > 0
}

// Handler receives events. Handlers run on the emitting goroutine.
type Handler func(Event)

// Emitter is the sending side used by the engine packages.
type Emitter interface {
	Emit(Event)
}

// Hub fans events out to registered handlers in registration order.
type Hub struct {
	mu       sync.RWMutex
	handlers map[Kind][]Handler
	all      []Handler
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{handlers: make(map[Kind][]Handler)}
}

// On registers fn for one event kind.
func (h *Hub) On(kind Kind, fn Handler) {
	if fn == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[kind] = append(h.handlers[kind], fn)
}

// OnAll registers fn for every event kind.
func (h *Hub) OnAll(fn Handler) {
	if fn == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.all = append(h.all, fn)
}

// Emit delivers e to every handler registered for its kind, then to the
// catch-all handlers. Handlers may emit further events.
func (h *Hub) Emit(e Event) {
	if h == nil {
		return
	}
	h.mu.RLock()
	targets := make([]Handler, 0, len(h.handlers[e.Kind])+len(h.all))
	targets = append(targets, h.handlers[e.Kind]...)
	targets = append(targets, h.all...)
	h.mu.RUnlock()

	for _, fn := range targets {
		fn(e)
	}
}

// Emit sends e when em is non-nil.
func Emit(em Emitter, e Event) {
	if em != nil {
		em.Emit(e)
	}
}

// Recorder captures events in memory. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit records e. A nil recorder drops it.
func (r *Recorder) Emit(e Event) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the captured events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Kinds returns the captured event kinds in order.
func (r *Recorder) Kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]Kind, len(r.events))
	for i, e := range r.events {
		kinds[i] = e.Kind
	}
	return kinds
}

// Count returns how many events of kind were captured.
func (r *Recorder) Count(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}
