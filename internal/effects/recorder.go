package effects

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/wxalerts/internal/ingest"
)

// DefaultCapacity bounds a Recorder created with a non-positive size.
const DefaultCapacity = 256

// Event is one recorded effect request.
type Event struct {
	ID     string        `json:"id"`
	At     time.Time     `json:"at"`
	Effect ingest.Effect `json:"effect"`
}

// Recorder keeps the most recent effects in a ring buffer. Event IDs are
// ULIDs, so they sort in recording order and double as read cursors.
type Recorder struct {
	mu      sync.RWMutex
	buf     []Event
	next    int
	full    bool
	urgent  *Event
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
}

// NewRecorder creates a recorder holding up to capacity events.
func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Recorder{
		buf:     make([]Event, capacity),
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}
}

// Perform implements ingest.Sink.
func (r *Recorder) Perform(_ context.Context, e ingest.Effect) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	id, err := ulid.New(ulid.Timestamp(now), r.entropy)
	if err != nil {
		return err
	}
	ev := Event{ID: id.String(), At: now, Effect: e}

	r.buf[r.next] = ev
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
	if e.Kind == ingest.EffectUrgentAlert {
		cp := ev
		r.urgent = &cp
	}
	return nil
}

// ordered returns the buffered events oldest first. Caller holds the lock.
func (r *Recorder) ordered() []Event {
	if !r.full {
		return append([]Event(nil), r.buf[:r.next]...)
	}
	out := make([]Event, 0, len(r.buf))
	out = append(out, r.buf[r.next:]...)
	return append(out, r.buf[:r.next]...)
}

// After returns events recorded after cursor, oldest first. An empty cursor returns everything buffered.
func (r *Recorder) After(cursor string) []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := r.ordered()
	if cursor == "" {
		return all
	}
	for i := range all {
		if all[i].ID > cursor {
			return all[i:]
		}
	}
	return nil
}

// LatestUrgent returns the most recent urgent_alert event, even after it left the ring.
func (r *Recorder) LatestUrgent() (Event, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.urgent == nil {
		return Event{}, false
	}
	return *r.urgent, true
}

// Clear drops every recorded event.
func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.buf)
	r.next = 0
	r.full = false
	r.urgent = nil
}
