// Package session holds the in-memory call log for one inspection
// session. Records accumulate from the pipeline, surface through
// snapshot reads and a subscriber stream, and vanish when the session
// is cleared.
package session

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/aurascope/aurascope/internal/domain"
)

// EventKind tags what a stream event announces.
type EventKind string

const (
	// EventRecord carries one freshly appended record.
	EventRecord EventKind = "record"
	// EventClear announces that the log was wiped.
	EventClear EventKind = "clear"
)

// Event is what subscribers receive.
type Event struct {
	Kind   EventKind                   `json:"kind"`
	Record *domain.CanonicalCallRecord `json:"record,omitempty"`
}

const defaultSubscriberBuffer = 64

// Log is the append-only session log. All methods are safe for
// concurrent use.
type Log struct {
	mu      sync.RWMutex
	records []*domain.CanonicalCallRecord
	index   map[string]*domain.CanonicalCallRecord
	subs    map[int]chan Event
	nextSub int
	logger  *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{
		index:  make(map[string]*domain.CanonicalCallRecord),
		subs:   make(map[int]chan Event),
		logger: logger.With("component", "session"),
	}
}

// Append stores a record and fans it out to subscribers. When the
// record's id is already taken in this session, the id gets a numeric
// suffix so every stored record stays individually addressable.
func (l *Log) Append(rec *domain.CanonicalCallRecord) {
	l.mu.Lock()
	if _, taken := l.index[rec.ID]; taken {
		base := rec.ID
		for n := 2; ; n++ {
			candidate := fmt.Sprintf("%s-%d", base, n)
			if _, taken := l.index[candidate]; !taken {
				rec.ID = candidate
				break
			}
		}
	}
	l.records = append(l.records, rec)
	l.index[rec.ID] = rec
	l.publish(Event{Kind: EventRecord, Record: rec})
	l.mu.Unlock()
}

// Snapshot returns the records in append order. The slice is a copy;
// the records themselves are shared and treated as immutable after
// append.
func (l *Log) Snapshot() []*domain.CanonicalCallRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*domain.CanonicalCallRecord, len(l.records))
	copy(out, l.records)
	return out
}

// Get looks up one record by id.
func (l *Log) Get(id string) (*domain.CanonicalCallRecord, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.index[id]
	return rec, ok
}

// Len reports how many records the session holds.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Clear wipes the log and tells subscribers to reset.
func (l *Log) Clear() {
	l.mu.Lock()
	l.records = nil
	l.index = make(map[string]*domain.CanonicalCallRecord)
	l.publish(Event{Kind: EventClear})
	l.mu.Unlock()
}

// Subscribe registers a stream consumer. The returned cancel func
// detaches it and closes the channel. A consumer that falls behind by
// more than its buffer is dropped rather than allowed to stall the
// pipeline; the closed channel tells it so.
func (l *Log) Subscribe(buffer int) (<-chan Event, func()) {
	_, ch, cancel := l.subscribe(buffer, false)
	return ch, cancel
}

// SubscribeWithSnapshot is Subscribe plus a snapshot taken under the
// same lock, so the caller can replay history and then follow live
// events without a gap or a duplicate in between.
func (l *Log) SubscribeWithSnapshot(buffer int) ([]*domain.CanonicalCallRecord, <-chan Event, func()) {
	return l.subscribe(buffer, true)
}

func (l *Log) subscribe(buffer int, withSnapshot bool) ([]*domain.CanonicalCallRecord, <-chan Event, func()) {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	ch := make(chan Event, buffer)

	l.mu.Lock()
	var snapshot []*domain.CanonicalCallRecord
	if withSnapshot {
		snapshot = make([]*domain.CanonicalCallRecord, len(l.records))
		copy(snapshot, l.records)
	}
	id := l.nextSub
	l.nextSub++
	l.subs[id] = ch
	l.mu.Unlock()

	cancel := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if existing, ok := l.subs[id]; ok {
			delete(l.subs, id)
			close(existing)
		}
	}
	return snapshot, ch, cancel
}

// publish delivers an event to every subscriber without blocking.
// Callers hold l.mu.
func (l *Log) publish(ev Event) {
	for id, ch := range l.subs {
		select {
		case ch <- ev:
		default:
			delete(l.subs, id)
			close(ch)
			l.logger.Warn("dropping slow stream subscriber", "subscriber", id)
		}
	}
}
