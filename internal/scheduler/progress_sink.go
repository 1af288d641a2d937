package scheduler

import (
	"context"
	"sync"

	"github.com/formflow/automation/internal/models"
)

// progressSink is one job's bounded progress channel (spec §4.8
// "Backpressure"). Plain "progress" events (phase percent updates) coalesce
// into a single pending slot when the buffer is full rather than blocking
// the publisher; field_filled and phase-transition events are never
// dropped. A subscriber draining a backed-up sink eventually receives one
// synthetic "coalesced" event standing in for whatever progress updates it
// missed.
type progressSink struct {
	mu              sync.Mutex
	buf             []models.ProgressEvent
	pendingProgress *models.ProgressEvent
	notify          chan struct{}
	capacity        int
	closed          bool
}

func newProgressSink(capacity int) *progressSink {
	if capacity <= 0 {
		capacity = 64
	}
	return &progressSink{capacity: capacity, notify: make(chan struct{}, 1)}
}

func (s *progressSink) push(ev models.ProgressEvent) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	switch {
	case len(s.buf) < s.capacity:
		s.buf = append(s.buf, ev)
	case ev.Type == "progress":
		s.pendingProgress = &ev
	default:
		// field_filled / phase transitions / terminal events are never
		// dropped, so the buffer grows past capacity in this one case.
		s.buf = append(s.buf, ev)
	}
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// pull blocks until an event is available, the sink is closed and drained,
// or ctx is cancelled. The bool return is false once the finite sequence
// is exhausted (spec §4.8 "a lazy, finite sequence... terminated by the
// terminal event").
func (s *progressSink) pull(ctx context.Context) (models.ProgressEvent, bool) {
	for {
		s.mu.Lock()
		if len(s.buf) > 0 {
			ev := s.buf[0]
			s.buf = s.buf[1:]
			s.mu.Unlock()
			return ev, true
		}
		if s.pendingProgress != nil {
			pending := s.pendingProgress
			s.pendingProgress = nil
			s.mu.Unlock()
			return models.ProgressEvent{
				Type:      "coalesced",
				JobID:     pending.JobID,
				Phase:     pending.Phase,
				Percent:   pending.Percent,
				Timestamp: pending.Timestamp,
			}, true
		}
		if s.closed {
			s.mu.Unlock()
			return models.ProgressEvent{}, false
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return models.ProgressEvent{}, false
		case <-s.notify:
		}
	}
}

// close marks the sink closed; buffered events already pushed are still
// delivered by pull, which then returns false once drained.
func (s *progressSink) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}
