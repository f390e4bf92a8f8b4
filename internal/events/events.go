// Package events fans out ordered progress events for transformation
// sessions. Subscribers arriving mid-run receive the backlog first, so every
// consumer sees the same sequence.
package events

import (
	"encoding/json"
	"sync"
	"time"
)

// Kind classifies a session event.
type Kind string

const (
	// KindStatus marks a pipeline stage transition.
	KindStatus Kind = "status"

	// KindAnalysis carries the codebase analysis summary.
	KindAnalysis Kind = "analysis"

	// KindPlan carries the parsed transformation plan.
	KindPlan Kind = "plan"

	// KindApplied reports the files a plan step touched.
	KindApplied Kind = "applied"

	// KindValidation carries the validation outcome.
	KindValidation Kind = "validation"

	// KindDeployed reports the published branch.
	KindDeployed Kind = "deployed"

	// KindCompleted is the terminal success event.
	KindCompleted Kind = "completed"

	// KindFailed is the terminal failure event.
	KindFailed Kind = "failed"
)

// Terminal reports whether the kind ends the session stream.
func (k Kind) Terminal() bool {
	return k == KindCompleted || k == KindFailed
}

// Event is one progress update in a session stream.
type Event struct {
	SessionID string `json:"session_id"`
	Seq       int    `json:"seq"`

	// Stage and StageCount position the event on the pipeline timeline.
	Stage      int `json:"stage"`
	StageCount int `json:"stage_count"`

	Kind    Kind            `json:"kind"`
	Message string          `json:"message"`
	Payload json.RawMessage `json:"payload,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// subscriberBuffer bounds each subscriber channel. A consumer that falls
// this far behind loses events rather than stalling the pipeline.
const subscriberBuffer = 64

type stream struct {
	backlog []Event
	subs    map[int]chan Event
	nextSub int
	closed  bool
}

// Emitter is the session event hub. All methods are safe for concurrent
// use.
type Emitter struct {
	mu      sync.Mutex
	streams map[string]*stream

	// dropped records session ids removed via Drop, so a pipeline that
	// outlives its session cannot re-insert a stream nothing will clean up.
	dropped map[string]struct{}
}

// NewEmitter creates an empty Emitter.
func NewEmitter() *Emitter {
	return &Emitter{
		streams: make(map[string]*stream),
		dropped: make(map[string]struct{}),
	}
}

func (e *Emitter) stream(sessionID string) *stream {
	st, ok := e.streams[sessionID]
	if !ok {
		st = &stream{subs: make(map[int]chan Event)}
		e.streams[sessionID] = st
	}
	return st
}

// Emit appends an event to the session stream and delivers it to every
// subscriber. Sequence numbers are assigned here. Emitting on a closed
// stream is a no-op. A terminal event closes the stream.
func (e *Emitter) Emit(sessionID string, ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, gone := e.dropped[sessionID]; gone {
		return
	}

	st := e.stream(sessionID)
	if st.closed {
		return
	}

	ev.SessionID = sessionID
	ev.Seq = len(st.backlog)
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	st.backlog = append(st.backlog, ev)

	for _, ch := range st.subs {
		select {
		case ch <- ev:
		default:
			// Slow consumer; it keeps its place in the stream but loses
			// this event.
		}
	}

	if ev.Kind.Terminal() {
		st.closed = true
		for id, ch := range st.subs {
			close(ch)
			delete(st.subs, id)
		}
	}
}

// Subscribe returns a channel delivering the session's events in order,
// starting with the backlog, plus a cancel function. The channel closes
// after a terminal event or on cancel.
func (e *Emitter) Subscribe(sessionID string) (<-chan Event, func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, gone := e.dropped[sessionID]; gone {
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}

	st := e.stream(sessionID)

	ch := make(chan Event, len(st.backlog)+subscriberBuffer)
	for _, ev := range st.backlog {
		ch <- ev
	}

	if st.closed {
		close(ch)
		return ch, func() {}
	}

	id := st.nextSub
	st.nextSub++
	st.subs[id] = ch

	cancel := func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if c, ok := st.subs[id]; ok {
			delete(st.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// Backlog returns a copy of the events emitted so far for the session.
func (e *Emitter) Backlog(sessionID string) []Event {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.streams[sessionID]
	if !ok {
		return nil
	}
	out := make([]Event, len(st.backlog))
	copy(out, st.backlog)
	return out
}

// Drop discards the session stream, closing any open subscriptions. The
// registry sweeper calls this when a session expires.
func (e *Emitter) Drop(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.dropped[sessionID] = struct{}{}

	st, ok := e.streams[sessionID]
	if !ok {
		return
	}
	for id, ch := range st.subs {
		close(ch)
		delete(st.subs, id)
	}
	delete(e.streams, sessionID)
}
