package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, ch <-chan Event, n int) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("timed out after %d of %d events", len(out), n)
		}
	}
	return out
}

func TestEmitAssignsSequence(t *testing.T) {
	e := NewEmitter()
	ch, cancel := e.Subscribe("s1")
	defer cancel()

	e.Emit("s1", Event{Kind: KindStatus, Message: "initializing"})
	e.Emit("s1", Event{Kind: KindStatus, Message: "analyzing"})

	got := collect(t, ch, 2)
	assert.Equal(t, 0, got[0].Seq)
	assert.Equal(t, 1, got[1].Seq)
	assert.Equal(t, "s1", got[0].SessionID)
	assert.False(t, got[0].Timestamp.IsZero())
}

func TestLateSubscriberGetsBacklog(t *testing.T) {
	e := NewEmitter()

	e.Emit("s1", Event{Kind: KindStatus, Message: "initializing"})
	e.Emit("s1", Event{Kind: KindAnalysis, Message: "12 files"})

	ch, cancel := e.Subscribe("s1")
	defer cancel()

	e.Emit("s1", Event{Kind: KindStatus, Message: "generating"})

	got := collect(t, ch, 3)
	assert.Equal(t, []int{0, 1, 2}, []int{got[0].Seq, got[1].Seq, got[2].Seq})
	assert.Equal(t, KindAnalysis, got[1].Kind)
}

func TestTerminalEventClosesStream(t *testing.T) {
	e := NewEmitter()
	ch, cancel := e.Subscribe("s1")
	defer cancel()

	e.Emit("s1", Event{Kind: KindCompleted, Message: "done"})

	got := collect(t, ch, 1)
	require.Len(t, got, 1)

	_, open := <-ch
	assert.False(t, open)

	// Emitting after the terminal event is dropped.
	e.Emit("s1", Event{Kind: KindStatus, Message: "ghost"})
	assert.Len(t, e.Backlog("s1"), 1)
}

func TestSubscribeAfterTerminalReplaysAndCloses(t *testing.T) {
	e := NewEmitter()
	e.Emit("s1", Event{Kind: KindStatus, Message: "initializing"})
	e.Emit("s1", Event{Kind: KindFailed, Message: "boom"})

	ch, cancel := e.Subscribe("s1")
	defer cancel()

	got := collect(t, ch, 2)
	assert.Equal(t, KindFailed, got[1].Kind)

	_, open := <-ch
	assert.False(t, open)
}

func TestCancelStopsDelivery(t *testing.T) {
	e := NewEmitter()
	ch, cancel := e.Subscribe("s1")
	cancel()

	_, open := <-ch
	assert.False(t, open)

	// Cancelling twice is fine.
	cancel()
}

func TestStreamsAreIndependent(t *testing.T) {
	e := NewEmitter()
	ch1, cancel1 := e.Subscribe("s1")
	defer cancel1()
	ch2, cancel2 := e.Subscribe("s2")
	defer cancel2()

	e.Emit("s1", Event{Kind: KindStatus, Message: "a"})
	e.Emit("s2", Event{Kind: KindStatus, Message: "b"})

	got1 := collect(t, ch1, 1)
	got2 := collect(t, ch2, 1)
	assert.Equal(t, "a", got1[0].Message)
	assert.Equal(t, "b", got2[0].Message)
}

func TestDropClosesSubscribers(t *testing.T) {
	e := NewEmitter()
	ch, _ := e.Subscribe("s1")

	e.Drop("s1")

	_, open := <-ch
	assert.False(t, open)
	assert.Nil(t, e.Backlog("s1"))
}

func TestEmitAfterDropLeavesNoStream(t *testing.T) {
	e := NewEmitter()
	e.Emit("s1", Event{Kind: KindStatus, Message: "tick"})
	e.Drop("s1")

	// A pipeline finishing after its session was swept must not revive
	// the stream.
	e.Emit("s1", Event{Kind: KindCompleted, Message: "done"})
	assert.Nil(t, e.Backlog("s1"))
	assert.Empty(t, e.streams)

	ch, cancel := e.Subscribe("s1")
	defer cancel()
	_, open := <-ch
	assert.False(t, open)
}

func TestConcurrentEmitWithSubscribers(t *testing.T) {
	e := NewEmitter()
	ch, cancel := e.Subscribe("s1")
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				e.Emit("s1", Event{Kind: KindStatus, Message: "tick"})
			}
		}()
	}
	wg.Wait()

	got := collect(t, ch, 40)
	for i, ev := range got {
		assert.Equal(t, i, ev.Seq)
	}
	assert.Len(t, e.Backlog("s1"), 40)
}
