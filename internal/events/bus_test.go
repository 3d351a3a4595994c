package events

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/helix-collective/z88/internal/core"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
		return nil
	}
}

func TestEventBus_Subscribe(t *testing.T) {
	bus := New(10)
	defer bus.Close()

	ch := bus.Subscribe()
	bus.Publish(NewRitualStartedEvent("ritual_1", "u1", "a prompt", "balanced", []string{"oracle"}))

	ev := receive(t, ch)
	assert.Equal(t, TypeRitualStarted, ev.EventType())
	assert.Equal(t, "ritual_1", ev.RitualID())
	assert.Equal(t, "u1", ev.OwnerID())
	assert.False(t, ev.Timestamp().IsZero())
}

func TestEventBus_SubscribeByType(t *testing.T) {
	bus := New(10)
	defer bus.Close()

	progressCh := bus.Subscribe(TypeRitualProgress)
	allCh := bus.Subscribe()

	bus.Publish(NewRitualStartedEvent("r", "", "p", "", nil))
	ucf := core.InitialUCF()
	bus.Publish(NewRitualProgressEvent("r", "", "Phase 1: Invocation & Intent Setting", 10, &ucf))

	assert.Equal(t, TypeRitualStarted, receive(t, allCh).EventType())
	assert.Equal(t, TypeRitualProgress, receive(t, allCh).EventType())

	ev := receive(t, progressCh)
	progress, ok := ev.(RitualProgressEvent)
	require.True(t, ok)
	assert.Equal(t, 10, progress.Percent)
	assert.Equal(t, 0.68, progress.UCF.Harmony)

	select {
	case extra := <-progressCh:
		t.Fatalf("unexpected event %s", extra.EventType())
	default:
	}
}

func TestEventBus_RingBufferDropsOldest(t *testing.T) {
	bus := New(3)
	defer bus.Close()

	ch := bus.Subscribe()
	for i := 1; i <= 5; i++ {
		bus.Publish(NewRitualProgressEvent("r", "", "step", i, nil))
	}

	assert.Equal(t, int64(2), bus.DroppedCount())
	var got []int
	for i := 0; i < 3; i++ {
		got = append(got, receive(t, ch).(RitualProgressEvent).Percent)
	}
	assert.Equal(t, []int{3, 4, 5}, got)
}

func TestEventBus_WatchKeepsTerminalEvents(t *testing.T) {
	bus := New(2)
	defer bus.Close()

	ch := bus.Watch(Filter{})
	for i := 0; i < 20; i++ {
		bus.Publish(NewRitualProgressEvent("r", "", "noise", i, nil))
	}
	assert.Equal(t, int64(18), bus.DroppedCount())

	sent := make(chan struct{})
	go func() {
		defer close(sent)
		bus.PublishTerminal(NewRitualFailedEvent("r", "", errors.New("oracle unavailable")))
	}()

	assert.Equal(t, 0, receive(t, ch).(RitualProgressEvent).Percent)
	assert.Equal(t, 1, receive(t, ch).(RitualProgressEvent).Percent)
	failed, ok := receive(t, ch).(RitualFailedEvent)
	require.True(t, ok)
	assert.Equal(t, "oracle unavailable", failed.Error)
	<-sent
	assert.Equal(t, int64(18), bus.DroppedCount())
}

func TestEventBus_WatchFilters(t *testing.T) {
	bus := New(10)
	defer bus.Close()

	mine := bus.Watch(Filter{Owner: "kira", Ritual: "r-1"})
	bus.Publish(NewStorySavedEvent("r-1", "mallory", 1))
	bus.Publish(NewStorySavedEvent("r-2", "kira", 2))
	bus.PublishTerminal(NewStorySavedEvent("r-1", "kira", 3))

	ev := receive(t, mine).(StorySavedEvent)
	assert.Equal(t, int64(3), ev.StoryID)
	assert.Len(t, mine, 0)
}

func TestEventBus_UnsubscribeReleasesTerminalPublisher(t *testing.T) {
	bus := New(1)
	defer bus.Close()

	ch := bus.Watch(Filter{})
	bus.Publish(NewRitualProgressEvent("r", "", "fill", 1, nil))

	sent := make(chan struct{})
	go func() {
		defer close(sent)
		bus.PublishTerminal(NewRitualCompletedEvent("r", "", core.StoryMetadata{}))
	}()
	time.Sleep(50 * time.Millisecond)
	bus.Unsubscribe(ch)

	select {
	case <-sent:
	case <-time.After(time.Second):
		t.Fatal("publisher still blocked after unsubscribe")
	}
}

func TestEventBus_TerminalWaitIsBounded(t *testing.T) {
	bus := New(1)
	defer bus.Close()
	bus.SetTerminalWait(20 * time.Millisecond)

	_ = bus.Watch(Filter{})
	bus.Publish(NewRitualProgressEvent("r", "", "fill", 1, nil))

	start := time.Now()
	bus.PublishTerminal(NewRitualFailedEvent("r", "", errors.New("boom")))
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, int64(1), bus.DroppedCount())
}

func TestEventBus_UnsubscribeClosesChannel(t *testing.T) {
	bus := New(10)
	defer bus.Close()

	ch := bus.Subscribe()
	bus.Unsubscribe(ch)

	_, ok := <-ch
	assert.False(t, ok)

	// publishing after unsubscribe must not panic
	bus.Publish(NewStorySavedEvent("r", "", 1))
}

func TestEventBus_CloseIsIdempotent(t *testing.T) {
	bus := New(10)
	ch := bus.Subscribe()
	bus.Close()
	bus.Close()

	_, ok := <-ch
	assert.False(t, ok)
	bus.Publish(NewStorySavedEvent("r", "", 1))
	bus.PublishTerminal(NewStorySavedEvent("r", "", 1))
	_, ok = <-bus.Watch(Filter{})
	assert.False(t, ok)
}

func TestEventBus_ConcurrentPublishers(t *testing.T) {
	bus := New(1000)
	defer bus.Close()
	ch := bus.Subscribe(TypeAgentCompleted)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				bus.Publish(NewAgentCompletedEvent("r", "", core.AgentOutput{AgentKey: "oracle", Tokens: j}))
			}
		}()
	}
	wg.Wait()

	assert.Len(t, ch, 500)
	assert.Zero(t, bus.DroppedCount())
}

func TestNewRitualFailedEvent_NilError(t *testing.T) {
	ev := NewRitualFailedEvent("r", "", nil)
	assert.Equal(t, "unknown error", ev.Error)
}
