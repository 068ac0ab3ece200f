package progress

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingSink) Emit(event string, p Progress) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{ID: event, Progress: p})
	return nil
}

func TestEventID(t *testing.T) {
	assert.Equal(t, "__progress__abc", EventID("abc"))
	assert.NotEqual(t, EventID("a"), EventID("b"))
}

func TestEmitterAddressesEvents(t *testing.T) {
	rec := &recordingSink{}
	e := NewEmitter(rec, "job-1")
	e.Emit(100, 0)
	e.Emit(100, 40)

	require.Len(t, rec.events, 2)
	assert.Equal(t, Event{ID: "__progress__job-1", Progress: Progress{Total: 100, Current: 0}}, rec.events[0])
	assert.Equal(t, uint64(40), rec.events[1].Progress.Current)
	assert.Equal(t, "__progress__job-1", e.Event())
}

func TestEmitterSwallowsSinkErrors(t *testing.T) {
	calls := 0
	e := NewEmitter(SinkFunc(func(string, Progress) error {
		calls++
		return errors.New("window gone")
	}), "x")
	e.Emit(1, 1)
	assert.Equal(t, 1, calls)

	NewEmitter(nil, "nil-sink").Emit(1, 1)
}

func TestMulti(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	failing := SinkFunc(func(string, Progress) error { return errors.New("boom") })
	err := Multi(a, nil, failing, b).Emit("ev", Progress{Total: 2, Current: 1})
	require.Error(t, err)
	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
}

func TestHubFiltersAndOrders(t *testing.T) {
	hub := NewHub()
	all, stopAll := hub.Subscribe("", 16)
	defer stopAll()
	onlyA, stopA := hub.Subscribe(EventID("a"), 16)
	defer stopA()

	require.NoError(t, hub.Emit(EventID("a"), Progress{Total: 10, Current: 0}))
	require.NoError(t, hub.Emit(EventID("b"), Progress{Total: 5, Current: 5}))
	require.NoError(t, hub.Emit(EventID("a"), Progress{Total: 10, Current: 10}))

	assert.Equal(t, EventID("a"), (<-all).ID)
	assert.Equal(t, EventID("b"), (<-all).ID)
	assert.Equal(t, uint64(10), (<-all).Progress.Current)

	first := <-onlyA
	second := <-onlyA
	assert.Equal(t, uint64(0), first.Progress.Current)
	assert.Equal(t, uint64(10), second.Progress.Current)
	select {
	case ev := <-onlyA:
		t.Fatalf("unexpected event %v", ev)
	default:
	}
}

func TestHubConcurrentEmitters(t *testing.T) {
	const transfers, steps = 8, 50
	hub := NewHub()
	ch, stop := hub.Subscribe("", transfers*steps)
	defer stop()

	var wg sync.WaitGroup
	for i := range transfers {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for c := range steps {
				_ = hub.Emit(EventID(id), Progress{Total: steps, Current: uint64(c + 1)})
			}
		}(string(rune('a' + i)))
	}

	last := map[string]uint64{}
	for range transfers * steps {
		ev := <-ch
		assert.Greater(t, ev.Progress.Current, last[ev.ID], "out of order for %s", ev.ID)
		last[ev.ID] = ev.Progress.Current
	}
	wg.Wait()
	assert.Len(t, last, transfers)
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub()
	ch, stop := hub.Subscribe("", 4)
	require.NoError(t, hub.Emit("ev", Progress{Current: 1}))
	stop()
	stop()

	ev, ok := <-ch
	require.True(t, ok)
	assert.Equal(t, uint64(1), ev.Progress.Current)
	_, ok = <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, hub.Subscribers())
	assert.NoError(t, hub.Emit("ev", Progress{}))
}

func TestHubStalledSubscriberDoesNotBlock(t *testing.T) {
	hub := NewHub()
	stalled, stopStalled := hub.Subscribe("", 2)
	defer stopStalled()
	healthy, stopHealthy := hub.Subscribe("", 100)
	defer stopHealthy()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for c := range 10 {
			_ = hub.Emit(EventID("a"), Progress{Total: 10, Current: uint64(c + 1)})
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("emit blocked on a subscriber that never reads")
	}

	attached := make(chan struct{})
	go func() {
		_, stop := hub.Subscribe("", 1)
		stop()
		close(attached)
	}()
	select {
	case <-attached:
	case <-time.After(2 * time.Second):
		t.Fatal("subscribe blocked behind a stalled subscriber")
	}

	var got []uint64
	for ev := range stalled {
		got = append(got, ev.Progress.Current)
	}
	assert.Equal(t, []uint64{1, 2}, got)
	assert.Equal(t, 1, hub.Subscribers())

	for c := range 10 {
		assert.Equal(t, uint64(c+1), (<-healthy).Progress.Current)
	}
}

func TestHubClose(t *testing.T) {
	hub := NewHub()
	ch, _ := hub.Subscribe("", 1)
	hub.Close()
	hub.Close()

	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, hub.Subscribers())
	assert.ErrorIs(t, hub.Emit("ev", Progress{}), ErrHubClosed)

	late, stop := hub.Subscribe("", 1)
	stop()
	_, ok = <-late
	assert.False(t, ok)
}
