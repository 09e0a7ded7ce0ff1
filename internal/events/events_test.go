package events

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/opensprint/core/internal/model"
	"github.com/stretchr/testify/require"
)

func TestEmitSubscribeOrdering(t *testing.T) {
	bus, err := NewBus("")
	require.NoError(t, err)
	defer bus.Close()

	var mu sync.Mutex
	var got []model.EventKind
	done := make(chan struct{})

	cancel := bus.Subscribe(func(e model.Event) {
		mu.Lock()
		got = append(got, e.Kind)
		if len(got) == 2 {
			close(done)
		}
		mu.Unlock()
	})
	defer cancel()

	bus.Emit(New("p1", "t1", model.EventTaskFailed))
	bus.Emit(New("p1", "t1", model.EventTaskRequeued))

	<-done
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []model.EventKind{model.EventTaskFailed, model.EventTaskRequeued}, got)
}

func TestMonotonicTimestamps(t *testing.T) {
	bus, err := NewBus("")
	require.NoError(t, err)
	defer bus.Close()

	bus.Emit(New("p1", "t1", model.EventTaskFailed))
	bus.Emit(New("p1", "t1", model.EventTaskRequeued))

	all, cursor := bus.ReplaySince(0)
	require.Len(t, all, 2)
	require.Equal(t, 2, cursor)
	require.True(t, all[1].Timestamp.After(all[0].Timestamp))
}

func TestReplaySinceCursor(t *testing.T) {
	bus, err := NewBus("")
	require.NoError(t, err)
	defer bus.Close()

	bus.Emit(New("p1", "t1", model.EventTaskFailed))
	_, cursor := bus.ReplaySince(0)

	bus.Emit(New("p1", "t1", model.EventTaskRequeued))
	more, newCursor := bus.ReplaySince(cursor)
	require.Len(t, more, 1)
	require.Equal(t, model.EventTaskRequeued, more[0].Kind)
	require.Equal(t, 2, newCursor)
}

func TestLogFilePersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	bus, err := NewBus(path)
	require.NoError(t, err)
	bus.Emit(New("p1", "t1", model.EventTaskCompleted))
	require.NoError(t, bus.Close())

	bus2, err := NewBus(path)
	require.NoError(t, err)
	defer bus2.Close()
	_ = bus2
}
