package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamDeliversInOrder(t *testing.T) {
	s := NewStream()
	s.Publish(Event{Kind: KindFilePath, Path: "a"})
	s.Publish(Event{Kind: KindFilePath, Path: "b"})

	ev1, ok := s.Next()
	require.True(t, ok)
	assert.Equal(t, "a", ev1.Path)

	ev2, ok := s.Next()
	require.True(t, ok)
	assert.Equal(t, "b", ev2.Path)
}

func TestStreamNextBlocksUntilPublish(t *testing.T) {
	s := NewStream()
	done := make(chan Event, 1)
	go func() {
		ev, ok := s.Next()
		if ok {
			done <- ev
		}
	}()

	time.Sleep(10 * time.Millisecond)
	s.Publish(Event{Kind: KindDone})

	select {
	case ev := <-done:
		assert.Equal(t, KindDone, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("Next did not unblock after Publish")
	}
}

func TestStreamCloseDrainsThenStops(t *testing.T) {
	s := NewStream()
	s.Publish(Event{Kind: KindDone})
	s.Close()

	_, ok := s.Next()
	require.True(t, ok, "buffered event must still be delivered after Close")

	_, ok = s.Next()
	assert.False(t, ok, "Next must report closed once drained")
}
