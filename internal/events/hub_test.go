package events

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_PublishEvent(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe()
	assert.Equal(t, 1, h.Subscribers())

	h.PublishEvent(TypeRunFinished, Run{RunID: "r1", Employer: "Acme", Created: 2})

	var e Event
	require.NoError(t, json.Unmarshal([]byte(<-ch), &e))
	assert.Equal(t, TypeRunFinished, e.Type)
	assert.Equal(t, 1, e.Version)

	var run Run
	require.NoError(t, json.Unmarshal(e.Data, &run))
	assert.Equal(t, "Acme", run.Employer)
	assert.Equal(t, 2, run.Created)

	h.Unsubscribe(ch)
	assert.Zero(t, h.Subscribers())
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe()
	defer h.Unsubscribe(ch)

	for i := 0; i < 50; i++ {
		h.Publish("x")
	}
	assert.Len(t, ch, cap(ch))
	assert.Equal(t, int64(50-cap(ch)), h.Dropped())
}

func TestHub_ReplaysRecentToNewSubscribers(t *testing.T) {
	h := NewHub()
	for i := 0; i < recentSize+5; i++ {
		h.Publish(fmt.Sprint(i))
	}

	ch := h.Subscribe()
	defer h.Unsubscribe(ch)
	require.Len(t, ch, recentSize)
	assert.Equal(t, "5", <-ch, "oldest events fall out of the history")

	h.Unsubscribe(ch)
	h.Unsubscribe(ch) // second call is a no-op
}
