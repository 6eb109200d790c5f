package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RejectsBadSpec(t *testing.T) {
	_, err := New("every now and then", "crawl", func(context.Context) error { return nil }, nil)
	assert.Error(t, err)
}

func TestStart_RunNow(t *testing.T) {
	var runs atomic.Int32
	done := make(chan struct{}, 1)
	s, err := New("@every 1h", "crawl", func(context.Context) error {
		runs.Add(1)
		done <- struct{}{}
		return nil
	}, nil)
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background(), true))
	defer s.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("immediate run did not happen")
	}
	assert.Equal(t, int32(1), runs.Load())
}

func TestTick_SkipsOverlap(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	s, err := New("@every 1h", "crawl", func(context.Context) error {
		close(started)
		<-release
		return nil
	}, nil)
	require.NoError(t, err)

	go s.tick(context.Background())
	<-started
	s.tick(context.Background())
	close(release)

	assert.Equal(t, int64(1), s.Skipped())
}

func TestTick_CancelledContext(t *testing.T) {
	called := false
	s, err := New("@every 1h", "crawl", func(context.Context) error { called = true; return nil }, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.tick(ctx)
	assert.False(t, called)
}
