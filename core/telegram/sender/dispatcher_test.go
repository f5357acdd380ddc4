package sender

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type transientErr struct{}

func (transientErr) Error() string   { return "i/o timeout" }
func (transientErr) Timeout() bool   { return true }
func (transientErr) Temporary() bool { return true }

func quickOptions() Options {
	return Options{
		QueueSize:    8,
		Workers:      1,
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
		MaxDuration:  time.Second,
	}
}

func TestDispatcherRunsJobs(t *testing.T) {
	d := NewDispatcher(quickOptions())

	var ran atomic.Int32
	var wg sync.WaitGroup
	wg.Add(3)
	for i := 0; i < 3; i++ {
		err := d.Enqueue(context.Background(), "test", func() error {
			defer wg.Done()
			ran.Add(1)
			return nil
		})
		require.NoError(t, err)
	}
	wg.Wait()
	d.Close()

	assert.Equal(t, int32(3), ran.Load())
	assert.Zero(t, d.ErrorCount())
}

func TestDispatcherRetriesTransientFailures(t *testing.T) {
	d := NewDispatcher(quickOptions())
	defer d.Close()

	var attempts atomic.Int32
	done := make(chan struct{})
	err := d.Enqueue(context.Background(), "test", func() error {
		if attempts.Add(1) < 3 {
			return transientErr{}
		}
		close(done)
		return nil
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not succeed after retries")
	}
	assert.Equal(t, int32(3), attempts.Load())
	assert.Zero(t, d.ErrorCount())
}

func TestDispatcherDoesNotRetryPermanentFailures(t *testing.T) {
	d := NewDispatcher(quickOptions())

	var attempts atomic.Int32
	err := d.Enqueue(context.Background(), "test", func() error {
		attempts.Add(1)
		return errors.New("telegram: forbidden (403)")
	})
	require.NoError(t, err)
	d.Close()

	assert.Equal(t, int32(1), attempts.Load())
	assert.Equal(t, uint64(1), d.ErrorCount())
}

func TestDispatcherRejectsAfterClose(t *testing.T) {
	d := NewDispatcher(quickOptions())
	d.Close()

	err := d.Enqueue(context.Background(), "test", func() error { return nil })
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestDispatcherRejectsWhenQueueFull(t *testing.T) {
	d := NewDispatcher(Options{QueueSize: 1, Workers: 1, RetryBackoff: time.Millisecond, MaxDuration: time.Second})
	defer d.Close()

	block := make(chan struct{})
	require.NoError(t, d.Enqueue(context.Background(), "test", func() error {
		<-block
		return nil
	}))

	// Fill the queue behind the blocked worker, then overflow it.
	var full bool
	for i := 0; i < 4; i++ {
		if err := d.Enqueue(context.Background(), "test", func() error { return nil }); errors.Is(err, ErrQueueFull) {
			full = true
			break
		}
	}
	close(block)
	assert.True(t, full)
}
