package trace

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	steps []Step
	err   error
	calls int
}

func (s *captureSink) AppendTrace(_ context.Context, steps []Step) error {
	s.calls++
	if s.err != nil {
		return s.err
	}
	s.steps = append(s.steps, steps...)
	return nil
}

func TestRecorderPreservesOrder(t *testing.T) {
	rec := NewRecorder(uuid.New())
	rec.Record("init", map[string]any{"target": 10})
	rec.Record("round", map[string]any{"round": 1})
	rec.Record("round", map[string]any{"round": 2})
	rec.Record("done", nil)

	sink := &captureSink{}
	require.NoError(t, rec.Flush(context.Background(), sink))
	require.Equal(t, 1, sink.calls)
	require.Len(t, sink.steps, 4)
	for i, step := range sink.steps {
		require.Equal(t, i, step.Seq)
	}
	require.Equal(t, "init", sink.steps[0].Stage)
	require.Equal(t, "done", sink.steps[3].Stage)
}

func TestRecorderFlushClearsBuffer(t *testing.T) {
	rec := NewRecorder(uuid.New())
	rec.Record("init", nil)

	sink := &captureSink{}
	require.NoError(t, rec.Flush(context.Background(), sink))
	require.Equal(t, 0, rec.Len())

	// Empty flush is a no-op.
	require.NoError(t, rec.Flush(context.Background(), sink))
	require.Equal(t, 1, sink.calls)
}

func TestRecorderFlushFailureKeepsSteps(t *testing.T) {
	rec := NewRecorder(uuid.New())
	rec.Record("init", nil)

	sink := &captureSink{err: errors.New("db down")}
	require.Error(t, rec.Flush(context.Background(), sink))
	require.Equal(t, 1, rec.Len())
}

func TestRecorderConcurrentRecords(t *testing.T) {
	rec := NewRecorder(uuid.New())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec.Record("round", nil)
		}()
	}
	wg.Wait()
	require.Equal(t, 50, rec.Len())
}
