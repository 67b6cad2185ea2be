// Package trace records the ordered decision log of a sourcing run.
//
// Steps are buffered in memory for the lifetime of one run and appended to
// the sink in a single bulk write when the run finishes, preserving the
// order in which they were recorded.
package trace

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Step is one recorded decision or observation within a run.
type Step struct {
	RunID  uuid.UUID      `json:"run_id"`
	Seq    int            `json:"seq"`
	Stage  string         `json:"stage"`
	Detail map[string]any `json:"detail,omitempty"`
	At     time.Time      `json:"at"`
}

// Sink receives the buffered steps of a finished run in one ordered append.
type Sink interface {
	AppendTrace(ctx context.Context, steps []Step) error
}

// Recorder buffers steps for a single run. It is owned by the run execution
// context and safe for concurrent use.
type Recorder struct {
	mu    sync.Mutex
	runID uuid.UUID
	now   func() time.Time
	steps []Step
}

// NewRecorder returns a Recorder for the given run.
func NewRecorder(runID uuid.UUID) *Recorder {
	return &Recorder{runID: runID, now: time.Now}
}

// Record appends one step to the buffer. Seq is assigned from the buffer
// position so flush order matches record order.
func (r *Recorder) Record(stage string, detail map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = append(r.steps, Step{
		RunID:  r.runID,
		Seq:    len(r.steps),
		Stage:  stage,
		Detail: detail,
		At:     r.now(),
	})
}

// Len reports how many steps are buffered.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.steps)
}

// Flush writes all buffered steps to the sink in order and clears the
// buffer. A failed flush leaves the buffer intact so the caller may retry.
func (r *Recorder) Flush(ctx context.Context, sink Sink) error {
	r.mu.Lock()
	steps := make([]Step, len(r.steps))
	copy(steps, r.steps)
	r.mu.Unlock()

	if len(steps) == 0 {
		return nil
	}
	if err := sink.AppendTrace(ctx, steps); err != nil {
		return fmt.Errorf("flush trace: %w", err)
	}

	r.mu.Lock()
	r.steps = r.steps[:0]
	r.mu.Unlock()
	return nil
}
