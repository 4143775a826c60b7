// Package pipeline implements the per-call frame processing stages: the
// turn gate, the latency injector with its process-wide delay scheduler, and
// the recognizer mute policy.
//
// Frames walk an ordered stage chain on the caller's goroutine, so arrival
// order is preserved and a blocking stage backpressures the producer instead
// of reordering traffic.
package pipeline

import (
	"context"

	"github.com/dr-redtec/Voice-AI-Latency/internal/frame"
)

// EmitFunc hands a frame to the next stage. A stage may call it any number
// of times per processed frame; not calling it drops the frame.
type EmitFunc func(ctx context.Context, f frame.Frame) error

// Stage is one processing step of a call pipeline.
type Stage interface {
	Name() string
	Process(ctx context.Context, f frame.Frame, emit EmitFunc) error
}

// Pipeline runs frames through an ordered stage chain ending in a sink.
type Pipeline struct {
	head EmitFunc
}

// New builds a pipeline whose frames pass every stage in order and land in
// sink. A nil sink discards frames that reach the end.
func New(sink EmitFunc, stages ...Stage) *Pipeline {
	if sink == nil {
		sink = func(context.Context, frame.Frame) error { return nil }
	}
	next := sink
	for i := len(stages) - 1; i >= 0; i-- {
		stage, down := stages[i], next
		next = func(ctx context.Context, f frame.Frame) error {
			return stage.Process(ctx, f, down)
		}
	}
	return &Pipeline{head: next}
}

// Push walks f through the chain. It returns the first stage error; once ctx
// is cancelled frames are rejected with the context error.
func (p *Pipeline) Push(ctx context.Context, f frame.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.head(ctx, f)
}
