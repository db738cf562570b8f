package resilience

import (
	"context"
	"errors"
	"time"
)

// StageRetrier adapts the executor to the pipeline's per-stage retry
// contract: bounded exponential backoff, with the circuit breaker
// shared per stage name.
type StageRetrier struct {
	executor *Executor
	onResult func(stage string, duration time.Duration, err error)
}

func NewStageRetrier(executor *Executor) *StageRetrier {
	return &StageRetrier{executor: executor}
}

// OnResult installs an observer for completed stage runs. Set it
// before the retrier starts serving; it is not synchronized.
func (r *StageRetrier) OnResult(fn func(stage string, duration time.Duration, err error)) {
	r.onResult = fn
}

func (r *StageRetrier) Do(ctx context.Context, stage string, fn func(context.Context) error, retryable func(error) bool) error {
	start := time.Now()
	err := r.executor.Execute(ctx, "stage."+stage, fn, func(err error) ErrorClassification {
		if err == nil {
			return ErrorClassification{}
		}
		if errors.Is(err, context.Canceled) {
			return ErrorClassification{Retryable: false, RecordFailure: false}
		}
		return ErrorClassification{
			Retryable:     retryable(err),
			RecordFailure: true,
		}
	})
	if r.onResult != nil {
		r.onResult(stage, time.Since(start), err)
	}
	return err
}
