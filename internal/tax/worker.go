package tax

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/storelens/avatax-bridge/internal/avatax"
	"github.com/storelens/avatax-bridge/internal/lock"
	"github.com/storelens/avatax-bridge/internal/obs"
)

// TaskCommitFinal is the asynq task type for asynchronous final commits.
const TaskCommitFinal = "avatax:commit_final"

type commitFinalPayload struct {
	OrderID int64 `json:"order_id"`
}

// CommitEnqueuer schedules final document commits on the task queue.
type CommitEnqueuer struct {
	Client *asynq.Client
	// UniqueWindow suppresses duplicate commits for the same order.
	UniqueWindow time.Duration
}

// EnqueueCommitFinal queues one final commit for the order. Duplicate enqueues
// within the unique window are collapsed.
func (e *CommitEnqueuer) EnqueueCommitFinal(ctx context.Context, orderID int64) error {
	if e == nil || e.Client == nil {
		return errors.New("tax: commit enqueuer not configured")
	}
	payload, err := json.Marshal(commitFinalPayload{OrderID: orderID})
	if err != nil {
		return fmt.Errorf("tax: encode commit task: %w", err)
	}
	window := e.UniqueWindow
	if window <= 0 {
		window = time.Minute
	}
	task := asynq.NewTask(TaskCommitFinal, payload)
	_, err = e.Client.EnqueueContext(ctx, task,
		asynq.MaxRetry(5),
		asynq.Unique(window),
		asynq.Queue("tax"),
	)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	return err
}

// CommitWorker processes queued final commits.
type CommitWorker struct {
	Svc    *Service
	Logger zerolog.Logger
	// Locks serializes commits per order across worker instances; optional.
	Locks *lock.Locker
}

// ProcessTask implements asynq.Handler.
func (w *CommitWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload commitFinalPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		// Malformed payloads can never succeed; drop instead of retrying.
		w.Logger.Error().Err(err).Msg("commit task payload malformed")
		return fmt.Errorf("decode commit task: %v: %w", err, asynq.SkipRetry)
	}
	res, err := w.commit(ctx, payload.OrderID)
	if err != nil {
		if errors.Is(err, ErrDocumentCommitDisabled) {
			w.Logger.Info().Int64("order_id", payload.OrderID).Msg("document commit disabled, dropping task")
			countCommitTask("skipped")
			return nil
		}
		w.Logger.Error().Err(err).Int64("order_id", payload.OrderID).Msg("final commit failed")
		countCommitTask("error")
		return err
	}
	w.Logger.Info().
		Int64("order_id", payload.OrderID).
		Str("total_tax", res.TotalTax).
		Msg("final commit recorded")
	countCommitTask("ok")
	return nil
}

func (w *CommitWorker) commit(ctx context.Context, orderID int64) (avatax.GetTaxResult, error) {
	if w.Locks == nil {
		return w.Svc.CommitFinal(ctx, orderID)
	}
	var res avatax.GetTaxResult
	err := w.Locks.WithLock(ctx, lock.CommitKey(orderID), 30*time.Second, func(ctx context.Context) error {
		var err error
		res, err = w.Svc.CommitFinal(ctx, orderID)
		return err
	})
	return res, err
}

func countCommitTask(result string) {
	if obs.CommitTasksTotal == nil {
		return
	}
	obs.CommitTasksTotal.WithLabelValues(result).Inc()
}
