package tax_test

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/storelens/avatax-bridge/internal/avatax"
	"github.com/storelens/avatax-bridge/internal/lock"
	"github.com/storelens/avatax-bridge/internal/order"
	"github.com/storelens/avatax-bridge/internal/tax"
)

func TestCommitWorkerProcessesTask(t *testing.T) {
	t.Parallel()

	loader := &fakeLoader{orders: map[int64]*order.Order{10: testOrder()}}
	client := &fakeTaxClient{getResult: avatax.GetTaxResult{ResultCode: avatax.ResultSuccess, TotalTax: "4.00"}}
	db := &fakeDB{}
	worker := &tax.CommitWorker{Svc: newService(loader, client, db), Logger: zerolog.Nop()}

	task := asynq.NewTask(tax.TaskCommitFinal, []byte(`{"order_id":10}`))
	require.NoError(t, worker.ProcessTask(context.Background(), task))
	require.Len(t, client.getReqs, 1)
	require.True(t, client.getReqs[0].Commit)
}

func TestCommitWorkerDropsMalformedPayload(t *testing.T) {
	t.Parallel()

	worker := &tax.CommitWorker{Svc: newService(&fakeLoader{}, &fakeTaxClient{}, &fakeDB{}), Logger: zerolog.Nop()}

	task := asynq.NewTask(tax.TaskCommitFinal, []byte(`not json`))
	err := worker.ProcessTask(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestCommitWorkerDropsWhenCommitDisabled(t *testing.T) {
	t.Parallel()

	svc := newService(&fakeLoader{}, &fakeTaxClient{}, &fakeDB{})
	svc.DocumentCommit = false
	worker := &tax.CommitWorker{Svc: svc, Logger: zerolog.Nop()}

	task := asynq.NewTask(tax.TaskCommitFinal, []byte(`{"order_id":10}`))
	require.NoError(t, worker.ProcessTask(context.Background(), task))
}

func TestCommitWorkerHoldsCommitLock(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	loader := &fakeLoader{orders: map[int64]*order.Order{10: testOrder()}}
	taxClient := &fakeTaxClient{getResult: avatax.GetTaxResult{ResultCode: avatax.ResultSuccess, TotalTax: "4.00"}}
	worker := &tax.CommitWorker{
		Svc:    newService(loader, taxClient, &fakeDB{}),
		Logger: zerolog.Nop(),
		Locks:  &lock.Locker{R: client},
	}

	task := asynq.NewTask(tax.TaskCommitFinal, []byte(`{"order_id":10}`))
	require.NoError(t, worker.ProcessTask(context.Background(), task))
	require.Len(t, taxClient.getReqs, 1)

	// The lock is released after the commit completes.
	require.False(t, mr.Exists(lock.CommitKey(10)))
}

func TestCommitWorkerRetriesOnFailure(t *testing.T) {
	t.Parallel()

	loader := &fakeLoader{orders: map[int64]*order.Order{10: testOrder()}}
	client := &fakeTaxClient{getErr: avatax.ErrResultNotSuccess}
	worker := &tax.CommitWorker{Svc: newService(loader, client, &fakeDB{}), Logger: zerolog.Nop()}

	task := asynq.NewTask(tax.TaskCommitFinal, []byte(`{"order_id":10}`))
	err := worker.ProcessTask(context.Background(), task)
	require.ErrorIs(t, err, avatax.ErrResultNotSuccess)
	require.NotErrorIs(t, err, asynq.SkipRetry)
}
