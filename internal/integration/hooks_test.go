package integration

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/polyfab/polyfab/internal/inventory"
	"github.com/polyfab/polyfab/internal/production"
	"github.com/polyfab/polyfab/jobs"
)

type recordingLive struct {
	rollStages   []string
	orderActions []string
}

func (r *recordingLive) BroadcastRollStage(_, _ int64, stage string, _ float64, _ time.Time) {
	r.rollStages = append(r.rollStages, stage)
}

func (r *recordingLive) BroadcastOrderChange(_ int64, action string, _ time.Time) {
	r.orderActions = append(r.orderActions, action)
}

type recordingInvalidator struct {
	calls int
	fail  error
}

func (r *recordingInvalidator) Invalidate(context.Context) error {
	r.calls++
	return r.fail
}

type recordingCounter struct {
	stages []string
}

func (r *recordingCounter) CountRollStage(stage string) {
	r.stages = append(r.stages, stage)
}

type recordingQueue struct {
	payloads []jobs.MetricsRefreshPayload
}

func (r *recordingQueue) EnqueueMetricsRefresh(_ context.Context, payload jobs.MetricsRefreshPayload) (*asynq.TaskInfo, error) {
	r.payloads = append(r.payloads, payload)
	return &asynq.TaskInfo{}, nil
}

func newTestHooks() (*Hooks, *recordingLive, *recordingInvalidator, *recordingCounter, *recordingQueue) {
	live := &recordingLive{}
	dash := &recordingInvalidator{}
	counter := &recordingCounter{}
	queue := &recordingQueue{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHooks(logger, live, dash, counter, queue), live, dash, counter, queue
}

func TestHandleRollStageFansOut(t *testing.T) {
	hooks, live, dash, counter, queue := newTestHooks()

	err := hooks.HandleRollStage(context.Background(), production.RollStageEvent{
		JobOrderID: 1, RollID: 7, Stage: production.RollStageReceived, Quantity: 55,
		OccurredAt: time.Now(),
	})
	require.NoError(t, err)
	require.Equal(t, []string{"received"}, live.rollStages)
	require.Equal(t, []string{"received"}, counter.stages)
	require.Equal(t, 1, dash.calls)
	require.Len(t, queue.payloads, 1)
	require.Equal(t, int64(1), queue.payloads[0].JobOrderID)
}

func TestHandleOrderDeletedQueuesRefresh(t *testing.T) {
	hooks, live, _, _, queue := newTestHooks()

	err := hooks.HandleOrderChanged(context.Background(), production.OrderChangedEvent{
		JobOrderID: 1, Action: "deleted", OccurredAt: time.Now(),
	})
	require.NoError(t, err)
	require.Equal(t, []string{"deleted"}, live.orderActions)
	require.Len(t, queue.payloads, 1)
	require.Zero(t, queue.payloads[0].JobOrderID)
}

func TestHandleOrderUpdatedSkipsQueue(t *testing.T) {
	hooks, _, dash, _, queue := newTestHooks()

	err := hooks.HandleOrderChanged(context.Background(), production.OrderChangedEvent{
		JobOrderID: 1, Action: "updated", OccurredAt: time.Now(),
	})
	require.NoError(t, err)
	require.Equal(t, 1, dash.calls)
	require.Empty(t, queue.payloads)
}

func TestInvalidateFailureIsSwallowed(t *testing.T) {
	hooks, _, dash, _, _ := newTestHooks()
	dash.fail = errors.New("redis down")

	require.NoError(t, hooks.HandleMovementPosted(context.Background(), inventory.MovementPostedEvent{}))
	require.NoError(t, hooks.HandleLowStock(context.Background(), inventory.LowStockEvent{}))
	require.Equal(t, 2, dash.calls)
}

func TestNilDependenciesAreSkipped(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hooks := NewHooks(logger, nil, nil, nil, nil)

	require.NoError(t, hooks.HandleRollStage(context.Background(), production.RollStageEvent{Stage: production.RollStageCut}))
	require.NoError(t, hooks.HandleOrderChanged(context.Background(), production.OrderChangedEvent{Action: "deleted"}))
}
