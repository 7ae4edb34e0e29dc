package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yoockh/dinedesk/internal/events"
	"github.com/yoockh/dinedesk/internal/metrics"
	"github.com/yoockh/dinedesk/internal/models"
	"github.com/yoockh/dinedesk/internal/services"
)

type fakeAnalytics struct {
	mu   sync.Mutex
	seen []events.MessageProcessed
	err  error
}

func (f *fakeAnalytics) Record(_ context.Context, ev events.MessageProcessed) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.seen = append(f.seen, ev)
	return nil
}

func (f *fakeAnalytics) Summary(context.Context, string, time.Time, time.Time) (*services.AnalyticsSummary, error) {
	return nil, errors.New("not used")
}

type fakeToolLog struct {
	mu   sync.Mutex
	rows []models.ToolExecution
}

func (f *fakeToolLog) InsertMany(_ context.Context, rows []models.ToolExecution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, rows...)
	return nil
}

func (f *fakeToolLog) ListByRequest(context.Context, string) ([]models.ToolExecution, error) {
	return nil, nil
}

func (f *fakeToolLog) ListByThread(context.Context, string, string, int64) ([]models.ToolExecution, error) {
	return nil, nil
}

func newPool(t *testing.T) (*EventWorkerPool, *events.RedisPublisher, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	p := &EventWorkerPool{
		Redis:     rdb,
		Analytics: &fakeAnalytics{},
		ToolLog:   &fakeToolLog{},
		Metrics:   metrics.New(prometheus.NewRegistry()),
		Block:     -1,
	}
	p.defaults()
	require.NoError(t, p.ensureGroup(context.Background()))
	require.NoError(t, p.ensureGroup(context.Background()), "group creation is idempotent")
	return p, events.NewRedisPublisher(rdb, ""), rdb
}

func TestEventWorker_RecordsAnalyticsAndAudit(t *testing.T) {
	p, pub, _ := newPool(t)
	ctx := context.Background()
	at := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

	require.NoError(t, pub.PublishMessageProcessed(ctx, events.MessageProcessed{
		RequestID:    "req-1",
		RestaurantID: "r1",
		ThreadID:     "t1",
		Channel:      "sms",
		Intent:       "reservation",
		At:           at,
		ToolCalls: []events.ToolCallRecord{
			{Turn: 1, Name: "check_availability", OK: true, DurationMS: 12},
			{Turn: 2, Name: "make_reservation", OK: false, ErrorCode: "no_availability"},
		},
	}))

	n, err := p.readOnce(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	an := p.Analytics.(*fakeAnalytics)
	require.Len(t, an.seen, 1)
	assert.Equal(t, "req-1", an.seen[0].RequestID)

	logRows := p.ToolLog.(*fakeToolLog).rows
	require.Len(t, logRows, 2)
	assert.Equal(t, "make_reservation", logRows[1].ToolName)
	assert.Equal(t, "no_availability", logRows[1].ErrorCode)
	assert.Equal(t, "t1", logRows[1].ThreadID)
	assert.Equal(t, at.Add(30*24*time.Hour), logRows[0].ExpiresAt)

	n, err = p.readOnce(ctx, "c-1")
	require.NoError(t, err)
	assert.Zero(t, n, "acked entries are not redelivered")
}

func TestEventWorker_MalformedEntriesAreAcked(t *testing.T) {
	p, _, rdb := newPool(t)
	ctx := context.Background()

	require.NoError(t, rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: p.Stream,
		Values: map[string]any{"type": "message_processed", "payload": "{not json"},
	}).Err())

	n, err := p.readOnce(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, p.Analytics.(*fakeAnalytics).seen)

	pending, err := rdb.XPending(ctx, p.Stream, p.Group).Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count)
}

func TestEventWorker_FailuresStayPending(t *testing.T) {
	p, pub, rdb := newPool(t)
	ctx := context.Background()
	p.Analytics.(*fakeAnalytics).err = errors.New("postgres down")

	require.NoError(t, pub.PublishMessageProcessed(ctx, events.MessageProcessed{RequestID: "req-2", RestaurantID: "r1"}))

	_, err := p.readOnce(ctx, "c-1")
	require.NoError(t, err)

	pending, err := rdb.XPending(ctx, p.Stream, p.Group).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending.Count)
}

func TestEventWorker_StartRequiresDeps(t *testing.T) {
	assert.Error(t, (&EventWorkerPool{}).Start(context.Background()))
}
