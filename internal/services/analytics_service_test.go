package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yoockh/dinedesk/internal/events"
	"github.com/yoockh/dinedesk/internal/models"
	"github.com/yoockh/dinedesk/internal/utils"
	"gorm.io/datatypes"
)

type fakeAnalytics struct {
	days map[string]map[string]int64
}

func (f *fakeAnalytics) Increment(_ context.Context, _ string, day time.Time, deltas map[string]int64) error {
	if f.days == nil {
		f.days = map[string]map[string]int64{}
	}
	k := day.UTC().Format("2006-01-02")
	if f.days[k] == nil {
		f.days[k] = map[string]int64{}
	}
	for name, v := range deltas {
		f.days[k][name] += v
	}
	return nil
}

func (f *fakeAnalytics) Range(_ context.Context, rid string, from, to time.Time) ([]models.Analytics, error) {
	var out []models.Analytics
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		m, ok := f.days[d.Format("2006-01-02")]
		if !ok {
			continue
		}
		raw, _ := json.Marshal(m)
		out = append(out, models.Analytics{RestaurantID: rid, Day: d, Metrics: datatypes.JSON(raw)})
	}
	return out, nil
}

func TestCounters(t *testing.T) {
	got := Counters(events.MessageProcessed{
		Channel: "sms", Intent: "reservation", Cached: false, Degraded: true,
		ToolCalls: []events.ToolCallRecord{
			{Name: "check_availability", OK: true},
			{Name: "make_reservation", OK: false, ErrorCode: "no_availability"},
			{Name: "make_reservation", OK: true},
		},
	})
	assert.Equal(t, map[string]int64{
		"messages":                1,
		"channel.sms":             1,
		"intent.reservation":      1,
		"degraded":                1,
		"tool.check_availability": 1,
		"tool.make_reservation":   2,
		"tool_errors":             1,
		"reservations":            1,
	}, got)
}

func TestAnalyticsService(t *testing.T) {
	ctx := context.Background()
	repo := &fakeAnalytics{}
	svc := NewAnalyticsService(repo)

	day1 := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)
	require.NoError(t, svc.Record(ctx, events.MessageProcessed{RestaurantID: testRestaurantID, Channel: "web", Intent: "menu_inquiry", At: day1}))
	require.NoError(t, svc.Record(ctx, events.MessageProcessed{RestaurantID: testRestaurantID, Channel: "web", Cached: true, Intent: "menu_inquiry", At: day1}))
	require.NoError(t, svc.Record(ctx, events.MessageProcessed{RestaurantID: testRestaurantID, Channel: "sms", Intent: "complaint", Handoff: true, At: day2}))

	sum, err := svc.Summary(ctx, testRestaurantID, time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC), time.Date(2025, 6, 11, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "2025-06-10", sum.From)
	require.Len(t, sum.Days, 2)
	assert.Equal(t, int64(2), sum.Days[0].Metrics["messages"])
	assert.Equal(t, int64(3), sum.Totals["messages"])
	assert.Equal(t, int64(1), sum.Totals["cache_hits"])
	assert.Equal(t, int64(2), sum.Totals["intent.menu_inquiry"])
	assert.Equal(t, int64(1), sum.Totals["handoffs"])

	_, err = svc.Summary(ctx, testRestaurantID, day2, day1)
	assert.Equal(t, "invalid_range", utils.ReasonOf(err))
	_, err = svc.Summary(ctx, testRestaurantID, day1, day1.AddDate(1, 0, 0))
	assert.Equal(t, "range_too_large", utils.ReasonOf(err))
	assert.Error(t, svc.Record(ctx, events.MessageProcessed{}))
}
