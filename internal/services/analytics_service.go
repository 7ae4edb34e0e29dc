package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/yoockh/dinedesk/internal/events"
	pgrepo "github.com/yoockh/dinedesk/internal/repositories/postgres"
	"github.com/yoockh/dinedesk/internal/utils"
)

const maxAnalyticsRange = 92 * 24 * time.Hour

type DayMetrics struct {
	Day     string           `json:"day"` // YYYY-MM-DD, UTC
	Metrics map[string]int64 `json:"metrics"`
}

type AnalyticsSummary struct {
	RestaurantID string           `json:"restaurant_id"`
	From         string           `json:"from"`
	To           string           `json:"to"`
	Totals       map[string]int64 `json:"totals"`
	Days         []DayMetrics     `json:"days"`
}

type AnalyticsService interface {
	Record(ctx context.Context, ev events.MessageProcessed) error
	Summary(ctx context.Context, restaurantID string, from, to time.Time) (*AnalyticsSummary, error)
}

type analyticsService struct {
	repo pgrepo.AnalyticsRepository
}

func NewAnalyticsService(repo pgrepo.AnalyticsRepository) AnalyticsService {
	return &analyticsService{repo: repo}
}

// Counters turns one processed message into per-day counter deltas.
func Counters(ev events.MessageProcessed) map[string]int64 {
	d := map[string]int64{
		"messages":              1,
		"channel." + ev.Channel: 1,
	}
	if ev.Intent != "" {
		d["intent."+ev.Intent] = 1
	}
	if ev.Cached {
		d["cache_hits"] = 1
	}
	if ev.Degraded {
		d["degraded"] = 1
	}
	if ev.Handoff {
		d["handoffs"] = 1
	}
	for _, c := range ev.ToolCalls {
		d["tool."+c.Name]++
		if !c.OK {
			d["tool_errors"]++
		}
		if c.OK && c.Name == "make_reservation" {
			d["reservations"]++
		}
		if c.OK && c.Name == "process_order" {
			d["orders"]++
		}
	}
	return d
}

func (s *analyticsService) Record(ctx context.Context, ev events.MessageProcessed) error {
	const op = "AnalyticsService.Record"

	if ev.RestaurantID == "" {
		return utils.E(utils.CodeInvalidArgument, op, "event has no restaurant_id", nil)
	}
	day := ev.At
	if day.IsZero() {
		day = time.Now()
	}
	if err := s.repo.Increment(ctx, ev.RestaurantID, day.UTC(), Counters(ev)); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to increment analytics", err)
	}
	return nil
}

func (s *analyticsService) Summary(ctx context.Context, restaurantID string, from, to time.Time) (*AnalyticsSummary, error) {
	const op = "AnalyticsService.Summary"

	if restaurantID == "" {
		return nil, utils.ER(utils.CodeInvalidArgument, op, "missing_restaurant_id", "restaurant_id is required", nil)
	}
	if to.Before(from) {
		return nil, utils.ER(utils.CodeInvalidArgument, op, "invalid_range", "to must not be before from", nil)
	}
	if to.Sub(from) > maxAnalyticsRange {
		return nil, utils.ER(utils.CodeInvalidArgument, op, "range_too_large", "range may span at most 92 days", nil)
	}

	rows, err := s.repo.Range(ctx, restaurantID, from.UTC(), to.UTC())
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to load analytics", err)
	}

	out := &AnalyticsSummary{
		RestaurantID: restaurantID,
		From:         from.UTC().Format("2006-01-02"),
		To:           to.UTC().Format("2006-01-02"),
		Totals:       map[string]int64{},
		Days:         make([]DayMetrics, 0, len(rows)),
	}
	for _, row := range rows {
		m := map[string]int64{}
		if len(row.Metrics) > 0 {
			if err := json.Unmarshal(row.Metrics, &m); err != nil {
				return nil, utils.E(utils.CodeInternal, op, "corrupt analytics row", err)
			}
		}
		for k, v := range m {
			out.Totals[k] += v
		}
		out.Days = append(out.Days, DayMetrics{Day: row.Day.UTC().Format("2006-01-02"), Metrics: m})
	}
	return out, nil
}
