package workers

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/dinedesk/internal/events"
	"github.com/yoockh/dinedesk/internal/metrics"
	"github.com/yoockh/dinedesk/internal/models"
	mongorepo "github.com/yoockh/dinedesk/internal/repositories/mongo"
	"github.com/yoockh/dinedesk/internal/services"
	"github.com/yoockh/dinedesk/internal/utils"
)

const defaultAuditTTL = 30 * 24 * time.Hour

// EventWorkerPool consumes processed-message events: it rolls them into the
// daily analytics counters and writes the tool-call audit log. Delivery is
// at-least-once; an entry whose handling fails stays pending and is reclaimed
// after ClaimIdle.
type EventWorkerPool struct {
	Redis      redis.Cmdable
	Analytics  services.AnalyticsService
	ToolLog    mongorepo.ToolExecutionRepository // optional
	Metrics    *metrics.Metrics
	NumWorkers int
	Logger     *logrus.Logger

	Stream         string
	Group          string
	ConsumerPrefix string
	Block          time.Duration
	ClaimIdle      time.Duration
	AuditTTL       time.Duration
}

func (p *EventWorkerPool) defaults() {
	if p.Stream == "" {
		p.Stream = events.DefaultStream
	}
	if p.Group == "" {
		p.Group = "analytics-workers"
	}
	if p.ConsumerPrefix == "" {
		p.ConsumerPrefix = "c"
	}
	if p.NumWorkers <= 0 {
		p.NumWorkers = 2
	}
	if p.Block == 0 {
		p.Block = 5 * time.Second
	}
	if p.ClaimIdle <= 0 {
		p.ClaimIdle = time.Minute
	}
	if p.AuditTTL <= 0 {
		p.AuditTTL = defaultAuditTTL
	}
	if p.Logger == nil {
		p.Logger = logrus.New()
	}
}

func (p *EventWorkerPool) Start(ctx context.Context) error {
	if p.Redis == nil || p.Analytics == nil {
		return errors.New("EventWorkerPool missing dependency: Redis/Analytics must be set")
	}
	p.defaults()

	if err := p.ensureGroup(ctx); err != nil {
		return err
	}
	for i := 0; i < p.NumWorkers; i++ {
		consumer := p.ConsumerPrefix + "-" + strconv.Itoa(i+1)
		go p.runConsumer(ctx, consumer)
	}
	return nil
}

func (p *EventWorkerPool) ensureGroup(ctx context.Context) error {
	err := p.Redis.XGroupCreateMkStream(ctx, p.Stream, p.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

func (p *EventWorkerPool) runConsumer(ctx context.Context, consumer string) {
	log := p.Logger.WithField("consumer", consumer)
	lastClaim := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if time.Since(lastClaim) >= p.ClaimIdle {
			if _, err := p.reclaim(ctx, consumer); err != nil && ctx.Err() == nil {
				log.WithError(err).Warn("reclaiming pending events failed")
			}
			lastClaim = time.Now()
		}

		if _, err := p.readOnce(ctx, consumer); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.WithError(err).Warn("reading event stream failed")
			time.Sleep(500 * time.Millisecond)
		}
	}
}

// readOnce reads one batch of new entries and handles them.
func (p *EventWorkerPool) readOnce(ctx context.Context, consumer string) (int, error) {
	res, err := p.Redis.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    p.Group,
		Consumer: consumer,
		Streams:  []string{p.Stream, ">"},
		Count:    10,
		Block:    p.Block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}

	n := 0
	for _, stream := range res {
		for _, msg := range stream.Messages {
			p.handleAndAck(ctx, msg)
			n++
		}
	}
	return n, nil
}

// reclaim takes over entries another consumer left pending for too long.
func (p *EventWorkerPool) reclaim(ctx context.Context, consumer string) (int, error) {
	msgs, _, err := p.Redis.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   p.Stream,
		Group:    p.Group,
		Consumer: consumer,
		MinIdle:  p.ClaimIdle,
		Start:    "0-0",
		Count:    10,
	}).Result()
	if err != nil {
		return 0, err
	}
	for _, msg := range msgs {
		p.handleAndAck(ctx, msg)
	}
	return len(msgs), nil
}

func (p *EventWorkerPool) handleAndAck(ctx context.Context, msg redis.XMessage) {
	err := p.handleMsg(ctx, msg)
	p.Metrics.EventProcessed(err == nil)

	var perm *permanentError
	switch {
	case err == nil:
	case errors.As(err, &perm):
		p.Logger.WithError(err).WithField("redis_id", msg.ID).Warn("dropping malformed event")
	default:
		p.Logger.WithError(err).WithField("redis_id", msg.ID).Error("event handling failed, leaving pending")
		return
	}
	if err := p.Redis.XAck(ctx, p.Stream, p.Group, msg.ID).Err(); err != nil {
		p.Logger.WithError(err).WithField("redis_id", msg.ID).Warn("ack failed")
	}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func (p *EventWorkerPool) handleMsg(ctx context.Context, msg redis.XMessage) error {
	typ, ev, err := events.Decode(msg.Values)
	if err != nil {
		return &permanentError{err}
	}
	if typ != events.TypeMessageProcessed {
		return &permanentError{errors.New("unknown event type " + typ)}
	}

	log := p.Logger.WithFields(logrus.Fields{
		"redis_id":      msg.ID,
		"request_id":    ev.RequestID,
		"restaurant_id": ev.RestaurantID,
	})

	if p.ToolLog != nil && len(ev.ToolCalls) > 0 {
		if err := p.ToolLog.InsertMany(ctx, p.toolRows(ev)); err != nil {
			return err
		}
	}
	if err := p.Analytics.Record(ctx, ev); err != nil {
		if utils.IsCode(err, utils.CodeInvalidArgument) {
			return &permanentError{err}
		}
		return err
	}
	log.WithField("tool_calls", len(ev.ToolCalls)).Debug("event processed")
	return nil
}

func (p *EventWorkerPool) toolRows(ev events.MessageProcessed) []models.ToolExecution {
	at := ev.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	rows := make([]models.ToolExecution, 0, len(ev.ToolCalls))
	for _, c := range ev.ToolCalls {
		rows = append(rows, models.ToolExecution{
			RequestID:    ev.RequestID,
			RestaurantID: ev.RestaurantID,
			ThreadID:     ev.ThreadID,
			Turn:         c.Turn,
			ToolName:     c.Name,
			Arguments:    c.Args,
			Result:       c.Result,
			OK:           c.OK,
			ErrorCode:    c.ErrorCode,
			DurationMS:   c.DurationMS,
			Timestamp:    at,
			ExpiresAt:    at.Add(p.AuditTTL),
		})
	}
	return rows
}
