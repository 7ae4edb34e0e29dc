package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/dinedesk/internal/agent"
	"github.com/yoockh/dinedesk/internal/cache"
	"github.com/yoockh/dinedesk/internal/events"
	"github.com/yoockh/dinedesk/internal/metrics"
	"github.com/yoockh/dinedesk/internal/models"
	"github.com/yoockh/dinedesk/internal/providers/stt"
	pgrepo "github.com/yoockh/dinedesk/internal/repositories/postgres"
	"github.com/yoockh/dinedesk/internal/responses"
	"github.com/yoockh/dinedesk/internal/storage"
	"github.com/yoockh/dinedesk/internal/utils"
	"golang.org/x/sync/singleflight"
)

const (
	maxMessageChars   = 4000
	maxAudioBytes     = 10 << 20
	restaurantTTL     = 5 * time.Minute
	defaultRunTimeout = 30 * time.Second
	historyForContext = 6
)

// IntentClassifier is satisfied by *agent.Classifier.
type IntentClassifier interface {
	Classify(ctx context.Context, message string, cc agent.ClassifyContext) agent.Intent
}

// AgentRunner is satisfied by *agent.Agent.
type AgentRunner interface {
	Run(ctx context.Context, in agent.RunInput) agent.Outcome
}

type ProcessInput struct {
	RequestID    string
	RestaurantID string
	CustomerID   string
	ThreadID     string
	SenderID     string
	Channel      models.Channel
	Message      string
	Context      map[string]any
	AudioBase64  string
	AudioFormat  stt.AudioFormat
	Language     string
}

type ToolCallSummary struct {
	Name      string `json:"name"`
	OK        bool   `json:"ok"`
	ErrorCode string `json:"error_code,omitempty"`
}

type ProcessResult struct {
	Reply      string            `json:"reply"`
	Intent     string            `json:"intent"`
	Confidence float64           `json:"confidence"`
	Cached     bool              `json:"cached"`
	Degraded   bool              `json:"degraded"`
	ToolCalls  []ToolCallSummary `json:"tool_calls"`
	Metadata   map[string]any    `json:"metadata"`
}

type AssistantService interface {
	Process(ctx context.Context, in ProcessInput) (*ProcessResult, error)
}

// AssistantDeps wires the request pipeline. Transcriber, Archive, Events and
// Metrics are optional.
type AssistantDeps struct {
	Restaurants   pgrepo.RestaurantRepository
	Customers     pgrepo.CustomerRepository
	Conversations pgrepo.ConversationRepo
	Cache         cache.Cache
	Classifier    IntentClassifier
	Agent         AgentRunner
	Responses     *responses.Generator
	Transcriber   stt.Provider
	Archive       storage.Uploader
	Events        events.Publisher
	Metrics       *metrics.Metrics
	Logger        *logrus.Logger
	ResponseTTL   time.Duration
	RunTimeout    time.Duration // bounds the shared agent run; defaults to 30s
	Now           func() time.Time
}

type assistantService struct {
	AssistantDeps
	flight singleflight.Group
}

func NewAssistantService(d AssistantDeps) AssistantService {
	if d.ResponseTTL <= 0 {
		d.ResponseTTL = cache.DefaultResponseTTL
	}
	if d.Logger == nil {
		d.Logger = logrus.New()
	}
	if d.RunTimeout <= 0 {
		d.RunTimeout = defaultRunTimeout
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Responses == nil {
		d.Responses = responses.MustNewGenerator()
	}
	return &assistantService{AssistantDeps: d}
}

// pipelineResult is what one agent run produces; coalesced callers share it.
type pipelineResult struct {
	result  *ProcessResult
	outcome agent.Outcome
	intent  agent.Intent
	handoff bool
}

func (s *assistantService) Process(ctx context.Context, in ProcessInput) (*ProcessResult, error) {
	const op = "AssistantService.Process"
	started := s.Now()

	if err := s.normalize(&in); err != nil {
		return nil, err
	}
	log := s.Logger.WithFields(logrus.Fields{
		"request_id":    in.RequestID,
		"restaurant_id": in.RestaurantID,
		"channel":       in.Channel,
		"thread_id":     in.ThreadID,
	})

	restaurant, err := s.restaurant(ctx, in.RestaurantID)
	if err != nil {
		return nil, err
	}

	meta := map[string]any{"request_id": in.RequestID, "thread_id": in.ThreadID}
	if in.AudioBase64 != "" {
		text, conf, object, err := s.transcribe(ctx, in)
		if err != nil {
			return nil, err
		}
		in.Message = text
		meta["transcript_confidence"] = conf
		if object != "" {
			meta["audio_object"] = object
		}
	}
	if strings.TrimSpace(in.Message) == "" {
		return nil, utils.ER(utils.CodeInvalidArgument, op, "empty_message", "message is required", nil)
	}

	key := cache.ResponseKey(in.RestaurantID, cache.Fingerprint(in.Message, s.cacheScope(in)...))

	var cached ProcessResult
	hit, err := s.Cache.GetJSON(ctx, key, &cached)
	switch {
	case err != nil:
		s.Metrics.CacheLookup("error")
		log.WithError(err).Warn("response cache read failed, treating as miss")
	case hit:
		s.Metrics.CacheLookup("hit")
		cached.Cached = true
		cached.Metadata = mergeMeta(cached.Metadata, meta)
		s.record(ctx, in, restaurant, &cached, agent.Outcome{}, false)
		s.Metrics.ObserveProcess(string(in.Channel), true, s.Now().Sub(started))
		log.WithField("cache", "hit").Info("message served from cache")
		return &cached, nil
	default:
		s.Metrics.CacheLookup("miss")
	}

	// The shared run outlives any single caller so that one cancelled
	// request does not degrade the others waiting on it.
	ch := s.flight.DoChan(key, func() (any, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.RunTimeout)
		defer cancel()

		pr := s.run(runCtx, in, restaurant, log)
		if !pr.result.Degraded && !pr.handoff {
			if err := s.Cache.SetJSON(runCtx, key, pr.result, s.ResponseTTL); err != nil {
				log.WithError(err).Warn("response cache write failed")
			}
		}
		pr.result.Metadata = mergeMeta(pr.result.Metadata, meta)
		s.record(runCtx, in, restaurant, pr.result, pr.outcome, pr.handoff)
		return pr, nil
	})
	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, utils.ER(utils.CodeTimeout, op, "request_cancelled", "request ended before the reply was ready", ctx.Err())
	}
	v, err, shared := res.Val, res.Err, res.Shared
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to process message", err)
	}
	pr := v.(*pipelineResult)

	out := *pr.result
	out.Metadata = mergeMeta(nil, pr.result.Metadata)
	if shared {
		s.Metrics.Coalesced()
		out.Metadata["coalesced"] = true
	}

	s.Metrics.ObserveProcess(string(in.Channel), false, s.Now().Sub(started))
	log.WithFields(logrus.Fields{
		"cache":    "miss",
		"intent":   out.Intent,
		"turns":    pr.outcome.Turns,
		"degraded": out.Degraded,
	}).Info("message processed")
	return &out, nil
}

func (s *assistantService) normalize(in *ProcessInput) error {
	const op = "AssistantService.Process"

	in.RestaurantID = strings.TrimSpace(in.RestaurantID)
	if in.RestaurantID == "" {
		return utils.ER(utils.CodeInvalidArgument, op, "missing_restaurant_id", "restaurant_id is required", nil)
	}
	if _, err := uuid.Parse(in.RestaurantID); err != nil {
		return utils.ER(utils.CodeInvalidArgument, op, "invalid_restaurant_id", "restaurant_id must be a UUID", nil)
	}
	if in.Channel == "" {
		in.Channel = models.ChannelWeb
	}
	in.Channel = models.Channel(strings.ToLower(string(in.Channel)))
	if !in.Channel.Valid() {
		return utils.ER(utils.CodeInvalidArgument, op, "invalid_channel", "unsupported channel: "+string(in.Channel), nil)
	}
	in.Message = strings.TrimSpace(in.Message)
	if in.Message == "" && in.AudioBase64 == "" {
		return utils.ER(utils.CodeInvalidArgument, op, "empty_message", "message or audio_base64 is required", nil)
	}
	if utf8.RuneCountInString(in.Message) > maxMessageChars {
		return utils.ER(utils.CodeInvalidArgument, op, "message_too_long", "message exceeds 4000 characters", nil)
	}
	if in.CustomerID != "" {
		if _, err := uuid.Parse(in.CustomerID); err != nil {
			return utils.ER(utils.CodeInvalidArgument, op, "invalid_customer_id", "customer_id must be a UUID", nil)
		}
	}
	if in.RequestID == "" {
		in.RequestID = uuid.NewString()
	}
	if in.ThreadID == "" {
		switch {
		case in.SenderID != "":
			in.ThreadID = in.SenderID
		case in.CustomerID != "":
			in.ThreadID = in.CustomerID
		default:
			in.ThreadID = uuid.NewString()
		}
	}
	return nil
}

// cacheScope keeps cached replies private to one conversation thread.
// Replies are stored already formatted, so the channel is part of the scope.
// customer_id is caller supplied; it narrows the scope but never widens it.
func (s *assistantService) cacheScope(in ProcessInput) []string {
	if in.CustomerID != "" {
		return []string{"customer", in.CustomerID, string(in.Channel), in.ThreadID}
	}
	return []string{"thread", string(in.Channel), in.ThreadID}
}

func (s *assistantService) restaurant(ctx context.Context, id string) (*models.Restaurant, error) {
	const op = "AssistantService.restaurant"

	key := "restaurant:" + id
	var r models.Restaurant
	if hit, err := s.Cache.GetJSON(ctx, key, &r); err == nil && hit {
		return &r, nil
	}

	row, err := s.Restaurants.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.ER(utils.CodeNotFound, op, "unknown_restaurant", "restaurant not found", err)
		}
		return nil, utils.E(utils.CodeUnavailable, op, "failed to load restaurant", err)
	}
	if err := s.Cache.SetJSON(ctx, key, row, restaurantTTL); err != nil {
		s.Logger.WithError(err).Debug("restaurant cache write failed")
	}
	return row, nil
}

func (s *assistantService) transcribe(ctx context.Context, in ProcessInput) (string, float64, string, error) {
	const op = "AssistantService.transcribe"

	if s.Transcriber == nil {
		return "", 0, "", utils.ER(utils.CodeInvalidArgument, op, "voice_disabled", "voice messages are not enabled", nil)
	}
	raw := in.AudioBase64
	if i := strings.Index(raw, ","); i >= 0 {
		raw = raw[i+1:] // strip data:...;base64,
	}
	audio, err := base64.StdEncoding.DecodeString(raw)
	if err != nil || len(audio) == 0 {
		return "", 0, "", utils.ER(utils.CodeInvalidArgument, op, "invalid_audio", "audio_base64 is not valid base64", err)
	}
	if len(audio) > maxAudioBytes {
		return "", 0, "", utils.ER(utils.CodeInvalidArgument, op, "audio_too_large", "audio exceeds 10MB", nil)
	}

	format := in.AudioFormat
	if format == "" && in.Channel == models.ChannelPhone {
		format = stt.FormatPhone
	}

	var object string
	if s.Archive != nil {
		ext := "wav"
		if format == stt.FormatOGG {
			ext = "ogg"
		} else if format == stt.FormatPhone {
			ext = "ulaw"
		}
		name := storage.VoiceObjectName(in.RestaurantID, in.RequestID, s.Now(), ext)
		if path, err := s.Archive.Upload(ctx, name, "audio/"+ext, bytes.NewReader(audio)); err != nil {
			s.Logger.WithError(err).WithField("request_id", in.RequestID).Warn("voice archive upload failed")
		} else {
			object = path
		}
	}

	text, conf, err := s.Transcriber.Transcribe(ctx, audio, format, in.Language)
	if err != nil {
		if errors.Is(err, stt.ErrNoSpeech) {
			return "", 0, object, utils.ER(utils.CodeInvalidArgument, op, "no_speech", "no speech recognised in audio", err)
		}
		return "", 0, object, utils.E(utils.CodeUnavailable, op, "transcription failed", err)
	}
	return text, conf, object, nil
}

func (s *assistantService) run(ctx context.Context, in ProcessInput, r *models.Restaurant, log *logrus.Entry) *pipelineResult {
	var history []models.Message
	conv, err := s.Conversations.GetByThread(ctx, in.RestaurantID, in.Channel, in.ThreadID)
	switch {
	case err == nil:
		history = conv.Recent(historyForContext)
	case !errors.Is(err, utils.ErrNotFound):
		log.WithError(err).Warn("conversation history unavailable")
	}

	var customer *models.Customer
	if in.CustomerID != "" {
		c, err := s.Customers.GetByID(ctx, in.RestaurantID, in.CustomerID)
		if err != nil && !errors.Is(err, utils.ErrNotFound) {
			log.WithError(err).Warn("customer lookup failed")
		}
		customer = c
	}

	intent := s.Classifier.Classify(ctx, in.Message, agent.ClassifyContext{
		RestaurantName: r.Name,
		Channel:        in.Channel,
		History:        history,
	})
	s.Metrics.ObserveIntent(string(intent.Label), intent.Fallback)

	pr := &pipelineResult{intent: intent}
	var reply string

	if intent.RequiresHuman && intent.Label == agent.IntentComplaint {
		pr.handoff = true
		reply, err = s.Responses.Render(responses.TplHumanHandoff, map[string]any{
			"restaurant_name": r.Name,
			"phone":           r.Phone,
		})
		if err != nil {
			reply = "Thanks for reaching out. A member of our team will get back to you shortly."
		}
	} else {
		var customerID *string
		if customer != nil {
			customerID = &customer.ID
		}
		pr.outcome = s.Agent.Run(ctx, agent.RunInput{
			Restaurant: r,
			CustomerID: customerID,
			Channel:    in.Channel,
			Message:    in.Message,
			Intent:     intent,
			History:    history,
			Extra:      in.Context,
		})
		s.Metrics.ObserveAgent(pr.outcome.Turns, pr.outcome.Degraded)
		reply = pr.outcome.Reply
	}

	customerName := ""
	if customer != nil {
		customerName = customer.Name
		if !pr.outcome.Degraded {
			reply = responses.Personalize(reply, customer.Name, customer.VisitCount)
		}
	}
	reply = responses.Format(in.Channel, reply, responses.OptionsFor(r, customerName))

	calls := make([]ToolCallSummary, 0, len(pr.outcome.Calls))
	for _, c := range pr.outcome.Calls {
		sum := ToolCallSummary{Name: c.Name, OK: c.Result.OK}
		outcome := "ok"
		if c.Result.Error != nil {
			sum.ErrorCode = c.Result.Error.Code
			outcome = c.Result.Error.Code
		}
		s.Metrics.ObserveTool(c.Name, outcome, c.Duration)
		calls = append(calls, sum)
	}

	meta := map[string]any{
		"turns":          pr.outcome.Turns,
		"requires_human": intent.RequiresHuman,
	}
	if len(intent.Entities) > 0 {
		meta["entities"] = intent.Entities
	}
	if pr.handoff {
		meta["handoff"] = true
	}
	if pr.outcome.HitTurnLimit {
		meta["turn_limit"] = true
	}

	pr.result = &ProcessResult{
		Reply:      reply,
		Intent:     string(intent.Label),
		Confidence: intent.Confidence,
		Degraded:   pr.outcome.Degraded,
		ToolCalls:  calls,
		Metadata:   meta,
	}
	return pr
}

// record appends both sides of the exchange to the conversation and emits the
// processed event. Failures here never fail the request.
func (s *assistantService) record(ctx context.Context, in ProcessInput, r *models.Restaurant, res *ProcessResult, outcome agent.Outcome, handoff bool) {
	now := s.Now().UTC()
	userMeta := map[string]string{"request_id": in.RequestID}
	if obj, ok := res.Metadata["audio_object"].(string); ok {
		userMeta["audio_object"] = obj
	}
	msgs := []models.Message{
		{Role: "user", Channel: in.Channel, ThreadID: in.ThreadID, SenderID: in.SenderID, Text: in.Message, Timestamp: now, Meta: userMeta},
		{Role: "assistant", Channel: in.Channel, ThreadID: in.ThreadID, Text: res.Reply, Timestamp: now, Meta: map[string]string{
			"intent":   res.Intent,
			"cached":   boolString(res.Cached),
			"degraded": boolString(res.Degraded),
		}},
	}

	conv := &models.Conversation{RestaurantID: r.ID, Channel: in.Channel, ThreadID: in.ThreadID}
	if in.CustomerID != "" {
		id := in.CustomerID
		conv.CustomerID = &id
	}
	if err := s.Conversations.Append(ctx, conv, msgs); err != nil {
		s.Logger.WithError(err).WithField("request_id", in.RequestID).Error("failed to append conversation")
	}

	if s.Events == nil {
		return
	}
	ev := events.MessageProcessed{
		RequestID:    in.RequestID,
		RestaurantID: r.ID,
		Channel:      string(in.Channel),
		ThreadID:     in.ThreadID,
		Intent:       res.Intent,
		Cached:       res.Cached,
		Degraded:     res.Degraded,
		Handoff:      handoff,
		Turns:        outcome.Turns,
		At:           now,
	}
	for _, c := range outcome.Calls {
		rec := events.ToolCallRecord{
			Turn:       c.Turn,
			Name:       c.Name,
			Args:       c.Args,
			Result:     c.Result.Payload(),
			OK:         c.Result.OK,
			DurationMS: c.Duration.Milliseconds(),
		}
		if c.Result.Error != nil {
			rec.ErrorCode = c.Result.Error.Code
		}
		ev.ToolCalls = append(ev.ToolCalls, rec)
	}
	err := s.Events.PublishMessageProcessed(ctx, ev)
	s.Metrics.EventPublished(err == nil)
	if err != nil {
		s.Logger.WithError(err).WithField("request_id", in.RequestID).Warn("failed to publish event")
	}
}

func mergeMeta(dst, src map[string]any) map[string]any {
	out := make(map[string]any, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		out[k] = v
	}
	return out
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
