package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/dinedesk/internal/events"
	"github.com/yoockh/dinedesk/internal/models"
	mongorepo "github.com/yoockh/dinedesk/internal/repositories/mongo"
	pgrepo "github.com/yoockh/dinedesk/internal/repositories/postgres"
	"github.com/yoockh/dinedesk/internal/storage"
	"github.com/yoockh/dinedesk/internal/utils"
)

const voiceURLTTL = 15 * time.Minute

// ConversationService is the staff view of customer threads.
type ConversationService interface {
	List(ctx context.Context, restaurantID, status string, limit int) ([]models.Conversation, error)
	Get(ctx context.Context, restaurantID, id string) (*models.Conversation, error)
	Close(ctx context.Context, restaurantID, id string) error
	Reply(ctx context.Context, restaurantID, id, staffID, text string) (*models.Message, error)
	ToolHistory(ctx context.Context, restaurantID, id string, limit int64) ([]models.ToolExecution, error)
	VoiceURL(ctx context.Context, restaurantID, id, object string) (string, error)
}

type conversationService struct {
	convos   pgrepo.ConversationRepo
	tools    mongorepo.ToolExecutionRepository
	notifier events.ThreadNotifier
	signer   storage.Signer
	log      *logrus.Logger
	now      func() time.Time
}

// NewConversationService: tools, notifier and signer may be nil.
func NewConversationService(convos pgrepo.ConversationRepo, tools mongorepo.ToolExecutionRepository, notifier events.ThreadNotifier, signer storage.Signer, log *logrus.Logger) ConversationService {
	if log == nil {
		log = logrus.New()
	}
	return &conversationService{convos: convos, tools: tools, notifier: notifier, signer: signer, log: log, now: time.Now}
}

func (s *conversationService) List(ctx context.Context, restaurantID, status string, limit int) ([]models.Conversation, error) {
	const op = "ConversationService.List"

	if restaurantID == "" {
		return nil, utils.ER(utils.CodeInvalidArgument, op, "missing_restaurant_id", "restaurant_id is required", nil)
	}
	switch status {
	case "", models.ConversationActive, models.ConversationClosed:
	default:
		return nil, utils.ER(utils.CodeInvalidArgument, op, "invalid_status", "status must be active or closed", nil)
	}
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}
	rows, err := s.convos.ListByRestaurant(ctx, restaurantID, status, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list conversations", err)
	}
	return rows, nil
}

func (s *conversationService) Get(ctx context.Context, restaurantID, id string) (*models.Conversation, error) {
	const op = "ConversationService.Get"

	if restaurantID == "" || id == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "restaurant_id and id are required", nil)
	}
	row, err := s.convos.GetByID(ctx, restaurantID, id)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "conversation not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get conversation", err)
	}
	return row, nil
}

func (s *conversationService) Close(ctx context.Context, restaurantID, id string) error {
	const op = "ConversationService.Close"

	if err := s.convos.SetStatus(ctx, restaurantID, id, models.ConversationClosed); err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return utils.E(utils.CodeNotFound, op, "conversation not found", err)
		}
		return utils.E(utils.CodeInternal, op, "failed to close conversation", err)
	}
	return nil
}

// Reply appends a staff message to the thread and pushes it to any live
// chat subscriber.
func (s *conversationService) Reply(ctx context.Context, restaurantID, id, staffID, text string) (*models.Message, error) {
	const op = "ConversationService.Reply"

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, utils.ER(utils.CodeInvalidArgument, op, "empty_message", "text is required", nil)
	}
	conv, err := s.Get(ctx, restaurantID, id)
	if err != nil {
		return nil, err
	}
	if conv.Status == models.ConversationClosed {
		return nil, utils.ER(utils.CodeConflict, op, "conversation_closed", "conversation is closed", nil)
	}

	msg := models.Message{
		Role:      "staff",
		Channel:   conv.Channel,
		ThreadID:  conv.ThreadID,
		SenderID:  staffID,
		Text:      text,
		Timestamp: s.now().UTC(),
	}
	if err := s.convos.Append(ctx, conv, []models.Message{msg}); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to append reply", err)
	}

	if s.notifier != nil {
		err := s.notifier.NotifyThread(ctx, restaurantID, conv.ThreadID, events.ThreadMessage{
			Role: msg.Role, Text: msg.Text, SenderID: staffID, Timestamp: msg.Timestamp,
		})
		if err != nil {
			s.log.WithError(err).WithField("conversation_id", id).Warn("failed to notify thread")
		}
	}
	return &msg, nil
}

func (s *conversationService) ToolHistory(ctx context.Context, restaurantID, id string, limit int64) ([]models.ToolExecution, error) {
	const op = "ConversationService.ToolHistory"

	if s.tools == nil {
		return nil, utils.E(utils.CodeUnavailable, op, "tool audit log is not configured", nil)
	}
	conv, err := s.Get(ctx, restaurantID, id)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}
	rows, err := s.tools.ListByThread(ctx, restaurantID, conv.ThreadID, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list tool executions", err)
	}
	return rows, nil
}

// VoiceURL signs a link to an archived voice message of this conversation.
func (s *conversationService) VoiceURL(ctx context.Context, restaurantID, id, object string) (string, error) {
	const op = "ConversationService.VoiceURL"

	if s.signer == nil {
		return "", utils.E(utils.CodeUnavailable, op, "voice archive is not configured", nil)
	}
	conv, err := s.Get(ctx, restaurantID, id)
	if err != nil {
		return "", err
	}
	found := false
	for _, m := range conv.Messages {
		if m.Meta["audio_object"] == object {
			found = true
			break
		}
	}
	if object == "" || !found {
		return "", utils.E(utils.CodeNotFound, op, "voice message not found", nil)
	}

	url, err := s.signer.SignedGetURL(ctx, object, voiceURLTTL)
	if err != nil {
		return "", utils.E(utils.CodeInternal, op, "failed to sign voice url", err)
	}
	return url, nil
}
