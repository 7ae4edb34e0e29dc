package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/yoockh/dinedesk/internal/models"
	"github.com/yoockh/dinedesk/internal/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ConversationRepo interface {
	// Append creates the thread's conversation or appends msgs to it.
	Append(ctx context.Context, c *models.Conversation, msgs []models.Message) error
	GetByThread(ctx context.Context, restaurantID string, channel models.Channel, threadID string) (*models.Conversation, error)
	GetByID(ctx context.Context, restaurantID, id string) (*models.Conversation, error)
	ListByRestaurant(ctx context.Context, restaurantID, status string, limit int) ([]models.Conversation, error)
	SetStatus(ctx context.Context, restaurantID, id, status string) error
}

type conversationRepo struct {
	db *gorm.DB
}

func NewConversationRepo(db *gorm.DB) ConversationRepo {
	return &conversationRepo{db: db}
}

func (r *conversationRepo) Append(ctx context.Context, c *models.Conversation, msgs []models.Message) error {
	now := time.Now().UTC()
	row := &models.Conversation{
		ID:           uuid.NewString(),
		RestaurantID: c.RestaurantID,
		CustomerID:   c.CustomerID,
		Channel:      c.Channel,
		ThreadID:     c.ThreadID,
		Status:       models.ConversationActive,
		Messages:     msgs,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	// a new inbound message reopens a closed thread
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "restaurant_id"}, {Name: "channel"}, {Name: "thread_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"messages":    gorm.Expr("conversations.messages || EXCLUDED.messages"),
				"customer_id": gorm.Expr("COALESCE(EXCLUDED.customer_id, conversations.customer_id)"),
				"status":      models.ConversationActive,
				"updated_at":  gorm.Expr("EXCLUDED.updated_at"),
			}),
		}).
		Create(row).Error
}

func (r *conversationRepo) GetByThread(ctx context.Context, restaurantID string, channel models.Channel, threadID string) (*models.Conversation, error) {
	var row models.Conversation
	err := r.db.WithContext(ctx).
		Where("restaurant_id = ? AND channel = ? AND thread_id = ?", restaurantID, channel, threadID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *conversationRepo) GetByID(ctx context.Context, restaurantID, id string) (*models.Conversation, error) {
	var row models.Conversation
	err := r.db.WithContext(ctx).
		Where("restaurant_id = ? AND id = ?", restaurantID, id).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *conversationRepo) ListByRestaurant(ctx context.Context, restaurantID, status string, limit int) ([]models.Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	q := r.db.WithContext(ctx).Where("restaurant_id = ?", restaurantID)
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var rows []models.Conversation
	err := q.Order("updated_at DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

func (r *conversationRepo) SetStatus(ctx context.Context, restaurantID, id, status string) error {
	res := r.db.WithContext(ctx).
		Model(&models.Conversation{}).
		Where("restaurant_id = ? AND id = ?", restaurantID, id).
		Updates(map[string]any{"status": status, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.ErrNotFound
	}
	return nil
}
