package postgres

import (
	"context"
	"strings"

	"github.com/yoockh/dinedesk/internal/models"
	"gorm.io/gorm"
)

type MenuRepository interface {
	// Search matches any term against name, description, category or tags.
	// No terms lists the whole available menu.
	Search(ctx context.Context, restaurantID string, terms []string, limit int) ([]models.MenuItem, error)
	FindByNames(ctx context.Context, restaurantID string, names []string) ([]models.MenuItem, error)
}

type menuRepo struct {
	db *gorm.DB
}

func NewMenuRepo(db *gorm.DB) MenuRepository {
	return &menuRepo{db: db}
}

func (r *menuRepo) Search(ctx context.Context, restaurantID string, terms []string, limit int) ([]models.MenuItem, error) {
	if limit <= 0 {
		limit = 20
	}

	q := r.db.WithContext(ctx).
		Where("restaurant_id = ? AND available = ?", restaurantID, true)

	if len(terms) > 0 {
		or := r.db.Session(&gorm.Session{NewDB: true})
		for i, t := range terms {
			t = strings.ToLower(strings.TrimSpace(t))
			like := "%" + t + "%"
			cond := "LOWER(name) LIKE ? OR LOWER(description) LIKE ? OR LOWER(category) LIKE ? OR ? = ANY(tags)"
			if i == 0 {
				or = or.Where(cond, like, like, like, t)
			} else {
				or = or.Or(cond, like, like, like, t)
			}
		}
		q = q.Where(or)
	}

	var rows []models.MenuItem
	err := q.Order("category ASC, name ASC").Limit(limit).Find(&rows).Error
	return rows, err
}

func (r *menuRepo) FindByNames(ctx context.Context, restaurantID string, names []string) ([]models.MenuItem, error) {
	if len(names) == 0 {
		return nil, nil
	}
	lower := make([]string, len(names))
	for i, n := range names {
		lower[i] = strings.ToLower(strings.TrimSpace(n))
	}

	var rows []models.MenuItem
	err := r.db.WithContext(ctx).
		Where("restaurant_id = ? AND available = ? AND LOWER(name) IN ?", restaurantID, true, lower).
		Find(&rows).Error
	return rows, err
}
