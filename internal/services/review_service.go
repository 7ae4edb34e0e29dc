package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/yoockh/dinedesk/internal/models"
	pgrepo "github.com/yoockh/dinedesk/internal/repositories/postgres"
	"github.com/yoockh/dinedesk/internal/responses"
	"github.com/yoockh/dinedesk/internal/utils"
)

type ReviewDraft struct {
	ReviewID  string           `json:"review_id"`
	Template  string           `json:"template"`
	Draft     string           `json:"draft"`
	Sentiment *SentimentResult `json:"sentiment,omitempty"`
}

type ReviewService interface {
	ListUnanswered(ctx context.Context, restaurantID string, limit int) ([]models.Review, error)
	Draft(ctx context.Context, restaurantID, id string) (*ReviewDraft, error)
}

type reviewService struct {
	reviews     pgrepo.ReviewRepository
	restaurants pgrepo.RestaurantRepository
	sentiment   SentimentService
	gen         *responses.Generator
	now         func() time.Time
}

func NewReviewService(reviews pgrepo.ReviewRepository, restaurants pgrepo.RestaurantRepository, sentiment SentimentService, gen *responses.Generator) ReviewService {
	if gen == nil {
		gen = responses.MustNewGenerator()
	}
	return &reviewService{reviews: reviews, restaurants: restaurants, sentiment: sentiment, gen: gen, now: time.Now}
}

func (s *reviewService) ListUnanswered(ctx context.Context, restaurantID string, limit int) ([]models.Review, error) {
	const op = "ReviewService.ListUnanswered"

	if restaurantID == "" {
		return nil, utils.ER(utils.CodeInvalidArgument, op, "missing_restaurant_id", "restaurant_id is required", nil)
	}
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}
	rows, err := s.reviews.ListUnanswered(ctx, restaurantID, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list reviews", err)
	}
	return rows, nil
}

// Draft writes a reply for staff to approve. Ratings of 4-5 get the thank-you
// template, 1-2 the apology; a 3 is decided by the text's sentiment.
func (s *reviewService) Draft(ctx context.Context, restaurantID, id string) (*ReviewDraft, error) {
	const op = "ReviewService.Draft"

	rv, err := s.reviews.GetByID(ctx, restaurantID, id)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "review not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get review", err)
	}
	r, err := s.restaurants.GetByID(ctx, restaurantID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to load restaurant", err)
	}

	out := &ReviewDraft{ReviewID: rv.ID}
	positive := rv.Rating >= 4
	if rv.Rating == 3 && s.sentiment != nil && strings.TrimSpace(rv.Text) != "" {
		sent, err := s.sentiment.Analyze(ctx, SentimentInput{Text: rv.Text, Type: "review"})
		if err == nil {
			out.Sentiment = sent
			positive = sent.Sentiment == "positive"
		}
	}

	name := ""
	if f := strings.Fields(rv.Author); len(f) > 0 {
		name = f[0]
	}
	vars := map[string]any{"name": name}
	if positive {
		out.Template = responses.TplReviewPositive
		vars["rating"] = rv.Rating
		vars["restaurant_name"] = r.Name
	} else {
		out.Template = responses.TplReviewNegative
		vars["phone"] = r.Phone
		if topics := reviewTopics(rv.Text); len(topics) > 0 {
			vars["issues"] = strings.Join(topics, " and ")
		}
	}

	out.Draft, err = s.gen.Render(out.Template, vars)
	if err != nil {
		return nil, err
	}
	if err := s.reviews.SaveDraft(ctx, restaurantID, rv.ID, out.Draft, s.now().UTC()); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to save draft", err)
	}
	return out, nil
}

var reviewTopicWords = []struct {
	topic string
	words []string
}{
	{"the wait time", []string{"wait", "slow", "took forever", "late"}},
	{"our service", []string{"rude", "service", "waiter", "waitress", "staff", "ignored"}},
	{"the food", []string{"cold", "bland", "overcooked", "undercooked", "salty", "raw", "stale"}},
	{"our prices", []string{"expensive", "overpriced", "price"}},
	{"cleanliness", []string{"dirty", "sticky", "unclean"}},
	{"the noise level", []string{"noisy", "loud"}},
}

// reviewTopics picks at most two complaint topics mentioned in text.
func reviewTopics(text string) []string {
	lower := strings.ToLower(text)
	var out []string
	for _, t := range reviewTopicWords {
		for _, w := range t.words {
			if strings.Contains(lower, w) {
				out = append(out, t.topic)
				break
			}
		}
		if len(out) == 2 {
			break
		}
	}
	return out
}
