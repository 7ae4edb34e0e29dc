package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/yoockh/dinedesk/internal/models"
	"github.com/yoockh/dinedesk/internal/providers/llm"
	"github.com/yoockh/dinedesk/internal/utils"
	"gorm.io/datatypes"
)

// Tuesday noon UTC.
var testNow = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

func testRestaurant() *models.Restaurant {
	open := models.DayHours{Open: "11:00", Close: "22:00"}
	return &models.Restaurant{
		ID:       "11111111-1111-1111-1111-111111111111",
		Name:     "Trattoria Test",
		Cuisine:  "Italian",
		Phone:    "+1 555 0100",
		Timezone: "UTC",
		Hours: datatypes.NewJSONType(models.WeeklyHours{
			"monday":    {Closed: true},
			"tuesday":   open,
			"wednesday": open,
			"thursday":  open,
			"friday":    {Open: "11:00", Close: "01:00"},
			"saturday":  open,
			"sunday":    open,
		}),
		Settings: datatypes.NewJSONType(models.RestaurantSettings{Capacity: 20}),
	}
}

func testToolContext() *ToolContext {
	return &ToolContext{Restaurant: testRestaurant(), Now: testNow}
}

type fakeReservations struct {
	mu      sync.Mutex
	rows    []*models.Reservation
	base    int // covers booked outside rows
	err     error
	creates int
}

func (f *fakeReservations) CreateIdempotent(_ context.Context, res *models.Reservation) (*models.Reservation, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, false, f.err
	}
	for _, r := range f.rows {
		if r.IdempotencyKey == res.IdempotencyKey {
			return r, false, nil
		}
	}
	f.creates++
	cp := *res
	f.rows = append(f.rows, &cp)
	return &cp, true, nil
}

func (f *fakeReservations) GetByIdempotencyKey(_ context.Context, key string) (*models.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, r := range f.rows {
		if r.IdempotencyKey == key {
			return r, nil
		}
	}
	return nil, utils.ErrNotFound
}

func (f *fakeReservations) BookedCovers(_ context.Context, _ string, from, to time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	n := f.base
	for _, r := range f.rows {
		if r.Status != models.ReservationCancelled && r.ReservedAt.After(from) && r.ReservedAt.Before(to) {
			n += r.PartySize
		}
	}
	return n, nil
}

type fakeMenu struct {
	items []models.MenuItem
	err   error
}

func (f *fakeMenu) Search(_ context.Context, _ string, terms []string, limit int) ([]models.MenuItem, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []models.MenuItem
	for _, m := range f.items {
		if len(terms) == 0 {
			out = append(out, m)
			continue
		}
		for _, t := range terms {
			if strings.Contains(strings.ToLower(m.Name+" "+m.Description), t) {
				out = append(out, m)
				break
			}
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeMenu) FindByNames(_ context.Context, _ string, names []string) ([]models.MenuItem, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []models.MenuItem
	for _, m := range f.items {
		for _, n := range names {
			if strings.EqualFold(m.Name, n) {
				out = append(out, m)
			}
		}
	}
	return out, nil
}

func testMenu() *fakeMenu {
	return &fakeMenu{items: []models.MenuItem{
		{Name: "Margherita", Description: "tomato, mozzarella, basil", Category: "pizza", Price: 12.5, Available: true},
		{Name: "Carbonara", Description: "egg, guanciale, pecorino", Category: "pasta", Price: 15, Available: true},
		{Name: "Tiramisu", Description: "mascarpone and espresso", Category: "dessert", Price: 7.25, Available: true},
	}}
}

type fakeOrders struct {
	mu   sync.Mutex
	rows []*models.Order
}

func (f *fakeOrders) CreateIdempotent(_ context.Context, o *models.Order) (*models.Order, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.IdempotencyKey == o.IdempotencyKey {
			return r, false, nil
		}
	}
	cp := *o
	f.rows = append(f.rows, &cp)
	return &cp, true, nil
}

// scriptedReasoner replays decisions in order; once the script runs out it
// repeats the last one.
type scriptedReasoner struct {
	steps []llm.Decision
	err   error
	calls int
	seen  []*llm.Transcript
}

func (s *scriptedReasoner) Next(_ context.Context, t *llm.Transcript) (llm.Decision, error) {
	s.calls++
	cp := *t
	cp.Turns = append([]llm.Turn(nil), t.Turns...)
	s.seen = append(s.seen, &cp)
	if s.err != nil {
		return llm.Decision{}, s.err
	}
	if len(s.steps) == 0 {
		return llm.Decision{}, errors.New("empty script")
	}
	i := s.calls - 1
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	return s.steps[i], nil
}

func call(name string, args map[string]any) llm.Decision {
	return llm.Decision{Call: &llm.FunctionCall{Name: name, Args: args}}
}

func final(text string) llm.Decision {
	return llm.Decision{Final: text}
}

type fakeRenderer struct{}

func (fakeRenderer) Render(name string, vars map[string]any) (string, error) {
	if name == "fallback_apology" {
		return "sorry from " + vars["restaurant_name"].(string), nil
	}
	return "", errors.New("unknown template")
}

func (fakeRenderer) FromToolResult(res ToolResult) (string, error) {
	switch v := res.Value.(type) {
	case ReservationResult:
		return "booked " + v.ConfirmationCode, nil
	case OrderResult:
		return "ordered " + v.OrderCode, nil
	}
	return "", errors.New("no template")
}

type fakeProvider struct {
	out string
	err error
}

func (f *fakeProvider) Generate(context.Context, llm.GenerateRequest) (string, error) {
	return f.out, f.err
}

func (f *fakeProvider) Close() error { return nil }
