package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/yoockh/dinedesk/internal/agent"
	"github.com/yoockh/dinedesk/internal/events"
	"github.com/yoockh/dinedesk/internal/models"
	"github.com/yoockh/dinedesk/internal/providers/llm"
	"github.com/yoockh/dinedesk/internal/utils"
	"gorm.io/datatypes"
)

const (
	testRestaurantID = "11111111-1111-1111-1111-111111111111"
	testCustomerID   = "22222222-2222-2222-2222-222222222222"
)

// Tuesday noon UTC.
var testNow = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

func testRestaurant() *models.Restaurant {
	open := models.DayHours{Open: "11:00", Close: "22:00"}
	return &models.Restaurant{
		ID:       testRestaurantID,
		Name:     "Trattoria Test",
		Phone:    "+1 555 0100",
		Timezone: "UTC",
		Hours: datatypes.NewJSONType(models.WeeklyHours{
			"monday":    {Closed: true},
			"tuesday":   open,
			"wednesday": open,
			"thursday":  open,
			"friday":    open,
			"saturday":  open,
			"sunday":    open,
		}),
		Settings: datatypes.NewJSONType(models.RestaurantSettings{Capacity: 20}),
	}
}

type fakeRestaurants struct {
	mu    sync.Mutex
	rows  map[string]*models.Restaurant
	loads int
}

func (f *fakeRestaurants) GetByID(_ context.Context, id string) (*models.Restaurant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	r, ok := f.rows[id]
	if !ok {
		return nil, utils.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

type fakeCustomers struct {
	mu     sync.Mutex
	rows   map[string]*models.Customer
	visits map[string]int
}

func (f *fakeCustomers) GetByID(_ context.Context, _, id string) (*models.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.rows[id]
	if !ok {
		return nil, utils.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCustomers) IncrementVisits(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.visits == nil {
		f.visits = map[string]int{}
	}
	f.visits[id]++
	return nil
}

type fakeConversations struct {
	mu      sync.Mutex
	rows    []*models.Conversation
	appends int
}

func (f *fakeConversations) find(rid string, ch models.Channel, thread string) *models.Conversation {
	for _, c := range f.rows {
		if c.RestaurantID == rid && c.Channel == ch && c.ThreadID == thread {
			return c
		}
	}
	return nil
}

func (f *fakeConversations) Append(_ context.Context, c *models.Conversation, msgs []models.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appends++
	row := f.find(c.RestaurantID, c.Channel, c.ThreadID)
	if row == nil {
		row = &models.Conversation{
			ID:           "conv-" + c.ThreadID,
			RestaurantID: c.RestaurantID,
			CustomerID:   c.CustomerID,
			Channel:      c.Channel,
			ThreadID:     c.ThreadID,
			Status:       models.ConversationActive,
		}
		f.rows = append(f.rows, row)
	}
	row.Messages = append(row.Messages, msgs...)
	return nil
}

func (f *fakeConversations) GetByThread(_ context.Context, rid string, ch models.Channel, thread string) (*models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c := f.find(rid, ch, thread); c != nil {
		cp := *c
		cp.Messages = append([]models.Message(nil), c.Messages...)
		return &cp, nil
	}
	return nil, utils.ErrNotFound
}

func (f *fakeConversations) GetByID(_ context.Context, rid, id string) (*models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.rows {
		if c.RestaurantID == rid && c.ID == id {
			cp := *c
			cp.Messages = append([]models.Message(nil), c.Messages...)
			return &cp, nil
		}
	}
	return nil, utils.ErrNotFound
}

func (f *fakeConversations) ListByRestaurant(_ context.Context, rid, status string, limit int) ([]models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Conversation
	for _, c := range f.rows {
		if c.RestaurantID == rid && (status == "" || c.Status == status) && len(out) < limit {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeConversations) SetStatus(_ context.Context, rid, id, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.rows {
		if c.RestaurantID == rid && c.ID == id {
			c.Status = status
			return nil
		}
	}
	return utils.ErrNotFound
}

// fakeReservations satisfies both the repository and the agent's store.
type fakeReservations struct {
	mu      sync.Mutex
	rows    []*models.Reservation
	creates int
}

func (f *fakeReservations) CreateIdempotent(_ context.Context, res *models.Reservation) (*models.Reservation, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.IdempotencyKey == res.IdempotencyKey {
			return r, false, nil
		}
	}
	f.creates++
	cp := *res
	if cp.ID == "" {
		cp.ID = "res-" + cp.ConfirmationCode
	}
	f.rows = append(f.rows, &cp)
	return &cp, true, nil
}

func (f *fakeReservations) GetByIdempotencyKey(_ context.Context, key string) (*models.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
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
	n := 0
	for _, r := range f.rows {
		if r.Status != models.ReservationCancelled && r.ReservedAt.After(from) && r.ReservedAt.Before(to) {
			n += r.PartySize
		}
	}
	return n, nil
}

func (f *fakeReservations) GetByCode(_ context.Context, _, code string) (*models.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.ConfirmationCode == code {
			cp := *r
			return &cp, nil
		}
	}
	return nil, utils.ErrNotFound
}

func (f *fakeReservations) GetByID(_ context.Context, _, id string) (*models.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.ID == id {
			cp := *r
			return &cp, nil
		}
	}
	return nil, utils.ErrNotFound
}

func (f *fakeReservations) ListBetween(_ context.Context, _ string, from, to time.Time, limit int) ([]models.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Reservation
	for _, r := range f.rows {
		if !r.ReservedAt.Before(from) && r.ReservedAt.Before(to) && len(out) < limit {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeReservations) UpdateStatus(_ context.Context, _, id string, from, to models.ReservationStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.ID == id {
			if r.Status != from {
				return utils.ErrConflict
			}
			r.Status = to
			return nil
		}
	}
	return utils.ErrNotFound
}

type fakeMenu struct{}

func (fakeMenu) Search(context.Context, string, []string, int) ([]models.MenuItem, error) {
	return []models.MenuItem{{Name: "Margherita", Price: 12.5, Available: true}}, nil
}

func (fakeMenu) FindByNames(_ context.Context, _ string, names []string) ([]models.MenuItem, error) {
	var out []models.MenuItem
	for _, n := range names {
		if strings.EqualFold(n, "margherita") {
			out = append(out, models.MenuItem{Name: "Margherita", Price: 12.5, Available: true})
		}
	}
	return out, nil
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

func (f *fakeOrders) GetByCode(_ context.Context, _, code string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.OrderCode == code {
			cp := *r
			return &cp, nil
		}
	}
	return nil, utils.ErrNotFound
}

func (f *fakeOrders) GetByID(_ context.Context, _, id string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.ID == id {
			cp := *r
			return &cp, nil
		}
	}
	return nil, utils.ErrNotFound
}

func (f *fakeOrders) ListByStatus(_ context.Context, _ string, status models.OrderStatus, limit int) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Order
	for _, r := range f.rows {
		if (status == "" || r.Status == status) && len(out) < limit {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeOrders) UpdateStatus(_ context.Context, _, id string, from, to models.OrderStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.ID == id {
			if r.Status != from {
				return utils.ErrConflict
			}
			r.Status = to
			return nil
		}
	}
	return utils.ErrNotFound
}

// fakeClassifier labels by keyword.
type fakeClassifier struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeClassifier) Classify(_ context.Context, message string, _ agent.ClassifyContext) agent.Intent {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "terrible"):
		return agent.Intent{Label: agent.IntentComplaint, Confidence: 0.95, RequiresHuman: true}
	case strings.Contains(lower, "table"):
		return agent.Intent{Label: agent.IntentReservation, Confidence: 0.9}
	default:
		return agent.Intent{Label: agent.IntentGeneral, Confidence: 0.8}
	}
}

// bookingReasoner books a table on the first turn and confirms with the
// returned code once the tool result comes back.
type bookingReasoner struct {
	mu    sync.Mutex
	calls int
	fail  bool
	gate  chan struct{} // when set, the first turn waits on it
}

func (b *bookingReasoner) Next(_ context.Context, t *llm.Transcript) (llm.Decision, error) {
	b.mu.Lock()
	b.calls++
	gate := b.gate
	b.mu.Unlock()
	if b.fail {
		return llm.Decision{}, errors.New("vertex unavailable")
	}
	last := t.Turns[len(t.Turns)-1]
	if last.Result != nil {
		if ok, _ := last.Result.Payload["ok"].(bool); !ok {
			return llm.Decision{Final: "Sorry, that did not work."}, nil
		}
		return llm.Decision{Final: "Your table is booked. Code " + last.Result.Payload["confirmation_code"].(string) + "."}, nil
	}
	if gate != nil {
		<-gate
	}
	return llm.Decision{Call: &llm.FunctionCall{Name: string(agent.ToolMakeReservation), Args: map[string]any{
		"name":       "Ada Lovelace",
		"phone":      "+1 555 123 4567",
		"datetime":   "2025-06-11T19:00",
		"party_size": 4,
	}}}, nil
}

func (b *bookingReasoner) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

type fakePublisher struct {
	mu       sync.Mutex
	events   []events.MessageProcessed
	notified []events.ThreadMessage
}

func (f *fakePublisher) PublishMessageProcessed(_ context.Context, ev events.MessageProcessed) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakePublisher) NotifyThread(_ context.Context, _, _ string, msg events.ThreadMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified = append(f.notified, msg)
	return nil
}

// brokenCache fails every call.
type brokenCache struct{}

func (brokenCache) GetJSON(context.Context, string, any) (bool, error) {
	return false, errors.New("redis: connection refused")
}

func (brokenCache) SetJSON(context.Context, string, any, time.Duration) error {
	return errors.New("redis: connection refused")
}

func (brokenCache) Del(context.Context, ...string) error { return nil }

type fakeLLM struct {
	out   string
	err   error
	calls int
}

func (f *fakeLLM) Generate(context.Context, llm.GenerateRequest) (string, error) {
	f.calls++
	return f.out, f.err
}

func (f *fakeLLM) Close() error { return nil }
