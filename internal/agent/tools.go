package agent

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yoockh/dinedesk/internal/models"
	"github.com/yoockh/dinedesk/internal/providers/llm"
	"github.com/yoockh/dinedesk/internal/utils"
	"golang.org/x/crypto/blake2b"
)

const (
	ErrCodeInvalidArguments = "invalid_arguments"
	ErrCodeUnknownTool      = "unknown_tool"
	ErrCodeNoAvailability   = "no_availability"
	ErrCodeClosed           = "closed"
	ErrCodeUnknownItem      = "unknown_item"
	ErrCodeInternal         = "internal"
)

const orderBucket = 10 * time.Minute

// ReservationStore is the slice of the reservation repository the tools use.
type ReservationStore interface {
	CreateIdempotent(ctx context.Context, res *models.Reservation) (*models.Reservation, bool, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*models.Reservation, error)
	BookedCovers(ctx context.Context, restaurantID string, from, to time.Time) (int, error)
}

type MenuStore interface {
	Search(ctx context.Context, restaurantID string, terms []string, limit int) ([]models.MenuItem, error)
	FindByNames(ctx context.Context, restaurantID string, names []string) ([]models.MenuItem, error)
}

type OrderStore interface {
	CreateIdempotent(ctx context.Context, o *models.Order) (*models.Order, bool, error)
}

type ToolError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ToolError) Error() string { return e.Code + ": " + e.Message }

func invalidArgs(msg string) *ToolError {
	return &ToolError{Code: ErrCodeInvalidArguments, Message: msg}
}

// ToolResult is the outcome of one tool invocation. Value holds one of the
// *Result types below when OK is true.
type ToolResult struct {
	Tool  ToolName   `json:"tool"`
	OK    bool       `json:"ok"`
	Value any        `json:"value,omitempty"`
	Error *ToolError `json:"error,omitempty"`

	// Cause keeps the underlying store error for logs; never shown to the model.
	Cause error `json:"-"`
}

func (r ToolResult) IsWrite() bool {
	return r.Tool == ToolMakeReservation || r.Tool == ToolProcessOrder
}

// Payload is the result as the reasoner sees it.
func (r ToolResult) Payload() map[string]any {
	if !r.OK {
		e := r.Error
		if e == nil {
			e = &ToolError{Code: ErrCodeInternal, Message: "tool failed"}
		}
		return map[string]any{
			"ok":    false,
			"error": map[string]any{"code": e.Code, "message": e.Message},
		}
	}
	out := map[string]any{"ok": true}
	b, err := json.Marshal(r.Value)
	if err != nil {
		return out
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		out["result"] = string(b)
		return out
	}
	for k, v := range m {
		out[k] = v
	}
	return out
}

type SlotOption struct {
	Time  time.Time `json:"time"`
	Label string    `json:"label"`
}

type AvailabilityResult struct {
	Requested       time.Time    `json:"requested"`
	PartySize       int          `json:"party_size"`
	RequestedOpen   bool         `json:"requested_available"`
	Slots           []SlotOption `json:"slots"`
	DepositRequired bool         `json:"deposit_required,omitempty"`
}

type ReservationResult struct {
	ConfirmationCode string                   `json:"confirmation_code"`
	Name             string                   `json:"name"`
	PartySize        int                      `json:"party_size"`
	ReservedAt       time.Time                `json:"reserved_at"`
	Status           models.ReservationStatus `json:"status"`
	SpecialRequests  string                   `json:"special_requests,omitempty"`
	DepositRequired  bool                     `json:"deposit_required,omitempty"`
	Duplicate        bool                     `json:"duplicate,omitempty"`
}

type MenuEntry struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Category    string   `json:"category,omitempty"`
	Price       float64  `json:"price"`
	Tags        []string `json:"tags,omitempty"`
}

type MenuResult struct {
	Query string      `json:"query"`
	Items []MenuEntry `json:"items"`
}

type OrderResult struct {
	OrderCode   string             `json:"order_code"`
	OrderType   string             `json:"order_type"`
	Items       []models.OrderItem `json:"items"`
	Total       float64            `json:"total"`
	PrepMinutes int                `json:"prep_minutes"`
	ReadyAt     time.Time          `json:"ready_at"`
	Status      models.OrderStatus `json:"status"`
	Duplicate   bool               `json:"duplicate,omitempty"`
}

type HoursResult struct {
	Day     string `json:"day"`
	Date    string `json:"date"`
	Closed  bool   `json:"closed"`
	Open    string `json:"open,omitempty"`
	Close   string `json:"close,omitempty"`
	OpenNow bool   `json:"open_now"`
	Summary string `json:"summary"`
}

type WaitTimeResult struct {
	PartySize int `json:"party_size"`
	Minutes   int `json:"minutes"`
	FreeSeats int `json:"free_seats"`
}

// Registry validates and executes the closed set of agent tools.
type Registry struct {
	reservations ReservationStore
	menu         MenuStore
	orders       OrderStore
}

func NewRegistry(reservations ReservationStore, menu MenuStore, orders OrderStore) *Registry {
	return &Registry{reservations: reservations, menu: menu, orders: orders}
}

// Decode turns a model function call into validated arguments.
func (r *Registry) Decode(tc *ToolContext, call llm.FunctionCall) (ToolArgs, *ToolError) {
	var args ToolArgs
	switch ToolName(call.Name) {
	case ToolCheckAvailability:
		args = &CheckAvailabilityArgs{}
	case ToolMakeReservation:
		args = &MakeReservationArgs{}
	case ToolGetMenuInfo:
		args = &GetMenuInfoArgs{}
	case ToolProcessOrder:
		args = &ProcessOrderArgs{}
	case ToolCheckHours:
		args = &CheckHoursArgs{}
	case ToolGetWaitTime:
		args = &GetWaitTimeArgs{}
	default:
		return nil, &ToolError{Code: ErrCodeUnknownTool, Message: fmt.Sprintf("no tool named %q", call.Name)}
	}

	raw, err := json.Marshal(call.Args)
	if err != nil {
		return nil, invalidArgs("arguments are not valid JSON")
	}
	if err := json.Unmarshal(raw, args); err != nil {
		return nil, invalidArgs(describeDecodeError(err))
	}
	if terr := args.validate(tc); terr != nil {
		return nil, terr
	}
	return args, nil
}

func (r *Registry) Execute(ctx context.Context, tc *ToolContext, call llm.FunctionCall) ToolResult {
	args, terr := r.Decode(tc, call)
	if terr != nil {
		return ToolResult{Tool: ToolName(call.Name), Error: terr}
	}

	var (
		val   any
		cause error
	)
	switch a := args.(type) {
	case *CheckAvailabilityArgs:
		val, terr, cause = r.checkAvailability(ctx, tc, a)
	case *MakeReservationArgs:
		val, terr, cause = r.makeReservation(ctx, tc, a)
	case *GetMenuInfoArgs:
		val, terr, cause = r.getMenuInfo(ctx, tc, a)
	case *ProcessOrderArgs:
		val, terr, cause = r.processOrder(ctx, tc, a)
	case *CheckHoursArgs:
		val, terr = checkHours(tc, a), nil
	case *GetWaitTimeArgs:
		val, terr, cause = r.getWaitTime(ctx, tc, a)
	}
	if terr != nil {
		return ToolResult{Tool: args.Tool(), Error: terr, Cause: cause}
	}
	return ToolResult{Tool: args.Tool(), OK: true, Value: val}
}

func internalErr(err error) (*ToolError, error) {
	return &ToolError{Code: ErrCodeInternal, Message: "the booking system is temporarily unavailable"}, err
}

// slotFits reports whether party more covers fit at t given reservations that
// overlap its dining window.
func (r *Registry) slotFits(ctx context.Context, tc *ToolContext, t time.Time, party int) (bool, error) {
	cfg := tc.Restaurant.Config()
	if !tc.Restaurant.IsOpenAt(t) || !t.After(tc.Now) {
		return false, nil
	}
	dining := time.Duration(cfg.DiningMinutes) * time.Minute
	booked, err := r.reservations.BookedCovers(ctx, tc.Restaurant.ID, t.Add(-dining), t.Add(dining))
	if err != nil {
		return false, err
	}
	return booked+party <= cfg.Capacity, nil
}

func candidateSlots(at time.Time, slotMinutes int) []time.Time {
	step := time.Duration(slotMinutes) * time.Minute
	return []time.Time{at, at.Add(-step), at.Add(step)}
}

func (r *Registry) checkAvailability(ctx context.Context, tc *ToolContext, a *CheckAvailabilityArgs) (any, *ToolError, error) {
	cfg := tc.Restaurant.Config()
	if a.PartySize > cfg.Capacity {
		return nil, &ToolError{Code: ErrCodeNoAvailability, Message: fmt.Sprintf("party of %d exceeds our seating capacity", a.PartySize)}, nil
	}

	res := AvailabilityResult{
		Requested:       a.at,
		PartySize:       a.PartySize,
		DepositRequired: a.PartySize >= cfg.LargePartyThreshold,
	}
	anyOpen := false
	for i, t := range candidateSlots(a.at, cfg.SlotMinutes) {
		if !tc.Restaurant.IsOpenAt(t) {
			continue
		}
		anyOpen = true
		ok, err := r.slotFits(ctx, tc, t, a.PartySize)
		if err != nil {
			terr, cause := internalErr(err)
			return nil, terr, cause
		}
		if !ok {
			continue
		}
		if i == 0 {
			res.RequestedOpen = true
		}
		res.Slots = append(res.Slots, SlotOption{Time: t, Label: t.Format("3:04 PM")})
	}

	if !anyOpen {
		return nil, &ToolError{Code: ErrCodeClosed, Message: "the restaurant is closed at " + closedDetail(tc, a.at)}, nil
	}
	if len(res.Slots) == 0 {
		return nil, &ToolError{Code: ErrCodeNoAvailability, Message: fmt.Sprintf("no tables for %d around %s; suggest a different time", a.PartySize, a.at.Format("3:04 PM"))}, nil
	}
	sort.Slice(res.Slots, func(i, j int) bool { return res.Slots[i].Time.Before(res.Slots[j].Time) })
	return res, nil, nil
}

func closedDetail(tc *ToolContext, at time.Time) string {
	return at.Format("Mon Jan 2 3:04 PM") + " (" + tc.Restaurant.DayHoursText(at.Weekday()) + ")"
}

func (r *Registry) makeReservation(ctx context.Context, tc *ToolContext, a *MakeReservationArgs) (any, *ToolError, error) {
	cfg := tc.Restaurant.Config()
	key := idempotencyKey("reservation", tc.Restaurant.ID, digitsOnly(a.Phone),
		a.at.UTC().Format(time.RFC3339), strconv.Itoa(a.PartySize))

	existing, err := r.reservations.GetByIdempotencyKey(ctx, key)
	switch {
	case err == nil:
		out := reservationResult(existing, tc.Restaurant.Location(), cfg)
		out.Duplicate = true
		return out, nil, nil
	case !errors.Is(err, utils.ErrNotFound):
		terr, cause := internalErr(err)
		return nil, terr, cause
	}

	if !tc.Restaurant.IsOpenAt(a.at) {
		return nil, &ToolError{Code: ErrCodeClosed, Message: "the restaurant is closed at " + closedDetail(tc, a.at)}, nil
	}
	ok, err := r.slotFits(ctx, tc, a.at, a.PartySize)
	if err != nil {
		terr, cause := internalErr(err)
		return nil, terr, cause
	}
	if !ok {
		return nil, &ToolError{Code: ErrCodeNoAvailability, Message: "that time was just taken; check availability for alternatives"}, nil
	}

	status := models.ReservationConfirmed
	if a.PartySize >= cfg.LargePartyThreshold {
		status = models.ReservationPending
	}
	row := &models.Reservation{
		ID:               uuid.NewString(),
		RestaurantID:     tc.Restaurant.ID,
		CustomerID:       tc.CustomerID,
		ConfirmationCode: newCode("RES"),
		CustomerName:     a.Name,
		Phone:            a.Phone,
		ReservedAt:       a.at.UTC(),
		PartySize:        a.PartySize,
		SpecialRequests:  strings.TrimSpace(a.SpecialRequests),
		Status:           status,
		IdempotencyKey:   key,
	}
	saved, created, err := r.reservations.CreateIdempotent(ctx, row)
	if err != nil {
		terr, cause := internalErr(err)
		return nil, terr, cause
	}
	out := reservationResult(saved, tc.Restaurant.Location(), cfg)
	out.Duplicate = !created
	return out, nil, nil
}

func reservationResult(r *models.Reservation, loc *time.Location, cfg models.RestaurantSettings) ReservationResult {
	return ReservationResult{
		ConfirmationCode: r.ConfirmationCode,
		Name:             r.CustomerName,
		PartySize:        r.PartySize,
		ReservedAt:       r.ReservedAt.In(loc),
		Status:           r.Status,
		SpecialRequests:  r.SpecialRequests,
		DepositRequired:  r.PartySize >= cfg.LargePartyThreshold,
	}
}

var menuStopwords = map[string]bool{
	"the": true, "and": true, "for": true, "you": true, "have": true, "any": true,
	"what": true, "with": true, "your": true, "are": true, "menu": true, "dish": true,
	"dishes": true, "options": true, "food": true, "some": true, "about": true, "does": true,
}

func menuTerms(q string) []string {
	fields := strings.FieldsFunc(strings.ToLower(q), func(r rune) bool {
		return !(r == '-' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r > 127)
	})
	seen := map[string]bool{}
	var out []string
	for _, f := range fields {
		if len([]rune(f)) < 3 || menuStopwords[f] || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
		if len(out) == 6 {
			break
		}
	}
	return out
}

func (r *Registry) getMenuInfo(ctx context.Context, tc *ToolContext, a *GetMenuInfoArgs) (any, *ToolError, error) {
	rows, err := r.menu.Search(ctx, tc.Restaurant.ID, menuTerms(a.Query), 15)
	if err != nil {
		terr, cause := internalErr(err)
		return nil, terr, cause
	}
	res := MenuResult{Query: a.Query, Items: make([]MenuEntry, 0, len(rows))}
	for _, m := range rows {
		res.Items = append(res.Items, MenuEntry{
			Name:        m.Name,
			Description: m.Description,
			Category:    m.Category,
			Price:       m.Price,
			Tags:        []string(m.Tags),
		})
	}
	return res, nil, nil
}

func (r *Registry) processOrder(ctx context.Context, tc *ToolContext, a *ProcessOrderArgs) (any, *ToolError, error) {
	// merge repeated lines for the same dish
	qty := map[string]int{}
	var names []string
	display := map[string]string{}
	for _, it := range a.Items {
		k := strings.ToLower(it.Name)
		if _, ok := qty[k]; !ok {
			names = append(names, it.Name)
			display[k] = it.Name
		}
		qty[k] += it.Quantity
	}
	for k, q := range qty {
		if q > maxItemQuantity {
			return nil, invalidArgs(fmt.Sprintf("quantity for %s must be at most %d", display[k], maxItemQuantity)), nil
		}
	}

	rows, err := r.menu.FindByNames(ctx, tc.Restaurant.ID, names)
	if err != nil {
		terr, cause := internalErr(err)
		return nil, terr, cause
	}
	byName := make(map[string]models.MenuItem, len(rows))
	for _, m := range rows {
		byName[strings.ToLower(m.Name)] = m
	}

	var missing []string
	items := make([]models.OrderItem, 0, len(names))
	total := 0.0
	for _, n := range names {
		k := strings.ToLower(n)
		m, ok := byName[k]
		if !ok {
			missing = append(missing, n)
			continue
		}
		items = append(items, models.OrderItem{Name: m.Name, Quantity: qty[k], UnitPrice: m.Price})
		total += m.Price * float64(qty[k])
	}
	if len(missing) > 0 {
		return nil, &ToolError{Code: ErrCodeUnknownItem, Message: "not on the menu or unavailable: " + strings.Join(missing, ", ")}, nil
	}

	lines := make([]string, 0, len(items))
	for _, it := range items {
		lines = append(lines, strings.ToLower(it.Name)+"x"+strconv.Itoa(it.Quantity))
	}
	sort.Strings(lines)
	key := idempotencyKey("order", tc.Restaurant.ID, digitsOnly(a.Customer.Phone),
		strings.Join(lines, ","), strconv.FormatInt(tc.Now.Truncate(orderBucket).Unix(), 10))

	prep := 15 + 3*len(items)
	row := &models.Order{
		ID:             uuid.NewString(),
		RestaurantID:   tc.Restaurant.ID,
		CustomerID:     tc.CustomerID,
		OrderCode:      newCode("ORD"),
		OrderType:      a.OrderType,
		CustomerName:   a.Customer.Name,
		Phone:          a.Customer.Phone,
		Address:        strings.TrimSpace(a.Address),
		Items:          items,
		Total:          math.Round(total*100) / 100,
		PrepMinutes:    prep,
		Status:         models.OrderPending,
		IdempotencyKey: key,
	}
	saved, created, err := r.orders.CreateIdempotent(ctx, row)
	if err != nil {
		terr, cause := internalErr(err)
		return nil, terr, cause
	}
	placedAt := saved.CreatedAt
	if placedAt.IsZero() {
		placedAt = tc.Now
	}
	return OrderResult{
		OrderCode:   saved.OrderCode,
		OrderType:   saved.OrderType,
		Items:       saved.Items,
		Total:       saved.Total,
		PrepMinutes: saved.PrepMinutes,
		ReadyAt:     placedAt.Add(time.Duration(saved.PrepMinutes) * time.Minute).In(tc.Restaurant.Location()),
		Status:      saved.Status,
		Duplicate:   !created,
	}, nil, nil
}

func checkHours(tc *ToolContext, a *CheckHoursArgs) HoursResult {
	d := a.date.In(tc.Restaurant.Location())
	res := HoursResult{
		Day:     d.Weekday().String(),
		Date:    d.Format("2006-01-02"),
		OpenNow: tc.Restaurant.IsOpenAt(tc.Now),
		Summary: tc.Restaurant.HoursSummary(),
	}
	h, ok := tc.Restaurant.HoursOn(d.Weekday())
	if !ok {
		res.Closed = true
		return res
	}
	res.Open, res.Close = h.Open, h.Close
	return res
}

// getWaitTime estimates the walk-in wait from covers booked around now.
func (r *Registry) getWaitTime(ctx context.Context, tc *ToolContext, a *GetWaitTimeArgs) (any, *ToolError, error) {
	if !tc.Restaurant.IsOpenAt(tc.Now) {
		return nil, &ToolError{Code: ErrCodeClosed, Message: "the restaurant is closed right now (" + tc.Restaurant.DayHoursText(tc.Now.In(tc.Restaurant.Location()).Weekday()) + ")"}, nil
	}
	cfg := tc.Restaurant.Config()
	dining := time.Duration(cfg.DiningMinutes) * time.Minute
	slot := time.Duration(cfg.SlotMinutes) * time.Minute
	booked, err := r.reservations.BookedCovers(ctx, tc.Restaurant.ID, tc.Now.Add(-dining), tc.Now.Add(slot))
	if err != nil {
		terr, cause := internalErr(err)
		return nil, terr, cause
	}
	free := cfg.Capacity - booked
	if free < 0 {
		free = 0
	}
	res := WaitTimeResult{PartySize: a.PartySize, FreeSeats: free}
	if free >= a.PartySize {
		return res, nil, nil
	}
	short := float64(a.PartySize-free) / float64(cfg.Capacity)
	minutes := int(math.Ceil(short*float64(cfg.DiningMinutes)/5)) * 5
	if minutes < 10 {
		minutes = 10
	}
	if minutes > cfg.DiningMinutes {
		minutes = cfg.DiningMinutes
	}
	res.Minutes = minutes
	return res, nil, nil
}

func idempotencyKey(parts ...string) string {
	h, _ := blake2b.New(16, nil)
	for _, p := range parts {
		h.Write([]byte(strconv.Itoa(len(p))))
		h.Write([]byte{':'})
		h.Write([]byte(p))
	}
	return parts[0] + ":" + hex.EncodeToString(h.Sum(nil))
}

func newCode(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + "-" + strings.ToUpper(id[:8])
}

func describeDecodeError(err error) string {
	var te *json.UnmarshalTypeError
	if errors.As(err, &te) && te.Field != "" {
		return fmt.Sprintf("%s must be of type %s", te.Field, te.Type.String())
	}
	return "arguments do not match the tool schema"
}

// Specs describes every tool for function calling.
func (r *Registry) Specs() []llm.ToolSpec {
	str := func(desc string) *llm.Schema { return &llm.Schema{Type: "string", Description: desc} }
	integer := func(desc string) *llm.Schema { return &llm.Schema{Type: "integer", Description: desc} }
	dt := str("Local date and time, e.g. 2025-06-14T19:30")

	return []llm.ToolSpec{
		{
			Name:        string(ToolCheckAvailability),
			Description: "Check table availability at a date/time for a party size. Also returns nearby alternative slots.",
			Parameters: &llm.Schema{
				Type:       "object",
				Properties: map[string]*llm.Schema{"datetime": dt, "party_size": integer("Number of guests, 1-50")},
				Required:   []string{"datetime", "party_size"},
			},
		},
		{
			Name:        string(ToolMakeReservation),
			Description: "Book a table. Only call after the guest confirmed name, phone, time and party size.",
			Parameters: &llm.Schema{
				Type: "object",
				Properties: map[string]*llm.Schema{
					"name":             str("Guest name"),
					"phone":            str("Contact phone number"),
					"datetime":         dt,
					"party_size":       integer("Number of guests, 1-50"),
					"special_requests": str("Allergies, occasions, seating preferences"),
				},
				Required: []string{"name", "phone", "datetime", "party_size"},
			},
		},
		{
			Name:        string(ToolGetMenuInfo),
			Description: "Look up dishes, prices, ingredients and dietary tags. Empty query lists the menu.",
			Parameters: &llm.Schema{
				Type:       "object",
				Properties: map[string]*llm.Schema{"query": str("Dish name, ingredient or dietary need")},
			},
		},
		{
			Name:        string(ToolProcessOrder),
			Description: "Place a takeout or delivery order. Prices come from the menu.",
			Parameters: &llm.Schema{
				Type: "object",
				Properties: map[string]*llm.Schema{
					"order_type": {Type: "string", Enum: []string{"takeout", "delivery"}},
					"items": {
						Type: "array",
						Items: &llm.Schema{
							Type: "object",
							Properties: map[string]*llm.Schema{
								"name":     str("Menu item name"),
								"quantity": integer("1-50"),
							},
							Required: []string{"name", "quantity"},
						},
					},
					"customer": {
						Type: "object",
						Properties: map[string]*llm.Schema{
							"name":  str("Customer name"),
							"phone": str("Contact phone number"),
						},
						Required: []string{"name", "phone"},
					},
					"address": str("Delivery address, required for delivery"),
				},
				Required: []string{"order_type", "items", "customer"},
			},
		},
		{
			Name:        string(ToolCheckHours),
			Description: "Opening hours for a day.",
			Parameters: &llm.Schema{
				Type:       "object",
				Properties: map[string]*llm.Schema{"day": str("today, tomorrow, a weekday name or YYYY-MM-DD")},
			},
		},
		{
			Name:        string(ToolGetWaitTime),
			Description: "Current walk-in wait estimate.",
			Parameters: &llm.Schema{
				Type:       "object",
				Properties: map[string]*llm.Schema{"party_size": integer("Number of guests, default 2")},
			},
		},
	}
}
