package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/yoockh/dinedesk/internal/models"
)

type ToolName string

const (
	ToolCheckAvailability ToolName = "check_availability"
	ToolMakeReservation   ToolName = "make_reservation"
	ToolGetMenuInfo       ToolName = "get_menu_info"
	ToolProcessOrder      ToolName = "process_order"
	ToolCheckHours        ToolName = "check_hours"
	ToolGetWaitTime       ToolName = "get_wait_time"
)

const (
	maxPartySize    = 50
	maxItemQuantity = 50
	maxOrderLines   = 30
)

// ToolArgs is implemented only by the argument structs in this file; the
// registry decodes model output into one of them before anything runs.
type ToolArgs interface {
	Tool() ToolName
	validate(tc *ToolContext) *ToolError
}

type CheckAvailabilityArgs struct {
	DateTime  string `json:"datetime"`
	PartySize int    `json:"party_size"`

	at time.Time
}

type MakeReservationArgs struct {
	Name            string `json:"name"`
	Phone           string `json:"phone"`
	DateTime        string `json:"datetime"`
	PartySize       int    `json:"party_size"`
	SpecialRequests string `json:"special_requests,omitempty"`

	at time.Time
}

type GetMenuInfoArgs struct {
	Query string `json:"query"`
}

type OrderLine struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

type OrderCustomer struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type ProcessOrderArgs struct {
	OrderType string        `json:"order_type"`
	Items     []OrderLine   `json:"items"`
	Customer  OrderCustomer `json:"customer"`
	Address   string        `json:"address,omitempty"`
}

type CheckHoursArgs struct {
	Day string `json:"day,omitempty"`

	date time.Time
}

type GetWaitTimeArgs struct {
	PartySize int `json:"party_size,omitempty"`
}

func (CheckAvailabilityArgs) Tool() ToolName { return ToolCheckAvailability }
func (MakeReservationArgs) Tool() ToolName   { return ToolMakeReservation }
func (GetMenuInfoArgs) Tool() ToolName       { return ToolGetMenuInfo }
func (ProcessOrderArgs) Tool() ToolName      { return ToolProcessOrder }
func (CheckHoursArgs) Tool() ToolName        { return ToolCheckHours }
func (GetWaitTimeArgs) Tool() ToolName       { return ToolGetWaitTime }

func (a *CheckAvailabilityArgs) validate(tc *ToolContext) *ToolError {
	if err := validatePartySize(a.PartySize); err != nil {
		return err
	}
	at, err := parseFutureTime(a.DateTime, tc)
	if err != nil {
		return err
	}
	a.at = at
	return nil
}

func (a *MakeReservationArgs) validate(tc *ToolContext) *ToolError {
	a.Name = strings.TrimSpace(a.Name)
	a.Phone = strings.TrimSpace(a.Phone)
	if a.Name == "" {
		return invalidArgs("name is required")
	}
	if countDigits(a.Phone) < 7 {
		return invalidArgs("phone must contain at least 7 digits")
	}
	if err := validatePartySize(a.PartySize); err != nil {
		return err
	}
	at, err := parseFutureTime(a.DateTime, tc)
	if err != nil {
		return err
	}
	a.at = at
	return nil
}

func (a *GetMenuInfoArgs) validate(*ToolContext) *ToolError {
	a.Query = strings.TrimSpace(a.Query)
	if len(a.Query) > 200 {
		return invalidArgs("query must be at most 200 characters")
	}
	return nil
}

func (a *ProcessOrderArgs) validate(*ToolContext) *ToolError {
	a.OrderType = strings.ToLower(strings.TrimSpace(a.OrderType))
	if a.OrderType == "" {
		a.OrderType = "takeout"
	}
	if a.OrderType != "takeout" && a.OrderType != "delivery" {
		return invalidArgs("order_type must be takeout or delivery")
	}
	if len(a.Items) == 0 {
		return invalidArgs("at least one item is required")
	}
	if len(a.Items) > maxOrderLines {
		return invalidArgs(fmt.Sprintf("at most %d different items per order", maxOrderLines))
	}
	for i, it := range a.Items {
		a.Items[i].Name = strings.TrimSpace(it.Name)
		if a.Items[i].Name == "" {
			return invalidArgs(fmt.Sprintf("items[%d].name is required", i))
		}
		if it.Quantity < 1 || it.Quantity > maxItemQuantity {
			return invalidArgs(fmt.Sprintf("items[%d].quantity must be between 1 and %d", i, maxItemQuantity))
		}
	}
	a.Customer.Name = strings.TrimSpace(a.Customer.Name)
	if a.Customer.Name == "" {
		return invalidArgs("customer.name is required")
	}
	if countDigits(a.Customer.Phone) < 7 {
		return invalidArgs("customer.phone must contain at least 7 digits")
	}
	if a.OrderType == "delivery" && strings.TrimSpace(a.Address) == "" {
		return invalidArgs("address is required for delivery")
	}
	return nil
}

func (a *CheckHoursArgs) validate(tc *ToolContext) *ToolError {
	now := tc.Now.In(tc.Restaurant.Location())
	day := strings.ToLower(strings.TrimSpace(a.Day))
	switch day {
	case "", "today":
		a.date = now
		return nil
	case "tomorrow":
		a.date = now.AddDate(0, 0, 1)
		return nil
	}
	for i := 0; i < 7; i++ {
		d := now.AddDate(0, 0, i)
		if strings.ToLower(d.Weekday().String()) == day {
			a.date = d
			return nil
		}
	}
	if d, err := time.ParseInLocation("2006-01-02", day, tc.Restaurant.Location()); err == nil {
		a.date = d
		return nil
	}
	return invalidArgs("day must be today, tomorrow, a weekday name or YYYY-MM-DD")
}

func (a *GetWaitTimeArgs) validate(*ToolContext) *ToolError {
	if a.PartySize == 0 {
		a.PartySize = 2
	}
	return validatePartySize(a.PartySize)
}

func validatePartySize(n int) *ToolError {
	if n < 1 {
		return invalidArgs("party_size must be a positive integer")
	}
	if n > maxPartySize {
		return invalidArgs(fmt.Sprintf("party_size must be at most %d; larger events go through the events team", maxPartySize))
	}
	return nil
}

var dateTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// parseFutureTime accepts RFC3339 or a local wall-clock time in the
// restaurant's timezone, and rejects anything not after tc.Now.
func parseFutureTime(s string, tc *ToolContext) (time.Time, *ToolError) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, invalidArgs("datetime is required")
	}
	loc := tc.Restaurant.Location()

	var (
		at  time.Time
		err error
	)
	for _, layout := range dateTimeLayouts {
		if layout == time.RFC3339 {
			at, err = time.Parse(layout, s)
		} else {
			at, err = time.ParseInLocation(layout, s, loc)
		}
		if err == nil {
			break
		}
	}
	if err != nil {
		return time.Time{}, invalidArgs("datetime must look like 2006-01-02T19:00 (restaurant local time) or RFC3339")
	}
	if !at.After(tc.Now) {
		return time.Time{}, invalidArgs("datetime must be in the future")
	}
	return at.In(loc), nil
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ToolContext carries per-invocation facts the tools need.
type ToolContext struct {
	Restaurant *models.Restaurant
	CustomerID *string
	Now        time.Time
}
