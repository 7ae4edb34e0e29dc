package responses

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/yoockh/dinedesk/internal/agent"
	"github.com/yoockh/dinedesk/internal/utils"
)

const (
	TplReservationConfirm     = "reservation_confirm"
	TplReservationUnavailable = "reservation_unavailable"
	TplMenuResponse           = "menu_response"
	TplOrderConfirmation      = "order_confirmation"
	TplReviewPositive         = "review_response_positive"
	TplReviewNegative         = "review_response_negative"
	TplFallbackApology        = "fallback_apology"
	TplHumanHandoff           = "human_handoff"
)

// Optional values are read with index so a missing key renders empty; plain
// field access marks a variable as required.
var templateSources = map[string]string{
	TplReservationConfirm: `Your table is booked, {{.name}}! Party of {{.party_size}} on {{.date}} at {{.time}}. ` +
		`Confirmation code: {{.code}}.` +
		`{{if index . "deposit_required"}} A team member will confirm shortly and a deposit may be required for your party size.{{end}}` +
		`{{with index . "special_requests"}} We've noted: {{.}}.{{end}}`,

	TplReservationUnavailable: `Sorry, we don't have a table for {{.party_size}} at {{.time}}.` +
		`{{with index . "alternatives"}} We could seat you at {{.}}.{{end}} Would another time work for you?`,

	TplMenuResponse: `{{with index . "query"}}Here's what we have for "{{.}}":{{else}}Here's our menu:{{end}}
{{range .items}}- {{.name}} ({{.price}}){{with .description}}: {{.}}{{end}}
{{else}}We couldn't find a matching dish. Would you like to see the full menu?
{{end}}`,

	TplOrderConfirmation: `Order {{.code}} confirmed: {{.items}}. Total {{.total}}. ` +
		`{{if eq (index . "order_type") "delivery"}}It should arrive in about{{else}}It will be ready for pickup in about{{end}} ` +
		`{{.prep_minutes}} minutes.`,

	TplReviewPositive: `Thank you{{with index . "name"}}, {{.}}{{end}}, for the wonderful {{or (index . "rating") "5"}}-star review! ` +
		`We're delighted you enjoyed {{or (index . "highlight") "your visit"}} and can't wait to welcome you back` +
		`{{with index . "restaurant_name"}} to {{.}}{{end}}.`,

	TplReviewNegative: `{{with index . "name"}}{{.}}, thank{{else}}Thank{{end}} you for your honest feedback, and we're sorry ` +
		`your visit fell short{{with index . "issues"}}, especially regarding {{.}}{{end}}. ` +
		`This isn't the experience we aim for. Please contact us{{with index . "phone"}} at {{.}}{{end}} so we can make it right.`,

	TplFallbackApology: `I'm sorry, I'm having trouble right now.` +
		`{{with index . "phone"}} You can reach {{or (index $ "restaurant_name") "us"}} at {{.}}, or{{else}} Please{{end}} try again in a moment.`,

	TplHumanHandoff: `Thanks for reaching out. I've passed your message to our team` +
		`{{with index . "restaurant_name"}} at {{.}}{{end}} and someone will get back to you shortly.` +
		`{{with index . "phone"}} For anything urgent, call {{.}}.{{end}}`,
}

// Generator renders named reply templates and formats them per channel.
type Generator struct {
	tpl *template.Template
}

func NewGenerator() (*Generator, error) {
	root := template.New("responses").Option("missingkey=error")
	for name, src := range templateSources {
		if _, err := root.New(name).Parse(src); err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
	}
	return &Generator{tpl: root}, nil
}

// MustNewGenerator panics if the built-in templates fail to parse.
func MustNewGenerator() *Generator {
	g, err := NewGenerator()
	if err != nil {
		panic(err)
	}
	return g
}

func TemplateNames() []string {
	out := make([]string, 0, len(templateSources))
	for n := range templateSources {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (g *Generator) Render(name string, vars map[string]any) (string, error) {
	const op = "Generator.Render"

	t := g.tpl.Lookup(name)
	if t == nil || name == "responses" {
		return "", utils.ER(utils.CodeInvalidArgument, op, "unknown_template", "unknown template: "+name, nil)
	}
	if vars == nil {
		vars = map[string]any{}
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, vars); err != nil {
		return "", utils.ER(utils.CodeInvalidArgument, op, "missing_variables", "template variables incomplete", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// FromToolResult renders the customer-facing text for a tool outcome.
func (g *Generator) FromToolResult(res agent.ToolResult) (string, error) {
	if !res.OK {
		return "", fmt.Errorf("tool %s failed", res.Tool)
	}
	switch v := res.Value.(type) {
	case agent.ReservationResult:
		return g.Render(TplReservationConfirm, ReservationVars(v))
	case agent.OrderResult:
		return g.Render(TplOrderConfirmation, OrderVars(v))
	case agent.MenuResult:
		return g.Render(TplMenuResponse, MenuVars(v))
	case agent.AvailabilityResult:
		if !v.RequestedOpen {
			return g.Render(TplReservationUnavailable, UnavailableVars(v))
		}
	}
	return "", fmt.Errorf("no template for %s", res.Tool)
}

func ReservationVars(v agent.ReservationResult) map[string]any {
	return map[string]any{
		"name":             v.Name,
		"party_size":       v.PartySize,
		"date":             v.ReservedAt.Format("Monday, January 2"),
		"time":             v.ReservedAt.Format("3:04 PM"),
		"code":             v.ConfirmationCode,
		"deposit_required": v.DepositRequired,
		"special_requests": v.SpecialRequests,
	}
}

func OrderVars(v agent.OrderResult) map[string]any {
	items := make([]string, 0, len(v.Items))
	for _, it := range v.Items {
		items = append(items, fmt.Sprintf("%d x %s", it.Quantity, it.Name))
	}
	return map[string]any{
		"code":         v.OrderCode,
		"items":        strings.Join(items, ", "),
		"total":        money(v.Total),
		"order_type":   v.OrderType,
		"prep_minutes": v.PrepMinutes,
		"ready_time":   v.ReadyAt.Format("3:04 PM"),
	}
}

func MenuVars(v agent.MenuResult) map[string]any {
	items := make([]map[string]any, 0, len(v.Items))
	for _, it := range v.Items {
		items = append(items, map[string]any{
			"name":        it.Name,
			"price":       money(it.Price),
			"description": it.Description,
		})
	}
	return map[string]any{"query": v.Query, "items": items}
}

func UnavailableVars(v agent.AvailabilityResult) map[string]any {
	alts := make([]string, 0, len(v.Slots))
	for _, s := range v.Slots {
		alts = append(alts, s.Label)
	}
	return map[string]any{
		"party_size":   v.PartySize,
		"time":         v.Requested.Format("3:04 PM"),
		"alternatives": joinOr(alts),
	}
}

// Personalize greets a known customer by name; returning guests get a
// welcome back.
func Personalize(text, name string, visits int) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return text
	}
	first := strings.Fields(name)[0]
	if strings.Contains(text, first) {
		return text
	}
	if visits > 1 {
		return fmt.Sprintf("Welcome back, %s! %s", first, text)
	}
	return fmt.Sprintf("Hi %s, %s", first, lowerFirst(text))
}

func lowerFirst(s string) string {
	if s == "" || strings.HasPrefix(s, "I ") || strings.HasPrefix(s, "I'") {
		return s
	}
	r := []rune(s)
	if len(r) > 1 && r[1] >= 'A' && r[1] <= 'Z' {
		return s
	}
	return strings.ToLower(string(r[0])) + string(r[1:])
}

func money(v float64) string { return fmt.Sprintf("$%.2f", v) }

func joinOr(xs []string) string {
	switch len(xs) {
	case 0:
		return ""
	case 1:
		return xs[0]
	}
	return strings.Join(xs[:len(xs)-1], ", ") + " or " + xs[len(xs)-1]
}
