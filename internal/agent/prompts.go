package agent

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/yoockh/dinedesk/internal/models"
)

func channelStyle(ch models.Channel) string {
	switch ch {
	case models.ChannelSMS, models.ChannelWhatsApp:
		return "Keep replies under 300 characters, no markdown."
	case models.ChannelPhone:
		return "The reply will be read aloud: short sentences, no lists, no markdown, spell out times."
	case models.ChannelEmail:
		return "Write a complete, polite email body without a greeting or signature."
	default:
		return "Be concise and friendly; short lists are fine."
	}
}

func buildSystemPrompt(r *models.Restaurant, ch models.Channel, intent Intent, extra map[string]any, now time.Time) string {
	cfg := r.Config()
	local := now.In(r.Location())

	var b strings.Builder
	fmt.Fprintf(&b, "You are the customer service assistant for %s", r.Name)
	if r.Cuisine != "" {
		fmt.Fprintf(&b, ", a %s restaurant", r.Cuisine)
	}
	b.WriteString(".\n\n")

	b.WriteString("Restaurant details:\n")
	if r.Address != "" {
		fmt.Fprintf(&b, "- Address: %s\n", r.Address)
	}
	if r.Phone != "" {
		fmt.Fprintf(&b, "- Phone: %s\n", r.Phone)
	}
	fmt.Fprintf(&b, "- Hours: %s\n", r.HoursSummary())
	fmt.Fprintf(&b, "- Current local time: %s (%s)\n", local.Format("Monday 2006-01-02 15:04"), r.Location())
	if cfg.Specials != "" {
		fmt.Fprintf(&b, "- Today's specials: %s\n", cfg.Specials)
	}

	fmt.Fprintf(&b, `
You can:
1. Check availability and make reservations
2. Answer menu questions with the get_menu_info tool
3. Take takeout and delivery orders
4. Tell guests the opening hours and the walk-in wait time

Rules:
- Never invent prices, dishes or availability; use the tools.
- Before make_reservation, make sure you have name, phone, date/time and party size.
- Pass datetimes as local time like 2006-01-02T19:30.
- Parties of %d or more may need a deposit; mention it.
- If a tool returns ok=false, explain the problem or ask for the missing detail.
- Tone: %s. %s
`, cfg.LargePartyThreshold, cfg.Tone, channelStyle(ch))

	if intent.Label != "" {
		fmt.Fprintf(&b, "\nThe message was classified as %s (confidence %.2f).", intent.Label, intent.Confidence)
		if len(intent.Entities) > 0 {
			if raw, err := json.Marshal(intent.Entities); err == nil {
				fmt.Fprintf(&b, " Extracted details: %s.", raw)
			}
		}
		if intent.RequiresHuman {
			b.WriteString(" A staff member may need to follow up; say so politely.")
		}
		b.WriteString("\n")
	}
	if len(extra) > 0 {
		if raw, err := json.Marshal(extra); err == nil {
			fmt.Fprintf(&b, "\nAdditional context from the channel: %s\n", raw)
		}
	}
	return b.String()
}
