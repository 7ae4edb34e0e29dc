package responses

import (
	"regexp"
	"strings"

	"github.com/yoockh/dinedesk/internal/models"
)

const ellipsis = "…"

// FormatOptions carries the per-restaurant bits channel formatting needs.
type FormatOptions struct {
	MaxChars       int // sms/whatsapp limit; 0 means models default
	RestaurantName string
	CustomerName   string
}

func OptionsFor(r *models.Restaurant, customerName string) FormatOptions {
	if r == nil {
		return FormatOptions{CustomerName: customerName}
	}
	return FormatOptions{
		MaxChars:       r.Config().SMSMaxChars,
		RestaurantName: r.Name,
		CustomerName:   customerName,
	}
}

// Format adapts reply text to the channel it is sent on.
func Format(ch models.Channel, text string, opts FormatOptions) string {
	text = strings.TrimSpace(text)
	max := opts.MaxChars
	if max <= 0 {
		max = models.RestaurantSettings{}.WithDefaults().SMSMaxChars
	}

	switch ch {
	case models.ChannelSMS:
		return Truncate(collapseSpace(StripMarkdown(text)), max)
	case models.ChannelWhatsApp:
		return Truncate(text, max)
	case models.ChannelPhone:
		return collapseSpace(StripMarkdown(text))
	case models.ChannelEmail:
		return emailBody(text, opts)
	default:
		return text
	}
}

func emailBody(text string, opts FormatOptions) string {
	var b strings.Builder
	if name := strings.TrimSpace(opts.CustomerName); name != "" {
		b.WriteString("Hello " + strings.Fields(name)[0] + ",\n\n")
	} else {
		b.WriteString("Hello,\n\n")
	}
	b.WriteString(text)
	b.WriteString("\n\nBest regards,\n")
	if opts.RestaurantName != "" {
		b.WriteString("The " + opts.RestaurantName + " team")
	} else {
		b.WriteString("The team")
	}
	return b.String()
}

// Truncate cuts s to at most max runes, preferring a word boundary, and
// marks the cut with an ellipsis.
func Truncate(s string, max int) string {
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	if max <= 1 {
		return ellipsis
	}
	cut := r[:max-1]
	if r[max-1] != ' ' && r[max-1] != '\n' {
		if i := lastSpace(cut); i > 0 {
			cut = cut[:i]
		}
	}
	return strings.TrimRight(string(cut), " ,.;:-") + ellipsis
}

func lastSpace(r []rune) int {
	for i := len(r) - 1; i >= 0; i-- {
		if r[i] == ' ' || r[i] == '\n' {
			return i
		}
	}
	return -1
}

var (
	mdLink    = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	mdEmph    = regexp.MustCompile(`(\*\*|__|\*|_|~~|` + "`" + `)([^\s*_~` + "`" + `][^*_~` + "`" + `]*?)(\*\*|__|\*|_|~~|` + "`" + `)`)
	mdHeading = regexp.MustCompile(`(?m)^\s{0,3}#{1,6}\s+`)
	mdBullet  = regexp.MustCompile(`(?m)^\s*(?:[-*+]|\d+\.)\s+`)
	spaces    = regexp.MustCompile(`\s+`)
)

// StripMarkdown removes common markdown so text reads cleanly as SMS or speech.
func StripMarkdown(s string) string {
	s = mdLink.ReplaceAllString(s, "$1 ($2)")
	s = mdHeading.ReplaceAllString(s, "")
	s = mdBullet.ReplaceAllString(s, "")
	for i := 0; i < 2; i++ {
		s = mdEmph.ReplaceAllString(s, "$2")
	}
	return s
}

func collapseSpace(s string) string {
	return strings.TrimSpace(spaces.ReplaceAllString(s, " "))
}
