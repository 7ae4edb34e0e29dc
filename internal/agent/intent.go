package agent

import "strings"

type IntentLabel string

const (
	IntentReservation    IntentLabel = "reservation"
	IntentMenuInquiry    IntentLabel = "menu_inquiry"
	IntentHoursInquiry   IntentLabel = "hours_inquiry"
	IntentOrderPlacement IntentLabel = "order_placement"
	IntentOrderStatus    IntentLabel = "order_status"
	IntentComplaint      IntentLabel = "complaint"
	IntentFeedback       IntentLabel = "feedback"
	IntentGeneral        IntentLabel = "general_inquiry"
)

// IntentLabels is the closed label set, in prompt order.
var IntentLabels = []IntentLabel{
	IntentReservation,
	IntentMenuInquiry,
	IntentHoursInquiry,
	IntentOrderPlacement,
	IntentOrderStatus,
	IntentComplaint,
	IntentFeedback,
	IntentGeneral,
}

// Intent is the classifier output for one message.
type Intent struct {
	Label         IntentLabel    `json:"label"`
	Confidence    float64        `json:"confidence"`
	Entities      map[string]any `json:"entities,omitempty"`
	RequiresHuman bool           `json:"requires_human"`
	// Fallback is set when the label was forced to general_inquiry.
	Fallback bool `json:"fallback,omitempty"`
}

// ParseIntentLabel maps loose model output ("Menu Inquiry", "order-status")
// onto the closed set.
func ParseIntentLabel(s string) (IntentLabel, bool) {
	n := strings.ToLower(strings.TrimSpace(s))
	n = strings.NewReplacer(" ", "_", "-", "_").Replace(n)
	switch n {
	case "reservation", "booking", "reservations":
		return IntentReservation, true
	case "menu_inquiry", "menu":
		return IntentMenuInquiry, true
	case "hours_inquiry", "hours":
		return IntentHoursInquiry, true
	case "order_placement", "order":
		return IntentOrderPlacement, true
	case "order_status":
		return IntentOrderStatus, true
	case "complaint":
		return IntentComplaint, true
	case "feedback", "review", "review_response":
		return IntentFeedback, true
	case "general_inquiry", "general":
		return IntentGeneral, true
	}
	return IntentGeneral, false
}
