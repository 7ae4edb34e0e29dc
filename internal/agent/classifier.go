package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/dinedesk/internal/models"
	"github.com/yoockh/dinedesk/internal/providers/llm"
)

// DefaultConfidenceFloor is the minimum confidence for a non-general label.
const DefaultConfidenceFloor = 0.5

// Classifier maps a customer message to one IntentLabel via the LLM.
type Classifier struct {
	llm   llm.Provider
	floor float64
	log   *logrus.Logger
}

func NewClassifier(p llm.Provider, floor float64, log *logrus.Logger) *Classifier {
	if floor <= 0 || floor > 1 {
		floor = DefaultConfidenceFloor
	}
	if log == nil {
		log = logrus.New()
	}
	return &Classifier{llm: p, floor: floor, log: log}
}

type ClassifyContext struct {
	RestaurantName string
	Channel        models.Channel
	History        []models.Message
}

type classification struct {
	PrimaryIntent string         `json:"primary_intent"`
	Confidence    float64        `json:"confidence"`
	Entities      map[string]any `json:"entities"`
	RequiresHuman bool           `json:"requires_human"`
}

// Classify never fails: provider errors, malformed output, unknown labels and
// low confidence all resolve to general_inquiry.
func (c *Classifier) Classify(ctx context.Context, message string, cc ClassifyContext) Intent {
	raw, err := c.llm.Generate(ctx, llm.GenerateRequest{
		Prompt:      buildClassifyPrompt(message, cc),
		JSON:        true,
		Temperature: 0,
		MaxTokens:   256,
	})
	if err != nil {
		c.log.WithError(err).Warn("intent classification failed, using fallback")
		return Intent{Label: IntentGeneral, Fallback: true}
	}

	var out classification
	if err := parseClassification(raw, &out); err != nil {
		c.log.WithError(err).WithField("raw", truncate(raw, 200)).Warn("malformed classifier output")
		return Intent{Label: IntentGeneral, Fallback: true}
	}

	intent := Intent{
		Confidence:    out.Confidence,
		Entities:      out.Entities,
		RequiresHuman: out.RequiresHuman,
	}
	label, ok := ParseIntentLabel(out.PrimaryIntent)
	switch {
	case !ok:
		intent.Label, intent.Fallback = IntentGeneral, true
	case label != IntentGeneral && out.Confidence < c.floor:
		intent.Label, intent.Fallback = IntentGeneral, true
	default:
		intent.Label = label
	}
	return intent
}

// ClassifyBatch classifies messages one by one without conversation context.
func (c *Classifier) ClassifyBatch(ctx context.Context, messages []string) []Intent {
	out := make([]Intent, 0, len(messages))
	for _, m := range messages {
		if ctx.Err() != nil {
			out = append(out, Intent{Label: IntentGeneral, Fallback: true})
			continue
		}
		out = append(out, c.Classify(ctx, m, ClassifyContext{}))
	}
	return out
}

func buildClassifyPrompt(message string, cc ClassifyContext) string {
	labels := make([]string, len(IntentLabels))
	for i, l := range IntentLabels {
		labels[i] = string(l)
	}

	var hist strings.Builder
	for _, m := range cc.History {
		fmt.Fprintf(&hist, "%s: %s\n", m.Role, truncate(m.Text, 300))
	}
	if hist.Len() == 0 {
		hist.WriteString("(none)\n")
	}

	return fmt.Sprintf(`Classify the following restaurant customer message.

Restaurant: %s
Channel: %s
Recent conversation:
%s
Message: %s

Consider what the customer is trying to accomplish, what information they need,
whether it is urgent, and whether a human should step in.
Extract entities such as date, time, party_size, menu_items, name, phone, order_code and special_requests.

Respond with ONLY a JSON object:
{
  "primary_intent": one of [%s],
  "confidence": 0.0-1.0,
  "entities": {},
  "requires_human": true|false
}`, cc.RestaurantName, cc.Channel, hist.String(), message, strings.Join(labels, ", "))
}

func parseClassification(raw string, out *classification) error {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end < start {
		return errors.New("no JSON object found")
	}
	if err := json.Unmarshal([]byte(s[start:end+1]), out); err != nil {
		return fmt.Errorf("json: %w", err)
	}

	if out.Confidence < 0 {
		out.Confidence = 0
	}
	if out.Confidence > 1 {
		out.Confidence = 1
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
