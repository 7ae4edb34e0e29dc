package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/dinedesk/internal/cache"
	"github.com/yoockh/dinedesk/internal/providers/llm"
	"github.com/yoockh/dinedesk/internal/utils"
)

const sentimentTTL = 24 * time.Hour

type SentimentInput struct {
	Text     string         `json:"text"`
	Type     string         `json:"type"` // review|message|survey
	Metadata map[string]any `json:"metadata,omitempty"`
}

type SentimentResult struct {
	Sentiment string  `json:"sentiment"` // positive|negative|neutral|mixed
	Score     float64 `json:"score"`     // -1..1
	Fallback  bool    `json:"fallback,omitempty"`
}

type SentimentService interface {
	Analyze(ctx context.Context, in SentimentInput) (*SentimentResult, error)
}

type sentimentService struct {
	llm   llm.Provider
	cache cache.Cache
	log   *logrus.Logger
}

func NewSentimentService(p llm.Provider, c cache.Cache, log *logrus.Logger) SentimentService {
	if log == nil {
		log = logrus.New()
	}
	return &sentimentService{llm: p, cache: c, log: log}
}

func (s *sentimentService) Analyze(ctx context.Context, in SentimentInput) (*SentimentResult, error) {
	const op = "SentimentService.Analyze"

	in.Text = strings.TrimSpace(in.Text)
	if in.Text == "" {
		return nil, utils.ER(utils.CodeInvalidArgument, op, "empty_text", "text is required", nil)
	}
	if len([]rune(in.Text)) > 8000 {
		return nil, utils.ER(utils.CodeInvalidArgument, op, "text_too_long", "text exceeds 8000 characters", nil)
	}
	if in.Type == "" {
		in.Type = "message"
	}

	key := "sentiment:" + cache.Fingerprint(in.Text, in.Type)
	if s.cache != nil {
		var hit SentimentResult
		if ok, err := s.cache.GetJSON(ctx, key, &hit); err == nil && ok {
			return &hit, nil
		}
	}

	raw, err := s.llm.Generate(ctx, llm.GenerateRequest{
		Prompt:      sentimentPrompt(in),
		JSON:        true,
		Temperature: 0,
		MaxTokens:   128,
	})
	if err != nil {
		s.log.WithError(err).Warn("sentiment analysis failed, using neutral")
		return &SentimentResult{Sentiment: "neutral", Score: 0, Fallback: true}, nil
	}

	res, err := parseSentiment(raw)
	if err != nil {
		s.log.WithError(err).Warn("malformed sentiment output, using neutral")
		return &SentimentResult{Sentiment: "neutral", Score: 0, Fallback: true}, nil
	}
	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, res, sentimentTTL); err != nil {
			s.log.WithError(err).Debug("sentiment cache write failed")
		}
	}
	return res, nil
}

func sentimentPrompt(in SentimentInput) string {
	return fmt.Sprintf(`Analyze the sentiment of this restaurant %s.

Text: %s

Respond with ONLY a JSON object:
{"sentiment": "positive" | "negative" | "neutral" | "mixed", "score": -1.0 to 1.0}`, in.Type, in.Text)
}

func parseSentiment(raw string) (*SentimentResult, error) {
	s := strings.TrimSpace(raw)
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end < start {
		return nil, errors.New("no JSON object found")
	}
	var out SentimentResult
	if err := json.Unmarshal([]byte(s[start:end+1]), &out); err != nil {
		return nil, err
	}
	out.Sentiment = strings.ToLower(strings.TrimSpace(out.Sentiment))
	switch out.Sentiment {
	case "positive", "negative", "neutral", "mixed":
	default:
		return nil, fmt.Errorf("unknown sentiment %q", out.Sentiment)
	}
	if out.Score > 1 {
		out.Score = 1
	}
	if out.Score < -1 {
		out.Score = -1
	}
	return &out, nil
}
