package agent

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/dinedesk/internal/models"
	"github.com/yoockh/dinedesk/internal/providers/llm"
)

const DefaultMaxTurns = 5

type State string

const (
	StateReceived    State = "received"
	StateClassified  State = "classified"
	StateToolLoop    State = "tool_loop"
	StateSynthesized State = "synthesized"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

const historyTurns = 10

// Renderer turns template names and tool results into customer text.
type Renderer interface {
	Render(name string, vars map[string]any) (string, error)
	FromToolResult(res ToolResult) (string, error)
}

type ToolCall struct {
	Turn     int            `json:"turn"`
	Name     string         `json:"name"`
	Args     map[string]any `json:"args,omitempty"`
	Result   ToolResult     `json:"result"`
	Duration time.Duration  `json:"duration"`
}

type RunInput struct {
	Restaurant *models.Restaurant
	CustomerID *string
	Channel    models.Channel
	Message    string
	Intent     Intent
	History    []models.Message
	// Extra is caller-supplied context (page, campaign, order code...).
	Extra map[string]any
}

type Outcome struct {
	Reply        string
	State        State
	Trace        []State
	Turns        int
	Calls        []ToolCall
	Degraded     bool
	HitTurnLimit bool
	LastWrite    *ToolResult
}

type Options struct {
	MaxTurns    int
	Temperature float32
	MaxTokens   int32
	Now         func() time.Time
}

// Agent runs the bounded reason/act loop for one customer message.
type Agent struct {
	reasoner llm.Reasoner
	tools    *Registry
	render   Renderer
	log      *logrus.Logger
	opts     Options
}

func New(reasoner llm.Reasoner, tools *Registry, render Renderer, log *logrus.Logger, opts Options) *Agent {
	if opts.MaxTurns <= 0 {
		opts.MaxTurns = DefaultMaxTurns
	}
	if opts.Temperature == 0 {
		opts.Temperature = 0.3
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 1024
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = logrus.New()
	}
	return &Agent{reasoner: reasoner, tools: tools, render: render, log: log, opts: opts}
}

// Run never returns an error; reasoner outages end in StateFailed with a
// degraded apology.
func (a *Agent) Run(ctx context.Context, in RunInput) Outcome {
	now := a.opts.Now()
	var out Outcome
	out.enter(StateReceived)
	entry := a.log.WithFields(logrus.Fields{
		"restaurant_id": in.Restaurant.ID,
		"channel":       in.Channel,
		"intent":        in.Intent.Label,
	})

	if in.Intent.Label != "" {
		out.enter(StateClassified)
	}

	t := &llm.Transcript{
		System:      buildSystemPrompt(in.Restaurant, in.Channel, in.Intent, in.Extra, now),
		Tools:       a.tools.Specs(),
		Temperature: a.opts.Temperature,
		MaxTokens:   a.opts.MaxTokens,
	}
	for _, m := range tail(in.History, historyTurns) {
		if strings.TrimSpace(m.Text) == "" {
			continue
		}
		role := llm.RoleModel
		if m.Role == "user" {
			role = llm.RoleUser
		}
		t.Add(llm.Turn{Role: role, Text: m.Text})
	}
	t.Add(llm.Turn{Role: llm.RoleUser, Text: in.Message})

	tc := &ToolContext{Restaurant: in.Restaurant, CustomerID: in.CustomerID, Now: now}
	out.enter(StateToolLoop)

	for out.Turns < a.opts.MaxTurns {
		if err := ctx.Err(); err != nil {
			entry.WithError(err).Warn("agent run cancelled")
			return a.fail(in, out)
		}
		out.Turns++

		d, err := a.reasoner.Next(ctx, t)
		if err != nil {
			entry.WithError(err).WithField("turn", out.Turns).Error("reasoner failed")
			return a.fail(in, out)
		}

		if d.IsFinal() {
			reply := strings.TrimSpace(d.Final)
			if reply == "" {
				break
			}
			out.Reply = reply
			out.enter(StateSynthesized)
			out.enter(StateDone)
			return out
		}

		t.Add(llm.Turn{Role: llm.RoleModel, Call: d.Call})
		started := time.Now()
		res := a.tools.Execute(ctx, tc, *d.Call)
		out.Calls = append(out.Calls, ToolCall{
			Turn:     out.Turns,
			Name:     d.Call.Name,
			Args:     d.Call.Args,
			Result:   res,
			Duration: time.Since(started),
		})
		if res.Cause != nil {
			entry.WithError(res.Cause).WithField("tool", d.Call.Name).Warn("tool failed")
		}
		if res.OK && res.IsWrite() {
			w := res
			out.LastWrite = &w
		}
		t.Add(llm.Turn{Role: llm.RoleTool, Result: &llm.FunctionResult{Name: d.Call.Name, Payload: res.Payload()}})
	}

	out.HitTurnLimit = out.Turns >= a.opts.MaxTurns
	entry.WithFields(logrus.Fields{"turns": out.Turns, "calls": len(out.Calls)}).Warn("agent ended without a final answer")
	return a.synthesize(in, out)
}

// synthesize builds a reply without the reasoner: the last successful write
// if there is one, else an apology.
func (a *Agent) synthesize(in RunInput, out Outcome) Outcome {
	if out.LastWrite != nil && a.render != nil {
		if reply, err := a.render.FromToolResult(*out.LastWrite); err == nil && reply != "" {
			out.Reply = reply
			out.enter(StateSynthesized)
			out.enter(StateDone)
			return out
		}
	}
	out.Reply = a.apology(in.Restaurant)
	out.Degraded = true
	out.enter(StateSynthesized)
	out.enter(StateDone)
	return out
}

func (a *Agent) fail(in RunInput, out Outcome) Outcome {
	out.enter(StateFailed)
	out.Degraded = true
	if out.LastWrite != nil && a.render != nil {
		if reply, err := a.render.FromToolResult(*out.LastWrite); err == nil && reply != "" {
			out.Reply = reply
			return out
		}
	}
	out.Reply = a.apology(in.Restaurant)
	return out
}

func (a *Agent) apology(r *models.Restaurant) string {
	if a.render != nil {
		s, err := a.render.Render("fallback_apology", map[string]any{
			"restaurant_name": r.Name,
			"phone":           r.Phone,
		})
		if err == nil && s != "" {
			return s
		}
	}
	return "I'm sorry, I'm having trouble right now. Please try again in a moment."
}

func (o *Outcome) enter(s State) {
	o.State = s
	o.Trace = append(o.Trace, s)
}

func tail(msgs []models.Message, n int) []models.Message {
	if len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}
