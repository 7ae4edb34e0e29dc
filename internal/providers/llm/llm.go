package llm

import (
	"context"
	"errors"
)

var ErrEmptyResponse = errors.New("llm: empty response")

// Provider is a single-shot text generator.
type Provider interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
	Close() error
}

type GenerateRequest struct {
	System      string
	Prompt      string
	JSON        bool // ask for an application/json body
	Temperature float32
	MaxTokens   int32
}

// Reasoner drives a function-calling conversation: given the transcript so far
// it either names a tool to call or returns final text.
type Reasoner interface {
	Next(ctx context.Context, t *Transcript) (Decision, error)
}

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
	RoleTool  Role = "tool"
)

// Schema is the subset of JSON schema used to describe tool parameters.
type Schema struct {
	Type        string             `json:"type"` // object|string|integer|number|boolean|array
	Description string             `json:"description,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

type ToolSpec struct {
	Name        string
	Description string
	Parameters  *Schema
}

type FunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type FunctionResult struct {
	Name    string         `json:"name"`
	Payload map[string]any `json:"payload"`
}

// Turn is one transcript entry; exactly one of Text, Call, Result is set.
type Turn struct {
	Role   Role
	Text   string
	Call   *FunctionCall
	Result *FunctionResult
}

type Transcript struct {
	System      string
	Tools       []ToolSpec
	Turns       []Turn
	Temperature float32
	MaxTokens   int32
}

func (t *Transcript) Add(turn Turn) { t.Turns = append(t.Turns, turn) }

// Decision is either a tool call or a final answer.
type Decision struct {
	Call  *FunctionCall
	Final string
}

func (d Decision) IsFinal() bool { return d.Call == nil }
