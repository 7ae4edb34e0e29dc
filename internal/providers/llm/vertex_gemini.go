package llm

import (
	"context"
	"errors"
	"strings"

	vertexgenai "cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/option"
)

type VertexGemini struct {
	client    *vertexgenai.Client
	modelName string
}

// NewVertexGemini connects to Vertex AI. credentialsFile may be empty to use
// application default credentials.
func NewVertexGemini(ctx context.Context, projectID, location, modelName, credentialsFile string) (*VertexGemini, error) {
	if projectID == "" {
		return nil, errors.New("vertex: project id is required")
	}
	if location == "" {
		location = "us-central1"
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	c, err := vertexgenai.NewClient(ctx, projectID, location, opts...)
	if err != nil {
		return nil, err
	}
	return &VertexGemini{client: c, modelName: modelName}, nil
}

func (v *VertexGemini) Close() error { return v.client.Close() }

// model returns a fresh GenerativeModel; models carry per-call config so
// they are not shared between requests.
func (v *VertexGemini) model(system string, temperature float32, maxTokens int32) *vertexgenai.GenerativeModel {
	m := v.client.GenerativeModel(v.modelName)
	m.SetTemperature(temperature)
	if maxTokens > 0 {
		m.SetMaxOutputTokens(maxTokens)
	}
	if system != "" {
		m.SystemInstruction = &vertexgenai.Content{Parts: []vertexgenai.Part{vertexgenai.Text(system)}}
	}
	return m
}

func (v *VertexGemini) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	m := v.model(req.System, req.Temperature, req.MaxTokens)
	if req.JSON {
		m.ResponseMIMEType = "application/json"
	}

	resp, err := m.GenerateContent(ctx, vertexgenai.Text(req.Prompt))
	if err != nil {
		return "", err
	}
	text, _ := firstCandidate(resp)
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func (v *VertexGemini) Next(ctx context.Context, t *Transcript) (Decision, error) {
	if len(t.Turns) == 0 {
		return Decision{}, errors.New("vertex: empty transcript")
	}

	m := v.model(t.System, t.Temperature, t.MaxTokens)
	if len(t.Tools) > 0 {
		decls := make([]*vertexgenai.FunctionDeclaration, 0, len(t.Tools))
		for _, tool := range t.Tools {
			decls = append(decls, &vertexgenai.FunctionDeclaration{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  toGenaiSchema(tool.Parameters),
			})
		}
		m.Tools = []*vertexgenai.Tool{{FunctionDeclarations: decls}}
	}

	contents := make([]*vertexgenai.Content, 0, len(t.Turns))
	for _, turn := range t.Turns {
		contents = append(contents, toContent(turn))
	}

	cs := m.StartChat()
	cs.History = contents[:len(contents)-1]
	resp, err := cs.SendMessage(ctx, contents[len(contents)-1].Parts...)
	if err != nil {
		return Decision{}, err
	}

	text, call := firstCandidate(resp)
	if call != nil {
		return Decision{Call: call}, nil
	}
	if strings.TrimSpace(text) == "" {
		return Decision{}, ErrEmptyResponse
	}
	return Decision{Final: text}, nil
}

func toContent(turn Turn) *vertexgenai.Content {
	switch {
	case turn.Call != nil:
		return &vertexgenai.Content{
			Role:  "model",
			Parts: []vertexgenai.Part{vertexgenai.FunctionCall{Name: turn.Call.Name, Args: turn.Call.Args}},
		}
	case turn.Result != nil:
		// function responses travel on the user side of the chat
		return &vertexgenai.Content{
			Role:  "user",
			Parts: []vertexgenai.Part{vertexgenai.FunctionResponse{Name: turn.Result.Name, Response: turn.Result.Payload}},
		}
	case turn.Role == RoleModel:
		return &vertexgenai.Content{Role: "model", Parts: []vertexgenai.Part{vertexgenai.Text(turn.Text)}}
	default:
		return &vertexgenai.Content{Role: "user", Parts: []vertexgenai.Part{vertexgenai.Text(turn.Text)}}
	}
}

func firstCandidate(resp *vertexgenai.GenerateContentResponse) (string, *FunctionCall) {
	if resp == nil {
		return "", nil
	}
	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			switch p := part.(type) {
			case vertexgenai.FunctionCall:
				return "", &FunctionCall{Name: p.Name, Args: p.Args}
			case vertexgenai.Text:
				sb.WriteString(string(p))
			}
		}
		break
	}
	return sb.String(), nil
}

func toGenaiSchema(s *Schema) *vertexgenai.Schema {
	if s == nil {
		return nil
	}
	out := &vertexgenai.Schema{
		Type:        genaiType(s.Type),
		Description: s.Description,
		Enum:        s.Enum,
		Required:    s.Required,
		Items:       toGenaiSchema(s.Items),
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*vertexgenai.Schema, len(s.Properties))
		for k, p := range s.Properties {
			out.Properties[k] = toGenaiSchema(p)
		}
	}
	return out
}

func genaiType(t string) vertexgenai.Type {
	switch t {
	case "object":
		return vertexgenai.TypeObject
	case "integer":
		return vertexgenai.TypeInteger
	case "number":
		return vertexgenai.TypeNumber
	case "boolean":
		return vertexgenai.TypeBoolean
	case "array":
		return vertexgenai.TypeArray
	default:
		return vertexgenai.TypeString
	}
}
