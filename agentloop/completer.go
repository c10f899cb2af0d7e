package agentloop

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/martinemde/autodoc/llm"
)

// Completer sends a request to a language model and returns its reply as
// text. A tool call is reported as a {"tool": ..., "args": ...} object.
type Completer interface {
	Complete(ctx context.Context, req ModelRequest) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, req ModelRequest) (string, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, req ModelRequest) (string, error) {
	return f(ctx, req)
}

// ChatClient is the slice of *llm.Client the completer needs.
type ChatClient interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// LLMCompleter bridges ModelRequest onto an llm client.
type LLMCompleter struct {
	Client      ChatClient
	Model       string
	Provider    string
	MaxTokens   int
	Temperature *float64
}

// Complete translates req, calls the client, and encodes the first tool
// call of the reply. Replies without tool calls are returned as text.
func (c *LLMCompleter) Complete(ctx context.Context, req ModelRequest) (string, error) {
	resp, err := c.Client.Complete(ctx, c.toLLMRequest(req))
	if err != nil {
		return "", err
	}

	calls := resp.ToolCalls()
	if len(calls) == 0 {
		return resp.Text(), nil
	}

	call := calls[0]
	args := map[string]any{}
	if len(call.Arguments) > 0 {
		if err := json.Unmarshal(call.Arguments, &args); err != nil || args == nil {
			args = map[string]any{}
		}
	}
	encoded, err := json.Marshal(map[string]any{"tool": call.Name, "args": args})
	if err != nil {
		return "", fmt.Errorf("encode tool call: %w", err)
	}
	return string(encoded), nil
}

func (c *LLMCompleter) toLLMRequest(req ModelRequest) llm.Request {
	out := llm.Request{
		Model:       c.Model,
		Provider:    c.Provider,
		Temperature: c.Temperature,
		Messages:    make([]llm.Message, 0, len(req.Messages)),
	}
	if c.MaxTokens > 0 {
		n := c.MaxTokens
		out.MaxTokens = &n
	}
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			out.Messages = append(out.Messages, llm.SystemMessage(m.Content))
		case RoleAssistant:
			out.Messages = append(out.Messages, llm.AssistantMessage(m.Content))
		default:
			out.Messages = append(out.Messages, llm.UserMessage(m.Content))
		}
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, llm.ToolDefinition{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Parameters:  t.Function.Parameters.AsMap(),
		})
	}
	if len(out.Tools) > 0 {
		out.ToolChoice = &llm.ToolChoice{Mode: "auto"}
	}
	if len(req.Metadata) > 0 {
		out.Metadata = make(map[string]string, len(req.Metadata))
		for k, v := range req.Metadata {
			out.Metadata[k] = fmt.Sprint(v)
		}
	}
	return out
}
