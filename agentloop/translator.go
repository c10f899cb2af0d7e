package agentloop

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Goal is a static objective rendered into the system message.
type Goal struct {
	Name        string `yaml:"name" json:"name" validate:"required"`
	Description string `yaml:"description" json:"description" validate:"required"`
}

// RequestMessage is one message of a ModelRequest.
type RequestMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// FunctionMetadata describes a tool to the model.
type FunctionMetadata struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  Schema `json:"parameters"`
}

// ToolMetadata wraps FunctionMetadata in the function-calling envelope.
type ToolMetadata struct {
	Type     string           `json:"type"`
	Function FunctionMetadata `json:"function"`
}

// ModelRequest is what a Completer receives. It is built fresh for every
// iteration and not modified afterwards.
type ModelRequest struct {
	Messages []RequestMessage `json:"messages"`
	Tools    []ToolMetadata   `json:"tools"`
	Metadata map[string]any   `json:"metadata,omitempty"`
}

// ParsedIntent is the model's decoded next step. An empty Tool means the
// model asked for nothing. Fallback marks intents synthesized from replies
// that were not a JSON object.
type ParsedIntent struct {
	Tool     string
	Args     map[string]any
	Raw      string
	Fallback bool
}

// Message returns the text to record when the intent ends the run.
func (p ParsedIntent) Message() string {
	if s, ok := p.Args["message"].(string); ok {
		return s
	}
	return p.Raw
}

// Translator converts between agent state and the model's wire format.
type Translator interface {
	BuildRequest(actions []*Action, goals []Goal, history []Message) ModelRequest
	ParseResponse(raw string) ParsedIntent
}

const (
	goalSeparator          = "\n-------------------\n"
	maxToolDescriptionRune = 1024
)

// FunctionCallingTranslator targets models with native tool calling: tools
// travel as function metadata and the transport reports calls as
// {"tool": ..., "args": ...} objects.
type FunctionCallingTranslator struct{}

// BuildRequest renders goals as one system message followed by history.
func (FunctionCallingTranslator) BuildRequest(actions []*Action, goals []Goal, history []Message) ModelRequest {
	return ModelRequest{
		Messages: buildMessages(formatGoals(goals), history),
		Tools:    formatTools(actions),
	}
}

// ParseResponse decodes a JSON object reply. Anything else becomes a
// terminate intent carrying the raw text.
func (FunctionCallingTranslator) ParseResponse(raw string) ParsedIntent {
	return parseIntent(raw, raw)
}

// TextProtocolTranslator targets models without native tool calling. Tool
// descriptions and the reply format are spelled out in the system message;
// metadata is still attached for transports that can use it.
type TextProtocolTranslator struct{}

// BuildRequest renders goals and a tool manual as one system message.
func (TextProtocolTranslator) BuildRequest(actions []*Action, goals []Goal, history []Message) ModelRequest {
	system := formatGoals(goals) + "\n\n" + toolManual(actions)
	return ModelRequest{
		Messages: buildMessages(system, history),
		Tools:    formatTools(actions),
	}
}

// ParseResponse accepts the JSON object bare, fenced, or embedded in prose.
func (TextProtocolTranslator) ParseResponse(raw string) ParsedIntent {
	candidate := stripCodeFences(raw)
	if !json.Valid([]byte(candidate)) {
		if start, end := strings.Index(candidate, "{"), strings.LastIndex(candidate, "}"); start >= 0 && end > start {
			candidate = candidate[start : end+1]
		}
	}
	return parseIntent(candidate, raw)
}

func parseIntent(candidate, raw string) ParsedIntent {
	var obj map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(candidate)), &obj); err == nil && obj != nil {
		args, _ := obj["args"].(map[string]any)
		if args == nil {
			args = map[string]any{}
		}
		return ParsedIntent{Tool: toolName(obj["tool"]), Args: args, Raw: raw}
	}
	return ParsedIntent{
		Tool:     TerminateToolName,
		Args:     map[string]any{"message": raw},
		Raw:      raw,
		Fallback: true,
	}
}

// toolName reads the "tool" field. A value that is present but not a string
// is kept in its JSON form so the call resolves as an unknown tool.
func toolName(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

func formatGoals(goals []Goal) string {
	parts := make([]string, len(goals))
	for i, g := range goals {
		parts[i] = g.Name + ":" + goalSeparator + g.Description + goalSeparator
	}
	return strings.Join(parts, "\n\n")
}

func buildMessages(system string, history []Message) []RequestMessage {
	msgs := make([]RequestMessage, 0, len(history)+1)
	msgs = append(msgs, RequestMessage{Role: RoleSystem, Content: system})
	for _, m := range history {
		msgs = append(msgs, RequestMessage{Role: m.Role, Content: m.Content})
	}
	return msgs
}

func formatTools(actions []*Action) []ToolMetadata {
	tools := make([]ToolMetadata, 0, len(actions))
	for _, a := range actions {
		tools = append(tools, ToolMetadata{
			Type: "function",
			Function: FunctionMetadata{
				Name:        a.Name,
				Description: truncateRunes(a.Description, maxToolDescriptionRune),
				Parameters:  a.Parameters.Clone(),
			},
		})
	}
	return tools
}

func toolManual(actions []*Action) string {
	terminal := TerminateToolName
	var b strings.Builder
	b.WriteString("# Available Tools\n")
	for _, a := range actions {
		if a.Terminal {
			terminal = a.Name
		}
		params, _ := json.Marshal(a.Parameters)
		fmt.Fprintf(&b, "\n## %s\n%s\nParameters: %s\n", a.Name, truncateRunes(a.Description, maxToolDescriptionRune), params)
	}
	fmt.Fprintf(&b, "\n# Reply Format\nReply with exactly one JSON object and nothing else:\n"+
		`{"tool": "<tool name>", "args": {<arguments>}}`+
		"\nCall %q with a \"message\" argument when the task is complete.\n", terminal)
	return b.String()
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var codeFenceRe = regexp.MustCompile("(?si)^```(?:json)?\\s*(.*?)\\s*```$")

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if m := codeFenceRe.FindStringSubmatch(s); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return s
}
