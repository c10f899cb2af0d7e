package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/teilomillet/gollm"
)

// GollmAdapter wraps a gollm.LLM instance and implements ProviderAdapter.
type GollmAdapter struct {
	provider string
	llm      gollm.LLM
	model    string
}

// GollmAdapterOption configures a GollmAdapter.
type GollmAdapterOption func(*gollmAdapterConfig)

type gollmAdapterConfig struct {
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	extraOpts   []gollm.ConfigOption
}

// WithAPIKey sets the API key for the adapter.
func WithAPIKey(key string) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.apiKey = key
	}
}

// WithModel sets the default model for the adapter.
func WithModel(model string) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.model = model
	}
}

// WithMaxTokens sets the default max tokens.
func WithMaxTokens(n int) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.maxTokens = n
	}
}

// WithTemperature sets the default temperature.
func WithTemperature(t float64) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.temperature = t
	}
}

// WithGollmOptions adds extra gollm configuration options.
func WithGollmOptions(opts ...gollm.ConfigOption) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.extraOpts = append(c.extraOpts, opts...)
	}
}

// NewGollmAdapter creates a GollmAdapter for provider. An empty apiKey lets
// gollm fall back to the provider's usual environment variable.
func NewGollmAdapter(provider string, apiKey string, opts ...GollmAdapterOption) (*GollmAdapter, error) {
	cfg := &gollmAdapterConfig{
		apiKey:      apiKey,
		maxTokens:   1024,
		temperature: 0.2,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	model := cfg.model
	if model == "" {
		if info := GetLatestModel(provider, "tools"); info != nil {
			model = info.ID
		} else {
			model = "gpt-4o-mini"
		}
	}

	gollmOpts := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetModel(model),
		gollm.SetMaxTokens(cfg.maxTokens),
		gollm.SetTemperature(cfg.temperature),
		gollm.SetMaxRetries(0), // retries live in RetryMiddleware
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if cfg.apiKey != "" {
		gollmOpts = append(gollmOpts, gollm.SetAPIKey(cfg.apiKey))
	}
	gollmOpts = append(gollmOpts, cfg.extraOpts...)

	l, err := gollm.NewLLM(gollmOpts...)
	if err != nil {
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: fmt.Sprintf("create gollm client for provider %s", provider),
			Cause:   err,
		}}
	}

	return &GollmAdapter{provider: provider, llm: l, model: model}, nil
}

// Name returns the provider identifier.
func (a *GollmAdapter) Name() string {
	return a.provider
}

// Complete sends a blocking request and returns the full response.
func (a *GollmAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	prompt := a.translateRequest(req)
	a.applyRequestOptions(req)

	text, err := a.llm.Generate(ctx, prompt)
	if err != nil {
		return nil, a.translateError(err)
	}
	return a.buildResponse(req, text), nil
}

// translateRequest flattens the conversation into a gollm prompt. System
// messages become the system prompt; the remaining turns are joined in order
// with assistant turns labelled.
func (a *GollmAdapter) translateRequest(req Request) *gollm.Prompt {
	var system []string
	var turns []string

	for _, msg := range req.Messages {
		text := msg.TextContent()
		switch msg.Role {
		case RoleSystem:
			system = append(system, text)
		case RoleUser:
			turns = append(turns, text)
		case RoleAssistant:
			if text != "" {
				turns = append(turns, "[Assistant]: "+text)
			}
		case RoleTool:
			turns = append(turns, "[Tool Result]: "+text)
		}
	}

	promptText := strings.Join(turns, "\n")
	if promptText == "" {
		promptText = "Hello"
	}

	var promptOpts []gollm.PromptOption
	if len(system) > 0 {
		promptOpts = append(promptOpts, gollm.WithSystemPrompt(strings.Join(system, "\n"), gollm.CacheTypeEphemeral))
	}
	if req.MaxTokens != nil {
		promptOpts = append(promptOpts, gollm.WithMaxLength(*req.MaxTokens))
	}
	if len(req.Tools) > 0 {
		tools := make([]gollm.Tool, 0, len(req.Tools))
		for _, t := range req.Tools {
			tools = append(tools, gollm.Tool{
				Type: "function",
				Function: gollm.Function{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			})
		}
		promptOpts = append(promptOpts, gollm.WithTools(tools))
	}
	if req.ToolChoice != nil {
		promptOpts = append(promptOpts, gollm.WithToolChoice(req.ToolChoice.Mode))
	}

	return gollm.NewPrompt(promptText, promptOpts...)
}

func (a *GollmAdapter) applyRequestOptions(req Request) {
	if req.Model != "" {
		a.llm.SetOption("model", req.Model)
	}
	if req.Temperature != nil {
		a.llm.SetOption("temperature", *req.Temperature)
	}
	if req.MaxTokens != nil {
		a.llm.SetOption("max_tokens", *req.MaxTokens)
	}
}

func (a *GollmAdapter) buildResponse(req Request, text string) *Response {
	model := req.Model
	if model == "" {
		model = a.model
	}

	calls, rest := parseToolCalls(text)

	var parts []ContentPart
	if rest != "" || len(calls) == 0 {
		parts = append(parts, TextPart(rest))
	}
	for i := range calls {
		parts = append(parts, ContentPart{Kind: ContentToolCall, ToolCall: &calls[i]})
	}

	finish := FinishReason{Reason: "stop", Raw: "stop"}
	if len(calls) > 0 {
		finish = FinishReason{Reason: "tool_calls", Raw: "tool_calls"}
	}

	in := estimateTokens(req)
	out := len(text) / 4
	return &Response{
		ID:           "resp_" + uuid.New().String()[:8],
		Model:        model,
		Provider:     a.provider,
		Message:      Message{Role: RoleAssistant, Content: parts},
		FinishReason: finish,
		Usage:        Usage{InputTokens: in, OutputTokens: out, TotalTokens: in + out},
	}
}

type rawCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
	Function  *struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

func (rc rawCall) toData() (ToolCallData, bool) {
	name, args := rc.Name, rc.Arguments
	if rc.Function != nil {
		name, args = rc.Function.Name, rc.Function.Arguments
	}
	if name == "" {
		return ToolCallData{}, false
	}
	return ToolCallData{
		ID:        "call_" + uuid.New().String()[:8],
		Name:      name,
		Arguments: normalizeArguments(args),
		Type:      "function",
	}, true
}

// normalizeArguments unwraps string-encoded argument objects, which is how
// OpenAI-compatible providers deliver them.
func normalizeArguments(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return json.RawMessage(`{}`)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if json.Valid([]byte(s)) {
			return json.RawMessage(s)
		}
		return json.RawMessage(`{}`)
	}
	return raw
}

const (
	functionCallOpen  = "<function_call>"
	functionCallClose = "</function_call>"
)

// parseToolCalls extracts provider tool calls embedded in generated text.
// gollm renders native tool calls as <function_call>{...}</function_call>
// blocks; some providers return a bare {"tool_calls":[...]} object or a
// [{"name":...}] array instead. The remaining text is returned trimmed.
func parseToolCalls(text string) ([]ToolCallData, string) {
	var calls []ToolCallData

	if strings.Contains(text, functionCallOpen) {
		var rest strings.Builder
		remaining := text
		for {
			start := strings.Index(remaining, functionCallOpen)
			if start == -1 {
				rest.WriteString(remaining)
				break
			}
			end := strings.Index(remaining[start:], functionCallClose)
			if end == -1 {
				rest.WriteString(remaining)
				break
			}
			rest.WriteString(remaining[:start])
			body := remaining[start+len(functionCallOpen) : start+end]
			var rc rawCall
			if err := json.Unmarshal([]byte(strings.TrimSpace(body)), &rc); err == nil {
				if tc, ok := rc.toData(); ok {
					calls = append(calls, tc)
				}
			}
			remaining = remaining[start+end+len(functionCallClose):]
		}
		return calls, strings.TrimSpace(rest.String())
	}

	if idx := strings.Index(text, `{"tool_calls"`); idx != -1 {
		var wrapper struct {
			ToolCalls []rawCall `json:"tool_calls"`
		}
		if err := json.Unmarshal([]byte(text[idx:]), &wrapper); err == nil {
			for _, rc := range wrapper.ToolCalls {
				if tc, ok := rc.toData(); ok {
					calls = append(calls, tc)
				}
			}
			if len(calls) > 0 {
				return calls, strings.TrimSpace(text[:idx])
			}
		}
	}

	if idx := strings.Index(text, `[{"name"`); idx != -1 {
		var list []rawCall
		if err := json.Unmarshal([]byte(text[idx:]), &list); err == nil {
			for _, rc := range list {
				if tc, ok := rc.toData(); ok {
					calls = append(calls, tc)
				}
			}
			if len(calls) > 0 {
				return calls, strings.TrimSpace(text[:idx])
			}
		}
	}

	return nil, text
}

var errorClasses = []struct {
	needles []string
	status  int
}{
	{[]string{"401", "unauthorized", "invalid key", "invalid api key"}, 401},
	{[]string{"403", "forbidden"}, 403},
	{[]string{"404", "not found"}, 404},
	{[]string{"429", "rate limit"}, 429},
	{[]string{"context length", "too many tokens"}, 413},
	{[]string{"500", "502", "503", "internal server", "bad gateway", "unavailable"}, 500},
	{[]string{"timeout", "deadline exceeded"}, 408},
}

// translateError classifies a gollm error into the transport error taxonomy.
// gollm only surfaces provider failures as text, so classification keys off
// the status code or phrase in the message. The full message is kept as Body.
func (a *GollmAdapter) translateError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	lower := strings.ToLower(msg)

	if strings.Contains(lower, "content filter") || strings.Contains(lower, "safety") {
		return &ContentFilterError{ProviderError: ProviderError{
			SDKError: SDKError{Message: "content filtered", Cause: err},
			Provider: a.provider,
			Body:     msg,
		}}
	}

	for _, class := range errorClasses {
		for _, needle := range class.needles {
			if strings.Contains(lower, needle) {
				classified := ErrorFromStatusCode(class.status, "provider request failed", a.provider, msg, nil)
				attachCause(classified, err)
				return classified
			}
		}
	}

	return &ProviderError{
		SDKError:  SDKError{Message: "provider request failed", Cause: err},
		Provider:  a.provider,
		Retryable: true,
		Body:      msg,
	}
}

func attachCause(classified, cause error) {
	switch e := classified.(type) {
	case *AuthenticationError:
		e.Cause = cause
	case *AccessDeniedError:
		e.Cause = cause
	case *NotFoundError:
		e.Cause = cause
	case *RateLimitError:
		e.Cause = cause
	case *ContextLengthError:
		e.Cause = cause
	case *ServerError:
		e.Cause = cause
	case *RequestTimeoutError:
		e.Cause = cause
	}
}

// estimateTokens is a rough four-characters-per-token estimate; gollm does
// not report usage.
func estimateTokens(req Request) int {
	total := 0
	for _, msg := range req.Messages {
		total += len(msg.TextContent()) / 4
	}
	if total == 0 {
		total = 10
	}
	return total
}
