package llm

// ModelInfo describes a known model.
type ModelInfo struct {
	ID            string   `json:"id"`
	Provider      string   `json:"provider"`
	DisplayName   string   `json:"display_name"`
	ContextWindow int      `json:"context_window"`
	SupportsTools bool     `json:"supports_tools"`
	Aliases       []string `json:"aliases,omitempty"`
}

// Models is the built-in model catalog. Entries are ordered newest first
// within each provider.
var Models = []ModelInfo{
	// OpenAI
	{ID: "gpt-4o", Provider: "openai", DisplayName: "GPT-4o", ContextWindow: 128000, SupportsTools: true, Aliases: []string{"4o"}},
	{ID: "gpt-4o-mini", Provider: "openai", DisplayName: "GPT-4o Mini", ContextWindow: 128000, SupportsTools: true, Aliases: []string{"4o-mini"}},

	// Anthropic
	{ID: "claude-sonnet-4-5", Provider: "anthropic", DisplayName: "Claude Sonnet 4.5", ContextWindow: 200000, SupportsTools: true, Aliases: []string{"sonnet"}},
	{ID: "claude-haiku-4-5", Provider: "anthropic", DisplayName: "Claude Haiku 4.5", ContextWindow: 200000, SupportsTools: true, Aliases: []string{"haiku"}},

	// OpenRouter routes to upstream models by vendor-prefixed id.
	{ID: "openai/gpt-4o", Provider: "openrouter", DisplayName: "GPT-4o via OpenRouter", ContextWindow: 128000, SupportsTools: true},
	{ID: "meta-llama/llama-3.1-8b-instruct", Provider: "openrouter", DisplayName: "Llama 3.1 8B via OpenRouter", ContextWindow: 131072, SupportsTools: false},

	// Ollama serves local models; most lack native tool calling.
	{ID: "llama3.1", Provider: "ollama", DisplayName: "Llama 3.1 (local)", ContextWindow: 131072, SupportsTools: false},
}

// GetModelInfo returns the catalog entry for a model id or alias, or nil.
func GetModelInfo(modelID string) *ModelInfo {
	for i := range Models {
		if Models[i].ID == modelID {
			return &Models[i]
		}
		for _, alias := range Models[i].Aliases {
			if alias == modelID {
				return &Models[i]
			}
		}
	}
	return nil
}

// ListModels returns all known models, optionally filtered by provider.
func ListModels(provider string) []ModelInfo {
	if provider == "" {
		result := make([]ModelInfo, len(Models))
		copy(result, Models)
		return result
	}
	var result []ModelInfo
	for _, m := range Models {
		if m.Provider == provider {
			result = append(result, m)
		}
	}
	return result
}

// GetLatestModel returns the first model for a provider, optionally
// restricted to those with native tool calling when capability is "tools".
func GetLatestModel(provider string, capability string) *ModelInfo {
	for i := range Models {
		if Models[i].Provider != provider {
			continue
		}
		if capability == "tools" && !Models[i].SupportsTools {
			continue
		}
		return &Models[i]
	}
	return nil
}

// SupportsNativeTools reports whether a model is known to accept function
// definitions. Unknown models are assumed to.
func SupportsNativeTools(modelID string) bool {
	if info := GetModelInfo(modelID); info != nil {
		return info.SupportsTools
	}
	return true
}
