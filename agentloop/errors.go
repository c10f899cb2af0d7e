package agentloop

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is. Every typed error below unwraps to one of them.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrValidation    = errors.New("validation error")
	ErrUnknownTool   = errors.New("unknown tool")
	ErrTransport     = errors.New("transport error")
	ErrTypeContract  = errors.New("type contract violation")
)

// ConfigurationError reports a setup fault, such as a missing terminal action.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string { return "configuration: " + e.Message }
func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// ValidationError reports arguments that do not satisfy an action's schema.
// It never escapes the sandbox; it is folded into an ExecutionRecord.
type ValidationError struct {
	Action  string
	Missing []string
	Detail  string
}

func (e *ValidationError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("Missing required parameters: %v", e.Missing)
	}
	return "Invalid parameters: " + e.Detail
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// UnknownToolError reports a model request for a tool the registry lacks.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("Requested tool '%s' not found in registry.", e.Name)
}

func (e *UnknownToolError) Unwrap() error { return ErrUnknownTool }

// TransportError wraps a failed model call. The loop stops on it.
type TransportError struct {
	Cause error
}

func (e *TransportError) Error() string { return "LLM call failed: " + e.Cause.Error() }

func (e *TransportError) Unwrap() []error { return []error{ErrTransport, e.Cause} }

// TypeContractError reports a message that does not fit the conversation's
// role/content contract.
type TypeContractError struct {
	Field  string
	Reason string
}

func (e *TypeContractError) Error() string {
	return fmt.Sprintf("invalid message %s: %s", e.Field, e.Reason)
}

func (e *TypeContractError) Unwrap() error { return ErrTypeContract }
