package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/martinemde/autodoc/agentloop"
)

const (
	TagSystem = "system"
	TagInfo   = "info"
)

// TerminatedSuffix is appended to the final message of terminate.
const TerminatedSuffix = "\n[Agent terminated]"

// SystemTools returns the terminal tool and the informational system tools.
func SystemTools(env *LocalEnvironment, now func() time.Time) []agentloop.ToolDescriptor {
	if now == nil {
		now = time.Now
	}
	return []agentloop.ToolDescriptor{
		agentloop.NewTool(agentloop.TerminateToolName,
			"Terminates the agent's execution with a final message. Call this when the task is complete.",
			func(_ context.Context, args map[string]any) (any, error) {
				msg, ok := args["message"].(string)
				if !ok {
					return nil, fmt.Errorf("message must be a string, got %T", args["message"])
				}
				return msg + TerminatedSuffix, nil
			},
			agentloop.WithParams(agentloop.Required[string]("message")),
			agentloop.WithTags(TagSystem),
			agentloop.AsTerminal()),

		agentloop.NewTool("get_current_time",
			"Return the current local time.",
			func(context.Context, map[string]any) (any, error) {
				return now().Format(agentloop.TimestampLayout), nil
			},
			agentloop.WithTags(TagSystem, TagInfo)),

		agentloop.NewTool("get_working_directory",
			"Return the project root that relative paths resolve against.",
			func(context.Context, map[string]any) (any, error) {
				return env.Root(), nil
			},
			agentloop.WithTags(TagSystem, TagInfo)),

		agentloop.NewTool("list_environment_variables",
			"Return the process environment variables. Secret values are redacted.",
			func(context.Context, map[string]any) (any, error) {
				return env.Environment(), nil
			},
			agentloop.WithTags(TagSystem, TagInfo)),
	}
}
