package agentloop

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/martinemde/autodoc/llm"
)

// scriptedCompleter replays replies in order, repeating the last one, and
// records every request it receives.
type scriptedCompleter struct {
	replies  []string
	err      error
	requests []ModelRequest
}

func (s *scriptedCompleter) Complete(_ context.Context, req ModelRequest) (string, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return "", s.err
	}
	i := len(s.requests) - 1
	if i >= len(s.replies) {
		i = len(s.replies) - 1
	}
	return s.replies[i], nil
}

func newTestRegistry(t *testing.T, extra ...ToolDescriptor) (*Registry, map[string]*int) {
	t.Helper()
	counts := map[string]*int{}
	counted := func(name string, fn ToolFunc) ToolFunc {
		n := 0
		counts[name] = &n
		return func(ctx context.Context, args map[string]any) (any, error) {
			n++
			return fn(ctx, args)
		}
	}

	c := NewCatalog()
	c.MustRegister(
		NewTool("read_project_file", "Read a file.",
			counted("read_project_file", func(_ context.Context, args map[string]any) (any, error) {
				return "contents of " + args["name"].(string), nil
			}),
			WithParams(Required[string]("name")), WithTags("file_operations")),
		NewTool(TerminateToolName, "Finish.",
			counted(TerminateToolName, func(_ context.Context, args map[string]any) (any, error) {
				return args["message"].(string) + "\n[Agent terminated]", nil
			}),
			WithParams(Required[string]("message")), WithTags("system"), AsTerminal()),
	)
	for _, d := range extra {
		d.Func = counted(d.Name, d.Func)
		c.MustRegister(d)
	}
	reg := BuildRegistry(c, RegistryOptions{})
	return reg, counts
}

func newTestLoop(t *testing.T, completer Completer, reg *Registry, mutate func(*LoopConfig)) *Loop {
	t.Helper()
	cfg := LoopConfig{Completer: completer, Registry: reg, Goals: []Goal{{Name: "G", Description: "D"}}}
	if mutate != nil {
		mutate(&cfg)
	}
	loop, err := NewLoop(cfg)
	require.NoError(t, err)
	return loop
}

func TestNewLoopRequiresCollaborators(t *testing.T) {
	reg, _ := newTestRegistry(t)

	_, err := NewLoop(LoopConfig{Registry: reg})
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = NewLoop(LoopConfig{Completer: &scriptedCompleter{}})
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestLoopTerminatesInOneIteration(t *testing.T) {
	reg, counts := newTestRegistry(t)
	completer := &scriptedCompleter{replies: []string{`{"tool":"terminate","args":{"message":"README ready"}}`}}
	loop := newTestLoop(t, completer, reg, nil)
	assert.Equal(t, StateStart, loop.State())

	res, err := loop.Run(context.Background(), "Write a README.")
	require.NoError(t, err)

	assert.Equal(t, StateTerminated, res.State)
	assert.Equal(t, StateTerminated, loop.State())
	assert.Equal(t, 1, res.Iterations)
	assert.Len(t, completer.requests, 1)
	assert.False(t, res.CeilingReached)
	assert.Equal(t, "README ready", res.FinalMessage)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, []Message{
		{Role: RoleUser, Content: "Write a README."},
		{Role: RoleAssistant, Content: "README ready"},
	}, res.History)
	assert.Zero(t, *counts[TerminateToolName], "a terminate intent ends the run without invoking the tool")
}

func TestLoopTerminatesOnPlainText(t *testing.T) {
	reg, _ := newTestRegistry(t)
	loop := newTestLoop(t, &scriptedCompleter{replies: []string{"# My Project\n\nIt does things."}}, reg, nil)

	res, err := loop.Run(context.Background(), "task")
	require.NoError(t, err)
	assert.Equal(t, StateTerminated, res.State)
	assert.Equal(t, 1, res.Iterations)
	assert.Equal(t, "# My Project\n\nIt does things.", res.FinalMessage)
}

func TestLoopTerminatesOnEmptyTool(t *testing.T) {
	reg, _ := newTestRegistry(t)
	loop := newTestLoop(t, &scriptedCompleter{replies: []string{`{"args":{"message":"nothing to do"}}`}}, reg, nil)

	res, err := loop.Run(context.Background(), "task")
	require.NoError(t, err)
	assert.Equal(t, StateTerminated, res.State)
	assert.Equal(t, "nothing to do", res.FinalMessage)
}

func TestLoopTerminatesOnPlainTextWithRenamedTerminal(t *testing.T) {
	c := NewCatalog()
	c.MustRegister(NewTool("finish", "Finish.", noop, WithParams(Required[string]("message")), AsTerminal()))
	reg := BuildRegistry(c, RegistryOptions{})
	require.NoError(t, reg.RegisterTerminate())

	tests := map[string]string{
		"prose":              "All done",
		"conventional name":  `{"tool":"terminate","args":{"message":"All done"}}`,
		"catalog's terminal": `{"tool":"finish","args":{"message":"All done"}}`,
	}
	for name, reply := range tests {
		t.Run(name, func(t *testing.T) {
			completer := &scriptedCompleter{replies: []string{reply}}
			loop := newTestLoop(t, completer, reg, func(cfg *LoopConfig) { cfg.MaxIterations = 5 })

			res, err := loop.Run(context.Background(), "task")
			require.NoError(t, err)
			assert.Equal(t, StateTerminated, res.State)
			assert.Equal(t, 1, res.Iterations)
			assert.False(t, res.CeilingReached)
			assert.Len(t, completer.requests, 1)
			assert.Equal(t, "All done", res.FinalMessage)
		})
	}
}

func TestLoopNonStringToolIsUnknown(t *testing.T) {
	reg, _ := newTestRegistry(t)
	completer := &scriptedCompleter{replies: []string{`{"tool":5,"args":{}}`, `{"tool":"terminate","args":{"message":"ok"}}`}}
	loop := newTestLoop(t, completer, reg, nil)

	res, err := loop.Run(context.Background(), "task")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Iterations)
	assert.Equal(t, (&UnknownToolError{Name: "5"}).Error(), res.History[1].Content)
	assert.Equal(t, "ok", res.FinalMessage)
}

func TestLoopCeilingWithUnknownTools(t *testing.T) {
	for _, max := range []int{1, 3, 7} {
		reg, _ := newTestRegistry(t)
		completer := &scriptedCompleter{replies: []string{`{"tool":"summon_dragon","args":{}}`}}
		loop := newTestLoop(t, completer, reg, func(c *LoopConfig) {
			c.MaxIterations = max
			c.MaxMessages = 100
		})

		res, err := loop.Run(context.Background(), "task")
		require.NoError(t, err)
		assert.Equal(t, max, res.Iterations)
		assert.Len(t, completer.requests, max)
		assert.True(t, res.CeilingReached)
		assert.Equal(t, StateTerminated, res.State)

		require.Len(t, res.History, max+1)
		for _, m := range res.History[1:] {
			assert.Equal(t, Message{Role: RoleAssistant, Content: "Requested tool 'summon_dragon' not found in registry."}, m)
		}
	}
}

func TestLoopDefaultCeiling(t *testing.T) {
	reg, _ := newTestRegistry(t)
	completer := &scriptedCompleter{replies: []string{`{"tool":"nope"}`}}
	res, err := newTestLoop(t, completer, reg, nil).Run(context.Background(), "task")
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxIterations, res.Iterations)
	assert.Len(t, res.History, DefaultMaxMessages, "history stays bounded")
}

func TestLoopExecutesToolsAndRecordsOutcome(t *testing.T) {
	reg, counts := newTestRegistry(t)
	completer := &scriptedCompleter{replies: []string{
		`{"tool":"read_project_file","args":{"name":"main.py"}}`,
		`{"tool":"read_project_file","args":{}}`,
		`{"tool":"terminate","args":{"message":"done"}}`,
	}}
	res, err := newTestLoop(t, completer, reg, nil).Run(context.Background(), "task")
	require.NoError(t, err)

	assert.Equal(t, 3, res.Iterations)
	assert.Equal(t, 1, *counts["read_project_file"])
	require.Len(t, res.History, 4)

	var entry struct {
		Tool   string          `json:"tool"`
		Args   map[string]any  `json:"args"`
		Result ExecutionRecord `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.History[1].Content), &entry))
	assert.Equal(t, "read_project_file", entry.Tool)
	assert.Equal(t, map[string]any{"name": "main.py"}, entry.Args)
	assert.True(t, entry.Result.Executed)
	assert.Equal(t, "contents of main.py", entry.Result.Result)

	require.NoError(t, json.Unmarshal([]byte(res.History[2].Content), &entry))
	assert.False(t, entry.Result.Executed)
	require.NotNil(t, entry.Result.Error)
	assert.Equal(t, "Missing required parameters: [name]", *entry.Result.Error)

	// Each request carries the system goals followed by the history so far.
	last := completer.requests[2]
	require.Len(t, last.Messages, 4)
	assert.Equal(t, RoleSystem, last.Messages[0].Role)
	assert.Equal(t, res.History[2].Content, last.Messages[3].Content)
}

func TestLoopStopsAfterTerminalAction(t *testing.T) {
	finish := NewTool("publish", "Publish and stop.", func(context.Context, map[string]any) (any, error) {
		return nil, errors.New("registry offline")
	}, AsTerminal())
	reg, counts := newTestRegistry(t, finish)
	completer := &scriptedCompleter{replies: []string{`{"tool":"publish","args":{}}`}}

	res, err := newTestLoop(t, completer, reg, nil).Run(context.Background(), "task")
	require.NoError(t, err)
	assert.Equal(t, StateTerminated, res.State)
	assert.Equal(t, 1, res.Iterations)
	assert.Equal(t, 1, *counts["publish"])
	assert.Contains(t, res.History[1].Content, "registry offline")
	assert.Equal(t, "registry offline", res.FinalMessage)
}

func TestLoopTransportError(t *testing.T) {
	reg, _ := newTestRegistry(t)
	cause := llm.ErrorFromStatusCode(500, "upstream exploded", "openai", "", nil)
	loop := newTestLoop(t, &scriptedCompleter{err: cause}, reg, nil)

	res, err := loop.Run(context.Background(), "task")
	require.Error(t, err)

	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, StateError, res.State)
	assert.Equal(t, StateError, loop.State())
	assert.Equal(t, 1, res.Iterations)

	require.Len(t, res.History, 2)
	assert.Equal(t, RoleAssistant, res.History[1].Role)
	assert.True(t, strings.HasPrefix(res.History[1].Content, "[error] LLM call failed: "))
	assert.Contains(t, res.History[1].Content, "upstream exploded")
}

func TestLoopHonorsCancellation(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx, cancel := context.WithCancel(context.Background())
	completer := CompleterFunc(func(context.Context, ModelRequest) (string, error) {
		cancel()
		return `{"tool":"read_project_file","args":{"name":"a"}}`, nil
	})

	res, err := newTestLoop(t, completer, reg, nil).Run(ctx, "task")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateError, res.State)
	assert.Equal(t, 1, res.Iterations)
}

func TestLoopDryRun(t *testing.T) {
	reg, counts := newTestRegistry(t)
	completer := &scriptedCompleter{replies: []string{
		`{"tool":"read_project_file","args":{"name":"a.py"}}`,
		`{"tool":"terminate","args":{"message":"done"}}`,
	}}
	res, err := newTestLoop(t, completer, reg, func(c *LoopConfig) {
		c.Sandbox = NewSandbox(WithDryRun(true))
	}).Run(context.Background(), "task")
	require.NoError(t, err)
	assert.Zero(t, *counts["read_project_file"])
	assert.Contains(t, res.History[1].Content, `"tool_executed":false`)
}

func TestLoopTruncatesLargeResults(t *testing.T) {
	big := NewTool("dump", "", func(context.Context, map[string]any) (any, error) {
		return strings.Repeat("x", 5000), nil
	})
	reg, _ := newTestRegistry(t, big)
	completer := &scriptedCompleter{replies: []string{`{"tool":"dump","args":{}}`, `{"tool":"terminate","args":{"message":"ok"}}`}}
	emitter := NewEventEmitter(64)

	res, err := newTestLoop(t, completer, reg, func(c *LoopConfig) {
		c.MaxResultChars = 100
		c.Emitter = emitter
	}).Run(context.Background(), "task")
	require.NoError(t, err)
	emitter.Close()

	assert.Less(t, len(res.History[1].Content), 500)
	assert.Contains(t, res.History[1].Content, "result truncated")

	for ev := range emitter.Events() {
		if ev.Kind == EventToolCallEnd {
			rec := ev.Data["record"].(ExecutionRecord)
			assert.Len(t, rec.Result, 5000, "events keep the full result")
		}
	}
}

func TestLoopRepetitionNote(t *testing.T) {
	reg, _ := newTestRegistry(t)
	completer := &scriptedCompleter{replies: []string{`{"tool":"read_project_file","args":{"name":"a.py"}}`}}

	res, err := newTestLoop(t, completer, reg, func(c *LoopConfig) {
		c.MaxIterations = 3
		c.RepetitionWindow = 3
	}).Run(context.Background(), "task")
	require.NoError(t, err)

	last := res.History[len(res.History)-1]
	assert.Equal(t, RoleUser, last.Role)
	assert.Contains(t, last.Content, "Your last 3 tool calls repeat")
	assert.Contains(t, last.Content, "call terminate")
}

func TestLoopEvents(t *testing.T) {
	reg, _ := newTestRegistry(t)
	completer := &scriptedCompleter{replies: []string{
		`{"tool":"ghost","args":{}}`,
		`{"tool":"read_project_file","args":{"name":"a"}}`,
		`{"tool":"terminate","args":{"message":"bye"}}`,
	}}
	emitter := NewEventEmitter(64)
	res, err := newTestLoop(t, completer, reg, func(c *LoopConfig) { c.Emitter = emitter }).Run(context.Background(), "task")
	require.NoError(t, err)
	emitter.Close()

	var kinds []EventKind
	for ev := range emitter.Events() {
		assert.Equal(t, res.RunID, ev.RunID)
		assert.False(t, ev.Timestamp.IsZero())
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []EventKind{
		EventRunStart,
		EventIterationStart, EventModelResponse, EventUnknownTool,
		EventIterationStart, EventModelResponse, EventToolCallStart, EventToolCallEnd,
		EventIterationStart, EventModelResponse,
		EventRunEnd,
	}, kinds)
}

func TestLoopSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
	})

	reg, _ := newTestRegistry(t)
	completer := &scriptedCompleter{replies: []string{
		`{"tool":"read_project_file","args":{"name":"a"}}`,
		`{"tool":"terminate","args":{"message":"bye"}}`,
	}}
	_, err := newTestLoop(t, completer, reg, nil).Run(context.Background(), "task")
	require.NoError(t, err)

	count := map[string]int{}
	for _, s := range exporter.GetSpans() {
		count[s.Name]++
	}
	assert.Equal(t, map[string]int{"agent.run": 1, "model.complete": 2, "tool.execute": 1}, count)
}

func TestLoopUsesTextProtocol(t *testing.T) {
	reg, _ := newTestRegistry(t)
	completer := &scriptedCompleter{replies: []string{
		"```json\n{\"tool\":\"read_project_file\",\"args\":{\"name\":\"a\"}}\n```",
		"Here is the README.",
	}}
	res, err := newTestLoop(t, completer, reg, func(c *LoopConfig) {
		c.Translator = TextProtocolTranslator{}
	}).Run(context.Background(), "task")
	require.NoError(t, err)

	assert.Equal(t, 2, res.Iterations)
	assert.Contains(t, completer.requests[0].Messages[0].Content, "# Available Tools")
	assert.Equal(t, "Here is the README.", res.FinalMessage)
}
