package agentloop

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const tracerName = "github.com/martinemde/autodoc/agentloop"

// DefaultMaxIterations bounds a run when no ceiling is configured.
const DefaultMaxIterations = 20

// State is the lifecycle state of a run.
type State string

const (
	StateStart      State = "start"
	StateIterating  State = "iterating"
	StateToolCall   State = "tool_call"
	StateTerminated State = "terminated"
	StateError      State = "error"
)

// LoopConfig wires a Loop together. Completer and Registry are required.
type LoopConfig struct {
	Completer  Completer
	Registry   *Registry
	Translator Translator // defaults to FunctionCallingTranslator
	Sandbox    *Sandbox   // defaults to NewSandbox()
	Goals      []Goal

	MaxIterations int // defaults to DefaultMaxIterations
	MaxMessages   int // defaults to DefaultMaxMessages

	// MaxResultChars truncates string tool results written to history.
	// Zero keeps them whole.
	MaxResultChars int
	TruncationMode TruncationMode

	// RepetitionWindow, when above 1, appends a steering note once the last
	// RepetitionWindow tool calls repeat a short pattern.
	RepetitionWindow int

	Logger  *zap.Logger
	Emitter *EventEmitter
}

// RunResult summarizes a finished run.
type RunResult struct {
	RunID          string
	State          State
	Iterations     int
	CeilingReached bool
	FinalMessage   string
	History        []Message
}

// ActionContext is what the runtime hands to tools alongside their
// arguments.
type ActionContext struct {
	RunID     string
	Iteration int
	Registry  *Registry
}

type actionContextKey struct{}

// WithActionContext attaches ac to ctx.
func WithActionContext(ctx context.Context, ac *ActionContext) context.Context {
	return context.WithValue(ctx, actionContextKey{}, ac)
}

// ActionContextFrom returns the ActionContext attached to ctx.
func ActionContextFrom(ctx context.Context) (*ActionContext, bool) {
	ac, ok := ctx.Value(actionContextKey{}).(*ActionContext)
	return ac, ok && ac != nil
}

// Loop drives one task to completion: ask the model, run the requested
// action, record the outcome, repeat.
type Loop struct {
	cfg          LoopConfig
	conversation *Conversation
	logger       *zap.Logger
	state        State
	signatures   []string
}

// NewLoop validates cfg and fills in defaults.
func NewLoop(cfg LoopConfig) (*Loop, error) {
	if cfg.Completer == nil {
		return nil, &ConfigurationError{Message: "loop needs a completer"}
	}
	if cfg.Registry == nil {
		return nil, &ConfigurationError{Message: "loop needs a registry"}
	}
	if cfg.Translator == nil {
		cfg.Translator = FunctionCallingTranslator{}
	}
	if cfg.Sandbox == nil {
		cfg.Sandbox = NewSandbox()
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.TruncationMode == "" {
		cfg.TruncationMode = TruncateHeadTail
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		cfg:          cfg,
		conversation: NewConversation(cfg.MaxMessages),
		logger:       logger,
		state:        StateStart,
	}, nil
}

// State returns the current lifecycle state.
func (l *Loop) State() State { return l.state }

// Conversation exposes the run's history.
func (l *Loop) Conversation() *Conversation { return l.conversation }

// Run appends task as the first user message and iterates until the model
// terminates, a terminal action runs, or the iteration ceiling is reached.
// Those outcomes return a nil error. A failed model call or a cancelled
// context ends the run in StateError and is returned as the error; the
// result is populated in every case.
func (l *Loop) Run(ctx context.Context, task string) (*RunResult, error) {
	runID := uuid.New().String()
	res := &RunResult{RunID: runID}
	log := l.logger.With(zap.String("run_id", runID))

	ctx, span := otel.Tracer(tracerName).Start(ctx, "agent.run")
	span.SetAttributes(attribute.String("run.id", runID), attribute.Int("run.max_iterations", l.cfg.MaxIterations))
	defer span.End()

	finish := func(state State, err error) (*RunResult, error) {
		l.state = state
		res.State = state
		res.History = l.conversation.Snapshot()
		span.SetAttributes(attribute.String("run.state", string(state)), attribute.Int("run.iterations", res.Iterations))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			l.emit(runID, res.Iterations, EventError, map[string]any{"error": err.Error()})
		}
		l.emit(runID, res.Iterations, EventRunEnd, map[string]any{"state": string(state), "ceiling_reached": res.CeilingReached})
		log.Info("agent loop finished",
			zap.String("state", string(state)),
			zap.Int("iterations", res.Iterations),
			zap.Int("history_len", l.conversation.Len()),
		)
		return res, err
	}

	if err := l.conversation.Append(RoleUser, task); err != nil {
		return finish(StateError, err)
	}
	l.state = StateIterating
	l.emit(runID, 0, EventRunStart, map[string]any{"task": task})
	log.Info("starting agent loop", zap.String("task", task))

	terminal := l.cfg.Registry.TerminalName()
	actx := &ActionContext{RunID: runID, Registry: l.cfg.Registry}

	for iteration := 1; iteration <= l.cfg.MaxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return finish(StateError, err)
		}
		res.Iterations = iteration
		l.state = StateIterating
		l.emit(runID, iteration, EventIterationStart, nil)
		log.Info("iteration", zap.Int("n", iteration), zap.Int("max", l.cfg.MaxIterations))

		req := l.cfg.Translator.BuildRequest(l.cfg.Registry.List(), l.cfg.Goals, l.conversation.Snapshot())
		raw, err := l.complete(ctx, req)
		if err != nil {
			terr := &TransportError{Cause: err}
			log.Error("LLM call failed", zap.Error(err))
			_ = l.conversation.Append(RoleAssistant, "[error] "+terr.Error())
			return finish(StateError, terr)
		}
		log.Debug("LLM raw response", zap.String("response", raw))
		l.emit(runID, iteration, EventModelResponse, map[string]any{"response": raw})

		intent := l.cfg.Translator.ParseResponse(raw)
		if intent.Fallback {
			log.Warn("model reply was not a tool call; treating it as termination")
		}

		if endsRun(intent, terminal) {
			msg := intent.Message()
			log.Info("termination requested by model", zap.String("message", msg))
			res.FinalMessage = msg
			if err := l.appendAssistant(msg); err != nil {
				return finish(StateError, err)
			}
			return finish(StateTerminated, nil)
		}

		log.Info("model requested tool", zap.String("tool", intent.Tool), zap.Any("args", intent.Args))
		action, ok := l.cfg.Registry.Get(intent.Tool)
		if !ok {
			uerr := &UnknownToolError{Name: intent.Tool}
			log.Warn(uerr.Error())
			l.emit(runID, iteration, EventUnknownTool, map[string]any{"tool": intent.Tool})
			if err := l.appendAssistant(uerr.Error()); err != nil {
				return finish(StateError, err)
			}
			continue
		}

		l.state = StateToolCall
		actx.Iteration = iteration
		l.emit(runID, iteration, EventToolCallStart, map[string]any{"tool": action.Name, "args": intent.Args})
		rec := l.cfg.Sandbox.Execute(WithActionContext(ctx, actx), action, intent.Args)
		l.emit(runID, iteration, EventToolCallEnd, map[string]any{"tool": action.Name, "record": rec})

		entry, err := json.Marshal(map[string]any{
			"tool":   intent.Tool,
			"args":   intent.Args,
			"result": truncateRecord(rec, l.cfg.MaxResultChars, l.cfg.TruncationMode),
		})
		if err != nil {
			entry = []byte(fmt.Sprintf(`{"tool":%q,"error":%q}`, intent.Tool, "unencodable result: "+err.Error()))
		}
		if err := l.appendAssistant(string(entry)); err != nil {
			return finish(StateError, err)
		}

		if action.Terminal {
			log.Info("terminal action executed, stopping loop")
			res.FinalMessage = finalMessage(rec)
			return finish(StateTerminated, nil)
		}

		l.checkRepetition(runID, iteration, action.Name, intent.Args, terminal)
	}

	res.CeilingReached = true
	log.Info("iteration ceiling reached", zap.Int("max", l.cfg.MaxIterations))
	return finish(StateTerminated, nil)
}

// endsRun reports whether intent finishes the run without executing an
// action. The conventional terminate name ends the run even when the
// catalog's terminal tool goes by another name.
func endsRun(intent ParsedIntent, terminal string) bool {
	return intent.Fallback || intent.Tool == "" || intent.Tool == TerminateToolName || intent.Tool == terminal
}

func finalMessage(rec ExecutionRecord) string {
	switch {
	case rec.Failed():
		return *rec.Error
	case rec.Result == nil:
		return ""
	default:
		return fmt.Sprint(rec.Result)
	}
}

func (l *Loop) complete(ctx context.Context, req ModelRequest) (string, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "model.complete")
	defer span.End()
	span.SetAttributes(attribute.Int("request.messages", len(req.Messages)), attribute.Int("request.tools", len(req.Tools)))

	raw, err := l.cfg.Completer.Complete(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return raw, err
}

func (l *Loop) appendAssistant(content string) error {
	return l.conversation.Append(RoleAssistant, content)
}

func (l *Loop) checkRepetition(runID string, iteration int, tool string, args map[string]any, terminal string) {
	if l.cfg.RepetitionWindow <= 1 {
		return
	}
	l.signatures = append(l.signatures, callSignature(tool, args))
	if !DetectRepetition(l.signatures, l.cfg.RepetitionWindow) {
		return
	}
	l.logger.Warn("repeated tool calls detected", zap.Int("window", l.cfg.RepetitionWindow))
	l.emit(runID, iteration, EventRepetition, map[string]any{"window": l.cfg.RepetitionWindow})
	_ = l.conversation.Append(RoleUser, fmt.Sprintf(repetitionNote, l.cfg.RepetitionWindow, terminal))
	l.signatures = nil
}

func (l *Loop) emit(runID string, iteration int, kind EventKind, data map[string]any) {
	l.cfg.Emitter.Emit(LoopEvent{Kind: kind, RunID: runID, Iteration: iteration, Data: data})
}
