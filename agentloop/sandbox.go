package agentloop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	kaptinlin "github.com/kaptinlin/jsonschema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// TimestampLayout is the layout of ExecutionRecord.Timestamp.
const TimestampLayout = "2006-01-02T15:04:05-0700"

// ExecutionRecord is the outcome of one sandboxed tool call. Executed and
// Error are mutually exclusive; a dry run has neither.
type ExecutionRecord struct {
	Executed      bool           `json:"tool_executed"`
	ActionName    string         `json:"action_name"`
	ArgsUsed      map[string]any `json:"args_used"`
	Result        any            `json:"result"`
	Error         *string        `json:"error"`
	FailureDetail *string        `json:"traceback"`
	Timestamp     string         `json:"timestamp"`
}

// Failed reports whether the record carries an error.
func (r ExecutionRecord) Failed() bool { return r.Error != nil }

// PostExecuteHook runs after a successful call. Its failures are logged and
// otherwise ignored.
type PostExecuteHook func(ctx context.Context, action *Action, record ExecutionRecord) error

// SandboxOption configures a Sandbox.
type SandboxOption func(*Sandbox)

// WithDryRun makes the sandbox validate without invoking anything.
func WithDryRun(dryRun bool) SandboxOption {
	return func(s *Sandbox) { s.dryRun = dryRun }
}

// WithPostExecuteHook adds a hook run after each successful call.
func WithPostExecuteHook(h PostExecuteHook) SandboxOption {
	return func(s *Sandbox) { s.hooks = append(s.hooks, h) }
}

// WithStrictSchema validates argument types against the full schema in
// addition to the required-name check.
func WithStrictSchema() SandboxOption {
	return func(s *Sandbox) { s.strict = true }
}

// WithSandboxLogger sets the logger.
func WithSandboxLogger(l *zap.Logger) SandboxOption {
	return func(s *Sandbox) { s.logger = l }
}

// WithClock overrides the time source for record timestamps.
func WithClock(now func() time.Time) SandboxOption {
	return func(s *Sandbox) { s.now = now }
}

// Sandbox validates and invokes actions, turning every failure into an
// ExecutionRecord. Execute never returns an error and never panics.
type Sandbox struct {
	dryRun bool
	strict bool
	hooks  []PostExecuteHook
	logger *zap.Logger
	now    func() time.Time

	mu       sync.Mutex
	compiled map[string]*kaptinlin.Schema
}

// NewSandbox returns a sandbox configured by opts.
func NewSandbox(opts ...SandboxOption) *Sandbox {
	s := &Sandbox{
		logger:   zap.NewNop(),
		now:      time.Now,
		compiled: make(map[string]*kaptinlin.Schema),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DryRun reports whether the sandbox skips invocation.
func (s *Sandbox) DryRun() bool { return s.dryRun }

// Execute runs action with args.
func (s *Sandbox) Execute(ctx context.Context, action *Action, args map[string]any) ExecutionRecord {
	if args == nil {
		args = map[string]any{}
	}
	rec := ExecutionRecord{
		ActionName: action.Name,
		ArgsUsed:   maps.Clone(args),
		Timestamp:  s.now().Format(TimestampLayout),
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "tool.execute")
	span.SetAttributes(attribute.String("tool.name", action.Name), attribute.Bool("tool.dry_run", s.dryRun))
	defer span.End()

	log := s.logger.With(zap.String("action", action.Name))

	if err := s.validate(action, args); err != nil {
		msg := err.Error()
		rec.Error = &msg
		log.Info("tool arguments rejected", zap.Error(err))
		span.SetStatus(codes.Error, msg)
		return rec
	}

	if s.dryRun {
		log.Info("dry run, tool not invoked", zap.Any("args", args))
		return rec
	}

	result, err := s.invoke(ctx, action, args)
	if err != nil {
		msg := err.Error()
		detail := failureDetail(err)
		rec.Error = &msg
		rec.FailureDetail = &detail
		log.Warn("tool failed", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, msg)
		return rec
	}

	rec.Executed = true
	rec.Result = result
	log.Debug("tool executed")

	for _, h := range s.hooks {
		if err := runHook(ctx, h, action, rec); err != nil {
			log.Warn("post-execute hook failed", zap.Error(err))
		}
	}
	return rec
}

func (s *Sandbox) validate(action *Action, args map[string]any) error {
	var missing []string
	for _, name := range action.Parameters.Required {
		if _, ok := args[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Action: action.Name, Missing: missing}
	}
	if !s.strict {
		return nil
	}

	schema, err := s.compile(action)
	if err != nil {
		return &ValidationError{Action: action.Name, Detail: err.Error()}
	}
	// Round-trip so numbers and nested values have JSON shapes.
	raw, err := json.Marshal(args)
	if err != nil {
		return &ValidationError{Action: action.Name, Detail: err.Error()}
	}
	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return &ValidationError{Action: action.Name, Detail: err.Error()}
	}
	result := schema.Validate(data)
	if !result.IsValid() {
		return &ValidationError{Action: action.Name, Detail: fmt.Sprintf("%v", result.Error())}
	}
	return nil
}

func (s *Sandbox) compile(action *Action) (*kaptinlin.Schema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if schema, ok := s.compiled[action.Name]; ok {
		return schema, nil
	}
	raw, err := json.Marshal(action.Parameters)
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}
	schema, err := kaptinlin.NewCompiler().Compile(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	s.compiled[action.Name] = schema
	return schema, nil
}

// panicError carries a recovered panic and the stack where it happened.
type panicError struct {
	value any
	stack []byte
}

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.value) }

func (s *Sandbox) invoke(ctx context.Context, action *Action, args map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r, stack: debug.Stack()}
		}
	}()
	return action.Execute(ctx, args)
}

func runHook(ctx context.Context, h PostExecuteHook, action *Action, rec ExecutionRecord) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hook panic: %v", r)
		}
	}()
	return h(ctx, action, rec)
}

// failureDetail renders the diagnostic stored in FailureDetail: the error
// chain, plus the goroutine stack for panics.
func failureDetail(err error) string {
	if pe, ok := err.(*panicError); ok {
		return pe.Error() + "\n\n" + string(pe.stack)
	}
	var b strings.Builder
	for e := err; e != nil; e = errors.Unwrap(e) {
		fmt.Fprintf(&b, "%T: %v\n", e, e)
	}
	return strings.TrimRight(b.String(), "\n")
}
