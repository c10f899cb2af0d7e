package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/martinemde/autodoc/agentloop"
	"github.com/martinemde/autodoc/config"
	"github.com/martinemde/autodoc/llm"
	"github.com/martinemde/autodoc/telemetry"
	"github.com/martinemde/autodoc/tools"
)

const defaultTask = "Write a README for this project."

var runOpts struct {
	task       string
	model      string
	provider   string
	maxIter    int
	dryRun     bool
	goalsFile  string
	tags       []string
	toolNames  []string
	history    int
	strict     bool
	translator string
	workdir    string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the agent loop on a task",
	Long: `Runs the agent against the project in --workdir. Each iteration asks the
model for the next tool call, executes it, and records the outcome, until the
model calls terminate or --max-iter iterations have run.`,
	Args: cobra.NoArgs,
	RunE: runAgent,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runOpts.task, "task", defaultTask, "Initial task for the agent")
	f.StringVar(&runOpts.model, "model", "", "Model ID (default from AUTODOC_MODEL)")
	f.StringVar(&runOpts.provider, "provider", "", "LLM provider (default from AUTODOC_PROVIDER)")
	f.IntVar(&runOpts.maxIter, "max-iter", 0, "Maximum loop iterations (default from AUTODOC_MAX_ITERATIONS)")
	f.BoolVar(&runOpts.dryRun, "dry-run", false, "Validate tool calls without executing them")
	f.StringVar(&runOpts.goalsFile, "goals", "", "YAML file of goals (default: built-in README goals)")
	f.StringSliceVar(&runOpts.tags, "tags", nil, "Only offer tools carrying any of these tags")
	f.StringSliceVar(&runOpts.toolNames, "tools", nil, "Only offer these tools")
	f.IntVar(&runOpts.history, "history", agentloop.DefaultMaxMessages, "Messages to print from the final history")
	f.BoolVar(&runOpts.strict, "strict", false, "Validate argument types against the full tool schema")
	f.StringVar(&runOpts.translator, "translator", "function", "Prompt strategy: function or text")
	f.StringVar(&runOpts.workdir, "workdir", "", "Project directory (default from AUTODOC_WORKDIR or the current directory)")
}

func runAgent(cmd *cobra.Command, _ []string) error {
	applyRunFlags(cmd, &cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	shutdown, err := telemetry.Setup(ctx, telemetry.Config{Exporter: cfg.TraceExporter})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(sctx)
	}()

	translator, err := parseTranslator(runOpts.translator)
	if err != nil {
		return err
	}
	goals := config.DefaultGoals()
	if runOpts.goalsFile != "" {
		if goals, err = config.LoadGoals(runOpts.goalsFile); err != nil {
			return err
		}
	}

	env := tools.NewLocalEnvironment(cfg.WorkDir)
	registry, err := buildRegistry(env, runOpts.tags, runOpts.toolNames)
	if err != nil {
		return err
	}

	client, err := newLLMClient(cfg, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	index := tools.NewFileIndex(env)
	sandboxOpts := []agentloop.SandboxOption{
		agentloop.WithDryRun(cfg.DryRun),
		agentloop.WithSandboxLogger(logger),
		agentloop.WithPostExecuteHook(index.Hook),
	}
	if runOpts.strict {
		sandboxOpts = append(sandboxOpts, agentloop.WithStrictSchema())
	}

	loop, err := agentloop.NewLoop(agentloop.LoopConfig{
		Completer: &agentloop.LLMCompleter{
			Client:    client,
			Model:     cfg.Model,
			Provider:  cfg.Provider,
			MaxTokens: cfg.MaxTokens,
		},
		Registry:      registry,
		Translator:    translator,
		Sandbox:       agentloop.NewSandbox(sandboxOpts...),
		Goals:         goals,
		MaxIterations: cfg.MaxIterations,
		MaxMessages:   cfg.MaxMessages,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	result, runErr := loop.Run(ctx, runOpts.task)
	printFinalMemory(cmd.OutOrStdout(), loop.Conversation().Last(runOpts.history), runOpts.history)
	if result != nil {
		logger.Info("run summary",
			zap.String("run_id", result.RunID),
			zap.Strings("files_read", index.Read(result.RunID)),
			zap.Strings("files_written", index.Written(result.RunID)),
			zap.Bool("ceiling_reached", result.CeilingReached),
		)
	}
	return runErr
}

// applyRunFlags lets explicitly set flags override environment settings.
func applyRunFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("model") {
		c.Model = runOpts.model
	}
	if flags.Changed("provider") {
		c.Provider = runOpts.provider
	}
	if flags.Changed("max-iter") {
		c.MaxIterations = runOpts.maxIter
	}
	if flags.Changed("dry-run") {
		c.DryRun = runOpts.dryRun
	}
	if flags.Changed("workdir") {
		c.WorkDir = runOpts.workdir
	}
}

func parseTranslator(name string) (agentloop.Translator, error) {
	switch strings.ToLower(name) {
	case "", "function":
		return agentloop.FunctionCallingTranslator{}, nil
	case "text":
		return agentloop.TextProtocolTranslator{}, nil
	default:
		return nil, fmt.Errorf("unknown translator %q: want function or text", name)
	}
}

// buildRegistry registers the built-in tools, applies the filters, and makes
// sure terminate stays available.
func buildRegistry(env *tools.LocalEnvironment, tags, names []string) (*agentloop.Registry, error) {
	catalog := agentloop.NewCatalog()
	if err := tools.Register(catalog, env); err != nil {
		return nil, err
	}
	registry := agentloop.BuildRegistry(catalog, agentloop.RegistryOptions{Tags: tags, Names: names})
	if err := registry.RegisterTerminate(); err != nil {
		return nil, err
	}
	return registry, nil
}

func newLLMClient(c config.Config, logger *zap.Logger) (*llm.Client, error) {
	adapter, err := llm.NewGollmAdapter(c.Provider, c.APIKey,
		llm.WithModel(c.Model),
		llm.WithMaxTokens(c.MaxTokens),
	)
	if err != nil {
		return nil, err
	}

	retry := llm.DefaultRetryPolicy()
	retry.MaxRetries = c.MaxRetries
	retry.OnRetry = func(err error, attempt int, delay time.Duration) {
		logger.Warn("retrying LLM call", zap.Error(err), zap.Int("attempt", attempt), zap.Duration("delay", delay))
	}

	middleware := []llm.Middleware{llm.RetryMiddleware(retry)}
	if c.RateLimit > 0 {
		middleware = append(middleware, llm.RateLimitMiddleware(c.RateLimit, 1))
	}
	middleware = append(middleware, llm.CircuitBreakerMiddleware(c.Provider, llm.BreakerConfig{
		MaxFailures: c.BreakerFailures,
		Logger:      logger,
	}))

	return llm.NewClient(
		llm.WithProvider(c.Provider, adapter),
		llm.WithDefaultProvider(c.Provider),
		llm.WithMiddleware(middleware...),
	), nil
}

func printFinalMemory(w io.Writer, messages []agentloop.Message, n int) {
	fmt.Fprintf(w, "\n=== Final Memory (last %d messages) ===\n", n)
	for _, m := range messages {
		fmt.Fprintf(w, "%s: %s\n\n", strings.ToUpper(string(m.Role)), m.Content)
	}
}
