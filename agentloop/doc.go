// Package agentloop implements a tool-calling agent loop.
//
// Given a task, the loop repeatedly asks a language model what to do next,
// runs the requested action, and feeds the outcome back into the model's
// context until the model signals completion or an iteration budget runs
// out.
//
// # Architecture
//
//   - Catalog: every tool known to the process, with derived argument schemas.
//   - Registry: the subset of catalog tools available to one run.
//   - Sandbox: validates and invokes actions, folding failures into an
//     ExecutionRecord instead of returning errors.
//   - Conversation: bounded FIFO message history.
//   - Translator: builds model requests and parses replies. Two strategies
//     ship: FunctionCallingTranslator and TextProtocolTranslator.
//   - Loop: the iteration state machine.
//   - Completer: the model capability the loop consumes. LLMCompleter
//     adapts an llm.Client.
//
// # Quick Start
//
//	catalog := agentloop.NewCatalog()
//	if err := tools.Register(catalog, tools.NewLocalEnvironment(".")); err != nil {
//	    log.Fatal(err)
//	}
//
//	registry := agentloop.BuildRegistry(catalog, agentloop.RegistryOptions{})
//	if err := registry.RegisterTerminate(); err != nil {
//	    log.Fatal(err)
//	}
//
//	loop, _ := agentloop.NewLoop(agentloop.LoopConfig{
//	    Completer: &agentloop.LLMCompleter{Client: client, Model: "gpt-4o"},
//	    Registry:  registry,
//	    Goals:     config.DefaultGoals(),
//	})
//	result, err := loop.Run(ctx, "Write a README for this project.")
package agentloop
