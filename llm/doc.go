// Package llm is the model transport used by the agent. It wraps the gollm
// library (github.com/teilomillet/gollm) behind a provider-agnostic Client.
//
// # Architecture
//
//   - ProviderAdapter and the shared Request/Response types
//   - error classification (ErrorFromStatusCode, IsRetryable)
//   - Client with provider routing and a middleware chain
//   - middleware: RetryMiddleware, CircuitBreakerMiddleware, RateLimitMiddleware
//
// Building a client:
//
//	adapter, _ := llm.NewGollmAdapter("openai", os.Getenv("OPENAI_API_KEY"))
//	client := llm.NewClient(
//	    llm.WithProvider("openai", adapter),
//	    llm.WithMiddleware(
//	        llm.RetryMiddleware(llm.DefaultRetryPolicy()),
//	        llm.RateLimitMiddleware(2, 1),
//	        llm.CircuitBreakerMiddleware("openai", llm.BreakerConfig{}),
//	    ),
//	)
//
//	resp, _ := client.Complete(ctx, llm.Request{
//	    Model:    "gpt-4o",
//	    Messages: []llm.Message{llm.UserMessage("Hello")},
//	})
//	fmt.Println(resp.Text())
//
// # Tool calls
//
// Tools are described with ToolDefinition. The adapter recognizes tool calls
// embedded in generated text and exposes them through Response.ToolCalls.
package llm
