// Package segue is an intent-routed conversational orchestrator.
//
// A segue Orchestrator takes a user message plus prior conversation history,
// classifies it into an intent (ticket creation, knowledge lookup, chat, or
// delegation), walks a small routing graph of handler nodes under a global
// deadline, and returns the assistant reply together with structured
// diagnostics about what each handler did.
//
// # Quick Start
//
//	llm := openaicompat.NewProvider(apiKey, model, baseURL)
//	atl := atlassian.Config{BaseURL: baseURL, Email: user, APIToken: token}
//
//	dispatcher := segue.NewDispatcher(
//		segue.WithDispatcherRemote(mcp.NewClient(mcp.Config{Command: "atlassian-mcp"})),
//		segue.WithDispatcherJira(atlassian.NewJira(atl, projectKey)),
//		segue.WithDispatcherWiki(atlassian.NewConfluence(atl, spaceKey)),
//	)
//
//	orc := segue.New(llm, segue.WithDispatcher(dispatcher))
//	reply, diag := orc.Handle(ctx, segue.Request{UserInput: "create a jira ticket: ..."})
//
// # Core Interfaces
//
// The root package defines the contracts that all collaborators implement:
//
//   - [Provider] — LLM backend (chat completion, JSON mode)
//   - [Remote] — tool-protocol client (enumerate and invoke remote tools)
//   - [JiraAPI], [WikiAPI] — direct Atlassian HTTP clients
//   - [Retriever] — knowledge lookup returning ranked context
//   - [MemoryStore] — conversation persistence
//   - [Delegate] — hand-off target for delegated requests
//
// # Included Implementations
//
// Providers: provider/gemini (Google Gemini), provider/openaicompat
// (OpenAI-compatible APIs). Tool protocol: mcp (stdio subprocess client).
// Direct APIs: atlassian. Storage: store/sqlite (local), store/postgres
// (shared deployments). Observability: observer (OTEL spans, metrics, logs).
//
// See cmd/segue for a complete composition root.
package segue
