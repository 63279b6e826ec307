// Package agentloop runs the conversational agent: a bounded loop that
// alternates model calls and tool execution until the model produces a final
// answer.
//
// # Architecture
//
//   - Orchestrator: serializes work per user, loads the recent conversation,
//     calls the model, dispatches tool calls and persists the final reply.
//   - ToolRegistry: the fixed set of tools offered to the model.
//   - ExecutionEnvironment: the sandbox directory and process runner used by
//     file and code tools.
//   - EventEmitter: synchronous event fan-out for metrics and logging.
//
// # Quick Start
//
//	registry := agentloop.NewToolRegistry()
//	tools.RegisterAll(registry, deps)
//	orch := agentloop.New(client, memory.NewStore(50), registry)
//
//	reply := orch.ProcessMessage(ctx, "user-42", "What's 2+2?")
package agentloop
