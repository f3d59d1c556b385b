// Package mcp exposes the memory store over the Model Context Protocol so
// MCP-capable agents can persist and recall context across sessions.
//
// NewServer wires the whole stack (backend client, embedding builder, memory
// store, relationship engine, chain coordinator, and the optional LLM
// analyzer) from one memory.Config and registers every operation as a typed
// MCP tool. Run serves the protocol over stdio until the context is
// cancelled:
//
//	srv, err := mcp.NewServer(ctx, memory.Config{
//		BackendURL:    "redis://localhost:6379/0",
//		WorkspacePath: "/home/dev/myproject",
//		Mode:          memory.ModeHybrid,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := srv.Run(ctx); err != nil {
//		log.Fatal(err)
//	}
//
// The registered tools cover memory CRUD and search (create_memory,
// search_memories, get_recent_memories, ...), the relationship graph
// (create_relationship, get_memory_graph), versioning (get_memory_history,
// rollback_memory), execution chains (create_chain, decompose_chain,
// inject_snippet, update_subtask, get_chain_status, complete_chain), and
// workspace utilities (memory_stats, workspace_context).
//
// Tool handlers return domain failures as tool errors with the typed error
// message, so a client always sees which kind of failure occurred.
package mcp
