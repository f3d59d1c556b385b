// Memograph - Workspace-Scoped Memory for Conversational Agents
//
// Memograph is a Redis-backed memory store for conversational agents. It
// persists structured memory entries (decisions, directives, code patterns,
// errors, preferences, ...) produced during a conversation, indexes them for
// semantic and structured retrieval, links them into a typed relationship
// graph, tracks version history with rollback, and coordinates the recursive
// decomposition of oversized analysis tasks into execution chains.
//
// # Quick Start
//
// Install the package:
//
//	go get github.com/smallnest/memograph
//
// Basic example:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//
//		"github.com/smallnest/memograph/embedding"
//		"github.com/smallnest/memograph/memory"
//		"github.com/smallnest/memograph/memstore"
//		"github.com/smallnest/memograph/storage"
//	)
//
//	func main() {
//		ctx := context.Background()
//
//		client, err := storage.NewRedisClient(ctx, "redis://localhost:6379")
//		if err != nil {
//			panic(err)
//		}
//		defer client.Close()
//
//		cfg := memory.Config{WorkspacePath: "/home/me/project"}.WithDefaults()
//		store := memstore.New(client, embedding.NewBuilder(nil), cfg)
//
//		entry, err := store.Create(ctx, memory.CreateRequest{
//			Content:     "Use pipelines for every multi-key write",
//			ContextType: memory.TypeDecision,
//			Importance:  8,
//		})
//		if err != nil {
//			panic(err)
//		}
//
//		results, _ := store.Search(ctx, "pipelines", memstore.SearchOptions{Limit: 5})
//		fmt.Println(entry.ID, len(results))
//	}
//
// # Packages
//
//   - memory: shared types, workspace hashing, key scheme, typed errors
//   - storage: Redis client with retry and pipelining
//   - embedding: trigram plus keyword sketch vectors and cosine similarity
//   - memstore: the memory store (CRUD, search, sessions, templates,
//     categories, merge, scope conversion, stats)
//   - relationship: typed edges and bounded graph traversal
//   - version: snapshot history and rollback
//   - rlm: execution chains for oversized analysis tasks
//   - analyzer: LLM conversation analysis
//   - prompt: workspace-context payload formatting
//   - llms/oai: OpenAI-compatible llms.Model client
//   - adapter/mcp: the MCP stdio server
//
// Run the server:
//
//	go run ./cmd/memograph -workspace /home/me/project -mode hybrid
package memograph
