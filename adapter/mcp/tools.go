package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/smallnest/memograph/memory"
	"github.com/smallnest/memograph/memstore"
	"github.com/smallnest/memograph/prompt"
	"github.com/smallnest/memograph/relationship"
	"github.com/smallnest/memograph/rlm"
)

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "create_memory",
		Description: "Store a new memory entry in the current workspace",
	}, s.handleCreateMemory)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_memory",
		Description: "Fetch one memory entry by id",
	}, s.handleGetMemory)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "update_memory",
		Description: "Update a memory entry, recording a version snapshot first",
	}, s.handleUpdateMemory)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "delete_memory",
		Description: "Delete a memory entry and its index references",
	}, s.handleDeleteMemory)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_memories",
		Description: "Semantic search over stored memories with optional filters",
	}, s.handleSearchMemories)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_recent_memories",
		Description: "List the most recently created memories",
	}, s.handleGetRecent)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_important_memories",
		Description: "List high-importance memories",
	}, s.handleGetImportant)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "create_relationship",
		Description: "Link two memories with a typed edge",
	}, s.handleCreateRelationship)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_memory_graph",
		Description: "Breadth-first relationship graph rooted at one memory",
	}, s.handleGetGraph)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_memory_history",
		Description: "List a memory's version history, newest first",
	}, s.handleGetHistory)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "rollback_memory",
		Description: "Restore a memory to a recorded version",
	}, s.handleRollback)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "create_chain",
		Description: "Start an execution chain for a task with oversized context",
	}, s.handleCreateChain)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "decompose_chain",
		Description: "Record the ordered subtasks of an execution chain",
	}, s.handleDecomposeChain)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "inject_snippet",
		Description: "Extract the matching slice of a chain's stored context",
	}, s.handleInjectSnippet)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "update_subtask",
		Description: "Record the result of one chain subtask",
	}, s.handleUpdateSubtask)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_chain_status",
		Description: "Summarize a chain's subtask progress and remaining work",
	}, s.handleChainStatus)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "complete_chain",
		Description: "Move a chain to a terminal state",
	}, s.handleCompleteChain)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "set_category",
		Description: "Assign a memory to a category, or clear it with an empty name",
	}, s.handleSetCategory)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "merge_memories",
		Description: "Merge several memories into one surviving entry",
	}, s.handleMergeMemories)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "create_from_template",
		Description: "Instantiate a memory from a stored template",
	}, s.handleCreateFromTemplate)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "memory_stats",
		Description: "Per-scope memory, index, and session counts",
	}, s.handleStats)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "workspace_context",
		Description: "Render recent memories as a workspace-context prompt payload",
	}, s.handleWorkspaceContext)
}

func textResult(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf(format, args...)},
		},
	}
}

type createMemoryArgs struct {
	Content     string   `json:"content" jsonschema:"Memory content"`
	ContextType string   `json:"context_type" jsonschema:"One of directive, information, heading, decision, code_pattern, requirement, error, todo, insight, preference"`
	Summary     string   `json:"summary,omitempty" jsonschema:"Short summary, derived from content when omitted"`
	Tags        []string `json:"tags,omitempty" jsonschema:"Lookup tags"`
	Importance  int      `json:"importance" jsonschema:"Importance from 1 to 10"`
	SessionID   string   `json:"session_id,omitempty" jsonschema:"Session to attribute the memory to"`
	TTLSeconds  int64    `json:"ttl_seconds,omitempty" jsonschema:"Expiry in seconds, minimum 60"`
	IsGlobal    bool     `json:"is_global,omitempty" jsonschema:"Store in the global scope"`
	Category    string   `json:"category,omitempty" jsonschema:"Optional category"`
}

type memoryResult struct {
	Memory *memory.Entry `json:"memory"`
}

func (s *Server) handleCreateMemory(ctx context.Context, req *mcp.CallToolRequest, args createMemoryArgs) (*mcp.CallToolResult, memoryResult, error) {
	entry, err := s.store.Create(ctx, memory.CreateRequest{
		Content:     args.Content,
		ContextType: memory.NormalizeContextType(args.ContextType),
		Summary:     args.Summary,
		Tags:        args.Tags,
		Importance:  args.Importance,
		SessionID:   args.SessionID,
		TTLSeconds:  args.TTLSeconds,
		IsGlobal:    args.IsGlobal,
		Category:    args.Category,
	})
	if err != nil {
		return nil, memoryResult{}, err
	}
	return textResult("Stored memory %s", entry.ID), memoryResult{Memory: entry}, nil
}

type memoryIDArgs struct {
	MemoryID string `json:"memory_id" jsonschema:"Memory id"`
}

func (s *Server) handleGetMemory(ctx context.Context, req *mcp.CallToolRequest, args memoryIDArgs) (*mcp.CallToolResult, memoryResult, error) {
	entry, err := s.store.Get(ctx, args.MemoryID)
	if err != nil {
		return nil, memoryResult{}, err
	}
	if entry == nil {
		return nil, memoryResult{}, memory.Errorf(memory.KindNotFound, "memory %s not found", args.MemoryID)
	}
	return textResult("Memory %s", entry.ID), memoryResult{Memory: entry}, nil
}

type updateMemoryArgs struct {
	MemoryID    string   `json:"memory_id" jsonschema:"Memory id"`
	Content     *string  `json:"content,omitempty" jsonschema:"New content"`
	Summary     *string  `json:"summary,omitempty" jsonschema:"New summary"`
	ContextType *string  `json:"context_type,omitempty" jsonschema:"New context type"`
	Tags        []string `json:"tags,omitempty" jsonschema:"Replacement tag set, omit to keep current tags"`
	Importance  *int     `json:"importance,omitempty" jsonschema:"New importance from 1 to 10"`
}

func (s *Server) handleUpdateMemory(ctx context.Context, req *mcp.CallToolRequest, args updateMemoryArgs) (*mcp.CallToolResult, memoryResult, error) {
	upd := memory.UpdateRequest{
		Content:    args.Content,
		Summary:    args.Summary,
		Tags:       args.Tags,
		Importance: args.Importance,
	}
	if args.ContextType != nil {
		t := memory.NormalizeContextType(*args.ContextType)
		upd.ContextType = &t
	}
	entry, err := s.store.Update(ctx, args.MemoryID, upd)
	if err != nil {
		return nil, memoryResult{}, err
	}
	return textResult("Updated memory %s", entry.ID), memoryResult{Memory: entry}, nil
}

type deleteResult struct {
	Deleted bool `json:"deleted"`
}

func (s *Server) handleDeleteMemory(ctx context.Context, req *mcp.CallToolRequest, args memoryIDArgs) (*mcp.CallToolResult, deleteResult, error) {
	deleted, err := s.store.Delete(ctx, args.MemoryID)
	if err != nil {
		return nil, deleteResult{}, err
	}
	return textResult("Deleted=%v for memory %s", deleted, args.MemoryID), deleteResult{Deleted: deleted}, nil
}

type searchArgs struct {
	Query         string   `json:"query" jsonschema:"Search text"`
	Limit         int      `json:"limit,omitempty" jsonschema:"Maximum results, default 10"`
	MinImportance int      `json:"min_importance,omitempty" jsonschema:"Drop results below this importance"`
	ContextTypes  []string `json:"context_types,omitempty" jsonschema:"Restrict to these context types"`
	Category      string   `json:"category,omitempty" jsonschema:"Restrict to one category"`
	Fuzzy         bool     `json:"fuzzy,omitempty" jsonschema:"Boost results containing query words"`
	Regex         string   `json:"regex,omitempty" jsonschema:"Case-insensitive content filter pattern"`
}

type searchResult struct {
	Results []memstore.SearchResult `json:"results"`
}

func (s *Server) handleSearchMemories(ctx context.Context, req *mcp.CallToolRequest, args searchArgs) (*mcp.CallToolResult, searchResult, error) {
	types := make([]memory.ContextType, 0, len(args.ContextTypes))
	for _, t := range args.ContextTypes {
		types = append(types, memory.NormalizeContextType(t))
	}
	results, err := s.store.Search(ctx, args.Query, memstore.SearchOptions{
		Limit:         args.Limit,
		MinImportance: args.MinImportance,
		ContextTypes:  types,
		Category:      args.Category,
		Fuzzy:         args.Fuzzy,
		Regex:         args.Regex,
	})
	if err != nil {
		return nil, searchResult{}, err
	}
	return textResult("Found %d memories", len(results)), searchResult{Results: results}, nil
}

type listArgs struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum results, default 10"`
}

type entriesResult struct {
	Memories []*memory.Entry `json:"memories"`
}

func (s *Server) handleGetRecent(ctx context.Context, req *mcp.CallToolRequest, args listArgs) (*mcp.CallToolResult, entriesResult, error) {
	entries, err := s.store.GetRecent(ctx, args.Limit)
	if err != nil {
		return nil, entriesResult{}, err
	}
	return textResult("%d recent memories", len(entries)), entriesResult{Memories: entries}, nil
}

type importantArgs struct {
	MinImportance int `json:"min_importance,omitempty" jsonschema:"Lowest importance to include, default 8"`
	Limit         int `json:"limit,omitempty" jsonschema:"Maximum results, default 10"`
}

func (s *Server) handleGetImportant(ctx context.Context, req *mcp.CallToolRequest, args importantArgs) (*mcp.CallToolResult, entriesResult, error) {
	min := args.MinImportance
	if min == 0 {
		min = memory.ImportantThreshold
	}
	entries, err := s.store.GetImportant(ctx, min, args.Limit)
	if err != nil {
		return nil, entriesResult{}, err
	}
	return textResult("%d important memories", len(entries)), entriesResult{Memories: entries}, nil
}

type createRelationshipArgs struct {
	FromID   string            `json:"from_id" jsonschema:"Source memory id"`
	ToID     string            `json:"to_id" jsonschema:"Target memory id"`
	Type     string            `json:"type" jsonschema:"One of relates_to, parent_of, child_of, references, supersedes, implements, example_of"`
	Metadata map[string]string `json:"metadata,omitempty" jsonschema:"Optional edge metadata"`
}

type relationshipResult struct {
	Relationship *memory.Relationship `json:"relationship"`
}

func (s *Server) handleCreateRelationship(ctx context.Context, req *mcp.CallToolRequest, args createRelationshipArgs) (*mcp.CallToolResult, relationshipResult, error) {
	rel, err := s.rels.Create(ctx, args.FromID, args.ToID, memory.RelationshipType(args.Type), args.Metadata)
	if err != nil {
		return nil, relationshipResult{}, err
	}
	return textResult("Relationship %s: %s -[%s]-> %s",
		rel.ID, rel.FromMemoryID, rel.RelationshipType, rel.ToMemoryID),
		relationshipResult{Relationship: rel}, nil
}

type graphArgs struct {
	MemoryID string `json:"memory_id" jsonschema:"Root memory id"`
	MaxDepth int    `json:"max_depth,omitempty" jsonschema:"Traversal depth from 1 to 3, default 2"`
	MaxNodes int    `json:"max_nodes,omitempty" jsonschema:"Node cap from 1 to 100, default 50"`
}

type graphResult struct {
	Graph *relationship.Graph `json:"graph"`
}

func (s *Server) handleGetGraph(ctx context.Context, req *mcp.CallToolRequest, args graphArgs) (*mcp.CallToolResult, graphResult, error) {
	depth := args.MaxDepth
	if depth == 0 {
		depth = 2
	}
	nodes := args.MaxNodes
	if nodes == 0 {
		nodes = 50
	}
	graph, err := s.rels.GetGraph(ctx, args.MemoryID, depth, nodes)
	if err != nil {
		return nil, graphResult{}, err
	}
	return textResult("Graph of %d nodes rooted at %s", graph.TotalNodes, args.MemoryID),
		graphResult{Graph: graph}, nil
}

type historyResult struct {
	Versions []*memory.Version `json:"versions"`
}

func (s *Server) handleGetHistory(ctx context.Context, req *mcp.CallToolRequest, args memoryIDArgs) (*mcp.CallToolResult, historyResult, error) {
	versions, err := s.store.GetHistory(ctx, args.MemoryID)
	if err != nil {
		return nil, historyResult{}, err
	}
	return textResult("%d versions of memory %s", len(versions), args.MemoryID),
		historyResult{Versions: versions}, nil
}

type rollbackArgs struct {
	MemoryID              string `json:"memory_id" jsonschema:"Memory id"`
	VersionID             string `json:"version_id" jsonschema:"Version to restore"`
	PreserveRelationships bool   `json:"preserve_relationships,omitempty" jsonschema:"Keep the memory's relationship edges, accepted for compatibility"`
}

func (s *Server) handleRollback(ctx context.Context, req *mcp.CallToolRequest, args rollbackArgs) (*mcp.CallToolResult, memoryResult, error) {
	entry, err := s.store.Rollback(ctx, args.MemoryID, args.VersionID, args.PreserveRelationships)
	if err != nil {
		return nil, memoryResult{}, err
	}
	return textResult("Rolled memory %s back to version %s", args.MemoryID, args.VersionID),
		memoryResult{Memory: entry}, nil
}

type createChainArgs struct {
	Task          string `json:"task" jsonschema:"Task description"`
	Context       string `json:"context" jsonschema:"Oversized task context to store out-of-band"`
	MaxDepth      int    `json:"max_depth,omitempty" jsonschema:"Chain nesting limit, default 3"`
	ParentChainID string `json:"parent_chain_id,omitempty" jsonschema:"Parent chain when nesting"`
}

type chainResult struct {
	Chain *memory.ExecutionContext `json:"chain"`
}

func (s *Server) handleCreateChain(ctx context.Context, req *mcp.CallToolRequest, args createChainArgs) (*mcp.CallToolResult, chainResult, error) {
	chain, err := s.chains.CreateChain(ctx, args.Task, args.Context, args.MaxDepth, args.ParentChainID)
	if err != nil {
		return nil, chainResult{}, err
	}
	return textResult("Chain %s created with strategy %s (~%d tokens)",
		chain.ChainID, chain.Strategy, chain.EstimatedTokens), chainResult{Chain: chain}, nil
}

type decomposeArgs struct {
	ChainID  string            `json:"chain_id" jsonschema:"Chain id"`
	Subtasks []rlm.SubtaskSpec `json:"subtasks" jsonschema:"Ordered subtask descriptions"`
}

type subtasksResult struct {
	Subtasks []*memory.Subtask `json:"subtasks"`
}

func (s *Server) handleDecomposeChain(ctx context.Context, req *mcp.CallToolRequest, args decomposeArgs) (*mcp.CallToolResult, subtasksResult, error) {
	subtasks, err := s.chains.Decompose(ctx, args.ChainID, args.Subtasks)
	if err != nil {
		return nil, subtasksResult{}, err
	}
	return textResult("Chain %s decomposed into %d subtasks", args.ChainID, len(subtasks)),
		subtasksResult{Subtasks: subtasks}, nil
}

type snippetArgs struct {
	ChainID   string `json:"chain_id" jsonschema:"Chain id"`
	Pattern   string `json:"pattern" jsonschema:"Regular expression or plain text to match context lines"`
	MaxTokens int    `json:"max_tokens" jsonschema:"Token budget for the returned snippet"`
}

type snippetResult struct {
	Snippet *rlm.Snippet `json:"snippet"`
}

func (s *Server) handleInjectSnippet(ctx context.Context, req *mcp.CallToolRequest, args snippetArgs) (*mcp.CallToolResult, snippetResult, error) {
	snip, err := s.chains.InjectSnippet(ctx, args.ChainID, args.Pattern, args.MaxTokens)
	if err != nil {
		return nil, snippetResult{}, err
	}
	return textResult("Snippet of ~%d tokens, relevance %.2f", snip.TokensUsed, snip.Relevance),
		snippetResult{Snippet: snip}, nil
}

type updateSubtaskArgs struct {
	ChainID    string   `json:"chain_id" jsonschema:"Chain id"`
	SubtaskID  string   `json:"subtask_id" jsonschema:"Subtask id"`
	Result     string   `json:"result" jsonschema:"Subtask outcome text"`
	Status     string   `json:"status,omitempty" jsonschema:"pending, in_progress, completed, or failed; default completed"`
	TokensUsed int      `json:"tokens_used,omitempty" jsonschema:"Tokens the subtask consumed"`
	MemoryIDs  []string `json:"memory_ids,omitempty" jsonschema:"Memories produced by the subtask"`
}

type subtaskResult struct {
	Subtask *memory.Subtask `json:"subtask"`
}

func (s *Server) handleUpdateSubtask(ctx context.Context, req *mcp.CallToolRequest, args updateSubtaskArgs) (*mcp.CallToolResult, subtaskResult, error) {
	st, err := s.chains.UpdateSubtaskResult(ctx, args.ChainID, args.SubtaskID, rlm.SubtaskResult{
		Result:     args.Result,
		Status:     memory.SubtaskStatus(args.Status),
		TokensUsed: args.TokensUsed,
		MemoryIDs:  args.MemoryIDs,
	})
	if err != nil {
		return nil, subtaskResult{}, err
	}
	return textResult("Subtask %s is now %s", st.ID, st.Status), subtaskResult{Subtask: st}, nil
}

type chainIDArgs struct {
	ChainID string `json:"chain_id" jsonschema:"Chain id"`
}

type chainStatusResult struct {
	Summary *rlm.ChainSummary `json:"summary"`
}

func (s *Server) handleChainStatus(ctx context.Context, req *mcp.CallToolRequest, args chainIDArgs) (*mcp.CallToolResult, chainStatusResult, error) {
	sum, err := s.chains.GetChainSummary(ctx, args.ChainID)
	if err != nil {
		return nil, chainStatusResult{}, err
	}
	return textResult("Chain %s: %d/%d subtasks completed, ~%d tokens remaining",
		args.ChainID, sum.Completed, sum.SubtasksTotal, sum.EstimatedTokensRemaining),
		chainStatusResult{Summary: sum}, nil
}

type completeChainArgs struct {
	ChainID      string `json:"chain_id" jsonschema:"Chain id"`
	Status       string `json:"status" jsonschema:"completed or failed"`
	ErrorMessage string `json:"error_message,omitempty" jsonschema:"Failure reason when status is failed"`
}

func (s *Server) handleCompleteChain(ctx context.Context, req *mcp.CallToolRequest, args completeChainArgs) (*mcp.CallToolResult, chainResult, error) {
	chain, err := s.chains.UpdateChainStatus(ctx, args.ChainID, memory.ChainStatus(args.Status), args.ErrorMessage)
	if err != nil {
		return nil, chainResult{}, err
	}
	return textResult("Chain %s is now %s", chain.ChainID, chain.Status), chainResult{Chain: chain}, nil
}

type setCategoryArgs struct {
	MemoryID string `json:"memory_id" jsonschema:"Memory id"`
	Category string `json:"category" jsonschema:"Category name, empty to clear"`
}

func (s *Server) handleSetCategory(ctx context.Context, req *mcp.CallToolRequest, args setCategoryArgs) (*mcp.CallToolResult, memoryResult, error) {
	entry, err := s.store.SetCategory(ctx, args.MemoryID, args.Category)
	if err != nil {
		return nil, memoryResult{}, err
	}
	return textResult("Memory %s category is now %q", entry.ID, entry.Category),
		memoryResult{Memory: entry}, nil
}

type mergeArgs struct {
	MemoryIDs []string `json:"memory_ids" jsonschema:"Memories to merge, at least two"`
	KeepID    string   `json:"keep_id,omitempty" jsonschema:"Survivor id, defaults to the most important input"`
}

func (s *Server) handleMergeMemories(ctx context.Context, req *mcp.CallToolRequest, args mergeArgs) (*mcp.CallToolResult, memoryResult, error) {
	entry, err := s.store.Merge(ctx, args.MemoryIDs, args.KeepID)
	if err != nil {
		return nil, memoryResult{}, err
	}
	return textResult("Merged %d memories into %s", len(args.MemoryIDs), entry.ID),
		memoryResult{Memory: entry}, nil
}

type createFromTemplateArgs struct {
	TemplateID string            `json:"template_id" jsonschema:"Template id, built-ins use the builtin- prefix"`
	Variables  map[string]string `json:"variables" jsonschema:"Values for the template's placeholders"`
	ExtraTags  []string          `json:"extra_tags,omitempty" jsonschema:"Tags added on top of the template's"`
	Importance *int              `json:"importance,omitempty" jsonschema:"Override the template's default importance"`
	SessionID  string            `json:"session_id,omitempty" jsonschema:"Session to attribute the memory to"`
}

func (s *Server) handleCreateFromTemplate(ctx context.Context, req *mcp.CallToolRequest, args createFromTemplateArgs) (*mcp.CallToolResult, memoryResult, error) {
	entry, err := s.store.CreateFromTemplate(ctx, args.TemplateID, args.Variables, memstore.InstantiateOptions{
		ExtraTags:          args.ExtraTags,
		ImportanceOverride: args.Importance,
		SessionID:          args.SessionID,
	})
	if err != nil {
		return nil, memoryResult{}, err
	}
	return textResult("Created memory %s from template %s", entry.ID, args.TemplateID),
		memoryResult{Memory: entry}, nil
}

type statsArgs struct{}

type statsResult struct {
	Stats *memstore.Stats `json:"stats"`
}

func (s *Server) handleStats(ctx context.Context, req *mcp.CallToolRequest, args statsArgs) (*mcp.CallToolResult, statsResult, error) {
	stats, err := s.store.SummaryStats(ctx)
	if err != nil {
		return nil, statsResult{}, err
	}
	return textResult("%d memories, %d important, %d sessions",
		stats.TotalMemories, stats.ImportantCount, stats.SessionCount),
		statsResult{Stats: stats}, nil
}

type workspaceContextArgs struct {
	Limit       int    `json:"limit,omitempty" jsonschema:"How many recent memories to include, default 50"`
	SessionName string `json:"session_name,omitempty" jsonschema:"Session label for the header"`
	MaxChars    int    `json:"max_chars,omitempty" jsonschema:"Character budget, default 8000"`
	FullContent bool   `json:"full_content,omitempty" jsonschema:"Emit full content instead of summaries"`
}

type workspaceContextResult struct {
	Context string `json:"context"`
}

func (s *Server) handleWorkspaceContext(ctx context.Context, req *mcp.CallToolRequest, args workspaceContextArgs) (*mcp.CallToolResult, workspaceContextResult, error) {
	limit := args.Limit
	if limit == 0 {
		limit = 50
	}
	entries, err := s.store.GetRecent(ctx, limit)
	if err != nil {
		return nil, workspaceContextResult{}, err
	}
	payload := prompt.FormatWorkspaceContext(entries, prompt.Options{
		WorkspacePath: s.cfg.WorkspacePath,
		SessionName:   args.SessionName,
		MaxChars:      args.MaxChars,
		FullContent:   args.FullContent,
	})
	return textResult("%s", payload), workspaceContextResult{Context: payload}, nil
}
