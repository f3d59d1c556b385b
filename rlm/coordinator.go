// Package rlm coordinates recursive execution chains: tasks whose context
// exceeds any practical single-call token budget are stored out-of-band,
// decomposed into ordered subtasks, and aggregated once the caller has
// processed each part.
package rlm

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/smallnest/memograph/log"
	"github.com/smallnest/memograph/memory"
	"github.com/smallnest/memograph/storage"
)

// Token estimation uses the common 4-characters-per-token rule of thumb.
const charsPerToken = 4

// recursiveTokenThreshold is the estimated-token count above which a task is
// decomposed recursively regardless of its wording.
const recursiveTokenThreshold = 50000

// MaxChainDepth bounds chain nesting.
const MaxChainDepth = 3

// fallbackAvgSubtaskTokens estimates remaining work before any subtask has
// completed.
const fallbackAvgSubtaskTokens = 4000

// Coordinator manages execution chains for one workspace.
type Coordinator struct {
	client storage.Client
	keys   memory.KeyScheme
	logger log.Logger
}

// NewCoordinator creates a chain coordinator bound to one workspace.
func NewCoordinator(client storage.Client, workspaceID string) *Coordinator {
	return &Coordinator{
		client: client,
		keys:   memory.WorkspaceKeys(workspaceID),
		logger: log.GetDefaultLogger(),
	}
}

// SetLogger replaces the coordinator's logger.
func (c *Coordinator) SetLogger(l log.Logger) {
	if l != nil {
		c.logger = l
	}
}

// DetectStrategy picks the decomposition strategy from the task wording and
// the context size.
func DetectStrategy(task string, estimatedTokens int) memory.Strategy {
	t := strings.ToLower(task)
	for _, kw := range []string{"find", "search", "extract", "error", "warning"} {
		if strings.Contains(t, kw) {
			return memory.StrategyFilter
		}
	}
	for _, kw := range []string{"summarize", "combine", "aggregate", "overview"} {
		if strings.Contains(t, kw) {
			return memory.StrategyAggregate
		}
	}
	if estimatedTokens > recursiveTokenThreshold || strings.Contains(t, "analyze") {
		return memory.StrategyRecursive
	}
	return memory.StrategyChunk
}

// CreateChain registers a new execution chain, storing its oversized context
// out-of-band and marking the chain active.
func (c *Coordinator) CreateChain(ctx context.Context, task, taskContext string, maxDepth int, parentChainID string) (*memory.ExecutionContext, error) {
	if task == "" {
		return nil, memory.NewError(memory.KindInvalidInput, "task must not be empty")
	}
	if maxDepth <= 0 || maxDepth > MaxChainDepth {
		maxDepth = MaxChainDepth
	}

	depth := 0
	if parentChainID != "" {
		parent, err := c.GetChain(ctx, parentChainID)
		if err != nil {
			return nil, err
		}
		depth = parent.Depth + 1
		if depth > maxDepth {
			return nil, memory.Errorf(memory.KindInvalidInput,
				"chain depth %d exceeds maximum %d", depth, maxDepth)
		}
	}

	now := memory.NowMillis()
	chain := &memory.ExecutionContext{
		ChainID:         uuid.NewString(),
		ParentChainID:   parentChainID,
		Depth:           depth,
		Status:          memory.ChainActive,
		OriginalTask:    task,
		EstimatedTokens: (len(taskContext) + charsPerToken - 1) / charsPerToken,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	chain.ContextRef = c.keys.ChainContext(chain.ChainID)
	chain.Strategy = DetectStrategy(task, chain.EstimatedTokens)

	pipe := c.client.Pipeline()
	pipe.HSet(c.keys.Chain(chain.ChainID), chainToFields(chain))
	pipe.Set(chain.ContextRef, taskContext, 0)
	pipe.SAdd(c.keys.Executions(), chain.ChainID)
	pipe.SAdd(c.keys.ActiveExecutions(), chain.ChainID)
	if err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	return chain, nil
}

// GetChain loads one chain.
func (c *Coordinator) GetChain(ctx context.Context, chainID string) (*memory.ExecutionContext, error) {
	fields, err := c.client.HGetAll(ctx, c.keys.Chain(chainID))
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, memory.Errorf(memory.KindNotFound, "chain %s not found", chainID)
	}
	return fieldsToChain(fields)
}

// ListChains returns every chain (or only the still-active ones), newest
// first. Completed chains stay listed; only the active set shrinks.
func (c *Coordinator) ListChains(ctx context.Context, activeOnly bool) ([]*memory.ExecutionContext, error) {
	key := c.keys.Executions()
	if activeOnly {
		key = c.keys.ActiveExecutions()
	}
	ids, err := c.client.SMembers(ctx, key)
	if err != nil {
		return nil, err
	}
	chains := make([]*memory.ExecutionContext, 0, len(ids))
	for _, id := range ids {
		fields, err := c.client.HGetAll(ctx, c.keys.Chain(id))
		if err != nil {
			return nil, err
		}
		if len(fields) == 0 {
			continue
		}
		chain, err := fieldsToChain(fields)
		if err != nil {
			c.logger.Error("skipping unreadable chain: %v", err)
			continue
		}
		chains = append(chains, chain)
	}
	sort.SliceStable(chains, func(i, j int) bool { return chains[i].CreatedAt > chains[j].CreatedAt })
	return chains, nil
}

// SubtaskSpec is the caller-supplied description of one unit of work.
type SubtaskSpec struct {
	Description string `json:"description"`
	Query       string `json:"query,omitempty"`
}

// Decompose records the chain's ordered subtasks. The position in the list
// is the subtask's order and its sorted-set score.
func (c *Coordinator) Decompose(ctx context.Context, chainID string, specs []SubtaskSpec) ([]*memory.Subtask, error) {
	if len(specs) == 0 {
		return nil, memory.NewError(memory.KindInvalidInput, "decomposition needs at least one subtask")
	}
	if _, err := c.GetChain(ctx, chainID); err != nil {
		return nil, err
	}

	now := memory.NowMillis()
	subtasks := make([]*memory.Subtask, len(specs))
	pipe := c.client.Pipeline()
	for i, spec := range specs {
		st := &memory.Subtask{
			ID:          uuid.NewString(),
			ChainID:     chainID,
			Order:       i,
			Description: spec.Description,
			Status:      memory.SubtaskPending,
			Query:       spec.Query,
			CreatedAt:   now,
		}
		subtasks[i] = st
		pipe.HSet(c.keys.Subtask(chainID, st.ID), subtaskToFields(st))
		pipe.ZAdd(c.keys.Subtasks(chainID), float64(i), st.ID)
	}
	pipe.HSet(c.keys.Chain(chainID), map[string]string{
		"updated_at": strconv.FormatInt(now, 10),
	})
	if err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	return subtasks, nil
}

// ListSubtasks returns a chain's subtasks in execution order.
func (c *Coordinator) ListSubtasks(ctx context.Context, chainID string) ([]*memory.Subtask, error) {
	ids, err := c.client.ZRange(ctx, c.keys.Subtasks(chainID), 0, -1)
	if err != nil {
		return nil, err
	}
	subtasks := make([]*memory.Subtask, 0, len(ids))
	for _, id := range ids {
		fields, err := c.client.HGetAll(ctx, c.keys.Subtask(chainID, id))
		if err != nil {
			return nil, err
		}
		if len(fields) == 0 {
			continue
		}
		st, err := fieldsToSubtask(fields)
		if err != nil {
			c.logger.Error("skipping unreadable subtask: %v", err)
			continue
		}
		subtasks = append(subtasks, st)
	}
	return subtasks, nil
}

// SubtaskResult carries the outcome of one subtask.
type SubtaskResult struct {
	Result     string               `json:"result"`
	Status     memory.SubtaskStatus `json:"status,omitempty"` // defaults to completed
	TokensUsed int                  `json:"tokens_used,omitempty"`
	MemoryIDs  []string             `json:"memory_ids,omitempty"`
}

// UpdateSubtaskResult records a subtask's outcome and stamps its completion.
func (c *Coordinator) UpdateSubtaskResult(ctx context.Context, chainID, subtaskID string, res SubtaskResult) (*memory.Subtask, error) {
	fields, err := c.client.HGetAll(ctx, c.keys.Subtask(chainID, subtaskID))
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, memory.Errorf(memory.KindNotFound, "subtask %s of chain %s not found", subtaskID, chainID)
	}
	st, err := fieldsToSubtask(fields)
	if err != nil {
		return nil, err
	}

	status := res.Status
	if status == "" {
		status = memory.SubtaskCompleted
	}
	switch status {
	case memory.SubtaskPending, memory.SubtaskInProgress, memory.SubtaskCompleted, memory.SubtaskFailed:
	default:
		return nil, memory.Errorf(memory.KindInvalidInput, "unknown subtask status %q", status)
	}

	now := memory.NowMillis()
	st.Result = res.Result
	st.Status = status
	st.TokensUsed = res.TokensUsed
	if res.MemoryIDs != nil {
		st.MemoryIDs = res.MemoryIDs
	}
	if status == memory.SubtaskCompleted || status == memory.SubtaskFailed {
		st.CompletedAt = now
	}

	pipe := c.client.Pipeline()
	pipe.HSet(c.keys.Subtask(chainID, subtaskID), subtaskToFields(st))
	pipe.HSet(c.keys.Chain(chainID), map[string]string{
		"updated_at": strconv.FormatInt(now, 10),
	})
	if err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	return st, nil
}

// ChainSummary reports a chain's progress by subtask status.
type ChainSummary struct {
	Chain                    *memory.ExecutionContext `json:"chain"`
	SubtasksTotal            int                      `json:"subtasks_total"`
	Pending                  int                      `json:"pending"`
	InProgress               int                      `json:"in_progress"`
	Completed                int                      `json:"completed"`
	Failed                   int                      `json:"failed"`
	EstimatedTokensRemaining int                      `json:"estimated_tokens_remaining"`
}

// GetChainSummary counts subtasks by status and estimates the tokens still
// needed as (pending + in progress) times the average over completed
// subtasks.
func (c *Coordinator) GetChainSummary(ctx context.Context, chainID string) (*ChainSummary, error) {
	chain, err := c.GetChain(ctx, chainID)
	if err != nil {
		return nil, err
	}
	subtasks, err := c.ListSubtasks(ctx, chainID)
	if err != nil {
		return nil, err
	}

	sum := &ChainSummary{Chain: chain, SubtasksTotal: len(subtasks)}
	completedTokens := 0
	for _, st := range subtasks {
		switch st.Status {
		case memory.SubtaskPending:
			sum.Pending++
		case memory.SubtaskInProgress:
			sum.InProgress++
		case memory.SubtaskCompleted:
			sum.Completed++
			completedTokens += st.TokensUsed
		case memory.SubtaskFailed:
			sum.Failed++
		}
	}
	avg := fallbackAvgSubtaskTokens
	if sum.Completed > 0 && completedTokens > 0 {
		avg = completedTokens / sum.Completed
	}
	sum.EstimatedTokensRemaining = (sum.Pending + sum.InProgress) * avg
	return sum, nil
}

// StoreMergedResults records the caller's aggregation in the chain's results
// hash, filling in the subtask counts.
func (c *Coordinator) StoreMergedResults(ctx context.Context, chainID string, res memory.MergedResults) (*memory.MergedResults, error) {
	if _, err := c.GetChain(ctx, chainID); err != nil {
		return nil, err
	}
	subtasks, err := c.ListSubtasks(ctx, chainID)
	if err != nil {
		return nil, err
	}
	res.SubtasksTotal = len(subtasks)
	res.SubtasksCompleted = 0
	for _, st := range subtasks {
		if st.Status == memory.SubtaskCompleted {
			res.SubtasksCompleted++
		}
	}
	if err := c.client.HSet(ctx, c.keys.ChainResults(chainID), mergedResultsToFields(&res)); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetMergedResults loads a chain's stored aggregation.
func (c *Coordinator) GetMergedResults(ctx context.Context, chainID string) (*memory.MergedResults, error) {
	fields, err := c.client.HGetAll(ctx, c.keys.ChainResults(chainID))
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, memory.Errorf(memory.KindNotFound, "no merged results for chain %s", chainID)
	}
	return fieldsToMergedResults(fields)
}

// UpdateChainStatus moves a chain into a terminal state. Terminal chains
// leave the active set but stay in the executions index.
func (c *Coordinator) UpdateChainStatus(ctx context.Context, chainID string, status memory.ChainStatus, errorMessage string) (*memory.ExecutionContext, error) {
	chain, err := c.GetChain(ctx, chainID)
	if err != nil {
		return nil, err
	}
	switch status {
	case memory.ChainCompleted, memory.ChainFailed:
	default:
		return nil, memory.Errorf(memory.KindInvalidInput, "cannot transition chain to status %q", status)
	}

	now := memory.NowMillis()
	chain.Status = status
	chain.UpdatedAt = now
	chain.CompletedAt = now
	chain.ErrorMessage = errorMessage

	pipe := c.client.Pipeline()
	pipe.HSet(c.keys.Chain(chainID), chainToFields(chain))
	pipe.SRem(c.keys.ActiveExecutions(), chainID)
	if err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	return chain, nil
}

// DeleteChain removes a chain, its context, subtasks, results, and set
// memberships.
func (c *Coordinator) DeleteChain(ctx context.Context, chainID string) error {
	if _, err := c.GetChain(ctx, chainID); err != nil {
		return err
	}
	subtaskIDs, err := c.client.ZRange(ctx, c.keys.Subtasks(chainID), 0, -1)
	if err != nil {
		return err
	}

	pipe := c.client.Pipeline()
	for _, id := range subtaskIDs {
		pipe.Del(c.keys.Subtask(chainID, id))
	}
	pipe.Del(c.keys.Subtasks(chainID))
	pipe.Del(c.keys.ChainContext(chainID))
	pipe.Del(c.keys.ChainResults(chainID))
	pipe.Del(c.keys.Chain(chainID))
	pipe.SRem(c.keys.Executions(), chainID)
	pipe.SRem(c.keys.ActiveExecutions(), chainID)
	return pipe.Exec(ctx)
}

func chainToFields(c *memory.ExecutionContext) map[string]string {
	return map[string]string{
		"chain_id":         c.ChainID,
		"parent_chain_id":  c.ParentChainID,
		"depth":            strconv.Itoa(c.Depth),
		"status":           string(c.Status),
		"original_task":    c.OriginalTask,
		"context_ref":      c.ContextRef,
		"strategy":         string(c.Strategy),
		"estimated_tokens": strconv.Itoa(c.EstimatedTokens),
		"created_at":       strconv.FormatInt(c.CreatedAt, 10),
		"updated_at":       strconv.FormatInt(c.UpdatedAt, 10),
		"completed_at":     strconv.FormatInt(c.CompletedAt, 10),
		"error_message":    c.ErrorMessage,
	}
}

func fieldsToChain(fields map[string]string) (*memory.ExecutionContext, error) {
	chain := &memory.ExecutionContext{
		ChainID:       fields["chain_id"],
		ParentChainID: fields["parent_chain_id"],
		Status:        memory.ChainStatus(fields["status"]),
		OriginalTask:  fields["original_task"],
		ContextRef:    fields["context_ref"],
		Strategy:      memory.Strategy(fields["strategy"]),
		ErrorMessage:  fields["error_message"],
	}
	var err error
	if chain.Depth, err = parseIntField(fields["depth"]); err != nil {
		return nil, chainCorrupt(chain.ChainID, "depth", err)
	}
	if chain.EstimatedTokens, err = parseIntField(fields["estimated_tokens"]); err != nil {
		return nil, chainCorrupt(chain.ChainID, "estimated_tokens", err)
	}
	if chain.CreatedAt, err = parseInt64Field(fields["created_at"]); err != nil {
		return nil, chainCorrupt(chain.ChainID, "created_at", err)
	}
	if chain.UpdatedAt, err = parseInt64Field(fields["updated_at"]); err != nil {
		return nil, chainCorrupt(chain.ChainID, "updated_at", err)
	}
	if chain.CompletedAt, err = parseInt64Field(fields["completed_at"]); err != nil {
		return nil, chainCorrupt(chain.ChainID, "completed_at", err)
	}
	return chain, nil
}

func subtaskToFields(st *memory.Subtask) map[string]string {
	ids, _ := json.Marshal(st.MemoryIDs)
	return map[string]string{
		"id":           st.ID,
		"chain_id":     st.ChainID,
		"order":        strconv.Itoa(st.Order),
		"description":  st.Description,
		"status":       string(st.Status),
		"query":        st.Query,
		"result":       st.Result,
		"memory_ids":   string(ids),
		"tokens_used":  strconv.Itoa(st.TokensUsed),
		"created_at":   strconv.FormatInt(st.CreatedAt, 10),
		"completed_at": strconv.FormatInt(st.CompletedAt, 10),
	}
}

func fieldsToSubtask(fields map[string]string) (*memory.Subtask, error) {
	st := &memory.Subtask{
		ID:          fields["id"],
		ChainID:     fields["chain_id"],
		Description: fields["description"],
		Status:      memory.SubtaskStatus(fields["status"]),
		Query:       fields["query"],
		Result:      fields["result"],
	}
	var err error
	if st.Order, err = parseIntField(fields["order"]); err != nil {
		return nil, chainCorrupt(st.ID, "order", err)
	}
	if st.TokensUsed, err = parseIntField(fields["tokens_used"]); err != nil {
		return nil, chainCorrupt(st.ID, "tokens_used", err)
	}
	if st.CreatedAt, err = parseInt64Field(fields["created_at"]); err != nil {
		return nil, chainCorrupt(st.ID, "created_at", err)
	}
	if st.CompletedAt, err = parseInt64Field(fields["completed_at"]); err != nil {
		return nil, chainCorrupt(st.ID, "completed_at", err)
	}
	if s := fields["memory_ids"]; s != "" && s != "null" {
		if err := json.Unmarshal([]byte(s), &st.MemoryIDs); err != nil {
			return nil, chainCorrupt(st.ID, "memory_ids", err)
		}
	}
	return st, nil
}

func mergedResultsToFields(r *memory.MergedResults) map[string]string {
	return map[string]string{
		"aggregated_result":  r.AggregatedResult,
		"confidence":         strconv.FormatFloat(r.Confidence, 'f', -1, 64),
		"source_coverage":    strconv.FormatFloat(r.SourceCoverage, 'f', -1, 64),
		"subtasks_completed": strconv.Itoa(r.SubtasksCompleted),
		"subtasks_total":     strconv.Itoa(r.SubtasksTotal),
	}
}

func fieldsToMergedResults(fields map[string]string) (*memory.MergedResults, error) {
	r := &memory.MergedResults{AggregatedResult: fields["aggregated_result"]}
	var err error
	if s := fields["confidence"]; s != "" {
		if r.Confidence, err = strconv.ParseFloat(s, 64); err != nil {
			return nil, memory.WrapError(memory.KindInternal, "merged results: bad confidence", err)
		}
	}
	if s := fields["source_coverage"]; s != "" {
		if r.SourceCoverage, err = strconv.ParseFloat(s, 64); err != nil {
			return nil, memory.WrapError(memory.KindInternal, "merged results: bad source_coverage", err)
		}
	}
	if r.SubtasksCompleted, err = parseIntField(fields["subtasks_completed"]); err != nil {
		return nil, memory.WrapError(memory.KindInternal, "merged results: bad subtasks_completed", err)
	}
	if r.SubtasksTotal, err = parseIntField(fields["subtasks_total"]); err != nil {
		return nil, memory.WrapError(memory.KindInternal, "merged results: bad subtasks_total", err)
	}
	return r, nil
}

func parseIntField(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func parseInt64Field(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

func chainCorrupt(id, field string, err error) error {
	return memory.WrapError(memory.KindInternal, "chain record "+id+": bad "+field, err)
}
