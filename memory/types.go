package memory

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// VectorSize is the fixed length of every memory embedding. Persisted
// vectors of a different length are rejected as corrupt.
const VectorSize = 128

// ContextType classifies what kind of fact a memory entry records.
type ContextType string

// Supported context types.
const (
	TypeDirective   ContextType = "directive"
	TypeInformation ContextType = "information"
	TypeHeading     ContextType = "heading"
	TypeDecision    ContextType = "decision"
	TypeCodePattern ContextType = "code_pattern"
	TypeRequirement ContextType = "requirement"
	TypeError       ContextType = "error"
	TypeTodo        ContextType = "todo"
	TypeInsight     ContextType = "insight"
	TypePreference  ContextType = "preference"
)

var validContextTypes = map[ContextType]bool{
	TypeDirective:   true,
	TypeInformation: true,
	TypeHeading:     true,
	TypeDecision:    true,
	TypeCodePattern: true,
	TypeRequirement: true,
	TypeError:       true,
	TypeTodo:        true,
	TypeInsight:     true,
	TypePreference:  true,
}

// ValidContextType reports whether t is one of the supported context types.
func ValidContextType(t ContextType) bool {
	return validContextTypes[t]
}

// NormalizeContextType maps loose type strings produced by LLMs onto the
// supported set. Unknown strings become TypeInformation.
func NormalizeContextType(s string) ContextType {
	t := ContextType(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case "instruction", "command":
		return TypeDirective
	case "pattern":
		return TypeCodePattern
	case "bug", "mistake":
		return TypeError
	case "idea", "learning":
		return TypeInsight
	}
	if validContextTypes[t] {
		return t
	}
	return TypeInformation
}

// Entry is one remembered fact, decision, or pattern belonging to one scope.
type Entry struct {
	ID          string      `json:"id"`
	Timestamp   int64       `json:"timestamp"` // milliseconds since epoch
	ContextType ContextType `json:"context_type"`
	Content     string      `json:"content"`
	Summary     string      `json:"summary,omitempty"`
	Tags        []string    `json:"tags"`
	Importance  int         `json:"importance"`
	SessionID   string      `json:"session_id,omitempty"`
	Embedding   []float64   `json:"embedding,omitempty"`
	TTLSeconds  int64       `json:"ttl_seconds,omitempty"`
	ExpiresAt   int64       `json:"expires_at,omitempty"`
	IsGlobal    bool        `json:"is_global"`
	WorkspaceID string      `json:"workspace_id,omitempty"`
	Category    string      `json:"category,omitempty"`
}

// ImportantThreshold is the importance at which an entry enters the
// "important" index.
const ImportantThreshold = 8

// MinTTLSeconds is the smallest accepted TTL.
const MinTTLSeconds = 60

// DeriveSummary produces the default summary for content: the first 100
// characters followed by an ellipsis when truncation happened.
func DeriveSummary(content string) string {
	r := []rune(content)
	if len(r) <= 100 {
		return content
	}
	return string(r[:100]) + "..."
}

// NewEntryID returns a time-prefixed, lexicographically sortable id.
// UUIDv7 embeds the creation time in its leading bits, so the string form
// sorts by creation order.
func NewEntryID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// NowMillis returns the current time in milliseconds since the epoch.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// SessionInfo groups memories created within one conversation session.
// Sessions are always workspace-scoped.
type SessionInfo struct {
	SessionID   string   `json:"session_id"`
	SessionName string   `json:"session_name"`
	CreatedAt   int64    `json:"created_at"`
	MemoryCount int      `json:"memory_count"`
	Summary     string   `json:"summary,omitempty"`
	MemoryIDs   []string `json:"memory_ids"`
}

// RelationshipType labels a directed edge between two memories.
type RelationshipType string

// Supported relationship types.
const (
	RelRelatesTo  RelationshipType = "relates_to"
	RelParentOf   RelationshipType = "parent_of"
	RelChildOf    RelationshipType = "child_of"
	RelReferences RelationshipType = "references"
	RelSupersedes RelationshipType = "supersedes"
	RelImplements RelationshipType = "implements"
	RelExampleOf  RelationshipType = "example_of"
)

var validRelationshipTypes = map[RelationshipType]bool{
	RelRelatesTo:  true,
	RelParentOf:   true,
	RelChildOf:    true,
	RelReferences: true,
	RelSupersedes: true,
	RelImplements: true,
	RelExampleOf:  true,
}

// ValidRelationshipType reports whether t is a supported edge type.
func ValidRelationshipType(t RelationshipType) bool {
	return validRelationshipTypes[t]
}

// Relationship is a typed directed edge between two memory entries.
type Relationship struct {
	ID               string            `json:"id"`
	FromMemoryID     string            `json:"from_memory_id"`
	ToMemoryID       string            `json:"to_memory_id"`
	RelationshipType RelationshipType  `json:"relationship_type"`
	CreatedAt        time.Time         `json:"created_at"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// Version is an immutable snapshot of a memory's mutable fields, appended on
// every update and on rollback.
type Version struct {
	VersionID    string      `json:"version_id"`
	MemoryID     string      `json:"memory_id"`
	Content      string      `json:"content"`
	ContextType  ContextType `json:"context_type"`
	Importance   int         `json:"importance"`
	Tags         []string    `json:"tags"`
	Summary      string      `json:"summary,omitempty"`
	CreatedAt    int64       `json:"created_at"`
	CreatedBy    string      `json:"created_by"` // "user" or "system"
	ChangeReason string      `json:"change_reason,omitempty"`
}

// Template is a reusable memory blueprint with {{variable}} placeholders in
// its content.
type Template struct {
	TemplateID        string      `json:"template_id"`
	Name              string      `json:"name"`
	Description       string      `json:"description,omitempty"`
	ContextType       ContextType `json:"context_type"`
	ContentTemplate   string      `json:"content_template"`
	DefaultTags       []string    `json:"default_tags"`
	DefaultImportance int         `json:"default_importance"`
	IsBuiltin         bool        `json:"is_builtin"`
	CreatedAt         int64       `json:"created_at"`
}

// ChainStatus is the lifecycle state of an RLM execution chain.
type ChainStatus string

// Chain statuses.
const (
	ChainActive    ChainStatus = "active"
	ChainCompleted ChainStatus = "completed"
	ChainFailed    ChainStatus = "failed"
)

// Strategy selects how an oversized task is decomposed.
type Strategy string

// Decomposition strategies.
const (
	StrategyFilter    Strategy = "filter"
	StrategyChunk     Strategy = "chunk"
	StrategyRecursive Strategy = "recursive"
	StrategyAggregate Strategy = "aggregate"
)

// ExecutionContext describes one RLM chain: a task whose context exceeds any
// practical single-call token budget.
type ExecutionContext struct {
	ChainID         string      `json:"chain_id"`
	ParentChainID   string      `json:"parent_chain_id,omitempty"`
	Depth           int         `json:"depth"`
	Status          ChainStatus `json:"status"`
	OriginalTask    string      `json:"original_task"`
	ContextRef      string      `json:"context_ref"`
	Strategy        Strategy    `json:"strategy"`
	EstimatedTokens int         `json:"estimated_tokens"`
	CreatedAt       int64       `json:"created_at"`
	UpdatedAt       int64       `json:"updated_at"`
	CompletedAt     int64       `json:"completed_at,omitempty"`
	ErrorMessage    string      `json:"error_message,omitempty"`
}

// SubtaskStatus is the lifecycle state of one unit of chain work.
type SubtaskStatus string

// Subtask statuses.
const (
	SubtaskPending    SubtaskStatus = "pending"
	SubtaskInProgress SubtaskStatus = "in_progress"
	SubtaskCompleted  SubtaskStatus = "completed"
	SubtaskFailed     SubtaskStatus = "failed"
)

// Subtask is one ordered unit of work within an RLM chain.
type Subtask struct {
	ID          string        `json:"id"`
	ChainID     string        `json:"chain_id"`
	Order       int           `json:"order"`
	Description string        `json:"description"`
	Status      SubtaskStatus `json:"status"`
	Query       string        `json:"query,omitempty"`
	Result      string        `json:"result,omitempty"`
	MemoryIDs   []string      `json:"memory_ids,omitempty"`
	TokensUsed  int           `json:"tokens_used,omitempty"`
	CreatedAt   int64         `json:"created_at"`
	CompletedAt int64         `json:"completed_at,omitempty"`
}

// MergedResults is the caller-supplied aggregation of a chain's subtask
// results.
type MergedResults struct {
	AggregatedResult  string  `json:"aggregated_result"`
	Confidence        float64 `json:"confidence"`
	SourceCoverage    float64 `json:"source_coverage"`
	SubtasksCompleted int     `json:"subtasks_completed"`
	SubtasksTotal     int     `json:"subtasks_total"`
}

// CreateRequest carries the caller-supplied fields for a new memory.
type CreateRequest struct {
	Content     string      `json:"content"`
	ContextType ContextType `json:"context_type"`
	Summary     string      `json:"summary,omitempty"`
	Tags        []string    `json:"tags,omitempty"`
	Importance  int         `json:"importance"`
	SessionID   string      `json:"session_id,omitempty"`
	TTLSeconds  int64       `json:"ttl_seconds,omitempty"`
	IsGlobal    bool        `json:"is_global,omitempty"`
	Category    string      `json:"category,omitempty"`
}

// UpdateRequest carries the mutable fields of a memory. Nil pointers leave
// the corresponding field unchanged; a nil Tags slice leaves tags unchanged.
type UpdateRequest struct {
	Content     *string      `json:"content,omitempty"`
	ContextType *ContextType `json:"context_type,omitempty"`
	Summary     *string      `json:"summary,omitempty"`
	Tags        []string     `json:"tags,omitempty"`
	Importance  *int         `json:"importance,omitempty"`
}
