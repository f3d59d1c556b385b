package memory

// KeyScheme produces the canonical backend key for every index in one scope.
// It is a pure value: two schemes with the same prefix produce identical
// keys.
type KeyScheme struct {
	prefix string
}

// WorkspaceKeys returns the key scheme for one workspace scope.
func WorkspaceKeys(workspaceID string) KeyScheme {
	return KeyScheme{prefix: "ws:" + workspaceID + ":"}
}

// GlobalKeys returns the key scheme for the global scope.
func GlobalKeys() KeyScheme {
	return KeyScheme{prefix: "global:"}
}

// KeysFor returns the key scheme matching an entry's scope.
func KeysFor(e *Entry) KeyScheme {
	if e.IsGlobal {
		return GlobalKeys()
	}
	return WorkspaceKeys(e.WorkspaceID)
}

// IsGlobal reports whether the scheme addresses the global scope.
func (k KeyScheme) IsGlobal() bool { return k.prefix == "global:" }

// Memory is the hash holding one entry's fields.
func (k KeyScheme) Memory(id string) string { return k.prefix + "memory:" + id }

// AllMemories is the scope's membership set.
func (k KeyScheme) AllMemories() string { return k.prefix + "memories:all" }

// ByType indexes entries by context type.
func (k KeyScheme) ByType(t ContextType) string {
	return k.prefix + "memories:type:" + string(t)
}

// ByTag indexes entries carrying one tag.
func (k KeyScheme) ByTag(tag string) string { return k.prefix + "memories:tag:" + tag }

// Timeline is the sorted set scoring entries by creation timestamp.
func (k KeyScheme) Timeline() string { return k.prefix + "memories:timeline" }

// Important is the sorted set of entries with importance >= 8, scored by
// importance.
func (k KeyScheme) Important() string { return k.prefix + "memories:important" }

// Session is the hash holding one session's fields.
func (k KeyScheme) Session(sessionID string) string { return k.prefix + "session:" + sessionID }

// AllSessions is the set of session ids in the scope.
func (k KeyScheme) AllSessions() string { return k.prefix + "sessions:all" }

// Relationship is the hash holding one edge's fields.
func (k KeyScheme) Relationship(relID string) string { return k.prefix + "relationship:" + relID }

// AllRelationships is the all-edges index for the scope.
func (k KeyScheme) AllRelationships() string { return k.prefix + "relationships:all" }

// RelationshipsOut is the set of edge ids leaving a memory.
func (k KeyScheme) RelationshipsOut(memoryID string) string {
	return k.prefix + "memory:" + memoryID + ":relationships:out"
}

// RelationshipsIn is the set of edge ids arriving at a memory.
func (k KeyScheme) RelationshipsIn(memoryID string) string {
	return k.prefix + "memory:" + memoryID + ":relationships:in"
}

// Version is the hash holding one version snapshot.
func (k KeyScheme) Version(memoryID, versionID string) string {
	return k.prefix + "memory_version:" + memoryID + ":" + versionID
}

// Versions is the per-memory version log, scored by creation time.
func (k KeyScheme) Versions(memoryID string) string { return k.prefix + "versions:" + memoryID }

// Template is the hash holding one user template.
func (k KeyScheme) Template(templateID string) string { return k.prefix + "template:" + templateID }

// AllTemplates is the set of user template ids in the scope.
func (k KeyScheme) AllTemplates() string { return k.prefix + "templates:all" }

// Category is the set of memory ids assigned to one category.
func (k KeyScheme) Category(category string) string { return k.prefix + "category:" + category }

// Categories is the sorted set of known categories, scored by last use.
func (k KeyScheme) Categories() string { return k.prefix + "categories" }

// MemoryCategory is the per-memory string key recording its current
// category.
func (k KeyScheme) MemoryCategory(memoryID string) string {
	return k.prefix + "memory_category:" + memoryID
}

// Chain is the hash holding one RLM execution chain.
func (k KeyScheme) Chain(chainID string) string { return k.prefix + "rlm:chain:" + chainID }

// ChainContext is the string key holding a chain's oversized context.
func (k KeyScheme) ChainContext(chainID string) string { return k.prefix + "rlm:context:" + chainID }

// Subtasks is the per-chain subtask order, scored by position.
func (k KeyScheme) Subtasks(chainID string) string { return k.prefix + "rlm:subtasks:" + chainID }

// Subtask is the hash holding one subtask.
func (k KeyScheme) Subtask(chainID, subtaskID string) string {
	return k.prefix + "rlm:subtask:" + chainID + ":" + subtaskID
}

// ChainResults is the hash holding a chain's merged results.
func (k KeyScheme) ChainResults(chainID string) string { return k.prefix + "rlm:results:" + chainID }

// Executions is the set of every chain id ever created in the scope.
func (k KeyScheme) Executions() string { return k.prefix + "rlm:executions" }

// ActiveExecutions is the set of chain ids still in the active state.
func (k KeyScheme) ActiveExecutions() string { return k.prefix + "rlm:executions:active" }
