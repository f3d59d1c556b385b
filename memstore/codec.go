package memstore

import (
	"encoding/json"
	"strconv"

	"github.com/smallnest/memograph/memory"
)

// entryToFields flattens an entry into the hash wire format: decimal
// numbers, JSON arrays for tags and embedding, "true"/"false" booleans.
func entryToFields(e *memory.Entry) map[string]string {
	tags, _ := json.Marshal(e.Tags)
	emb, _ := json.Marshal(e.Embedding)
	fields := map[string]string{
		"id":           e.ID,
		"timestamp":    strconv.FormatInt(e.Timestamp, 10),
		"context_type": string(e.ContextType),
		"content":      e.Content,
		"summary":      e.Summary,
		"tags":         string(tags),
		"importance":   strconv.Itoa(e.Importance),
		"session_id":   e.SessionID,
		"embedding":    string(emb),
		"is_global":    strconv.FormatBool(e.IsGlobal),
		"workspace_id": e.WorkspaceID,
		"category":     e.Category,
	}
	if e.TTLSeconds > 0 {
		fields["ttl_seconds"] = strconv.FormatInt(e.TTLSeconds, 10)
		fields["expires_at"] = strconv.FormatInt(e.ExpiresAt, 10)
	}
	return fields
}

// fieldsToEntry parses a persisted hash. Malformed rows surface as Internal
// errors naming the entry so callers can log and move on without failing
// reads of unrelated entries.
func fieldsToEntry(fields map[string]string) (*memory.Entry, error) {
	e := &memory.Entry{
		ID:          fields["id"],
		ContextType: memory.ContextType(fields["context_type"]),
		Content:     fields["content"],
		Summary:     fields["summary"],
		SessionID:   fields["session_id"],
		WorkspaceID: fields["workspace_id"],
		Category:    fields["category"],
		IsGlobal:    fields["is_global"] == "true",
	}
	var err error
	if e.Timestamp, err = parseInt64(fields["timestamp"]); err != nil {
		return nil, corrupt(e.ID, "timestamp", err)
	}
	if s := fields["importance"]; s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, corrupt(e.ID, "importance", err)
		}
		e.Importance = n
	}
	if e.TTLSeconds, err = parseInt64(fields["ttl_seconds"]); err != nil {
		return nil, corrupt(e.ID, "ttl_seconds", err)
	}
	if e.ExpiresAt, err = parseInt64(fields["expires_at"]); err != nil {
		return nil, corrupt(e.ID, "expires_at", err)
	}
	if s := fields["tags"]; s != "" {
		if err := json.Unmarshal([]byte(s), &e.Tags); err != nil {
			return nil, corrupt(e.ID, "tags", err)
		}
	}
	if e.Tags == nil {
		e.Tags = []string{}
	}
	if s := fields["embedding"]; s != "" && s != "null" {
		if err := json.Unmarshal([]byte(s), &e.Embedding); err != nil {
			return nil, corrupt(e.ID, "embedding", err)
		}
		if len(e.Embedding) != 0 && len(e.Embedding) != memory.VectorSize {
			return nil, memory.Errorf(memory.KindInternal,
				"memory %s: persisted embedding has %d components, want %d",
				e.ID, len(e.Embedding), memory.VectorSize)
		}
	}
	return e, nil
}

func parseInt64(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

func corrupt(id, field string, err error) error {
	return memory.WrapError(memory.KindInternal, "memory "+id+": bad "+field, err)
}

// sessionToFields flattens a session record.
func sessionToFields(s *memory.SessionInfo) map[string]string {
	ids, _ := json.Marshal(s.MemoryIDs)
	return map[string]string{
		"session_id":   s.SessionID,
		"session_name": s.SessionName,
		"created_at":   strconv.FormatInt(s.CreatedAt, 10),
		"memory_count": strconv.Itoa(s.MemoryCount),
		"summary":      s.Summary,
		"memory_ids":   string(ids),
	}
}

func fieldsToSession(fields map[string]string) (*memory.SessionInfo, error) {
	s := &memory.SessionInfo{
		SessionID:   fields["session_id"],
		SessionName: fields["session_name"],
		Summary:     fields["summary"],
	}
	var err error
	if s.CreatedAt, err = parseInt64(fields["created_at"]); err != nil {
		return nil, memory.WrapError(memory.KindInternal, "session "+s.SessionID+": bad created_at", err)
	}
	if v := fields["memory_count"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, memory.WrapError(memory.KindInternal, "session "+s.SessionID+": bad memory_count", err)
		}
		s.MemoryCount = n
	}
	if v := fields["memory_ids"]; v != "" {
		if err := json.Unmarshal([]byte(v), &s.MemoryIDs); err != nil {
			return nil, memory.WrapError(memory.KindInternal, "session "+s.SessionID+": bad memory_ids", err)
		}
	}
	if s.MemoryIDs == nil {
		s.MemoryIDs = []string{}
	}
	return s, nil
}

// templateToFields flattens a template record.
func templateToFields(t *memory.Template) map[string]string {
	tags, _ := json.Marshal(t.DefaultTags)
	return map[string]string{
		"template_id":        t.TemplateID,
		"name":               t.Name,
		"description":        t.Description,
		"context_type":       string(t.ContextType),
		"content_template":   t.ContentTemplate,
		"default_tags":       string(tags),
		"default_importance": strconv.Itoa(t.DefaultImportance),
		"is_builtin":         strconv.FormatBool(t.IsBuiltin),
		"created_at":         strconv.FormatInt(t.CreatedAt, 10),
	}
}

func fieldsToTemplate(fields map[string]string) (*memory.Template, error) {
	t := &memory.Template{
		TemplateID:      fields["template_id"],
		Name:            fields["name"],
		Description:     fields["description"],
		ContextType:     memory.ContextType(fields["context_type"]),
		ContentTemplate: fields["content_template"],
		IsBuiltin:       fields["is_builtin"] == "true",
	}
	var err error
	if t.CreatedAt, err = parseInt64(fields["created_at"]); err != nil {
		return nil, memory.WrapError(memory.KindInternal, "template "+t.TemplateID+": bad created_at", err)
	}
	if v := fields["default_importance"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, memory.WrapError(memory.KindInternal, "template "+t.TemplateID+": bad default_importance", err)
		}
		t.DefaultImportance = n
	}
	if v := fields["default_tags"]; v != "" {
		if err := json.Unmarshal([]byte(v), &t.DefaultTags); err != nil {
			return nil, memory.WrapError(memory.KindInternal, "template "+t.TemplateID+": bad default_tags", err)
		}
	}
	if t.DefaultTags == nil {
		t.DefaultTags = []string{}
	}
	return t, nil
}
