package memstore

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/smallnest/memograph/memory"
)

// CreateSession starts a named session in the workspace scope.
func (s *Store) CreateSession(ctx context.Context, name string) (*memory.SessionInfo, error) {
	if name == "" {
		return nil, memory.NewError(memory.KindInvalidInput, "session name must not be empty")
	}
	info := &memory.SessionInfo{
		SessionID:   uuid.NewString(),
		SessionName: name,
		CreatedAt:   memory.NowMillis(),
		MemoryIDs:   []string{},
	}
	ks := s.workspaceKeys()
	pipe := s.client.Pipeline()
	pipe.HSet(ks.Session(info.SessionID), sessionToFields(info))
	pipe.SAdd(ks.AllSessions(), info.SessionID)
	if err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	return info, nil
}

// GetSession loads one session.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*memory.SessionInfo, error) {
	fields, err := s.client.HGetAll(ctx, s.workspaceKeys().Session(sessionID))
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, memory.Errorf(memory.KindNotFound, "session %s not found", sessionID)
	}
	return fieldsToSession(fields)
}

// ListSessions returns all workspace sessions, newest first.
func (s *Store) ListSessions(ctx context.Context) ([]*memory.SessionInfo, error) {
	ks := s.workspaceKeys()
	ids, err := s.client.SMembers(ctx, ks.AllSessions())
	if err != nil {
		return nil, err
	}
	sessions := make([]*memory.SessionInfo, 0, len(ids))
	for _, id := range ids {
		fields, err := s.client.HGetAll(ctx, ks.Session(id))
		if err != nil {
			return nil, err
		}
		if len(fields) == 0 {
			continue
		}
		info, err := fieldsToSession(fields)
		if err != nil {
			s.logger.Error("skipping unreadable session: %v", err)
			continue
		}
		sessions = append(sessions, info)
	}
	sort.SliceStable(sessions, func(i, j int) bool { return sessions[i].CreatedAt > sessions[j].CreatedAt })
	return sessions, nil
}

// SetSessionSummary stores an analyzer-produced synopsis on a session.
func (s *Store) SetSessionSummary(ctx context.Context, sessionID, summary string) error {
	info, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	info.Summary = summary
	return s.client.HSet(ctx, s.workspaceKeys().Session(sessionID), sessionToFields(info))
}

// recordSessionMemory appends a memory id to its session, creating the
// session implicitly when it does not exist yet.
func (s *Store) recordSessionMemory(ctx context.Context, sessionID, memoryID string) error {
	ks := s.workspaceKeys()
	fields, err := s.client.HGetAll(ctx, ks.Session(sessionID))
	if err != nil {
		return err
	}
	var info *memory.SessionInfo
	if len(fields) == 0 {
		info = &memory.SessionInfo{
			SessionID:   sessionID,
			SessionName: sessionID,
			CreatedAt:   memory.NowMillis(),
			MemoryIDs:   []string{},
		}
	} else {
		if info, err = fieldsToSession(fields); err != nil {
			return err
		}
	}
	info.MemoryIDs = append(info.MemoryIDs, memoryID)
	info.MemoryCount = len(info.MemoryIDs)

	pipe := s.client.Pipeline()
	pipe.HSet(ks.Session(sessionID), sessionToFields(info))
	pipe.SAdd(ks.AllSessions(), sessionID)
	return pipe.Exec(ctx)
}

// Stats summarizes one scope combination, computed from index cardinalities
// rather than by scanning entries.
type Stats struct {
	TotalMemories  int64                          `json:"total_memories"`
	ByType         map[memory.ContextType]int64   `json:"by_type"`
	ImportantCount int64                          `json:"important_count"`
	SessionCount   int64                          `json:"session_count"`
	CategoryCount  int64                          `json:"category_count"`
}

var statTypes = []memory.ContextType{
	memory.TypeDirective, memory.TypeInformation, memory.TypeHeading,
	memory.TypeDecision, memory.TypeCodePattern, memory.TypeRequirement,
	memory.TypeError, memory.TypeTodo, memory.TypeInsight, memory.TypePreference,
}

// SummaryStats computes totals across the effective read scopes.
func (s *Store) SummaryStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByType: make(map[memory.ContextType]int64)}
	for _, ks := range s.readSchemes("") {
		n, err := s.client.SCard(ctx, ks.AllMemories())
		if err != nil {
			return nil, err
		}
		stats.TotalMemories += n

		for _, t := range statTypes {
			n, err := s.client.SCard(ctx, ks.ByType(t))
			if err != nil {
				return nil, err
			}
			if n > 0 {
				stats.ByType[t] += n
			}
		}

		n, err = s.client.ZCard(ctx, ks.Important())
		if err != nil {
			return nil, err
		}
		stats.ImportantCount += n

		n, err = s.client.ZCard(ctx, ks.Categories())
		if err != nil {
			return nil, err
		}
		stats.CategoryCount += n

		if !ks.IsGlobal() {
			n, err = s.client.SCard(ctx, ks.AllSessions())
			if err != nil {
				return nil, err
			}
			stats.SessionCount += n
		}
	}
	return stats, nil
}
