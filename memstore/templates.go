package memstore

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/smallnest/memograph/memory"
)

// placeholderRe matches {{variable}} tokens in a content template.
var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// Built-in templates live outside the backend and cannot be deleted.
var builtinTemplates = map[string]*memory.Template{
	"builtin-decision": {
		TemplateID:        "builtin-decision",
		Name:              "Decision record",
		Description:       "Record a decision and its rationale",
		ContextType:       memory.TypeDecision,
		ContentTemplate:   "Decision: {{decision}}\nRationale: {{rationale}}",
		DefaultTags:       []string{"decision"},
		DefaultImportance: 7,
		IsBuiltin:         true,
	},
	"builtin-error-pattern": {
		TemplateID:        "builtin-error-pattern",
		Name:              "Error pattern",
		Description:       "A recurring error and its fix",
		ContextType:       memory.TypeError,
		ContentTemplate:   "Error: {{error}}\nCause: {{cause}}\nFix: {{fix}}",
		DefaultTags:       []string{"error", "pattern"},
		DefaultImportance: 8,
		IsBuiltin:         true,
	},
	"builtin-code-pattern": {
		TemplateID:        "builtin-code-pattern",
		Name:              "Code pattern",
		Description:       "A reusable code idiom for this codebase",
		ContextType:       memory.TypeCodePattern,
		ContentTemplate:   "Pattern: {{name}}\nUsage: {{usage}}",
		DefaultTags:       []string{"pattern"},
		DefaultImportance: 6,
		IsBuiltin:         true,
	},
	"builtin-requirement": {
		TemplateID:        "builtin-requirement",
		Name:              "Requirement",
		Description:       "A product or technical requirement",
		ContextType:       memory.TypeRequirement,
		ContentTemplate:   "Requirement: {{requirement}}",
		DefaultTags:       []string{"requirement"},
		DefaultImportance: 7,
		IsBuiltin:         true,
	},
}

// TemplateRequest carries the caller-supplied fields for a new template.
type TemplateRequest struct {
	Name              string             `json:"name"`
	Description       string             `json:"description,omitempty"`
	ContextType       memory.ContextType `json:"context_type"`
	ContentTemplate   string             `json:"content_template"`
	DefaultTags       []string           `json:"default_tags,omitempty"`
	DefaultImportance int                `json:"default_importance"`
}

// CreateTemplate stores a user template in the workspace scope.
func (s *Store) CreateTemplate(ctx context.Context, req TemplateRequest) (*memory.Template, error) {
	if req.Name == "" {
		return nil, memory.NewError(memory.KindInvalidInput, "template name must not be empty")
	}
	if req.ContentTemplate == "" {
		return nil, memory.NewError(memory.KindInvalidInput, "content template must not be empty")
	}
	if !memory.ValidContextType(req.ContextType) {
		return nil, memory.Errorf(memory.KindInvalidInput, "unknown context type %q", req.ContextType)
	}
	if req.DefaultImportance < 1 || req.DefaultImportance > 10 {
		return nil, memory.Errorf(memory.KindInvalidInput, "default importance %d out of range [1,10]", req.DefaultImportance)
	}
	t := &memory.Template{
		TemplateID:        uuid.NewString(),
		Name:              req.Name,
		Description:       req.Description,
		ContextType:       req.ContextType,
		ContentTemplate:   req.ContentTemplate,
		DefaultTags:       dedupeTags(req.DefaultTags),
		DefaultImportance: req.DefaultImportance,
		CreatedAt:         memory.NowMillis(),
	}
	ks := s.workspaceKeys()
	pipe := s.client.Pipeline()
	pipe.HSet(ks.Template(t.TemplateID), templateToFields(t))
	pipe.SAdd(ks.AllTemplates(), t.TemplateID)
	if err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

// GetTemplate loads a template, checking the built-in namespace first.
func (s *Store) GetTemplate(ctx context.Context, templateID string) (*memory.Template, error) {
	if t, ok := builtinTemplates[templateID]; ok {
		return t, nil
	}
	fields, err := s.client.HGetAll(ctx, s.workspaceKeys().Template(templateID))
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, memory.Errorf(memory.KindNotFound, "template %s not found", templateID)
	}
	return fieldsToTemplate(fields)
}

// ListTemplates returns built-ins followed by the workspace's user
// templates.
func (s *Store) ListTemplates(ctx context.Context) ([]*memory.Template, error) {
	out := make([]*memory.Template, 0, len(builtinTemplates))
	for _, t := range builtinTemplates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TemplateID < out[j].TemplateID })

	ks := s.workspaceKeys()
	ids, err := s.client.SMembers(ctx, ks.AllTemplates())
	if err != nil {
		return nil, err
	}
	user := make([]*memory.Template, 0, len(ids))
	for _, id := range ids {
		fields, err := s.client.HGetAll(ctx, ks.Template(id))
		if err != nil {
			return nil, err
		}
		if len(fields) == 0 {
			continue
		}
		t, err := fieldsToTemplate(fields)
		if err != nil {
			s.logger.Error("skipping unreadable template: %v", err)
			continue
		}
		user = append(user, t)
	}
	sort.SliceStable(user, func(i, j int) bool { return user[i].CreatedAt > user[j].CreatedAt })
	return append(out, user...), nil
}

// DeleteTemplate removes a user template. Built-ins cannot be deleted.
func (s *Store) DeleteTemplate(ctx context.Context, templateID string) error {
	if _, ok := builtinTemplates[templateID]; ok {
		return memory.Errorf(memory.KindConflict, "template %s is built-in and cannot be deleted", templateID)
	}
	ks := s.workspaceKeys()
	exists, err := s.client.Exists(ctx, ks.Template(templateID))
	if err != nil {
		return err
	}
	if !exists {
		return memory.Errorf(memory.KindNotFound, "template %s not found", templateID)
	}
	pipe := s.client.Pipeline()
	pipe.Del(ks.Template(templateID))
	pipe.SRem(ks.AllTemplates(), templateID)
	return pipe.Exec(ctx)
}

// InstantiateOptions tune CreateFromTemplate.
type InstantiateOptions struct {
	// ExtraTags are unioned with the template's default tags.
	ExtraTags []string
	// ImportanceOverride replaces the template's default importance.
	ImportanceOverride *int
	// SessionID groups the created memory into a session.
	SessionID string
}

// CreateFromTemplate substitutes variables into a template and creates the
// resulting memory. Any unsubstituted {{...}} token fails the call.
func (s *Store) CreateFromTemplate(ctx context.Context, templateID string, vars map[string]string, opts InstantiateOptions) (*memory.Entry, error) {
	t, err := s.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}

	content := t.ContentTemplate
	for name, value := range vars {
		content = strings.ReplaceAll(content, "{{"+name+"}}", value)
	}
	if leftover := placeholderRe.FindAllString(content, -1); len(leftover) > 0 {
		return nil, memory.Errorf(memory.KindInvalidInput,
			"missing template variables: %s", strings.Join(leftover, ", "))
	}

	importance := t.DefaultImportance
	if opts.ImportanceOverride != nil {
		importance = *opts.ImportanceOverride
	}
	return s.Create(ctx, memory.CreateRequest{
		Content:     content,
		ContextType: t.ContextType,
		Tags:        dedupeTags(append(append([]string{}, t.DefaultTags...), opts.ExtraTags...)),
		Importance:  importance,
		SessionID:   opts.SessionID,
	})
}
