package router

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/taskrelay/taskrelay/internal/task"
)

// Backend identifiers known to the router.
const (
	BackendClaude        = "claude"
	BackendPlanImplement = "plan-implement"
	BackendAPI           = "api"
)

// DefaultBackend is used when no workflow tag names a known backend.
const DefaultBackend = BackendClaude

// Decision is the immutable routing output for one dispatch attempt.
type Decision struct {
	Backend  string
	Model    string
	Worktree string
}

// workflowAliases maps workflow tag values to backend identifiers.
var workflowAliases = map[string]string{
	"claude":         BackendClaude,
	"plan":           BackendPlanImplement,
	"plan-implement": BackendPlanImplement,
	"api":            BackendAPI,
}

var knownModels = map[string]bool{
	"sonnet": true,
	"opus":   true,
	"haiku":  true,
}

// Route maps a parsed task to a backend, model, and workspace name. Pure:
// collision checking is delegated to the exists predicate. An unknown
// workflow tag falls back to the default backend; an unrecognized model
// falls back to defaultModel.
func Route(t *task.Task, defaultModel string, exists func(name string) bool) Decision {
	backend := DefaultBackend
	if wf, ok := t.Tags[task.TagWorkflow]; ok {
		if mapped, known := workflowAliases[strings.ToLower(wf)]; known {
			backend = mapped
		}
	}

	model := defaultModel
	if m, ok := t.Tags[task.TagModel]; ok && knownModels[strings.ToLower(m)] {
		model = strings.ToLower(m)
	}

	worktree := t.Tags[task.TagWorktree]
	if worktree == "" {
		worktree = worktreeName(t.Title, exists)
	}

	return Decision{
		Backend:  backend,
		Model:    model,
		Worktree: worktree,
	}
}

// KnownWorkflow reports whether a workflow tag value names a backend, so the
// dispatcher can log the fallback.
func KnownWorkflow(value string) bool {
	_, ok := workflowAliases[strings.ToLower(value)]
	return ok
}

var slugStrip = regexp.MustCompile(`[^a-z0-9]+`)

const maxSlugLen = 24

// Slugify derives a short filesystem-safe name from a task title.
func Slugify(title string) string {
	slug := strings.ToLower(title)
	slug = slugStrip.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > maxSlugLen {
		slug = strings.Trim(slug[:maxSlugLen], "-")
	}
	if slug == "" {
		slug = "task"
	}
	return slug
}

// worktreeName slugifies the title and resolves collisions with a numeric
// suffix, deterministically.
func worktreeName(title string, exists func(string) bool) string {
	base := Slugify(title)
	if exists == nil || !exists(base) {
		return base
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s-%d", base, i)
		if !exists(candidate) {
			return candidate
		}
	}
}
