package router

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taskrelay/taskrelay/internal/task"
)

func taskWithTags(title string, tags map[string]string) *task.Task {
	if tags == nil {
		tags = map[string]string{}
	}
	return &task.Task{ID: "t1", Title: title, Tags: tags}
}

func TestRouteDefaults(t *testing.T) {
	// No tags: default backend, default model, generated worktree name.
	d := Route(taskWithTags("Fix login bug", nil), "sonnet", nil)

	assert.Equal(t, BackendClaude, d.Backend)
	assert.Equal(t, "sonnet", d.Model)
	assert.Equal(t, "fix-login-bug", d.Worktree)
}

func TestRoutePlanWorkflowWithModel(t *testing.T) {
	d := Route(taskWithTags("Big feature", map[string]string{
		"workflow": "plan",
		"model":    "opus",
	}), "sonnet", nil)

	assert.Equal(t, BackendPlanImplement, d.Backend)
	assert.Equal(t, "opus", d.Model)
}

func TestRouteUnknownWorkflowFallsBack(t *testing.T) {
	d := Route(taskWithTags("x", map[string]string{"workflow": "quantum"}), "sonnet", nil)

	assert.Equal(t, BackendClaude, d.Backend)
	assert.False(t, KnownWorkflow("quantum"))
	assert.True(t, KnownWorkflow("plan-implement"))
}

func TestRouteUnknownModelFallsBack(t *testing.T) {
	d := Route(taskWithTags("x", map[string]string{"model": "gpt-99"}), "sonnet", nil)

	assert.Equal(t, "sonnet", d.Model)
}

func TestRouteExplicitWorktree(t *testing.T) {
	d := Route(taskWithTags("x", map[string]string{"worktree": "login-fix"}), "sonnet", nil)

	assert.Equal(t, "login-fix", d.Worktree)
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "fix-the-login-bug", Slugify("Fix the Login Bug!"))
	assert.Equal(t, "task", Slugify("!!!"))
	assert.LessOrEqual(t, len(Slugify("a very long title that should be truncated somewhere")), 24)
}

func TestWorktreeNameCollisionSuffix(t *testing.T) {
	taken := map[string]bool{"fix-bug": true, "fix-bug-2": true}
	exists := func(name string) bool { return taken[name] }

	d := Route(taskWithTags("Fix bug", nil), "sonnet", exists)

	assert.Equal(t, "fix-bug-3", d.Worktree)
}
