package workspace

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Provisioner creates and destroys isolated workspaces by name. Failure to
// provision aborts a dispatch before any status write.
type Provisioner interface {
	Ensure(ctx context.Context, name, baseRef string) (string, error)
	Destroy(ctx context.Context, name string) error
}

// GitWorktree provisions workspaces as git worktrees under a common root,
// one branch per workspace.
type GitWorktree struct {
	repoPath string
	root     string
}

// NewGitWorktree creates a provisioner for the repository at repoPath,
// placing worktrees under root.
func NewGitWorktree(repoPath, root string) *GitWorktree {
	return &GitWorktree{repoPath: repoPath, root: root}
}

// Ensure returns the path of the named workspace, creating the worktree and
// its branch from baseRef if missing. Idempotent.
func (g *GitWorktree) Ensure(ctx context.Context, name, baseRef string) (string, error) {
	path := filepath.Join(g.root, name)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if err := os.MkdirAll(g.root, 0755); err != nil {
		return "", fmt.Errorf("failed to create workspace root: %w", err)
	}

	branch := "task/" + name
	out, err := g.git(ctx, "worktree", "add", "-b", branch, path, baseRef)
	if err != nil {
		// Branch may survive a removed worktree; reattach instead.
		if strings.Contains(out, "already exists") {
			if out2, err2 := g.git(ctx, "worktree", "add", path, branch); err2 != nil {
				return "", fmt.Errorf("failed to reattach worktree %s: %s: %w", name, strings.TrimSpace(out2), err2)
			}
			return path, nil
		}
		return "", fmt.Errorf("failed to create worktree %s: %s: %w", name, strings.TrimSpace(out), err)
	}
	return path, nil
}

// Destroy removes the named worktree and its directory.
func (g *GitWorktree) Destroy(ctx context.Context, name string) error {
	path := filepath.Join(g.root, name)
	if out, err := g.git(ctx, "worktree", "remove", "--force", path); err != nil {
		// Fall back to a plain delete; a later `worktree prune` cleans up
		// the registration.
		if rmErr := os.RemoveAll(path); rmErr != nil {
			return fmt.Errorf("failed to remove worktree %s: %s: %w", name, strings.TrimSpace(out), err)
		}
	}
	return nil
}

func (g *GitWorktree) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", g.repoPath}, args...)...)
	out, err := cmd.CombinedOutput()
	return string(out), err
}
