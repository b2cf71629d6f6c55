package checkpoint

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// stashPrefix tags stash entries created by us so restore and delete can
// find them among unrelated user stashes.
const stashPrefix = "AIDE_CP:"

// GitStorage snapshots through the git stash. Every checkpoint is one stash
// entry whose message carries the "AIDE_CP:<id>:<name>" tag; after pushing
// the stash is applied right back so the working tree is unchanged from the
// caller's point of view. Metadata lives in .git/aide-checkpoints.json.
type GitStorage struct {
	root string
	ix   *index
}

// NewGitStorage creates a git-backed store rooted at the repository
// directory.
func NewGitStorage(root string) *GitStorage {
	return &GitStorage{
		root: root,
		ix:   &index{path: filepath.Join(root, ".git", "aide-checkpoints.json")},
	}
}

// InGitRepo reports whether dir is inside a git work tree.
func InGitRepo(ctx context.Context, dir string) bool {
	out, err := runGit(ctx, dir, "rev-parse", "--is-inside-work-tree")
	return err == nil && strings.TrimSpace(out) == "true"
}

func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

func (g *GitStorage) Save(ctx context.Context, cp *Checkpoint, files []string) error {
	tag := stashPrefix + cp.ID + ":" + cp.Name

	out, err := runGit(ctx, g.root, "stash", "push", "--include-untracked", "-m", tag)
	if err != nil {
		return fmt.Errorf("stash push: %w", err)
	}
	if strings.Contains(out, "No local changes") {
		// Clean tree: the snapshot is HEAD itself. An empty Ref marks it;
		// Restore then only clears local modifications.
		cp.Ref = ""
		return g.ix.add(cp)
	}
	cp.Ref = tag

	// Put the working tree back the way it was; the stash entry itself is
	// the snapshot.
	if _, err := runGit(ctx, g.root, "stash", "apply", "stash@{0}"); err != nil {
		return fmt.Errorf("stash apply after push: %w", err)
	}
	return g.ix.add(cp)
}

// findStashRef resolves a tag to its current stash@{N} position. Positions
// shift as stashes come and go, so this is looked up fresh every time.
func (g *GitStorage) findStashRef(ctx context.Context, tag string) (string, error) {
	out, err := runGit(ctx, g.root, "stash", "list")
	if err != nil {
		return "", err
	}
	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(line, tag) {
			continue
		}
		ref, _, ok := strings.Cut(line, ":")
		if ok {
			return strings.TrimSpace(ref), nil
		}
	}
	return "", fmt.Errorf("stash entry %q: %w", tag, ErrNotFound)
}

func (g *GitStorage) Restore(ctx context.Context, cp *Checkpoint) error {
	var ref string
	if cp.Ref != "" {
		var err error
		ref, err = g.findStashRef(ctx, cp.Ref)
		if err != nil {
			return err
		}
	}
	// Local modifications would make the apply fail; clear them first. The
	// caller has already elected to rewind, so losing them is intended.
	if _, err := runGit(ctx, g.root, "checkout", "--", "."); err != nil {
		return fmt.Errorf("reset working tree: %w", err)
	}
	if ref == "" {
		// Clean-tree snapshot: HEAD is the checkpoint state.
		return nil
	}
	// The apply refuses to overwrite working-tree files that the stash
	// carries as untracked; checkout above leaves untracked files alone,
	// so remove them explicitly. The stash records them in its third
	// parent commit.
	for _, name := range g.untrackedPaths(ctx, ref) {
		if err := os.Remove(filepath.Join(g.root, filepath.FromSlash(name))); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("clear untracked file %s: %w", name, err)
		}
	}
	if _, err := runGit(ctx, g.root, "stash", "apply", ref); err != nil {
		return fmt.Errorf("stash apply: %w", err)
	}
	return nil
}

// untrackedPaths lists the files the stash entry stored from the untracked
// part of the tree. A stash without untracked files has no third parent;
// that is not an error.
func (g *GitStorage) untrackedPaths(ctx context.Context, ref string) []string {
	out, err := runGit(ctx, g.root, "ls-tree", "-r", "--name-only", ref+"^3")
	if err != nil {
		return nil
	}
	var paths []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			paths = append(paths, line)
		}
	}
	return paths
}

func (g *GitStorage) List(ctx context.Context) ([]*Checkpoint, error) {
	return g.ix.load()
}

func (g *GitStorage) Delete(ctx context.Context, cp *Checkpoint) error {
	if cp.Ref == "" {
		return g.ix.remove(cp.ID)
	}
	ref, err := g.findStashRef(ctx, cp.Ref)
	if err == nil {
		if _, err := runGit(ctx, g.root, "stash", "drop", ref); err != nil {
			return fmt.Errorf("stash drop: %w", err)
		}
	}
	return g.ix.remove(cp.ID)
}
