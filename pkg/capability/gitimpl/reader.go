// Package gitimpl implements the capability.GitReader contract on top
// of libgit2. It is the default history backend for the Git extractor:
// topological walks resume from a checkpoint SHA, and rename detection
// runs through libgit2's similarity scan so the extractor can emit
// Aliases edges with a confidence score.
package gitimpl

import (
	"context"
	"fmt"

	git2go "github.com/libgit2/git2go/v34"

	"github.com/homer-mine/homer/pkg/capability"
)

// similarityScale converts libgit2's 0-100 similarity score into the
// [0,1] confidence the capability contract carries.
const similarityScale = 100.0

// Reader walks a repository's history via libgit2.
type Reader struct {
	repo *git2go.Repository
	path string
}

// Open opens the repository at path.
func Open(path string) (*Reader, error) {
	repo, err := git2go.OpenRepository(path)
	if err != nil {
		return nil, fmt.Errorf("open repository %s: %w", path, err)
	}

	return &Reader{repo: repo, path: path}, nil
}

// Path returns the repository path.
func (r *Reader) Path() string { return r.path }

// Free releases the underlying libgit2 handles.
func (r *Reader) Free() {
	if r.repo != nil {
		r.repo.Free()
		r.repo = nil
	}
}

// Head returns the SHA the repository's HEAD points at.
func (r *Reader) Head(_ context.Context) (string, error) {
	ref, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("get HEAD: %w", err)
	}
	defer ref.Free()

	return ref.Target().String(), nil
}

// Tags lists every tag with the commit SHA it resolves to. Annotated
// tags are peeled to their target commit.
func (r *Reader) Tags(_ context.Context) ([]capability.Tag, error) {
	names, err := r.repo.Tags.List()
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}

	tags := make([]capability.Tag, 0, len(names))

	for _, name := range names {
		ref, lookupErr := r.repo.References.Lookup("refs/tags/" + name)
		if lookupErr != nil {
			continue
		}

		obj, peelErr := ref.Peel(git2go.ObjectCommit)

		ref.Free()

		if peelErr != nil {
			continue
		}

		tags = append(tags, capability.Tag{Name: name, SHA: obj.Id().String()})
		obj.Free()
	}

	return tags, nil
}

// WalkSince yields commits in topological order, oldest first, starting
// just after sinceSHA. An empty sinceSHA walks the full history.
func (r *Reader) WalkSince(ctx context.Context, sinceSHA string) ([]capability.Commit, error) {
	walk, err := r.repo.Walk()
	if err != nil {
		return nil, fmt.Errorf("create revwalk: %w", err)
	}
	defer walk.Free()

	walk.Sorting(git2go.SortTopological | git2go.SortReverse)

	if pushErr := walk.PushHead(); pushErr != nil {
		return nil, fmt.Errorf("push HEAD: %w", pushErr)
	}

	if sinceSHA != "" {
		oid, oidErr := git2go.NewOid(sinceSHA)
		if oidErr != nil {
			return nil, fmt.Errorf("parse checkpoint sha %s: %w", sinceSHA, oidErr)
		}

		if hideErr := walk.Hide(oid); hideErr != nil {
			return nil, fmt.Errorf("hide checkpoint sha %s: %w", sinceSHA, hideErr)
		}
	}

	var commits []capability.Commit

	iterErr := walk.Iterate(func(commit *git2go.Commit) bool {
		if ctx.Err() != nil {
			return false
		}

		converted, convErr := r.convertCommit(commit)
		if convErr != nil {
			// A commit whose tree cannot be diffed is recorded with
			// empty file diffs rather than aborting the walk.
			converted = commitHeader(commit)
		}

		commits = append(commits, converted)
		commit.Free()

		return true
	})
	if iterErr != nil {
		return nil, fmt.Errorf("walk history: %w", iterErr)
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("walk cancelled: %w", ctxErr)
	}

	return commits, nil
}

// commitHeader converts the identity fields of a commit without its diff.
func commitHeader(commit *git2go.Commit) capability.Commit {
	parents := make([]string, 0, commit.ParentCount())
	for i := uint(0); i < commit.ParentCount(); i++ {
		parents = append(parents, commit.ParentId(i).String())
	}

	author := commit.Author()
	committer := commit.Committer()

	return capability.Commit{
		SHA:        commit.Id().String(),
		ParentSHAs: parents,
		Author:     capability.Person{Name: author.Name, Email: author.Email},
		Committer:  capability.Person{Name: committer.Name, Email: committer.Email},
		Timestamp:  author.When,
		Message:    commit.Message(),
	}
}

func (r *Reader) convertCommit(commit *git2go.Commit) (capability.Commit, error) {
	out := commitHeader(commit)

	newTree, err := commit.Tree()
	if err != nil {
		return out, fmt.Errorf("commit tree: %w", err)
	}
	defer newTree.Free()

	// The first parent is the diff baseline; a root commit diffs
	// against the empty tree.
	var oldTree *git2go.Tree

	if commit.ParentCount() > 0 {
		parent := commit.Parent(0)
		defer parent.Free()

		oldTree, err = parent.Tree()
		if err != nil {
			return out, fmt.Errorf("parent tree: %w", err)
		}
		defer oldTree.Free()
	}

	diffs, err := r.fileDiffs(oldTree, newTree)
	if err != nil {
		return out, err
	}

	out.FileDiffs = diffs

	return out, nil
}

// fileDiffs diffs two trees with rename detection enabled and converts
// each delta into the capability contract's FileDiff shape.
func (r *Reader) fileDiffs(oldTree, newTree *git2go.Tree) ([]capability.FileDiff, error) {
	opts, err := git2go.DefaultDiffOptions()
	if err != nil {
		return nil, fmt.Errorf("diff options: %w", err)
	}

	diff, err := r.repo.DiffTreeToTree(oldTree, newTree, &opts)
	if err != nil {
		return nil, fmt.Errorf("diff trees: %w", err)
	}
	defer diff.Free()

	findOpts, err := git2go.DefaultDiffFindOptions()
	if err != nil {
		return nil, fmt.Errorf("diff find options: %w", err)
	}

	findOpts.Flags = git2go.DiffFindRenames

	if findErr := diff.FindSimilar(&findOpts); findErr != nil {
		return nil, fmt.Errorf("find renames: %w", findErr)
	}

	numDeltas, err := diff.NumDeltas()
	if err != nil {
		return nil, fmt.Errorf("count deltas: %w", err)
	}

	out := make([]capability.FileDiff, 0, numDeltas)

	for i := 0; i < numDeltas; i++ {
		delta, deltaErr := diff.Delta(i)
		if deltaErr != nil {
			continue
		}

		fd := capability.FileDiff{
			OldPath: delta.OldFile.Path,
			NewPath: delta.NewFile.Path,
			Status:  statusString(delta.Status),
		}

		if delta.Status == git2go.DeltaRenamed {
			fd.RenameSimilarity = float64(delta.Similarity) / similarityScale
			fd.HasRenameMetadata = true
		}

		added, deleted := patchLineStats(diff, i)
		fd.LinesAdded = added
		fd.LinesDeleted = deleted

		out = append(out, fd)
	}

	return out, nil
}

// patchLineStats reads per-file added/deleted line counts off the delta's
// patch. A binary or unpatchable delta counts as zero lines either way.
func patchLineStats(diff *git2go.Diff, idx int) (added, deleted int) {
	patch, err := diff.Patch(idx)
	if err != nil || patch == nil {
		return 0, 0
	}
	defer patch.Free()

	_, additions, deletions, statsErr := patch.LineStats()
	if statsErr != nil {
		return 0, 0
	}

	return additions, deletions
}

func statusString(status git2go.Delta) string {
	switch status {
	case git2go.DeltaAdded:
		return "added"
	case git2go.DeltaDeleted:
		return "deleted"
	case git2go.DeltaModified:
		return "modified"
	case git2go.DeltaRenamed:
		return "renamed"
	case git2go.DeltaCopied:
		return "copied"
	default:
		return "other"
	}
}
