package main

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/systemshift/splice/internal/backend"
	"github.com/systemshift/splice/internal/repo"
	"github.com/systemshift/splice/internal/rewrite"
)

var (
	rebaseRevisions    []string
	rebaseSources      []string
	rebaseDestinations []string
	rebaseAfter        []string
	rebaseBefore       []string
	rebaseSkipEmptied  bool
)

var rebaseCmd = &cobra.Command{
	Use:   "rebase",
	Short: "Move commits to a different location in the graph",
	Long: `Move commits to new parents. Descendants of the moved commits follow
them, or are rebased onto the moved commits' parents with -r.

  -r REV   move only REV; its children move onto its parents
  -s REV   move REV together with all its descendants

The location is given by -d (new parents), -A (insert after: the new
parents' children become children of the moved commits) or -B (insert
before). -A and -B may be combined.

Examples:
  splice rebase -s a1b2c3 -d d4e5f6
  splice rebase -r a1b2c3 -A d4e5f6
  splice rebase -r a1b2c3 -A d4e5f6 -B 778899`,
	Args: cobra.NoArgs,
	RunE: runRebase,
}

func init() {
	rebaseCmd.Flags().StringArrayVarP(&rebaseRevisions, "revisions", "r", nil, "rebase only these commits")
	rebaseCmd.Flags().StringArrayVarP(&rebaseSources, "source", "s", nil, "rebase these commits and their descendants")
	rebaseCmd.Flags().StringArrayVarP(&rebaseDestinations, "destination", "d", nil, "new parents")
	rebaseCmd.Flags().StringArrayVarP(&rebaseAfter, "insert-after", "A", nil, "insert after these commits")
	rebaseCmd.Flags().StringArrayVarP(&rebaseBefore, "insert-before", "B", nil, "insert before these commits")
	rebaseCmd.Flags().BoolVar(&rebaseSkipEmptied, "skip-emptied", false, "abandon moved commits that become empty")
	rebaseCmd.MarkFlagsMutuallyExclusive("revisions", "source")
	rebaseCmd.MarkFlagsOneRequired("revisions", "source")
	rebaseCmd.MarkFlagsOneRequired("destination", "insert-after", "insert-before")
	rootCmd.AddCommand(rebaseCmd)
}

func runRebase(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	r, err := openRepo(ctx)
	if err != nil {
		return err
	}
	mut := r.StartTransaction()

	parents, children, err := resolveLocation(ctx, mut, rebaseDestinations, rebaseAfter, rebaseBefore)
	if err != nil {
		return err
	}
	var target rewrite.MoveCommitsTarget
	if len(rebaseRevisions) > 0 {
		ids, err := childrenFirst(ctx, mut, rebaseRevisions)
		if err != nil {
			return err
		}
		target = rewrite.Commits(ids...)
	} else {
		ids, err := resolveIDs(ctx, mut, rebaseSources)
		if err != nil {
			return err
		}
		target = rewrite.Roots(ids...)
	}

	opts, err := settings.RebaseOptions()
	if err != nil {
		return err
	}
	if rebaseSkipEmptied {
		opts.Empty = repo.EmptyAbandonNewlyEmpty
	}
	stats, err := rewrite.MoveCommits(ctx, mut, rewrite.MoveCommitsLocation{
		NewParentIDs: parents,
		NewChildIDs:  children,
		Target:       target,
	}, opts)
	if err != nil {
		return err
	}
	if _, err := mut.Commit(ctx, fmt.Sprintf("rebase %d commits", len(target.IDs()))); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if stats.NumSkippedRebases > 0 {
		fmt.Fprintf(out, "Skipped rebase of %d commits that were already in place\n", stats.NumSkippedRebases)
	}
	if stats.NumRebasedTargets > 0 {
		fmt.Fprintf(out, "Rebased %d commits to destination\n", stats.NumRebasedTargets)
	}
	if stats.NumRebasedDescendants > 0 {
		fmt.Fprintf(out, "Rebased %d descendant commits\n", stats.NumRebasedDescendants)
	}
	if stats.NumAbandonedEmpty > 0 {
		fmt.Fprintf(out, "Abandoned %d newly emptied commits\n", stats.NumAbandonedEmpty)
	}
	return nil
}

// childrenFirst resolves revs and orders them children before parents.
func childrenFirst(ctx context.Context, r repo.Repo, revs []string) ([]backend.CommitID, error) {
	ids, err := resolveIDs(ctx, r, revs)
	if err != nil {
		return nil, err
	}
	sorted, err := r.Index().SortTopological(ids)
	if err != nil {
		return nil, err
	}
	slices.Reverse(sorted)
	return sorted, nil
}
