package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/systemshift/splice/internal/rewrite"
)

var (
	duplicateDestinations []string
	duplicateAfter        []string
	duplicateBefore       []string
)

var duplicateCmd = &cobra.Command{
	Use:   "duplicate REVS...",
	Short: "Create copies of commits with new change ids",
	Long: `Create copies of the given commits. Without a location the copies
are placed on the originals' parents; otherwise -d, -A and -B place them
as in rebase.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDuplicate,
}

func init() {
	duplicateCmd.Flags().StringArrayVarP(&duplicateDestinations, "destination", "d", nil, "parents of the copies")
	duplicateCmd.Flags().StringArrayVarP(&duplicateAfter, "insert-after", "A", nil, "insert the copies after these commits")
	duplicateCmd.Flags().StringArrayVarP(&duplicateBefore, "insert-before", "B", nil, "insert the copies before these commits")
	rootCmd.AddCommand(duplicateCmd)
}

func runDuplicate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	r, err := openRepo(ctx)
	if err != nil {
		return err
	}
	mut := r.StartTransaction()
	targets, err := childrenFirst(ctx, mut, args)
	if err != nil {
		return err
	}

	var stats rewrite.DuplicateCommitsStats
	if len(duplicateDestinations)+len(duplicateAfter)+len(duplicateBefore) == 0 {
		stats, err = rewrite.DuplicateCommitsOntoParents(ctx, mut, targets, nil)
	} else {
		parents, children, lerr := resolveLocation(ctx, mut, duplicateDestinations, duplicateAfter, duplicateBefore)
		if lerr != nil {
			return lerr
		}
		stats, err = rewrite.DuplicateCommits(ctx, mut, targets, nil, parents, children)
	}
	if err != nil {
		return err
	}
	if _, err := mut.Commit(ctx, fmt.Sprintf("duplicate %d commits", len(targets))); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for i := len(targets) - 1; i >= 0; i-- {
		if c, ok := stats.Duplicate(targets[i]); ok {
			fmt.Fprintf(out, "Duplicated %s as %s\n", targets[i].Short(), describe(c))
		}
	}
	if stats.NumRebased > 0 {
		fmt.Fprintf(out, "Rebased %d commits onto duplicated commits\n", stats.NumRebased)
	}
	return nil
}
