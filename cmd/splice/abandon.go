package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var abandonCmd = &cobra.Command{
	Use:   "abandon REVS...",
	Short: "Hide commits and rebase their descendants onto their parents",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAbandon,
}

func init() {
	rootCmd.AddCommand(abandonCmd)
}

func runAbandon(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	r, err := openRepo(ctx)
	if err != nil {
		return err
	}
	mut := r.StartTransaction()
	commits, err := resolveCommits(ctx, mut, args)
	if err != nil {
		return err
	}
	for _, c := range commits {
		if c.IsRoot() {
			return fmt.Errorf("cannot abandon the root commit")
		}
		mut.RecordAbandonedCommit(c)
	}
	opts, err := settings.RebaseOptions()
	if err != nil {
		return err
	}
	n, err := mut.RebaseDescendantsWithOptions(ctx, opts, nil)
	if err != nil {
		return err
	}
	if _, err := mut.Commit(ctx, fmt.Sprintf("abandon %d commits", len(commits))); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, c := range commits {
		fmt.Fprintf(out, "Abandoned %s\n", describe(c))
	}
	if n > 0 {
		fmt.Fprintf(out, "Rebased %d descendant commits onto parents of abandoned commits\n", n)
	}
	return nil
}
