package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/systemshift/splice/internal/repo"
	"github.com/systemshift/splice/internal/rewrite"
)

var (
	squashRevision    string
	squashFrom        []string
	squashInto        string
	squashMessage     string
	squashKeepEmptied bool
)

var squashCmd = &cobra.Command{
	Use:   "squash [paths...]",
	Short: "Move changes from commits into another commit",
	Long: `Move the changes of a commit into its parent (-r), or of several
commits into any other commit (--from/--into). With paths, only changes
to those files and directories are moved. Sources left empty are
abandoned unless --keep-emptied is set.

Examples:
  splice squash -r a1b2c3
  splice squash --from a1b2c3 --from d4e5f6 --into 778899
  splice squash -r a1b2c3 src/parser`,
	RunE: runSquash,
}

func init() {
	squashCmd.Flags().StringVarP(&squashRevision, "revision", "r", "", "squash this commit into its parent")
	squashCmd.Flags().StringArrayVarP(&squashFrom, "from", "f", nil, "commits to move changes from")
	squashCmd.Flags().StringVarP(&squashInto, "into", "t", "", "commit to move changes into")
	squashCmd.Flags().StringVarP(&squashMessage, "message", "m", "", "description of the result")
	squashCmd.Flags().BoolVarP(&squashKeepEmptied, "keep-emptied", "k", false, "keep emptied source commits")
	squashCmd.MarkFlagsMutuallyExclusive("revision", "from")
	squashCmd.MarkFlagsMutuallyExclusive("revision", "into")
	squashCmd.MarkFlagsOneRequired("revision", "from")
	rootCmd.AddCommand(squashCmd)
}

func runSquash(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	r, err := openRepo(ctx)
	if err != nil {
		return err
	}
	mut := r.StartTransaction()

	var sources []*repo.Commit
	var destination *repo.Commit
	if squashRevision != "" {
		src, err := resolveCommit(ctx, mut, squashRevision)
		if err != nil {
			return err
		}
		if len(src.ParentIDs()) != 1 {
			return fmt.Errorf("cannot squash merge commit %s into its parents; use --from and --into", src.ID().Short())
		}
		if destination, err = mut.GetCommit(ctx, src.ParentIDs()[0]); err != nil {
			return err
		}
		sources = []*repo.Commit{src}
	} else {
		if squashInto == "" {
			return fmt.Errorf("--from requires --into")
		}
		if sources, err = resolveCommits(ctx, mut, squashFrom); err != nil {
			return err
		}
		if destination, err = resolveCommit(ctx, mut, squashInto); err != nil {
			return err
		}
	}
	if destination.IsRoot() {
		return fmt.Errorf("cannot squash into the root commit")
	}

	matcher, err := pathMatcher(args)
	if err != nil {
		return err
	}
	selections := make([]rewrite.CommitWithSelection, 0, len(sources))
	for _, src := range sources {
		if src.ID() == destination.ID() {
			continue
		}
		sel, err := rewrite.SelectAll(ctx, mut, src)
		if err != nil {
			return err
		}
		if sel.SelectedTree, err = rewrite.RestoreTree(ctx, sel.SelectedTree, sel.ParentTree, matcher); err != nil {
			return err
		}
		selections = append(selections, sel)
	}

	squashed, err := rewrite.SquashCommits(ctx, mut, selections, destination, squashKeepEmptied)
	if err != nil {
		return err
	}
	if squashed == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "Nothing changed.")
		return nil
	}
	desc := squashMessage
	if desc == "" {
		desc = combineDescriptions(destination, squashed.Abandoned)
	}
	c, err := squashed.Builder.SetDescription(desc).Write(ctx)
	if err != nil {
		return err
	}
	if _, err := mut.Commit(ctx, "squash into "+destination.ID().Short()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Squashed into %s\n", describe(c))
	return nil
}

// combineDescriptions joins the non-empty descriptions of the destination
// and the abandoned sources.
func combineDescriptions(destination *repo.Commit, abandoned []*repo.Commit) string {
	var parts []string
	for _, c := range append([]*repo.Commit{destination}, abandoned...) {
		if d := strings.TrimSpace(c.Description()); d != "" {
			parts = append(parts, d)
		}
	}
	return strings.Join(parts, "\n\n")
}
