package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/systemshift/splice/internal/backend"
	"github.com/systemshift/splice/internal/merge"
	"github.com/systemshift/splice/internal/repo"
	"github.com/systemshift/splice/internal/repopath"
	"github.com/systemshift/splice/internal/tree"
)

var (
	newMessage string
	newFiles   []string
	newRemove  []string
)

var newCmd = &cobra.Command{
	Use:   "new [parents...]",
	Short: "Create a commit on top of the given parents",
	Long: `Create a commit whose tree is the merge of its parents' trees, with
optional file changes applied on top. Without parents the commit is
created on the root commit.

Examples:
  splice new -m "empty change"
  splice new a1b2c3 -m "docs" --file README.md=./README.md
  splice new a1b2c3 d4e5f6 -m "merge"
  splice new a1b2c3 --remove old.txt`,
	RunE: runNew,
}

func init() {
	newCmd.Flags().StringVarP(&newMessage, "message", "m", "", "commit description")
	newCmd.Flags().StringArrayVar(&newFiles, "file", nil, "set PATH=LOCALFILE in the new tree (repeatable)")
	newCmd.Flags().StringArrayVar(&newRemove, "remove", nil, "remove PATH from the new tree (repeatable)")
	rootCmd.AddCommand(newCmd)
}

func runNew(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	r, err := openRepo(ctx)
	if err != nil {
		return err
	}
	mut := r.StartTransaction()
	if len(args) == 0 {
		args = []string{"root"}
	}
	parents, err := resolveCommits(ctx, mut, args)
	if err != nil {
		return err
	}
	base, err := repo.MergeCommitTrees(ctx, mut, parents)
	if err != nil {
		return fmt.Errorf("merge parent trees: %w", err)
	}

	b := tree.NewMergedTreeBuilder(base)
	for _, spec := range newFiles {
		path, local, ok := strings.Cut(spec, "=")
		if !ok {
			return fmt.Errorf("--file %q: want PATH=LOCALFILE", spec)
		}
		p, err := repopath.Parse(path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(local)
		if err != nil {
			return fmt.Errorf("read %s: %w", local, err)
		}
		id, err := mut.Store().WriteFile(ctx, p, data)
		if err != nil {
			return err
		}
		b.Set(p, merge.Resolved(backend.FileValue(id, false, "")))
	}
	for _, path := range newRemove {
		p, err := repopath.Parse(path)
		if err != nil {
			return err
		}
		b.Set(p, tree.AbsentValue())
	}
	t, err := b.WriteTree(ctx)
	if err != nil {
		return fmt.Errorf("write tree: %w", err)
	}

	parentIDs := make([]backend.CommitID, len(parents))
	for i, p := range parents {
		parentIDs[i] = p.ID()
	}
	c, err := mut.NewCommit(parentIDs, t.ID()).SetDescription(newMessage).Write(ctx)
	if err != nil {
		return err
	}
	if _, err := mut.Commit(ctx, "new commit "+c.ID().Short()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", describe(c))
	if c.HasConflict() {
		fmt.Fprintln(cmd.OutOrStdout(), "The new commit has conflicts.")
	}
	return nil
}
