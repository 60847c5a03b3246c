package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/systemshift/splice/internal/backend"
	"github.com/systemshift/splice/internal/repopath"
	"github.com/systemshift/splice/internal/tree"
)

var logLimit int

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "List visible commits, newest first",
	Args:  cobra.NoArgs,
	RunE:  runLog,
}

var diffRevision string

var diffCmd = &cobra.Command{
	Use:   "diff [paths...]",
	Short: "Show the paths a commit changes relative to its parents",
	Long: `Show the paths a commit changes relative to the merge of its parents.

Each line starts with A (added), D (deleted), M (modified) or C (the path
is conflicted in the commit).`,
	RunE: runDiff,
}

func init() {
	logCmd.Flags().IntVarP(&logLimit, "limit", "n", 0, "show at most this many commits")
	diffCmd.Flags().StringVarP(&diffRevision, "revision", "r", "", "commit to diff (required)")
	_ = diffCmd.MarkFlagRequired("revision")
	rootCmd.AddCommand(logCmd, diffCmd)
}

func runLog(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	r, err := openRepo(ctx)
	if err != nil {
		return err
	}
	view := r.View()
	visible, err := r.Index().Ancestors(view.Heads())
	if err != nil {
		return err
	}
	bookmarks := make(map[backend.CommitID][]string)
	for _, name := range view.Bookmarks() {
		id, _ := view.Bookmark(name)
		bookmarks[id] = append(bookmarks[id], name)
	}

	out := cmd.OutOrStdout()
	for i, id := range visible {
		if logLimit > 0 && i >= logLimit {
			break
		}
		c, err := r.GetCommit(ctx, id)
		if err != nil {
			return err
		}
		marker := "○"
		switch {
		case c.IsRoot():
			marker = "◆"
		case view.IsHead(id):
			marker = "@"
		}
		line := []string{marker, c.ChangeID().Short(), c.ID().Short()}
		if email := c.Author().Email; email != "" && !c.IsRoot() {
			line = append(line, email)
		}
		if names := bookmarks[id]; len(names) > 0 {
			sort.Strings(names)
			line = append(line, strings.Join(names, " "))
		}
		if c.HasConflict() {
			line = append(line, "conflict")
		}
		if !c.IsRoot() {
			empty, err := c.IsEmpty(ctx, r)
			if err != nil {
				return err
			}
			if empty {
				line = append(line, "(empty)")
			}
		}
		fmt.Fprintln(out, strings.Join(line, " "))
		if c.IsRoot() {
			continue
		}
		desc, _, _ := strings.Cut(c.Description(), "\n")
		if desc == "" {
			desc = "(no description set)"
		}
		fmt.Fprintf(out, "    %s\n", desc)
	}
	return nil
}

func runDiff(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	r, err := openRepo(ctx)
	if err != nil {
		return err
	}
	c, err := resolveCommit(ctx, r, diffRevision)
	if err != nil {
		return err
	}
	after, err := c.Tree(ctx)
	if err != nil {
		return err
	}
	before, err := c.ParentTree(ctx, r)
	if err != nil {
		return err
	}
	matcher, err := pathMatcher(args)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for entry := range before.DiffStream(ctx, after, matcher) {
		if entry.Err != nil {
			return fmt.Errorf("diff %s: %w", entry.Path, entry.Err)
		}
		switch {
		case !entry.After.IsResolved():
			fmt.Fprintf(out, "C %s (%s)\n", entry.Path, tree.SummarizeConflict(entry.After))
		case !tree.IsPresent(entry.Before):
			fmt.Fprintf(out, "A %s\n", entry.Path)
		case !tree.IsPresent(entry.After):
			fmt.Fprintf(out, "D %s\n", entry.Path)
		default:
			fmt.Fprintf(out, "M %s\n", entry.Path)
		}
	}
	return nil
}

// pathMatcher matches everything when paths is empty, otherwise the given
// files and directories.
func pathMatcher(paths []string) (repopath.Matcher, error) {
	if len(paths) == 0 {
		return repopath.Everything{}, nil
	}
	prefixes := make([]repopath.Path, len(paths))
	for i, s := range paths {
		p, err := repopath.Parse(s)
		if err != nil {
			return nil, err
		}
		prefixes[i] = p
	}
	return repopath.Prefixes(prefixes...), nil
}
