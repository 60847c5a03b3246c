package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/systemshift/splice/internal/backend"
	"github.com/systemshift/splice/internal/config"
	"github.com/systemshift/splice/internal/repo"
)

var (
	repoDir string
	verbose bool

	// Shared instances, set up before every command runs.
	logger   *zap.Logger
	settings *config.Settings
)

var rootCmd = &cobra.Command{
	Use:   "splice",
	Short: "A change-centric version control core",
	Long: `splice records commits whose trees may hold first-class conflicts.

Rewriting a commit keeps its change id, and every descendant is rebased
onto the rewritten commit automatically.

Example workflow:
  splice init
  splice new -m "add parser" --file parser.go=./parser.go
  splice rebase -s <rev> -d <rev>
  splice squash -r <rev>
  splice mount -r <rev> /mnt/splice`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := newLogger(verbose)
		if err != nil {
			return fmt.Errorf("create logger: %w", err)
		}
		logger = l
		s, err := config.Load(repoDir)
		if err != nil {
			return err
		}
		settings = s
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&repoDir, "repo", "R", ".", "repository root (contains .splice/)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return l.Named("splice"), nil
}

func openRepo(ctx context.Context) (*repo.ReadonlyRepo, error) {
	opts, err := settings.RepoOptions(logger)
	if err != nil {
		return nil, err
	}
	return repo.Open(ctx, repoDir, opts)
}

// resolveCommit finds the visible commit named by rev: "root", a
// bookmark, a full commit id, or a unique prefix of a short commit id or a
// change id.
func resolveCommit(ctx context.Context, r repo.Repo, rev string) (*repo.Commit, error) {
	if rev == "" {
		return nil, fmt.Errorf("empty revision")
	}
	if rev == "root" {
		return r.GetCommit(ctx, r.Store().RootCommitID())
	}
	if id, ok := r.View().Bookmark(rev); ok {
		return r.GetCommit(ctx, id)
	}
	visible, err := r.Index().Ancestors(r.View().Heads())
	if err != nil {
		return nil, err
	}
	var matches []backend.CommitID
	for _, id := range visible {
		if id.String() == rev {
			return r.GetCommit(ctx, id)
		}
		if strings.HasPrefix(id.Short(), rev) {
			matches = append(matches, id)
			continue
		}
		c, err := r.GetCommit(ctx, id)
		if err != nil {
			return nil, err
		}
		if strings.HasPrefix(c.ChangeID().String(), rev) {
			matches = append(matches, id)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("revision %q not found", rev)
	case 1:
		return r.GetCommit(ctx, matches[0])
	default:
		return nil, fmt.Errorf("revision %q is ambiguous (%d matches)", rev, len(matches))
	}
}

func resolveCommits(ctx context.Context, r repo.Repo, revs []string) ([]*repo.Commit, error) {
	out := make([]*repo.Commit, 0, len(revs))
	for _, rev := range revs {
		c, err := resolveCommit(ctx, r, rev)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func resolveIDs(ctx context.Context, r repo.Repo, revs []string) ([]backend.CommitID, error) {
	commits, err := resolveCommits(ctx, r, revs)
	if err != nil {
		return nil, err
	}
	ids := make([]backend.CommitID, len(commits))
	for i, c := range commits {
		ids[i] = c.ID()
	}
	return ids, nil
}

// resolveLocation turns -d/-A/-B flag values into new parents and new
// children. onto and insertAfter both name new parents.
func resolveLocation(ctx context.Context, r repo.Repo, onto, insertAfter, insertBefore []string) (parents, children []backend.CommitID, err error) {
	if len(onto) > 0 && (len(insertAfter) > 0 || len(insertBefore) > 0) {
		return nil, nil, fmt.Errorf("--destination cannot be combined with --insert-after or --insert-before")
	}
	if len(onto) > 0 {
		parents, err = resolveIDs(ctx, r, onto)
		return parents, nil, err
	}
	if parents, err = resolveIDs(ctx, r, insertAfter); err != nil {
		return nil, nil, err
	}
	if children, err = resolveIDs(ctx, r, insertBefore); err != nil {
		return nil, nil, err
	}
	switch {
	case len(insertAfter) > 0 && len(insertBefore) == 0:
		children, err = r.Index().Children(parents, r.View().Heads())
	case len(insertBefore) > 0 && len(insertAfter) == 0:
		seen := make(map[backend.CommitID]bool)
		for _, id := range children {
			ps, perr := r.Index().ParentIDs(id)
			if perr != nil {
				return nil, nil, perr
			}
			for _, p := range ps {
				if !seen[p] {
					seen[p] = true
					parents = append(parents, p)
				}
			}
		}
	}
	return parents, children, err
}

func describe(c *repo.Commit) string {
	desc, _, _ := strings.Cut(c.Description(), "\n")
	if desc == "" {
		desc = "(no description set)"
	}
	return fmt.Sprintf("%s %s", c, desc)
}
