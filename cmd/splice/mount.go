package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/systemshift/splice/internal/fuse"
)

var (
	mountRevision string
	mountDebug    bool
)

var mountCmd = &cobra.Command{
	Use:   "mount MOUNTPOINT",
	Short: "Mount a commit's tree read-only",
	Long: `Mount the tree of a commit read-only with FUSE. Conflicted files
contain conflict markers. If the commit has a conflict with more sides
than a checkout can represent, a placeholder file named
.jj-do-not-resolve-this-conflict appears at the root.

The mount stays up until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: runMount,
}

func init() {
	mountCmd.Flags().StringVarP(&mountRevision, "revision", "r", "", "commit to mount (required)")
	mountCmd.Flags().BoolVar(&mountDebug, "debug", false, "log every FUSE request")
	_ = mountCmd.MarkFlagRequired("revision")
	rootCmd.AddCommand(mountCmd)
}

func runMount(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	mountpoint := args[0]
	if err := os.MkdirAll(mountpoint, 0755); err != nil {
		return fmt.Errorf("create mountpoint: %w", err)
	}

	r, err := openRepo(ctx)
	if err != nil {
		return err
	}
	c, err := resolveCommit(ctx, r, mountRevision)
	if err != nil {
		return err
	}
	snap, err := fuse.NewSnapshot(ctx, c, logger)
	if err != nil {
		return err
	}
	if snap.HasManySidedConflict() {
		logger.Warn("commit has conflicts with too many sides to materialize",
			zap.Stringer("commit", c.ID()),
			zap.String("placeholder", fuse.ConflictSentinelPath))
	}

	logger.Info("mounting", zap.Stringer("commit", c.ID()), zap.String("mountpoint", mountpoint))
	server, err := fuse.MountFS(mountpoint, snap, fuse.MountOptions{Debug: mountDebug, Log: logger})
	if err != nil {
		return fmt.Errorf("mount failed: %w", err)
	}

	// Unmount on signal
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-done
		logger.Info("shutting down")
		if err := server.Unmount(); err != nil {
			logger.Warn("unmount failed", zap.Error(err))
		}
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "Mounted %s at %s (pid %d)\n", describe(c), mountpoint, os.Getpid())
	server.Wait()
	logger.Info("stopped")
	return nil
}
