package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var opLogLimit int

var opCmd = &cobra.Command{
	Use:   "op",
	Short: "Inspect the operation log",
}

var opLogCmd = &cobra.Command{
	Use:   "log",
	Short: "List operations, newest first",
	Args:  cobra.NoArgs,
	RunE:  runOpLog,
}

func init() {
	opLogCmd.Flags().IntVarP(&opLogLimit, "limit", "n", 20, "show at most this many operations")
	opCmd.AddCommand(opLogCmd)
	rootCmd.AddCommand(opCmd)
}

func runOpLog(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	r, err := openRepo(ctx)
	if err != nil {
		return err
	}
	ops, err := r.OpLog().Log(ctx, opLogLimit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, op := range ops {
		id := op.ID.String()
		if len(id) > 12 {
			id = id[len(id)-12:]
		}
		fmt.Fprintf(out, "%s %s %s\n", id, op.Timestamp.Format(time.RFC3339), op.Description)
	}
	return nil
}
