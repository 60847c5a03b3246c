package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/systemshift/splice/internal/config"
	"github.com/systemshift/splice/internal/repo"
)

var (
	initUserName  string
	initUserEmail string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a repository",
	Long: `Create an empty repository under <repo>/.splice and write a default
config file next to it.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVar(&initUserName, "user-name", "", "user.name to record in the config file")
	initCmd.Flags().StringVar(&initUserEmail, "user-email", "", "user.email to record in the config file")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s := *settings
	if initUserName != "" {
		s.User.Name = initUserName
	}
	if initUserEmail != "" {
		s.User.Email = initUserEmail
	}
	opts, err := s.RepoOptions(logger)
	if err != nil {
		return err
	}
	if _, err := repo.Init(ctx, repoDir, opts); err != nil {
		return fmt.Errorf("init %s: %w", repoDir, err)
	}
	if err := config.WriteDefault(repoDir, s); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Initialized repository in %s\n", repoDir)
	return nil
}
