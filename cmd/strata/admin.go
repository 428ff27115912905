package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"strata/internal/config"
	"strata/internal/domain"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Validate and re-index every dirty entity",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app, _ domain.Session) error {
			n, err := a.engine.DrainDirtyEntities(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Reconciled %d entities\n", n)
			return nil
		})
	},
}

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Manage advisory locks",
}

var lockCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Release advisory locks whose lease ran out",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app, _ domain.Session) error {
			names, err := a.engine.ReleaseExpiredAdvisoryLocks(ctx)
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Println("released", name)
			}
			fmt.Printf("Released %d expired locks\n", len(names))
			return nil
		})
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the config file",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a default config file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.DefaultConfigPath()
		if len(args) == 1 {
			path = args[0]
		}
		if err := config.DefaultConfig().Save(path); err != nil {
			return err
		}
		fmt.Println("Wrote", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		fmt.Println(cfg.Summary())
		return nil
	},
}

func init() {
	lockCmd.AddCommand(lockCleanupCmd)
	configCmd.AddCommand(configInitCmd, configShowCmd)
}
