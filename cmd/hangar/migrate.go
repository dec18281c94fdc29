package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/hangar/pkg/config"
	"github.com/cuemby/hangar/pkg/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the control-plane database schema",
	Long: `migrate connects to the configured control-plane database and applies
its schema, creating the projects/participants/databases tables if they
don't already exist. It is safe to run repeatedly.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}

		store, err := storage.Open(context.Background(), cfg.ControlPlaneDSN)
		if err != nil {
			return fmt.Errorf("apply control-plane schema: %w", err)
		}
		defer store.Close()

		fmt.Println("control-plane schema up to date")
		return nil
	},
}
