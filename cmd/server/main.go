package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"secrets-backend/internal/config"
	"secrets-backend/internal/store"
)

const connectTimeout = 30 * time.Second

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:          "secrets-backend",
		Short:        "Project roles, permission forms and KMIP server certificates",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to app.yaml (default: search . and ../..)")

	load := func() (*config.Config, error) {
		if configPath != "" {
			return config.LoadFile(configPath)
		}
		return config.Load()
	}
	root.AddCommand(newServeCmd(load), newBootstrapCmd(load))
	return root
}

func newBootstrapCmd(load func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Create system tables and seed the admin user, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			st, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer st.Close()
			log.Println("System tables ready")
			return nil
		},
	}
}

// openStore connects and bootstraps the system tables.
func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	st, err := store.Connect(ctx, cfg.Database, connectTimeout)
	if err != nil {
		return nil, err
	}
	if err := st.Bootstrap(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("bootstrap system tables: %w", err)
	}
	return st, nil
}
