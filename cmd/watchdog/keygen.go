package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sumitx99/ethical-web-watchdog/internal/auth"
)

func keygenCmd() *cobra.Command {
	var store bool
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an API key and its bcrypt hash",
		Long: `Generate an API key. The key is printed once and is not recoverable.

Put the hash in auth.api_key_hashes, or pass --store to insert it into the
Postgres key table named by postgres.dsn.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, hash, prefix, err := auth.GenerateAPIKey()
			if err != nil {
				return err
			}

			if store {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				if cfg.Postgres.DSN == "" {
					return errors.New("--store needs postgres.dsn")
				}
				db, err := openPostgres(cmd.Context(), cfg.Postgres.DSN)
				if err != nil {
					return err
				}
				defer func() { _ = db.Close() }()

				keys := auth.NewPostgresKeys(db)
				if err := keys.Migrate(cmd.Context()); err != nil {
					return fmt.Errorf("migrate api keys: %w", err)
				}
				if err := keys.Insert(cmd.Context(), prefix, hash); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "key:    %s\n", key)
			fmt.Fprintf(out, "hash:   %s\n", hash)
			fmt.Fprintf(out, "prefix: %s\n", prefix)
			return nil
		},
	}
	cmd.Flags().BoolVar(&store, "store", false, "insert the hash into Postgres")
	return cmd
}
