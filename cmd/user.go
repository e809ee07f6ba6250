package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/example/tgvmax-watcher/internal/auth"
	"github.com/example/tgvmax-watcher/internal/config"
	"github.com/example/tgvmax-watcher/internal/db"
	"github.com/example/tgvmax-watcher/internal/migrate"
	"github.com/spf13/cobra"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}
	cmd.AddCommand(newUserAddCmd())
	return cmd
}

func newUserAddCmd() *cobra.Command {
	var email, password, tgvmaxNumber string

	c := &cobra.Command{
		Use:   "add",
		Short: "Add a user (email/password, with an optional default TGVmax card number)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}

			ctx := context.Background()
			d, err := db.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer d.Close()

			if err := migrate.Up(ctx, d); err != nil {
				return err
			}

			store := auth.NewStore(d, cfg.CookieHashKey, cfg.CookieBlockKey)
			email = strings.TrimSpace(strings.ToLower(email))
			id, err := store.CreateUser(ctx, email, password, strings.TrimSpace(tgvmaxNumber))
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "created user %q (id=%d)\n", email, id)
			return nil
		},
	}

	c.Flags().StringVar(&email, "email", "", "email address, also the notification target")
	c.Flags().StringVar(&password, "password", "", "password")
	c.Flags().StringVar(&tgvmaxNumber, "tgvmax-number", "", "TGVmax card number (HC...)")
	_ = c.MarkFlagRequired("email")
	_ = c.MarkFlagRequired("password")
	return c
}
