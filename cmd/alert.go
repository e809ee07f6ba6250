package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/example/tgvmax-watcher/internal/alerts"
	"github.com/example/tgvmax-watcher/internal/availability"
	"github.com/example/tgvmax-watcher/internal/config"
	"github.com/example/tgvmax-watcher/internal/db"
	"github.com/example/tgvmax-watcher/internal/migrate"
	"github.com/example/tgvmax-watcher/internal/stations"
	"github.com/spf13/cobra"
)

func newAlertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alert",
		Short: "Manage availability alerts (non-API)",
	}
	cmd.AddCommand(newAlertCreateCmd())
	cmd.AddCommand(newAlertListCmd())
	cmd.AddCommand(newAlertDeleteCmd())
	return cmd
}

func openRepos(ctx context.Context, cfg config.Config) (*db.DB, *alerts.Repo, *stations.Repo, error) {
	d, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := migrate.Up(ctx, d); err != nil {
		d.Close()
		return nil, nil, nil, err
	}
	return d, alerts.NewRepo(d), stations.NewRepo(d), nil
}

func newAlertCreateCmd() *cobra.Command {
	var (
		userID       int64
		origin       string
		destination  string
		fromTime     string
		toTime       string
		tgvmaxNumber string
	)

	c := &cobra.Command{
		Use:   "create",
		Short: "Create an alert for a journey window",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			ctx := context.Background()
			d, alertRepo, stationRepo, err := openRepos(ctx, cfg)
			if err != nil {
				return err
			}
			defer d.Close()

			paris := availability.Paris()
			from, err := time.ParseInLocation("2006-01-02 15:04", fromTime, paris)
			if err != nil {
				return fmt.Errorf("invalid --from (want \"YYYY-MM-DD HH:MM\", Paris time)")
			}
			to, err := time.ParseInLocation("2006-01-02 15:04", toTime, paris)
			if err != nil {
				return fmt.Errorf("invalid --to (want \"YYYY-MM-DD HH:MM\", Paris time)")
			}

			// The scheduler mails this user: fail now if the id is bogus.
			var email string
			row := d.QueryRow(ctx, `SELECT email FROM users WHERE id = $1`, userID)
			if err := db.WrapNotFound(row.Scan(&email)); err != nil {
				if db.IsNotFound(err) {
					return fmt.Errorf("user %d not found", userID)
				}
				return err
			}

			card := strings.TrimSpace(tgvmaxNumber)
			if card == "" {
				row := d.QueryRow(ctx, `SELECT tgvmax_number FROM users WHERE id = $1`, userID)
				if err := row.Scan(&card); err != nil {
					return err
				}
			}

			o, err := stationRepo.FindByName(ctx, origin)
			if err != nil {
				return fmt.Errorf("origin: %w", err)
			}
			dst, err := stationRepo.FindByName(ctx, destination)
			if err != nil {
				return fmt.Errorf("destination: %w", err)
			}

			a := alerts.Alert{
				UserID:      userID,
				CardNumber:  card,
				Origin:      o.Endpoint(),
				Destination: dst.Endpoint(),
				FromTime:    from,
				ToTime:      to,
			}
			if err := a.Validate(); err != nil {
				return err
			}

			id, err := alertRepo.Create(ctx, a)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "created alert %d: %s -> %s, %s to %s\n",
				id, o.Name, dst.Name,
				from.Format("2006-01-02 15:04"), to.Format("2006-01-02 15:04"))
			return nil
		},
	}

	c.Flags().Int64Var(&userID, "user-id", 0, "owner user id")
	c.Flags().StringVar(&origin, "origin", "", "origin station name")
	c.Flags().StringVar(&destination, "destination", "", "destination station name")
	c.Flags().StringVar(&fromTime, "from", "", "window start, \"YYYY-MM-DD HH:MM\" Paris time")
	c.Flags().StringVar(&toTime, "to", "", "window end, \"YYYY-MM-DD HH:MM\" Paris time")
	c.Flags().StringVar(&tgvmaxNumber, "tgvmax-number", "", "TGVmax card number, defaults to the user's")
	_ = c.MarkFlagRequired("user-id")
	_ = c.MarkFlagRequired("origin")
	_ = c.MarkFlagRequired("destination")
	_ = c.MarkFlagRequired("from")
	_ = c.MarkFlagRequired("to")
	return c
}

func newAlertListCmd() *cobra.Command {
	var userID int64

	c := &cobra.Command{
		Use:   "list",
		Short: "List a user's alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			ctx := context.Background()
			d, alertRepo, _, err := openRepos(ctx, cfg)
			if err != nil {
				return err
			}
			defer d.Close()

			as, err := alertRepo.ListByUser(ctx, userID)
			if err != nil {
				return err
			}
			for _, a := range as {
				fmt.Fprintf(os.Stdout, "%d\t%s -> %s\t%s to %s\t%s\n",
					a.ID, a.Origin.Name, a.Destination.Name,
					a.FromTime.Format("2006-01-02 15:04"),
					a.ToTime.Format("2006-01-02 15:04"),
					a.Status)
			}
			return nil
		},
	}

	c.Flags().Int64Var(&userID, "user-id", 0, "owner user id")
	_ = c.MarkFlagRequired("user-id")
	return c
}

func newAlertDeleteCmd() *cobra.Command {
	var (
		userID int64
		id     int64
	)

	c := &cobra.Command{
		Use:   "delete",
		Short: "Delete one of a user's alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			ctx := context.Background()
			d, alertRepo, _, err := openRepos(ctx, cfg)
			if err != nil {
				return err
			}
			defer d.Close()

			if err := alertRepo.DeleteByIDForUser(ctx, id, userID); err != nil {
				if db.IsNotFound(err) {
					return fmt.Errorf("alert %d not found for user %d", id, userID)
				}
				return err
			}
			fmt.Fprintf(os.Stdout, "deleted alert %d\n", id)
			return nil
		},
	}

	c.Flags().Int64Var(&userID, "user-id", 0, "owner user id")
	c.Flags().Int64Var(&id, "id", 0, "alert id")
	_ = c.MarkFlagRequired("user-id")
	_ = c.MarkFlagRequired("id")
	return c
}
