package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/tgvmax-watcher/internal/alerts"
	"github.com/example/tgvmax-watcher/internal/auth"
	"github.com/example/tgvmax-watcher/internal/availability"
	"github.com/example/tgvmax-watcher/internal/checker"
	"github.com/example/tgvmax-watcher/internal/config"
	"github.com/example/tgvmax-watcher/internal/db"
	"github.com/example/tgvmax-watcher/internal/migrate"
	"github.com/example/tgvmax-watcher/internal/notify"
	"github.com/example/tgvmax-watcher/internal/sncf"
	"github.com/example/tgvmax-watcher/internal/stations"
	"github.com/example/tgvmax-watcher/internal/trainline"
	"github.com/example/tgvmax-watcher/internal/web"
	"github.com/spf13/cobra"
)

func newServerCmd() *cobra.Command {
	var migrateUp bool

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the API + availability checker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			log := newLogger()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			d, err := db.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer d.Close()

			if err := d.Ping(ctx); err != nil {
				return fmt.Errorf("db ping: %w", err)
			}

			if migrateUp {
				if err := migrate.Up(ctx, d); err != nil {
					return err
				}
			}

			authStore := auth.NewStore(d, cfg.CookieHashKey, cfg.CookieBlockKey)
			alertRepo := alerts.NewRepo(d)
			stationRepo := stations.NewRepo(d)

			providers, err := buildProviders(cfg, log)
			if err != nil {
				return err
			}

			// checker
			chk := &checker.Checker{
				Alerts: alertRepo,
				Users:  authStore,
				Policy: availability.NewFailover(log, providers...),
				Mailer: notify.NewSMTP(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPFrom),
				Log:    log,

				Delay:         cfg.CheckDelay,
				LookAheadDays: cfg.LookAheadDays,
				Disabled:      cfg.DisableChecks,
			}
			go func() { _ = chk.Run(ctx, cfg.CronSchedule) }()

			// web
			ws := &web.Server{Auth: authStore, Alerts: alertRepo, Stations: stationRepo, Log: log}
			return web.Start(ctx, log, cfg.ListenAddr, ws.Routes())
		},
	}

	cmd.Flags().BoolVar(&migrateUp, "migrate", true, "run database migrations on startup")

	cmd.Flags().Lookup("migrate").NoOptDefVal = "true"
	return cmd
}

func buildProviders(cfg config.Config, log *slog.Logger) ([]availability.Provider, error) {
	var out []availability.Provider
	for _, name := range cfg.ProviderOrder {
		switch name {
		case "trainline":
			out = append(out, trainline.New(trainline.Config{
				BaseURL:    cfg.TrainlineBaseURL,
				SearchURL:  cfg.TrainlineSearchURL,
				CardID:     cfg.TrainlineCardID,
				CardTypeID: cfg.TrainlineCardTypeID,
			}, log))
		case "sncf":
			out = append(out, sncf.New(sncf.Config{
				BaseURL:   cfg.SncfBaseURL,
				SearchURL: cfg.SncfSearchURL,
				APIKey:    cfg.SncfAPIKey,
			}, log))
		default:
			return nil, fmt.Errorf("unknown provider %q", name)
		}
	}
	return out, nil
}
