// Package checker drives the periodic availability checks: it loads
// the due travel alerts, runs the connector failover for each, sends
// the notification on a hit and applies the state transition.
package checker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/tgvmax-watcher/internal/alerts"
	"github.com/example/tgvmax-watcher/internal/availability"
	"github.com/example/tgvmax-watcher/internal/notify"
	"github.com/robfig/cron/v3"
)

// AlertStore is the slice of the alert repository the checker needs.
type AlertStore interface {
	Pending(ctx context.Context, from, until time.Time) ([]alerts.Alert, error)
	MarkTriggered(ctx context.Context, id int64, at time.Time) error
	TouchLastCheck(ctx context.Context, id int64, at time.Time) error
}

// UserDirectory resolves an alert owner's notification address.
type UserDirectory interface {
	EmailByID(ctx context.Context, id int64) (string, error)
}

type Checker struct {
	Alerts AlertStore
	Users  UserDirectory
	Policy *availability.Failover
	Mailer notify.Mailer
	Log    *slog.Logger

	// Delay paces outbound traffic: a pause after every alert,
	// hit or miss.
	Delay time.Duration
	// LookAheadDays bounds how far ahead a window may open and still
	// be polled (the TGVmax booking horizon).
	LookAheadDays int
	// Disabled skips new ticks without stopping the cron runner.
	Disabled bool
}

var paris = availability.Paris()

// Run schedules ticks according to a cron expression and blocks until
// ctx is cancelled. Ticks never overlap: a slow pass swallows the next
// firing instead of doubling the outbound request volume.
func (c *Checker) Run(ctx context.Context, schedule string) error {
	cr := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := cr.AddFunc(schedule, func() { c.Tick(ctx) }); err != nil {
		return fmt.Errorf("invalid check schedule %q: %w", schedule, err)
	}
	cr.Start()

	<-ctx.Done()
	// Stop only prevents new ticks; wait for a running one to finish.
	<-cr.Stop().Done()
	return ctx.Err()
}

// Tick runs one full pass over the due alerts, strictly sequentially.
// Both backends throttle burst traffic, so neither alerts nor
// connectors run in parallel.
func (c *Checker) Tick(ctx context.Context) {
	if c.Disabled {
		return
	}

	from, until := DueInterval(time.Now(), c.LookAheadDays)
	due, err := c.Alerts.Pending(ctx, from, until)
	if err != nil {
		c.Log.Error("load pending alerts", "error", err)
		return
	}
	if len(due) == 0 {
		return
	}

	c.Log.Info("processing travel alerts", "count", len(due))
	for _, alert := range due {
		if ctx.Err() != nil {
			return
		}
		// Failures stay local to the alert: its state is untouched and
		// the next tick retries it.
		if err := c.process(ctx, alert); err != nil {
			c.Log.Error("travel alert check failed", "alert_id", alert.ID, "error", err)
		}
		c.pause(ctx)
	}
}

func (c *Checker) process(ctx context.Context, alert alerts.Alert) error {
	av := c.Policy.Check(ctx, availability.Request{
		Origin:      alert.Origin,
		Destination: alert.Destination,
		Window:      availability.TimeWindow{From: alert.FromTime, To: alert.ToTime},
		CardNumber:  alert.CardNumber,
	})

	now := time.Now()
	if !av.Available {
		return c.Alerts.TouchLastCheck(ctx, alert.ID, now)
	}

	email, err := c.Users.EmailByID(ctx, alert.UserID)
	if err != nil {
		return fmt.Errorf("resolve owner email: %w", err)
	}
	if err := c.Mailer.SendAvailability(ctx, email, alert.Origin.Name, alert.Destination.Name, alert.FromTime, av.Hours); err != nil {
		// Leave the alert pending: a lost notification must not look
		// like a triggered alert.
		return fmt.Errorf("send notification: %w", err)
	}

	c.Log.Info("travel alert triggered", "alert_id", alert.ID, "hours", av.Hours)
	if err := c.Alerts.MarkTriggered(ctx, alert.ID, now); err != nil {
		return fmt.Errorf("mark triggered: %w", err)
	}
	return nil
}

func (c *Checker) pause(ctx context.Context) {
	if c.Delay <= 0 {
		return
	}
	t := time.NewTimer(c.Delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// DueInterval bounds the pending-alert query: windows opening after
// now and no later than the end of the day lookAheadDays out, Paris
// time.
func DueInterval(now time.Time, lookAheadDays int) (from, until time.Time) {
	d := now.In(paris).AddDate(0, 0, lookAheadDays)
	until = time.Date(d.Year(), d.Month(), d.Day(), 23, 59, 59, 0, paris)
	return now, until
}
