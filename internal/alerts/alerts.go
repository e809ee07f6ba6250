// Package alerts holds the TravelAlert model and its postgres
// repository. An alert is the durable unit of work: it is created
// pending, mutated only by the checker, and becomes terminal once
// triggered.
package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/example/tgvmax-watcher/internal/availability"
	"github.com/example/tgvmax-watcher/internal/db"
)

const (
	StatusPending   = "pending"
	StatusTriggered = "triggered"
)

type Alert struct {
	ID          int64
	UserID      int64
	CardNumber  string
	Origin      availability.Endpoint
	Destination availability.Endpoint
	FromTime    time.Time
	ToTime      time.Time

	Status      string
	LastCheck   time.Time
	TriggeredAt *time.Time
	CreatedAt   time.Time
}

func (a Alert) Validate() error {
	if a.UserID == 0 {
		return fmt.Errorf("user id required")
	}
	if a.CardNumber == "" {
		return fmt.Errorf("tgvmax number required")
	}
	for _, e := range []struct {
		side string
		ep   availability.Endpoint
	}{{"origin", a.Origin}, {"destination", a.Destination}} {
		if e.ep.Name == "" {
			return fmt.Errorf("%s name required", e.side)
		}
		if e.ep.SncfID == "" || e.ep.TrainlineID == "" {
			return fmt.Errorf("%s must carry both provider ids", e.side)
		}
	}
	if a.FromTime.IsZero() || a.ToTime.IsZero() {
		return fmt.Errorf("travel window required")
	}
	if !a.FromTime.Before(a.ToTime) {
		return fmt.Errorf("from_time must be before to_time")
	}
	return nil
}

const alertColumns = `id,user_id,tgvmax_number,
origin_name,origin_sncf_id,origin_trainline_id,
destination_name,destination_sncf_id,destination_trainline_id,
from_time,to_time,status,last_check,triggered_at,created_at`

type Repo struct{ db *db.DB }

func NewRepo(d *db.DB) *Repo { return &Repo{db: d} }

func (r *Repo) Create(ctx context.Context, a Alert) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
INSERT INTO alerts(user_id,tgvmax_number,
	origin_name,origin_sncf_id,origin_trainline_id,
	destination_name,destination_sncf_id,destination_trainline_id,
	from_time,to_time,status,last_check)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,'pending',now())
RETURNING id`,
		a.UserID, a.CardNumber,
		a.Origin.Name, a.Origin.SncfID, a.Origin.TrainlineID,
		a.Destination.Name, a.Destination.SncfID, a.Destination.TrainlineID,
		a.FromTime, a.ToTime,
	).Scan(&id)
	return id, db.WrapNotFound(err)
}

func (r *Repo) GetByIDForUser(ctx context.Context, id, userID int64) (Alert, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE id=$1 AND user_id=$2`, id, userID)
	a, err := scanAlert(row)
	if err != nil {
		return Alert{}, db.WrapNotFound(err)
	}
	return a, nil
}

func (r *Repo) ListByUser(ctx context.Context, userID int64) ([]Alert, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

// Pending returns the alerts due for a check: still pending, window
// opening inside (from, until), window end not yet passed. Triggered
// alerts never match again.
func (r *Repo) Pending(ctx context.Context, from, until time.Time) ([]Alert, error) {
	rows, err := r.db.Query(ctx, `
SELECT `+alertColumns+`
FROM alerts
WHERE status='pending'
  AND from_time > $1
  AND from_time < $2
  AND to_time > $1
ORDER BY from_time ASC`, from, until)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

// MarkTriggered flips a pending alert into its terminal state. The
// status guard keeps a concurrent double-trigger from rewriting
// triggered_at.
func (r *Repo) MarkTriggered(ctx context.Context, id int64, at time.Time) error {
	n, err := r.db.ExecRows(ctx,
		`UPDATE alerts SET status='triggered', triggered_at=$2 WHERE id=$1 AND status='pending'`, id, at)
	if err != nil {
		return err
	}
	if n == 0 {
		return db.ErrNotFound
	}
	return nil
}

func (r *Repo) TouchLastCheck(ctx context.Context, id int64, at time.Time) error {
	return r.db.Exec(ctx, `UPDATE alerts SET last_check=$2 WHERE id=$1`, id, at)
}

func (r *Repo) DeleteByIDForUser(ctx context.Context, id, userID int64) error {
	n, err := r.db.ExecRows(ctx, `DELETE FROM alerts WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return err
	}
	if n == 0 {
		return db.ErrNotFound
	}
	return nil
}

func scanAlert(row db.Row) (Alert, error) {
	var a Alert
	err := row.Scan(
		&a.ID, &a.UserID, &a.CardNumber,
		&a.Origin.Name, &a.Origin.SncfID, &a.Origin.TrainlineID,
		&a.Destination.Name, &a.Destination.SncfID, &a.Destination.TrainlineID,
		&a.FromTime, &a.ToTime, &a.Status, &a.LastCheck, &a.TriggeredAt, &a.CreatedAt,
	)
	return a, err
}

func collect(rows db.Rows) ([]Alert, error) {
	var out []Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
