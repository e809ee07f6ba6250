// Package stations keeps the directory of train stations with their
// per-provider identifiers. Endpoints are looked up here once when an
// alert is created and copied onto the alert; the directory is never
// consulted during polling.
package stations

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/example/tgvmax-watcher/internal/availability"
	"github.com/example/tgvmax-watcher/internal/db"
)

type Station struct {
	ID          int64
	Name        string
	SncfID      string
	TrainlineID string
}

// Endpoint converts a station row into the route endpoint the
// connectors consume.
func (s Station) Endpoint() availability.Endpoint {
	return availability.Endpoint{Name: s.Name, SncfID: s.SncfID, TrainlineID: s.TrainlineID}
}

type Repo struct{ db *db.DB }

func NewRepo(d *db.DB) *Repo { return &Repo{db: d} }

func (r *Repo) Upsert(ctx context.Context, s Station) error {
	return r.db.Exec(ctx, `
INSERT INTO stations(name, sncf_id, trainline_id) VALUES ($1,$2,$3)
ON CONFLICT (name) DO UPDATE SET sncf_id=EXCLUDED.sncf_id, trainline_id=EXCLUDED.trainline_id`,
		s.Name, s.SncfID, s.TrainlineID)
}

func (r *Repo) FindByName(ctx context.Context, name string) (Station, error) {
	var s Station
	err := r.db.QueryRow(ctx,
		`SELECT id, name, sncf_id, trainline_id FROM stations WHERE name=$1`, name,
	).Scan(&s.ID, &s.Name, &s.SncfID, &s.TrainlineID)
	if err != nil {
		return Station{}, db.WrapNotFound(err)
	}
	return s, nil
}

func (r *Repo) List(ctx context.Context) ([]Station, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, sncf_id, trainline_id FROM stations ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Station
	for rows.Next() {
		var s Station
		if err := rows.Scan(&s.ID, &s.Name, &s.SncfID, &s.TrainlineID); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type stationJSON struct {
	Name        string `json:"name"`
	SncfID      string `json:"sncfId"`
	TrainlineID string `json:"trainlineId"`
}

// ImportJSON bulk-loads a station file: a JSON array of
// {name, sncfId, trainlineId}. Existing names are overwritten.
func (r *Repo) ImportJSON(ctx context.Context, src io.Reader) (int, error) {
	var raw []stationJSON
	if err := json.NewDecoder(src).Decode(&raw); err != nil {
		return 0, fmt.Errorf("decode stations: %w", err)
	}

	n := 0
	for _, s := range raw {
		if s.Name == "" || s.SncfID == "" || s.TrainlineID == "" {
			return n, fmt.Errorf("station %q: name, sncfId and trainlineId are all required", s.Name)
		}
		if err := r.Upsert(ctx, Station{Name: s.Name, SncfID: s.SncfID, TrainlineID: s.TrainlineID}); err != nil {
			return n, fmt.Errorf("upsert %q: %w", s.Name, err)
		}
		n++
	}
	return n, nil
}
