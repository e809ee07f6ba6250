package alerts

import (
	"strings"
	"testing"
	"time"

	"github.com/example/tgvmax-watcher/internal/availability"
)

func validAlert() Alert {
	paris := availability.Paris()
	return Alert{
		UserID:     7,
		CardNumber: "HC000012345",
		Origin: availability.Endpoint{
			Name: "Paris (toutes gares)", SncfID: "CITY_FR_PARIS", TrainlineID: "4916",
		},
		Destination: availability.Endpoint{
			Name: "Lyon (toutes gares)", SncfID: "CITY_FR_LYON", TrainlineID: "4676",
		},
		FromTime: time.Date(2024, 6, 1, 0, 0, 0, 0, paris),
		ToTime:   time.Date(2024, 6, 1, 23, 59, 0, 0, paris),
	}
}

func TestAlertValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Alert)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(*Alert) {},
		},
		{
			name:    "missing user",
			mutate:  func(a *Alert) { a.UserID = 0 },
			wantErr: "user id",
		},
		{
			name:    "missing card",
			mutate:  func(a *Alert) { a.CardNumber = "" },
			wantErr: "tgvmax number",
		},
		{
			name:    "origin without trainline id",
			mutate:  func(a *Alert) { a.Origin.TrainlineID = "" },
			wantErr: "origin must carry both provider ids",
		},
		{
			name:    "destination without name",
			mutate:  func(a *Alert) { a.Destination.Name = "" },
			wantErr: "destination name",
		},
		{
			name:    "window reversed",
			mutate:  func(a *Alert) { a.FromTime, a.ToTime = a.ToTime, a.FromTime },
			wantErr: "before to_time",
		},
		{
			name:    "window equal bounds",
			mutate:  func(a *Alert) { a.ToTime = a.FromTime },
			wantErr: "before to_time",
		},
		{
			name:    "zero window",
			mutate:  func(a *Alert) { a.FromTime, a.ToTime = time.Time{}, time.Time{} },
			wantErr: "travel window",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := validAlert()
			tt.mutate(&a)
			err := a.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}
