package trainline

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/tgvmax-watcher/internal/availability"
	"github.com/google/go-cmp/cmp"
)

var paris = availability.Paris()

func discardLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// One page: three journeys keyed by id, deliberately out of order.
//   - j1 08:15, one section, cheapest alternative 0 -> eligible
//   - j2 09:00, one section with alternatives priced 79 and 45 -> excluded
//   - j3 23:59, two sections, cheapest 0 on both -> eligible
const pageFixture = `{
  "data": {
    "journeySearch": {
      "journeys": {
        "j3": {"departAt": "2024-06-01T23:59:00+02:00", "sections": ["s3", "s4"]},
        "j1": {"departAt": "2024-06-01T08:15:00+02:00", "sections": ["s1"]},
        "j2": {"departAt": "2024-06-01T09:00:00+02:00", "sections": ["s2"]}
      },
      "sections": {
        "s1": {"alternatives": ["a1", "a2"]},
        "s2": {"alternatives": ["a3", "a4"]},
        "s3": {"alternatives": ["a5"]},
        "s4": {"alternatives": ["a6"]}
      },
      "alternatives": {
        "a1": {"price": {"amount": 79}},
        "a2": {"price": {"amount": 0}},
        "a3": {"price": {"amount": 79}},
        "a4": {"price": {"amount": 45}},
        "a5": {"price": {"amount": 0}},
        "a6": {"price": {"amount": 0}}
      }
    }
  }
}`

func newBackend(t *testing.T, pages []string) (*httptest.Server, *[]string) {
	t.Helper()
	var cursors []string
	calls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Set-Cookie", "context=abc; Path=/; Secure")
	})
	mux.HandleFunc("POST /search", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-version"); got != apiVersion {
			t.Errorf("x-version = %q", got)
		}
		if got := r.Header.Get("Cookie"); got != "context=abc" {
			t.Errorf("cookie header = %q", got)
		}
		var req struct {
			TransitDefinitions []struct {
				JourneyDate struct {
					Time string `json:"time"`
				} `json:"journeyDate"`
			} `json:"transitDefinitions"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.TransitDefinitions) != 1 {
			t.Errorf("decode search payload: %v", err)
		} else {
			cursors = append(cursors, req.TransitDefinitions[0].JourneyDate.Time)
		}

		if calls >= len(pages) {
			t.Errorf("unexpected extra page request %d", calls+1)
			http.Error(w, "no more pages", http.StatusBadRequest)
			return
		}
		_, _ = io.WriteString(w, pages[calls])
		calls++
	})
	return httptest.NewServer(mux), &cursors
}

func newConnector(ts *httptest.Server) *Connector {
	return New(Config{
		BaseURL:    ts.URL + "/",
		SearchURL:  ts.URL + "/search",
		CardID:     "11111111-2222-3333-4444-555555555555",
		CardTypeID: "tgvmax-card-type",
	}, discardLog())
}

func TestCheckAvailabilityPricesPerSection(t *testing.T) {
	ts, cursors := newBackend(t, []string{pageFixture})
	defer ts.Close()

	c := newConnector(ts)
	got := c.CheckAvailability(context.Background(), availability.Request{
		Origin:      availability.Endpoint{Name: "Paris", TrainlineID: "4916"},
		Destination: availability.Endpoint{Name: "Lyon", TrainlineID: "4676"},
		Window: availability.TimeWindow{
			From: time.Date(2024, 6, 1, 0, 0, 0, 0, paris),
			To:   time.Date(2024, 6, 1, 23, 59, 0, 0, paris),
		},
		CardNumber: "HC000012345",
	})

	want := availability.Availability{Available: true, Hours: []string{"08:15", "23:59"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("availability mismatch (-want +got):\n%s", diff)
	}
	// Page order comes from an id-keyed object: the cursor must still
	// be the latest departure, not whichever entry decoded last.
	if diff := cmp.Diff([]string{"2024-06-01T00:00:00"}, *cursors); diff != "" {
		t.Errorf("cursor mismatch (-want +got):\n%s", diff)
	}
}

func TestCheckAvailabilityUpstreamError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Set-Cookie", "context=abc; Path=/")
	})
	mux.HandleFunc("POST /search", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"label":"BOT_DETECTED"}`)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	c := newConnector(ts)
	got := c.CheckAvailability(context.Background(), availability.Request{
		Window: availability.TimeWindow{
			From: time.Date(2024, 6, 1, 0, 0, 0, 0, paris),
			To:   time.Date(2024, 6, 1, 23, 59, 0, 0, paris),
		},
	})

	if got.Available || len(got.Hours) != 0 {
		t.Errorf("expected empty availability on upstream error, got %+v", got)
	}
}

func TestJourneyPrice(t *testing.T) {
	sections := map[string]rawSection{
		"s1": {Alternatives: []string{"a1", "a2"}},
		"s2": {Alternatives: []string{"missing"}},
		"s3": {Alternatives: nil},
	}
	alternatives := map[string]rawAlternative{}
	for id, amount := range map[string]float64{"a1": 30, "a2": 12.5} {
		var a rawAlternative
		a.Price.Amount = amount
		alternatives[id] = a
	}

	tests := []struct {
		name     string
		sections []string
		want     float64
	}{
		{
			name:     "cheapest alternative per section",
			sections: []string{"s1"},
			want:     12.5,
		},
		{
			name:     "section whose alternatives are all unknown is unpriceable",
			sections: []string{"s1", "s2"},
			want:     math.Inf(1),
		},
		{
			name:     "section without alternatives is unpriceable",
			sections: []string{"s3"},
			want:     math.Inf(1),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := rawJourney{Sections: tt.sections}
			if got := journeyPrice(j, sections, alternatives); got != tt.want {
				t.Errorf("journeyPrice = %v, want %v", got, tt.want)
			}
		})
	}
}
