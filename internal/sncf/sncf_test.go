package sncf

import (
	"context"
	"encoding/json"
	"fmt"
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

func proposalJSON(travelID, priceLabel string, bookable bool) string {
	return fmt.Sprintf(`{"status":{"isBookable":%t},"travelId":%q,"bestPriceLabel":%q}`,
		bookable, travelID, priceLabel)
}

func searchBody(proposals ...string) string {
	out := `{"longDistance":{"proposals":{"proposals":[`
	for i, p := range proposals {
		if i > 0 {
			out += ","
		}
		out += p
	}
	return out + `]}}}`
}

// newBackend serves the cookie handshake on / and replays one search
// page per POST on /search.
func newBackend(t *testing.T, pages []string) (*httptest.Server, *[]string) {
	t.Helper()
	var cursors []string
	calls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Set-Cookie", "bff_session=abc123; Path=/; HttpOnly")
		w.Header().Add("Set-Cookie", "datadome=xyz; Path=/")
	})
	mux.HandleFunc("POST /search", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-bff-key"); got != "test-key" {
			t.Errorf("x-bff-key = %q", got)
		}
		if got := r.Header.Get("Cookie"); got != "bff_session=abc123;datadome=xyz" {
			t.Errorf("cookie header = %q", got)
		}
		var req struct {
			Schedule struct {
				Outward struct {
					Date string `json:"date"`
				} `json:"outward"`
			} `json:"schedule"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode search payload: %v", err)
		}
		cursors = append(cursors, req.Schedule.Outward.Date)

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
		BaseURL:   ts.URL + "/",
		SearchURL: ts.URL + "/search",
		APIKey:    "test-key",
	}, discardLog())
}

func window(from, to time.Time) availability.TimeWindow {
	return availability.TimeWindow{From: from, To: to}
}

func TestCheckAvailabilityPaginates(t *testing.T) {
	ts, cursors := newBackend(t, []string{
		searchBody(
			proposalJSON("2024-06-01T06:30:00_abc", "25,00 €", true),
			proposalJSON("2024-06-01T08:15:00_def", "0,00 €", true),
			proposalJSON("2024-06-01T10:00:00_ghi", "0,00 €", true),
		),
		searchBody(
			proposalJSON("2024-06-01T10:00:00_ghi", "0,00 €", true),
			proposalJSON("2024-06-01T23:59:00_jkl", "0,00 €", true),
		),
	})
	defer ts.Close()

	c := newConnector(ts)
	got := c.CheckAvailability(context.Background(), availability.Request{
		Window: window(
			time.Date(2024, 6, 1, 0, 0, 0, 0, paris),
			time.Date(2024, 6, 1, 23, 59, 0, 0, paris),
		),
		CardNumber: "HC000012345",
	})

	want := availability.Availability{Available: true, Hours: []string{"08:15", "10:00", "23:59"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("availability mismatch (-want +got):\n%s", diff)
	}
	wantCursors := []string{"2024-06-01T00:00:00.000Z", "2024-06-01T10:00:00.000Z"}
	if diff := cmp.Diff(wantCursors, *cursors); diff != "" {
		t.Errorf("cursor mismatch (-want +got):\n%s", diff)
	}
}

func TestCheckAvailabilitySkipsUnbookable(t *testing.T) {
	ts, _ := newBackend(t, []string{
		searchBody(
			proposalJSON("2024-06-01T08:15:00_abc", "0,00 €", false),
			proposalJSON("2024-06-01T23:59:00_def", "0,00 €", true),
		),
	})
	defer ts.Close()

	c := newConnector(ts)
	got := c.CheckAvailability(context.Background(), availability.Request{
		Window: window(
			time.Date(2024, 6, 1, 0, 0, 0, 0, paris),
			time.Date(2024, 6, 1, 23, 59, 0, 0, paris),
		),
	})

	want := availability.Availability{Available: true, Hours: []string{"23:59"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("availability mismatch (-want +got):\n%s", diff)
	}
}

func TestCheckAvailabilityEmptyFirstPage(t *testing.T) {
	ts, _ := newBackend(t, []string{searchBody()})
	defer ts.Close()

	c := newConnector(ts)
	got := c.CheckAvailability(context.Background(), availability.Request{
		Window: window(
			time.Date(2024, 6, 1, 0, 0, 0, 0, paris),
			time.Date(2024, 6, 1, 23, 59, 0, 0, paris),
		),
	})

	if got.Available || len(got.Hours) != 0 {
		t.Errorf("expected empty availability, got %+v", got)
	}
}

func TestCheckAvailabilityUpstreamFailureKeepsEarlierPages(t *testing.T) {
	calls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Set-Cookie", "bff_session=abc; Path=/")
	})
	mux.HandleFunc("POST /search", func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			_, _ = io.WriteString(w, searchBody(
				proposalJSON("2024-06-01T08:15:00_abc", "0,00 €", true),
				proposalJSON("2024-06-01T10:00:00_def", "12,00 €", true),
			))
			return
		}
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"label":"RATE_LIMITED"}`)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	c := newConnector(ts)
	got := c.CheckAvailability(context.Background(), availability.Request{
		Window: window(
			time.Date(2024, 6, 1, 0, 0, 0, 0, paris),
			time.Date(2024, 6, 1, 23, 59, 0, 0, paris),
		),
	})

	want := availability.Availability{Available: true, Hours: []string{"08:15"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("availability mismatch (-want +got):\n%s", diff)
	}
	if calls != 2 {
		t.Errorf("expected pagination to stop at the failed page, got %d calls", calls)
	}
}

func TestParsePriceLabel(t *testing.T) {
	tests := []struct {
		label string
		want  float64
	}{
		{"0,00 €", 0},
		{"45,50 €", 45.5},
		{"120,00 €", 120},
		{"", math.Inf(1)},
		{"n/a", math.Inf(1)},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			if got := parsePriceLabel(tt.label); got != tt.want {
				t.Errorf("parsePriceLabel(%q) = %v, want %v", tt.label, got, tt.want)
			}
		})
	}
}
