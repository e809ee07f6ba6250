// Package trainline is the Trainline availability connector. The
// journey-search response keys journeys, sections and alternatives by
// id; a journey's price is the sum over its sections of the cheapest
// alternative.
package trainline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/example/tgvmax-watcher/internal/availability"
	"github.com/google/uuid"
)

const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/114.0.0.0 Safari/537.36"

const apiVersion = "4.6.22225"

const departureLayout = "2006-01-02T15:04:05"

type Config struct {
	// BaseURL is the public site, used for the cookie handshake and
	// sent back as the origin header.
	BaseURL string
	// SearchURL is the journey-search endpoint.
	SearchURL string
	// CardID is the card instance id echoed through the payload.
	CardID string
	// CardTypeID identifies the TGVmax card type on Trainline's side.
	CardTypeID string
}

type Connector struct {
	hc  *http.Client
	cfg Config
	log *slog.Logger
	loc *time.Location
}

func New(cfg Config, log *slog.Logger) *Connector {
	return &Connector{
		hc:  &http.Client{Timeout: 20 * time.Second},
		cfg: cfg,
		log: log,
		loc: availability.Paris(),
	}
}

func (c *Connector) Name() string { return "trainline" }

func (c *Connector) CheckAvailability(ctx context.Context, req availability.Request) availability.Availability {
	journeys := availability.Search(ctx, c.log, req.Window,
		func(ctx context.Context, cursor time.Time) ([]availability.Journey, error) {
			return c.fetchPage(ctx, req, cursor)
		})
	return availability.FromHours(availability.EligibleHours(journeys, req.Window.To, c.loc))
}

type rawJourney struct {
	DepartAt string   `json:"departAt"`
	Sections []string `json:"sections"`
}

type rawSection struct {
	Alternatives []string `json:"alternatives"`
}

type rawAlternative struct {
	Price struct {
		Amount float64 `json:"amount"`
	} `json:"price"`
}

func (c *Connector) fetchPage(ctx context.Context, req availability.Request, cursor time.Time) ([]availability.Journey, error) {
	cookies, err := c.sessionCookies(ctx)
	if err != nil {
		return nil, fmt.Errorf("trainline session: %w", err)
	}

	payload := map[string]any{
		"passengers": []map[string]any{{
			"id":          uuid.NewString(),
			"dateOfBirth": "1996-08-27",
			"cardIds":     []string{c.cfg.CardID},
		}},
		"isEurope": true,
		"cards": []map[string]any{{
			"id":         c.cfg.CardID,
			"cardTypeId": c.cfg.CardTypeID,
			"number":     req.CardNumber,
			"uuid":       c.cfg.CardID,
		}},
		"transitDefinitions": []map[string]any{{
			"direction":   "outward",
			"origin":      req.Origin.TrainlineID,
			"destination": req.Destination.TrainlineID,
			"journeyDate": map[string]any{
				"type": "departAfter",
				"time": cursor.In(c.loc).Format(departureLayout),
			},
		}},
		"type":            "single",
		"maximumJourneys": 5,
		"includeRealtime": true,
		"transportModes":  []string{"mixed"},
		"directSearch":    false,
		"composition":     []string{"through"},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.SearchURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	hreq.Header.Set("content-type", "application/json")
	hreq.Header.Set("user-agent", userAgent)
	hreq.Header.Set("x-version", apiVersion)
	hreq.Header.Set("origin", c.cfg.BaseURL)
	hreq.Header.Set("cookie", cookies)

	resp, err := c.hc.Do(hreq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		var e struct {
			Label string `json:"label"`
		}
		_ = json.Unmarshal(raw, &e)
		return nil, &availability.UpstreamError{StatusCode: resp.StatusCode, Status: resp.Status, Label: e.Label}
	}

	var parsed struct {
		Data struct {
			JourneySearch struct {
				Journeys     map[string]rawJourney     `json:"journeys"`
				Sections     map[string]rawSection     `json:"sections"`
				Alternatives map[string]rawAlternative `json:"alternatives"`
			} `json:"journeySearch"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("trainline: parse search response: %w", err)
	}
	js := parsed.Data.JourneySearch

	var page []availability.Journey
	for _, j := range js.Journeys {
		if len(j.Sections) == 0 {
			continue
		}
		dep, err := c.parseDeparture(j.DepartAt)
		if err != nil {
			c.log.Warn("trainline: journey with unparseable departAt skipped",
				"depart_at", j.DepartAt, "error", err)
			continue
		}
		page = append(page, availability.Journey{
			DepartureAt: dep,
			Price:       journeyPrice(j, js.Sections, js.Alternatives),
		})
	}

	// The response keys journeys by id: map order is meaningless, and
	// the pagination cursor reads the last departure of the page.
	sort.Slice(page, func(i, k int) bool {
		return page[i].DepartureAt.Before(page[k].DepartureAt)
	})
	return page, nil
}

// journeyPrice sums the cheapest alternative of every section. A
// section with no priced alternative costs +Inf, which keeps the whole
// journey out of the zero-cost filter.
func journeyPrice(j rawJourney, sections map[string]rawSection, alternatives map[string]rawAlternative) float64 {
	total := 0.0
	for _, sectionID := range j.Sections {
		section, ok := sections[sectionID]
		if !ok {
			continue
		}
		min := math.Inf(1)
		for _, altID := range section.Alternatives {
			alt, ok := alternatives[altID]
			if !ok {
				continue
			}
			if alt.Price.Amount < min {
				min = alt.Price.Amount
			}
		}
		total += min
	}
	return total
}

func (c *Connector) sessionCookies(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("user-agent", userAgent)

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	var pairs []string
	for _, sc := range resp.Header.Values("Set-Cookie") {
		if i := strings.Index(sc, ";"); i >= 0 {
			sc = sc[:i]
		}
		pairs = append(pairs, sc)
	}
	return strings.Join(pairs, ";"), nil
}

func (c *Connector) parseDeparture(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation(departureLayout, s, c.loc)
}
