// Package sncf is the SNCF Connect availability connector. It drives
// the itinerary search endpoint page by page and keeps only proposals
// the backend marks bookable.
package sncf

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/example/tgvmax-watcher/internal/availability"
	"github.com/google/uuid"
)

const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/114.0.0.0 Safari/537.36"

const departureLayout = "2006-01-02T15:04:05"

type Config struct {
	// BaseURL is the public site, hit once per page request to obtain
	// fresh session cookies.
	BaseURL string
	// SearchURL is the bff itinerary search endpoint.
	SearchURL string
	// APIKey goes into the x-bff-key header.
	APIKey string
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

func (c *Connector) Name() string { return "sncf" }

// CheckAvailability pages through the itinerary search for the whole
// window and reduces the result to the zero-cost departure hours. Any
// upstream failure degrades to an empty result; it never errors out.
func (c *Connector) CheckAvailability(ctx context.Context, req availability.Request) availability.Availability {
	journeys := availability.Search(ctx, c.log, req.Window,
		func(ctx context.Context, cursor time.Time) ([]availability.Journey, error) {
			return c.fetchPage(ctx, req, cursor)
		})
	return availability.FromHours(availability.EligibleHours(journeys, req.Window.To, c.loc))
}

type proposal struct {
	Status struct {
		IsBookable bool `json:"isBookable"`
	} `json:"status"`
	TravelID       string `json:"travelId"`
	BestPriceLabel string `json:"bestPriceLabel"`
}

func (c *Connector) fetchPage(ctx context.Context, req availability.Request, cursor time.Time) ([]availability.Journey, error) {
	cookies, err := c.sessionCookies(ctx)
	if err != nil {
		return nil, fmt.Errorf("sncf session: %w", err)
	}

	payload := map[string]any{
		"schedule": map[string]any{
			"outward": map[string]any{
				"date": cursor.In(c.loc).Format(departureLayout) + ".000Z",
			},
		},
		"mainJourney": map[string]any{
			"origin":      map[string]any{"label": req.Origin.Name, "id": req.Origin.SncfID},
			"destination": map[string]any{"label": req.Destination.Name, "id": req.Destination.SncfID},
		},
		"passengers": []map[string]any{{
			"discountCards":         []map[string]any{{"code": "HAPPY_CARD", "number": req.CardNumber, "label": "MAX JEUNE"}},
			"typology":              "YOUNG",
			"withoutSeatAssignment": false,
			"dateOfBirth":           "1996-08-27",
		}},
		"itineraryId":         uuid.NewString(),
		"forceDisplayResults": true,
		"trainExpected":       true,
		"strictMode":          false,
		"directJourney":       false,
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
	hreq.Header.Set("x-bff-key", c.cfg.APIKey)
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
		LongDistance struct {
			Proposals struct {
				Proposals []proposal `json:"proposals"`
			} `json:"proposals"`
		} `json:"longDistance"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("sncf: parse search response: %w", err)
	}

	var page []availability.Journey
	for _, p := range parsed.LongDistance.Proposals.Proposals {
		if !p.Status.IsBookable {
			continue
		}
		dep, err := c.parseDeparture(p.TravelID)
		if err != nil {
			c.log.Warn("sncf: proposal with unparseable travelId skipped",
				"travel_id", p.TravelID, "error", err)
			continue
		}
		page = append(page, availability.Journey{
			DepartureAt: dep,
			Price:       parsePriceLabel(p.BestPriceLabel),
		})
	}
	return page, nil
}

// sessionCookies performs the cookie handshake against the public
// site. Sessions are not reusable across pages, so every page request
// starts with a fresh one. Only the name=value pair of each cookie is
// kept, attributes are dropped.
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

// parseDeparture reads the departure timestamp off the travelId, whose
// first underscore-separated field is the departure in Paris local
// time.
func (c *Connector) parseDeparture(travelID string) (time.Time, error) {
	stamp, _, _ := strings.Cut(travelID, "_")
	return time.ParseInLocation(departureLayout, stamp, c.loc)
}

// parsePriceLabel turns a display label like "0,00 €" into a price.
// The 2-character currency suffix is stripped and the decimal comma
// normalized. Anything unparseable prices the journey out of the
// zero-cost filter.
func parsePriceLabel(label string) float64 {
	r := []rune(strings.TrimSpace(label))
	if len(r) <= 2 {
		return math.Inf(1)
	}
	num := strings.TrimSpace(string(r[:len(r)-2]))
	num = strings.ReplaceAll(num, ",", ".")
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return math.Inf(1)
	}
	return v
}
