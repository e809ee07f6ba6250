package availability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// UpstreamError carries the diagnostic fields a backend exposes on a
// failed page request.
type UpstreamError struct {
	StatusCode int
	Status     string
	Label      string
}

func (e *UpstreamError) Error() string {
	if e.Label != "" {
		return fmt.Sprintf("upstream %s: %s", e.Status, e.Label)
	}
	return fmt.Sprintf("upstream %s", e.Status)
}

// PageFunc fetches one result page of journeys departing at or after
// cursor. Implementations own the session handshake, payload shaping
// and extraction; returned journeys must be in departure order.
type PageFunc func(ctx context.Context, cursor time.Time) ([]Journey, error)

// Search enumerates the candidate journeys of a window from a backend
// that only answers with bounded pages. The departure of the last
// journey on each page becomes the lower bound of the next request,
// so coverage advances monotonically without a native range query.
// The boundary journey gets re-fetched; filtering is idempotent.
//
// The loop stops when the window is fully covered (To at or before the
// page's last departure) or when the backend makes no forward progress
// (an empty page, or a last departure equal to the cursor). A page
// error also stops the loop: whatever was accumulated so far is
// returned, so upstream instability degrades to "not yet available"
// instead of aborting the caller.
func Search(ctx context.Context, log *slog.Logger, window TimeWindow, fetch PageFunc) []Journey {
	var found []Journey
	cursor := window.From
	for {
		page, err := fetch(ctx, cursor)
		if err != nil {
			var ue *UpstreamError
			if errors.As(err, &ue) {
				log.Error("journey page request failed",
					"status_code", ue.StatusCode,
					"status", ue.Status,
					"label", ue.Label)
			} else {
				log.Error("journey page request failed", "error", err)
			}
			return found
		}
		if len(page) == 0 {
			return found
		}
		found = append(found, page...)

		last := page[len(page)-1].DepartureAt
		if !window.To.After(last) || last.Equal(cursor) {
			return found
		}
		cursor = last
	}
}

// EligibleHours keeps the journeys that cost exactly zero and depart
// at or before deadline, and maps them to their departure time of day
// in loc. Duplicates collapse, first occurrence order preserved.
func EligibleHours(journeys []Journey, deadline time.Time, loc *time.Location) []string {
	seen := make(map[string]struct{}, len(journeys))
	var hours []string
	for _, j := range journeys {
		if j.Price != 0 || j.DepartureAt.After(deadline) {
			continue
		}
		h := j.DepartureAt.In(loc).Format("15:04")
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		hours = append(hours, h)
	}
	return hours
}
