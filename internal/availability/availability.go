// Package availability holds the provider-independent search domain:
// route endpoints, time windows, journeys, the paginated search loop
// and the connector failover policy.
package availability

import (
	"context"
	"log/slog"
	"time"
)

// Endpoint identifies one side of a route. Each backend uses its own
// station identifiers, so both are carried together.
type Endpoint struct {
	Name        string
	SncfID      string
	TrainlineID string
}

// TimeWindow is the range the user wants to travel in.
// From must be before To.
type TimeWindow struct {
	From time.Time
	To   time.Time
}

// Journey is one candidate departure as reported by a backend page.
type Journey struct {
	DepartureAt time.Time
	Price       float64
}

// Availability is the outcome of one provider check. Hours holds the
// deduplicated departure times of day ("HH:MM", Paris time) of the
// zero-cost journeys found; Available is true iff Hours is non-empty.
type Availability struct {
	Available bool
	Hours     []string
}

// FromHours wraps a filtered hour list into an Availability result.
func FromHours(hours []string) Availability {
	return Availability{Available: len(hours) > 0, Hours: hours}
}

// Request carries everything a provider needs for one check.
type Request struct {
	Origin      Endpoint
	Destination Endpoint
	Window      TimeWindow
	CardNumber  string
}

// Provider is one booking backend. CheckAvailability must not mutate
// any alert state, and it never fails: transport and parse errors
// degrade to an empty Availability built from whatever pages were
// already read before the failure.
type Provider interface {
	Name() string
	CheckAvailability(ctx context.Context, req Request) Availability
}

// Failover tries providers in priority order and stops at the first
// one reporting availability. Calls are strictly sequential: each
// check already pages against a rate-limited backend, and fanning out
// would multiply the outbound burst.
type Failover struct {
	providers []Provider
	log       *slog.Logger
}

func NewFailover(log *slog.Logger, providers ...Provider) *Failover {
	return &Failover{providers: providers, log: log}
}

// Check returns the first available result, or an empty Availability
// when no provider finds a seat.
func (f *Failover) Check(ctx context.Context, req Request) Availability {
	for _, p := range f.providers {
		f.log.Info("using connector",
			"connector", p.Name(),
			"origin", req.Origin.Name,
			"destination", req.Destination.Name)
		if av := p.CheckAvailability(ctx, req); av.Available {
			return av
		}
	}
	return Availability{}
}

// Paris returns the Europe/Paris location. Both backends schedule and
// price journeys in French local time; main embeds time/tzdata so the
// lookup cannot fail at runtime.
func Paris() *time.Location {
	loc, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		panic(err)
	}
	return loc
}
