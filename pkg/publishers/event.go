package publishers

import (
	"time"

	"github.com/google/uuid"
)

// Outcome classifies how an inbound relay request ended.
type Outcome string

const (
	OutcomeRelayed       Outcome = "relayed"
	OutcomeUpstreamError Outcome = "upstream_error"
	OutcomeInvalidURL    Outcome = "invalid_url"
)

// Event represents the payload published downstream for one relay attempt.
type Event struct {
	ID         string    `json:"id"`
	Route      string    `json:"route"`
	URL        string    `json:"url"`
	Outcome    Outcome   `json:"outcome"`
	StatusCode int       `json:"status_code,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewEvent constructs an Event for the given route + target URL.
func NewEvent(route, url string, outcome Outcome) Event {
	return Event{
		ID:         uuid.NewString(),
		Route:      route,
		URL:        url,
		Outcome:    outcome,
		OccurredAt: time.Now().UTC(),
	}
}
