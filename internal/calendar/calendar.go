// Package calendar normalizes external calendar sources into the shape the
// event store ingests. Two providers exist: the Google Calendar REST API
// and plain ICS feeds. Providers only fetch and normalize; dedup and
// persistence happen in the event store.
package calendar

import (
	"context"
	"time"
)

// ExternalEvent is a normalized calendar entry. AllDay entries carry no
// concrete start time and are excluded from ingestion by the event store.
type ExternalEvent struct {
	ExternalID  string
	Title       string
	Description string
	Location    string
	StartTime   time.Time
	EndTime     time.Time
	Timezone    string
	AllDay      bool
}

// Provider fetches upcoming entries from one external calendar between
// from and to.
type Provider interface {
	FetchEvents(ctx context.Context, from, to time.Time) ([]ExternalEvent, error)
}
