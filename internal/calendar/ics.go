package calendar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
)

// ICSProvider fetches and parses a plain ICS feed. Feeds are read-only and
// carry no per-user auth; shared calendars (team rosters, school schedules)
// typically publish this way.
type ICSProvider struct {
	feedURL    string
	httpClient *http.Client
}

// NewICSProvider creates a provider for one ICS feed URL.
func NewICSProvider(feedURL string) *ICSProvider {
	return &ICSProvider{
		feedURL:    feedURL,
		httpClient: &http.Client{},
	}
}

// FetchEvents downloads the feed and returns entries starting within
// [from, to). Entries with unparsable times are skipped.
func (p *ICSProvider) FetchEvents(ctx context.Context, from, to time.Time) ([]ExternalEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.feedURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ics fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ics http status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ics read: %w", err)
	}

	return ParseICS(body, from, to)
}

// ParseICS parses an ICS payload into external events starting within
// [from, to). Exposed separately so tests can feed payloads directly.
func ParseICS(body []byte, from, to time.Time) ([]ExternalEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("ics parse: %w", err)
	}

	var events []ExternalEvent
	for _, ve := range cal.Events() {
		ev, ok := parseVEvent(ve)
		if !ok {
			continue
		}
		if ev.AllDay {
			events = append(events, ev)
			continue
		}
		if ev.StartTime.Before(from) || !ev.StartTime.Before(to) {
			continue
		}
		events = append(events, ev)
	}

	return events, nil
}

func parseVEvent(ve *ical.VEvent) (ExternalEvent, bool) {
	var ev ExternalEvent

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return ev, false
	}
	ev.ExternalID = uid.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		ev.Title = p.Value
	}
	if ev.Title == "" {
		ev.Title = "Untitled Event"
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		ev.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		ev.Location = p.Value
	}

	// All-day detection: DTSTART carries VALUE=DATE or a date-only value.
	if dtStart := ve.GetProperty(ical.ComponentPropertyDtStart); dtStart != nil {
		if params := dtStart.ICalParameters; params != nil {
			if vs, ok := params["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
				ev.AllDay = true
			}
			if tzs, ok := params["TZID"]; ok && len(tzs) > 0 {
				ev.Timezone = tzs[0]
			}
		}
		if !strings.Contains(dtStart.Value, "T") {
			ev.AllDay = true
		}
	}
	if ev.AllDay {
		return ev, true
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return ev, false
	}
	ev.StartTime = start.UTC()

	if end, err := ve.GetEndAt(); err == nil {
		ev.EndTime = end.UTC()
	}
	if ev.EndTime.IsZero() {
		ev.EndTime = ev.StartTime.Add(time.Hour)
	}

	return ev, true
}
