package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const googleCalendarBaseURL = "https://www.googleapis.com/calendar/v3/calendars/primary/events"

// GoogleProvider fetches events from the Google Calendar REST API using a
// caller-supplied OAuth access token. Token acquisition/refresh belongs to
// the authentication collaborator, not this package.
type GoogleProvider struct {
	accessToken string
	baseURL     string
	httpClient  *http.Client
}

// NewGoogleProvider creates a provider for the primary calendar.
func NewGoogleProvider(accessToken string) *GoogleProvider {
	return &GoogleProvider{
		accessToken: accessToken,
		baseURL:     googleCalendarBaseURL,
		httpClient:  &http.Client{},
	}
}

// NewGoogleProviderWithBaseURL points the provider at a custom endpoint.
// Used by tests.
func NewGoogleProviderWithBaseURL(accessToken, baseURL string) *GoogleProvider {
	p := NewGoogleProvider(accessToken)
	p.baseURL = baseURL
	return p
}

// googleEventList mirrors the slice of the Calendar API response we consume.
type googleEventList struct {
	Items []struct {
		ID          string `json:"id"`
		Summary     string `json:"summary"`
		Description string `json:"description"`
		Location    string `json:"location"`
		Start       struct {
			DateTime string `json:"dateTime"`
			Date     string `json:"date"`
			TimeZone string `json:"timeZone"`
		} `json:"start"`
		End struct {
			DateTime string `json:"dateTime"`
			Date     string `json:"date"`
		} `json:"end"`
	} `json:"items"`
}

// FetchEvents lists single (non-recurring-expanded) events between from and
// to, ordered by start time.
func (p *GoogleProvider) FetchEvents(ctx context.Context, from, to time.Time) ([]ExternalEvent, error) {
	params := url.Values{}
	params.Set("timeMin", from.UTC().Format(time.RFC3339))
	params.Set("timeMax", to.UTC().Format(time.RFC3339))
	params.Set("singleEvents", "true")
	params.Set("orderBy", "startTime")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.accessToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calendar request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("calendar http status %d", resp.StatusCode)
	}

	var list googleEventList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("calendar decode: %w", err)
	}

	events := make([]ExternalEvent, 0, len(list.Items))
	for _, item := range list.Items {
		ev := ExternalEvent{
			ExternalID:  item.ID,
			Title:       item.Summary,
			Description: item.Description,
			Location:    item.Location,
			Timezone:    item.Start.TimeZone,
		}
		if ev.Title == "" {
			ev.Title = "Untitled Event"
		}

		// Date-only start means an all-day entry; keep it marked so the
		// store can exclude it.
		if item.Start.DateTime == "" {
			ev.AllDay = true
			events = append(events, ev)
			continue
		}

		start, err := time.Parse(time.RFC3339, item.Start.DateTime)
		if err != nil {
			continue
		}
		ev.StartTime = start.UTC()

		if item.End.DateTime != "" {
			if end, err := time.Parse(time.RFC3339, item.End.DateTime); err == nil {
				ev.EndTime = end.UTC()
			}
		}
		if ev.EndTime.IsZero() {
			ev.EndTime = ev.StartTime.Add(time.Hour)
		}

		events = append(events, ev)
	}

	return events, nil
}
