// Package distancematrix is a client for the Google Distance Matrix API,
// the travel-estimation collaborator. Callers bound every request with a
// context deadline; this package never retries or falls back on its own;
// that policy belongs to the travel time resolver.
package distancematrix

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const defaultBaseURL = "https://maps.googleapis.com/maps/api/distancematrix/json"

// Estimate is a successful travel estimate.
type Estimate struct {
	Duration time.Duration
	Distance float64 // kilometers
}

// StatusError reports a non-OK status from the API (for either the whole
// response or the requested element).
type StatusError struct {
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("distance matrix status %q", e.Status)
}

// Client calls the Distance Matrix API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new Distance Matrix client.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{},
	}
}

// NewClientWithBaseURL creates a client against a custom endpoint. Used by
// tests to point at a local server.
func NewClientWithBaseURL(apiKey, baseURL string) *Client {
	c := NewClient(apiKey)
	c.baseURL = baseURL
	return c
}

// response mirrors the relevant slice of the Distance Matrix payload.
type response struct {
	Status string `json:"status"`
	Rows   []struct {
		Elements []struct {
			Status   string `json:"status"`
			Duration struct {
				Value int64 `json:"value"` // seconds
			} `json:"duration"`
			DurationInTraffic *struct {
				Value int64 `json:"value"`
			} `json:"duration_in_traffic"`
			Distance struct {
				Value int64 `json:"value"` // meters
			} `json:"distance"`
		} `json:"elements"`
	} `json:"rows"`
}

// Estimate fetches the driving travel estimate from origin to destination,
// departing at departureTime. Traffic-adjusted duration is preferred when
// the API provides one.
func (c *Client) Estimate(ctx context.Context, origin, destination string, departureTime time.Time) (*Estimate, error) {
	params := url.Values{}
	params.Set("origins", origin)
	params.Set("destinations", destination)
	params.Set("mode", "driving")
	params.Set("traffic_model", "best_guess")
	params.Set("departure_time", strconv.FormatInt(departureTime.Unix(), 10))
	params.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("distance matrix request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("distance matrix http status %d", resp.StatusCode)
	}

	var payload response
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("distance matrix decode: %w", err)
	}

	if payload.Status != "OK" {
		return nil, &StatusError{Status: payload.Status}
	}
	if len(payload.Rows) == 0 || len(payload.Rows[0].Elements) == 0 {
		return nil, &StatusError{Status: "ZERO_RESULTS"}
	}

	element := payload.Rows[0].Elements[0]
	if element.Status != "OK" {
		return nil, &StatusError{Status: element.Status}
	}

	durationSeconds := element.Duration.Value
	if element.DurationInTraffic != nil {
		durationSeconds = element.DurationInTraffic.Value
	}

	return &Estimate{
		Duration: time.Duration(durationSeconds) * time.Second,
		Distance: float64(element.Distance.Value) / 1000,
	}, nil
}
