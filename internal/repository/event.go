package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ontime-app/backend/internal/models"
	"github.com/ontime-app/backend/pkg/supabase"
)

type eventRepository struct {
	client *supabase.Client
}

// NewEventRepository creates an event repository backed by the remote
// events table.
func NewEventRepository(client *supabase.Client) EventRepository {
	return &eventRepository{client: client}
}

func (r *eventRepository) Create(ctx context.Context, event *models.Event) (*models.Event, error) {
	data := map[string]interface{}{
		"user_id":    event.UserID,
		"source":     event.Source,
		"title":      event.Title,
		"start_time": event.StartTime.UTC().Format(time.RFC3339),
		"end_time":   event.EndTime.UTC().Format(time.RFC3339),
		"status":     event.Status,
		"sync_state": event.SyncState,
	}

	// Client-provided ids keep local and remote copies joined.
	if event.ID != "" {
		data["id"] = event.ID
	}
	if event.Description != "" {
		data["description"] = event.Description
	}
	if event.Category != "" {
		data["category"] = event.Category
	}
	if event.Timezone != "" {
		data["timezone"] = event.Timezone
	}
	if event.ExternalID != nil {
		data["external_id"] = *event.ExternalID
	}
	if event.Location != nil {
		data["location"] = *event.Location
	}
	if event.Latitude != nil {
		data["latitude"] = *event.Latitude
	}
	if event.Longitude != nil {
		data["longitude"] = *event.Longitude
	}
	if event.TravelTimeMinutes != nil {
		data["travel_time_minutes"] = *event.TravelTimeMinutes
		data["travel_time_is_fallback"] = event.TravelTimeIsFallback
	}

	body, err := r.client.Insert(ctx, "events", data)
	if err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}

	return firstEvent(body)
}

func (r *eventRepository) GetByID(ctx context.Context, id string) (*models.Event, error) {
	query := map[string]interface{}{
		"id": fmt.Sprintf("eq.%s", id),
	}

	body, err := r.client.Query(ctx, "events", query)
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}

	var events []models.Event
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(events) == 0 {
		return nil, ErrNotFound
	}

	return &events[0], nil
}

func (r *eventRepository) GetByUserIDAndDateRange(ctx context.Context, userID string, from, to time.Time) ([]models.Event, error) {
	query := map[string]interface{}{
		"user_id": fmt.Sprintf("eq.%s", userID),
		"and": fmt.Sprintf("(start_time.gte.%s,start_time.lt.%s)",
			from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339)),
		"order": "start_time.asc",
	}

	body, err := r.client.Query(ctx, "events", query)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}

	var events []models.Event
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return events, nil
}

func (r *eventRepository) GetByExternalID(ctx context.Context, userID, externalID string) (*models.Event, error) {
	query := map[string]interface{}{
		"user_id":     fmt.Sprintf("eq.%s", userID),
		"external_id": fmt.Sprintf("eq.%s", externalID),
	}

	body, err := r.client.Query(ctx, "events", query)
	if err != nil {
		return nil, fmt.Errorf("failed to get event by external id: %w", err)
	}

	var events []models.Event
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(events) == 0 {
		return nil, ErrNotFound
	}

	return &events[0], nil
}

func (r *eventRepository) Update(ctx context.Context, id string, fields map[string]interface{}) (*models.Event, error) {
	body, err := r.client.Update(ctx, "events", id, fields)
	if err != nil {
		return nil, fmt.Errorf("failed to update event: %w", err)
	}

	return firstEvent(body)
}

func (r *eventRepository) Delete(ctx context.Context, id string) error {
	if err := r.client.Delete(ctx, "events", id); err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	return nil
}

func firstEvent(body []byte) (*models.Event, error) {
	var events []models.Event
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(events) == 0 {
		return nil, ErrNotFound
	}
	return &events[0], nil
}
