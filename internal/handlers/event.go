package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ontime-app/backend/internal/apierror"
	"github.com/ontime-app/backend/internal/models"
	"github.com/ontime-app/backend/internal/service"
	"github.com/ontime-app/backend/internal/timemath"
)

type EventHandler struct {
	events  service.EventStoreService
	rewards service.RewardService
	notify  service.NotificationScheduler
}

// NewEventHandler creates a new event handler
func NewEventHandler(events service.EventStoreService, rewards service.RewardService, notify service.NotificationScheduler) *EventHandler {
	return &EventHandler{
		events:  events,
		rewards: rewards,
		notify:  notify,
	}
}

// rawCreateEventRequest accepts timestamps as strings so parse failures
// surface as field errors rather than a bare 400.
type rawCreateEventRequest struct {
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	Category          string   `json:"category"`
	Location          *string  `json:"location"`
	Latitude          *float64 `json:"latitude"`
	Longitude         *float64 `json:"longitude"`
	StartTime         string   `json:"start_time"`
	EndTime           *string  `json:"end_time"`
	Timezone          string   `json:"timezone"`
	TravelTimeMinutes *int     `json:"travel_time_minutes"`
}

// CreateEvent handles POST /api/v1/events
func (h *EventHandler) CreateEvent(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		requestID := apierror.GetRequestID(c)
		apierror.WriteProblem(c, apierror.NewUnauthorizedError(requestID))
		return
	}

	var raw rawCreateEventRequest
	if err := c.ShouldBindJSON(&raw); err != nil {
		requestID := apierror.GetRequestID(c)
		apierror.WriteProblem(c, apierror.NewBadRequestError(requestID, err.Error(), "Invalid JSON format"))
		return
	}

	var fieldErrors []apierror.FieldError
	var req models.CreateEventRequest

	if raw.Title == "" {
		fieldErrors = append(fieldErrors, apierror.FieldError{
			Field:   "title",
			Message: "is required",
			Code:    "required",
		})
	} else {
		req.Title = raw.Title
	}

	if raw.StartTime == "" {
		fieldErrors = append(fieldErrors, apierror.FieldError{
			Field:   "start_time",
			Message: "is required",
			Code:    "required",
		})
	} else {
		ts, err := time.Parse(time.RFC3339, raw.StartTime)
		if err != nil {
			fieldErrors = append(fieldErrors, apierror.FieldError{
				Field:   "start_time",
				Message: "must be a valid RFC3339 timestamp",
				Code:    "invalid_format",
			})
		} else {
			req.StartTime = ts
		}
	}

	if raw.EndTime != nil && *raw.EndTime != "" {
		et, err := time.Parse(time.RFC3339, *raw.EndTime)
		if err != nil {
			fieldErrors = append(fieldErrors, apierror.FieldError{
				Field:   "end_time",
				Message: "must be a valid RFC3339 timestamp",
				Code:    "invalid_format",
			})
		} else {
			req.EndTime = &et
		}
	}

	if (raw.Latitude == nil) != (raw.Longitude == nil) {
		fieldErrors = append(fieldErrors, apierror.FieldError{
			Field:   "latitude",
			Message: "latitude and longitude must be provided together",
			Code:    "invalid_value",
		})
	} else if raw.Latitude != nil {
		if *raw.Latitude < -90 || *raw.Latitude > 90 {
			fieldErrors = append(fieldErrors, apierror.FieldError{
				Field:   "latitude",
				Message: "must be between -90 and 90",
				Code:    "invalid_value",
			})
		}
		if *raw.Longitude < -180 || *raw.Longitude > 180 {
			fieldErrors = append(fieldErrors, apierror.FieldError{
				Field:   "longitude",
				Message: "must be between -180 and 180",
				Code:    "invalid_value",
			})
		}
		req.Latitude = raw.Latitude
		req.Longitude = raw.Longitude
	}

	if raw.TravelTimeMinutes != nil && *raw.TravelTimeMinutes < 0 {
		fieldErrors = append(fieldErrors, apierror.FieldError{
			Field:   "travel_time_minutes",
			Message: "must not be negative",
			Code:    "invalid_value",
		})
	} else {
		req.TravelTimeMinutes = raw.TravelTimeMinutes
	}

	req.Description = raw.Description
	req.Category = raw.Category
	req.Location = raw.Location
	req.Timezone = raw.Timezone

	if len(fieldErrors) > 0 {
		requestID := apierror.GetRequestID(c)
		apierror.WriteProblem(c, apierror.NewValidationError(requestID, fieldErrors))
		return
	}

	event, err := h.events.CreateEvent(c.Request.Context(), userID.(string), &req)
	if err != nil {
		requestID := apierror.GetRequestID(c)
		apierror.WriteProblem(c, apierror.NewInternalError(requestID))
		return
	}

	c.JSON(http.StatusCreated, event)
}

// GetNextEvent handles GET /api/v1/events/next
func (h *EventHandler) GetNextEvent(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	event, err := h.events.GetNextEvent(c.Request.Context(), userID.(string), time.Now().UTC())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if event == nil {
		requestID := apierror.GetRequestID(c)
		apierror.WriteProblem(c, apierror.NewNotFoundError(requestID, "event", "next"))
		return
	}

	c.JSON(http.StatusOK, event)
}

// GetTodayEvents handles GET /api/v1/events/today
func (h *EventHandler) GetTodayEvents(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	events, err := h.events.GetTodayEvents(c.Request.Context(), userID.(string), time.Now().UTC())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, events)
}

// UpdateEvent handles PATCH /api/v1/events/:id
func (h *EventHandler) UpdateEvent(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	eventID := c.Param("id")

	var req models.UpdateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		requestID := apierror.GetRequestID(c)
		apierror.WriteProblem(c, apierror.NewBadRequestError(requestID, err.Error(), "Invalid JSON format"))
		return
	}

	event, err := h.events.UpdateEvent(c.Request.Context(), userID.(string), eventID, &req)
	if err != nil {
		if errors.Is(err, service.ErrEventNotFound) {
			requestID := apierror.GetRequestID(c)
			apierror.WriteProblem(c, apierror.NewNotFoundError(requestID, "event", eventID))
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, event)
}

// DeleteEvent handles DELETE /api/v1/events/:id
func (h *EventHandler) DeleteEvent(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	eventID := c.Param("id")

	if err := h.events.DeleteEvent(c.Request.Context(), userID.(string), eventID); err != nil {
		if errors.Is(err, service.ErrEventNotFound) {
			requestID := apierror.GetRequestID(c)
			apierror.WriteProblem(c, apierror.NewNotFoundError(requestID, "event", eventID))
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusNoContent, nil)
}

// CompleteEvent handles POST /api/v1/events/:id/complete. Manual completion
// for events that were never locked; arrival-triggered completion flows
// through the lock session instead.
func (h *EventHandler) CompleteEvent(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	eventID := c.Param("id")

	// An empty body is fine; arrival defaults to now.
	var req models.RecordCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		req.ArrivedAt = nil
	}

	arrivedAt := time.Now().UTC()
	if req.ArrivedAt != nil && *req.ArrivedAt != "" {
		parsed, err := time.Parse(time.RFC3339, *req.ArrivedAt)
		if err != nil {
			requestID := apierror.GetRequestID(c)
			apierror.WriteProblem(c, apierror.NewValidationError(requestID, []apierror.FieldError{{
				Field:   "arrived_at",
				Message: "must be a valid RFC3339 timestamp",
				Code:    "invalid_format",
			}}))
			return
		}
		arrivedAt = parsed
	}

	event, err := h.events.GetEvent(c.Request.Context(), userID.(string), eventID)
	if err != nil {
		requestID := apierror.GetRequestID(c)
		if errors.Is(err, service.ErrEventNotFound) {
			apierror.WriteProblem(c, apierror.NewNotFoundError(requestID, "event", eventID))
			return
		}
		apierror.WriteProblem(c, apierror.NewInternalError(requestID))
		return
	}

	outcome := models.CompletionOutcome{
		Event:         event,
		ArrivedOnTime: timemath.OnTime(arrivedAt, event.StartTime),
		ArrivedEarly:  timemath.Early(arrivedAt, event.StartTime),
		Reason:        models.UnlockArrived,
	}

	result, err := h.rewards.CompleteEvent(c.Request.Context(), userID.(string), eventID, outcome)
	if err != nil {
		if errors.Is(err, service.ErrEventAlreadyCompleted) {
			requestID := apierror.GetRequestID(c)
			apierror.WriteProblem(c, apierror.NewConflictError(requestID, "Event is already completed"))
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.notify.CancelAll(eventID)

	c.JSON(http.StatusOK, result)
}

// GetReminders handles GET /api/v1/events/:id/reminders
func (h *EventHandler) GetReminders(c *gin.Context) {
	if _, exists := c.Get("user_id"); !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	eventID := c.Param("id")
	intents := h.notify.Pending(eventID)
	if intents == nil {
		intents = []models.ReminderIntent{}
	}

	c.JSON(http.StatusOK, intents)
}
