package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ontime-app/backend/internal/apierror"
	"github.com/ontime-app/backend/internal/calendar"
	"github.com/ontime-app/backend/internal/logger"
	"github.com/ontime-app/backend/internal/service"
)

// defaultSyncHorizonDays bounds how far ahead external events are imported
// when no horizon is configured.
const defaultSyncHorizonDays = 30

type SyncHandler struct {
	events      service.EventStoreService
	horizonDays int
	icsFeeds    []string
}

// NewSyncHandler creates a new sync handler. icsFeeds are standing feed
// URLs ingested on every sync, alongside whatever provider the request
// names.
func NewSyncHandler(events service.EventStoreService, horizonDays int, icsFeeds []string) *SyncHandler {
	if horizonDays <= 0 {
		horizonDays = defaultSyncHorizonDays
	}
	return &SyncHandler{events: events, horizonDays: horizonDays, icsFeeds: icsFeeds}
}

type syncCalendarRequest struct {
	Provider    string `json:"provider" binding:"required"`
	FeedURL     string `json:"feed_url"`
	AccessToken string `json:"access_token"`
}

// SyncCalendar handles POST /api/v1/sync/calendar. Pulls events from the
// named provider, reconciles them against the store, then flushes any
// locally pending writes back to the remote.
func (h *SyncHandler) SyncCalendar(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		requestID := apierror.GetRequestID(c)
		apierror.WriteProblem(c, apierror.NewUnauthorizedError(requestID))
		return
	}

	var req syncCalendarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		requestID := apierror.GetRequestID(c)
		apierror.WriteProblem(c, apierror.NewBadRequestError(requestID, err.Error(), "provider is required"))
		return
	}

	var provider calendar.Provider
	switch req.Provider {
	case "google":
		if req.AccessToken == "" {
			requestID := apierror.GetRequestID(c)
			apierror.WriteProblem(c, apierror.NewValidationError(requestID, []apierror.FieldError{{
				Field:   "access_token",
				Message: "is required for the google provider",
				Code:    "required",
			}}))
			return
		}
		provider = calendar.NewGoogleProvider(req.AccessToken)
	case "ics":
		if req.FeedURL == "" {
			requestID := apierror.GetRequestID(c)
			apierror.WriteProblem(c, apierror.NewValidationError(requestID, []apierror.FieldError{{
				Field:   "feed_url",
				Message: "is required for the ics provider",
				Code:    "required",
			}}))
			return
		}
		provider = calendar.NewICSProvider(req.FeedURL)
	default:
		requestID := apierror.GetRequestID(c)
		apierror.WriteProblem(c, apierror.NewValidationError(requestID, []apierror.FieldError{{
			Field:   "provider",
			Message: "must be one of: google, ics",
			Code:    "invalid_value",
		}}))
		return
	}

	log := logger.FromContext(c.Request.Context())
	now := time.Now().UTC()
	horizon := now.AddDate(0, 0, h.horizonDays)

	externals, err := provider.FetchEvents(c.Request.Context(), now, horizon)
	if err != nil {
		log.Warn("calendar fetch failed",
			logger.String("provider", req.Provider),
			logger.Err(err),
		)
		requestID := apierror.GetRequestID(c)
		apierror.WriteProblem(c, apierror.NewBadRequestError(requestID, err.Error(), "Calendar provider is unreachable"))
		return
	}

	result, err := h.events.SyncExternal(c.Request.Context(), userID.(string), externals)
	if err != nil {
		requestID := apierror.GetRequestID(c)
		apierror.WriteProblem(c, apierror.NewInternalError(requestID))
		return
	}

	// Standing feeds ride along on every sync. A broken feed is logged
	// and skipped; it must not fail the requested provider's import.
	for _, feed := range h.icsFeeds {
		extras, ferr := calendar.NewICSProvider(feed).FetchEvents(c.Request.Context(), now, horizon)
		if ferr != nil {
			log.Warn("configured ics feed fetch failed",
				logger.String("feed", feed),
				logger.Err(ferr),
			)
			continue
		}
		feedResult, serr := h.events.SyncExternal(c.Request.Context(), userID.(string), extras)
		if serr != nil {
			log.Warn("configured ics feed sync failed",
				logger.String("feed", feed),
				logger.Err(serr),
			)
			continue
		}
		result.Created += feedResult.Created
		result.Updated += feedResult.Updated
		result.Skipped += feedResult.Skipped
	}

	flushed, err := h.events.FlushPending(c.Request.Context(), userID.(string))
	if err != nil {
		// Imported events are already stored; pending writes retry on the
		// next sync.
		log.Warn("flush of pending writes failed", logger.Err(err))
	}

	c.JSON(http.StatusOK, gin.H{
		"created": result.Created,
		"updated": result.Updated,
		"skipped": result.Skipped,
		"flushed": flushed,
	})
}
