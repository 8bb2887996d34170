package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ontime-app/backend/internal/apierror"
	"github.com/ontime-app/backend/internal/models"
	"github.com/ontime-app/backend/internal/service"
)

type LockHandler struct {
	locks service.LockService
}

// NewLockHandler creates a new lock handler
func NewLockHandler(locks service.LockService) *LockHandler {
	return &LockHandler{locks: locks}
}

// ArmLock handles POST /api/v1/lock/arm
func (h *LockHandler) ArmLock(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		requestID := apierror.GetRequestID(c)
		apierror.WriteProblem(c, apierror.NewUnauthorizedError(requestID))
		return
	}

	var req models.ArmLockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		requestID := apierror.GetRequestID(c)
		apierror.WriteProblem(c, apierror.NewBadRequestError(requestID, err.Error(), "event_id is required"))
		return
	}

	session, err := h.locks.Arm(c.Request.Context(), userID.(string), req.EventID, time.Now().UTC())
	if err != nil {
		requestID := apierror.GetRequestID(c)
		switch {
		case errors.Is(err, service.ErrLockAlreadyArmed):
			active, _ := h.locks.ActiveSession(c.Request.Context(), userID.(string))
			activeEventID := ""
			if active != nil {
				activeEventID = active.EventID
			}
			apierror.WriteProblem(c, apierror.NewLockActiveError(requestID, activeEventID))
		case errors.Is(err, service.ErrEventNotFound):
			apierror.WriteProblem(c, apierror.NewNotFoundError(requestID, "event", req.EventID))
		case errors.Is(err, service.ErrEventAlreadyCompleted):
			apierror.WriteProblem(c, apierror.NewConflictError(requestID, "Event is already completed"))
		default:
			apierror.WriteProblem(c, apierror.NewInternalError(requestID))
		}
		return
	}

	c.JSON(http.StatusCreated, session)
}

type unlockRequest struct {
	EventID string `json:"event_id" binding:"required"`
}

// Unlock handles POST /api/v1/lock/unlock. Cancelling is the only
// user-initiated unlock; arrival and the time trigger unlock on their own.
func (h *LockHandler) Unlock(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		requestID := apierror.GetRequestID(c)
		apierror.WriteProblem(c, apierror.NewUnauthorizedError(requestID))
		return
	}

	var req unlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		requestID := apierror.GetRequestID(c)
		apierror.WriteProblem(c, apierror.NewBadRequestError(requestID, err.Error(), "event_id is required"))
		return
	}

	err := h.locks.Cancel(c.Request.Context(), userID.(string), req.EventID, time.Now().UTC())
	if err != nil {
		requestID := apierror.GetRequestID(c)
		if errors.Is(err, service.ErrLockNotArmed) {
			apierror.WriteProblem(c, apierror.NewNotFoundError(requestID, "lock session", req.EventID))
			return
		}
		apierror.WriteProblem(c, apierror.NewInternalError(requestID))
		return
	}

	c.JSON(http.StatusNoContent, nil)
}

// EmergencyUnlock handles POST /api/v1/lock/emergency
func (h *LockHandler) EmergencyUnlock(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		requestID := apierror.GetRequestID(c)
		apierror.WriteProblem(c, apierror.NewUnauthorizedError(requestID))
		return
	}

	var req models.EmergencyUnlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		requestID := apierror.GetRequestID(c)
		apierror.WriteProblem(c, apierror.NewBadRequestError(requestID, err.Error(), "pin is required"))
		return
	}

	session, err := h.locks.EmergencyUnlock(c.Request.Context(), userID.(string), req.PIN, time.Now().UTC())
	if err != nil {
		requestID := apierror.GetRequestID(c)
		switch {
		case errors.Is(err, service.ErrOverrideLockedOut):
			apierror.WriteProblem(c, apierror.NewOverrideLockedOutError(requestID))
		case errors.Is(err, service.ErrInvalidPIN):
			active, _ := h.locks.ActiveSession(c.Request.Context(), userID.(string))
			attemptsLeft := 0
			if active != nil {
				attemptsLeft = maxPINAttempts - active.FailedPINAttempts
				if attemptsLeft < 0 {
					attemptsLeft = 0
				}
			}
			apierror.WriteProblem(c, apierror.NewInvalidPINError(requestID, attemptsLeft))
		case errors.Is(err, service.ErrLockNotArmed):
			apierror.WriteProblem(c, apierror.NewNotFoundError(requestID, "lock session", "armed"))
		default:
			apierror.WriteProblem(c, apierror.NewInternalError(requestID))
		}
		return
	}

	c.JSON(http.StatusOK, session)
}

// maxPINAttempts mirrors the lockout threshold in the lock state machine.
const maxPINAttempts = 3

type reportLocationRequest struct {
	Latitude  float64 `json:"latitude" binding:"required"`
	Longitude float64 `json:"longitude" binding:"required"`
	Accuracy  float64 `json:"accuracy"`
}

// ReportLocation handles POST /api/v1/lock/location
func (h *LockHandler) ReportLocation(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		requestID := apierror.GetRequestID(c)
		apierror.WriteProblem(c, apierror.NewUnauthorizedError(requestID))
		return
	}

	var req reportLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		requestID := apierror.GetRequestID(c)
		apierror.WriteProblem(c, apierror.NewBadRequestError(requestID, err.Error(), "latitude and longitude are required"))
		return
	}

	sample := models.LocationSample{
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Accuracy:  req.Accuracy,
		Timestamp: time.Now().UTC(),
	}

	session, err := h.locks.ReportLocation(c.Request.Context(), userID.(string), sample)
	if err != nil {
		requestID := apierror.GetRequestID(c)
		if errors.Is(err, service.ErrLockNotArmed) {
			apierror.WriteProblem(c, apierror.NewNotFoundError(requestID, "lock session", "armed"))
			return
		}
		apierror.WriteProblem(c, apierror.NewInternalError(requestID))
		return
	}

	c.JSON(http.StatusOK, session)
}

// GetActiveSession handles GET /api/v1/lock
func (h *LockHandler) GetActiveSession(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		requestID := apierror.GetRequestID(c)
		apierror.WriteProblem(c, apierror.NewUnauthorizedError(requestID))
		return
	}

	session, err := h.locks.ActiveSession(c.Request.Context(), userID.(string))
	if err != nil {
		requestID := apierror.GetRequestID(c)
		apierror.WriteProblem(c, apierror.NewInternalError(requestID))
		return
	}
	if session == nil {
		requestID := apierror.GetRequestID(c)
		apierror.WriteProblem(c, apierror.NewNotFoundError(requestID, "lock session", "armed"))
		return
	}

	c.JSON(http.StatusOK, session)
}
