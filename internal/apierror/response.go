package apierror

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// ContentTypeProblemJSON is the MIME type for RFC 9457 Problem Details.
const ContentTypeProblemJSON = "application/problem+json"

// WriteProblem writes a ProblemDetails response to the gin context.
// It sets the correct Content-Type header and, if RetryAfter is set,
// also sets the Retry-After header.
func WriteProblem(c *gin.Context, problem *ProblemDetails) {
	c.Header("Content-Type", ContentTypeProblemJSON)

	if problem.RetryAfter != nil {
		c.Header("Retry-After", strconv.Itoa(*problem.RetryAfter))
	}

	c.JSON(problem.Status, problem)
}

// GetRequestID extracts the request ID from the gin context.
// Returns empty string if not found.
func GetRequestID(c *gin.Context) string {
	if requestID, exists := c.Get("request_id"); exists {
		if id, ok := requestID.(string); ok {
			return id
		}
	}
	return c.GetHeader("X-Request-ID")
}

// NewValidationError creates a 400 Bad Request response for validation failures.
// Multiple field errors can be included to report all validation issues at once.
func NewValidationError(requestID string, errors []FieldError) *ProblemDetails {
	return &ProblemDetails{
		Type:        TypeValidation,
		Title:       TitleValidation,
		Status:      http.StatusBadRequest,
		Detail:      "One or more fields failed validation",
		RequestID:   requestID,
		UserMessage: "Please check your input and try again",
		Errors:      errors,
	}
}

// NewBadRequestError creates a 400 Bad Request response for malformed requests.
func NewBadRequestError(requestID, detail, userMessage string) *ProblemDetails {
	return &ProblemDetails{
		Type:        TypeBadRequest,
		Title:       TitleBadRequest,
		Status:      http.StatusBadRequest,
		Detail:      detail,
		RequestID:   requestID,
		UserMessage: userMessage,
	}
}

// NewNotFoundError creates a 404 Not Found response.
func NewNotFoundError(requestID, resource, id string) *ProblemDetails {
	return &ProblemDetails{
		Type:        TypeNotFound,
		Title:       TitleNotFound,
		Status:      http.StatusNotFound,
		Detail:      fmt.Sprintf("%s with ID '%s' was not found", resource, id),
		RequestID:   requestID,
		UserMessage: fmt.Sprintf("The requested %s could not be found", resource),
	}
}

// NewConflictError creates a 409 Conflict response.
func NewConflictError(requestID, detail string) *ProblemDetails {
	return &ProblemDetails{
		Type:        TypeConflict,
		Title:       TitleConflict,
		Status:      http.StatusConflict,
		Detail:      detail,
		RequestID:   requestID,
		UserMessage: "The request conflicts with the current state",
	}
}

// NewUnauthorizedError creates a 401 Unauthorized response.
func NewUnauthorizedError(requestID string) *ProblemDetails {
	return &ProblemDetails{
		Type:        TypeUnauthorized,
		Title:       TitleUnauthorized,
		Status:      http.StatusUnauthorized,
		Detail:      "Valid authentication credentials are required",
		RequestID:   requestID,
		UserMessage: "Please sign in and try again",
	}
}

// NewInternalError creates a 500 Internal Server Error response.
// The detail is intentionally generic; the real error goes to the logs.
func NewInternalError(requestID string) *ProblemDetails {
	return &ProblemDetails{
		Type:        TypeInternal,
		Title:       TitleInternal,
		Status:      http.StatusInternalServerError,
		Detail:      "An unexpected error occurred",
		RequestID:   requestID,
		UserMessage: "Something went wrong. Please try again later",
	}
}

// NewLockActiveError creates a 409 response for arming a second concurrent
// focus lock.
func NewLockActiveError(requestID, activeEventID string) *ProblemDetails {
	return &ProblemDetails{
		Type:        TypeLockActive,
		Title:       TitleLockActive,
		Status:      http.StatusConflict,
		Detail:      fmt.Sprintf("a focus lock is already armed for event '%s'", activeEventID),
		RequestID:   requestID,
		UserMessage: "Finish or cancel the current focus session first",
	}
}

// NewInvalidPINError creates a 403 response for an emergency PIN mismatch.
func NewInvalidPINError(requestID string, attemptsLeft int) *ProblemDetails {
	return &ProblemDetails{
		Type:        TypeInvalidPIN,
		Title:       TitleInvalidPIN,
		Status:      http.StatusForbidden,
		Detail:      fmt.Sprintf("PIN did not match; %d attempt(s) remaining", attemptsLeft),
		RequestID:   requestID,
		UserMessage: "That PIN is not correct",
	}
}

// NewOverrideLockedOutError creates a 423 response once the emergency
// override is refused until a natural unlock trigger fires.
func NewOverrideLockedOutError(requestID string) *ProblemDetails {
	return &ProblemDetails{
		Type:        TypeOverrideLockedOut,
		Title:       TitleOverrideLockedOut,
		Status:      http.StatusLocked,
		Detail:      "emergency override refused after 3 failed PIN attempts",
		RequestID:   requestID,
		UserMessage: "Too many wrong PINs. The lock will release at the event start or on arrival",
	}
}

// NewRateLimitError creates a 429 Too Many Requests response.
func NewRateLimitError(requestID string, retryAfterSeconds int) *ProblemDetails {
	return &ProblemDetails{
		Type:        TypeRateLimit,
		Title:       TitleRateLimit,
		Status:      http.StatusTooManyRequests,
		Detail:      "Request rate limit exceeded",
		RequestID:   requestID,
		UserMessage: "Too many requests. Please slow down",
		RetryAfter:  &retryAfterSeconds,
	}
}
