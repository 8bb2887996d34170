package apierror

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	// Set gin to test mode to reduce noise in test output
	gin.SetMode(gin.TestMode)
}

func TestProblemDetailsJSON(t *testing.T) {
	retryAfter := 60
	problem := &ProblemDetails{
		Type:        TypeValidation,
		Title:       TitleValidation,
		Status:      http.StatusBadRequest,
		Detail:      "Field validation failed",
		Instance:    "/api/v1/events/123",
		RequestID:   "req-abc123",
		UserMessage: "Please fix the errors",
		RetryAfter:  &retryAfter,
		Errors: []FieldError{
			{Field: "title", Message: "is required", Code: "required"},
			{Field: "start_time", Message: "must be a valid date", Code: "invalid_date"},
		},
	}

	data, err := json.Marshal(problem)
	if err != nil {
		t.Fatalf("Failed to marshal ProblemDetails: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("Failed to unmarshal JSON: %v", err)
	}

	if result["type"] != TypeValidation {
		t.Errorf("Expected type=%q, got %q", TypeValidation, result["type"])
	}
	if result["title"] != TitleValidation {
		t.Errorf("Expected title=%q, got %q", TitleValidation, result["title"])
	}
	if result["status"] != float64(http.StatusBadRequest) {
		t.Errorf("Expected status=%d, got %v", http.StatusBadRequest, result["status"])
	}
	if result["request_id"] != "req-abc123" {
		t.Errorf("Expected request_id=%q, got %q", "req-abc123", result["request_id"])
	}
	if result["retry_after"] != float64(60) {
		t.Errorf("Expected retry_after=%d, got %v", 60, result["retry_after"])
	}

	errs, ok := result["errors"].([]interface{})
	if !ok || len(errs) != 2 {
		t.Errorf("Expected 2 errors, got %v", result["errors"])
	}
}

func TestProblemDetailsError(t *testing.T) {
	withDetail := &ProblemDetails{Title: "Conflict", Detail: "lock already armed"}
	if withDetail.Error() != "lock already armed" {
		t.Errorf("Error() = %q, want detail", withDetail.Error())
	}

	withoutDetail := &ProblemDetails{Title: "Conflict"}
	if withoutDetail.Error() != "Conflict" {
		t.Errorf("Error() = %q, want title", withoutDetail.Error())
	}
}

func TestWriteProblem(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	WriteProblem(c, NewLockActiveError("req-1", "event-42"))

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
	}
	if ct := w.Header().Get("Content-Type"); ct != ContentTypeProblemJSON {
		t.Errorf("Content-Type = %q, want %q", ct, ContentTypeProblemJSON)
	}

	var problem ProblemDetails
	if err := json.Unmarshal(w.Body.Bytes(), &problem); err != nil {
		t.Fatalf("invalid problem JSON: %v", err)
	}
	if problem.Type != TypeLockActive {
		t.Errorf("type = %q, want %q", problem.Type, TypeLockActive)
	}
}

func TestWriteProblem_RetryAfterHeader(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	WriteProblem(c, NewRateLimitError("req-2", 30))

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if retryAfter := w.Header().Get("Retry-After"); retryAfter != "30" {
		t.Errorf("Retry-After = %q, want %q", retryAfter, "30")
	}
}

func TestNewOverrideLockedOutError(t *testing.T) {
	problem := NewOverrideLockedOutError("req-3")
	if problem.Status != http.StatusLocked {
		t.Errorf("status = %d, want %d", problem.Status, http.StatusLocked)
	}
	if problem.Type != TypeOverrideLockedOut {
		t.Errorf("type = %q, want %q", problem.Type, TypeOverrideLockedOut)
	}
}
