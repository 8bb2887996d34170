package apierror

// Error type URIs following the urn:ontime:error:* pattern.
// These are used as the "type" field in RFC 9457 Problem Details.
const (
	// TypeValidation indicates request validation failed (400)
	TypeValidation = "urn:ontime:error:validation"

	// TypeNotFound indicates the requested resource was not found (404)
	TypeNotFound = "urn:ontime:error:not_found"

	// TypeConflict indicates a resource conflict (409)
	TypeConflict = "urn:ontime:error:conflict"

	// TypeUnauthorized indicates missing or invalid authentication (401)
	TypeUnauthorized = "urn:ontime:error:unauthorized"

	// TypeInternal indicates an unexpected server error (500)
	TypeInternal = "urn:ontime:error:internal"

	// TypeBadRequest indicates a malformed or invalid request (400)
	TypeBadRequest = "urn:ontime:error:bad_request"

	// TypeLockActive indicates another event already holds the focus lock (409)
	TypeLockActive = "urn:ontime:error:lock_active"

	// TypeInvalidPIN indicates an emergency override PIN mismatch (403)
	TypeInvalidPIN = "urn:ontime:error:invalid_pin"

	// TypeOverrideLockedOut indicates the emergency override is refused
	// after repeated PIN failures (423)
	TypeOverrideLockedOut = "urn:ontime:error:override_locked_out"

	// TypeRateLimit indicates too many requests (429)
	TypeRateLimit = "urn:ontime:error:rate_limit"
)

// Titles for each error type - human-readable summaries
const (
	TitleValidation        = "Validation Error"
	TitleNotFound          = "Resource Not Found"
	TitleConflict          = "Resource Conflict"
	TitleUnauthorized      = "Authentication Required"
	TitleInternal          = "Internal Server Error"
	TitleBadRequest        = "Bad Request"
	TitleLockActive        = "Focus Lock Already Active"
	TitleInvalidPIN        = "Invalid Emergency PIN"
	TitleOverrideLockedOut = "Emergency Override Locked Out"
	TitleRateLimit         = "Rate Limit Exceeded"
)
