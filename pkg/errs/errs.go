package errs

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"encore.dev"
)

// Error codes
const (
	// 400 Bad Request
	InvalidArgument    = "INVALID_ARGUMENT"
	ValidationFailed   = "VALIDATION_FAILED"
	FailedPrecondition = "FAILED_PRECONDITION"

	// 401 Unauthorized
	Unauthenticated = "UNAUTHENTICATED"
	TokenExpired    = "TOKEN_EXPIRED"

	// 403 Forbidden
	Forbidden        = "FORBIDDEN"
	PermissionDenied = "PERMISSION_DENIED"

	// 404 Not Found
	NotFound = "NOT_FOUND"

	// 409 Conflict
	Conflict      = "CONFLICT"
	AlreadyExists = "ALREADY_EXISTS"

	// 422 Unprocessable Entity
	UnprocessableEntity = "UNPROCESSABLE_ENTITY"

	// 429 Too Many Requests
	TooManyRequests   = "TOO_MANY_REQUESTS"
	ResourceExhausted = "RESOURCE_EXHAUSTED"

	// 500 Internal Server Error
	Internal      = "INTERNAL_ERROR"
	Unimplemented = "UNIMPLEMENTED"

	// 503 Service Unavailable
	ServiceUnavailable = "SERVICE_UNAVAILABLE"

	// 504 Gateway Timeout
	DeadlineExceeded = "DEADLINE_EXCEEDED"

	// Authentication domain codes (AUTH)
	AuthEmailTaken          = "AUTH_EMAIL_TAKEN"
	AuthInvalidCredentials  = "AUTH_INVALID_CREDENTIALS"
	AuthUserNotFound        = "AUTH_USER_NOT_FOUND"
	AuthUserInactive        = "AUTH_USER_INACTIVE"
	AuthWeakPassword        = "AUTH_WEAK_PASSWORD"
	AuthInvalidRefreshToken = "AUTH_INVALID_REFRESH_TOKEN"
	AuthRateLimitExceeded   = "AUTH_RATE_LIMIT_EXCEEDED"
	AuthTokenExpired        = "AUTH_TOKEN_EXPIRED"
	AuthUnauthenticated     = "AUTH_UNAUTHENTICATED"
	AuthForbidden           = "AUTH_FORBIDDEN"

	// Bidding domain codes (BID). These are domain rejections: returned
	// synchronously to the caller, never retried, never logged as faults.
	BidAuctionClosed        = "BID_AUCTION_CLOSED"
	BidSelfBid              = "BID_SELF_BID"
	BidSubscriptionRequired = "BID_SUBSCRIPTION_REQUIRED"
	BidAlreadyHighest       = "BID_ALREADY_HIGHEST"
	BidTooLow               = "BID_TOO_LOW"
	BidNotFound             = "BID_NOT_FOUND"
	AucNotFound             = "AUC_NOT_FOUND"

	// Order domain codes (ORD)
	OrdNotFound               = "ORD_NOT_FOUND"
	OrdListingAlreadyReserved = "ORD_LISTING_ALREADY_RESERVED"
	OrdListingUnavailable     = "ORD_LISTING_UNAVAILABLE"
	OrdIdemMismatch           = "ORD_IDEM_MISMATCH"

	// Listing domain codes (LST)
	LstNotFound = "LST_NOT_FOUND"

	// Subscription domain codes (SUB)
	SubNotFound = "SUB_NOT_FOUND"

	// Payment domain codes (PAY)
	PayNotFound          = "PAY_NOT_FOUND"
	PayUnknownProcessor  = "PAY_UNKNOWN_PROCESSOR"
	PayInvalidPayload    = "PAY_INVALID_PAYLOAD"
	PayInvalidSignature  = "PAY_INVALID_SIGNATURE"
	PayIllegalTransition = "PAY_ILLEGAL_TRANSITION"
	PayDuplicateEvent    = "PAY_DUPLICATE_EVENT"
	PayProcessorDisabled = "PAY_PROCESSOR_DISABLED"

	// Notification domain codes (NOTIF)
	NotifUnauthenticated   = "NOTIF_UNAUTHENTICATED"
	NotifInvalidTemplate   = "NOTIF_INVALID_TEMPLATE"
	NotifQueueInsertFailed = "NOTIF_QUEUE_INSERT_FAILED"
	NotifQueueQueryFailed  = "NOTIF_QUEUE_QUERY_FAILED"
	NotifListQueryFailed   = "NOTIF_LIST_QUERY_FAILED"
	NotifNotFound          = "NOTIF_NOT_FOUND"
)

// Error represents a structured error
type Error struct {
	Code          string      `json:"code"`
	Message       string      `json:"message"`
	CorrelationID string      `json:"correlation_id,omitempty"`
	Details       interface{} `json:"details,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.CorrelationID != "" {
		return fmt.Sprintf("[%s] %s: %s", e.CorrelationID, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// HTTPStatus returns the HTTP status code for the error
func (e *Error) HTTPStatus() int {
	switch e.Code {
	// Authentication domain mappings
	case AuthEmailTaken:
		return http.StatusConflict
	case AuthInvalidCredentials, AuthUserNotFound, AuthUserInactive:
		return http.StatusUnauthorized
	case AuthWeakPassword:
		return http.StatusBadRequest
	case AuthInvalidRefreshToken, AuthTokenExpired, AuthUnauthenticated:
		return http.StatusUnauthorized
	case AuthRateLimitExceeded:
		return http.StatusTooManyRequests
	case AuthForbidden:
		return http.StatusForbidden

	// Bidding domain mappings
	case BidAuctionClosed, BidSelfBid, BidAlreadyHighest:
		return http.StatusConflict
	case BidTooLow:
		return http.StatusUnprocessableEntity
	case BidSubscriptionRequired:
		return http.StatusForbidden
	case BidNotFound, AucNotFound:
		return http.StatusNotFound

	// Order domain mappings
	case OrdNotFound:
		return http.StatusNotFound
	case OrdListingAlreadyReserved, OrdListingUnavailable, OrdIdemMismatch:
		return http.StatusConflict

	case LstNotFound, SubNotFound:
		return http.StatusNotFound

	// Payment domain mappings
	case PayNotFound:
		return http.StatusNotFound
	case PayInvalidPayload, PayUnknownProcessor:
		return http.StatusBadRequest
	case PayInvalidSignature:
		return http.StatusUnauthorized
	case PayIllegalTransition, PayProcessorDisabled:
		return http.StatusConflict

	// Notification domain mappings
	case NotifUnauthenticated:
		return http.StatusUnauthorized
	case NotifInvalidTemplate:
		return http.StatusBadRequest
	case NotifQueueInsertFailed, NotifQueueQueryFailed, NotifListQueryFailed:
		return http.StatusInternalServerError
	case NotifNotFound:
		return http.StatusNotFound

	// Generic mappings
	case InvalidArgument, ValidationFailed:
		return http.StatusBadRequest
	case FailedPrecondition:
		return http.StatusBadRequest
	case Unauthenticated, TokenExpired:
		return http.StatusUnauthorized
	case Forbidden, PermissionDenied:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Conflict, AlreadyExists:
		return http.StatusConflict
	case UnprocessableEntity:
		return http.StatusUnprocessableEntity
	case TooManyRequests, ResourceExhausted:
		return http.StatusTooManyRequests
	case ServiceUnavailable:
		return http.StatusServiceUnavailable
	case Unimplemented:
		return http.StatusNotImplemented
	case DeadlineExceeded:
		return http.StatusGatewayTimeout
	default:
		// Heuristics for domain-prefixed codes and common terms
		lc := strings.ToLower(e.Code)
		switch {
		case strings.Contains(lc, "not_found"):
			return http.StatusNotFound
		case strings.Contains(lc, "conflict"):
			return http.StatusConflict
		case strings.Contains(lc, "unauth"):
			return http.StatusUnauthorized
		case strings.Contains(lc, "forbidden"):
			return http.StatusForbidden
		case strings.Contains(lc, "rate_limit") || strings.Contains(lc, "too_many"):
			return http.StatusTooManyRequests
		case strings.HasPrefix(strings.ToUpper(e.Code), "AUC_") ||
			strings.HasPrefix(strings.ToUpper(e.Code), "PAY_") ||
			strings.HasPrefix(strings.ToUpper(e.Code), "ORD_") ||
			strings.HasPrefix(strings.ToUpper(e.Code), "LST_") ||
			strings.HasPrefix(strings.ToUpper(e.Code), "SUB_") ||
			strings.HasPrefix(strings.ToUpper(e.Code), "BID_"):
			return http.StatusBadRequest
		default:
			return http.StatusInternalServerError
		}
	}
}

// New creates a new error
func New(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// WithDetails adds details to an error
func (e *Error) WithDetails(details interface{}) *Error {
	e.Details = details
	return e
}

// WithCorrelationID adds correlation ID to an error
func (e *Error) WithCorrelationID(correlationID string) *Error {
	e.CorrelationID = correlationID
	return e
}

// CorrelationIDFromContext returns a correlation_id tied to current request if possible,
// otherwise generates a time-based fallback.
func CorrelationIDFromContext(ctx context.Context) string {
	if ctx != nil {
		if req := encore.CurrentRequest(); req != nil {
			if req.Path != "" {
				return fmt.Sprintf("%s-%d", req.Path, time.Now().UnixNano())
			}
		}
	}
	return fmt.Sprintf("cid-%d", time.Now().UnixNano())
}

// E creates a domain-coded error and auto-fills correlation_id from context.
func E(ctx context.Context, code, message string) *Error {
	return New(code, message).WithCorrelationID(CorrelationIDFromContext(ctx))
}

// EDetails creates a domain-coded error with details and auto correlation_id.
func EDetails(ctx context.Context, code, message string, details interface{}) *Error {
	return (&Error{Code: code, Message: message, Details: details}).WithCorrelationID(CorrelationIDFromContext(ctx))
}
