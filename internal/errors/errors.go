package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgconn"
)

// Classification tags surfaced to GraphQL clients via error extensions.
const (
	ClassValidation          = "ValidationError"
	ClassExecutionAborted    = "ExecutionAborted"
	ClassConstraintViolation = "ConstraintViolation"
	ClassNotFound            = "NotFound"
	ClassDatabase            = "DatabaseError"
	ClassSubscription        = "SubscriptionError"
)

// ClassifiedError carries a classification tag alongside the message shown
// to clients. Internal detail stays in the wrapped error for logging.
type ClassifiedError struct {
	Classification string
	Message        string
	Constraint     string // set for constraint violations
	wrapped        error
}

func (e *ClassifiedError) Error() string {
	return e.Message
}

func (e *ClassifiedError) Unwrap() error {
	return e.wrapped
}

// Extensions returns the GraphQL error extensions map for this error.
func (e *ClassifiedError) Extensions() map[string]interface{} {
	ext := map[string]interface{}{
		"classification": e.Classification,
	}
	if e.Constraint != "" {
		ext["constraint"] = e.Constraint
	}
	return ext
}

// Validation builds a ValidationError with a client-facing message.
func Validation(format string, args ...interface{}) *ClassifiedError {
	return &ClassifiedError{
		Classification: ClassValidation,
		Message:        fmt.Sprintf(format, args...),
	}
}

// Aborted builds an ExecutionAborted error for security guard rejections.
func Aborted(format string, args ...interface{}) *ClassifiedError {
	return &ClassifiedError{
		Classification: ClassExecutionAborted,
		Message:        fmt.Sprintf(format, args...),
	}
}

// NotFound builds a NotFound error for absent primary-key tuples.
func NotFound(format string, args ...interface{}) *ClassifiedError {
	return &ClassifiedError{
		Classification: ClassNotFound,
		Message:        fmt.Sprintf(format, args...),
	}
}

// Subscription builds a SubscriptionError carried on the event stream.
func Subscription(format string, args ...interface{}) *ClassifiedError {
	return &ClassifiedError{
		Classification: ClassSubscription,
		Message:        fmt.Sprintf(format, args...),
	}
}

// SQLSTATE codes of the class 23 integrity violations that are classified
// as constraint violations.
const (
	sqlstateNotNullViolation    = "23502"
	sqlstateForeignKeyViolation = "23503"
	sqlstateUniqueViolation     = "23505"
	sqlstateCheckViolation      = "23514"
)

// ClassifyDB maps a database error to a ClassifiedError by SQLSTATE.
// Integrity violations become ConstraintViolation with the constraint kind;
// anything else becomes a generic DatabaseError so internal detail is not
// leaked to clients.
func ClassifyDB(err error) *ClassifiedError {
	var already *ClassifiedError
	if errors.As(err, &already) {
		return already
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlstateUniqueViolation:
			return constraintError("unique constraint violation", pgErr, err)
		case sqlstateForeignKeyViolation:
			return constraintError("foreign key constraint violation", pgErr, err)
		case sqlstateCheckViolation:
			return constraintError("check constraint violation", pgErr, err)
		case sqlstateNotNullViolation:
			msg := "not-null constraint violation"
			if pgErr.ColumnName != "" {
				msg = fmt.Sprintf("not-null constraint violation on column %q", pgErr.ColumnName)
			}
			return &ClassifiedError{
				Classification: ClassConstraintViolation,
				Message:        msg,
				Constraint:     pgErr.ColumnName,
				wrapped:        err,
			}
		}
	}

	return &ClassifiedError{
		Classification: ClassDatabase,
		Message:        "database operation failed",
		wrapped:        err,
	}
}

func constraintError(kind string, pgErr *pgconn.PgError, wrapped error) *ClassifiedError {
	msg := kind
	if pgErr.ConstraintName != "" {
		msg = fmt.Sprintf("%s (%s)", kind, pgErr.ConstraintName)
	}
	return &ClassifiedError{
		Classification: ClassConstraintViolation,
		Message:        msg,
		Constraint:     pgErr.ConstraintName,
		wrapped:        wrapped,
	}
}

// ErrorResponse represents a standardized HTTP error response
type ErrorResponse struct {
	Error     string    `json:"error"`
	Code      string    `json:"code,omitempty"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// Common error codes for the HTTP layer
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeInternalError   = "INTERNAL_ERROR"
	CodeBadRequest      = "BAD_REQUEST"
	CodeTooManyRequests = "TOO_MANY_REQUESTS"
	CodePayloadTooLarge = "PAYLOAD_TOO_LARGE"
)

// RespondWithError sends a standardized error response
func RespondWithError(c *gin.Context, statusCode int, code, message, details string) {
	requestID := ""
	if rid, exists := c.Get("request_id"); exists {
		if ridStr, ok := rid.(string); ok {
			requestID = ridStr
		}
	}

	c.JSON(statusCode, ErrorResponse{
		Error:     message,
		Code:      code,
		Details:   details,
		Timestamp: time.Now(),
		RequestID: requestID,
	})
}

func BadRequest(c *gin.Context, message, details string) {
	RespondWithError(c, http.StatusBadRequest, CodeBadRequest, message, details)
}

func ValidationFailed(c *gin.Context, message, details string) {
	RespondWithError(c, http.StatusBadRequest, CodeValidationError, message, details)
}

func NotFoundResponse(c *gin.Context, message, details string) {
	RespondWithError(c, http.StatusNotFound, CodeNotFound, message, details)
}

func InternalError(c *gin.Context, message, details string) {
	RespondWithError(c, http.StatusInternalServerError, CodeInternalError, message, details)
}

func TooManyRequests(c *gin.Context, message, details string) {
	RespondWithError(c, http.StatusTooManyRequests, CodeTooManyRequests, message, details)
}

func PayloadTooLarge(c *gin.Context, message, details string) {
	RespondWithError(c, http.StatusRequestEntityTooLarge, CodePayloadTooLarge, message, details)
}
