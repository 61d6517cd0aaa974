package errors

import (
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
)

// Common error types that can be used across the application
var (
	ErrNotFound         = new(ErrCodeGenericNotFound, "resource not found")
	ErrAlreadyExists    = new(ErrCodeAlreadyExists, "resource already exists")
	ErrValidation       = new(ErrCodeValidation, "validation error")
	ErrInvalidOperation = new(ErrCodeInvalidOperation, "invalid operation")
	ErrDatabase         = new(ErrCodeDatabase, "database error")
	ErrSystem           = new(ErrCodeSystemError, "system error")

	// serial code engine
	ErrMalformedCode              = new(ErrCodeMalformedCode, "malformed serial code")
	ErrCodeNotFound               = new(ErrCodeSerialCodeNotFound, "serial code not found")
	ErrReservationNotFound        = new(ErrCodeReservationNotFound, "reservation not found")
	ErrReservationExpired         = new(ErrCodeReservationExpired, "reservation expired")
	ErrReservationAlreadyResolved = new(ErrCodeReservationAlreadyResolved, "reservation already resolved")
	ErrAlreadySuperseded          = new(ErrCodeAlreadySuperseded, "serial code already superseded")
	ErrCorruptLineage             = new(ErrCodeCorruptLineage, "corrupt serial code lineage")
	ErrStorageUnavailable         = new(ErrCodeStorageUnavailable, "storage unavailable")
	ErrStorageTimeout             = new(ErrCodeStorageTimeout, "storage timeout")

	// maps errors to http status codes
	statusCodeMap = map[error]int{
		ErrDatabase:                   http.StatusInternalServerError,
		ErrNotFound:                   http.StatusNotFound,
		ErrAlreadyExists:              http.StatusConflict,
		ErrValidation:                 http.StatusBadRequest,
		ErrInvalidOperation:           http.StatusBadRequest,
		ErrSystem:                     http.StatusInternalServerError,
		ErrMalformedCode:              http.StatusBadRequest,
		ErrCodeNotFound:               http.StatusNotFound,
		ErrReservationNotFound:        http.StatusNotFound,
		ErrReservationExpired:         http.StatusGone,
		ErrReservationAlreadyResolved: http.StatusConflict,
		ErrAlreadySuperseded:          http.StatusConflict,
		ErrCorruptLineage:             http.StatusInternalServerError,
		ErrStorageUnavailable:         http.StatusServiceUnavailable,
		ErrStorageTimeout:             http.StatusGatewayTimeout,
	}
)

const (
	ErrCodeSystemError      = "system_error"
	ErrCodeGenericNotFound  = "not_found"
	ErrCodeAlreadyExists    = "already_exists"
	ErrCodeValidation       = "validation_error"
	ErrCodeInvalidOperation = "invalid_operation"
	ErrCodeDatabase         = "database_error"

	ErrCodeMalformedCode              = "malformed_code"
	ErrCodeSerialCodeNotFound         = "code_not_found"
	ErrCodeReservationNotFound        = "reservation_not_found"
	ErrCodeReservationExpired         = "reservation_expired"
	ErrCodeReservationAlreadyResolved = "reservation_already_resolved"
	ErrCodeAlreadySuperseded          = "already_superseded"
	ErrCodeCorruptLineage             = "corrupt_lineage"
	ErrCodeStorageUnavailable         = "storage_unavailable"
	ErrCodeStorageTimeout             = "storage_timeout"
)

// InternalError represents a domain error
type InternalError struct {
	Code    string // Machine-readable error code
	Message string // Human-readable error message
	Op      string // Logical operation name
	Err     error  // Underlying error
}

func (e *InternalError) Error() string {
	if e.Err == nil {
		return e.DisplayError()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Err.Error())
}

func (e *InternalError) DisplayError() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// Is implements error matching for wrapped errors
func (e *InternalError) Is(target error) bool {
	if target == nil {
		return false
	}

	t, ok := target.(*InternalError)
	if !ok {
		return errors.Is(e.Err, target)
	}

	return e.Code == t.Code
}

// New creates a new InternalError
func new(code string, message string) *InternalError {
	return &InternalError{
		Code:    code,
		Message: message,
	}
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

func Is(err, reference error) bool {
	return errors.Is(err, reference)
}

// IsNotFound checks if an error is any of the not found errors
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrCodeNotFound) ||
		errors.Is(err, ErrReservationNotFound)
}

// IsAlreadyExists checks if an error is an already exists error
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if an error is a validation error, malformed codes included
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrMalformedCode)
}

// IsInvalidOperation checks if an error is an invalid operation error
func IsInvalidOperation(err error) bool {
	return errors.Is(err, ErrInvalidOperation)
}

// IsRetryable reports whether the failure is a storage transient. Callers
// decide themselves whether a retry of a non-idempotent operation is safe.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable) || errors.Is(err, ErrStorageTimeout)
}

func HTTPStatusFromErr(err error) int {
	// specific sentinels first so that they are not shadowed by generic ones
	for _, e := range []error{
		ErrReservationExpired,
		ErrReservationAlreadyResolved,
		ErrAlreadySuperseded,
		ErrCorruptLineage,
		ErrStorageUnavailable,
		ErrStorageTimeout,
		ErrMalformedCode,
		ErrCodeNotFound,
		ErrReservationNotFound,
	} {
		if errors.Is(err, e) {
			return statusCodeMap[e]
		}
	}
	for e, status := range statusCodeMap {
		if errors.Is(err, e) {
			return status
		}
	}
	return http.StatusInternalServerError
}
