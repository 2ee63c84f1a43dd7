package domain

import (
	"errors"
	"fmt"
)

// ErrorCode classifies an operation failure so callers can render an
// actionable message and decide whether a retry makes sense.
type ErrorCode string

const (
	ErrNotFound             ErrorCode = "not_found"
	ErrInvalidState         ErrorCode = "invalid_state"
	ErrInsufficientQuantity ErrorCode = "insufficient_quantity"
	ErrUnitUnavailable      ErrorCode = "unit_unavailable"
	ErrDuplicateSerial      ErrorCode = "duplicate_serial"
	ErrEmptyManifest        ErrorCode = "empty_manifest"
	ErrReferencedEntity     ErrorCode = "referenced_entity"
	ErrContention           ErrorCode = "contention"
)

// Error carries the failure code plus the offending identifiers, so the UI
// can point at the exact serial, SKU or unit that caused the rejection.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Serial  string    `json:"serial,omitempty"`
	SKU     string    `json:"sku,omitempty"`
	UnitID  string    `json:"unit_id,omitempty"`
	OrderID string    `json:"order_id,omitempty"`
}

func (e *Error) Error() string {
	if e.Serial != "" {
		return fmt.Sprintf("%s: %s (serial %s)", e.Code, e.Message, e.Serial)
	}
	if e.UnitID != "" {
		return fmt.Sprintf("%s: %s (unit %s)", e.Code, e.Message, e.UnitID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Errf builds an Error with a formatted message.
func Errf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the ErrorCode from err, or "" when err is not a domain Error.
func CodeOf(err error) ErrorCode {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
