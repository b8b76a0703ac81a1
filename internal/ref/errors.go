package ref

import (
	"errors"
	"fmt"
)

// InvalidReferenceError reports a rejected mutation of a reference item.
type InvalidReferenceError struct {
	Code       InvalidReferenceCode
	Message    string
	TargetType string
	TargetID   string
}

// InvalidReferenceCode categorizes invalid reference errors.
type InvalidReferenceCode string

const (
	// ErrCodeMissingTargetType: an id was given without a target type and
	// the field allows more than one type.
	ErrCodeMissingTargetType InvalidReferenceCode = "MISSING_TARGET_TYPE"

	// ErrCodeMismatch: the id or type disagrees with the supplied entity.
	ErrCodeMismatch InvalidReferenceCode = "MISMATCH"

	// ErrCodeNonNumericID: a non-numeric id for an integer-identified type.
	ErrCodeNonNumericID InvalidReferenceCode = "NON_NUMERIC_ID"

	// ErrCodeUnsupportedValue: the value has none of the accepted shapes.
	ErrCodeUnsupportedValue InvalidReferenceCode = "UNSUPPORTED_VALUE"
)

// Error implements the error interface.
func (e *InvalidReferenceError) Error() string {
	if e.TargetType != "" || e.TargetID != "" {
		return fmt.Sprintf("%s: %s (target=%s:%s)", e.Code, e.Message, e.TargetType, e.TargetID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsInvalidReference reports whether err is an InvalidReferenceError.
// Uses errors.As to handle wrapped errors.
func IsInvalidReference(err error) bool {
	var ire *InvalidReferenceError
	return errors.As(err, &ire)
}

// InvalidReferenceCodeOf returns the code of an InvalidReferenceError, or ""
// when err is not one.
func InvalidReferenceCodeOf(err error) InvalidReferenceCode {
	var ire *InvalidReferenceError
	if errors.As(err, &ire) {
		return ire.Code
	}
	return ""
}

func invalid(code InvalidReferenceCode, targetType, targetID, format string, args ...any) *InvalidReferenceError {
	return &InvalidReferenceError{
		Code:       code,
		Message:    fmt.Sprintf(format, args...),
		TargetType: targetType,
		TargetID:   targetID,
	}
}
