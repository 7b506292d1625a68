package ocr

import (
	"errors"
	"strconv"
)

// Sentinel errors for OCR operations.
var (
	// ErrNoAmount means the receipt text contained no dollar amount.
	ErrNoAmount = errors.New("no dollar amount found on receipt")
	// ErrEmptyImage means no image bytes were supplied.
	ErrEmptyImage = errors.New("receipt image is empty")
	// ErrProcessing means the OCR service reported a failure.
	ErrProcessing = errors.New("ocr processing failed")
)

// StatusError is returned when the OCR service answers with a non-2xx status.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return "ocr service returned status " + strconv.Itoa(e.StatusCode)
}

// Retryable reports whether the request may succeed if sent again.
func (e *StatusError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}
