package ocr

import (
	"math/rand"
	"time"
)

const (
	// DefaultMaxAttempts is the default number of OCR attempts per receipt.
	DefaultMaxAttempts = 3

	// DefaultBaseDelay is the delay before the first retry.
	DefaultBaseDelay = 500 * time.Millisecond

	// maxDelay caps the backoff between attempts.
	maxDelay = 5 * time.Second

	// JitterFactor is the ±percentage of jitter applied to delays.
	JitterFactor = 0.2 // ±20%
)

// NextRetryDelay returns the backoff before retry number attempt
// (0-indexed): base doubled per attempt, capped, with ±20% jitter.
func NextRetryDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	d := base
	for i := 0; i < attempt && d < maxDelay; i++ {
		d *= 2
	}
	if d > maxDelay {
		d = maxDelay
	}

	jitterRange := float64(d) * JitterFactor
	jitter := (rand.Float64()*2 - 1) * jitterRange

	return time.Duration(float64(d) + jitter)
}
