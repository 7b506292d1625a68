package ocr

import (
	"fmt"
	"regexp"
	"strconv"
)

var amountPattern = regexp.MustCompile(`\$(\d+\.\d{2})`)

// ParseAmount returns the first dollar amount of the form $D.CC in text.
func ParseAmount(text string) (float64, error) {
	m := amountPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, ErrNoAmount
	}

	amount, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", m[1], err)
	}
	return amount, nil
}
