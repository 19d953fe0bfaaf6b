package model

import (
	"fmt"
	"time"
)

// DateLayout is the ISO calendar date format used for plan dates and store keys.
const DateLayout = "2006-01-02"

// FormatDate renders t as an ISO calendar date in t's own location.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate validates an ISO calendar date and returns it in canonical form.
func ParseDate(s string) (string, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t.Format(DateLayout), nil
}
