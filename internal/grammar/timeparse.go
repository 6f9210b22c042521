package grammar

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var errNonPositive = errors.New("must be positive")

// parseTime tries each layout in order and returns the first success.
func parseTime(value string, loc *time.Location, layouts []string) (time.Time, error) {
	value = strings.Join(strings.Fields(value), " ")
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date/time %q", value)
}
