package thinktimer

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration is a thinking delay in whole seconds. Only the values returned
// by Choices are offered to users.
type Duration int

const (
	None  Duration = 0
	Short Duration = 5
	Long  Duration = 30
)

// Choices returns the closed set of selectable delays, in display order.
func Choices() []Duration {
	return []Duration{None, Short, Long}
}

// ParseDuration accepts "0", "5", "30" (an optional trailing "s" is allowed).
func ParseDuration(s string) (Duration, error) {
	trimmed := strings.TrimSuffix(strings.TrimSpace(s), "s")
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return None, fmt.Errorf("invalid thinking delay %q", s)
	}
	d := Duration(n)
	for _, c := range Choices() {
		if c == d {
			return d, nil
		}
	}
	return None, fmt.Errorf("thinking delay must be one of 0, 5 or 30 seconds, got %d", n)
}

// Label is the human-readable selector text.
func (d Duration) Label() string {
	if d == None {
		return "No Delay"
	}
	return fmt.Sprintf("%d seconds", int(d))
}

// Std converts the delay to a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d) * time.Second
}
