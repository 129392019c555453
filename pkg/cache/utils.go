package cache

import (
	"strings"
	"time"
)

// Key joins non-empty parts with ':'.
func Key(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ":")
}

// DayKey scopes a key to one UTC calendar day so cached data rolls over daily.
func DayKey(prefix, id string, day time.Time) string {
	return Key(prefix, id, day.UTC().Format("20060102"))
}

// BuildPattern creates a glob matching every key under prefix.
func BuildPattern(prefix string) string {
	return prefix + ":*"
}
