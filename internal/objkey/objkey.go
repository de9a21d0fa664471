// Package objkey builds the timestamped, collision-resistant object keys used
// for snapshots and audit entries.
package objkey

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// StampLayout is %Y%m%dT%H%M%S.
	StampLayout = "20060102T150405"
	// DayLayout is %Y-%m-%d.
	DayLayout = "2006-01-02"
)

// Suffix returns 128 bits of randomness as 32 lowercase hex characters.
func Suffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Stamp formats t in UTC with StampLayout.
func Stamp(t time.Time) string { return t.UTC().Format(StampLayout) }

// Day formats t in UTC with DayLayout.
func Day(t time.Time) string { return t.UTC().Format(DayLayout) }

// Join joins key segments with "/", dropping empty segments and the
// trailing slashes of each prefix.
func Join(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "/")
}
