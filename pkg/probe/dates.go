package probe

import (
	"strings"
	"time"
)

// looseDateLayouts covers the timestamp formats seen across RDAP
// responses and certificate fields.
var looseDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05-07:00",
	"2006-01-02",
	"02-Jan-2006",
	"Jan 2 15:04:05 2006 MST",
	"Jan _2 15:04:05 2006 MST",
}

// ParseLooseDate parses a timestamp in any of the formats registrars
// and certificates are known to emit.
func ParseLooseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if strings.HasSuffix(s, "Z") {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t, true
		}
	}
	for _, layout := range looseDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// formatUTC renders a timestamp in the fixed report format.
func formatUTC(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05")
}
