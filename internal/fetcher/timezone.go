package fetcher

import (
	"strconv"
	"strings"
	"time"
)

// PlatformZone is assumed for platform timestamps that carry no offset.
var PlatformZone = time.FixedZone("CST", 8*3600)

var localLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006/01/02 15:04:05",
}

// ParseTime accepts RFC 3339, zone-less layouts (read as PlatformZone) and
// epoch seconds or milliseconds. The result is UTC.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), true
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, PlatformZone); err == nil {
			return t.UTC(), true
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Epoch(n), true
	}
	return time.Time{}, false
}

// Epoch interprets n as seconds, or milliseconds when it is too large to be
// seconds.
func Epoch(n int64) time.Time {
	if n > 1e11 {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}
