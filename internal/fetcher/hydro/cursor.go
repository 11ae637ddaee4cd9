package hydro

import (
	"sort"
	"strings"
)

// Cursor holds the newest seen record id per domain.
type Cursor map[string]string

// ParseCursor reads "d1/rid|d2/rid". A single "domain/rid" value, as stored
// by a run that ended early, is a one-domain cursor.
func ParseCursor(s string) Cursor {
	c := Cursor{}
	for _, seg := range strings.Split(s, "|") {
		domain, rid, ok := strings.Cut(strings.TrimSpace(seg), "/")
		if ok && domain != "" && rid != "" {
			c[domain] = rid
		}
	}
	return c
}

// String renders the cursor with domains sorted so equal cursors compare equal.
func (c Cursor) String() string {
	domains := make([]string, 0, len(c))
	for d := range c {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	segs := make([]string, len(domains))
	for i, d := range domains {
		segs[i] = d + "/" + c[d]
	}
	return strings.Join(segs, "|")
}
