package fetcher

import (
	"regexp"
	"strings"
)

// Resolved is the result of mapping a problem URL.
type Resolved struct {
	Platform  string `json:"platform"`
	ProblemID string `json:"problem_id"`
}

type urlRule struct {
	platform string
	re       *regexp.Regexp
	id       func(m []string) string
}

var urlRules = []urlRule{
	{"luogu", regexp.MustCompile(`luogu\.com\.cn/problem/([A-Za-z0-9_]+)`), group(1)},
	{"bbcoj", regexp.MustCompile(`bbcoj\.cn/(?:training/\d+/)?problem/([A-Za-z0-9_]+)`), group(1)},
	{"ybt", regexp.MustCompile(`ybt\.ssoier\.cn(?::\d+)?/problem_show\.php\?pid=(\d+)`), group(1)},
	{"ctoj", regexp.MustCompile(`ctoj\.ac/d/([^/]+)/p/([^/?#\s]+)`), func(m []string) string { return m[1] + "/" + m[2] }},
}

func group(i int) func([]string) string {
	return func(m []string) string { return m[i] }
}

// ResolveURL maps a problem page URL to its platform and problem id. It is
// pure and performs no I/O.
func ResolveURL(rawURL string) (Resolved, bool) {
	u := strings.TrimSpace(rawURL)
	if u == "" {
		return Resolved{}, false
	}
	for _, r := range urlRules {
		if m := r.re.FindStringSubmatch(u); m != nil {
			return Resolved{Platform: r.platform, ProblemID: r.id(m)}, true
		}
	}
	return Resolved{}, false
}
