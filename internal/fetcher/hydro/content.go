package hydro

import (
	"regexp"
	"strings"
)

var heading = regexp.MustCompile(`^##\s+(.+)`)

// Sections are the parts of a Hydro markdown statement.
type Sections struct {
	Description, Input, Output, Examples, Hint *string
}

// ParseContent splits a statement on "## " headings. Text before the first
// heading is the description.
func ParseContent(content string) Sections {
	var out Sections
	if strings.TrimSpace(content) == "" {
		return out
	}
	type part struct{ key, body string }
	var parts []part
	key := ""
	var lines []string
	flush := func() {
		parts = append(parts, part{key, strings.TrimSpace(strings.Join(lines, "\n"))})
		lines = nil
	}
	for _, line := range strings.Split(content, "\n") {
		if m := heading.FindStringSubmatch(line); m != nil {
			flush()
			key = strings.TrimSpace(m[1])
			continue
		}
		lines = append(lines, line)
	}
	flush()

	for _, p := range parts {
		if p.body == "" {
			continue
		}
		body := p.body
		k := strings.ToLower(p.key)
		switch {
		case p.key == "":
			out.Description = &body
		case k == "输入" || (strings.Contains(k, "输入") && strings.Contains(k, "格式")):
			out.Input = &body
		case k == "输出" || (strings.Contains(k, "输出") && strings.Contains(k, "格式")):
			out.Output = &body
		case strings.Contains(k, "样例") || strings.Contains(k, "sample") || strings.Contains(k, "example"):
			if out.Examples != nil {
				joined := *out.Examples + "\n\n" + body
				out.Examples = &joined
			} else {
				out.Examples = &body
			}
		case strings.Contains(k, "提示") || strings.Contains(k, "说明") || strings.Contains(k, "hint") || strings.Contains(k, "note"):
			out.Hint = &body
		case strings.Contains(k, "描述") || strings.Contains(k, "description"):
			if out.Description == nil {
				out.Description = &body
			}
		}
	}
	return out
}
