package model

import (
	"time"
)

// NormalizedProblem is a fetcher's view of a problem page.
type NormalizedProblem struct {
	ProblemID     string   `json:"problem_id"`
	Title         string   `json:"title"`
	DifficultyRaw *string  `json:"difficulty_raw,omitempty"`
	Tags          []string `json:"tags"`
	Source        *string  `json:"source,omitempty"`
	URL           string   `json:"url"`
	Description   *string  `json:"description,omitempty"`
	InputDesc     *string  `json:"input_desc,omitempty"`
	OutputDesc    *string  `json:"output_desc,omitempty"`
	Examples      *string  `json:"examples,omitempty"`
	Hint          *string  `json:"hint,omitempty"`
}

type Problem struct {
	ID            string    `json:"id"`
	Platform      string    `json:"platform"`
	ProblemID     string    `json:"problem_id"`
	Title         string    `json:"title"`
	Difficulty    int       `json:"difficulty"` // 0..7
	DifficultyRaw *string   `json:"difficulty_raw,omitempty"`
	URL           string    `json:"url"`
	Source        *string   `json:"source,omitempty"`
	Description   *string   `json:"description,omitempty"`
	InputDesc     *string   `json:"input_desc,omitempty"`
	OutputDesc    *string   `json:"output_desc,omitempty"`
	Examples      *string   `json:"examples,omitempty"`
	Hint          *string   `json:"hint,omitempty"`
	PlatformTags  []string  `json:"platform_tags,omitempty"` // raw tags, kept for re-mapping
	Tags          []string  `json:"tags,omitempty"`          // internal tag identifiers
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ProblemContent lists the backfillable fields of a stored problem. A nil
// field means "leave as is".
type ProblemContent struct {
	Title       *string
	Description *string
	InputDesc   *string
	OutputDesc  *string
	Examples    *string
	Hint        *string
}

// MissingContent reports which content fields are still empty.
func (p *Problem) MissingContent() bool {
	return p.Title == "" || blank(p.Description) || blank(p.InputDesc) ||
		blank(p.OutputDesc) || blank(p.Examples) || blank(p.Hint)
}

// BackfillFrom returns only the fields that are empty on p and present on n.
// Existing values are never overwritten.
func (p *Problem) BackfillFrom(n *NormalizedProblem) (ProblemContent, bool) {
	var c ProblemContent
	changed := false
	if p.Title == "" && n.Title != "" {
		c.Title = StrPtr(n.Title)
		changed = true
	}
	fill := func(have, got *string) *string {
		if blank(have) && !blank(got) {
			changed = true
			return got
		}
		return nil
	}
	c.Description = fill(p.Description, n.Description)
	c.InputDesc = fill(p.InputDesc, n.InputDesc)
	c.OutputDesc = fill(p.OutputDesc, n.OutputDesc)
	c.Examples = fill(p.Examples, n.Examples)
	c.Hint = fill(p.Hint, n.Hint)
	return c, changed
}

func blank(s *string) bool {
	return s == nil || *s == ""
}
