package ybt

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"oj_sync/internal/domain/model"
)

// Checked in order; result text is matched by prefix.
var results = []struct {
	prefix string
	status model.SubmissionStatus
}{
	{"Accepted", model.StatusAC},
	{"Wrong Answer", model.StatusWA},
	{"Time Limit Exceeded", model.StatusTLE},
	{"Memory Limit Exceeded", model.StatusMLE},
	{"Runtime Error", model.StatusRE},
	{"Compile Error", model.StatusCE},
	{"Presentation Error", model.StatusWA},
	{"Output Limit Exceeded", model.StatusRE},
	{"Waiting", model.StatusPending},
	{"Compiling", model.StatusJudging},
	{"Running", model.StatusJudging},
}

var languages = map[int]string{
	0: "C",
	1: "C",
	2: "C++",
	3: "Pascal",
	4: "BASIC",
	5: "Fortran",
	6: "Java",
	7: "C++",
	8: "Python",
}

var (
	scoreRatio = regexp.MustCompile(`score[:\s]*(\d+)\s*/\s*(\d+)`)
	plainScore = regexp.MustCompile(`(\d+)`)
)

func (f *Fetcher) MapStatus(raw string) model.SubmissionStatus {
	s, _ := ParseResult(raw)
	return s
}

// MapDifficulty always returns 0; the judge has no difficulty labels.
func (f *Fetcher) MapDifficulty(string) int { return 0 }

// ParseResult reads the result column: "C" for compile error, otherwise
// "Text|score:a/b" where the score part is optional. Scores are out of 10.
func ParseResult(raw string) (model.SubmissionStatus, *int) {
	if raw == "" {
		return model.StatusUnknown, nil
	}
	if raw == "C" {
		return model.StatusCE, nil
	}
	text, detail, hasDetail := strings.Cut(raw, "|")
	text = strings.TrimSpace(text)

	status := model.StatusUnknown
	for _, r := range results {
		if strings.HasPrefix(text, r.prefix) {
			status = r.status
			break
		}
	}

	var score *int
	if hasDetail {
		if m := scoreRatio.FindStringSubmatch(detail); m != nil {
			ac, _ := strconv.Atoi(m[1])
			total, _ := strconv.Atoi(m[2])
			v := 0
			if total > 0 {
				v = int(math.RoundToEven(10 * float64(ac) / float64(total)))
			}
			score = &v
		} else if m := plainScore.FindString(detail); m != "" {
			v, _ := strconv.Atoi(m)
			score = &v
		}
	}
	if status == model.StatusAC && score == nil {
		v := 10
		score = &v
	}
	return status, score
}

func language(code string) *string {
	if code == "" {
		return nil
	}
	n, err := strconv.Atoi(code)
	if err != nil {
		return &code
	}
	if name, ok := languages[n]; ok {
		return &name
	}
	name := "Lang" + code
	return &name
}
