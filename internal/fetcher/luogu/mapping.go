package luogu

import (
	"strconv"
	"strings"

	"oj_sync/internal/domain/model"
)

var statuses = map[int]model.SubmissionStatus{
	0:  model.StatusPending,
	1:  model.StatusJudging,
	2:  model.StatusCE,
	3:  model.StatusUnknown, // output limit exceeded
	4:  model.StatusMLE,
	5:  model.StatusTLE,
	6:  model.StatusWA,
	7:  model.StatusRE,
	11: model.StatusRE,
	12: model.StatusAC,
	14: model.StatusWA, // partially accepted
	21: model.StatusUnknown,
	22: model.StatusUnknown,
}

var difficultyLabels = []string{
	"暂无评定",
	"入门",
	"普及-",
	"普及/提高-",
	"普及+/提高",
	"提高+/省选-",
	"省选/NOI-",
	"NOI/NOI+",
}

var languages = map[int]string{
	0:  "Auto",
	1:  "Pascal",
	2:  "C",
	3:  "C++",
	4:  "C++11",
	6:  "Python 2",
	7:  "Python 3",
	8:  "Java 8",
	9:  "Node.js",
	11: "C++14",
	12: "C++17",
	14: "C++20",
	15: "Go",
	16: "Rust",
	17: "PHP",
	21: "C# Mono",
	22: "Haskell",
	23: "Kotlin/JVM",
	25: "Scala",
	27: "Perl",
	28: "PyPy 2",
	29: "PyPy 3",
}

func (f *Fetcher) MapStatus(raw string) model.SubmissionStatus {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return model.StatusUnknown
	}
	if s, ok := statuses[n]; ok {
		return s
	}
	return model.StatusUnknown
}

// MapDifficulty accepts either the label or the numeric level.
func (f *Fetcher) MapDifficulty(raw string) int {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.Atoi(raw); err == nil {
		if n >= 0 && n <= 7 {
			return n
		}
		return 0
	}
	for i, label := range difficultyLabels {
		if label == raw {
			return i
		}
	}
	return 0
}

func difficultyLabel(level int) string {
	if level < 0 || level >= len(difficultyLabels) {
		return difficultyLabels[0]
	}
	return difficultyLabels[level]
}

func language(code int) *string {
	if name, ok := languages[code]; ok {
		return &name
	}
	name := strconv.Itoa(code)
	return &name
}
