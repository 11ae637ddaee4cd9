package hoj

import (
	"strconv"
	"strings"

	"oj_sync/internal/domain/model"
)

var statuses = map[int]model.SubmissionStatus{
	0:   model.StatusAC,
	-1:  model.StatusWA,
	-2:  model.StatusTLE,
	-3:  model.StatusMLE,
	-4:  model.StatusRE,
	-5:  model.StatusCE,
	-10: model.StatusUnknown, // system error
	1:   model.StatusPending,
	2:   model.StatusPending,
	3:   model.StatusPending,
	4:   model.StatusJudging,
	5:   model.StatusJudging, // compiling
	6:   model.StatusPending, // rejudge
	7:   model.StatusJudging,
	8:   model.StatusWA, // partial accepted
	9:   model.StatusUnknown,
}

var languages = map[string]string{
	"C++ With O2":     "C++ (O2)",
	"C++ 17":          "C++17",
	"C++ 17 With O2":  "C++17 (O2)",
	"Python2":         "Python 2",
	"Python3":         "Python 3",
	"PyPy2":           "PyPy 2",
	"PyPy3":           "PyPy 3",
	"JavaScript V8":   "JavaScript",
	"JavaScript Node": "Node.js",
}

var difficultyWords = map[string]int{
	"简单": 1, "Easy": 1,
	"中等": 2, "Medium": 2,
	"困难": 3, "Hard": 3,
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

// MapDifficulty passes numeric levels through and maps the three word labels.
func (f *Fetcher) MapDifficulty(raw string) int {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.Atoi(raw); err == nil {
		return max(0, min(n, 7))
	}
	return difficultyWords[raw]
}

func language(name string) string {
	if mapped, ok := languages[name]; ok {
		return mapped
	}
	return name
}
