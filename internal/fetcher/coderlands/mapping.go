package coderlands

import (
	"strings"

	"oj_sync/internal/domain/model"
)

var statuses = map[string]model.SubmissionStatus{
	"AC":  model.StatusAC,
	"WA":  model.StatusWA,
	"TLE": model.StatusTLE,
	"MLE": model.StatusMLE,
	"RE":  model.StatusRE,
	"CE":  model.StatusCE,
	"PE":  model.StatusWA,
	"OLE": model.StatusRE,
	"SE":  model.StatusUnknown,
}

// Labels run 1..8 on the site; the top one folds into 7.
var difficulties = map[string]int{
	"可视化":           1,
	"入门":            2,
	"普及-":           3,
	"普及/提高-":        4,
	"普及+/提高":        5,
	"提高+/省选-":       6,
	"省选/NOI-":       7,
	"NOI/NOI+/CTSC": 8,
}

var languages = map[string]string{
	"0": "C",
	"1": "C++",
	"2": "C++11",
	"3": "C++14",
	"4": "C++17",
	"5": "Java",
	"6": "Python 2",
	"7": "Python 3",
}

func (f *Fetcher) MapStatus(raw string) model.SubmissionStatus {
	if s, ok := statuses[strings.ToUpper(strings.TrimSpace(raw))]; ok {
		return s
	}
	return model.StatusUnknown
}

func (f *Fetcher) MapDifficulty(raw string) int {
	return min(difficulties[strings.TrimSpace(raw)], 7)
}

func language(id string) *string {
	if id == "" {
		return nil
	}
	if name, ok := languages[id]; ok {
		return &name
	}
	name := "Language " + id
	return &name
}
