package hydro

import (
	"math"
	"strconv"
	"strings"

	"oj_sync/internal/domain/model"
)

var statuses = map[int]model.SubmissionStatus{
	0:  model.StatusPending,
	1:  model.StatusAC,
	2:  model.StatusWA,
	3:  model.StatusTLE,
	4:  model.StatusMLE,
	5:  model.StatusRE, // output limit exceeded
	6:  model.StatusRE,
	7:  model.StatusCE,
	8:  model.StatusUnknown, // system error
	9:  model.StatusUnknown, // cancelled
	20: model.StatusJudging,
	21: model.StatusJudging, // compiling
	30: model.StatusUnknown, // ignored
	31: model.StatusWA,      // format error
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

// MapDifficulty scales Hydro's 0..10 onto 0..7.
func (f *Fetcher) MapDifficulty(raw string) int {
	d, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0
	}
	return max(0, min(int(math.RoundToEven(d*7/10)), 7))
}
