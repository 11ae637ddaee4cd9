package coderlands

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"oj_sync/internal/domain/model"
	"oj_sync/internal/fetcher"
)

var (
	listSep = regexp.MustCompile(`[,\s]+`)
	pNumber = regexp.MustCompile(`(?i)^P(\d+)$`)
)

// ProblemNumber strips an optional P prefix: "P17" → "17".
func ProblemNumber(id string) string {
	if m := pNumber.FindStringSubmatch(strings.TrimSpace(id)); m != nil {
		return m[1]
	}
	return strings.TrimSpace(id)
}

// SplitProblemList parses the comma or whitespace separated acStr/unAcStr
// fields into bare problem numbers.
func SplitProblemList(s string) []string {
	var out []string
	for _, p := range listSep.Split(s, -1) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, ProblemNumber(p))
		}
	}
	return out
}

// ExerciseHash fingerprints the solved and unsolved sets. It is the cursor
// stored for this platform.
func ExerciseHash(ac, unac map[string]bool) string {
	content := strings.Join(sortedKeys(ac), ",") + "|" + strings.Join(sortedKeys(unac), ",")
	sum := md5.Sum([]byte(content))
	return hex.EncodeToString(sum[:])[:16]
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Plan is the set of problems one run lists submissions for.
type Plan struct {
	Hash    string
	Changed bool
	Sync    []string        // problem numbers, numeric order
	New     map[string]bool // absent from the store; listed without the since filter
}

// PlanSync decides what to fetch. Problems missing from the store are always
// fetched; when the hash moved, every problem the account has not solved
// locally is fetched as well.
func PlanSync(ac, unac map[string]bool, known fetcher.KnownSet, cursor string) Plan {
	p := Plan{Hash: ExerciseHash(ac, unac), New: map[string]bool{}}
	p.Changed = cursor == "" || cursor != p.Hash

	want := map[string]bool{}
	for _, set := range []map[string]bool{ac, unac} {
		for no := range set {
			if !known.HasProblem("P" + no) {
				p.New[no] = true
				want[no] = true
			} else if p.Changed {
				want[no] = true
			}
		}
	}
	for no := range want {
		if !known.IsSolved("P" + no) {
			p.Sync = append(p.Sync, no)
		}
	}
	slices.SortFunc(p.Sync, func(a, b string) int {
		ai, aerr := strconv.Atoi(a)
		bi, berr := strconv.Atoi(b)
		if aerr == nil && berr == nil {
			return ai - bi
		}
		return strings.Compare(a, b)
	})
	return p
}

func (f *Fetcher) FetchSubmissions(ctx context.Context, q fetcher.SubmissionQuery) (*fetcher.Batch, error) {
	ac, unac, err := f.exercise(ctx)
	if err != nil {
		return nil, err
	}
	plan := PlanSync(ac, unac, q.Known, q.Cursor)
	f.log.Info().
		Int("total", len(ac)+len(unac)).
		Int("new", len(plan.New)).
		Bool("hash_changed", plan.Changed).
		Int("to_sync", len(plan.Sync)).
		Msg("coderlands sync plan")

	batch := &fetcher.Batch{Strategy: fetcher.CursorContentHash}
	batch.Declare(plan.Hash)
	batch.Submissions = func(yield func(model.NormalizedSubmission, error) bool) {
		for _, no := range plan.Sync {
			id, err := f.uuids.Resolve(ctx, no)
			if err != nil {
				if errors.Is(err, fetcher.ErrUnresolved) {
					f.log.Warn().Str("problem", "P"+no).Msg("problem not reachable from current class, skipping")
					continue
				}
				yield(model.NormalizedSubmission{}, err)
				return
			}
			since := q.Since
			if plan.New[no] {
				since = nil
			}
			subs, err := f.problemSubmissions(ctx, no, id, since)
			if err != nil {
				yield(model.NormalizedSubmission{}, err)
				return
			}
			for _, s := range subs {
				if !yield(s, nil) {
					return
				}
			}
		}
	}
	return batch, nil
}

type submissionItem struct {
	UUID       string             `json:"uuid"`
	SubmitTime string             `json:"submitTime"`
	Slug       string             `json:"judgeResultSlug"`
	Score      fetcher.FlexInt    `json:"judgeScore"`
	UsedTime   fetcher.FlexInt    `json:"usedTime"`
	UsedMemory fetcher.FlexInt    `json:"usedMemory"`
	LanguageID fetcher.FlexString `json:"languageId"`
}

func (f *Fetcher) problemSubmissions(ctx context.Context, no, problemUUID string, since *time.Time) ([]model.NormalizedSubmission, error) {
	raw, err := f.get(ctx, "listSubNew", "/server/student/stady/listSubNew?problemUuid="+url.QueryEscape(problemUUID))
	if err != nil {
		return nil, err
	}
	var items []submissionItem
	var wrapped struct {
		DataList []submissionItem `json:"dataList"`
	}
	if json.Unmarshal(raw, &wrapped) == nil {
		items = wrapped.DataList
	} else if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fetcher.E(fetcher.ErrParse, Platform, "listSubNew", err)
	}

	problemID := "P" + no
	out := make([]model.NormalizedSubmission, 0, len(items))
	for _, it := range items {
		if it.UUID == "" {
			continue
		}
		at, ok := fetcher.ParseTime(it.SubmitTime)
		if !ok {
			at = time.Now().UTC()
		}
		if since != nil && at.Before(*since) {
			continue
		}
		out = append(out, model.NormalizedSubmission{
			RecordID:    problemID + "/" + it.UUID,
			ProblemID:   problemID,
			Status:      f.MapStatus(it.Slug),
			Score:       it.Score.Ptr(),
			Language:    language(it.LanguageID.String()),
			TimeMs:      it.UsedTime.Ptr(),
			MemoryKb:    it.UsedMemory.Ptr(),
			SubmittedAt: at,
		})
	}
	return out, nil
}
