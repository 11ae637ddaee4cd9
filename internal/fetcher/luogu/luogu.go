// Package luogu adapts www.luogu.com.cn through its content-only JSON views.
package luogu

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"oj_sync/internal/domain/model"
	"oj_sync/internal/fetcher"
)

const (
	Platform       = "luogu"
	DefaultBaseURL = "https://www.luogu.com.cn"

	maxPages = 100
	// ThrottlePause is how long to back off after a 429.
	ThrottlePause = 30 * time.Second
)

var meta = fetcher.Meta{
	Platform:     Platform,
	DisplayName:  "洛谷",
	BaseURL:      DefaultBaseURL,
	RequiresAuth: false,
	AuthMethod:   fetcher.AuthCookie,
	SupportsCode: true,
	Cursor:       fetcher.CursorRecordID,
}

func Register(r *fetcher.Registry) { r.Register(meta, New) }

type Fetcher struct {
	base   string
	client *fetcher.Client
	log    zerolog.Logger
}

// New builds a fetcher. The cookie (__client_id, _uid) is optional; without
// it only public records are visible and code downloads fail.
func New(cfg fetcher.Config) (fetcher.PlatformFetcher, error) {
	f := &Fetcher{
		base:   strings.TrimRight(cfg.BaseOr(DefaultBaseURL), "/"),
		client: fetcher.NewClient(Platform, cfg),
		log:    cfg.Logger,
	}
	f.client.SetHeader("x-lentille-request", "content-only")
	f.client.SetHeader("Referer", DefaultBaseURL+"/")
	if c := strings.TrimSpace(cfg.Cookie); c != "" {
		f.client.SetHeader("Cookie", c)
	}
	f.client.SetThrottle(fetcher.FixedThrottle(ThrottlePause))
	return f, nil
}

func (f *Fetcher) Meta() fetcher.Meta { return meta }

func (f *Fetcher) ProblemURL(problemID string) string {
	return DefaultBaseURL + "/problem/" + problemID
}

func (f *Fetcher) AuthInstructions() string {
	return "请在浏览器登录洛谷后，F12 → Application → Cookies → 复制 __client_id 和 _uid 的值"
}

// getData fetches a page and decodes its currentData object.
func (f *Fetcher) getData(ctx context.Context, op, path string, v any) error {
	resp, err := f.client.Get(ctx, op, f.base+path)
	if err != nil {
		return err
	}
	if resp.StatusCode == 404 {
		return fetcher.E(fetcher.ErrNotFound, Platform, op, nil)
	}
	if resp.StatusCode != 200 {
		return fetcher.Parsef(Platform, op, "unexpected status %d", resp.StatusCode)
	}
	// An HTML body means a captcha or login wall instead of data.
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "json") {
		return fetcher.Parsef(Platform, op, "unexpected content type %q", ct)
	}
	var env struct {
		CurrentData json.RawMessage `json:"currentData"`
	}
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		return fetcher.E(fetcher.ErrParse, Platform, op, err)
	}
	if len(env.CurrentData) == 0 {
		return fetcher.Parsef(Platform, op, "response has no currentData")
	}
	if err := json.Unmarshal(env.CurrentData, v); err != nil {
		return fetcher.E(fetcher.ErrParse, Platform, op, err)
	}
	return nil
}

func (f *Fetcher) ValidateAccount(ctx context.Context, uid string) bool {
	var d struct {
		User *struct {
			UID fetcher.FlexInt `json:"uid"`
		} `json:"user"`
	}
	if err := f.getData(ctx, "user", "/user/"+url.PathEscape(uid), &d); err != nil {
		f.log.Warn().Err(err).Str("uid", uid).Msg("account validation failed")
		return false
	}
	return d.User != nil && d.User.UID.Valid && d.User.UID.V != 0
}

type record struct {
	ID      fetcher.FlexString `json:"id"`
	Problem struct {
		PID string `json:"pid"`
	} `json:"problem"`
	SubmitTime int64           `json:"submitTime"`
	Status     fetcher.FlexInt `json:"status"`
	Score      fetcher.FlexInt `json:"score"`
	Language   fetcher.FlexInt `json:"language"`
	Time       fetcher.FlexInt `json:"time"`
	Memory     fetcher.FlexInt `json:"memory"`
}

type recordPage struct {
	Records struct {
		Result  []record `json:"result"`
		Count   int      `json:"count"`
		PerPage int      `json:"perPage"`
	} `json:"records"`
}

// FetchSubmissions walks the record list newest first, one page per
// iteration step, and stops at the stored cursor or at records older than
// since.
func (f *Fetcher) FetchSubmissions(ctx context.Context, q fetcher.SubmissionQuery) (*fetcher.Batch, error) {
	batch := &fetcher.Batch{Strategy: fetcher.CursorRecordID}
	batch.Submissions = func(yield func(model.NormalizedSubmission, error) bool) {
		for page := 1; page <= maxPages; page++ {
			var d recordPage
			path := fmt.Sprintf("/record/list?user=%s&page=%d", url.QueryEscape(q.ExternalUserID), page)
			if err := f.getData(ctx, "record.list", path, &d); err != nil {
				yield(model.NormalizedSubmission{}, err)
				return
			}
			if len(d.Records.Result) == 0 {
				return
			}
			for _, r := range d.Records.Result {
				id := r.ID.String()
				if q.Cursor != "" && id == q.Cursor {
					return
				}
				at := time.Unix(r.SubmitTime, 0).UTC()
				if q.Since != nil && at.Before(*q.Since) {
					return
				}
				if !yield(f.normalize(r, at), nil) {
					return
				}
			}
			perPage := d.Records.PerPage
			if perPage <= 0 {
				perPage = 20
			}
			if page*perPage >= d.Records.Count {
				return
			}
		}
		f.log.Warn().Int("pages", maxPages).Msg("stopped at page limit")
	}
	return batch, nil
}

func (f *Fetcher) normalize(r record, at time.Time) model.NormalizedSubmission {
	s := model.NormalizedSubmission{
		RecordID:    r.ID.String(),
		ProblemID:   r.Problem.PID,
		Status:      model.StatusUnknown,
		Score:       r.Score.Ptr(),
		TimeMs:      r.Time.Ptr(),
		MemoryKb:    r.Memory.Ptr(),
		SubmittedAt: at,
	}
	if r.Status.Valid {
		s.Status = f.MapStatus(strconv.Itoa(r.Status.V))
	}
	if r.Language.Valid {
		s.Language = language(r.Language.V)
	}
	return s
}

type problemData struct {
	Problem *struct {
		PID          string            `json:"pid"`
		Title        string            `json:"title"`
		Difficulty   int               `json:"difficulty"`
		Tags         []json.RawMessage `json:"tags"`
		Background   string            `json:"background"`
		Description  string            `json:"description"`
		InputFormat  string            `json:"inputFormat"`
		OutputFormat string            `json:"outputFormat"`
		Samples      [][]string        `json:"samples"`
		Hint         string            `json:"hint"`
		Provider     *struct {
			Name string `json:"name"`
		} `json:"provider"`
	} `json:"problem"`
	Tags []struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"tags"`
}

func (f *Fetcher) FetchProblem(ctx context.Context, problemID string) (*model.NormalizedProblem, error) {
	var d problemData
	err := f.getData(ctx, "problem", "/problem/"+url.PathEscape(problemID), &d)
	if err != nil {
		if fetcher.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	p := d.Problem
	if p == nil {
		return nil, nil
	}

	names := make(map[int]string, len(d.Tags))
	for _, t := range d.Tags {
		names[t.ID] = t.Name
	}
	var tags []string
	for _, raw := range p.Tags {
		var obj struct {
			Name string `json:"name"`
		}
		var id int
		switch {
		case json.Unmarshal(raw, &id) == nil:
			if n, ok := names[id]; ok && n != "" {
				tags = append(tags, n)
			} else {
				tags = append(tags, strconv.Itoa(id))
			}
		case json.Unmarshal(raw, &obj) == nil && obj.Name != "":
			tags = append(tags, obj.Name)
		}
	}

	desc := p.Background
	if p.Description != "" {
		if desc != "" {
			desc += "\n\n"
		}
		desc += p.Description
	}
	var examples []string
	for i, s := range p.Samples {
		if len(s) >= 2 {
			examples = append(examples, fmt.Sprintf("输入样例 %d:\n%s\n输出样例 %d:\n%s", i+1, s[0], i+1, s[1]))
		}
	}
	out := &model.NormalizedProblem{
		ProblemID:     problemID,
		Title:         p.Title,
		DifficultyRaw: model.StrPtr(difficultyLabel(p.Difficulty)),
		Tags:          tags,
		URL:           f.ProblemURL(problemID),
		Description:   model.NonEmpty(desc),
		InputDesc:     model.NonEmpty(p.InputFormat),
		OutputDesc:    model.NonEmpty(p.OutputFormat),
		Examples:      model.NonEmpty(strings.Join(examples, "\n\n")),
		Hint:          model.NonEmpty(p.Hint),
	}
	if p.Provider != nil {
		out.Source = model.NonEmpty(p.Provider.Name)
	}
	return out, nil
}

func (f *Fetcher) FetchSubmissionCode(ctx context.Context, recordID string) (string, error) {
	var d struct {
		Record struct {
			SourceCode string `json:"sourceCode"`
		} `json:"record"`
	}
	if err := f.getData(ctx, "record", "/record/"+url.PathEscape(recordID), &d); err != nil {
		return "", err
	}
	return d.Record.SourceCode, nil
}
