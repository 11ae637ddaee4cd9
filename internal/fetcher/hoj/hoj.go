// Package hoj adapts judges running the HOJ open-source platform. The
// registered instance is www.bbcoj.cn.
package hoj

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"oj_sync/internal/domain/model"
	"oj_sync/internal/fetcher"
)

const (
	Platform       = "bbcoj"
	DefaultBaseURL = "https://www.bbcoj.cn"

	pageSize = 20
)

var meta = fetcher.Meta{
	Platform:            Platform,
	DisplayName:         "BBC OJ",
	BaseURL:             DefaultBaseURL,
	RequiresAuth:        true,
	AuthMethod:          fetcher.AuthPassword,
	SupportsCode:        true,
	Cursor:              fetcher.CursorRecordID,
	InvalidatesSessions: true,
}

func Register(r *fetcher.Registry) { r.Register(meta, New) }

type Fetcher struct {
	base     string
	username string
	password string
	client   *fetcher.Client
	log      zerolog.Logger

	mu       sync.Mutex
	loggedIn bool
}

func New(cfg fetcher.Config) (fetcher.PlatformFetcher, error) {
	return &Fetcher{
		base:     strings.TrimRight(cfg.BaseOr(DefaultBaseURL), "/"),
		username: cfg.ExternalUserID,
		password: cfg.Password,
		client:   fetcher.NewClient(Platform, cfg),
		log:      cfg.Logger,
	}, nil
}

func (f *Fetcher) Meta() fetcher.Meta { return meta }

func (f *Fetcher) ProblemURL(problemID string) string {
	return DefaultBaseURL + "/problem/" + problemID
}

func (f *Fetcher) AuthInstructions() string {
	return "请输入BBC OJ的用户名和密码，系统会自动登录获取数据"
}

// apiResponse is HOJ's {status, msg, data} envelope.
type apiResponse struct {
	Status int             `json:"status"`
	Msg    string          `json:"msg"`
	Data   json.RawMessage `json:"data"`
}

func (f *Fetcher) api(ctx context.Context, op, path string) (json.RawMessage, error) {
	var env apiResponse
	if err := f.client.GetJSON(ctx, op, f.base+path, &env); err != nil {
		return nil, err
	}
	return checkEnvelope(op, env)
}

func checkEnvelope(op string, env apiResponse) (json.RawMessage, error) {
	switch env.Status {
	case 200:
		return env.Data, nil
	case 401, 403:
		return nil, fetcher.Authf(Platform, op, "token rejected: %s", env.Msg)
	case 404:
		return nil, fetcher.E(fetcher.ErrNotFound, Platform, op, fmt.Errorf("%s", env.Msg))
	}
	return nil, fetcher.Parsef(Platform, op, "api status %d: %s", env.Status, env.Msg)
}

// login exchanges the password for a token once per fetcher instance.
func (f *Fetcher) login(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loggedIn {
		return nil
	}
	if f.password == "" {
		return fetcher.Authf(Platform, "login", "a password is required")
	}
	var env apiResponse
	body := map[string]string{"username": f.username, "password": f.password}
	if err := f.client.PostJSON(ctx, "login", f.base+"/api/login", body, &env); err != nil {
		return err
	}
	if env.Status != 200 {
		return fetcher.Authf(Platform, "login", "login rejected: %s", env.Msg)
	}
	var data struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil || data.Token == "" {
		return fetcher.Authf(Platform, "login", "login returned no token")
	}
	f.client.SetHeader("Authorization", data.Token)
	f.loggedIn = true
	f.log.Info().Str("user", f.username).Msg("logged in")
	return nil
}

// ValidateAccount logs in; HOJ has no public profile lookup by name.
func (f *Fetcher) ValidateAccount(ctx context.Context, _ string) bool {
	if err := f.login(ctx); err != nil {
		f.log.Warn().Err(err).Msg("account validation failed")
		return false
	}
	return true
}

type submission struct {
	SubmitID   fetcher.FlexString `json:"submitId"`
	SubmitTime fetcher.FlexString `json:"submitTime"`
	DisplayPID string             `json:"displayPid"`
	PID        fetcher.FlexString `json:"pid"`
	Status     fetcher.FlexInt    `json:"status"`
	Score      fetcher.FlexInt    `json:"score"`
	Language   string             `json:"language"`
	Time       fetcher.FlexInt    `json:"time"`
	Memory     fetcher.FlexInt    `json:"memory"`
}

func (f *Fetcher) FetchSubmissions(ctx context.Context, q fetcher.SubmissionQuery) (*fetcher.Batch, error) {
	if err := f.login(ctx); err != nil {
		return nil, err
	}
	batch := &fetcher.Batch{Strategy: fetcher.CursorRecordID}
	batch.Submissions = func(yield func(model.NormalizedSubmission, error) bool) {
		for page := 1; ; page++ {
			path := fmt.Sprintf("/api/get-submission-list?limit=%d&currentPage=%d&onlyMine=true", pageSize, page)
			raw, err := f.api(ctx, "submission.list", path)
			if err != nil {
				yield(model.NormalizedSubmission{}, err)
				return
			}
			var d struct {
				Records []submission `json:"records"`
				Total   int          `json:"total"`
			}
			if err := json.Unmarshal(raw, &d); err != nil {
				yield(model.NormalizedSubmission{}, fetcher.E(fetcher.ErrParse, Platform, "submission.list", err))
				return
			}
			if len(d.Records) == 0 {
				return
			}
			for _, r := range d.Records {
				id := r.SubmitID.String()
				if q.Cursor != "" && id == q.Cursor {
					return
				}
				s := f.normalize(r)
				if q.Since != nil && s.SubmittedAt.Before(*q.Since) {
					return
				}
				if !yield(s, nil) {
					return
				}
			}
			if page*pageSize >= d.Total {
				return
			}
		}
	}
	return batch, nil
}

func (f *Fetcher) normalize(r submission) model.NormalizedSubmission {
	at, ok := fetcher.ParseTime(r.SubmitTime.String())
	if !ok {
		f.log.Debug().Str("raw", r.SubmitTime.String()).Msg("unparseable submit time")
		at = time.Now().UTC()
	}
	pid := r.DisplayPID
	if pid == "" {
		pid = r.PID.String()
	}
	s := model.NormalizedSubmission{
		RecordID:    r.SubmitID.String(),
		ProblemID:   pid,
		Status:      model.StatusUnknown,
		Score:       r.Score.Ptr(),
		TimeMs:      r.Time.Ptr(),
		MemoryKb:    r.Memory.Ptr(),
		SubmittedAt: at,
	}
	if r.Status.Valid {
		s.Status = f.MapStatus(strconv.Itoa(r.Status.V))
	}
	if r.Language != "" {
		s.Language = model.StrPtr(language(r.Language))
	}
	return s
}

func (f *Fetcher) FetchProblem(ctx context.Context, problemID string) (*model.NormalizedProblem, error) {
	if err := f.login(ctx); err != nil {
		return nil, err
	}
	raw, err := f.api(ctx, "problem.detail", "/api/get-problem-detail?problemId="+url.QueryEscape(problemID))
	if err != nil {
		if fetcher.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	// Older HOJ versions return the problem unwrapped.
	var d struct {
		Problem *problemDetail `json:"problem"`
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fetcher.E(fetcher.ErrParse, Platform, "problem.detail", err)
	}
	p := d.Problem
	if p == nil {
		p = &problemDetail{}
		if err := json.Unmarshal(raw, p); err != nil {
			return nil, fetcher.E(fetcher.ErrParse, Platform, "problem.detail", err)
		}
	}
	if p.Title == "" {
		return nil, nil
	}

	var examples []string
	for i, ex := range p.Examples {
		examples = append(examples, fmt.Sprintf("输入样例 %d:\n%s\n输出样例 %d:\n%s", i+1, ex.Input, i+1, ex.Output))
	}
	var tags []string
	for _, t := range p.Tags {
		if t.Name != "" {
			tags = append(tags, t.Name)
		}
	}
	return &model.NormalizedProblem{
		ProblemID:     problemID,
		Title:         p.Title,
		DifficultyRaw: model.NonEmpty(p.Difficulty.String()),
		Tags:          tags,
		Source:        model.NonEmpty(p.Source),
		URL:           f.ProblemURL(problemID),
		Description:   model.NonEmpty(p.Description),
		InputDesc:     model.NonEmpty(p.Input),
		OutputDesc:    model.NonEmpty(p.Output),
		Examples:      model.NonEmpty(strings.Join(examples, "\n\n")),
		Hint:          model.NonEmpty(p.Hint),
	}, nil
}

type problemDetail struct {
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Input       string             `json:"input"`
	Output      string             `json:"output"`
	Hint        string             `json:"hint"`
	Source      string             `json:"source"`
	Difficulty  fetcher.FlexString `json:"difficulty"`
	Examples    []struct {
		Input  string `json:"input"`
		Output string `json:"output"`
	} `json:"examples"`
	Tags []struct {
		Name string `json:"name"`
	} `json:"tags"`
}

func (f *Fetcher) FetchSubmissionCode(ctx context.Context, recordID string) (string, error) {
	if err := f.login(ctx); err != nil {
		return "", err
	}
	raw, err := f.api(ctx, "submission.detail", "/api/get-submission-detail?cid=0&submitId="+url.QueryEscape(recordID))
	if err != nil {
		return "", err
	}
	var d struct {
		Submission struct {
			Code string `json:"code"`
		} `json:"submission"`
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return "", fetcher.E(fetcher.ErrParse, Platform, "submission.detail", err)
	}
	return d.Submission.Code, nil
}
