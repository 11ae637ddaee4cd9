// Package hydro adapts judges built on Hydro. The registered instance is
// ctoj.ac. A user's records are spread over every domain they belong to, so
// record and problem ids are namespaced as "domain/id".
package hydro

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
	Platform       = "ctoj"
	DefaultBaseURL = "https://ctoj.ac"
)

var meta = fetcher.Meta{
	Platform:            Platform,
	DisplayName:         "CTOJ (酷思未来)",
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
	domains  []string
}

func New(cfg fetcher.Config) (fetcher.PlatformFetcher, error) {
	f := &Fetcher{
		base:     strings.TrimRight(cfg.BaseOr(DefaultBaseURL), "/"),
		username: cfg.ExternalUserID,
		password: cfg.Password,
		client:   fetcher.NewClient(Platform, cfg),
		log:      cfg.Logger,
	}
	f.client.SetHeader("Accept", "application/json")
	return f, nil
}

func (f *Fetcher) Meta() fetcher.Meta { return meta }

func (f *Fetcher) ProblemURL(problemID string) string {
	if domain, pid, ok := strings.Cut(problemID, "/"); ok {
		return fmt.Sprintf("%s/d/%s/p/%s", DefaultBaseURL, domain, pid)
	}
	return DefaultBaseURL + "/p/" + problemID
}

func (f *Fetcher) AuthInstructions() string {
	return "请输入CTOJ (酷思未来) 的用户名和密码，系统会自动登录获取数据"
}

func (f *Fetcher) login(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loggedIn {
		return nil
	}
	if f.password == "" {
		return fetcher.Authf(Platform, "login", "a password is required")
	}
	var res map[string]json.RawMessage
	body := map[string]string{"uname": f.username, "password": f.password}
	if err := f.client.PostJSON(ctx, "login", f.base+"/login", body, &res); err != nil {
		return err
	}
	// Hydro answers a successful login with a redirect target.
	if _, ok := res["url"]; !ok {
		msg := string(res["error"])
		return fetcher.Authf(Platform, "login", "login rejected %s", msg)
	}
	f.loggedIn = true
	f.log.Info().Str("user", f.username).Msg("logged in")
	return nil
}

// userDomains lists the domains the user belongs to, once per instance.
func (f *Fetcher) userDomains(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	cached := f.domains
	f.mu.Unlock()
	if cached != nil {
		return cached, nil
	}
	var d struct {
		DDocs []struct {
			ID string `json:"_id"`
		} `json:"ddocs"`
	}
	if err := f.client.GetJSON(ctx, "domains", f.base+"/home/domain", &d); err != nil {
		return nil, err
	}
	domains := make([]string, 0, len(d.DDocs))
	for _, doc := range d.DDocs {
		if doc.ID != "" {
			domains = append(domains, doc.ID)
		}
	}
	f.mu.Lock()
	f.domains = domains
	f.mu.Unlock()
	f.log.Debug().Strs("domains", domains).Msg("resolved user domains")
	return domains, nil
}

// ValidateAccount requires a working login and at least one domain.
func (f *Fetcher) ValidateAccount(ctx context.Context, _ string) bool {
	if err := f.login(ctx); err != nil {
		f.log.Warn().Err(err).Msg("account validation failed")
		return false
	}
	domains, err := f.userDomains(ctx)
	if err != nil || len(domains) == 0 {
		f.log.Warn().Err(err).Msg("login ok but no domains")
		return false
	}
	return true
}

type recordDoc struct {
	ID      string             `json:"_id"`
	UID     fetcher.FlexString `json:"uid"`
	PID     fetcher.FlexString `json:"pid"`
	Status  fetcher.FlexInt    `json:"status"`
	Score   fetcher.FlexInt    `json:"score"`
	Lang    string             `json:"lang"`
	Time    fetcher.FlexInt    `json:"time"`
	Memory  fetcher.FlexInt    `json:"memory"`
	JudgeAt fetcher.FlexString `json:"judgeAt"`
}

type recordPage struct {
	RDocs []recordDoc `json:"rdocs"`
	UDocs []struct {
		ID    fetcher.FlexString `json:"_id"`
		UName string             `json:"uname"`
	} `json:"udocs"`
	RPCount int `json:"rpcount"`
}

// FetchSubmissions walks every domain newest first. Each domain stops at its
// own cursor segment; after a complete walk the batch declares the combined
// cursor "d1/rid|d2/rid".
func (f *Fetcher) FetchSubmissions(ctx context.Context, q fetcher.SubmissionQuery) (*fetcher.Batch, error) {
	if err := f.login(ctx); err != nil {
		return nil, err
	}
	domains, err := f.userDomains(ctx)
	if err != nil {
		return nil, err
	}
	prev := ParseCursor(q.Cursor)
	batch := &fetcher.Batch{Strategy: fetcher.CursorRecordID}
	batch.Submissions = func(yield func(model.NormalizedSubmission, error) bool) {
		next := Cursor{}
		for d, id := range prev {
			next[d] = id
		}
		for _, domain := range domains {
			newest, ok := f.walkDomain(ctx, domain, prev[domain], q, yield)
			if !ok {
				return
			}
			if newest != "" {
				next[domain] = newest
			}
		}
		batch.Declare(next.String())
	}
	return batch, nil
}

// walkDomain yields one domain's records. It returns the newest record id
// seen and false if iteration must stop.
func (f *Fetcher) walkDomain(ctx context.Context, domain, stopAt string, q fetcher.SubmissionQuery,
	yield func(model.NormalizedSubmission, error) bool) (string, bool) {
	newest := ""
	for page := 1; ; page++ {
		path := fmt.Sprintf("/d/%s/record?uidOrName=%s&page=%d", url.PathEscape(domain), url.QueryEscape(q.ExternalUserID), page)
		var d recordPage
		if err := f.client.GetJSON(ctx, "records", f.base+path, &d); err != nil {
			yield(model.NormalizedSubmission{}, err)
			return "", false
		}
		if len(d.RDocs) == 0 {
			return newest, true
		}
		names := make(map[string]string, len(d.UDocs))
		for _, u := range d.UDocs {
			names[u.ID.String()] = u.UName
		}
		for _, r := range d.RDocs {
			uid := r.UID.String()
			if uid != q.ExternalUserID && names[uid] != q.ExternalUserID {
				continue
			}
			if stopAt != "" && r.ID == stopAt {
				return newest, true
			}
			s := f.normalize(domain, r)
			if q.Since != nil && s.SubmittedAt.Before(*q.Since) {
				return newest, true
			}
			if newest == "" {
				newest = r.ID
			}
			if !yield(s, nil) {
				return newest, false
			}
		}
		if page >= d.RPCount {
			return newest, true
		}
	}
}

func (f *Fetcher) normalize(domain string, r recordDoc) model.NormalizedSubmission {
	at, ok := fetcher.ParseTime(r.JudgeAt.String())
	if !ok {
		at = time.Now().UTC()
	}
	s := model.NormalizedSubmission{
		RecordID:    domain + "/" + r.ID,
		ProblemID:   domain + "/" + r.PID.String(),
		Status:      model.StatusUnknown,
		Score:       r.Score.Ptr(),
		Language:    model.NonEmpty(r.Lang),
		TimeMs:      r.Time.Ptr(),
		SubmittedAt: at,
	}
	if r.Status.Valid {
		s.Status = f.MapStatus(strconv.Itoa(r.Status.V))
	}
	if r.Memory.Valid {
		s.MemoryKb = model.IntPtr(r.Memory.V / 1024)
	}
	return s
}

func (f *Fetcher) FetchProblem(ctx context.Context, problemID string) (*model.NormalizedProblem, error) {
	domain, pid, ok := strings.Cut(problemID, "/")
	if !ok {
		return nil, fetcher.Parsef(Platform, "problem", "problem id %q is not domain/pid", problemID)
	}
	if err := f.login(ctx); err != nil {
		return nil, err
	}
	var d struct {
		PDoc *struct {
			Title      string             `json:"title"`
			Content    string             `json:"content"`
			Difficulty fetcher.FlexString `json:"difficulty"`
			Tag        []string           `json:"tag"`
		} `json:"pdoc"`
	}
	err := f.client.GetJSON(ctx, "problem", fmt.Sprintf("%s/d/%s/p/%s", f.base, url.PathEscape(domain), url.PathEscape(pid)), &d)
	if err != nil {
		if fetcher.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if d.PDoc == nil {
		return nil, nil
	}
	sec := ParseContent(d.PDoc.Content)
	return &model.NormalizedProblem{
		ProblemID:     problemID,
		Title:         d.PDoc.Title,
		DifficultyRaw: model.NonEmpty(d.PDoc.Difficulty.String()),
		Tags:          d.PDoc.Tag,
		URL:           f.ProblemURL(problemID),
		Description:   sec.Description,
		InputDesc:     sec.Input,
		OutputDesc:    sec.Output,
		Examples:      sec.Examples,
		Hint:          sec.Hint,
	}, nil
}

func (f *Fetcher) FetchSubmissionCode(ctx context.Context, recordID string) (string, error) {
	domain, rid, ok := strings.Cut(recordID, "/")
	if !ok {
		return "", fetcher.Parsef(Platform, "record", "record id %q is not domain/id", recordID)
	}
	if err := f.login(ctx); err != nil {
		return "", err
	}
	var d struct {
		RDoc struct {
			Code string `json:"code"`
		} `json:"rdoc"`
	}
	if err := f.client.GetJSON(ctx, "record", fmt.Sprintf("%s/d/%s/record/%s", f.base, url.PathEscape(domain), url.PathEscape(rid)), &d); err != nil {
		return "", err
	}
	return d.RDoc.Code, nil
}
