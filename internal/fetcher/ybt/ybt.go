// Package ybt adapts the 一本通 judge (ybt.ssoier.cn). Pages are GBK-encoded
// HTML; the status list is embedded as a JavaScript string.
package ybt

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"golang.org/x/text/encoding/simplifiedchinese"

	"oj_sync/internal/domain/model"
	"oj_sync/internal/fetcher"
)

const (
	Platform       = "ybt"
	DefaultBaseURL = "http://ybt.ssoier.cn:8088"

	pageSize = 20
)

var meta = fetcher.Meta{
	Platform:            Platform,
	DisplayName:         "一本通OJ",
	BaseURL:             DefaultBaseURL,
	RequiresAuth:        true,
	AuthMethod:          fetcher.AuthPassword,
	SupportsCode:        true,
	Cursor:              fetcher.CursorRecordID,
	InvalidatesSessions: true,
}

func Register(r *fetcher.Registry) { r.Register(meta, New) }

var eeVar = regexp.MustCompile(`var\s+ee\s*=\s*"([^"]*)"`)

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
	return DefaultBaseURL + "/problem_show.php?pid=" + problemID
}

func (f *Fetcher) AuthInstructions() string { return "请输入一本通OJ的用户名和密码" }

// page fetches path and decodes the GBK body.
func (f *Fetcher) page(ctx context.Context, op, path string) (string, error) {
	resp, err := f.client.Get(ctx, op, f.base+path)
	if err != nil {
		return "", err
	}
	if resp.StatusCode == 404 {
		return "", fetcher.E(fetcher.ErrNotFound, Platform, op, nil)
	}
	if resp.StatusCode != 200 {
		return "", fetcher.Parsef(Platform, op, "unexpected status %d", resp.StatusCode)
	}
	return decodeGBK(resp.Body), nil
}

func decodeGBK(b []byte) string {
	out, err := simplifiedchinese.GBK.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}

// login posts the form once per instance; the session lives in the cookie jar.
func (f *Fetcher) login(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loggedIn {
		return nil
	}
	if f.password == "" {
		return fetcher.Authf(Platform, "login", "a password is required")
	}
	resp, err := f.client.PostForm(ctx, "login", f.base+"/login.php", url.Values{
		"username": {f.username},
		"password": {f.password},
	})
	if err != nil {
		return err
	}
	body := decodeGBK(resp.Body)
	if strings.Contains(body, "密码错误") || strings.Contains(body, "用户不存在") {
		return fetcher.Authf(Platform, "login", "login rejected for %s", f.username)
	}
	f.loggedIn = true
	f.log.Info().Str("user", f.username).Msg("logged in")
	return nil
}

func (f *Fetcher) ValidateAccount(ctx context.Context, _ string) bool {
	if err := f.login(ctx); err != nil {
		f.log.Warn().Err(err).Msg("account validation failed")
		return false
	}
	return true
}

func (f *Fetcher) FetchSubmissions(ctx context.Context, q fetcher.SubmissionQuery) (*fetcher.Batch, error) {
	if err := f.login(ctx); err != nil {
		return nil, err
	}
	batch := &fetcher.Batch{Strategy: fetcher.CursorRecordID}
	batch.Submissions = func(yield func(model.NormalizedSubmission, error) bool) {
		for start := 0; ; start += pageSize {
			body, err := f.page(ctx, "status", fmt.Sprintf("/status.php?showname=%s&start=%d", url.QueryEscape(q.ExternalUserID), start))
			if err != nil {
				yield(model.NormalizedSubmission{}, err)
				return
			}
			records := ParseStatusRecords(body)
			if len(records) == 0 {
				return
			}
			for _, raw := range records {
				s, ok := f.parseRecord(raw)
				if !ok {
					f.log.Debug().Str("record", truncate(raw, 80)).Msg("skipping malformed record")
					continue
				}
				if q.Cursor != "" && s.RecordID == q.Cursor {
					return
				}
				if q.Since != nil && s.SubmittedAt.Before(*q.Since) {
					return
				}
				if !yield(s, nil) {
					return
				}
			}
			if len(records) < pageSize {
				return
			}
		}
	}
	return batch, nil
}

// ParseStatusRecords extracts the '#'-separated records of the ee variable.
func ParseStatusRecords(page string) []string {
	m := eeVar.FindStringSubmatch(page)
	if m == nil {
		return nil
	}
	var out []string
	for _, r := range strings.Split(m[1], "#") {
		if strings.TrimSpace(r) != "" {
			out = append(out, r)
		}
	}
	return out
}

// parseRecord reads user`flag+runid`pid`result`lang`codelen`time.
func (f *Fetcher) parseRecord(raw string) (model.NormalizedSubmission, bool) {
	fields := strings.Split(raw, "`")
	if len(fields) < 7 || len(fields[1]) < 2 {
		return model.NormalizedSubmission{}, false
	}
	status, score := ParseResult(strings.TrimSpace(fields[3]))
	at, ok := fetcher.ParseTime(fields[6])
	if !ok {
		at = time.Now().UTC()
	}
	return model.NormalizedSubmission{
		RecordID:    fields[1][1:], // first char is the source-visibility flag
		ProblemID:   strings.TrimSpace(fields[2]),
		Status:      status,
		Score:       score,
		Language:    language(strings.TrimSpace(fields[4])),
		SubmittedAt: at,
	}, true
}

func (f *Fetcher) FetchProblem(ctx context.Context, problemID string) (*model.NormalizedProblem, error) {
	body, err := f.page(ctx, "problem", "/problem_show.php?pid="+url.QueryEscape(problemID))
	if err != nil {
		if fetcher.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fetcher.E(fetcher.ErrParse, Platform, "problem", err)
	}
	title := strings.TrimSpace(doc.Find("h3").First().Text())
	// "1001：Hello World" → "Hello World"
	for _, sep := range []string{":", "："} {
		if _, rest, ok := strings.Cut(title, sep); ok {
			title = strings.TrimSpace(rest)
			break
		}
	}
	if title == "" {
		return nil, nil
	}
	return &model.NormalizedProblem{
		ProblemID:   problemID,
		Title:       title,
		URL:         f.ProblemURL(problemID),
		Description: section(doc, body, "题目描述"),
		InputDesc:   section(doc, body, "输入"),
		OutputDesc:  section(doc, body, "输出"),
		Examples:    examples(doc),
		Hint:        section(doc, body, "提示"),
	}, nil
}

var sectionKeywords = []string{"输入", "输出", "提示", "样例", "描述"}

// section prefers the pshow('name','content') script calls and falls back to
// the text following a heading that mentions name.
func section(doc *goquery.Document, body, name string) *string {
	re := regexp.MustCompile(`pshow\s*\(\s*'[^']*` + regexp.QuoteMeta(name) + `[^']*'\s*,\s*'([^']*)'\s*\)`)
	if m := re.FindStringSubmatch(body); m != nil {
		c := strings.NewReplacer(`\'`, `'`, `\"`, `"`, `\n`, "\n").Replace(m[1])
		if c = strings.TrimSpace(html.UnescapeString(c)); c != "" {
			return &c
		}
	}

	var found *string
	doc.Find("h3, h4, b, strong, p, div").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !strings.Contains(strings.TrimSpace(s.Text()), name) {
			return true
		}
		var parts []string
		for sib := s.Next(); sib.Length() > 0; sib = sib.Next() {
			if sib.Is("h3, h4") || (sib.Is("b, strong") && containsAny(sib.Text(), sectionKeywords)) {
				break
			}
			if t := strings.TrimSpace(sib.Text()); t != "" {
				parts = append(parts, t)
			}
		}
		if len(parts) == 0 {
			return true
		}
		joined := strings.Join(parts, "\n")
		found = &joined
		return false
	})
	return found
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// examples pairs consecutive <pre> blocks as input/output.
func examples(doc *goquery.Document) *string {
	pres := doc.Find("pre")
	if pres.Length() == 0 {
		return nil
	}
	var parts []string
	n := 1
	for i := 0; i < pres.Length(); i += 2 {
		in := strings.TrimSpace(pres.Eq(i).Text())
		out := ""
		if i+1 < pres.Length() {
			out = strings.TrimSpace(pres.Eq(i + 1).Text())
		}
		parts = append(parts, fmt.Sprintf("输入样例 %d:\n%s\n输出样例 %d:\n%s", n, in, n, out))
		n++
	}
	s := strings.Join(parts, "\n\n")
	return &s
}

func (f *Fetcher) FetchSubmissionCode(ctx context.Context, recordID string) (string, error) {
	if err := f.login(ctx); err != nil {
		return "", err
	}
	body, err := f.page(ctx, "source", "/show_source.php?runid="+url.QueryEscape(recordID))
	if err != nil {
		return "", err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader([]byte(body)))
	if err != nil {
		return "", fetcher.E(fetcher.ErrParse, Platform, "source", err)
	}
	pre := doc.Find("pre").First()
	if pre.Length() == 0 {
		return "", fetcher.Parsef(Platform, "source", "no source block for run %s", recordID)
	}
	return pre.Text(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
