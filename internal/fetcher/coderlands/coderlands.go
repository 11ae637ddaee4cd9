// Package coderlands adapts course.coderlands.com. The site has no record
// feed, so changes are detected by hashing the user's solved/unsolved
// problem sets and submissions are listed per problem.
package coderlands

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"oj_sync/internal/domain/model"
	"oj_sync/internal/fetcher"
)

const (
	Platform       = "coderlands"
	DefaultBaseURL = "https://course.coderlands.com"
)

var meta = fetcher.Meta{
	Platform:     Platform,
	DisplayName:  "代码部落",
	BaseURL:      DefaultBaseURL,
	RequiresAuth: true,
	AuthMethod:   fetcher.AuthCookie,
	SupportsCode: true,
	Cursor:       fetcher.CursorContentHash,
	UsesKnownSet: true,
}

func Register(r *fetcher.Registry) { r.Register(meta, New) }

var (
	uuidRe     = regexp.MustCompile(`^[0-9a-fA-F]{32}$`)
	lessonItem = regexp.MustCompile(`^P(\d+)\s`)
)

type Fetcher struct {
	base   string
	client *fetcher.Client
	log    zerolog.Logger
	uuids  *fetcher.ResolutionCache
}

func New(cfg fetcher.Config) (fetcher.PlatformFetcher, error) {
	cookie := NormalizeCookie(cfg.Cookie)
	if cookie == "" {
		return nil, fetcher.Authf(Platform, "new", "a JSESSIONID cookie is required")
	}
	f := &Fetcher{
		base:   strings.TrimRight(cfg.BaseOr(DefaultBaseURL), "/"),
		client: fetcher.NewClient(Platform, cfg),
		log:    cfg.Logger,
	}
	f.client.SetHeader("Cookie", cookie)
	f.uuids = fetcher.NewResolutionCache(Platform, f.walkLessons)
	return f, nil
}

// NormalizeCookie accepts what users typically paste: a bare JSESSIONID
// value, a name=value pair, or a whole "Cookie:" request header line.
func NormalizeCookie(raw string) string {
	c := strings.TrimSpace(raw)
	if len(c) >= 7 && strings.EqualFold(c[:7], "cookie:") {
		c = strings.TrimSpace(c[7:])
	}
	if c != "" && !strings.Contains(c, "=") {
		c = "JSESSIONID=" + c
	}
	return c
}

func (f *Fetcher) Meta() fetcher.Meta { return meta }

func (f *Fetcher) AuthInstructions() string {
	return "代码部落使用 Cookie 认证，请按以下步骤获取：\n" +
		"1. 在浏览器打开 course.coderlands.com 并登录\n" +
		"2. 按 F12 打开开发者工具\n" +
		"3. 切换到 Application（应用）标签 → Cookies → course.coderlands.com\n" +
		"4. 找到 JSESSIONID，复制其 Value 值\n" +
		"5. 在 Cookie 栏粘贴（直接粘贴值即可，系统会自动补全格式）"
}

// ProblemURL points at the exercise page; problem pages are routed by
// internal id on the client side and have no stable public URL.
func (f *Fetcher) ProblemURL(string) string {
	return f.base + "/web/#/person/center/exercise"
}

type envelope struct {
	Code   int             `json:"code"`
	Msg    string          `json:"msg"`
	Result json.RawMessage `json:"result"`
}

// call performs an API request and unwraps the {code, msg, result} envelope.
// An expired session is reported as ErrAuth.
func (f *Fetcher) call(ctx context.Context, op string, req fetcher.Request) (json.RawMessage, error) {
	resp, err := f.client.Do(ctx, op, req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != 200 {
		return nil, fetcher.Parsef(Platform, op, "unexpected status %d", resp.StatusCode)
	}
	var env envelope
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		return nil, fetcher.E(fetcher.ErrParse, Platform, op, err)
	}
	if env.Code != 1 {
		if env.Code == -1 || strings.Contains(env.Msg, "登录") {
			return nil, fetcher.Authf(Platform, op, "session expired, paste a fresh JSESSIONID cookie (%s)", env.Msg)
		}
		return nil, fetcher.Parsef(Platform, op, "api error code=%d msg=%q", env.Code, env.Msg)
	}
	if len(env.Result) == 0 || string(env.Result) == "null" {
		return resp.Body, nil
	}
	return env.Result, nil
}

func (f *Fetcher) get(ctx context.Context, op, path string) (json.RawMessage, error) {
	return f.call(ctx, op, fetcher.Request{Method: "GET", URL: f.base + path})
}

// unwrapData returns raw.data when present, else raw.
func unwrapData(raw json.RawMessage) json.RawMessage {
	var w struct {
		Data json.RawMessage `json:"data"`
	}
	if json.Unmarshal(raw, &w) == nil && len(w.Data) > 0 && string(w.Data) != "null" {
		return w.Data
	}
	return raw
}

func (f *Fetcher) ValidateAccount(ctx context.Context, _ string) bool {
	raw, err := f.get(ctx, "baseInfo", "/server/student/person/center/baseInfo")
	if err != nil {
		f.log.Warn().Err(err).Msg("account validation failed")
		return false
	}
	var info struct {
		LoginName string `json:"loginName"`
	}
	if err := json.Unmarshal(raw, &info); err != nil || info.LoginName == "" {
		return false
	}
	return true
}

// exercise returns the problem numbers the user has solved and attempted.
func (f *Fetcher) exercise(ctx context.Context) (ac, unac map[string]bool, err error) {
	raw, err := f.call(ctx, "exercise", fetcher.Request{
		Method: "POST",
		URL:    f.base + "/server/student/person/center/exercise",
		Header: map[string][]string{"Content-Type": {"application/json"}},
		Body:   []byte("{}"),
	})
	if err != nil {
		return nil, nil, err
	}
	var res struct {
		DataList []struct {
			AcStr   string `json:"acStr"`
			UnAcStr string `json:"unAcStr"`
		} `json:"dataList"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, nil, fetcher.E(fetcher.ErrParse, Platform, "exercise", err)
	}
	ac, unac = map[string]bool{}, map[string]bool{}
	for _, item := range res.DataList {
		for _, no := range SplitProblemList(item.AcStr) {
			ac[no] = true
		}
		for _, no := range SplitProblemList(item.UnAcStr) {
			unac[no] = true
		}
	}
	return ac, unac, nil
}

// walkLessons maps every problem number reachable from the user's current
// class to its internal id.
func (f *Fetcher) walkLessons(ctx context.Context) (map[string]string, error) {
	raw, err := f.get(ctx, "myls", "/server/student/stady/myls")
	if err != nil {
		return nil, err
	}
	var myls struct {
		ClassInfo struct {
			UUID string `json:"uuid"`
		} `json:"classInfo"`
		LessonInfo []struct {
			UUID       string `json:"uuid"`
			LessonName string `json:"lessonName"`
		} `json:"lessonInfo"`
	}
	if err := json.Unmarshal(raw, &myls); err != nil {
		return nil, fetcher.E(fetcher.ErrParse, Platform, "myls", err)
	}

	found := map[string]string{}
	for _, lesson := range myls.LessonInfo {
		if lesson.UUID == "" {
			continue
		}
		q := url.Values{"uuid": {lesson.UUID}}
		if myls.ClassInfo.UUID != "" {
			q.Set("classUuid", myls.ClassInfo.UUID)
		}
		raw, err := f.get(ctx, "getlesconNew", "/server/student/stady/getlesconNew?"+q.Encode())
		if err != nil {
			if errors.Is(err, fetcher.ErrAuth) || ctx.Err() != nil {
				return found, err
			}
			f.log.Debug().Err(err).Str("lesson", lesson.LessonName).Msg("skipping lesson")
			continue
		}
		var items struct {
			DataList []struct {
				UUID string `json:"uuid"`
				Name string `json:"name"`
			} `json:"dataList"`
		}
		if err := json.Unmarshal(raw, &items); err != nil {
			f.log.Debug().Err(err).Str("lesson", lesson.LessonName).Msg("skipping lesson")
			continue
		}
		for _, it := range items.DataList {
			if m := lessonItem.FindStringSubmatch(it.Name); m != nil && it.UUID != "" {
				found[m[1]] = it.UUID
			}
		}
	}
	f.log.Info().Int("lessons", len(myls.LessonInfo)).Int("problems", len(found)).Msg("lesson walk complete")
	return found, nil
}

// resolve maps "P17", "17" or a raw internal id to the internal id.
func (f *Fetcher) resolve(ctx context.Context, problemID string) (string, error) {
	if uuidRe.MatchString(problemID) {
		return problemID, nil
	}
	return f.uuids.Resolve(ctx, ProblemNumber(problemID))
}

func (f *Fetcher) FetchProblem(ctx context.Context, problemID string) (*model.NormalizedProblem, error) {
	id, err := f.resolve(ctx, problemID)
	if err != nil {
		return nil, err
	}
	q := url.Values{"uuid": {id}, "lessonUuid": {"personalCenter"}}
	raw, err := f.get(ctx, "getClassWorkOne", "/server/student/stady/getClassWorkOne?"+q.Encode())
	if err != nil {
		return nil, err
	}
	var d struct {
		UUID          string             `json:"uuid"`
		ProblemNo     fetcher.FlexString `json:"problemNo"`
		ProblemName   string             `json:"problemName"`
		DifficultLvl  string             `json:"difficultLevel"`
		TagNameString string             `json:"tagNameString"`
		Description   string             `json:"description"`
		InputFormat   string             `json:"inputFormat"`
		OutputFormat  string             `json:"outputFormat"`
		SampleInput   string             `json:"sampleInput"`
		SampleOutput  string             `json:"sampleOutput"`
	}
	data := unwrapData(raw)
	if string(data) == "{}" || string(data) == "null" {
		return nil, nil
	}
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fetcher.E(fetcher.ErrParse, Platform, "getClassWorkOne", err)
	}
	if d.ProblemName == "" && d.ProblemNo == "" {
		return nil, nil
	}

	canonical := problemID
	if d.ProblemNo != "" {
		canonical = "P" + d.ProblemNo.String()
		if d.UUID != "" {
			f.uuids.Put(d.ProblemNo.String(), d.UUID)
		}
	}
	var tags []string
	for _, t := range strings.Split(d.TagNameString, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return &model.NormalizedProblem{
		ProblemID:     canonical,
		Title:         d.ProblemName,
		DifficultyRaw: model.NonEmpty(d.DifficultLvl),
		Tags:          tags,
		URL:           f.ProblemURL(canonical),
		Description:   model.NonEmpty(d.Description),
		InputDesc:     model.NonEmpty(d.InputFormat),
		OutputDesc:    model.NonEmpty(d.OutputFormat),
		Examples:      formatExamples(d.SampleInput, d.SampleOutput),
	}, nil
}

func formatExamples(in, out string) *string {
	var parts []string
	if in != "" {
		parts = append(parts, "**输入样例**\n```\n"+in+"\n```")
	}
	if out != "" {
		parts = append(parts, "**输出样例**\n```\n"+out+"\n```")
	}
	if len(parts) == 0 {
		return nil
	}
	s := strings.Join(parts, "\n\n")
	return &s
}

// FetchSubmissionCode expects a record id of the form "P{no}/{uuid}".
func (f *Fetcher) FetchSubmissionCode(ctx context.Context, recordID string) (string, error) {
	_, sub, ok := strings.Cut(recordID, "/")
	if !ok || sub == "" {
		return "", fetcher.Parsef(Platform, "mDetail", "malformed record id %q", recordID)
	}
	raw, err := f.get(ctx, "mDetail", "/server/student/stady/mDetail?uuid="+url.QueryEscape(sub))
	if err != nil {
		return "", err
	}
	var d struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(unwrapData(raw), &d); err != nil {
		return "", fetcher.E(fetcher.ErrParse, Platform, "mDetail", err)
	}
	return d.Code, nil
}

func (f *Fetcher) String() string { return fmt.Sprintf("coderlands(%s)", f.base) }
