package hoj

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"oj_sync/internal/domain/model"
	"oj_sync/internal/fetcher"
)

type fakeHOJ struct {
	logins atomic.Int32
	total  int
}

func (h *fakeHOJ) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/api/login" {
		h.logins.Add(1)
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["username"] != "alice" || body["password"] != "pw" {
			fmt.Fprint(w, `{"status":400,"msg":"用户名或密码错误"}`)
			return
		}
		fmt.Fprint(w, `{"status":200,"data":{"token":"tok-1"}}`)
		return
	}
	if r.Header.Get("Authorization") != "tok-1" {
		fmt.Fprint(w, `{"status":401,"msg":"请先登录"}`)
		return
	}
	switch r.URL.Path {
	case "/api/get-submission-list":
		page, _ := strconv.Atoi(r.URL.Query().Get("currentPage"))
		var recs []string
		for i := 0; i < pageSize; i++ {
			id := h.total - (page-1)*pageSize - i
			if id < 1 {
				break
			}
			recs = append(recs, fmt.Sprintf(`{"submitId":%d,"submitTime":"2024-01-%02dT08:00:00.000+00:00","displayPid":"BA%d","status":%d,"score":null,"language":"C++ With O2","time":3,"memory":"512"}`,
				id, 1+id%28, id, []int{0, -1, 8}[id%3]))
		}
		fmt.Fprintf(w, `{"status":200,"data":{"records":[%s],"total":%d}}`, joinComma(recs), h.total)
	case "/api/get-problem-detail":
		if r.URL.Query().Get("problemId") != "BA405" {
			fmt.Fprint(w, `{"status":404,"msg":"该题号对应的题目不存在"}`)
			return
		}
		fmt.Fprint(w, `{"status":200,"data":{"problem":{"title":"Sum","description":"d","input":"i","output":"o","hint":"","source":"school",
			"difficulty":"中等","examples":[{"input":"1","output":"1"}],"tags":[{"name":"贪心"},{"name":""}]}}}`)
	case "/api/get-submission-detail":
		fmt.Fprint(w, `{"status":200,"data":{"submission":{"code":"#include <cstdio>"}}}`)
	default:
		http.NotFound(w, r)
	}
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ","
		}
		out += p
	}
	return out
}

func newTestFetcher(t *testing.T, h http.Handler, password string) *Fetcher {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	f, err := New(fetcher.Config{
		Credentials: fetcher.Credentials{ExternalUserID: "alice", Password: password},
		BaseURL:     srv.URL,
		Logger:      zerolog.Nop(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return f.(*Fetcher)
}

func TestFetchSubmissionsPaginatesUntilTotal(t *testing.T) {
	t.Parallel()
	site := &fakeHOJ{total: 41}
	f := newTestFetcher(t, site, "pw")
	b, err := f.FetchSubmissions(context.Background(), fetcher.SubmissionQuery{})
	if err != nil {
		t.Fatal(err)
	}
	var got []model.NormalizedSubmission
	for s, err := range b.Submissions {
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, s)
	}
	if len(got) != 41 {
		t.Fatalf("got %d submissions", len(got))
	}
	first := got[0]
	want := model.NormalizedSubmission{
		RecordID:    "41",
		ProblemID:   "BA41",
		Status:      model.StatusWA,
		Language:    model.StrPtr("C++ (O2)"),
		TimeMs:      model.IntPtr(3),
		MemoryKb:    model.IntPtr(512),
		SubmittedAt: time.Date(2024, 1, 14, 8, 0, 0, 0, time.UTC),
	}
	if diff := cmp.Diff(want, first); diff != "" {
		t.Errorf("first (-want +got):\n%s", diff)
	}
	if site.logins.Load() != 1 {
		t.Errorf("logins = %d", site.logins.Load())
	}
}

func TestFetchSubmissionsStopsAtCursor(t *testing.T) {
	t.Parallel()
	f := newTestFetcher(t, &fakeHOJ{total: 41}, "pw")
	b, _ := f.FetchSubmissions(context.Background(), fetcher.SubmissionQuery{Cursor: "30"})
	n := 0
	for _, err := range b.Submissions {
		if err != nil {
			t.Fatal(err)
		}
		n++
	}
	if n != 11 {
		t.Errorf("got %d records before cursor, want 11", n)
	}
}

func TestBadPasswordIsAuthError(t *testing.T) {
	t.Parallel()
	f := newTestFetcher(t, &fakeHOJ{total: 1}, "wrong")
	if _, err := f.FetchSubmissions(context.Background(), fetcher.SubmissionQuery{}); !errors.Is(err, fetcher.ErrAuth) {
		t.Fatalf("err = %v, want ErrAuth", err)
	}
	if f.ValidateAccount(context.Background(), "alice") {
		t.Error("bad password validated")
	}
	noPw := newTestFetcher(t, &fakeHOJ{}, "")
	if _, err := noPw.FetchProblem(context.Background(), "BA405"); !errors.Is(err, fetcher.ErrAuth) {
		t.Errorf("missing password err = %v", err)
	}
}

func TestFetchProblemAndCode(t *testing.T) {
	t.Parallel()
	f := newTestFetcher(t, &fakeHOJ{}, "pw")
	ctx := context.Background()
	p, err := f.FetchProblem(ctx, "BA405")
	if err != nil {
		t.Fatal(err)
	}
	if p.Title != "Sum" || *p.DifficultyRaw != "中等" || p.Hint != nil || *p.Source != "school" {
		t.Errorf("problem = %+v", p)
	}
	if diff := cmp.Diff([]string{"贪心"}, p.Tags); diff != "" {
		t.Errorf("tags (-want +got):\n%s", diff)
	}
	if *p.Examples != "输入样例 1:\n1\n输出样例 1:\n1" {
		t.Errorf("examples = %q", *p.Examples)
	}
	if f.MapDifficulty(*p.DifficultyRaw) != 2 || f.MapDifficulty("12") != 7 || f.MapDifficulty("-3") != 0 {
		t.Error("difficulty mapping")
	}

	missing, err := f.FetchProblem(ctx, "NOPE")
	if err != nil || missing != nil {
		t.Errorf("missing = %v, %v", missing, err)
	}
	if code, err := f.FetchSubmissionCode(ctx, "9"); err != nil || code != "#include <cstdio>" {
		t.Errorf("code = %q, %v", code, err)
	}
}
