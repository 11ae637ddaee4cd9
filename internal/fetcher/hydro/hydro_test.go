package hydro

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"oj_sync/internal/domain/model"
	"oj_sync/internal/fetcher"
)

// fakeHydro serves two domains. "system" holds r5..r1 for alice over three
// pages; "camp" holds one page mixing alice's and bob's records.
type fakeHydro struct {
	logins atomic.Int32
}

func (h *fakeHydro) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/login" {
		h.logins.Add(1)
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["uname"] != "alice" || body["password"] != "pw" {
			fmt.Fprint(w, `{"error":"密码错误"}`)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "s-1", Path: "/"})
		fmt.Fprint(w, `{"url":"/"}`)
		return
	}
	if c, err := r.Cookie("sid"); err != nil || c.Value != "s-1" {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	switch {
	case r.URL.Path == "/home/domain":
		fmt.Fprint(w, `{"ddocs":[{"_id":"system"},{"_id":"camp"}]}`)
	case r.URL.Path == "/d/system/record":
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		ids := map[int][]int{1: {5, 4}, 2: {3, 2}, 3: {1}}[page]
		var docs []string
		for _, id := range ids {
			docs = append(docs, fmt.Sprintf(`{"_id":"r%d","uid":7,"pid":%d,"status":%d,"score":100,"lang":"cc.cc14o2","time":15,"memory":2048000,"judgeAt":"2024-03-0%dT10:00:00.000Z"}`,
				id, 1000+id, []int{2, 1}[id%2], id))
		}
		fmt.Fprintf(w, `{"rdocs":[%s],"udocs":[{"_id":7,"uname":"alice"}],"rpcount":3}`, strings.Join(docs, ","))
	case r.URL.Path == "/d/camp/record":
		fmt.Fprint(w, `{"rdocs":[
			{"_id":"c3","uid":7,"pid":"A","status":3,"judgeAt":1709287200000},
			{"_id":"c2","uid":8,"pid":"A","status":1,"judgeAt":1709200800000},
			{"_id":"c1","uid":7,"pid":"B","status":7,"judgeAt":1709114400000}],
			"udocs":[{"_id":7,"uname":"alice"},{"_id":8,"uname":"bob"}],"rpcount":1}`)
	case r.URL.Path == "/d/system/p/1005":
		fmt.Fprint(w, `{"pdoc":{"title":"A+B","difficulty":5,"tag":["模拟","入门"],
			"content":"Add two numbers.\n\n## 输入格式\n\nTwo ints.\n\n## 输出格式\n\nOne int.\n\n## 样例输入\n\n1 2\n\n## 样例输出\n\n3\n\n## 提示\n\nEasy."}}`)
	case r.URL.Path == "/d/system/record/r5":
		fmt.Fprint(w, `{"rdoc":{"code":"int main(){}"}}`)
	default:
		http.NotFound(w, r)
	}
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

func drain(t *testing.T, f *Fetcher, cursor string) ([]model.NormalizedSubmission, string) {
	t.Helper()
	b, err := f.FetchSubmissions(context.Background(), fetcher.SubmissionQuery{ExternalUserID: "alice", Cursor: cursor})
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
	declared, ok := b.DeclaredCursor()
	if !ok {
		t.Fatal("no cursor declared after a complete walk")
	}
	return got, declared
}

func recordIDs(subs []model.NormalizedSubmission) []string {
	var ids []string
	for _, s := range subs {
		ids = append(ids, s.RecordID)
	}
	return ids
}

func TestFetchSubmissionsPerDomainCursor(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		cursor string
		want   []string
	}{
		{"first run", "", []string{"system/r5", "system/r4", "system/r3", "system/r2", "system/r1", "camp/c3", "camp/c1"}},
		{"composite", "camp/c1|system/r3", []string{"system/r5", "system/r4", "camp/c3"}},
		{"single segment", "system/r4", []string{"system/r5", "camp/c3", "camp/c1"}},
		{"up to date", "camp/c3|system/r5", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newTestFetcher(t, &fakeHydro{}, "pw")
			got, declared := drain(t, f, tt.cursor)
			if diff := cmp.Diff(tt.want, recordIDs(got)); diff != "" {
				t.Errorf("records (-want +got):\n%s", diff)
			}
			if declared != "camp/c3|system/r5" {
				t.Errorf("declared = %q", declared)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()
	site := &fakeHydro{}
	f := newTestFetcher(t, site, "pw")
	got, _ := drain(t, f, "")
	want := model.NormalizedSubmission{
		RecordID:    "system/r5",
		ProblemID:   "system/1005",
		Status:      model.StatusAC,
		Score:       model.IntPtr(100),
		Language:    model.StrPtr("cc.cc14o2"),
		TimeMs:      model.IntPtr(15),
		MemoryKb:    model.IntPtr(2000),
		SubmittedAt: time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC),
	}
	if diff := cmp.Diff(want, got[0]); diff != "" {
		t.Errorf("first (-want +got):\n%s", diff)
	}
	c3 := got[5]
	if c3.Status != model.StatusTLE || c3.Score != nil || c3.MemoryKb != nil {
		t.Errorf("c3 = %+v", c3)
	}
	if !c3.SubmittedAt.Equal(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("c3 time = %v", c3.SubmittedAt)
	}
	if site.logins.Load() != 1 {
		t.Errorf("logins = %d", site.logins.Load())
	}
}

func TestBadPasswordIsAuthError(t *testing.T) {
	t.Parallel()
	f := newTestFetcher(t, &fakeHydro{}, "nope")
	_, err := f.FetchSubmissions(context.Background(), fetcher.SubmissionQuery{ExternalUserID: "alice"})
	if !errors.Is(err, fetcher.ErrAuth) {
		t.Fatalf("err = %v, want ErrAuth", err)
	}
	if f.ValidateAccount(context.Background(), "alice") {
		t.Error("bad password validated")
	}
	if ok := newTestFetcher(t, &fakeHydro{}, "pw").ValidateAccount(context.Background(), "alice"); !ok {
		t.Error("good account rejected")
	}
}

func TestFetchProblemAndCode(t *testing.T) {
	t.Parallel()
	f := newTestFetcher(t, &fakeHydro{}, "pw")
	ctx := context.Background()
	p, err := f.FetchProblem(ctx, "system/1005")
	if err != nil {
		t.Fatal(err)
	}
	if p.Title != "A+B" || *p.DifficultyRaw != "5" || p.URL != "https://ctoj.ac/d/system/p/1005" {
		t.Errorf("problem = %+v", p)
	}
	if *p.Description != "Add two numbers." || *p.InputDesc != "Two ints." || *p.OutputDesc != "One int." || *p.Hint != "Easy." {
		t.Errorf("sections = %q %q %q %q", *p.Description, *p.InputDesc, *p.OutputDesc, *p.Hint)
	}
	if *p.Examples != "1 2\n\n3" {
		t.Errorf("examples = %q", *p.Examples)
	}
	if diff := cmp.Diff([]string{"模拟", "入门"}, p.Tags); diff != "" {
		t.Errorf("tags (-want +got):\n%s", diff)
	}

	missing, err := f.FetchProblem(ctx, "system/404")
	if err != nil || missing != nil {
		t.Errorf("missing = %v, %v", missing, err)
	}
	if _, err := f.FetchProblem(ctx, "1005"); !errors.Is(err, fetcher.ErrParse) {
		t.Errorf("bare id err = %v", err)
	}
	if code, err := f.FetchSubmissionCode(ctx, "system/r5"); err != nil || code != "int main(){}" {
		t.Errorf("code = %q, %v", code, err)
	}
}

func TestCursorRoundTrip(t *testing.T) {
	t.Parallel()
	c := ParseCursor("b/2| a/1|junk|/x")
	if diff := cmp.Diff(Cursor{"a": "1", "b": "2"}, c); diff != "" {
		t.Errorf("parse (-want +got):\n%s", diff)
	}
	if c.String() != "a/1|b/2" {
		t.Errorf("string = %q", c.String())
	}
	if ParseCursor("").String() != "" {
		t.Error("empty cursor")
	}
}

func TestMappings(t *testing.T) {
	t.Parallel()
	f := &Fetcher{}
	for raw, want := range map[string]model.SubmissionStatus{
		"0": model.StatusPending, "1": model.StatusAC, "6": model.StatusRE,
		"21": model.StatusJudging, "31": model.StatusWA, "99": model.StatusUnknown, "x": model.StatusUnknown,
	} {
		if got := f.MapStatus(raw); got != want {
			t.Errorf("MapStatus(%q) = %s, want %s", raw, got, want)
		}
	}
	for raw, want := range map[string]int{"10": 7, "5": 4, "3": 2, "0": 0, "-4": 0, "": 0} {
		if got := f.MapDifficulty(raw); got != want {
			t.Errorf("MapDifficulty(%q) = %d, want %d", raw, got, want)
		}
	}
}
