package ybt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"golang.org/x/text/encoding/simplifiedchinese"

	"oj_sync/internal/domain/model"
	"oj_sync/internal/fetcher"
)

func gbk(t *testing.T, s string) []byte {
	t.Helper()
	b, err := simplifiedchinese.GBK.NewEncoder().String(s)
	if err != nil {
		t.Fatal(err)
	}
	return []byte(b)
}

const problemPage = `<html><body>
<h3>1001：Hello, World!</h3>
<script>pshow('【题目描述】','编写一个能够输出&ldquo;Hello,World!&rdquo;的程序。');
pshow('【输入】','无');
pshow('【输出】','Hello,World!');
pshow('【提示】','');</script>
<pre>(无)</pre><pre>Hello,World!</pre>
</body></html>`

// fakeYBT serves 25 records (runs 1025..1001) for user alice.
func fakeYBT(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login.php":
			r.ParseForm()
			if r.PostForm.Get("password") != "pw" {
				w.Write(gbk(t, "<script>alert('密码错误');</script>"))
				return
			}
			http.SetCookie(w, &http.Cookie{Name: "PHPSESSID", Value: "s1"})
			w.Write(gbk(t, "<html>欢迎</html>"))
		case "/status.php":
			if c, err := r.Cookie("PHPSESSID"); err != nil || c.Value != "s1" {
				w.Write(gbk(t, `<script>var ee="";</script>`))
				return
			}
			start, _ := strconv.Atoi(r.URL.Query().Get("start"))
			var recs []string
			for i := 0; i < 20; i++ {
				run := 1025 - start - i
				if run < 1001 {
					break
				}
				result := "Accepted|score:10/10"
				if run%2 == 0 {
					result = "Wrong Answer|score:1/4"
				}
				recs = append(recs, fmt.Sprintf("alice:爱丽丝`1%d`%d`%s`2`512`2024-03-01 10:%02d:00", run, 1000+run%7, result, run-1000))
			}
			w.Write(gbk(t, fmt.Sprintf(`<script>var ee="%s";</script>`, strings.Join(recs, "#"))))
		case "/problem_show.php":
			if r.URL.Query().Get("pid") != "1001" {
				w.Write(gbk(t, "<html><h3></h3></html>"))
				return
			}
			w.Write(gbk(t, problemPage))
		case "/show_source.php":
			w.Write(gbk(t, "<pre>#include &lt;iostream&gt;\n// 注释</pre>"))
		default:
			http.NotFound(w, r)
		}
	})
}

func newTestFetcher(t *testing.T, password string) *Fetcher {
	t.Helper()
	srv := httptest.NewServer(fakeYBT(t))
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

func TestParseResult(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw    string
		status model.SubmissionStatus
		score  *int
	}{
		{"Accepted", model.StatusAC, model.IntPtr(10)},
		{"Accepted|score:4/10", model.StatusAC, model.IntPtr(4)},
		{"Wrong Answer|score:1/3", model.StatusWA, model.IntPtr(3)},
		{"Time Limit Exceeded|7", model.StatusTLE, model.IntPtr(7)},
		{"C", model.StatusCE, nil},
		{"Presentation Error", model.StatusWA, nil},
		{"Output Limit Exceeded", model.StatusRE, nil},
		{"Running", model.StatusJudging, nil},
		{"Waiting", model.StatusPending, nil},
		{"Something New", model.StatusUnknown, nil},
		{"", model.StatusUnknown, nil},
	}
	for _, tt := range tests {
		status, score := ParseResult(tt.raw)
		if status != tt.status || !cmp.Equal(score, tt.score) {
			t.Errorf("ParseResult(%q) = %s, %v; want %s, %v", tt.raw, status, score, tt.status, tt.score)
		}
	}
}

func TestFetchSubmissions(t *testing.T) {
	t.Parallel()
	f := newTestFetcher(t, "pw")
	b, err := f.FetchSubmissions(context.Background(), fetcher.SubmissionQuery{ExternalUserID: "alice"})
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
	if len(got) != 25 {
		t.Fatalf("got %d records, want 25", len(got))
	}
	want := model.NormalizedSubmission{
		RecordID:    "1025",
		ProblemID:   "1003",
		Status:      model.StatusAC,
		Score:       model.IntPtr(10),
		Language:    model.StrPtr("C++"),
		SubmittedAt: time.Date(2024, 3, 1, 2, 25, 0, 0, time.UTC),
	}
	if diff := cmp.Diff(want, got[0]); diff != "" {
		t.Errorf("first record (-want +got):\n%s", diff)
	}
	if got[1].Status != model.StatusWA || *got[1].Score != 2 {
		t.Errorf("second record = %+v", got[1])
	}
}

func TestFetchSubmissionsStopsAtCursor(t *testing.T) {
	t.Parallel()
	f := newTestFetcher(t, "pw")
	b, _ := f.FetchSubmissions(context.Background(), fetcher.SubmissionQuery{ExternalUserID: "alice", Cursor: "1020"})
	var ids []string
	for s, err := range b.Submissions {
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, s.RecordID)
	}
	if diff := cmp.Diff([]string{"1025", "1024", "1023", "1022", "1021"}, ids); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestWrongPassword(t *testing.T) {
	t.Parallel()
	f := newTestFetcher(t, "bad")
	if _, err := f.FetchSubmissions(context.Background(), fetcher.SubmissionQuery{}); !errors.Is(err, fetcher.ErrAuth) {
		t.Fatalf("err = %v, want ErrAuth", err)
	}
}

func TestFetchProblem(t *testing.T) {
	t.Parallel()
	f := newTestFetcher(t, "pw")
	p, err := f.FetchProblem(context.Background(), "1001")
	if err != nil {
		t.Fatal(err)
	}
	want := &model.NormalizedProblem{
		ProblemID:   "1001",
		Title:       "Hello, World!",
		URL:         "http://ybt.ssoier.cn:8088/problem_show.php?pid=1001",
		Description: model.StrPtr("编写一个能够输出“Hello,World!”的程序。"),
		InputDesc:   model.StrPtr("无"),
		OutputDesc:  model.StrPtr("Hello,World!"),
		Examples:    model.StrPtr("输入样例 1:\n(无)\n输出样例 1:\nHello,World!"),
	}
	if diff := cmp.Diff(want, p); diff != "" {
		t.Errorf("problem (-want +got):\n%s", diff)
	}

	missing, err := f.FetchProblem(context.Background(), "9")
	if err != nil || missing != nil {
		t.Errorf("missing = %v, %v", missing, err)
	}
}

func TestFetchSubmissionCode(t *testing.T) {
	t.Parallel()
	f := newTestFetcher(t, "pw")
	code, err := f.FetchSubmissionCode(context.Background(), "1025")
	if err != nil {
		t.Fatal(err)
	}
	if code != "#include <iostream>\n// 注释" {
		t.Errorf("code = %q", code)
	}
}
