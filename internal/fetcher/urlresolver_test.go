package fetcher

import "testing"

func TestResolveURL(t *testing.T) {
	t.Parallel()
	tests := []struct {
		url      string
		platform string
		id       string
		ok       bool
	}{
		{"https://www.luogu.com.cn/problem/P1001", "luogu", "P1001", true},
		{"https://www.bbcoj.cn/problem/BA405", "bbcoj", "BA405", true},
		{"https://www.bbcoj.cn/training/53/problem/BA405/full-screen", "bbcoj", "BA405", true},
		{"http://ybt.ssoier.cn:8088/problem_show.php?pid=1234", "ybt", "1234", true},
		{"https://ctoj.ac/d/contest_a/p/T1?tab=x", "ctoj", "contest_a/T1", true},
		{"  https://www.luogu.com.cn/problem/CF1A  ", "luogu", "CF1A", true},
		{"https://example.com/problem/1", "", "", false},
		{"", "", "", false},
	}
	for _, tt := range tests {
		got, ok := ResolveURL(tt.url)
		if ok != tt.ok || got.Platform != tt.platform || got.ProblemID != tt.id {
			t.Errorf("ResolveURL(%q) = %+v, %v; want %s %s %v", tt.url, got, ok, tt.platform, tt.id, tt.ok)
		}
	}
}
