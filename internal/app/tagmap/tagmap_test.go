package tagmap

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSplit(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name         string
		platform     string
		raw          []string
		wantMapped   []string
		wantUnmapped []string
	}{
		{
			name:       "static table with fan-out",
			platform:   "luogu",
			raw:        []string{"搜索", "DFS", "线段树"},
			wantMapped: []string{"dfs", "bfs", "segment_tree"},
		},
		{
			name:         "platform specific entry",
			platform:     "bbcoj",
			raw:          []string{"DP", "ST表"},
			wantMapped:   []string{"dp_linear"},
			wantUnmapped: []string{"ST表"},
		},
		{
			name:       "internal name and slug fallbacks",
			platform:   "ybt",
			raw:        []string{" heap ", "Segment Tree", "", "Union Find"},
			wantMapped: []string{"heap", "segment_tree", "union_find"},
		},
		{
			name:         "unknown platform",
			platform:     "atcoder",
			raw:          []string{"贪心"},
			wantUnmapped: []string{"贪心"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			mapped, unmapped := Split(tt.platform, tt.raw)
			if diff := cmp.Diff(tt.wantMapped, mapped); diff != "" {
				t.Errorf("mapped (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantUnmapped, unmapped); diff != "" {
				t.Errorf("unmapped (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMapTagsIsDeterministic(t *testing.T) {
	t.Parallel()
	raw := []string{"排序", "动态规划", "排序"}
	first := MapTags("ctoj", raw)
	for range 5 {
		if diff := cmp.Diff(first, MapTags("ctoj", raw)); diff != "" {
			t.Fatalf("unstable (-first +now):\n%s", diff)
		}
	}
	if diff := cmp.Diff([]string{"sort_basic", "sort_advanced", "dp_linear"}, first); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if !Known("kmp") || Known("kmp2") {
		t.Error("Known")
	}
}
