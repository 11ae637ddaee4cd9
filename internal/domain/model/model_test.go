package model

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestBackfillFromOnlyFillsMissing(t *testing.T) {
	p := &Problem{
		Title:       "A+B",
		Description: StrPtr("existing statement"),
		InputDesc:   StrPtr(""),
	}
	n := &NormalizedProblem{
		Title:       "A plus B",
		Description: StrPtr("new statement"),
		InputDesc:   StrPtr("two integers"),
		Hint:        StrPtr("use long long"),
	}

	got, changed := p.BackfillFrom(n)
	if !changed {
		t.Fatal("expected a change")
	}
	want := ProblemContent{
		InputDesc: StrPtr("two integers"),
		Hint:      StrPtr("use long long"),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("backfill mismatch (-want +got):\n%s", diff)
	}
}

func TestBackfillFromNoop(t *testing.T) {
	p := &Problem{Title: "x", Description: StrPtr("d"), InputDesc: StrPtr("i"), OutputDesc: StrPtr("o"), Examples: StrPtr("e"), Hint: StrPtr("h")}
	if p.MissingContent() {
		t.Fatal("complete problem reported missing content")
	}
	if _, changed := p.BackfillFrom(&NormalizedProblem{Title: "y", Hint: StrPtr("other")}); changed {
		t.Error("complete problem should not change")
	}
}

func TestJobDuration(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	j := &SyncJob{}
	if j.DurationSeconds(start) != nil {
		t.Error("unstarted job has a duration")
	}
	j.StartedAt = &start
	if got := *j.DurationSeconds(start.Add(90 * time.Second)); got != 90 {
		t.Errorf("duration = %d", got)
	}
	if !Terminal(JobStatusTimedOut) || Terminal(JobStatusRunning) {
		t.Error("Terminal misclassifies")
	}
}
