package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"oj_sync/internal/common"
	"oj_sync/internal/domain/model"
	"oj_sync/internal/fetcher"
)

type metaMap map[string]fetcher.Meta

func (m metaMap) Meta(platform string) (fetcher.Meta, bool) {
	meta, ok := m[platform]
	return meta, ok
}

type recordingQueue struct {
	mu      sync.Mutex
	ready   []string
	delayed map[string]time.Time
	err     error
}

func (q *recordingQueue) Enqueue(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.ready = append(q.ready, id)
	return nil
}

func (q *recordingQueue) EnqueueAt(_ context.Context, id string, at time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	if q.delayed == nil {
		q.delayed = map[string]time.Time{}
	}
	q.delayed[id] = at
	return nil
}

type recordingCancel struct{ set []string }

func (c *recordingCancel) Set(_ context.Context, id string) error {
	c.set = append(c.set, id)
	return nil
}

var testMetas = metaMap{
	"luogu": {Platform: "luogu", AuthMethod: fetcher.AuthCookie},
	"ybt":   {Platform: "ybt", AuthMethod: fetcher.AuthPassword, InvalidatesSessions: true},
}

type jobFixture struct {
	svc    *SyncJobService
	jobs   *memJobs
	queue  *recordingQueue
	cancel *recordingCancel
}

// 2024-06-01 12:00 UTC is 20:00 in UTC+8.
var jobNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newJobFixture(policy SessionPolicy, platform string, active bool) *jobFixture {
	acct := testAccount(platform, "")
	acct.IsActive = active
	fx := &jobFixture{jobs: newMemJobs(), queue: &recordingQueue{}, cancel: &recordingCancel{}}
	fx.svc = NewSyncJobService(fx.jobs, newMemAccounts(acct), testMetas, fx.queue, fx.cancel, SyncJobOptions{
		Policy: policy,
		Quiet:  QuietWindow{Start: 2, End: 6},
		Now:    func() time.Time { return jobNow },
	})
	return fx
}

func TestTriggerEnqueuesAndDedupes(t *testing.T) {
	t.Parallel()

	fx := newJobFixture(SessionRefuse, "luogu", true)
	job, created, err := fx.svc.Trigger(t.Context(), "acct-1", model.JobTriggerManual, false)
	if err != nil || !created {
		t.Fatalf("Trigger: created=%v err=%v", created, err)
	}
	if job.Status != model.JobStatusPending || len(fx.queue.ready) != 1 || fx.queue.ready[0] != job.ID {
		t.Errorf("job=%+v queue=%v", job, fx.queue.ready)
	}

	again, created, err := fx.svc.Trigger(t.Context(), "acct-1", model.JobTriggerScheduled, false)
	if err != nil || created || again.ID != job.ID {
		t.Errorf("second trigger: id=%s created=%v err=%v", again.ID, created, err)
	}
	if len(fx.queue.ready) != 1 {
		t.Errorf("duplicate enqueue: %v", fx.queue.ready)
	}
}

func TestTriggerInactiveAccount(t *testing.T) {
	t.Parallel()

	fx := newJobFixture(SessionRefuse, "luogu", false)
	if _, _, err := fx.svc.Trigger(t.Context(), "acct-1", model.JobTriggerManual, false); !errors.Is(err, common.ErrAccountInactive) {
		t.Fatalf("err = %v", err)
	}
}

func TestTriggerSessionPolicies(t *testing.T) {
	t.Parallel()

	t.Run("refuse", func(t *testing.T) {
		t.Parallel()
		fx := newJobFixture(SessionRefuse, "ybt", true)
		if _, _, err := fx.svc.Trigger(t.Context(), "acct-1", model.JobTriggerManual, false); !errors.Is(err, common.ErrSessionConflict) {
			t.Fatalf("err = %v", err)
		}
		if _, created, err := fx.svc.Trigger(t.Context(), "acct-1", model.JobTriggerManual, true); err != nil || !created {
			t.Fatalf("acknowledged trigger: created=%v err=%v", created, err)
		}
	})

	t.Run("proceed", func(t *testing.T) {
		t.Parallel()
		fx := newJobFixture(SessionProceed, "ybt", true)
		job, _, err := fx.svc.Trigger(t.Context(), "acct-1", model.JobTriggerManual, false)
		if err != nil {
			t.Fatal(err)
		}
		if job.Warning == nil || len(fx.queue.ready) != 1 {
			t.Errorf("warning=%v ready=%v", job.Warning, fx.queue.ready)
		}
	})

	t.Run("queue", func(t *testing.T) {
		t.Parallel()
		fx := newJobFixture(SessionQueue, "ybt", true)
		job, _, err := fx.svc.Trigger(t.Context(), "acct-1", model.JobTriggerScheduled, false)
		if err != nil {
			t.Fatal(err)
		}
		// next 02:00 UTC+8 after 20:00 local is 2024-06-01 18:00 UTC
		want := time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)
		if job.NotBefore == nil || !job.NotBefore.Equal(want) {
			t.Fatalf("not_before = %v, want %v", job.NotBefore, want)
		}
		if at := fx.queue.delayed[job.ID]; !at.Equal(want) || len(fx.queue.ready) != 0 {
			t.Errorf("delayed=%v ready=%v", fx.queue.delayed, fx.queue.ready)
		}
	})

	t.Run("cookie platforms are exempt", func(t *testing.T) {
		t.Parallel()
		fx := newJobFixture(SessionRefuse, "luogu", true)
		job, _, err := fx.svc.Trigger(t.Context(), "acct-1", model.JobTriggerManual, false)
		if err != nil || job.Warning != nil || job.NotBefore != nil {
			t.Fatalf("job=%+v err=%v", job, err)
		}
	})
}

func TestQuietWindowNext(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		w    QuietWindow
		now  time.Time
		want time.Time
	}{
		{"inside", QuietWindow{2, 6}, time.Date(2024, 6, 1, 19, 30, 0, 0, time.UTC), time.Date(2024, 6, 1, 19, 30, 0, 0, time.UTC)},
		{"later today", QuietWindow{2, 6}, time.Date(2024, 5, 31, 17, 0, 0, 0, time.UTC), time.Date(2024, 5, 31, 18, 0, 0, 0, time.UTC)},
		{"tomorrow", QuietWindow{2, 6}, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)},
		{"wraps midnight", QuietWindow{23, 5}, time.Date(2024, 6, 1, 16, 30, 0, 0, time.UTC), time.Date(2024, 6, 1, 16, 30, 0, 0, time.UTC)},
	}
	for _, c := range cases {
		if got := c.w.Next(c.now); !got.Equal(c.want) {
			t.Errorf("%s: Next(%v) = %v, want %v", c.name, c.now, got, c.want)
		}
	}
}

func TestTriggerQueueFailureMarksJobFailed(t *testing.T) {
	t.Parallel()

	fx := newJobFixture(SessionRefuse, "luogu", true)
	fx.queue.err = errors.New("redis: connection refused")

	if _, _, err := fx.svc.Trigger(t.Context(), "acct-1", model.JobTriggerManual, false); !errors.Is(err, common.ErrServiceUnavailable) {
		t.Fatalf("err = %v", err)
	}
	jobs, _ := fx.jobs.ListByAccount(t.Context(), "acct-1", 10)
	if len(jobs) != 1 || jobs[0].Status != model.JobStatusFailed {
		t.Fatalf("jobs = %+v", jobs)
	}
	// the failed job must not block the next attempt
	fx.queue.err = nil
	if _, created, err := fx.svc.Trigger(t.Context(), "acct-1", model.JobTriggerManual, false); err != nil || !created {
		t.Errorf("retry: created=%v err=%v", created, err)
	}
}

func TestCancelJob(t *testing.T) {
	t.Parallel()

	fx := newJobFixture(SessionRefuse, "luogu", true)
	ctx := t.Context()

	pending, _, _ := fx.svc.Trigger(ctx, "acct-1", model.JobTriggerManual, false)
	got, err := fx.svc.Cancel(ctx, pending.ID)
	if err != nil || got.Status != model.JobStatusCancelled {
		t.Fatalf("cancel pending: %+v %v", got, err)
	}
	if len(fx.cancel.set) != 0 {
		t.Error("pending cancel should not need the flag")
	}
	if _, err := fx.svc.Cancel(ctx, pending.ID); !errors.Is(err, common.ErrConflict) {
		t.Errorf("cancel terminal: %v", err)
	}

	running, _, _ := fx.svc.Trigger(ctx, "acct-1", model.JobTriggerManual, false)
	fx.jobs.Claim(ctx, running.ID, "w1", jobNow)
	got, err = fx.svc.Cancel(ctx, running.ID)
	if err != nil || got.Status != model.JobStatusRunning {
		t.Fatalf("cancel running: %+v %v", got, err)
	}
	if len(fx.cancel.set) != 1 || fx.cancel.set[0] != running.ID {
		t.Errorf("flag = %v", fx.cancel.set)
	}
}
