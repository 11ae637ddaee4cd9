package service

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"sort"
	"sync"
	"time"

	"oj_sync/internal/common"
	"oj_sync/internal/domain/model"
	"oj_sync/internal/fetcher"
)

type memAccounts struct {
	mu   sync.Mutex
	rows map[string]*model.PlatformAccount
}

func newMemAccounts(accts ...*model.PlatformAccount) *memAccounts {
	m := &memAccounts{rows: map[string]*model.PlatformAccount{}}
	for _, a := range accts {
		m.rows[a.ID] = a
	}
	return m
}

func (m *memAccounts) get(id string) *model.PlatformAccount {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.rows[id]
	return &cp
}

func (m *memAccounts) Create(_ context.Context, a *model.PlatformAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.OwnerID == a.OwnerID && r.Platform == a.Platform && r.ExternalUserID == a.ExternalUserID {
			return common.ErrConflict
		}
	}
	a.IsActive = true
	a.HasCookie = a.Cookie != ""
	a.HasPassword = a.Password != ""
	cp := *a
	m.rows[a.ID] = &cp
	return nil
}

func (m *memAccounts) FindByID(_ context.Context, id string) (*model.PlatformAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memAccounts) list(keep func(*model.PlatformAccount) bool) []model.PlatformAccount {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.PlatformAccount
	for _, a := range m.rows {
		if keep(a) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memAccounts) ListByOwner(_ context.Context, ownerID string) ([]model.PlatformAccount, error) {
	return m.list(func(a *model.PlatformAccount) bool { return a.OwnerID == ownerID }), nil
}

func (m *memAccounts) ListActive(context.Context) ([]model.PlatformAccount, error) {
	return m.list(func(a *model.PlatformAccount) bool { return a.IsActive }), nil
}

func (m *memAccounts) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return common.ErrNotFound
	}
	delete(m.rows, id)
	return nil
}

func (m *memAccounts) MarkSyncSuccess(_ context.Context, _ *sql.Tx, id, cursor string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.rows[id]
	a.SyncCursor = &cursor
	a.LastSyncAt = &at
	a.LastSyncError = nil
	a.ConsecutiveFailures = 0
	return nil
}

func (m *memAccounts) RecordSyncFailure(_ context.Context, id, message string, threshold int) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.rows[id]
	a.ConsecutiveFailures++
	a.LastSyncError = &message
	if a.ConsecutiveFailures >= threshold {
		a.IsActive = false
	}
	return a.ConsecutiveFailures, a.IsActive, nil
}

func (m *memAccounts) Reactivate(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[id]
	if !ok {
		return common.ErrNotFound
	}
	a.IsActive = true
	a.ConsecutiveFailures = 0
	return nil
}

// memProblems ignores transactions; tests assert rollback through dbtest
// stats instead.
type memProblems struct {
	mu         sync.Mutex
	byKey      map[string]*model.Problem
	tags       map[string][]string
	backfilled int
}

func newMemProblems() *memProblems {
	return &memProblems{byKey: map[string]*model.Problem{}, tags: map[string][]string{}}
}

func (m *memProblems) FindByPlatformID(_ context.Context, _ *sql.Tx, platform, problemID string) (*model.Problem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byKey[platform+"|"+problemID]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memProblems) Create(_ context.Context, _ *sql.Tx, p *model.Problem) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := p.Platform + "|" + p.ProblemID
	if _, ok := m.byKey[key]; ok {
		return false, nil
	}
	cp := *p
	m.byKey[key] = &cp
	return true, nil
}

func (m *memProblems) Backfill(_ context.Context, _ *sql.Tx, id string, c model.ProblemContent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.byKey {
		if p.ID != id {
			continue
		}
		m.backfilled++
		fill := func(dst **string, v *string) {
			if v != nil && (*dst == nil || **dst == "") {
				*dst = v
			}
		}
		if c.Title != nil && p.Title == "" {
			p.Title = *c.Title
		}
		fill(&p.Description, c.Description)
		fill(&p.InputDesc, c.InputDesc)
		fill(&p.OutputDesc, c.OutputDesc)
		fill(&p.Examples, c.Examples)
		fill(&p.Hint, c.Hint)
		return nil
	}
	return common.ErrNotFound
}

func (m *memProblems) AddTags(_ context.Context, _ *sql.Tx, id string, tags []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tags[id] = append(m.tags[id], tags...)
	return nil
}

func (m *memProblems) ProblemIDs(_ context.Context, _ *sql.Tx, platform string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]bool{}
	for _, p := range m.byKey {
		if p.Platform == platform {
			out[p.ProblemID] = true
		}
	}
	return out, nil
}

func (m *memProblems) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byKey)
}

type memSubmissions struct {
	mu   sync.Mutex
	rows map[string]*model.Submission // platform|record
	// failInsertAt makes the nth Insert (1-based) fail.
	failInsertAt int
	inserts      int
}

func newMemSubmissions() *memSubmissions {
	return &memSubmissions{rows: map[string]*model.Submission{}}
}

func (m *memSubmissions) Exists(_ context.Context, _ *sql.Tx, platform, recordID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rows[platform+"|"+recordID]
	return ok, nil
}

func (m *memSubmissions) Insert(_ context.Context, _ *sql.Tx, s *model.Submission) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserts++
	if m.failInsertAt > 0 && m.inserts == m.failInsertAt {
		return false, fmt.Errorf("insert: connection reset")
	}
	key := s.Platform + "|" + s.RecordID
	if _, ok := m.rows[key]; ok {
		return false, nil
	}
	cp := *s
	m.rows[key] = &cp
	return true, nil
}

func (m *memSubmissions) SetSourceCode(_ context.Context, id, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.rows {
		if s.ID == id && s.SourceCode == nil {
			s.SourceCode = &code
		}
	}
	return nil
}

func (m *memSubmissions) SolvedProblemIDs(context.Context, *sql.Tx, string) (map[string]bool, error) {
	return map[string]bool{}, nil
}

func (m *memSubmissions) records(accountID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, s := range m.rows {
		if s.AccountID == accountID {
			out = append(out, s.RecordID)
		}
	}
	sort.Strings(out)
	return out
}

func (m *memSubmissions) get(accountID, recordID string) *model.Submission {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.rows {
		if s.AccountID == accountID && s.RecordID == recordID {
			return s
		}
	}
	return nil
}

func (m *memSubmissions) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

type memJobs struct {
	mu   sync.Mutex
	rows map[string]*model.SyncJob
}

func newMemJobs() *memJobs { return &memJobs{rows: map[string]*model.SyncJob{}} }

func (m *memJobs) Create(_ context.Context, job *model.SyncJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.rows[job.ID] = &cp
	return nil
}

func (m *memJobs) FindByID(_ context.Context, id string) (*model.SyncJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.rows[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memJobs) ListByAccount(_ context.Context, accountID string, limit int) ([]model.SyncJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.SyncJob
	for _, j := range m.rows {
		if j.AccountID == accountID {
			out = append(out, *j)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memJobs) FindActive(_ context.Context, accountID string) (*model.SyncJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.rows {
		if j.AccountID == accountID && !model.Terminal(j.Status) {
			cp := *j
			return &cp, nil
		}
	}
	return nil, common.ErrNotFound
}

func (m *memJobs) Claim(_ context.Context, id, workerID string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.rows[id]
	if !ok || j.Status != model.JobStatusPending {
		return false, nil
	}
	j.Status = model.JobStatusRunning
	j.WorkerID = &workerID
	j.StartedAt = &now
	j.HeartbeatAt = &now
	return true, nil
}

func (m *memJobs) Heartbeat(_ context.Context, id string, p model.JobProgress, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.rows[id]; ok {
		j.Progress = p
		j.HeartbeatAt = &now
	}
	return nil
}

func (m *memJobs) Finish(_ context.Context, id, status string, p model.JobProgress, lastError *string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.rows[id]
	if !ok || model.Terminal(j.Status) {
		return nil
	}
	j.Status = status
	j.Progress = p
	j.LastError = lastError
	j.FinishedAt = &now
	return nil
}

func (m *memJobs) CancelPending(_ context.Context, id string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.rows[id]
	if !ok || j.Status != model.JobStatusPending {
		return false, nil
	}
	j.Status = model.JobStatusCancelled
	j.FinishedAt = &now
	return true, nil
}

func (m *memJobs) SweepStale(_ context.Context, before, now time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for _, j := range m.rows {
		if j.Status == model.JobStatusRunning && j.HeartbeatAt != nil && j.HeartbeatAt.Before(before) {
			j.Status = model.JobStatusFailed
			j.FinishedAt = &now
			ids = append(ids, j.ID)
		}
	}
	return ids, nil
}

func (m *memJobs) get(id string) model.SyncJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.rows[id]
}

// scriptFetcher yields a fixed record list lazily and counts what was pulled.
type scriptFetcher struct {
	meta     fetcher.Meta
	records  []model.NormalizedSubmission
	failAt   int // yield an error instead of the nth record (1-based)
	failErr  error
	declare  string
	problems map[string]*model.NormalizedProblem
	probErr  map[string]error
	code     map[string]string

	mu           sync.Mutex
	yielded      int
	problemCalls int
	lastQuery    fetcher.SubmissionQuery
	onYield      func(i int)
}

func newScriptFetcher(platform string, ids ...string) *scriptFetcher {
	f := &scriptFetcher{
		meta:     fetcher.Meta{Platform: platform, Cursor: fetcher.CursorRecordID, SupportsCode: true},
		problems: map[string]*model.NormalizedProblem{},
		probErr:  map[string]error{},
		code:     map[string]string{},
	}
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range ids {
		f.records = append(f.records, model.NormalizedSubmission{
			RecordID:    id,
			ProblemID:   "P1001",
			Status:      model.StatusAC,
			SubmittedAt: base.Add(-time.Duration(i) * time.Minute),
		})
	}
	f.problems["P1001"] = &model.NormalizedProblem{ProblemID: "P1001", Title: "A+B Problem", Tags: []string{"模拟"}}
	return f
}

func (f *scriptFetcher) Meta() fetcher.Meta { return f.meta }

func (f *scriptFetcher) ValidateAccount(context.Context, string) bool { return true }

func (f *scriptFetcher) FetchSubmissions(_ context.Context, q fetcher.SubmissionQuery) (*fetcher.Batch, error) {
	f.mu.Lock()
	f.lastQuery = q
	f.mu.Unlock()
	b := &fetcher.Batch{Strategy: f.meta.Cursor}
	b.Submissions = iter.Seq2[model.NormalizedSubmission, error](func(yield func(model.NormalizedSubmission, error) bool) {
		for i, rec := range f.records {
			f.mu.Lock()
			f.yielded++
			f.mu.Unlock()
			if f.onYield != nil {
				f.onYield(i + 1)
			}
			if f.failAt == i+1 {
				yield(model.NormalizedSubmission{}, f.failErr)
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
	})
	if f.declare != "" {
		b.Declare(f.declare)
	}
	return b, nil
}

func (f *scriptFetcher) FetchProblem(_ context.Context, id string) (*model.NormalizedProblem, error) {
	f.mu.Lock()
	f.problemCalls++
	f.mu.Unlock()
	if err := f.probErr[id]; err != nil {
		return nil, err
	}
	return f.problems[id], nil
}

func (f *scriptFetcher) FetchSubmissionCode(_ context.Context, recordID string) (string, error) {
	code, ok := f.code[recordID]
	if !ok {
		return "", fetcher.E(fetcher.ErrNotFound, f.meta.Platform, "code", nil)
	}
	return code, nil
}

func (f *scriptFetcher) MapStatus(string) model.SubmissionStatus { return model.StatusUnknown }

func (f *scriptFetcher) MapDifficulty(raw string) int {
	if raw == "hard" {
		return 6
	}
	return 1
}

func (f *scriptFetcher) ProblemURL(id string) string { return "https://judge.test/p/" + id }

func (f *scriptFetcher) AuthInstructions() string { return "" }

func (f *scriptFetcher) pulled() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.yielded
}

// staticFactory hands out one fetcher per platform.
type staticFactory map[string]fetcher.PlatformFetcher

func (s staticFactory) New(platform string, _ fetcher.Credentials) (fetcher.PlatformFetcher, error) {
	f, ok := s[platform]
	if !ok {
		return nil, fetcher.E(fetcher.ErrUnknownPlatform, platform, "registry.New", nil)
	}
	return f, nil
}

type chanPublisher chan model.SyncCompleted

func (c chanPublisher) Publish(_ context.Context, ev model.SyncCompleted) error {
	c <- ev
	return nil
}
