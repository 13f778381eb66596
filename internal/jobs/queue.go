// Package jobs runs cloud upload requests in the background and keeps
// their state across restarts.
package jobs

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MimeLyc/caption-sync/internal/cloud"
	"github.com/MimeLyc/caption-sync/pkg/log"
)

// Executor performs one job. A non-nil error marks the job failed; the
// results are kept either way.
type Executor func(ctx context.Context, job *UploadJob) ([]cloud.UploadResult, error)

type Queue struct {
	workerCount int
	maxJobs     int
	maxAttempts int
	backoff     time.Duration
	store       Store
	logger      *log.Logger

	mu         sync.RWMutex
	jobs       map[string]*UploadJob
	dedupe     map[string]string
	started    bool
	pendingIDs chan string
	ctx        context.Context
	cancel     context.CancelFunc
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

type Option func(*Queue)

func WithLogger(l *log.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

// WithRetry runs a failing job up to attempts times in total, waiting
// backoff times the number of attempts so far between tries.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(q *Queue) {
		if attempts > 0 {
			q.maxAttempts = attempts
		}
		if backoff >= 0 {
			q.backoff = backoff
		}
	}
}

// WithMaxJobs bounds how many finished jobs are remembered.
func WithMaxJobs(n int) Option {
	return func(q *Queue) {
		q.maxJobs = n
	}
}

func NewQueue(workerCount int, store Store, opts ...Option) *Queue {
	if workerCount <= 0 {
		workerCount = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		workerCount: workerCount,
		maxJobs:     1000,
		maxAttempts: 1,
		backoff:     5 * time.Second,
		store:       store,
		logger:      log.GetLogger(),
		jobs:        make(map[string]*UploadJob),
		dedupe:      make(map[string]string),
		pendingIDs:  make(chan string, 1024),
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.hydrateFromStore(context.Background())
	return q
}

// Enqueue adds a pending job. While a job with the same dedupe key is
// pending or running, that job is returned instead and created is false.
func (q *Queue) Enqueue(req EnqueueRequest) (*UploadJob, bool) {
	now := time.Now()

	q.mu.Lock()
	if id, ok := q.dedupe[req.DedupeKey]; ok {
		if existing, exists := q.jobs[id]; exists {
			snapshot := cloneJob(existing)
			q.mu.Unlock()
			return snapshot, false
		}
		delete(q.dedupe, req.DedupeKey)
	}

	job := &UploadJob{
		ID:        uuid.NewString(),
		Source:    req.Source,
		DedupeKey: req.DedupeKey,
		Payload:   req.Payload,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	job.Payload.Files = append([]string(nil), req.Payload.Files...)

	q.jobs[job.ID] = job
	if req.DedupeKey != "" {
		q.dedupe[req.DedupeKey] = job.ID
	}
	started := q.started
	snapshot := cloneJob(job)
	q.mu.Unlock()

	q.persistJob(snapshot)
	if started {
		q.enqueuePendingID(job.ID)
	}
	return snapshot, true
}

func (q *Queue) Get(id string) (*UploadJob, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	job, ok := q.jobs[id]
	if !ok {
		return nil, false
	}
	return cloneJob(job), true
}

// List returns all jobs, oldest first.
func (q *Queue) List() []*UploadJob {
	q.mu.RLock()
	ret := make([]*UploadJob, 0, len(q.jobs))
	for _, job := range q.jobs {
		ret = append(ret, cloneJob(job))
	}
	q.mu.RUnlock()

	sort.Slice(ret, func(i, j int) bool {
		if ret[i].CreatedAt.Equal(ret[j].CreatedAt) {
			return ret[i].ID < ret[j].ID
		}
		return ret[i].CreatedAt.Before(ret[j].CreatedAt)
	})
	return ret
}

// Retry queues a failed job again with a fresh attempt budget.
func (q *Queue) Retry(id string) (*UploadJob, error) {
	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok {
		q.mu.Unlock()
		return nil, ErrJobNotFound
	}
	if job.Status != StatusFailed {
		q.mu.Unlock()
		return nil, ErrJobNotFailed
	}
	if job.DedupeKey != "" {
		if other, busy := q.dedupe[job.DedupeKey]; busy && other != id {
			q.mu.Unlock()
			return nil, ErrJobActive
		}
		q.dedupe[job.DedupeKey] = id
	}
	job.Status = StatusPending
	job.Attempts = 0
	job.Error = ""
	job.Results = nil
	job.UpdatedAt = time.Now()
	started := q.started
	snapshot := cloneJob(job)
	q.mu.Unlock()

	q.logger.Info("Upload job %s queued again", id)
	q.persistJob(snapshot)
	if started {
		q.enqueuePendingID(id)
	}
	return snapshot, nil
}

func (q *Queue) Start(exec Executor) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true

	pending := make([]*UploadJob, 0)
	for _, job := range q.jobs {
		if job.Status == StatusPending {
			pending = append(pending, job)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	ids := make([]string, 0, len(pending))
	for _, job := range pending {
		ids = append(ids, job.ID)
	}
	q.mu.Unlock()

	for _, id := range ids {
		q.enqueuePendingID(id)
	}

	for range q.workerCount {
		q.wg.Add(1)
		go q.worker(exec)
	}
}

// Stop cancels running executors and waits for the workers to exit.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		q.cancel()
		q.wg.Wait()
	})
}

func (q *Queue) worker(exec Executor) {
	defer q.wg.Done()

	for {
		select {
		case <-q.ctx.Done():
			return
		case id := <-q.pendingIDs:
			job, ok := q.markRunning(id)
			if !ok {
				continue
			}

			results, err := exec(q.ctx, job)
			q.markDone(id, results, err)
		}
	}
}

func (q *Queue) enqueuePendingID(id string) {
	select {
	case q.pendingIDs <- id:
	default:
		go func() {
			select {
			case q.pendingIDs <- id:
			case <-q.ctx.Done():
			}
		}()
	}
}

func (q *Queue) markRunning(id string) (*UploadJob, bool) {
	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok || job.Status != StatusPending {
		q.mu.Unlock()
		return nil, false
	}
	job.Status = StatusRunning
	job.Attempts++
	job.UpdatedAt = time.Now()
	snapshot := cloneJob(job)
	q.mu.Unlock()

	q.persistJob(snapshot)
	return snapshot, true
}

func (q *Queue) markDone(id string, results []cloud.UploadResult, err error) {
	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok {
		q.mu.Unlock()
		return
	}
	job.Results = append([]cloud.UploadResult(nil), results...)
	job.UpdatedAt = time.Now()

	var retryIn time.Duration
	var pruned []string
	switch {
	case err == nil:
		job.Status = StatusSuccess
		job.Error = ""
	case job.Attempts < q.maxAttempts && q.ctx.Err() == nil:
		// Still owns its dedupe key while waiting.
		job.Status = StatusPending
		job.Error = err.Error()
		retryIn = q.backoff * time.Duration(job.Attempts)
	default:
		job.Status = StatusFailed
		job.Error = err.Error()
	}
	if job.Status.Terminal() {
		q.releaseDedupeLocked(job)
		pruned = q.pruneTerminalJobsLocked()
	}
	snapshot := cloneJob(job)
	q.mu.Unlock()

	switch snapshot.Status {
	case StatusSuccess:
		q.logger.Info("Upload job %s finished, %d file(s)", id, len(results))
	case StatusPending:
		q.logger.Warn("Upload job %s attempt %d/%d failed, retrying in %s: %v", id, snapshot.Attempts, q.maxAttempts, retryIn, err)
	default:
		q.logger.Warn("Upload job %s failed after %d attempt(s): %v", id, snapshot.Attempts, err)
	}
	q.persistJob(snapshot)
	q.deleteJobsFromStore(pruned)

	if snapshot.Status == StatusPending {
		q.retryAfter(id, retryIn)
	}
}

func (q *Queue) retryAfter(id string, d time.Duration) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
			q.enqueuePendingID(id)
		case <-q.ctx.Done():
		}
	}()
}

func (q *Queue) releaseDedupeLocked(job *UploadJob) {
	if job == nil || job.DedupeKey == "" {
		return
	}
	if id, ok := q.dedupe[job.DedupeKey]; ok && id == job.ID {
		delete(q.dedupe, job.DedupeKey)
	}
}

func (q *Queue) pruneTerminalJobsLocked() []string {
	if q.maxJobs <= 0 || len(q.jobs) <= q.maxJobs {
		return nil
	}

	type candidate struct {
		id        string
		updatedAt time.Time
	}
	terminal := make([]candidate, 0, len(q.jobs))
	for id, job := range q.jobs {
		if job == nil || !job.Status.Terminal() {
			continue
		}
		terminal = append(terminal, candidate{id: id, updatedAt: job.UpdatedAt})
	}
	if len(terminal) == 0 {
		return nil
	}

	sort.Slice(terminal, func(i, j int) bool {
		return terminal[i].updatedAt.Before(terminal[j].updatedAt)
	})

	toRemove := min(len(q.jobs)-q.maxJobs, len(terminal))
	pruned := make([]string, 0, toRemove)
	for i := 0; i < toRemove; i++ {
		id := terminal[i].id
		q.releaseDedupeLocked(q.jobs[id])
		delete(q.jobs, id)
		pruned = append(pruned, id)
	}
	return pruned
}

func (q *Queue) deleteJobsFromStore(ids []string) {
	if q.store == nil || len(ids) == 0 {
		return
	}
	for _, id := range ids {
		if err := q.store.DeleteJob(context.Background(), id); err != nil {
			q.logger.Error("Delete pruned job %s: %v", id, err)
		}
	}
}

// hydrateFromStore reloads persisted jobs. Jobs that were running when the
// process stopped are queued again.
func (q *Queue) hydrateFromStore(ctx context.Context) {
	if q.store == nil {
		return
	}
	loaded, err := q.store.LoadJobs(ctx)
	if err != nil {
		q.logger.Error("Load jobs: %v", err)
		return
	}

	now := time.Now()
	toPersist := make([]*UploadJob, 0)
	q.mu.Lock()
	for _, raw := range loaded {
		if raw == nil || raw.ID == "" {
			continue
		}
		job := cloneJob(raw)
		if job.Status == StatusRunning {
			job.Status = StatusPending
			job.UpdatedAt = now
			toPersist = append(toPersist, cloneJob(job))
		}
		q.jobs[job.ID] = job
		if job.Status == StatusPending && job.DedupeKey != "" {
			q.dedupe[job.DedupeKey] = job.ID
		}
	}
	q.mu.Unlock()

	for _, job := range toPersist {
		q.persistJob(job)
	}
}

func (q *Queue) persistJob(job *UploadJob) {
	if q.store == nil || job == nil {
		return
	}
	if err := q.store.UpsertJob(context.Background(), job); err != nil {
		q.logger.Error("Persist job %s: %v", job.ID, err)
	}
}

func cloneJob(job *UploadJob) *UploadJob {
	if job == nil {
		return nil
	}
	tmp := *job
	tmp.Payload.Files = append([]string(nil), job.Payload.Files...)
	tmp.Results = append([]cloud.UploadResult(nil), job.Results...)
	return &tmp
}
