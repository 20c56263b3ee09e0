// Package jobs runs scrape batches in the background and keeps a bounded,
// expiring registry of their progress.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/semaphore"

	"github.com/kalambet/bidfetch/internal/scrape"
)

// ErrNotFound is returned for unknown or expired job ids.
var ErrNotFound = errors.New("job not found")

type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Snapshot is a point-in-time copy of a job.
type Snapshot struct {
	ID          string          `json:"job_id"`
	RunID       string          `json:"run_id"`
	Kind        scrape.Kind     `json:"kind"`
	Status      Status          `json:"status"`
	Identifiers []string        `json:"identifiers"`
	Results     []scrape.Result `json:"results"`
	Current     string          `json:"current,omitempty"`
	Progress    string          `json:"progress"`
	Error       string          `json:"error,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// Runner executes one job.
type Runner interface {
	Run(ctx context.Context, kind scrape.Kind, params scrape.Params, runID string, obs scrape.Observer) ([]scrape.Result, error)
}

type job struct {
	mu   sync.Mutex
	snap Snapshot
}

func (j *job) snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	s := j.snap
	s.Identifiers = append([]string(nil), j.snap.Identifiers...)
	s.Results = append([]scrape.Result(nil), j.snap.Results...)
	if j.snap.CompletedAt != nil {
		t := *j.snap.CompletedAt
		s.CompletedAt = &t
	}
	return s
}

// Options bounds the manager.
type Options struct {
	Capacity      int
	TTL           time.Duration
	MaxConcurrent int
	Logger        *slog.Logger
}

// Manager accepts jobs, runs them through a Runner with bounded
// concurrency and answers status queries.
type Manager struct {
	runner Runner
	ctx    context.Context
	logger *slog.Logger

	seq  atomic.Int64
	jobs *expirable.LRU[string, *job]
	sem  *semaphore.Weighted
	wg   sync.WaitGroup
}

// NewManager creates a Manager. Runs observe ctx only, so cancelling it is
// the shutdown signal.
func NewManager(ctx context.Context, runner Runner, opts Options) *Manager {
	if opts.Capacity <= 0 {
		opts.Capacity = 200
	}
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		runner: runner,
		ctx:    ctx,
		logger: logger.With("component", "jobs"),
		jobs:   expirable.NewLRU[string, *job](opts.Capacity, nil, opts.TTL),
		sem:    semaphore.NewWeighted(int64(opts.MaxConcurrent)),
	}
}

// Submit registers a job and starts it in the background.
func (m *Manager) Submit(kind scrape.Kind, params scrape.Params) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("unknown job kind %q", kind)
	}
	if err := m.ctx.Err(); err != nil {
		return "", fmt.Errorf("job manager stopped: %w", err)
	}

	id := "job_" + strconv.FormatInt(m.seq.Add(1), 10)
	j := &job{snap: Snapshot{
		ID:          id,
		RunID:       uuid.NewString(),
		Kind:        kind,
		Status:      StatusProcessing,
		Identifiers: params.Identifiers(),
		Results:     []scrape.Result{},
		Progress:    "Queued",
		StartedAt:   time.Now().UTC(),
	}}
	m.jobs.Add(id, j)

	m.wg.Add(1)
	go m.run(j, kind, params)
	return id, nil
}

func (m *Manager) run(j *job, kind scrape.Kind, params scrape.Params) {
	defer m.wg.Done()
	id, runID := j.snap.ID, j.snap.RunID
	logger := m.logger.With("job_id", id, "run_id", runID, "kind", string(kind))

	if err := m.sem.Acquire(m.ctx, 1); err != nil {
		m.complete(j, nil, fmt.Errorf("job cancelled before start: %w", err))
		return
	}
	defer m.sem.Release(1)

	logger.Info("job started", "identifiers", len(j.snap.Identifiers))
	obs := &observer{m: m, j: j}
	results, err := m.runner.Run(m.ctx, kind, params, runID, obs)
	m.complete(j, results, err)
	if err != nil {
		logger.Warn("job failed", "error", err)
		return
	}
	logger.Info("job completed", "results", len(results))
}

// complete records the terminal state. Results streamed through the
// observer are kept when the run returned none.
func (m *Manager) complete(j *job, results []scrape.Result, err error) {
	j.mu.Lock()
	now := time.Now().UTC()
	j.snap.CompletedAt = &now
	if len(results) > len(j.snap.Results) {
		j.snap.Results = append([]scrape.Result(nil), results...)
	}
	j.snap.Current = ""
	if err != nil {
		j.snap.Status = StatusFailed
		j.snap.Error = err.Error()
		j.snap.Progress = "Failed: " + err.Error()
	} else {
		j.snap.Status = StatusCompleted
		j.snap.Progress = "Completed"
	}
	j.mu.Unlock()
	m.touch(j)
}

// touch re-adds j so that updates refresh its recency.
func (m *Manager) touch(j *job) {
	if _, ok := m.jobs.Peek(j.snap.ID); ok {
		m.jobs.Add(j.snap.ID, j)
	}
}

// Status returns a copy of the job's current state.
func (m *Manager) Status(id string) (Snapshot, error) {
	j, ok := m.jobs.Get(id)
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return j.snapshot(), nil
}

// List returns every retained job, newest first.
func (m *Manager) List() []Snapshot {
	values := m.jobs.Values()
	out := make([]Snapshot, 0, len(values))
	for _, j := range values {
		out = append(out, j.snapshot())
	}
	sort.Slice(out, func(a, b int) bool {
		return jobNumber(out[a].ID) > jobNumber(out[b].ID)
	})
	return out
}

func jobNumber(id string) int64 {
	n, _ := strconv.ParseInt(strings.TrimPrefix(id, "job_"), 10, 64)
	return n
}

// Wait blocks until every submitted job has returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}

type observer struct {
	m *Manager
	j *job
}

func (o *observer) Step(state scrape.State, identifier, progress string) {
	o.j.mu.Lock()
	if identifier != "" {
		o.j.snap.Current = identifier
	}
	o.j.snap.Progress = progress
	o.j.mu.Unlock()
	o.m.touch(o.j)
}

func (o *observer) Result(r scrape.Result) {
	o.j.mu.Lock()
	o.j.snap.Results = append(o.j.snap.Results, r)
	o.j.mu.Unlock()
	o.m.touch(o.j)
}
