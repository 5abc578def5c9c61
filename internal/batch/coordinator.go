// Package batch orchestrates multi-file uploads: items are ingested by a
// bounded worker pool, each succeeding or failing independently, while the
// job exposes poll-safe progress snapshots until retention expires.
package batch

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/image-storage/internal/apperr"
	"github.com/aliskhannn/image-storage/internal/model"
	"github.com/aliskhannn/image-storage/internal/notify"
)

// Job states.
const (
	StatusAccepted  = "accepted"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Per-item states.
const (
	ItemPending   = "pending"
	ItemSuccess   = "success"
	ItemFailed    = "failed"
	ItemCancelled = "cancelled"
)

const (
	defaultWorkers   = 4
	defaultMaxFiles  = 20
	defaultRetention = time.Hour
)

// Item is one file of a batch.
type Item struct {
	Name string
	Data []byte
}

// ItemResult is the outcome of one item.
type ItemResult struct {
	Name      string `json:"original_name"`
	Status    string `json:"status"`
	UUID      string `json:"uuid,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Snapshot is a point-in-time view of a job. Once the job is terminal the
// snapshot never changes again.
type Snapshot struct {
	BatchID                string       `json:"batch_id"`
	Status                 string       `json:"status"`
	TotalFiles             int          `json:"total_files"`
	Succeeded              int          `json:"succeeded"`
	Failed                 int          `json:"failed"`
	Pending                int          `json:"pending"`
	Cancelled              int          `json:"cancelled,omitempty"`
	ProgressPercentage     float64      `json:"progress_percentage"`
	EstimatedTimeRemaining *float64     `json:"estimated_time_remaining,omitempty"`
	CreatedAt              time.Time    `json:"created_at"`
	Results                []ItemResult `json:"results"`
}

// objectStore ingests one validated upload.
type objectStore interface {
	Store(ctx context.Context, canonicalPath, originalName string, data []byte) (model.ImageRecord, error)
}

// notifier publishes batch events.
type notifier interface {
	Publish(ctx context.Context, ev notify.Event)
}

// Config bounds coordinator behavior.
type Config struct {
	Workers   int           // worker pool size per batch
	MaxFiles  int           // maximum items per batch
	Retention time.Duration // how long terminal jobs stay pollable
}

// Coordinator tracks all live batch jobs.
type Coordinator struct {
	mu   sync.RWMutex
	jobs map[string]*job

	store     objectStore
	notifier  notifier
	workers   int
	maxFiles  int
	retention time.Duration
}

type job struct {
	mu         sync.Mutex
	id         string
	owner      string
	base       string
	status     string
	cancelled  bool
	createdAt  time.Time
	finishedAt time.Time
	results    []ItemResult
	cancel     context.CancelFunc
}

// New creates a Coordinator, applying defaults for unset config values.
func New(store objectStore, n notifier, cfg Config) *Coordinator {
	c := &Coordinator{
		jobs:      make(map[string]*job),
		store:     store,
		notifier:  n,
		workers:   cfg.Workers,
		maxFiles:  cfg.MaxFiles,
		retention: cfg.Retention,
	}
	if c.workers <= 0 {
		c.workers = defaultWorkers
	}
	if c.maxFiles <= 0 {
		c.maxFiles = defaultMaxFiles
	}
	if c.retention <= 0 {
		c.retention = defaultRetention
	}

	return c
}

// Submit accepts a batch for processing and returns its id immediately.
// Items are processed in the background; each is attempted exactly once.
func (c *Coordinator) Submit(cred model.Credential, canonicalBase string, items []Item) (string, error) {
	if len(items) == 0 {
		return "", apperr.New(apperr.CodeInvalidRequest, "no files provided")
	}
	if len(items) > c.maxFiles {
		return "", apperr.New(apperr.CodeBatchTooLarge, "too many files in one batch").
			WithDetail("max_files", c.maxFiles)
	}

	results := make([]ItemResult, len(items))
	for i, item := range items {
		results[i] = ItemResult{Name: item.Name, Status: ItemPending}
	}

	ctx, cancel := context.WithCancel(context.Background())
	j := &job{
		id:        "batch-" + uuid.New().String(),
		owner:     cred.Name,
		base:      canonicalBase,
		status:    StatusAccepted,
		createdAt: time.Now().UTC(),
		results:   results,
		cancel:    cancel,
	}

	c.mu.Lock()
	c.jobs[j.id] = j
	c.mu.Unlock()

	zlog.Logger.Info().
		Str("batch_id", j.id).
		Str("owner", j.owner).
		Int("total_files", len(items)).
		Msg("batch accepted")

	go c.run(ctx, j, items)

	return j.id, nil
}

// Progress returns a snapshot of the job, or BATCH_NOT_FOUND once the job
// has been evicted (or never existed).
func (c *Coordinator) Progress(batchID string) (Snapshot, error) {
	c.mu.RLock()
	j := c.jobs[batchID]
	c.mu.RUnlock()

	if j == nil {
		return Snapshot{}, apperr.New(apperr.CodeBatchNotFound, "batch not found")
	}

	return j.snapshot(), nil
}

// Cancel stops a running job best-effort: items not yet started are marked
// cancelled, items already started run to completion. Terminal jobs are
// left untouched.
func (c *Coordinator) Cancel(batchID string) error {
	c.mu.RLock()
	j := c.jobs[batchID]
	c.mu.RUnlock()

	if j == nil {
		return apperr.New(apperr.CodeBatchNotFound, "batch not found")
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.status == StatusCompleted || j.status == StatusCancelled {
		return nil
	}

	j.cancelled = true
	j.cancel()

	zlog.Logger.Info().Str("batch_id", j.id).Msg("batch cancellation requested")

	return nil
}

// Run periodically evicts terminal jobs older than the retention window.
// It exits when ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	tick := c.retention / 4
	if tick < time.Second {
		tick = time.Second
	}

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zlog.Logger.Info().Msg("shutdown signal received, stopping batch janitor")
			return
		case <-ticker.C:
			c.evictExpired()
		}
	}
}

func (c *Coordinator) run(ctx context.Context, j *job, items []Item) {
	j.mu.Lock()
	j.status = StatusRunning
	j.mu.Unlock()

	indices := make(chan int, len(items))
	for i := range items {
		indices <- i
	}
	close(indices)

	workers := c.workers
	if workers > len(items) {
		workers = len(items)
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range indices {
				c.processItem(ctx, j, idx, items[idx])
			}
		}()
	}
	wg.Wait()

	j.mu.Lock()
	if j.cancelled {
		j.status = StatusCancelled
	} else {
		j.status = StatusCompleted
	}
	j.finishedAt = time.Now().UTC()
	total := len(j.results)
	succeeded, failed := 0, 0
	for _, r := range j.results {
		switch r.Status {
		case ItemSuccess:
			succeeded++
		case ItemFailed, ItemCancelled:
			failed++
		}
	}
	j.mu.Unlock()

	c.notifier.Publish(context.Background(), notify.BatchCompleted(j.id, total, succeeded, failed))

	zlog.Logger.Info().
		Str("batch_id", j.id).
		Int("succeeded", succeeded).
		Int("failed", failed).
		Msg("batch finished")
}

// processItem ingests one item. Cancellation is honored only before the
// item starts; an item already handed to the store runs to completion,
// which is why the store call runs on a fresh context.
func (c *Coordinator) processItem(ctx context.Context, j *job, idx int, item Item) {
	if ctx.Err() != nil {
		j.mu.Lock()
		j.results[idx].Status = ItemCancelled
		j.mu.Unlock()
		return
	}

	rec, err := c.store.Store(context.Background(), j.base, item.Name, item.Data)

	j.mu.Lock()
	defer j.mu.Unlock()

	if err != nil {
		j.results[idx].Status = ItemFailed
		if e := apperr.From(err); e != nil {
			j.results[idx].ErrorCode = string(e.Code)
			j.results[idx].Error = e.Message
		} else {
			j.results[idx].ErrorCode = string(apperr.CodeInternal)
			j.results[idx].Error = "internal error"
		}
		return
	}

	j.results[idx].Status = ItemSuccess
	j.results[idx].UUID = rec.UUID.String()
}

func (c *Coordinator) evictExpired() {
	now := time.Now().UTC()

	c.mu.Lock()
	defer c.mu.Unlock()

	for id, j := range c.jobs {
		j.mu.Lock()
		terminal := j.status == StatusCompleted || j.status == StatusCancelled
		expired := terminal && now.Sub(j.finishedAt) > c.retention
		j.mu.Unlock()

		if expired {
			delete(c.jobs, id)
			zlog.Logger.Info().Str("batch_id", id).Msg("batch evicted after retention")
		}
	}
}

func (j *job) snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()

	snap := Snapshot{
		BatchID:    j.id,
		Status:     j.status,
		TotalFiles: len(j.results),
		CreatedAt:  j.createdAt,
		Results:    make([]ItemResult, len(j.results)),
	}
	copy(snap.Results, j.results)

	for _, r := range j.results {
		switch r.Status {
		case ItemSuccess:
			snap.Succeeded++
		case ItemFailed:
			snap.Failed++
		case ItemCancelled:
			snap.Cancelled++
		default:
			snap.Pending++
		}
	}

	done := snap.Succeeded + snap.Failed + snap.Cancelled
	if snap.TotalFiles > 0 {
		snap.ProgressPercentage = math.Round(float64(done)/float64(snap.TotalFiles)*1000) / 10
	}

	if j.status == StatusRunning && done > 0 && snap.Pending > 0 {
		perItem := time.Since(j.createdAt).Seconds() / float64(done)
		est := math.Round(perItem*float64(snap.Pending)*10) / 10
		snap.EstimatedTimeRemaining = &est
	}

	return snap
}
