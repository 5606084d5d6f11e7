// Package exports writes point-in-time snapshots of the store to a blob store,
// on demand and on a cron schedule.
package exports

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"socialcore/internal/blob"
	"socialcore/internal/infra/persistence/memory"
)

// Format names the snapshot encoding.
type Format string

const (
	// FormatJSON writes indented JSON.
	FormatJSON Format = "json"
	// FormatYAML writes YAML with two-space indentation.
	FormatYAML Format = "yaml"
)

// ParseFormat accepts json or yaml; empty means json.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatYAML:
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown export format %q", s)
	}
}

func (f Format) contentType() string {
	if f == FormatYAML {
		return "application/yaml"
	}
	return "application/json"
}

// Status describes the lifecycle stage of an export.
type Status string

const (
	// StatusQueued marks an export waiting for the worker.
	StatusQueued Status = "queued"
	// StatusRunning marks the export currently being written.
	StatusRunning Status = "running"
	// StatusSucceeded marks an export whose artifact is stored.
	StatusSucceeded Status = "succeeded"
	// StatusFailed marks an export that could not be encoded or stored.
	StatusFailed Status = "failed"
)

// Trigger records what requested an export.
type Trigger string

const (
	// TriggerManual is an export requested through the API.
	TriggerManual Trigger = "manual"
	// TriggerSchedule is an export fired by the cron schedule.
	TriggerSchedule Trigger = "schedule"
)

// Counts summarizes a snapshot.
type Counts struct {
	Users       int `json:"users"`
	Profiles    int `json:"profiles"`
	Posts       int `json:"posts"`
	MemberTypes int `json:"memberTypes"`
}

// Record tracks one export request.
type Record struct {
	ID          string     `json:"id"`
	Status      Status     `json:"status"`
	Trigger     Trigger    `json:"trigger"`
	Format      Format     `json:"format"`
	Key         string     `json:"key,omitempty"`
	SizeBytes   int64      `json:"sizeBytes,omitempty"`
	Counts      *Counts    `json:"counts,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// SnapshotSource yields the state to export.
type SnapshotSource interface {
	Snapshot() memory.Snapshot
}

// Logger matches the method set of *slog.Logger used here.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// KeyPrefix roots every snapshot key in the blob store.
const KeyPrefix = "snapshots/"

// DefaultRetention bounds the records a worker keeps.
const DefaultRetention = 256

// ErrQueueFull is returned when too many exports are pending.
var ErrQueueFull = errors.New("export queue full")

// Worker executes exports asynchronously, one at a time.
type Worker struct {
	source SnapshotSource
	store  blob.Store
	format Format
	logger Logger
	now    func() time.Time

	queue  chan string
	mu     sync.RWMutex
	jobs   map[string]*Record
	retain int
	cron   *cron.Cron

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Worker.
type Option func(*Worker)

// WithLogger sets the worker logger.
func WithLogger(l Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithClock overrides the time source used for keys and timestamps.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) {
		if now != nil {
			w.now = now
		}
	}
}

// WithRetention caps the number of records kept. Once the cap is exceeded the
// oldest finished records are dropped; queued and running ones are kept.
func WithRetention(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.retain = n
		}
	}
}

// NewWorker constructs an export worker writing format-encoded snapshots to store.
func NewWorker(source SnapshotSource, store blob.Store, format Format, opts ...Option) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		source: source,
		store:  store,
		format: format,
		logger: noopLogger{},
		now:    func() time.Time { return time.Now().UTC() },
		queue:  make(chan string, 32),
		jobs:   make(map[string]*Record),
		retain: DefaultRetention,
		ctx:    ctx,
		cancel: cancel,
	}
	if w.format == "" {
		w.format = FormatJSON
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Schedule registers a cron spec (standard five fields or descriptors such as
// @hourly) that enqueues an export each time it fires. It takes effect on Start.
func (w *Worker) Schedule(spec string) error {
	if w.cron == nil {
		w.cron = cron.New()
	}
	_, err := w.cron.AddFunc(spec, func() {
		if _, err := w.Enqueue(w.ctx, TriggerSchedule); err != nil {
			w.logger.Warn("scheduled export not queued", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule exports %q: %w", spec, err)
	}
	return nil
}

// Start begins processing export requests and the schedule, if any.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
	if w.cron != nil {
		w.cron.Start()
	}
}

// Stop halts the schedule and the worker and waits for the current export.
func (w *Worker) Stop(ctx context.Context) error {
	if w.cron != nil {
		<-w.cron.Stop().Done()
	}
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case id := <-w.queue:
			w.process(id)
		}
	}
}

// Enqueue schedules an export and returns the queued record.
func (w *Worker) Enqueue(_ context.Context, trigger Trigger) (Record, error) {
	rec := &Record{
		ID:        uuid.NewString(),
		Status:    StatusQueued,
		Trigger:   trigger,
		Format:    w.format,
		CreatedAt: w.now(),
	}
	w.mu.Lock()
	w.jobs[rec.ID] = rec
	w.prune()
	w.mu.Unlock()
	select {
	case w.queue <- rec.ID:
		return *rec, nil
	default:
		w.mu.Lock()
		delete(w.jobs, rec.ID)
		w.mu.Unlock()
		return Record{}, ErrQueueFull
	}
}

// prune drops the oldest finished records while more than retain are held.
// Callers hold w.mu.
func (w *Worker) prune() {
	for len(w.jobs) > w.retain {
		var oldest *Record
		for _, rec := range w.jobs {
			if rec.Status != StatusSucceeded && rec.Status != StatusFailed {
				continue
			}
			if oldest == nil || rec.CreatedAt.Before(oldest.CreatedAt) ||
				(rec.CreatedAt.Equal(oldest.CreatedAt) && rec.ID < oldest.ID) {
				oldest = rec
			}
		}
		if oldest == nil {
			return
		}
		delete(w.jobs, oldest.ID)
	}
}

// Get returns the record for id.
func (w *Worker) Get(id string) (Record, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	rec, ok := w.jobs[id]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// List returns every known record, oldest first.
func (w *Worker) List() []Record {
	w.mu.RLock()
	out := make([]Record, 0, len(w.jobs))
	for _, rec := range w.jobs {
		out = append(out, *rec)
	}
	w.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Artifacts lists the snapshots present in the blob store.
func (w *Worker) Artifacts(ctx context.Context) ([]blob.Info, error) {
	return w.store.List(ctx, KeyPrefix)
}

func (w *Worker) update(id string, fn func(*Record)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if rec, ok := w.jobs[id]; ok {
		fn(rec)
	}
}

func (w *Worker) process(id string) {
	w.update(id, func(r *Record) { r.Status = StatusRunning })
	key, info, counts, err := w.export(w.ctx, id)
	completed := w.now()
	w.update(id, func(r *Record) {
		r.CompletedAt = &completed
		if err != nil {
			r.Status = StatusFailed
			r.Error = err.Error()
			return
		}
		r.Status = StatusSucceeded
		r.Key = key
		r.SizeBytes = info.Size
		r.Counts = &counts
	})
	if err != nil {
		w.logger.Warn("export failed", "id", id, "error", err)
		return
	}
	w.logger.Info("export stored", "id", id, "key", key, "bytes", info.Size)
}

func (w *Worker) export(ctx context.Context, id string) (string, blob.Info, Counts, error) {
	snap := w.source.Snapshot()
	counts := Counts{
		Users:       len(snap.Users),
		Profiles:    len(snap.Profiles),
		Posts:       len(snap.Posts),
		MemberTypes: len(snap.MemberTypes),
	}
	payload, err := Encode(snap, w.format)
	if err != nil {
		return "", blob.Info{}, counts, err
	}
	key := fmt.Sprintf("%s%s-%s.%s", KeyPrefix, w.now().Format("20060102T150405Z"), id, w.format)
	info, err := w.store.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{
		ContentType: w.format.contentType(),
		Metadata: map[string]string{
			"export-id": id,
			"users":     strconv.Itoa(counts.Users),
			"posts":     strconv.Itoa(counts.Posts),
			"profiles":  strconv.Itoa(counts.Profiles),
		},
	})
	if err != nil {
		return "", blob.Info{}, counts, fmt.Errorf("store snapshot: %w", err)
	}
	return key, info, counts, nil
}

// Encode renders a snapshot in the given format.
func Encode(snap memory.Snapshot, format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(snap); err != nil {
			return nil, fmt.Errorf("encode yaml snapshot: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case FormatJSON, "":
		data, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode json snapshot: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
}
