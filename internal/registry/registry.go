// Package registry implements the Task Registry (spec §4.6): the
// process-wide map from task id to TaskRecord, persisted so a restarted
// process can still answer get_download_status for tasks it didn't create
// this run.
package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kagedl/resumedl/internal/corerrors"
	"github.com/kagedl/resumedl/internal/logging"
	"github.com/kagedl/resumedl/internal/model"
)

// DefaultPath is where the registry persists task records by default.
const DefaultPath = "./tasks.json"

// DefaultMaxAge is the default retention window for SweepExpired, matching
// the resume store's default (spec §4.6, §4.7).
const DefaultMaxAge = 7 * 24 * time.Hour

// Filter narrows List to a subset of tasks (spec §6 list_downloads).
type Filter struct {
	Status model.Status // empty means any status
	Limit  int          // 0 means unlimited
	Offset int
}

// Registry is the process-wide, mutex-guarded task_id -> TaskRecord map.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]*model.TaskRecord
	path  string
	log   zerolog.Logger
}

// New loads an existing registry file at path, or starts empty if path is
// missing or empty -- cold start must never fail just because nothing has
// been persisted yet (spec §9).
func New(path string) (*Registry, error) {
	if path == "" {
		path = DefaultPath
	}
	r := &Registry{
		tasks: make(map[string]*model.TaskRecord),
		path:  path,
		log:   logging.For("registry"),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, corerrors.Wrap(corerrors.ClassifyTransportError(err), "reading task registry", err)
	}
	if len(data) == 0 {
		return r, nil
	}
	var records []model.TaskRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, corerrors.Wrap(corerrors.CodeFSOther, "parsing task registry", err)
	}
	for i := range records {
		rec := records[i]
		r.tasks[rec.ID] = &rec
	}
	r.log.Debug().Int("tasks", len(r.tasks)).Msg("task registry loaded")
	return r, nil
}

// persist writes the full registry to disk via a temp-file-then-rename
// sequence, matching the resume store's durability pattern. Callers must
// already hold r.mu.
func (r *Registry) persist() error {
	records := make([]*model.TaskRecord, 0, len(r.tasks))
	for _, rec := range r.tasks {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].CreatedAt.Before(records[j].CreatedAt) })

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return corerrors.Wrap(corerrors.CodeFSOther, "marshaling task registry", err)
	}
	dir := filepath.Dir(r.path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return corerrors.Wrap(corerrors.ClassifyTransportError(err), "creating registry directory", err)
		}
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return corerrors.Wrap(corerrors.ClassifyTransportError(err), "writing task registry", err)
	}
	return os.Rename(tmp, r.path)
}

// Create registers a new task record and persists it.
func (r *Registry) Create(rec model.TaskRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tasks[rec.ID]; exists {
		return corerrors.New(corerrors.CodeInvalidConfig, "task id already exists")
	}
	stored := rec
	r.tasks[rec.ID] = &stored
	return r.persist()
}

// Get returns a copy of the task record for id.
func (r *Registry) Get(id string) (model.TaskRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.tasks[id]
	if !ok {
		return model.TaskRecord{}, corerrors.ErrTaskNotFound
	}
	return *rec, nil
}

// Update applies mutate to the task record for id under the registry lock
// and persists the result. mutate must not retain rec beyond the call.
func (r *Registry) Update(id string, mutate func(rec *model.TaskRecord) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.tasks[id]
	if !ok {
		return corerrors.ErrTaskNotFound
	}
	if err := mutate(rec); err != nil {
		return err
	}
	rec.UpdatedAt = time.Now()
	return r.persist()
}

// Delete removes a task record, used by the supplemented delete_download
// tool. Only terminal tasks may be deleted; callers enforce that via
// Get before calling Delete.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[id]; !ok {
		return corerrors.ErrTaskNotFound
	}
	delete(r.tasks, id)
	return r.persist()
}

// List returns task records matching filter, newest first.
func (r *Registry) List(filter Filter) []model.TaskRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]model.TaskRecord, 0, len(r.tasks))
	for _, rec := range r.tasks {
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		all = append(all, *rec)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	if filter.Offset > 0 {
		if filter.Offset >= len(all) {
			return nil
		}
		all = all[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(all) {
		all = all[:filter.Limit]
	}
	return all
}

// SweepExpired deletes terminal task records older than maxAge (default
// DefaultMaxAge), the retention policy supplementing spec §4.6's base task
// lifecycle. Non-terminal tasks are never swept regardless of age.
func (r *Registry) SweepExpired(maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for id, rec := range r.tasks {
		if !rec.Status.Terminal() {
			continue
		}
		if rec.UpdatedAt.Before(cutoff) {
			delete(r.tasks, id)
			removed++
		}
	}
	if removed > 0 {
		if err := r.persist(); err != nil {
			return removed, err
		}
		r.log.Info().Int("removed", removed).Msg("swept expired task records")
	}
	return removed, nil
}

// Stats is the supplemented get_stats tool's shape, modeled on an
// aggregate download-manager summary: counts by status plus totals.
type Stats struct {
	TotalTasks      int   `json:"total_tasks"`
	ByStatus        map[model.Status]int `json:"by_status"`
	TotalBytes      int64 `json:"total_bytes_downloaded"`
	ActiveDownloads int   `json:"active_downloads"`
}

// Stats computes a snapshot summary across every task in the registry.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := Stats{ByStatus: make(map[model.Status]int)}
	for _, rec := range r.tasks {
		s.TotalTasks++
		s.ByStatus[rec.Status]++
		s.TotalBytes += rec.Progress.DownloadedSize
		if rec.Status == model.StatusDownloading {
			s.ActiveDownloads++
		}
	}
	return s
}
