// Package orchestrator implements the Download Orchestrator (spec §4.3):
// the component that turns a DownloadConfig into probed server metadata, a
// segmentation plan, a bounded pool of Segment Workers, and -- once every
// segment reports Completed -- a merged, verified output file. It is the
// only package that touches the Task Registry, Resume Store, Segmentation
// Planner, and Segment Worker together, the way the teacher's
// internal.BatchDownload is the one place that wires a scheduler, job
// queue, and downloader implementations together.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/kagedl/resumedl/internal/corerrors"
	"github.com/kagedl/resumedl/internal/hashing"
	"github.com/kagedl/resumedl/internal/logging"
	"github.com/kagedl/resumedl/internal/model"
	"github.com/kagedl/resumedl/internal/planner"
	"github.com/kagedl/resumedl/internal/progress"
	"github.com/kagedl/resumedl/internal/registry"
	"github.com/kagedl/resumedl/internal/resume"
	"github.com/kagedl/resumedl/internal/session"
	"github.com/kagedl/resumedl/internal/worker"
)

// resumeSaveInterval is spec §4.3's "persist the resume record at most
// once every 500ms" throttle.
const resumeSaveInterval = 500 * time.Millisecond

// readChunkBurst matches worker.readChunkSize; a rate.Limiter's burst must
// be at least as large as the biggest single WaitN request it will see.
const readChunkBurst = 64 * 1024

// maxRebalanceAttempts bounds how many times a failed segment is replanned
// and reassigned before the whole task is failed (spec §4.3).
const maxRebalanceAttempts = 3

// stopKind distinguishes why run's context was cancelled, so run knows
// whether to record the task as Paused itself (the Pause path) or to leave
// the terminal state to Cancel, which sets it only after run has quiesced
// (the Cancel path) -- without this, run's own pauseRecord call could run
// concurrently with (or after) Cancel's registry write and silently
// overwrite the terminal Cancelled status back to Paused.
type stopKind int

const (
	stopKindNone stopKind = iota
	stopKindPause
	stopKindCancel
)

// runningTask tracks the live goroutines and cancel func for one
// in-flight download, kept out of the TaskRecord the registry persists.
// done is closed by run as the last thing it does, after every registry
// and disk mutation for this attempt is complete -- Pause and Cancel block
// on it to guarantee the worker pool has actually quiesced before they
// touch the task's part files, resume record, or terminal status.
type runningTask struct {
	cancel   context.CancelFunc
	monitor  *progress.Monitor
	mu       sync.Mutex
	stopKind stopKind
	done     chan struct{}
}

// Orchestrator is the facade's sole collaborator for every download
// lifecycle operation.
type Orchestrator struct {
	sessions *session.Manager
	registry *registry.Registry
	resumes  *resume.Store
	bounds   model.SegmentationBounds
	maxTasks int
	log      zerolog.Logger

	mu      sync.Mutex
	running map[string]*runningTask
	active  int
}

// New wires an orchestrator from its collaborators. maxConcurrentTasks is
// the process-wide Downloading cap from spec §4.6 (0 falls back to 5).
func New(sessions *session.Manager, reg *registry.Registry, resumes *resume.Store, maxConcurrentTasks int) *Orchestrator {
	if maxConcurrentTasks <= 0 {
		maxConcurrentTasks = 5
	}
	return &Orchestrator{
		sessions: sessions,
		registry: reg,
		resumes:  resumes,
		bounds:   model.DefaultSegmentationBounds(),
		maxTasks: maxConcurrentTasks,
		log:      logging.For("orchestrator"),
		running:  make(map[string]*runningTask),
	}
}

// Create registers a new task in Pending state without starting it,
// matching create_task / download_file's task_id-returning contract
// (spec §6) before Start does any network work.
func (o *Orchestrator) Create(cfg model.DownloadConfig) (model.TaskRecord, error) {
	cfg = cfg.Defaults()
	if err := cfg.Validate(); err != nil {
		return model.TaskRecord{}, err
	}

	now := time.Now()
	rec := model.TaskRecord{
		ID:        uuid.NewString(),
		Config:    cfg,
		Status:    model.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.registry.Create(rec); err != nil {
		return model.TaskRecord{}, err
	}
	return rec, nil
}

// Start transitions a task from Pending (or Failed, the retry exception)
// into Downloading and runs it. In WorkModeBlocking it blocks until the
// task reaches a terminal state; otherwise it returns once the task is
// underway, and the caller polls Get for progress (spec §4.3, §4.6).
func (o *Orchestrator) Start(ctx context.Context, taskID string) (model.TaskRecord, error) {
	rec, err := o.registry.Get(taskID)
	if err != nil {
		return model.TaskRecord{}, err
	}
	if rec.Status != model.StatusPending && rec.Status != model.StatusFailed {
		return model.TaskRecord{}, corerrors.New(corerrors.CodeInvalidTransition, fmt.Sprintf("cannot start a task in status %s", rec.Status))
	}

	if err := o.admit(); err != nil {
		return model.TaskRecord{}, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	rt := &runningTask{cancel: cancel, done: make(chan struct{})}
	o.mu.Lock()
	o.running[taskID] = rt
	o.mu.Unlock()

	startedAt := time.Now()
	if err := o.registry.Update(taskID, func(r *model.TaskRecord) error {
		r.Status = model.StatusDownloading
		r.StartedAt = &startedAt
		r.Error = nil
		return nil
	}); err != nil {
		o.release(taskID, rt)
		return model.TaskRecord{}, err
	}

	if rec.Config.WorkMode == model.WorkModeBlocking {
		return o.run(runCtx, taskID, rt), nil
	}

	go o.run(runCtx, taskID, rt)
	return o.registry.Get(taskID)
}

func (o *Orchestrator) admit() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active >= o.maxTasks {
		return corerrors.ErrQueueFull
	}
	o.active++
	return nil
}

// release drops taskID's running-task bookkeeping, but only if rt is still
// the entry o.running holds for it -- a fast Resume could already have
// installed a new runningTask for the same taskID by the time this
// deferred call fires, and deleting unconditionally would drop that one
// instead.
func (o *Orchestrator) release(taskID string, rt *runningTask) {
	o.mu.Lock()
	if o.running[taskID] == rt {
		delete(o.running, taskID)
	}
	if o.active > 0 {
		o.active--
	}
	o.mu.Unlock()
}

// finalizeWorkMode applies work_mode's effect on a task that has just
// reached a terminal status (Completed, Failed, or Cancelled): Temporary
// deletes both the TaskRecord and any resume data, leaving no trace behind
// (spec §4.3 work_mode effect). Persistent is a deliberate no-op -- every
// task's TaskRecord is already persisted by the registry regardless of
// work_mode, so there is nothing extra for Persistent to do.
func (o *Orchestrator) finalizeWorkMode(taskID string, workMode model.WorkMode) {
	if workMode != model.WorkModeTemporary {
		return
	}
	_ = o.resumes.Cleanup(taskID)
	_ = o.registry.Delete(taskID)
}

// run is the full lifecycle of one Downloading task: probe, plan-or-resume,
// spawn workers, aggregate events, merge, verify, and finalize status. It
// always returns with the task in a terminal or Paused state and the
// registry updated to match, and its return value is the last record this
// process will ever see for the task -- if work_mode is Temporary, the
// registry no longer holds it by the time run returns.
func (o *Orchestrator) run(ctx context.Context, taskID string, rt *runningTask) model.TaskRecord {
	defer o.release(taskID, rt)
	defer close(rt.done)
	log := o.log.With().Str("taskId", taskID).Logger()

	rec, err := o.registry.Get(taskID)
	if err != nil {
		log.Error().Err(err).Msg("task vanished before run started")
		return model.TaskRecord{}
	}
	cfg := rec.Config

	sessionID := cfg.SessionID
	if sessionID == "" {
		sessionID = o.sessions.Create("", nil)
	}

	segments, totalSize, meta, planErr := o.probeOrResume(ctx, taskID, cfg, sessionID)
	if planErr != nil {
		return o.fail(taskID, cfg, planErr)
	}

	if err := o.registry.Update(taskID, func(r *model.TaskRecord) error {
		r.ServerMetadata = meta
		r.Progress.TotalSize = totalSize
		r.Progress.Segments = segments
		return nil
	}); err != nil {
		log.Error().Err(err).Msg("failed to record plan")
		return model.TaskRecord{}
	}

	outputDir := filepath.Dir(cfg.OutputPath)
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return o.fail(taskID, cfg, corerrors.Wrap(corerrors.ClassifyTransportError(err), "creating output directory", err))
	}
	partDir := cfg.OutputPath + ".parts"
	if err := os.MkdirAll(partDir, 0755); err != nil {
		return o.fail(taskID, cfg, corerrors.Wrap(corerrors.ClassifyTransportError(err), "creating part directory", err))
	}
	for i := range segments {
		if segments[i].PartPath == "" {
			segments[i].PartPath = filepath.Join(partDir, segments[i].ID+".part")
		}
	}

	monitor := progress.NewMonitor(totalSize)
	rt.mu.Lock()
	rt.monitor = monitor
	rt.mu.Unlock()

	headers, err := o.requestHeaders(sessionID, cfg)
	if err != nil {
		return o.fail(taskID, cfg, err)
	}
	client := o.sessions.Client()

	var limiter *rate.Limiter
	if cfg.MaxBytesPerSec > 0 {
		burst := cfg.MaxBytesPerSec
		if burst < readChunkBurst {
			burst = readChunkBurst
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.MaxBytesPerSec), int(burst))
	}

	finalSegments, runErr := o.runSegments(ctx, taskID, cfg, segments, headers, client, limiter, monitor, totalSize, meta)

	if runErr != nil {
		if corerrors.CodeOf(runErr) == corerrors.CodeCancelled {
			rt.mu.Lock()
			kind := rt.stopKind
			rt.mu.Unlock()
			// stopKindCancel means Cancel is blocked on rt.done waiting for
			// this goroutine to quiesce before it deletes the part files
			// and resume record and writes the terminal Cancelled status
			// itself; writing Paused here would race that write.
			if kind != stopKindCancel {
				o.pauseRecord(taskID, finalSegments, monitor, totalSize, meta)
			}
			rec, _ := o.registry.Get(taskID)
			return rec
		}
		return o.fail(taskID, cfg, runErr)
	}

	final, err := o.finish(taskID, cfg, finalSegments, totalSize, meta)
	if err != nil {
		return o.fail(taskID, cfg, err)
	}
	return final
}

// probeOrResume either loads and validates a resume record, or performs a
// fresh HEAD probe and plans segments from scratch (spec §4.3 step 1-2,
// §4.7).
func (o *Orchestrator) probeOrResume(ctx context.Context, taskID string, cfg model.DownloadConfig, sessionID string) ([]model.Segment, int64, model.ServerMetadata, error) {
	meta, probeErr := o.sessions.Probe(ctx, sessionID, cfg.URL, cfg.Headers)
	if probeErr != nil {
		return nil, 0, model.ServerMetadata{}, probeErr
	}
	var totalSize int64
	if meta.ContentLength != nil {
		totalSize = *meta.ContentLength
	}

	if cfg.EnableResume {
		if rec, err := o.resumes.Load(taskID); err == nil {
			if verr := resume.Validate(rec, meta); verr == nil {
				o.log.Info().Str("taskId", taskID).Msg("resuming from saved record")
				return rec.Segments, rec.TotalSize, meta, nil
			}
			o.log.Warn().Str("taskId", taskID).Msg("resume record stale, replanning from scratch")
			_ = o.resumes.Cleanup(taskID)
		}
	}

	segments, err := planner.Plan(totalSize, cfg.MaxConcurrency, meta.AcceptRanges, model.NetworkGood, o.bounds)
	if err != nil {
		return nil, 0, meta, err
	}
	return segments, totalSize, meta, nil
}

// requestHeaders merges the session's cookies/UA/header-overrides with
// cfg.Headers and a static auth header (if the session's auth kind
// supports it), producing the flat map the Segment Worker sets on every
// ranged GET.
func (o *Orchestrator) requestHeaders(sessionID string, cfg model.DownloadConfig) (map[string]string, error) {
	target, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, corerrors.New(corerrors.CodeInvalidConfig, fmt.Sprintf("invalid url %q", cfg.URL))
	}
	built := o.sessions.BuildHeaders(sessionID, target, cfg.Headers)

	headers := make(map[string]string, len(built))
	for k := range built {
		headers[k] = built.Get(k)
	}

	authHeader, err := o.sessions.StaticAuthHeader(sessionID)
	if err != nil {
		return nil, err
	}
	if authHeader != "" {
		headers["Authorization"] = authHeader
	}
	return headers, nil
}

// runSegments spawns one worker per pending segment, bounded at
// cfg.MaxConcurrency concurrently in flight, aggregates their events into
// monitor and the registry's persisted progress, and persists the resume
// record on progress ticks, at most once per resumeSaveInterval. It
// returns once every segment is either
// Completed or the task is cancelled/exhausted its rebalance attempts.
func (o *Orchestrator) runSegments(ctx context.Context, taskID string, cfg model.DownloadConfig, segments []model.Segment, headers map[string]string, client *http.Client, limiter *rate.Limiter, monitor *progress.Monitor, totalSize int64, meta model.ServerMetadata) ([]model.Segment, error) {
	segCtx, cancelSeg := context.WithCancel(ctx)
	defer cancelSeg()

	// byID, finalResults, rebalanceAttempts, and outstanding are only ever
	// touched by the single consumer loop below, so none of them need a
	// lock despite many worker goroutines running concurrently around it.
	byID := make(map[string]model.Segment, len(segments))
	finalResults := make(map[string]model.Segment, len(segments))
	for _, s := range segments {
		byID[s.ID] = s
	}

	ticks := make(chan worker.Event, 256)
	done := make(chan model.Segment, len(segments)+maxRebalanceAttempts*len(segments))
	sem := make(chan struct{}, cfg.MaxConcurrency)
	outstanding := 0

	spawn := func(seg model.Segment) {
		outstanding++
		sem <- struct{}{}
		go func() {
			defer func() { <-sem }()
			result := worker.Run(segCtx, worker.Params{
				URL:       cfg.URL,
				Segment:   seg,
				Headers:   headers,
				Client:    client,
				Timeout:   cfg.Timeout(),
				Retry:     worker.DefaultRetryPolicy(cfg.RetryCount),
				Algorithm: cfg.Integrity.Algorithm,
				Limiter:   limiter,
				TotalSize: totalSize,
			}, ticks)
			done <- result
		}()
	}

	rebalanceAttempts := make(map[string]int)
	var pending []model.Segment
	for _, s := range segments {
		if s.Status != model.StatusCompleted {
			pending = append(pending, s)
		} else {
			finalResults[s.ID] = s
		}
	}

	lastSave := time.Now()
	var taskErr error

	for _, s := range pending {
		spawn(s)
	}

	for outstanding > 0 {
		select {
		case ev := <-ticks:
			if ev.Kind != worker.EventProgressTick {
				continue
			}
			monitor.Record(ev.DeltaBytes)
			o.touchProgress(taskID, monitor)
			if time.Since(lastSave) >= resumeSaveInterval {
				o.saveResume(taskID, cfg, finalResults, byID, totalSize, meta)
				lastSave = time.Now()
			}

		case seg := <-done:
			outstanding--
			if seg.Status == model.StatusCompleted {
				finalResults[seg.ID] = seg
				continue
			}

			if taskErr != nil {
				// already failing/cancelling; stop reassigning new work but
				// still drain outstanding workers before returning.
				finalResults[seg.ID] = seg
				continue
			}

			if seg.Status == model.StatusPaused {
				finalResults[seg.ID] = seg
				taskErr = corerrors.ErrCancelled
				cancelSeg()
				continue
			}

			attempts := rebalanceAttempts[seg.ID]
			if attempts < maxRebalanceAttempts {
				rebalanceAttempts[seg.ID] = attempts + 1
				if children, split := planner.Rebalance(seg, segmentSlice(byID), o.bounds); split {
					delete(byID, seg.ID)
					for _, child := range children {
						byID[child.ID] = child
						spawn(child)
					}
					continue
				}
				byID[seg.ID] = seg
				spawn(seg)
				continue
			}

			finalResults[seg.ID] = seg
			taskErr = corerrors.New(corerrors.CodeServer5xx, fmt.Sprintf("segment %s exhausted retries and rebalance attempts", seg.ID))
			cancelSeg()
		}
	}

	out := make([]model.Segment, 0, len(finalResults))
	for _, s := range finalResults {
		out = append(out, s)
	}
	sortSegments(out)
	return out, taskErr
}

func segmentSlice(byID map[string]model.Segment) []model.Segment {
	out := make([]model.Segment, 0, len(byID))
	for _, s := range byID {
		out = append(out, s)
	}
	return out
}

func sortSegments(segs []model.Segment) {
	sort.Slice(segs, func(i, j int) bool { return segs[i].Start < segs[j].Start })
}

func (o *Orchestrator) touchProgress(taskID string, monitor *progress.Monitor) {
	snap := monitor.Snapshot()
	_ = o.registry.Update(taskID, func(r *model.TaskRecord) error {
		r.Progress.DownloadedSize = snap.DownloadedSize
		r.Progress.Percentage = snap.Percentage
		r.Progress.Speed = snap.Speed
		r.Progress.ETASeconds = snap.ETASeconds
		return nil
	})
}

func (o *Orchestrator) saveResume(taskID string, cfg model.DownloadConfig, finalResults map[string]model.Segment, byID map[string]model.Segment, totalSize int64, meta model.ServerMetadata) {
	segs := make([]model.Segment, 0, len(byID))
	for id, s := range byID {
		if done, ok := finalResults[id]; ok {
			segs = append(segs, done)
		} else {
			segs = append(segs, s)
		}
	}
	sortSegments(segs)
	_ = o.resumes.Save(model.ResumeRecord{
		TaskID:       taskID,
		URL:          cfg.URL,
		OutputPath:   cfg.OutputPath,
		TotalSize:    totalSize,
		Segments:     segs,
		ETag:         meta.ETag,
		LastModified: meta.LastModified,
		CreatedAt:    time.Now(),
	})
}

// finish merges completed segments into the output file, optionally
// verifies the result, cleans up the resume record, marks the task
// Completed (spec §4.3 step 4-5, §4.4, §4.8), and applies work_mode's
// Temporary deletion effect.
func (o *Orchestrator) finish(taskID string, cfg model.DownloadConfig, segments []model.Segment, totalSize int64, meta model.ServerMetadata) (model.TaskRecord, error) {
	if cfg.Integrity.VerifySegments {
		results, err := hashing.VerifySegments(segments, cfg.Integrity.Algorithm)
		if err != nil {
			return model.TaskRecord{}, err
		}
		for id, res := range results {
			if !res.OK {
				return model.TaskRecord{}, corerrors.New(corerrors.CodeChecksumMismatch, fmt.Sprintf("segment %s checksum mismatch", id))
			}
		}
	}

	if err := mergeSegments(cfg.OutputPath, segments); err != nil {
		return model.TaskRecord{}, corerrors.Wrap(corerrors.CodeMergeError, "merging segments", err)
	}

	var digest string
	if cfg.Integrity.VerifyFinal || cfg.Integrity.ExpectedChecksum != "" {
		result, err := hashing.VerifyFile(cfg.OutputPath, cfg.Integrity.Algorithm, cfg.Integrity.ExpectedChecksum)
		if err != nil {
			return model.TaskRecord{}, err
		}
		if !result.OK {
			os.Remove(cfg.OutputPath)
			return model.TaskRecord{}, corerrors.New(corerrors.CodeChecksumMismatch, fmt.Sprintf("expected %s, got %s", result.Expected, result.Actual))
		}
		digest = result.Actual
	}

	_ = o.resumes.Cleanup(taskID)
	partDir := cfg.OutputPath + ".parts"
	os.RemoveAll(partDir)

	completedAt := time.Now()
	if err := o.registry.Update(taskID, func(r *model.TaskRecord) error {
		r.Status = model.StatusCompleted
		r.CompletedAt = &completedAt
		r.Progress.DownloadedSize = totalSize
		r.Progress.Percentage = 100
		r.Progress.Segments = segments
		if digest != "" {
			for i := range r.Progress.Segments {
				r.Progress.Segments[i].Checksum = ""
			}
		}
		r.ServerMetadata = meta
		return nil
	}); err != nil {
		return model.TaskRecord{}, err
	}

	rec, err := o.registry.Get(taskID)
	if err != nil {
		return model.TaskRecord{}, err
	}
	o.finalizeWorkMode(taskID, cfg.WorkMode)
	return rec, nil
}

// mergeSegments concatenates part files in segment-start order into
// outputPath, deleting the part files only after every one has been
// copied. If any part is missing or short, the partial output is removed
// and all part files are left in place, so a retry does not have to
// refetch them (spec §4.3 step 4).
func mergeSegments(outputPath string, segments []model.Segment) error {
	sorted := make([]model.Segment, len(segments))
	copy(sorted, segments)
	sortSegments(sorted)

	out, err := os.OpenFile(outputPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer out.Close()

	merged := make([]string, 0, len(sorted))
	for _, seg := range sorted {
		in, err := os.Open(seg.PartPath)
		if err != nil {
			os.Remove(outputPath)
			return fmt.Errorf("opening part %s: %w", seg.PartPath, err)
		}
		n, err := io.Copy(out, in)
		in.Close()
		if err != nil {
			os.Remove(outputPath)
			return fmt.Errorf("copying part %s: %w", seg.PartPath, err)
		}
		if seg.Size() > 0 && n != seg.Size() {
			os.Remove(outputPath)
			return fmt.Errorf("part %s short: expected %d bytes, copied %d", seg.PartPath, seg.Size(), n)
		}
		merged = append(merged, seg.PartPath)
	}
	for _, p := range merged {
		os.Remove(p)
	}
	return nil
}

// fail marks a task Failed and applies work_mode's Temporary deletion
// effect, returning the last record the caller will see for it.
func (o *Orchestrator) fail(taskID string, cfg model.DownloadConfig, err error) model.TaskRecord {
	o.log.Error().Err(err).Str("taskId", taskID).Msg("task failed")
	_ = o.registry.Update(taskID, func(r *model.TaskRecord) error {
		r.Status = model.StatusFailed
		r.Error = &model.TaskError{Code: corerrors.CodeOf(err), Message: err.Error()}
		return nil
	})
	rec, getErr := o.registry.Get(taskID)
	o.finalizeWorkMode(taskID, cfg.WorkMode)
	if getErr != nil {
		return model.TaskRecord{}
	}
	return rec
}

func (o *Orchestrator) pauseRecord(taskID string, segments []model.Segment, monitor *progress.Monitor, totalSize int64, meta model.ServerMetadata) {
	snap := monitor.Snapshot()
	_ = o.registry.Update(taskID, func(r *model.TaskRecord) error {
		r.Status = model.StatusPaused
		r.Progress.Segments = segments
		r.Progress.DownloadedSize = snap.DownloadedSize
		r.Progress.TotalSize = totalSize
		r.ServerMetadata = meta
		return nil
	})
}

// Pause requests cooperative cancellation of a Downloading task and blocks
// until the worker pool has quiesced and the task's own goroutine has
// recorded it Paused, leaving it resumable (spec §4.6: Downloading ->
// Paused; spec §8's idempotent-pause property: pausing an already-Paused
// task is a no-op).
func (o *Orchestrator) Pause(taskID string) error {
	rec, err := o.registry.Get(taskID)
	if err != nil {
		return err
	}
	if rec.Status == model.StatusPaused {
		return nil
	}
	if rec.Status != model.StatusDownloading {
		return corerrors.New(corerrors.CodeInvalidTransition, "pause requires status Downloading")
	}
	o.mu.Lock()
	rt, ok := o.running[taskID]
	o.mu.Unlock()
	if !ok {
		return corerrors.New(corerrors.CodeInvalidTransition, "task is not currently running in this process")
	}
	rt.mu.Lock()
	rt.stopKind = stopKindPause
	rt.mu.Unlock()
	rt.cancel()
	<-rt.done
	return nil
}

// Resume restarts a Paused task from its saved resume record
// (spec §4.6: Paused -> Downloading).
func (o *Orchestrator) Resume(ctx context.Context, taskID string) (model.TaskRecord, error) {
	rec, err := o.registry.Get(taskID)
	if err != nil {
		return model.TaskRecord{}, err
	}
	if rec.Status != model.StatusPaused {
		return model.TaskRecord{}, corerrors.New(corerrors.CodeInvalidTransition, "resume requires status Paused")
	}
	if err := o.registry.Update(taskID, func(r *model.TaskRecord) error {
		r.Status = model.StatusPending
		return nil
	}); err != nil {
		return model.TaskRecord{}, err
	}
	return o.Start(ctx, taskID)
}

// Cancel terminally stops a task from any non-terminal status (spec §4.3,
// §4.6: Pending|Downloading|Paused -> Cancelled; spec §8's idempotent-cancel
// property: cancelling an already-Cancelled task is a no-op). If the task
// is currently running in this process, Cancel signals it and blocks until
// it has quiesced -- the same wait Pause performs -- before discarding its
// part files and resume record and writing the terminal status, so a
// still-running worker can never race this cleanup or resurrect a status
// Cancel just set.
func (o *Orchestrator) Cancel(taskID string) error {
	rec, err := o.registry.Get(taskID)
	if err != nil {
		return err
	}
	if rec.Status == model.StatusCancelled {
		return nil
	}
	if rec.Status.Terminal() {
		return corerrors.New(corerrors.CodeInvalidTransition, "cancel requires a non-terminal status")
	}

	o.mu.Lock()
	rt, running := o.running[taskID]
	o.mu.Unlock()
	if running {
		rt.mu.Lock()
		rt.stopKind = stopKindCancel
		rt.mu.Unlock()
		rt.cancel()
		<-rt.done
	}

	_ = o.resumes.Cleanup(taskID)
	os.RemoveAll(rec.Config.OutputPath + ".parts")

	if err := o.registry.Update(taskID, func(r *model.TaskRecord) error {
		r.Status = model.StatusCancelled
		return nil
	}); err != nil {
		return err
	}
	o.finalizeWorkMode(taskID, rec.Config.WorkMode)
	return nil
}

// Get returns the current task record.
func (o *Orchestrator) Get(taskID string) (model.TaskRecord, error) {
	return o.registry.Get(taskID)
}

// LiveSnapshot returns the in-memory progress snapshot for a task currently
// running in this process, read from the task's progress monitor rather
// than the registry's persisted copy (which touchProgress rewrites on
// every ProgressTick). The second
// return value is false if the task isn't running here.
func (o *Orchestrator) LiveSnapshot(taskID string) (progress.Snapshot, bool) {
	o.mu.Lock()
	rt, ok := o.running[taskID]
	o.mu.Unlock()
	if !ok {
		return progress.Snapshot{}, false
	}
	rt.mu.Lock()
	monitor := rt.monitor
	rt.mu.Unlock()
	if monitor == nil {
		return progress.Snapshot{}, false
	}
	return monitor.Snapshot(), true
}

// List returns task records matching filter (spec §6 list_downloads).
func (o *Orchestrator) List(filter registry.Filter) []model.TaskRecord {
	return o.registry.List(filter)
}

// Delete removes a terminal task's record, the supplemented delete_download
// tool (spec SUPPLEMENTED FEATURES).
func (o *Orchestrator) Delete(taskID string) error {
	rec, err := o.registry.Get(taskID)
	if err != nil {
		return err
	}
	if !rec.Status.Terminal() {
		return corerrors.New(corerrors.CodeInvalidTransition, "delete requires a terminal task status")
	}
	_ = o.resumes.Cleanup(taskID)
	return o.registry.Delete(taskID)
}

// Stats returns the supplemented get_stats tool's snapshot.
func (o *Orchestrator) Stats() registry.Stats {
	return o.registry.Stats()
}

// SweepExpired runs both the registry's and the resume store's retention
// sweeps, the supplemented cleanup_expired behavior.
func (o *Orchestrator) SweepExpired(maxAge time.Duration) (int, error) {
	removed, err := o.registry.SweepExpired(maxAge)
	if err != nil {
		return removed, err
	}
	if _, err := o.resumes.CleanupExpired(maxAge); err != nil {
		return removed, err
	}
	return removed, nil
}
