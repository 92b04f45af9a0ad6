package facade

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/kagedl/resumedl/internal/corerrors"
	"github.com/kagedl/resumedl/internal/hashing"
	"github.com/kagedl/resumedl/internal/logging"
	"github.com/kagedl/resumedl/internal/model"
	"github.com/kagedl/resumedl/internal/orchestrator"
	"github.com/kagedl/resumedl/internal/registry"
	"github.com/kagedl/resumedl/internal/session"
)

// Facade is the Tool Facade (spec §6): every exported method here
// corresponds to exactly one named tool, decodes its own typed params,
// and returns an Envelope ready to serialize straight back to the caller.
type Facade struct {
	orch     *orchestrator.Orchestrator
	sessions *session.Manager
	log      zerolog.Logger
}

// New wires a Facade from its two collaborators.
func New(orch *orchestrator.Orchestrator, sessions *session.Manager) *Facade {
	return &Facade{orch: orch, sessions: sessions, log: logging.For("facade")}
}

// PreRequest implements the pre_request tool (spec §4.5, §6).
func (f *Facade) PreRequest(ctx context.Context, p PreRequestParams) Envelope {
	if p.URL == "" {
		return fail(corerrors.New(corerrors.CodeInvalidConfig, "url is required"))
	}
	method := strings.ToUpper(p.Method)
	switch method {
	case "":
		method = "GET"
	case "GET", "POST", "HEAD":
	default:
		return fail(corerrors.New(corerrors.CodeInvalidConfig, fmt.Sprintf("method %q is not one of GET, POST, HEAD", p.Method)))
	}

	sessionID := p.SessionID
	if sessionID == "" {
		sessionID = f.sessions.Create("", nil)
	}
	if p.UserAgent != "" || p.Referer != "" {
		state := f.sessions.Get(sessionID)
		if p.UserAgent != "" {
			state.UserAgent = p.UserAgent
		}
		if p.Referer != "" {
			state.Referer = p.Referer
		}
	}

	follow := true
	if p.FollowRedirects != nil {
		follow = *p.FollowRedirects
	}
	timeout := p.TimeoutMs
	if timeout <= 0 {
		timeout = 30000
	}
	reqCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Millisecond)
	defer cancel()

	var bodyReader io.Reader
	if p.Body != "" {
		bodyReader = bytes.NewReader(decodeBody(p.Body))
	}

	result, err := f.sessions.PreRequest(reqCtx, sessionID, p.URL, method, bodyReader, p.Headers, follow, p.MaxRedirects)
	if err != nil {
		return fail(err)
	}

	headers := make(map[string]string, len(result.Headers))
	for k := range result.Headers {
		headers[k] = result.Headers.Get(k)
	}
	cookies := make([]string, 0, len(result.Cookies))
	for _, c := range result.Cookies {
		cookies = append(cookies, c.String())
	}

	return ok(PreRequestResult{
		SessionID:     sessionID,
		Status:        result.Status,
		Headers:       headers,
		Cookies:       cookies,
		RedirectChain: result.RedirectChain,
		FinalURL:      result.FinalURL,
		ElapsedMs:     result.Elapsed.Milliseconds(),
	})
}

// DownloadFile implements the download_file tool (spec §4.3, §6): creates
// a task and starts it, returning immediately unless work_mode is
// blocking.
func (f *Facade) DownloadFile(ctx context.Context, p DownloadFileParams) Envelope {
	cfg := model.DownloadConfig{
		URL:            p.URL,
		OutputPath:     p.OutputPath,
		Filename:       p.Filename,
		MaxConcurrency: p.MaxConcurrency,
		ChunkSize:      p.ChunkSize,
		TimeoutMs:      p.TimeoutMs,
		RetryCount:     p.RetryCount,
		WorkMode:       p.WorkMode,
		EnableResume:   true,
		SessionID:      p.SessionID,
		Headers:        p.Headers,
		MaxBytesPerSec: p.MaxBytesPerSec,
	}
	if p.EnableResume != nil {
		cfg.EnableResume = *p.EnableResume
	}
	if p.Integrity != nil {
		cfg.Integrity = model.IntegrityConfig{
			Algorithm:        p.Integrity.Algorithm,
			ExpectedChecksum: p.Integrity.ExpectedChecksum,
			VerifySegments:   p.Integrity.VerifySegments,
			VerifyFinal:      p.Integrity.VerifyFinal,
		}
	}

	task, err := f.orch.Create(cfg)
	if err != nil {
		return fail(err)
	}

	task, err = f.orch.Start(ctx, task.ID)
	if err != nil {
		return fail(err)
	}

	if task.Config.WorkMode == model.WorkModeBlocking {
		return ok(DownloadFileResult{
			TaskID:  task.ID,
			Status:  task.Status,
			Message: blockingMessage(task.Status),
			Task:    &task,
		})
	}
	return ok(DownloadFileResult{
		TaskID:  task.ID,
		Status:  task.Status,
		Message: "download started",
	})
}

func blockingMessage(status model.Status) string {
	switch status {
	case model.StatusCompleted:
		return "download completed"
	case model.StatusFailed:
		return "download failed"
	default:
		return "download finished in status " + string(status)
	}
}

// GetDownloadStatus implements the get_download_status tool (spec §6).
func (f *Facade) GetDownloadStatus(taskID string) Envelope {
	task, err := f.orch.Get(taskID)
	if err != nil {
		return fail(err)
	}

	progress := task.Progress
	if snap, live := f.orch.LiveSnapshot(taskID); live {
		progress.DownloadedSize = snap.DownloadedSize
		progress.Percentage = snap.Percentage
		progress.Speed = snap.Speed
		progress.ETASeconds = snap.ETASeconds
	}

	result := DownloadStatusResult{
		TaskID: task.ID,
		Status: task.Status,
		Progress: StatusProgress{
			Percentage: progress.Percentage,
			Downloaded: progress.DownloadedSize,
			Total:      progress.TotalSize,
			Speed:      progress.Speed,
			ETA:        progress.ETASeconds,
		},
		Metadata: StatusMetadata{
			Filename:  task.Config.Filename,
			URL:       task.Config.URL,
			CreatedAt: task.CreatedAt.Format(time.RFC3339),
		},
		Error: task.Error,
	}
	if task.StartedAt != nil {
		s := task.StartedAt.Format(time.RFC3339)
		result.Metadata.StartedAt = &s
	}
	if task.CompletedAt != nil {
		c := task.CompletedAt.Format(time.RFC3339)
		result.Metadata.CompletedAt = &c
	}
	return ok(result)
}

// PauseDownload implements the pause_download tool (spec §4.6, §6).
func (f *Facade) PauseDownload(taskID string) Envelope {
	if err := f.orch.Pause(taskID); err != nil {
		return fail(err)
	}
	task, err := f.orch.Get(taskID)
	if err != nil {
		return fail(err)
	}
	return ok(TaskActionResult{TaskID: taskID, Success: true, NewStatus: task.Status})
}

// ResumeDownload implements the resume_download tool (spec §4.6, §6).
func (f *Facade) ResumeDownload(ctx context.Context, taskID string) Envelope {
	task, err := f.orch.Resume(ctx, taskID)
	if err != nil {
		return fail(err)
	}
	return ok(TaskActionResult{TaskID: taskID, Success: true, NewStatus: task.Status})
}

// CancelDownload implements the cancel_download tool (spec §4.6, §6).
func (f *Facade) CancelDownload(taskID string) Envelope {
	if err := f.orch.Cancel(taskID); err != nil {
		return fail(err)
	}
	task, err := f.orch.Get(taskID)
	if err != nil {
		return fail(err)
	}
	return ok(TaskActionResult{TaskID: taskID, Success: true, NewStatus: task.Status})
}

// ListDownloads implements the list_downloads tool (spec §6).
func (f *Facade) ListDownloads(p ListDownloadsParams) Envelope {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}
	all := f.orch.List(registry.Filter{Status: p.Status})
	total := len(all)

	filtered := all
	if p.Offset > 0 {
		if p.Offset >= len(filtered) {
			filtered = nil
		} else {
			filtered = filtered[p.Offset:]
		}
	}
	hasMore := false
	if limit < len(filtered) {
		filtered = filtered[:limit]
		hasMore = true
	}

	return ok(ListDownloadsResult{Tasks: filtered, Total: total, HasMore: hasMore})
}

// VerifyIntegrity implements the verify_integrity tool (spec §4.8, §6).
func (f *Facade) VerifyIntegrity(p VerifyIntegrityParams) Envelope {
	if p.FilePath == "" {
		return fail(corerrors.New(corerrors.CodeInvalidConfig, "file_path is required"))
	}
	algorithm := p.Algorithm
	if algorithm == "" {
		algorithm = model.AlgorithmSHA256
	}

	info, statErr := os.Stat(p.FilePath)
	if statErr != nil {
		return fail(corerrors.Wrap(corerrors.CodeFSNotFound, "stat file_path", statErr))
	}

	result, err := hashing.VerifyFile(p.FilePath, algorithm, p.ExpectedChecksum)
	if err != nil {
		return fail(err)
	}

	out := VerifyIntegrityResult{
		Success:   true,
		Algorithm: algorithm,
		Checksum:  result.Actual,
		Verified:  result.OK,
		FileSize:  info.Size(),
		ElapsedMs: result.Elapsed.Milliseconds(),
	}
	if p.GenerateReport {
		out.Report = integrityReport(p.FilePath, algorithm, result)
	}
	return ok(out)
}

func integrityReport(path string, algorithm model.Algorithm, result hashing.VerificationResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "file: %s\n", path)
	fmt.Fprintf(&b, "algorithm: %s\n", algorithm)
	fmt.Fprintf(&b, "checksum: %s\n", result.Actual)
	if result.Expected != "" {
		fmt.Fprintf(&b, "expected: %s\n", result.Expected)
		fmt.Fprintf(&b, "verified: %t\n", result.OK)
	}
	fmt.Fprintf(&b, "bytes_hashed: %d\n", result.Bytes)
	fmt.Fprintf(&b, "elapsed: %s\n", result.Elapsed)
	return b.String()
}

// DeleteDownload implements the supplemented delete_download tool.
func (f *Facade) DeleteDownload(taskID string) Envelope {
	if err := f.orch.Delete(taskID); err != nil {
		return fail(err)
	}
	return ok(DeleteDownloadResult{TaskID: taskID, Success: true})
}

// GetStats implements the supplemented get_stats tool.
func (f *Facade) GetStats() Envelope {
	stats := f.orch.Stats()
	return ok(StatsResult{
		TotalTasks:      stats.TotalTasks,
		ByStatus:        stats.ByStatus,
		TotalBytes:      stats.TotalBytes,
		ActiveDownloads: stats.ActiveDownloads,
	})
}

// decodeBody base64-decodes a pre_request body that looks like it was
// base64-encoded by a binary-safe caller, falling back to the raw string
// for callers sending plain text (e.g. a JSON POST body).
func decodeBody(s string) []byte {
	if decoded, err := base64.StdEncoding.DecodeString(s); err == nil {
		return decoded
	}
	return []byte(s)
}
