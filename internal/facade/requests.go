package facade

import "github.com/kagedl/resumedl/internal/model"

// PreRequestParams is pre_request's parameter shape (spec §6).
type PreRequestParams struct {
	URL             string            `json:"url"`
	Method          string            `json:"method,omitempty"`
	Headers         map[string]string `json:"headers,omitempty"`
	Body            string            `json:"body,omitempty"`
	SessionID       string            `json:"session_id,omitempty"`
	TimeoutMs       int64             `json:"timeout,omitempty"`
	FollowRedirects *bool             `json:"follow_redirects,omitempty"`
	MaxRedirects    int               `json:"max_redirects,omitempty"`
	UserAgent       string            `json:"user_agent,omitempty"`
	Referer         string            `json:"referer,omitempty"`
}

// PreRequestResult is pre_request's result shape (spec §6, §4.5).
type PreRequestResult struct {
	SessionID     string            `json:"session_id"`
	Status        int               `json:"status"`
	Headers       map[string]string `json:"headers"`
	Cookies       []string          `json:"cookies"`
	RedirectChain []string          `json:"redirect_chain"`
	FinalURL      string            `json:"final_url"`
	ElapsedMs     int64             `json:"elapsed_ms"`
}

// IntegrityParams mirrors model.IntegrityConfig for request decoding,
// letting download_file callers opt into verification the way §3's
// DownloadConfig.Integrity allows even though the base table in §6 omits it.
type IntegrityParams struct {
	Algorithm        model.Algorithm `json:"algorithm,omitempty"`
	ExpectedChecksum string          `json:"expected_checksum,omitempty"`
	VerifySegments   bool            `json:"verify_segments,omitempty"`
	VerifyFinal      bool            `json:"verify_final,omitempty"`
}

// DownloadFileParams is download_file's parameter shape (spec §6).
type DownloadFileParams struct {
	URL            string            `json:"url"`
	OutputPath     string            `json:"output_path"`
	Filename       string            `json:"filename,omitempty"`
	MaxConcurrency int               `json:"max_concurrency,omitempty"`
	ChunkSize      int64             `json:"chunk_size,omitempty"`
	TimeoutMs      int64             `json:"timeout,omitempty"`
	RetryCount     int               `json:"retry_count,omitempty"`
	WorkMode       model.WorkMode    `json:"work_mode,omitempty"`
	EnableResume   *bool             `json:"enable_resume,omitempty"`
	SessionID      string            `json:"session_id,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	MaxBytesPerSec int64             `json:"max_bytes_per_sec,omitempty"`
	Integrity      *IntegrityParams  `json:"integrity,omitempty"`
}

// DownloadFileResult is download_file's non-blocking result shape
// (spec §6); Start's returned TaskRecord is folded in directly when
// work_mode is blocking, per "or full result if work_mode=blocking".
type DownloadFileResult struct {
	TaskID  string `json:"task_id"`
	Status  model.Status `json:"status"`
	Message string `json:"message"`
	Task    *model.TaskRecord `json:"task,omitempty"`
}

// StatusProgress is get_download_status's nested progress shape (spec §6).
type StatusProgress struct {
	Percentage float64 `json:"percentage"`
	Downloaded int64   `json:"downloaded"`
	Total      int64   `json:"total"`
	Speed      float64 `json:"speed"`
	ETA        int64   `json:"eta"`
}

// StatusMetadata is get_download_status's nested metadata shape (spec §6).
type StatusMetadata struct {
	Filename    string     `json:"filename"`
	URL         string     `json:"url"`
	CreatedAt   string     `json:"created_at"`
	StartedAt   *string    `json:"started_at,omitempty"`
	CompletedAt *string    `json:"completed_at,omitempty"`
}

// DownloadStatusResult is get_download_status's result shape (spec §6).
type DownloadStatusResult struct {
	TaskID   string            `json:"task_id"`
	Status   model.Status      `json:"status"`
	Progress StatusProgress    `json:"progress"`
	Metadata StatusMetadata    `json:"metadata"`
	Error    *model.TaskError  `json:"error,omitempty"`
}

// TaskActionResult is pause_download/resume_download/cancel_download's
// result shape (spec §6).
type TaskActionResult struct {
	TaskID    string      `json:"task_id"`
	Success   bool        `json:"success"`
	NewStatus model.Status `json:"new_status"`
}

// ListDownloadsParams is list_downloads's parameter shape (spec §6).
type ListDownloadsParams struct {
	Status model.Status `json:"status,omitempty"`
	Limit  int          `json:"limit,omitempty"`
	Offset int          `json:"offset,omitempty"`
}

// ListDownloadsResult is list_downloads's result shape (spec §6).
type ListDownloadsResult struct {
	Tasks   []model.TaskRecord `json:"tasks"`
	Total   int                `json:"total"`
	HasMore bool               `json:"has_more"`
}

// VerifyIntegrityParams is verify_integrity's parameter shape (spec §6).
type VerifyIntegrityParams struct {
	FilePath         string          `json:"file_path"`
	Algorithm        model.Algorithm `json:"algorithm,omitempty"`
	ExpectedChecksum string          `json:"expected_checksum,omitempty"`
	GenerateReport   bool            `json:"generate_report,omitempty"`
}

// VerifyIntegrityResult is verify_integrity's result shape (spec §6). The
// outer Success duplicates Envelope.Success (the spec names it explicitly
// inside the tool's own result), Verified is the expected-vs-actual match.
type VerifyIntegrityResult struct {
	Success   bool            `json:"success"`
	Algorithm model.Algorithm `json:"algorithm"`
	Checksum  string          `json:"checksum"`
	Verified  bool            `json:"verified"`
	FileSize  int64           `json:"file_size"`
	ElapsedMs int64           `json:"elapsed_ms"`
	Report    string          `json:"report,omitempty"`
}

// DeleteDownloadResult is the supplemented delete_download tool's result
// shape, mirroring TaskActionResult's {task_id, success} pattern.
type DeleteDownloadResult struct {
	TaskID  string `json:"task_id"`
	Success bool   `json:"success"`
}

// StatsResult is the supplemented get_stats tool's result shape.
type StatsResult struct {
	TotalTasks      int                    `json:"total_tasks"`
	ByStatus        map[model.Status]int   `json:"by_status"`
	TotalBytes      int64                  `json:"total_bytes_downloaded"`
	ActiveDownloads int                    `json:"active_downloads"`
}
