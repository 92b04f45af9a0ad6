// Package model holds the data model shared by every layer of the download
// core (spec §3): task configuration, task records, segments, progress, and
// the resume record shape. Nothing in this package performs I/O.
package model

import (
	"time"

	"github.com/kagedl/resumedl/internal/corerrors"
)

// WorkMode controls how create_task behaves and how the task is retained
// after reaching a terminal state (spec §3, §4.3).
type WorkMode string

const (
	WorkModeBlocking    WorkMode = "blocking"
	WorkModeNonBlocking WorkMode = "non_blocking"
	WorkModePersistent  WorkMode = "persistent"
	WorkModeTemporary   WorkMode = "temporary"
)

// Status is the task state machine's set of states (spec §4.6).
type Status string

const (
	StatusPending     Status = "Pending"
	StatusDownloading Status = "Downloading"
	StatusPaused      Status = "Paused"
	StatusCompleted   Status = "Completed"
	StatusFailed      Status = "Failed"
	StatusCancelled   Status = "Cancelled"
)

// Terminal reports whether no outgoing transition is defined for s, other
// than the explicit Failed->Downloading retry path handled by the
// orchestrator's Start operation.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Algorithm enumerates the supported hash functions (spec §3, §4.8).
type Algorithm string

const (
	AlgorithmMD5    Algorithm = "md5"
	AlgorithmSHA1   Algorithm = "sha1"
	AlgorithmSHA256 Algorithm = "sha256"
	AlgorithmSHA512 Algorithm = "sha512"
)

// NetworkQuality is an optional hint fed to the Segmentation Planner
// (spec §4.1).
type NetworkQuality string

const (
	NetworkPoor      NetworkQuality = "Poor"
	NetworkFair      NetworkQuality = "Fair"
	NetworkGood      NetworkQuality = "Good"
	NetworkExcellent NetworkQuality = "Excellent"
)

// IntegrityConfig controls per-segment and whole-file verification
// (spec §3).
type IntegrityConfig struct {
	Algorithm          Algorithm `json:"algorithm" yaml:"algorithm"`
	ExpectedChecksum   string    `json:"expected_checksum,omitempty" yaml:"expected_checksum,omitempty"`
	VerifySegments     bool      `json:"verify_segments" yaml:"verify_segments"`
	VerifyFinal        bool      `json:"verify_final" yaml:"verify_final"`
}

// SegmentationBounds bounds the chunk sizes the planner is allowed to
// choose (spec §4.1).
type SegmentationBounds struct {
	MinChunk     int64
	MaxChunk     int64
	OptimalChunk int64
}

// DefaultSegmentationBounds mirrors the teacher's DefaultBufferSize-scaled
// defaults, generalized into the three planner knobs spec §4.1 names.
func DefaultSegmentationBounds() SegmentationBounds {
	return SegmentationBounds{
		MinChunk:     1 * 1024 * 1024,
		MaxChunk:     64 * 1024 * 1024,
		OptimalChunk: 8 * 1024 * 1024,
	}
}

// DownloadConfig is immutable for the life of a task (spec §3).
type DownloadConfig struct {
	URL            string            `json:"url" yaml:"url"`
	OutputPath     string            `json:"output_path" yaml:"output_path"`
	Filename       string            `json:"filename,omitempty" yaml:"filename,omitempty"`
	MaxConcurrency int               `json:"max_concurrency" yaml:"max_concurrency"`
	ChunkSize      int64             `json:"chunk_size" yaml:"chunk_size"`
	TimeoutMs      int64             `json:"timeout_ms" yaml:"timeout_ms"`
	RetryCount     int               `json:"retry_count" yaml:"retry_count"`
	WorkMode       WorkMode          `json:"work_mode" yaml:"work_mode"`
	EnableResume   bool              `json:"enable_resume" yaml:"enable_resume"`
	Headers        map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	SessionID      string            `json:"session_id,omitempty" yaml:"session_id,omitempty"`
	Integrity      IntegrityConfig   `json:"integrity" yaml:"integrity"`
	MaxBytesPerSec int64             `json:"max_bytes_per_sec,omitempty" yaml:"max_bytes_per_sec,omitempty"`
}

// Timeout returns TimeoutMs as a time.Duration.
func (c DownloadConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// Defaults fills in the §3 defaults for any zero-valued field.
func (c DownloadConfig) Defaults() DownloadConfig {
	if c.MaxConcurrency == 0 {
		c.MaxConcurrency = 4
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = 1024 * 1024
	}
	if c.TimeoutMs == 0 {
		c.TimeoutMs = 30000
	}
	if c.WorkMode == "" {
		c.WorkMode = WorkModeNonBlocking
	}
	if c.Integrity.Algorithm == "" {
		c.Integrity.Algorithm = AlgorithmSHA256
	}
	return c
}

// Validate enforces the §3 bounds, returning an error naming the first
// violated field: CodeUnsupportedAlgorithm for an unrecognized
// integrity.algorithm, CodeInvalidConfig for every other field.
func (c DownloadConfig) Validate() error {
	if c.URL == "" {
		return corerrors.New(corerrors.CodeInvalidConfig, "url is required")
	}
	if c.OutputPath == "" {
		return corerrors.New(corerrors.CodeInvalidConfig, "output_path is required")
	}
	if c.MaxConcurrency < 1 || c.MaxConcurrency > 16 {
		return corerrors.New(corerrors.CodeInvalidConfig, "max_concurrency must be in [1,16]")
	}
	if c.ChunkSize < 1024 {
		return corerrors.New(corerrors.CodeInvalidConfig, "chunk_size must be >= 1 KiB")
	}
	if c.TimeoutMs < 1000 {
		return corerrors.New(corerrors.CodeInvalidConfig, "timeout_ms must be >= 1000")
	}
	if c.RetryCount < 0 || c.RetryCount > 10 {
		return corerrors.New(corerrors.CodeInvalidConfig, "retry_count must be in [0,10]")
	}
	switch c.WorkMode {
	case WorkModeBlocking, WorkModeNonBlocking, WorkModePersistent, WorkModeTemporary:
	default:
		return corerrors.New(corerrors.CodeInvalidConfig, "work_mode is not recognized")
	}
	switch c.Integrity.Algorithm {
	case AlgorithmMD5, AlgorithmSHA1, AlgorithmSHA256, AlgorithmSHA512:
	default:
		return corerrors.New(corerrors.CodeUnsupportedAlgorithm, "integrity.algorithm is not recognized")
	}
	return nil
}

// ServerMetadata is captured by the Session Layer's HEAD probe (spec §3).
type ServerMetadata struct {
	ContentLength *int64 `json:"content_length,omitempty"`
	ContentType   string `json:"content_type,omitempty"`
	AcceptRanges  bool   `json:"accept_ranges"`
	LastModified  string `json:"last_modified,omitempty"`
	ETag          string `json:"etag,omitempty"`
}

// Segment is a contiguous byte range of the remote resource assigned to one
// worker (spec §3, GLOSSARY).
type Segment struct {
	ID         string `json:"id"`
	Start      int64  `json:"start"`
	End        int64  `json:"end"` // inclusive
	Downloaded int64  `json:"downloaded"`
	Status     Status `json:"status"`
	PartPath   string `json:"part_path"`
	Checksum   string `json:"checksum,omitempty"`
	RetryCount int    `json:"retry_count"`
}

// Size returns the number of bytes this segment covers.
func (s Segment) Size() int64 {
	return s.End - s.Start + 1
}

// Remaining returns the bytes not yet downloaded for this segment.
func (s Segment) Remaining() int64 {
	return s.Size() - s.Downloaded
}

// Progress is derived from a task's segments (spec §3).
type Progress struct {
	TotalSize      int64     `json:"total_size"`
	DownloadedSize int64     `json:"downloaded_size"`
	Percentage     float64   `json:"percentage"`
	Speed          float64   `json:"speed"` // bytes/sec, rolling window
	ETASeconds     int64     `json:"eta_seconds"`
	Segments       []Segment `json:"segments"`
}

// Recompute derives DownloadedSize and Percentage from Segments, keeping
// the invariant that Progress is always a pure function of segment state.
func (p *Progress) Recompute() {
	var downloaded int64
	for _, seg := range p.Segments {
		downloaded += seg.Downloaded
	}
	p.DownloadedSize = downloaded
	if p.TotalSize > 0 {
		p.Percentage = float64(downloaded) / float64(p.TotalSize) * 100
	} else {
		p.Percentage = 0
	}
}

// TaskRecord is the persisted, externally visible record for one download
// (spec §3).
type TaskRecord struct {
	ID             string          `json:"id"`
	Config         DownloadConfig  `json:"config"`
	Status         Status          `json:"status"`
	Progress       Progress        `json:"progress"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	Error          *TaskError      `json:"error,omitempty"`
	ServerMetadata ServerMetadata  `json:"server_metadata"`
}

// TaskError is the structured failure surfaced via get_download_status
// (spec §7).
type TaskError struct {
	Code    corerrors.Code `json:"code"`
	Message string         `json:"message"`
}

// ResumeRecord is the persisted snapshot sufficient to restart a task's
// remaining work (spec §3, §4.7, GLOSSARY).
type ResumeRecord struct {
	Version      int       `json:"version"`
	TaskID       string    `json:"task_id"`
	URL          string    `json:"url"`
	OutputPath   string    `json:"output_path"`
	TotalSize    int64     `json:"total_size"`
	Segments     []Segment `json:"segments"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

const ResumeRecordVersion = 1
