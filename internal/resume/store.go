// Package resume implements the Resume Store (spec §4.7): the on-disk
// snapshot of a task's segment state that lets a later process restart it
// without re-probing from scratch, validated against a fresh HEAD before
// being trusted.
package resume

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/kagedl/resumedl/internal/corerrors"
	"github.com/kagedl/resumedl/internal/logging"
	"github.com/kagedl/resumedl/internal/model"
)

// DefaultDir is spec §4.7's default resume-record directory.
const DefaultDir = "./.download-resume"

// DefaultMaxAge is spec §4.7's default retention window for cleanup_expired.
const DefaultMaxAge = 7 * 24 * time.Hour

// Store persists one ResumeRecord per task as {task_id}.resume.json, using
// a write-temp-then-rename sequence so a crash mid-write never leaves a
// corrupt record behind (the same pattern the teacher's
// performSimpleDownload uses for the output file itself).
type Store struct {
	dir string
	log zerolog.Logger
}

// NewStore opens (and creates if missing) a resume store rooted at dir. An
// empty dir falls back to DefaultDir.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		dir = DefaultDir
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, corerrors.Wrap(corerrors.ClassifyTransportError(err), "creating resume directory", err)
	}
	return &Store{dir: dir, log: logging.For("resume")}, nil
}

func (s *Store) path(taskID string) string {
	return filepath.Join(s.dir, taskID+".resume.json")
}

// Save persists rec atomically, stamping UpdatedAt.
func (s *Store) Save(rec model.ResumeRecord) error {
	rec.UpdatedAt = time.Now()
	if rec.Version == 0 {
		rec.Version = model.ResumeRecordVersion
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return corerrors.Wrap(corerrors.CodeFSOther, "marshaling resume record", err)
	}

	final := s.path(rec.TaskID)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return corerrors.Wrap(corerrors.ClassifyTransportError(err), "writing resume record", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return corerrors.Wrap(corerrors.ClassifyTransportError(err), "finalizing resume record", err)
	}
	s.log.Debug().Str("taskId", rec.TaskID).Int("segments", len(rec.Segments)).Msg("resume record saved")
	return nil
}

// Load reads a task's resume record. A missing file is reported as
// corerrors.CodeNotFound, never a bare os.ErrNotExist.
func (s *Store) Load(taskID string) (model.ResumeRecord, error) {
	data, err := os.ReadFile(s.path(taskID))
	if err != nil {
		if os.IsNotExist(err) {
			return model.ResumeRecord{}, corerrors.ErrTaskNotFound
		}
		return model.ResumeRecord{}, corerrors.Wrap(corerrors.ClassifyTransportError(err), "reading resume record", err)
	}
	var rec model.ResumeRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return model.ResumeRecord{}, corerrors.Wrap(corerrors.CodeFSOther, "parsing resume record", err)
	}
	return rec, nil
}

// Cleanup removes a task's resume record, tolerating an already-absent
// file (cleanup after merge success is idempotent).
func (s *Store) Cleanup(taskID string) error {
	err := os.Remove(s.path(taskID))
	if err != nil && !os.IsNotExist(err) {
		return corerrors.Wrap(corerrors.ClassifyTransportError(err), "removing resume record", err)
	}
	return nil
}

// List returns every resume record currently on disk, most recently
// updated first.
func (s *Store) List() ([]model.ResumeRecord, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, corerrors.Wrap(corerrors.ClassifyTransportError(err), "listing resume directory", err)
	}
	var records []model.ResumeRecord
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".resume.json") {
			continue
		}
		taskID := strings.TrimSuffix(name, ".resume.json")
		rec, err := s.Load(taskID)
		if err != nil {
			s.log.Warn().Err(err).Str("file", name).Msg("skipping unreadable resume record")
			continue
		}
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].UpdatedAt.After(records[j].UpdatedAt)
	})
	return records, nil
}

// CleanupExpired removes every resume record whose UpdatedAt is older than
// maxAge (default DefaultMaxAge), returning the number removed.
func (s *Store) CleanupExpired(maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	records, err := s.List()
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, rec := range records {
		if rec.UpdatedAt.Before(cutoff) {
			if err := s.Cleanup(rec.TaskID); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

// Validate compares a loaded resume record against freshly probed server
// metadata, per spec §4.7: a changed ETag, Last-Modified, or size means the
// remote resource moved on and the record can no longer be trusted.
func Validate(rec model.ResumeRecord, fresh model.ServerMetadata) error {
	if fresh.ETag != "" && rec.ETag != "" && fresh.ETag != rec.ETag {
		return corerrors.New(corerrors.CodeInvalidPlan, fmt.Sprintf("ETag changed: had %q, server now reports %q", rec.ETag, fresh.ETag))
	}
	if fresh.LastModified != "" && rec.LastModified != "" && fresh.LastModified != rec.LastModified {
		return corerrors.New(corerrors.CodeInvalidPlan, fmt.Sprintf("Last-Modified changed: had %q, server now reports %q", rec.LastModified, fresh.LastModified))
	}
	if fresh.ContentLength != nil && *fresh.ContentLength != rec.TotalSize {
		return corerrors.New(corerrors.CodeInvalidPlan, fmt.Sprintf("size changed: had %d, server now reports %d", rec.TotalSize, *fresh.ContentLength))
	}
	return nil
}
