// Package progress implements the Progress Monitor (spec §4.4): turning the
// raw byte counters the Segment Workers report into a smoothed speed and
// ETA, the way the teacher's ProgressManager turns per-file byte deltas
// into a displayed MB/s and ETA string, generalized to a rolling window
// instead of a single last-sample delta.
package progress

import (
	"sync"
	"time"
)

// windowSize bounds how many speed samples contribute to the rolling
// average, smoothing over bursty per-tick deltas the way a longer sampling
// interval would, without losing responsiveness to a sudden stall.
const windowSize = 8

type sample struct {
	at    time.Time
	bytes int64 // cumulative downloaded at the time of this sample
}

// Monitor tracks one task's download progress across every segment,
// producing a smoothed Snapshot on demand.
type Monitor struct {
	mu         sync.Mutex
	totalSize  int64
	downloaded int64
	samples    []sample
	startedAt  time.Time
}

// NewMonitor starts tracking a task whose total size is totalSize (0 if
// unknown at creation time, updated later via SetTotalSize).
func NewMonitor(totalSize int64) *Monitor {
	return &Monitor{
		totalSize: totalSize,
		startedAt: time.Now(),
	}
}

// SetTotalSize updates the denominator used for percentage and ETA, used
// when the plan's total size becomes known after the monitor is created.
func (m *Monitor) SetTotalSize(totalSize int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalSize = totalSize
}

// Record folds in a delta of newly downloaded bytes, as reported by a
// worker's ProgressTick event.
func (m *Monitor) Record(deltaBytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.downloaded += deltaBytes
	m.samples = append(m.samples, sample{at: time.Now(), bytes: m.downloaded})
	if len(m.samples) > windowSize {
		m.samples = m.samples[len(m.samples)-windowSize:]
	}
}

// Snapshot is a point-in-time view of a task's progress, the shape
// get_download_status surfaces as TaskRecord.Progress (spec §3, §6).
type Snapshot struct {
	TotalSize      int64
	DownloadedSize int64
	Percentage     float64
	Speed          float64 // bytes/sec, smoothed over the rolling window
	ETASeconds     int64   // -1 when total size or speed is unknown
}

// Snapshot computes the current smoothed speed from the oldest and newest
// samples in the window, and derives percentage and ETA from it.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{TotalSize: m.totalSize, DownloadedSize: m.downloaded, ETASeconds: -1}
	if m.totalSize > 0 {
		snap.Percentage = float64(m.downloaded) / float64(m.totalSize) * 100
	}

	if len(m.samples) >= 2 {
		oldest := m.samples[0]
		newest := m.samples[len(m.samples)-1]
		elapsed := newest.at.Sub(oldest.at).Seconds()
		if elapsed > 0 {
			snap.Speed = float64(newest.bytes-oldest.bytes) / elapsed
		}
	}

	if snap.Speed > 0 && m.totalSize > 0 {
		remaining := m.totalSize - m.downloaded
		if remaining < 0 {
			remaining = 0
		}
		snap.ETASeconds = int64(float64(remaining) / snap.Speed)
	}
	return snap
}

// Elapsed returns how long this monitor has been tracking the task.
func (m *Monitor) Elapsed() time.Duration {
	return time.Since(m.startedAt)
}
