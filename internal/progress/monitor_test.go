package progress

import (
	"testing"
	"time"
)

func TestSnapshotBeforeAnyRecordHasUnknownETA(t *testing.T) {
	m := NewMonitor(1000)
	snap := m.Snapshot()
	if snap.DownloadedSize != 0 {
		t.Errorf("expected 0 downloaded before any Record, got %d", snap.DownloadedSize)
	}
	if snap.ETASeconds != -1 {
		t.Errorf("expected ETASeconds -1 before enough samples exist, got %d", snap.ETASeconds)
	}
}

func TestSnapshotPercentageTracksDownloaded(t *testing.T) {
	m := NewMonitor(1000)
	m.Record(250)
	snap := m.Snapshot()
	if snap.DownloadedSize != 250 {
		t.Errorf("DownloadedSize = %d, want 250", snap.DownloadedSize)
	}
	if snap.Percentage != 25 {
		t.Errorf("Percentage = %v, want 25", snap.Percentage)
	}
}

func TestSnapshotZeroTotalSizeNeverDividesByZero(t *testing.T) {
	m := NewMonitor(0)
	m.Record(100)
	snap := m.Snapshot()
	if snap.Percentage != 0 {
		t.Errorf("expected Percentage 0 when total size is unknown, got %v", snap.Percentage)
	}
}

func TestSnapshotComputesSpeedAcrossSamples(t *testing.T) {
	m := NewMonitor(1000)
	m.Record(100)
	time.Sleep(20 * time.Millisecond)
	m.Record(100)

	snap := m.Snapshot()
	if snap.Speed <= 0 {
		t.Errorf("expected a positive speed after two samples with elapsed time, got %v", snap.Speed)
	}
}

func TestSnapshotWindowIsBounded(t *testing.T) {
	m := NewMonitor(1_000_000)
	for i := 0; i < 20; i++ {
		m.Record(1000)
	}
	if len(m.samples) > windowSize {
		t.Errorf("expected the sample window to stay bounded at %d, got %d", windowSize, len(m.samples))
	}
}

func TestSetTotalSizeUpdatesDenominator(t *testing.T) {
	m := NewMonitor(0)
	m.Record(50)
	m.SetTotalSize(100)
	snap := m.Snapshot()
	if snap.Percentage != 50 {
		t.Errorf("expected Percentage 50 after SetTotalSize, got %v", snap.Percentage)
	}
}

func TestElapsedIsPositive(t *testing.T) {
	m := NewMonitor(100)
	time.Sleep(5 * time.Millisecond)
	if m.Elapsed() <= 0 {
		t.Error("expected a positive elapsed duration")
	}
}
