package planner

import (
	"testing"

	"github.com/kagedl/resumedl/internal/model"
)

func TestPlanEmptyFile(t *testing.T) {
	segs, err := Plan(0, 4, true, model.NetworkGood, model.DefaultSegmentationBounds())
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(segs) != 1 {
		t.Fatalf("expected 1 segment for a zero-length file, got %d", len(segs))
	}
	if segs[0].Start != 0 || segs[0].End != -1 {
		t.Errorf("expected an empty [0,-1] segment, got [%d,%d]", segs[0].Start, segs[0].End)
	}
}

func TestPlanSmallFileUsesOneSegment(t *testing.T) {
	segs, err := Plan(512*1024, 8, true, model.NetworkGood, model.DefaultSegmentationBounds())
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(segs) != 1 {
		t.Errorf("files under 1 MiB should not be segmented, got %d segments", len(segs))
	}
}

func TestPlanWithoutRangeSupportIsSingleSegment(t *testing.T) {
	segs, err := Plan(100*1024*1024, 8, false, model.NetworkGood, model.DefaultSegmentationBounds())
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(segs) != 1 {
		t.Errorf("a server without Accept-Ranges should force a single segment, got %d", len(segs))
	}
	if segs[0].Start != 0 || segs[0].End != 100*1024*1024-1 {
		t.Errorf("expected the single segment to cover the whole file, got [%d,%d]", segs[0].Start, segs[0].End)
	}
}

func TestPlanLargeFileSegmentsCoverWholeRange(t *testing.T) {
	const totalSize = 256 * 1024 * 1024
	segs, err := Plan(totalSize, 4, true, model.NetworkGood, model.DefaultSegmentationBounds())
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(segs) < 2 {
		t.Fatalf("expected more than 1 segment for a large range-capable download, got %d", len(segs))
	}

	var pos int64
	for i, s := range segs {
		if s.Start != pos {
			t.Fatalf("segment %d starts at %d, want %d (gap or overlap)", i, s.Start, pos)
		}
		pos = s.End + 1
	}
	if pos != totalSize {
		t.Errorf("segments cover up to %d, want %d", pos, totalSize)
	}
}

func TestPlanNeverExceedsMaxConcurrency(t *testing.T) {
	segs, err := Plan(1<<30, 4, true, model.NetworkExcellent, model.DefaultSegmentationBounds())
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(segs) > 4 {
		t.Errorf("expected at most max_concurrency=4 segments, got %d", len(segs))
	}
}

func TestPlanRejectsInvalidInputs(t *testing.T) {
	if _, err := Plan(-1, 4, true, model.NetworkGood, model.DefaultSegmentationBounds()); err == nil {
		t.Error("expected an error for a negative total_size")
	}
	if _, err := Plan(1024, 0, true, model.NetworkGood, model.DefaultSegmentationBounds()); err == nil {
		t.Error("expected an error for max_concurrency <= 0")
	}
}

func TestRebalanceSplitsALaggingSegment(t *testing.T) {
	bounds := model.DefaultSegmentationBounds()
	seg := model.Segment{
		ID:         "segment_0",
		Start:      0,
		End:        100 * 1024 * 1024,
		Downloaded: 10 * 1024 * 1024,
	}
	children, ok := Rebalance(seg, []model.Segment{seg}, bounds)
	if !ok {
		t.Fatal("expected a segment with plenty of remaining bytes to be rebalanced")
	}
	if len(children) != 2 {
		t.Fatalf("expected 2 child segments, got %d", len(children))
	}
	if children[0].Downloaded != seg.Downloaded {
		t.Errorf("expected the first child to keep the parent's completed bytes, got %d", children[0].Downloaded)
	}
	if children[0].End+1 != children[1].Start {
		t.Errorf("children are not contiguous: %d vs %d", children[0].End, children[1].Start)
	}
	if children[1].End != seg.End {
		t.Errorf("second child should end where the parent did, got %d want %d", children[1].End, seg.End)
	}
	if children[0].ID == children[1].ID || children[0].ID == seg.ID || children[1].ID == seg.ID {
		t.Error("expected fresh, distinct child ids")
	}
}

func TestRebalanceRefusesASegmentTooCloseToDone(t *testing.T) {
	bounds := model.DefaultSegmentationBounds()
	seg := model.Segment{
		ID:         "segment_0",
		Start:      0,
		End:        1024 * 1024,
		Downloaded: 1024 * 1024,
	}
	if _, ok := Rebalance(seg, []model.Segment{seg}, bounds); ok {
		t.Error("expected a nearly-complete segment to refuse rebalancing")
	}
}
