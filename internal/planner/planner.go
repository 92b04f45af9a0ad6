// Package planner implements the Segmentation Planner (spec §4.1):
// deciding segment count and boundaries, and splitting a lagging segment
// when capacity frees up.
package planner

import (
	"fmt"
	"math"

	"github.com/kagedl/resumedl/internal/corerrors"
	"github.com/kagedl/resumedl/internal/model"
)

// qualityScale implements the network-quality scaling table from spec §4.1.
var qualityScale = map[model.NetworkQuality]float64{
	model.NetworkPoor:      0.5,
	model.NetworkFair:      0.75,
	model.NetworkGood:      1.0,
	model.NetworkExcellent: 1.5,
}

// singleSegmentThreshold is spec §4.1's "total_size < 1 MiB" rule.
const singleSegmentThreshold = 1 * 1024 * 1024

// Plan decides the segment count and boundaries for a download, per
// spec §4.1's rules. It is a pure function: the same inputs always produce
// the same plan.
func Plan(totalSize int64, maxConcurrency int, acceptRanges bool, quality model.NetworkQuality, bounds model.SegmentationBounds) ([]model.Segment, error) {
	if totalSize < 0 {
		return nil, corerrors.New(corerrors.CodeInvalidPlan, "total_size must be >= 0")
	}
	if maxConcurrency <= 0 {
		return nil, corerrors.New(corerrors.CodeInvalidPlan, "max_concurrency must be > 0")
	}

	if totalSize == 0 {
		return []model.Segment{newSegment(0, 0, -1)}, nil
	}

	if totalSize < singleSegmentThreshold || !acceptRanges {
		return []model.Segment{newSegment(0, 0, totalSize-1)}, nil
	}

	n := segmentCount(totalSize, maxConcurrency, quality, bounds)
	return partition(totalSize, n), nil
}

func segmentCount(totalSize int64, maxConcurrency int, quality model.NetworkQuality, bounds model.SegmentationBounds) int {
	maxChunk := bounds.MaxChunk
	optimalChunk := bounds.OptimalChunk
	if maxChunk <= 0 {
		maxChunk = model.DefaultSegmentationBounds().MaxChunk
	}
	if optimalChunk <= 0 {
		optimalChunk = model.DefaultSegmentationBounds().OptimalChunk
	}

	byMaxChunk := ceilDiv(totalSize, maxChunk)
	byOptimalChunk := ceilDiv(totalSize, optimalChunk)

	n := clamp(maxConcurrency, byMaxChunk, byOptimalChunk)

	if scale, ok := qualityScale[quality]; ok {
		n = int(math.Round(float64(n) * scale))
	}
	if n < 1 {
		n = 1
	}
	if n > maxConcurrency {
		n = maxConcurrency
	}
	return n
}

// clamp reproduces spec §4.1's `clamp(max_concurrency, ceil(total/max_chunk),
// ceil(total/optimal_chunk))`: the middle value of the three once sorted,
// then capped by max_concurrency by the caller.
func clamp(maxConcurrency, byMaxChunk, byOptimalChunk int) int {
	vals := []int{maxConcurrency, byMaxChunk, byOptimalChunk}
	// sort 3 elements
	if vals[0] > vals[1] {
		vals[0], vals[1] = vals[1], vals[0]
	}
	if vals[1] > vals[2] {
		vals[1], vals[2] = vals[2], vals[1]
	}
	if vals[0] > vals[1] {
		vals[0], vals[1] = vals[1], vals[0]
	}
	return vals[1]
}

func ceilDiv(a int64, b int64) int {
	if b <= 0 {
		return 1
	}
	return int((a + b - 1) / b)
}

// partition splits [0, totalSize) into n near-equal intervals; the last
// segment absorbs the remainder (spec §4.1).
func partition(totalSize int64, n int) []model.Segment {
	if n < 1 {
		n = 1
	}
	chunkSize := totalSize / int64(n)
	segments := make([]model.Segment, 0, n)
	var pos int64
	for i := 0; i < n; i++ {
		start := pos
		end := start + chunkSize - 1
		if i == n-1 {
			end = totalSize - 1
		}
		if end >= totalSize {
			end = totalSize - 1
		}
		segments = append(segments, newSegment(i, start, end))
		pos = end + 1
	}
	return segments
}

func newSegment(index int, start, end int64) model.Segment {
	return model.Segment{
		ID:     fmt.Sprintf("segment_%d", index),
		Start:  start,
		End:    end,
		Status: model.StatusPending,
	}
}

// Rebalance optionally splits a lagging segment into two child segments
// when its remaining bytes exceed 2*min_chunk and capacity has freed up
// (spec §4.1). Completed bytes are preserved in the first child; the
// returned ids are new and distinct from seg.ID and from existing.
func Rebalance(seg model.Segment, existing []model.Segment, bounds model.SegmentationBounds) ([]model.Segment, bool) {
	minChunk := bounds.MinChunk
	if minChunk <= 0 {
		minChunk = model.DefaultSegmentationBounds().MinChunk
	}
	if seg.Remaining() <= 2*minChunk {
		return nil, false
	}

	splitPoint := seg.Start + seg.Downloaded + seg.Remaining()/2

	first := seg
	first.End = splitPoint - 1
	first.ID = nextSegmentID(existing, seg.ID, "a")

	second := model.Segment{
		ID:     nextSegmentID(existing, seg.ID, "b"),
		Start:  splitPoint,
		End:    seg.End,
		Status: model.StatusPending,
	}
	return []model.Segment{first, second}, true
}

func nextSegmentID(existing []model.Segment, parentID, suffix string) string {
	candidate := parentID + "_" + suffix
	for {
		clash := false
		for _, s := range existing {
			if s.ID == candidate {
				clash = true
				break
			}
		}
		if !clash {
			return candidate
		}
		candidate += suffix
	}
}
