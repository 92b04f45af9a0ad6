package worker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/kagedl/resumedl/internal/corerrors"
	"github.com/kagedl/resumedl/internal/model"
)

// parseRangeHeader parses a "bytes=start-end" Range header, as a fake
// origin server needs to in order to serve the slice the worker asked for.
func parseRangeHeader(t *testing.T, header string, size int64) (int64, int64) {
	t.Helper()
	header = strings.TrimPrefix(header, "bytes=")
	parts := strings.Split(header, "-")
	start, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		t.Fatalf("parsing range start %q: %v", parts[0], err)
	}
	end, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		t.Fatalf("parsing range end %q: %v", parts[1], err)
	}
	if end >= size {
		end = size - 1
	}
	return start, end
}

func contentRangeHeader(start, end, size int64) string {
	return "bytes " + strconv.FormatInt(start, 10) + "-" + strconv.FormatInt(end, 10) + "/" + strconv.FormatInt(size, 10)
}

func rangeServer(t *testing.T, data []byte) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rangeHeader := r.Header.Get("Range")
		if rangeHeader == "" {
			w.WriteHeader(http.StatusOK)
			w.Write(data)
			return
		}
		start, end := parseRangeHeader(t, rangeHeader, int64(len(data)))
		w.Header().Set("Content-Range", contentRangeHeader(start, end, int64(len(data))))
		w.WriteHeader(http.StatusPartialContent)
		w.Write(data[start : end+1])
	}))
}

func TestRunDownloadsFullSegment(t *testing.T) {
	data := make([]byte, 256*1024)
	for i := range data {
		data[i] = byte(i % 251)
	}
	server := rangeServer(t, data)
	defer server.Close()

	dir := t.TempDir()
	partPath := filepath.Join(dir, "segment_0.part")

	seg := model.Segment{ID: "segment_0", Start: 0, End: int64(len(data) - 1), PartPath: partPath}
	events := make(chan Event, 64)
	go func() {
		for range events {
		}
	}()

	result := Run(context.Background(), Params{
		URL:       server.URL,
		Segment:   seg,
		Client:    server.Client(),
		Timeout:   5 * time.Second,
		Retry:     DefaultRetryPolicy(0),
		Algorithm: model.AlgorithmSHA256,
		TotalSize: int64(len(data)),
	}, events)
	close(events)

	if result.Status != model.StatusCompleted {
		t.Fatalf("expected the segment to complete, got status %s", result.Status)
	}
	if result.Downloaded != int64(len(data)) {
		t.Errorf("Downloaded = %d, want %d", result.Downloaded, len(data))
	}
	if result.Checksum == "" {
		t.Error("expected a non-empty checksum on a completed segment")
	}

	written, err := os.ReadFile(partPath)
	if err != nil {
		t.Fatalf("reading part file: %v", err)
	}
	if len(written) != len(data) {
		t.Fatalf("part file has %d bytes, want %d", len(written), len(data))
	}
}

// TestRunFailsFastWhenServerIgnoresRangeOnAMultiSegmentPlan covers the
// segment_1-of-4 scenario: a genuine multi-segment plan (this segment does
// not start at 0) whose server answers 200 instead of 206 to a Range
// request. Run must fail immediately without streaming any of the
// unrelated leading bytes into the part file, and without retrying.
func TestRunFailsFastWhenServerIgnoresRangeOnAMultiSegmentPlan(t *testing.T) {
	fullBody := make([]byte, 4*1024*1024)
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		// Wrongly ignores the Range header and serves the whole body.
		w.WriteHeader(http.StatusOK)
		w.Write(fullBody)
	}))
	defer server.Close()

	dir := t.TempDir()
	partPath := filepath.Join(dir, "segment_1.part")
	seg := model.Segment{ID: "segment_1", Start: 1_000_000, End: 1_999_999, PartPath: partPath}
	events := make(chan Event, 64)
	go func() {
		for range events {
		}
	}()

	retry := DefaultRetryPolicy(3)
	retry.BaseDelay = 5 * time.Millisecond
	retry.MaxDelay = 10 * time.Millisecond

	result := Run(context.Background(), Params{
		URL:       server.URL,
		Segment:   seg,
		Client:    server.Client(),
		Timeout:   5 * time.Second,
		Retry:     retry,
		Algorithm: model.AlgorithmSHA256,
		TotalSize: int64(len(fullBody)),
	}, events)
	close(events)

	if result.Status != model.StatusFailed {
		t.Fatalf("expected the segment to fail fast, got status %s", result.Status)
	}
	if attempts != 1 {
		t.Errorf("expected exactly 1 attempt (no retry on RangeNotSatisfiable), got %d", attempts)
	}
	if result.Downloaded != 0 {
		t.Errorf("expected no bytes to have been streamed into the part file, got %d", result.Downloaded)
	}
}

func TestRunResumesFromExistingDownloaded(t *testing.T) {
	data := []byte("0123456789abcdefghijklmnopqrstuvwxyz")
	server := rangeServer(t, data)
	defer server.Close()

	dir := t.TempDir()
	partPath := filepath.Join(dir, "segment_0.part")
	if err := os.WriteFile(partPath, data[:10], 0644); err != nil {
		t.Fatalf("seed part file: %v", err)
	}

	seg := model.Segment{ID: "segment_0", Start: 0, End: int64(len(data) - 1), Downloaded: 10, PartPath: partPath}
	events := make(chan Event, 64)
	go func() {
		for range events {
		}
	}()

	result := Run(context.Background(), Params{
		URL:       server.URL,
		Segment:   seg,
		Client:    server.Client(),
		Timeout:   5 * time.Second,
		Retry:     DefaultRetryPolicy(0),
		Algorithm: model.AlgorithmSHA256,
		TotalSize: int64(len(data)),
	}, events)
	close(events)

	if result.Status != model.StatusCompleted {
		t.Fatalf("expected the resumed segment to complete, got %s", result.Status)
	}
	written, err := os.ReadFile(partPath)
	if err != nil {
		t.Fatalf("reading part file: %v", err)
	}
	if string(written) != string(data) {
		t.Fatalf("part file = %q, want %q", written, data)
	}
}

func TestRunRetriesOnServerErrorThenSucceeds(t *testing.T) {
	data := []byte("retry-me-please")
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Range", contentRangeHeader(0, int64(len(data)-1), int64(len(data))))
		w.WriteHeader(http.StatusPartialContent)
		w.Write(data)
	}))
	defer server.Close()

	dir := t.TempDir()
	partPath := filepath.Join(dir, "segment_0.part")
	seg := model.Segment{ID: "segment_0", Start: 0, End: int64(len(data) - 1), PartPath: partPath}
	events := make(chan Event, 64)
	go func() {
		for range events {
		}
	}()

	retry := DefaultRetryPolicy(3)
	retry.BaseDelay = 5 * time.Millisecond
	retry.MaxDelay = 10 * time.Millisecond

	result := Run(context.Background(), Params{
		URL:       server.URL,
		Segment:   seg,
		Client:    server.Client(),
		Timeout:   5 * time.Second,
		Retry:     retry,
		Algorithm: model.AlgorithmSHA256,
	}, events)
	close(events)

	if result.Status != model.StatusCompleted {
		t.Fatalf("expected the segment to eventually complete, got %s", result.Status)
	}
	if attempts < 2 {
		t.Errorf("expected at least 2 attempts, got %d", attempts)
	}
}

func TestRunFailsFatallyOnClientError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	dir := t.TempDir()
	seg := model.Segment{ID: "segment_0", Start: 0, End: 99, PartPath: filepath.Join(dir, "segment_0.part")}
	events := make(chan Event, 64)
	go func() {
		for range events {
		}
	}()

	result := Run(context.Background(), Params{
		URL:       server.URL,
		Segment:   seg,
		Client:    server.Client(),
		Timeout:   5 * time.Second,
		Retry:     DefaultRetryPolicy(5),
		Algorithm: model.AlgorithmSHA256,
	}, events)
	close(events)

	if result.Status != model.StatusFailed {
		t.Fatalf("expected a 403 to fail without retrying, got status %s", result.Status)
	}
}

func TestRunObservesContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusPartialContent)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	dir := t.TempDir()
	seg := model.Segment{ID: "segment_0", Start: 0, End: 99, PartPath: filepath.Join(dir, "segment_0.part")}
	events := make(chan Event, 64)
	go func() {
		for range events {
		}
	}()

	result := Run(ctx, Params{
		URL:       server.URL,
		Segment:   seg,
		Client:    server.Client(),
		Timeout:   0,
		Retry:     DefaultRetryPolicy(0),
		Algorithm: model.AlgorithmSHA256,
	}, events)
	close(events)

	if result.Status != model.StatusPaused {
		t.Errorf("expected a cancelled download to leave the segment Paused, got %s", result.Status)
	}
}

func TestCheckStatusAcceptsPartialContent(t *testing.T) {
	if err := checkStatus(http.StatusPartialContent, false, -1, 1000); err != nil {
		t.Errorf("expected 206 to be accepted, got %v", err)
	}
}

func TestCheckStatusAccepts200OnlyFromScratchOnAWholeFileSegment(t *testing.T) {
	if err := checkStatus(http.StatusOK, true, -1, 1000); err != nil {
		t.Errorf("expected 200 from a cold start on a whole-file segment to be accepted, got %v", err)
	}
	if err := checkStatus(http.StatusOK, false, -1, 1000); err == nil {
		t.Error("expected 200 on a resumed whole-file segment (Range sent, rangeOmitted false) to be rejected")
	}
}

func TestCheckStatusRejects200OnAnOrdinaryRangedSegment(t *testing.T) {
	// This is the segment_1-of-4 scenario: a real multi-segment plan, first
	// attempt (downloaded == 0), where the server wrongly answers 200
	// instead of 206 to a Range request. Must fail fast, not be accepted
	// just because downloaded happens to be 0.
	err := checkStatus(http.StatusOK, false, -1, 1000)
	if corerrors.CodeOf(err) != corerrors.CodeRangeNotSatisfiable {
		t.Errorf("expected CodeRangeNotSatisfiable for a 200 on a ranged segment, got %s", corerrors.CodeOf(err))
	}
	if corerrors.Retryable(corerrors.CodeOf(err)) {
		t.Error("expected RangeNotSatisfiable to be non-retryable")
	}
}

func TestCheckStatusRejects200WithMismatchedContentLength(t *testing.T) {
	err := checkStatus(http.StatusOK, true, 500, 1000)
	if corerrors.CodeOf(err) != corerrors.CodeRangeNotSatisfiable {
		t.Errorf("expected CodeRangeNotSatisfiable for a whole-file 200 whose Content-Length disagrees with the known total size, got %s", corerrors.CodeOf(err))
	}
}

func TestCheckStatusClassifiesClientErrors(t *testing.T) {
	err := checkStatus(http.StatusNotFound, false, -1, 1000)
	if err == nil {
		t.Fatal("expected an error for a 404")
	}
	if corerrors.CodeOf(err) != corerrors.CodeClient4xx {
		t.Errorf("expected CodeClient4xx, got %s", corerrors.CodeOf(err))
	}
}
