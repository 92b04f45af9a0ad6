package worker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/kagedl/resumedl/internal/corerrors"
	"github.com/kagedl/resumedl/internal/hashing"
	"github.com/kagedl/resumedl/internal/logging"
	"github.com/kagedl/resumedl/internal/model"
)

// readChunkSize bounds how much body data is read between cancellation
// checks, matching spec §5's "observed within one chunk read (<= ~64 KiB)"
// guarantee.
const readChunkSize = 64 * 1024

// progressTickInterval is spec §4.2's "at most every 100 ms" ProgressTick
// cadence.
const progressTickInterval = 100 * time.Millisecond

// RetryPolicy is the backoff configuration from spec §4.2.
type RetryPolicy struct {
	BaseDelay   time.Duration
	Factor      float64
	MaxDelay    time.Duration
	MaxAttempts int
	Jitter      bool
}

// DefaultRetryPolicy returns the spec's defaults for a given retry_count.
func DefaultRetryPolicy(retryCount int) RetryPolicy {
	return RetryPolicy{
		BaseDelay:   1 * time.Second,
		Factor:      2,
		MaxDelay:    30 * time.Second,
		MaxAttempts: retryCount + 1,
		Jitter:      true,
	}
}

// newBackOff builds a cenkalti/backoff ExponentialBackOff matching
// RetryPolicy's delay = min(base x factor^(attempt-1), max_delay) formula,
// with optional +/-50% jitter.
func (p RetryPolicy) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.Multiplier = p.Factor
	b.MaxInterval = p.MaxDelay
	if p.Jitter {
		b.RandomizationFactor = 0.5
	} else {
		b.RandomizationFactor = 0
	}
	b.Reset()
	return b
}

// Params configures a single segment download.
type Params struct {
	URL         string
	Segment     model.Segment
	Headers     map[string]string
	Client      *http.Client
	Timeout     time.Duration
	Retry       RetryPolicy
	Algorithm   model.Algorithm
	Limiter     *rate.Limiter // optional per-task bandwidth cap
	TotalSize   int64         // whole resource size, used to recognize a true whole-file segment
}

// Run downloads one segment to completion, retrying per Retry, and returns
// the final segment state. Events are sent to events as they occur; Run
// never sends on events after it returns. ctx cancellation is observed at
// every chunk read and during backoff sleeps (spec §4.2, §5).
func Run(ctx context.Context, params Params, events chan<- Event) model.Segment {
	log := logging.For("worker").With().Str("segmentId", params.Segment.ID).Logger()
	seg := params.Segment

	hasher, err := hashing.NewStreamHasher(params.Algorithm)
	if err != nil {
		events <- Event{Kind: EventSegmentFailed, SegmentID: seg.ID, Downloaded: seg.Downloaded, Reason: corerrors.CodeUnsupportedAlgorithm, Err: err}
		seg.Status = model.StatusFailed
		return seg
	}

	bo := params.Retry.newBackOff()
	maxAttempts := params.Retry.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	var lastCode corerrors.Code

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			seg.Status = model.StatusPaused
			events <- Event{Kind: EventSegmentFailed, SegmentID: seg.ID, Downloaded: seg.Downloaded, Reason: corerrors.CodeCancelled, Err: ctx.Err()}
			return seg
		}

		err := attemptOnce(ctx, params, &seg, hasher, events, log)
		if err == nil {
			seg.Status = model.StatusCompleted
			seg.Checksum = hasher.Digest()
			events <- Event{Kind: EventSegmentCompleted, SegmentID: seg.ID, Downloaded: seg.Downloaded, Checksum: seg.Checksum}
			return seg
		}

		if ctx.Err() != nil {
			seg.Status = model.StatusPaused
			events <- Event{Kind: EventSegmentFailed, SegmentID: seg.ID, Downloaded: seg.Downloaded, Reason: corerrors.CodeCancelled, Err: ctx.Err()}
			return seg
		}

		lastErr = err
		lastCode = corerrors.ClassifyTransportError(err)
		seg.RetryCount++

		if !corerrors.Retryable(lastCode) || attempt == maxAttempts {
			log.Debug().Err(err).Str("code", string(lastCode)).Int("attempt", attempt).Msg("segment failed, not retrying")
			break
		}

		delay := bo.NextBackOff()
		if delay == backoff.Stop {
			break
		}
		log.Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("retrying segment after backoff")
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			seg.Status = model.StatusPaused
			events <- Event{Kind: EventSegmentFailed, SegmentID: seg.ID, Downloaded: seg.Downloaded, Reason: corerrors.CodeCancelled, Err: ctx.Err()}
			return seg
		}
	}

	seg.Status = model.StatusFailed
	events <- Event{Kind: EventSegmentFailed, SegmentID: seg.ID, Downloaded: seg.Downloaded, Reason: lastCode, Err: lastErr}
	return seg
}

// attemptOnce performs exactly one HTTP GET attempt, resuming from
// seg.Downloaded, streaming the body into the part file and hasher.
func attemptOnce(ctx context.Context, params Params, seg *model.Segment, hasher *hashing.StreamHasher, events chan<- Event, log zerolog.Logger) error {
	attemptCtx := ctx
	var cancel context.CancelFunc
	if params.Timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, params.Timeout)
		defer cancel()
	}

	startByte := seg.Start + seg.Downloaded
	flag := os.O_WRONLY | os.O_CREATE
	if seg.Downloaded > 0 {
		flag |= os.O_APPEND
	} else {
		flag |= os.O_TRUNC
	}
	file, err := os.OpenFile(seg.PartPath, flag, 0644)
	if err != nil {
		return corerrors.Wrap(corerrors.ClassifyTransportError(err), "opening part file", err)
	}
	defer file.Close()

	// isWholeFile is true only when this segment's range truly covers the
	// entire resource (the single-segment plan for a small file or a
	// server without range support, or the zero-byte file) -- never for an
	// ordinary segment of a multi-segment plan, even its first attempt at
	// downloaded==0. Only then is a 200 response (no Range honored)
	// legitimate; anything else answering 200 to a Range request is a
	// fail-fast RangeNotSatisfiable per spec §8's boundary list.
	isWholeFile := seg.Start == 0 && seg.Size() == params.TotalSize
	// rangeOmitted is true only for a whole-file segment's very first
	// attempt. A resumed whole-file segment (seg.Downloaded > 0) still needs
	// a Range header -- omitting it would either corrupt the part file by
	// re-appending the full body, or, caught by checkStatus below, fail a
	// resumable download that should have succeeded.
	rangeOmitted := isWholeFile && seg.Downloaded == 0
	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, params.URL, nil)
	if err != nil {
		return err
	}
	for k, v := range params.Headers {
		req.Header.Set(k, v)
	}
	if !rangeOmitted {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", startByte, seg.End))
	}
	req.Header.Set("Connection", "keep-alive")

	resp, err := params.Client.Do(req)
	if err != nil {
		return corerrors.Wrap(corerrors.ClassifyTransportError(err), "performing ranged GET", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp.StatusCode, rangeOmitted, resp.ContentLength, params.TotalSize); err != nil {
		return err
	}
	log.Trace().Int("status", resp.StatusCode).Int64("fromByte", startByte).Msg("segment attempt accepted")

	buf := make([]byte, readChunkSize)
	lastTick := time.Now()
	var sinceTick int64

	for {
		if attemptCtx.Err() != nil {
			return attemptCtx.Err()
		}
		if params.Limiter != nil {
			if err := params.Limiter.WaitN(attemptCtx, readChunkSize); err != nil {
				return attemptCtx.Err()
			}
		}
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := file.Write(buf[:n]); werr != nil {
				return corerrors.Wrap(corerrors.ClassifyTransportError(werr), "writing part file", werr)
			}
			hasher.Update(buf[:n])
			seg.Downloaded += int64(n)
			sinceTick += int64(n)

			if now := time.Now(); now.Sub(lastTick) >= progressTickInterval {
				speed := float64(sinceTick) / now.Sub(lastTick).Seconds()
				events <- Event{Kind: EventProgressTick, SegmentID: seg.ID, Downloaded: seg.Downloaded, DeltaBytes: sinceTick, SpeedSample: speed}
				lastTick = now
				sinceTick = 0
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return corerrors.Wrap(corerrors.ClassifyTransportError(readErr), "reading response body", readErr)
		}
	}

	if sinceTick > 0 {
		events <- Event{Kind: EventProgressTick, SegmentID: seg.ID, Downloaded: seg.Downloaded, DeltaBytes: sinceTick}
	}

	if err := file.Sync(); err != nil {
		return corerrors.Wrap(corerrors.ClassifyTransportError(err), "fsyncing part file", err)
	}

	if !isWholeFile && seg.Downloaded != seg.Size() {
		return corerrors.New(corerrors.CodeNetwork, fmt.Sprintf("segment size mismatch: expected %d got %d", seg.Size(), seg.Downloaded))
	}
	return nil
}

// checkStatus enforces spec §4.2 step 2 and §8's boundary: 206 is required
// for any segment request that carried a Range header. 200 is acceptable
// only when the request deliberately omitted Range (rangeOmitted -- a
// from-scratch whole-file segment), and even then only if its declared
// Content-Length matches the resource's total size. Any other 200 -- a
// genuine Range request on a multi-segment plan, or a resumed whole-file
// segment -- is rejected before a single byte of the body is read, as
// RangeNotSatisfiable (fatal, not retryable per corerrors.Retryable) rather
// than left to be caught later by a size mismatch after streaming the wrong
// bytes.
func checkStatus(status int, rangeOmitted bool, contentLength, totalSize int64) error {
	if status == http.StatusPartialContent {
		return nil
	}
	if status == http.StatusOK {
		if !rangeOmitted {
			return corerrors.New(corerrors.CodeRangeNotSatisfiable, "server returned 200 for a Range request, expected 206 Partial Content")
		}
		if contentLength >= 0 && totalSize > 0 && contentLength != totalSize {
			return corerrors.New(corerrors.CodeRangeNotSatisfiable, fmt.Sprintf("server's 200 response declared %d bytes, expected the whole file's %d", contentLength, totalSize))
		}
		return nil
	}
	if status >= 400 {
		return corerrors.New(corerrors.ClassifyHTTPStatus(status), fmt.Sprintf("server returned status %d", status))
	}
	return corerrors.New(corerrors.CodeRangeNotSatisfiable, fmt.Sprintf("expected 206 Partial Content, got %d", status))
}
