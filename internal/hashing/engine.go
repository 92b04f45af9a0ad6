// Package hashing implements the Integrity Verifier (spec §4.8): a
// streaming checksummer usable incrementally while a segment downloads,
// plus whole-file and cross-file verification helpers.
package hashing

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"time"

	"github.com/kagedl/resumedl/internal/corerrors"
	"github.com/kagedl/resumedl/internal/model"
)

// streamBufferSize matches the teacher's DefaultBufferSize. File hashing
// reads in chunks of this size and takes no context, so it is not
// cancellable part-way through a file.
const streamBufferSize = 8 * 1024 * 1024

// StreamHasher is fed bytes incrementally as they arrive off the wire and
// finalized exactly once. It is explicitly non-resettable: a retried
// attempt that must rehash from zero constructs a new instance (spec §4.8).
type StreamHasher struct {
	algorithm model.Algorithm
	h         hash.Hash
	bytes     int64
	done      bool
}

// NewStreamHasher constructs a hasher for algorithm, or a CodeUnsupportedAlgorithm
// error if it isn't one of the four spec-recognized algorithms.
func NewStreamHasher(algorithm model.Algorithm) (*StreamHasher, error) {
	h, err := newHash(algorithm)
	if err != nil {
		return nil, err
	}
	return &StreamHasher{algorithm: algorithm, h: h}, nil
}

func newHash(algorithm model.Algorithm) (hash.Hash, error) {
	switch algorithm {
	case model.AlgorithmMD5:
		return md5.New(), nil
	case model.AlgorithmSHA1:
		return sha1.New(), nil
	case model.AlgorithmSHA256:
		return sha256.New(), nil
	case model.AlgorithmSHA512:
		return sha512.New(), nil
	default:
		return nil, corerrors.New(corerrors.CodeUnsupportedAlgorithm, fmt.Sprintf("unsupported hash algorithm %q", algorithm))
	}
}

// Update feeds bytes into the hash. It is not safe to call concurrently
// with itself or Digest.
func (s *StreamHasher) Update(p []byte) {
	if s.done {
		return
	}
	s.h.Write(p)
	s.bytes += int64(len(p))
}

// Digest finalizes the hash and returns its hex-encoded form. Once called,
// the hasher is done; Update becomes a no-op.
func (s *StreamHasher) Digest() string {
	s.done = true
	return hex.EncodeToString(s.h.Sum(nil))
}

// BytesHashed reports how many bytes have been fed to Update so far.
func (s *StreamHasher) BytesHashed() int64 {
	return s.bytes
}

// VerificationResult is the outcome of verifying a file against an
// optional expected digest (spec §4.8, §6 verify_integrity).
type VerificationResult struct {
	Actual   string
	Expected string
	OK       bool
	Bytes    int64
	Elapsed  time.Duration
}

// VerifyFile streams path through a fresh hasher and compares against
// expected (if non-empty). A fresh streaming hash is required every time:
// concatenating segment digests is not a valid whole-file digest
// (spec §4.4).
func VerifyFile(path string, algorithm model.Algorithm, expected string) (VerificationResult, error) {
	start := time.Now()
	f, err := os.Open(path)
	if err != nil {
		return VerificationResult{}, corerrors.Wrap(corerrors.ClassifyTransportError(err), "cannot open file for verification", err)
	}
	defer f.Close()

	hasher, err := NewStreamHasher(algorithm)
	if err != nil {
		return VerificationResult{}, err
	}

	buf := make([]byte, streamBufferSize)
	for {
		n, readErr := f.Read(buf)
		if n > 0 {
			hasher.Update(buf[:n])
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return VerificationResult{}, corerrors.Wrap(corerrors.ClassifyTransportError(readErr), "error reading file during verification", readErr)
		}
	}

	actual := hasher.Digest()
	result := VerificationResult{
		Actual:   actual,
		Expected: expected,
		Bytes:    hasher.BytesHashed(),
		Elapsed:  time.Since(start),
	}
	result.OK = expected == "" || actual == expected
	return result, nil
}

// VerifySegments hashes each segment's part file independently, used by the
// orchestrator when integrity.verify_segments is set (spec §4.8).
func VerifySegments(segments []model.Segment, algorithm model.Algorithm) (map[string]VerificationResult, error) {
	results := make(map[string]VerificationResult, len(segments))
	for _, seg := range segments {
		res, err := VerifyFile(seg.PartPath, algorithm, seg.Checksum)
		if err != nil {
			return nil, err
		}
		results[seg.ID] = res
	}
	return results, nil
}

// CompareFiles reports whether a and b have identical digests under
// algorithm.
func CompareFiles(a, b string, algorithm model.Algorithm) (bool, error) {
	ra, err := VerifyFile(a, algorithm, "")
	if err != nil {
		return false, err
	}
	rb, err := VerifyFile(b, algorithm, "")
	if err != nil {
		return false, err
	}
	return ra.Actual == rb.Actual, nil
}
