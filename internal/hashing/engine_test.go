package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/kagedl/resumedl/internal/corerrors"
	"github.com/kagedl/resumedl/internal/model"
)

func TestStreamHasherMatchesStdlib(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")

	h, err := NewStreamHasher(model.AlgorithmSHA256)
	if err != nil {
		t.Fatalf("NewStreamHasher: %v", err)
	}
	h.Update(data[:10])
	h.Update(data[10:])

	want := sha256.Sum256(data)
	if got := h.Digest(); got != hex.EncodeToString(want[:]) {
		t.Errorf("Digest() = %s, want %s", got, hex.EncodeToString(want[:]))
	}
	if h.BytesHashed() != int64(len(data)) {
		t.Errorf("BytesHashed() = %d, want %d", h.BytesHashed(), len(data))
	}
}

func TestStreamHasherUpdateAfterDigestIsNoOp(t *testing.T) {
	h, err := NewStreamHasher(model.AlgorithmMD5)
	if err != nil {
		t.Fatalf("NewStreamHasher: %v", err)
	}
	h.Update([]byte("abc"))
	digest := h.Digest()
	h.Update([]byte("more bytes that should be ignored"))
	if h.Digest() != digest {
		t.Error("Update after Digest should not change the finalized hash")
	}
}

func TestNewStreamHasherRejectsUnknownAlgorithm(t *testing.T) {
	_, err := NewStreamHasher(model.Algorithm("crc32"))
	if err == nil {
		t.Fatal("expected an error for an unsupported algorithm")
	}
	if corerrors.CodeOf(err) != corerrors.CodeUnsupportedAlgorithm {
		t.Errorf("expected CodeUnsupportedAlgorithm, got %s", corerrors.CodeOf(err))
	}
}

func TestVerifyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "payload.bin")
	content := []byte("resumable downloads need a correct whole-file digest")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	sum := sha256.Sum256(content)
	expected := hex.EncodeToString(sum[:])

	result, err := VerifyFile(path, model.AlgorithmSHA256, expected)
	if err != nil {
		t.Fatalf("VerifyFile: %v", err)
	}
	if !result.OK {
		t.Error("expected the checksum to match")
	}
	if result.Actual != expected {
		t.Errorf("Actual = %s, want %s", result.Actual, expected)
	}
	if result.Bytes != int64(len(content)) {
		t.Errorf("Bytes = %d, want %d", result.Bytes, len(content))
	}

	result, err = VerifyFile(path, model.AlgorithmSHA256, "deadbeef")
	if err != nil {
		t.Fatalf("VerifyFile: %v", err)
	}
	if result.OK {
		t.Error("expected a mismatched checksum to fail verification")
	}
}

func TestVerifyFileMissingPath(t *testing.T) {
	_, err := VerifyFile(filepath.Join(t.TempDir(), "missing.bin"), model.AlgorithmSHA256, "")
	if err == nil {
		t.Fatal("expected an error opening a missing file")
	}
}

func TestCompareFiles(t *testing.T) {
	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.bin")
	pathB := filepath.Join(dir, "b.bin")
	pathC := filepath.Join(dir, "c.bin")
	os.WriteFile(pathA, []byte("same content"), 0o644)
	os.WriteFile(pathB, []byte("same content"), 0o644)
	os.WriteFile(pathC, []byte("different content"), 0o644)

	equal, err := CompareFiles(pathA, pathB, model.AlgorithmSHA256)
	if err != nil {
		t.Fatalf("CompareFiles: %v", err)
	}
	if !equal {
		t.Error("expected identical content to compare equal")
	}

	equal, err = CompareFiles(pathA, pathC, model.AlgorithmSHA256)
	if err != nil {
		t.Fatalf("CompareFiles: %v", err)
	}
	if equal {
		t.Error("expected different content to compare unequal")
	}
}

func TestVerifySegments(t *testing.T) {
	dir := t.TempDir()
	path1 := filepath.Join(dir, "segment_0.part")
	path2 := filepath.Join(dir, "segment_1.part")
	os.WriteFile(path1, []byte("first half"), 0o644)
	os.WriteFile(path2, []byte("second half"), 0o644)

	segments := []model.Segment{
		{ID: "segment_0", PartPath: path1},
		{ID: "segment_1", PartPath: path2},
	}
	results, err := VerifySegments(segments, model.AlgorithmSHA256)
	if err != nil {
		t.Fatalf("VerifySegments: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, seg := range segments {
		if _, ok := results[seg.ID]; !ok {
			t.Errorf("missing verification result for %s", seg.ID)
		}
	}
}
