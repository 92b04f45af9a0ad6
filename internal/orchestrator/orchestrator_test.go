package orchestrator

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

	"github.com/kagedl/resumedl/internal/model"
	"github.com/kagedl/resumedl/internal/registry"
	"github.com/kagedl/resumedl/internal/resume"
	"github.com/kagedl/resumedl/internal/session"
)

func rangeOrigin(t *testing.T, data []byte) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", strconv.Itoa(len(data)))
			w.Header().Set("Accept-Ranges", "bytes")
			w.Header().Set("ETag", `"fixed-etag"`)
			return
		}
		rangeHeader := r.Header.Get("Range")
		if rangeHeader == "" {
			w.WriteHeader(http.StatusOK)
			w.Write(data)
			return
		}
		rangeHeader = strings.TrimPrefix(rangeHeader, "bytes=")
		parts := strings.Split(rangeHeader, "-")
		start, _ := strconv.ParseInt(parts[0], 10, 64)
		end, _ := strconv.ParseInt(parts[1], 10, 64)
		if end >= int64(len(data)) {
			end = int64(len(data)) - 1
		}
		w.Header().Set("Content-Range", "bytes "+strconv.FormatInt(start, 10)+"-"+strconv.FormatInt(end, 10)+"/"+strconv.Itoa(len(data)))
		w.Header().Set("ETag", `"fixed-etag"`)
		w.WriteHeader(http.StatusPartialContent)
		w.Write(data[start : end+1])
	}))
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, string) {
	dir := t.TempDir()
	reg, err := registry.New(filepath.Join(dir, "tasks.json"))
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	resumes, err := resume.NewStore(filepath.Join(dir, "resume"))
	if err != nil {
		t.Fatalf("resume.NewStore: %v", err)
	}
	sessions := session.NewManager(session.ClientConfig{})
	return New(sessions, reg, resumes, 5), dir
}

func TestDownloadBlockingCompletesAndMergesFile(t *testing.T) {
	data := make([]byte, 3*1024*1024)
	for i := range data {
		data[i] = byte(i % 241)
	}
	origin := rangeOrigin(t, data)
	defer origin.Close()

	orch, dir := newTestOrchestrator(t)
	outputPath := filepath.Join(dir, "out", "download.bin")

	task, err := orch.Create(model.DownloadConfig{
		URL:            origin.URL,
		OutputPath:     outputPath,
		MaxConcurrency: 4,
		WorkMode:       model.WorkModeBlocking,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	final, err := orch.Start(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if final.Status != model.StatusCompleted {
		t.Fatalf("expected Completed, got %s (error: %v)", final.Status, final.Error)
	}

	written, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("reading merged output: %v", err)
	}
	if len(written) != len(data) {
		t.Fatalf("merged file has %d bytes, want %d", len(written), len(data))
	}
	for i := range data {
		if written[i] != data[i] {
			t.Fatalf("merged output mismatch at byte %d", i)
		}
	}

	if _, err := os.Stat(outputPath + ".parts"); !os.IsNotExist(err) {
		t.Error("expected the part directory to be removed after a successful merge")
	}
}

func TestDownloadRejectsInvalidConfig(t *testing.T) {
	orch, dir := newTestOrchestrator(t)
	_, err := orch.Create(model.DownloadConfig{
		URL:        "",
		OutputPath: filepath.Join(dir, "out.bin"),
	})
	if err == nil {
		t.Fatal("expected Create to reject a config with an empty URL")
	}
}

func TestStartRejectsCompletedTask(t *testing.T) {
	data := []byte("short file contents for the happy path")
	origin := rangeOrigin(t, data)
	defer origin.Close()

	orch, dir := newTestOrchestrator(t)
	task, err := orch.Create(model.DownloadConfig{
		URL:        origin.URL,
		OutputPath: filepath.Join(dir, "out.bin"),
		WorkMode:   model.WorkModeBlocking,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := orch.Start(context.Background(), task.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := orch.Start(context.Background(), task.ID); err == nil {
		t.Error("expected Start on an already-completed task to fail (not Pending or Failed)")
	}
}

func TestQueueFullRejectsBeyondMaxConcurrentTasks(t *testing.T) {
	data := make([]byte, 64*1024)
	origin := rangeOrigin(t, data)
	defer origin.Close()

	dir := t.TempDir()
	reg, _ := registry.New(filepath.Join(dir, "tasks.json"))
	resumes, _ := resume.NewStore(filepath.Join(dir, "resume"))
	sessions := session.NewManager(session.ClientConfig{})
	orch := New(sessions, reg, resumes, 1)

	task1, _ := orch.Create(model.DownloadConfig{URL: origin.URL, OutputPath: filepath.Join(dir, "a.bin")})
	task2, _ := orch.Create(model.DownloadConfig{URL: origin.URL, OutputPath: filepath.Join(dir, "b.bin")})

	if _, err := orch.Start(context.Background(), task1.ID); err != nil {
		t.Fatalf("Start task1: %v", err)
	}
	_, err := orch.Start(context.Background(), task2.ID)
	if err == nil {
		t.Error("expected the second concurrent task to be rejected with a queue-full error")
	}

	// Let task1's background run finish before t.TempDir is removed.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if rec, err := orch.Get(task1.ID); err != nil || rec.Status.Terminal() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestCancelDiscardsPartFiles(t *testing.T) {
	blocked := make(chan struct{})
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", "1048576")
			w.Header().Set("Accept-Ranges", "bytes")
			return
		}
		<-blocked
		w.WriteHeader(http.StatusPartialContent)
	}))
	defer origin.Close()
	defer close(blocked)

	orch, dir := newTestOrchestrator(t)
	outputPath := filepath.Join(dir, "out.bin")
	task, err := orch.Create(model.DownloadConfig{
		URL:        origin.URL,
		OutputPath: outputPath,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := orch.Start(context.Background(), task.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if err := orch.Cancel(task.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	rec, err := orch.Get(task.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Status != model.StatusCancelled {
		t.Errorf("expected Cancelled, got %s", rec.Status)
	}
	if _, err := os.Stat(outputPath + ".parts"); !os.IsNotExist(err) {
		t.Error("expected Cancel to remove the part-file directory")
	}
}

func TestTemporaryWorkModeDeletesRecordOnCompletion(t *testing.T) {
	data := []byte("temporary work mode leaves no trace behind")
	origin := rangeOrigin(t, data)
	defer origin.Close()

	orch, dir := newTestOrchestrator(t)
	task, err := orch.Create(model.DownloadConfig{
		URL:        origin.URL,
		OutputPath: filepath.Join(dir, "out.bin"),
		WorkMode:   model.WorkModeTemporary,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := orch.Start(context.Background(), task.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := orch.Get(task.ID); err != nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected the Temporary task's record to be deleted once it reached a terminal status")
}

func TestTemporaryWorkModeDeletesRecordOnFailure(t *testing.T) {
	orch, dir := newTestOrchestrator(t)
	task, err := orch.Create(model.DownloadConfig{
		URL:        "http://127.0.0.1:1/unreachable",
		OutputPath: filepath.Join(dir, "out.bin"),
		WorkMode:   model.WorkModeTemporary,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := orch.Start(context.Background(), task.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := orch.Get(task.ID); err != nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected the Temporary task's record to be deleted once it reached Failed")
}

func TestPersistentWorkModeKeepsRecordOnCompletion(t *testing.T) {
	data := []byte("persistent work mode keeps its record")
	origin := rangeOrigin(t, data)
	defer origin.Close()

	orch, dir := newTestOrchestrator(t)
	outputPath := filepath.Join(dir, "out.bin")
	task, err := orch.Create(model.DownloadConfig{
		URL:        origin.URL,
		OutputPath: outputPath,
		WorkMode:   model.WorkModePersistent,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := orch.Start(context.Background(), task.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	var rec model.TaskRecord
	for time.Now().Before(deadline) {
		rec, err = orch.Get(task.ID)
		if err != nil {
			t.Fatalf("expected a Persistent task's record to remain, but Get failed: %v", err)
		}
		if rec.Status.Terminal() {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if rec.Status != model.StatusCompleted {
		t.Fatalf("expected Completed, got %s (error: %v)", rec.Status, rec.Error)
	}
}

func TestDeleteRequiresTerminalStatus(t *testing.T) {
	orch, dir := newTestOrchestrator(t)
	task, err := orch.Create(model.DownloadConfig{
		URL:        "http://example.invalid/file",
		OutputPath: filepath.Join(dir, "out.bin"),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := orch.Delete(task.ID); err == nil {
		t.Error("expected Delete to refuse a Pending (non-terminal) task")
	}
}

func TestPauseRequiresRunningTask(t *testing.T) {
	orch, dir := newTestOrchestrator(t)
	task, err := orch.Create(model.DownloadConfig{
		URL:        "http://example.invalid/file",
		OutputPath: filepath.Join(dir, "out.bin"),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := orch.Pause(task.ID); err == nil {
		t.Error("expected Pause on a Pending task to fail")
	}
}

func TestListAndStats(t *testing.T) {
	orch, dir := newTestOrchestrator(t)
	orch.Create(model.DownloadConfig{URL: "http://example.invalid/1", OutputPath: filepath.Join(dir, "1.bin")})
	orch.Create(model.DownloadConfig{URL: "http://example.invalid/2", OutputPath: filepath.Join(dir, "2.bin")})

	tasks := orch.List(registry.Filter{})
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
	stats := orch.Stats()
	if stats.TotalTasks != 2 {
		t.Errorf("Stats().TotalTasks = %d, want 2", stats.TotalTasks)
	}
}
