package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sagelearn/sage/internal/engine"
	"github.com/sagelearn/sage/internal/jobs"
	"github.com/sagelearn/sage/internal/storage"
)

// --- mock archiver ---

type mockArchiver struct {
	saves   chan storage.Interaction
	saveErr error
}

func newMockArchiver() *mockArchiver {
	return &mockArchiver{saves: make(chan storage.Interaction, 1)}
}

func (m *mockArchiver) SaveInteraction(in storage.Interaction) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves <- in
	return nil
}

// --- helpers ---

func waitTerminal(t *testing.T, store *jobs.MemoryStore, id string) jobs.Job {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.Get(id)
		if err != nil {
			t.Fatalf("Get(%s): %v", id, err)
		}
		if job.Status.Terminal() {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach a terminal state", id)
	return jobs.Job{}
}

func waitArchived(t *testing.T, ar *mockArchiver) storage.Interaction {
	t.Helper()
	select {
	case in := <-ar.saves:
		return in
	case <-time.After(3 * time.Second):
		t.Fatal("interaction was not archived")
		return storage.Interaction{}
	}
}

// --- tests ---

func TestOrchestrator_CompletesJob(t *testing.T) {
	eng := &mockEngine{
		chatFn: func(ctx context.Context, model string, msgs []engine.Message) (string, error) {
			return "Machine learning finds patterns in data.", nil
		},
	}
	store := jobs.NewMemoryStore()
	orch := NewOrchestrator(store, buildAnswerer(eng), nil, 0)

	job := orch.Submit(Request{Question: "What is machine learning?", Context: "Machine learning is about data."})

	if job.Status != jobs.StatusProcessing {
		t.Errorf("initial status = %q, want %q", job.Status, jobs.StatusProcessing)
	}
	if job.Progress != 0 {
		t.Errorf("initial progress = %d, want 0", job.Progress)
	}
	if job.Message != "request received" {
		t.Errorf("initial message = %q, want %q", job.Message, "request received")
	}

	done := waitTerminal(t, store, job.ID)
	if done.Status != jobs.StatusCompleted {
		t.Fatalf("status = %q, want %q (error: %s)", done.Status, jobs.StatusCompleted, done.Error)
	}
	if done.Progress != 100 {
		t.Errorf("progress = %d, want 100", done.Progress)
	}
	if done.Result == nil {
		t.Fatal("completed job has no result")
	}
	if done.Result.Answer != "Machine learning finds patterns in data." {
		t.Errorf("Answer = %q", done.Result.Answer)
	}
	if done.Result.ProcessingTimeMs < 0 {
		t.Errorf("ProcessingTimeMs = %d, want >= 0", done.Result.ProcessingTimeMs)
	}
	if done.Error != "" {
		t.Errorf("Error = %q, want empty", done.Error)
	}
}

func TestOrchestrator_FailsJob(t *testing.T) {
	eng := &mockEngine{
		chatFn: func(ctx context.Context, model string, msgs []engine.Message) (string, error) {
			return "", errors.New("connection refused")
		},
	}
	store := jobs.NewMemoryStore()
	orch := NewOrchestrator(store, buildAnswerer(eng), nil, 0)

	job := orch.Submit(Request{Question: "q", Context: "c"})

	done := waitTerminal(t, store, job.ID)
	if done.Status != jobs.StatusFailed {
		t.Fatalf("status = %q, want %q", done.Status, jobs.StatusFailed)
	}
	if done.Result != nil {
		t.Error("failed job should have no result")
	}
	if !strings.Contains(done.Error, "upstream model failure") {
		t.Errorf("Error = %q, want upstream model failure", done.Error)
	}
}

// TestOrchestrator_JobTimeout verifies a job that outlives its deadline is
// failed instead of staying in processing forever.
func TestOrchestrator_JobTimeout(t *testing.T) {
	eng := &mockEngine{
		chatFn: func(ctx context.Context, model string, msgs []engine.Message) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
	store := jobs.NewMemoryStore()
	orch := NewOrchestrator(store, buildAnswerer(eng), nil, 50*time.Millisecond)

	job := orch.Submit(Request{Question: "q", Context: "c"})

	done := waitTerminal(t, store, job.ID)
	if done.Status != jobs.StatusFailed {
		t.Fatalf("status = %q, want %q", done.Status, jobs.StatusFailed)
	}
	if !strings.Contains(done.Error, "deadline") {
		t.Errorf("Error = %q, want a deadline error", done.Error)
	}
}

// TestOrchestrator_ProgressMirroredToStore holds the model call until the
// store shows the last stage update, proving the progress channel is drained
// into the polled fields while the job is still running.
func TestOrchestrator_ProgressMirroredToStore(t *testing.T) {
	store := jobs.NewMemoryStore()
	idCh := make(chan string, 1)

	eng := &mockEngine{
		chatFn: func(ctx context.Context, model string, msgs []engine.Message) (string, error) {
			id := <-idCh
			deadline := time.Now().Add(2 * time.Second)
			for time.Now().Before(deadline) {
				job, err := store.Get(id)
				if err != nil {
					return "", err
				}
				if job.Progress == 30 && job.Message == "generating answer" {
					return "done", nil
				}
				time.Sleep(5 * time.Millisecond)
			}
			return "", errors.New("stage update never reached the store")
		},
	}
	orch := NewOrchestrator(store, buildAnswerer(eng), nil, 0)

	job := orch.Submit(Request{Question: "q", Context: "c"})
	idCh <- job.ID

	done := waitTerminal(t, store, job.ID)
	if done.Status != jobs.StatusCompleted {
		t.Fatalf("status = %q, want %q (error: %s)", done.Status, jobs.StatusCompleted, done.Error)
	}
}

func TestOrchestrator_ArchivesCompletedJob(t *testing.T) {
	eng := &mockEngine{
		chatFn: func(ctx context.Context, model string, msgs []engine.Message) (string, error) {
			return "Machine learning finds patterns in data.", nil
		},
	}
	store := jobs.NewMemoryStore()
	ar := newMockArchiver()
	orch := NewOrchestrator(store, buildAnswerer(eng), ar, 0)

	job := orch.Submit(Request{Question: "What is machine learning?", Context: "Machine learning is about data."})

	in := waitArchived(t, ar)
	if in.ID != job.ID {
		t.Errorf("archived ID = %q, want %q", in.ID, job.ID)
	}
	if in.Status != "completed" {
		t.Errorf("archived status = %q, want %q", in.Status, "completed")
	}
	if in.Question != "What is machine learning?" {
		t.Errorf("archived question = %q", in.Question)
	}
	if in.Answer == "" {
		t.Error("archived answer is empty")
	}

	var citations []string
	if err := json.Unmarshal([]byte(in.Citations), &citations); err != nil {
		t.Errorf("archived citations %q is not a JSON array: %v", in.Citations, err)
	}
}

func TestOrchestrator_ArchivesFailedJob(t *testing.T) {
	eng := &mockEngine{
		chatFn: func(ctx context.Context, model string, msgs []engine.Message) (string, error) {
			return "", errors.New("connection refused")
		},
	}
	store := jobs.NewMemoryStore()
	ar := newMockArchiver()
	orch := NewOrchestrator(store, buildAnswerer(eng), ar, 0)

	orch.Submit(Request{Question: "q", Context: "c"})

	in := waitArchived(t, ar)
	if in.Status != "failed" {
		t.Errorf("archived status = %q, want %q", in.Status, "failed")
	}
	if in.Error == "" {
		t.Error("archived error is empty")
	}
	if in.Answer != "" {
		t.Errorf("archived answer = %q, want empty", in.Answer)
	}
}
