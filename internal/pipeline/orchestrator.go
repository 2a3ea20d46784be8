package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/sagelearn/sage/internal/jobs"
	"github.com/sagelearn/sage/internal/storage"
)

// DefaultJobTimeout bounds how long a single job may stay in flight. A job
// that exceeds it is failed with the deadline error.
const DefaultJobTimeout = 5 * time.Minute

// Archiver persists terminal job outcomes. *storage.Store satisfies it.
type Archiver interface {
	SaveInteraction(in storage.Interaction) error
}

// Orchestrator runs submitted jobs in the background, one goroutine per job
// against a bounded deadline. Stage updates flow through a per-job channel
// that is mirrored into the store's polled fields.
type Orchestrator struct {
	store    jobs.Store
	answerer *Answerer
	archive  Archiver
	timeout  time.Duration
}

// NewOrchestrator creates an Orchestrator. archive may be nil to skip the
// interaction archive; a non-positive timeout falls back to DefaultJobTimeout.
func NewOrchestrator(store jobs.Store, answerer *Answerer, archive Archiver, timeout time.Duration) *Orchestrator {
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}
	return &Orchestrator{
		store:    store,
		answerer: answerer,
		archive:  archive,
		timeout:  timeout,
	}
}

// Submit registers the request as a new job and starts answering it in the
// background. The returned snapshot is already in state processing.
func (o *Orchestrator) Submit(req Request) jobs.Job {
	job := o.store.Create(req.Question, req.Context, req.WeakConcepts)
	go o.run(job.ID, req, job.CreatedAt)
	return job
}

type progressUpdate struct {
	progress int
	message  string
}

// run executes one job to its terminal state and archives the outcome.
func (o *Orchestrator) run(id string, req Request, createdAt time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()

	// A drain goroutine mirrors stage updates into the polled job fields,
	// keeping store writes off the pipeline goroutine. The channel is closed
	// and fully drained before the terminal write below.
	updates := make(chan progressUpdate, 8)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for u := range updates {
			if err := o.store.SetProgress(id, u.progress, u.message); err != nil {
				slog.Warn("pipeline: progress update dropped", "job", id, "error", err)
			}
		}
	}()

	report := func(progress int, message string) {
		select {
		case updates <- progressUpdate{progress: progress, message: message}:
		case <-ctx.Done():
		}
	}

	parsed, err := o.answerer.Answer(ctx, req, report)

	close(updates)
	<-drained

	if err != nil {
		slog.Warn("pipeline: job failed", "job", id, "error", err)
		if ferr := o.store.Fail(id, err.Error()); ferr != nil {
			slog.Warn("pipeline: recording job failure", "job", id, "error", ferr)
		}
	} else {
		res := jobs.Result{
			Answer:           parsed.Answer,
			Citations:        parsed.Citations,
			Themes:           parsed.Themes,
			ProcessingTimeMs: time.Since(createdAt).Milliseconds(),
		}
		if cerr := o.store.Complete(id, res); cerr != nil {
			slog.Warn("pipeline: recording job completion", "job", id, "error", cerr)
		}
	}

	o.archiveJob(id)
}

// archiveJob writes the job's terminal snapshot to the interaction archive.
func (o *Orchestrator) archiveJob(id string) {
	if o.archive == nil {
		return
	}
	job, err := o.store.Get(id)
	if err != nil {
		return
	}

	in := storage.Interaction{
		ID:        job.ID,
		CreatedAt: job.CreatedAt,
		Question:  job.Question,
		Status:    string(job.Status),
		Error:     job.Error,
	}
	if job.Result != nil {
		in.Answer = job.Result.Answer
		in.Citations = marshalCitations(job.Result.Citations)
		in.Themes = job.Result.Themes
		in.ProcessingTimeMs = job.Result.ProcessingTimeMs
	}

	if err := o.archive.SaveInteraction(in); err != nil {
		slog.Warn("pipeline: archiving interaction failed", "job", id, "error", err)
	}
}

func marshalCitations(citations []string) string {
	if len(citations) == 0 {
		return "[]"
	}
	b, err := json.Marshal(citations)
	if err != nil {
		return "[]"
	}
	return string(b)
}
