package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/jdholdren/webtrack/internal/archive"
	"github.com/jdholdren/webtrack/internal/logger"
	"github.com/jdholdren/webtrack/internal/webtrack"
)

// Orchestrator accepts uploads and hands them to the workers.
type Orchestrator struct {
	archives *archive.Store
	requests webtrack.ProcessingRequestRepo
	queue    Enqueuer
}

func NewOrchestrator(archives *archive.Store, requests webtrack.ProcessingRequestRepo, queue Enqueuer) *Orchestrator {
	return &Orchestrator{
		archives: archives,
		requests: requests,
		queue:    queue,
	}
}

// Submit stores the upload, records a pending request for it and enqueues the processing.
//
// It returns as soon as the task is enqueued; processing happens in the background. Uploads that
// aren't zip files are rejected before anything is recorded.
func (o *Orchestrator) Submit(ctx context.Context, filename string, r io.Reader) (webtrack.ProcessingRequest, error) {
	name, err := o.archives.Save(filename, r)
	if err != nil {
		return webtrack.ProcessingRequest{}, err
	}

	pr, err := o.requests.InsertProcessingRequest(ctx)
	if err != nil {
		o.removeArchive(ctx, name)
		return webtrack.ProcessingRequest{}, fmt.Errorf("error creating processing request: %w", err)
	}

	task := Task{
		ArchiveName: name,
		RequestID:   pr.ID,
		TaskID:      NewTaskID(),
	}
	ctx = logger.Ctx(ctx, slog.Int64("request_id", pr.ID), slog.String("task_id", task.TaskID))

	if err := o.queue.Enqueue(ctx, task); err != nil {
		slog.ErrorContext(ctx, "error enqueueing task", "err", err)

		if ferr := o.requests.FinalizeProcessingRequest(ctx, pr.ID, webtrack.FinalizeArgs{
			Status:        webtrack.RequestStatusFailure,
			FailureReason: "enqueue failed",
		}); ferr != nil {
			slog.ErrorContext(ctx, "error failing unqueued request", "err", ferr)
		}
		o.removeArchive(ctx, name)

		return webtrack.ProcessingRequest{}, fmt.Errorf("error enqueueing task: %w", err)
	}

	slog.InfoContext(ctx, "archive submitted", "archive", name)
	return pr, nil
}

func (o *Orchestrator) removeArchive(ctx context.Context, name string) {
	if err := o.archives.Remove(name); err != nil {
		slog.WarnContext(ctx, "error removing archive", "archive", name, "err", err)
	}
}
