package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jdholdren/webtrack/internal/archive"
	"github.com/jdholdren/webtrack/internal/logger"
	"github.com/jdholdren/webtrack/internal/webtrack"
)

type (
	// Job processes one archive at a time; it holds no per-task state and is safe to share.
	Job struct {
		requests         webtrack.ProcessingRequestRepo
		archives         *archive.Store
		resources        Creator
		progress         ProgressStore
		progressEvery    int
		progressInterval time.Duration
	}

	JobParams struct {
		Requests  webtrack.ProcessingRequestRepo
		Archives  *archive.Store
		Resources Creator
		Progress  ProgressStore
		// How many rows go by between snapshots. Defaults to every row.
		ProgressEvery int
		// Minimum time between snapshots while rows are processed. Zero means no limit.
		ProgressInterval time.Duration
	}
)

func NewJob(p JobParams) *Job {
	every := p.ProgressEvery
	if every < 1 {
		every = 1
	}

	return &Job{
		requests:         p.Requests,
		archives:         p.Archives,
		resources:        p.Resources,
		progress:         p.Progress,
		progressEvery:    every,
		progressInterval: p.ProgressInterval,
	}
}

// Tracks the counts of a running task.
type tally struct {
	total     *int
	processed int
	errURLs   []string
}

func (t *tally) snapshot(status webtrack.RequestStatus) webtrack.Snapshot {
	urls := make([]string, len(t.errURLs))
	copy(urls, t.errURLs)

	snap := webtrack.Snapshot{
		Status: status,
		Total:  t.total,
		Errors: webtrack.SnapshotErrors{Count: len(urls), URLs: urls},
	}
	if t.total != nil {
		snap.Processed = intPtr(t.processed)
	}

	return snap
}

// Run processes the archive of the task from start to finish.
//
// Per-url problems never fail the run, they're counted and reported in the snapshot. Archive level
// problems end the run with a failure status and reason. An error is only returned when the
// request couldn't be moved through its states at all.
func (j *Job) Run(ctx context.Context, task Task) (webtrack.Snapshot, error) {
	ctx = logger.Ctx(ctx,
		slog.Int64("request_id", task.RequestID),
		slog.String("task_id", task.TaskID),
	)

	// Counts stay null until the archive has been read
	t := &tally{errURLs: []string{}}
	j.publish(ctx, task, t.snapshot(webtrack.RequestStatusInProcess))
	if err := j.requests.MarkInProcess(ctx, task.RequestID, task.TaskID); err != nil {
		return webtrack.Snapshot{}, fmt.Errorf("error marking request in process: %w", err)
	}
	slog.InfoContext(ctx, "processing archive", "archive", task.ArchiveName)

	reader, err := j.archives.Open(task.ArchiveName)
	if err != nil {
		slog.WarnContext(ctx, "archive could not be opened", "err", err)
		return j.fail(ctx, task, t, err)
	}
	defer reader.Close()

	t.total = intPtr(reader.Total())
	j.publish(ctx, task, t.snapshot(webtrack.RequestStatusInProcess))

	var (
		rows        int
		loopErr     error
		lastPublish = time.Now()
	)
	for reader.Next() {
		if err := ctx.Err(); err != nil {
			loopErr = err
			break
		}

		j.ingestRow(ctx, t, reader.Row())
		rows++
		if rows%j.progressEvery == 0 && time.Since(lastPublish) >= j.progressInterval {
			j.publish(ctx, task, t.snapshot(webtrack.RequestStatusInProcess))
			lastPublish = time.Now()
		}
	}
	if loopErr == nil {
		loopErr = reader.Err()
	}
	if loopErr != nil {
		slog.ErrorContext(ctx, "archive processing stopped early", "err", loopErr, "rows", rows)
		return j.fail(ctx, task, t, loopErr)
	}

	return j.finish(ctx, task, t)
}

func (j *Job) ingestRow(ctx context.Context, t *tally, row archive.Row) {
	if row.Err != nil {
		slog.InfoContext(ctx, "skipping malformed row", "line", row.Line, "err", row.Err)
		t.errURLs = append(t.errURLs, row.URL)
		return
	}

	_, err := j.resources.Create(ctx, row.URL)
	switch {
	case err == nil:
		t.processed++
		return
	case errors.Is(err, webtrack.ErrAlreadyExists), errors.Is(err, webtrack.ErrMalformedURL):
		slog.DebugContext(ctx, "url rejected", "line", row.Line, "url", row.URL, "err", err)
	default:
		slog.ErrorContext(ctx, "error storing url", "line", row.Line, "url", row.URL, "err", err)
	}

	t.errURLs = append(t.errURLs, row.URL)
}

// Settles on a terminal status from the counts.
func terminalStatus(total, errs int) webtrack.RequestStatus {
	switch {
	case errs == 0 && total > 0:
		return webtrack.RequestStatusSuccess
	case errs >= total:
		return webtrack.RequestStatusFailure
	default:
		return webtrack.RequestStatusPartialFailure
	}
}

func (j *Job) finish(ctx context.Context, task Task, t *tally) (webtrack.Snapshot, error) {
	snap := t.snapshot(terminalStatus(*t.total, len(t.errURLs)))
	return j.finalize(ctx, task, snap)
}

func (j *Job) fail(ctx context.Context, task Task, t *tally, cause error) (webtrack.Snapshot, error) {
	snap := t.snapshot(webtrack.RequestStatusFailure)
	snap.FailureReason = cause.Error()

	return j.finalize(ctx, task, snap)
}

// Publishes the terminal snapshot, then persists it.
func (j *Job) finalize(ctx context.Context, task Task, snap webtrack.Snapshot) (webtrack.Snapshot, error) {
	// Finishing up has to happen even when the run was cancelled
	ctx = context.WithoutCancel(ctx)

	j.publish(ctx, task, snap)

	args := webtrack.FinalizeArgs{
		Status:        snap.Status,
		Total:         snap.Total,
		Processed:     snap.Processed,
		ErrorURLs:     snap.Errors.URLs,
		FailureReason: snap.FailureReason,
	}
	if snap.Processed != nil {
		args.Errors = intPtr(snap.Errors.Count)
	}
	if err := j.requests.FinalizeProcessingRequest(ctx, task.RequestID, args); err != nil {
		return webtrack.Snapshot{}, fmt.Errorf("error finalizing request: %w", err)
	}

	if err := j.archives.Remove(task.ArchiveName); err != nil {
		slog.WarnContext(ctx, "error removing processed archive", "err", err)
	}

	slog.InfoContext(ctx, "archive processed",
		"status", snap.Status,
		"errors", snap.Errors.Count,
	)
	return snap, nil
}

// Snapshots are best effort; the database has the final word.
func (j *Job) publish(ctx context.Context, task Task, snap webtrack.Snapshot) {
	if err := j.progress.Publish(ctx, task.TaskID, snap); err != nil {
		slog.ErrorContext(ctx, "error publishing progress", "err", err)
	}
}
