package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jdholdren/webtrack/internal/progress"
	"github.com/jdholdren/webtrack/internal/webtrack"
)

// Reporter answers status polls for processing requests.
//
// Running requests are read from the live snapshot, everything else from the database. Finished
// requests never change, so their snapshots are cached.
type Reporter struct {
	requests webtrack.ProcessingRequestRepo
	progress ProgressStore
	finished *lru.Cache[int64, webtrack.Snapshot]
}

func NewReporter(requests webtrack.ProcessingRequestRepo, progress ProgressStore, cacheSize int) (*Reporter, error) {
	if cacheSize < 1 {
		cacheSize = 1
	}
	cache, err := lru.New[int64, webtrack.Snapshot](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("error creating status cache: %w", err)
	}

	return &Reporter{
		requests: requests,
		progress: progress,
		finished: cache,
	}, nil
}

// Status returns the current snapshot of the request.
//
// A request in process whose live snapshot is gone yields [webtrack.ErrSnapshotMissing].
func (r *Reporter) Status(ctx context.Context, id int64) (webtrack.Snapshot, error) {
	if snap, ok := r.finished.Get(id); ok {
		return snap, nil
	}

	pr, err := r.requests.ProcessingRequest(ctx, id)
	if err != nil {
		return webtrack.Snapshot{}, err
	}

	switch {
	case pr.Status.Terminal():
		snap := pr.Snapshot()
		r.finished.Add(id, snap)
		return snap, nil
	case pr.Status == webtrack.RequestStatusInProcess:
		return r.live(ctx, pr)
	default:
		return pr.Snapshot(), nil
	}
}

func (r *Reporter) live(ctx context.Context, pr webtrack.ProcessingRequest) (webtrack.Snapshot, error) {
	if pr.TaskID == nil {
		slog.WarnContext(ctx, "request in process without a task", "request_id", pr.ID)
		return webtrack.Snapshot{}, fmt.Errorf("request %d has no task: %w", pr.ID, webtrack.ErrSnapshotMissing)
	}

	snap, err := r.progress.Get(ctx, *pr.TaskID)
	if errors.Is(err, progress.ErrNotFound) {
		slog.WarnContext(ctx, "live snapshot missing", "request_id", pr.ID, "task_id", *pr.TaskID)
		return webtrack.Snapshot{}, fmt.Errorf("task %s: %w", *pr.TaskID, webtrack.ErrSnapshotMissing)
	}
	if err != nil {
		return webtrack.Snapshot{}, err
	}

	return snap, nil
}
