// Package ingest runs bulk url ingestion: accepting an uploaded archive, processing it in the
// background, and reporting its progress while it runs.
package ingest

import (
	"context"

	"github.com/google/uuid"

	"github.com/jdholdren/webtrack/internal/webtrack"
)

// Task is everything the worker needs to process an upload.
type Task struct {
	ArchiveName string `json:"archive_name"`
	RequestID   int64  `json:"request_id"`
	// Doubles as the workflow id and the key of the live snapshot.
	TaskID string `json:"task_id"`
}

// NewTaskID makes a fresh task id.
func NewTaskID() string {
	return "ingest-" + uuid.NewString()
}

type (
	// Enqueuer hands a task to the background workers.
	Enqueuer interface {
		Enqueue(ctx context.Context, task Task) error
	}

	// Creator registers a single url.
	Creator interface {
		Create(ctx context.Context, rawURL string) (webtrack.WebResource, error)
	}

	// ProgressStore holds the live snapshot of running tasks.
	ProgressStore interface {
		Publish(ctx context.Context, taskID string, snap webtrack.Snapshot) error
		Get(ctx context.Context, taskID string) (webtrack.Snapshot, error)
	}
)

func intPtr(i int) *int {
	return &i
}
