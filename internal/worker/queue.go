package worker

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/client"

	"github.com/jdholdren/webtrack/internal/ingest"
)

// Queue starts processing workflows for submitted archives.
type Queue struct {
	cli client.Client
}

func NewQueue(cli client.Client) *Queue {
	return &Queue{cli: cli}
}

// Enqueue starts the workflow and returns without waiting on it.
//
// The task id is used as the workflow id, so a task can only ever be started once.
func (q *Queue) Enqueue(ctx context.Context, task ingest.Task) error {
	options := client.StartWorkflowOptions{
		ID:        task.TaskID,
		TaskQueue: TaskQueue,
	}
	if _, err := q.cli.ExecuteWorkflow(ctx, options, workflows{}.ProcessArchive, task); err != nil {
		return fmt.Errorf("unable to execute workflow: %w", err)
	}

	return nil
}
