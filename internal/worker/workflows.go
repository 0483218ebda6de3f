package worker

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/jdholdren/webtrack/internal/ingest"
	"github.com/jdholdren/webtrack/internal/webtrack"
)

type workflows struct{}

// ProcessArchive ingests every url of an uploaded archive.
//
// The job is run exactly once: a failure midway leaves some urls registered, and a second run
// would report them all as duplicates.
func (workflows) ProcessArchive(ctx workflow.Context, task ingest.Task) (webtrack.Snapshot, error) {
	options := workflow.ActivityOptions{
		StartToCloseTimeout: time.Hour,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, options)
	l := workflow.GetLogger(ctx)

	var snap webtrack.Snapshot
	if err := workflow.ExecuteActivity(ctx, acts.IngestArchive, task).Get(ctx, &snap); err != nil {
		l.Error("failed to process archive", "request_id", task.RequestID, "type", errType(err), "error", err)
		return webtrack.Snapshot{}, err
	}

	l.Info("processed archive", "request_id", task.RequestID, "status", snap.Status)
	return snap, nil
}

// CheckAvailability requests every resource and records whether it answered.
func (workflows) CheckAvailability(ctx workflow.Context) error {
	options := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, options)
	l := workflow.GetLogger(ctx)

	var ids []int64
	if err := workflow.ExecuteActivity(ctx, acts.ResourceIDs).Get(ctx, &ids); err != nil {
		l.Error("failed to list resources", "error", err)
		return err
	}

	wg := workflow.NewWaitGroup(ctx)
	wg.Add(len(ids))
	for _, id := range ids {
		workflow.Go(ctx, func(ctx workflow.Context) {
			defer wg.Done()

			if err := workflow.ExecuteActivity(ctx, acts.CheckResource, id).Get(ctx, nil); err != nil {
				l.Error("failed to check resource", "resource_id", id, "error", err)
			}
		})
	}

	wg.Wait(ctx)

	return nil
}
