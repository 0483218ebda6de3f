package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/jdholdren/webtrack/internal/ingest"
	"github.com/jdholdren/webtrack/internal/resources"
)

const TaskQueue = "ingest"

const checkScheduleID = "check_availability"

type Config struct {
	// How many archives, or availability checks, run at once.
	MaxConcurrentActivities int
	// How often every resource gets checked. Zero turns the checks off.
	CheckEvery time.Duration
	// Timeout for a single availability request.
	CheckTimeout time.Duration
}

// NewWorker sets up the worker with registration of workflows, activities, and schedules.
func NewWorker(ctx context.Context, cli client.Client, job *ingest.Job, res resources.Service, cfg Config) (worker.Worker, error) {
	timeout := cfg.CheckTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	a := activities{
		job:       job,
		resources: res,
		client:    &http.Client{Timeout: timeout},
	}

	w := worker.New(cli, TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize: cfg.MaxConcurrentActivities,
	})

	if err := registerEverything(ctx, w, a, cli, cfg.CheckEvery); err != nil {
		return nil, fmt.Errorf("error registering workflows and activities: %w", err)
	}

	return w, nil
}

func registerEverything(ctx context.Context, w worker.Worker, a activities, cli client.Client, checkEvery time.Duration) error {
	// Workflows
	wfs := workflows{}
	w.RegisterWorkflow(wfs.ProcessArchive)
	w.RegisterWorkflow(wfs.CheckAvailability)

	// Activities
	w.RegisterActivity(&a)

	// Schedules:
	// Availability checks
	if checkEvery <= 0 {
		return nil
	}
	return ensureCheckSchedule(ctx, cli.ScheduleClient(), wfs, checkEvery)
}

// Creates the availability check schedule, or brings its interval in line with the config.
func ensureCheckSchedule(ctx context.Context, sc client.ScheduleClient, wfs workflows, checkEvery time.Duration) error {
	handle := sc.GetHandle(ctx, checkScheduleID)
	_, err := handle.Describe(ctx)
	var notFound *serviceerror.NotFound
	if errors.As(err, &notFound) {
		_, err = sc.Create(ctx, client.ScheduleOptions{
			ID: checkScheduleID,
			Spec: client.ScheduleSpec{
				Intervals: []client.ScheduleIntervalSpec{{Every: checkEvery}},
			},
			Action: &client.ScheduleWorkflowAction{
				ID:        checkScheduleID,
				Workflow:  wfs.CheckAvailability,
				TaskQueue: TaskQueue,
			},
		})
		if err != nil {
			return fmt.Errorf("error creating schedule: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("error describing schedule: %w", err)
	}

	return handle.Update(ctx, client.ScheduleUpdateOptions{
		DoUpdate: func(input client.ScheduleUpdateInput) (*client.ScheduleUpdate, error) {
			schedule := input.Description.Schedule
			schedule.Spec = &client.ScheduleSpec{
				Intervals: []client.ScheduleIntervalSpec{{Every: checkEvery}},
			}
			return &client.ScheduleUpdate{
				Schedule: &schedule,
			}, nil
		},
	})
}
