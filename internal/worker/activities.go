package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.temporal.io/sdk/activity"

	"github.com/jdholdren/webtrack/internal/ingest"
	"github.com/jdholdren/webtrack/internal/resources"
	"github.com/jdholdren/webtrack/internal/webtrack"
)

type activities struct {
	job       *ingest.Job
	resources resources.Service
	client    *http.Client
}

// Instance to make the workflow a bit more readable
var acts = activities{}

// Runs the ingestion job for an uploaded archive.
func (a activities) IngestArchive(ctx context.Context, task ingest.Task) (webtrack.Snapshot, error) {
	snap, err := a.job.Run(ctx, task)
	if err != nil {
		return webtrack.Snapshot{}, activityError(err)
	}

	return snap, nil
}

// Lists all resources we know about in the system.
func (a activities) ResourceIDs(ctx context.Context) ([]int64, error) {
	ids, err := a.resources.IDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing resources: %w", err)
	}

	return ids, nil
}

// Requests the resource's url and records whether it answered.
func (a activities) CheckResource(ctx context.Context, id int64) error {
	l := activity.GetLogger(ctx)

	res, err := a.resources.Get(ctx, id)
	if errors.Is(err, webtrack.ErrResourceNotFound) {
		// Deleted since the list was made
		return nil
	}
	if err != nil {
		return fmt.Errorf("error fetching resource: %w", err)
	}
	if res.Protocol != "http" && res.Protocol != "https" {
		l.Debug("skipping resource that can't be requested", "resource_id", id, "protocol", res.Protocol)
		return nil
	}

	available := a.reachable(ctx, res.FullURL)
	if err := a.resources.RecordAvailability(ctx, id, available); err != nil {
		return fmt.Errorf("error recording availability: %w", err)
	}

	l.Info("checked resource", "resource_id", id, "available", available)
	return nil
}

// Anything under 400 counts as available. Servers that refuse HEAD get a GET instead.
func (a activities) reachable(ctx context.Context, url string) bool {
	status, err := a.do(ctx, http.MethodHead, url)
	if err == nil && (status == http.StatusMethodNotAllowed || status == http.StatusNotImplemented) {
		status, err = a.do(ctx, http.MethodGet, url)
	}
	if err != nil {
		activity.GetLogger(ctx).Debug("resource unreachable", "url", url, "error", err)
		return false
	}

	return status < http.StatusBadRequest
}

func (a activities) do(ctx context.Context, method, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()

	return resp.StatusCode, nil
}
