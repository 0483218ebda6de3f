package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/jdholdren/webtrack/internal/webtrack"
)

func (r Repo) InsertProcessingRequest(ctx context.Context) (webtrack.ProcessingRequest, error) {
	const q = `INSERT INTO file_processing_requests (status) VALUES (?);`

	result, err := r.db.ExecContext(ctx, q, webtrack.RequestStatusPending)
	if err != nil {
		return webtrack.ProcessingRequest{}, fmt.Errorf("error inserting processing request: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return webtrack.ProcessingRequest{}, fmt.Errorf("error reading inserted id: %w", err)
	}

	return r.ProcessingRequest(ctx, id)
}

func (r Repo) ProcessingRequest(ctx context.Context, id int64) (webtrack.ProcessingRequest, error) {
	const q = `SELECT * FROM file_processing_requests WHERE id = ?;`

	var pr webtrack.ProcessingRequest
	err := r.db.GetContext(ctx, &pr, q, id)
	if errors.Is(err, sql.ErrNoRows) {
		return webtrack.ProcessingRequest{}, webtrack.ErrProcessingRequestNotFound
	}
	if err != nil {
		return webtrack.ProcessingRequest{}, fmt.Errorf("error fetching processing request: %w", err)
	}

	return pr, nil
}

// MarkInProcess moves a pending request along and records the task working on it.
func (r Repo) MarkInProcess(ctx context.Context, id int64, taskID string) error {
	const q = `UPDATE file_processing_requests
	SET status = ?, task_id = ?, updated_at = CURRENT_TIMESTAMP
	WHERE id = ? AND status = ?;`

	result, err := r.db.ExecContext(ctx, q, webtrack.RequestStatusInProcess, taskID, id, webtrack.RequestStatusPending)
	if err != nil {
		return fmt.Errorf("error marking request in process: %w", err)
	}

	return r.checkTransition(ctx, id, result)
}

// FinalizeProcessingRequest writes the terminal snapshot of a job.
//
// Only requests that haven't reached a terminal status yet are updated.
func (r Repo) FinalizeProcessingRequest(ctx context.Context, id int64, args webtrack.FinalizeArgs) error {
	if !args.Status.Terminal() {
		return fmt.Errorf("status %q is not terminal", args.Status)
	}

	q := sq.Update("file_processing_requests").
		Set("status", args.Status).
		Set("updated_at", sq.Expr("CURRENT_TIMESTAMP"))
	if args.Total != nil {
		q = q.Set("total_count", *args.Total)
	}
	if args.Processed != nil {
		q = q.Set("processed_count", *args.Processed)
	}
	if args.Errors != nil {
		q = q.Set("errors_count", *args.Errors)
	}
	if args.ErrorURLs != nil {
		q = q.Set("error_urls", webtrack.URLList(args.ErrorURLs))
	}
	if args.FailureReason != "" {
		q = q.Set("failure_reason", args.FailureReason)
	}
	q = q.Where(sq.Eq{
		"id":     id,
		"status": []webtrack.RequestStatus{webtrack.RequestStatusPending, webtrack.RequestStatusInProcess},
	})

	query, qArgs, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("error constructing sql: %s", err)
	}
	result, err := r.db.ExecContext(ctx, query, qArgs...)
	if err != nil {
		return fmt.Errorf("error finalizing processing request: %w", err)
	}

	return r.checkTransition(ctx, id, result)
}

// A guarded update that touched nothing either hit a missing row or one that already moved on.
func (r Repo) checkTransition(ctx context.Context, id int64, result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading updated rows: %w", err)
	}
	if n > 0 {
		return nil
	}

	pr, err := r.ProcessingRequest(ctx, id)
	if err != nil {
		return err
	}

	return fmt.Errorf("request %d is %s: %w", id, pr.Status, webtrack.ErrRequestFinalized)
}
