package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jdholdren/webtrack/internal/webtrack"
)

func (r Repo) Resource(ctx context.Context, id int64) (webtrack.WebResource, error) {
	const q = `SELECT * FROM web_resources WHERE id = ?;`

	var res webtrack.WebResource
	err := r.db.GetContext(ctx, &res, q, id)
	if errors.Is(err, sql.ErrNoRows) {
		return webtrack.WebResource{}, webtrack.ErrResourceNotFound
	}
	if err != nil {
		return webtrack.WebResource{}, fmt.Errorf("error fetching resource: %w", err)
	}

	return res, nil
}

func (r Repo) ResourceByUUID(ctx context.Context, id string) (webtrack.WebResource, error) {
	const q = `SELECT * FROM web_resources WHERE uuid = ?;`

	var res webtrack.WebResource
	err := r.db.GetContext(ctx, &res, q, id)
	if errors.Is(err, sql.ErrNoRows) {
		return webtrack.WebResource{}, webtrack.ErrResourceNotFound
	}
	if err != nil {
		return webtrack.WebResource{}, fmt.Errorf("error fetching resource: %w", err)
	}

	return res, nil
}

func (r Repo) ResourceByFullURL(ctx context.Context, fullURL string) (*webtrack.WebResource, error) {
	const q = `SELECT * FROM web_resources WHERE full_url = ?;`

	var res webtrack.WebResource
	err := r.db.GetContext(ctx, &res, q, fullURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error fetching resource by url: %w", err)
	}

	return &res, nil
}

// InsertResource stores a new resource.
//
// The caller is expected to have checked for an existing url, but a concurrent insert of the same
// url still comes back as [webtrack.ErrAlreadyExists].
func (r Repo) InsertResource(ctx context.Context, res webtrack.WebResource) (webtrack.WebResource, error) {
	const q = `INSERT INTO web_resources (
		uuid,
		full_url,
		protocol,
		domain,
		domain_zone,
		url_path,
		query_params,
		screenshot
	) VALUES (
		:uuid,
		:full_url,
		:protocol,
		:domain,
		:domain_zone,
		:url_path,
		:query_params,
		:screenshot
	);`

	res.UUID = uuid.NewString()
	result, err := r.db.NamedExecContext(ctx, q, res)
	if isUniqueViolation(err) {
		return webtrack.WebResource{}, fmt.Errorf("inserting %q: %w", res.FullURL, webtrack.ErrAlreadyExists)
	}
	if err != nil {
		return webtrack.WebResource{}, fmt.Errorf("error inserting resource: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return webtrack.WebResource{}, fmt.Errorf("error reading inserted id: %w", err)
	}

	return r.Resource(ctx, id)
}

func (r Repo) ResourceIDs(ctx context.Context) ([]int64, error) {
	const q = `SELECT id FROM web_resources ORDER BY id;`

	ids := []int64{}
	if err := r.db.SelectContext(ctx, &ids, q); err != nil {
		return nil, fmt.Errorf("error listing resources: %w", err)
	}

	return ids, nil
}

// DeleteResource removes the resource and its news feed.
func (r Repo) DeleteResource(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM news_feed_items WHERE resource_id = ?;`, id); err != nil {
		return fmt.Errorf("error deleting news items: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM web_resources WHERE id = ?;`, id)
	if err != nil {
		return fmt.Errorf("error deleting resource: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading deleted rows: %w", err)
	}
	if n == 0 {
		return webtrack.ErrResourceNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}

	return nil
}

// UpdateAvailability resets the unavailable counter on success and bumps it on failure. The
// counter from before the update is returned.
func (r Repo) UpdateAvailability(ctx context.Context, id int64, available bool) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("error beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var prev int
	err = tx.GetContext(ctx, &prev, `SELECT unavailable_count FROM web_resources WHERE id = ?;`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, webtrack.ErrResourceNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("error reading availability: %w", err)
	}

	q := `UPDATE web_resources SET unavailable_count = unavailable_count + 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?;`
	if available {
		q = `UPDATE web_resources SET unavailable_count = 0, updated_at = CURRENT_TIMESTAMP WHERE id = ?;`
	}
	if _, err := tx.ExecContext(ctx, q, id); err != nil {
		return 0, fmt.Errorf("error updating availability: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("error committing transaction: %w", err)
	}

	return prev, nil
}
