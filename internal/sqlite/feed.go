package sqlite

import (
	"context"
	"fmt"

	"github.com/jdholdren/webtrack/internal/webtrack"
)

func (r Repo) InsertNewsItem(ctx context.Context, resourceID int64, event webtrack.EventType) error {
	const q = `INSERT INTO news_feed_items (resource_id, event_type) VALUES (?, ?);`
	if _, err := r.db.ExecContext(ctx, q, resourceID, event); err != nil {
		return fmt.Errorf("error inserting news item: %w", err)
	}

	return nil
}

// ResourceNewsItems returns the feed of a resource, oldest first.
func (r Repo) ResourceNewsItems(ctx context.Context, resourceID int64) ([]webtrack.NewsFeedItem, error) {
	const q = `SELECT * FROM news_feed_items WHERE resource_id = ? ORDER BY created_at, id;`

	items := []webtrack.NewsFeedItem{}
	if err := r.db.SelectContext(ctx, &items, q, resourceID); err != nil {
		return nil, fmt.Errorf("error selecting news items: %w", err)
	}

	return items, nil
}
