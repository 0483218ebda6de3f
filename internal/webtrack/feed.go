package webtrack

import "time"

type EventType string

const (
	EventTypeAdded       EventType = "added"
	EventTypeAvailable   EventType = "available"
	EventTypeUnavailable EventType = "unavailable"
)

// NewsFeedItem is an audit event tied to a resource.
type NewsFeedItem struct {
	ID         int64     `db:"id" json:"-"`
	ResourceID int64     `db:"resource_id" json:"-"`
	EventType  EventType `db:"event_type" json:"event_type"`
	CreatedAt  time.Time `db:"created_at" json:"timestamp"`
}
