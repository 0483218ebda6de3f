// Package webtrack holds the domain types shared by the api server and the ingestion worker.
package webtrack

import (
	"context"
	"errors"
)

var (
	ErrAlreadyExists             = errors.New("web resource already exists")
	ErrResourceNotFound          = errors.New("web resource not found")
	ErrProcessingRequestNotFound = errors.New("processing request not found")
	ErrRequestFinalized          = errors.New("processing request already finished")

	ErrMalformedURL      = errors.New("malformed url")
	ErrInvalidFileFormat = errors.New("invalid file type, only zip files are allowed")
	ErrNoCSVFile         = errors.New("archive must contain exactly one csv file")
	ErrCorruptArchive    = errors.New("archive is not a valid zip file")
	ErrArchiveUnreadable = errors.New("archive could not be read from storage")
	ErrMalformedRow      = errors.New("malformed csv row")

	// Returned when a request is in process but the queue has no progress for it.
	ErrSnapshotMissing = errors.New("live progress snapshot missing")
)

type (
	ResourceRepo interface {
		Resource(ctx context.Context, id int64) (WebResource, error)
		ResourceByUUID(ctx context.Context, uuid string) (WebResource, error)
		// Returns nil without an error when nothing matches.
		ResourceByFullURL(ctx context.Context, fullURL string) (*WebResource, error)
		// Ids of every resource, in insertion order.
		ResourceIDs(ctx context.Context) ([]int64, error)
		InsertResource(ctx context.Context, r WebResource) (WebResource, error)
		DeleteResource(ctx context.Context, id int64) error
		// Returns the unavailable count from before the update.
		UpdateAvailability(ctx context.Context, id int64, available bool) (int, error)
	}

	ProcessingRequestRepo interface {
		InsertProcessingRequest(ctx context.Context) (ProcessingRequest, error)
		ProcessingRequest(ctx context.Context, id int64) (ProcessingRequest, error)
		MarkInProcess(ctx context.Context, id int64, taskID string) error
		FinalizeProcessingRequest(ctx context.Context, id int64, args FinalizeArgs) error
	}

	NewsFeedRepo interface {
		InsertNewsItem(ctx context.Context, resourceID int64, event EventType) error
		ResourceNewsItems(ctx context.Context, resourceID int64) ([]NewsFeedItem, error)
	}

	Repository interface {
		ResourceRepo
		ProcessingRequestRepo
		NewsFeedRepo
	}
)
