// Package resources registers web resources and keeps their news feed in step.
package resources

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jdholdren/webtrack/internal/urlparse"
	"github.com/jdholdren/webtrack/internal/webtrack"
)

type (
	// Repo is the storage the service needs.
	Repo interface {
		webtrack.ResourceRepo
		webtrack.NewsFeedRepo
	}

	Service struct {
		repo Repo
	}
)

func NewService(repo Repo) Service {
	return Service{repo: repo}
}

// Create parses the url and registers it, failing with [webtrack.ErrAlreadyExists] when
// the exact url is already known.
//
// Two concurrent creates of the same url race on the unique constraint; the loser also gets
// [webtrack.ErrAlreadyExists].
func (s Service) Create(ctx context.Context, rawURL string) (webtrack.WebResource, error) {
	parsed, err := urlparse.Parse(rawURL)
	if err != nil {
		return webtrack.WebResource{}, err
	}

	existing, err := s.repo.ResourceByFullURL(ctx, parsed.FullURL)
	if err != nil {
		return webtrack.WebResource{}, fmt.Errorf("error looking up resource: %w", err)
	}
	if existing != nil {
		return webtrack.WebResource{}, webtrack.ErrAlreadyExists
	}

	created, err := s.repo.InsertResource(ctx, webtrack.WebResource{
		FullURL:     parsed.FullURL,
		Protocol:    parsed.Protocol,
		Domain:      parsed.Domain,
		DomainZone:  parsed.DomainZone,
		URLPath:     parsed.Path,
		QueryParams: parsed.QueryParams,
	})
	if err != nil {
		return webtrack.WebResource{}, err
	}

	// The resource exists either way, so a missing event is only logged
	if err := s.repo.InsertNewsItem(ctx, created.ID, webtrack.EventTypeAdded); err != nil {
		slog.ErrorContext(ctx, "error recording added event", "resource_id", created.ID, "err", err)
	}

	return created, nil
}

func (s Service) Get(ctx context.Context, id int64) (webtrack.WebResource, error) {
	return s.repo.Resource(ctx, id)
}

// IDs lists every registered resource.
func (s Service) IDs(ctx context.Context) ([]int64, error) {
	return s.repo.ResourceIDs(ctx)
}

// Delete removes the resource and its news feed.
func (s Service) Delete(ctx context.Context, id int64) error {
	return s.repo.DeleteResource(ctx, id)
}

// Page returns the resource with its events, oldest first.
func (s Service) Page(ctx context.Context, uuid string) (webtrack.ResourcePage, error) {
	res, err := s.repo.ResourceByUUID(ctx, uuid)
	if err != nil {
		return webtrack.ResourcePage{}, err
	}

	events, err := s.repo.ResourceNewsItems(ctx, res.ID)
	if err != nil {
		return webtrack.ResourcePage{}, fmt.Errorf("error fetching events: %w", err)
	}
	if events == nil {
		events = []webtrack.NewsFeedItem{}
	}

	return webtrack.ResourcePage{WebResource: res, Events: events}, nil
}

// RecordAvailability stores the result of a reachability check.
//
// A reachable resource has its unavailable counter reset, an unreachable one has it bumped. The
// news feed only hears about changes: going down after being up, or coming back after being down.
func (s Service) RecordAvailability(ctx context.Context, id int64, available bool) error {
	prev, err := s.repo.UpdateAvailability(ctx, id, available)
	if err != nil {
		return err
	}

	var event webtrack.EventType
	switch {
	case available && prev > 0:
		event = webtrack.EventTypeAvailable
	case !available && prev == 0:
		event = webtrack.EventTypeUnavailable
	default:
		return nil
	}
	if err := s.repo.InsertNewsItem(ctx, id, event); err != nil {
		return fmt.Errorf("error recording %s event: %w", event, err)
	}

	return nil
}
