package api

import (
	"errors"
	"net/http"

	wterrs "github.com/jdholdren/webtrack/internal/errors"
	"github.com/jdholdren/webtrack/internal/serverutil"
	"github.com/jdholdren/webtrack/internal/webtrack"
)

func (s Server) getProcessingRequest(w http.ResponseWriter, r *http.Request) error {
	id, err := serverutil.PathID(r, "id")
	if err != nil {
		return err
	}

	snap, err := s.reporter.Status(r.Context(), id)
	switch {
	case errors.Is(err, webtrack.ErrProcessingRequestNotFound):
		return wterrs.E(http.StatusNotFound, "processing request not found")
	case errors.Is(err, webtrack.ErrSnapshotMissing):
		w.Header().Set("Retry-After", "1")
		return wterrs.E(
			http.StatusServiceUnavailable,
			"progress unavailable",
			wterrs.Detail{Field: "status", Error: "the request is in process but its progress can't be read, try again shortly"},
		)
	case err != nil:
		return err
	}

	return serverutil.WriteJSON(w, http.StatusOK, snap)
}
