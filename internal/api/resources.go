package api

import (
	"errors"
	"mime"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/jdholdren/webtrack/internal/archive"
	wterrs "github.com/jdholdren/webtrack/internal/errors"
	"github.com/jdholdren/webtrack/internal/serverutil"
	"github.com/jdholdren/webtrack/internal/urlparse"
	"github.com/jdholdren/webtrack/internal/webtrack"
)

// The upload form field holding the archive.
const uploadField = "file"

// Uploads bigger than this spill over to temp files while the form is parsed.
const uploadMemory = 8 << 20

// Registers a single url from a json body, or a whole archive of them from a form upload.
func (s Server) postResources(w http.ResponseWriter, r *http.Request) error {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		return s.createResource(w, r)
	case "multipart/form-data":
		return s.uploadArchive(w, r)
	}

	return wterrs.E(
		http.StatusBadRequest,
		"unsupported content type",
		wterrs.Detail{Field: "content-type", Error: "must be application/json or multipart/form-data"},
	)
}

type createResourceReq struct {
	FullURL string `json:"full_url"`
}

func (req createResourceReq) Validate() error {
	if req.FullURL == "" {
		return wterrs.E(http.StatusBadRequest, "invalid request", wterrs.Detail{Field: "full_url", Error: "is required"})
	}
	if _, err := urlparse.ValidateHTTP(req.FullURL); err != nil {
		return wterrs.E(http.StatusBadRequest, "invalid request", wterrs.Detail{Field: "full_url", Error: err.Error()})
	}

	return nil
}

func (s Server) createResource(w http.ResponseWriter, r *http.Request) error {
	req, err := serverutil.DecodeValid[createResourceReq](r.Body)
	if err != nil {
		return err
	}

	res, err := s.resources.Create(r.Context(), req.FullURL)
	if errors.Is(err, webtrack.ErrAlreadyExists) {
		return wterrs.E(http.StatusConflict, "resource already exists", wterrs.Detail{Field: "full_url", Error: "is already registered"})
	}
	if errors.Is(err, webtrack.ErrMalformedURL) {
		return wterrs.E(http.StatusBadRequest, "invalid request", wterrs.Detail{Field: "full_url", Error: err.Error()})
	}
	if err != nil {
		return err
	}

	return serverutil.WriteJSON(w, http.StatusCreated, res)
}

type uploadResp struct {
	ID     int64                  `json:"id"`
	Status webtrack.RequestStatus `json:"status"`
}

func (s Server) uploadArchive(w http.ResponseWriter, r *http.Request) error {
	if s.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(uploadMemory); err != nil {
		return formError(err)
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		return formError(err)
	}
	defer file.Close()

	pr, err := s.submitter.Submit(r.Context(), header.Filename, file)
	if err != nil {
		return uploadError(err)
	}

	return serverutil.WriteJSON(w, http.StatusCreated, uploadResp{ID: pr.ID, Status: pr.Status})
}

func tooLarge() error {
	return wterrs.E(http.StatusRequestEntityTooLarge, "upload too large", wterrs.Detail{Field: uploadField, Error: archive.ErrTooLarge.Error()})
}

// Reading the multipart body only fails on what the client sent, so everything but the size
// limit is a bad request.
func formError(err error) error {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		return tooLarge()
	case errors.Is(err, http.ErrMissingFile):
		return wterrs.E(http.StatusBadRequest, "invalid request", wterrs.Detail{Field: uploadField, Error: "is required"})
	case errors.Is(err, http.ErrNotMultipart), errors.Is(err, http.ErrMissingBoundary):
		return wterrs.E(http.StatusBadRequest, "invalid request", wterrs.Detail{Field: "body", Error: err.Error()})
	}

	return wterrs.E(http.StatusBadRequest, "invalid request", wterrs.Detail{Field: uploadField, Error: err.Error()})
}

// Maps what can go wrong storing an upload onto a response, leaving unknown errors as they are.
func uploadError(err error) error {
	switch {
	case errors.Is(err, webtrack.ErrInvalidFileFormat):
		return wterrs.E(http.StatusBadRequest, "invalid file format", wterrs.Detail{Field: uploadField, Error: webtrack.ErrInvalidFileFormat.Error()})
	case errors.Is(err, archive.ErrTooLarge):
		return tooLarge()
	}

	return err
}

func (s Server) deleteResource(w http.ResponseWriter, r *http.Request) error {
	id, err := serverutil.PathID(r, "id")
	if err != nil {
		return err
	}

	err = s.resources.Delete(r.Context(), id)
	if errors.Is(err, webtrack.ErrResourceNotFound) {
		return wterrs.E(http.StatusNotFound, "resource not found")
	}
	if err != nil {
		return err
	}

	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (s Server) getResource(w http.ResponseWriter, r *http.Request) error {
	page, err := s.resources.Page(r.Context(), mux.Vars(r)["uuid"])
	if errors.Is(err, webtrack.ErrResourceNotFound) {
		return wterrs.E(http.StatusNotFound, "resource not found")
	}
	if err != nil {
		return err
	}

	return serverutil.WriteJSON(w, http.StatusOK, page)
}
