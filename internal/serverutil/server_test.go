package serverutil_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wterrs "github.com/jdholdren/webtrack/internal/errors"
	"github.com/jdholdren/webtrack/internal/serverutil"
)

type nameReq struct {
	Name string `json:"name"`
}

func (r nameReq) Validate() error {
	if r.Name == "" {
		return wterrs.E(http.StatusBadRequest, "invalid request", wterrs.Detail{Field: "name", Error: "is required"})
	}
	if r.Name == "plain" {
		return errors.New("plain failure")
	}

	return nil
}

func TestDecodeValid(t *testing.T) {
	got, err := serverutil.DecodeValid[nameReq](strings.NewReader(`{"name": "ok"}`))
	require.NoError(t, err)
	assert.Equal(t, "ok", got.Name)

	tests := []struct {
		body       string
		wantDetail string
	}{
		{body: `{`, wantDetail: "body"},
		{body: `{"name": ""}`, wantDetail: "name"},
		{body: `{"name": "plain"}`},
	}
	for _, test := range tests {
		_, err := serverutil.DecodeValid[nameReq](strings.NewReader(test.body))

		var wtErr *wterrs.Error
		require.ErrorAs(t, err, &wtErr, test.body)
		assert.Equal(t, http.StatusBadRequest, wtErr.Status)
		if test.wantDetail != "" {
			require.Len(t, wtErr.Details, 1)
			assert.Equal(t, test.wantDetail, wtErr.Details[0].Field)
		}
	}
}

func TestHandlerFuncE(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{name: "structured", err: wterrs.E(http.StatusConflict, "taken"), wantStatus: http.StatusConflict, wantMsg: "taken"},
		{name: "wrapped", err: fmt.Errorf("ctx: %w", wterrs.E(http.StatusNotFound, "gone")), wantStatus: http.StatusNotFound, wantMsg: "gone"},
		{name: "unknown", err: errors.New("boom"), wantStatus: http.StatusInternalServerError, wantMsg: "internal server error"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			h := serverutil.HandlerFuncE(func(w http.ResponseWriter, r *http.Request) error {
				return test.err
			})

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			assert.Equal(t, test.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body struct {
				Message string `json:"message"`
				Status  int    `json:"status"`
			}
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, test.wantMsg, body.Message)
			assert.Equal(t, test.wantStatus, body.Status)
		})
	}
}

func TestPathID(t *testing.T) {
	r := serverutil.ErrRouter{Router: mux.NewRouter()}
	r.Use(serverutil.AccessLogMiddleware)
	r.HandleFuncE("/things/{id}", func(w http.ResponseWriter, r *http.Request) error {
		id, err := serverutil.PathID(r, "id")
		if err != nil {
			return err
		}
		return serverutil.WriteJSON(w, http.StatusOK, map[string]int64{"id": id})
	})

	for path, want := range map[string]int{
		"/things/12":  http.StatusOK,
		"/things/0":   http.StatusNotFound,
		"/things/abc": http.StatusNotFound,
	} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, want, rec.Code, path)
	}
}
