package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/fx"

	wterrs "github.com/jdholdren/webtrack/internal/errors"
	"github.com/jdholdren/webtrack/internal/logger"
	"github.com/jdholdren/webtrack/internal/serverutil"
	"github.com/jdholdren/webtrack/internal/webtrack"
)

type (
	ResourceService interface {
		Create(ctx context.Context, rawURL string) (webtrack.WebResource, error)
		Delete(ctx context.Context, id int64) error
		Page(ctx context.Context, uuid string) (webtrack.ResourcePage, error)
	}

	Submitter interface {
		Submit(ctx context.Context, filename string, r io.Reader) (webtrack.ProcessingRequest, error)
	}

	StatusReporter interface {
		Status(ctx context.Context, id int64) (webtrack.Snapshot, error)
	}
)

type (
	// Server is the public api: single resources, archive uploads, and status polling.
	Server struct {
		*http.Server

		resources ResourceService
		submitter Submitter
		reporter  StatusReporter

		maxUploadBytes int64
	}

	ServerConfig struct {
		Port           int
		CorsOrigin     string
		MaxUploadBytes int64
		// Uploads are read within this, so it bounds how long an upload may take.
		ReadTimeout time.Duration
	}

	Params struct {
		fx.In

		Config    ServerConfig
		Resources ResourceService
		Submitter Submitter
		Reporter  StatusReporter
	}
)

func NewServer(lc fx.Lifecycle, p Params) Server {
	srvr := newServer(p)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srvr.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					slog.Error("server stopped", "err", err)
				}
			}()

			slog.Info("started api server", "port", p.Config.Port)

			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srvr.Shutdown(ctx)
		},
	})

	return srvr
}

func newServer(p Params) Server {
	readTimeout := p.Config.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = time.Minute
	}

	r := serverutil.ErrRouter{Router: mux.NewRouter()}
	srvr := Server{
		resources:      p.Resources,
		submitter:      p.Submitter,
		reporter:       p.Reporter,
		maxUploadBytes: p.Config.MaxUploadBytes,
	}

	var h http.Handler = r
	if p.Config.CorsOrigin != "" {
		h = handlers.CORS(
			handlers.AllowedOrigins([]string{p.Config.CorsOrigin}),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
			handlers.AllowedHeaders([]string{"content-type"}),
		)(h)
	}
	h = handlers.RecoveryHandler(
		handlers.RecoveryLogger(slog.NewLogLogger(slog.Default().Handler(), slog.LevelError)),
	)(h)
	h = logger.Middleware(h)

	srvr.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", p.Config.Port),
		ReadTimeout:  readTimeout,
		WriteTimeout: 10 * time.Second,
		Handler:      h,
		ErrorLog:     slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn),
	}

	r.Use(serverutil.AccessLogMiddleware) // Log everything
	r.NotFoundHandler = serverutil.HandlerFuncE(func(w http.ResponseWriter, r *http.Request) error {
		return wterrs.E(http.StatusNotFound, "not found")
	})

	// Resources
	r.HandleFuncE("/api/resources", srvr.postResources).Methods(http.MethodPost)
	r.HandleFuncE("/api/resources/{id:[0-9]+}", srvr.deleteResource).Methods(http.MethodDelete)
	r.HandleFuncE("/api/resources/{uuid}", srvr.getResource).Methods(http.MethodGet)

	// Bulk processing
	r.HandleFuncE("/api/processing-requests/{id:[0-9]+}", srvr.getProcessingRequest).Methods(http.MethodGet)

	slog.Debug("configured api server", "port", p.Config.Port)

	return srvr
}
