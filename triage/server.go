// Package triage exposes the moderation engine over HTTP: submission,
// community voting, abuse reports, authority decisions, and the status and
// audit read surfaces used by the mobile clients.
package triage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/carlmjohnson/versioninfo"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	slogecho "github.com/samber/slog-echo"

	"github.com/Agathx/climact/moderation/engine"
	"github.com/Agathx/climact/moderation/itemstore"
)

type Server struct {
	eng    *engine.Engine
	logger *slog.Logger
	echo   *echo.Echo
	httpd  *http.Server
}

type Config struct {
	Logger *slog.Logger
	Bind   string
}

func NewServer(eng *engine.Engine, config Config) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}
	if eng == nil {
		return nil, fmt.Errorf("triage server requires a moderation engine")
	}

	e := echo.New()

	var (
		httpTimeout        = 1 * time.Minute
		httpMaxHeaderBytes = 1 * (1024 * 1024)
	)

	srv := &Server{
		eng:    eng,
		logger: logger,
		echo:   e,
	}
	srv.httpd = &http.Server{
		Handler:        srv,
		Addr:           config.Bind,
		WriteTimeout:   httpTimeout,
		ReadTimeout:    httpTimeout,
		MaxHeaderBytes: httpMaxHeaderBytes,
	}

	e.HideBanner = true
	e.Use(slogecho.New(logger))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("1M"))
	e.Use(middleware.CORS())
	e.HTTPErrorHandler = srv.errorHandler

	e.GET("/_health", srv.HandleHealthCheck)

	e.POST("/moderation/items", srv.HandleSubmit)
	e.GET("/moderation/items/:id", srv.HandleGetStatus)
	e.GET("/moderation/items/:id/audit", srv.HandleGetAudit)
	e.POST("/moderation/items/:id/score", srv.HandleRescore)
	e.POST("/moderation/items/:id/votes", srv.HandleCastVote)
	e.POST("/moderation/items/:id/reports", srv.HandleCastReport)
	e.POST("/moderation/items/:id/decision", srv.HandleAuthorityDecide)
	e.GET("/moderation/anonymous/:token", srv.HandleAnonymousStatus)
	e.GET("/moderation/queue", srv.HandleReviewQueue)

	return srv, nil
}

func (srv *Server) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	srv.echo.ServeHTTP(rw, req)
}

func (srv *Server) RunAPI() error {
	srv.logger.Info("starting triage API", "bind", srv.httpd.Addr)
	if err := srv.httpd.ListenAndServe(); err != nil {
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}
	return nil
}

func (srv *Server) RunMetrics(listen string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(listen, mux)
}

func (srv *Server) Shutdown(ctx context.Context) error {
	srv.logger.Info("shutting down triage API")
	return srv.httpd.Shutdown(ctx)
}

type GenericError struct {
	Error string `json:"error"`
}

// errorHandler maps engine errors onto HTTP status codes. Everything the
// engine rejects deliberately gets a 4xx with the reason; only genuine
// faults become a 500, with the detail kept in the logs.
func (srv *Server) errorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrValidation):
		code = http.StatusBadRequest
	case errors.Is(err, engine.ErrPermissionDenied):
		code = http.StatusForbidden
	case errors.Is(err, itemstore.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, engine.ErrAlreadyVoted),
		errors.Is(err, engine.ErrAlreadyDecided),
		errors.Is(err, engine.ErrInvalidState):
		code = http.StatusConflict
	case errors.Is(err, engine.ErrRateLimited):
		code = http.StatusTooManyRequests
	default:
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			err = fmt.Errorf("%s", he.Message)
		}
	}
	if code >= 500 {
		srv.logger.Warn("triage-http-internal-error", "err", err, "path", c.Path())
		err = fmt.Errorf("internal error")
	}
	if !c.Response().Committed {
		c.JSON(code, GenericError{Error: err.Error()})
	}
}

type HealthStatus struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

func (srv *Server) HandleHealthCheck(c echo.Context) error {
	return c.JSON(200, HealthStatus{Status: "ok", Version: versioninfo.Short()})
}
