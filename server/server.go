// Package server hosts the HTTP server and its middleware stack.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/circleshare/circleshare/ai/metrics"
	"github.com/circleshare/circleshare/internal/profile"
	apiv1 "github.com/circleshare/circleshare/server/router/api/v1"
	"github.com/circleshare/circleshare/store"
)

type Server struct {
	e *echo.Echo

	Profile *profile.Profile
	Store   *store.Store

	apiV1Service *apiv1.APIV1Service
	exporter     *metrics.PrometheusExporter
}

func NewServer(ctx context.Context, profile *profile.Profile, store *store.Store) (*Server, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
	}))
	e.Use(requestLogger())

	secret := profile.JWTSecret
	if secret == "" {
		// Validate() rejects this in prod; dev and demo fall back to a
		// fixed secret so tokens survive restarts.
		secret = "circleshare-dev"
		slog.Warn("CIRCLESHARE_JWT_SECRET not set, using the development secret")
	}

	exporter := metrics.NewPrometheusExporter(metrics.DefaultConfig())

	s := &Server{
		e:        e,
		Profile:  profile,
		Store:    store,
		exporter: exporter,
	}

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "Service ready.")
	})
	e.GET("/metrics", echo.WrapHandler(exporter.Handler()))

	s.apiV1Service = apiv1.NewAPIV1Service(secret, profile, store, exporter)
	s.apiV1Service.RegisterRoutes(e)

	return s, nil
}

func (s *Server) Start(ctx context.Context) error {
	if s.Profile.UNIXSock != "" {
		// Remove a stale socket left by an unclean shutdown.
		if err := os.Remove(s.Profile.UNIXSock); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "failed to remove stale socket %s", s.Profile.UNIXSock)
		}
		listener, err := net.Listen("unix", s.Profile.UNIXSock)
		if err != nil {
			return errors.Wrapf(err, "failed to listen on %s", s.Profile.UNIXSock)
		}
		s.e.Listener = listener
		go func() {
			if err := s.e.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("server stopped", "error", err)
			}
		}()
		return nil
	}

	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	go func() {
		if err := s.e.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server stopped", "error", err)
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.e.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}
	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close database", "error", err)
	}
	slog.Info("server shutdown complete")
}

// requestLogger logs one line per request with latency and status.
func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:     true,
		LogStatus:  true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
				slog.Warn("http request", attrs...)
				return nil
			}
			slog.Debug("http request", attrs...)
			return nil
		},
	})
}
