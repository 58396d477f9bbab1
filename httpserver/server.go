package httpserver

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/flashbots/go-utils/httplogger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ruteri/seal-session/api"
	"github.com/ruteri/seal-session/metrics"
	"go.uber.org/atomic"
)

// RouteRegistrar mounts an API on the server router. *keyserver.Handler implements it.
type RouteRegistrar interface {
	RegisterRoutes(r chi.Router)
}

// Server runs an API behind health, readiness and drain endpoints, with an
// optional separate metrics listener.
type Server struct {
	cfg     *api.HTTPServerConfig
	isReady atomic.Bool
	log     *slog.Logger

	srv        *http.Server
	metricsSrv *metrics.MetricsServer
	handler    RouteRegistrar
}

// New creates a server for handler. metricsSrv may be nil when cfg.MetricsAddr is empty.
func New(cfg *api.HTTPServerConfig, handler RouteRegistrar, metricsSrv *metrics.MetricsServer) (*Server, error) {
	if cfg.MetricsAddr != "" && metricsSrv == nil {
		return nil, errors.New("metrics address configured without a metrics server")
	}

	srv := &Server{
		cfg:        cfg,
		log:        cfg.Log,
		metricsSrv: metricsSrv,
		handler:    handler,
	}
	srv.isReady.Store(true)

	srv.srv = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.getRouter(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	if cfg.TLSCertificate != nil {
		srv.srv.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{*cfg.TLSCertificate},
			MinVersion:   tls.VersionTLS12,
		}
	}

	return srv, nil
}

// Handler returns the root router, for tests and embedding.
func (srv *Server) Handler() http.Handler {
	return srv.srv.Handler
}

func (srv *Server) getRouter() http.Handler {
	mux := chi.NewRouter()

	mux.Group(func(r chi.Router) {
		r.Use(srv.httpLogger)
		srv.handler.RegisterRoutes(r)

		// Health and diagnostic endpoints
		r.Get("/livez", srv.handleLivenessCheck)
		r.Get("/readyz", srv.handleReadinessCheck)
		r.Get("/drain", srv.handleDrain)
		r.Get("/undrain", srv.handleUndrain)
	})

	if srv.cfg.EnablePprof {
		srv.log.Info("pprof API enabled")
		mux.Mount("/debug", middleware.Profiler())
	}
	return mux
}

func (srv *Server) httpLogger(next http.Handler) http.Handler {
	return httplogger.LoggingMiddlewareSlog(srv.log, next)
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(`{"status":"` + status + `"}`))
}

func (srv *Server) handleLivenessCheck(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, http.StatusOK, "alive")
}

func (srv *Server) handleReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if !srv.isReady.Load() {
		writeStatus(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	writeStatus(w, http.StatusOK, "ready")
}

func (srv *Server) handleDrain(w http.ResponseWriter, r *http.Request) {
	if !srv.isReady.Swap(false) {
		writeStatus(w, http.StatusOK, "already draining")
		return
	}
	srv.log.Info("Server marked as not ready")
	writeStatus(w, http.StatusOK, "draining")
}

func (srv *Server) handleUndrain(w http.ResponseWriter, r *http.Request) {
	if srv.isReady.Swap(true) {
		writeStatus(w, http.StatusOK, "already ready")
		return
	}
	srv.log.Info("Server marked as ready")
	writeStatus(w, http.StatusOK, "ready")
}

// IsReady reports whether the readiness endpoint answers 200.
func (srv *Server) IsReady() bool {
	return srv.isReady.Load()
}

// RunInBackground starts the API and, if configured, the metrics listener.
func (srv *Server) RunInBackground() {
	// metrics
	if srv.cfg.MetricsAddr != "" {
		go func() {
			srv.log.With("metricsAddress", srv.cfg.MetricsAddr).Info("Starting metrics server")
			err := srv.metricsSrv.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				srv.log.Error("HTTP server failed", "err", err)
			}
		}()
	}

	// api
	go func() {
		srv.log.Info("Starting HTTP server", "listenAddress", srv.cfg.ListenAddr, "tls", srv.srv.TLSConfig != nil)
		if err := srv.serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srv.log.Error("HTTP server failed", "err", err)
		}
	}()
}

func (srv *Server) serve() error {
	if srv.srv.TLSConfig == nil {
		return srv.srv.ListenAndServe()
	}
	ln, err := net.Listen("tcp", srv.cfg.ListenAddr)
	if err != nil {
		return err
	}
	return srv.srv.Serve(tls.NewListener(ln, srv.srv.TLSConfig))
}

// Drain marks the server not ready and waits DrainDuration or until ctx is done.
func (srv *Server) Drain(ctx context.Context) {
	if srv.isReady.Swap(false) {
		srv.log.Info("Server marked as not ready, draining", "duration", srv.cfg.DrainDuration)
	}
	select {
	case <-time.After(srv.cfg.DrainDuration):
		srv.log.Info("Drain period completed")
	case <-ctx.Done():
	}
}

// Shutdown gracefully stops the API and metrics listeners.
func (srv *Server) Shutdown() {
	// api
	ctx, cancel := context.WithTimeout(context.Background(), srv.cfg.GracefulShutdownDuration)
	defer cancel()
	if err := srv.srv.Shutdown(ctx); err != nil {
		srv.log.Error("Graceful HTTP server shutdown failed", "err", err)
	} else {
		srv.log.Info("HTTP server gracefully stopped")
	}

	// metrics
	if len(srv.cfg.MetricsAddr) != 0 {
		ctx, cancel := context.WithTimeout(context.Background(), srv.cfg.GracefulShutdownDuration)
		defer cancel()

		if err := srv.metricsSrv.Shutdown(ctx); err != nil {
			srv.log.Error("Graceful metrics server shutdown failed", "err", err)
		} else {
			srv.log.Info("Metrics server gracefully stopped")
		}
	}
}
