package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/teemow/inboxreply/internal/instrumentation"
)

// DefaultHTTPAddr is the default address of the push and probe server.
const DefaultHTTPAddr = ":8080"

// HTTPServerConfig holds configuration for the push and probe server.
type HTTPServerConfig struct {
	Addr   string
	Health *HealthChecker
	// Push is mounted on POST /pubsub/push when set.
	Push http.Handler
	// Metrics is optional.
	Metrics *instrumentation.Metrics
	Logger  *slog.Logger
}

// HTTPServer serves the Pub/Sub push endpoint and the health probes.
type HTTPServer struct {
	httpServer *http.Server
	addr       string
	logger     *slog.Logger
}

// NewHTTPServer creates the push and probe server.
func NewHTTPServer(config HTTPServerConfig) *HTTPServer {
	if config.Addr == "" {
		config.Addr = DefaultHTTPAddr
	}
	if config.Health == nil {
		config.Health = NewHealthChecker(nil)
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	mux := http.NewServeMux()
	config.Health.RegisterHealthEndpoints(mux)
	if config.Push != nil {
		mux.Handle("POST /pubsub/push", config.Push)
	}

	return &HTTPServer{
		addr:   config.Addr,
		logger: config.Logger,
		httpServer: &http.Server{
			Addr:              config.Addr,
			Handler:           instrumentHTTP(config.Metrics, mux),
			ReadHeaderTimeout: DefaultReadHeaderTimeout,
			WriteTimeout:      DefaultWriteTimeout,
			IdleTimeout:       DefaultIdleTimeout,
		},
	}
}

// Handler returns the instrumented mux.
func (s *HTTPServer) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens on the configured address and blocks until Shutdown.
func (s *HTTPServer) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on ln and blocks until Shutdown.
func (s *HTTPServer) Serve(ln net.Listener) error {
	s.logger.Info("starting http server", slog.String("addr", ln.Addr().String()))
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the configured address.
func (s *HTTPServer) Addr() string {
	return s.addr
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrumentHTTP records request count and latency per matched route.
func instrumentHTTP(metrics *instrumentation.Metrics, next http.Handler) http.Handler {
	if metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		// r.Pattern is set by the mux; unmatched paths share one label.
		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTPRequest(r.Context(), r.Method, path, rec.status, time.Since(start))
	})
}
