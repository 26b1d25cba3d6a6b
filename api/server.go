package api

import (
	"context"
	"net/http"
	"time"
)

// NewMux wires every endpoint in the external interface to its handler. Go
// 1.22+ pattern-based ServeMux routing replaces the generated mux the
// teacher's goa transport layer uses; every other shape (decode/encode,
// {error,status} envelopes, health/config/agent routes) follows it.
func NewMux(d *Deps) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /config", d.configHandler)
	mux.HandleFunc("POST /config", d.configHandler)
	mux.HandleFunc("POST /agent/plan", d.planHandler)
	mux.HandleFunc("POST /agent/refine", d.refineHandler)
	mux.HandleFunc("POST /agent/replan", d.replanHandler)
	mux.HandleFunc("POST /agent/verify-state", d.verifyStateHandler)
	mux.HandleFunc("POST /agent/report-execution", d.reportExecutionHandler)
	mux.HandleFunc("POST /chat/message", d.messageHandler)
	mux.HandleFunc("POST /chat/stream", d.streamHandler)
	return d.logRequests(mux)
}

// logRequests logs every request's method, path, status, and duration at
// Info, the HTTP-layer counterpart to the per-step spans and log lines the
// Plan Orchestrator and LLM Gateway record for their own work.
func (d *Deps) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		d.logger().Info(r.Context(), "request completed",
			"method", r.Method, "path", r.URL.Path,
			"status", sw.status, "durationMs", time.Since(start).Milliseconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush forwards to the wrapped writer so SSE handlers behind logRequests
// can still flush frames as they are written.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Server wraps an http.Server with the graceful-shutdown lifecycle the
// teacher's cmd/assistant http.go implements by hand for its goa-generated
// mux.
type Server struct {
	http *http.Server
}

// NewServer builds a Server bound to addr, serving handler.
func NewServer(addr string, handler http.Handler) *Server {
	return &Server{http: &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 60 * time.Second,
	}}
}

// Run starts the server and blocks until ctx is cancelled, then shuts down
// gracefully with a 30s timeout. It returns the error ListenAndServe
// produced, or nil on a clean shutdown.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		errc <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}
