// Package pprof serves runtime profiles for a running tutor server.
package pprof

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/pprof"

	"go.uber.org/zap"
)

// Server exposes net/http/pprof on a loopback port, apart from the chat API.
type Server struct {
	server   *http.Server
	listener net.Listener
	port     int
	logger   *zap.Logger
}

// NewServer creates a profiling server. A nil logger discards output.
func NewServer(logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{logger: logger}
}

// Handler returns a mux with only the pprof routes, so nothing registered
// on http.DefaultServeMux leaks out.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}

// Start binds to 127.0.0.1 on port (0 picks a free one) and returns the
// bound port.
func (s *Server) Start(port int) (int, error) {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return 0, fmt.Errorf("bind to %s: %w", addr, err)
	}

	s.listener = listener
	s.port = listener.Addr().(*net.TCPAddr).Port
	s.server = &http.Server{Handler: Handler()}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("pprof server stopped", zap.Error(err))
		}
	}()
	s.logger.Info("pprof listening", zap.Int("port", s.port))
	return s.port, nil
}

// Port returns the port the server is listening on.
func (s *Server) Port() int {
	return s.port
}

// Stop shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// PrintUsage prints go tool pprof commands for the given port.
func PrintUsage(w io.Writer, port int) {
	base := fmt.Sprintf("http://127.0.0.1:%d/debug/pprof", port)
	fmt.Fprintf(w, "\npprof server: %s/\n\n", base)
	fmt.Fprintf(w, "Quick commands (from another terminal):\n")
	fmt.Fprintf(w, "  go tool pprof %s/profile?seconds=30\n", base)
	fmt.Fprintf(w, "  go tool pprof %s/heap\n", base)
	fmt.Fprintf(w, "  curl %s/goroutine?debug=2\n\n", base)
}
