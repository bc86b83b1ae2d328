package resume

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Server is a minimal loopback listener exposing POST /resume behind a
// bearer token. A successful call creates the resume marker watched by the
// hold loop. It runs for the process lifetime once started; a bind failure
// is reported to the caller, who treats the feature as unavailable rather
// than fatal.
type Server struct {
	host   string
	port   int
	token  string
	marker *Marker
	log    *zap.Logger

	srv *http.Server
	ln  net.Listener
}

// NewServer builds a resume endpoint for the given marker.
func NewServer(host string, port int, token string, marker *Marker, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{host: host, port: port, token: token, marker: marker, log: log}
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	if strings.TrimSpace(s.token) == "" {
		return errors.New("resume endpoint token is not set")
	}
	ln, err := net.Listen("tcp", net.JoinHostPort(s.host, strconv.Itoa(s.port)))
	if err != nil {
		return fmt.Errorf("bind resume endpoint: %w", err)
	}
	s.ln = ln
	s.srv = &http.Server{Handler: http.HandlerFunc(s.handle)}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Debug("resume endpoint stopped", zap.Error(err))
		}
	}()
	s.log.Info("resume endpoint listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound address, useful when the configured port was 0.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Port returns the bound port.
func (s *Server) Port() int {
	if s.ln == nil {
		return 0
	}
	return s.ln.Addr().(*net.TCPAddr).Port
}

// Close stops the listener.
func (s *Server) Close() {
	if s.srv != nil {
		s.srv.Close()
	}
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/resume" || r.Method != http.MethodPost {
		writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "error": "not_found"})
		return
	}
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth != "Bearer "+s.token {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"ok": false, "error": "unauthorized"})
		return
	}
	if err := s.marker.Touch(); err != nil {
		s.log.Error("failed to create resume marker", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": "server_error"})
		return
	}
	s.log.Info("resume signal emitted via HTTP")
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func writeJSON(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
