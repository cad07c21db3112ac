package web

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"strconv"
	"sync"
	"time"

	"inkband/internal/config"
	appLog "inkband/internal/log"
	"inkband/internal/render"
	"inkband/internal/surface"
)

// Server exposes the render loop status over HTTP. It implements
// render.Observer; the loop publishes copies and the server never touches
// the controller or the live surface.
type Server struct {
	cfg *config.Config
	mux *http.ServeMux

	mu       sync.RWMutex
	status   render.Status
	snap     *surface.Surface
	seq      uint64
	observed bool

	// Encoded preview, reused until the next snapshot arrives.
	previewMu    sync.Mutex
	previewCache *previewCache
}

type previewCache struct {
	seq  uint64
	data []byte
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config) *Server {
	s := &Server{
		cfg: cfg,
		mux: http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Observe stores the latest status and snapshot.
func (s *Server) Observe(st render.Status, snap *surface.Surface) {
	s.mu.Lock()
	s.status = st
	s.snap = snap
	s.seq++
	s.observed = true
	s.mu.Unlock()
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// An empty username or password disables auth.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="inkband", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Serve listens on cfg.Listen until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/preview.png", s.handlePreview)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.mu.RLock()
	st, ok := s.status, s.observed
	s.mu.RUnlock()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "render loop has not published yet")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handlePreview serves the last published surface as a two-colour PNG.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.mu.RLock()
	snap, seq := s.snap, s.seq
	s.mu.RUnlock()
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, "no frame rendered yet")
		return
	}

	s.previewMu.Lock()
	pc := s.previewCache
	if pc == nil || pc.seq != seq {
		data, err := encodePreview(snap)
		if err != nil {
			s.previewMu.Unlock()
			appLog.Error("failed to encode preview", err)
			writeError(w, http.StatusInternalServerError, "failed to encode preview")
			return
		}
		pc = &previewCache{seq: seq, data: data}
		s.previewCache = pc
	}
	s.previewMu.Unlock()

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Length", strconv.Itoa(len(pc.data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pc.data)
}

var previewPalette = color.Palette{color.White, color.Black}

func encodePreview(snap *surface.Surface) ([]byte, error) {
	b := snap.Bounds()
	img := image.NewPaletted(b, previewPalette)
	for x := b.Min.X; x < b.Max.X; x++ {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			if snap.Bit(x, y) == surface.On {
				img.SetColorIndex(x, y, 1)
			}
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}

var _ render.Observer = (*Server)(nil)
