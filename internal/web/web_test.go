package web

import (
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"inkband/internal/config"
	"inkband/internal/epd"
	"inkband/internal/render"
	"inkband/internal/surface"
)

func newTestServer(t *testing.T, auth *config.BasicAuthConfig) *Server {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.BasicAuth = auth
	return NewServer(cfg)
}

func get(t *testing.T, h http.Handler, path string, setup func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if setup != nil {
		setup(req)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func testSnapshot(t *testing.T) *surface.Surface {
	t.Helper()
	s, err := surface.New(296, 128)
	if err != nil {
		t.Fatal(err)
	}
	s.DrawRectangle(image.Rect(0, 8, 296, 16), surface.Style{Fill: surface.On, Stroke: surface.Off, StrokeWidth: 1})
	return s
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	rec := get(t, s.Handler(), "/health", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Errorf("/health = %d %q", rec.Code, rec.Body.String())
	}
}

func TestStatusBeforeFirstFrame(t *testing.T) {
	s := newTestServer(t, nil)
	for _, path := range []string{"/api/status", "/preview.png"} {
		if rec := get(t, s.Handler(), path, nil); rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s = %d, want 503", path, rec.Code)
		}
	}
}

func TestStatus(t *testing.T) {
	s := newTestServer(t, nil)
	s.Observe(render.Status{
		Geometry:   "296x128",
		State:      "Ready",
		Ticks:      3,
		LastLabel:  "2",
		LastRegion: epd.Region{Y: 16, Width: 296, Height: 8},
	}, testSnapshot(t))

	rec := get(t, s.Handler(), "/api/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("/api/status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	var got render.Status
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Ticks != 3 || got.LastLabel != "2" || got.LastRegion.Y != 16 || got.State != "Ready" {
		t.Errorf("status = %+v", got)
	}
}

func TestPreview(t *testing.T) {
	s := newTestServer(t, nil)
	s.Observe(render.Status{}, testSnapshot(t))

	rec := get(t, s.Handler(), "/preview.png", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("/preview.png = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q", ct)
	}
	img, err := png.Decode(rec.Body)
	if err != nil {
		t.Fatalf("png.Decode: %v", err)
	}
	if img.Bounds() != image.Rect(0, 0, 296, 128) {
		t.Errorf("bounds = %v", img.Bounds())
	}
	if r, _, _, _ := img.At(10, 10).RGBA(); r != 0 {
		t.Error("band pixel is not black")
	}
	if r, _, _, _ := img.At(10, 40).RGBA(); r != 0xffff {
		t.Error("background pixel is not white")
	}
}

func TestPreviewCacheFollowsSnapshots(t *testing.T) {
	s := newTestServer(t, nil)
	s.Observe(render.Status{}, testSnapshot(t))
	first := get(t, s.Handler(), "/preview.png", nil).Body.String()
	again := get(t, s.Handler(), "/preview.png", nil).Body.String()
	if first != again {
		t.Error("unchanged snapshot produced a different preview")
	}

	blank, _ := surface.New(296, 128)
	s.Observe(render.Status{}, blank)
	if get(t, s.Handler(), "/preview.png", nil).Body.String() == first {
		t.Error("preview not refreshed after a new snapshot")
	}
}

func TestBasicAuth(t *testing.T) {
	s := newTestServer(t, &config.BasicAuthConfig{Username: "admin", Password: "secret"})
	s.Observe(render.Status{}, testSnapshot(t))
	h := s.Handler()

	tests := []struct {
		name string
		path string
		user string
		pass string
		want int
	}{
		{"health open", "/health", "", "", http.StatusOK},
		{"status without credentials", "/api/status", "", "", http.StatusUnauthorized},
		{"status wrong password", "/api/status", "admin", "nope", http.StatusUnauthorized},
		{"status ok", "/api/status", "admin", "secret", http.StatusOK},
		{"preview ok", "/preview.png", "admin", "secret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, h, tt.path, func(r *http.Request) {
				if tt.user != "" {
					r.SetBasicAuth(tt.user, tt.pass)
				}
			})
			if rec.Code != tt.want {
				t.Errorf("%s = %d, want %d", tt.path, rec.Code, tt.want)
			}
		})
	}
}

func TestBasicAuthDisabledWhenIncomplete(t *testing.T) {
	s := newTestServer(t, &config.BasicAuthConfig{Username: "admin"})
	if s.basicAuthEnabled() {
		t.Error("basic auth enabled without a password")
	}
}

func TestStatusMethod(t *testing.T) {
	s := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/status", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /api/status = %d, want 405", rec.Code)
	}
}
