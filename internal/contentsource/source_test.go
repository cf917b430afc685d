package contentsource_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"devlens/internal/contentsource"
	"devlens/internal/services"
	"devlens/internal/testsupport"
)

func TestExtractFileID(t *testing.T) {
	tests := []struct {
		url  string
		want string
		ok   bool
	}{
		{"https://drive.google.com/file/d/1AbC-d_E/view?usp=sharing", "1AbC-d_E", true},
		{"https://drive.google.com/open?id=XYZ123", "XYZ123", true},
		{"https://docs.google.com/presentation/d/slides_9/edit", "slides_9", true},
		{"https://example.com/download?id=abc", "abc", true},
		{"https://example.com/video.mp4", "", false},
	}
	for _, tc := range tests {
		got, ok := contentsource.ExtractFileID(tc.url)
		if got != tc.want || ok != tc.ok {
			t.Errorf("ExtractFileID(%q) = %q, %v; want %q, %v", tc.url, got, ok, tc.want, tc.ok)
		}
	}
}

func TestNewSelectsSource(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	src, err := contentsource.New(cfg)
	if err != nil || src.Name() != "mock" {
		t.Fatalf("expected mock source, got %v, %v", src, err)
	}
	cfg.Content.Source = "drive"
	if src, err = contentsource.New(cfg); err != nil || src.Name() != "drive" {
		t.Fatalf("expected drive source, got %v, %v", src, err)
	}
	cfg.Content.Source = "ftp"
	if _, err := contentsource.New(cfg); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestDriveFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/files/FILE1" || r.URL.Query().Get("alt") != "media" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte("video-bytes"))
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Content.Source = "drive"
	cfg.Content.DriveBaseURL = server.URL + "/"
	cfg.Content.AccessToken = "tok"
	src, err := contentsource.New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	dest := filepath.Join(cfg.Paths.UploadDir, "cal_1", "video.mp4")
	n, err := src.Fetch(context.Background(), "https://drive.google.com/file/d/FILE1/view", dest)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	data, _ := os.ReadFile(dest)
	if n != 11 || string(data) != "video-bytes" {
		t.Fatalf("unexpected download %d %q", n, data)
	}

	if _, err := src.Fetch(context.Background(), "https://drive.google.com/file/d/MISSING/view", dest+".2"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := src.Fetch(context.Background(), "https://example.com/x.mp4", dest+".3"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestMockFetch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	dest := filepath.Join(cfg.Paths.UploadDir, "placeholder.mp4")

	src, _ := contentsource.New(cfg)
	if _, err := src.Fetch(context.Background(), "", dest); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	data, _ := os.ReadFile(dest)
	if string(data) != contentsource.MockContent {
		t.Fatalf("unexpected placeholder %q", data)
	}

	sample := filepath.Join(testsupport.BaseDir(cfg), "sample.mp4")
	testsupport.WriteFile(t, sample, 6)
	cfg.Content.SampleVideo = sample
	src, _ = contentsource.New(cfg)
	copied := filepath.Join(cfg.Paths.UploadDir, "copied.mp4")
	if n, err := src.Fetch(context.Background(), "", copied); err != nil || n != 6 {
		t.Fatalf("Fetch sample: %d, %v", n, err)
	}
}
