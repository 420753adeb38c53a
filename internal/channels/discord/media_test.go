package discord

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"report.pdf", "report.pdf"},
		{"../../etc/passwd", "__etc_passwd"},
		{"dir/file.txt", "dir_file.txt"},
		{"back\\slash.txt", "back_slash.txt"},
		{"", "attachment"},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMediaStore_FetchDownloads(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("file-bytes"))
	}))
	defer srv.Close()

	m := newMediaStore(t.TempDir())
	marker, path := m.fetch(context.Background(), "m1", attachment{
		Filename: "notes.txt",
		Size:     10,
		URL:      srv.URL,
	})

	if path == "" {
		t.Fatalf("no path, marker = %q", marker)
	}
	if !strings.HasPrefix(marker, "[attachment: ") || !strings.Contains(marker, path) {
		t.Errorf("marker = %q", marker)
	}
	if !strings.Contains(path, "m1_notes.txt") {
		t.Errorf("path = %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "file-bytes" {
		t.Errorf("content = %q, err = %v", data, err)
	}
}

func TestMediaStore_FetchTooLarge(t *testing.T) {
	m := newMediaStore(t.TempDir())
	marker, path := m.fetch(context.Background(), "m1", attachment{
		Filename: "huge.bin",
		Size:     maxAttachmentBytes + 1,
		URL:      "http://unused.invalid/",
	})
	if path != "" {
		t.Errorf("oversized attachment downloaded to %q", path)
	}
	if marker != "[attachment too large: huge.bin]" {
		t.Errorf("marker = %q", marker)
	}
}

func TestMediaStore_FetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	m := newMediaStore(t.TempDir())
	marker, path := m.fetch(context.Background(), "m1", attachment{
		Filename: "gone.txt",
		Size:     1,
		URL:      srv.URL,
	})
	if path != "" {
		t.Errorf("failed download returned path %q", path)
	}
	if marker != "[attachment download failed: gone.txt]" {
		t.Errorf("marker = %q", marker)
	}
}
