package discord

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// maxAttachmentBytes caps attachment downloads (20 MiB).
const maxAttachmentBytes = 20 << 20

// defaultMediaDir receives downloaded attachments.
const defaultMediaDir = "~/.nanobot/media"

// mediaStore downloads message attachments into the local media directory.
// Per-attachment filenames carry the platform message id, so concurrent
// downloads never collide.
type mediaStore struct {
	dir  string
	http *http.Client
}

func newMediaStore(dir string) *mediaStore {
	if dir == "" {
		dir = defaultMediaDir
	}
	if strings.HasPrefix(dir, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, strings.TrimPrefix(dir, "~"))
		}
	}
	return &mediaStore{
		dir:  dir,
		http: &http.Client{Timeout: 60 * time.Second},
	}
}

// fetch downloads one attachment. It always returns a content marker and,
// on success, the local path. Failures never abort message delivery.
func (m *mediaStore) fetch(ctx context.Context, messageID string, att attachment) (marker, path string) {
	if att.Size > maxAttachmentBytes {
		return fmt.Sprintf("[attachment too large: %s]", att.Filename), ""
	}

	path, err := m.download(ctx, messageID, att)
	if err != nil {
		slog.Warn("attachment download failed",
			"message_id", messageID,
			"filename", att.Filename,
			"error", err,
		)
		return fmt.Sprintf("[attachment download failed: %s]", att.Filename), ""
	}
	return fmt.Sprintf("[attachment: %s]", path), path
}

func (m *mediaStore) download(ctx context.Context, messageID string, att attachment) (string, error) {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return "", fmt.Errorf("create media dir: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, att.URL, nil)
	if err != nil {
		return "", err
	}
	resp, err := m.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download status %d", resp.StatusCode)
	}

	dest := filepath.Join(m.dir, messageID+"_"+sanitizeFilename(att.Filename))
	f, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	defer f.Close()

	// The declared size passed the cap check; still bound the actual read.
	if _, err := io.Copy(f, io.LimitReader(resp.Body, maxAttachmentBytes)); err != nil {
		os.Remove(dest)
		return "", err
	}
	return dest, nil
}

// sanitizeFilename strips path separators and traversal tokens.
func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "..", "_")
	name = filepath.Base(name)
	if name == "" || name == "." {
		name = "attachment"
	}
	return name
}
