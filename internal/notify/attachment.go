package notify

import (
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
)

type attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// loadAttachments reads every file in paths. Unreadable files are skipped with
// a warning; it fails only when paths is non-empty and nothing could be read.
func loadAttachments(paths []string, logger *slog.Logger) ([]attachment, error) {
	var out []attachment
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("Could not read attachment file", "path", path, "error", err)
			continue
		}

		contentType := mime.TypeByExtension(filepath.Ext(path))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		out = append(out, attachment{Name: filepath.Base(path), ContentType: contentType, Data: data})
		logger.Debug("Attachment loaded", "name", filepath.Base(path), "contentType", contentType, "bytes", len(data))
	}

	if len(out) == 0 && len(paths) > 0 {
		return nil, fmt.Errorf("no valid attachments could be processed")
	}
	return out, nil
}
