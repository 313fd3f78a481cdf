package output

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sheetpoll/sheetpoll/model"
)

// Writer owns the two filesystem output areas: one raw-message file per
// surviving message and one payload file per extracted attachment. Existing
// files are never overwritten; a skipped write is not an error.
type Writer struct {
	emailDir      string
	attachmentDir string
}

// NewWriter creates both output directories if needed.
func NewWriter(emailDir, attachmentDir string) (*Writer, error) {
	for _, dir := range []string{emailDir, attachmentDir} {
		if dir == "" {
			return nil, fmt.Errorf("output directory is empty")
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output directory %s: %w", dir, err)
		}
	}
	return &Writer{emailDir: emailDir, attachmentDir: attachmentDir}, nil
}

// WriteMessage stores the raw message under its content hash. Returns false
// when a file for this hash already exists.
func (w *Writer) WriteMessage(hash, raw string) (bool, error) {
	return writeIfAbsent(filepath.Join(w.emailDir, hash+".eml"), []byte(raw))
}

// WriteAttachment stores the decoded attachment payload under its
// hash-derived filename. Returns false when the file already exists.
func (w *Writer) WriteAttachment(att *model.Attachment) (bool, error) {
	return writeIfAbsent(filepath.Join(w.attachmentDir, att.Filename), att.Decoded)
}

func writeIfAbsent(path string, data []byte) (bool, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, os.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("create %s: %w", path, err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return false, fmt.Errorf("close %s: %w", path, err)
	}
	return true, nil
}
