package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sheetpoll/sheetpoll/model"
)

// AttachmentRecord is the persisted form of an extracted attachment, without
// its raw bytes.
type AttachmentRecord struct {
	OriginalFilename string                 `json:"original_filename"`
	Filename         string                 `json:"filename"`
	Extension        string                 `json:"extension"`
	MimeType         string                 `json:"mime_type"`
	SizeBytes        int                    `json:"size_bytes"`
	Status           model.AttachmentStatus `json:"status"`
	DuplicateOf      string                 `json:"duplicate_of,omitempty"`
}

// Entry is the persisted record of one processed message, keyed in the ledger
// by the message content hash.
type Entry struct {
	From        string                      `json:"from"`
	To          []string                    `json:"to"`
	Subject     string                      `json:"subject"`
	Date        string                      `json:"date"`
	ReadAt      string                      `json:"read_at"`
	Attachments map[string]AttachmentRecord `json:"attachments"`
}

// Ledger maps message content hashes to their processed records. It is the
// single source of truth for cross-run deduplication of both messages and
// attachments. Once a hash is present it is never removed.
type Ledger map[string]Entry

// Merge applies a key-wise union: entries in other overwrite same-keyed
// entries field-for-field, entries absent from other are untouched.
func (l Ledger) Merge(other Ledger) {
	for hash, entry := range other {
		l[hash] = entry
	}
}

// MessageHashes returns every persisted message hash.
func (l Ledger) MessageHashes() []string {
	hashes := make([]string, 0, len(l))
	for h := range l {
		hashes = append(hashes, h)
	}
	return hashes
}

// AttachmentHashes returns the union of all attachment hashes across every
// persisted entry.
func (l Ledger) AttachmentHashes() []string {
	var hashes []string
	for _, entry := range l {
		for h := range entry.Attachments {
			hashes = append(hashes, h)
		}
	}
	return hashes
}

// Store persists the ledger as a single pretty-printed JSON file.
type Store struct {
	path   string
	logger *slog.Logger
}

// NewStore creates a Store for the ledger file at path.
func NewStore(path string, logger *slog.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("ledger path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}
	return &Store{path: path, logger: logger}, nil
}

// Load reads the persisted ledger. A missing or corrupt file degrades to an
// empty ledger with a warning, never a fatal abort: an unreadable ledger only
// costs duplicate suppression, not correctness of the current run.
func (s *Store) Load() Ledger {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Ledger{}
	}
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("ledger unreadable, starting empty", "path", s.path, "err", err)
		}
		return Ledger{}
	}

	var l Ledger
	if err := json.Unmarshal(data, &l); err != nil {
		if s.logger != nil {
			s.logger.Warn("ledger corrupt, starting empty", "path", s.path, "err", err)
		}
		return Ledger{}
	}
	if l == nil {
		l = Ledger{}
	}
	return l
}

// Persist rewrites the ledger file with the full current content. The file is
// only touched after the new content has been fully serialized in memory, so
// a crash mid-run leaves the previously committed file intact.
func (s *Store) Persist(l Ledger) error {
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	return nil
}

// UpdateResult reports the outcome of one status update request.
type UpdateResult struct {
	Filename string
	Updated  bool
	Reason   string
}

// UpdateAttachmentStatus re-loads the ledger, sets the status of each
// attachment addressed by filename (`<hash>.<extension>`) and persists the
// ledger again. Mismatches are reported per item and never abort the batch.
// The operation is idempotent: an attachment already at the target status is
// reported as a no-op.
func (s *Store) UpdateAttachmentStatus(filenames []string, status model.AttachmentStatus) ([]UpdateResult, error) {
	l := s.Load()

	// Sorted entry order keeps "first matching entry" deterministic when the
	// same attachment hash appears under several messages.
	entryHashes := l.MessageHashes()
	sort.Strings(entryHashes)

	results := make([]UpdateResult, 0, len(filenames))
	for _, filename := range filenames {
		results = append(results, updateOne(l, entryHashes, filename, status))
	}

	if err := s.Persist(l); err != nil {
		return results, err
	}
	return results, nil
}

func updateOne(l Ledger, entryHashes []string, filename string, status model.AttachmentStatus) UpdateResult {
	res := UpdateResult{Filename: filename}

	hash, ext, ok := splitFilename(filename)
	if !ok {
		res.Reason = "filename is not of the form <hash>.<extension>"
		return res
	}

	for _, entryHash := range entryHashes {
		entry := l[entryHash]
		record, found := entry.Attachments[hash]
		if !found || record.Extension != ext {
			continue
		}
		if record.Status == status {
			res.Reason = fmt.Sprintf("already %s", status)
			return res
		}
		record.Status = status
		entry.Attachments[hash] = record
		res.Updated = true
		return res
	}

	res.Reason = "no matching attachment in ledger"
	return res
}

func splitFilename(filename string) (hash, ext string, ok bool) {
	idx := strings.LastIndex(filename, ".")
	if idx <= 0 || idx == len(filename)-1 {
		return "", "", false
	}
	return filename[:idx], strings.ToLower(filename[idx+1:]), true
}
