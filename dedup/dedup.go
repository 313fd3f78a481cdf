package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/sheetpoll/sheetpoll/headers"
)

// State classifies the outcome of a duplicate check.
type State int

const (
	// New means the hash has never been seen before.
	New State = iota
	// DuplicateStored means the hash already exists in the persisted ledger.
	DuplicateStored
	// DuplicateRun means the hash was already produced earlier in this run.
	DuplicateRun
)

// Result is the tri-state outcome of a duplicate check. Of carries the hash
// of the previously seen item for either duplicate state.
type Result struct {
	State State
	Of    string
}

// Duplicate reports whether the result is any kind of duplicate.
func (r Result) Duplicate() bool {
	return r.State != New
}

// MessageHash computes the durable identity of a message: a sha256 digest of
// its structured header fields serialized in a fixed order. Hashing the
// structured fields rather than raw bytes keeps the identity stable across
// incidental transport whitespace variance.
func MessageHash(rawHeader string) string {
	f := headers.ScanFields(rawHeader)
	canonical := strings.Join([]string{
		f.From,
		strings.Join(f.To, ","),
		f.Subject,
		f.Date,
	}, "\x1f")
	return digest(canonical)
}

// AttachmentHash computes the durable identity of an attachment from its
// still-base64-encoded payload. The encoding is part of the identity: as long
// as senders do not re-encode a file, the hash is stable across runs and
// across extraction code changes.
func AttachmentHash(encoded string) string {
	return digest(encoded)
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Deduper consults a snapshot of previously persisted hashes plus everything
// seen earlier in the current run. The snapshot is loaded once at pipeline
// start; the run-local sets grow as checks are made.
type Deduper struct {
	storedMessages    map[string]struct{}
	storedAttachments map[string]struct{}
	runMessages       map[string]struct{}
	runAttachments    map[string]struct{}
}

// NewDeduper builds a Deduper over the ledger snapshot: all persisted message
// hashes and the union of all attachment hashes across every persisted entry.
func NewDeduper(messageHashes, attachmentHashes []string) *Deduper {
	d := &Deduper{
		storedMessages:    make(map[string]struct{}, len(messageHashes)),
		storedAttachments: make(map[string]struct{}, len(attachmentHashes)),
		runMessages:       make(map[string]struct{}),
		runAttachments:    make(map[string]struct{}),
	}
	for _, h := range messageHashes {
		d.storedMessages[h] = struct{}{}
	}
	for _, h := range attachmentHashes {
		d.storedAttachments[h] = struct{}{}
	}
	return d
}

// CheckMessage classifies a message hash and records it as seen this run.
func (d *Deduper) CheckMessage(hash string) Result {
	return check(d.storedMessages, d.runMessages, hash)
}

// CheckAttachment classifies an attachment hash against the entire persisted
// history (not just the current message) and records it as seen this run.
func (d *Deduper) CheckAttachment(hash string) Result {
	return check(d.storedAttachments, d.runAttachments, hash)
}

func check(stored, run map[string]struct{}, hash string) Result {
	if _, ok := stored[hash]; ok {
		return Result{State: DuplicateStored, Of: hash}
	}
	if _, ok := run[hash]; ok {
		return Result{State: DuplicateRun, Of: hash} // identical content, same hash
	}
	run[hash] = struct{}{}
	return Result{State: New}
}
