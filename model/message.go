package model

import (
	"fmt"
	"strings"
)

// AttachmentStatus is the review state of an extracted attachment.
type AttachmentStatus string

const (
	StatusPendingApproval AttachmentStatus = "pending_approval"
	StatusApproved        AttachmentStatus = "approved"
	StatusRejected        AttachmentStatus = "rejected"
)

// ParseStatus maps a user-supplied status string onto an AttachmentStatus.
func ParseStatus(s string) (AttachmentStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending_approval", "pending":
		return StatusPendingApproval, nil
	case "approved":
		return StatusApproved, nil
	case "rejected":
		return StatusRejected, nil
	default:
		return "", fmt.Errorf("unknown attachment status %q", s)
	}
}

// Info holds the fields scanned out of a message for the ledger record.
type Info struct {
	From    string
	To      []string
	Subject string
	Date    string
	ReadAt  string
}

// Message represents one mailbox item during a single pipeline run.
//
// Seq is the session-local ordinal assigned by the transport and is only
// meaningful for addressing TOP/RETR within the current session. Hash is the
// durable cross-run identity derived from the structured header fields. The
// two must never be conflated.
type Message struct {
	Seq             int
	Size            int
	RawHeader       string
	RawBody         string
	Hash            string
	Duplicate       bool
	ProjectedHeader string
	Info            Info
	Attachments     map[string]*Attachment
}

// Attachment represents one extracted attachment part.
type Attachment struct {
	Hash             string
	OriginalFilename string
	Filename         string
	Extension        string
	MimeType         string
	Size             int
	Decoded          []byte
	Encoded          string
	Status           AttachmentStatus
	// DuplicateOf is the hash of an earlier attachment with identical encoded
	// content, or empty when this payload is seen for the first time.
	DuplicateOf string
}
