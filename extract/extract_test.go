package extract

import (
	"bytes"
	"encoding/base64"
	"testing"

	"github.com/sheetpoll/sheetpoll/dedup"
	"github.com/sheetpoll/sheetpoll/model"
)

func attachmentBody(filename string, payload []byte) string {
	encoded := base64.StdEncoding.EncodeToString(payload)
	return "Content-Type: application/octet-stream\r\n" +
		"Content-Disposition: attachment; filename=\"" + filename + "\"\r\n" +
		"Content-Transfer-Encoding: base64\r\n" +
		"\r\n" + encoded + "\r\n--boundary--\r\n"
}

func TestExtract_RoundTrip(t *testing.T) {
	payload := []byte("these are spreadsheet bytes")
	body := attachmentBody("report.xlsx", payload)

	found := Extract(body, dedup.NewDeduper(nil, nil))
	if len(found) != 1 {
		t.Fatalf("got %d attachments, want 1", len(found))
	}

	for hash, att := range found {
		if !bytes.Equal(att.Decoded, payload) {
			t.Error("decoded payload differs from original")
		}
		if att.Hash != hash {
			t.Errorf("map key %q != attachment hash %q", hash, att.Hash)
		}
		if att.OriginalFilename != "report.xlsx" {
			t.Errorf("OriginalFilename = %q", att.OriginalFilename)
		}
		if att.Extension != "xlsx" {
			t.Errorf("Extension = %q", att.Extension)
		}
		if att.Filename != hash+".xlsx" {
			t.Errorf("Filename = %q", att.Filename)
		}
		if att.MimeType != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
			t.Errorf("MimeType = %q", att.MimeType)
		}
		if att.Status != model.StatusPendingApproval {
			t.Errorf("Status = %q", att.Status)
		}
		if att.DuplicateOf != "" {
			t.Errorf("DuplicateOf = %q, want empty on first sight", att.DuplicateOf)
		}
		if att.Size != len(payload) {
			t.Errorf("Size = %d, want %d", att.Size, len(payload))
		}
	}
}

func TestExtract_DuplicateAcrossMessages(t *testing.T) {
	payload := []byte("same payload twice")
	deduper := dedup.NewDeduper(nil, nil)

	first := Extract(attachmentBody("a.xlsx", payload), deduper)
	if len(first) != 1 {
		t.Fatalf("first extraction: got %d attachments", len(first))
	}
	var firstHash string
	for h := range first {
		firstHash = h
	}

	second := Extract(attachmentBody("b.xlsx", payload), deduper)
	if len(second) != 1 {
		t.Fatalf("second extraction: got %d attachments", len(second))
	}
	for _, att := range second {
		if att.DuplicateOf != firstHash {
			t.Errorf("DuplicateOf = %q, want %q", att.DuplicateOf, firstHash)
		}
	}
}

func TestExtract_SkipsNonQualifyingParts(t *testing.T) {
	payload := []byte("payload")
	tests := []struct {
		name string
		body string
	}{
		{"non-spreadsheet extension", attachmentBody("notes.pdf", payload)},
		{"no extension", attachmentBody("README", payload)},
		{"malformed base64", "Content-Disposition: attachment; filename=\"x.xlsx\"\r\n\r\n@@@@not base64@@@@\r\n--boundary--\r\n"},
		{"missing boundary", "Content-Disposition: attachment; filename=\"x.xlsx\"\r\n\r\nQUJD\r\n"},
		{"no disposition marker", "just a plain text body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			found := Extract(tt.body, dedup.NewDeduper(nil, nil))
			if len(found) != 0 {
				t.Errorf("got %d attachments, want 0", len(found))
			}
		})
	}
}

func TestExtract_MultiplePartsInOneBody(t *testing.T) {
	body := attachmentBody("one.xls", []byte("first")) +
		attachmentBody("two.xlsx", []byte("second"))

	found := Extract(body, dedup.NewDeduper(nil, nil))
	if len(found) != 2 {
		t.Fatalf("got %d attachments, want 2", len(found))
	}
}

func TestHasAttachmentMarker(t *testing.T) {
	if !HasAttachmentMarker(attachmentBody("a.xlsx", []byte("x"))) {
		t.Error("marker not detected")
	}
	if HasAttachmentMarker("plain body, no attachments here") {
		t.Error("marker falsely detected")
	}
}

func TestMimeType(t *testing.T) {
	if got := MimeType("xls"); got != "application/vnd.ms-excel" {
		t.Errorf("xls = %q", got)
	}
	if got := MimeType("weird"); got != "application/octet-stream" {
		t.Errorf("weird = %q", got)
	}
}
