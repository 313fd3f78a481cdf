package dedup

import (
	"testing"
)

func TestMessageHash_StableAcrossWhitespace(t *testing.T) {
	a := "From: boss@corp.com\r\nTo: reports@corp.com\r\nSubject: Q1\r\nDate: Mon, 02 Jan 2006 15:04:05 -0700"
	b := "From:   boss@corp.com\nTo:  reports@corp.com\nSubject:   Q1\nDate:  Mon, 02 Jan 2006 15:04:05 -0700"

	if MessageHash(a) != MessageHash(b) {
		t.Error("hashes differ for header blocks with only incidental whitespace differences")
	}
}

func TestMessageHash_SensitiveToFields(t *testing.T) {
	base := "From: boss@corp.com\r\nTo: reports@corp.com\r\nSubject: Q1\r\n"
	tests := []struct {
		name  string
		other string
	}{
		{"different From", "From: other@corp.com\r\nTo: reports@corp.com\r\nSubject: Q1\r\n"},
		{"different To", "From: boss@corp.com\r\nTo: other@corp.com\r\nSubject: Q1\r\n"},
		{"different Subject", "From: boss@corp.com\r\nTo: reports@corp.com\r\nSubject: Q2\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if MessageHash(base) == MessageHash(tt.other) {
				t.Error("expected different hashes")
			}
		})
	}
}

func TestDeduper_Messages(t *testing.T) {
	d := NewDeduper([]string{"stored-hash"}, nil)

	if res := d.CheckMessage("stored-hash"); res.State != DuplicateStored || res.Of != "stored-hash" {
		t.Errorf("stored hash: got %+v", res)
	}

	if res := d.CheckMessage("fresh"); res.State != New || res.Duplicate() {
		t.Errorf("fresh hash: got %+v", res)
	}

	// Second sighting within the same run.
	if res := d.CheckMessage("fresh"); res.State != DuplicateRun || res.Of != "fresh" {
		t.Errorf("run duplicate: got %+v", res)
	}
}

func TestDeduper_AttachmentsIndependentOfMessages(t *testing.T) {
	d := NewDeduper([]string{"h1"}, []string{"a1"})

	if res := d.CheckAttachment("a1"); res.State != DuplicateStored {
		t.Errorf("attachment a1: got %+v", res)
	}
	// Message hashes never shadow attachment hashes.
	if res := d.CheckAttachment("h1"); res.State != New {
		t.Errorf("attachment h1: got %+v", res)
	}
}
