package ledger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/sheetpoll/sheetpoll/model"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "ledger.json"), nil)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	return s
}

func sampleEntry(attHash string) Entry {
	return Entry{
		From:    "boss@corp.com",
		To:      []string{"reports@corp.com"},
		Subject: "Q1",
		Date:    "2006-01-02T15:04:05Z",
		ReadAt:  "2024-05-01T12:00:00Z",
		Attachments: map[string]AttachmentRecord{
			attHash: {
				OriginalFilename: "report.xlsx",
				Filename:         attHash + ".xlsx",
				Extension:        "xlsx",
				MimeType:         "application/vnd.ms-excel",
				SizeBytes:        42,
				Status:           model.StatusPendingApproval,
			},
		},
	}
}

func TestStore_LoadMissingFile(t *testing.T) {
	s := testStore(t)
	if l := s.Load(); len(l) != 0 {
		t.Errorf("got %d entries, want empty ledger", len(l))
	}
}

func TestStore_LoadCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	if l := s.Load(); len(l) != 0 {
		t.Errorf("corrupt file: got %d entries, want empty ledger", len(l))
	}
}

func TestStore_PersistRoundTrip(t *testing.T) {
	s := testStore(t)

	l := Ledger{"msg1": sampleEntry("att1")}
	if err := s.Persist(l); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}

	got := s.Load()
	if !reflect.DeepEqual(l, got) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, l)
	}
}

func TestStore_PersistIsPrettyPrinted(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.json")
	s, err := NewStore(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Persist(Ledger{"msg1": sampleEntry("att1")}); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var indented map[string]json.RawMessage
	if err := json.Unmarshal(data, &indented); err != nil {
		t.Fatalf("persisted ledger is not valid JSON: %v", err)
	}
	if len(data) == 0 || data[1] != '\n' {
		t.Error("persisted ledger is not indented")
	}
}

func TestLedger_MergeIsAdditive(t *testing.T) {
	l := Ledger{
		"old": sampleEntry("att-old"),
		"kept": {
			From: "kept@corp.com",
		},
	}

	updated := sampleEntry("att-new")
	updated.Subject = "rewritten"
	l.Merge(Ledger{
		"old": updated,
		"new": sampleEntry("att2"),
	})

	if len(l) != 3 {
		t.Fatalf("got %d entries, want 3", len(l))
	}
	if l["old"].Subject != "rewritten" {
		t.Error("same-keyed entry was not overwritten")
	}
	if l["kept"].From != "kept@corp.com" {
		t.Error("unrelated entry was touched")
	}
}

func TestLedger_AttachmentHashesUnion(t *testing.T) {
	l := Ledger{
		"m1": sampleEntry("a1"),
		"m2": sampleEntry("a2"),
	}
	hashes := l.AttachmentHashes()
	if len(hashes) != 2 {
		t.Errorf("got %v, want two hashes", hashes)
	}
}

func TestStore_UpdateAttachmentStatus(t *testing.T) {
	s := testStore(t)

	other := sampleEntry("other")
	if err := s.Persist(Ledger{
		"msg1": sampleEntry("abc123"),
		"msg2": other,
	}); err != nil {
		t.Fatal(err)
	}

	results, err := s.UpdateAttachmentStatus([]string{"abc123.xlsx"}, model.StatusApproved)
	if err != nil {
		t.Fatalf("UpdateAttachmentStatus() error = %v", err)
	}
	if len(results) != 1 || !results[0].Updated {
		t.Fatalf("results = %+v", results)
	}

	reloaded := s.Load()
	if got := reloaded["msg1"].Attachments["abc123"].Status; got != model.StatusApproved {
		t.Errorf("status = %q, want approved", got)
	}
	if !reflect.DeepEqual(reloaded["msg2"], other) {
		t.Error("unrelated entry changed")
	}
}

func TestStore_UpdateAttachmentStatus_Mismatches(t *testing.T) {
	s := testStore(t)
	if err := s.Persist(Ledger{"msg1": sampleEntry("abc123")}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		filename string
	}{
		{"unknown hash", "nope.xlsx"},
		{"extension mismatch", "abc123.xls"},
		{"no extension", "abc123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := s.UpdateAttachmentStatus([]string{tt.filename}, model.StatusApproved)
			if err != nil {
				t.Fatalf("error = %v", err)
			}
			if len(results) != 1 {
				t.Fatalf("results = %+v", results)
			}
			if results[0].Updated || results[0].Reason == "" {
				t.Errorf("expected reported no-op, got %+v", results[0])
			}
		})
	}
}

func TestStore_UpdateAttachmentStatus_Idempotent(t *testing.T) {
	s := testStore(t)
	if err := s.Persist(Ledger{"msg1": sampleEntry("abc123")}); err != nil {
		t.Fatal(err)
	}

	if _, err := s.UpdateAttachmentStatus([]string{"abc123.xlsx"}, model.StatusApproved); err != nil {
		t.Fatal(err)
	}
	results, err := s.UpdateAttachmentStatus([]string{"abc123.xlsx"}, model.StatusApproved)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Updated {
		t.Errorf("second update reported a change: %+v", results[0])
	}
}
