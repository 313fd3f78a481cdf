package allowlist

import (
	"testing"
)

func testFilter() *Filter {
	return New(AllowList{
		Senders:   []string{"Boss@corp.com", "finance@corp.com"},
		Receivers: []string{"reports@corp.com"},
	})
}

func TestFilter_Matches(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   bool
	}{
		{
			name:   "allowed sender and receiver",
			header: "From: boss@corp.com\r\nTo: reports@corp.com\r\nSubject: hi\r\n",
			want:   true,
		},
		{
			name:   "case-insensitive on both sides",
			header: "From: BOSS@CORP.COM\r\nTo: Reports@Corp.Com\r\n",
			want:   true,
		},
		{
			name:   "sender not allowed",
			header: "From: stranger@evil.com\r\nTo: reports@corp.com\r\n",
			want:   false,
		},
		{
			name:   "receiver set does not intersect",
			header: "From: boss@corp.com\r\nTo: other@corp.com\r\n",
			want:   false,
		},
		{
			name:   "one allowed receiver among several",
			header: "From: boss@corp.com\r\nTo: other@corp.com, reports@corp.com\r\n",
			want:   true,
		},
		{
			name:   "missing sender is a non-match",
			header: "To: reports@corp.com\r\nSubject: hi\r\n",
			want:   false,
		},
		{
			name:   "missing receiver is a non-match",
			header: "From: boss@corp.com\r\nSubject: hi\r\n",
			want:   false,
		},
		{
			name:   "sender from Return-Path",
			header: "Return-Path: <boss@corp.com>\r\nTo: reports@corp.com\r\n",
			want:   true,
		},
		{
			name:   "display name form",
			header: "From: The Boss <boss@corp.com>\r\nTo: Reports <reports@corp.com>\r\n",
			want:   true,
		},
		{
			name:   "empty header",
			header: "",
			want:   false,
		},
	}

	f := testFilter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.Matches(tt.header); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScanAddresses_FirstValidSenderWins(t *testing.T) {
	header := "From: not a valid address\r\nFrom: second@corp.com\r\nTo: reports@corp.com\r\n"
	sender, receivers := ScanAddresses(header)
	if sender != "second@corp.com" {
		t.Errorf("sender = %q, want second@corp.com", sender)
	}
	if len(receivers) != 1 || receivers[0] != "reports@corp.com" {
		t.Errorf("receivers = %v", receivers)
	}
}

func TestScanAddresses_AccumulatesReceiversAcrossLines(t *testing.T) {
	header := "To: a@corp.com\r\nTo: b@corp.com\r\nFrom: boss@corp.com\r\n"
	sender, receivers := ScanAddresses(header)
	if sender != "boss@corp.com" {
		t.Errorf("sender = %q", sender)
	}
	if len(receivers) != 2 {
		t.Fatalf("receivers = %v, want 2 entries", receivers)
	}
}

func TestScanAddresses_StopsOnceBothFound(t *testing.T) {
	// Once a sender and a receiver are known scanning stops, so the second
	// To line is never consumed.
	header := "From: boss@corp.com\r\nTo: a@corp.com\r\nTo: b@corp.com\r\n"
	_, receivers := ScanAddresses(header)
	if len(receivers) != 1 || receivers[0] != "a@corp.com" {
		t.Errorf("receivers = %v, want [a@corp.com]", receivers)
	}
}

func TestParseAddresses_TolerantOfMalformedEntries(t *testing.T) {
	addrs := ParseAddresses("good@corp.com, utterly broken, second@corp.com")
	if len(addrs) != 2 {
		t.Fatalf("got %d addresses, want 2: %v", len(addrs), addrs)
	}
	if addrs[0] != "good@corp.com" || addrs[1] != "second@corp.com" {
		t.Errorf("addrs = %v", addrs)
	}
}
