package headers

import (
	"net/mail"
	"strings"
	"time"

	"github.com/sheetpoll/sheetpoll/allowlist"
	"github.com/sheetpoll/sheetpoll/model"
)

// Project reduces a raw header block to the configured allow-set of header
// names. A line survives iff its name is an exact, case-sensitive member of
// allow, or it is a Return-Path line whose value is a syntactically valid
// single address. Order of surviving lines is preserved. An empty header
// block is returned unchanged.
func Project(rawHeader string, allow []string) string {
	if rawHeader == "" {
		return rawHeader
	}

	allowed := make(map[string]struct{}, len(allow))
	for _, name := range allow {
		allowed[name] = struct{}{}
	}

	var kept []string
	for _, line := range strings.Split(rawHeader, "\n") {
		trimmed := strings.TrimRight(line, "\r")
		name, value, ok := strings.Cut(trimmed, ":")
		if !ok {
			continue
		}

		if name == "Return-Path" {
			if _, err := mail.ParseAddress(strings.TrimSpace(value)); err == nil {
				kept = append(kept, trimmed)
			}
			continue
		}
		if _, ok := allowed[name]; ok {
			kept = append(kept, trimmed)
		}
	}

	return strings.Join(kept, "\n")
}

// Fields is the structured subset of header lines used for message identity
// and for the ledger record.
type Fields struct {
	From    string
	To      []string
	Subject string
	Date    string
}

// ScanFields performs targeted line scans over a raw header or body block.
// The first valid From address wins, every valid To address accumulates, and
// the first Subject and Date lines win. Values are whitespace-trimmed so
// incidental transport formatting does not leak into the result.
func ScanFields(raw string) Fields {
	var f Fields
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)

		switch {
		case strings.EqualFold(name, "From") && f.From == "":
			if addrs := allowlist.ParseAddresses(value); len(addrs) > 0 {
				f.From = addrs[0]
			}
		case strings.EqualFold(name, "To"):
			f.To = append(f.To, allowlist.ParseAddresses(value)...)
		case strings.EqualFold(name, "Subject") && f.Subject == "":
			f.Subject = value
		case strings.EqualFold(name, "Date") && f.Date == "":
			f.Date = value
		}
	}
	return f
}

// ExtractInfo derives the ledger-facing metadata of a message from its raw
// payload. Unparseable dates are treated as absent, never as an error.
func ExtractInfo(raw string, readAt time.Time) model.Info {
	fields := ScanFields(raw)

	date := ""
	if fields.Date != "" {
		if t, err := mail.ParseDate(fields.Date); err == nil {
			date = t.Format(time.RFC3339)
		}
	}

	return model.Info{
		From:    fields.From,
		To:      fields.To,
		Subject: fields.Subject,
		Date:    date,
		ReadAt:  readAt.Format(time.RFC3339),
	}
}
