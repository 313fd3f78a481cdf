package allowlist

import (
	"net/mail"
	"strings"
)

// AllowList holds the configured sets of permitted sender and receiver
// addresses.
type AllowList struct {
	Senders   []string `mapstructure:"senders" json:"senders"`
	Receivers []string `mapstructure:"receivers" json:"receivers"`
}

// Filter decides whether a message's sender/receiver headers satisfy the
// configured allow-list. All comparisons are case-insensitive on both sides.
type Filter struct {
	senders   map[string]struct{}
	receivers map[string]struct{}
}

// New builds a Filter from the allow-list configuration.
func New(list AllowList) *Filter {
	return &Filter{
		senders:   toSet(list.Senders),
		receivers: toSet(list.Receivers),
	}
}

// Matches reports whether the raw header block names an allow-listed sender
// and at least one allow-listed receiver. A header block without a valid
// sender or without any valid receiver never matches.
func (f *Filter) Matches(rawHeader string) bool {
	sender, receivers := ScanAddresses(rawHeader)
	if sender == "" || len(receivers) == 0 {
		return false
	}
	if _, ok := f.senders[strings.ToLower(sender)]; !ok {
		return false
	}
	for _, rcpt := range receivers {
		if _, ok := f.receivers[strings.ToLower(rcpt)]; ok {
			return true
		}
	}
	return false
}

// ScanAddresses walks the header block line by line collecting the sender
// (first syntactically valid address on a From or Return-Path line wins) and
// all valid receiver addresses from To lines. Scanning stops once both a
// sender and at least one receiver have been found. Malformed addresses are
// skipped, never reported as errors.
func ScanAddresses(rawHeader string) (sender string, receivers []string) {
	for _, line := range strings.Split(rawHeader, "\n") {
		line = strings.TrimRight(line, "\r")

		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}

		switch {
		case sender == "" && isSenderHeader(name):
			if addrs := ParseAddresses(value); len(addrs) > 0 {
				sender = addrs[0]
			}
		case strings.EqualFold(strings.TrimSpace(name), "To"):
			receivers = append(receivers, ParseAddresses(value)...)
		}

		if sender != "" && len(receivers) > 0 {
			return sender, receivers
		}
	}
	return sender, receivers
}

func isSenderHeader(name string) bool {
	name = strings.TrimSpace(name)
	return strings.EqualFold(name, "From") || strings.EqualFold(name, "Return-Path")
}

// ParseAddresses extracts every syntactically valid address from a header
// value, tolerating individually malformed entries in a comma-separated list.
func ParseAddresses(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}

	if list, err := mail.ParseAddressList(value); err == nil {
		addrs := make([]string, 0, len(list))
		for _, a := range list {
			addrs = append(addrs, a.Address)
		}
		return addrs
	}

	// Comma-separated values where only some entries parse: keep the valid
	// ones instead of discarding the whole line.
	var addrs []string
	for _, part := range strings.Split(value, ",") {
		if a, err := mail.ParseAddress(strings.TrimSpace(part)); err == nil {
			addrs = append(addrs, a.Address)
		}
	}
	return addrs
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		set[v] = struct{}{}
	}
	return set
}
