package mboxfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	mboxlib "github.com/emersion/go-mbox"

	"github.com/sheetpoll/sheetpoll/transport"
)

// Session serves a local mbox archive through the mailbox transport
// interface, so previously downloaded mail can be replayed through the
// pipeline without a live server. The archive is read once at open time;
// sequence numbers are positions within the file.
type Session struct {
	messages []string
}

// Open reads every message from the mbox file at path. Messages that cannot
// be read are skipped rather than failing the whole archive.
func Open(path string) (*Session, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("mbox path is empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mbox: %w", err)
	}
	defer file.Close()

	reader := mboxlib.NewReader(file)

	var messages []string
	for {
		msgReader, err := reader.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read mbox message %d: %w", len(messages), err)
		}

		raw, err := io.ReadAll(msgReader)
		if err != nil {
			continue
		}
		messages = append(messages, string(raw))
	}

	return &Session{messages: messages}, nil
}

// ListMessages reports every archived message.
func (s *Session) ListMessages() ([]transport.Listing, error) {
	listings := make([]transport.Listing, 0, len(s.messages))
	for i, raw := range s.messages {
		listings = append(listings, transport.Listing{Seq: i + 1, Size: len(raw)})
	}
	return listings, nil
}

// FetchHeader returns the header block of the message at seq.
func (s *Session) FetchHeader(seq int) (string, error) {
	raw, err := s.message(seq)
	if err != nil {
		return "", err
	}
	header, _ := splitRawMessage(raw)
	return header, nil
}

// FetchBody returns the full raw message at seq.
func (s *Session) FetchBody(seq int) (string, error) {
	return s.message(seq)
}

// Close is a no-op; the archive was fully read at open time.
func (s *Session) Close() error {
	return nil
}

func (s *Session) message(seq int) (string, error) {
	if seq < 1 || seq > len(s.messages) {
		return "", fmt.Errorf("mbox message %d out of range", seq)
	}
	return s.messages[seq-1], nil
}

func splitRawMessage(raw string) (header, body string) {
	if raw == "" {
		return "", ""
	}
	if idx := strings.Index(raw, "\r\n\r\n"); idx >= 0 {
		return raw[:idx], raw[idx+4:]
	}
	if idx := strings.Index(raw, "\n\n"); idx >= 0 {
		return raw[:idx], raw[idx+2:]
	}
	return raw, ""
}
