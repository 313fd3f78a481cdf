package pop3

import (
	"bytes"
	"fmt"
	"time"

	"github.com/emersion/go-message/textproto"
	"github.com/knadh/go-pop3"

	"github.com/sheetpoll/sheetpoll/transport"
)

// Options holds the POP3 connection settings.
type Options struct {
	Host               string
	Port               int
	Username           string
	Password           string
	UseTLS             bool
	InsecureSkipVerify bool
	DialTimeout        time.Duration
}

// Session is a live POP3 mailbox session. Protocol status lines and the
// dot-terminated multi-line responses are handled by the underlying client;
// callers only ever see payload text.
type Session struct {
	conn *pop3.Conn
}

// Connect dials the server and authenticates. A connect or auth failure is
// fatal to the run: nothing has been touched yet, so there is nothing to roll
// back.
func Connect(opts Options) (*Session, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("pop3 host is empty")
	}
	if opts.Port <= 0 || opts.Port > 65535 {
		return nil, fmt.Errorf("pop3 port must be between 1 and 65535")
	}

	client := pop3.New(pop3.Opt{
		Host:          opts.Host,
		Port:          opts.Port,
		TLSEnabled:    opts.UseTLS,
		TLSSkipVerify: opts.InsecureSkipVerify,
		DialTimeout:   opts.DialTimeout,
	})

	conn, err := client.NewConn()
	if err != nil {
		return nil, fmt.Errorf("dial pop3 %s:%d: %w", opts.Host, opts.Port, err)
	}

	if err := conn.Auth(opts.Username, opts.Password); err != nil {
		_ = conn.Quit()
		return nil, fmt.Errorf("pop3 auth failed: %w", err)
	}

	return &Session{conn: conn}, nil
}

// ListMessages issues LIST and reports every message with its session-local
// sequence number and advertised size.
func (s *Session) ListMessages() ([]transport.Listing, error) {
	ids, err := s.conn.List(0)
	if err != nil {
		return nil, fmt.Errorf("pop3 list: %w", err)
	}

	listings := make([]transport.Listing, 0, len(ids))
	for _, id := range ids {
		listings = append(listings, transport.Listing{Seq: id.ID, Size: id.Size})
	}
	return listings, nil
}

// FetchHeader issues TOP with zero body lines and re-serializes the header
// block verbatim.
func (s *Session) FetchHeader(seq int) (string, error) {
	entity, err := s.conn.Top(seq, 0)
	if err != nil {
		return "", fmt.Errorf("pop3 top %d: %w", seq, err)
	}

	var buf bytes.Buffer
	if err := textproto.WriteHeader(&buf, entity.Header.Header); err != nil {
		return "", fmt.Errorf("serialize header %d: %w", seq, err)
	}
	return buf.String(), nil
}

// FetchBody issues RETR and returns the full raw payload.
func (s *Session) FetchBody(seq int) (string, error) {
	buf, err := s.conn.RetrRaw(seq)
	if err != nil {
		return "", fmt.Errorf("pop3 retr %d: %w", seq, err)
	}
	return buf.String(), nil
}

// Close sends QUIT and releases the connection.
func (s *Session) Close() error {
	if err := s.conn.Quit(); err != nil {
		return fmt.Errorf("pop3 quit: %w", err)
	}
	return nil
}
