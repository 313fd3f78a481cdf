package imap

import (
	"crypto/tls"
	"fmt"
	"net"
	"strconv"

	imapv2 "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/sheetpoll/sheetpoll/transport"
)

// Options holds the IMAP connection settings.
type Options struct {
	Host               string
	Port               int
	Username           string
	Password           string
	UseTLS             bool
	InsecureSkipVerify bool
	Mailbox            string
}

// Session is a live IMAP mailbox session exposing the same list/fetch surface
// as the POP3 session, so the pipeline can run against IMAP servers
// unchanged. All fetches use BODY.PEEK so polling never flags messages seen.
type Session struct {
	client *imapclient.Client
	count  uint32
}

// Connect dials the server, authenticates and selects the mailbox.
func Connect(opts Options) (*Session, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("imap host is empty")
	}
	if opts.Port <= 0 || opts.Port > 65535 {
		return nil, fmt.Errorf("imap port must be between 1 and 65535")
	}

	address := net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))
	options := &imapclient.Options{}

	var (
		client *imapclient.Client
		err    error
	)
	if opts.UseTLS {
		options.TLSConfig = &tls.Config{
			ServerName:         opts.Host,
			InsecureSkipVerify: opts.InsecureSkipVerify,
		}
		client, err = imapclient.DialTLS(address, options)
	} else {
		client, err = imapclient.DialInsecure(address, options)
	}
	if err != nil {
		return nil, fmt.Errorf("dial imap %s: %w", address, err)
	}

	if err := client.Login(opts.Username, opts.Password).Wait(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("imap login failed: %w", err)
	}

	mailbox := opts.Mailbox
	if mailbox == "" {
		mailbox = "INBOX"
	}
	selected, err := client.Select(mailbox, nil).Wait()
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("select mailbox %s: %w", mailbox, err)
	}

	return &Session{client: client, count: selected.NumMessages}, nil
}

// ListMessages reports every message in the selected mailbox with its
// sequence number and RFC822 size.
func (s *Session) ListMessages() ([]transport.Listing, error) {
	if s.count == 0 {
		return nil, nil
	}

	seqSet := imapv2.SeqSet{}
	seqSet.AddRange(1, s.count)

	msgs, err := s.client.Fetch(seqSet, &imapv2.FetchOptions{RFC822Size: true}).Collect()
	if err != nil {
		return nil, fmt.Errorf("imap fetch sizes: %w", err)
	}

	listings := make([]transport.Listing, 0, len(msgs))
	for _, msg := range msgs {
		listings = append(listings, transport.Listing{
			Seq:  int(msg.SeqNum),
			Size: int(msg.RFC822Size),
		})
	}
	return listings, nil
}

// FetchHeader retrieves the raw header block of one message.
func (s *Session) FetchHeader(seq int) (string, error) {
	section := &imapv2.FetchItemBodySection{
		Specifier: imapv2.PartSpecifierHeader,
		Peek:      true,
	}
	return s.fetchSection(seq, section)
}

// FetchBody retrieves the full raw payload of one message.
func (s *Session) FetchBody(seq int) (string, error) {
	section := &imapv2.FetchItemBodySection{Peek: true}
	return s.fetchSection(seq, section)
}

func (s *Session) fetchSection(seq int, section *imapv2.FetchItemBodySection) (string, error) {
	seqSet := imapv2.SeqSetNum(uint32(seq))
	options := &imapv2.FetchOptions{
		BodySection: []*imapv2.FetchItemBodySection{section},
	}

	msgs, err := s.client.Fetch(seqSet, options).Collect()
	if err != nil {
		return "", fmt.Errorf("imap fetch %d: %w", seq, err)
	}
	if len(msgs) == 0 {
		return "", fmt.Errorf("imap fetch %d: no data returned", seq)
	}

	return string(msgs[0].FindBodySection(section)), nil
}

// Close logs out and releases the connection.
func (s *Session) Close() error {
	if err := s.client.Logout().Wait(); err != nil {
		_ = s.client.Close()
		return fmt.Errorf("imap logout: %w", err)
	}
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("imap close: %w", err)
	}
	return nil
}
