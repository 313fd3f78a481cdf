package transport

// Listing describes one mailbox item as reported by the server: its
// session-local sequence number and the size the server advertised for it.
type Listing struct {
	Seq  int
	Size int
}

// Transport is the common interface implemented by the POP3, IMAP and mbox
// mailbox sessions. It provides a protocol-agnostic way to list messages and
// fetch their headers and bodies so the pipeline does not need to switch on
// the protocol. Sequence numbers are only valid for the lifetime of one
// session.
type Transport interface {
	// ListMessages reports every message currently in the mailbox.
	ListMessages() ([]Listing, error)

	// FetchHeader retrieves the raw header block of one message.
	FetchHeader(seq int) (string, error)

	// FetchBody retrieves the full raw payload of one message.
	FetchBody(seq int) (string, error)

	// Close releases the underlying connection, if any.
	Close() error
}
