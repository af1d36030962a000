package imapsession

import (
	"fmt"
	"net/url"

	"github.com/emersion/go-imap/utf7"
)

// State is the session lifecycle position. Transitions only ever move
// through Connect, Authenticate, Select/Examine, CloseMailbox, Disconnect;
// there is no hidden state beyond the open mailbox's read-only flag.
type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateAuthenticated
	StateMailboxOpen
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateAuthenticated:
		return "authenticated"
	case StateMailboxOpen:
		return "mailbox open"
	}
	return "unknown"
}

// Session is a stateful IMAP conversation: it owns one connection handle,
// tracks authentication and mailbox-selection state across it, and knows
// how to rebuild all of that from scratch after a failure.
//
// A Session is not safe for concurrent use; callers wanting parallelism
// should run independent sessions.
type Session struct {
	client ProtocolClient
	ep     *Endpoint
	cfg    Config

	caps   CapabilitySet
	quirks Quirks

	authenticated bool

	// mailbox is the open mailbox, stored UTF-7-decoded and then
	// percent-encoded. Non-empty only while a mailbox is open.
	mailbox         string
	mailboxReadOnly bool

	// target is the mailbox Start opens: seeded from the endpoint URI
	// path, updated by Select/Examine, cleared by CloseMailbox. Unlike
	// mailbox it survives disconnects, which is what lets Safely restore
	// the selection after a reconnect.
	target string
}

// New builds a session for the given connection URI using the built-in
// wire client. A nil cfg means DefaultConfig.
func New(uri string, cfg *Config) (*Session, error) {
	return NewWithClient(uri, NewDialer(), cfg)
}

// NewWithClient builds a session on top of a caller-provided protocol
// client. A nil cfg means DefaultConfig.
func NewWithClient(uri string, client ProtocolClient, cfg *Config) (*Session, error) {
	ep, err := ParseEndpoint(uri)
	if err != nil {
		return nil, err
	}
	c := DefaultConfig()
	if cfg != nil {
		c = *cfg
	}
	return &Session{client: client, ep: ep, cfg: c, target: ep.Mailbox}, nil
}

// State derives the current lifecycle state.
func (s *Session) State() State {
	switch {
	case !s.Connected():
		return StateDisconnected
	case !s.authenticated:
		return StateConnected
	case s.mailbox == "":
		return StateAuthenticated
	}
	return StateMailboxOpen
}

// Connected reports whether the transport is open.
func (s *Session) Connected() bool {
	return s.client != nil && s.client.Connected()
}

// Authenticated reports whether this connection has authenticated.
func (s *Session) Authenticated() bool {
	return s.Connected() && s.authenticated
}

// Mailbox returns the name of the open mailbox, or "" when none is open.
func (s *Session) Mailbox() string {
	name, _ := url.PathUnescape(s.mailbox)
	return name
}

// MailboxReadOnly reports whether the open mailbox was opened via EXAMINE.
func (s *Session) MailboxReadOnly() bool {
	return s.mailbox != "" && s.mailboxReadOnly
}

// Capabilities returns the capability set from the most recent refresh.
// It is empty until the first successful connect.
func (s *Session) Capabilities() CapabilitySet {
	return s.caps
}

// Quirks returns the quirk profile detected for the current connection.
func (s *Session) Quirks() Quirks {
	return s.quirks
}

// Connect (re-)establishes the transport. Any existing connection is torn
// down first and authentication/mailbox state reset, so Connect is valid
// from every lifecycle state. After the transport is up it detects server
// quirks from the greeting, applies any pre-auth workaround they require,
// and refreshes the capability set.
func (s *Session) Connect() error {
	s.drop()

	debugLog(s.ep.Host, "", "connecting", "addr", s.ep.Addr(), "tls", s.ep.TLS)
	greeting, err := s.client.Dial(s.ep, &s.cfg)
	if err != nil {
		return err
	}

	s.quirks = DetectQuirks(greeting.Text, s.ep.Host)
	if s.quirks.Has(QuirkYahoo) {
		// Yahoo rejects LOGIN until it has seen this ID exchange.
		if _, err := s.client.Raw(yahooLoginWorkaround); err != nil {
			return fmt.Errorf("imap connect: yahoo workaround: %w", err)
		}
	}

	return s.refreshCapabilities(greeting)
}

// Authenticate negotiates and runs an authentication mechanism. It is a
// no-op when already authenticated and fails with ErrNotConnected before
// Connect.
func (s *Session) Authenticate() error {
	if !s.Connected() {
		return ErrNotConnected
	}
	if s.authenticated {
		return nil
	}

	resp, err := negotiateAuth(s.client, s.caps, s.ep, &s.cfg)
	if err != nil {
		return err
	}
	s.authenticated = true
	debugLog(s.ep.Host, "", "authenticated", "user", s.ep.Username)

	return s.refreshCapabilities(resp)
}

// Select opens the named mailbox read-write.
func (s *Session) Select(name string) error {
	return s.open(name, false)
}

// Examine opens the named mailbox read-only.
func (s *Session) Examine(name string) error {
	return s.open(name, true)
}

func (s *Session) open(name string, readOnly bool) error {
	if !s.Authenticated() {
		return ErrNotAuthenticated
	}

	// Mailbox names travel as modified UTF-7 on the wire but are stored
	// decoded (and percent-encoded) so they round-trip losslessly.
	wireName, err := utf7.Encoding.NewEncoder().String(name)
	if err != nil {
		return fmt.Errorf("imap select: encode mailbox %q: %w", name, err)
	}

	if readOnly {
		_, err = s.client.Examine(wireName)
	} else {
		_, err = s.client.Select(wireName)
	}
	if err != nil {
		return err
	}

	decoded, err := utf7.Encoding.NewDecoder().String(wireName)
	if err != nil {
		return fmt.Errorf("imap select: decode mailbox %q: %w", wireName, err)
	}
	s.mailbox = url.PathEscape(decoded)
	s.mailboxReadOnly = readOnly
	s.target = s.mailbox
	debugLog(s.ep.Host, decoded, "mailbox opened", "readonly", readOnly)

	return nil
}

// CloseMailbox closes the open mailbox. For a mailbox opened read-write
// the server permanently expunges messages flagged deleted.
func (s *Session) CloseMailbox() error {
	if s.State() != StateMailboxOpen {
		return ErrNoMailbox
	}
	if _, err := s.client.CloseMailbox(); err != nil {
		return err
	}
	s.mailbox = ""
	s.target = ""
	return nil
}

// Disconnect tears down the transport and resets to StateDisconnected.
// Idempotent. The configured mailbox target is kept so a later Start
// restores the previous selection.
func (s *Session) Disconnect() error {
	s.drop()
	return nil
}

// drop discards the connection handle and resets per-connection state.
func (s *Session) drop() {
	if s.client != nil && s.client.Connected() {
		debugLog(s.ep.Host, s.Mailbox(), "closing connection")
		_ = s.client.Close()
	}
	s.authenticated = false
	s.mailbox = ""
	s.mailboxReadOnly = false
}

// Start brings the session to its fully established state: connect if
// disconnected, authenticate if needed, then open the target mailbox (from
// the endpoint URI or the last Select/Examine) in the configured mode.
// Calling Start on an established session only re-issues the mailbox open,
// which is safe and keeps the selection correct after any reconnect.
func (s *Session) Start() error {
	if !s.Connected() {
		if err := s.Connect(); err != nil {
			return err
		}
	}
	if !s.authenticated {
		if err := s.Authenticate(); err != nil {
			return err
		}
	}
	if s.target == "" {
		return nil
	}

	name, err := url.PathUnescape(s.target)
	if err != nil {
		return fmt.Errorf("imap start: mailbox path %q: %w", s.target, err)
	}
	if s.cfg.ReadOnly {
		return s.Examine(name)
	}
	return s.Select(name)
}

// refreshCapabilities replaces the capability set wholesale. When resp
// carries capability data inline it is used directly, avoiding a round
// trip; otherwise an explicit CAPABILITY query is issued, which requires
// an open connection.
func (s *Session) refreshCapabilities(resp *Response) error {
	if caps, ok := capabilitiesFrom(resp); ok {
		s.caps = caps
		return nil
	}
	if !s.Connected() {
		return ErrNotConnected
	}

	r, err := s.client.Capability()
	if err != nil {
		return err
	}
	caps, ok := capabilitiesFrom(r)
	if !ok {
		return fmt.Errorf("imap capability: server reply carried no capability list")
	}
	s.caps = caps
	return nil
}
