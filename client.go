package imapsession

// ProtocolClient is the narrow surface the session layer needs from a
// wire-level IMAP implementation. It executes commands and parses replies;
// all policy (auth ordering, retries, state tracking) lives above it.
//
// Methods are grouped by lifecycle requirement. The Session checks its own
// state before dispatching; implementations may assume calls arrive in a
// valid order but should still fail cleanly (ErrNotConnected) when the
// transport is gone.
type ProtocolClient interface {
	// Dial opens the transport (TLS when ep.TLS is set), replacing any
	// existing connection, and returns the server greeting.
	Dial(ep *Endpoint, cfg *Config) (*Response, error)

	// Close tears down the transport. Idempotent.
	Close() error

	// Connected reports whether the transport is currently open.
	Connected() bool

	// Login sends a plaintext LOGIN command. No prior authentication.
	Login(username, password string) (*Response, error)

	// Authenticate runs the named SASL mechanism (LOGIN, CRAM-MD5,
	// XOAUTH2). No prior authentication.
	Authenticate(mechanism, username, secret string) (*Response, error)

	// Capability issues an explicit CAPABILITY query. No prior
	// authentication required.
	Capability() (*Response, error)

	// Raw sends an arbitrary command line, used for pre-auth server-quirk
	// workarounds. No prior authentication.
	Raw(command string) (*Response, error)

	// Select opens a mailbox read-write. Requires authentication.
	Select(mailbox string) (*Response, error)

	// Examine opens a mailbox read-only. Requires authentication.
	Examine(mailbox string) (*Response, error)

	// CloseMailbox closes the open mailbox, expunging deleted messages
	// when it was opened read-write. Requires authentication.
	CloseMailbox() (*Response, error)
}
