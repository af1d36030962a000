package imapsession

import (
	"errors"
	"fmt"
	"strings"
)

// Usage errors. These indicate an operation invoked in the wrong lifecycle
// state and are never retried.
var (
	// ErrNotConnected is returned when an operation requires an open
	// connection and none exists.
	ErrNotConnected = errors.New("imap: not connected")

	// ErrNotAuthenticated is returned when an operation requires a prior
	// successful authentication.
	ErrNotAuthenticated = errors.New("imap: not authenticated")

	// ErrNoMailbox is returned by CloseMailbox when no mailbox is open.
	ErrNoMailbox = errors.New("imap: no mailbox open")
)

// ResponseError is a tagged NO or BAD reply to a command. The auth
// negotiator treats it as "this mechanism was refused" and moves on to the
// next candidate; everywhere else it surfaces unchanged.
type ResponseError struct {
	Command string // the command verb, e.g. "LOGIN", "SELECT"
	Status  string // "NO" or "BAD"
	Text    string // server-provided free text
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("imap: %s failed: %s %s", e.Command, e.Status, e.Text)
}

// ByeError is an unsolicited BYE from the server: the session has been
// terminated remotely. It is classified as transient by Safely.
type ByeError struct {
	Text string
}

func (e *ByeError) Error() string {
	return fmt.Sprintf("imap: server terminated session: %s", e.Text)
}

// NoSupportedAuthError reports that authentication negotiation exhausted
// every mutually supported and permitted mechanism without success.
type NoSupportedAuthError struct {
	// Attempted lists the mechanisms actually tried, in attempt order.
	Attempted []string
}

func (e *NoSupportedAuthError) Error() string {
	if len(e.Attempted) == 0 {
		return "imap: no supported authentication method (none attempted)"
	}
	return fmt.Sprintf("imap: no supported authentication method (attempted %s)",
		strings.Join(e.Attempted, ", "))
}

// RetryExhaustedError decorates the final transient failure once Safely's
// retry budget is spent. Unwrap exposes the original error unchanged.
type RetryExhaustedError struct {
	Attempts int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("imap: gave up after %d attempts: %s", e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Err }
