package imapsession

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"syscall"
	"time"

	humanize "github.com/dustin/go-humanize"
)

// failureClass is the retry policy's view of an error.
type failureClass int

const (
	// failureFatal errors propagate immediately, uncaught.
	failureFatal failureClass = iota
	// failureTransient errors are retried after a full session rebuild.
	failureTransient
	// failureTrust errors are certificate verification failures; they are
	// never retried, regardless of remaining budget.
	failureTrust
)

// classifyFailure decides how Safely treats an error. It is a pure
// function over the failure kind: control flow stays in Safely.
func classifyFailure(err error) failureClass {
	if err == nil {
		return failureFatal
	}
	if isTrustFailure(err) {
		return failureTrust
	}
	if isTransient(err) {
		return failureTransient
	}
	return failureFatal
}

// isTrustFailure reports whether err is a certificate verification
// failure. Cryptographic trust failures must surface, not be retried away.
func isTrustFailure(err error) bool {
	var (
		certErr     *tls.CertificateVerificationError
		unknownAuth x509.UnknownAuthorityError
		invalidCert x509.CertificateInvalidError
		hostnameErr x509.HostnameError
		systemRoots x509.SystemRootsError
	)
	if errors.As(err, &certErr) || errors.As(err, &unknownAuth) ||
		errors.As(err, &invalidCert) || errors.As(err, &hostnameErr) ||
		errors.As(err, &systemRoots) {
		return true
	}
	// Some TLS stacks only surface the x509 failure as message text.
	return strings.Contains(err.Error(), "x509:")
}

// isTransient reports whether err is one of the enumerated conditions a
// reconnect is expected to fix: connection aborted/refused/reset, broken
// pipe, not-connected, an unsolicited BYE, TLS record/transport errors,
// socket-level failures and timeouts.
func isTransient(err error) bool {
	if errors.Is(err, ErrNotConnected) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed) {
		return true
	}

	var bye *ByeError
	if errors.As(err, &bye) {
		return true
	}

	for _, errno := range []syscall.Errno{
		syscall.ECONNABORTED,
		syscall.ECONNREFUSED,
		syscall.ECONNRESET,
		syscall.EPIPE,
		syscall.ETIMEDOUT,
	} {
		if errors.Is(err, errno) {
			return true
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var recordErr tls.RecordHeaderError
	if errors.As(err, &recordErr) {
		return true
	}
	var sysErr *os.SyscallError
	if errors.As(err, &sysErr) {
		return true
	}
	if os.IsTimeout(err) {
		return true
	}
	// TLS alert errors don't export a type; match the stdlib's prefix.
	return strings.HasPrefix(err.Error(), "tls:") || strings.Contains(err.Error(), ": tls:")
}

// Safely runs fn against a fully established session, rebuilding the
// session and retrying on transient failures.
//
// Each attempt calls Start (connect + authenticate + reopen the target
// mailbox) and then fn. A transient failure discards the connection
// handle, sleeps attempt × BackoffUnit, and retries from scratch, up to
// cfg.MaxRetries times; the final failure is decorated with retry context.
// Certificate verification failures and anything outside the enumerated
// transient set propagate immediately.
func (s *Session) Safely(fn func() error) error {
	attempt := 0
	for {
		err := s.Start()
		if err == nil {
			err = fn()
		}
		if err == nil {
			return nil
		}

		switch classifyFailure(err) {
		case failureTrust:
			errorLog(s.ep.Host, s.Mailbox(), "certificate verification failed, refusing to retry", "error", err)
			return fmt.Errorf("imap: refusing to retry after certificate verification failure: %w", err)
		case failureFatal:
			return err
		}

		attempt++
		if attempt > s.cfg.MaxRetries {
			errorLog(s.ep.Host, s.Mailbox(), "retries exhausted", "attempts", attempt, "error", err)
			return &RetryExhaustedError{Attempts: attempt, Err: err}
		}

		warnLog(s.ep.Host, s.Mailbox(), "transient failure, restarting session",
			"attempt", humanize.Ordinal(attempt), "error", err)
		s.drop()
		time.Sleep(time.Duration(attempt) * BackoffUnit)
	}
}
