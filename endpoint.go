package imapsession

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Endpoint describes where and how to connect, parsed once from a
// connection URI. It is immutable after construction; the currently open
// mailbox is session state, not endpoint state.
type Endpoint struct {
	Scheme   string
	Host     string
	Port     int
	TLS      bool
	Username string
	Password string

	// Mailbox is the percent-encoded mailbox path configured in the URI,
	// opened by (*Session).Start. Empty when the URI carries no path.
	Mailbox string
}

// ParseEndpoint parses an imap:// or imaps:// connection URI.
//
// Scheme, host, username and password are required. The port defaults to
// 993 for imaps and 143 for imap. Username and password are
// percent-decoded; an optional path names the mailbox Start should open.
func ParseEndpoint(uri string) (*Endpoint, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("imap endpoint: %w", err)
	}

	ep := &Endpoint{Scheme: strings.ToLower(u.Scheme), Host: u.Hostname()}
	switch ep.Scheme {
	case "imaps":
		ep.TLS = true
		ep.Port = 993
	case "imap":
		ep.Port = 143
	default:
		return nil, fmt.Errorf("imap endpoint: unsupported scheme %q (want imap or imaps)", u.Scheme)
	}

	if ep.Host == "" {
		return nil, fmt.Errorf("imap endpoint: host is required")
	}
	if u.User == nil || u.User.Username() == "" {
		return nil, fmt.Errorf("imap endpoint: username is required")
	}
	ep.Username = u.User.Username()
	password, ok := u.User.Password()
	if !ok || password == "" {
		return nil, fmt.Errorf("imap endpoint: password is required")
	}
	ep.Password = password

	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || port <= 0 || port > 65535 {
			return nil, fmt.Errorf("imap endpoint: invalid port %q", p)
		}
		ep.Port = port
	}

	ep.Mailbox = strings.Trim(u.EscapedPath(), "/")

	return ep, nil
}

// Addr returns the host:port dial address.
func (ep *Endpoint) Addr() string {
	return ep.Host + ":" + strconv.Itoa(ep.Port)
}

// Config tunes per-session behavior. The zero value is not useful on its
// own; use DefaultConfig and override fields as needed.
type Config struct {
	// MaxRetries bounds how many times Safely re-establishes the session
	// after a transient failure before surfacing the error.
	MaxRetries int

	// ReadOnly makes Start open mailboxes with EXAMINE instead of SELECT.
	ReadOnly bool

	// TLSVerify enables certificate verification against TLSCerts (or the
	// system roots when TLSCerts is empty).
	TLSVerify bool

	// TLSCerts is an optional path to a PEM trust bundle.
	TLSCerts string

	// UseXOAuth2 treats the endpoint password as an OAuth 2.0 access token
	// and makes XOAUTH2 the preferred authentication mechanism.
	UseXOAuth2 bool
}

// DefaultConfig returns the documented defaults: 3 retries, read-write
// mailbox access, no certificate verification.
func DefaultConfig() Config {
	return Config{MaxRetries: 3}
}
