package imapsession

import (
	"bufio"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	retry "github.com/StirlingMarketingGroup/go-retry"
	"github.com/davecgh/go-spew/spew"
	"github.com/rs/xid"
	"github.com/sqs/go-xoauth2"
)

// atom matches a trailing literal marker, e.g. "{42}" at end of line.
var atom = regexp.MustCompile(`{\d+}$`)

// Dialer is the built-in wire-level protocol client. It owns one TCP or
// TLS connection, frames commands with unique tags, and parses replies
// into Response values. It implements ProtocolClient and carries no
// session policy of its own.
type Dialer struct {
	conn      net.Conn
	r         *bufio.Reader
	connected bool

	// kept from the last Dial for redials and log scrubbing
	ep       *Endpoint
	cfg      Config
	host     string
	password string
}

// NewDialer returns an unconnected wire client.
func NewDialer() *Dialer {
	return &Dialer{}
}

// Connected reports whether the transport is currently open.
func (d *Dialer) Connected() bool {
	return d.connected
}

// Close closes the transport. Idempotent.
func (d *Dialer) Close() error {
	if !d.connected {
		return nil
	}
	debugLog(d.host, "", "closing connection")
	d.connected = false
	if err := d.conn.Close(); err != nil {
		return fmt.Errorf("imap close: %w", err)
	}
	return nil
}

// Dial opens the transport described by ep, replacing any existing
// connection, and returns the parsed server greeting.
func (d *Dialer) Dial(ep *Endpoint, cfg *Config) (*Response, error) {
	_ = d.Close()

	dialer := &net.Dialer{Timeout: DialTimeout}
	var conn net.Conn
	var err error
	if ep.TLS {
		tlsConfig := &tls.Config{
			ServerName:         ep.Host,
			InsecureSkipVerify: !cfg.TLSVerify,
		}
		if cfg.TLSVerify && cfg.TLSCerts != "" {
			pem, err := os.ReadFile(cfg.TLSCerts)
			if err != nil {
				return nil, fmt.Errorf("imap dial: trust bundle: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(pem) {
				return nil, fmt.Errorf("imap dial: no certificates in trust bundle %s", cfg.TLSCerts)
			}
			tlsConfig.RootCAs = pool
		}
		conn, err = tls.DialWithDialer(dialer, "tcp", ep.Addr(), tlsConfig)
	} else {
		conn, err = dialer.Dial("tcp", ep.Addr())
	}
	if err != nil {
		return nil, err
	}

	d.conn = conn
	d.r = bufio.NewReader(conn)
	d.connected = true
	d.ep = ep
	d.cfg = *cfg
	d.host = ep.Host
	d.password = ep.Password

	greeting, err := d.readResponse()
	if err != nil {
		_ = d.Close()
		return nil, err
	}
	if greeting.Status == StatusBye {
		_ = d.Close()
		return nil, &ByeError{Text: greeting.Text}
	}
	debugLog(d.host, "", "connected", "greeting", greeting.Text)

	return greeting, nil
}

// redial re-establishes the transport using the last Dial's endpoint.
// It restores no session state; that is (*Session).Safely's job.
func (d *Dialer) redial() error {
	if d.ep == nil {
		return ErrNotConnected
	}
	_, err := d.Dial(d.ep, &d.cfg)
	return err
}

// Login sends a plaintext LOGIN command.
func (d *Dialer) Login(username, password string) (*Response, error) {
	// Don't retry authentication at the wire level.
	return d.exec(fmt.Sprintf(`LOGIN "%s" "%s"`,
		AddSlashes.Replace(username), AddSlashes.Replace(password)), 0, nil)
}

// Authenticate runs the named SASL mechanism over AUTHENTICATE
// continuations.
func (d *Dialer) Authenticate(mechanism, username, secret string) (*Response, error) {
	if strings.EqualFold(mechanism, MechXOAuth2) {
		b64 := xoauth2.XOAuth2String(username, secret)
		return d.exec("AUTHENTICATE XOAUTH2 "+b64, 0, func(string) (string, error) {
			// On failure the server pushes error details in one more
			// challenge; an empty reply lets it finish with a tagged NO.
			return "", nil
		})
	}

	client, err := saslClient(mechanism, username, secret)
	if err != nil {
		return nil, err
	}
	_, initial, err := client.Start()
	if err != nil {
		return nil, err
	}

	first := true
	return d.exec("AUTHENTICATE "+strings.ToUpper(mechanism), 0, func(challenge string) (string, error) {
		if first && initial != nil {
			first = false
			return base64.StdEncoding.EncodeToString(initial), nil
		}
		first = false
		raw, err := base64.StdEncoding.DecodeString(challenge)
		if err != nil {
			return "", fmt.Errorf("imap authenticate: decode challenge: %w", err)
		}
		reply, err := client.Next(raw)
		if err != nil {
			return "", err
		}
		return base64.StdEncoding.EncodeToString(reply), nil
	})
}

// Capability issues an explicit CAPABILITY query.
func (d *Dialer) Capability() (*Response, error) {
	return d.exec("CAPABILITY", RetryCount, nil)
}

// Raw sends an arbitrary command line. Used for pre-auth quirk
// workarounds, so it is safe to retry across a redial.
func (d *Dialer) Raw(command string) (*Response, error) {
	return d.exec(command, RetryCount, nil)
}

// Select opens a mailbox read-write.
func (d *Dialer) Select(mailbox string) (*Response, error) {
	return d.exec(`SELECT "`+AddSlashes.Replace(mailbox)+`"`, 0, nil)
}

// Examine opens a mailbox read-only.
func (d *Dialer) Examine(mailbox string) (*Response, error) {
	return d.exec(`EXAMINE "`+AddSlashes.Replace(mailbox)+`"`, 0, nil)
}

// CloseMailbox closes the selected mailbox.
func (d *Dialer) CloseMailbox() (*Response, error) {
	return d.exec("CLOSE", 0, nil)
}

// exec writes one tagged command and reads replies until the matching
// tagged completion. Untagged replies are collected onto the result; an
// unsolicited BYE aborts with a ByeError. onContinuation answers "+"
// challenges (already base64 where the exchange calls for it).
//
// retryCount > 0 re-dials the transport between attempts; only commands
// with no session state behind them (CAPABILITY, Raw) should use it —
// recovery for everything else belongs to (*Session).Safely.
func (d *Dialer) exec(command string, retryCount int, onContinuation func(challenge string) (string, error)) (*Response, error) {
	verb, _, _ := strings.Cut(command, " ")
	var result *Response

	// A tagged NO/BAD is a server answer, not a transport failure; it is
	// reported through protoErr so the retry hooks never close a perfectly
	// good connection over it.
	var protoErr error

	err := retry.Retry(func() (err error) {
		if !d.connected {
			return ErrNotConnected
		}

		tag := strings.ToUpper(xid.New().String())

		if CommandTimeout != 0 {
			_ = d.conn.SetDeadline(time.Now().Add(CommandTimeout))
			defer func() { _ = d.conn.SetDeadline(time.Time{}) }()
		}

		c := fmt.Sprintf("%s %s\r\n", tag, command)

		if Verbose {
			sanitized := strings.ReplaceAll(strings.TrimSpace(c), fmt.Sprintf(`"%s"`, d.password), `"****"`)
			debugLog(d.host, "", "sending command", "command", sanitized)
		}

		if _, err = d.conn.Write([]byte(c)); err != nil {
			return err
		}

		var untagged []*Response
		for {
			line, err := d.readLine()
			if err != nil {
				return err
			}

			if Verbose && !SkipResponses {
				debugLog(d.host, "", "server response", "response", strings.TrimRight(line, "\r\n"))
			}

			if strings.HasPrefix(line, "+") {
				if onContinuation == nil {
					return fmt.Errorf("imap: unexpected continuation request for %s", verb)
				}
				challenge := strings.TrimSpace(strings.TrimPrefix(line, "+"))
				reply, err := onContinuation(challenge)
				if err != nil {
					return err
				}
				if _, err := d.conn.Write([]byte(reply + "\r\n")); err != nil {
					return err
				}
				continue
			}

			rsp, err := parseResponse(line)
			if err != nil {
				if Verbose {
					debugLog(d.host, "", "unparseable server response", "dump", spew.Sdump(line))
				}
				return err
			}

			if rsp.Tag == "*" {
				if rsp.Status == StatusBye {
					_ = d.Close()
					return &ByeError{Text: rsp.Text}
				}
				untagged = append(untagged, rsp)
				continue
			}

			if rsp.Tag != tag {
				return fmt.Errorf("imap: reply tag %q does not match command tag %q", rsp.Tag, tag)
			}
			if rsp.Status != StatusOK {
				protoErr = &ResponseError{Command: verb, Status: rsp.Status, Text: rsp.Text}
				return nil
			}
			rsp.Untagged = untagged
			result = rsp
			return nil
		}
	}, retryCount, func(err error) error {
		if Verbose {
			warnLog(d.host, "", "command failed, closing connection", "error", err)
		}
		_ = d.Close()
		return nil
	}, func() error {
		return d.redial()
	})
	if err != nil {
		return nil, err
	}
	if protoErr != nil {
		return nil, protoErr
	}

	return result, nil
}

// readLine reads one reply line, folding any literal continuations
// ("{n}" followed by n raw bytes and the rest of the line) into it.
func (d *Dialer) readLine() (string, error) {
	line, err := d.r.ReadBytes('\n')
	if err != nil {
		return "", err
	}
	for {
		a := atom.Find(dropNl(line))
		if a == nil {
			break
		}
		n, err := strconv.Atoi(string(a[1 : len(a)-1]))
		if err != nil {
			return "", err
		}

		buf := make([]byte, n)
		if _, err = io.ReadFull(d.r, buf); err != nil {
			return "", err
		}
		line = append(line, buf...)

		buf, err = d.r.ReadBytes('\n')
		if err != nil {
			return "", err
		}
		line = append(line, buf...)
	}
	return string(dropNl(line)), nil
}

// readResponse reads and parses a single untagged line (the greeting).
func (d *Dialer) readResponse() (*Response, error) {
	line, err := d.readLine()
	if err != nil {
		return nil, err
	}
	return parseResponse(line)
}

// dropNl removes trailing newline characters from a byte slice
func dropNl(b []byte) []byte {
	if len(b) >= 1 && b[len(b)-1] == '\n' {
		if len(b) >= 2 && b[len(b)-2] == '\r' {
			return b[:len(b)-2]
		}
		return b[:len(b)-1]
	}
	return b
}
