package imapsession

import (
	"bufio"
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"strings"
	"testing"
	"time"
)

// mockIMAPServer is a scripted TLS IMAP server for wire-client tests.
type mockIMAPServer struct {
	listener net.Listener
	addr     string

	validUser string
	validPass string
	greeting  string

	byeOnSelect bool
}

func generateSelfSignedCert(t *testing.T) tls.Certificate {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{Organization: []string{"Mock IMAP"}},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	cert, err := tls.X509KeyPair(
		pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}),
	)
	if err != nil {
		t.Fatalf("build key pair: %v", err)
	}
	return cert
}

func newMockIMAPServer(t *testing.T) *mockIMAPServer {
	t.Helper()

	tlsConfig := &tls.Config{Certificates: []tls.Certificate{generateSelfSignedCert(t)}}
	listener, err := tls.Listen("tcp", "127.0.0.1:0", tlsConfig)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	s := &mockIMAPServer{
		listener:  listener,
		addr:      listener.Addr().String(),
		validUser: "tuser",
		validPass: "tpass",
		greeting:  "* OK [CAPABILITY IMAP4rev1 AUTH=PLAIN] Mock IMAP ready",
	}
	go s.serve()
	t.Cleanup(func() { listener.Close() })
	return s
}

func (s *mockIMAPServer) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handleConnection(conn)
	}
}

func (s *mockIMAPServer) handleConnection(conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReader(conn)
	send := func(format string, args ...any) {
		fmt.Fprintf(conn, format+"\r\n", args...)
	}

	send("%s", s.greeting)

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		parts := strings.Fields(strings.TrimSpace(line))
		if len(parts) < 2 {
			continue
		}
		tag := parts[0]
		command := strings.ToUpper(parts[1])

		switch command {
		case "LOGIN":
			if len(parts) >= 4 &&
				strings.Trim(parts[2], `"`) == s.validUser &&
				strings.Trim(parts[3], `"`) == s.validPass {
				send("%s OK LOGIN completed", tag)
			} else {
				send("%s NO [AUTHENTICATIONFAILED] Authentication failed", tag)
			}
		case "AUTHENTICATE":
			if len(parts) < 3 || strings.ToUpper(parts[2]) != "CRAM-MD5" {
				send("%s NO unsupported mechanism", tag)
				continue
			}
			challenge := "<12345.67890@mock.example>"
			send("+ %s", base64.StdEncoding.EncodeToString([]byte(challenge)))
			replyLine, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(replyLine))
			if err != nil {
				send("%s BAD invalid base64", tag)
				continue
			}
			mac := hmac.New(md5.New, []byte(s.validPass))
			mac.Write([]byte(challenge))
			want := s.validUser + " " + hex.EncodeToString(mac.Sum(nil))
			if string(raw) == want {
				send("%s OK AUTHENTICATE completed", tag)
			} else {
				send("%s NO [AUTHENTICATIONFAILED] Authentication failed", tag)
			}
		case "CAPABILITY":
			send("* CAPABILITY IMAP4rev1 AUTH=PLAIN AUTH=CRAM-MD5")
			send("%s OK CAPABILITY completed", tag)
		case "SELECT", "EXAMINE":
			if s.byeOnSelect {
				send("* BYE server shutting down")
				return
			}
			send("* 23 EXISTS")
			send("* 0 RECENT")
			send("* OK [UIDVALIDITY 1] UIDs valid")
			if command == "EXAMINE" {
				send("%s OK [READ-ONLY] EXAMINE completed", tag)
			} else {
				send("%s OK [READ-WRITE] SELECT completed", tag)
			}
		case "CLOSE", "NOOP", "ID":
			send("%s OK %s completed", tag, command)
		case "LOGOUT":
			send("* BYE logging out")
			send("%s OK LOGOUT completed", tag)
			return
		default:
			send("%s BAD unknown command", tag)
		}
	}
}

func (s *mockIMAPServer) uri(mailbox string) string {
	u := fmt.Sprintf("imaps://%s:%s@%s", s.validUser, s.validPass, s.addr)
	if mailbox != "" {
		u += "/" + mailbox
	}
	return u
}

func TestWireStartSelectsMailbox(t *testing.T) {
	srv := newMockIMAPServer(t)
	s, err := New(srv.uri("INBOX"), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Disconnect()

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s.State() != StateMailboxOpen {
		t.Errorf("State = %v, want %v", s.State(), StateMailboxOpen)
	}
	if got := s.Mailbox(); got != "INBOX" {
		t.Errorf("Mailbox = %q, want INBOX", got)
	}
	if !s.Capabilities().SupportsAuth("PLAIN") {
		t.Errorf("caps = %v, want AUTH=PLAIN", s.Capabilities())
	}
}

func TestWireLoginFailure(t *testing.T) {
	srv := newMockIMAPServer(t)
	uri := fmt.Sprintf("imaps://%s:wrong@%s", srv.validUser, srv.addr)
	s, err := New(uri, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Disconnect()

	err = s.Start()
	var exhausted *NoSupportedAuthError
	if !errors.As(err, &exhausted) {
		t.Fatalf("Start = %v, want NoSupportedAuthError", err)
	}
	if len(exhausted.Attempted) != 1 || exhausted.Attempted[0] != MechPlain {
		t.Errorf("Attempted = %v, want [PLAIN]", exhausted.Attempted)
	}
}

func TestWireCRAMMD5(t *testing.T) {
	srv := newMockIMAPServer(t)
	srv.greeting = "* OK [CAPABILITY IMAP4rev1 AUTH=CRAM-MD5] Mock IMAP ready"

	s, err := New(srv.uri(""), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Disconnect()

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !s.Authenticated() {
		t.Error("session not authenticated after CRAM-MD5")
	}
}

func TestWireByeIsTransient(t *testing.T) {
	srv := newMockIMAPServer(t)
	srv.byeOnSelect = true

	s, err := New(srv.uri("INBOX"), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Disconnect()

	err = s.Start()
	var bye *ByeError
	if !errors.As(err, &bye) {
		t.Fatalf("Start = %v, want ByeError", err)
	}
	if classifyFailure(err) != failureTransient {
		t.Errorf("classifyFailure(%v) = %v, want transient", err, classifyFailure(err))
	}
}

func TestWireTLSVerifyFailure(t *testing.T) {
	srv := newMockIMAPServer(t)

	cfg := DefaultConfig()
	cfg.TLSVerify = true
	s, err := New(srv.uri(""), &cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	err = s.Connect()
	if err == nil {
		t.Fatal("Connect succeeded against a self-signed certificate with verification on")
	}
	if classifyFailure(err) != failureTrust {
		t.Errorf("classifyFailure(%v) = %v, want trust failure", err, classifyFailure(err))
	}
}

func TestWireRawCommand(t *testing.T) {
	srv := newMockIMAPServer(t)

	d := NewDialer()
	ep, err := ParseEndpoint(srv.uri(""))
	if err != nil {
		t.Fatalf("ParseEndpoint: %v", err)
	}
	cfg := DefaultConfig()
	greeting, err := d.Dial(ep, &cfg)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer d.Close()

	if greeting.Code != "CAPABILITY" {
		t.Errorf("greeting code = %q, want CAPABILITY", greeting.Code)
	}
	resp, err := d.Raw(`ID ("GUID" "1")`)
	if err != nil {
		t.Fatalf("Raw: %v", err)
	}
	if resp.Status != StatusOK {
		t.Errorf("Raw status = %q, want OK", resp.Status)
	}
}
