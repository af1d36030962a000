package imapsession

import (
	"crypto/hmac"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/emersion/go-sasl"
)

// saslClient builds the client side of the named SASL mechanism. XOAUTH2
// is handled separately because its initial response is sent inline.
func saslClient(mechanism, username, secret string) (sasl.Client, error) {
	switch strings.ToUpper(mechanism) {
	case MechPlain:
		return sasl.NewPlainClient("", username, secret), nil
	case MechLogin:
		return sasl.NewLoginClient(username, secret), nil
	case MechCRAMMD5:
		return &cramMD5Client{username: username, secret: secret}, nil
	}
	return nil, fmt.Errorf("imap authenticate: unsupported mechanism %q", mechanism)
}

// cramMD5Client implements the CRAM-MD5 challenge-response (RFC 2195).
type cramMD5Client struct {
	username string
	secret   string
}

func (c *cramMD5Client) Start() (string, []byte, error) {
	// CRAM-MD5 has no initial response; the server challenges first.
	return MechCRAMMD5, nil, nil
}

func (c *cramMD5Client) Next(challenge []byte) ([]byte, error) {
	mac := hmac.New(md5.New, []byte(c.secret))
	mac.Write(challenge)
	digest := hex.EncodeToString(mac.Sum(nil))
	return []byte(c.username + " " + digest), nil
}
