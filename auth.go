package imapsession

import "errors"

// Authentication mechanism names.
const (
	MechPlain   = "PLAIN"
	MechLogin   = "LOGIN"
	MechCRAMMD5 = "CRAM-MD5"
	MechXOAuth2 = "XOAUTH2"
)

// mechanismPrecedence lists mechanisms weakest first. Candidates are
// gathered in this order and attempted in reverse, so the strongest
// advertised mechanism is tried first.
var mechanismPrecedence = []string{MechPlain, MechLogin, MechCRAMMD5}

// plaintextMechs send credentials in the clear and are skipped when the
// server advertises LOGINDISABLED, which states it would refuse them.
var plaintextMechs = map[string]bool{MechPlain: true, MechLogin: true}

// negotiateAuth picks and runs an authentication mechanism against the
// advertised capability set.
//
// PLAIN goes through the LOGIN command; every other mechanism through
// AUTHENTICATE. A NO or BAD reply means "mechanism refused" and negotiation
// falls through to the next weaker candidate; any other error aborts
// immediately. When every candidate has been refused the result is a
// NoSupportedAuthError naming the mechanisms tried, in order.
//
// On success the server reply is returned so the caller can refresh its
// capability set from it.
func negotiateAuth(client ProtocolClient, caps CapabilitySet, ep *Endpoint, cfg *Config) (*Response, error) {
	candidates := make([]string, 0, len(mechanismPrecedence)+1)
	for _, mech := range mechanismPrecedence {
		if !caps.SupportsAuth(mech) {
			continue
		}
		if caps.Has("LOGINDISABLED") && plaintextMechs[mech] {
			continue
		}
		candidates = append(candidates, mech)
	}
	if cfg.UseXOAuth2 {
		// The endpoint password is an OAuth 2.0 access token; prefer
		// XOAUTH2 over everything else.
		candidates = append(candidates, MechXOAuth2)
	}

	attempted := make([]string, 0, len(candidates))
	for len(candidates) != 0 {
		mech := candidates[len(candidates)-1]
		candidates = candidates[:len(candidates)-1]
		attempted = append(attempted, mech)

		var resp *Response
		var err error
		if mech == MechPlain {
			resp, err = client.Login(ep.Username, ep.Password)
		} else {
			resp, err = client.Authenticate(mech, ep.Username, ep.Password)
		}
		if err == nil {
			return resp, nil
		}

		var respErr *ResponseError
		if errors.As(err, &respErr) {
			debugLog(ep.Host, "", "authentication mechanism refused",
				"mechanism", mech, "error", err)
			continue
		}
		return nil, err
	}

	return nil, &NoSupportedAuthError{Attempted: attempted}
}
