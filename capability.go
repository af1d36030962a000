package imapsession

import "strings"

// CapabilitySet is the set of capability tokens last advertised by the
// server, uppercased. It is replaced wholesale on every refresh, never
// merged.
type CapabilitySet map[string]bool

// Has reports whether the (case-insensitive) token was advertised.
func (c CapabilitySet) Has(token string) bool {
	return c[strings.ToUpper(token)]
}

// SupportsAuth reports whether AUTH=<mechanism> was advertised.
func (c CapabilitySet) SupportsAuth(mechanism string) bool {
	return c.Has("AUTH=" + mechanism)
}

func parseCapabilityTokens(tokens []string) CapabilitySet {
	caps := make(CapabilitySet, len(tokens))
	for _, t := range tokens {
		if t == "" {
			continue
		}
		caps[strings.ToUpper(t)] = true
	}
	return caps
}

// capabilitiesFrom extracts a capability list carried by resp, either as a
// bracketed CAPABILITY response code or as an untagged CAPABILITY data
// line. The second return is false when resp carries no capability data.
func capabilitiesFrom(resp *Response) (CapabilitySet, bool) {
	if resp == nil {
		return nil, false
	}
	if resp.HasCode("CAPABILITY") && len(resp.CodeArgs) != 0 {
		return parseCapabilityTokens(resp.CodeArgs), true
	}
	if resp.Tag == "*" && resp.Status == "CAPABILITY" {
		return parseCapabilityTokens(strings.Fields(resp.Text)), true
	}
	for _, u := range resp.Untagged {
		if caps, ok := capabilitiesFrom(u); ok {
			return caps, ok
		}
	}
	return nil, false
}
