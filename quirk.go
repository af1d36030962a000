package imapsession

import "regexp"

// Known server quirk flags.
const (
	// QuirkGmail marks Google's IMAP frontend, which folds Gmail labels
	// into the mailbox namespace and rejects some standard sequences.
	QuirkGmail = "gmail"

	// QuirkYahoo marks Yahoo! Mail, which refuses LOGIN until it has seen
	// a proprietary ID command.
	QuirkYahoo = "yahoo"
)

// yahooLoginWorkaround must be sent before authenticating against Yahoo
// servers or the LOGIN command is rejected outright.
const yahooLoginWorkaround = `ID ("GUID" "1")`

var (
	yahooHostPattern     = regexp.MustCompile(`(?i)^imap(-ssl)?\.mail\.yahoo\.com$`)
	gimapGreetingPattern = regexp.MustCompile(`\bGimap ready\b`)
)

// Quirks is the set of known non-conformances detected for one connection.
// It is computed from the greeting once per connect and never mutated.
type Quirks map[string]bool

// Has reports whether the named quirk was detected.
func (q Quirks) Has(name string) bool { return q[name] }

// DetectQuirks inspects the server greeting text and the endpoint hostname
// for known non-conforming implementations.
func DetectQuirks(greeting, host string) Quirks {
	q := make(Quirks)
	if gimapGreetingPattern.MatchString(greeting) {
		q[QuirkGmail] = true
	}
	if yahooHostPattern.MatchString(host) {
		q[QuirkYahoo] = true
	}
	return q
}
