package imapsession

import (
	"fmt"
	"strings"
)

// Response statuses as the server writes them.
const (
	StatusOK      = "OK"
	StatusNo      = "NO"
	StatusBad     = "BAD"
	StatusBye     = "BYE"
	StatusPreauth = "PREAUTH"
)

// Response is one parsed server reply line. For a tagged completion reply,
// Untagged carries the untagged lines the server sent before it.
type Response struct {
	// Tag is "*" for untagged responses, "+" for continuation requests,
	// otherwise the command tag being completed.
	Tag string

	// Status is OK/NO/BAD/BYE/PREAUTH for status responses. For untagged
	// data responses it is the data keyword (e.g. "CAPABILITY", "FLAGS").
	Status string

	// Code and CodeArgs hold the optional bracketed response code, e.g.
	// Code "CAPABILITY" with CodeArgs ["IMAP4rev1", "AUTH=PLAIN"].
	Code     string
	CodeArgs []string

	// Text is the free-text remainder of the line.
	Text string

	Untagged []*Response
}

// Tagged reports whether this is a tagged command completion.
func (r *Response) Tagged() bool {
	return r.Tag != "*" && r.Tag != "+"
}

// HasCode reports whether the response carries the named response code.
func (r *Response) HasCode(name string) bool {
	return r.Code == name
}

func (r *Response) String() string {
	parts := []string{r.Tag, r.Status}
	if r.Code != "" {
		code := r.Code
		if len(r.CodeArgs) != 0 {
			code += " " + strings.Join(r.CodeArgs, " ")
		}
		parts = append(parts, "["+code+"]")
	}
	if r.Text != "" {
		parts = append(parts, r.Text)
	}
	return strings.Join(parts, " ")
}

// statusWords are the reply statuses a server may send on any line.
var statusWords = map[string]bool{
	StatusOK:      true,
	StatusNo:      true,
	StatusBad:     true,
	StatusBye:     true,
	StatusPreauth: true,
}

// parseResponse parses a single reply line (without the trailing CRLF).
func parseResponse(line string) (*Response, error) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return nil, fmt.Errorf("imap: empty response line")
	}

	if strings.HasPrefix(line, "+") {
		return &Response{Tag: "+", Text: strings.TrimSpace(line[1:])}, nil
	}

	tag, rest, ok := strings.Cut(line, " ")
	if !ok {
		return nil, fmt.Errorf("imap: malformed response line %q", line)
	}
	r := &Response{Tag: tag}

	word, remainder, _ := strings.Cut(rest, " ")
	upper := strings.ToUpper(word)
	if !statusWords[upper] {
		if r.Tagged() {
			return nil, fmt.Errorf("imap: malformed tagged response %q", line)
		}
		// Untagged data response, e.g. "* CAPABILITY IMAP4rev1 AUTH=PLAIN".
		r.Status = upper
		r.Text = remainder
		return r, nil
	}
	r.Status = upper
	rest = remainder

	if strings.HasPrefix(rest, "[") {
		end := strings.IndexByte(rest, ']')
		if end == -1 {
			return nil, fmt.Errorf("imap: unterminated response code in %q", line)
		}
		fields := strings.Fields(rest[1:end])
		if len(fields) != 0 {
			r.Code = strings.ToUpper(fields[0])
			if len(fields) > 1 {
				r.CodeArgs = fields[1:]
			}
		}
		rest = strings.TrimSpace(rest[end+1:])
	}
	r.Text = rest

	return r, nil
}
