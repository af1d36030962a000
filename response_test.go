package imapsession

import (
	"reflect"
	"testing"
)

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Response
	}{
		{
			name: "untagged ok with capability code",
			line: "* OK [CAPABILITY IMAP4rev1 AUTH=PLAIN AUTH=CRAM-MD5] Dovecot ready.",
			want: Response{Tag: "*", Status: StatusOK, Code: "CAPABILITY",
				CodeArgs: []string{"IMAP4rev1", "AUTH=PLAIN", "AUTH=CRAM-MD5"},
				Text:     "Dovecot ready."},
		},
		{
			name: "untagged data",
			line: "* CAPABILITY IMAP4rev1 IDLE",
			want: Response{Tag: "*", Status: "CAPABILITY", Text: "IMAP4rev1 IDLE"},
		},
		{
			name: "tagged ok with code",
			line: "A142 OK [READ-WRITE] SELECT completed",
			want: Response{Tag: "A142", Status: StatusOK, Code: "READ-WRITE",
				Text: "SELECT completed"},
		},
		{
			name: "tagged no",
			line: "A142 NO [AUTHENTICATIONFAILED] Authentication failed",
			want: Response{Tag: "A142", Status: StatusNo, Code: "AUTHENTICATIONFAILED",
				Text: "Authentication failed"},
		},
		{
			name: "tagged bad",
			line: "A142 BAD Unknown command",
			want: Response{Tag: "A142", Status: StatusBad, Text: "Unknown command"},
		},
		{
			name: "untagged bye",
			line: "* BYE Autologout; idle for too long",
			want: Response{Tag: "*", Status: StatusBye, Text: "Autologout; idle for too long"},
		},
		{
			name: "continuation",
			line: "+ VXNlcm5hbWU6",
			want: Response{Tag: "+", Text: "VXNlcm5hbWU6"},
		},
		{
			name: "greeting",
			line: "* OK Gimap ready for requests from 1.2.3.4",
			want: Response{Tag: "*", Status: StatusOK, Text: "Gimap ready for requests from 1.2.3.4"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseResponse(tt.line)
			if err != nil {
				t.Fatalf("parseResponse(%q): %v", tt.line, err)
			}
			if !reflect.DeepEqual(*got, tt.want) {
				t.Errorf("parseResponse(%q) = %+v, want %+v", tt.line, *got, tt.want)
			}
		})
	}
}

func TestParseResponseMalformed(t *testing.T) {
	for _, line := range []string{"", "A1", "* OK [UNTERMINATED code", "A1 NOTASTATUS text"} {
		if _, err := parseResponse(line); err == nil {
			t.Errorf("parseResponse(%q) succeeded, want error", line)
		}
	}
}

func TestResponseTagged(t *testing.T) {
	if (&Response{Tag: "*"}).Tagged() {
		t.Error("untagged response reported as tagged")
	}
	if (&Response{Tag: "+"}).Tagged() {
		t.Error("continuation reported as tagged")
	}
	if !(&Response{Tag: "A1"}).Tagged() {
		t.Error("tagged response reported as untagged")
	}
}
