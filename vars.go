package imapsession

import (
	"strings"
	"time"
)

// String replacers for escaping/unescaping quotes in quoted strings
var (
	AddSlashes    = strings.NewReplacer(`"`, `\"`)
	RemoveSlashes = strings.NewReplacer(`\"`, `"`)
)

// Verbose outputs every command and its response with the IMAP server
var Verbose = false

// SkipResponses skips printing server responses in verbose mode
var SkipResponses = false

// RetryCount is the number of times pre-authentication wire commands
// (CAPABILITY, raw workaround commands) get retried at the transport
// level. Recovery for everything else belongs to (*Session).Safely.
var RetryCount = 3

// DialTimeout defines how long to wait when establishing a new connection.
// Zero means no timeout.
var DialTimeout time.Duration

// CommandTimeout defines how long to wait for a command to complete.
// Zero means no timeout.
var CommandTimeout time.Duration

// BackoffUnit is the base delay for Safely's linear backoff: attempt n
// sleeps n * BackoffUnit before reconnecting.
var BackoffUnit = time.Second
