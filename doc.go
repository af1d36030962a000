// Package imapsession provides a resilient, stateful session layer on top
// of a raw IMAP protocol client.
//
// It focuses on the policy a long-lived IMAP consumer actually needs:
//
//   - Connecting over TLS (or plain TCP for imap:// endpoints)
//   - Automatic authentication negotiation (CRAM-MD5, LOGIN, PLAIN, and
//     XOAUTH2 when an OAuth 2.0 access token is configured)
//   - Capability caching, refreshed from inline response codes when possible
//   - Detection of known server quirks (Gmail, Yahoo) with pre-auth workarounds
//   - Durable mailbox selection that survives reconnects
//   - Safely, a retry wrapper that re-establishes the whole session before
//     retrying a unit of work after a transient network failure
//
// The wire-level protocol engine is consumed through the narrow
// ProtocolClient interface; a pragmatic TLS implementation (Dialer) is
// included. See the examples directory for end-to-end usage.
package imapsession
