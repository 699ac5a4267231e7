package core

import (
	"errors"
	"fmt"
)

// ErrNoAccount is returned when a cycle is requested with no mail account
// configured. Callers surface it as a configuration problem, not a crash.
var ErrNoAccount = errors.New("no mail account configured")

// ErrAuthentication is returned when the retrieval or submission server
// rejects the configured credentials. Fatal to the current cycle.
var ErrAuthentication = errors.New("authentication rejected")

// ErrSyncInProgress is returned when a pull cycle is requested while another
// one is still running. Cycles never overlap.
var ErrSyncInProgress = errors.New("a sync cycle is already running")

// ErrNoDraft is returned when a send is requested for a message that has no
// draft reply and no replacement body was supplied.
var ErrNoDraft = errors.New("message has no draft reply")

// ConnectionError wraps socket or TLS failures against a remote mail server.
// Fatal to the current cycle; the next tick is unaffected.
type ConnectionError struct {
	Host string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to %s failed: %v", e.Host, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ParseError reports an unrecognized wire framing for a single message.
// It is scoped to that message; the cycle continues with the next one.
type ParseError struct {
	MessageID string
	Reason    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("could not parse message %s: %s", e.MessageID, e.Reason)
}
