package types

import (
	"fmt"
)

// TransportError wraps a websocket-level failure. It feeds the
// reconnect state machine and is never fatal to the process.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport: %s: %s", e.Op, e.Err.Error())
	}
	return fmt.Sprintf("transport: %s", e.Op)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// AuthError signals a rejected credential (401/403). It is propagated
// to the session collaborator and never retried here.
type AuthError struct {
	StatusCode int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth: credential rejected (status %d)", e.StatusCode)
}

// HistoryFetchError reports a failed history page load. Previously
// loaded pages stay intact; the caller decides whether to retry.
type HistoryFetchError struct {
	RoomID     string
	StatusCode int
	Err        error
}

func (e *HistoryFetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("history fetch for room %q: %s", e.RoomID, e.Err.Error())
	}
	return fmt.Sprintf("history fetch for room %q: status %d", e.RoomID, e.StatusCode)
}

func (e *HistoryFetchError) Unwrap() error {
	return e.Err
}

// SendTimeoutError marks an optimistic send that saw no server echo
// within the reconciliation window. Resolved only by an explicit
// user-triggered resend.
type SendTimeoutError struct {
	LocalID string
	RoomID  string
}

func (e *SendTimeoutError) Error() string {
	return fmt.Sprintf("send timed out for message %q in room %q", e.LocalID, e.RoomID)
}
