// Package session implements the credential lifecycle engine: expiry
// tracking with skew buffering, single-flight renewal with a suspended-caller
// queue, the request gate that attaches credentials and retries rejected
// calls once, and the sign-in/sign-out facade.
package session

import "errors"

// Sentinel errors for the renewal and retry decision tree.
// Use errors.Is(err, session.ErrRenewalRejected) to check.
var (
	// ErrNoRenewalCredential means a renewal was requested with no renewal
	// credential on hand. No remote call is attempted; the session is cleared.
	ErrNoRenewalCredential = errors.New("session: no renewal credential")

	// ErrRenewalRejected means the authentication endpoint refused the
	// renewal credential. The session is cleared.
	ErrRenewalRejected = errors.New("session: renewal rejected")

	// ErrRenewalUnreachable means the renewal call failed at the transport
	// level (network error or timeout). Treated the same as a rejection:
	// forcing re-authentication is safer than guessing the server's state.
	ErrRenewalUnreachable = errors.New("session: renewal endpoint unreachable")

	// ErrRetryExhausted means a call was rejected again after being replayed
	// with a freshly renewed credential. The session is cleared and no
	// further renewal is attempted for that call.
	ErrRetryExhausted = errors.New("session: request rejected after credential renewal")

	// ErrNotSignedIn means an operation that requires a session found none.
	ErrNotSignedIn = errors.New("session: not signed in")
)
