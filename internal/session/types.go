package session

import (
	"context"
	"encoding/json"
	"time"
)

// Grant is a credential pair issued by the authentication endpoint. Both
// credentials are opaque strings to this package. TTL is the server-reported
// lifetime of the access credential; zero means the server did not report one.
type Grant struct {
	Access   string
	Renewal  string
	TTL      time.Duration
	UserInfo json.RawMessage
}

// Authenticator is the remote authentication endpoint, defined here at the
// consumer. The authapi package provides the real implementation.
//
// Renew implementations must classify failures: transport-level errors
// (network, timeout) wrap ErrRenewalUnreachable, everything else wraps
// ErrRenewalRejected. The coordinator propagates them unchanged.
type Authenticator interface {
	SignIn(ctx context.Context, principal, secret string) (*Grant, error)
	Renew(ctx context.Context, renewalCredential string) (*Grant, error)
	SignOut(ctx context.Context, accessCredential string) error
}

// Navigator performs the terminal recovery action when the session is
// unrecoverable. In a browser this would be a redirect to the sign-in page.
// Injected so the decision logic tests without the side effect.
type Navigator interface {
	ToSignIn()
}

// NavigatorFunc adapts a function to the Navigator interface.
type NavigatorFunc func()

func (f NavigatorFunc) ToSignIn() { f() }

// nopNavigator is the default when no Navigator is configured.
type nopNavigator struct{}

func (nopNavigator) ToSignIn() {}

// EventSink receives session lifecycle events (sign-in, renewal, sign-out)
// for audit history. Implementations must be best-effort: a failing sink
// never affects the session, so Record returns nothing.
type EventSink interface {
	Record(ctx context.Context, event, detail string)
}

// nopSink is the default when no EventSink is configured.
type nopSink struct{}

func (nopSink) Record(context.Context, string, string) {}

// Event names recorded through the EventSink.
const (
	EventSignIn      = "sign_in"
	EventSignOut     = "sign_out"
	EventRenewed     = "renewed"
	EventRenewFailed = "renew_failed"
)

// authEndpointKey marks requests that target the authentication endpoint
// itself. The gate bypasses them entirely to avoid recursive renewal.
type authEndpointKey struct{}

// WithAuthEndpoint marks ctx so requests carrying it bypass the request gate.
func WithAuthEndpoint(ctx context.Context) context.Context {
	return context.WithValue(ctx, authEndpointKey{}, true)
}

// IsAuthEndpoint reports whether ctx is marked as auth-endpoint traffic.
func IsAuthEndpoint(ctx context.Context) bool {
	marked, _ := ctx.Value(authEndpointKey{}).(bool)
	return marked
}
