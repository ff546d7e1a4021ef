package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/webapp-security/sso-client-go/internal/session"
)

// DefaultTimeout matches the business API timeout: the renewal call gets
// no special extension, so a hung renewal resolves as a failure on the same
// schedule as any other call.
const DefaultTimeout = 10 * time.Second

// Endpoint paths on the SSO service.
const (
	signInPath  = "/oauth2/login"
	renewPath   = "/oauth2/refresh"
	signOutPath = "/oauth2/logout"
)

// Client talks to the SSO authentication endpoints. It deliberately uses an
// ungated HTTP client: auth traffic must never flow through the request
// gate, and its request contexts are additionally marked so a shared
// transport still bypasses the gate.
type Client struct {
	baseURL    string
	clientID   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates an authentication endpoint client. clientID is sent as
// X-Client-Id on every request, as the SSO service requires.
func NewClient(baseURL, clientID string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    baseURL,
		clientID:   clientID,
		httpClient: httpClient,
		logger:     logger,
	}
}

// flexSeconds decodes a lifetime-in-seconds field that the server may
// report as a JSON number, a quoted string, or not at all. A malformed
// value decodes as zero; the store substitutes its default lifetime.
type flexSeconds int64

func (s *flexSeconds) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*s = 0
		return nil
	}

	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		*s = 0
		return nil
	}

	*s = flexSeconds(v)

	return nil
}

// tokenResponse is the wire shape of sign-in and renewal responses. The
// renewal credential is optional on renewal: when absent, the previous one
// remains valid.
type tokenResponse struct {
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token"`
	ExpiresIn    flexSeconds     `json:"expires_in"`
	User         json.RawMessage `json:"user,omitempty"`
}

func (r *tokenResponse) grant() *session.Grant {
	return &session.Grant{
		Access:   r.AccessToken,
		Renewal:  r.RefreshToken,
		TTL:      time.Duration(r.ExpiresIn) * time.Second,
		UserInfo: r.User,
	}
}

// SignIn exchanges a principal and secret for an initial credential pair.
func (c *Client) SignIn(ctx context.Context, principal, secret string) (*session.Grant, error) {
	c.logger.Info("sign-in request", slog.String("principal", principal))

	var resp tokenResponse

	err := c.post(ctx, signInPath, map[string]string{
		"username": principal,
		"password": secret,
	}, &resp)
	if err != nil {
		return nil, err
	}

	if resp.AccessToken == "" {
		return nil, fmt.Errorf("authapi: sign-in response missing access credential")
	}

	return resp.grant(), nil
}

// Renew exchanges a renewal credential for a fresh access credential.
// Failures carry the session taxonomy: transport errors wrap
// session.ErrRenewalUnreachable, everything else wraps
// session.ErrRenewalRejected.
func (c *Client) Renew(ctx context.Context, renewalCredential string) (*session.Grant, error) {
	c.logger.Debug("renewal request")

	var resp tokenResponse

	err := c.post(ctx, renewPath, map[string]string{
		"refreshToken": renewalCredential,
	}, &resp)
	if err != nil {
		return nil, classifyRenewFailure(err)
	}

	if resp.AccessToken == "" {
		return nil, fmt.Errorf("%w: renewal response missing access credential",
			session.ErrRenewalRejected)
	}

	return resp.grant(), nil
}

// classifyRenewFailure maps a raw call failure onto the session taxonomy:
// an answer from the server is a rejection, no answer is unreachability.
// Both are terminal for the session; the distinction exists for reporting.
func classifyRenewFailure(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %w", session.ErrRenewalRejected, err)
	}

	return fmt.Errorf("%w: %w", session.ErrRenewalUnreachable, err)
}

// SignOut revokes the access credential server-side. Callers treat failure
// as non-fatal; local sign-out proceeds regardless.
func (c *Client) SignOut(ctx context.Context, accessCredential string) error {
	c.logger.Debug("sign-out request")

	return c.post(ctx, signOutPath, map[string]string{
		"accessToken": accessCredential,
	}, nil)
}

// post issues a JSON POST to the given endpoint path and decodes the
// response into out (when non-nil). Non-2xx responses become APIErrors with
// a classified sentinel; transport failures wrap ErrUnreachable.
func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("authapi: encoding request: %w", err)
	}

	// Mark the context so a gated transport never loops back into renewal.
	ctx = session.WithAuthEndpoint(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("authapi: creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	if c.clientID != "" {
		req.Header.Set("X-Client-Id", c.clientID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", ErrUnreachable, ctx.Err())
		}

		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response: %w", ErrUnreachable, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		c.logger.Warn("auth endpoint error",
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
		)

		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(data),
			Err:        classifyStatus(resp.StatusCode),
		}
	}

	if out == nil {
		return nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("authapi: decoding response: %w", err)
	}

	return nil
}

// errorMessage extracts the server's message field from an error body,
// falling back to the raw body.
func errorMessage(data []byte) string {
	var parsed struct {
		Message string `json:"message"`
	}

	if err := json.Unmarshal(data, &parsed); err == nil && parsed.Message != "" {
		return parsed.Message
	}

	return string(data)
}
