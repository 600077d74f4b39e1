package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Error kinds for provider calls. Callers must be able to tell a rejected
// credential apart from an unreachable provider.
var (
	ErrInvalidToken        = errors.New("identity provider rejected the token")
	ErrDuplicateIdentity   = errors.New("email already registered at the identity provider")
	ErrIdentityNotFound    = errors.New("identity not found at the provider")
	ErrUpstreamUnavailable = errors.New("identity provider unavailable")
)

// Provider is the outbound surface of the external identity provider.
// Each call is a single idempotent remote operation.
type Provider interface {
	VerifyToken(ctx context.Context, idToken string) (*VerifiedIdentity, error)
	SetClaims(ctx context.Context, uid string, claims Claims) error
	RevokeTokens(ctx context.Context, uid string) error
	CreateIdentity(ctx context.Context, email string) (string, error)
	DeleteIdentity(ctx context.Context, uid string) error
	SendPasswordReset(ctx context.Context, email string) error
}

// VerifiedIdentity is the provider's answer to a successful token check.
type VerifiedIdentity struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
}

// Claims are the provider-side attributes mirrored from the local record.
type Claims struct {
	Role string `json:"role"`
	Org  string `json:"org"`
}

type Client struct {
	apiKey      string
	baseURL     string
	client      *http.Client
	callTimeout time.Duration
}

func NewClient() *Client {
	apiKey := os.Getenv("IDP_API_KEY")
	baseURL := os.Getenv("IDP_URL")
	if baseURL == "" {
		baseURL = "http://localhost:9099/v1"
	}

	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		callTimeout: 5 * time.Second,
	}
}

// VerifyToken checks the provider-issued token's signature and expiry.
// Read-only, so a timeout is retried once with a short backoff; a
// rejection is never retried.
func (c *Client) VerifyToken(ctx context.Context, idToken string) (*VerifiedIdentity, error) {
	var identity VerifiedIdentity
	err := c.do(ctx, http.MethodPost, "/tokens:verify", map[string]string{"token": idToken}, &identity)
	if errors.Is(err, ErrUpstreamUnavailable) {
		time.Sleep(200 * time.Millisecond)
		err = c.do(ctx, http.MethodPost, "/tokens:verify", map[string]string{"token": idToken}, &identity)
	}
	if err != nil {
		return nil, err
	}
	if identity.UID == "" {
		return nil, ErrInvalidToken
	}
	return &identity, nil
}

// SetClaims replaces the identity's provider-side role/org attributes.
// Mutating, never retried: an ambiguous outcome must surface to the caller.
func (c *Client) SetClaims(ctx context.Context, uid string, claims Claims) error {
	return c.do(ctx, http.MethodPost, "/users/"+uid+"/claims", claims, nil)
}

// RevokeTokens invalidates every provider-side token for the identity.
func (c *Client) RevokeTokens(ctx context.Context, uid string) error {
	return c.do(ctx, http.MethodPost, "/users/"+uid+"/tokens:revoke", nil, nil)
}

// CreateIdentity provisions a new identity; the provider assigns the uid.
func (c *Client) CreateIdentity(ctx context.Context, email string) (string, error) {
	var out struct {
		UID string `json:"uid"`
	}
	if err := c.do(ctx, http.MethodPost, "/users", map[string]string{"email": email}, &out); err != nil {
		return "", err
	}
	if out.UID == "" {
		return "", fmt.Errorf("provider returned empty uid for %s", email)
	}
	return out.UID, nil
}

// DeleteIdentity removes the identity at the provider. Irreversible.
func (c *Client) DeleteIdentity(ctx context.Context, uid string) error {
	return c.do(ctx, http.MethodDelete, "/users/"+uid, nil, nil)
}

// SendPasswordReset triggers the provider's credential-recovery flow so
// passwords never transit this service.
func (c *Client) SendPasswordReset(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/passwords:reset", map[string]string{"email": email}, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return ErrUpstreamUnavailable
		}
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest:
		return ErrInvalidToken
	case resp.StatusCode == http.StatusConflict:
		return ErrDuplicateIdentity
	case resp.StatusCode == http.StatusNotFound:
		return ErrIdentityNotFound
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrUpstreamUnavailable, resp.StatusCode)
	default:
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("provider status %d: %s", resp.StatusCode, string(raw))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
