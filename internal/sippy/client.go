// Package sippy implements an XML-RPC client for the Sippy softswitch
// management API: digest-authenticated transport plus consumers for
// dashboard data, payment operations, and live call control.
package sippy

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/icholy/digest"
	"golang.org/x/time/rate"

	"github.com/flowpbx/sippyctl/internal/xmlrpc"
)

// apiPath is the switch's XML-RPC endpoint, fixed across deployments.
const apiPath = "/xmlapi/xmlapi"

// defaultTimeout bounds one operation (both request phases together).
const defaultTimeout = 30 * time.Second

// maxResponseSize caps how much of a response body is read. CDR listings
// for busy accounts run to a few megabytes; anything beyond this is a
// misbehaving endpoint.
const maxResponseSize = 32 << 20

// Credentials identify one API user on one switch.
type Credentials struct {
	Username string
	Password string
	// Host is the switch address, with or without a scheme or port.
	// It is normalized to a single canonical HTTPS endpoint at client
	// construction and reused for the client's lifetime.
	Host string
}

// Client is the transport core: it owns the canonical endpoint and
// executes the two-phase digest-authenticated request protocol. Consumers
// embed it and layer their own response parsing on top.
//
// A Client has no mutable state after construction, so independent
// operations may run concurrently from any number of goroutines.
type Client struct {
	creds      Credentials
	endpoint   *url.URL
	httpClient *http.Client
	logger     *slog.Logger
	timeout    time.Duration
	limiter    *rate.Limiter
	metrics    *Metrics
}

// Option customizes a Client.
type Option func(*Client)

// WithTimeout overrides the per-operation deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithInsecureTLS disables certificate verification. Legacy switches run
// self-signed certificates; this is a deployment decision, off by default.
// The default transport's proxy and dial behavior is kept.
func WithInsecureTLS() Option {
	return func(c *Client) {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		c.httpClient.Transport = tr
	}
}

// WithRateLimit caps outbound operations at r per second with the given
// burst. The switch throttles aggressive API callers; a limiter keeps a
// batch job from tripping that.
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(r, burst)
	}
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l.With("subsystem", "sippy")
	}
}

// WithMetrics records per-operation counters and latencies.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient derives the canonical endpoint from the credentials and
// returns a ready client.
func NewClient(creds Credentials, opts ...Option) (*Client, error) {
	if creds.Username == "" || creds.Password == "" || creds.Host == "" {
		return nil, errors.New("sippy: username, password, and host are all required")
	}

	endpoint, err := canonicalEndpoint(creds.Host)
	if err != nil {
		return nil, err
	}

	c := &Client{
		creds:      creds,
		endpoint:   endpoint,
		httpClient: &http.Client{},
		logger:     slog.Default().With("subsystem", "sippy"),
		timeout:    defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// canonicalEndpoint normalizes a host into the one HTTPS endpoint URL used
// for the client's lifetime.
func canonicalEndpoint(host string) (*url.URL, error) {
	host = strings.TrimSpace(host)
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")
	host = strings.TrimSuffix(host, "/")
	if host == "" {
		return nil, errors.New("sippy: empty host")
	}

	u, err := url.Parse("https://" + host + apiPath)
	if err != nil {
		return nil, fmt.Errorf("sippy: invalid host %q: %w", host, err)
	}
	return u, nil
}

// Endpoint returns the canonical endpoint URL.
func (c *Client) Endpoint() string { return c.endpoint.String() }

// Call invokes a remote method and returns the generically parsed field
// map. Faults come back as *APIError, never as a result.
func (c *Client) Call(ctx context.Context, method string, params []xmlrpc.Member) (xmlrpc.Fields, error) {
	body, err := c.CallRaw(ctx, method, params)
	if err != nil {
		return nil, err
	}
	fields, err := xmlrpc.Parse(body)
	if err != nil {
		return nil, c.wireError(method, body, err)
	}
	return fields, nil
}

// CallRaw invokes a remote method and returns the raw XML response body.
// Used by consumers that apply their own parsing strategy and by the
// pass-through dashboard operations.
func (c *Client) CallRaw(ctx context.Context, method string, params []xmlrpc.Member) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("sippy: rate limiter: %w", err)
		}
	}

	payload, err := xmlrpc.BuildCall(method, params)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reqID := uuid.NewString()
	start := time.Now()

	body, err := c.exchange(ctx, method, payload)
	outcome := "ok"
	if err != nil {
		outcome = classify(err)
	}
	if c.metrics != nil {
		c.metrics.observe(method, outcome, time.Since(start))
	}
	if err != nil {
		c.logger.Warn("api call failed",
			"request_id", reqID,
			"method", method,
			"outcome", outcome,
			"error", err,
		)
		return nil, err
	}

	c.logger.Debug("api call complete",
		"request_id", reqID,
		"method", method,
		"duration_ms", time.Since(start).Milliseconds(),
		"response_bytes", len(body),
	)
	return body, nil
}

// exchange runs the two-phase protocol: an unauthenticated POST that must
// come back with a digest challenge, then the same body resent with the
// computed Authorization header. The phases are strictly ordered; there is
// no retry at this layer.
func (c *Client) exchange(ctx context.Context, method string, payload []byte) ([]byte, error) {
	resp, err := c.post(ctx, method, payload, "")
	if err != nil {
		return nil, err
	}
	// Phase one exists only to collect the challenge.
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()

	header := resp.Header.Get("WWW-Authenticate")
	if header == "" {
		return nil, &AuthError{
			Kind:   AuthNoChallenge,
			Reason: fmt.Sprintf("expected a digest challenge, got status %d with no WWW-Authenticate header", resp.StatusCode),
		}
	}

	chal, err := digest.ParseChallenge(header)
	if err != nil {
		return nil, &AuthError{Kind: AuthBadChallenge, Reason: "malformed challenge: " + err.Error()}
	}
	if chal.Realm == "" || chal.Nonce == "" || !chal.SupportsQOP("auth") {
		return nil, &AuthError{Kind: AuthBadChallenge, Reason: "challenge is missing realm, nonce, or qop=auth"}
	}

	auth, err := c.authorization(chal, newCnonce())
	if err != nil {
		return nil, &AuthError{Kind: AuthBadChallenge, Reason: "computing digest: " + err.Error()}
	}

	resp, err = c.post(ctx, method, payload, auth)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if isHTML(resp.Header.Get("Content-Type")) {
		return nil, &AuthError{
			Kind:   AuthHTMLResponse,
			Reason: "switch returned an HTML page instead of XML: wrong endpoint or authentication rejected",
		}
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, &AuthError{Kind: AuthRejected, Reason: "authenticated request rejected by the switch"}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Method: method, Code: resp.StatusCode, Message: "unexpected HTTP status"}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, c.transportError(method, fmt.Errorf("reading response: %w", err))
	}
	return body, nil
}

func (c *Client) post(ctx context.Context, method string, payload []byte, auth string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("sippy: creating request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.transportError(method, err)
	}
	return resp, nil
}

// authorization computes the Authorization header for one call. The client
// nonce is fresh per call and the nonce count fixed at 1: challenges are
// never reused across operations.
func (c *Client) authorization(chal *digest.Challenge, cnonce string) (string, error) {
	cred, err := digest.Digest(chal, digest.Options{
		Method:   http.MethodPost,
		URI:      c.endpoint.Path,
		Username: c.creds.Username,
		Password: c.creds.Password,
		Cnonce:   cnonce,
		Count:    1,
	})
	if err != nil {
		return "", err
	}
	return cred.String(), nil
}

// transportError maps network failures onto the error taxonomy: deadline
// overruns become TimeoutError, everything else stays a connectivity error
// distinct from auth and routing failures.
func (c *Client) transportError(method string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Method: method, After: c.timeout}
	}
	return fmt.Errorf("sippy: %s: %w", method, err)
}

// wireError maps codec failures: faults become APIError, malformed XML a
// ParseError with a payload snippet.
func (c *Client) wireError(method string, body []byte, err error) error {
	var fault *xmlrpc.Fault
	if errors.As(err, &fault) {
		return &APIError{Method: method, Code: fault.Code, Message: fault.Message}
	}
	return &ParseError{Method: method, Snippet: snippet(body), Err: err}
}

func isHTML(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "text/html" || mt == "application/xhtml+xml"
}

func newCnonce() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		// Fallback to a timestamp-derived nonce.
		return fmt.Sprintf("%x", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

func classify(err error) string {
	var authErr *AuthError
	var apiErr *APIError
	var parseErr *ParseError
	var timeoutErr *TimeoutError
	switch {
	case errors.As(err, &timeoutErr):
		return "timeout"
	case errors.As(err, &authErr):
		return "auth"
	case errors.As(err, &apiErr):
		return "fault"
	case errors.As(err, &parseErr):
		return "parse"
	default:
		return "network"
	}
}
