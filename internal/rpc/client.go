package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"sitekeeper/pkg/interfaces"
	"sitekeeper/pkg/types"
)

// restEndpoint is the fixed web service path every call is posted to
const restEndpoint = "/webservice/rest/server.php?moodlewsrestformat=json"

// Error codes the server uses to signal an invalid token or revoked access.
// FUNCTIONAL DISCOVERY: These are the only exception codes that justify
// invalidating the whole session; every other exception is a per-call failure
var authErrorCodes = map[string]bool{
	"invalidtoken":    true,
	"accessexception": true,
}

// Client executes single remote procedure calls against a site.
// ARCHITECTURAL DISCOVERY: Stateless by design - credentials arrive with
// every call, so one client instance serves any number of site sessions
type Client struct {
	httpClient  *http.Client
	checker     interfaces.ConnectivityChecker
	invalidator interfaces.AuthInvalidator
}

// NewClient creates an RPC client. The connectivity checker may be nil;
// absence of the check is treated as "assume online".
func NewClient(timeout time.Duration, checker interfaces.ConnectivityChecker) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		checker:    checker,
	}
}

// SetInvalidator wires the session-invalidation callback.
// ARCHITECTURAL DISCOVERY: Explicit callback instead of callers inspecting
// errors - the session manager registers itself after construction, breaking
// the client/manager dependency cycle
func (c *Client) SetInvalidator(invalidator interfaces.AuthInvalidator) {
	c.invalidator = invalidator
}

// Call runs one web service function and returns the decoded payload
func (c *Client) Call(ctx context.Context, method string, args map[string]interface{}, opts types.CallOptions) (interface{}, error) {
	// Fail fast before any network activity
	if opts.SiteURL == "" || opts.Token == "" {
		return nil, fmt.Errorf("%w: method %s", types.ErrMissingConfig, method)
	}

	// FUNCTIONAL DISCOVERY: Connectivity check is advisory; a nil checker or
	// a checker that cannot decide must not block the request
	if c.checker != nil && !c.checker.Online() {
		return nil, fmt.Errorf("%w: method %s", types.ErrOffline, method)
	}

	form := EncodeArguments(args)
	form.Set("wsfunction", method)
	form.Set("wstoken", opts.Token)

	requestURL := strings.TrimRight(opts.SiteURL, "/") + restEndpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d from %s", types.ErrTransport, resp.StatusCode, method)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrTransport, err)
	}

	return c.classify(method, opts, body)
}

// classify inspects the decoded payload and maps server-side failures onto
// the shared error taxonomy
func (c *Client) classify(method string, opts types.CallOptions, body []byte) (interface{}, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" || trimmed == "null" {
		// FUNCTIONAL DISCOVERY: Empty body is legal only when the caller
		// declared no response expected (write-only functions)
		if opts.ResponseExpected {
			return nil, fmt.Errorf("%w: method %s", types.ErrEmptyResponse, method)
		}
		return map[string]interface{}{}, nil
	}

	var payload interface{}
	if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
		return nil, fmt.Errorf("%w: undecodable response for %s", types.ErrUnexpected, method)
	}

	if obj, ok := payload.(map[string]interface{}); ok {
		if _, hasException := obj["exception"]; hasException {
			errorCode, _ := obj["errorcode"].(string)
			message, _ := obj["message"].(string)
			if authErrorCodes[errorCode] {
				log.Printf("RPC auth failure: method=%s errorcode=%s", method, errorCode)
				if c.invalidator != nil {
					c.invalidator.InvalidateSession(opts.SiteURL)
				}
				return nil, fmt.Errorf("%w: %s", types.ErrAuthToken, errorCode)
			}
			return nil, fmt.Errorf("%w: %s (%s)", types.ErrServer, message, errorCode)
		}
		// Debug diagnostics in the payload mean the call did not execute
		// cleanly even without an exception wrapper
		if debugInfo, hasDebug := obj["debuginfo"]; hasDebug {
			return nil, fmt.Errorf("%w: %v", types.ErrServer, debugInfo)
		}
	}

	// TECHNICAL DISCOVERY: Defensive copy so callers can never mutate a
	// payload shared with retry or caching layers
	return deepCopy(payload), nil
}

// deepCopy returns an independent copy of a decoded JSON value
func deepCopy(v interface{}) interface{} {
	switch value := v.(type) {
	case map[string]interface{}:
		copied := make(map[string]interface{}, len(value))
		for k, item := range value {
			copied[k] = deepCopy(item)
		}
		return copied
	case []interface{}:
		copied := make([]interface{}, len(value))
		for i, item := range value {
			copied[i] = deepCopy(item)
		}
		return copied
	default:
		// Scalars are immutable in Go's JSON decoding
		return value
	}
}

// PostForm is a helper for the fixed auxiliary endpoints (token exchange,
// capability check) that share the client's transport but not the web
// service envelope.
func (c *Client) PostForm(ctx context.Context, endpoint string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d from %s", types.ErrTransport, resp.StatusCode, endpoint)
	}

	return io.ReadAll(resp.Body)
}

// Head issues a reachability probe against an endpoint with its own timeout.
func (c *Client) Head(ctx context.Context, endpoint string, timeout time.Duration) error {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrTransport, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrTransport, err)
	}
	_ = resp.Body.Close()

	// FUNCTIONAL DISCOVERY: Any HTTP answer proves the host is alive; even a
	// 405 on HEAD means the endpoint exists and will take a POST later
	return nil
}
