// Package probe performs best-effort connectivity checks against candidate
// provider endpoints before they are committed to the registry.
package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// DefaultTimeout bounds a single probe round trip.
const DefaultTimeout = 10 * time.Second

// probeBodyLimit caps how much of an upstream response body is read.
const probeBodyLimit = 64 * 1024

// anthropicVersion is the API version header required by anthropic-style endpoints.
const anthropicVersion = "2023-06-01"

// Target describes the candidate endpoint and credential to verify.
type Target struct {
	APIBase  string // Upstream base URL.
	APIStyle string // openai or anthropic.
	Token    string // Credential sent with probe requests.
	ProxyURL string // Optional proxy for the probe transport.
}

// Prober verifies connectivity to a provider endpoint.
type Prober interface {
	Probe(ctx context.Context, target Target) error
}

// HTTPProber probes endpoints over HTTP with cascading checks: the models
// list endpoint first, then a minimal chat request, then a bare OPTIONS call.
type HTTPProber struct {
	timeout time.Duration
}

// NewHTTPProber constructs a prober with the given per-attempt timeout.
func NewHTTPProber(timeout time.Duration) *HTTPProber {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPProber{timeout: timeout}
}

// Probe runs the cascade and returns the last failure when every tier fails.
func (p *HTTPProber) Probe(ctx context.Context, target Target) error {
	client, errClient := p.client(target.ProxyURL)
	if errClient != nil {
		return errClient
	}

	var lastErr error

	if err := p.probeModels(ctx, client, target); err == nil {
		return nil
	} else {
		lastErr = err
	}

	if err := p.probeChat(ctx, client, target); err == nil {
		return nil
	} else {
		lastErr = err
	}

	if err := p.probeOptions(ctx, client, target); err == nil {
		return nil
	} else {
		lastErr = err
	}

	return lastErr
}

// client builds an HTTP client honoring the optional proxy override.
func (p *HTTPProber) client(proxyURL string) (*http.Client, error) {
	client := &http.Client{Timeout: p.timeout}
	proxyURL = strings.TrimSpace(proxyURL)
	if proxyURL == "" {
		return client, nil
	}
	parsed, errParse := url.Parse(proxyURL)
	if errParse != nil {
		return nil, fmt.Errorf("probe: invalid proxy url: %w", errParse)
	}
	client.Transport = &http.Transport{Proxy: http.ProxyURL(parsed)}
	return client, nil
}

// probeModels checks the models list endpoint.
func (p *HTTPProber) probeModels(ctx context.Context, client *http.Client, target Target) error {
	req, errReq := http.NewRequestWithContext(ctx, http.MethodGet, apiURL(target, "/models"), nil)
	if errReq != nil {
		return fmt.Errorf("probe: build models request: %w", errReq)
	}
	applyAuthHeaders(req, target)

	resp, errDo := client.Do(req)
	if errDo != nil {
		return fmt.Errorf("probe: network error: %w", errDo)
	}
	defer func() { _ = resp.Body.Close() }()

	body, errRead := io.ReadAll(io.LimitReader(resp.Body, probeBodyLimit))
	if errRead != nil {
		return fmt.Errorf("probe: read models response: %w", errRead)
	}
	if errStatus := checkStatus(resp.StatusCode, body); errStatus != nil {
		return errStatus
	}
	if gjson.GetBytes(body, "data.#").Int() == 0 {
		return fmt.Errorf("probe: models endpoint returned no models")
	}
	return nil
}

// probeChat sends a minimal single-message chat request.
func (p *HTTPProber) probeChat(ctx context.Context, client *http.Client, target Target) error {
	payload, endpoint := chatProbePayload(target)

	req, errReq := http.NewRequestWithContext(ctx, http.MethodPost, apiURL(target, endpoint), strings.NewReader(payload))
	if errReq != nil {
		return fmt.Errorf("probe: build chat request: %w", errReq)
	}
	req.Header.Set("Content-Type", "application/json")
	applyAuthHeaders(req, target)

	resp, errDo := client.Do(req)
	if errDo != nil {
		return fmt.Errorf("probe: network error: %w", errDo)
	}
	defer func() { _ = resp.Body.Close() }()

	body, errRead := io.ReadAll(io.LimitReader(resp.Body, probeBodyLimit))
	if errRead != nil {
		return fmt.Errorf("probe: read chat response: %w", errRead)
	}
	return checkStatus(resp.StatusCode, body)
}

// probeOptions checks bare reachability of the endpoint.
func (p *HTTPProber) probeOptions(ctx context.Context, client *http.Client, target Target) error {
	req, errReq := http.NewRequestWithContext(ctx, http.MethodOptions, strings.TrimSuffix(strings.TrimSpace(target.APIBase), "/"), nil)
	if errReq != nil {
		return fmt.Errorf("probe: build options request: %w", errReq)
	}

	resp, errDo := client.Do(req)
	if errDo != nil {
		return fmt.Errorf("probe: network error: %w", errDo)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("probe: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// chatProbePayload builds the minimal chat body and endpoint path per style.
func chatProbePayload(target Target) (string, string) {
	if target.APIStyle == "anthropic" {
		payload, _ := sjson.Set("{}", "model", "claude-3-5-haiku-latest")
		payload, _ = sjson.Set(payload, "max_tokens", 1)
		payload, _ = sjson.Set(payload, "messages.0.role", "user")
		payload, _ = sjson.Set(payload, "messages.0.content", "hi")
		return payload, "/messages"
	}
	payload, _ := sjson.Set("{}", "model", "gpt-4o-mini")
	payload, _ = sjson.Set(payload, "max_tokens", 1)
	payload, _ = sjson.Set(payload, "messages.0.role", "user")
	payload, _ = sjson.Set(payload, "messages.0.content", "hi")
	return payload, "/chat/completions"
}

// apiURL joins the base URL and path, adding the /v1 segment anthropic-style
// endpoints expect when the base omits a version suffix.
func apiURL(target Target, path string) string {
	base := strings.TrimSuffix(strings.TrimSpace(target.APIBase), "/")
	if target.APIStyle == "anthropic" && !hasVersionSuffix(base) {
		base += "/v1"
	}
	return base + path
}

// hasVersionSuffix reports whether the URL path already ends in a version
// segment such as /v1. The host is never inspected, so bases like
// https://v2-api.example.com still get the version segment appended.
func hasVersionSuffix(base string) bool {
	parsed, errParse := url.Parse(base)
	if errParse != nil {
		return false
	}
	trimmed := strings.Trim(parsed.Path, "/")
	if trimmed == "" {
		return false
	}
	segments := strings.Split(trimmed, "/")
	last := segments[len(segments)-1]
	if len(last) < 2 || last[0] != 'v' {
		return false
	}
	for _, c := range last[1:] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// applyAuthHeaders sets credential headers per the target's API style.
func applyAuthHeaders(req *http.Request, target Target) {
	if target.APIStyle == "anthropic" {
		req.Header.Set("x-api-key", target.Token)
		req.Header.Set("anthropic-version", anthropicVersion)
		return
	}
	req.Header.Set("Authorization", "Bearer "+target.Token)
}

// checkStatus maps upstream HTTP status codes to probe failures, surfacing
// any upstream error message from the body.
func checkStatus(status int, body []byte) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusUnauthorized:
		return fmt.Errorf("probe: invalid credential or authentication failed")
	case status == http.StatusForbidden:
		return fmt.Errorf("probe: access forbidden, credential may lack permissions")
	case status == http.StatusNotFound:
		return fmt.Errorf("probe: endpoint not found, check the API base URL")
	default:
		if msg := gjson.GetBytes(body, "error.message").String(); msg != "" {
			return fmt.Errorf("probe: upstream returned status %d: %s", status, msg)
		}
		return fmt.Errorf("probe: upstream returned status %d", status)
	}
}
