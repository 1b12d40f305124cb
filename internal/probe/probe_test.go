package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestProbe_ModelsEndpointSucceeds(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/models" && r.Method == http.MethodGet {
			gotAuth = r.Header.Get("Authorization")
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"data":[{"id":"gpt-4o"}]}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	prober := NewHTTPProber(time.Second)
	errProbe := prober.Probe(context.Background(), Target{APIBase: server.URL, APIStyle: "openai", Token: "sk-test"})
	if errProbe != nil {
		t.Fatalf("probe: %v", errProbe)
	}
	if gotAuth != "Bearer sk-test" {
		t.Fatalf("expected bearer auth header, got %q", gotAuth)
	}
}

func TestProbe_FallsBackToChat(t *testing.T) {
	var chatHit bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/models":
			w.WriteHeader(http.StatusNotFound)
		case r.URL.Path == "/chat/completions" && r.Method == http.MethodPost:
			chatHit = true
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"choices":[]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	prober := NewHTTPProber(time.Second)
	if errProbe := prober.Probe(context.Background(), Target{APIBase: server.URL, APIStyle: "openai", Token: "sk-test"}); errProbe != nil {
		t.Fatalf("probe: %v", errProbe)
	}
	if !chatHit {
		t.Fatalf("expected chat fallback to be attempted")
	}
}

func TestProbe_FallsBackToOptions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	prober := NewHTTPProber(time.Second)
	if errProbe := prober.Probe(context.Background(), Target{APIBase: server.URL, APIStyle: "openai", Token: "sk-test"}); errProbe != nil {
		t.Fatalf("probe: %v", errProbe)
	}
}

func TestProbe_InvalidCredential(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			// Fail the last tier so the cascade surfaces an error.
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	prober := NewHTTPProber(time.Second)
	errProbe := prober.Probe(context.Background(), Target{APIBase: server.URL, APIStyle: "openai", Token: "sk-bad"})
	if errProbe == nil {
		t.Fatalf("expected probe failure")
	}
	if !strings.Contains(errProbe.Error(), "status 500") {
		t.Fatalf("expected last-tier failure surfaced, got %v", errProbe)
	}
}

func TestProbe_AnthropicHeadersAndVersionPath(t *testing.T) {
	var gotPath, gotKey, gotVersion string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/models") {
			gotPath = r.URL.Path
			gotKey = r.Header.Get("x-api-key")
			gotVersion = r.Header.Get("anthropic-version")
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"data":[{"id":"claude-sonnet-4"}]}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	prober := NewHTTPProber(time.Second)
	if errProbe := prober.Probe(context.Background(), Target{APIBase: server.URL, APIStyle: "anthropic", Token: "sk-ant"}); errProbe != nil {
		t.Fatalf("probe: %v", errProbe)
	}
	if gotPath != "/v1/models" {
		t.Fatalf("expected /v1 inserted for anthropic base, got %s", gotPath)
	}
	if gotKey != "sk-ant" || gotVersion == "" {
		t.Fatalf("expected anthropic auth headers, got key=%q version=%q", gotKey, gotVersion)
	}
}

func TestAPIURL_VersionSuffixNotDuplicated(t *testing.T) {
	url := apiURL(Target{APIBase: "https://api.anthropic.com/v1/", APIStyle: "anthropic"}, "/models")
	if url != "https://api.anthropic.com/v1/models" {
		t.Fatalf("unexpected url %s", url)
	}

	url = apiURL(Target{APIBase: "https://api.anthropic.com", APIStyle: "anthropic"}, "/models")
	if url != "https://api.anthropic.com/v1/models" {
		t.Fatalf("unexpected url %s", url)
	}
}

func TestAPIURL_VersionDetectionIgnoresHost(t *testing.T) {
	// A host starting with "v" is not a version segment.
	url := apiURL(Target{APIBase: "https://v2-api.example.com", APIStyle: "anthropic"}, "/models")
	if url != "https://v2-api.example.com/v1/models" {
		t.Fatalf("unexpected url %s", url)
	}

	url = apiURL(Target{APIBase: "https://v2-api.example.com/v2", APIStyle: "anthropic"}, "/models")
	if url != "https://v2-api.example.com/v2/models" {
		t.Fatalf("unexpected url %s", url)
	}

	// A trailing path segment that merely starts with "v" is not a version.
	url = apiURL(Target{APIBase: "https://api.example.com/vendor", APIStyle: "anthropic"}, "/models")
	if url != "https://api.example.com/vendor/v1/models" {
		t.Fatalf("unexpected url %s", url)
	}
}
