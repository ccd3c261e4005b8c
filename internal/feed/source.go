package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Browser headers sent on direct origin requests, matching what the upstream
// proxy sends.
const (
	browserUA     = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/143.0.0.0 Safari/537.36"
	originHeader  = "https://www.bseindia.com"
	refererHeader = "https://www.bseindia.com/"
)

// Source is one transport strategy in the fallback chain.
type Source interface {
	// Name identifies the source in logs and errors.
	Name() string

	// Fetch returns the raw JSON payload for the given target URL.
	Fetch(ctx context.Context, target string) ([]byte, error)
}

// SourceError reports a failed attempt against one source.
type SourceError struct {
	Source     string
	StatusCode int // 0 when the request never completed
	Err        error
}

func (e *SourceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("source %s: status %d", e.Source, e.StatusCode)
	}
	return fmt.Sprintf("source %s: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// proxySource fetches through the local trusted proxy. The proxy already
// speaks to the origin with the right headers, so none are added here.
type proxySource struct {
	url    string
	client *http.Client
}

func (s *proxySource) Name() string { return "proxy" }

func (s *proxySource) Fetch(ctx context.Context, _ string) ([]byte, error) {
	return doGet(ctx, s.client, s.Name(), s.url, nil)
}

// directSource fetches the origin feed with spoofed browser headers.
type directSource struct {
	client *http.Client
}

func (s *directSource) Name() string { return "direct" }

func (s *directSource) Fetch(ctx context.Context, target string) ([]byte, error) {
	headers := map[string]string{
		"User-Agent": browserUA,
		"Accept":     "application/json, text/plain, */*",
		"Origin":     originHeader,
		"Referer":    refererHeader,
	}
	return doGet(ctx, s.client, s.Name(), target, headers)
}

// relaySource fetches through a public CORS relay. The origin URL is
// appended, encoded, to the relay prefix. Unwrap mode "escaped" expects the
// payload as a JSON string under "contents" that needs a parse step;
// "passthrough" forwards the body unchanged.
type relaySource struct {
	name   string
	prefix string
	unwrap string
	client *http.Client
}

func (s *relaySource) Name() string { return s.name }

func (s *relaySource) Fetch(ctx context.Context, target string) ([]byte, error) {
	body, err := doGet(ctx, s.client, s.Name(), s.prefix+url.QueryEscape(target), nil)
	if err != nil {
		return nil, err
	}

	if s.unwrap != "escaped" {
		return body, nil
	}

	var wrapped struct {
		Contents string `json:"contents"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, &SourceError{Source: s.name, Err: fmt.Errorf("unwrap relay body: %w", err)}
	}
	if wrapped.Contents == "" {
		return nil, &SourceError{Source: s.name, Err: fmt.Errorf("relay body has no contents field")}
	}
	return []byte(wrapped.Contents), nil
}

// doGet performs a single GET and returns the body on HTTP success.
func doGet(ctx context.Context, client *http.Client, source, target string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &SourceError{Source: source, Err: fmt.Errorf("create request: %w", err)}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &SourceError{Source: source, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &SourceError{Source: source, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &SourceError{Source: source, StatusCode: resp.StatusCode}
	}

	return body, nil
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}
