package textproc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/teslashibe/go-speechgate/internal/httpc"
)

// DefaultTimeout bounds a single call to the validation service.
const DefaultTimeout = 5 * time.Second

// maxErrorBody caps how much of an error response is kept for logging.
const maxErrorBody = 512

// Remote posts text to an HTTP validation endpoint and returns the
// validated_text it answers with.
type Remote struct {
	url    string
	client *http.Client
}

// RemoteOption configures a Remote.
type RemoteOption func(*Remote)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) RemoteOption {
	return func(r *Remote) { r.client = c }
}

// NewRemote builds a Remote for endpoint, which must be an absolute
// http(s) URL.
func NewRemote(endpoint string, opts ...RemoteOption) (*Remote, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("textproc: parse endpoint: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("textproc: endpoint must be an absolute http(s) URL, got %q", endpoint)
	}

	r := &Remote{
		url:    u.String(),
		client: httpc.NewClient(DefaultTimeout),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// URL returns the endpoint.
func (r *Remote) URL() string {
	return r.url
}

type remoteRequest struct {
	Text string `json:"text"`
}

type remoteResponse struct {
	ValidatedText *string `json:"validated_text"`
	AudioLength   float64 `json:"audio_length"`
}

// Process sends text to the validation endpoint.
// A 200 response without validated_text yields the original text.
func (r *Remote) Process(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(remoteRequest{Text: text})
	if err != nil {
		return "", fmt.Errorf("textproc: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("textproc: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", &StatusError{StatusCode: resp.StatusCode, Body: string(msg)}
	}

	var out remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrUpstreamUnavailable, err)
	}
	if out.ValidatedText == nil {
		return text, nil
	}
	return *out.ValidatedText, nil
}

var _ Processor = (*Remote)(nil)
