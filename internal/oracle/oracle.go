// Package oracle talks to the external attestation service that evaluates
// evidence off the deterministic path.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/eigerco/attestd/internal/constants"
)

var (
	ErrIO                = errors.New("oracle i/o error")
	ErrDeadlineReached   = errors.New("oracle deadline reached")
	ErrMalformedResponse = errors.New("malformed oracle response")
)

// maxResponseSize bounds the body read from the oracle.
const maxResponseSize = 1 << 20

// Oracle evaluates evidence and returns the verdict payload.
type Oracle interface {
	Verify(ctx context.Context, evidence []byte) ([]byte, error)
}

// HTTPClient posts evidence to a fixed local address.
type HTTPClient struct {
	url     string
	timeout time.Duration
	client  *http.Client
}

type Option func(*HTTPClient)

func WithTimeout(d time.Duration) Option {
	return func(c *HTTPClient) { c.timeout = d }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) { c.client = hc }
}

func NewHTTPClient(url string, opts ...Option) *HTTPClient {
	if url == "" {
		url = constants.DefaultOracleURL
	}
	c := &HTTPClient{
		url:     url,
		timeout: constants.OracleTimeout,
		client:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Verify sends evidence as the request body and returns the bytes of the
// top-level "message" field of the JSON response.
func (c *HTTPClient) Verify(ctx context.Context, evidence []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(evidence))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classify(ctx, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, classify(ctx, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status code %d", ErrMalformedResponse, resp.StatusCode)
	}
	return ParseMessage(body)
}

func classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrDeadlineReached, err)
	}
	return fmt.Errorf("%w: %v", ErrIO, err)
}

// ParseMessage extracts the top-level "message" string of a JSON body.
func ParseMessage(body []byte) ([]byte, error) {
	if !utf8.Valid(body) {
		return nil, fmt.Errorf("%w: body is not valid utf-8", ErrMalformedResponse)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	raw, ok := doc["message"]
	if !ok {
		return nil, fmt.Errorf("%w: missing message field", ErrMalformedResponse)
	}
	var message string
	if err := json.Unmarshal(raw, &message); err != nil {
		return nil, fmt.Errorf("%w: message is not a string", ErrMalformedResponse)
	}
	if len(message) > constants.MaxMessageSize {
		return nil, fmt.Errorf("%w: message of %d bytes exceeds %d", ErrMalformedResponse, len(message), constants.MaxMessageSize)
	}
	return []byte(message), nil
}
