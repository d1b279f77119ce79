// Package client talks to the HTTP gateway and debounces keystroke-driven
// suggestion requests.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/bastiangx/suggestserve/pkg/gateway"
	"github.com/bastiangx/suggestserve/pkg/suggest"
)

// APIError is a non-2xx gateway response.
type APIError struct {
	Status     int
	Code       string
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("%s (%d)", e.Code, e.Status)
}

// Is lets errors.Is match the engine sentinels by code.
func (e *APIError) Is(target error) bool {
	switch e.Code {
	case suggest.KindInvalidQuery.Code():
		return target == suggest.ErrInvalidQuery
	case suggest.KindInvalidFilter.Code():
		return target == suggest.ErrInvalidFilter
	case suggest.KindRateLimited.Code():
		return target == suggest.ErrRateLimited
	case suggest.KindInternal.Code():
		return target == suggest.ErrInternal
	}
	return false
}

// Client calls a gateway.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	clientID   string
	msgpack    bool
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithClientID sends X-Client-ID. Gateways configured with trust_client_id
// rate limit per id instead of per address.
func WithClientID(id string) Option {
	return func(c *Client) { c.clientID = id }
}

// WithMsgpack asks for msgpack bodies instead of JSON.
func WithMsgpack() Option {
	return func(c *Client) { c.msgpack = true }
}

// New creates a client for the gateway at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q needs a scheme and host", baseURL)
	}
	c := &Client{baseURL: u, httpClient: http.DefaultClient}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Suggest calls GET /v1/suggest. A zero limit uses the server default and an
// empty lang disables the filter.
func (c *Client) Suggest(ctx context.Context, text, lang string, limit int) (*gateway.SuggestResponse, error) {
	q := url.Values{}
	q.Set("q", text)
	if lang != "" {
		q.Set("lang", lang)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	u := c.baseURL.JoinPath("v1", "suggest")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	if c.msgpack {
		req.Header.Set("Accept", "application/msgpack")
	} else {
		req.Header.Set("Accept", "application/json")
	}
	if c.clientID != "" {
		req.Header.Set(gateway.HeaderClientID, c.clientID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp, body)
	}

	var out gateway.SuggestResponse
	if err := decodeBody(resp, body, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

func decodeBody(resp *http.Response, body []byte, v any) error {
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/msgpack") {
		return msgpack.Unmarshal(body, v)
	}
	return json.Unmarshal(body, v)
}

func decodeAPIError(resp *http.Response, body []byte) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var er gateway.ErrorResponse
	if err := decodeBody(resp, body, &er); err == nil && er.ErrorCode != "" {
		apiErr.Code = er.ErrorCode
		apiErr.Message = er.Message
	} else {
		apiErr.Code = suggest.KindInternal.Code()
	}
	if secs, err := strconv.Atoi(resp.Header.Get(gateway.HeaderRetryAfter)); err == nil && secs > 0 {
		apiErr.RetryAfter = time.Duration(secs) * time.Second
	}
	return apiErr
}

// AsAPIError unwraps err into an *APIError.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	ok := errors.As(err, &apiErr)
	return apiErr, ok
}
