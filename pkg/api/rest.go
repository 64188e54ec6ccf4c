package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// RESTOption configures a RESTClient.
type RESTOption func(*RESTClient)

// WithHTTPClient injects the transport used for requests.
func WithHTTPClient(client *http.Client) RESTOption {
	return func(c *RESTClient) {
		if client != nil {
			c.http = client
		}
	}
}

// WithTimeout caps each request.
func WithTimeout(timeout time.Duration) RESTOption {
	return func(c *RESTClient) {
		c.timeout = timeout
	}
}

// WithToken sends a bearer token on every request.
func WithToken(token string) RESTOption {
	return func(c *RESTClient) {
		c.token = strings.TrimSpace(token)
	}
}

// WithLogger logs each request at debug level.
func WithLogger(logger *slog.Logger) RESTOption {
	return func(c *RESTClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// RESTClient talks JSON to the events backend.
type RESTClient struct {
	base    *url.URL
	http    *http.Client
	timeout time.Duration
	token   string
	logger  *slog.Logger
}

var _ Client = (*RESTClient)(nil)

// NewRESTClient targets baseURL, for example "https://api.example.org/v1".
func NewRESTClient(baseURL string, opts ...RESTOption) (*RESTClient, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("api: invalid base url %q", baseURL)
	}
	c := &RESTClient{
		base:    base,
		http:    http.DefaultClient,
		timeout: 15 * time.Second,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

func (c *RESTClient) CreateEvent(ctx context.Context, payload map[string]any) (map[string]any, error) {
	return c.object(ctx, http.MethodPost, "/events", payload)
}

func (c *RESTClient) UpdateEvent(ctx context.Context, id string, payload map[string]any) (map[string]any, error) {
	return c.object(ctx, http.MethodPatch, "/events/"+url.PathEscape(id), payload)
}

func (c *RESTClient) CloseEvent(ctx context.Context, id string, payload map[string]any) (map[string]any, error) {
	return c.object(ctx, http.MethodPost, "/events/"+url.PathEscape(id)+"/close", payload)
}

func (c *RESTClient) FetchEvent(ctx context.Context, id string) (map[string]any, error) {
	return c.object(ctx, http.MethodGet, "/events/"+url.PathEscape(id), nil)
}

func (c *RESTClient) FetchCloseReport(ctx context.Context, id string) (map[string]any, error) {
	return c.object(ctx, http.MethodGet, "/events/"+url.PathEscape(id)+"/close", nil)
}

func (c *RESTClient) IsQualifiedOrganizer(ctx context.Context, userID string) (bool, error) {
	var out struct {
		Qualified bool `json:"qualified"`
	}
	if err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(userID)+"/organizer-qualification", nil, &out); err != nil {
		return false, err
	}
	return out.Qualified, nil
}

func (c *RESTClient) object(ctx context.Context, method, path string, payload map[string]any) (map[string]any, error) {
	var out map[string]any
	if err := c.do(ctx, method, path, payload, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

func (c *RESTClient) do(ctx context.Context, method, path string, body any, out any) error {
	reqCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("api: encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	target := c.base.JoinPath(path)
	req, err := http.NewRequestWithContext(reqCtx, method, target.String(), reader)
	if err != nil {
		return fmt.Errorf("api: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	c.logger.Debug("api request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(started),
	)

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("api: read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var decoded any
		if len(bytes.TrimSpace(data)) > 0 && json.Unmarshal(data, &decoded) == nil {
			apiErr.Data = decoded
			if obj, ok := decoded.(map[string]any); ok {
				if msg, ok := obj["message"].(string); ok {
					apiErr.Message = msg
				}
			}
		} else {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("api: decode response: %w", err)
	}
	return nil
}

// IsNotFound reports whether err means the entity does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
