package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"podshorts/internal/config"
	"podshorts/internal/model"
)

// ErrNotFound is returned when the backend has no job with the given id.
var ErrNotFound = errors.New("job not found")

// StatusError is a non-2xx backend response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Code, e.Message)
}

// ErrUnavailable is returned while the circuit breaker is open after
// repeated backend failures.
var ErrUnavailable = errors.New("backend unavailable")

// Client talks to the processing backend that owns shorts, dubbing and
// Instagram jobs. Transport errors and 5xx responses count against a
// circuit breaker; client errors do not.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
}

// New builds a Client from the backend section of the configuration.
func New(cfg config.BackendConfig) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("backend.baseURL is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("backend.baseURL: %w", err)
	}

	timeoutMs := cfg.TimeoutMs
	if timeoutMs <= 0 {
		timeoutMs = 15000
	}
	failures := cfg.BreakerFailures
	if failures <= 0 {
		failures = 5
	}
	cooldown := time.Duration(cfg.BreakerCooldownMs) * time.Millisecond
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}

	return &Client{
		baseURL: base,
		http:    &http.Client{Timeout: time.Duration(timeoutMs) * time.Millisecond},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "backend",
			Timeout: cooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(failures)
			},
			IsSuccessful: countsAsSuccess,
		}),
	}, nil
}

func countsAsSuccess(err error) bool {
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code < 500
	}
	return false
}

// BaseURL returns the normalized backend root.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) CreateShorts(ctx context.Context, req model.CreateShortsRequest) (*model.ShortsAccepted, error) {
	var out model.ShortsAccepted
	if err := c.do(ctx, http.MethodPost, "/api/shorts/", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ShortsStatus(ctx context.Context, id string) (model.ProcessingJob, error) {
	var out model.ProcessingJob
	err := c.do(ctx, http.MethodGet, "/api/shorts/status/"+url.PathEscape(id)+"/", nil, &out)
	return out, err
}

func (c *Client) UserShorts(ctx context.Context, username string) ([]model.ProcessingJob, error) {
	var out []model.ProcessingJob
	if err := c.do(ctx, http.MethodGet, "/api/shorts/user/"+url.PathEscape(username)+"/", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateDubbing(ctx context.Context, req model.CreateDubbingRequest) (*model.DubbingAccepted, error) {
	var out model.DubbingAccepted
	if err := c.do(ctx, http.MethodPost, "/api/dubbing/", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DubbingStatus(ctx context.Context, id string) (model.DubbingJob, error) {
	var out model.DubbingJob
	err := c.do(ctx, http.MethodGet, "/api/dubbing/status/"+url.PathEscape(id)+"/", nil, &out)
	return out, err
}

func (c *Client) UserDubbings(ctx context.Context, username string) ([]model.DubbingJob, error) {
	var out []model.DubbingJob
	if err := c.do(ctx, http.MethodGet, "/api/dubbing/user/"+url.PathEscape(username)+"/", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) UploadInstagram(ctx context.Context, req model.InstagramUploadRequest) (*model.InstagramUploadResult, error) {
	var out model.InstagramUploadResult
	if err := c.do(ctx, http.MethodPost, "/api/instagram/upload/", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.roundTrip(ctx, method, path, body, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound && method == http.MethodGet {
		_, _ = io.Copy(io.Discard, resp.Body)
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, Message: errorMessage(resp.Body)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// errorMessage extracts a readable message from Django REST framework
// style error bodies: {"error": ...}, {"detail": ...}, {"message": ...}
// or a map of field errors.
func errorMessage(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil || len(bytes.TrimSpace(raw)) == 0 {
		return "empty response"
	}

	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return strings.TrimSpace(string(raw))
	}
	for _, key := range []string{"error", "detail", "message"} {
		if s, ok := generic[key].(string); ok && s != "" {
			return s
		}
	}

	parts := make([]string, 0, len(generic))
	for field, v := range generic {
		switch msgs := v.(type) {
		case []any:
			for _, m := range msgs {
				parts = append(parts, fmt.Sprintf("%s: %v", field, m))
			}
		default:
			parts = append(parts, fmt.Sprintf("%s: %v", field, msgs))
		}
	}
	if len(parts) == 0 {
		return strings.TrimSpace(string(raw))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}
