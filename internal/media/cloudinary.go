package media

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"podshorts/internal/config"
)

// StatusClientTimeout is the code Cloudinary's SDKs report when the
// request did not finish within the client timeout.
const StatusClientTimeout = 499

// UploadParams are the optional upload settings sent with each request.
type UploadParams struct {
	Folder    string
	PublicID  string
	Filename  string
	Overwrite bool
	Tags      []string
}

// UploadResult is the subset of the upload response callers use.
type UploadResult struct {
	SecureURL    string  `json:"secure_url"`
	PublicID     string  `json:"public_id"`
	Bytes        int64   `json:"bytes"`
	Duration     float64 `json:"duration"`
	Format       string  `json:"format"`
	ResourceType string  `json:"resource_type"`
}

// APIError is a failed upload attempt with the HTTP code Cloudinary (or
// the client timeout) reported.
type APIError struct {
	HTTPCode int
	Message  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cloudinary upload failed (http %d): %s", e.HTTPCode, e.Message)
}

// Client performs single-attempt video uploads against the Cloudinary
// upload API.
type Client struct {
	cloudName string
	apiKey    string
	apiSecret string
	preset    string
	apiBase   string
	timeout   time.Duration
	http      *http.Client
	now       func() time.Time
}

// NewClient validates credentials and builds a Client. Either an upload
// preset (unsigned uploads) or an API key and secret must be configured.
func NewClient(cfg config.CloudinaryConfig) (*Client, error) {
	if strings.TrimSpace(cfg.CloudName) == "" {
		return nil, fmt.Errorf("cloudinary.cloudName is required")
	}
	if cfg.UploadPreset == "" && (cfg.APIKey == "" || cfg.APISecret == "") {
		return nil, fmt.Errorf("cloudinary requires uploadPreset or apiKey and apiSecret")
	}

	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	base := strings.TrimRight(cfg.APIBase, "/")
	if base == "" {
		base = "https://api.cloudinary.com"
	}

	return &Client{
		cloudName: cfg.CloudName,
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		preset:    cfg.UploadPreset,
		apiBase:   base,
		timeout:   timeout,
		// Per-attempt deadlines come from the request context.
		http: &http.Client{},
		now:  time.Now,
	}, nil
}

// CloudName is used to build delivery URLs such as poster thumbnails.
func (c *Client) CloudName() string { return c.cloudName }

// Upload sends r as a video resource in a single attempt. A timeout of
// the attempt itself is reported as an APIError with code 499.
func (c *Client) Upload(ctx context.Context, r io.Reader, p UploadParams) (*UploadResult, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	fields := c.formFields(p)
	filename := p.Filename
	if filename == "" {
		filename = "upload"
	}

	pr, pw := io.Pipe()
	defer pr.Close()
	mw := multipart.NewWriter(pw)

	go func() {
		err := writeForm(mw, fields, filename, r)
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	endpoint := fmt.Sprintf("%s/v1_1/%s/video/upload", c.apiBase, c.cloudName)
	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, endpoint, pr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return nil, &APIError{HTTPCode: StatusClientTimeout, Message: "Request Timeout"}
		}
		return nil, fmt.Errorf("cloudinary request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{HTTPCode: resp.StatusCode, Message: readErrorMessage(resp.Body)}
	}

	var out UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	if out.SecureURL == "" {
		return nil, &APIError{HTTPCode: resp.StatusCode, Message: "response did not include secure_url"}
	}
	return &out, nil
}

// formFields builds the non-file form fields, signing them when no
// upload preset is configured.
func (c *Client) formFields(p UploadParams) map[string]string {
	params := map[string]string{}
	if p.Folder != "" {
		params["folder"] = p.Folder
	}
	if p.PublicID != "" {
		params["public_id"] = p.PublicID
	}
	if p.Overwrite {
		params["overwrite"] = "true"
	}
	if len(p.Tags) > 0 {
		params["tags"] = strings.Join(p.Tags, ",")
	}

	if c.preset != "" {
		params["upload_preset"] = c.preset
		return params
	}

	params["timestamp"] = strconv.FormatInt(c.now().Unix(), 10)
	params["signature"] = Sign(params, c.apiSecret)
	params["api_key"] = c.apiKey
	return params
}

// Sign computes a Cloudinary request signature: the SHA-1 of the sorted
// key=value pairs joined by '&' with the API secret appended.
func Sign(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if v == "" {
			continue
		}
		switch k {
		case "file", "api_key", "resource_type", "cloud_name", "signature":
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}
	b.WriteString(secret)

	sum := sha1.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func writeForm(mw *multipart.Writer, fields map[string]string, filename string, r io.Reader) error {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := mw.WriteField(k, fields[k]); err != nil {
			return err
		}
	}

	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, r)
	return err
}

func readErrorMessage(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil || len(raw) == 0 {
		return "empty error response"
	}
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error.Message != "" {
		return payload.Error.Message
	}
	return strings.TrimSpace(string(raw))
}
