package media

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"podshorts/internal/config"
)

// fakeCloudinary answers upload requests with the scripted status codes,
// then succeeds.
func fakeCloudinary(t *testing.T, calls *atomic.Int32, codes ...int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(calls.Add(1)) - 1

		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file part: %v", err)
		} else {
			body, _ := io.ReadAll(f)
			if string(body) != "podcast-bytes" {
				t.Errorf("attempt %d got body %q", n+1, body)
			}
		}

		if n < len(codes) {
			w.WriteHeader(codes[n])
			_, _ = w.Write([]byte(`{"error":{"message":"Request Timeout"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"secure_url":"https://res.cloudinary.com/demo/video/upload/v1/podcasts/abc.mp4","public_id":"podcasts/abc","bytes":13}`))
	}))
}

func newTestUploader(t *testing.T, srv *httptest.Server) *Uploader {
	t.Helper()
	client, err := NewClient(config.CloudinaryConfig{
		CloudName:    "demo",
		UploadPreset: "unsigned",
		APIBase:      srv.URL,
		TimeoutMs:    5000,
	})
	require.NoError(t, err)
	policy := RetryPolicy{MaxRetries: 3, Delay: time.Millisecond, RetryCode: StatusClientTimeout}
	return NewUploader(client, policy, t.TempDir(), nil)
}

func TestUploadSucceedsFirstTry(t *testing.T) {
	var calls atomic.Int32
	srv := fakeCloudinary(t, &calls)
	defer srv.Close()

	up, err := newTestUploader(t, srv).UploadStream(context.Background(), strings.NewReader("podcast-bytes"), UploadParams{Filename: "a.mp4"})
	require.NoError(t, err)
	assert.Equal(t, "https://res.cloudinary.com/demo/video/upload/v1/podcasts/abc.mp4", up.SecureURL)
	assert.Equal(t, "podcasts/abc", up.PublicID)
	assert.Equal(t, 1, up.Attempts)
	assert.EqualValues(t, len("podcast-bytes"), up.Size)
}

func TestUploadRetriesOnClientTimeoutThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := fakeCloudinary(t, &calls, 499, 499)
	defer srv.Close()

	up, err := newTestUploader(t, srv).UploadStream(context.Background(), strings.NewReader("podcast-bytes"), UploadParams{})
	require.NoError(t, err)
	assert.Equal(t, 3, up.Attempts)
	assert.EqualValues(t, 3, calls.Load())
}

func TestUploadStopsAfterRetryBound(t *testing.T) {
	var calls atomic.Int32
	srv := fakeCloudinary(t, &calls, 499, 499, 499, 499, 499, 499)
	defer srv.Close()

	_, err := newTestUploader(t, srv).UploadStream(context.Background(), strings.NewReader("podcast-bytes"), UploadParams{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetriesExhausted)

	var upErr *UploadError
	require.True(t, errors.As(err, &upErr))
	assert.Equal(t, 4, upErr.Attempts)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 499, apiErr.HTTPCode)

	// initial attempt + 3 retries
	assert.EqualValues(t, 4, calls.Load())
}

func TestUploadDoesNotRetryOtherErrors(t *testing.T) {
	var calls atomic.Int32
	srv := fakeCloudinary(t, &calls, http.StatusBadRequest)
	defer srv.Close()

	_, err := newTestUploader(t, srv).UploadStream(context.Background(), strings.NewReader("podcast-bytes"), UploadParams{})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrRetriesExhausted))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.HTTPCode)
	assert.Equal(t, "Request Timeout", apiErr.Message)
	assert.EqualValues(t, 1, calls.Load())
}

func TestUploadAttemptTimeoutIsRetryable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = io.Copy(io.Discard, r.Body)
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	client, err := NewClient(config.CloudinaryConfig{CloudName: "demo", UploadPreset: "p", APIBase: srv.URL, TimeoutMs: 50})
	require.NoError(t, err)
	u := NewUploader(client, RetryPolicy{MaxRetries: 1, Delay: time.Millisecond, RetryCode: StatusClientTimeout}, t.TempDir(), nil)

	_, err = u.UploadStream(context.Background(), strings.NewReader("podcast-bytes"), UploadParams{})
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.EqualValues(t, 2, calls.Load())
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewClient(config.CloudinaryConfig{})
	assert.Error(t, err)

	_, err = NewClient(config.CloudinaryConfig{CloudName: "demo", APIKey: "key"})
	assert.Error(t, err)

	_, err = NewClient(config.CloudinaryConfig{CloudName: "demo", APIKey: "key", APISecret: "secret"})
	assert.NoError(t, err)
}

func TestSignedFormFields(t *testing.T) {
	client, err := NewClient(config.CloudinaryConfig{CloudName: "demo", APIKey: "key", APISecret: "secret"})
	require.NoError(t, err)
	client.now = func() time.Time { return time.Unix(1700000000, 0) }

	fields := client.formFields(UploadParams{Folder: "podcasts", PublicID: "clip_1", Overwrite: true})
	assert.Equal(t, "key", fields["api_key"])
	assert.Equal(t, "1700000000", fields["timestamp"])
	assert.Empty(t, fields["upload_preset"])
	assert.Equal(t, Sign(map[string]string{
		"folder":    "podcasts",
		"public_id": "clip_1",
		"overwrite": "true",
		"timestamp": "1700000000",
	}, "secret"), fields["signature"])
}

func TestSignIgnoresExcludedKeys(t *testing.T) {
	base := map[string]string{"public_id": "sample_image", "timestamp": "1315060510"}
	withExtras := map[string]string{
		"public_id": "sample_image",
		"timestamp": "1315060510",
		"api_key":   "ignored",
		"file":      "ignored",
	}
	assert.Equal(t, Sign(base, "abcd"), Sign(withExtras, "abcd"))
	assert.Len(t, Sign(base, "abcd"), 40)
	assert.NotEqual(t, Sign(base, "abcd"), Sign(base, "other"))
}
