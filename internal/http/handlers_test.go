package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"podshorts/internal/backend"
	"podshorts/internal/config"
	"podshorts/internal/jobs"
	"podshorts/internal/media"
	"podshorts/internal/model"
)

func TestUploadYouTube_InvalidURL(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.do(t, jsonRequest(http.MethodPost, "/api/upload-youtube", map[string]string{"youtubeUrl": "https://vimeo.com/123"}))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	e := decodeError(t, body)
	if e.Code != "VALIDATION_FAILED" || e.Error != "Invalid YouTube URL" {
		t.Fatalf("unexpected envelope %+v", e)
	}
}

func TestUploadYouTube_Success(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.do(t, jsonRequest(http.MethodPost, "/api/upload-youtube", map[string]string{
		"youtubeUrl": "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"username":   "host",
	}))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	var out YouTubeUploadResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.CloudinaryURL == "" || out.Attempts != 2 {
		t.Fatalf("unexpected response %+v", out)
	}
	if len(env.uploader.bodies) != 1 || env.uploader.bodies[0] != "audio-bytes" {
		t.Fatalf("expected audio stream to be uploaded, got %v", env.uploader.bodies)
	}
	if got := env.uploader.params[0].Filename; got != "dQw4w9WgXcQ.webm" {
		t.Fatalf("unexpected filename %q", got)
	}
	if len(env.ledger.records) != 1 || env.ledger.records[0].Source != model.UploadSourceYouTube {
		t.Fatalf("expected ledger record, got %+v", env.ledger.records)
	}
	if !strings.Contains(string(env.ledger.records[0].Metadata), `"title":"Episode 1"`) {
		t.Fatalf("expected title in metadata, got %s", env.ledger.records[0].Metadata)
	}
}

func TestUploadYouTube_RetriesExhausted(t *testing.T) {
	env := newTestEnv(t, nil)
	env.uploader.err = &media.UploadError{
		Attempts: 4,
		Err:      fmt.Errorf("%w: %w", media.ErrRetriesExhausted, &media.APIError{HTTPCode: 499, Message: "Request Timeout"}),
	}

	resp, body := env.do(t, jsonRequest(http.MethodPost, "/api/upload-youtube", map[string]string{"youtubeUrl": "https://youtu.be/dQw4w9WgXcQ"}))
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	e := decodeError(t, body)
	if e.Error != "Cloudinary upload failed after retries" || e.Code != "UPLOAD_RETRIES_EXHAUSTED" {
		t.Fatalf("unexpected envelope %+v", e)
	}
	if len(env.ledger.records) != 0 {
		t.Fatalf("failed upload must not be recorded")
	}
}

func TestUploadYouTube_OtherUploadError(t *testing.T) {
	env := newTestEnv(t, nil)
	env.uploader.err = &media.UploadError{Attempts: 1, Err: &media.APIError{HTTPCode: 400, Message: "Invalid preset"}}

	resp, body := env.do(t, jsonRequest(http.MethodPost, "/api/upload-youtube", map[string]string{"youtubeUrl": "https://youtu.be/dQw4w9WgXcQ"}))
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	if e := decodeError(t, body); e.Error != "Cloudinary upload failed" {
		t.Fatalf("unexpected envelope %+v", e)
	}
}

func TestUploadYouTube_DownloadError(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config, d *Deps) {
		d.Audio = fakeAudio{err: errors.New("signature decipher failed")}
	})

	resp, body := env.do(t, jsonRequest(http.MethodPost, "/api/upload-youtube", map[string]string{"youtubeUrl": "https://youtu.be/dQw4w9WgXcQ"}))
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}
	if e := decodeError(t, body); e.Error != "ytdl download error" {
		t.Fatalf("unexpected envelope %+v", e)
	}
}

func TestUploadFile_MethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.do(t, httptest.NewRequest(http.MethodGet, "/api/upload", nil))
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
	if e := decodeError(t, body); e.Error != "Method not allowed" {
		t.Fatalf("unexpected envelope %+v", e)
	}
}

var mp4Header = []byte("\x00\x00\x00\x18ftypmp42\x00\x00\x00\x00mp42isom\x00\x00\x00\x08free")

func multipartRequest(t *testing.T, contentType string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", `form-data; name="file"; filename="episode.mp4"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	_, _ = part.Write(data)
	_ = mw.WriteField("username", "host")
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadFile_Success(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.do(t, multipartRequest(t, "video/mp4", mp4Header))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	var out FileUploadResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.URL == "" || out.PublicID != "abc" {
		t.Fatalf("unexpected response %+v", out)
	}
	if got := env.uploader.params[0].Folder; got != "podcasts" {
		t.Fatalf("expected podcasts folder, got %q", got)
	}
	if env.uploader.bodies[0] != string(mp4Header) {
		t.Fatalf("uploaded body does not match the file")
	}
	if len(env.ledger.records) != 1 || env.ledger.records[0].Username != "host" {
		t.Fatalf("unexpected ledger records %+v", env.ledger.records)
	}
}

func TestUploadFile_WrongType(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.do(t, multipartRequest(t, "text/plain", []byte("not a video")))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	e := decodeError(t, body)
	if e.Code != "VALIDATION_FAILED" || e.Error != "File must be in MP4, AVI, or MOV format" {
		t.Fatalf("unexpected envelope %+v", e)
	}
}

func TestUploadFile_Missing(t *testing.T) {
	env := newTestEnv(t, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("username", "host")
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, body := env.do(t, req)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if e := decodeError(t, body); e.Error != "Please select a file" {
		t.Fatalf("unexpected envelope %+v", e)
	}
}

func TestCreateShorts_Validation(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.do(t, jsonRequest(http.MethodPost, "/api/shorts", map[string]interface{}{
		"url":        "https://example.com/video",
		"num_shorts": 9,
	}))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	e := decodeError(t, body)
	details, ok := e.Details.(map[string]interface{})
	if !ok {
		t.Fatalf("expected field details, got %T", e.Details)
	}
	if details["url"] != "Please enter a valid YouTube URL" {
		t.Fatalf("unexpected url error %v", details["url"])
	}
	if details["num_shorts"] != "Number of shorts must be between 1 and 5" {
		t.Fatalf("unexpected num_shorts error %v", details["num_shorts"])
	}
	if details["username"] != "Username is required" {
		t.Fatalf("unexpected username error %v", details["username"])
	}
	if len(env.backend.shortsReqs) != 0 {
		t.Fatalf("invalid request must not reach the backend")
	}
}

func TestCreateShorts_Accepted(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.do(t, jsonRequest(http.MethodPost, "/api/shorts", map[string]interface{}{
		"url":      "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"username": "host@example.com",
	}))
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", resp.StatusCode, body)
	}
	var out model.ShortsAccepted
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Processing.ID != "42" {
		t.Fatalf("unexpected job id %q", out.Processing.ID)
	}
	// Numeric ids are re-emitted as JSON numbers.
	if !strings.Contains(string(body), `"id":42`) {
		t.Fatalf("expected numeric id in body, got %s", body)
	}
	req := env.backend.shortsReqs[0]
	if req.NumShorts != 1 || !req.AddCaptions {
		t.Fatalf("expected defaults applied, got %+v", req)
	}
}

func TestCreateShorts_BackendRejected(t *testing.T) {
	env := newTestEnv(t, nil)
	env.backend.createErr = &backend.StatusError{Code: http.StatusBadRequest, Message: "Invalid YouTube URL"}

	resp, body := env.do(t, jsonRequest(http.MethodPost, "/api/shorts", map[string]interface{}{
		"url":      "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"username": "host",
	}))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if e := decodeError(t, body); e.Code != "BACKEND_REJECTED" || e.Error != "Invalid YouTube URL" {
		t.Fatalf("unexpected envelope %+v", e)
	}
}

func TestShortsStatus_NotFound(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.do(t, httptest.NewRequest(http.MethodGet, "/api/shorts/status/404", nil))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if e := decodeError(t, body); e.Code != "JOB_NOT_FOUND" {
		t.Fatalf("unexpected envelope %+v", e)
	}
}

func TestShortsStatus_BackendUnavailable(t *testing.T) {
	env := newTestEnv(t, nil)
	env.backend.statusErr = fmt.Errorf("%w: circuit breaker is open", backend.ErrUnavailable)

	resp, _ := env.do(t, httptest.NewRequest(http.MethodGet, "/api/shorts/status/1", nil))
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}

func TestShortsStatus_CachesTerminalOnly(t *testing.T) {
	env := newTestEnv(t, nil)
	env.backend.shortsByID["5"] = []model.ProcessingJob{
		{ID: "5", Status: jobs.StatusProcessing},
		{ID: "5", Status: jobs.StatusCompleted, Clips: []model.Clip{{URL: "https://res.cloudinary.com/demo/video/upload/a.mp4", PublicID: "a"}}},
	}

	for i, want := range []string{"MISS", "MISS", "HIT", "HIT"} {
		resp, _ := env.do(t, httptest.NewRequest(http.MethodGet, "/api/shorts/status/5", nil))
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("call %d: expected 200, got %d", i, resp.StatusCode)
		}
		if got := resp.Header.Get("X-Cache"); got != want {
			t.Fatalf("call %d: expected X-Cache %s, got %s", i, want, got)
		}
	}
	if env.backend.calls() != 2 {
		t.Fatalf("expected 2 backend calls, got %d", env.backend.calls())
	}
}

func TestShortsResults(t *testing.T) {
	env := newTestEnv(t, nil)
	env.backend.shortsByID["8"] = []model.ProcessingJob{{
		ID:     "8",
		Status: jobs.StatusCompleted,
		Clips:  []model.Clip{{URL: "https://res.cloudinary.com/demo/video/upload/a.mp4", PublicID: "shorts/a"}},
	}}

	resp, body := env.do(t, httptest.NewRequest(http.MethodGet, "/api/shorts/results/8", nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var out ResultsResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Clips) != 1 {
		t.Fatalf("expected 1 clip, got %+v", out)
	}
	c := out.Clips[0]
	if !strings.HasPrefix(c.TranslateURL, "https://app.example.com/translate?videoUrl=") {
		t.Fatalf("unexpected translate url %q", c.TranslateURL)
	}
	if !strings.HasSuffix(c.PosterURL, "/shorts/a.jpg") || c.Share.Facebook == "" {
		t.Fatalf("unexpected clip %+v", c)
	}
}

func TestShortsEvents_StreamsUntilTerminal(t *testing.T) {
	env := newTestEnv(t, nil)
	env.backend.shortsByID["3"] = []model.ProcessingJob{
		{ID: "3", Status: jobs.StatusPending},
		{ID: "3", Status: jobs.StatusProcessing},
		{ID: "3", Status: jobs.StatusPending},
		{ID: "3", Status: jobs.StatusCompleted},
	}

	resp, body := env.do(t, httptest.NewRequest(http.MethodGet, "/api/shorts/status/3/events", nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("unexpected content type %q", ct)
	}

	out := string(body)
	if n := strings.Count(out, "event: status"); n != 3 {
		t.Fatalf("expected 3 status events (regression dropped), got %d:\n%s", n, out)
	}
	if !strings.Contains(out, `"status":"COMPLETED"`) || !strings.Contains(out, "event: done") {
		t.Fatalf("expected terminal and done events, got:\n%s", out)
	}
	if env.backend.calls() != 4 {
		t.Fatalf("expected polling to stop at the terminal status, got %d calls", env.backend.calls())
	}
}

func TestCreateDubbing(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.do(t, jsonRequest(http.MethodPost, "/api/dubbing", map[string]interface{}{
		"url":             "https://res.cloudinary.com/demo/video/upload/a.mp4",
		"username":        "host",
		"target_language": "Spanish",
		"voice":           "alloy",
		"add_captions":    false,
	}))
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", resp.StatusCode, body)
	}
	req := env.backend.dubbingReqs[0]
	if req.SourceLanguage != "English" || req.AddCaptions {
		t.Fatalf("unexpected backend request %+v", req)
	}

	resp, body = env.do(t, jsonRequest(http.MethodPost, "/api/dubbing", map[string]interface{}{
		"url":      "https://res.cloudinary.com/demo/video/upload/a.mp4",
		"username": "host",
	}))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if e := decodeError(t, body); e.Error != "Validation failed" {
		t.Fatalf("unexpected envelope %+v", e)
	}
}

func TestDubbingOptions(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.do(t, httptest.NewRequest(http.MethodGet, "/api/dubbing/options", nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), `"shimmer"`) || !strings.Contains(string(body), `"Hindi"`) {
		t.Fatalf("unexpected options %s", body)
	}
}

func TestInstagramUpload(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.do(t, jsonRequest(http.MethodPost, "/api/instagram/upload", map[string]string{
		"video_path": "https://res.cloudinary.com/demo/video/upload/a.mp4",
		"username":   "ig_user",
		"password":   "secret",
		"caption":    "New episode",
	}))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	if len(env.backend.igReqs) != 1 || env.backend.igReqs[0].Caption != "New episode" {
		t.Fatalf("unexpected forwarded request %+v", env.backend.igReqs)
	}

	resp, _ = env.do(t, jsonRequest(http.MethodPost, "/api/instagram/upload", map[string]string{"video_path": "nope"}))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestUploadsHistory(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, jsonRequest(http.MethodPost, "/api/upload-youtube", map[string]string{
		"youtubeUrl": "https://youtu.be/dQw4w9WgXcQ",
		"username":   "host",
	}))

	resp, body := env.do(t, httptest.NewRequest(http.MethodGet, "/api/uploads/user/host", nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var out UploadsResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Uploads) != 1 || out.Uploads[0].PublicID != "abc" {
		t.Fatalf("unexpected uploads %+v", out.Uploads)
	}
}

func TestUploadsHistory_NoLedger(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config, d *Deps) { d.Ledger = nil })

	resp, _ := env.do(t, httptest.NewRequest(http.MethodGet, "/api/uploads/user/host", nil))
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}

func TestUploadRateLimit(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config, d *Deps) { cfg.RateLimit.UploadsPerMinute = 1 })

	first, _ := env.do(t, jsonRequest(http.MethodPost, "/api/upload-youtube", map[string]string{"youtubeUrl": "bad"}))
	if first.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected first request to reach the handler, got %d", first.StatusCode)
	}
	second, body := env.do(t, jsonRequest(http.MethodPost, "/api/upload-youtube", map[string]string{"youtubeUrl": "bad"}))
	if second.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", second.StatusCode)
	}
	if e := decodeError(t, body); e.Code != "RATE_LIMIT_EXCEEDED" {
		t.Fatalf("unexpected envelope %+v", e)
	}

	// Status lookups are not rate limited.
	resp, _ := env.do(t, httptest.NewRequest(http.MethodGet, "/api/shorts/status/1", nil))
	if resp.StatusCode == http.StatusTooManyRequests {
		t.Fatalf("status lookups must not be rate limited")
	}
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.do(t, httptest.NewRequest(http.MethodGet, "/healthz?deep=true", nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), `"db":"ok"`) || !strings.Contains(string(body), `"redis":"disabled"`) {
		t.Fatalf("unexpected health body %s", body)
	}
	if resp.Header.Get("X-Request-Id") == "" {
		t.Fatalf("expected X-Request-Id header")
	}

	resp, body = env.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "podshorts_http_requests_total") {
		t.Fatalf("unexpected metrics response %d: %s", resp.StatusCode, body)
	}
}

func TestShortsEvents_UnknownJob(t *testing.T) {
	env := newTestEnv(t, nil)

	_, body := env.do(t, httptest.NewRequest(http.MethodGet, "/api/shorts/status/999/events", nil))
	out := string(body)
	if !strings.Contains(out, `"code":"JOB_NOT_FOUND"`) || !strings.Contains(out, `"reason":"job not found"`) {
		t.Fatalf("expected not found error and done events, got:\n%s", out)
	}
	if env.backend.calls() != 1 {
		t.Fatalf("expected a single poll for an unknown job, got %d", env.backend.calls())
	}
}
