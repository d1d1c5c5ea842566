package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"podshorts/internal/backend"
	"podshorts/internal/cache"
	"podshorts/internal/config"
	"podshorts/internal/jobs"
	"podshorts/internal/media"
	"podshorts/internal/model"
	"podshorts/internal/results"
	"podshorts/internal/youtube"
)

type fakeBackend struct {
	mu sync.Mutex

	shortsReqs  []model.CreateShortsRequest
	dubbingReqs []model.CreateDubbingRequest
	igReqs      []model.InstagramUploadRequest
	statusCalls int
	shortsByID  map[string][]model.ProcessingJob
	dubbingByID map[string]model.DubbingJob
	userShorts  []model.ProcessingJob
	createErr   error
	statusErr   error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		shortsByID:  map[string][]model.ProcessingJob{},
		dubbingByID: map[string]model.DubbingJob{},
	}
}

func (f *fakeBackend) CreateShorts(ctx context.Context, req model.CreateShortsRequest) (*model.ShortsAccepted, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.shortsReqs = append(f.shortsReqs, req)
	return &model.ShortsAccepted{
		Message:    "Processing started",
		Processing: model.ProcessingJob{ID: "42", Username: req.Username, SourceURL: req.URL, Status: jobs.StatusPending, NumShorts: req.NumShorts},
	}, nil
}

// ShortsStatus returns the scripted sequence for id, repeating the last
// entry once the script is exhausted.
func (f *fakeBackend) ShortsStatus(ctx context.Context, id string) (model.ProcessingJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	if f.statusErr != nil {
		return model.ProcessingJob{}, f.statusErr
	}
	script, ok := f.shortsByID[id]
	if !ok || len(script) == 0 {
		return model.ProcessingJob{}, backend.ErrNotFound
	}
	job := script[0]
	if len(script) > 1 {
		f.shortsByID[id] = script[1:]
	}
	return job, nil
}

func (f *fakeBackend) UserShorts(ctx context.Context, username string) ([]model.ProcessingJob, error) {
	return f.userShorts, nil
}

func (f *fakeBackend) CreateDubbing(ctx context.Context, req model.CreateDubbingRequest) (*model.DubbingAccepted, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dubbingReqs = append(f.dubbingReqs, req)
	return &model.DubbingAccepted{Message: "Dubbing started", Processing: model.DubbingJob{ID: "7", Status: jobs.StatusPending}}, nil
}

func (f *fakeBackend) DubbingStatus(ctx context.Context, id string) (model.DubbingJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	job, ok := f.dubbingByID[id]
	if !ok {
		return model.DubbingJob{}, backend.ErrNotFound
	}
	return job, nil
}

func (f *fakeBackend) UserDubbings(ctx context.Context, username string) ([]model.DubbingJob, error) {
	return nil, nil
}

func (f *fakeBackend) UploadInstagram(ctx context.Context, req model.InstagramUploadRequest) (*model.InstagramUploadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.igReqs = append(f.igReqs, req)
	return &model.InstagramUploadResult{Message: "Reel uploaded successfully", MediaID: "1789"}, nil
}

func (f *fakeBackend) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls
}

type fakeUploader struct {
	mu     sync.Mutex
	bodies []string
	params []media.UploadParams
	err    error
}

func (f *fakeUploader) UploadStream(ctx context.Context, r io.Reader, p media.UploadParams) (*media.Upload, error) {
	body, _ := io.ReadAll(r)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies = append(f.bodies, string(body))
	f.params = append(f.params, p)
	if f.err != nil {
		return nil, f.err
	}
	return &media.Upload{
		UploadResult: media.UploadResult{SecureURL: "https://res.cloudinary.com/demo/video/upload/v1/abc.webm", PublicID: "abc"},
		Attempts:     2,
		Size:         int64(len(body)),
	}, nil
}

type fakeAudio struct {
	err error
}

func (f fakeAudio) OpenAudio(ctx context.Context, rawURL string) (*youtube.Audio, error) {
	if f.err != nil {
		return nil, f.err
	}
	id, err := youtube.ParseVideoID(rawURL)
	if err != nil {
		return nil, err
	}
	return &youtube.Audio{
		Stream:   io.NopCloser(bytes.NewReader([]byte("audio-bytes"))),
		VideoID:  id,
		Title:    "Episode 1",
		Duration: 90 * time.Second,
		MimeType: `audio/webm; codecs="opus"`,
	}, nil
}

type fakeLedger struct {
	mu      sync.Mutex
	records []model.UploadRecord
}

func (f *fakeLedger) InsertUpload(ctx context.Context, rec model.UploadRecord) (model.UploadRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec.ID = "00000000-0000-0000-0000-000000000001"
	f.records = append(f.records, rec)
	return rec, nil
}

func (f *fakeLedger) ListUploadsByUser(ctx context.Context, username string, limit int) ([]model.UploadRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.UploadRecord
	for _, r := range f.records {
		if r.Username == username {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeLedger) Ping(ctx context.Context) error { return nil }

type testEnv struct {
	app      *fiber.App
	backend  *fakeBackend
	uploader *fakeUploader
	ledger   *fakeLedger
}

func newTestEnv(t *testing.T, mutate func(cfg *config.Config, d *Deps)) *testEnv {
	t.Helper()
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	cfg.RateLimit.UploadsPerMinute = -1
	cfg.Poller.IntervalMs = 5

	env := &testEnv{backend: newFakeBackend(), uploader: &fakeUploader{}, ledger: &fakeLedger{}}
	deps := Deps{
		Backend:  env.backend,
		Uploader: env.uploader,
		Audio:    fakeAudio{},
		Ledger:   env.ledger,
		Cache:    cache.NewMemory(time.Minute),
		Renderer: results.Renderer{CloudName: "demo", WebBaseURL: "https://app.example.com"},
	}
	if mutate != nil {
		mutate(cfg, &deps)
	}
	env.app = NewServer(cfg, deps, nil, nil).App()
	return env
}

func (e *testEnv) do(t *testing.T, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := e.app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	resp.Body.Close()
	return resp, body
}

func decodeError(t *testing.T, body []byte) ErrorResponse {
	t.Helper()
	var out ErrorResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode error envelope: %v (%s)", err, body)
	}
	return out
}

func jsonRequest(method, path string, v interface{}) *http.Request {
	payload, _ := json.Marshal(v)
	req, _ := http.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	return req
}
