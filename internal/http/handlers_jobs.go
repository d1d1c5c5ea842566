package http

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"podshorts/internal/backend"
	"podshorts/internal/cache"
	"podshorts/internal/jobs"
	"podshorts/internal/metrics"
	"podshorts/internal/model"
	"podshorts/internal/results"
	"podshorts/internal/validate"
)

// jobKind binds the per-kind backend calls so status, results and event
// handlers are shared between shorts and dubbing jobs.
type jobKind[T jobs.Snapshot] struct {
	name   string
	fetch  func(ctx context.Context, b JobsBackend, id string) (T, error)
	list   func(ctx context.Context, b JobsBackend, username string) ([]T, error)
	render func(r results.Renderer, job T) results.View
}

var shortsKind = jobKind[model.ProcessingJob]{
	name: "shorts",
	fetch: func(ctx context.Context, b JobsBackend, id string) (model.ProcessingJob, error) {
		return b.ShortsStatus(ctx, id)
	},
	list: func(ctx context.Context, b JobsBackend, username string) ([]model.ProcessingJob, error) {
		return b.UserShorts(ctx, username)
	},
	render: results.Renderer.FromShorts,
}

var dubbingKind = jobKind[model.DubbingJob]{
	name: "dubbing",
	fetch: func(ctx context.Context, b JobsBackend, id string) (model.DubbingJob, error) {
		return b.DubbingStatus(ctx, id)
	},
	list: func(ctx context.Context, b JobsBackend, username string) ([]model.DubbingJob, error) {
		return b.UserDubbings(ctx, username)
	},
	render: results.Renderer.FromDubbing,
}

// lookup returns the cached terminal snapshot when present, otherwise it
// fetches from the backend and caches the result once it is terminal.
func (k jobKind[T]) lookup(ctx context.Context, d *Deps, id string) (T, bool, error) {
	if snap, ok := cache.Lookup[T](ctx, d.Cache, k.name, id); ok {
		return snap, true, nil
	}
	job, err := k.fetch(ctx, d.Backend, id)
	if err != nil {
		metrics.RecordPoll(k.name, "error")
		return job, false, err
	}
	metrics.RecordPoll(k.name, "ok")
	_, _ = cache.Store(ctx, d.Cache, k.name, id, job)
	return job, false, nil
}

func (k jobKind[T]) statusHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := strings.TrimSpace(c.Params("id"))
		if id == "" {
			return errorJSON(c, fiber.StatusBadRequest, "BAD_REQUEST", "Missing job id", nil)
		}
		job, hit, err := k.lookup(c.Context(), depsFrom(c), id)
		if err != nil {
			return backendFailed(c, err)
		}
		c.Set("X-Cache", cacheHeader(hit))
		return c.JSON(job)
	}
}

func (k jobKind[T]) resultsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := strings.TrimSpace(c.Params("id"))
		d := depsFrom(c)
		job, hit, err := k.lookup(c.Context(), d, id)
		if err != nil {
			return backendFailed(c, err)
		}
		c.Set("X-Cache", cacheHeader(hit))
		return c.JSON(toResultsResponse(d.Renderer, k.render(d.Renderer, job)))
	}
}

func (k jobKind[T]) userHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		username := strings.TrimSpace(c.Params("username"))
		if username == "" {
			return errorJSON(c, fiber.StatusBadRequest, "BAD_REQUEST", "Missing username", nil)
		}
		list, err := k.list(c.Context(), depsFrom(c).Backend, username)
		if err != nil {
			return backendFailed(c, err)
		}
		if list == nil {
			list = []T{}
		}
		return c.JSON(list)
	}
}

// eventsHandler streams status changes as server-sent events until the
// job is terminal, the client goes away or the wait bound passes. Events:
// "status" for every change, "error" for a failed poll, "done" at the end.
func (k jobKind[T]) eventsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := strings.TrimSpace(c.Params("id"))
		if id == "" {
			return errorJSON(c, fiber.StatusBadRequest, "BAD_REQUEST", "Missing job id", nil)
		}
		cfg := configFrom(c)
		d := depsFrom(c)
		logger := loggerFrom(c).With("kind", k.name, "job_id", id)

		interval := time.Duration(cfg.Poller.IntervalMs) * time.Millisecond
		maxWait := time.Duration(cfg.Poller.MaxWaitMinutes) * time.Minute

		c.Set("Content-Type", "text/event-stream")
		c.Set("Cache-Control", "no-cache")
		c.Set("Connection", "keep-alive")
		c.Set("X-Accel-Buffering", "no")

		c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
			ctx, cancel := context.WithTimeout(context.Background(), maxWait)
			defer cancel()

			notFound := false
			send := func(event string, v interface{}) {
				payload, err := json.Marshal(v)
				if err != nil {
					return
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
				if err := w.Flush(); err != nil {
					// Client disconnected.
					cancel()
				}
			}

			p := jobs.Poller[T]{
				Fetch: func(ctx context.Context, id string) (T, error) {
					job, _, err := k.lookup(ctx, d, id)
					return job, err
				},
				Interval:  interval,
				Immediate: true,
				Logger:    logger,
				OnUpdate:  func(job T) { send("status", job) },
				OnError: func(err error) {
					if errors.Is(err, backend.ErrNotFound) {
						notFound = true
						send("error", ErrorResponse{Success: false, Code: "JOB_NOT_FOUND", Error: "Job not found"})
						cancel()
						return
					}
					send("error", ErrorResponse{Success: false, Code: "POLL_FAILED", Error: err.Error()})
				},
			}

			job, err := p.Poll(ctx, id)
			if err != nil {
				reason := err.Error()
				if notFound {
					reason = "job not found"
				}
				send("done", fiber.Map{"terminal": false, "reason": reason})
				return
			}
			send("done", fiber.Map{"terminal": true, "status": job.JobStatus()})
		}))
		return nil
	}
}

func cacheHeader(hit bool) string {
	if hit {
		return "HIT"
	}
	return "MISS"
}

func createShortsHandler(c *fiber.Ctx) error {
	var body validate.ShortsForm
	if err := c.BodyParser(&body); err != nil {
		return invalidJSON(c)
	}
	req, err := validate.Shorts(body)
	if err != nil {
		if fe, ok := validate.AsFieldErrors(err); ok {
			return validationFailed(c, fe)
		}
		return errorJSON(c, fiber.StatusBadRequest, "VALIDATION_FAILED", err.Error(), nil)
	}

	out, err := depsFrom(c).Backend.CreateShorts(c.Context(), req)
	if err != nil {
		return backendFailed(c, err)
	}
	loggerFrom(c).Info("shorts_job_created", "job_id", out.Processing.ID.String(), "num_shorts", req.NumShorts)
	return c.Status(fiber.StatusAccepted).JSON(out)
}

func createDubbingHandler(c *fiber.Ctx) error {
	var body validate.DubbingForm
	if err := c.BodyParser(&body); err != nil {
		return invalidJSON(c)
	}
	req, err := validate.Dubbing(body)
	if err != nil {
		if fe, ok := validate.AsFieldErrors(err); ok {
			return validationFailed(c, fe)
		}
		return errorJSON(c, fiber.StatusBadRequest, "VALIDATION_FAILED", err.Error(), nil)
	}

	out, err := depsFrom(c).Backend.CreateDubbing(c.Context(), req)
	if err != nil {
		return backendFailed(c, err)
	}
	loggerFrom(c).Info("dubbing_job_created", "job_id", out.Processing.ID.String(), "target_language", req.TargetLanguage)
	return c.Status(fiber.StatusAccepted).JSON(out)
}

// dubbingOptionsHandler lists the languages and voices the form offers.
func dubbingOptionsHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"sourceLanguages": []string{validate.DefaultSourceLanguage},
		"targetLanguages": validate.TargetLanguages,
		"voices":          validate.Voices,
	})
}
