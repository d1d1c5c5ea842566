package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"podshorts/internal/backend"
	"podshorts/internal/jobs"
	"podshorts/internal/model"
	"podshorts/internal/results"
	"podshorts/internal/validate"
)

const (
	kindShorts  = "shorts"
	kindDubbing = "dubbing"
)

func usernameFlag(cmd *cobra.Command, dst *string) {
	cmd.Flags().StringVarP(dst, "username", "u", os.Getenv("PODSHORTS_USERNAME"), "account username or email (env PODSHORTS_USERNAME)")
}

func kindFlag(cmd *cobra.Command, dst *string) {
	cmd.Flags().StringVarP(dst, "kind", "k", kindShorts, "job kind: shorts|dubbing")
}

func checkKind(kind string) error {
	switch kind {
	case kindShorts, kindDubbing:
		return nil
	}
	return fmt.Errorf("invalid kind: %s (expected shorts|dubbing)", kind)
}

func SubmitCmd(app *App) *cobra.Command {
	var (
		username  string
		numShorts int
		captions  bool
		wait      bool
	)
	cmd := &cobra.Command{
		Use:   "submit <youtube-url>",
		Short: "Generate shorts from a YouTube video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			form := validate.ShortsForm{URL: args[0], Username: username, AddCaptions: &captions}
			if cmd.Flags().Changed("num-shorts") {
				form.NumShorts = &numShorts
			}
			req, err := validate.Shorts(form)
			if err != nil {
				return reportInvalid(cmd, err)
			}

			out, err := app.Backend.CreateShorts(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("create shorts job: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Shorts job %s accepted (%d clips requested)\n", out.Processing.ID, req.NumShorts)
			if !wait {
				return nil
			}
			return waitForShorts(cmd, app, out.Processing.ID.String())
		},
	}
	usernameFlag(cmd, &username)
	cmd.Flags().IntVarP(&numShorts, "num-shorts", "n", validate.DefaultNumShorts, "number of shorts to generate (1-5)")
	cmd.Flags().BoolVar(&captions, "captions", true, "add captions to the clips")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "wait for the job to finish")
	return cmd
}

func TranslateCmd(app *App) *cobra.Command {
	var (
		username string
		source   string
		target   string
		voice    string
		captions bool
		wait     bool
	)
	cmd := &cobra.Command{
		Use:   "translate <video-url>",
		Short: "Dub a video into another language",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := validate.Dubbing(validate.DubbingForm{
				URL:            args[0],
				Username:       username,
				SourceLanguage: source,
				TargetLanguage: target,
				Voice:          voice,
				AddCaptions:    &captions,
			})
			if err != nil {
				return reportInvalid(cmd, err)
			}

			out, err := app.Backend.CreateDubbing(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("create dubbing job: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Dubbing job %s accepted (%s, voice %s)\n", out.Processing.ID, req.TargetLanguage, req.Voice)
			if !wait {
				return nil
			}
			return waitForDubbing(cmd, app, out.Processing.ID.String())
		},
	}
	usernameFlag(cmd, &username)
	cmd.Flags().StringVar(&source, "source", validate.DefaultSourceLanguage, "source language")
	cmd.Flags().StringVarP(&target, "target", "t", "", "target language ("+strings.Join(validate.TargetLanguages, ", ")+")")
	cmd.Flags().StringVar(&voice, "voice", "", "voice ("+strings.Join(validate.Voices, ", ")+")")
	cmd.Flags().BoolVar(&captions, "captions", true, "add captions to the video")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "wait for the job to finish")
	return cmd
}

func StatusCmd(app *App) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show the current state of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkKind(kind); err != nil {
				return err
			}
			v, err := fetchView(cmd.Context(), app, kind, args[0])
			if err != nil {
				return err
			}
			return app.Renderer.WriteView(cmd.OutOrStdout(), v)
		},
	}
	kindFlag(cmd, &kind)
	return cmd
}

func WaitCmd(app *App) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "wait <job-id>",
		Short: "Poll a job until it completes or fails",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch kind {
			case kindShorts:
				return waitForShorts(cmd, app, args[0])
			case kindDubbing:
				return waitForDubbing(cmd, app, args[0])
			}
			return checkKind(kind)
		},
	}
	kindFlag(cmd, &kind)
	return cmd
}

func HistoryCmd(app *App) *cobra.Command {
	var (
		kind     string
		username string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List a user's jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkKind(kind); err != nil {
				return err
			}
			username = strings.TrimSpace(username)
			if username == "" {
				return errors.New("the --username flag is required")
			}

			var rows []results.HistoryRow
			switch kind {
			case kindShorts:
				list, err := app.Backend.UserShorts(cmd.Context(), username)
				if err != nil {
					return fmt.Errorf("list shorts: %w", err)
				}
				rows = results.ShortsRows(list)
			case kindDubbing:
				list, err := app.Backend.UserDubbings(cmd.Context(), username)
				if err != nil {
					return fmt.Errorf("list dubbings: %w", err)
				}
				rows = results.DubbingRows(list)
			}
			return results.WriteHistory(cmd.OutOrStdout(), rows, app.now())
		},
	}
	kindFlag(cmd, &kind)
	usernameFlag(cmd, &username)
	return cmd
}

func ResultsCmd(app *App) *cobra.Command {
	var (
		kind     string
		dir      string
		parallel int
	)
	cmd := &cobra.Command{
		Use:   "results <job-id>",
		Short: "Show a finished job's clips and optionally download them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkKind(kind); err != nil {
				return err
			}
			v, err := fetchView(cmd.Context(), app, kind, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if err := app.Renderer.WriteView(out, v); err != nil {
				return err
			}
			if dir == "" {
				return nil
			}
			if len(v.Clips) == 0 {
				return fmt.Errorf("job %s has no clips to download", v.JobID)
			}

			paths, err := app.Downloader.DownloadAll(cmd.Context(), v.Clips, dir, parallel)
			if err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Fprintln(out, "saved", p)
			}
			return nil
		},
	}
	kindFlag(cmd, &kind)
	cmd.Flags().StringVarP(&dir, "download", "d", "", "download the clips into this directory")
	cmd.Flags().IntVar(&parallel, "parallel", 3, "concurrent downloads")
	return cmd
}

// OptionsCmd lists the languages and voices a dubbing job accepts.
func OptionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "options",
		Short: "List dubbing languages and voices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Source languages:", validate.DefaultSourceLanguage)
			fmt.Fprintln(out, "Target languages:", strings.Join(validate.TargetLanguages, ", "))
			fmt.Fprintln(out, "Voices:", strings.Join(validate.Voices, ", "))
			return nil
		},
	}
}

func fetchView(ctx context.Context, app *App, kind, id string) (results.View, error) {
	switch kind {
	case kindDubbing:
		job, err := app.Backend.DubbingStatus(ctx, id)
		if err != nil {
			return results.View{}, fmt.Errorf("dubbing job %s: %w", id, err)
		}
		return app.Renderer.FromDubbing(job), nil
	default:
		job, err := app.Backend.ShortsStatus(ctx, id)
		if err != nil {
			return results.View{}, fmt.Errorf("shorts job %s: %w", id, err)
		}
		return app.Renderer.FromShorts(job), nil
	}
}

func waitForShorts(cmd *cobra.Command, app *App, id string) error {
	return waitFor[model.ProcessingJob](cmd, app, id, app.Backend.ShortsStatus, results.Renderer.FromShorts)
}

func waitForDubbing(cmd *cobra.Command, app *App, id string) error {
	return waitFor[model.DubbingJob](cmd, app, id, app.Backend.DubbingStatus, results.Renderer.FromDubbing)
}

// waitFor polls until the job is terminal and prints its result. Each
// status change is printed as it is seen. An unknown job stops the wait
// right away; other fetch errors are reported and retried.
func waitFor[T jobs.Snapshot](cmd *cobra.Command, app *App, id string, fetch jobs.Fetcher[T], render func(results.Renderer, T) results.View) error {
	cfg := app.Config
	maxWait := time.Duration(cfg.Poller.MaxWaitMinutes) * time.Minute
	ctx, cancel := context.WithTimeout(cmd.Context(), maxWait)
	defer cancel()

	out := cmd.OutOrStdout()
	var (
		last     jobs.Status
		fatalErr error
	)
	p := jobs.Poller[T]{
		Fetch:     fetch,
		Interval:  time.Duration(cfg.Poller.IntervalMs) * time.Millisecond,
		Immediate: true,
		Logger:    app.Logger,
		OnUpdate: func(job T) {
			if s := job.JobStatus(); s != last {
				last = s
				fmt.Fprintf(out, "%s  %s\n", app.now().Format("15:04:05"), s)
			}
		},
		OnError: func(err error) {
			if errors.Is(err, backend.ErrNotFound) {
				fatalErr = err
				cancel()
				return
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "poll failed: %v\n", err)
		},
	}

	job, err := p.Poll(ctx, id)
	if err != nil {
		if fatalErr != nil {
			return fmt.Errorf("job %s: %w", id, fatalErr)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("job %s still running after %s", id, maxWait)
		}
		return err
	}

	v := render(app.Renderer, job)
	if err := app.Renderer.WriteView(out, v); err != nil {
		return err
	}
	if v.Status == jobs.StatusFailed {
		return fmt.Errorf("job %s failed", id)
	}
	return nil
}
