package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"podshorts/internal/config"
	"podshorts/internal/media"
	"podshorts/internal/model"
	"podshorts/internal/results"
	"podshorts/internal/validate"
	"podshorts/internal/youtube"
)

// Backend is the subset of the processing backend the CLI talks to.
type Backend interface {
	CreateShorts(ctx context.Context, req model.CreateShortsRequest) (*model.ShortsAccepted, error)
	ShortsStatus(ctx context.Context, id string) (model.ProcessingJob, error)
	UserShorts(ctx context.Context, username string) ([]model.ProcessingJob, error)
	CreateDubbing(ctx context.Context, req model.CreateDubbingRequest) (*model.DubbingAccepted, error)
	DubbingStatus(ctx context.Context, id string) (model.DubbingJob, error)
	UserDubbings(ctx context.Context, username string) ([]model.DubbingJob, error)
	UploadInstagram(ctx context.Context, req model.InstagramUploadRequest) (*model.InstagramUploadResult, error)
}

// Uploader republishes local or streamed media with retries.
type Uploader interface {
	UploadStream(ctx context.Context, r io.Reader, p media.UploadParams) (*media.Upload, error)
	UploadSeeker(ctx context.Context, rs io.ReadSeeker, p media.UploadParams) (*media.Upload, error)
}

// App carries the collaborators every command needs. Uploader and Audio
// are nil when Cloudinary is not configured.
type App struct {
	Config     *config.Config
	Backend    Backend
	Uploader   Uploader
	Audio      youtube.AudioSource
	Renderer   results.Renderer
	Downloader results.Downloader
	Logger     *slog.Logger
	Now        func() time.Time
}

func (a *App) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// NewRootCmd builds the command tree.
func NewRootCmd(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "podshorts",
		Short:         "Turn podcasts into short videos",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(SubmitCmd(app))
	root.AddCommand(TranslateCmd(app))
	root.AddCommand(StatusCmd(app))
	root.AddCommand(WaitCmd(app))
	root.AddCommand(HistoryCmd(app))
	root.AddCommand(ResultsCmd(app))
	root.AddCommand(UploadCmd(app))
	root.AddCommand(InstagramCmd(app))
	root.AddCommand(OptionsCmd())
	return root
}

// Execute runs the CLI until it finishes or the user interrupts it.
func Execute(app *App) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd(app).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

// reportInvalid prints field errors one per line and returns a short error
// for the exit status.
func reportInvalid(cmd *cobra.Command, err error) error {
	fe, ok := validate.AsFieldErrors(err)
	if !ok {
		return err
	}
	for _, line := range fe.Lines() {
		fmt.Fprintln(cmd.ErrOrStderr(), "  "+line)
	}
	return errors.New("invalid input")
}
