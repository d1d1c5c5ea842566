package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"podshorts/internal/media"
	"podshorts/internal/validate"
)

var errUploadsDisabled = errors.New("cloudinary is not configured (set CLOUDINARY_CLOUD_NAME and credentials)")

// UploadCmd groups the media upload commands.
func UploadCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload podcast media to Cloudinary",
	}
	cmd.AddCommand(uploadYouTubeCmd(app))
	cmd.AddCommand(uploadFileCmd(app))
	return cmd
}

func uploadYouTubeCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "youtube <youtube-url>",
		Short: "Republish a YouTube video's audio",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			form, err := validate.YouTubeUpload(validate.YouTubeUploadForm{YouTubeURL: args[0]})
			if err != nil {
				return reportInvalid(cmd, err)
			}
			if app.Uploader == nil || app.Audio == nil {
				return errUploadsDisabled
			}

			ctx := cmd.Context()
			audio, err := app.Audio.OpenAudio(ctx, form.YouTubeURL)
			if err != nil {
				return fmt.Errorf("ytdl download error: %w", err)
			}
			defer audio.Stream.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "Uploading audio of %q\n", audio.Title)
			up, err := app.Uploader.UploadStream(ctx, audio.Stream, media.UploadParams{
				Folder:   app.Config.Cloudinary.YouTubeFolder,
				Filename: audio.Filename(),
				Tags:     []string{"youtube", audio.VideoID},
			})
			if err != nil {
				return uploadErr(err)
			}
			printUpload(cmd, up)
			return nil
		},
	}
}

func uploadFileCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "file <path>",
		Short: "Upload a local MP4, AVI or MOV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			st, err := f.Stat()
			if err != nil {
				return err
			}

			maxBytes := int64(app.Config.Uploads.MaxFileMB) << 20
			info, err := validate.File(filepath.Base(args[0]), "", st.Size(), f, maxBytes)
			if err != nil {
				return reportInvalid(cmd, err)
			}
			if app.Uploader == nil {
				return errUploadsDisabled
			}
			if _, err := f.Seek(0, io.SeekStart); err != nil {
				return err
			}

			up, err := app.Uploader.UploadSeeker(cmd.Context(), f, media.UploadParams{
				Folder:   app.Config.Cloudinary.FileFolder,
				Filename: info.Filename,
				Tags:     []string{"upload"},
			})
			if err != nil {
				return uploadErr(err)
			}
			printUpload(cmd, up)
			return nil
		},
	}
}

func uploadErr(err error) error {
	if errors.Is(err, media.ErrRetriesExhausted) {
		return fmt.Errorf("cloudinary upload failed after retries: %w", err)
	}
	return fmt.Errorf("cloudinary upload failed: %w", err)
}

func printUpload(cmd *cobra.Command, up *media.Upload) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Uploaded:", up.SecureURL)
	fmt.Fprintf(out, "  public id: %s\n  attempts:  %d\n", up.PublicID, up.Attempts)
}
