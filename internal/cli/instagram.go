package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"podshorts/internal/validate"
)

func InstagramCmd(app *App) *cobra.Command {
	var (
		username string
		password string
		caption  string
	)
	cmd := &cobra.Command{
		Use:   "instagram <clip-url>",
		Short: "Post a clip to Instagram as a Reel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := validate.Instagram(validate.InstagramForm{
				VideoPath: args[0],
				Username:  username,
				Password:  password,
				Caption:   caption,
			})
			if err != nil {
				return reportInvalid(cmd, err)
			}

			out, err := app.Backend.UploadInstagram(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("instagram upload: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), out.Message)
			if out.MediaID != "" {
				fmt.Fprintln(cmd.OutOrStdout(), "  media id:", out.MediaID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "ig-user", os.Getenv("INSTAGRAM_USERNAME"), "Instagram username (env INSTAGRAM_USERNAME)")
	cmd.Flags().StringVar(&password, "ig-password", os.Getenv("INSTAGRAM_PASSWORD"), "Instagram password (env INSTAGRAM_PASSWORD)")
	cmd.Flags().StringVarP(&caption, "caption", "c", "", "Reel caption")
	return cmd
}
