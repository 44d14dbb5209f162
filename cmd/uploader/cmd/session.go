package cmd

import (
	"fmt"
	"time"

	"github.com/docker/go-units"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <session-id>",
	Short: "release an unfinished upload session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newBackend().Cancel(cmd.Context(), args[0]); err != nil {
			return err
		}
		color.New(color.FgYellow).Fprintf(cmd.OutOrStdout(), "upload session %s cancelled\n", args[0])
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <video-id>",
	Short: "show the status of an uploaded video",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := newBackend().Video(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "id:       %s\n", v.Id)
		fmt.Fprintf(w, "file:     %s (%s)\n", v.Filename, v.ContentType)
		fmt.Fprintf(w, "size:     %s\n", units.BytesSize(float64(v.Size)))
		fmt.Fprintf(w, "status:   %s\n", v.Status)
		if v.CreatedAt > 0 {
			fmt.Fprintf(w, "created:  %s\n", time.Unix(v.CreatedAt, 0).Format(time.RFC3339))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cancelCmd, statusCmd)
}
