package cmd

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/docker/go-units"
	"github.com/fatih/color"
	"github.com/molpadia/molpareplay/internal/upload"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "upload a video file",
	Long:  "upload a video file in parts to pre-signed storage URLs. Interrupting the command cancels the upload.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		partSize, err := byteSize("part-size")
		if err != nil {
			return err
		}
		maxSize, err := byteSize("max-size")
		if err != nil {
			return err
		}

		file, err := upload.OpenFile(args[0])
		if err != nil {
			return err
		}
		defer file.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		out := io.Discard
		if viper.GetBool("verbose") {
			out = cmd.ErrOrStderr()
		}
		c := upload.NewController(newBackend(), nil, upload.Config{
			PartSize:      partSize,
			MaxConcurrent: viper.GetInt("concurrency"),
			MaxFileSize:   maxSize,
			PartTimeout:   viper.GetDuration("part-timeout"),
			Logger:        log.New(out, "", log.LstdFlags),
		})

		var completed, total atomic.Int64
		progress := mpb.New(mpb.WithOutput(cmd.ErrOrStderr()), mpb.WithWidth(48))
		bar := progress.AddBar(100,
			mpb.PrependDecorators(
				decor.Name(fmt.Sprintf("%s (%s) ", file.Name, units.HumanSize(float64(file.Size)))),
				decor.Any(func(decor.Statistics) string {
					return fmt.Sprintf("%d/%d parts", completed.Load(), total.Load())
				}),
			),
			mpb.AppendDecorators(decor.Percentage()),
		)

		h, err := c.Start(ctx, file, upload.Callbacks{
			OnProgress: func(p upload.Progress) {
				completed.Store(int64(p.Completed))
				total.Store(int64(p.Total))
				bar.SetCurrent(int64(p.Percent))
			},
		})
		if err != nil {
			bar.Abort(true)
			progress.Wait()
			return err
		}

		id, err := h.Wait()
		if err != nil {
			bar.Abort(false)
			progress.Wait()
			if upload.KindOf(err) == upload.KindCancelled {
				color.New(color.FgYellow).Fprintf(cmd.ErrOrStderr(), "upload of %s was cancelled\n", file.Name)
				return nil
			}
			return err
		}
		progress.Wait()
		color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "uploaded %s as video %s\n", file.Name, id)
		return nil
	},
}

func init() {
	flags := uploadCmd.Flags()
	flags.String("part-size", units.BytesSize(upload.DefaultPartSize), "requested size of each part")
	flags.String("max-size", units.BytesSize(upload.DefaultMaxFileSize), "largest file accepted")
	flags.IntP("concurrency", "c", upload.DefaultMaxConcurrent, "number of parts uploaded at the same time")
	flags.Duration("part-timeout", upload.DefaultPartTimeout, "timeout of a single part upload")

	if err := viper.BindPFlags(flags); err != nil {
		panic(err)
	}
	rootCmd.AddCommand(uploadCmd)
}
