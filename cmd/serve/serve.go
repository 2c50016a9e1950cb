package serve

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/faceattend/internal/analysis"
	"github.com/tphakala/faceattend/internal/conf"
)

// Command creates the serve command which runs live recognition and the HTTP API.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run live attendance recognition",
		Long:  "Start the recognition loop on the configured camera and serve the HTTP API until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return analysis.RealtimeAttendance(ctx, settings)
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		fmt.Fprintf(os.Stderr, "error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().StringVarP(&settings.WebServer.Port, "port", "p", viper.GetString("webserver.port"), "HTTP API port")
	cmd.Flags().BoolVar(&settings.WebServer.Enabled, "web", viper.GetBool("webserver.enabled"), "Serve the HTTP API")
	cmd.Flags().BoolVar(&settings.Recognition.AutoStart, "autostart", viper.GetBool("recognition.autostart"), "Start recognition immediately")
	cmd.Flags().IntVar(&settings.Recognition.ConfirmFrames, "confirm-frames", viper.GetInt("recognition.confirmframes"), "Consecutive matches required before recording attendance")
	cmd.Flags().IntVar(&settings.Recognition.FrameSkip, "frame-skip", viper.GetInt("recognition.frameskip"), "Process every Nth frame")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}
