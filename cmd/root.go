package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/faceattend/cmd/enroll"
	"github.com/tphakala/faceattend/cmd/identity"
	"github.com/tphakala/faceattend/cmd/report"
	"github.com/tphakala/faceattend/cmd/serve"
	"github.com/tphakala/faceattend/internal/conf"
	"github.com/tphakala/faceattend/internal/logger"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "faceattend",
		Short:         "Face recognition attendance node",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	if err := setupFlags(rootCmd, settings); err != nil {
		// flag definitions are static, binding them only fails on programmer error
		panic(err)
	}

	rootCmd.AddCommand(
		serve.Command(settings),
		enroll.Command(settings),
		identity.Command(settings),
		report.Command(settings),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return initialize(settings)
	}

	return rootCmd
}

// initialize runs after flag parsing. Flags write straight into settings, so
// the merged result is validated again before the logger is configured.
func initialize(settings *conf.Settings) error {
	if err := conf.ValidateSettings(settings); err != nil {
		return err
	}

	if settings.Debug {
		settings.Logging.DefaultLevel = "debug"
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = "debug"
		}
	}

	cl, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(cl)
	return nil
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.Main.DataDir, "datadir", viper.GetString("main.datadir"), "Directory for the face store, photos and attendance logs")
	rootCmd.PersistentFlags().StringVar(&settings.Camera.Source, "source", viper.GetString("camera.source"), "Camera source: RTSP/HTTP URL, device index, video file or image directory")
	rootCmd.PersistentFlags().StringVar(&settings.Camera.Backend, "backend", viper.GetString("camera.backend"), "Camera backend: ffmpeg, opencv or images")
	rootCmd.PersistentFlags().Float64VarP(&settings.Recognition.SimilarityThreshold, "threshold", "t", viper.GetFloat64("recognition.similaritythreshold"), "Minimum cosine similarity for a match, between 0.0 and 1.0")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
