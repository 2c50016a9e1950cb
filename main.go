package main

import (
	"context"
	"fmt"
	"os"

	"github.com/tphakala/faceattend/cmd"
	"github.com/tphakala/faceattend/internal/conf"
	"github.com/tphakala/faceattend/internal/logger"
)

// buildDate and version are set at build time with -ldflags.
var (
	buildDate string
	version   = "dev"
)

func main() {
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		return 1
	}
	settings.Version = version
	settings.BuildDate = buildDate

	rootCmd := cmd.RootCommand(settings)
	err = rootCmd.ExecuteContext(context.Background())

	if flushErr := logger.Global().Flush(); flushErr != nil {
		fmt.Fprintf(os.Stderr, "Error flushing logs: %v\n", flushErr)
	}
	_ = logger.Global().Close()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
