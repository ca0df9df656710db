package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/vk/magetbrain-bids/internal/app"
	"github.com/vk/magetbrain-bids/internal/catalog"
	"github.com/vk/magetbrain-bids/internal/cli"
	"github.com/vk/magetbrain-bids/internal/pipeline"
)

// main is the entrypoint for the MAGeTbrain BIDS App.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Stdout, os.Args[1:])
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps an error from run to the process exit status. A failed
// external command passes its own status through; an unknown segmentation
// type is a usage error.
func exitCode(err error) int {
	var exitErr *cli.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if errors.Is(err, catalog.ErrUnknownSegmentation) {
		return 2
	}
	var cmdErr *pipeline.ExitCodeError
	if errors.As(err, &cmdErr) && cmdErr.Code > 0 {
		return cmdErr.Code
	}
	return 1
}

// run encapsulates the main application logic for easier testing and error handling.
func run(ctx context.Context, outW io.Writer, args []string) error {
	appConfig, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	return app.NewApp(outW, appConfig).Run(ctx)
}
