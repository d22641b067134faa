package main

import (
	"context"
	"log"
	"os"

	"pkt.systems/psi"
	"pkt.systems/pslog"

	"github.com/markis/newsdesk/internal/args"
	"github.com/markis/newsdesk/internal/config"
)

func main() {
	psi.Run(submain)
}

func submain(ctx context.Context) int {
	logger := pslog.LoggerFromEnv(
		pslog.WithEnvWriter(os.Stderr),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeConsole}),
	)
	ctx = pslog.ContextWithLogger(ctx, logger)
	log.SetOutput(pslog.LogLogger(logger).Writer())
	log.SetFlags(0)

	cfg, err := config.LoadConfig(ctx)
	if err != nil {
		logger.With("err", err).Error("failed to load config")
		return 1
	}

	arguments, err := args.ParseArgs(ctx, *cfg, os.Args[1:])
	if err != nil {
		logger.With("err", err).Error("invalid arguments")
		return 1
	}
	if arguments.Command == "" {
		return 0
	}

	if err := run(ctx, *cfg, arguments, os.Stdout, os.Stdin); err != nil {
		logger.With("err", err, "command", arguments.Command).Error("newsdesk command failed")
		return 1
	}
	return 0
}
