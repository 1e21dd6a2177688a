package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/dmorgan81/sdgen/internal/handler"
	"github.com/dmorgan81/sdgen/internal/inject"
	"github.com/dmorgan81/sdgen/internal/log"
	"github.com/samber/do"
)

func main() {
	level := new(slog.LevelVar)
	level.Set(log.ParseLevel(os.Getenv("LOG_LEVEL")))
	logger := log.New(os.Stderr, level)
	ctx := log.NewContext(context.Background(), logger)
	injector := inject.Setup(ctx, level)

	handler, err := do.Invoke[*handler.Handler](injector)
	if err != nil {
		logger.Error("failed to set up handler", "error", err)
		os.Exit(1)
	}
	lambda.StartWithOptions(handler.Handle, lambda.WithContext(ctx), lambda.WithEnableSIGTERM(func() {
		_ = injector.Shutdown()
	}))
}
