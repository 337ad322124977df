package main

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"plant-monitor/internal/app"
	"plant-monitor/internal/config"
)

func main() {
	logger, _ := zap.NewProduction(zap.AddStacktrace(zap.FatalLevel))
	defer logger.Sync()
	sugar := logger.Sugar()

	ctx := context.Background()
	cfg, err := config.LoadConfig(ctx)
	if err != nil {
		sugar.Fatalw("failed to load config", "error", err)
	}

	if lvl, err := zapcore.ParseLevel(cfg.LogLevel); err == nil && lvl != zapcore.InfoLevel {
		zc := zap.NewProductionConfig()
		zc.Level = zap.NewAtomicLevelAt(lvl)
		if l, err := zc.Build(zap.AddStacktrace(zap.FatalLevel)); err == nil {
			logger = l
			defer logger.Sync()
			sugar = logger.Sugar()
		}
	}

	if err := app.Run(ctx, cfg, sugar); err != nil {
		sugar.Fatalw("plant monitor stopped with error", "error", err)
	}
}
