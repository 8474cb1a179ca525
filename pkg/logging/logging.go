package logging

import (
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"

	"github.com/import-yuefeng/vpn-libraries/pkg/config"
)

func Init(cfg config.LoggingConfig) {
	switch cfg.Format {
	case "json":
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: cfg.Level,
		})))
	case "text":
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: cfg.Level,
		})))
	case "tint":
		slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
			Level:      cfg.Level,
			TimeFormat: time.DateTime,
		})))
	default:
		slog.Error("unsupported log format", "format", cfg.Format)
		os.Exit(1)
	}
}
