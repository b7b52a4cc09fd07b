package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/sundayezeilo/tips/internal/config"
)

func TestSetupLogger(t *testing.T) {
	tests := []struct {
		level      string
		enabled    slog.Level
		suppressed slog.Level
	}{
		{"debug", slog.LevelDebug, slog.LevelDebug - 1},
		{"info", slog.LevelInfo, slog.LevelDebug},
		{"warn", slog.LevelWarn, slog.LevelInfo},
		{"error", slog.LevelError, slog.LevelWarn},
		{"bogus", slog.LevelInfo, slog.LevelDebug},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger := SetupLogger(tt.level)
			ctx := context.Background()

			if !logger.Enabled(ctx, tt.enabled) {
				t.Errorf("expected %v to be enabled", tt.enabled)
			}
			if logger.Enabled(ctx, tt.suppressed) {
				t.Errorf("expected %v to be suppressed", tt.suppressed)
			}
		})
	}
}

func TestOpenStore_Unreachable(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping network test in short mode")
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := OpenStore(context.Background(), &config.DatabaseConfig{
		Host:           "127.0.0.1",
		Port:           "1",
		User:           "tips",
		Password:       "tips",
		Name:           "tips",
		SSLMode:        "disable",
		ConnectTimeout: time.Second,
		AutoMigrate:    true,
	}, logger)

	if err == nil {
		t.Fatal("expected an error for an unreachable database")
	}
}
