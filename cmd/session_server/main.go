package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/balaji-21cb003/browser-use-webrtc-sub000/internal/api"
	"github.com/balaji-21cb003/browser-use-webrtc-sub000/internal/config"
	"github.com/balaji-21cb003/browser-use-webrtc-sub000/internal/controller"
	"github.com/balaji-21cb003/browser-use-webrtc-sub000/internal/netutil"
	"github.com/balaji-21cb003/browser-use-webrtc-sub000/internal/notify"
	"github.com/balaji-21cb003/browser-use-webrtc-sub000/internal/relay"
	"github.com/balaji-21cb003/browser-use-webrtc-sub000/internal/session"
	"github.com/balaji-21cb003/browser-use-webrtc-sub000/internal/snapshot"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		if _, writeErr := io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n"); writeErr != nil {
			slog.Debug("logger setup stderr write failed", "error", writeErr)
		}
		os.Exit(1)
	}

	slog.Info("session_server config loaded",
		"bind_addr", cfg.BindAddr,
		"headless", cfg.Headless,
		"start_url", cfg.StartURL,
		"profile_root", cfg.ProfileRoot,
		"detect_intervals_ms", []int64{
			cfg.DetectFastInterval.Milliseconds(),
			cfg.DetectNormalInterval.Milliseconds(),
			cfg.DetectIdleInterval.Milliseconds(),
		},
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
	)

	bindAddr, err := netutil.SelectBindAddr(cfg.BindAddr, cfg.BindCandidates, cfg.BindAutoFallback)
	if err != nil {
		slog.Error("failed to select bind address", "preferred", cfg.BindAddr, "error", err)
		os.Exit(1)
	}

	manager := session.NewManager(cfg)
	broker := relay.NewBroker()
	notifier := notify.New(cfg.NotifyEndpoint)

	screenshots, err := snapshot.NewStore(cfg.ScreenshotDir)
	if err != nil {
		slog.Error("failed to open screenshot store", "dir", cfg.ScreenshotDir, "error", err)
		os.Exit(1)
	}

	svc := controller.NewService(manager, broker, notifier, screenshots)
	h := api.NewServer(svc, broker)

	srv := &http.Server{Addr: bindAddr, Handler: h}

	go func() {
		slog.Info("session_server listening", "addr", bindAddr, "docs", "http://"+bindAddr+"/docs")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("session_server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down, closing sessions")
	manager.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("session_server shutdown failed", "error", err)
	}
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll("logs", 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
