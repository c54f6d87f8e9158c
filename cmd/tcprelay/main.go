package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Versifine/tcprelay/internal/config"
	"github.com/Versifine/tcprelay/internal/logger"
	"github.com/Versifine/tcprelay/internal/proxy"
	"github.com/Versifine/tcprelay/internal/sockopt"
	"github.com/Versifine/tcprelay/internal/stats"
)

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	}); err != nil {
		slog.Error("Failed to init logger", "error", err)
		os.Exit(1)
	}

	if algos, err := sockopt.AvailableCongestionControl(); err != nil {
		slog.Warn("Failed to list congestion control algorithms", "error", err)
	} else {
		slog.Info("Available congestion control algorithms", "algorithms", algos)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	server := proxy.NewServer(
		cfg.ListenAddr(),
		cfg.TargetAddr(),
		proxy.WithTuning(cfg.SockoptOptions()),
		proxy.WithCopyBufferSize(cfg.Tuning.CopyBuffer),
	)
	tracker := stats.NewTracker(server.Bus())
	err = server.Start(ctx)
	slog.Info("Relay totals", "stats", tracker.Snapshot())
	if err != nil {
		slog.Error("Proxy server failed", "error", err)
		os.Exit(1)
	}
}

// loadConfig 依次应用默认值、配置文件和命令行参数
func loadConfig(args []string) (*config.Config, error) {
	fs := flag.NewFlagSet("tcprelay", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to config file (.yaml, .yml or .toml)")
	bind := fs.String("bind", "", "listen address, e.g. 0.0.0.0:50005")
	target := fs.String("target", "", "target address, e.g. 1.2.3.4:80")
	sendBuf := fs.Int("send-buf", -1, "SO_SNDBUF bytes applied to every connection")
	recvBuf := fs.Int("recv-buf", -1, "SO_RCVBUF bytes applied to every connection")
	congestion := fs.String("congestion", "", "TCP congestion control algorithm, e.g. bbr")
	copyBuf := fs.Int("copy-buf", -1, "copy buffer bytes per direction (default 131072)")
	logLevel := fs.String("log-level", "", "debug, info, warn or error")
	logFormat := fs.String("log-format", "", "auto, console, text or json")
	logFile := fs.String("log-file", "", "also append logs to this file")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", *configPath, err)
		}
		cfg = loaded
	}

	if *bind != "" {
		if err := config.SetAddr(*bind, &cfg.Listen.Host, &cfg.Listen.Port); err != nil {
			return nil, fmt.Errorf("-bind: %w", err)
		}
	}
	if *target != "" {
		if err := config.SetAddr(*target, &cfg.Target.Host, &cfg.Target.Port); err != nil {
			return nil, fmt.Errorf("-target: %w", err)
		}
	}
	if *sendBuf >= 0 {
		cfg.Tuning.SendBuffer = *sendBuf
	}
	if *recvBuf >= 0 {
		cfg.Tuning.RecvBuffer = *recvBuf
	}
	if *congestion != "" {
		cfg.Tuning.CongestionControl = *congestion
	}
	if *copyBuf >= 0 {
		cfg.Tuning.CopyBuffer = *copyBuf
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Logging.Format = *logFormat
	}
	if *logFile != "" {
		cfg.Logging.File = *logFile
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
