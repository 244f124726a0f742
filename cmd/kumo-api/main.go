package main

import (
	"flag"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"

	"kumo/internal/challenge"
	"kumo/internal/config"
	server "kumo/internal/http"
	"kumo/internal/rule"
	"kumo/internal/runtime"
	"kumo/internal/webview"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	cfg := config.Load(*configPath)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.Logging.Level),
	}))

	rules, err := rule.LoadDir(cfg.Rules.Dir)
	if err != nil {
		// Individual bad rules are reported but do not stop the server
		// when at least one rule loaded.
		if len(rules) == 0 {
			log.Fatalf("load rules: %v", err)
		}
		logger.Warn("some rules failed to load", "error", err)
	}
	logger.Info("rules loaded", "count", len(rules), "dir", cfg.Rules.Dir)

	opts := &runtime.Options{
		Logger:        logger,
		BaseDir:       cfg.Rules.Dir,
		RespectRobots: cfg.Robots.Respect,
	}

	if cfg.Browser.Enabled {
		provider := webview.NewRodProvider()
		provider.Headless = cfg.Browser.Headless
		opts.WebView = provider
	}

	if strings.EqualFold(cfg.CredentialCache.Backend, "redis") {
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("invalid redis url: %v", err)
		}
		opts.CredentialCache = challenge.NewRedisCache(redis.NewClient(opt), "")
	}

	s := server.NewServer(cfg, rules, opts, logger)
	if err := s.Listen(); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

func logLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
