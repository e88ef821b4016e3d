package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/alejandrodnm/kalshibot/config"
)

const usage = `usage: kalshibot <start|stop|status|restart> [flags]

  start    run the trading daemon in the foreground
  stop     signal a running daemon to terminate
  status   print the last persisted daemon state
  restart  stop a running daemon, then start

flags:
`

func main() {
	fs := flag.NewFlagSet("kalshibot", flag.ExitOnError)
	configPath := fs.String("config", "config/config.yaml", "path to config file")
	paper := fs.Bool("paper", false, "force paper mode (no real orders)")
	live := fs.Bool("live", false, "force live mode (overrides config)")
	takeProfit := fs.Float64("take-profit", 0, "override take profit pct (0 = config value)")
	stopLoss := fs.Float64("stop-loss", 0, "override stop loss pct (0 = config value)")
	trailing := fs.Float64("trailing", 0, "override trailing stop pct (0 = config value)")
	verbose := fs.Bool("verbose", false, "set log level to debug")
	logFormat := fs.String("format", "", "log format: text|json (overrides config)")
	table := fs.Bool("table", false, "print full tables per cycle (default: compact 1-line)")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fs.PrintDefaults()
	}

	if len(os.Args) < 2 {
		fs.Usage()
		os.Exit(2)
	}
	verb := os.Args[1]
	fs.Parse(os.Args[2:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if *paper {
		cfg.Trading.Mode = "paper"
	}
	if *live {
		cfg.Trading.Mode = "live"
	}
	if *takeProfit > 0 {
		cfg.Exits.TakeProfitPct = *takeProfit
	}
	if *stopLoss > 0 {
		cfg.Exits.StopLossPct = *stopLoss
	}
	if *trailing > 0 {
		cfg.Exits.TrailingStopPct = *trailing
	}
	setupLogger(cfg.Log)

	switch verb {
	case "start":
		err = runStart(cfg, *table)
	case "stop":
		err = runStop(cfg)
	case "status":
		err = runStatus(cfg)
	case "restart":
		if err = runStop(cfg); err == nil {
			err = runStart(cfg, *table)
		}
	default:
		fs.Usage()
		os.Exit(2)
	}

	if err != nil {
		slog.Error("kalshibot exited with error", "verb", verb, "err", err)
		os.Exit(1)
	}
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
