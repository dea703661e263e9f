package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/vitos/copy_follower/internal/app"
	"github.com/vitos/copy_follower/internal/config"
	"github.com/vitos/copy_follower/internal/infrastructure/logger"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config")
	plansPath := flag.String("plans", "", "override follow.plans_path")
	agent := flag.String("agent", "", "override follow.agent")
	riskOnly := flag.Bool("risk-only", false, "assess and size plans without placing orders")
	once := flag.Bool("once", false, "run a single pass even when an interval is configured")
	flag.Parse()

	// 1. Load Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *plansPath != "" {
		cfg.Follow.PlansPath = *plansPath
	}
	if *agent != "" {
		cfg.Follow.Agent = *agent
	}
	if *riskOnly {
		cfg.Follow.RiskOnly = true
	}
	if *once {
		cfg.Follow.Interval = 0
	}

	// 2. Init Logger
	log, err := logger.New(cfg.Logging)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("Starting follower",
		zap.String("exchange", cfg.Exchange.Name),
		zap.String("agent", cfg.Follow.Agent),
		zap.Bool("risk_only", cfg.Follow.RiskOnly),
		zap.Duration("interval", cfg.Follow.Interval))

	if err := app.Run(ctx, cfg, log); err != nil {
		if errors.Is(err, app.ErrPlansFailed) {
			log.Error("Pass finished with failures", zap.Error(err))
			os.Exit(2)
		}
		log.Error("Follower stopped", zap.Error(err))
		os.Exit(1)
	}
	log.Info("Follower stopped")
}
