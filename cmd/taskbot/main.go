// Command taskbot runs the family task reminder service: the Telegram
// command bot plus the reminder scheduler, over a shared JSONBin
// document.
//
// Usage:
//
//	./taskbot                      # run with ~/.family-tasks/config.yaml
//	./taskbot -config custom.yaml
//
// Environment:
//
//	TELEGRAM_BOT_TOKEN   Bot API token (required)
//	JSONBIN_ID           Bin id of the shared document (required)
//	JSONBIN_ACCESS_KEY   Bin master key
//	MINI_APP_URL         URL of the companion mini app
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/din98/family-tasks/internal/access"
	"github.com/din98/family-tasks/internal/config"
	"github.com/din98/family-tasks/internal/family"
	"github.com/din98/family-tasks/internal/jsonbin"
	"github.com/din98/family-tasks/internal/scheduler"
	"github.com/din98/family-tasks/internal/task"
	"github.com/din98/family-tasks/internal/telegram"
)

func main() {
	configPath := flag.String("config", config.GetDefaultConfigPath(), "Path to configuration file")
	flag.Parse()

	// Local development convenience; absence of a .env file is fine.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	thresholds, err := scheduler.ParseThresholds(cfg.Scheduler.Thresholds)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	store := jsonbin.New(cfg.JSONBin.BinID, cfg.JSONBin.MasterKey,
		time.Duration(cfg.JSONBin.Timeout)*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("Interrupted. Shutting down...")
		cancel()
	}()

	registry := family.NewRegistry(store, cfg.Family.AllowTransfer)
	if err := registry.Load(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading family registry: %v\n", err)
		os.Exit(1)
	}

	repo := task.NewRepository(store)
	policy := access.NewPolicy(registry)
	sender := telegram.NewSender(cfg.Telegram.BotToken)

	if cfg.Scheduler.Enabled {
		sched := scheduler.New(repo, registry, sender,
			time.Duration(cfg.Scheduler.Interval)*time.Second, thresholds)
		go func() {
			if err := sched.Run(ctx); err != nil {
				log.Printf("[scheduler] Error: %v", err)
				cancel()
			}
		}()
	}

	bot := telegram.NewBot(sender, repo, registry, policy, cfg.Telegram.MiniAppURL)
	if err := bot.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Bot error: %v\n", err)
		os.Exit(1)
	}
}
