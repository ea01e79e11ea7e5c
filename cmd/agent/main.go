// Reference worker agent: polls the dispatcher for eligible jobs, claims
// one, runs the scan processor and submits the completion report.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"yarad/internal/config"
	"yarad/internal/logger"
	"yarad/internal/workers/agentrunner"
)

func main() {
	cfg, _ := config.Load()
	log := logger.New(cfg.LogFormat)
	if cfg.AgentAuth == "" {
		log.Error("AGENT_AUTH is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := agentrunner.NewClient(cfg.DispatcherURL, cfg.AgentAuth)
	agentrunner.Run(ctx, client, agentrunner.NoopProcessor{}, 2, time.Duration(cfg.PollSeconds)*time.Second)
	log.Info("agent started", "dispatcher", cfg.DispatcherURL)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutting down", "signal", sig.String())
	cancel()
	time.Sleep(300 * time.Millisecond)
}
