package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/time/rate"

	"github.com/athulya-anil/axon-orchestrator/pkg/client"
	"github.com/athulya-anil/axon-orchestrator/pkg/config"
	"github.com/athulya-anil/axon-orchestrator/pkg/rpc"
	"github.com/athulya-anil/axon-orchestrator/pkg/worker"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := config.NewLogger(cfg, os.Stderr)
	slog.SetDefault(logger)

	if err := run(cfg.Worker, logger); err != nil {
		logger.Error("worker exited", "error", err)
		os.Exit(1)
	}
}

func run(wc config.WorkerConfig, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	target := wc.Target()
	logger.Info("connecting to orchestrator", "transport", wc.Transport, "target", target)

	var coord worker.Coordinator
	switch wc.Transport {
	case config.TransportHTTP:
		coord = client.NewClient(target)
	default:
		c, err := rpc.Dial(target)
		if err != nil {
			return err
		}
		defer c.Close()
		coord = c
	}

	w := worker.NewWorker(wc.ID, coord, worker.EchoHandler(wc.ID),
		worker.WithLogger(logger),
		worker.WithPollRate(rate.Limit(wc.PollRate), wc.PollBurst),
		worker.WithHeartbeatInterval(wc.HeartbeatInterval),
		worker.WithCompleteRetries(wc.CompleteRetries, wc.RetryBackoff),
	)
	return w.Run(ctx)
}
