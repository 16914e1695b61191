package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warrenlabs/warren/internal/config"
	"github.com/warrenlabs/warren/internal/consumer"
	"github.com/warrenlabs/warren/internal/policy"
	"github.com/warrenlabs/warren/internal/store"
	"github.com/warrenlabs/warren/pkg/broker"
)

func main() {
	os.Exit(run())
}

// run contains the main logic and returns an exit code.
// This separation makes the logic testable and ensures deferred functions run.
func run() int {
	configPath := flag.String("config", "", "Path to warren.yml (default ./warren.yml or $WARREN_CONFIG)")
	flag.Parse()

	path := *configPath
	if path == "" {
		path = os.Getenv("WARREN_CONFIG")
	}
	if path == "" {
		path = "warren.yml"
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.Printf("[ERROR] Configuration error: %v", err)
		return 1
	}

	consumerID := cfg.Consumer.ID
	if consumerID == "" {
		consumerID, err = os.Hostname()
		if err != nil {
			log.Printf("[ERROR] No consumer id configured and hostname unavailable: %v", err)
			return 1
		}
	}

	log.Printf("[INFO] warrend starting, instance='%s' consumer='%s'", cfg.Instance, consumerID)

	// Connect under the consumer identity. Everything this process can do
	// to the store is bounded by that role's grants.
	s, err := store.New(cfg.RedisOptions(policy.RoleConsumer), cfg.Instance, policy.RoleConsumer, policy.Default())
	if err != nil {
		log.Printf("[ERROR] Failed to open store: %v", err)
		return 1
	}
	defer func() {
		if err := s.Close(); err != nil {
			log.Printf("[ERROR] Error closing store: %v", err)
		}
	}()

	// Verify connectivity before committing to the loop.
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = s.Ping(pingCtx)
	cancel()
	if err != nil {
		log.Printf("[ERROR] Store unreachable: %v", err)
		return 1
	}

	b := broker.NewConsumer(s, consumerID)
	b.SetLeaseTTL(config.Duration(cfg.Consumer.LeaseTTL, broker.DefaultLeaseTTL))

	if cfg.Consumer.ExecutorURL == "" {
		log.Printf("[ERROR] consumer.executor_url must be configured")
		return 1
	}
	taskTimeout := config.Duration(cfg.Consumer.TaskTimeout, 2*time.Minute)
	executor := consumer.NewHTTPExecutor(cfg.Consumer.ExecutorURL, taskTimeout)

	engine := consumer.New(b, executor, consumer.Config{
		ConsumerID:        consumerID,
		TakeTimeout:       config.Duration(cfg.Consumer.TakeTimeout, 5*time.Second),
		TaskTimeout:       taskTimeout,
		HeartbeatInterval: config.Duration(cfg.Consumer.HeartbeatInterval, 15*time.Second),
	})

	healthServer := consumer.NewHealthServer(s, cfg.Consumer.HealthPort)
	healthServer.Start()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := engine.Start(ctx); err != nil {
		log.Printf("[ERROR] Engine error: %v", err)
		return 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[ERROR] Health server shutdown error: %v", err)
	}

	return 0
}
