package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/warrenlabs/warren/internal/config"
	"github.com/warrenlabs/warren/internal/health"
	"github.com/warrenlabs/warren/internal/policy"
	"github.com/warrenlabs/warren/pkg/broker"
)

var statusOutputFormat string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check system health",
	Long: `Run every health probe concurrently and report the aggregate status.

Probes the shared store, the work queue backlog, the consumer's liveness
marker, and every collaborator listed under health: in warren.yml. The
overall status is pessimistic: one unhealthy subsystem makes the whole
report unhealthy.

Output Formats:
  default - Human-readable table
  json    - Full report as JSON for dashboards and scripting

The exit code follows the overall status: 0 healthy, 1 degraded,
2 unhealthy.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVarP(&statusOutputFormat, "output", "o", "default", "Output format: default or json")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if statusOutputFormat != "default" && statusOutputFormat != "json" {
		return fmt.Errorf("invalid output format: %s (must be 'default' or 'json')", statusOutputFormat)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// The aggregator reads everything and mutates nothing: monitor role.
	s, err := newStore(cfg, policy.RoleMonitor)
	if err != nil {
		return err
	}
	defer s.Close()

	b := broker.New(s)
	probes := buildProbes(cfg, s, b)

	agg := health.NewAggregator(
		probes,
		config.Duration(cfg.Health.OverallTimeout, health.DefaultOverallTimeout),
		config.Duration(cfg.Health.ProbeTimeout, health.DefaultProbeTimeout),
	)

	report := agg.Check(ctx)

	if statusOutputFormat == "json" {
		if err := health.FormatJSON(os.Stdout, report); err != nil {
			return err
		}
	} else {
		health.FormatTable(os.Stdout, report)
	}

	switch report.Overall {
	case health.StatusHealthy:
		return nil
	case health.StatusDegraded:
		os.Exit(1)
	default:
		os.Exit(2)
	}
	return nil
}

// buildProbes assembles the probe set: the store and broker probes always,
// plus one probe per configured collaborator.
func buildProbes(cfg *config.Config, s health.Pinger, b *broker.Broker) []health.Probe {
	consumerID := cfg.Consumer.ID
	if consumerID == "" {
		consumerID, _ = os.Hostname()
	}

	probes := []health.Probe{
		health.NewRedisProbe(s, cfg.Redis.Addr),
		health.NewQueueProbe(b, cfg.Queue.WarnBacklog),
		health.NewHeartbeatProbe(b, consumerID, config.Duration(cfg.Health.HeartbeatMaxAge, 60*time.Second)),
	}

	for _, target := range cfg.Health.HTTPTargets {
		probes = append(probes, health.NewHTTPProbe(target.Name, target.URL, http.DefaultClient))
	}
	for _, target := range cfg.Health.TCPTargets {
		probes = append(probes, health.NewTCPProbe(target.Name, target.Addr))
	}

	return probes
}
