package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/warrenlabs/warren/internal/config"
	"github.com/warrenlabs/warren/internal/policy"
	"github.com/warrenlabs/warren/internal/store"
	"github.com/warrenlabs/warren/pkg/broker"
)

var (
	version string
	commit  string
	date    string

	configPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "warren",
	Short: "Warren - capability-isolated task broker",
	Long: `Warren coordinates asynchronous work between a trusted producer and an
untrusted consumer through a shared, namespace-partitioned Redis store.

Each subcommand connects to the store under the least-privileged role it
needs: submit runs as the producer, result and tasks as the monitor, and
the destructive queue operations as the manager.`,
	Version: version,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	// Errors are printed by the printer package with formatting; Cobra's
	// defaults would duplicate them.
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI.
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to warren.yml (default ./warren.yml or $WARREN_CONFIG)")
}

// loadConfig resolves the config path from the flag, the environment, or
// the working directory, in that order.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = os.Getenv("WARREN_CONFIG")
	}
	if path == "" {
		path = "warren.yml"
	}
	return config.Load(path)
}

// newStore opens a store connection under the given role's identity.
// Callers own the returned store and must Close it.
func newStore(cfg *config.Config, role policy.Role) (*store.RedisStore, error) {
	s, err := store.New(cfg.RedisOptions(role), cfg.Instance, role, policy.Default())
	if err != nil {
		return nil, fmt.Errorf("failed to open store as %s: %w", role, err)
	}
	return s, nil
}

// newBroker opens a store connection under the given role and wraps it in a
// broker. Callers own the returned store and must Close it.
func newBroker(cfg *config.Config, role policy.Role) (*broker.Broker, *store.RedisStore, error) {
	s, err := newStore(cfg, role)
	if err != nil {
		return nil, nil, err
	}
	return broker.New(s), s, nil
}
