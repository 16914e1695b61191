package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/warrenlabs/warren/internal/policy"
	"github.com/warrenlabs/warren/internal/printer"
	"github.com/warrenlabs/warren/pkg/broker"
)

var resultJSON bool

var resultCmd = &cobra.Command{
	Use:   "result TASK_ID",
	Short: "Fetch the result of a task",
	Long: `Fetch the result of a task by identifier.

Reports one of three outcomes:
  - the result record, once the task reached a terminal state
  - "pending", while the task is queued or in progress
  - "not found", for an unknown identifier

Pending and not-found are normal outcomes, not errors.`,
	Args: cobra.ExactArgs(1),
	RunE: runResult,
}

func init() {
	resultCmd.Flags().BoolVar(&resultJSON, "json", false, "Print the full result record as JSON")
	rootCmd.AddCommand(resultCmd)
}

func runResult(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	taskID := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	b, s, err := newBroker(cfg, policy.RoleMonitor)
	if err != nil {
		return err
	}
	defer s.Close()

	result, err := b.FetchResult(ctx, taskID)
	if err != nil {
		switch {
		case broker.IsNotFound(err):
			printer.Warning("task %s not found\n", taskID)
			return nil
		case broker.IsPending(err):
			printer.Info("task %s is pending\n", taskID)
			return nil
		default:
			return fmt.Errorf("failed to fetch result: %w", err)
		}
	}

	if resultJSON {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		printer.Println(string(data))
		return nil
	}

	if result.ErrorDetail != "" {
		printer.Warning("task %s failed: %s\n", taskID, result.ErrorDetail)
		return nil
	}

	printer.Println(result.Output)
	return nil
}
