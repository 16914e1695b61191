package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/warrenlabs/warren/internal/policy"
	"github.com/warrenlabs/warren/internal/printer"
	"github.com/warrenlabs/warren/pkg/broker"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks [TASK_ID]",
	Short: "Inspect task records",
	Long: `Inspect task records in list or get mode.

List Mode (no TASK_ID):
  Displays an overview of every task record in the namespace.

Get Mode (with TASK_ID):
  Displays the complete task record as pretty-printed JSON.

Examples:
  # List all tasks
  warren tasks

  # Get full details of one task
  warren tasks 4f1f2c9e-...`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTasks,
}

var tasksRmCmd = &cobra.Command{
	Use:   "rm TASK_ID",
	Short: "Delete a task record and its result (manager role)",
	Long: `Delete a task record and its result, if any.

Does not touch the queue: removing a still-queued task leaves a dangling
identifier that the consumer will fail to load. Intended for cleaning up
terminal tasks.`,
	Args: cobra.ExactArgs(1),
	RunE: runTasksRm,
}

func init() {
	tasksCmd.AddCommand(tasksRmCmd)
	rootCmd.AddCommand(tasksCmd)
}

func runTasks(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	b, s, err := newBroker(cfg, policy.RoleMonitor)
	if err != nil {
		return err
	}
	defer s.Close()

	if len(args) == 1 {
		return getTask(ctx, b, args[0])
	}
	return listTasks(ctx, b)
}

func getTask(ctx context.Context, b *broker.Broker, taskID string) error {
	task, err := b.Load(ctx, taskID)
	if err != nil {
		if broker.IsNotFound(err) {
			printer.Warning("task %s not found\n", taskID)
			return nil
		}
		return fmt.Errorf("failed to load task: %w", err)
	}

	data, err := json.MarshalIndent(task, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}
	printer.Println(string(data))
	return nil
}

func listTasks(ctx context.Context, b *broker.Broker) error {
	ids, err := b.ListTasks(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tasks: %w", err)
	}

	if len(ids) == 0 {
		printer.Info("No tasks found\n")
		return nil
	}

	tasks := make([]*broker.Task, 0, len(ids))
	for _, id := range ids {
		task, err := b.Load(ctx, id)
		if err != nil {
			// Records can disappear between scan and load; skip.
			continue
		}
		tasks = append(tasks, task)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].CreatedAtMs < tasks[j].CreatedAtMs })

	fmt.Fprintf(os.Stdout, "%-38s %-12s %-8s %s\n", "ID", "STATUS", "AGE", "CONSUMER")
	fmt.Fprintf(os.Stdout, "%-38s %-12s %-8s %s\n", "--------------------------------------", "------------", "--------", "--------")
	for _, task := range tasks {
		fmt.Fprintf(os.Stdout, "%-38s %-12s %-8s %s\n",
			task.ID,
			task.Status,
			formatAge(task.CreatedAtMs),
			task.ConsumerID,
		)
	}

	countMsg := "task"
	if len(tasks) != 1 {
		countMsg = "tasks"
	}
	fmt.Fprintf(os.Stdout, "\n%d %s found\n", len(tasks), countMsg)
	return nil
}

func runTasksRm(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	taskID := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	s, err := newStore(cfg, policy.RoleManager)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Delete(ctx, broker.TaskKey(taskID)); err != nil {
		if broker.IsAccessDenied(err) {
			return printer.Error(
				"deletion denied",
				"Deleting task records requires the manager credentials in warren.yml.",
				nil,
			)
		}
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if err := s.Delete(ctx, broker.ResultKey(taskID)); err != nil {
		return fmt.Errorf("task deleted but result removal failed: %w", err)
	}

	printer.Success("deleted task %s\n", taskID)
	return nil
}

// formatAge renders a creation timestamp as a coarse age like "3m" or "2h".
func formatAge(createdAtMs int64) string {
	age := time.Since(time.UnixMilli(createdAtMs))
	switch {
	case age < time.Minute:
		return fmt.Sprintf("%ds", int(age.Seconds()))
	case age < time.Hour:
		return fmt.Sprintf("%dm", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh", int(age.Hours()))
	default:
		return fmt.Sprintf("%dd", int(age.Hours()/24))
	}
}
