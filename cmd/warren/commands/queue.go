package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/warrenlabs/warren/internal/policy"
	"github.com/warrenlabs/warren/internal/printer"
	"github.com/warrenlabs/warren/pkg/broker"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Manage the work queue (manager role)",
	Long: `Manage the work queue under the manager identity.

The manager is the only role holding destructive capabilities, and it is
meant to be exercised here, out of band, never through the broker
protocol itself.`,
}

var queueLenCmd = &cobra.Command{
	Use:   "len",
	Short: "Print the number of pending tasks",
	RunE:  runQueueLen,
}

var queueClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Discard every pending queue entry",
	Long: `Discard every pending queue entry.

Task records are left in place: cleared tasks stay 'queued' but will never
be picked up. Use 'warren requeue-expired' for stuck in-progress tasks
instead; clear is for emptying a poisoned queue.`,
	RunE: runQueueClear,
}

var requeueExpiredCmd = &cobra.Command{
	Use:   "requeue-expired",
	Short: "Re-queue in-progress tasks with lapsed leases",
	Long: `Re-queue every in-progress task whose lease has lapsed.

A consumer that dies between dequeue and result publication leaves its
task in-progress forever. This command is the deliberate recovery step:
it resets those tasks to queued and pushes them back onto the work queue.
Run it manually or from an operator-owned timer.`,
	RunE: runRequeueExpired,
}

func init() {
	queueCmd.AddCommand(queueLenCmd)
	queueCmd.AddCommand(queueClearCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(requeueExpiredCmd)
}

func runQueueLen(cmd *cobra.Command, args []string) error {
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

	depth, err := b.QueueDepth(ctx)
	if err != nil {
		return fmt.Errorf("failed to read queue depth: %w", err)
	}

	printer.Printf("%d\n", depth)
	return nil
}

func runQueueClear(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	s, err := newStore(cfg, policy.RoleManager)
	if err != nil {
		return err
	}
	defer s.Close()

	dropped, err := s.FlushQueue(ctx, broker.QueueKey)
	if err != nil {
		if broker.IsAccessDenied(err) {
			return printer.Error(
				"queue clear denied",
				"Clearing the queue requires the manager credentials in warren.yml.",
				nil,
			)
		}
		return fmt.Errorf("failed to clear queue: %w", err)
	}

	printer.Success("cleared queue (%d entries dropped)\n", dropped)
	return nil
}

func runRequeueExpired(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	b, s, err := newBroker(cfg, policy.RoleManager)
	if err != nil {
		return err
	}
	defer s.Close()

	requeued, err := b.RequeueExpired(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("requeue sweep failed: %w", err)
	}

	if len(requeued) == 0 {
		printer.Info("No expired leases found\n")
		return nil
	}

	printer.Success("re-queued %d task(s)\n", len(requeued))
	for _, id := range requeued {
		printer.Println(id)
	}
	return nil
}
