package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/warrenlabs/warren/internal/policy"
	"github.com/warrenlabs/warren/internal/printer"
	"github.com/warrenlabs/warren/pkg/broker"
)

var submitPayload string

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a task to the work queue",
	Long: `Submit a task to the work queue as the producer identity.

The payload is opaque to warren; it is handed unchanged to the consumer's
executor. Use --payload for inline content, or pipe it on stdin:

  warren submit --payload "summarize the release notes"
  cat request.json | warren submit

Prints the task identifier on success. Poll for the outcome with
'warren result <task-id>'.`,
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().StringVarP(&submitPayload, "payload", "p", "", "Task payload (reads stdin if omitted)")
	rootCmd.AddCommand(submitCmd)
}

func runSubmit(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	payload := submitPayload
	if payload == "" {
		data, err := io.ReadAll(io.LimitReader(os.Stdin, broker.MaxPayloadBytes+1))
		if err != nil {
			return fmt.Errorf("failed to read payload from stdin: %w", err)
		}
		payload = string(data)
	}
	if payload == "" {
		return printer.Error(
			"empty payload",
			"Nothing to submit: --payload was not set and stdin was empty.",
			[]string{`warren submit --payload "your task content"`},
		)
	}
	if len(payload) > broker.MaxPayloadBytes {
		return printer.Error(
			"payload too large",
			fmt.Sprintf("Payloads are bounded at %d bytes.", broker.MaxPayloadBytes),
			nil,
		)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	b, s, err := newBroker(cfg, policy.RoleProducer)
	if err != nil {
		return err
	}
	defer s.Close()

	taskID, err := b.Submit(ctx, payload)
	if err != nil {
		if broker.IsAccessDenied(err) {
			return printer.Error(
				"submission denied",
				"The producer credentials in warren.yml were refused by the access policy.",
				nil,
			)
		}
		return fmt.Errorf("submission failed: %w", err)
	}

	printer.Success("task submitted\n")
	printer.Println(taskID)
	return nil
}
