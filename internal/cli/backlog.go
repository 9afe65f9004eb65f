package cli

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/example/quill/internal/ports/primary"
	"github.com/example/quill/internal/wire"
)

var backlogCmd = &cobra.Command{
	Use:   "backlog",
	Short: "Manage a plan's work queue",
	Long:  "Enqueue, inspect, resume, and requeue backlog items. Items are claimed in insertion order.",
}

var backlogAddCmd = &cobra.Command{
	Use:   "add [plan-id] [backlog-id]",
	Short: "Enqueue an item",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		description, _ := cmd.Flags().GetString("description")
		phase, _ := cmd.Flags().GetString("phase")
		slotID, _ := cmd.Flags().GetString("slot")
		inputs, _ := cmd.Flags().GetStringSlice("input")

		item, err := wire.BacklogService().Enqueue(NewContext(), primary.EnqueueRequest{
			PlanID:       args[0],
			BacklogID:    args[1],
			Description:  description,
			Inputs:       inputs,
			Phase:        phase,
			TargetSlotID: slotID,
		})
		if err != nil {
			return fmt.Errorf("failed to enqueue: %w", err)
		}
		fmt.Printf("✓ Enqueued %s (%s)\n", item.BacklogID, orAny(item.Phase))
		return nil
	},
}

var backlogListCmd = &cobra.Command{
	Use:   "list [plan-id]",
	Short: "List items in queue order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		phase, _ := cmd.Flags().GetString("phase")
		status, _ := cmd.Flags().GetString("status")

		items, err := wire.BacklogService().ListBacklog(NewContext(), primary.BacklogFilters{
			PlanID: args[0],
			Phase:  phase,
			Status: status,
		})
		if err != nil {
			return fmt.Errorf("failed to list backlog: %w", err)
		}
		if len(items) == 0 {
			fmt.Println("No backlog items found")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "BACKLOG ID\tPHASE\tSTATUS\tATTEMPTS\tDESCRIPTION")
		fmt.Fprintln(w, "----------\t-----\t------\t--------\t-----------")
		for _, item := range items {
			status := item.Status
			if item.Status == "failed" && item.Retryable {
				status = "failed (retryable)"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
				item.BacklogID, orAny(item.Phase), status, item.AttemptCount, truncate(item.Description, 50))
		}
		return w.Flush()
	},
}

var backlogShowCmd = &cobra.Command{
	Use:   "show [plan-id] [backlog-id]",
	Short: "Show one item",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		item, err := wire.BacklogService().GetItem(NewContext(), args[0], args[1])
		if err != nil {
			return err
		}

		fmt.Printf("\nItem:     %s\n", item.BacklogID)
		fmt.Printf("Plan:     %s\n", item.PlanID)
		fmt.Printf("Phase:    %s\n", orAny(item.Phase))
		fmt.Printf("Status:   %s\n", item.Status)
		fmt.Printf("Attempts: %d\n", item.AttemptCount)
		if item.Description != "" {
			fmt.Printf("Description: %s\n", item.Description)
		}
		if item.TargetSlotID != "" {
			fmt.Printf("Target slot: %s\n", item.TargetSlotID)
		}
		if len(item.Inputs) > 0 {
			fmt.Printf("Inputs:  %s\n", strings.Join(item.Inputs, ", "))
		}
		if len(item.Outputs) > 0 {
			fmt.Printf("Outputs: %s\n", strings.Join(item.Outputs, ", "))
		}
		if item.FailureReason != "" {
			fmt.Printf("Failure: %s (retryable: %t)\n", item.FailureReason, item.Retryable)
		}
		if item.Execution.ConversationID != "" {
			fmt.Printf("Conversation: %s\n", item.Execution.ConversationID)
			if item.Execution.ProviderID != "" || item.Execution.ModelID != "" {
				fmt.Printf("Model: %s/%s\n", item.Execution.ProviderID, item.Execution.ModelID)
			}
		}
		fmt.Printf("Created: %s\n", item.CreatedAt)
		if item.CompletedAt != "" {
			fmt.Printf("Completed: %s\n", item.CompletedAt)
		}
		fmt.Println()
		return nil
	},
}

var backlogHistoryCmd = &cobra.Command{
	Use:   "history [plan-id] [backlog-id]",
	Short: "Show an item's status transitions",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := wire.BacklogService().History(NewContext(), args[0], args[1])
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No history recorded")
			return nil
		}
		// History is oldest first; printLogEntries expects newest first.
		for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
			entries[i], entries[j] = entries[j], entries[i]
		}
		printLogEntries(entries)
		return nil
	},
}

var backlogRequeueCmd = &cobra.Command{
	Use:   "requeue [plan-id] [backlog-id]",
	Short: "Move a failed item back to pending",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		item, err := wire.BacklogService().Requeue(NewContext(), args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("✓ %s is %s again\n", item.BacklogID, item.Status)
		return nil
	},
}

var backlogSummaryCmd = &cobra.Command{
	Use:   "summary [plan-id]",
	Short: "Count items by status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		phase, _ := cmd.Flags().GetString("phase")
		s, err := wire.BacklogService().Summary(NewContext(), args[0], phase)
		if err != nil {
			return err
		}
		fmt.Printf("pending:     %d\n", s.Pending)
		fmt.Printf("in_progress: %d\n", s.InProgress)
		fmt.Printf("complete:    %d\n", s.Complete)
		fmt.Printf("failed:      %d (%d retryable)\n", s.Failed, s.Retryable)
		fmt.Printf("total:       %d\n", s.Total())
		return nil
	},
}

func orAny(phase string) string {
	if phase == "" {
		return "(any phase)"
	}
	return phase
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func init() {
	backlogAddCmd.Flags().StringP("description", "d", "", "What the item should produce")
	backlogAddCmd.Flags().StringP("phase", "p", "", "Phase the item belongs to (default: any)")
	backlogAddCmd.Flags().String("slot", "", "Content slot the item writes to")
	backlogAddCmd.Flags().StringSlice("input", nil, "Input reference (repeatable)")

	backlogListCmd.Flags().StringP("phase", "p", "", "Filter by phase")
	backlogListCmd.Flags().StringP("status", "s", "", "Filter by status")
	backlogSummaryCmd.Flags().StringP("phase", "p", "", "Count one phase only")

	backlogCmd.AddCommand(backlogAddCmd)
	backlogCmd.AddCommand(backlogListCmd)
	backlogCmd.AddCommand(backlogShowCmd)
	backlogCmd.AddCommand(backlogHistoryCmd)
	backlogCmd.AddCommand(backlogRequeueCmd)
	backlogCmd.AddCommand(backlogSummaryCmd)
}

// BacklogCmd returns the backlog command
func BacklogCmd() *cobra.Command {
	return backlogCmd
}
