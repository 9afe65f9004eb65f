package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/quill/internal/ports/primary"
	"github.com/example/quill/internal/wire"
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "View the plan audit log",
	Long:  "View and prune the audit trail of plan, checkpoint, backlog, content and obligation changes",
}

var logListCmd = &cobra.Command{
	Use:   "list [entity-id]",
	Short: "Show recent activity",
	Long:  "Show recent audit log entries, optionally for one entity (a plan, checkpoint, slot or backlog id)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := NewContext()
		limit, _ := cmd.Flags().GetInt("limit")
		planID, _ := cmd.Flags().GetString("plan")
		actorID, _ := cmd.Flags().GetString("actor")
		entityType, _ := cmd.Flags().GetString("type")

		filters := primary.LogFilters{
			PlanID:     planID,
			ActorID:    actorID,
			EntityType: entityType,
			Limit:      limit,
		}
		if len(args) > 0 {
			filters.EntityID = args[0]
		}

		entries, err := wire.LogService().ListLogs(ctx, filters)
		if err != nil {
			return fmt.Errorf("failed to read audit log: %w", err)
		}
		printLogEntries(entries)
		return nil
	},
}

var logPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old log entries",
	Long:  "Delete audit entries older than --days. Transcripts and obligation history are kept.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := NewContext()
		days, _ := cmd.Flags().GetInt("days")

		count, err := wire.LogService().PruneLogs(ctx, days)
		if err != nil {
			return fmt.Errorf("failed to prune logs: %w", err)
		}

		fmt.Printf("✓ Pruned %d entries older than %d days\n", count, days)
		return nil
	},
}

// printLogEntries prints newest-first entries in chronological order.
func printLogEntries(entries []*primary.LogEntry) {
	if len(entries) == 0 {
		fmt.Println("No log entries found.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "AT\tACTOR\t\tENTITY\tCHANGE")
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		change := ""
		if e.FieldName != "" {
			change = fmt.Sprintf("%s: %s → %s", e.FieldName, orDashStr(e.OldValue), orDashStr(e.NewValue))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s/%s\t%s\n",
			formatTimestamp(e.CreatedAt), orDashStr(e.ActorID), actionMark(e.Action), e.EntityType, e.EntityID, change)
	}
	w.Flush()
}

func actionMark(action string) string {
	switch action {
	case "create":
		return "+"
	case "update":
		return "~"
	case "delete":
		return "-"
	}
	return "?"
}

func formatTimestamp(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

// LogCmd returns the log command with all subcommands attached.
func LogCmd() *cobra.Command {
	logListCmd.Flags().IntP("limit", "n", 50, "Number of entries to show")
	logListCmd.Flags().String("plan", "", "Filter by plan ID")
	logListCmd.Flags().String("actor", "", "Filter by actor ID")
	logListCmd.Flags().String("type", "", "Filter by entity type")

	logPruneCmd.Flags().Int("days", 30, "Delete entries older than N days")

	logCmd.AddCommand(logListCmd)
	logCmd.AddCommand(logPruneCmd)

	return logCmd
}
