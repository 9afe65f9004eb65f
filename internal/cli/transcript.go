package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/example/quill/internal/ports/primary"
	"github.com/example/quill/internal/wire"
)

var transcriptCmd = &cobra.Command{
	Use:   "transcript",
	Short: "Inspect generation attempts",
}

var transcriptHistoryCmd = &cobra.Command{
	Use:   "history [plan-id] [phase]",
	Short: "List attempts in recorded order",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		q := primary.HistoryQuery{PlanID: args[0], Phase: args[1]}
		if cmd.Flags().Changed("target") {
			target, _ := cmd.Flags().GetString("target")
			q.TargetNodeID = &target
		}
		showPayloads, _ := cmd.Flags().GetBool("payloads")

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "TARGET\tATTEMPT\tAGENT\tRESULT\tTOKENS\tLATENCY\tAT")
		fmt.Fprintln(w, "------\t-------\t-----\t------\t------\t-------\t--")

		count := 0
		var payloads []*primary.TranscriptEntry
		for entry, err := range wire.TranscriptService().QueryHistory(NewContext(), q) {
			if err != nil {
				return err
			}
			count++
			result := entry.ValidationStatus
			if entry.ValidationDetails != "" {
				result += ": " + truncate(entry.ValidationDetails, 40)
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%d/%d\t%dms\t%s\n",
				orDashStr(entry.TargetNodeID), entry.Attempt, entry.AgentName, result,
				entry.PromptTokens, entry.CompletionTokens, entry.LatencyMs, formatTimestamp(entry.CreatedAt))
			if showPayloads {
				payloads = append(payloads, entry)
			}
		}
		if err := w.Flush(); err != nil {
			return err
		}
		if count == 0 {
			fmt.Println("No attempts recorded")
		}

		for _, entry := range payloads {
			fmt.Printf("\n── %s attempt %d ──\n", orDashStr(entry.TargetNodeID), entry.Attempt)
			fmt.Printf("request:  %s\n", entry.RequestPayload)
			fmt.Printf("response: %s\n", entry.ResponsePayload)
		}
		return nil
	},
}

func init() {
	transcriptHistoryCmd.Flags().String("target", "", "Only this target (empty for phase-level entries)")
	transcriptHistoryCmd.Flags().Bool("payloads", false, "Print request and response payloads")

	transcriptCmd.AddCommand(transcriptHistoryCmd)
}

// TranscriptCmd returns the transcript command
func TranscriptCmd() *cobra.Command {
	return transcriptCmd
}
