package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/example/quill/internal/ports/primary"
	"github.com/example/quill/internal/wire"
)

var obligationCmd = &cobra.Command{
	Use:   "obligation",
	Short: "Track promises personas have made to the story",
}

var obligationListCmd = &cobra.Command{
	Use:   "list [plan-id]",
	Short: "List a plan's obligations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		phase, _ := cmd.Flags().GetString("phase")
		personaID, _ := cmd.Flags().GetString("persona")

		obligations, err := wire.ObligationService().ListObligations(NewContext(), primary.ObligationFilters{
			PlanID:    args[0],
			OpenOnly:  !all,
			Phase:     phase,
			PersonaID: personaID,
		})
		if err != nil {
			return err
		}
		if len(obligations) == 0 {
			fmt.Println("No obligations found")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tPERSONA\tSLUG\tPHASE\tSTATUS\tTITLE")
		fmt.Fprintln(w, "--\t-------\t----\t-----\t------\t-----")
		for _, o := range obligations {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				o.ID, o.PersonaName, o.Slug, o.SourcePhase, o.Status, o.Title)
		}
		return w.Flush()
	},
}

var obligationRaiseCmd = &cobra.Command{
	Use:   "raise [plan-id] [persona-id] [slug]",
	Short: "Record something a persona now owes the story",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		phase, _ := cmd.Flags().GetString("phase")
		branch, _ := cmd.Flags().GetString("branch")

		o, err := wire.ObligationService().Raise(NewContext(), primary.RaiseObligationRequest{
			PlanID:      args[0],
			PersonaID:   args[1],
			Slug:        args[2],
			Title:       title,
			SourcePhase: phase,
			BranchSlug:  branch,
		})
		if err != nil {
			return err
		}
		fmt.Printf("✓ Raised %s for %s: %s\n", o.ID, o.PersonaName, o.Title)
		return nil
	},
}

var obligationShowCmd = &cobra.Command{
	Use:   "show [obligation-id]",
	Short: "Show an obligation and its history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := wire.ObligationService().GetObligation(NewContext(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("\nObligation: %s\n", o.ID)
		fmt.Printf("Persona:    %s (%s)\n", o.PersonaName, o.PersonaID)
		fmt.Printf("Title:      %s\n", o.Title)
		fmt.Printf("Slug:       %s\n", o.Slug)
		fmt.Printf("Raised in:  %s", o.SourcePhase)
		if o.SourceBacklogID != "" {
			fmt.Printf(" by %s", o.SourceBacklogID)
		}
		fmt.Println()
		if o.BranchSlug != "" {
			fmt.Printf("Branch:     %s\n", o.BranchSlug)
		}
		fmt.Printf("Status:     %s\n", o.Status)
		if o.ResolvedBy != "" {
			fmt.Printf("Closed by:  %s at %s\n", o.ResolvedBy, o.ResolvedAt)
		}
		if o.VoiceDrift {
			fmt.Println("Voice drift flagged")
		}

		if len(o.History) > 0 {
			fmt.Println("\nHistory:")
			for _, n := range o.History {
				fmt.Printf("  %s  %-8s %-16s %s\n", formatTimestamp(n.CreatedAt), n.Action, n.Actor, n.Notes)
			}
		}
		fmt.Println()
		return nil
	},
}

func closeObligationCmd(action, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   action + " [obligation-id]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			notes, _ := cmd.Flags().GetString("notes")
			drift, _ := cmd.Flags().GetBool("voice-drift")

			o, err := wire.ObligationService().ResolveObligation(NewContext(), primary.ResolveObligationRequest{
				ObligationID: args[0],
				Action:       action,
				Notes:        notes,
				VoiceDrift:   drift,
			})
			if err != nil {
				return err
			}
			fmt.Printf("✓ Obligation %s %s\n", o.ID, o.Status)
			return nil
		},
	}
	cmd.Flags().StringP("notes", "n", "", "Notes for the history")
	if action == "resolve" {
		cmd.Flags().Bool("voice-drift", false, "Flag that the resolution drifted from the persona's voice")
	}
	return cmd
}

func init() {
	obligationListCmd.Flags().Bool("all", false, "Include resolved and dismissed obligations")
	obligationListCmd.Flags().String("phase", "", "Filter by source phase")
	obligationListCmd.Flags().String("persona", "", "Filter by persona")

	obligationRaiseCmd.Flags().String("title", "", "What is owed")
	obligationRaiseCmd.Flags().String("phase", "", "Phase the obligation was raised in")
	obligationRaiseCmd.Flags().String("branch", "", "Story branch the obligation applies to")

	obligationCmd.AddCommand(obligationListCmd)
	obligationCmd.AddCommand(obligationRaiseCmd)
	obligationCmd.AddCommand(obligationShowCmd)
	obligationCmd.AddCommand(closeObligationCmd("resolve", "Mark an obligation as fulfilled"))
	obligationCmd.AddCommand(closeObligationCmd("dismiss", "Drop an obligation the story no longer owes"))
}

// ObligationCmd returns the obligation command
func ObligationCmd() *cobra.Command {
	return obligationCmd
}
