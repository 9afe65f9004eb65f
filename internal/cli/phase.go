package cli

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/example/quill/internal/ports/primary"
	"github.com/example/quill/internal/wire"
)

var phaseCmd = &cobra.Command{
	Use:     "phase",
	Aliases: []string{"checkpoint"},
	Short:   "Inspect and adjust phase checkpoints",
}

var phaseListCmd = &cobra.Command{
	Use:   "list [plan-id]",
	Short: "List a plan's checkpoints in phase order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		checkpoints, err := wire.CheckpointService().ListCheckpoints(NewContext(), args[0])
		if err != nil {
			return fmt.Errorf("failed to list checkpoints: %w", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "#\tPHASE\tSTATUS\tDONE\tTARGET\tLOCKED BY\tEPOCH")
		fmt.Fprintln(w, "-\t-----\t------\t----\t------\t---------\t-----")
		for _, cp := range checkpoints {
			target := "?"
			if cp.TargetCount != nil {
				target = strconv.Itoa(*cp.TargetCount)
			}
			locked := "-"
			if cp.LockedByAgent != "" {
				locked = cp.LockedByAgent
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%s\t%d\n",
				cp.Position, cp.Phase, cp.Status, cp.CompletedCount, target, locked, cp.LockEpoch)
		}
		return w.Flush()
	},
}

var phaseSetTargetCmd = &cobra.Command{
	Use:   "set-target [plan-id] [phase] [count|none]",
	Short: "Set how many successes complete a phase",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		var target *int
		if args[2] != "none" {
			n, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("target must be a number or none")
			}
			target = &n
		}

		cp, err := wire.CheckpointService().SetTargetCount(NewContext(), args[0], args[1], target)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Phase %s: %d done, target %s\n", cp.Phase, cp.CompletedCount, args[2])
		return nil
	},
}

var phaseUnlockCmd = &cobra.Command{
	Use:   "unlock [plan-id] [phase]",
	Short: "Release a phase lock without recording progress",
	Long: `Release a phase lock held by a worker that is gone, without waiting for it
to go stale. The holder's lease is superseded; its next release fails.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := NewContext()
		svc := wire.CheckpointService()

		cp, err := svc.GetCheckpoint(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		if cp.LockedByAgent == "" {
			fmt.Printf("Phase %s is not locked\n", cp.Phase)
			return nil
		}

		holder := cp.LockedByAgent
		cp, err = svc.ReleaseLock(ctx, primary.ReleaseLockRequest{
			CheckpointID: cp.ID,
			Epoch:        cp.LockEpoch,
			Outcome:      primary.ReleaseOutcome{Kind: "released"},
		})
		if err != nil {
			return err
		}
		fmt.Printf("✓ Released %s lock held by %s (status %s)\n", cp.Phase, holder, cp.Status)
		return nil
	},
}

func init() {
	phaseCmd.AddCommand(phaseListCmd)
	phaseCmd.AddCommand(phaseSetTargetCmd)
	phaseCmd.AddCommand(phaseUnlockCmd)
}

// PhaseCmd returns the phase command
func PhaseCmd() *cobra.Command {
	return phaseCmd
}
