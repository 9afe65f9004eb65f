package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/quill/internal/agent"
	"github.com/example/quill/internal/ctxutil"
	"github.com/example/quill/internal/ports/primary"
	"github.com/example/quill/internal/wire"
)

var workCmd = &cobra.Command{
	Use:   "work",
	Short: "Run generation work under phase locks",
	Long: `Run backlog items through the configured generator.

Each run locks one (plan, phase), claims the next item, records the attempt
in the transcript, and releases the lock with the outcome. Runs started by
the operator act as a worker named after this host and process unless
--agent or QUILL_WORKER says otherwise.`,
}

var workRunCmd = &cobra.Command{
	Use:   "run [plan-id] [phase]",
	Short: "Process at most one item of a phase",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := workContext()
		defer stop()

		_, err := wire.WorkAdapter().Run(ctx, primary.RunRequest{
			PlanID:  args[0],
			Phase:   args[1],
			AgentID: workerID(ctx),
		})
		return err
	},
}

var workResumeCmd = &cobra.Command{
	Use:   "resume [plan-id] [backlog-id]",
	Short: "Resume an interrupted item under a fresh conversation",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		phase, _ := cmd.Flags().GetString("phase")
		conversation, _ := cmd.Flags().GetString("conversation")
		cfg := wire.Config()

		ctx, stop := workContext()
		defer stop()

		_, err := wire.WorkAdapter().Resume(ctx, primary.ResumeWorkRequest{
			PlanID:    args[0],
			BacklogID: args[1],
			Phase:     phase,
			AgentID:   workerID(ctx),
			Execution: primary.ExecutionContext{
				ConversationID: conversation,
				ProviderID:     cfg.Generator.Provider,
				ModelID:        cfg.Generator.Model,
			},
		})
		return err
	},
}

var workPoolCmd = &cobra.Command{
	Use:   "pool [plan-id]",
	Short: "Drain phases with concurrent workers",
	Long:  "Run workers until every selected phase has no claimable work. One item's failure never stops the pool.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		phases, _ := cmd.Flags().GetStringSlice("phase")
		workers, _ := cmd.Flags().GetInt("workers")
		maxItems, _ := cmd.Flags().GetInt("max-items")

		ctx, stop := workContext()
		defer stop()

		_, err := wire.WorkAdapter().Pool(ctx, primary.PoolRequest{
			PlanID:   args[0],
			Phases:   phases,
			Workers:  workers,
			MaxItems: maxItems,
			AgentID:  workerID(ctx),
		})
		return err
	},
}

// workContext is NewContext cancelled on SIGINT or SIGTERM, so an
// interrupted run still releases its lock.
func workContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(NewContext(), os.Interrupt, syscall.SIGTERM)
}

// workerID is the lock holder for runs from this process. Operators get a
// per-process worker name so two terminals never share a lease.
func workerID(ctx context.Context) string {
	actor := ctxutil.ActorOr(ctx, "OPERATOR")
	if actor == string(agent.AgentTypeOperator) {
		return agent.WorkerIdentity(agent.DefaultWorkerName()).FullID
	}
	return actor
}

func init() {
	workResumeCmd.Flags().StringP("phase", "p", "", "Phase to run under (default: the item's phase)")
	workResumeCmd.Flags().String("conversation", "", "Conversation ID to attach (default: a fresh one)")

	workPoolCmd.Flags().StringSliceP("phase", "p", nil, "Phase to drain (repeatable, default: all)")
	workPoolCmd.Flags().IntP("workers", "w", 0, "Concurrent workers (default: workers.count)")
	workPoolCmd.Flags().Int("max-items", 0, "Runs per phase (default: workers.max_items)")

	workCmd.AddCommand(workRunCmd)
	workCmd.AddCommand(workResumeCmd)
	workCmd.AddCommand(workPoolCmd)
}

// WorkCmd returns the work command
func WorkCmd() *cobra.Command {
	return workCmd
}
