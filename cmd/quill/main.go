package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/quill/internal/apperr"
	"github.com/example/quill/internal/cli"
	"github.com/example/quill/internal/log"
	"github.com/example/quill/internal/version"
	"github.com/example/quill/internal/wire"
)

func main() {
	var (
		configFile string
		agentID    string
		verbose    bool
	)

	rootCmd := &cobra.Command{
		Use:     "quill",
		Short:   "quill - checkpoints, backlogs and versions for narrative production",
		Version: version.String(),
		Long: `quill coordinates long-running, multi-phase story generation.
Plans move through ordered phases; workers lock a phase, claim backlog items,
record every generation attempt, and keep every version of the content.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			wire.SetConfigFile(configFile)
			cli.SetAgentFlag(agentID)
			if verbose {
				os.Setenv("QUILL_LOG_LEVEL", "debug")
			}
		},
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default: ./quill.yaml, then $QUILL_HOME/quill.yaml)")
	rootCmd.PersistentFlags().StringVar(&agentID, "agent", "", "Act as this agent (OPERATOR or WORKER-name)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")

	rootCmd.AddCommand(cli.InitCmd())
	rootCmd.AddCommand(cli.VersionCmd())

	rootCmd.AddCommand(cli.PlanCmd())
	rootCmd.AddCommand(cli.PhaseCmd())
	rootCmd.AddCommand(cli.RosterCmd())
	rootCmd.AddCommand(cli.BacklogCmd())
	rootCmd.AddCommand(cli.ContentCmd())
	rootCmd.AddCommand(cli.TranscriptCmd())
	rootCmd.AddCommand(cli.ObligationCmd())
	rootCmd.AddCommand(cli.WorkCmd())
	rootCmd.AddCommand(cli.LogCmd())

	if err := rootCmd.Execute(); err != nil {
		if apperr.Classify(err) == apperr.KindInternal {
			log.Error("command failed", "err", err)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
