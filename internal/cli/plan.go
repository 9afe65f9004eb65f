package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/quill/internal/ports/primary"
	"github.com/example/quill/internal/templates"
	"github.com/example/quill/internal/wire"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Manage production plans",
	Long:  "Create, inspect, branch, and retire plans. A plan is one run of a project through its ordered phases.",
}

var planCreateCmd = &cobra.Command{
	Use:   "create [project-ref]",
	Short: "Create a draft plan",
	Long: `Create a draft plan with one checkpoint per phase.

Phases come from a plan template (default: novel). Use --phase to list them
explicitly instead, as name or name=target:

  quill plan create lighthouse-novel --phase outline=1 --phase drafting`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		branch, _ := cmd.Flags().GetString("branch")
		templateName, _ := cmd.Flags().GetString("template")
		templateFile, _ := cmd.Flags().GetString("template-file")
		phaseFlags, _ := cmd.Flags().GetStringSlice("phase")

		var phases []primary.PhaseSpec
		switch {
		case len(phaseFlags) > 0:
			parsed, err := parsePhaseFlags(phaseFlags)
			if err != nil {
				return err
			}
			phases = parsed
			templateName = ""
		default:
			tmpl, err := loadTemplate(templateName, templateFile)
			if err != nil {
				return err
			}
			templateName = tmpl.Name
			for _, p := range tmpl.Phases {
				phases = append(phases, primary.PhaseSpec{Name: p.Name, TargetCount: p.Target})
			}
		}

		ctx := NewContext()
		_, err := wire.PlanAdapter().Create(ctx, primary.CreatePlanRequest{
			ProjectRef:    args[0],
			PrimaryBranch: branch,
			Title:         title,
			Template:      templateName,
			Phases:        phases,
		})
		if err != nil {
			return fmt.Errorf("failed to create plan: %w", err)
		}
		return nil
	},
}

var planTemplatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List the built-in plan templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range templates.List() {
			tmpl, err := templates.Load(name)
			if err != nil {
				return err
			}
			names := make([]string, len(tmpl.Phases))
			for i, p := range tmpl.Phases {
				names[i] = p.Name
			}
			fmt.Printf("%-12s %s\n", tmpl.Name, tmpl.Description)
			fmt.Printf("%-12s phases: %s\n", "", strings.Join(names, " → "))
		}
		return nil
	},
}

var planListCmd = &cobra.Command{
	Use:   "list",
	Short: "List plans",
	RunE: func(cmd *cobra.Command, args []string) error {
		project, _ := cmd.Flags().GetString("project")
		status, _ := cmd.Flags().GetString("status")
		return wire.PlanAdapter().List(NewContext(), project, status)
	},
}

var planShowCmd = &cobra.Command{
	Use:   "show [plan-id]",
	Short: "Show a plan's phases, backlog and obligations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := wire.PlanAdapter().Show(NewContext(), args[0])
		return err
	},
}

var planSetStatusCmd = &cobra.Command{
	Use:   "set-status [plan-id] [status]",
	Short: "Move a plan to draft, active, completed or archived",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return wire.PlanAdapter().SetStatus(NewContext(), args[0], args[1])
	},
}

var planEnterPhaseCmd = &cobra.Command{
	Use:   "enter-phase [plan-id] [phase]",
	Short: "Append a phase to a plan",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := primary.EnterPhaseRequest{PlanID: args[0], Phase: args[1]}
		if cmd.Flags().Changed("target") {
			target, _ := cmd.Flags().GetInt("target")
			req.TargetCount = &target
		}
		return wire.PlanAdapter().EnterPhase(NewContext(), req)
	},
}

var planBranchCmd = &cobra.Command{
	Use:   "branch [plan-id] [branch]",
	Short: "Start a new draft plan from an existing one",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		return wire.PlanAdapter().Branch(NewContext(), primary.BranchPlanRequest{
			PlanID: args[0],
			Branch: args[1],
			Title:  title,
		})
	},
}

var planDeleteCmd = &cobra.Command{
	Use:   "delete [plan-id]",
	Short: "Delete a plan and everything it owns",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		return wire.PlanAdapter().Delete(NewContext(), args[0], force)
	},
}

var rosterCmd = &cobra.Command{
	Use:   "roster",
	Short: "Manage a plan's cast and lore requirements",
}

var rosterShowCmd = &cobra.Command{
	Use:   "show [plan-id]",
	Short: "Show characters and lore requirements",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return wire.PlanAdapter().Roster(NewContext(), args[0])
	},
}

var rosterAddCharacterCmd = &cobra.Command{
	Use:   "add-character [plan-id]",
	Short: "Add a character, optionally backed by a persona",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		personaID, _ := cmd.Flags().GetString("persona")
		name, _ := cmd.Flags().GetString("name")
		role, _ := cmd.Flags().GetString("role")
		return wire.PlanAdapter().AddCharacter(NewContext(), primary.AddCharacterRequest{
			PlanID:    args[0],
			PersonaID: personaID,
			Name:      name,
			Role:      role,
		})
	},
}

var rosterAddLoreCmd = &cobra.Command{
	Use:   "add-lore [plan-id] [topic]",
	Short: "Record a world-bible entry the plan depends on",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		description, _ := cmd.Flags().GetString("description")
		return wire.PlanAdapter().AddLore(NewContext(), primary.AddLoreRequirementRequest{
			PlanID:      args[0],
			Topic:       args[1],
			Description: description,
		})
	},
}

var rosterPersonasCmd = &cobra.Command{
	Use:   "personas",
	Short: "List personas from the persona directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		personas, err := wire.Personas().List(NewContext())
		if err != nil {
			return err
		}
		if len(personas) == 0 {
			fmt.Println("No personas configured (set personas.path in quill.yaml)")
			return nil
		}
		for _, p := range personas {
			fmt.Printf("%-15s %-20s %s\n", p.ID, p.DisplayName, p.Voice)
		}
		return nil
	},
}

func loadTemplate(name, file string) (*templates.PlanTemplate, error) {
	if file == "" {
		return templates.Load(name)
	}
	content, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read template file: %w", err)
	}
	return templates.Parse(content)
}

// parsePhaseFlags turns name or name=target values into phase specs.
func parsePhaseFlags(values []string) ([]primary.PhaseSpec, error) {
	phases := make([]primary.PhaseSpec, 0, len(values))
	for _, v := range values {
		name, target, hasTarget := strings.Cut(v, "=")
		spec := primary.PhaseSpec{Name: strings.TrimSpace(name)}
		if hasTarget {
			n, err := strconv.Atoi(strings.TrimSpace(target))
			if err != nil {
				return nil, fmt.Errorf("invalid target in --phase %q", v)
			}
			spec.TargetCount = &n
		}
		phases = append(phases, spec)
	}
	return phases, nil
}

func init() {
	planCreateCmd.Flags().String("title", "", "Plan title")
	planCreateCmd.Flags().String("branch", "", "Primary branch (default main)")
	planCreateCmd.Flags().StringP("template", "t", templates.DefaultTemplate, "Built-in plan template")
	planCreateCmd.Flags().String("template-file", "", "Plan template YAML file")
	planCreateCmd.Flags().StringSlice("phase", nil, "Phase as name or name=target (repeatable, overrides the template)")

	planListCmd.Flags().String("project", "", "Filter by project ref")
	planListCmd.Flags().String("status", "", "Filter by status")

	planEnterPhaseCmd.Flags().Int("target", 0, "Number of successes that complete the phase")
	planBranchCmd.Flags().String("title", "", "Title for the new plan (default: source title)")
	planDeleteCmd.Flags().BoolP("force", "f", false, "Delete even while a phase is locked")

	rosterAddCharacterCmd.Flags().String("persona", "", "Persona ID from the persona directory")
	rosterAddCharacterCmd.Flags().String("name", "", "Character name (default: persona name)")
	rosterAddCharacterCmd.Flags().String("role", "", "Role in the story")
	rosterAddLoreCmd.Flags().StringP("description", "d", "", "What the entry must cover")

	planCmd.AddCommand(planCreateCmd)
	planCmd.AddCommand(planTemplatesCmd)
	planCmd.AddCommand(planListCmd)
	planCmd.AddCommand(planShowCmd)
	planCmd.AddCommand(planSetStatusCmd)
	planCmd.AddCommand(planEnterPhaseCmd)
	planCmd.AddCommand(planBranchCmd)
	planCmd.AddCommand(planDeleteCmd)

	rosterCmd.AddCommand(rosterShowCmd)
	rosterCmd.AddCommand(rosterAddCharacterCmd)
	rosterCmd.AddCommand(rosterAddLoreCmd)
	rosterCmd.AddCommand(rosterPersonasCmd)
}

// PlanCmd returns the plan command
func PlanCmd() *cobra.Command {
	return planCmd
}

// RosterCmd returns the roster command
func RosterCmd() *cobra.Command {
	return rosterCmd
}
