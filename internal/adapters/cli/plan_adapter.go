// Package cli provides thin CLI adapters that translate between CLI concerns
// and application services. Adapters handle output formatting but delegate
// business logic to services.
package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/example/quill/internal/ports/primary"
)

// PlanAdapter translates CLI operations to PlanService calls.
type PlanAdapter struct {
	service primary.PlanService
	out     io.Writer
}

// NewPlanAdapter creates a new PlanAdapter with the given service.
func NewPlanAdapter(service primary.PlanService, out io.Writer) *PlanAdapter {
	return &PlanAdapter{
		service: service,
		out:     out,
	}
}

// Create creates a plan and prints its phases.
func (a *PlanAdapter) Create(ctx context.Context, req primary.CreatePlanRequest) (*primary.CreatePlanResponse, error) {
	resp, err := a.service.CreatePlan(ctx, req)
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(a.out, "%s Created plan %s for %s\n", check(), resp.PlanID, resp.Plan.ProjectRef)
	for _, cp := range resp.Checkpoints {
		fmt.Fprintf(a.out, "  %d. %s (%s)\n", cp.Position, cp.Phase, progress(cp))
	}
	return resp, nil
}

// List lists plans with optional project and status filters.
func (a *PlanAdapter) List(ctx context.Context, projectRef, status string) error {
	plans, err := a.service.ListPlans(ctx, primary.PlanFilters{
		ProjectRef: projectRef,
		Status:     status,
	})
	if err != nil {
		return fmt.Errorf("failed to list plans: %w", err)
	}

	if len(plans) == 0 {
		fmt.Fprintln(a.out, "No plans found")
		fmt.Fprintln(a.out)
		fmt.Fprintln(a.out, "Create one:")
		fmt.Fprintln(a.out, "  quill plan create my-novel --template novel")
		return nil
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tPROJECT\tBRANCH\tSTATUS\tTITLE")
	fmt.Fprintln(w, "--\t-------\t------\t------\t-----")
	for _, p := range plans {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", p.ID, p.ProjectRef, p.PrimaryBranch, p.Status, orDash(p.Title))
	}
	return w.Flush()
}

// Show prints a plan's overview: checkpoints, backlog and obligations.
func (a *PlanAdapter) Show(ctx context.Context, planID string) (*primary.PlanStatus, error) {
	status, err := a.service.GetPlanStatus(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}

	p := status.Plan
	fmt.Fprintf(a.out, "\nPlan:    %s\n", p.ID)
	fmt.Fprintf(a.out, "Project: %s (%s)\n", p.ProjectRef, p.PrimaryBranch)
	if p.Title != "" {
		fmt.Fprintf(a.out, "Title:   %s\n", p.Title)
	}
	fmt.Fprintf(a.out, "Status:  %s\n", statusColor(p.Status))
	if p.SourcePlanID != "" {
		fmt.Fprintf(a.out, "Branched from: %s\n", p.SourcePlanID)
	}
	fmt.Fprintf(a.out, "Created: %s\n", p.CreatedAt)
	if p.CompletedAt != "" {
		fmt.Fprintf(a.out, "Completed: %s\n", p.CompletedAt)
	}

	fmt.Fprintln(a.out, "\nPhases:")
	for _, cp := range status.Checkpoints {
		fmt.Fprintf(a.out, "  %d. %-14s %-8s %s", cp.Position, cp.Phase, progress(cp), statusColor(cp.Status))
		if cp.LockedByAgent != "" {
			fmt.Fprintf(a.out, "  [locked by %s since %s]", cp.LockedByAgent, cp.LockedAt)
		}
		if cp.BlockedReason != "" {
			fmt.Fprintf(a.out, "  (%s)", cp.BlockedReason)
		}
		fmt.Fprintln(a.out)
	}

	b := status.Backlog
	fmt.Fprintf(a.out, "\nBacklog: %d pending, %d in progress, %d complete, %d failed (%d retryable)\n",
		b.Pending, b.InProgress, b.Complete, b.Failed, b.Retryable)
	fmt.Fprintf(a.out, "Open obligations: %d\n\n", status.OpenObligations)
	return status, nil
}

// EnterPhase adds a phase to a plan.
func (a *PlanAdapter) EnterPhase(ctx context.Context, req primary.EnterPhaseRequest) error {
	cp, err := a.service.EnterPhase(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s Phase %s added to %s at position %d\n", check(), cp.Phase, cp.PlanID, cp.Position)
	return nil
}

// SetStatus moves a plan to a new status.
func (a *PlanAdapter) SetStatus(ctx context.Context, planID, status string) error {
	plan, err := a.service.SetPlanStatus(ctx, planID, status)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s Plan %s is now %s\n", check(), plan.ID, statusColor(plan.Status))
	return nil
}

// Branch creates a derived plan.
func (a *PlanAdapter) Branch(ctx context.Context, req primary.BranchPlanRequest) error {
	resp, err := a.service.BranchPlan(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s Branched %s into %s on %s (%d phases)\n",
		check(), req.PlanID, resp.PlanID, resp.Plan.PrimaryBranch, len(resp.Checkpoints))
	return nil
}

// Delete deletes a plan.
func (a *PlanAdapter) Delete(ctx context.Context, planID string, force bool) error {
	if err := a.service.DeletePlan(ctx, primary.DeletePlanRequest{PlanID: planID, Force: force}); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s Plan %s deleted\n", check(), planID)
	return nil
}

// Roster prints the plan's cast and lore requirements.
func (a *PlanAdapter) Roster(ctx context.Context, planID string) error {
	roster, err := a.service.GetRoster(ctx, planID)
	if err != nil {
		return fmt.Errorf("failed to get roster: %w", err)
	}

	fmt.Fprintln(a.out, "Characters:")
	if len(roster.Characters) == 0 {
		fmt.Fprintln(a.out, "  (none)")
	}
	for _, c := range roster.Characters {
		fmt.Fprintf(a.out, "  %-15s %-20s %s", orDash(c.PersonaID), c.DisplayName, orDash(c.Role))
		if c.Voice != "" {
			fmt.Fprintf(a.out, "  voice: %s", c.Voice)
		}
		fmt.Fprintln(a.out)
	}

	fmt.Fprintln(a.out, "\nLore:")
	if len(roster.LoreRequirements) == 0 {
		fmt.Fprintln(a.out, "  (none)")
	}
	for _, l := range roster.LoreRequirements {
		mark := cross()
		if l.Satisfied {
			mark = check()
		}
		fmt.Fprintf(a.out, "  %s %-20s %s\n", mark, l.Topic, l.Description)
	}
	return nil
}

// AddCharacter adds a cast member.
func (a *PlanAdapter) AddCharacter(ctx context.Context, req primary.AddCharacterRequest) error {
	c, err := a.service.AddCharacter(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s Added %s to %s as %s\n", check(), c.DisplayName, c.PlanID, orDash(c.Role))
	return nil
}

// AddLore records a lore requirement.
func (a *PlanAdapter) AddLore(ctx context.Context, req primary.AddLoreRequirementRequest) error {
	l, err := a.service.AddLoreRequirement(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s Lore requirement %s recorded (slot %s)\n", check(), l.Topic, l.SlotID)
	return nil
}
