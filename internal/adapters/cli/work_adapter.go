package cli

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/example/quill/internal/ports/primary"
)

// WorkAdapter translates CLI operations to WorkService calls.
type WorkAdapter struct {
	service primary.WorkService
	out     io.Writer
}

// NewWorkAdapter creates a new WorkAdapter with the given service.
func NewWorkAdapter(service primary.WorkService, out io.Writer) *WorkAdapter {
	return &WorkAdapter{
		service: service,
		out:     out,
	}
}

// Run processes at most one item of a phase.
func (a *WorkAdapter) Run(ctx context.Context, req primary.RunRequest) (*primary.RunResult, error) {
	res, err := a.service.RunOnce(ctx, req)
	if err != nil {
		return nil, err
	}
	a.printResult(res)
	return res, nil
}

// Resume resumes an interrupted item.
func (a *WorkAdapter) Resume(ctx context.Context, req primary.ResumeWorkRequest) (*primary.RunResult, error) {
	res, err := a.service.ResumeItem(ctx, req)
	if err != nil {
		return nil, err
	}
	a.printResult(res)
	return res, nil
}

// Pool drains phases with concurrent workers.
func (a *WorkAdapter) Pool(ctx context.Context, req primary.PoolRequest) (*primary.PoolResult, error) {
	res, err := a.service.RunPool(ctx, req)
	if res == nil {
		return nil, err
	}

	fmt.Fprintf(a.out, "Processed %d item(s): %d completed, %d failed\n", res.Processed, res.Completed, res.Failed)
	if len(res.Skipped) > 0 {
		fmt.Fprintf(a.out, "Skipped phases: %v\n", res.Skipped)
	}
	if len(res.ItemErrors) > 0 {
		ids := make([]string, 0, len(res.ItemErrors))
		for id := range res.ItemErrors {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		fmt.Fprintln(a.out, "Item errors:")
		for _, id := range ids {
			fmt.Fprintf(a.out, "  %s %s: %v\n", cross(), id, res.ItemErrors[id])
		}
	}
	return res, err
}

func (a *WorkAdapter) printResult(res *primary.RunResult) {
	cp := res.Checkpoint
	switch {
	case res.Idle:
		fmt.Fprintln(a.out, "No work available")
	case res.Item != nil:
		fmt.Fprintf(a.out, "%s attempt %d: %s\n", res.Item.BacklogID, res.Attempt, statusColor(res.Validation))
		if res.VersionID != "" {
			fmt.Fprintf(a.out, "  %s Activated version %s\n", check(), res.VersionID)
		}
		if res.ItemError != nil {
			fmt.Fprintf(a.out, "  %s %v\n", cross(), res.ItemError)
		}
	}
	if cp != nil {
		fmt.Fprintf(a.out, "Phase %s: %s (%s)", cp.Phase, statusColor(cp.Status), progress(cp))
		if cp.BlockedReason != "" {
			fmt.Fprintf(a.out, " - %s", cp.BlockedReason)
		}
		fmt.Fprintln(a.out)
	}
}
