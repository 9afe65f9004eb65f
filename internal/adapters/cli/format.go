package cli

import (
	"fmt"

	"github.com/fatih/color"

	"github.com/example/quill/internal/ports/primary"
)

// statusColor colors a lifecycle status for terminal output.
func statusColor(status string) string {
	switch status {
	case "complete", "completed", "valid", "resolved":
		return color.New(color.FgGreen).Sprint(status)
	case "in_progress", "active":
		return color.New(color.FgCyan).Sprint(status)
	case "blocked", "failed", "invalid", "error":
		return color.New(color.FgRed).Sprint(status)
	case "pending", "draft", "open":
		return color.New(color.FgYellow).Sprint(status)
	default:
		return status
	}
}

func check() string {
	return color.New(color.FgGreen).Sprint("✓")
}

func cross() string {
	return color.New(color.FgRed).Sprint("✗")
}

// progress renders completed/target, with ? for an unknown target.
func progress(cp *primary.Checkpoint) string {
	if cp.TargetCount == nil {
		return fmt.Sprintf("%d/?", cp.CompletedCount)
	}
	return fmt.Sprintf("%d/%d", cp.CompletedCount, *cp.TargetCount)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
