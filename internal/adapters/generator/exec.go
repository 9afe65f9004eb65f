// Package generator runs generation turns through an external command.
//
// The command receives one JSON GenerationRequest on stdin and must print one
// JSON GenerationResult on stdout. A non-zero exit is a generator error.
package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/example/quill/internal/log"
	"github.com/example/quill/internal/ports/secondary"
)

// ErrNotConfigured is returned when no generator command is set.
var ErrNotConfigured = errors.New("generator command not configured")

// stderrTail is how much of stderr is kept in error messages.
const stderrTail = 2048

// CommandCreator builds the exec.Cmd for a turn. Tests swap it out.
type CommandCreator func(ctx context.Context, name string, args ...string) *exec.Cmd

func defaultCommandCreator(ctx context.Context, name string, args ...string) *exec.Cmd {
	return exec.CommandContext(ctx, name, args...)
}

// Config holds the command line and limits for ExecGenerator.
type Config struct {
	Command string
	Args    []string
	// Env entries (KEY=VALUE) added on top of the current environment.
	Env     []string
	Timeout time.Duration
}

// ExecGenerator implements secondary.Generator by shelling out.
type ExecGenerator struct {
	cfg            Config
	commandCreator CommandCreator
}

// NewExecGenerator creates a generator for the given command.
func NewExecGenerator(cfg Config) *ExecGenerator {
	return &ExecGenerator{cfg: cfg, commandCreator: defaultCommandCreator}
}

// SetCommandCreator overrides command construction.
func (g *ExecGenerator) SetCommandCreator(creator CommandCreator) {
	g.commandCreator = creator
}

// Generate runs one turn.
func (g *ExecGenerator) Generate(ctx context.Context, req secondary.GenerationRequest) (*secondary.GenerationResult, error) {
	if g.cfg.Command == "" {
		return nil, ErrNotConfigured
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode generation request: %w", err)
	}

	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}

	cmd := g.commandCreator(ctx, g.cfg.Command, g.cfg.Args...)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Env = append(os.Environ(), g.cfg.Env...)
	cmd.Env = append(cmd.Env,
		"QUILL_PLAN_ID="+req.PlanID,
		"QUILL_PHASE="+req.Phase,
		"QUILL_BACKLOG_ID="+req.BacklogID,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	runErr := cmd.Run()
	log.Debug("generator finished",
		"backlog_id", req.BacklogID,
		"attempt", req.Attempt,
		"duration", time.Since(started).Round(time.Millisecond),
	)

	if runErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("generator interrupted: %w", ctxErr)
		}
		var execErr *exec.Error
		if errors.As(runErr, &execErr) {
			return nil, fmt.Errorf("failed to start generator %q: %w", g.cfg.Command, runErr)
		}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			if tail := tail(stderr.String()); tail != "" {
				return nil, fmt.Errorf("generator exited with code %d: %s", exitErr.ExitCode(), tail)
			}
			return nil, fmt.Errorf("generator exited with code %d", exitErr.ExitCode())
		}
		return nil, fmt.Errorf("generator process error: %w", runErr)
	}

	var result secondary.GenerationResult
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &result); err != nil {
		return nil, fmt.Errorf("failed to decode generator output: %w", err)
	}
	if result.Validation == "" {
		return nil, fmt.Errorf("generator output is missing a validation status")
	}
	result.RequestPayload = string(payload)
	result.ResponsePayload = strings.TrimSpace(stdout.String())
	return &result, nil
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > stderrTail {
		s = "..." + s[len(s)-stderrTail:]
	}
	return s
}

var _ secondary.Generator = (*ExecGenerator)(nil)
