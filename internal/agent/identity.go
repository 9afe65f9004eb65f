// Package agent resolves who is acting: an automated worker or a human operator.
package agent

import (
	"fmt"
	"os"
	"strings"
)

// AgentType represents the type of agent
type AgentType string

const (
	AgentTypeOperator AgentType = "OPERATOR"
	AgentTypeWorker   AgentType = "WORKER"
)

// AgentIdentity represents a parsed agent ID
type AgentIdentity struct {
	Type   AgentType
	ID     string // "OPERATOR" for humans, worker name for workers
	FullID string // Complete ID like "OPERATOR" or "WORKER-scribe-1"
}

// GetCurrentAgentID resolves the current identity. configured is the
// agent.id setting; when empty, QUILL_WORKER names a worker and anything
// else is the operator.
func GetCurrentAgentID(configured string) (*AgentIdentity, error) {
	if configured != "" {
		return ParseAgentID(configured)
	}
	if name := os.Getenv("QUILL_WORKER"); name != "" {
		return WorkerIdentity(name), nil
	}
	return &AgentIdentity{
		Type:   AgentTypeOperator,
		ID:     "OPERATOR",
		FullID: "OPERATOR",
	}, nil
}

// WorkerIdentity builds a worker identity from a bare worker name.
func WorkerIdentity(name string) *AgentIdentity {
	return &AgentIdentity{
		Type:   AgentTypeWorker,
		ID:     name,
		FullID: fmt.Sprintf("WORKER-%s", name),
	}
}

// DefaultWorkerName derives a worker name unique to this process.
func DefaultWorkerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "local"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

// ParseAgentID parses an agent ID string like "OPERATOR" or "WORKER-scribe-1"
func ParseAgentID(agentID string) (*AgentIdentity, error) {
	if agentID == "OPERATOR" {
		return &AgentIdentity{
			Type:   AgentTypeOperator,
			ID:     "OPERATOR",
			FullID: "OPERATOR",
		}, nil
	}

	parts := strings.SplitN(agentID, "-", 2)
	if len(parts) != 2 || parts[1] == "" {
		return nil, fmt.Errorf("invalid agent ID format: %s (expected OPERATOR or WORKER-NAME)", agentID)
	}

	switch AgentType(parts[0]) {
	case AgentTypeWorker:
		return WorkerIdentity(parts[1]), nil
	default:
		return nil, fmt.Errorf("unknown agent type: %s (expected OPERATOR or WORKER)", parts[0])
	}
}
