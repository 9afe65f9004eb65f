package app

import (
	"time"

	"github.com/example/quill/internal/ports/primary"
	"github.com/example/quill/internal/ports/secondary"
)

// formatTime renders a timestamp for the port boundary; zero stays empty.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func recordToPlan(r *secondary.PlanRecord) *primary.Plan {
	return &primary.Plan{
		ID:            r.ID,
		ProjectRef:    r.ProjectRef,
		PrimaryBranch: r.PrimaryBranch,
		Title:         r.Title,
		Template:      r.Template,
		Status:        r.Status,
		SourcePlanID:  r.SourcePlanID,
		CreatedAt:     formatTime(r.CreatedAt),
		UpdatedAt:     formatTime(r.UpdatedAt),
		CompletedAt:   formatTime(r.CompletedAt),
	}
}

func recordToCheckpoint(r *secondary.CheckpointRecord) *primary.Checkpoint {
	return &primary.Checkpoint{
		ID:                   r.ID,
		PlanID:               r.PlanID,
		Phase:                r.Phase,
		Position:             r.Position,
		Status:               r.Status,
		CompletedCount:       r.CompletedCount,
		TargetCount:          r.TargetCount,
		LockedByAgent:        r.LockedByAgent,
		LockedByConversation: r.LockedByConversation,
		LockedAt:             formatTime(r.LockedAt),
		LockEpoch:            r.LockEpoch,
		BlockedReason:        r.BlockedReason,
		CreatedAt:            formatTime(r.CreatedAt),
		UpdatedAt:            formatTime(r.UpdatedAt),
		CompletedAt:          formatTime(r.CompletedAt),
	}
}

func recordsToCheckpoints(records []*secondary.CheckpointRecord) []*primary.Checkpoint {
	out := make([]*primary.Checkpoint, len(records))
	for i, r := range records {
		out[i] = recordToCheckpoint(r)
	}
	return out
}

func executionToRecord(e primary.ExecutionContext) secondary.ExecutionContext {
	return secondary.ExecutionContext(e)
}

func recordToBacklogItem(r *secondary.BacklogItemRecord) *primary.BacklogItem {
	return &primary.BacklogItem{
		ID:            r.ID,
		PlanID:        r.PlanID,
		BacklogID:     r.BacklogID,
		Phase:         r.Phase,
		TargetSlotID:  r.TargetSlotID,
		Description:   r.Description,
		Inputs:        r.Inputs,
		Outputs:       r.Outputs,
		Status:        r.Status,
		Retryable:     r.Retryable,
		FailureReason: r.FailureReason,
		AttemptCount:  r.AttemptCount,
		Execution:     primary.ExecutionContext(r.Execution),
		CreatedAt:     formatTime(r.CreatedAt),
		InProgressAt:  formatTime(r.InProgressAt),
		CompletedAt:   formatTime(r.CompletedAt),
		FailedAt:      formatTime(r.FailedAt),
	}
}

func recordToSlot(r *secondary.SlotRecord) *primary.Slot {
	return &primary.Slot{
		ID:              r.ID,
		PlanID:          r.PlanID,
		Kind:            r.Kind,
		Key:             r.Key,
		ContainerSlotID: r.ContainerSlotID,
		CreatedAt:       formatTime(r.CreatedAt),
	}
}

func recordToVersion(r *secondary.VersionRecord) *primary.Version {
	return &primary.Version{
		ID:            r.ID,
		SlotID:        r.SlotID,
		VersionIndex:  r.VersionIndex,
		IsActive:      r.IsActive,
		DerivedFromID: r.DerivedFromID,
		BranchTag:     r.BranchTag,
		Body:          r.Body,
		Metadata:      primary.ContentMetadata(r.Metadata),
		CreatedAt:     formatTime(r.CreatedAt),
		ActivatedAt:   formatTime(r.ActivatedAt),
	}
}

func recordsToVersions(records []*secondary.VersionRecord) []*primary.Version {
	out := make([]*primary.Version, len(records))
	for i, r := range records {
		out[i] = recordToVersion(r)
	}
	return out
}

func recordToTranscriptEntry(r *secondary.TranscriptEntryRecord) *primary.TranscriptEntry {
	return &primary.TranscriptEntry{
		ID:                r.ID,
		PlanID:            r.PlanID,
		Phase:             r.Phase,
		TargetNodeID:      r.TargetNodeID,
		Attempt:           r.Attempt,
		AgentID:           r.AgentID,
		ConversationID:    r.ConversationID,
		RequestPayload:    r.RequestPayload,
		ResponsePayload:   r.ResponsePayload,
		PromptTokens:      r.PromptTokens,
		CompletionTokens:  r.CompletionTokens,
		LatencyMs:         r.LatencyMs,
		ValidationStatus:  r.ValidationStatus,
		ValidationDetails: r.ValidationDetails,
		IsRetry:           r.IsRetry,
		CreatedAt:         formatTime(r.CreatedAt),
	}
}

func recordToObligation(r *secondary.ObligationRecord) *primary.Obligation {
	return &primary.Obligation{
		ID:              r.ID,
		PlanID:          r.PlanID,
		PersonaID:       r.PersonaID,
		Slug:            r.Slug,
		Title:           r.Title,
		SourcePhase:     r.SourcePhase,
		SourceBacklogID: r.SourceBacklogID,
		BranchSlug:      r.BranchSlug,
		Status:          r.Status,
		ResolvedBy:      r.ResolvedBy,
		ResolvedAt:      formatTime(r.ResolvedAt),
		VoiceDrift:      r.VoiceDrift,
		CreatedAt:       formatTime(r.CreatedAt),
	}
}

func recordToLogEntry(r *secondary.AuditLogRecord) *primary.LogEntry {
	return &primary.LogEntry{
		ID:         r.ID,
		PlanID:     r.PlanID,
		ActorID:    r.ActorID,
		EntityType: r.EntityType,
		EntityID:   r.EntityID,
		Action:     r.Action,
		FieldName:  r.FieldName,
		OldValue:   r.OldValue,
		NewValue:   r.NewValue,
		CreatedAt:  formatTime(r.CreatedAt),
	}
}
