package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/example/quill/internal/apperr"
	"github.com/example/quill/internal/ports/primary"
)

func newTestCheckpointService(config CheckpointConfig) (*CheckpointServiceImpl, *mockCheckpointRepository, *mockPlanRepository, *mockObligationRepository) {
	checkpointRepo := newMockCheckpointRepository()
	planRepo := newMockPlanRepository(checkpointRepo)
	obligationRepo := newMockObligationRepository()
	if config.Retry.MaxAttempts == 0 {
		config.Retry = RetryPolicy{MaxAttempts: 1, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}
	}
	if config.LockTimeout == 0 {
		config.LockTimeout = 10 * time.Minute
	}
	service := NewCheckpointService(checkpointRepo, planRepo, obligationRepo, config)
	service.now = fixedClock()
	return service, checkpointRepo, planRepo, obligationRepo
}

func TestAcquireLock_Success(t *testing.T) {
	service, checkpoints, plans, _ := newTestCheckpointService(CheckpointConfig{})
	plans.addPlan("PLAN-001", "draft")
	checkpoints.addCheckpoint("PLAN-001", "outline", nil)
	ctx := context.Background()

	lease, err := service.AcquireLock(ctx, primary.AcquireLockRequest{
		PlanID:         "PLAN-001",
		Phase:          "outline",
		AgentID:        "BENCH-014",
		ConversationID: "CONV-1",
	})

	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if lease.Epoch != 1 {
		t.Errorf("expected epoch 1, got %d", lease.Epoch)
	}
	if lease.Checkpoint.Status != "in_progress" {
		t.Errorf("expected status 'in_progress', got '%s'", lease.Checkpoint.Status)
	}
	if lease.Checkpoint.LockedByAgent != "BENCH-014" {
		t.Errorf("expected holder 'BENCH-014', got '%s'", lease.Checkpoint.LockedByAgent)
	}
	if lease.PreviousHolder != "" {
		t.Errorf("expected no previous holder, got '%s'", lease.PreviousHolder)
	}
	if plans.plans["PLAN-001"].Status != "active" {
		t.Errorf("expected plan to become active, got '%s'", plans.plans["PLAN-001"].Status)
	}
}

func TestAcquireLock_MissingAgent(t *testing.T) {
	service, checkpoints, plans, _ := newTestCheckpointService(CheckpointConfig{})
	plans.addPlan("PLAN-001", "active")
	checkpoints.addCheckpoint("PLAN-001", "outline", nil)

	_, err := service.AcquireLock(context.Background(), primary.AcquireLockRequest{PlanID: "PLAN-001", Phase: "outline"})

	if !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestAcquireLock_HeldBySomeoneElse(t *testing.T) {
	service, checkpoints, plans, _ := newTestCheckpointService(CheckpointConfig{})
	plans.addPlan("PLAN-001", "active")
	checkpoints.addCheckpoint("PLAN-001", "outline", nil)
	ctx := context.Background()

	if _, err := service.AcquireLock(ctx, primary.AcquireLockRequest{PlanID: "PLAN-001", Phase: "outline", AgentID: "BENCH-001"}); err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}

	_, err := service.AcquireLock(ctx, primary.AcquireLockRequest{PlanID: "PLAN-001", Phase: "outline", AgentID: "BENCH-002"})
	if !errors.Is(err, apperr.ErrLockHeld) {
		t.Errorf("expected ErrLockHeld, got %v", err)
	}

	// The holder itself cannot re-enter a fresh lock either.
	_, err = service.AcquireLock(ctx, primary.AcquireLockRequest{PlanID: "PLAN-001", Phase: "outline", AgentID: "BENCH-001"})
	if !errors.Is(err, apperr.ErrLockHeld) {
		t.Errorf("expected ErrLockHeld for re-entry, got %v", err)
	}
}

func TestAcquireLock_ReclaimsStaleLock(t *testing.T) {
	service, checkpoints, plans, _ := newTestCheckpointService(CheckpointConfig{LockTimeout: time.Minute})
	plans.addPlan("PLAN-001", "active")
	cp := checkpoints.addCheckpoint("PLAN-001", "outline", nil)
	cp.Status = "in_progress"
	cp.LockedByAgent = "BENCH-001"
	cp.LockedAt = testNow.Add(-2 * time.Minute)
	cp.LockEpoch = 4

	lease, err := service.AcquireLock(context.Background(), primary.AcquireLockRequest{PlanID: "PLAN-001", Phase: "outline", AgentID: "BENCH-002"})

	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if lease.PreviousHolder != "BENCH-001" {
		t.Errorf("expected previous holder 'BENCH-001', got '%s'", lease.PreviousHolder)
	}
	if lease.Epoch != 5 {
		t.Errorf("expected epoch 5, got %d", lease.Epoch)
	}
}

func TestAcquireLock_CompletePhase(t *testing.T) {
	service, checkpoints, plans, _ := newTestCheckpointService(CheckpointConfig{})
	plans.addPlan("PLAN-001", "active")
	checkpoints.addCheckpoint("PLAN-001", "outline", nil).Status = "complete"

	_, err := service.AcquireLock(context.Background(), primary.AcquireLockRequest{PlanID: "PLAN-001", Phase: "outline", AgentID: "BENCH-001"})

	if !errors.Is(err, apperr.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
}

func TestAcquireLock_UnknownPhase(t *testing.T) {
	service, _, plans, _ := newTestCheckpointService(CheckpointConfig{})
	plans.addPlan("PLAN-001", "active")

	_, err := service.AcquireLock(context.Background(), primary.AcquireLockRequest{PlanID: "PLAN-001", Phase: "epilogue", AgentID: "BENCH-001"})

	if !errors.Is(err, apperr.ErrCheckpointNotFound) {
		t.Errorf("expected ErrCheckpointNotFound, got %v", err)
	}
}

func TestReleaseLock_Outcomes(t *testing.T) {
	tests := []struct {
		name          string
		target        *int
		completed     int
		outcome       primary.ReleaseOutcome
		wantStatus    string
		wantCompleted int
		wantReason    string
	}{
		{
			name:          "success below target stays in progress",
			target:        intPtr(3),
			outcome:       primary.ReleaseOutcome{Kind: "success"},
			wantStatus:    "in_progress",
			wantCompleted: 1,
		},
		{
			name:          "success reaching target completes",
			target:        intPtr(2),
			completed:     1,
			outcome:       primary.ReleaseOutcome{Kind: "success"},
			wantStatus:    "complete",
			wantCompleted: 2,
		},
		{
			name:          "failure blocks with reason",
			outcome:       primary.ReleaseOutcome{Kind: "failure", Reason: "validator rejected chapter 3"},
			wantStatus:    "blocked",
			wantCompleted: 0,
			wantReason:    "validator rejected chapter 3",
		},
		{
			name:          "released leaves count alone",
			completed:     2,
			outcome:       primary.ReleaseOutcome{Kind: "released"},
			wantStatus:    "in_progress",
			wantCompleted: 2,
		},
		{
			name:          "released with phase complete",
			outcome:       primary.ReleaseOutcome{Kind: "released", PhaseComplete: true},
			wantStatus:    "complete",
			wantCompleted: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, checkpoints, plans, _ := newTestCheckpointService(CheckpointConfig{})
			plans.addPlan("PLAN-001", "active")
			cp := checkpoints.addCheckpoint("PLAN-001", "drafting", tt.target)
			cp.CompletedCount = tt.completed
			ctx := context.Background()

			lease, err := service.AcquireLock(ctx, primary.AcquireLockRequest{PlanID: "PLAN-001", Phase: "drafting", AgentID: "BENCH-001"})
			if err != nil {
				t.Fatalf("acquire failed: %v", err)
			}

			got, err := service.ReleaseLock(ctx, primary.ReleaseLockRequest{
				CheckpointID: lease.Checkpoint.ID,
				Epoch:        lease.Epoch,
				Outcome:      tt.outcome,
			})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if got.Status != tt.wantStatus {
				t.Errorf("expected status '%s', got '%s'", tt.wantStatus, got.Status)
			}
			if got.CompletedCount != tt.wantCompleted {
				t.Errorf("expected completed %d, got %d", tt.wantCompleted, got.CompletedCount)
			}
			if got.BlockedReason != tt.wantReason {
				t.Errorf("expected reason '%s', got '%s'", tt.wantReason, got.BlockedReason)
			}
			if got.LockedByAgent != "" {
				t.Errorf("expected lock cleared, still held by '%s'", got.LockedByAgent)
			}
		})
	}
}

func TestReleaseLock_StaleEpoch(t *testing.T) {
	service, checkpoints, plans, _ := newTestCheckpointService(CheckpointConfig{})
	plans.addPlan("PLAN-001", "active")
	checkpoints.addCheckpoint("PLAN-001", "drafting", nil)
	ctx := context.Background()

	lease, err := service.AcquireLock(ctx, primary.AcquireLockRequest{PlanID: "PLAN-001", Phase: "drafting", AgentID: "BENCH-001"})
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	_, err = service.ReleaseLock(ctx, primary.ReleaseLockRequest{
		CheckpointID: lease.Checkpoint.ID,
		Epoch:        lease.Epoch - 1,
		Outcome:      primary.ReleaseOutcome{Kind: "success"},
	})
	if !errors.Is(err, apperr.ErrLockStale) {
		t.Errorf("expected ErrLockStale, got %v", err)
	}
	if len(checkpoints.releases) != 0 {
		t.Errorf("expected no release to reach the repository, got %d", len(checkpoints.releases))
	}
}

func TestReleaseLock_UnknownOutcome(t *testing.T) {
	service, checkpoints, plans, _ := newTestCheckpointService(CheckpointConfig{})
	plans.addPlan("PLAN-001", "active")
	checkpoints.addCheckpoint("PLAN-001", "drafting", nil)
	ctx := context.Background()

	lease, _ := service.AcquireLock(ctx, primary.AcquireLockRequest{PlanID: "PLAN-001", Phase: "drafting", AgentID: "BENCH-001"})

	_, err := service.ReleaseLock(ctx, primary.ReleaseLockRequest{
		CheckpointID: lease.Checkpoint.ID,
		Epoch:        lease.Epoch,
		Outcome:      primary.ReleaseOutcome{Kind: "triumph"},
	})
	if !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestReleaseLock_ObligationGate(t *testing.T) {
	service, checkpoints, plans, obligations := newTestCheckpointService(CheckpointConfig{RequireObligationsClear: true})
	plans.addPlan("PLAN-001", "active")
	checkpoints.addCheckpoint("PLAN-001", "drafting", intPtr(1))
	obligations.openCount = 2
	ctx := context.Background()

	lease, _ := service.AcquireLock(ctx, primary.AcquireLockRequest{PlanID: "PLAN-001", Phase: "drafting", AgentID: "BENCH-001"})
	got, err := service.ReleaseLock(ctx, primary.ReleaseLockRequest{
		CheckpointID: lease.Checkpoint.ID,
		Epoch:        lease.Epoch,
		Outcome:      primary.ReleaseOutcome{Kind: "success"},
	})

	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.Status != "blocked" {
		t.Errorf("expected status 'blocked', got '%s'", got.Status)
	}
	if !strings.Contains(got.BlockedReason, "2 open obligation") {
		t.Errorf("expected obligation reason, got '%s'", got.BlockedReason)
	}
	if got.CompletedCount != 1 {
		t.Errorf("expected the success to still count, got %d", got.CompletedCount)
	}
}

func TestReleaseLock_CompletesPlan(t *testing.T) {
	service, checkpoints, plans, _ := newTestCheckpointService(CheckpointConfig{})
	plans.addPlan("PLAN-001", "active")
	checkpoints.addCheckpoint("PLAN-001", "outline", nil).Status = "complete"
	checkpoints.addCheckpoint("PLAN-001", "drafting", intPtr(1))
	ctx := context.Background()

	lease, _ := service.AcquireLock(ctx, primary.AcquireLockRequest{PlanID: "PLAN-001", Phase: "drafting", AgentID: "BENCH-001"})
	if _, err := service.ReleaseLock(ctx, primary.ReleaseLockRequest{
		CheckpointID: lease.Checkpoint.ID,
		Epoch:        lease.Epoch,
		Outcome:      primary.ReleaseOutcome{Kind: "success"},
	}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if plans.plans["PLAN-001"].Status != "completed" {
		t.Errorf("expected plan 'completed', got '%s'", plans.plans["PLAN-001"].Status)
	}
}

func TestWithLock_ReleasesOutcome(t *testing.T) {
	service, checkpoints, plans, _ := newTestCheckpointService(CheckpointConfig{})
	plans.addPlan("PLAN-001", "active")
	checkpoints.addCheckpoint("PLAN-001", "drafting", intPtr(5))

	var sawEpoch int64
	got, err := service.WithLock(context.Background(), primary.AcquireLockRequest{PlanID: "PLAN-001", Phase: "drafting", AgentID: "BENCH-001"},
		func(ctx context.Context, lease *primary.Lease) (primary.ReleaseOutcome, error) {
			sawEpoch = lease.Epoch
			return primary.ReleaseOutcome{Kind: "success"}, nil
		})

	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if sawEpoch != 1 {
		t.Errorf("expected fn to see epoch 1, got %d", sawEpoch)
	}
	if got.CompletedCount != 1 {
		t.Errorf("expected completed 1, got %d", got.CompletedCount)
	}
}

func TestWithLock_EmptyOutcomeReleases(t *testing.T) {
	service, checkpoints, plans, _ := newTestCheckpointService(CheckpointConfig{})
	plans.addPlan("PLAN-001", "active")
	checkpoints.addCheckpoint("PLAN-001", "drafting", nil)

	got, err := service.WithLock(context.Background(), primary.AcquireLockRequest{PlanID: "PLAN-001", Phase: "drafting", AgentID: "BENCH-001"},
		func(ctx context.Context, lease *primary.Lease) (primary.ReleaseOutcome, error) {
			return primary.ReleaseOutcome{}, nil
		})

	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.Status != "in_progress" || got.CompletedCount != 0 {
		t.Errorf("expected untouched in_progress checkpoint, got %s/%d", got.Status, got.CompletedCount)
	}
}

func TestWithLock_ErrorBlocksPhase(t *testing.T) {
	service, checkpoints, plans, _ := newTestCheckpointService(CheckpointConfig{})
	plans.addPlan("PLAN-001", "active")
	cp := checkpoints.addCheckpoint("PLAN-001", "drafting", nil)
	boom := errors.New("generator crashed")

	_, err := service.WithLock(context.Background(), primary.AcquireLockRequest{PlanID: "PLAN-001", Phase: "drafting", AgentID: "BENCH-001"},
		func(ctx context.Context, lease *primary.Lease) (primary.ReleaseOutcome, error) {
			return primary.ReleaseOutcome{Kind: "success"}, boom
		})

	if !errors.Is(err, boom) {
		t.Errorf("expected fn error, got %v", err)
	}
	stored := checkpoints.get(cp.ID)
	if stored.Status != "blocked" {
		t.Errorf("expected status 'blocked', got '%s'", stored.Status)
	}
	if stored.BlockedReason != "generator crashed" {
		t.Errorf("expected reason 'generator crashed', got '%s'", stored.BlockedReason)
	}
	if stored.Locked() {
		t.Error("expected lock to be released")
	}
}

func TestWithLock_PanicReleasesAndRepanics(t *testing.T) {
	service, checkpoints, plans, _ := newTestCheckpointService(CheckpointConfig{})
	plans.addPlan("PLAN-001", "active")
	cp := checkpoints.addCheckpoint("PLAN-001", "drafting", nil)

	func() {
		defer func() {
			if r := recover(); r != "kaboom" {
				t.Errorf("expected re-panic with 'kaboom', got %v", r)
			}
		}()
		_, _ = service.WithLock(context.Background(), primary.AcquireLockRequest{PlanID: "PLAN-001", Phase: "drafting", AgentID: "BENCH-001"},
			func(ctx context.Context, lease *primary.Lease) (primary.ReleaseOutcome, error) {
				panic("kaboom")
			})
	}()

	stored := checkpoints.get(cp.ID)
	if stored.Locked() {
		t.Error("expected lock to be released after panic")
	}
	if stored.Status != "blocked" || !strings.Contains(stored.BlockedReason, "kaboom") {
		t.Errorf("expected blocked with panic reason, got %s/%q", stored.Status, stored.BlockedReason)
	}
}

func TestWithLock_HeldReturnsBusy(t *testing.T) {
	service, checkpoints, plans, _ := newTestCheckpointService(CheckpointConfig{
		Retry: RetryPolicy{MaxAttempts: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond},
	})
	plans.addPlan("PLAN-001", "active")
	cp := checkpoints.addCheckpoint("PLAN-001", "drafting", nil)
	cp.Status = "in_progress"
	cp.LockedByAgent = "BENCH-009"
	cp.LockedAt = testNow
	cp.LockEpoch = 1

	called := false
	_, err := service.WithLock(context.Background(), primary.AcquireLockRequest{PlanID: "PLAN-001", Phase: "drafting", AgentID: "BENCH-001"},
		func(ctx context.Context, lease *primary.Lease) (primary.ReleaseOutcome, error) {
			called = true
			return primary.ReleaseOutcome{}, nil
		})

	if !errors.Is(err, apperr.ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}
	if !errors.Is(err, apperr.ErrLockHeld) {
		t.Errorf("expected ErrLockHeld in chain, got %v", err)
	}
	if called {
		t.Error("expected fn not to run")
	}
}

func TestWithLock_HeartbeatLossCancelsRun(t *testing.T) {
	service, checkpoints, plans, _ := newTestCheckpointService(CheckpointConfig{HeartbeatInterval: time.Millisecond})
	plans.addPlan("PLAN-001", "active")
	checkpoints.addCheckpoint("PLAN-001", "drafting", nil)
	checkpoints.heartbeatErr = apperr.ErrLockStale

	_, err := service.WithLock(context.Background(), primary.AcquireLockRequest{PlanID: "PLAN-001", Phase: "drafting", AgentID: "BENCH-001"},
		func(ctx context.Context, lease *primary.Lease) (primary.ReleaseOutcome, error) {
			select {
			case <-ctx.Done():
				return primary.ReleaseOutcome{}, context.Cause(ctx)
			case <-time.After(5 * time.Second):
				return primary.ReleaseOutcome{Kind: "success"}, nil
			}
		})

	if !errors.Is(err, apperr.ErrLockStale) {
		t.Errorf("expected ErrLockStale from the cancelled run, got %v", err)
	}
}

func TestSetTargetCount(t *testing.T) {
	service, checkpoints, plans, _ := newTestCheckpointService(CheckpointConfig{})
	plans.addPlan("PLAN-001", "active")
	cp := checkpoints.addCheckpoint("PLAN-001", "drafting", nil)
	cp.CompletedCount = 3
	ctx := context.Background()

	got, err := service.SetTargetCount(ctx, "PLAN-001", "drafting", intPtr(12))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.TargetCount == nil || *got.TargetCount != 12 {
		t.Errorf("expected target 12, got %v", got.TargetCount)
	}

	_, err = service.SetTargetCount(ctx, "PLAN-001", "drafting", intPtr(2))
	if !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for target below completed, got %v", err)
	}

	cp.Status = "complete"
	_, err = service.SetTargetCount(ctx, "PLAN-001", "drafting", intPtr(20))
	if !errors.Is(err, apperr.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState for complete phase, got %v", err)
	}
}

func TestListCheckpoints_PlanNotFound(t *testing.T) {
	service, _, _, _ := newTestCheckpointService(CheckpointConfig{})

	_, err := service.ListCheckpoints(context.Background(), "PLAN-404")

	if !errors.Is(err, apperr.ErrPlanNotFound) {
		t.Errorf("expected ErrPlanNotFound, got %v", err)
	}
}
