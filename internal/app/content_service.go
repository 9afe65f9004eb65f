package app

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode"

	"github.com/example/quill/internal/apperr"
	corecontent "github.com/example/quill/internal/core/content"
	"github.com/example/quill/internal/ids"
	"github.com/example/quill/internal/ports/primary"
	"github.com/example/quill/internal/ports/secondary"
)

// ContentServiceImpl implements the ContentService interface.
type ContentServiceImpl struct {
	contentRepo secondary.ContentRepository
	planRepo    secondary.PlanRepository
	now         func() time.Time
}

// NewContentService creates a new ContentService with injected dependencies.
func NewContentService(contentRepo secondary.ContentRepository, planRepo secondary.PlanRepository) *ContentServiceImpl {
	return &ContentServiceImpl{
		contentRepo: contentRepo,
		planRepo:    planRepo,
		now:         time.Now,
	}
}

// EnsureSlot returns the slot for (plan, kind, key), creating it if needed.
func (s *ContentServiceImpl) EnsureSlot(ctx context.Context, req primary.EnsureSlotRequest) (*primary.Slot, error) {
	existing, err := s.contentRepo.FindSlot(ctx, req.PlanID, req.Kind, req.Key)
	if err == nil {
		return recordToSlot(existing), nil
	}
	if !errors.Is(err, apperr.ErrSlotNotFound) {
		return nil, fmt.Errorf("failed to look up slot: %w", err)
	}

	if _, err := s.planRepo.GetByID(ctx, req.PlanID); err != nil {
		return nil, err
	}

	guardCtx := corecontent.CreateSlotContext{
		Kind:            req.Kind,
		Key:             req.Key,
		ContainerSlotID: req.ContainerSlotID,
	}
	if req.ContainerSlotID != "" {
		container, err := s.contentRepo.GetSlot(ctx, req.ContainerSlotID)
		switch {
		case err == nil && container.PlanID == req.PlanID:
			guardCtx.ContainerKind = container.Kind
		case err == nil, errors.Is(err, apperr.ErrSlotNotFound):
			// Leaves ContainerKind empty; the guard reports it missing.
		default:
			return nil, fmt.Errorf("failed to look up container slot: %w", err)
		}
	}
	if err := corecontent.CanCreateSlot(guardCtx).Error(); err != nil {
		return nil, guardError(apperr.ErrInvalidArgument, err)
	}

	record := &secondary.SlotRecord{
		ID:              ids.New(ids.Slot),
		PlanID:          req.PlanID,
		Kind:            req.Kind,
		Key:             req.Key,
		ContainerSlotID: req.ContainerSlotID,
		CreatedAt:       s.now(),
	}
	if err := s.contentRepo.CreateSlot(ctx, record); err != nil {
		if errors.Is(err, apperr.ErrDuplicateSlot) {
			// Lost a race with another writer; theirs is as good as ours.
			existing, findErr := s.contentRepo.FindSlot(ctx, req.PlanID, req.Kind, req.Key)
			if findErr == nil {
				return recordToSlot(existing), nil
			}
		}
		return nil, fmt.Errorf("failed to create slot: %w", err)
	}
	return recordToSlot(record), nil
}

// GetSlot retrieves a slot by ID.
func (s *ContentServiceImpl) GetSlot(ctx context.Context, slotID string) (*primary.Slot, error) {
	record, err := s.contentRepo.GetSlot(ctx, slotID)
	if err != nil {
		return nil, err
	}
	return recordToSlot(record), nil
}

// ListSlots lists a plan's slots, optionally of one kind.
func (s *ContentServiceImpl) ListSlots(ctx context.Context, planID, kind string) ([]*primary.Slot, error) {
	if kind != "" && !corecontent.ValidKind(kind) {
		return nil, fmt.Errorf("%w: unknown content kind %q", apperr.ErrInvalidArgument, kind)
	}
	records, err := s.contentRepo.ListSlots(ctx, planID, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to list slots: %w", err)
	}
	slots := make([]*primary.Slot, len(records))
	for i, r := range records {
		slots[i] = recordToSlot(r)
	}
	return slots, nil
}

// CreateVersion appends an inactive version with the next index.
func (s *ContentServiceImpl) CreateVersion(ctx context.Context, req primary.CreateVersionRequest) (*primary.Version, error) {
	metadata := secondary.ContentMetadata(req.Metadata)
	if metadata.WordCount == 0 {
		metadata.WordCount = countWords(req.Body)
	}
	return s.createVersion(ctx, secondary.CreateVersionParams{
		SlotID:        req.SlotID,
		Body:          req.Body,
		DerivedFromID: req.DerivedFromID,
		Metadata:      metadata,
	})
}

func (s *ContentServiceImpl) createVersion(ctx context.Context, params secondary.CreateVersionParams) (*primary.Version, error) {
	params.ID = ids.New(ids.Version)
	params.Now = s.now()
	record, err := s.contentRepo.CreateVersion(ctx, params)
	if err != nil {
		return nil, err
	}
	return recordToVersion(record), nil
}

// Activate makes a version the only active one of its slot.
func (s *ContentServiceImpl) Activate(ctx context.Context, versionID string) (*primary.Version, error) {
	record, err := s.contentRepo.Activate(ctx, versionID, s.now())
	if err != nil {
		return nil, err
	}
	return recordToVersion(record), nil
}

// Branch copies a version into a new tagged, inactive version.
func (s *ContentServiceImpl) Branch(ctx context.Context, req primary.BranchRequest) (*primary.Version, error) {
	if err := corecontent.CanBranch(req.BranchTag).Error(); err != nil {
		return nil, guardError(apperr.ErrInvalidArgument, err)
	}
	source, err := s.contentRepo.GetVersion(ctx, req.VersionID)
	if err != nil {
		return nil, err
	}
	return s.createVersion(ctx, secondary.CreateVersionParams{
		SlotID:        source.SlotID,
		Body:          source.Body,
		DerivedFromID: source.ID,
		BranchTag:     req.BranchTag,
		Metadata:      source.Metadata,
	})
}

// GetVersion retrieves a version by ID.
func (s *ContentServiceImpl) GetVersion(ctx context.Context, versionID string) (*primary.Version, error) {
	record, err := s.contentRepo.GetVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	return recordToVersion(record), nil
}

// GetActive returns a slot's active version.
func (s *ContentServiceImpl) GetActive(ctx context.Context, slotID string) (*primary.Version, error) {
	record, err := s.contentRepo.GetActive(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("%w: slot %s has no active version", apperr.ErrVersionNotFound, slotID)
	}
	return recordToVersion(record), nil
}

// ListVersions lists a slot's versions by index.
func (s *ContentServiceImpl) ListVersions(ctx context.Context, slotID string) ([]*primary.Version, error) {
	if _, err := s.contentRepo.GetSlot(ctx, slotID); err != nil {
		return nil, err
	}
	records, err := s.contentRepo.ListVersions(ctx, slotID)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	return recordsToVersions(records), nil
}

// Lineage returns a version and its ancestors, newest first.
func (s *ContentServiceImpl) Lineage(ctx context.Context, versionID string) ([]*primary.Version, error) {
	records, err := s.contentRepo.Lineage(ctx, versionID)
	if err != nil {
		return nil, err
	}
	return recordsToVersions(records), nil
}

func countWords(body string) int {
	n := 0
	inWord := false
	for _, r := range body {
		if unicode.IsSpace(r) {
			inWord = false
			continue
		}
		if !inWord {
			n++
			inWord = true
		}
	}
	return n
}

// Ensure ContentServiceImpl implements the interface
var _ primary.ContentService = (*ContentServiceImpl)(nil)
