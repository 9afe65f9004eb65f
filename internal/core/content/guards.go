// Package content contains the pure rules of the versioned narrative hierarchy.
package content

import (
	"fmt"
	"regexp"
)

// Slot kinds. Every kind shares the same versioning pattern.
const (
	KindWorldBibleEntry  = "world_bible_entry"
	KindChapterBlueprint = "chapter_blueprint"
	KindChapterScroll    = "chapter_scroll"
	KindChapterSection   = "chapter_section"
	KindChapterScene     = "chapter_scene"
)

// containerKind maps each kind to the kind it must live under ("" = top level).
var containerKind = map[string]string{
	KindWorldBibleEntry:  "",
	KindChapterBlueprint: "",
	KindChapterScroll:    KindChapterBlueprint,
	KindChapterSection:   KindChapterScroll,
	KindChapterScene:     KindChapterSection,
}

var tagPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

// GuardResult represents the outcome of a guard evaluation.
type GuardResult struct {
	Allowed bool
	Reason  string
}

// Error converts the guard result to an error if not allowed.
func (r GuardResult) Error() error {
	if r.Allowed {
		return nil
	}
	return fmt.Errorf("%s", r.Reason)
}

// CreateSlotContext provides context for slot creation guards.
type CreateSlotContext struct {
	Kind            string
	Key             string
	ContainerSlotID string // empty for top-level kinds
	ContainerKind   string // kind of ContainerSlotID, empty if not found
}

// DeriveContext provides context for lineage guards.
type DeriveContext struct {
	DerivedFromID string
	Exists        bool
	SourceSlotID  string
	TargetSlotID  string
	SourceSeq     int64
	NextSeq       int64 // lower bound for the sequence the new version will get
}

// ValidKind reports whether kind is a known slot kind.
func ValidKind(kind string) bool {
	_, ok := containerKind[kind]
	return ok
}

// Kinds lists the slot kinds from the top of the hierarchy down.
func Kinds() []string {
	return []string{KindWorldBibleEntry, KindChapterBlueprint, KindChapterScroll, KindChapterSection, KindChapterScene}
}

// CanCreateSlot evaluates whether a content slot can be created.
// Rules:
// - Kind must be known and key non-empty
// - Scrolls, sections and scenes need a container of the kind above them
// - World-bible entries and blueprints are top level
func CanCreateSlot(ctx CreateSlotContext) GuardResult {
	want, ok := containerKind[ctx.Kind]
	if !ok {
		return GuardResult{Allowed: false, Reason: fmt.Sprintf("unknown content kind %q", ctx.Kind)}
	}
	if ctx.Key == "" {
		return GuardResult{Allowed: false, Reason: "content slot key is required"}
	}

	if want == "" {
		if ctx.ContainerSlotID != "" {
			return GuardResult{Allowed: false, Reason: fmt.Sprintf("%s slots are top level and cannot have a container", ctx.Kind)}
		}
		return GuardResult{Allowed: true}
	}

	if ctx.ContainerSlotID == "" {
		return GuardResult{Allowed: false, Reason: fmt.Sprintf("%s slots need a %s container", ctx.Kind, want)}
	}
	if ctx.ContainerKind == "" {
		return GuardResult{Allowed: false, Reason: fmt.Sprintf("container slot %s not found", ctx.ContainerSlotID)}
	}
	if ctx.ContainerKind != want {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("%s slots belong under a %s, not a %s", ctx.Kind, want, ctx.ContainerKind),
		}
	}
	return GuardResult{Allowed: true}
}

// CanDeriveFrom evaluates whether a new version may name DerivedFromID as
// its lineage parent.
// Rules:
// - The source version must exist
// - The source must belong to the same slot
// - The source must have been created strictly earlier (no cycles)
func CanDeriveFrom(ctx DeriveContext) GuardResult {
	if ctx.DerivedFromID == "" {
		return GuardResult{Allowed: true}
	}
	if !ctx.Exists {
		return GuardResult{Allowed: false, Reason: fmt.Sprintf("version %s not found", ctx.DerivedFromID)}
	}
	if ctx.SourceSlotID != ctx.TargetSlotID {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("version %s belongs to slot %s, not %s", ctx.DerivedFromID, ctx.SourceSlotID, ctx.TargetSlotID),
		}
	}
	if ctx.NextSeq > 0 && ctx.SourceSeq >= ctx.NextSeq {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("version %s was not created before the new version", ctx.DerivedFromID),
		}
	}
	return GuardResult{Allowed: true}
}

// CanBranch evaluates whether tag is usable as a branch tag.
// Rules:
// - Tag must be a lowercase slug
func CanBranch(tag string) GuardResult {
	if !tagPattern.MatchString(tag) {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("branch tag %q must be a lowercase slug (a-z, 0-9, '.', '_', '-')", tag),
		}
	}
	return GuardResult{Allowed: true}
}

// CountActive returns how many of the flags are set. Used to assert the
// single-active-version invariant.
func CountActive(flags []bool) int {
	n := 0
	for _, f := range flags {
		if f {
			n++
		}
	}
	return n
}
