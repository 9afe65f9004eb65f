package content

import "testing"

func TestCanCreateSlot(t *testing.T) {
	tests := []struct {
		name        string
		ctx         CreateSlotContext
		wantAllowed bool
		wantReason  string
	}{
		{
			name:        "world bible entry at top level",
			ctx:         CreateSlotContext{Kind: KindWorldBibleEntry, Key: "harbor-city"},
			wantAllowed: true,
		},
		{
			name:        "scroll under blueprint",
			ctx:         CreateSlotContext{Kind: KindChapterScroll, Key: "ch1", ContainerSlotID: "SLOT-1", ContainerKind: KindChapterBlueprint},
			wantAllowed: true,
		},
		{
			name:        "scene under scroll is rejected",
			ctx:         CreateSlotContext{Kind: KindChapterScene, Key: "s1", ContainerSlotID: "SLOT-1", ContainerKind: KindChapterScroll},
			wantAllowed: false,
			wantReason:  "chapter_scene slots belong under a chapter_section, not a chapter_scroll",
		},
		{
			name:        "section without container",
			ctx:         CreateSlotContext{Kind: KindChapterSection, Key: "s1"},
			wantAllowed: false,
			wantReason:  "chapter_section slots need a chapter_scroll container",
		},
		{
			name:        "missing container",
			ctx:         CreateSlotContext{Kind: KindChapterSection, Key: "s1", ContainerSlotID: "SLOT-9"},
			wantAllowed: false,
			wantReason:  "container slot SLOT-9 not found",
		},
		{
			name:        "top level kind with container",
			ctx:         CreateSlotContext{Kind: KindChapterBlueprint, Key: "b", ContainerSlotID: "SLOT-1", ContainerKind: KindWorldBibleEntry},
			wantAllowed: false,
			wantReason:  "chapter_blueprint slots are top level and cannot have a container",
		},
		{
			name:        "unknown kind",
			ctx:         CreateSlotContext{Kind: "epilogue", Key: "e"},
			wantAllowed: false,
			wantReason:  `unknown content kind "epilogue"`,
		},
		{
			name:        "missing key",
			ctx:         CreateSlotContext{Kind: KindWorldBibleEntry},
			wantAllowed: false,
			wantReason:  "content slot key is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CanCreateSlot(tt.ctx)
			if result.Allowed != tt.wantAllowed {
				t.Errorf("Allowed = %v, want %v", result.Allowed, tt.wantAllowed)
			}
			if !tt.wantAllowed && result.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", result.Reason, tt.wantReason)
			}
		})
	}
}

func TestCanDeriveFrom(t *testing.T) {
	tests := []struct {
		name        string
		ctx         DeriveContext
		wantAllowed bool
	}{
		{name: "no lineage", ctx: DeriveContext{}, wantAllowed: true},
		{
			name:        "earlier version in same slot",
			ctx:         DeriveContext{DerivedFromID: "VER-1", Exists: true, SourceSlotID: "SLOT-1", TargetSlotID: "SLOT-1", SourceSeq: 4, NextSeq: 9},
			wantAllowed: true,
		},
		{
			name:        "missing source",
			ctx:         DeriveContext{DerivedFromID: "VER-404", TargetSlotID: "SLOT-1"},
			wantAllowed: false,
		},
		{
			name:        "source in another slot",
			ctx:         DeriveContext{DerivedFromID: "VER-1", Exists: true, SourceSlotID: "SLOT-2", TargetSlotID: "SLOT-1", SourceSeq: 1},
			wantAllowed: false,
		},
		{
			name:        "source not strictly earlier",
			ctx:         DeriveContext{DerivedFromID: "VER-1", Exists: true, SourceSlotID: "SLOT-1", TargetSlotID: "SLOT-1", SourceSeq: 9, NextSeq: 9},
			wantAllowed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanDeriveFrom(tt.ctx).Allowed; got != tt.wantAllowed {
				t.Errorf("Allowed = %v, want %v", got, tt.wantAllowed)
			}
		})
	}
}

func TestCanBranch(t *testing.T) {
	for _, tag := range []string{"alt-ending", "v2", "mara.pov"} {
		if !CanBranch(tag).Allowed {
			t.Errorf("expected %q to be a valid tag", tag)
		}
	}
	for _, tag := range []string{"", "Alt Ending", "-lead", "x/y"} {
		if CanBranch(tag).Allowed {
			t.Errorf("expected %q to be rejected", tag)
		}
	}
}

func TestCountActive(t *testing.T) {
	if got := CountActive([]bool{false, true, false}); got != 1 {
		t.Errorf("CountActive = %d", got)
	}
	if got := CountActive(nil); got != 0 {
		t.Errorf("CountActive(nil) = %d", got)
	}
}
