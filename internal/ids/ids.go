// Package ids generates prefixed, time-ordered identifiers.
package ids

import (
	"strings"

	"github.com/google/uuid"
)

// Entity prefixes.
const (
	Plan         = "PLAN"
	Checkpoint   = "CKPT"
	BacklogItem  = "ITEM"
	Slot         = "SLOT"
	Version      = "VER"
	Transcript   = "TRN"
	Obligation   = "OBL"
	Character    = "CHAR"
	Lore         = "LORE"
	Conversation = "CONV"
	Task         = "TASK"
)

// New returns PREFIX-<uuidv7>. Ids sort by creation time and are safe to
// mint from concurrent workers.
func New(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return prefix + "-" + id.String()
}

// Prefix returns the entity prefix of id, or "" if it has none.
func Prefix(id string) string {
	i := strings.Index(id, "-")
	if i <= 0 {
		return ""
	}
	return id[:i]
}

// Valid reports whether id is PREFIX-<uuid> with the expected prefix.
func Valid(id, prefix string) bool {
	rest, ok := strings.CutPrefix(id, prefix+"-")
	if !ok {
		return false
	}
	_, err := uuid.Parse(rest)
	return err == nil
}
