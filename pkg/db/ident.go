package db

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
)

// RefKind tags how a Ref identifies a document.
type RefKind int

const (
	RefByID RefKind = iota
	RefByRoom
)

// Ref identifies a document either by its durable KSUID or by its room UUID.
// The two shapes are disjoint, so an incoming path parameter can be tagged
// once at the API boundary instead of trial-and-error lookups.
type Ref struct {
	Kind  RefKind
	Value string
}

// ByID builds a Ref for a durable document identifier.
func ByID(id string) Ref {
	return Ref{Kind: RefByID, Value: id}
}

// ByRoom builds a Ref for a room identifier.
func ByRoom(roomID string) Ref {
	return Ref{Kind: RefByRoom, Value: roomID}
}

// ParseRef tags a raw identifier as a document ID (27-char KSUID) or a room
// ID (UUID). Anything else is a validation error.
func ParseRef(raw string) (Ref, error) {
	if _, err := ksuid.Parse(raw); err == nil && len(raw) == 27 {
		return ByID(raw), nil
	}
	if _, err := uuid.Parse(raw); err == nil {
		return ByRoom(raw), nil
	}
	return Ref{}, fmt.Errorf("%w: unrecognized identifier %q", ErrValidation, raw)
}
