// Package files holds the auto-save coordinator: the background, best-effort
// persistence path triggered by client idle timers.
package files

import (
	"context"
	"log"

	"coderooms/pkg/db"
)

// AutoSaver persists code in the background without surfacing failures.
// Explicit saves go straight through the store and bump the version; this
// path never does.
type AutoSaver struct {
	store db.FileStore
}

// NewAutoSaver creates a coordinator over the given store.
func NewAutoSaver(store db.FileStore) *AutoSaver {
	return &AutoSaver{store: store}
}

// Save persists code for the referenced document. Missing documents, denied
// access and storage failures are logged and swallowed; auto-save must never
// interrupt an editing session.
func (a *AutoSaver) Save(ctx context.Context, ref db.Ref, code, userID string) {
	if userID == "" {
		return
	}
	if err := a.store.AutoSave(ctx, ref, code, userID); err != nil {
		log.Printf("auto-save %s skipped: %v", ref.Value, err)
	}
}
