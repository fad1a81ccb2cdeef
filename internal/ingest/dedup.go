package ingest

import (
	"context"

	"github.com/anprfile/lpr-ingest/internal/datastore"
)

// DedupGate answers whether a path has already been ingested. It is a
// pre-check only: the store's unique path index decides races.
type DedupGate struct {
	handle datastore.Handle
}

// NewDedupGate returns a gate backed by h.
func NewDedupGate(h datastore.Handle) *DedupGate {
	return &DedupGate{handle: h}
}

// Exists reports whether a record for relPath is stored.
func (g *DedupGate) Exists(ctx context.Context, relPath string) (bool, error) {
	return g.handle.ExistsByPath(ctx, relPath)
}
