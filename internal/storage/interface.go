package storage

import (
	"context"

	"github.com/shanehull/phonesourcer/internal/model"
)

// CheckpointStore persists a collector's progress between runs.
type CheckpointStore interface {
	Load(ctx context.Context) (*model.AcceptedSet, model.EntitySet, error)
	Save(ctx context.Context, set *model.AcceptedSet, processed model.EntitySet) error
}

// Exporter renders the accepted set to an artifact. Every call overwrites
// the previous snapshot.
type Exporter interface {
	Snapshot(ctx context.Context, set *model.AcceptedSet) error
}
