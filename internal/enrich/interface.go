package enrich

import (
	"context"

	"github.com/shanehull/phonesourcer/internal/model"
)

// Candidate is one raw phone found for an entity. Key names the record it
// came from (the entity itself or one of its sub-records).
type Candidate struct {
	Raw string
	Key string
}

// Extractor finds raw phone candidates for a discovered entity, possibly by
// fetching detail pages or sub-records. No candidates and a nil error means
// the entity has no phone.
type Extractor interface {
	Name() string
	Extract(ctx context.Context, ent model.Entity) ([]Candidate, error)
}
