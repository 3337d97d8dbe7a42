package source

import (
	"context"

	"github.com/shanehull/phonesourcer/internal/model"
)

// RecordSource yields pages of raw records. Pages are numbered from 1. An
// empty page with a nil error means the source is exhausted. Errors are
// tagged with a resilience.Kind.
type RecordSource interface {
	Name() string
	NextPage(ctx context.Context, page int) ([]model.Record, error)
}
