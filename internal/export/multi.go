package export

import (
	"context"
	"errors"

	"github.com/shanehull/phonesourcer/internal/model"
	"github.com/shanehull/phonesourcer/internal/storage"
)

// Multi fans one snapshot out to every exporter. All exporters run even if
// one fails; the errors are joined.
type Multi []storage.Exporter

func (m Multi) Snapshot(ctx context.Context, set *model.AcceptedSet) error {
	var errs []error
	for _, e := range m {
		if err := e.Snapshot(ctx, set); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
