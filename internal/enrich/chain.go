package enrich

import (
	"context"
	"log/slog"

	"github.com/rotisserie/eris"

	"github.com/shanehull/phonesourcer/internal/model"
	"github.com/shanehull/phonesourcer/internal/resilience"
)

// Chain tries extractors in order and returns the first non-empty result.
// A fatal error stops the chain; other errors only surface when no
// extractor produced a candidate.
type Chain struct {
	logger     *slog.Logger
	extractors []Extractor
}

func NewChain(logger *slog.Logger, extractors ...Extractor) *Chain {
	return &Chain{logger: logger, extractors: extractors}
}

func (c *Chain) Name() string { return "chain" }

func (c *Chain) Extract(ctx context.Context, ent model.Entity) ([]Candidate, error) {
	var lastErr error
	for _, ex := range c.extractors {
		cands, err := ex.Extract(ctx, ent)
		if err != nil {
			if resilience.IsFatal(err) {
				return nil, err
			}
			c.logger.Debug("Extractor failed, trying next", "extractor", ex.Name(), "entity", ent.ID, "err", err)
			lastErr = err
			continue
		}
		if len(cands) > 0 {
			return cands, nil
		}
	}
	if lastErr != nil {
		return nil, eris.Wrap(lastErr, "enrich: all extractors failed")
	}
	return nil, nil
}
