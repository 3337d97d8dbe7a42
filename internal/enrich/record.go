package enrich

import (
	"context"

	"github.com/shanehull/phonesourcer/internal/model"
)

// RecordExtractor reads the phone straight off the discovered record.
type RecordExtractor struct{}

func (RecordExtractor) Name() string { return "record" }

func (RecordExtractor) Extract(_ context.Context, ent model.Entity) ([]Candidate, error) {
	return fromRecord(ent.Record, ent.ID), nil
}

func fromRecord(rec model.Record, fallbackKey string) []Candidate {
	raw, ok := rec.RawPhone()
	if !ok {
		return nil
	}
	key, ok := rec.ID()
	if !ok {
		key = fallbackKey
	}
	return []Candidate{{Raw: raw, Key: key}}
}
