package enrich

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/shanehull/phonesourcer/internal/model"
	"github.com/shanehull/phonesourcer/internal/resilience"
	"github.com/shanehull/phonesourcer/internal/source"
)

// APIClient is the subset of source.APIClient the API extractors need.
type APIClient interface {
	GetRecords(ctx context.Context, path string, params map[string]string) ([]model.Record, error)
	GetObject(ctx context.Context, path string, params map[string]string) (model.Record, error)
	PostObject(ctx context.Context, path string, params map[string]string) (model.Record, error)
	FetchHTML(ctx context.Context, url string) (string, error)
}

var _ APIClient = (*source.APIClient)(nil)

// BrokerExtractor collects phones for an agency: the listed record itself,
// its detail object, its sub-agents and, optionally, the company agents
// endpoint.
type BrokerExtractor struct {
	client          APIClient
	logger          *slog.Logger
	maxSubPages     int
	companyFallback bool
}

func NewBrokerExtractor(client APIClient, logger *slog.Logger, maxSubPages int, companyFallback bool) *BrokerExtractor {
	if maxSubPages <= 0 {
		maxSubPages = 1
	}
	return &BrokerExtractor{
		client:          client,
		logger:          logger.With("extractor", "broker"),
		maxSubPages:     maxSubPages,
		companyFallback: companyFallback,
	}
}

func (b *BrokerExtractor) Name() string { return "broker" }

func (b *BrokerExtractor) Extract(ctx context.Context, ent model.Entity) ([]Candidate, error) {
	cands := fromRecord(ent.Record, ent.ID)
	var lastErr error

	// Malformed sub-requests only mean that part has nothing to offer.
	note := func(err error) error {
		if resilience.IsFatal(err) {
			return err
		}
		if !resilience.IsMalformed(err) {
			lastErr = err
		}
		b.logger.Debug("Broker lookup failed", "entity", ent.ID, "err", err)
		return nil
	}

	detail, err := b.client.GetObject(ctx, "/users/company/brokers/"+ent.ID, nil)
	if err != nil {
		if fatal := note(err); fatal != nil {
			return nil, fatal
		}
	} else if detail != nil {
		cands = append(cands, fromRecord(detail, ent.ID)...)
	}

	for page := 1; page <= b.maxSubPages; page++ {
		subs, err := b.client.GetRecords(ctx, "/users/company/brokers-web/"+ent.ID+"/agents",
			map[string]string{"page": strconv.Itoa(page)})
		if err != nil {
			if fatal := note(err); fatal != nil {
				return nil, fatal
			}
			break
		}
		if len(subs) == 0 {
			break
		}
		for _, sub := range subs {
			cands = append(cands, fromRecord(sub, ent.ID)...)
		}
	}

	if b.companyFallback {
		agents, err := b.client.GetRecords(ctx, "/users/company/"+ent.ID+"/agents", nil)
		if err != nil {
			if fatal := note(err); fatal != nil {
				return nil, fatal
			}
		}
		for _, a := range agents {
			cands = append(cands, fromRecord(a, ent.ID)...)
		}
	}

	if len(cands) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return cands, nil
}
