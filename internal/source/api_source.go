package source

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/shanehull/phonesourcer/internal/model"
)

// Known list endpoints.
const (
	BrokersEndpoint    = "/users/company/brokers-web"
	StatementsEndpoint = "/statements"
)

// APISource pages through one list endpoint of the statements API.
type APISource struct {
	client   *APIClient
	logger   *slog.Logger
	name     string
	endpoint string
	params   map[string]string
	pageSize int
}

// NewBrokersSource enumerates agencies and agents.
func NewBrokersSource(client *APIClient, logger *slog.Logger) *APISource {
	return &APISource{
		client:   client,
		logger:   logger,
		name:     "Brokers",
		endpoint: BrokersEndpoint,
		params:   map[string]string{"q": ""},
	}
}

// NewStatementsSource enumerates property listings. operationType selects
// sale (1) or rent (3); zero lists every type.
func NewStatementsSource(client *APIClient, logger *slog.Logger, operationType, pageSize int) *APISource {
	params := map[string]string{}
	name := "Statements"
	if operationType > 0 {
		params["operation_type_id"] = strconv.Itoa(operationType)
		name += "-" + strconv.Itoa(operationType)
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	return &APISource{
		client:   client,
		logger:   logger,
		name:     name,
		endpoint: StatementsEndpoint,
		params:   params,
		pageSize: pageSize,
	}
}

func (s *APISource) Name() string { return s.name }

func (s *APISource) NextPage(ctx context.Context, page int) ([]model.Record, error) {
	params := make(map[string]string, len(s.params)+2)
	for k, v := range s.params {
		params[k] = v
	}
	params["page"] = strconv.Itoa(page)
	if s.pageSize > 0 {
		params["limit"] = strconv.Itoa(s.pageSize)
	}

	records, err := s.client.GetRecords(ctx, s.endpoint, params)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("Fetched page", "endpoint", s.endpoint, "page", page, "records", len(records))
	return records, nil
}
