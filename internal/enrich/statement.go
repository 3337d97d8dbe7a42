package enrich

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"

	"github.com/shanehull/phonesourcer/internal/model"
	"github.com/shanehull/phonesourcer/internal/resilience"
)

// PhoneShowEndpoint reveals the owner phone of a statement.
const PhoneShowEndpoint = "/statements/phone/show"

var (
	uuidRe        = regexp.MustCompile(`(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
	statementIDRe = regexp.MustCompile(`"statementId":"(\d+)"`)
	listingIDRe   = regexp.MustCompile(`/pr/(\d+)/`)
)

// StatementExtractor reveals the owner phone of a property listing through
// the phone/show endpoint. The statement uuid comes from the record, or is
// scraped from the listing page when the record lacks one.
type StatementExtractor struct {
	client APIClient
	logger *slog.Logger
}

func NewStatementExtractor(client APIClient, logger *slog.Logger) *StatementExtractor {
	return &StatementExtractor{client: client, logger: logger.With("extractor", "statement")}
}

func (s *StatementExtractor) Name() string { return "statement" }

func (s *StatementExtractor) Extract(ctx context.Context, ent model.Entity) ([]Candidate, error) {
	if cands := fromRecord(ent.Record, ent.ID); len(cands) > 0 {
		return cands, nil
	}

	uuid, err := s.statementUUID(ctx, ent)
	if err != nil {
		return nil, err
	}

	data, err := s.client.PostObject(ctx, PhoneShowEndpoint, map[string]string{"statement_uuid": uuid})
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	raw, ok := data.RawPhone()
	if !ok {
		return nil, nil
	}
	s.logger.Debug("Revealed statement phone", "entity", ent.ID, "uuid", uuid)
	return []Candidate{{Raw: raw, Key: ent.ID}}, nil
}

func (s *StatementExtractor) statementUUID(ctx context.Context, ent model.Entity) (string, error) {
	if v, ok := ent.Record.Lookup("uuid", "statement_uuid"); ok {
		return v, nil
	}

	url := ListingURL(ent)
	if url == "" {
		return "", resilience.NewMalformed("statement: uuid", errors.New("no uuid and no listing url"))
	}
	if !strings.HasPrefix(url, "http") {
		url = strings.TrimRight(siteURL(s.client), "/") + url
	}
	html, err := s.client.FetchHTML(ctx, url)
	if err != nil {
		return "", err
	}
	if id := ScanStatementID(html, url); id != "" {
		return id, nil
	}
	return "", resilience.NewMalformed("statement: uuid", errors.New("no statement id on "+url))
}

// ListingURL returns the listing page of an entity: its url field, or the
// /pr/{id}/ path for numeric ids.
func ListingURL(ent model.Entity) string {
	if v, ok := ent.Record.Lookup("url", "link", "href"); ok {
		return v
	}
	if ent.ID == "" {
		return ""
	}
	for _, r := range ent.ID {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return "/pr/" + ent.ID + "/"
}

// ScanStatementID finds the statement id in a listing page: the first UUID,
// then an embedded statementId, then the numeric id in the page URL.
func ScanStatementID(html, pageURL string) string {
	if m := uuidRe.FindString(html); m != "" {
		return strings.ToLower(m)
	}
	if m := statementIDRe.FindStringSubmatch(html); m != nil {
		return m[1]
	}
	if m := listingIDRe.FindStringSubmatch(pageURL); m != nil {
		return m[1]
	}
	return ""
}

func siteURL(c APIClient) string {
	if s, ok := c.(interface{ SiteURL() string }); ok {
		return s.SiteURL()
	}
	return ""
}
