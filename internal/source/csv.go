package source

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/shanehull/phonesourcer/internal/model"
	"github.com/shanehull/phonesourcer/internal/resilience"
)

// CSVSource serves records from a CSV file with a header row, pageSize rows
// per page. Header names become record keys as written.
type CSVSource struct {
	path     string
	pageSize int

	once    sync.Once
	records []model.Record
	err     error
}

func NewCSVSource(path string, pageSize int) *CSVSource {
	if pageSize <= 0 {
		pageSize = 50
	}
	return &CSVSource{path: path, pageSize: pageSize}
}

func (s *CSVSource) Name() string {
	return "CSV"
}

func (s *CSVSource) load() {
	f, err := os.Open(s.path)
	if err != nil {
		s.err = resilience.NewFatal("csv source", eris.Wrap(err, "could not open csv"))
		return
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return
	}
	if err != nil {
		s.err = resilience.NewMalformed("csv source", eris.Wrap(err, "read header"))
		return
	}
	for i, name := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
	}

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}

		rec := make(model.Record, len(header))
		for i, name := range header {
			if i < len(row) && name != "" {
				rec[name] = strings.TrimSpace(row[i])
			}
		}
		s.records = append(s.records, rec)
	}
}

func (s *CSVSource) NextPage(ctx context.Context, page int) ([]model.Record, error) {
	s.once.Do(s.load)
	if s.err != nil {
		return nil, s.err
	}
	return pageOf(s.records, page, s.pageSize), nil
}

// SliceSource serves pre-built pages, mostly for replaying captured data.
type SliceSource struct {
	name  string
	pages [][]model.Record
}

func NewSliceSource(name string, pages ...[]model.Record) *SliceSource {
	return &SliceSource{name: name, pages: pages}
}

func (s *SliceSource) Name() string { return s.name }

func (s *SliceSource) NextPage(_ context.Context, page int) ([]model.Record, error) {
	if page < 1 || page > len(s.pages) {
		return nil, nil
	}
	return s.pages[page-1], nil
}

func pageOf(records []model.Record, page, size int) []model.Record {
	start := (page - 1) * size
	if page < 1 || start >= len(records) {
		return nil
	}
	end := min(start+size, len(records))
	return records[start:end]
}
