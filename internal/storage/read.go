package storage

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/shanehull/phonesourcer/internal/model"
)

// Row is one line of a phone file. Source is empty when the file has no
// Source column.
type Row struct {
	Phone  string
	Source string
}

// ReadRows reads the Phone (and optional Source) column of a CSV or XLSX
// file. Files without a recognisable header are read from the first column
// and every row is kept.
func ReadRows(path string) ([]Row, error) {
	var (
		table [][]string
		err   error
	)
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		table, err = readXLSX(path)
	} else {
		table, err = readCSV(path)
	}
	if err != nil {
		return nil, err
	}
	if len(table) == 0 {
		return nil, nil
	}

	phoneCol, sourceCol := 0, -1
	start := 0
	for i, name := range table[0] {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))) {
		case "phone", "phone_number", "phones":
			phoneCol = i
			start = 1
		case "source":
			sourceCol = i
		}
	}

	rows := make([]Row, 0, len(table)-start)
	for _, rec := range table[start:] {
		if phoneCol >= len(rec) {
			continue
		}
		r := Row{Phone: strings.TrimSpace(rec[phoneCol])}
		if r.Phone == "" {
			continue
		}
		if sourceCol >= 0 && sourceCol < len(rec) {
			r.Source = strings.TrimSpace(rec[sourceCol])
		}
		rows = append(rows, r)
	}
	return rows, nil
}

// ReadPhones returns the raw Phone column values of a CSV or XLSX file.
func ReadPhones(path string) ([]string, error) {
	rows, err := ReadRows(path)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Phone
	}
	return out, nil
}

// LoadInto normalizes every phone of path and adds it to set. Rows without
// a Source column are attributed to fallbackSource. It returns the number of
// identities added.
func LoadInto(set *model.AcceptedSet, path, fallbackSource string) (int, error) {
	rows, err := ReadRows(path)
	if err != nil {
		return 0, err
	}
	added := 0
	for _, r := range rows {
		p, ok := model.NormalizePhone(r.Phone)
		if !ok {
			continue
		}
		src := r.Source
		if src == "" {
			src = fallbackSource
		}
		if set.Add(p, src) {
			added++
		}
	}
	return added, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "csv: open file")
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var out [][]string
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			continue
		}
		if err != nil {
			return nil, eris.Wrap(err, "csv: read")
		}
		out = append(out, rec)
	}
	return out, nil
}

func readXLSX(path string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}
	if len(f.Sheets) == 0 {
		return nil, nil
	}

	var out [][]string
	for _, row := range f.Sheets[0].Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		out = append(out, cells)
	}
	return out, nil
}
