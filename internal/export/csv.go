package export

import (
	"context"
	"encoding/csv"
	"io"

	"github.com/rotisserie/eris"

	"github.com/shanehull/phonesourcer/internal/model"
	"github.com/shanehull/phonesourcer/internal/storage"
)

// Layout selects the CSV columns and phone formatting.
type Layout string

const (
	// Plain writes a Phone column with canonical identities.
	Plain Layout = "plain"
	// Spaced writes a Phone column formatted as +995 571 233 844.
	Spaced Layout = "spaced"
	// Annotated writes Phone,Source columns.
	Annotated Layout = "annotated"
)

// ParseLayout maps a config value to a Layout. Unknown values are plain.
func ParseLayout(s string) Layout {
	switch Layout(s) {
	case Spaced, Annotated:
		return Layout(s)
	}
	return Plain
}

// CSVExporter overwrites Path with the full accepted set on every
// snapshot. BOM prefixes the file with a UTF-8 byte order mark for Excel.
type CSVExporter struct {
	Path   string
	Layout Layout
	BOM    bool
}

var _ storage.Exporter = (*CSVExporter)(nil)

func (e *CSVExporter) Snapshot(_ context.Context, set *model.AcceptedSet) error {
	err := storage.WriteAtomic(e.Path, func(w io.Writer) error {
		if e.BOM {
			if _, err := io.WriteString(w, "\ufeff"); err != nil {
				return err
			}
		}
		return e.write(csv.NewWriter(w), set.Sorted())
	})
	return eris.Wrapf(err, "export: write %s", e.Path)
}

func (e *CSVExporter) write(cw *csv.Writer, entries []model.Entry) error {
	header := []string{"Phone"}
	if e.Layout == Annotated {
		header = append(header, "Source")
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, entry := range entries {
		var row []string
		switch e.Layout {
		case Spaced:
			row = []string{entry.Phone.Spaced()}
		case Annotated:
			row = []string{entry.Phone.String(), entry.Source}
		default:
			row = []string{entry.Phone.String()}
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
