package export

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/shanehull/phonesourcer/internal/model"
	"github.com/shanehull/phonesourcer/internal/storage"
)

// XLSXExporter writes a single-sheet workbook with a bold Phone header and
// phones in spaced form. WithSource adds a Source column.
type XLSXExporter struct {
	Path       string
	Sheet      string
	WithSource bool
}

var _ storage.Exporter = (*XLSXExporter)(nil)

func (e *XLSXExporter) Snapshot(_ context.Context, set *model.AcceptedSet) error {
	name := e.Sheet
	if name == "" {
		name = "Phones"
	}

	f := xlsx.NewFile()
	sheet, err := f.AddSheet(name)
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	bold := xlsx.NewStyle()
	bold.Font.Bold = true
	header := sheet.AddRow()
	for _, title := range e.columns() {
		cell := header.AddCell()
		cell.SetString(title)
		cell.SetStyle(bold)
	}

	for _, entry := range set.Sorted() {
		row := sheet.AddRow()
		row.AddCell().SetString(entry.Phone.Spaced())
		if e.WithSource {
			row.AddCell().SetString(entry.Source)
		}
	}

	if err := sheet.SetColWidth(0, len(e.columns())-1, 20); err != nil {
		return eris.Wrap(err, "export: column width")
	}

	// Save into a sibling temp file so a crash never leaves a broken workbook.
	dir := filepath.Dir(e.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrap(err, "export: create dir")
	}
	tmp := filepath.Join(dir, "."+filepath.Base(e.Path)+".tmp")
	if err := f.Save(tmp); err != nil {
		_ = os.Remove(tmp)
		return eris.Wrapf(err, "export: save %s", e.Path)
	}
	return eris.Wrap(os.Rename(tmp, e.Path), "export: rename")
}

func (e *XLSXExporter) columns() []string {
	if e.WithSource {
		return []string{"Phone", "Source"}
	}
	return []string{"Phone"}
}
