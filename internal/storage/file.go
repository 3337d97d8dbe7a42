package storage

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/shanehull/phonesourcer/internal/model"
)

// WriteAtomic writes path through a temp file in the same directory and a
// rename, so readers never see a half-written file.
func WriteAtomic(path string, write func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrap(err, "storage: create dir")
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return eris.Wrap(err, "storage: create temp file")
	}
	defer os.Remove(tmp.Name())

	bw := bufio.NewWriter(tmp)
	if err := write(bw); err != nil {
		tmp.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return eris.Wrap(err, "storage: flush")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "storage: close temp file")
	}
	return eris.Wrap(os.Rename(tmp.Name(), path), "storage: rename")
}

// FileCheckpoint keeps progress in a Phone,Source CSV plus a sidecar file
// listing processed entity ids, one per line. Load also unions in any seed
// files (earlier outputs, CSV or XLSX); every phone is re-normalized.
type FileCheckpoint struct {
	path   string
	seeds  []string
	source string
	logger *slog.Logger
}

// NewFileCheckpoint creates a checkpoint at path. source labels phones read
// from seed files that carry no Source column.
func NewFileCheckpoint(path, source string, seeds []string, logger *slog.Logger) *FileCheckpoint {
	return &FileCheckpoint{path: path, seeds: seeds, source: source, logger: logger}
}

func (c *FileCheckpoint) entitiesPath() string { return c.path + ".entities" }

func (c *FileCheckpoint) Load(_ context.Context) (*model.AcceptedSet, model.EntitySet, error) {
	set := model.NewAcceptedSet()
	for _, p := range append([]string{c.path}, c.seeds...) {
		added, err := LoadInto(set, p, c.source)
		if errors.Is(err, fs.ErrNotExist) {
			c.logger.Debug("Checkpoint file missing, skipping", "path", p)
			continue
		}
		if err != nil {
			return nil, nil, eris.Wrapf(err, "storage: load %s", p)
		}
		c.logger.Info("Loaded phones", "path", p, "new", added, "total", set.Len())
	}

	processed := make(model.EntitySet)
	data, err := os.ReadFile(c.entitiesPath())
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, nil, eris.Wrap(err, "storage: read processed entities")
	}
	for _, line := range strings.Split(string(data), "\n") {
		if id := strings.TrimSpace(line); id != "" {
			processed.Add(id)
		}
	}
	return set, processed, nil
}

func (c *FileCheckpoint) Save(_ context.Context, set *model.AcceptedSet, processed model.EntitySet) error {
	err := WriteAtomic(c.path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write([]string{"Phone", "Source"}); err != nil {
			return err
		}
		for _, e := range set.Sorted() {
			if err := cw.Write([]string{e.Phone.String(), e.Source}); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
	if err != nil {
		return eris.Wrap(err, "storage: save phones")
	}

	err = WriteAtomic(c.entitiesPath(), func(w io.Writer) error {
		for _, id := range SortedIDs(processed) {
			if _, err := io.WriteString(w, id+"\n"); err != nil {
				return err
			}
		}
		return nil
	})
	return eris.Wrap(err, "storage: save processed entities")
}

// SortedIDs returns the ids of s in ascending order.
func SortedIDs(s model.EntitySet) []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
