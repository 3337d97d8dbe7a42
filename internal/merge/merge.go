// Package merge unions the phone files written by separate collectors into
// one deduplicated master set.
package merge

import (
	"errors"
	"io/fs"
	"log/slog"

	"github.com/shanehull/phonesourcer/internal/model"
	"github.com/shanehull/phonesourcer/internal/storage"
)

// Input is one phone file and the source label its phones get when the
// file has no Source column.
type Input struct {
	Path   string
	Source string
}

// InputResult reports what one input contributed.
type InputResult struct {
	Input
	Added   int
	Missing bool
	Err     error
}

// Report is the outcome of a merge.
type Report struct {
	Set    *model.AcceptedSet
	Inputs []InputResult
}

// Merge reads every input in order and keeps the first source seen for each
// identity. Missing or unreadable files are reported, never fatal.
func Merge(inputs []Input, logger *slog.Logger) Report {
	report := Report{Set: model.NewAcceptedSet()}
	for _, in := range inputs {
		res := InputResult{Input: in}
		added, err := storage.LoadInto(report.Set, in.Path, in.Source)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			res.Missing = true
			logger.Warn("Input file not found", "path", in.Path)
		case err != nil:
			res.Err = err
			logger.Error("Input file unreadable", "path", in.Path, "err", err)
		default:
			res.Added = added
			logger.Info("Merged input", "path", in.Path, "source", in.Source, "new", added, "total", report.Set.Len())
		}
		report.Inputs = append(report.Inputs, res)
	}
	return report
}

// Assessment compares a phone count with a target.
type Assessment struct {
	Total     int
	Target    int
	Percent   float64
	Met       bool
	Remaining int
}

func Assess(total, target int) Assessment {
	a := Assessment{Total: total, Target: target, Met: total >= target}
	if target > 0 {
		a.Percent = float64(total) / float64(target) * 100
	}
	if !a.Met {
		a.Remaining = target - total
	}
	return a
}
