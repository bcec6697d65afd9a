package hic

import (
	"context"
	"io"

	"github.com/grailbio/base/file"

	"github.com/grailbio/hictools/internal/errs"
)

// Severity classifies a validation Issue (spec.md §4.14 component C15:
// "the validator reports structured findings rather than throwing").
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

// Issue is one structured validation finding.
type Issue struct {
	Severity Severity
	Message  string
}

// Report is the outcome of validating a HIC file: Ok reflects whether any
// SeverityError issues were found.
type Report struct {
	Ok     bool
	Issues []Issue
}

func (r *Report) add(sev Severity, msg string) {
	r.Issues = append(r.Issues, Issue{Severity: sev, Message: msg})
	if sev == SeverityError {
		r.Ok = false
	}
}

// Validate opens path and checks: the magic/version are well-formed, the
// header records chromosomes and resolutions, and the master index at
// Header.MasterIndexOffset is readable (spec.md §4.14, §8 "corruption is
// detected, not panicked on"). It does not read the per-pair chunks the
// master index points to, so blocks are neither located nor decompressed
// here; ValidateBlock checks one block blob at a time.
func Validate(ctx context.Context, path string) (*Report, error) {
	report := &Report{Ok: true}

	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, errs.E(errs.IO, "Validate", path, err)
	}
	defer f.Close(ctx)

	h, err := ReadHeader(f.Reader(ctx))
	if err != nil {
		report.add(SeverityError, "header: "+err.Error())
		return report, nil
	}
	if h.Version < 1 {
		report.add(SeverityError, "header: non-positive version")
	}
	if len(h.Chroms) == 0 {
		report.add(SeverityError, "header: no chromosomes recorded")
	}
	if len(h.Resolutions) == 0 {
		report.add(SeverityWarning, "header: no resolutions recorded")
	}

	if h.MasterIndexOffset < 0 {
		report.add(SeverityWarning, "header: master index offset unset, skipping deep validation")
		return report, nil
	}

	seeker, ok := f.Reader(ctx).(io.ReadSeeker)
	if !ok {
		return nil, errs.E(errs.Unsupported, "Validate", "reader does not support seeking")
	}
	if _, err := seeker.Seek(h.MasterIndexOffset, io.SeekStart); err != nil {
		report.add(SeverityError, "master index: "+err.Error())
		return report, nil
	}
	entries, err := ReadMasterIndex(seeker)
	if err != nil {
		report.add(SeverityError, "master index: "+err.Error())
		return report, nil
	}
	for _, e := range entries {
		if e.BodySize < 0 {
			report.add(SeverityError, "master index: negative body size")
		}
	}

	return report, nil
}

// ValidateBlock checks that a raw compressed block blob decodes cleanly
// and that no pixel's bin1 exceeds its bin2 by more than 2^32 (pixels are
// not compared with the block's row/column offsets), reporting corruption rather than returning an error for a single bad
// block so callers can keep validating the rest of the file.
func ValidateBlock(compressed []byte) Issue {
	blk, err := DecodeBlock(compressed)
	if err != nil {
		return Issue{Severity: SeverityError, Message: "block: " + err.Error()}
	}
	for _, p := range blk.Pixels() {
		if p.Bin1ID > p.Bin2ID+uint64(1<<32) {
			return Issue{Severity: SeverityError, Message: "block: implausible bin spread"}
		}
	}
	return Issue{Severity: SeverityWarning, Message: "block: ok"}
}
