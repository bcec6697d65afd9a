package cool

import (
	"strconv"
	"strings"

	"github.com/grailbio/hictools/internal/errs"
)

// URI is a parsed Cool URI of the form "<path>::/<group-path>" (spec.md §3
// "Cool URI grammar"). GroupPath is empty for a plain single-resolution
// Cool file; for MCool it is "resolutions/<R>"; for SCool it is
// "cells/<name>".
type URI struct {
	Path      string
	GroupPath string
}

// ParseURI splits a Cool URI into its file path and group path (spec.md
// §4.8 "URI grammar").
func ParseURI(s string) (URI, error) {
	if idx := strings.Index(s, "::"); idx >= 0 {
		return URI{Path: s[:idx], GroupPath: strings.TrimPrefix(s[idx+2:], "/")}, nil
	}
	return URI{Path: s}, nil
}

// Resolution returns the numeric resolution named by an MCool group path
// of the form "resolutions/<R>".
func (u URI) Resolution() (uint32, bool, error) {
	const prefix = "resolutions/"
	if !strings.HasPrefix(u.GroupPath, prefix) {
		return 0, false, nil
	}
	rest := strings.TrimPrefix(u.GroupPath, prefix)
	n, err := strconv.ParseUint(rest, 10, 32)
	if err != nil {
		return 0, false, errs.E(errs.InvalidInput, "URI.Resolution", u.GroupPath, err)
	}
	return uint32(n), true, nil
}

// Cell returns the cell name named by an SCool group path of the form
// "cells/<name>".
func (u URI) Cell() (string, bool) {
	const prefix = "cells/"
	if !strings.HasPrefix(u.GroupPath, prefix) {
		return "", false
	}
	return strings.TrimPrefix(u.GroupPath, prefix), true
}

// String reassembles the URI.
func (u URI) String() string {
	if u.GroupPath == "" {
		return u.Path
	}
	return u.Path + "::/" + u.GroupPath
}
