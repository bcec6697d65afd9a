// Package errs implements the error-construction idiom used throughout
// hictools: every error is built by E(...), carries a Kind, an operation
// label, and the offending object's URI, and renders as a single
// descriptive line.
//
// The shape follows github.com/grailbio/base/errors (errors.E(err, "op",
// path)), which no package of this module imports. That package's Kind
// enumeration does not cover the
// seven kinds spec.md §7 requires (IO, Format, Corruption, OutOfRange,
// InvalidInput, ConversionLoss, Unsupported), so this package re-implements
// the same call convention scoped to exactly those kinds rather than
// bending an upstream enum to fit.
package errs

import (
	"fmt"
	"strings"
	"sync"
)

// Kind classifies an error per spec.md §7.
type Kind int

const (
	Other Kind = iota
	IO
	Format
	Corruption
	OutOfRange
	InvalidInput
	ConversionLoss
	Unsupported
)

func (k Kind) String() string {
	switch k {
	case IO:
		return "IO"
	case Format:
		return "Format"
	case Corruption:
		return "Corruption"
	case OutOfRange:
		return "OutOfRange"
	case InvalidInput:
		return "InvalidInput"
	case ConversionLoss:
		return "ConversionLoss"
	case Unsupported:
		return "Unsupported"
	default:
		return "Error"
	}
}

// Error is the concrete error type constructed by E. It always renders as a
// single line: "<kind>: <op> <uri>: <message/cause>".
type Error struct {
	Kind Kind
	Op   string
	URI  string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}
	if e.URI != "" {
		b.WriteString(" ")
		b.WriteString(e.URI)
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		if e.Msg != "" {
			b.WriteString(": ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// E builds an *Error from a variadic arg list. Recognized argument types:
//
//	Kind    sets the error kind (default Other)
//	string  the first string sets Op, the second sets URI, any further
//	        strings are joined (space-separated) into Msg
//	error   sets the wrapped cause
//
// This mirrors the call convention of errors.E(err, "operation", path) used
// throughout the teacher's codebase.
func E(args ...interface{}) error {
	e := &Error{}
	strIdx := 0
	for _, a := range args {
		switch v := a.(type) {
		case Kind:
			e.Kind = v
		case error:
			e.Err = v
		case string:
			switch strIdx {
			case 0:
				e.Op = v
			case 1:
				e.URI = v
			default:
				if e.Msg != "" {
					e.Msg += " " + v
				} else {
					e.Msg = v
				}
			}
			strIdx++
		case fmt.Stringer:
			if e.URI == "" {
				e.URI = v.String()
			}
		}
	}
	return e
}

// Is reports whether err (or any error it wraps) has the given Kind.
func Is(kind Kind, err error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			if e.Kind == kind {
				return true
			}
			err = e.Err
			continue
		}
		type unwrapper interface{ Unwrap() error }
		u, ok := err.(unwrapper)
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Once accumulates the first non-nil error set on it, matching
// errors.Once's role in the teacher's writers (finalize paths that must
// record but not stop on a failure mid-cleanup).
type Once struct {
	mu  sync.Mutex
	err error
}

// Set records err if no error has been recorded yet.
func (o *Once) Set(err error) {
	if err == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err == nil {
		o.err = err
	}
}

// Err returns the first error recorded, or nil.
func (o *Once) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}
