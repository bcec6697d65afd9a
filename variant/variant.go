// Package variant implements the tagged value used for Cool attributes and
// pixel elements (spec.md §4.3, component C4): a value drawn from a fixed
// closed set of arithmetic and string types, with safe, lossless-checked
// conversion on read. Following the teacher's "tagged enum over reflection"
// idiom (spec.md §9), Kind is a plain enum rather than reflect.Kind.
package variant

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/grailbio/hictools/internal/errs"
)

// Kind tags the dynamic type carried by a Variant.
type Kind int

const (
	Invalid Kind = iota
	Int8
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	Float32
	Float64
	Bool
	String
)

func (k Kind) String() string {
	switch k {
	case Int8:
		return "int8"
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Uint8:
		return "uint8"
	case Uint16:
		return "uint16"
	case Uint32:
		return "uint32"
	case Uint64:
		return "uint64"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Bool:
		return "bool"
	case String:
		return "string"
	default:
		return "invalid"
	}
}

// Variant holds exactly one of the twelve supported element types.
type Variant struct {
	kind Kind
	i    int64
	u    uint64
	f    float64
	b    bool
	s    string
}

func (v Variant) Kind() Kind { return v.kind }

func FromInt64(x int64) Variant    { return Variant{kind: Int64, i: x} }
func FromInt32(x int32) Variant    { return Variant{kind: Int32, i: int64(x)} }
func FromInt16(x int16) Variant    { return Variant{kind: Int16, i: int64(x)} }
func FromInt8(x int8) Variant      { return Variant{kind: Int8, i: int64(x)} }
func FromUint64(x uint64) Variant  { return Variant{kind: Uint64, u: x} }
func FromUint32(x uint32) Variant  { return Variant{kind: Uint32, u: uint64(x)} }
func FromUint16(x uint16) Variant  { return Variant{kind: Uint16, u: uint64(x)} }
func FromUint8(x uint8) Variant    { return Variant{kind: Uint8, u: uint64(x)} }
func FromFloat64(x float64) Variant { return Variant{kind: Float64, f: x} }
func FromFloat32(x float32) Variant { return Variant{kind: Float32, f: float64(x)} }
func FromBool(x bool) Variant      { return Variant{kind: Bool, b: x} }
func FromString(x string) Variant  { return Variant{kind: String, s: x} }

func (v Variant) isSigned() bool {
	switch v.kind {
	case Int8, Int16, Int32, Int64:
		return true
	}
	return false
}
func (v Variant) isUnsigned() bool {
	switch v.kind {
	case Uint8, Uint16, Uint32, Uint64:
		return true
	}
	return false
}
func (v Variant) isFloat() bool { return v.kind == Float32 || v.kind == Float64 }

// asFloat64 returns the value as a float64 for any numeric kind.
func (v Variant) asFloat64() float64 {
	switch {
	case v.isSigned():
		return float64(v.i)
	case v.isUnsigned():
		return float64(v.u)
	case v.isFloat():
		return v.f
	}
	return 0
}

func intRange(k Kind) (min, max int64) {
	switch k {
	case Int8:
		return math.MinInt8, math.MaxInt8
	case Int16:
		return math.MinInt16, math.MaxInt16
	case Int32:
		return math.MinInt32, math.MaxInt32
	case Int64:
		return math.MinInt64, math.MaxInt64
	}
	return 0, 0
}

func uintMax(k Kind) uint64 {
	switch k {
	case Uint8:
		return math.MaxUint8
	case Uint16:
		return math.MaxUint16
	case Uint32:
		return math.MaxUint32
	case Uint64:
		return math.MaxUint64
	}
	return 0
}

// ConvertTo applies the rules of spec.md §4.3, returning a Variant of kind
// out or a ConversionLoss error describing Tin, Tout, and the
// offending value.
func (v Variant) ConvertTo(out Kind) (Variant, error) {
	if v.kind == out {
		return v, nil
	}
	fail := func(msg string) error {
		return errs.E(errs.ConversionLoss, "Variant.ConvertTo",
			fmt.Sprintf("%s -> %s: %s (value=%s)", v.kind, out, msg, v.debugString()))
	}

	switch {
	case v.isFloat() && (out == Float32 || out == Float64):
		return Variant{kind: out, f: v.f}, nil

	case v.kind == String && isNumericKind(out):
		return v.parseStringTo(out)

	case v.isFloat() && isIntKind(out):
		x := v.f
		if math.Floor(x) != x {
			return Variant{}, fail("fractional value cannot convert to integer")
		}
		return v.floatToInt(x, out, fail)

	case isIntKind(v.kind) && isIntKind(out):
		return v.intToInt(out, fail)

	case v.kind == Bool && out == Bool:
		return v, nil

	default:
		return Variant{}, errs.E(errs.ConversionLoss, "Variant.ConvertTo",
			fmt.Sprintf("unsupported conversion %s -> %s (value=%s)", v.kind, out, v.debugString()))
	}
}

func isIntKind(k Kind) bool {
	switch k {
	case Int8, Int16, Int32, Int64, Uint8, Uint16, Uint32, Uint64:
		return true
	}
	return false
}
func isNumericKind(k Kind) bool { return isIntKind(k) || k == Float32 || k == Float64 }

func (v Variant) floatToInt(x float64, out Kind, fail func(string) error) (Variant, error) {
	switch {
	case isSignedKind(out):
		min, max := intRange(out)
		if x < float64(min) || x > float64(max) {
			return Variant{}, fail("out of range")
		}
		return Variant{kind: out, i: int64(x)}, nil
	default:
		max := uintMax(out)
		if x < 0 || x > float64(max) {
			return Variant{}, fail("out of range")
		}
		return Variant{kind: out, u: uint64(x)}, nil
	}
}

func isSignedKind(k Kind) bool {
	switch k {
	case Int8, Int16, Int32, Int64:
		return true
	}
	return false
}

func (v Variant) intToInt(out Kind, fail func(string) error) (Variant, error) {
	if v.isSigned() {
		x := v.i
		if isSignedKind(out) {
			min, max := intRange(out)
			if x < min || x > max {
				return Variant{}, fail("out of range")
			}
			return Variant{kind: out, i: x}, nil
		}
		if x < 0 {
			return Variant{}, fail("negative value cannot convert to unsigned")
		}
		max := uintMax(out)
		if uint64(x) > max {
			return Variant{}, fail("out of range")
		}
		return Variant{kind: out, u: uint64(x)}, nil
	}
	// v is unsigned
	x := v.u
	if !isSignedKind(out) {
		max := uintMax(out)
		if x > max {
			return Variant{}, fail("out of range")
		}
		return Variant{kind: out, u: x}, nil
	}
	min, max := intRange(out)
	_ = min
	if x > uint64(max) {
		return Variant{}, fail("out of range")
	}
	return Variant{kind: out, i: int64(x)}, nil
}

func (v Variant) parseStringTo(out Kind) (Variant, error) {
	s := strings.TrimSpace(v.s)
	fail := func(cause error) error {
		return errs.E(errs.ConversionLoss, "Variant.ConvertTo",
			fmt.Sprintf("string -> %s: cannot parse %q", out, v.s), cause)
	}
	if out == Float32 || out == Float64 {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Variant{}, fail(err)
		}
		return Variant{kind: out, f: f}, nil
	}
	if isSignedKind(out) {
		x, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Variant{}, fail(err)
		}
		min, max := intRange(out)
		if x < min || x > max {
			return Variant{}, fail(fmt.Errorf("out of range for %s", out))
		}
		return Variant{kind: out, i: x}, nil
	}
	x, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return Variant{}, fail(err)
	}
	if x > uintMax(out) {
		return Variant{}, fail(fmt.Errorf("out of range for %s", out))
	}
	return Variant{kind: out, u: x}, nil
}

func (v Variant) debugString() string {
	switch {
	case v.isSigned():
		return strconv.FormatInt(v.i, 10)
	case v.isUnsigned():
		return strconv.FormatUint(v.u, 10)
	case v.isFloat():
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case v.kind == Bool:
		return strconv.FormatBool(v.b)
	case v.kind == String:
		return v.s
	default:
		return "<invalid>"
	}
}

// Int64 returns the value as int64, converting if necessary.
func (v Variant) Int64() (int64, error) {
	c, err := v.ConvertTo(Int64)
	if err != nil {
		return 0, err
	}
	return c.i, nil
}

// Uint64 returns the value as uint64, converting if necessary.
func (v Variant) Uint64() (uint64, error) {
	c, err := v.ConvertTo(Uint64)
	if err != nil {
		return 0, err
	}
	return c.u, nil
}

// Float64 returns the value as float64, converting if necessary.
func (v Variant) Float64() (float64, error) {
	c, err := v.ConvertTo(Float64)
	if err != nil {
		return 0, err
	}
	return c.f, nil
}

// String returns the value's human-readable form (not a conversion: Bool
// and numeric kinds are formatted, not reinterpreted).
func (v Variant) String() string {
	if v.kind == String {
		return v.s
	}
	return v.debugString()
}

// IsZero reports whether the variant holds the zero value of its kind
// (used by pixel-count validation: spec.md §3 "no count is zero").
func (v Variant) IsZero() bool {
	switch {
	case v.isSigned():
		return v.i == 0
	case v.isUnsigned():
		return v.u == 0
	case v.isFloat():
		return v.f == 0
	case v.kind == Bool:
		return !v.b
	case v.kind == String:
		return v.s == ""
	}
	return true
}
