package cool

import (
	"gonum.org/v1/hdf5"

	"github.com/grailbio/hictools/internal/errs"
	"github.com/grailbio/hictools/variant"
)

// ReadAttr reads an HDF5 attribute and coerces it to a Variant whose Kind
// matches the attribute's stored type (spec.md §4.5 "group/dataset
// attributes"), using the variant package's safe numeric coercion rather
// than a blind type assertion.
func ReadAttr(obj interface{ OpenAttribute(string) (*hdf5.Attribute, error) }, name string) (variant.Variant, error) {
	attr, err := obj.OpenAttribute(name)
	if err != nil {
		return variant.Variant{}, errs.E(errs.IO, "ReadAttr", name, err)
	}
	defer attr.Close()

	dtype, err := attr.GetType()
	if err != nil {
		return variant.Variant{}, errs.E(errs.IO, "ReadAttr", name, err)
	}
	defer dtype.Close()

	switch dtype.Class() {
	case hdf5.T_INTEGER:
		var v int64
		if err := attr.Read(&v, dtype); err != nil {
			return variant.Variant{}, errs.E(errs.IO, "ReadAttr", name, err)
		}
		return variant.FromInt64(v), nil
	case hdf5.T_FLOAT:
		var v float64
		if err := attr.Read(&v, dtype); err != nil {
			return variant.Variant{}, errs.E(errs.IO, "ReadAttr", name, err)
		}
		return variant.FromFloat64(v), nil
	case hdf5.T_STRING:
		var v string
		if err := attr.Read(&v, dtype); err != nil {
			return variant.Variant{}, errs.E(errs.IO, "ReadAttr", name, err)
		}
		return variant.FromString(v), nil
	default:
		return variant.Variant{}, errs.E(errs.Unsupported, "ReadAttr", name, "unsupported HDF5 attribute class")
	}
}

// WriteAttr writes v as an HDF5 attribute on obj, choosing the HDF5 type
// from v's Kind.
func WriteAttr(obj interface {
	CreateAttribute(string, *hdf5.Datatype, *hdf5.Dataspace) (*hdf5.Attribute, error)
}, name string, v variant.Variant) error {
	space, err := hdf5.CreateDataspace(hdf5.S_SCALAR)
	if err != nil {
		return errs.E(errs.IO, "WriteAttr", name, err)
	}
	defer space.Close()

	var dtype *hdf5.Datatype
	var data interface{}
	switch v.Kind() {
	case variant.String:
		dtype, err = hdf5.NewDatatypeFromType(hdf5.T_NATIVE_CHAR)
		data = v.String()
	case variant.Float32, variant.Float64:
		f, _ := v.Float64()
		dtype, err = hdf5.NewDatatypeFromType(hdf5.T_NATIVE_DOUBLE)
		data = f
	case variant.Bool:
		var b int64
		if !v.IsZero() {
			b = 1
		}
		dtype, err = hdf5.NewDatatypeFromType(hdf5.T_NATIVE_INT64)
		data = b
	default:
		i, _ := v.Int64()
		dtype, err = hdf5.NewDatatypeFromType(hdf5.T_NATIVE_INT64)
		data = i
	}
	if err != nil {
		return errs.E(errs.IO, "WriteAttr", name, err)
	}
	defer dtype.Close()

	attr, err := obj.CreateAttribute(name, dtype, space)
	if err != nil {
		return errs.E(errs.IO, "WriteAttr", name, err)
	}
	defer attr.Close()
	if err := attr.Write(data, dtype); err != nil {
		return errs.E(errs.IO, "WriteAttr", name, err)
	}
	return nil
}
