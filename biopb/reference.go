package biopb

import (
	"fmt"

	"github.com/grailbio/hictools/internal/errs"
)

// Reference is an ordered, immutable, reference-counted set of chromosomes.
// Ids are dense [0,N), strictly increasing in storage order; names are
// unique; no chromosome has zero size. A Reference is built once at file
// open or create time and then shared by pointer (spec.md §3, "Lifecycle").
type Reference struct {
	chroms     []Chromosome
	byName     map[string]int // name -> index into chroms
	cumSize    []uint64       // prefix sum of chroms[i].Size, len(chroms)+1
	longestIdx int
	longestNameIdx int
	hasAll     bool
}

// NewReference builds a Reference from parallel name/size slices. It
// rejects empty names, zero sizes, and duplicate names (spec.md §4.1).
func NewReference(names []string, sizes []uint32) (*Reference, error) {
	if err := validateNamesSizes(names, sizes); err != nil {
		return nil, err
	}
	chroms := make([]Chromosome, len(names))
	for i := range names {
		chroms[i] = Chromosome{ID: uint32(i), Name: names[i], Size: sizes[i]}
	}
	return NewReferenceFromChromosomes(chroms)
}

// NewReferenceFromChromosomes builds a Reference from an explicit
// chromosome list. Ids must already be dense and strictly increasing.
func NewReferenceFromChromosomes(chroms []Chromosome) (*Reference, error) {
	r := &Reference{
		chroms: append([]Chromosome(nil), chroms...),
		byName: make(map[string]int, len(chroms)),
	}
	for i, c := range r.chroms {
		if c.Name == "" {
			return nil, errs.E(errs.InvalidInput, "NewReference", fmt.Sprintf("chromosome %d has empty name", i))
		}
		if c.Size == 0 {
			return nil, errs.E(errs.InvalidInput, "NewReference", fmt.Sprintf("chromosome %q has zero size", c.Name))
		}
		if uint32(i) != c.ID {
			return nil, errs.E(errs.InvalidInput, "NewReference", fmt.Sprintf("chromosome ids must be dense [0,N): got %d at index %d", c.ID, i))
		}
		if _, dup := r.byName[c.Name]; dup {
			return nil, errs.E(errs.InvalidInput, "NewReference", fmt.Sprintf("duplicate chromosome name %q", c.Name))
		}
		r.byName[c.Name] = i
	}
	r.computeDerived()
	return r, nil
}

func (r *Reference) computeDerived() {
	r.cumSize = make([]uint64, len(r.chroms)+1)
	r.longestIdx = -1
	r.longestNameIdx = -1
	var longestSize uint32
	var longestNameLen int
	for i, c := range r.chroms {
		r.cumSize[i+1] = r.cumSize[i] + uint64(c.Size)
		if r.longestIdx < 0 || c.Size > longestSize {
			longestSize = c.Size
			r.longestIdx = i
		}
		if r.longestNameIdx < 0 || len(c.Name) > longestNameLen {
			longestNameLen = len(c.Name)
			r.longestNameIdx = i
		}
	}
}

// Len returns the number of chromosomes, excluding the synthetic ALL entry
// if present (spec.md §3: "filtered out of iteration/query APIs by
// default").
func (r *Reference) Len() int {
	if r.hasAll {
		return len(r.chroms) - 1
	}
	return len(r.chroms)
}

// RawLen returns the number of stored chromosomes, including ALL if present.
func (r *Reference) RawLen() int { return len(r.chroms) }

func (r *Reference) rawIndex(i int) int {
	if r.hasAll {
		return i + 1
	}
	return i
}

// At returns the i-th chromosome (excluding ALL from the index space).
func (r *Reference) At(i int) (Chromosome, error) {
	if i < 0 || i >= r.Len() {
		return Chromosome{}, errs.E(errs.OutOfRange, "Reference.At", fmt.Sprintf("index %d", i))
	}
	return r.chroms[r.rawIndex(i)], nil
}

// ByID looks up a chromosome by its raw storage id (ALL is id 0 when
// present, so this bypasses the ALL-filtering of At/Len).
func (r *Reference) ByID(id uint32) (Chromosome, error) {
	if int(id) >= len(r.chroms) {
		return Chromosome{}, errs.E(errs.OutOfRange, "Reference.ByID", fmt.Sprintf("id %d", id))
	}
	return r.chroms[id], nil
}

// ByName looks up a chromosome by name in O(1).
func (r *Reference) ByName(name string) (Chromosome, error) {
	i, ok := r.byName[name]
	if !ok {
		return Chromosome{}, errs.E(errs.InvalidInput, "Reference.ByName", fmt.Sprintf("unknown chromosome %q", name))
	}
	return r.chroms[i], nil
}

// CumulativeSize returns the total bp size of chromosomes [0,i) in the
// filtered (ALL-excluded) index space.
func (r *Reference) CumulativeSize(i int) uint64 {
	return r.cumSize[r.rawIndex(i)] - r.cumSize[r.rawIndex(0)]
}

// TotalSize returns the sum of all (non-ALL) chromosome sizes.
func (r *Reference) TotalSize() uint64 {
	return r.cumSize[len(r.chroms)] - r.cumSize[r.rawIndex(0)]
}

// LongestChromosome returns the chromosome with the largest size,
// ties broken by lowest id, excluding ALL.
func (r *Reference) LongestChromosome() (Chromosome, error) {
	if r.Len() == 0 {
		return Chromosome{}, errs.E(errs.InvalidInput, "Reference.LongestChromosome", "empty reference")
	}
	idx := r.longestIdx
	if r.hasAll && idx == 0 {
		// ALL itself can never be the answer; recompute excluding it.
		return r.recomputeLongest(false)
	}
	return r.chroms[idx], nil
}

// ChromosomeWithLongestName returns the chromosome whose name is the
// longest, ties broken by lowest id, excluding ALL.
func (r *Reference) ChromosomeWithLongestName() (Chromosome, error) {
	if r.Len() == 0 {
		return Chromosome{}, errs.E(errs.InvalidInput, "Reference.ChromosomeWithLongestName", "empty reference")
	}
	idx := r.longestNameIdx
	if r.hasAll && idx == 0 {
		return r.recomputeLongest(true)
	}
	return r.chroms[idx], nil
}

func (r *Reference) recomputeLongest(byName bool) (Chromosome, error) {
	start := r.rawIndex(0)
	best := r.chroms[start]
	for _, c := range r.chroms[start+1:] {
		if byName {
			if len(c.Name) > len(best.Name) {
				best = c
			}
		} else if c.Size > best.Size {
			best = c
		}
	}
	return best, nil
}

// AddALL returns a copy of r with a synthetic "All" chromosome prepended at
// id 0, sized floor(sum(sizes)/scale), at least 1 (spec.md §4.1). It is a no-op
// returning r unchanged if r already has an ALL chromosome.
func (r *Reference) AddALL(scale uint64) (*Reference, error) {
	if r.hasAll {
		return r, nil
	}
	if scale == 0 {
		return nil, errs.E(errs.InvalidInput, "Reference.AddALL", "scale must be > 0")
	}
	total := r.TotalSize() / scale
	if total == 0 {
		total = 1
	}
	all := Chromosome{ID: 0, Name: AllChromosomeName, Size: uint32(total)}
	shifted := make([]Chromosome, len(r.chroms)+1)
	shifted[0] = all
	for i, c := range r.chroms {
		shifted[i+1] = Chromosome{ID: c.ID + 1, Name: c.Name, Size: c.Size}
	}
	out, err := NewReferenceFromChromosomes(shifted)
	if err != nil {
		return nil, err
	}
	out.hasAll = true
	return out, nil
}

// RemoveALL returns a copy of r without the synthetic ALL chromosome, or r
// unchanged if there is none. AddALL(k).RemoveALL() is required to be the
// identity (spec.md §8).
func (r *Reference) RemoveALL() (*Reference, error) {
	if !r.hasAll {
		return r, nil
	}
	rest := make([]Chromosome, len(r.chroms)-1)
	for i, c := range r.chroms[1:] {
		rest[i] = Chromosome{ID: c.ID - 1, Name: c.Name, Size: c.Size}
	}
	return NewReferenceFromChromosomes(rest)
}

// HasALL reports whether the synthetic ALL chromosome is present.
func (r *Reference) HasALL() bool { return r.hasAll }
