// Package biopb holds the genomic coordinate model shared by the cool and
// hic packages: chromosomes, an ordered reference, genomic intervals, and
// matrix-coordinate pairs. It plays the role the teacher's own biopb
// package plays for encoding/bam — a small, dependency-free leaf package
// that everything else builds on.
package biopb

import (
	"fmt"

	"github.com/grailbio/hictools/internal/errs"
)

// Chromosome is a named, sized entry in a Reference. Equality is by id and
// name; ordering is by id.
type Chromosome struct {
	ID   uint32
	Name string
	Size uint32
}

// EQ reports whether c and c1 have the same id and name.
func (c Chromosome) EQ(c1 Chromosome) bool {
	return c.ID == c1.ID && c.Name == c1.Name
}

// LT orders chromosomes by id.
func (c Chromosome) LT(c1 Chromosome) bool { return c.ID < c1.ID }

// AllChromosomeName is the synthetic chromosome name produced by
// Reference.AddALL.
const AllChromosomeName = "All"

// IsAll reports whether c is the synthetic "ALL" chromosome added by
// Reference.AddALL.
func (c Chromosome) IsAll() bool { return c.ID == 0 && c.Name == AllChromosomeName }

func validateNamesSizes(names []string, sizes []uint32) error {
	if len(names) != len(sizes) {
		return errs.E(errs.InvalidInput, "NewReference", fmt.Sprintf("%d names, %d sizes", len(names), len(sizes)))
	}
	seen := make(map[string]bool, len(names))
	for i, n := range names {
		if n == "" {
			return errs.E(errs.InvalidInput, "NewReference", fmt.Sprintf("chromosome %d has empty name", i))
		}
		if sizes[i] == 0 {
			return errs.E(errs.InvalidInput, "NewReference", fmt.Sprintf("chromosome %q has zero size", n))
		}
		if seen[n] {
			return errs.E(errs.InvalidInput, "NewReference", fmt.Sprintf("duplicate chromosome name %q", n))
		}
		seen[n] = true
	}
	return nil
}
