// Package genes maps Adaptive gene identifiers to IMGT calls.
package genes

import (
	"fmt"
	"strings"

	"github.com/inodb/vibe-tcr/internal/reference"
	"github.com/inodb/vibe-tcr/internal/tcr"
)

// Unresolved is the Adaptive label for a gene with no confident call.
const Unresolved = "unresolved"

// Normalizer maps vendor gene identifiers for one organism. It never
// fails: identifiers without a mapping yield tcr.NA, which the readers
// treat as "drop this record".
type Normalizer struct {
	ref      *reference.Tables
	organism tcr.Organism
}

// NewNormalizer creates a normalizer for organism backed by ref.
func NewNormalizer(ref *reference.Tables, organism tcr.Organism) *Normalizer {
	return &Normalizer{ref: ref, organism: organism}
}

// Organism returns the organism this normalizer maps for.
func (n *Normalizer) Organism() tcr.Organism {
	return n.organism
}

// Map returns the IMGT call for an Adaptive gene identifier.
func (n *Normalizer) Map(vendorID string) tcr.Value {
	if tcr.IsMissingToken(vendorID) {
		return tcr.NA
	}
	return n.ref.VendorCall(n.organism, vendorID)
}

// MapFamily returns the most frequent IMGT allele observed for an Adaptive
// V family. Used only for records whose gene is unresolved.
func (n *Normalizer) MapFamily(family string) tcr.Value {
	if tcr.IsMissingToken(family) {
		return tcr.NA
	}
	return n.ref.FamilyCall(n.organism, family)
}

// IsUnresolved reports whether an Adaptive gene identifier is the literal
// unresolved label.
func IsUnresolved(vendorID string) bool {
	return vendorID == Unresolved
}

// WithAllele rewrites the allele suffix of an IMGT call to the vendor allele
// number ("TRBV5-1*01" with allele 2 becomes "TRBV5-1*02"). Calls are
// returned unchanged when no allele was specified.
func WithAllele(call tcr.Value, allele tcr.Allele) tcr.Value {
	s, ok := call.Get()
	if !ok || allele == tcr.NoAllele {
		return call
	}
	gene, _, _ := strings.Cut(s, "*")
	return tcr.Of(fmt.Sprintf("%s*%02d", gene, int(allele)))
}
