// Package reference holds the static lookup tables used to normalize and
// validate TCR gene calls. Tables are built once and are read-only after
// construction, so a single *Tables may be shared between goroutines.
package reference

import (
	"github.com/inodb/vibe-tcr/internal/tcr"
)

// Gene is one row of the canonical (IMGT) gene table.
type Gene struct {
	Organism   tcr.Organism // empty when the table is not organism-specific
	Allele     string       // e.g. "TRBV5-1*01"
	Functional bool
}

// VendorMapping maps an Adaptive gene identifier to an IMGT call.
type VendorMapping struct {
	Organism tcr.Organism
	Vendor   string
	Call     tcr.Value
}

// FamilyMapping maps an Adaptive V family to its most frequent IMGT allele.
type FamilyMapping struct {
	Organism tcr.Organism
	Family   string
	Allele   string
}

// JFragment is the germline nucleotide sequence of a J gene's CDR3 region.
type JFragment struct {
	Organism tcr.Organism
	Gene     string
	Nucseq   string
}

// Tables is the reference context passed to every component that needs
// gene lookups.
type Tables struct {
	genes    map[tcr.Organism]map[string]Gene
	vendor   map[tcr.Organism]map[string]tcr.Value
	families map[tcr.Organism]map[string]string
	jcdr3    map[tcr.Organism]map[string]string
}

// New builds Tables from already parsed rows. Later rows win on duplicate
// keys.
func New(genes []Gene, vendor []VendorMapping, families []FamilyMapping, jfrags []JFragment) *Tables {
	t := &Tables{
		genes:    make(map[tcr.Organism]map[string]Gene),
		vendor:   make(map[tcr.Organism]map[string]tcr.Value),
		families: make(map[tcr.Organism]map[string]string),
		jcdr3:    make(map[tcr.Organism]map[string]string),
	}
	for _, g := range genes {
		put(t.genes, g.Organism, g.Allele, g)
	}
	for _, m := range vendor {
		call := m.Call
		if s, ok := call.Get(); !ok || s == "" {
			call = tcr.NA
		}
		put(t.vendor, m.Organism, m.Vendor, call)
	}
	for _, f := range families {
		put(t.families, f.Organism, f.Family, f.Allele)
	}
	for _, j := range jfrags {
		put(t.jcdr3, j.Organism, j.Gene, j.Nucseq)
	}
	return t
}

func put[V any](m map[tcr.Organism]map[string]V, org tcr.Organism, key string, v V) {
	inner, ok := m[org]
	if !ok {
		inner = make(map[string]V)
		m[org] = inner
	}
	inner[key] = v
}

// lookup checks the organism-specific table first, then rows loaded
// without an organism.
func lookup[V any](m map[tcr.Organism]map[string]V, org tcr.Organism, key string) (V, bool) {
	if v, ok := m[org][key]; ok {
		return v, true
	}
	v, ok := m[""][key]
	return v, ok
}

// Gene returns the canonical gene entry for an allele name.
func (t *Tables) Gene(org tcr.Organism, allele string) (Gene, bool) {
	return lookup(t.genes, org, allele)
}

// IsKnown reports whether allele is in the canonical gene table.
func (t *Tables) IsKnown(org tcr.Organism, allele string) bool {
	_, ok := t.Gene(org, allele)
	return ok
}

// IsFunctional reports whether allele is in the canonical table and marked
// functional.
func (t *Tables) IsFunctional(org tcr.Organism, allele string) bool {
	g, ok := t.Gene(org, allele)
	return ok && g.Functional
}

// VendorCall looks up an Adaptive gene identifier. Unmapped identifiers
// yield tcr.NA.
func (t *Tables) VendorCall(org tcr.Organism, vendor string) tcr.Value {
	if v, ok := lookup(t.vendor, org, vendor); ok {
		return v
	}
	return tcr.NA
}

// FamilyCall returns the most frequent IMGT allele for an Adaptive V family.
func (t *Tables) FamilyCall(org tcr.Organism, family string) tcr.Value {
	if a, ok := lookup(t.families, org, family); ok && a != "" && !tcr.IsMissingToken(a) {
		return tcr.Of(a)
	}
	return tcr.NA
}

// JCDR3Nucleotide returns the germline CDR3-region nucleotides of a J gene.
func (t *Tables) JCDR3Nucleotide(org tcr.Organism, jGene string) (string, bool) {
	s, ok := lookup(t.jcdr3, org, jGene)
	return s, ok && s != ""
}

// Sizes reports table row counts for logging.
func (t *Tables) Sizes() (genes, vendor, families, jcdr3 int) {
	for _, m := range t.genes {
		genes += len(m)
	}
	for _, m := range t.vendor {
		vendor += len(m)
	}
	for _, m := range t.families {
		families += len(m)
	}
	for _, m := range t.jcdr3 {
		jcdr3 += len(m)
	}
	return
}
