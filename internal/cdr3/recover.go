package cdr3

import (
	"strings"

	"github.com/inodb/vibe-tcr/internal/tcr"
)

// maxTrim is the largest number of C-terminal CDR3 residues replaced by
// germline J nucleotides.
const maxTrim = 3

// JFragmentLookup returns the germline CDR3-region nucleotides of a J gene.
// *reference.Tables implements it.
type JFragmentLookup interface {
	JCDR3Nucleotide(org tcr.Organism, jGene string) (string, bool)
}

// Recoverer finds the nucleotide span encoding a CDR3 amino-acid sequence
// inside a full rearrangement.
type Recoverer struct {
	ref JFragmentLookup
}

// NewRecoverer creates a Recoverer using ref for J-gene fragments.
func NewRecoverer(ref JFragmentLookup) *Recoverer {
	return &Recoverer{ref: ref}
}

// Recover returns the CDR3 nucleotide sequence, or false when it cannot be
// recovered. Failure is a per-record condition; callers log and continue.
//
// Reading frames +1..+3 are searched in order. Within a frame the CDR3 with
// its last t residues removed (t = 1..3) is looked up in the translated
// rearrangement; the first hit is extended with the last 3t nucleotides of
// the J fragment and must translate back to cdr3AA exactly. A hit that does
// not translate back ends the search with no result.
//
// vGene does not take part in the search; it identifies the record.
func (r *Recoverer) Recover(vGene, cdr3AA, rearrangement, jGene string, organism tcr.Organism) (string, bool) {
	if cdr3AA == "" || rearrangement == "" {
		return "", false
	}
	jNucseq, ok := r.ref.JCDR3Nucleotide(organism, jGene)
	if !ok {
		return "", false
	}
	jNucseq = strings.ToUpper(jNucseq)

	for offset := 0; offset < 3; offset++ {
		protseq := TranslateFrame(rearrangement, offset)
		for trim := 1; trim <= maxTrim; trim++ {
			keep := max(len(cdr3AA)-trim, 0)
			idx := strings.Index(protseq, cdr3AA[:keep])
			if idx < 0 {
				continue
			}

			start := offset + 3*idx
			nucseq := rearrangement[start:start+3*keep] + suffix(jNucseq, 3*trim)
			if Translate(nucseq) != cdr3AA {
				return "", false
			}
			return nucseq, true
		}
	}

	return "", false
}

// suffix returns the last n bytes of s, or all of s when it is shorter.
func suffix(s string, n int) string {
	if n >= len(s) {
		return s
	}
	return s[len(s)-n:]
}
