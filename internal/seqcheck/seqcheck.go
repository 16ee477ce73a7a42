// Package seqcheck classifies strings as amino-acid and CDR3 sequences.
package seqcheck

import "github.com/inodb/vibe-tcr/internal/tcr"

// AminoAcids is the standard 20-letter amino-acid alphabet.
const AminoAcids = "ACDEFGHIKLMNPQRSTVWY"

const (
	MinCDR3Length = 6
	MaxCDR3Length = 30
)

var aminoAcidSet [256]bool

func init() {
	for i := 0; i < len(AminoAcids); i++ {
		aminoAcidSet[AminoAcids[i]] = true
	}
}

// IsAminoAcidSequence reports whether every character of seq is a standard
// amino acid. The empty string is vacuously an amino-acid sequence.
func IsAminoAcidSequence(seq string) bool {
	for i := 0; i < len(seq); i++ {
		if !aminoAcidSet[seq[i]] {
			return false
		}
	}
	return true
}

// IsValidCDR3 reports whether seq looks like a CDR3 amino-acid sequence:
// standard residues only, starting with C, ending with F, W or C, and
// between 6 and 30 residues long.
func IsValidCDR3(seq string) bool {
	n := len(seq)
	if n < MinCDR3Length || n > MaxCDR3Length {
		return false
	}
	if seq[0] != 'C' {
		return false
	}
	switch seq[n-1] {
	case 'F', 'W', 'C':
	default:
		return false
	}
	return IsAminoAcidSequence(seq)
}

// IsValidCDR3Value is IsValidCDR3 for a possibly missing field.
// Values that are not present are never valid.
func IsValidCDR3Value(v tcr.Value) bool {
	s, ok := v.Get()
	return ok && IsValidCDR3(s)
}
