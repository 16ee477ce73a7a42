package tcr

import (
	"fmt"
	"strings"
)

// Organism selects species-specific reference data.
type Organism string

const (
	Human Organism = "human"
	Mouse Organism = "mouse"
)

// ParseOrganism parses an organism name case-insensitively.
func ParseOrganism(s string) (Organism, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "human", "homo_sapiens", "hs":
		return Human, nil
	case "mouse", "mus_musculus", "mm":
		return Mouse, nil
	}
	return "", fmt.Errorf("unknown organism %q (want human or mouse)", s)
}

// Chain is a TCR chain type.
type Chain string

const (
	Alpha Chain = "A"
	Beta  Chain = "B"
)

// Rearrangement is one bulk-sequencing row as it moves through the
// repertoire pipeline.
type Rearrangement struct {
	Templates     Count
	Rearrangement Value
	AminoAcid     Value

	VFamily string
	VGene   string
	JFamily string
	JGene   string
	VAllele Allele
	JAllele Allele

	VCall Value
	JCall Value

	// CDR3Nucleotide is filled only when nucleotide recovery was requested.
	CDR3Nucleotide Value
}

// Key returns the output-visible fields used for duplicate removal.
func (r Rearrangement) Key() [6]string {
	return [6]string{
		r.Templates.String(),
		r.Rearrangement.String(),
		r.AminoAcid.String(),
		r.VCall.String(),
		r.JCall.String(),
		r.CDR3Nucleotide.String(),
	}
}

// ChainRecord is one single-cell contig row (one chain of one cell).
type ChainRecord struct {
	CellID         string
	CloneID        string
	SequenceID     string
	Sequence       string
	Productive     string
	VCall          string
	JCall          string
	Junction       string
	JunctionAA     string
	DuplicateCount Count
	Chain          Chain
	SampleID       string
}

// PairedCell merges the alpha and beta ChainRecords of one cell.
type PairedCell struct {
	CellID          string
	CloneID         string
	SequenceAID     string
	SequenceBID     string
	SequenceA       string
	SequenceB       string
	Productive      string
	VACall          string
	VBCall          string
	JACall          string
	JBCall          string
	JunctionA       string
	JunctionB       string
	JunctionAminoA  string
	JunctionAminoB  string
	DuplicateCountA Count
	DuplicateCountB Count
	SampleID        string
}
