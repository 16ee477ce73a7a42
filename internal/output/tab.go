// Package output writes repertoire tables.
package output

import (
	"bufio"
	"io"
	"strings"

	"github.com/inodb/vibe-tcr/internal/tcr"
)

// Output column names.
var (
	RepertoireColumns = []string{"templates", "junction", "junction_aa", "v_call", "j_call"}
	NucleotideColumn  = "cdr3_nt"

	ChainColumns = []string{
		"cell_id", "clone_id", "sequence_id", "sequence", "productive",
		"v_call", "j_call", "junction", "junction_aa", "duplicate_count", "chain",
	}

	PairedColumns = []string{
		"cell_id", "clone_id",
		"sequence_a_id", "sequence_b_id", "sequence_a", "sequence_b",
		"productive",
		"v_a_call", "v_b_call", "j_a_call", "j_b_call",
		"junction_a", "junction_b", "junction_a_aa", "junction_b_aa",
		"duplicate_count_a", "duplicate_count_b",
	}

	SampleColumn = "sample_id"
)

// TabWriter writes rows in tab-delimited format.
type TabWriter struct {
	w       *bufio.Writer
	columns []string
}

// NewTabWriter creates a new tab-delimited writer with the given header.
func NewTabWriter(w io.Writer, columns []string) *TabWriter {
	return &TabWriter{
		w:       bufio.NewWriter(w),
		columns: columns,
	}
}

// WriteHeader writes the header line.
func (tw *TabWriter) WriteHeader() error {
	_, err := tw.w.WriteString(strings.Join(tw.columns, "\t") + "\n")
	return err
}

// WriteRow writes a single row.
func (tw *TabWriter) WriteRow(values []string) error {
	_, err := tw.w.WriteString(strings.Join(values, "\t") + "\n")
	return err
}

// Flush flushes any buffered data to the underlying writer.
func (tw *TabWriter) Flush() error {
	return tw.w.Flush()
}

// Missing values are written as empty cells.
func cell(v tcr.Value) string {
	s, _ := v.Get()
	return s
}

func count(c tcr.Count) string {
	if !c.Ok {
		return ""
	}
	return c.String()
}

// RepertoireHeader returns the bulk output columns.
func RepertoireHeader(withNucleotide bool) []string {
	cols := append([]string{}, RepertoireColumns...)
	if withNucleotide {
		cols = append(cols, NucleotideColumn)
	}
	return cols
}

// RepertoireValues formats one bulk record.
func RepertoireValues(r tcr.Rearrangement, withNucleotide bool) []string {
	vals := []string{
		count(r.Templates),
		cell(r.Rearrangement),
		cell(r.AminoAcid),
		cell(r.VCall),
		cell(r.JCall),
	}
	if withNucleotide {
		vals = append(vals, cell(r.CDR3Nucleotide))
	}
	return vals
}

// ChainHeader returns the single-cell chain output columns.
func ChainHeader(withSample bool) []string {
	cols := append([]string{}, ChainColumns...)
	if withSample {
		cols = append(cols, SampleColumn)
	}
	return cols
}

// ChainValues formats one chain record.
func ChainValues(r tcr.ChainRecord, withSample bool) []string {
	vals := []string{
		r.CellID, r.CloneID, r.SequenceID, r.Sequence, r.Productive,
		r.VCall, r.JCall, r.Junction, r.JunctionAA,
		count(r.DuplicateCount), string(r.Chain),
	}
	if withSample {
		vals = append(vals, r.SampleID)
	}
	return vals
}

// PairedHeader returns the paired output columns.
func PairedHeader(withSample bool) []string {
	cols := append([]string{}, PairedColumns...)
	if withSample {
		cols = append(cols, SampleColumn)
	}
	return cols
}

// PairedValues formats one paired cell.
func PairedValues(c tcr.PairedCell, withSample bool) []string {
	vals := []string{
		c.CellID, c.CloneID,
		c.SequenceAID, c.SequenceBID, c.SequenceA, c.SequenceB,
		c.Productive,
		c.VACall, c.VBCall, c.JACall, c.JBCall,
		c.JunctionA, c.JunctionB, c.JunctionAminoA, c.JunctionAminoB,
		count(c.DuplicateCountA), count(c.DuplicateCountB),
	}
	if withSample {
		vals = append(vals, c.SampleID)
	}
	return vals
}

// WriteRepertoire writes a bulk table with header.
func WriteRepertoire(w io.Writer, recs []tcr.Rearrangement, withNucleotide bool) error {
	tw := NewTabWriter(w, RepertoireHeader(withNucleotide))
	if err := tw.WriteHeader(); err != nil {
		return err
	}
	for _, r := range recs {
		if err := tw.WriteRow(RepertoireValues(r, withNucleotide)); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// WriteChains writes single-cell chain rows. The sample column is added
// when any row carries a sample.
func WriteChains(w io.Writer, recs []tcr.ChainRecord) error {
	withSample := HasChainSamples(recs)
	tw := NewTabWriter(w, ChainHeader(withSample))
	if err := tw.WriteHeader(); err != nil {
		return err
	}
	for _, r := range recs {
		if err := tw.WriteRow(ChainValues(r, withSample)); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// WritePaired writes one row per cell.
func WritePaired(w io.Writer, cells []tcr.PairedCell) error {
	withSample := HasPairedSamples(cells)
	tw := NewTabWriter(w, PairedHeader(withSample))
	if err := tw.WriteHeader(); err != nil {
		return err
	}
	for _, c := range cells {
		if err := tw.WriteRow(PairedValues(c, withSample)); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// HasChainSamples reports whether any chain row has a sample id.
func HasChainSamples(recs []tcr.ChainRecord) bool {
	for _, r := range recs {
		if r.SampleID != "" {
			return true
		}
	}
	return false
}

// HasPairedSamples reports whether any paired cell has a sample id.
func HasPairedSamples(cells []tcr.PairedCell) bool {
	for _, c := range cells {
		if c.SampleID != "" {
			return true
		}
	}
	return false
}
