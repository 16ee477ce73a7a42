package cdr3

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inodb/vibe-tcr/internal/reference"
	"github.com/inodb/vibe-tcr/internal/tcr"
)

const (
	// CASSPTGSYEQYF with TRBJ2-7, read in frame +3.
	testRearrangement = "ATGCTGTGTATCTCTGTGCCAGCAGCCCCACAGGGTCCTACGAGCAGTACTTCGGGCCGGGCACCAGGCTCACGGTCACAG"
	testCDR3          = "CASSPTGSYEQYF"
	testCDR3Nucseq    = "TGTGCCAGCAGCCCCACAGGGTCCTACGAGCAGTACTTC"

	// Same CDR3 with a sequencing error turning the Y codon into a stop.
	testStopRearrangement = "ATGCTGTGTATCTCTGTGCCAGCAGCCCCACAGGGTCCTACGAGCAGTAATTCGGG"
)

func testRef() *reference.Tables {
	return reference.New(nil, nil, nil, []reference.JFragment{
		{Organism: tcr.Human, Gene: "TRBJ2-7*01", Nucseq: "TCCTACGAGCAGTACTTC"},
		{Organism: tcr.Human, Gene: "TRBJ2-7*02", Nucseq: "tcctacgagcagtactgg"},
		{Organism: tcr.Human, Gene: "SHORT", Nucseq: "TTC"},
	})
}

func TestRecover(t *testing.T) {
	r := NewRecoverer(testRef())

	nt, ok := r.Recover("TRBV5-1*01", testCDR3, testRearrangement, "TRBJ2-7*01", tcr.Human)
	require.True(t, ok)
	assert.Equal(t, testCDR3Nucseq, nt)
	assert.Equal(t, testCDR3, Translate(nt))
}

func TestRecover_TrimsPastSequencingError(t *testing.T) {
	r := NewRecoverer(testRef())

	// Trim 1 misses because of the stop codon; trim 2 hits and the last two
	// residues come from the germline J.
	nt, ok := r.Recover("TRBV5-1*01", testCDR3, testStopRearrangement, "TRBJ2-7*01", tcr.Human)
	require.True(t, ok)
	assert.Equal(t, testCDR3Nucseq, nt)
}

func TestRecover_MismatchIsFailure(t *testing.T) {
	r := NewRecoverer(testRef())

	// The germline J ends in TGG (W) so the assembled sequence translates to
	// ...YW, not ...YF.
	nt, ok := r.Recover("TRBV5-1*01", testCDR3, testRearrangement, "TRBJ2-7*02", tcr.Human)
	assert.False(t, ok)
	assert.Empty(t, nt)
}

func TestRecover_Failures(t *testing.T) {
	r := NewRecoverer(testRef())

	tests := []struct {
		name          string
		cdr3          string
		rearrangement string
		jGene         string
		organism      tcr.Organism
	}{
		{"cdr3 not in rearrangement", "CASSQQQQQF", testRearrangement, "TRBJ2-7*01", tcr.Human},
		{"unknown J", testCDR3, testRearrangement, "TRBJ9-9*01", tcr.Human},
		{"J of other organism", testCDR3, testRearrangement, "TRBJ2-7*01", tcr.Mouse},
		{"empty cdr3", "", testRearrangement, "TRBJ2-7*01", tcr.Human},
		{"empty rearrangement", testCDR3, "", "TRBJ2-7*01", tcr.Human},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := r.Recover("TRBV5-1*01", tt.cdr3, tt.rearrangement, tt.jGene, tt.organism)
			assert.False(t, ok)
		})
	}
}

func TestRecover_RoundTrip(t *testing.T) {
	r := NewRecoverer(testRef())

	inputs := []struct{ cdr3, rearrangement, j string }{
		{testCDR3, testRearrangement, "TRBJ2-7*01"},
		{testCDR3, testStopRearrangement, "TRBJ2-7*01"},
		{testCDR3, testRearrangement, "SHORT"},
		{"CASSPTGSYEQYW", testRearrangement, "TRBJ2-7*02"},
		{"CASSPTGSY", testRearrangement, "TRBJ2-7*01"},
	}
	for _, in := range inputs {
		nt, ok := r.Recover("", in.cdr3, in.rearrangement, in.j, tcr.Human)
		if ok {
			assert.Equal(t, in.cdr3, Translate(nt), "cdr3 %s", in.cdr3)
		}
	}
}

func TestSuffix(t *testing.T) {
	assert.Equal(t, "TTC", suffix("TACTTC", 3))
	assert.Equal(t, "TACTTC", suffix("TACTTC", 9))
	assert.Equal(t, "", suffix("", 3))
}
