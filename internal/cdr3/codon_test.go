package cdr3

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTranslateCodon(t *testing.T) {
	tests := []struct {
		name  string
		codon string
		want  byte
	}{
		{"ATG -> Met", "ATG", 'M'},
		{"TGT -> Cys", "TGT", 'C'},
		{"TTT -> Phe", "TTT", 'F'},
		{"TGG -> Trp", "TGG", 'W'},

		{"TAA -> Stop", "TAA", '*'},
		{"TAG -> Stop", "TAG", '*'},
		{"TGA -> Stop", "TGA", '*'},

		{"lowercase", "atg", 'M'},
		{"mixed case", "tGt", 'C'},

		{"too short", "AT", 'X'},
		{"too long", "ATGG", 'X'},
		{"ambiguous base", "ANG", 'X'},
		{"empty", "", 'X'},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TranslateCodon(tt.codon)
			if got != tt.want {
				t.Errorf("TranslateCodon(%q) = %c, want %c", tt.codon, got, tt.want)
			}
		})
	}
}

func TestTranslate(t *testing.T) {
	assert.Equal(t, "CASSPTGSYEQYF", Translate(testCDR3Nucseq))
	assert.Equal(t, "MK", Translate("ATGAAAGC"), "incomplete codon dropped")
	assert.Equal(t, "", Translate("AT"))
}

func TestTranslateFrame(t *testing.T) {
	seq := "AATGAAA"
	assert.Equal(t, "NE", TranslateFrame(seq, 0))
	assert.Equal(t, "MK", TranslateFrame(seq, 1))
	assert.Equal(t, "*", TranslateFrame(seq, 2))
	assert.Equal(t, "", TranslateFrame(seq, 7))
	assert.Equal(t, "", TranslateFrame(seq, -1))
}
