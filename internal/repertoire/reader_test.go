package repertoire

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/inodb/vibe-tcr/internal/cdr3"
	"github.com/inodb/vibe-tcr/internal/reference"
	"github.com/inodb/vibe-tcr/internal/seqcheck"
	"github.com/inodb/vibe-tcr/internal/table"
	"github.com/inodb/vibe-tcr/internal/tcr"
)

func loadRef(t *testing.T) *reference.Tables {
	t.Helper()
	ref, err := reference.Load(reference.PathsInDir(findTestFile(t, "reference")))
	require.NoError(t, err)
	return ref
}

func calls(recs []tcr.Rearrangement) []string {
	return lo.Map(recs, func(r tcr.Rearrangement, _ int) string {
		return r.VCall.String() + "|" + r.JCall.String() + "|" + r.AminoAcid.String() + "|" + r.Templates.String()
	})
}

func TestReader_Read(t *testing.T) {
	ref := loadRef(t)
	r := NewReader(ref, DefaultOptions())

	res, err := r.Read(findTestFile(t, "adaptive_sample.tsv"))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"TRBV20-1*01|TRBJ1-1*01|CASSLGNTEAFF|50",
		"TRBV5-1*01|TRBJ2-7*01|CASSPTGSYEQYF|10",
		"TRBV5-1*01|TRBJ2-7*01|CASSQDRGYEQYF|7",
		"TRBV12-3*01|TRBJ2-1*01|CASSYSNEQFF|5",
	}, calls(res.Records))

	assert.Equal(t, Stats{
		Rows:       13,
		Productive: 12,
		Unresolved: 2,
		RecoveredV: 1,
		Output:     4,
	}, res.Stats)

	for _, rec := range res.Records {
		assert.Equal(t, tcr.Pending, rec.CDR3Nucleotide.State(), "nucleotide recovery not requested")
	}
}

func TestReader_OutputRowsAreClean(t *testing.T) {
	ref := loadRef(t)
	res, err := NewReader(ref, DefaultOptions()).Read(findTestFile(t, "adaptive_sample.tsv"))
	require.NoError(t, err)
	require.NotEmpty(t, res.Records)

	for _, rec := range res.Records {
		v, vok := rec.VCall.Get()
		j, jok := rec.JCall.Get()
		require.True(t, vok)
		require.True(t, jok)
		assert.True(t, ref.IsKnown(tcr.Human, v))
		assert.True(t, ref.IsKnown(tcr.Human, j))
		assert.True(t, ref.IsFunctional(tcr.Human, v))
		assert.True(t, seqcheck.IsValidCDR3Value(rec.AminoAcid))
		assert.True(t, rec.Templates.Ok)
	}

	for i := 1; i < len(res.Records); i++ {
		assert.GreaterOrEqual(t, res.Records[i-1].Templates.N, res.Records[i].Templates.N)
	}
}

func TestReader_NoRecoverUnresolved(t *testing.T) {
	opts := DefaultOptions()
	opts.RecoverUnresolved = false
	res, err := NewReader(loadRef(t), opts).Read(findTestFile(t, "adaptive_sample.tsv"))
	require.NoError(t, err)

	assert.Len(t, res.Records, 3)
	assert.Equal(t, 0, res.Stats.RecoveredV)
	assert.Equal(t, 2, res.Stats.Unresolved)
}

func TestReader_Idempotent(t *testing.T) {
	opts := DefaultOptions()
	opts.RecoverUnresolved = false
	r := NewReader(loadRef(t), opts)
	path := findTestFile(t, "adaptive_sample.tsv")

	first, err := r.Read(path)
	require.NoError(t, err)
	second, err := r.Read(path)
	require.NoError(t, err)

	assert.Equal(t, first.Records, second.Records)
}

func TestReader_AlleleLevel(t *testing.T) {
	opts := DefaultOptions()
	opts.AlleleLevel = true
	res, err := NewReader(loadRef(t), opts).Read(findTestFile(t, "adaptive_sample.tsv"))
	require.NoError(t, err)

	got := calls(res.Records)
	assert.Contains(t, got, "TRBV5-1*02|TRBJ2-7*01|CASSQDRGYEQYF|7")
	assert.Len(t, got, 4)
}

func TestReader_RecoverNucleotide(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)

	opts := DefaultOptions()
	opts.RecoverNucleotide = true
	r := NewReader(loadRef(t), opts)
	r.SetLogger(zap.New(core))

	res, err := r.Read(findTestFile(t, "adaptive_sample.tsv"))
	require.NoError(t, err)
	require.Len(t, res.Records, 4)

	want := []string{
		"TGTGCCAGCAGCTTAGGGAACACTGAAGCTTTCTTT",
		"TGTGCCAGCAGCCCCACAGGGTCCTACGAGCAGTACTTC",
		"TGTGCCAGCAGCCAAGACAGGGGCTACGAGCAGTACTTC",
	}
	for i, nt := range want {
		got, ok := res.Records[i].CDR3Nucleotide.Get()
		require.True(t, ok, "record %d", i)
		assert.Equal(t, nt, got)
		aa, _ := res.Records[i].AminoAcid.Get()
		assert.Equal(t, aa, cdr3.Translate(got))
	}

	// The recovered unresolved row carries a rearrangement without its CDR3.
	assert.Equal(t, tcr.NotAvailable, res.Records[3].CDR3Nucleotide.State())
	assert.Equal(t, 1, res.Stats.NucleotideFailures)
	assert.Equal(t, 1, logs.FilterMessage("parse cdr3 nucleotide sequence failed").Len())
}

func TestReader_LegacyColumns(t *testing.T) {
	src := strings.Join([]string{
		"templates\tcdr3_rearrangement\tcdr3_amino_acid\tv_family\tj_family\tv_gene\tv_allele\tj_gene\tj_allele\tframe_type",
		"3\tACGT\tCASSPTGSYEQYF\tTCRBV05\tTCRBJ02\tTCRBV05-01\t1\tTCRBJ02-07\t1\tIn",
	}, "\n")

	opts := DefaultOptions()
	opts.LegacyColumns = true
	res, err := NewReader(loadRef(t), opts).ReadFrom(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, tcr.Of("ACGT"), res.Records[0].Rearrangement)

	// The same file without the legacy flag lacks the modern columns.
	_, err = NewReader(loadRef(t), DefaultOptions()).ReadFrom(strings.NewReader(src))
	var pe *table.ParseError
	require.True(t, errors.As(err, &pe))
	assert.Contains(t, pe.Message, "rearrangement")
}

func TestReader_WrongDelimiter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.tsv")
	data, err := os.ReadFile(findTestFile(t, "adaptive_sample.tsv"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))

	opts := DefaultOptions()
	opts.Delimiter = ','
	_, err = NewReader(loadRef(t), opts).Read(path)
	var pe *table.ParseError
	assert.True(t, errors.As(err, &pe))
}

func TestReader_Process_DoesNotMutateInput(t *testing.T) {
	in := []tcr.Rearrangement{{
		Templates:     tcr.Count{N: 1, Ok: true},
		Rearrangement: tcr.Of("ACGT"),
		AminoAcid:     tcr.Of("CASSPTGSYEQYF"),
		VGene:         "TCRBV05-01",
		JGene:         "TCRBJ02-07",
	}}
	out, _ := NewReader(loadRef(t), DefaultOptions()).Process(in)

	require.Len(t, out, 1)
	assert.Equal(t, tcr.Of("TRBV5-1*01"), out[0].VCall)
	assert.Equal(t, tcr.Pending, in[0].VCall.State())
}

func TestReader_RecoveryCountLogged(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	r := NewReader(loadRef(t), DefaultOptions())
	r.SetLogger(zap.New(core))

	_, err := r.Read(findTestFile(t, "adaptive_sample.tsv"))
	require.NoError(t, err)

	entries := logs.FilterMessage("recovered unresolved V genes").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(1), entries[0].ContextMap()["recovered"])
}

func findTestFile(t *testing.T, name string) string {
	t.Helper()

	paths := []string{
		filepath.Join("testdata", name),
		filepath.Join("..", "..", "testdata", name),
	}

	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	t.Fatalf("Test file not found: %s", name)
	return ""
}
