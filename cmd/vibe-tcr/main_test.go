package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testdata(t *testing.T, name string) string {
	t.Helper()
	p, err := filepath.Abs(filepath.Join("..", "..", "testdata", name))
	require.NoError(t, err)
	_, err = os.Stat(p)
	require.NoError(t, err, "test file not found: %s", name)
	return p
}

// execute runs the CLI with an isolated home directory and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	viper.Reset()
	cfgFile = ""
	t.Setenv("HOME", t.TempDir())

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "vibe-tcr version dev")
}

func TestBulk(t *testing.T) {
	out := filepath.Join(t.TempDir(), "cleaned.tsv")
	_, err := execute(t, "bulk",
		"--reference-dir", testdata(t, "reference"),
		"-o", out,
		testdata(t, "adaptive_sample.tsv"))
	require.NoError(t, err)

	lines := readLines(t, out)
	require.Len(t, lines, 5)
	assert.Equal(t, "templates\tjunction\tjunction_aa\tv_call\tj_call", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "50\t"))
}

func TestBulk_SeveralFilesToDirectory(t *testing.T) {
	dir := t.TempDir()
	sample, err := os.ReadFile(testdata(t, "adaptive_sample.tsv"))
	require.NoError(t, err)
	a := filepath.Join(dir, "a.tsv")
	b := filepath.Join(dir, "b.tsv")
	require.NoError(t, os.WriteFile(a, sample, 0644))
	require.NoError(t, os.WriteFile(b, sample, 0644))

	outDir := filepath.Join(dir, "out") + "/"
	db := filepath.Join(dir, "tcr.duckdb")
	_, err = execute(t, "bulk", "--recover-nt", "--workers", "2",
		"--reference-dir", testdata(t, "reference"),
		"--db", db, "-o", outDir, a, b)
	require.NoError(t, err)

	for _, name := range []string{"a.tsv", "b.tsv"} {
		lines := readLines(t, filepath.Join(outDir, name))
		require.Len(t, lines, 5)
		assert.True(t, strings.HasSuffix(lines[0], "\tcdr3_nt"))
	}

	out, err := execute(t, "stats", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "# Top bulk clonotypes")
	assert.Contains(t, out, "CASSLGNTEAFF")
	assert.Contains(t, out, "100")

	// Unchanged inputs are skipped.
	skipDir := filepath.Join(dir, "skip") + "/"
	_, err = execute(t, "bulk", "--skip-loaded",
		"--reference-dir", testdata(t, "reference"),
		"--db", db, "-o", skipDir, a, b)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(skipDir, "a.tsv"))
	assert.True(t, os.IsNotExist(err))
}

func TestBulk_SeveralFilesNeedDirectory(t *testing.T) {
	sample := testdata(t, "adaptive_sample.tsv")
	_, err := execute(t, "bulk", "--reference-dir", testdata(t, "reference"),
		"-o", filepath.Join(t.TempDir(), "x.tsv"), sample, sample)
	var ue usageError
	assert.ErrorAs(t, err, &ue)
}

func TestBulk_NoReference(t *testing.T) {
	viper.Reset()
	cfgFile = ""
	t.Setenv("HOME", t.TempDir())
	code := run([]string{"bulk", testdata(t, "adaptive_sample.tsv")})
	assert.Equal(t, ExitError, code)
}

func TestBulk_UnknownOrganism(t *testing.T) {
	_, err := execute(t, "bulk", "--organism", "zebrafish",
		"--reference-dir", testdata(t, "reference"),
		testdata(t, "adaptive_sample.tsv"))
	var ue usageError
	assert.ErrorAs(t, err, &ue)
}

func TestParseDelimiter(t *testing.T) {
	tests := []struct {
		in   string
		want rune
		ok   bool
	}{
		{"", 0, true},
		{"tab", '\t', true},
		{"comma", ',', true},
		{";", ';', true},
		{"ab", 0, false},
	}
	for _, tt := range tests {
		got, err := parseDelimiter(tt.in)
		if !tt.ok {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestSingleCell_Paired(t *testing.T) {
	out := filepath.Join(t.TempDir(), "cells.tsv")
	_, err := execute(t, "singlecell", "--paired", "-o", out, testdata(t, "10x_airr.tsv"))
	require.NoError(t, err)

	lines := readLines(t, out)
	require.Len(t, lines, 7)
	assert.True(t, strings.HasPrefix(lines[0], "cell_id\tclone_id\tsequence_a_id"))
}

func TestDemultiplex(t *testing.T) {
	dir := t.TempDir()
	barcodes := filepath.Join(dir, "barcodes.csv")
	data, err := os.ReadFile(testdata(t, "barcodes.csv"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(barcodes, data, 0644))

	out := filepath.Join(dir, "demux.tsv")
	xlsx := filepath.Join(dir, "samples.xlsx")
	db := filepath.Join(dir, "tcr.duckdb")
	_, err = execute(t, "demultiplex", "--write-samples", "--paired",
		"--xlsx", xlsx, "--db", db, "-o", out,
		testdata(t, "10x_airr.tsv"), barcodes)
	require.NoError(t, err)

	lines := readLines(t, out)
	require.Len(t, lines, 4)
	assert.True(t, strings.HasSuffix(lines[0], "\tsample_id"))
	assert.NotContains(t, strings.Join(lines, "\n"), "clonotype1")

	for _, s := range []string{"S01_AAA_1", "S02_BBB_1", "S03_poo_1"} {
		_, err := os.Stat(filepath.Join(dir, "samples", s+".tsv"))
		assert.NoError(t, err, s)
	}
	_, err = os.Stat(xlsx)
	assert.NoError(t, err)

	stats, err := execute(t, "stats", "--db", db, "--top", "1")
	require.NoError(t, err)
	assert.Contains(t, stats, "S03_poo_1")
	assert.Contains(t, stats, "demultiplex")
}

func TestStats_RequiresDB(t *testing.T) {
	_, err := execute(t, "stats")
	var ue usageError
	assert.ErrorAs(t, err, &ue)
}

func TestConfigSetGet(t *testing.T) {
	home := t.TempDir()
	cfg := filepath.Join(home, "vibe-tcr.yaml")

	viper.Reset()
	cfgFile = ""
	t.Setenv("HOME", home)

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--config", cfg, "config", "set", "reference.dir", "/data/ref"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "Set reference.dir = /data/ref")

	viper.Reset()
	cfgFile = ""
	root = newRootCmd()
	out.Reset()
	root.SetOut(&out)
	root.SetArgs([]string{"--config", cfg, "config", "get", "reference.dir"})
	require.NoError(t, root.Execute())
	assert.Equal(t, "/data/ref\n", out.String())
}
