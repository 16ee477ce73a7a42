package table

import (
	"compress/gzip"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReader_TSV(t *testing.T) {
	src := "a\tb\tc\n1\t2\t3\n\n4\t5\n"
	r, err := NewReader(strings.NewReader(src), 0)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, r.Header())
	assert.True(t, r.Has("b"))
	assert.False(t, r.Has("d"))

	row, err := r.Next()
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "1", row.Get("a"))
	assert.Equal(t, "3", row.Get("c"))
	assert.Equal(t, "", row.Get("missing"))

	row, err = r.Next()
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "4", row.Get("a"))
	assert.Equal(t, "", row.Get("c"), "short rows read as empty cells")

	row, err = r.Next()
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestReader_SniffsComma(t *testing.T) {
	r, err := NewReader(strings.NewReader("cell_id,sample_id\nAAAC-1,S1_xAAA\n"), 0)
	require.NoError(t, err)
	row, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "S1_xAAA", row.Get("sample_id"))
}

func TestReader_Require(t *testing.T) {
	r, err := NewReader(strings.NewReader("a,b\n1,2\n"), '\t')
	require.NoError(t, err)

	err = r.Require("a")
	require.Error(t, err)

	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Contains(t, pe.Message, "'a'")
}

func TestReader_Empty(t *testing.T) {
	_, err := NewReader(strings.NewReader(""), '\t')
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Contains(t, pe.Message, "no header")
}

func TestOpen_Gzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.tsv.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	_, err = gz.Write([]byte("# comment\nx\ty\nfoo\tbar\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())

	r, err := Open(path, 0)
	require.NoError(t, err)
	defer r.Close()

	row, err := r.Next()
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "bar", row.Get("y"))
}

func TestOpen_NotFound(t *testing.T) {
	_, err := Open("/nonexistent/file.tsv", 0)
	assert.Error(t, err)
	assert.True(t, os.IsNotExist(errors.Unwrap(err)))
}
