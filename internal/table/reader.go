// Package table reads delimited (TSV/CSV, optionally gzipped) tables with
// named header columns.
package table

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Reader reads rows from a delimited file with a header line.
type Reader struct {
	path       string
	file       *os.File
	gzipReader *gzip.Reader
	csv        *csv.Reader
	header     []string
	index      map[string]int
	lineNumber int
}

// Open opens a delimited file. Gzipped input is detected from its magic
// bytes. A zero delim sniffs tab versus comma from the header line.
func Open(path string, delim rune) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open table: %w", err)
	}

	r := &Reader{path: path, file: file}

	br := bufio.NewReader(file)
	magic, err := br.Peek(2)
	if err != nil && !errors.Is(err, io.EOF) {
		file.Close()
		return nil, fmt.Errorf("read table header: %w", err)
	}

	var src io.Reader = br
	// gzip magic number (0x1f, 0x8b)
	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		r.gzipReader, err = gzip.NewReader(br)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		src = r.gzipReader
	}

	if err := r.init(src, delim); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

// NewReader creates a Reader over an already open stream.
func NewReader(src io.Reader, delim rune) (*Reader, error) {
	r := &Reader{path: "-"}
	if err := r.init(src, delim); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Reader) init(src io.Reader, delim rune) error {
	br := bufio.NewReader(src)
	if delim == 0 {
		delim = sniffDelimiter(br)
	}

	c := csv.NewReader(br)
	c.Comma = delim
	c.Comment = '#'
	c.FieldsPerRecord = -1
	c.LazyQuotes = true
	r.csv = c

	return r.parseHeader()
}

// sniffDelimiter peeks at the first line and picks tab unless the line
// has commas and no tabs.
func sniffDelimiter(br *bufio.Reader) rune {
	buf, _ := br.Peek(4096)
	if i := bytes.IndexByte(buf, '\n'); i >= 0 {
		buf = buf[:i]
	}
	if bytes.Count(buf, []byte{','}) > 0 && bytes.Count(buf, []byte{'\t'}) == 0 {
		return ','
	}
	return '\t'
}

func (r *Reader) parseHeader() error {
	rec, err := r.csv.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return &ParseError{Path: r.path, Line: r.lineNumber, Message: "no header line found"}
		}
		return &ParseError{Path: r.path, Line: r.lineNumber, Message: fmt.Sprintf("read header: %v", err)}
	}
	r.lineNumber++

	r.header = make([]string, len(rec))
	r.index = make(map[string]int, len(rec))
	for i, col := range rec {
		col = strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))
		r.header[i] = col
		if _, dup := r.index[col]; !dup {
			r.index[col] = i
		}
	}
	return nil
}

// Require returns a ParseError naming the first absent column.
func (r *Reader) Require(cols ...string) error {
	for _, col := range cols {
		if _, ok := r.index[col]; !ok {
			return &ParseError{
				Path:    r.path,
				Line:    1,
				Message: fmt.Sprintf("required column '%s' not found in header", col),
			}
		}
	}
	return nil
}

// Has reports whether the header contains col.
func (r *Reader) Has(col string) bool {
	_, ok := r.index[col]
	return ok
}

// Header returns the parsed header columns.
func (r *Reader) Header() []string {
	return r.header
}

// Next reads the next row. Returns nil, nil at end of input.
func (r *Reader) Next() (*Row, error) {
	rec, err := r.csv.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, &ParseError{Path: r.path, Line: r.lineNumber + 1, Message: err.Error()}
	}
	r.lineNumber++

	// Skip blank lines that csv did not drop (e.g. a lone delimiter-free space).
	if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
		return r.Next()
	}

	return &Row{fields: rec, index: r.index, Line: r.lineNumber}, nil
}

// Close closes the reader and the underlying file.
func (r *Reader) Close() error {
	if r.gzipReader != nil {
		r.gzipReader.Close()
	}
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// Row is a single data row addressed by column name.
type Row struct {
	fields []string
	index  map[string]int
	Line   int
}

// Get returns the cell for col, or "" when the column or cell is absent.
func (r *Row) Get(col string) string {
	i, ok := r.index[col]
	if !ok || i >= len(r.fields) {
		return ""
	}
	return strings.TrimSpace(r.fields[i])
}

// ParseError is a structural problem with a table: unreadable input or a
// missing required column.
type ParseError struct {
	Path    string
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: parse error at line %d: %s", e.Path, e.Line, e.Message)
}
