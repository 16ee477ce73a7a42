package singlecell

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/inodb/vibe-tcr/internal/output"
	"github.com/inodb/vibe-tcr/internal/table"
	"github.com/inodb/vibe-tcr/internal/tcr"
)

// PoolTag marks pooled samples. A clonotype shared between one condition
// and the pool is not treated as contamination.
const PoolTag = "poo"

// SamplesDir is the directory, beside the barcode file, that receives
// per-sample tables.
const SamplesDir = "samples"

// Barcode maps a cell barcode to the sample it was tagged with.
type Barcode struct {
	CellID   string
	SampleID string
}

// ReadBarcodes reads a comma-delimited barcode file with cell_id and
// sample_id columns. Later rows win when a cell is listed twice.
func ReadBarcodes(path string) ([]Barcode, error) {
	t, err := table.Open(path, ',')
	if err != nil {
		return nil, err
	}
	defer t.Close()

	if err := t.Require(ColCellID, ColSampleID); err != nil {
		return nil, err
	}

	var out []Barcode
	for {
		row, err := t.Next()
		if err != nil {
			return nil, fmt.Errorf("read barcodes: %w", err)
		}
		if row == nil {
			break
		}
		cell := row.Get(ColCellID)
		if tcr.IsMissingToken(cell) {
			continue
		}
		out = append(out, Barcode{CellID: cell, SampleID: row.Get(ColSampleID)})
	}
	return out, nil
}

// ConditionTag returns the three-character condition tag embedded at
// characters 4..7 of a sample id, or what is left of it for short ids.
func ConditionTag(sampleID string) string {
	r := []rune(sampleID)
	if len(r) <= 4 {
		return ""
	}
	return string(r[4:min(len(r), 7)])
}

// Contaminated reports whether a clonotype seen in the given samples is
// cross-sample contamination: two distinct condition tags neither of which
// is the pool, or more than two tags.
func Contaminated(samples []string) bool {
	samples = lo.Uniq(samples)
	if len(samples) < 2 {
		return false
	}
	tags := lo.Uniq(lo.Map(samples, func(s string, _ int) string { return ConditionTag(s) }))
	switch {
	case len(tags) == 2:
		return !lo.Contains(tags, PoolTag)
	case len(tags) > 2:
		return true
	}
	return false
}

// Demultiplexer splits single-cell tables by sample.
type Demultiplexer struct {
	logger *zap.Logger
}

// NewDemultiplexer creates a Demultiplexer with a no-op logger.
func NewDemultiplexer() *Demultiplexer {
	return &Demultiplexer{logger: zap.NewNop()}
}

// SetLogger sets the logger for demultiplexing and sample writes.
func (d *Demultiplexer) SetLogger(l *zap.Logger) {
	d.logger = l
}

// Demultiplex assigns every chain row to the sample of its cell and drops
// clonotypes flagged by Contaminated. Rows whose cell has no barcode are
// dropped. Row order is preserved. The excluded clone ids are returned in
// order of first appearance.
func (d *Demultiplexer) Demultiplex(rows []tcr.ChainRecord, barcodes []Barcode) ([]tcr.ChainRecord, []string) {
	sampleOf := make(map[string]string, len(barcodes))
	for _, b := range barcodes {
		sampleOf[b.CellID] = b.SampleID
	}

	joined := lo.FilterMap(rows, func(r tcr.ChainRecord, _ int) (tcr.ChainRecord, bool) {
		s, ok := sampleOf[r.CellID]
		if !ok {
			return r, false
		}
		r.SampleID = s
		return r, true
	})

	var clones []string
	samplesOf := make(map[string][]string)
	for _, r := range joined {
		if r.CloneID == "" {
			continue
		}
		if _, ok := samplesOf[r.CloneID]; !ok {
			clones = append(clones, r.CloneID)
		}
		samplesOf[r.CloneID] = append(samplesOf[r.CloneID], r.SampleID)
	}

	excluded := lo.Filter(clones, func(c string, _ int) bool {
		return Contaminated(samplesOf[c])
	})
	drop := lo.SliceToMap(excluded, func(c string) (string, struct{}) { return c, struct{}{} })

	kept := lo.Reject(joined, func(r tcr.ChainRecord, _ int) bool {
		_, bad := drop[r.CloneID]
		return bad
	})

	d.logger.Info("demultiplexed single-cell table",
		zap.Int("rows", len(rows)),
		zap.Int("assigned", len(joined)),
		zap.Int("kept", len(kept)),
		zap.Int("excluded_clonotypes", len(excluded)))

	return kept, excluded
}

// Samples returns the sample ids of rows in order of first appearance.
func Samples(rows []tcr.ChainRecord) []string {
	return lo.Uniq(lo.Map(rows, func(r tcr.ChainRecord, _ int) string { return r.SampleID }))
}

// WriteSamples writes one <sample>.tsv per sample into dir/samples,
// creating the directory if needed. Sample ids are made safe as file names
// (see output.FileName). It returns the written paths.
func (d *Demultiplexer) WriteSamples(dir string, rows []tcr.ChainRecord) ([]string, error) {
	outDir := filepath.Join(dir, SamplesDir)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("create samples directory: %w", err)
	}

	bySample := lo.GroupBy(rows, func(r tcr.ChainRecord) string { return r.SampleID })

	var paths []string
	used := make(map[string]bool)
	for _, sample := range Samples(rows) {
		name := output.FileName(sample, used)
		used[strings.ToLower(name)] = true
		p := filepath.Join(outDir, name+".tsv")
		if err := writeSample(p, bySample[sample]); err != nil {
			return paths, err
		}
		d.logger.Info("wrote sample", zap.String("sample", sample), zap.String("path", p))
		paths = append(paths, p)
	}
	return paths, nil
}

func writeSample(path string, rows []tcr.ChainRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := output.WriteChains(f, rows); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
