// Package singlecell reads 10x Genomics Cell Ranger AIRR contig tables,
// selects one alpha/beta pair per cell, pivots pairs to one row per cell
// and splits multiplexed runs into per-sample tables.
package singlecell

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/inodb/vibe-tcr/internal/table"
	"github.com/inodb/vibe-tcr/internal/tcr"
)

// AIRR column names.
const (
	ColCellID         = "cell_id"
	ColCloneID        = "clone_id"
	ColSequenceID     = "sequence_id"
	ColSequence       = "sequence"
	ColProductive     = "productive"
	ColVCall          = "v_call"
	ColJCall          = "j_call"
	ColJunction       = "junction"
	ColJunctionAA     = "junction_aa"
	ColDuplicateCount = "duplicate_count"
	ColSampleID       = "sample_id"
)

// Columns are the AIRR columns read from a contig table.
var Columns = []string{
	ColCellID, ColCloneID, ColSequenceID, ColSequence, ColProductive,
	ColVCall, ColJCall, ColJunction, ColJunctionAA, ColDuplicateCount,
}

// Read reads a Cell Ranger AIRR table and returns exactly one alpha and one
// beta row for every cell that has both. Cells missing either chain are
// dropped.
func Read(path string) ([]tcr.ChainRecord, error) {
	t, err := table.Open(path, '\t')
	if err != nil {
		return nil, err
	}
	defer t.Close()
	return read(t)
}

// ReadFrom is Read over an open stream.
func ReadFrom(src io.Reader) ([]tcr.ChainRecord, error) {
	t, err := table.NewReader(src, '\t')
	if err != nil {
		return nil, err
	}
	return read(t)
}

func read(t *table.Reader) ([]tcr.ChainRecord, error) {
	if err := t.Require(Columns...); err != nil {
		return nil, err
	}
	hasSample := t.Has(ColSampleID)

	var rows []tcr.ChainRecord
	for {
		row, err := t.Next()
		if err != nil {
			return nil, fmt.Errorf("read contig: %w", err)
		}
		if row == nil {
			break
		}

		if !isProductive(row.Get(ColProductive)) || tcr.IsMissingToken(row.Get(ColCellID)) {
			continue
		}
		vCall := row.Get(ColVCall)
		chain, ok := ChainOf(vCall)
		if !ok {
			continue
		}

		rec := tcr.ChainRecord{
			CellID:         row.Get(ColCellID),
			CloneID:        row.Get(ColCloneID),
			SequenceID:     row.Get(ColSequenceID),
			Sequence:       row.Get(ColSequence),
			Productive:     row.Get(ColProductive),
			VCall:          vCall,
			JCall:          row.Get(ColJCall),
			Junction:       row.Get(ColJunction),
			JunctionAA:     row.Get(ColJunctionAA),
			DuplicateCount: tcr.ParseCount(row.Get(ColDuplicateCount)),
			Chain:          chain,
		}
		if hasSample {
			rec.SampleID = row.Get(ColSampleID)
		}
		rows = append(rows, rec)
	}

	return SelectPairs(rows), nil
}

func isProductive(s string) bool {
	switch s {
	case "T", "TRUE", "True", "true":
		return true
	}
	return false
}

// ChainOf labels a V call as alpha or beta. Calls without a TRA or TRB
// marker (gamma/delta, light chains) are not alpha/beta.
func ChainOf(vCall string) (tcr.Chain, bool) {
	if !strings.Contains(vCall, "TRA") && !strings.Contains(vCall, "TRB") {
		return "", false
	}
	if strings.Contains(vCall, "TRBV") {
		return tcr.Beta, true
	}
	return tcr.Alpha, true
}

// SelectPairs keeps, for each cell with at least one alpha and one beta
// row, the alpha and the beta row with the highest duplicate count (the
// first one on ties). Output is ordered by cell_id, alpha before beta.
func SelectPairs(rows []tcr.ChainRecord) []tcr.ChainRecord {
	byCell := lo.GroupBy(rows, func(r tcr.ChainRecord) string { return r.CellID })

	cells := lo.Keys(byCell)
	sort.Strings(cells)

	out := make([]tcr.ChainRecord, 0, 2*len(cells))
	for _, cell := range cells {
		group := byCell[cell]
		alphas := lo.Filter(group, func(r tcr.ChainRecord, _ int) bool { return r.Chain == tcr.Alpha })
		betas := lo.Filter(group, func(r tcr.ChainRecord, _ int) bool { return r.Chain == tcr.Beta })
		if len(alphas) == 0 || len(betas) == 0 {
			continue
		}
		out = append(out, highestCount(alphas), highestCount(betas))
	}
	return out
}

func highestCount(rows []tcr.ChainRecord) tcr.ChainRecord {
	return lo.MaxBy(rows, func(a, b tcr.ChainRecord) bool {
		return countOf(a) > countOf(b)
	})
}

// countOf ranks rows without a duplicate count below any counted row.
func countOf(r tcr.ChainRecord) int64 {
	if !r.DuplicateCount.Ok {
		return -1
	}
	return r.DuplicateCount.N
}
