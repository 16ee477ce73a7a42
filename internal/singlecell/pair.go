package singlecell

import (
	"fmt"
	"sort"

	"github.com/samber/lo"

	"github.com/inodb/vibe-tcr/internal/tcr"
)

// ToPaired pivots chain rows to one row per cell, ordered by cell_id.
// Clone, productive and sample fields are taken from the alpha chain. A cell
// with two rows of the same chain is an error; run SelectPairs first.
func ToPaired(rows []tcr.ChainRecord) ([]tcr.PairedCell, error) {
	var order []string
	cells := make(map[string]*tcr.PairedCell)
	seen := make(map[string]map[tcr.Chain]bool)

	for _, r := range rows {
		c, ok := cells[r.CellID]
		if !ok {
			c = &tcr.PairedCell{CellID: r.CellID}
			cells[r.CellID] = c
			seen[r.CellID] = make(map[tcr.Chain]bool, 2)
			order = append(order, r.CellID)
		}
		if seen[r.CellID][r.Chain] {
			return nil, fmt.Errorf("cell %s has more than one %s chain", r.CellID, r.Chain)
		}
		seen[r.CellID][r.Chain] = true

		switch r.Chain {
		case tcr.Alpha:
			c.CloneID = r.CloneID
			c.SequenceAID = r.SequenceID
			c.SequenceA = r.Sequence
			c.Productive = r.Productive
			c.VACall = r.VCall
			c.JACall = r.JCall
			c.JunctionA = r.Junction
			c.JunctionAminoA = r.JunctionAA
			c.DuplicateCountA = r.DuplicateCount
			c.SampleID = r.SampleID
		case tcr.Beta:
			c.SequenceBID = r.SequenceID
			c.SequenceB = r.Sequence
			c.VBCall = r.VCall
			c.JBCall = r.JCall
			c.JunctionB = r.Junction
			c.JunctionAminoB = r.JunctionAA
			c.DuplicateCountB = r.DuplicateCount
		default:
			return nil, fmt.Errorf("cell %s: unknown chain %q", r.CellID, r.Chain)
		}
	}

	sort.Strings(order)
	return lo.Map(order, func(id string, _ int) tcr.PairedCell {
		return *cells[id]
	}), nil
}
