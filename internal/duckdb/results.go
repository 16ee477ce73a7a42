package duckdb

import (
	"database/sql/driver"
	"fmt"

	"github.com/inodb/vibe-tcr/internal/tcr"
)

// nullable maps a missing value to SQL NULL.
func nullable(v tcr.Value) driver.Value {
	if s, ok := v.Get(); ok {
		return s
	}
	return nil
}

func nullableCount(c tcr.Count) driver.Value {
	if !c.Ok {
		return nil
	}
	return c.N
}

func nullableString(s string) driver.Value {
	if s == "" {
		return nil
	}
	return s
}

// WriteRepertoire replaces the bulk rows stored for source.
func (s *Store) WriteRepertoire(source string, recs []tcr.Rearrangement) error {
	return s.appendRows(TableRearrangements, source, KindBulk, len(recs), func(i int) []driver.Value {
		r := recs[i]
		return []driver.Value{
			nullableCount(r.Templates),
			nullable(r.Rearrangement),
			nullable(r.AminoAcid),
			nullable(r.VCall),
			nullable(r.JCall),
			nullable(r.CDR3Nucleotide),
		}
	})
}

// WriteChains replaces the single-cell chain rows stored for source and
// kind.
func (s *Store) WriteChains(source, kind string, recs []tcr.ChainRecord) error {
	return s.appendRows(TableChains, source, kind, len(recs), func(i int) []driver.Value {
		r := recs[i]
		return []driver.Value{
			r.CellID, nullableString(r.CloneID), r.SequenceID, r.Sequence, r.Productive,
			r.VCall, r.JCall, r.Junction, r.JunctionAA,
			nullableCount(r.DuplicateCount), string(r.Chain), nullableString(r.SampleID),
		}
	})
}

// WritePaired replaces the paired cells stored for source and kind. An
// empty cells clears them.
func (s *Store) WritePaired(source, kind string, cells []tcr.PairedCell) error {
	return s.appendRows(TablePaired, source, kind, len(cells), func(i int) []driver.Value {
		c := cells[i]
		return []driver.Value{
			c.CellID, nullableString(c.CloneID),
			c.SequenceAID, c.SequenceBID, c.SequenceA, c.SequenceB,
			c.Productive,
			c.VACall, c.VBCall, c.JACall, c.JBCall,
			c.JunctionA, c.JunctionB, c.JunctionAminoA, c.JunctionAminoB,
			nullableCount(c.DuplicateCountA), nullableCount(c.DuplicateCountB),
			nullableString(c.SampleID),
		}
	})
}

// Clonotype is an aggregated bulk clonotype.
type Clonotype struct {
	VCall      string
	JCall      string
	JunctionAA string
	Templates  int64
	Sources    int64
}

// TopClonotypes returns the n bulk clonotypes with the most templates
// across all stored sources.
func (s *Store) TopClonotypes(n int) ([]Clonotype, error) {
	rows, err := s.db.Query(`SELECT
		v_call, j_call, junction_aa,
		CAST(SUM(templates) AS BIGINT) AS total,
		COUNT(DISTINCT source)
		FROM rearrangements
		WHERE v_call IS NOT NULL AND j_call IS NOT NULL AND junction_aa IS NOT NULL
		GROUP BY v_call, j_call, junction_aa
		ORDER BY total DESC, junction_aa
		LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query clonotypes: %w", err)
	}
	defer rows.Close()

	var out []Clonotype
	for rows.Next() {
		var c Clonotype
		if err := rows.Scan(&c.VCall, &c.JCall, &c.JunctionAA, &c.Templates, &c.Sources); err != nil {
			return nil, fmt.Errorf("scan clonotype: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clonotypes: %w", err)
	}
	return out, nil
}

// SampleSummary counts cells and clonotypes per sample in the chain table.
type SampleSummary struct {
	SampleID   string
	Cells      int64
	Clonotypes int64
}

// SampleSummaries returns one summary per sample, ordered by sample id.
// Rows without a sample are reported under the empty sample id.
func (s *Store) SampleSummaries() ([]SampleSummary, error) {
	rows, err := s.db.Query(`SELECT
		COALESCE(sample_id, '') AS sample,
		COUNT(DISTINCT cell_id),
		COUNT(DISTINCT clone_id)
		FROM chains
		GROUP BY sample
		ORDER BY sample`)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	var out []SampleSummary
	for rows.Next() {
		var ss SampleSummary
		if err := rows.Scan(&ss.SampleID, &ss.Cells, &ss.Clonotypes); err != nil {
			return nil, fmt.Errorf("scan sample summary: %w", err)
		}
		out = append(out, ss)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate samples: %w", err)
	}
	return out, nil
}

// CloneSize is the number of cells of one clonotype in one sample.
type CloneSize struct {
	SampleID string
	CloneID  string
	Cells    int64
}

// TopClones returns, for every sample, its n largest single-cell
// clonotypes by cell count.
func (s *Store) TopClones(n int) ([]CloneSize, error) {
	rows, err := s.db.Query(`SELECT sample, clone_id, cells FROM (
		SELECT
			COALESCE(sample_id, '') AS sample,
			clone_id,
			COUNT(DISTINCT cell_id) AS cells,
			row_number() OVER (
				PARTITION BY COALESCE(sample_id, '')
				ORDER BY COUNT(DISTINCT cell_id) DESC, clone_id
			) AS rn
		FROM chains
		WHERE clone_id IS NOT NULL
		GROUP BY sample, clone_id
	)
	WHERE rn <= ?
	ORDER BY sample, cells DESC, clone_id`, n)
	if err != nil {
		return nil, fmt.Errorf("query clones: %w", err)
	}
	defer rows.Close()

	var out []CloneSize
	for rows.Next() {
		var c CloneSize
		if err := rows.Scan(&c.SampleID, &c.CloneID, &c.Cells); err != nil {
			return nil, fmt.Errorf("scan clone: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clones: %w", err)
	}
	return out, nil
}

// Clear removes all stored rows.
func (s *Store) Clear() error {
	for _, t := range []string{TableRearrangements, TableChains, TablePaired, TableSources} {
		if _, err := s.db.Exec("DELETE FROM " + t); err != nil {
			return fmt.Errorf("clear %s: %w", t, err)
		}
	}
	return nil
}
