// Package repertoire reads Adaptive ImmunoSEQ bulk exports into cleaned,
// de-duplicated tables of productive rearrangements with IMGT gene calls.
package repertoire

import (
	"fmt"
	"io"
	"sort"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/inodb/vibe-tcr/internal/cdr3"
	"github.com/inodb/vibe-tcr/internal/genes"
	"github.com/inodb/vibe-tcr/internal/reference"
	"github.com/inodb/vibe-tcr/internal/seqcheck"
	"github.com/inodb/vibe-tcr/internal/table"
	"github.com/inodb/vibe-tcr/internal/tcr"
)

// Adaptive export column names.
const (
	ColTemplates     = "templates"
	ColRearrangement = "rearrangement"
	ColAminoAcid     = "amino_acid"
	ColVFamily       = "v_family"
	ColJFamily       = "j_family"
	ColVGene         = "v_gene"
	ColVAllele       = "v_allele"
	ColJGene         = "j_gene"
	ColJAllele       = "j_allele"
	ColFrameType     = "frame_type"

	// LegacyPrefix is prepended to the sequence columns of older exports.
	LegacyPrefix = "cdr3_"

	// InFrame is the frame_type of productive rearrangements.
	InFrame = "In"
)

// Options control how a bulk export is read.
type Options struct {
	Organism tcr.Organism
	// LegacyColumns reads cdr3_rearrangement / cdr3_amino_acid.
	LegacyColumns bool
	// RecoverUnresolved imputes unresolved V genes from the V family.
	RecoverUnresolved bool
	// AlleleLevel rewrites calls to the vendor-reported allele.
	AlleleLevel bool
	// RecoverNucleotide fills CDR3Nucleotide for every output row.
	RecoverNucleotide bool
	// Delimiter of the input; zero sniffs tab or comma.
	Delimiter rune
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{
		Organism:          tcr.Human,
		RecoverUnresolved: true,
	}
}

// Stats counts rows through the pipeline.
type Stats struct {
	Rows               int
	Productive         int
	Unresolved         int
	RecoveredV         int
	NucleotideFailures int
	Output             int
}

// Result is a cleaned repertoire table.
type Result struct {
	Path    string
	Records []tcr.Rearrangement
	Stats   Stats
}

// Reader reads bulk exports using shared reference tables.
type Reader struct {
	ref       *reference.Tables
	opts      Options
	norm      *genes.Normalizer
	recoverer *cdr3.Recoverer
	logger    *zap.Logger
}

// NewReader creates a Reader. ref is not modified.
func NewReader(ref *reference.Tables, opts Options) *Reader {
	if opts.Organism == "" {
		opts.Organism = tcr.Human
	}
	return &Reader{
		ref:       ref,
		opts:      opts,
		norm:      genes.NewNormalizer(ref, opts.Organism),
		recoverer: cdr3.NewRecoverer(ref),
		logger:    zap.NewNop(),
	}
}

// SetLogger sets the logger for recovery counts and failed records.
func (r *Reader) SetLogger(l *zap.Logger) {
	r.logger = l
}

// Read reads and cleans the export at path.
func (r *Reader) Read(path string) (*Result, error) {
	t, err := table.Open(path, r.opts.Delimiter)
	if err != nil {
		return nil, err
	}
	defer t.Close()

	res, err := r.read(t)
	if err != nil {
		return nil, err
	}
	res.Path = path
	return res, nil
}

// ReadFrom reads and cleans an export from src.
func (r *Reader) ReadFrom(src io.Reader) (*Result, error) {
	t, err := table.NewReader(src, r.opts.Delimiter)
	if err != nil {
		return nil, err
	}
	return r.read(t)
}

func (r *Reader) columns() (rearrangement, aminoAcid string) {
	if r.opts.LegacyColumns {
		return LegacyPrefix + ColRearrangement, LegacyPrefix + ColAminoAcid
	}
	return ColRearrangement, ColAminoAcid
}

func (r *Reader) read(t *table.Reader) (*Result, error) {
	colRearr, colAA := r.columns()
	if err := t.Require(
		ColTemplates, colRearr, colAA,
		ColVFamily, ColJFamily, ColVGene, ColVAllele, ColJGene, ColJAllele,
		ColFrameType,
	); err != nil {
		return nil, err
	}

	var stats Stats
	var rows []tcr.Rearrangement
	for {
		row, err := t.Next()
		if err != nil {
			return nil, fmt.Errorf("read rearrangement: %w", err)
		}
		if row == nil {
			break
		}
		stats.Rows++

		if row.Get(ColFrameType) != InFrame {
			continue
		}
		rows = append(rows, tcr.Rearrangement{
			Templates:     tcr.ParseCount(row.Get(ColTemplates)),
			Rearrangement: tcr.Parse(row.Get(colRearr)),
			AminoAcid:     tcr.Parse(row.Get(colAA)),
			VFamily:       row.Get(ColVFamily),
			JFamily:       row.Get(ColJFamily),
			VGene:         row.Get(ColVGene),
			VAllele:       tcr.ParseAllele(row.Get(ColVAllele)),
			JGene:         row.Get(ColJGene),
			JAllele:       tcr.ParseAllele(row.Get(ColJAllele)),
		})
	}
	stats.Productive = len(rows)

	records, pstats := r.Process(rows)
	pstats.Rows = stats.Rows
	pstats.Productive = stats.Productive
	return &Result{Records: records, Stats: pstats}, nil
}

// Process runs the cleaning stages on productive rows. rows is not
// modified; every stage returns a new slice.
func (r *Reader) Process(rows []tcr.Rearrangement) ([]tcr.Rearrangement, Stats) {
	var stats Stats

	unresolved, resolved := lo.FilterReject(rows, func(rec tcr.Rearrangement, _ int) bool {
		return genes.IsUnresolved(rec.VGene)
	})
	stats.Unresolved = len(unresolved)

	out := lo.Map(resolved, func(rec tcr.Rearrangement, _ int) tcr.Rearrangement {
		rec.VCall = r.norm.Map(rec.VGene)
		rec.JCall = r.norm.Map(rec.JGene)
		return rec
	})
	out = lo.Filter(out, func(rec tcr.Rearrangement, _ int) bool {
		return rec.VCall.Ok() && rec.JCall.Ok()
	})

	if r.opts.RecoverUnresolved {
		recovered := lo.Map(unresolved, func(rec tcr.Rearrangement, _ int) tcr.Rearrangement {
			rec.VCall = r.norm.MapFamily(rec.VFamily)
			rec.JCall = r.norm.Map(rec.JGene)
			return rec
		})
		recovered = lo.Filter(recovered, func(rec tcr.Rearrangement, _ int) bool {
			return rec.VCall.Ok()
		})
		stats.RecoveredV = len(recovered)
		r.logger.Info("recovered unresolved V genes",
			zap.Int("recovered", stats.RecoveredV),
			zap.Int("unresolved", stats.Unresolved))
		out = append(out, recovered...)
	}

	if r.opts.AlleleLevel {
		out = lo.Map(out, func(rec tcr.Rearrangement, _ int) tcr.Rearrangement {
			rec.VCall = genes.WithAllele(rec.VCall, rec.VAllele)
			rec.JCall = genes.WithAllele(rec.JCall, rec.JAllele)
			return rec
		})
	}

	org := r.opts.Organism
	out = lo.Filter(out, func(rec tcr.Rearrangement, _ int) bool {
		v, vok := rec.VCall.Get()
		j, jok := rec.JCall.Get()
		return vok && jok && r.ref.IsKnown(org, v) && r.ref.IsKnown(org, j)
	})
	out = lo.Filter(out, func(rec tcr.Rearrangement, _ int) bool {
		v, _ := rec.VCall.Get()
		return r.ref.IsFunctional(org, v)
	})
	out = lo.Filter(out, func(rec tcr.Rearrangement, _ int) bool {
		return seqcheck.IsValidCDR3Value(rec.AminoAcid)
	})
	out = lo.Filter(out, func(rec tcr.Rearrangement, _ int) bool {
		return rec.Templates.Ok && rec.Rearrangement.Ok() && rec.AminoAcid.Ok() &&
			rec.VCall.Ok() && rec.JCall.Ok()
	})

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Templates.N > out[j].Templates.N
	})
	out = lo.UniqBy(out, func(rec tcr.Rearrangement) [6]string {
		return rec.Key()
	})

	if r.opts.RecoverNucleotide {
		out, stats.NucleotideFailures = r.recoverNucleotides(out)
	}

	stats.Output = len(out)
	return out, stats
}

// recoverNucleotides fills CDR3Nucleotide. Records that cannot be recovered
// are kept with a not-available value and logged for inspection.
func (r *Reader) recoverNucleotides(in []tcr.Rearrangement) ([]tcr.Rearrangement, int) {
	failures := 0
	out := lo.Map(in, func(rec tcr.Rearrangement, _ int) tcr.Rearrangement {
		v, _ := rec.VCall.Get()
		j, _ := rec.JCall.Get()
		aa, _ := rec.AminoAcid.Get()
		nt, _ := rec.Rearrangement.Get()

		if s, ok := r.recoverer.Recover(v, aa, nt, j, r.opts.Organism); ok {
			rec.CDR3Nucleotide = tcr.Of(s)
		} else {
			rec.CDR3Nucleotide = tcr.NA
			failures++
			r.logger.Warn("parse cdr3 nucleotide sequence failed",
				zap.String("v_call", v),
				zap.String("junction_aa", aa),
				zap.String("rearrangement", nt),
				zap.String("j_call", j))
		}
		return rec
	})
	return out, failures
}
