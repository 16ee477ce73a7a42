package reference

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/inodb/vibe-tcr/internal/table"
	"github.com/inodb/vibe-tcr/internal/tcr"
)

// Default reference file names inside a reference directory.
const (
	GenesFileName    = "imgt_reference.tsv"
	MappingFileName  = "adaptive_imgt_mapping.csv"
	FamiliesFileName = "adaptive_v_fam_to_imgt_gene.txt"
	JCDR3FileName    = "j_cdr3_nucseq.tsv"
)

// Column names of the reference files.
const (
	colAlleleName   = "imgt_allele_name"
	colFunctional   = "fct"
	colSpecies      = "species"
	colOrganism     = "organism"
	colAdaptive     = "adaptive"
	colIMGT         = "imgt"
	colVFamily      = "adaptive_v_family"
	colVAllele      = "imgt_v_allele"
	colJGeneID      = "id"
	colCDR3Nucseq   = "cdr3_nucseq"
	functionalValue = "F"
)

// Paths locates the reference files. JCDR3 is optional; it is only needed
// for CDR3 nucleotide recovery.
type Paths struct {
	Genes    string
	Mapping  string
	Families string
	JCDR3    string
}

// PathsInDir returns the default file locations under dir. The J CDR3 file
// is left empty when it does not exist.
func PathsInDir(dir string) Paths {
	p := Paths{
		Genes:    filepath.Join(dir, GenesFileName),
		Mapping:  filepath.Join(dir, MappingFileName),
		Families: filepath.Join(dir, FamiliesFileName),
	}
	jc := filepath.Join(dir, JCDR3FileName)
	if _, err := os.Stat(jc); err == nil {
		p.JCDR3 = jc
	}
	return p
}

// Load reads all reference files and builds Tables.
func Load(p Paths) (*Tables, error) {
	genes, err := LoadGenes(p.Genes)
	if err != nil {
		return nil, err
	}
	vendor, err := LoadVendorMappings(p.Mapping)
	if err != nil {
		return nil, err
	}
	families, err := LoadFamilyMappings(p.Families)
	if err != nil {
		return nil, err
	}
	var jfrags []JFragment
	if p.JCDR3 != "" {
		jfrags, err = LoadJFragments(p.JCDR3)
		if err != nil {
			return nil, err
		}
	}
	return New(genes, vendor, families, jfrags), nil
}

// LoadGenes reads the canonical gene table (imgt_allele_name, fct).
func LoadGenes(path string) ([]Gene, error) {
	var genes []Gene
	err := eachRow(path, "canonical gene table", []string{colAlleleName, colFunctional}, func(row *table.Row) {
		allele := row.Get(colAlleleName)
		if tcr.IsMissingToken(allele) {
			return
		}
		genes = append(genes, Gene{
			Organism:   rowOrganism(row),
			Allele:     allele,
			Functional: row.Get(colFunctional) == functionalValue,
		})
	})
	return genes, err
}

// LoadVendorMappings reads the Adaptive to IMGT mapping (species, adaptive, imgt).
func LoadVendorMappings(path string) ([]VendorMapping, error) {
	var out []VendorMapping
	err := eachRow(path, "vendor mapping table", []string{colSpecies, colAdaptive, colIMGT}, func(row *table.Row) {
		vendor := row.Get(colAdaptive)
		if tcr.IsMissingToken(vendor) {
			return
		}
		out = append(out, VendorMapping{
			Organism: rowOrganism(row),
			Vendor:   vendor,
			Call:     tcr.Parse(row.Get(colIMGT)),
		})
	})
	return out, err
}

// LoadFamilyMappings reads the V family fallback table
// (adaptive_v_family, imgt_v_allele).
func LoadFamilyMappings(path string) ([]FamilyMapping, error) {
	var out []FamilyMapping
	err := eachRow(path, "family fallback table", []string{colVFamily, colVAllele}, func(row *table.Row) {
		fam := row.Get(colVFamily)
		if tcr.IsMissingToken(fam) {
			return
		}
		out = append(out, FamilyMapping{
			Organism: rowOrganism(row),
			Family:   fam,
			Allele:   row.Get(colVAllele),
		})
	})
	return out, err
}

// LoadJFragments reads J-gene CDR3 nucleotide fragments (organism, id, cdr3_nucseq).
func LoadJFragments(path string) ([]JFragment, error) {
	var out []JFragment
	err := eachRow(path, "J CDR3 nucleotide table", []string{colJGeneID, colCDR3Nucseq}, func(row *table.Row) {
		id := row.Get(colJGeneID)
		if tcr.IsMissingToken(id) {
			return
		}
		out = append(out, JFragment{
			Organism: rowOrganism(row),
			Gene:     id,
			Nucseq:   strings.ToUpper(row.Get(colCDR3Nucseq)),
		})
	})
	return out, err
}

func eachRow(path, what string, required []string, fn func(*table.Row)) error {
	if path == "" {
		return fmt.Errorf("%s: no path configured", what)
	}
	r, err := table.Open(path, 0)
	if err != nil {
		return fmt.Errorf("load %s: %w", what, err)
	}
	defer r.Close()

	if err := r.Require(required...); err != nil {
		return fmt.Errorf("load %s: %w", what, err)
	}

	for {
		row, err := r.Next()
		if err != nil {
			return fmt.Errorf("load %s: %w", what, err)
		}
		if row == nil {
			return nil
		}
		fn(row)
	}
}

// rowOrganism reads the optional species/organism column. Unknown species
// are kept verbatim so they never match a supported organism.
func rowOrganism(row *table.Row) tcr.Organism {
	raw := row.Get(colSpecies)
	if raw == "" {
		raw = row.Get(colOrganism)
	}
	if raw == "" {
		return ""
	}
	org, err := tcr.ParseOrganism(raw)
	if err != nil {
		return tcr.Organism(strings.ToLower(raw))
	}
	return org
}

// ErrNoReference is returned when no reference location is configured.
var ErrNoReference = errors.New("no reference data configured")
