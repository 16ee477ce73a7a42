package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/samber/lo"
	"github.com/xuri/excelize/v2"

	"github.com/inodb/vibe-tcr/internal/tcr"
)

const (
	defaultSheet      = "Sheet1"
	maxSheetNameChars = 31
)

// WriteSamplesXLSX writes chain rows to a workbook with one sheet per
// sample, in order of first appearance.
func WriteSamplesXLSX(w io.Writer, recs []tcr.ChainRecord) error {
	xlsx := excelize.NewFile()
	defer xlsx.Close()

	samples := lo.Uniq(lo.Map(recs, func(r tcr.ChainRecord, _ int) string { return r.SampleID }))
	bySample := lo.GroupBy(recs, func(r tcr.ChainRecord) string { return r.SampleID })
	header := ChainHeader(true)

	used := make(map[string]bool)
	for _, sample := range samples {
		sheet := SheetName(sample, used)
		used[strings.ToLower(sheet)] = true

		if _, err := xlsx.NewSheet(sheet); err != nil {
			return fmt.Errorf("add sheet %q: %w", sheet, err)
		}
		if err := xlsx.SetSheetRow(sheet, "A1", &header); err != nil {
			return err
		}
		for i, r := range bySample[sample] {
			row := lo.Map(ChainValues(r, true), func(s string, _ int) any { return s })
			if r.DuplicateCount.Ok {
				row[9] = r.DuplicateCount.N
			}
			cell, err := excelize.CoordinatesToCellName(1, i+2)
			if err != nil {
				return err
			}
			if err := xlsx.SetSheetRow(sheet, cell, &row); err != nil {
				return err
			}
		}
	}

	if len(samples) > 0 && !used[strings.ToLower(defaultSheet)] {
		if err := xlsx.DeleteSheet(defaultSheet); err != nil {
			return err
		}
		xlsx.SetActiveSheet(0)
	}

	_, err := xlsx.WriteTo(w)
	return err
}

// SheetName turns a sample id into a valid, unused worksheet name.
func SheetName(sample string, used map[string]bool) string {
	return uniqueName(strings.Trim(safeName(sample), "'"), used, maxSheetNameChars)
}

// FileName turns a sample id into a file name that cannot leave its
// directory and is not yet in used. The returned name has no extension.
func FileName(sample string, used map[string]bool) string {
	name := safeName(sample)
	if strings.Trim(name, ".") == "" {
		name = ""
	}
	return uniqueName(name, used, 0)
}

// safeName replaces path separators and characters that are invalid in
// worksheet names.
func safeName(s string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(`:\/?*[]`, r) || r < ' ' {
			return '_'
		}
		return r
	}, s)
}

// uniqueName truncates name to limit runes (no limit when zero) and adds a
// numeric suffix until it is not in used, compared case-insensitively.
func uniqueName(name string, used map[string]bool, limit int) string {
	if name == "" {
		name = "sample"
	}
	if limit > 0 {
		name = truncate(name, limit)
	}

	base := name
	for i := 2; used[strings.ToLower(name)]; i++ {
		suffix := fmt.Sprintf("_%d", i)
		if limit > 0 {
			name = truncate(base, limit-len(suffix)) + suffix
		} else {
			name = base + suffix
		}
	}
	return name
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
