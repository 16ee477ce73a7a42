package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/inodb/vibe-tcr/internal/duckdb"
	"github.com/inodb/vibe-tcr/internal/output"
	"github.com/inodb/vibe-tcr/internal/singlecell"
	"github.com/inodb/vibe-tcr/internal/tcr"
)

func newSingleCellCmd() *cobra.Command {
	var (
		paired  bool
		outPath string
	)

	cmd := &cobra.Command{
		Use:   "singlecell <airr.tsv>",
		Short: "Select one alpha/beta pair per cell from a 10x AIRR table",
		Long: `Read a Cell Ranger AIRR rearrangement table, keep productive alpha/beta
contigs and select the alpha and beta contig with the highest
duplicate_count for every cell that has both chains.`,
		Example: `  vibe-tcr singlecell airr_rearrangement.tsv
  vibe-tcr singlecell --paired -o cells.tsv airr_rearrangement.tsv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := singlecell.Read(args[0])
			if err != nil {
				return err
			}
			logger.Info("read single-cell table",
				zap.String("path", args[0]),
				zap.Int("cells", len(rows)/2))
			return writeSingleCell(args[0], duckdb.KindSingleCell, rows, paired, outPath)
		},
	}

	cmd.Flags().BoolVar(&paired, "paired", false, "Write one row per cell")
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "Output file (default: stdout)")
	return cmd
}

func newDemultiplexCmd() *cobra.Command {
	var (
		paired       bool
		outPath      string
		writeSamples bool
		xlsxPath     string
	)

	cmd := &cobra.Command{
		Use:   "demultiplex <airr.tsv> <barcodes.csv>",
		Short: "Split a multiplexed single-cell run into samples",
		Long: `Assign cells to samples with a barcode file (columns cell_id and
sample_id) and drop clonotypes shared between conditions. The condition
is the three characters of the sample id after its fourth character;
clonotypes shared with the pool ("poo") are kept.`,
		Example: `  vibe-tcr demultiplex airr.tsv barcodes.csv -o demultiplexed.tsv
  vibe-tcr demultiplex --write-samples --xlsx samples.xlsx airr.tsv barcodes.csv`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			airrPath, barcodePath := args[0], args[1]

			rows, err := singlecell.Read(airrPath)
			if err != nil {
				return err
			}
			barcodes, err := singlecell.ReadBarcodes(barcodePath)
			if err != nil {
				return err
			}

			d := singlecell.NewDemultiplexer()
			d.SetLogger(logger.Named("singlecell"))

			kept, excluded := d.Demultiplex(rows, barcodes)
			for _, c := range excluded {
				logger.Debug("excluded clonotype", zap.String("clone_id", c))
			}

			if writeSamples {
				if _, err := d.WriteSamples(filepath.Dir(barcodePath), kept); err != nil {
					return err
				}
			}
			if xlsxPath != "" {
				if err := writeXLSX(xlsxPath, kept); err != nil {
					return err
				}
			}
			return writeSingleCell(airrPath, duckdb.KindDemultiplex, kept, paired, outPath)
		},
	}

	fl := cmd.Flags()
	fl.BoolVar(&paired, "paired", false, "Write one row per cell")
	fl.StringVarP(&outPath, "output", "o", "", "Output file (default: stdout)")
	fl.BoolVar(&writeSamples, "write-samples", false, "Write one table per sample to a samples/ directory beside the barcode file")
	fl.StringVar(&xlsxPath, "xlsx", "", "Also write a workbook with one sheet per sample")
	return cmd
}

func writeXLSX(path string, rows []tcr.ChainRecord) error {
	w, closeFn, err := createOutput(path)
	if err != nil {
		return err
	}
	if err := output.WriteSamplesXLSX(w, rows); err != nil {
		closeFn()
		return fmt.Errorf("write %s: %w", path, err)
	}
	logger.Info("wrote workbook", zap.String("path", path))
	return closeFn()
}

// writeSingleCell writes chain rows, or paired cells with --paired, and
// stores them when a database is configured.
func writeSingleCell(source, kind string, rows []tcr.ChainRecord, paired bool, outPath string) error {
	var cells []tcr.PairedCell
	if paired {
		var err error
		if cells, err = singlecell.ToPaired(rows); err != nil {
			return err
		}
	}

	w, closeFn, err := createOutput(outPath)
	if err != nil {
		return err
	}
	if paired {
		err = output.WritePaired(w, cells)
	} else {
		err = output.WriteChains(w, rows)
	}
	if err != nil {
		closeFn()
		return fmt.Errorf("write output: %w", err)
	}
	if err := closeFn(); err != nil {
		return err
	}

	dbPath := expandHome(viper.GetString(keyDB))
	if dbPath == "" {
		return nil
	}
	store, err := duckdb.Open(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.WriteChains(source, kind, rows); err != nil {
		return err
	}
	// Without --paired, cells from an earlier paired run are cleared.
	if err := store.WritePaired(source, kind, cells); err != nil {
		return err
	}
	fp, err := duckdb.StatFile(source)
	if err != nil {
		return err
	}
	if err := store.RecordSource(fp, kind, len(rows)); err != nil {
		return err
	}
	logger.Info("stored single-cell results", zap.String("db", dbPath), zap.Int("rows", len(rows)))
	return nil
}
