package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/inodb/vibe-tcr/internal/duckdb"
	"github.com/inodb/vibe-tcr/internal/output"
	"github.com/inodb/vibe-tcr/internal/repertoire"
)

type bulkFlags struct {
	legacy             bool
	noRecoverUnresolve bool
	alleleLevel        bool
	recoverNT          bool
	delimiter          string
	output             string
	skipLoaded         bool
}

func newBulkCmd() *cobra.Command {
	var f bulkFlags

	cmd := &cobra.Command{
		Use:   "bulk <export.tsv>...",
		Short: "Normalize Adaptive bulk repertoire exports",
		Long: `Read Adaptive immunoSEQ exports, keep productive in-frame rearrangements
with a valid CDR3 and functional IMGT V/J genes, and write one cleaned
table per input.`,
		Example: `  vibe-tcr bulk sample.tsv
  vibe-tcr bulk --recover-nt -o cleaned/ *.tsv
  vibe-tcr bulk --legacy --organism mouse old_export.tsv -o old.tsv`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBulk(args, f)
		},
	}

	fl := cmd.Flags()
	fl.BoolVar(&f.legacy, "legacy", false, "Read legacy cdr3_rearrangement / cdr3_amino_acid columns")
	fl.BoolVar(&f.noRecoverUnresolve, "no-recover-unresolved", false, "Drop rows with an unresolved V gene instead of imputing from the V family")
	fl.BoolVar(&f.alleleLevel, "allele-level", false, "Report the vendor allele instead of *01")
	fl.BoolVar(&f.recoverNT, "recover-nt", false, "Recover the CDR3 nucleotide sequence (needs reference.j_cdr3)")
	fl.StringVar(&f.delimiter, "delimiter", "", `Input delimiter: "tab", "comma" or a single character (default: detect)`)
	fl.StringVarP(&f.output, "output", "o", "", "Output file, or directory for several inputs (default: stdout)")
	fl.BoolVar(&f.skipLoaded, "skip-loaded", false, "Skip inputs already stored unchanged in --db")

	return cmd
}

func parseDelimiter(s string) (rune, error) {
	switch strings.ToLower(s) {
	case "":
		return 0, nil
	case "tab", `\t`:
		return '\t', nil
	case "comma":
		return ',', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, usageError{fmt.Errorf("invalid delimiter %q", s)}
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}

func runBulk(paths []string, f bulkFlags) error {
	org, err := organism()
	if err != nil {
		return err
	}
	delim, err := parseDelimiter(f.delimiter)
	if err != nil {
		return err
	}

	opts := repertoire.Options{
		Organism:          org,
		LegacyColumns:     f.legacy,
		RecoverUnresolved: !f.noRecoverUnresolve,
		AlleleLevel:       f.alleleLevel,
		RecoverNucleotide: f.recoverNT,
		Delimiter:         delim,
	}

	ref, err := loadReference()
	if err != nil {
		return err
	}
	if f.recoverNT {
		if _, _, _, jfrags := ref.Sizes(); jfrags == 0 {
			return usageError{fmt.Errorf("--recover-nt needs the J CDR3 table (%s)", keyJCDR3)}
		}
	}

	outputs, err := bulkOutputs(paths, f.output)
	if err != nil {
		return err
	}
	if f.skipLoaded {
		if paths, outputs, err = skipLoaded(paths, outputs); err != nil {
			return err
		}
		if len(paths) == 0 {
			logger.Info("all inputs already loaded")
			return nil
		}
	}

	r := repertoire.NewReader(ref, opts)
	r.SetLogger(logger.Named("repertoire"))

	results, err := r.ReadAll(paths, viper.GetInt(keyWorkers))
	if err != nil {
		return err
	}

	for i, res := range results {
		s := res.Stats
		logger.Info("read bulk export",
			zap.String("path", res.Path),
			zap.Int("rows", s.Rows),
			zap.Int("productive", s.Productive),
			zap.Int("unresolved", s.Unresolved),
			zap.Int("recovered_v", s.RecoveredV),
			zap.Int("output", s.Output))

		if err := writeBulk(outputs[i], res, f.recoverNT); err != nil {
			return err
		}
	}

	return storeBulk(results)
}

// bulkOutputs maps each input to its output path. Several inputs need an
// output directory; their tables keep the input base name.
func bulkOutputs(paths []string, out string) ([]string, error) {
	isDir := strings.HasSuffix(out, "/") || strings.HasSuffix(out, string(os.PathSeparator))
	if info, err := os.Stat(out); err == nil && info.IsDir() {
		isDir = true
	}

	if len(paths) == 1 && !isDir {
		return []string{out}, nil
	}
	if !isDir {
		if out != "" {
			return nil, usageError{fmt.Errorf("-o must be a directory when reading %d files", len(paths))}
		}
		return nil, usageError{fmt.Errorf("-o <dir> is required when reading %d files", len(paths))}
	}

	outs := make([]string, len(paths))
	seen := make(map[string]string, len(paths))
	for i, p := range paths {
		name := strings.TrimSuffix(filepath.Base(p), ".gz")
		name = strings.TrimSuffix(name, filepath.Ext(name)) + ".tsv"
		if prev, dup := seen[name]; dup {
			return nil, usageError{fmt.Errorf("inputs %s and %s map to the same output %s", prev, p, name)}
		}
		seen[name] = p
		outs[i] = filepath.Join(out, name)
	}
	return outs, nil
}

func writeBulk(path string, res *repertoire.Result, withNucleotide bool) error {
	w, closeFn, err := createOutput(path)
	if err != nil {
		return err
	}
	if err := output.WriteRepertoire(w, res.Records, withNucleotide); err != nil {
		closeFn()
		return fmt.Errorf("write %s: %w", res.Path, err)
	}
	return closeFn()
}

func storeBulk(results []*repertoire.Result) error {
	dbPath := expandHome(viper.GetString(keyDB))
	if dbPath == "" {
		return nil
	}
	store, err := duckdb.Open(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	for _, res := range results {
		fp, err := duckdb.StatFile(res.Path)
		if err != nil {
			return err
		}
		if err := store.WriteRepertoire(res.Path, res.Records); err != nil {
			return err
		}
		if err := store.RecordSource(fp, duckdb.KindBulk, len(res.Records)); err != nil {
			return err
		}
	}
	logger.Info("stored bulk results", zap.String("db", dbPath), zap.Int("files", len(results)))
	return nil
}

// skipLoaded drops inputs that the database already holds unchanged.
func skipLoaded(paths, outputs []string) ([]string, []string, error) {
	dbPath := expandHome(viper.GetString(keyDB))
	if dbPath == "" {
		return nil, nil, usageError{fmt.Errorf("--skip-loaded needs --db")}
	}
	store, err := duckdb.Open(dbPath)
	if err != nil {
		return nil, nil, err
	}
	defer store.Close()

	var keepPaths, keepOutputs []string
	for i, p := range paths {
		fp, err := duckdb.StatFile(p)
		if err != nil {
			return nil, nil, err
		}
		loaded, err := store.Loaded(fp, duckdb.KindBulk)
		if err != nil {
			return nil, nil, err
		}
		if loaded {
			logger.Info("skipping loaded input", zap.String("path", p))
			continue
		}
		keepPaths = append(keepPaths, p)
		keepOutputs = append(keepOutputs, outputs[i])
	}
	return keepPaths, keepOutputs, nil
}
