// Package main provides the vibe-tcr command-line tool.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/inodb/vibe-tcr/internal/reference"
	"github.com/inodb/vibe-tcr/internal/tcr"
)

// Exit codes
const (
	ExitSuccess = 0
	ExitError   = 1
	ExitUsage   = 2
)

// Version information (set at build time)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Configuration keys.
const (
	keyOrganism     = "organism"
	keyReferenceDir = "reference.dir"
	keyGenes        = "reference.genes"
	keyMapping      = "reference.mapping"
	keyFamilies     = "reference.families"
	keyJCDR3        = "reference.j_cdr3"
	keyDB           = "db"
	keyWorkers      = "workers"
	keyVerbose      = "verbose"
)

const configName = ".vibe-tcr"

var (
	cfgFile string
	logger  = zap.NewNop()
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	root := newRootCmd()
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, reference.ErrNoReference) {
			fmt.Fprintf(os.Stderr, "Hint: set a reference directory with: vibe-tcr config set %s <dir>\n", keyReferenceDir)
		}
		var ue usageError
		if errors.As(err, &ue) {
			return ExitUsage
		}
		return ExitError
	}
	return ExitSuccess
}

// usageError marks invalid arguments or flags.
type usageError struct{ error }

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "vibe-tcr",
		Short: "T-cell receptor repertoire ingestion",
		Long: `vibe-tcr normalizes TCR repertoire exports to IMGT gene names.

It reads Adaptive bulk exports and 10x Genomics single-cell AIRR tables,
validates CDR3 sequences, recovers CDR3 nucleotide sequences, pairs
alpha/beta chains per cell and splits multiplexed runs per sample.`,
		Example: `  vibe-tcr config set reference.dir ~/tcr-reference
  vibe-tcr bulk sample1.tsv sample2.tsv -o cleaned/
  vibe-tcr singlecell --paired filtered_contig_airr.tsv
  vibe-tcr demultiplex --write-samples airr.tsv barcodes.csv`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initConfig(); err != nil {
				return err
			}
			return initLogger(viper.GetBool(keyVerbose))
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Sync()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (default: ~/.vibe-tcr.yaml)")
	pf.BoolP("verbose", "v", false, "Log debug messages")
	pf.String("reference-dir", "", "Directory holding the reference tables")
	pf.String("organism", string(tcr.Human), "Organism: human or mouse")
	_ = viper.BindPFlag(keyVerbose, pf.Lookup("verbose"))
	_ = viper.BindPFlag(keyReferenceDir, pf.Lookup("reference-dir"))
	pf.String("db", "", "DuckDB database storing results")
	pf.Int("workers", 0, "Files read concurrently (0 = number of CPUs)")
	_ = viper.BindPFlag(keyOrganism, pf.Lookup("organism"))
	_ = viper.BindPFlag(keyDB, pf.Lookup("db"))
	_ = viper.BindPFlag(keyWorkers, pf.Lookup("workers"))

	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError{err}
	})

	root.AddCommand(newBulkCmd())
	root.AddCommand(newSingleCellCmd())
	root.AddCommand(newDemultiplexCmd())
	root.AddCommand(newStatsCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newVersionCmd())

	return root
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.SetConfigName(configName)
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("VIBE_TCR")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault(keyWorkers, 0)

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading config: %w", err)
	}
	return nil
}

func initLogger(verbose bool) error {
	cfg := zap.NewDevelopmentConfig()
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	logger = l
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "vibe-tcr version %s (%s) built %s\n", version, commit, date)
		},
	}
}

// organism returns the configured organism.
func organism() (tcr.Organism, error) {
	o, err := tcr.ParseOrganism(viper.GetString(keyOrganism))
	if err != nil {
		return "", usageError{err}
	}
	return o, nil
}

// referencePaths resolves reference file locations from the reference
// directory and per-file overrides.
func referencePaths() (reference.Paths, error) {
	var p reference.Paths
	if dir := expandHome(viper.GetString(keyReferenceDir)); dir != "" {
		p = reference.PathsInDir(dir)
	}
	override := func(dst *string, key string) {
		if v := expandHome(viper.GetString(key)); v != "" {
			*dst = v
		}
	}
	override(&p.Genes, keyGenes)
	override(&p.Mapping, keyMapping)
	override(&p.Families, keyFamilies)
	override(&p.JCDR3, keyJCDR3)

	if p.Genes == "" || p.Mapping == "" || p.Families == "" {
		return p, reference.ErrNoReference
	}
	return p, nil
}

func loadReference() (*reference.Tables, error) {
	p, err := referencePaths()
	if err != nil {
		return nil, err
	}
	ref, err := reference.Load(p)
	if err != nil {
		return nil, err
	}
	genes, vendor, families, jfrags := ref.Sizes()
	logger.Debug("loaded reference tables",
		zap.String("genes_path", p.Genes),
		zap.Int("genes", genes),
		zap.Int("vendor_mappings", vendor),
		zap.Int("family_mappings", families),
		zap.Int("j_fragments", jfrags))
	return ref, nil
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

// createOutput opens path for writing, or returns stdout for "" and "-".
func createOutput(path string) (*os.File, func() error, error) {
	if path == "" || path == "-" {
		return os.Stdout, func() error { return nil }, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, nil, fmt.Errorf("create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create output file: %w", err)
	}
	return f, f.Close, nil
}
