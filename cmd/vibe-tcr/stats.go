package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/inodb/vibe-tcr/internal/duckdb"
)

func newStatsCmd() *cobra.Command {
	var top int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize repertoires stored in the database",
		Example: `  vibe-tcr stats --db tcr.duckdb
  vibe-tcr stats --db tcr.duckdb --top 20`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dbPath := expandHome(viper.GetString(keyDB))
			if dbPath == "" {
				return usageError{fmt.Errorf("--db is required")}
			}
			store, err := duckdb.Open(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)

			sources, err := store.Sources()
			if err != nil {
				return err
			}
			fmt.Fprintln(tw, "# Sources")
			fmt.Fprintln(tw, "kind\tpath\trows")
			for _, s := range sources {
				fmt.Fprintf(tw, "%s\t%s\t%d\n", s.Kind, s.Path, s.Rows)
			}

			clonotypes, err := store.TopClonotypes(top)
			if err != nil {
				return err
			}
			fmt.Fprintln(tw, "\n# Top bulk clonotypes")
			fmt.Fprintln(tw, "v_call\tj_call\tjunction_aa\ttemplates\tsources")
			for _, c := range clonotypes {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\n", c.VCall, c.JCall, c.JunctionAA, c.Templates, c.Sources)
			}

			samples, err := store.SampleSummaries()
			if err != nil {
				return err
			}
			fmt.Fprintln(tw, "\n# Single-cell samples")
			fmt.Fprintln(tw, "sample_id\tcells\tclonotypes")
			for _, s := range samples {
				fmt.Fprintf(tw, "%s\t%d\t%d\n", orNA(s.SampleID), s.Cells, s.Clonotypes)
			}

			clones, err := store.TopClones(top)
			if err != nil {
				return err
			}
			fmt.Fprintln(tw, "\n# Top single-cell clonotypes")
			fmt.Fprintln(tw, "sample_id\tclone_id\tcells")
			for _, c := range clones {
				fmt.Fprintf(tw, "%s\t%s\t%d\n", orNA(c.SampleID), c.CloneID, c.Cells)
			}

			return tw.Flush()
		},
	}

	cmd.Flags().IntVar(&top, "top", 10, "Clonotypes to list")
	return cmd
}

func orNA(s string) string {
	if s == "" {
		return "NA"
	}
	return s
}
