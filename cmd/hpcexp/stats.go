package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"hpcexp/internal/diag"
	"hpcexp/internal/stats"
)

func (c *cli) statsCmd() *cobra.Command {
	var (
		column, against string
		toError         bool
	)
	cmd := &cobra.Command{
		Use:   "stats <combined.csv>",
		Short: "Describe one numeric column of a combined result file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			cfg, logger, err := c.setup(cmd, "")
			if err != nil {
				return err
			}
			defer func() {
				_ = logger.Sync()
				c.writeMetrics(cfg)
			}()
			t := logger.StartWith("stats", "describe", args[0], map[string]string{"column": column})

			x, y, err := readStatsColumns(args[0], column, against)
			if err == nil && toError {
				x = stats.AccuracyToError(x)
			}
			var sum stats.Summary
			if err == nil {
				sum, err = stats.Describe(x)
			}
			var r, pv float64
			if err == nil && against != "" {
				r, pv, err = stats.Pearson(x, y)
			}
			if err != nil {
				code := diag.Classify(err)
				logger.ErrorWith("stats", string(code), "describe failed", &start, args[0], nil)
				diag.IncOp("stats", "error", "error")
				diag.IncError("stats", code)
				fmt.Fprintf(c.stderr, "ERROR: %v\n", err)
				return fail(exitRuntime, err)
			}
			name := column
			if toError {
				name = column + " (error)"
			}
			if err := sum.Fprint(c.stdout, name); err != nil {
				return fail(exitRuntime, err)
			}
			if against != "" {
				fmt.Fprintf(c.stdout, "pearson   %.6g (p %.6g, vs %s)\n", r, pv, against)
			}
			t.Finish("describe", int64(sum.N))
			diag.IncOp("stats", "finish", "success")
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&column, "column", "", "Header name of the numeric column")
	f.StringVar(&against, "against", "", "Second column for Pearson correlation")
	f.BoolVar(&toError, "error", false, "Treat the column as accuracy and convert to error (1-acc) first")
	_ = cmd.MarkFlagRequired("column")
	return cmd
}

func readStatsColumns(path, column, against string) ([]float64, []float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	if against == "" {
		x, err := stats.ReadColumn(f, column)
		return x, nil, err
	}
	cols, err := stats.ReadColumns(f, column, against)
	if err != nil {
		return nil, nil, err
	}
	return cols[0], cols[1], nil
}
