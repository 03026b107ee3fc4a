package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/cutflow/internal/config"
	"github.com/danielpatrickdp/cutflow/internal/cutflow"
	"github.com/danielpatrickdp/cutflow/internal/cuttree"
	"github.com/danielpatrickdp/cutflow/internal/eventlog"
	"github.com/danielpatrickdp/cutflow/internal/format"
	"github.com/danielpatrickdp/cutflow/internal/record"
	"github.com/danielpatrickdp/cutflow/internal/runner"
)

// #region run-cmd
var runFlags struct {
	config      string
	input       string
	workers     int
	db          string
	label       string
	alwaysClear bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Evaluate a JSONL record file against an analysis",
	Example: `  cutflow run --config analysis.yaml --input records.jsonl --workers 4 --db events.db
  cat records.jsonl | cutflow run --config analysis.yaml --input -`,
	RunE: runAnalysis,
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runFlags.config, "config", "c", envOr("CUTFLOW_CONFIG", "analysis.yaml"), "analysis definition")
	f.StringVarP(&runFlags.input, "input", "i", "-", "JSONL records, - for stdin")
	f.IntVarP(&runFlags.workers, "workers", "w", 0, "independent worker trees (0 = from config)")
	f.StringVar(&runFlags.db, "db", "", "store event keys in this SQLite file (default from config)")
	f.StringVar(&runFlags.label, "label", "", "label of the stored run (default: input path)")
	f.BoolVar(&runFlags.alwaysClear, "always-clear", false, "reset every cut before each record")
}

func runAnalysis(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(runFlags.config)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	workers := cfg.Workers
	if runFlags.workers > 0 {
		workers = runFlags.workers
	}
	dbPath := cfg.DB
	if runFlags.db != "" {
		dbPath = runFlags.db
	}

	var in io.Reader = os.Stdin
	if runFlags.input != "-" {
		fh, err := os.Open(runFlags.input)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer fh.Close()
		in = fh
	}

	start := time.Now()
	build := func() (*config.Analysis, error) {
		return cfg.Build(cuttree.WithLogger(logger))
	}
	res, err := runner.Run(cmd.Context(), runner.FromReader(record.NewReader(in)), build, runner.Options{
		Workers:     workers,
		AlwaysClear: runFlags.alwaysClear,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	logger.Info("run complete",
		zap.Int64("records", res.Records),
		zap.Int("workers", workers),
		zap.Duration("elapsed", time.Since(start)))

	mode := format.ParseMode(output)
	out := cmd.OutOrStdout()
	if err := writeYields(out, mode, res); err != nil {
		return err
	}
	if res.Analysis.Lists.Len() > 0 {
		if err := cutflow.WriteTable(out, mode, res.Analysis.Lists, res.Analysis.Weighted, res.Analysis.Raw); err != nil {
			return err
		}
	}

	if dbPath == "" {
		return nil
	}
	store, err := eventlog.NewStore(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()
	label := runFlags.label
	if label == "" {
		label = runFlags.input
	}
	info, err := store.SaveTree(label, res.Analysis.Tree)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "stored %d event keys as run %s\n", info.Events, info.ID)
	return nil
}

func writeYields(w io.Writer, mode format.Mode, res *runner.Result) error {
	tb := format.NewTable(mode)
	tb.Header("Cut", "Yield", "Events", "Systs")
	res.Analysis.Tree.Walk(func(n *cuttree.Node) bool {
		tb.Row(n.Name(), fmt.Sprintf("%.5f", res.Yields[n.Name()]), len(n.Events()), len(n.Systematics()))
		return true
	})
	tb.Footer("records", res.Records, "", "")
	tb.AlignRight(2, 3, 4)
	_, err := fmt.Fprintln(w, tb.String())
	return err
}

// #endregion run-cmd
