package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/cutflow/internal/eventlog"
	"github.com/danielpatrickdp/cutflow/internal/format"
)

// #region runs-cmd
var dbPath string

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List stored runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, err := eventlog.NewStore(dbPath)
		if err != nil {
			return err
		}
		defer store.Close()

		runs, err := store.Runs()
		if err != nil {
			return err
		}
		tb := format.NewTable(format.ParseMode(output))
		tb.Header("Run", "Label", "Root", "Created", "Events")
		for _, r := range runs {
			tb.Row(r.ID, r.Label, r.Root, r.CreatedAt.Format(time.RFC3339), r.Events)
		}
		tb.AlignRight(5)
		fmt.Fprintln(cmd.OutOrStdout(), tb.String())
		return nil
	},
}

// #endregion runs-cmd

// #region events-cmd
var eventsFlags struct {
	run string
	cut string
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Print the stored event keys of one cut, or per-cut counts when --cut is omitted",
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, err := eventlog.NewStore(dbPath)
		if err != nil {
			return err
		}
		defer store.Close()

		out := cmd.OutOrStdout()
		if eventsFlags.cut == "" {
			cuts, err := store.Cuts(eventsFlags.run)
			if err != nil {
				return err
			}
			tb := format.NewTable(format.ParseMode(output))
			tb.Header("Cut", "Events")
			for _, c := range cuts {
				tb.Row(c.Cut, c.Events)
			}
			tb.AlignRight(2)
			fmt.Fprintln(out, tb.String())
			return nil
		}

		keys, err := store.Events(eventsFlags.run, eventsFlags.cut)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Event list for cut = %s\n", eventsFlags.cut)
		for _, k := range keys {
			fmt.Fprintln(out, k)
		}
		return nil
	},
}

// #endregion events-cmd

// #region diff-cmd
var diffFlags struct {
	a, b string
	cut  string
}

var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Compare the event keys one cut selected in two stored runs",
	Long: `diff lists the run:lumi:evt keys selected by a cut in only one of two runs.
It exits non-zero when the selections differ, so it can gate a cross-check
between two implementations of the same selection.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, err := eventlog.NewStore(dbPath)
		if err != nil {
			return err
		}
		defer store.Close()

		d, err := store.Diff(diffFlags.a, diffFlags.b, diffFlags.cut)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "cut %s: %d common, %d only in %s, %d only in %s\n",
			diffFlags.cut, d.Common, len(d.OnlyA), diffFlags.a, len(d.OnlyB), diffFlags.b)
		for _, k := range d.OnlyA {
			fmt.Fprintf(out, "< %s\n", k)
		}
		for _, k := range d.OnlyB {
			fmt.Fprintf(out, "> %s\n", k)
		}
		if !d.Equal() {
			return fmt.Errorf("event selections differ for cut %s", diffFlags.cut)
		}
		return nil
	},
}

// #endregion diff-cmd

func init() {
	for _, c := range []*cobra.Command{runsCmd, eventsCmd, diffCmd} {
		c.Flags().StringVar(&dbPath, "db", envOr("CUTFLOW_DB", "events.db"), "event-key database")
	}
	eventsCmd.Flags().StringVar(&eventsFlags.run, "run", "", "run ID")
	eventsCmd.Flags().StringVar(&eventsFlags.cut, "cut", "", "cut name")
	_ = eventsCmd.MarkFlagRequired("run")

	diffCmd.Flags().StringVar(&diffFlags.a, "a", "", "first run ID")
	diffCmd.Flags().StringVar(&diffFlags.b, "b", "", "second run ID")
	diffCmd.Flags().StringVar(&diffFlags.cut, "cut", "", "cut name")
	for _, name := range []string{"a", "b", "cut"} {
		_ = diffCmd.MarkFlagRequired(name)
	}
}
