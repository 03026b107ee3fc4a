package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/cutflow/internal/config"
	"github.com/danielpatrickdp/cutflow/internal/format"
)

// #region tree-cmd
var treeConfig string

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Print the cut tree and systematics an analysis file builds",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(treeConfig)
		if err != nil {
			return err
		}
		a, err := cfg.Build()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if err := a.Tree.WriteCuts(out, format.ParseMode(output)); err != nil {
			return err
		}
		fmt.Fprintf(out, "%d 1-D and %d 2-D histograms, %d cutflow lists\n",
			len(a.Hists1D), len(a.Hists2D), a.Lists.Len())
		return nil
	},
}

func init() {
	treeCmd.Flags().StringVarP(&treeConfig, "config", "c", envOr("CUTFLOW_CONFIG", "analysis.yaml"), "analysis definition")
}

// #endregion tree-cmd
