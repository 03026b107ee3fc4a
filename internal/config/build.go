package config

import (
	"fmt"

	"github.com/danielpatrickdp/cutflow/internal/cutflow"
	"github.com/danielpatrickdp/cutflow/internal/cuttree"
	"github.com/danielpatrickdp/cutflow/internal/hist"
)

// #region analysis
// Analysis is one independently evaluable instance of the definition: its own
// tree, histograms and cutflow histograms. Workers each build their own and
// merge afterwards.
type Analysis struct {
	Tree         *cuttree.Tree
	Systematics  []string
	Hists1D      []*hist.H1
	Hists2D      []*hist.H2
	Lists        *cutflow.Lists
	Weighted     cutflow.Histograms
	Raw          cutflow.Histograms
	RecordEvents bool
}

// HistName is the name a histogram booked at cut gets under syst.
func HistName(cut, name, syst string) string {
	if syst == "" {
		return cut + "__" + name
	}
	return cut + "__" + name + "_" + syst
}

// Build validates the definition and constructs a fresh Analysis from it.
func (c *Config) Build(opts ...cuttree.Option) (*Analysis, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	strategy, _ := cuttree.ParseStrategy(c.Strategy)
	tree := cuttree.New(c.Root, append([]cuttree.Option{cuttree.WithStrategy(strategy)}, opts...)...)
	addCuts(tree.Root(), c.Cuts)

	a := &Analysis{
		Tree:         tree,
		Lists:        cutflow.NewLists(),
		RecordEvents: c.RecordEvents,
	}
	for _, s := range c.Systematics {
		a.Systematics = append(a.Systematics, s.Name)
		for _, top := range tree.Root().Children() {
			if len(s.Patterns) == 0 {
				top.AddSystMatching(s.Name, []string{""})
				continue
			}
			top.AddSystMatching(s.Name, s.Patterns)
		}
	}

	contexts := append([]string{""}, a.Systematics...)
	for _, hc := range c.Hists {
		for _, cutName := range hc.Cuts {
			n, err := tree.Cut(cutName)
			if err != nil {
				return nil, fmt.Errorf("book %s: %w", hc.Name, err)
			}
			for _, syst := range contexts {
				h := hist.NewH1(HistName(cutName, hc.Name, syst), hc.Axis.Bins, hc.Axis.Lo, hc.Axis.Hi)
				n.AddHist1D(h, hc.Axis.Field, syst)
				a.Hists1D = append(a.Hists1D, h)
			}
		}
	}
	for _, hc := range c.Hists2D {
		for _, cutName := range hc.Cuts {
			n, err := tree.Cut(cutName)
			if err != nil {
				return nil, fmt.Errorf("book %s: %w", hc.Name, err)
			}
			for _, syst := range contexts {
				h := hist.NewH2(HistName(cutName, hc.Name, syst),
					hc.X.Bins, hc.X.Lo, hc.X.Hi, hc.Y.Bins, hc.Y.Lo, hc.Y.Hi)
				n.AddHist2D(h, hc.X.Field, hc.Y.Field, syst)
				a.Hists2D = append(a.Hists2D, h)
			}
		}
	}

	for _, cf := range c.Cutflows {
		a.Lists.Add(cf.Name, cf.Cuts...)
	}
	a.Weighted, a.Raw = cutflow.CreateHistograms(a.Lists, "")
	return a, nil
}

func addCuts(parent *cuttree.Node, cuts []CutConfig) {
	for _, cc := range cuts {
		addCuts(parent.AddCut(cc.Name), cc.Cuts)
	}
}

// #endregion analysis

// #region merge
// Merge adds o's histograms, cutflows and event logs into a. Both must have
// been built from the same definition.
func (a *Analysis) Merge(o *Analysis) error {
	if len(a.Hists1D) != len(o.Hists1D) || len(a.Hists2D) != len(o.Hists2D) {
		return fmt.Errorf("merge analysis: histogram sets differ")
	}
	for i, h := range a.Hists1D {
		if err := h.Merge(o.Hists1D[i]); err != nil {
			return fmt.Errorf("merge analysis: %w", err)
		}
	}
	for i, h := range a.Hists2D {
		if err := h.Merge(o.Hists2D[i]); err != nil {
			return fmt.Errorf("merge analysis: %w", err)
		}
	}
	if err := a.Weighted.Merge(o.Weighted); err != nil {
		return err
	}
	if err := a.Raw.Merge(o.Raw); err != nil {
		return err
	}

	var missing error
	o.Tree.Walk(func(n *cuttree.Node) bool {
		mine, err := a.Tree.Cut(n.Name())
		if err != nil {
			missing = fmt.Errorf("merge events: %w", err)
			return false
		}
		mine.AppendEvents(n.Events()...)
		return true
	})
	return missing
}

// SortEvents sorts every cut's event log.
func (a *Analysis) SortEvents() {
	a.Tree.Walk(func(n *cuttree.Node) bool {
		n.SortEvents()
		return true
	})
}

// #endregion merge
