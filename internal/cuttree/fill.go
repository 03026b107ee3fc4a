package cuttree

import (
	"fmt"

	"github.com/danielpatrickdp/cutflow/internal/hist"
	"github.com/danielpatrickdp/cutflow/internal/record"
)

// #region bind
// AddHist1D binds h to field on this cut under syst ("" for nominal).
func (n *Node) AddHist1D(h *hist.H1, field, syst string) {
	if n.hists1d == nil {
		n.hists1d = make(map[string][]Binding1D)
	}
	key := systKey(syst)
	n.hists1d[key] = append(n.hists1d[key], Binding1D{Hist: h, Field: field})
}

// AddHist2D binds h to fieldX and fieldY on this cut under syst ("" for nominal).
func (n *Node) AddHist2D(h *hist.H2, fieldX, fieldY, syst string) {
	if n.hists2d == nil {
		n.hists2d = make(map[string][]Binding2D)
	}
	key := systKey(syst)
	n.hists2d[key] = append(n.hists2d[key], Binding2D{Hist: h, FieldX: fieldX, FieldY: fieldY})
}

// Hists1D returns the 1-D bindings registered under syst ("" for nominal).
func (n *Node) Hists1D(syst string) []Binding1D { return n.hists1d[systKey(syst)] }

// Hists2D returns the 2-D bindings registered under syst ("" for nominal).
func (n *Node) Hists2D(syst string) []Binding2D { return n.hists2d[systKey(syst)] }

// #endregion bind

// #region fill
// pendingFill is one resolved histogram fill.
type pendingFill struct {
	h1   *hist.H1
	h2   *hist.H2
	x, y float64
	w    float64
}

// FillHistograms fills the histograms bound under syst on every cut that
// passed the most recent evaluation, each with the cut's weight times
// extraWeight. A failed cut stops the walk for its subtree.
func (t *Tree) FillHistograms(rec record.Store, syst string, extraWeight float64) error {
	return t.root.FillHistograms(rec, syst, extraWeight)
}

// FillHistograms fills this cut's bindings and those of its passing
// descendants. Every bound field is resolved before the first fill, so a
// missing field leaves all histograms untouched.
func (n *Node) FillHistograms(rec record.Store, syst string, extraWeight float64) error {
	var fills []pendingFill
	if err := n.resolveFills(rec, systKey(syst), extraWeight, &fills); err != nil {
		return err
	}
	for _, f := range fills {
		if f.h1 != nil {
			f.h1.Fill(f.x, f.w)
			continue
		}
		f.h2.Fill(f.x, f.y, f.w)
	}
	return nil
}

func (n *Node) resolveFills(rec record.Store, key string, extraWeight float64, out *[]pendingFill) error {
	if !n.pass {
		return nil
	}
	w := n.weight * extraWeight
	for _, b := range n.hists1d[key] {
		x, ok := record.Number(rec, b.Field)
		if !ok {
			return fmt.Errorf("fill %s at cut %s: field %s: %w", b.Hist.Name, n.name, b.Field, ErrFieldMissing)
		}
		*out = append(*out, pendingFill{h1: b.Hist, x: x, w: w})
	}
	for _, b := range n.hists2d[key] {
		x, ok := record.Number(rec, b.FieldX)
		if !ok {
			return fmt.Errorf("fill %s at cut %s: field %s: %w", b.Hist.Name, n.name, b.FieldX, ErrFieldMissing)
		}
		y, ok := record.Number(rec, b.FieldY)
		if !ok {
			return fmt.Errorf("fill %s at cut %s: field %s: %w", b.Hist.Name, n.name, b.FieldY, ErrFieldMissing)
		}
		*out = append(*out, pendingFill{h2: b.Hist, x: x, y: y, w: w})
	}
	for _, c := range n.children {
		if err := c.resolveFills(rec, key, extraWeight, out); err != nil {
			return err
		}
	}
	return nil
}

// #endregion fill
