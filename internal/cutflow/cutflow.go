// Package cutflow implements the linear cutflow helper: ordered lists of
// per-record weight fields reduced to a running product and booked into
// weighted and raw cutflow histograms.
package cutflow

import (
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/danielpatrickdp/cutflow/internal/format"
	"github.com/danielpatrickdp/cutflow/internal/hist"
	"github.com/danielpatrickdp/cutflow/internal/record"
)

// ErrFieldMissing is returned when a cut named in a list is absent from the record.
var ErrFieldMissing = errors.New("cutflow field missing")

// #region running-product
// Cutflow returns the cumulative weight after each named cut. Each field is a
// per-record weight: zero for a failed cut, a multiplicative factor otherwise.
// Boolean fields count as 1 or 0.
func Cutflow(names []string, rec record.Store) ([]float64, error) {
	out := make([]float64, 0, len(names))
	total := 1.0
	for _, name := range names {
		w, ok := cutWeight(rec, name)
		if !ok {
			return nil, fmt.Errorf("cutflow at %s: %w", name, ErrFieldMissing)
		}
		total *= w
		out = append(out, total)
	}
	return out, nil
}

// PassCuts reports whether the record survives every cut in names, along with
// the final cumulative weight.
func PassCuts(names []string, rec record.Store) (bool, float64, error) {
	flow, err := Cutflow(names, rec)
	if err != nil {
		return false, 0, err
	}
	if len(flow) == 0 {
		return true, 1, nil
	}
	last := flow[len(flow)-1]
	return last != 0, last, nil
}

func cutWeight(rec record.Store, name string) (float64, bool) {
	if w, ok := record.Number(rec, name); ok {
		return w, true
	}
	if b, ok := rec.Bool(name); ok {
		if b {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// #endregion running-product

// #region fill
// Fill books the cumulative weight of cut i into bin i+1 wherever it is positive.
func Fill(names []string, rec record.Store, h *hist.H1) error {
	flow, err := Cutflow(names, rec)
	if err != nil {
		return err
	}
	for i, w := range flow {
		if w > 0 {
			h.FillBin(i+1, w)
		}
	}
	return nil
}

// FillRaw books a unit count into bin i+1 wherever the cumulative weight is positive.
func FillRaw(names []string, rec record.Store, h *hist.H1) error {
	flow, err := Cutflow(names, rec)
	if err != nil {
		return err
	}
	for i, w := range flow {
		if w > 0 {
			h.FillBin(i+1, 1)
		}
	}
	return nil
}

// #endregion fill

// #region lists
// Lists holds named cut lists in declaration order.
type Lists struct {
	order []string
	cuts  map[string][]string
}

// NewLists returns an empty set of lists.
func NewLists() *Lists {
	return &Lists{cuts: make(map[string][]string)}
}

// Add appends cuts to the named list, creating it if needed.
func (l *Lists) Add(list string, cuts ...string) {
	if _, ok := l.cuts[list]; !ok {
		l.order = append(l.order, list)
	}
	l.cuts[list] = append(l.cuts[list], cuts...)
}

// Names returns the list names in declaration order.
func (l *Lists) Names() []string { return slices.Clone(l.order) }

// Cuts returns the cuts of the named list.
func (l *Lists) Cuts(list string) []string { return slices.Clone(l.cuts[list]) }

// Len returns the number of lists.
func (l *Lists) Len() int { return len(l.order) }

// #endregion lists

// #region histograms
// Histograms maps a list name to its cutflow histogram.
type Histograms map[string]*hist.H1

// CreateHistograms books one weighted and one raw histogram per list, with one
// bin per cut over [0, len). syst is appended to the histogram names.
func CreateHistograms(lists *Lists, syst string) (weighted, raw Histograms) {
	weighted = make(Histograms, lists.Len())
	raw = make(Histograms, lists.Len())
	for _, name := range lists.order {
		n := len(lists.cuts[name])
		weighted[name] = hist.NewH1(name+"_cutflow"+syst, n, 0, float64(n))
		raw[name] = hist.NewH1(name+"_rawcutflow"+syst, n, 0, float64(n))
	}
	return weighted, raw
}

// FillAll fills every list's weighted and raw histograms for one record.
func FillAll(lists *Lists, rec record.Store, weighted, raw Histograms) error {
	for _, name := range lists.order {
		cuts := lists.cuts[name]
		if h, ok := weighted[name]; ok {
			if err := Fill(cuts, rec, h); err != nil {
				return fmt.Errorf("fill cutflow %s: %w", name, err)
			}
		}
		if h, ok := raw[name]; ok {
			if err := FillRaw(cuts, rec, h); err != nil {
				return fmt.Errorf("fill raw cutflow %s: %w", name, err)
			}
		}
	}
	return nil
}

// Merge adds every histogram of o into the matching histogram of h. Lists
// present only in o are copied in.
func (h Histograms) Merge(o Histograms) error {
	for name, oh := range o {
		mine, ok := h[name]
		if !ok {
			mine = oh.Clone()
			h[name] = mine
		}
		if err := mine.Merge(oh); err != nil {
			return fmt.Errorf("merge cutflow %s: %w", name, err)
		}
	}
	return nil
}

// #endregion histograms

// #region table
// WriteTable renders the yields of every list, one row per cut.
func WriteTable(w io.Writer, mode format.Mode, lists *Lists, weighted, raw Histograms) error {
	tb := format.NewTable(mode)
	tb.Header("List", "Cut", "Weighted", "Error", "Raw")
	for _, name := range lists.order {
		wh, rh := weighted[name], raw[name]
		for i, cut := range lists.cuts[name] {
			var y, e, r float64
			if wh != nil {
				y, e = wh.Bin(i+1), wh.Error(i+1)
			}
			if rh != nil {
				r = rh.Bin(i + 1)
			}
			tb.Row(name, cut, fmt.Sprintf("%.5f", y), fmt.Sprintf("%.5f", e), fmt.Sprintf("%.0f", r))
		}
	}
	tb.AlignRight(3, 4, 5)
	_, err := fmt.Fprintln(w, tb.String())
	return err
}

// #endregion table
