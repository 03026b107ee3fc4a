package hist

import (
	"errors"
	"fmt"
	"math"

	"go-hep.org/x/hep/hbook"
)

// ErrBinningMismatch is returned when merging histograms with different binning.
var ErrBinningMismatch = errors.New("histogram binning mismatch")

// #region axis
// axis is a uniform binning over [lo, hi). Bin 0 is underflow and bin n+1 overflow.
type axis struct {
	n      int
	lo, hi float64
}

func newAxis(n int, lo, hi float64) axis {
	if n < 1 {
		n = 1
	}
	if !(hi > lo) {
		hi = lo + 1
	}
	return axis{n: n, lo: lo, hi: hi}
}

func (a axis) width() float64 { return (a.hi - a.lo) / float64(a.n) }

// center returns a coordinate inside bin b, outside the range for 0 and n+1.
func (a axis) center(b int) float64 {
	return a.lo + (float64(b)-0.5)*a.width()
}

// coord maps NaN below the range so hbook books it as underflow.
func coord(x float64) float64 {
	if math.IsNaN(x) {
		return math.Inf(-1)
	}
	return x
}

func (a axis) equal(o axis) bool {
	return a.n == o.n && a.lo == o.lo && a.hi == o.hi
}

// #endregion axis

// #region h1
// H1 is a one-dimensional weighted histogram backed by hbook.H1D.
type H1 struct {
	Name string
	x    axis
	h    *hbook.H1D
}

// NewH1 creates a histogram with n uniform bins over [lo, hi).
func NewH1(name string, n int, lo, hi float64) *H1 {
	x := newAxis(n, lo, hi)
	return &H1{Name: name, x: x, h: hbook.NewH1D(x.n, x.lo, x.hi)}
}

// NBins returns the number of in-range bins.
func (h *H1) NBins() int { return h.x.n }

// Range returns the axis limits.
func (h *H1) Range() (lo, hi float64) { return h.x.lo, h.x.hi }

// Fill adds weight w at value x.
func (h *H1) Fill(x, w float64) {
	h.h.Fill(coord(x), w)
}

// FillBin adds weight w directly to bin b. Out-of-range bin numbers go to
// underflow or overflow.
func (h *H1) FillBin(b int, w float64) {
	b = max(0, min(b, h.x.n+1))
	h.h.Fill(h.x.center(b), w)
}

// Bin returns the sum of weights in bin b (0 = underflow, NBins()+1 = overflow).
func (h *H1) Bin(b int) float64 {
	switch {
	case b == 0:
		return h.h.Binning.Outflows[0].SumW()
	case b == h.x.n+1:
		return h.h.Binning.Outflows[1].SumW()
	case b < 0 || b > h.x.n+1:
		return 0
	}
	return h.h.Binning.Bins[b-1].SumW()
}

// Error returns the statistical uncertainty sqrt(sum w^2) of bin b.
func (h *H1) Error(b int) float64 {
	switch {
	case b == 0:
		return math.Sqrt(h.h.Binning.Outflows[0].SumW2())
	case b == h.x.n+1:
		return math.Sqrt(h.h.Binning.Outflows[1].SumW2())
	case b < 0 || b > h.x.n+1:
		return 0
	}
	return math.Sqrt(h.h.Binning.Bins[b-1].SumW2())
}

// Entries returns the number of fills.
func (h *H1) Entries() int64 { return h.h.Entries() }

// Integral returns the sum of weights over the in-range bins.
func (h *H1) Integral() float64 {
	var s float64
	for _, bin := range h.h.Binning.Bins {
		s += bin.SumW()
	}
	return s
}

// Merge adds the contents of o bin by bin.
func (h *H1) Merge(o *H1) error {
	if !h.x.equal(o.x) {
		return fmt.Errorf("merge %s into %s: %w", o.Name, h.Name, ErrBinningMismatch)
	}
	h.h = hbook.AddH1D(h.h, o.h)
	return nil
}

// Clone returns an empty histogram with the same name and binning.
func (h *H1) Clone() *H1 {
	return NewH1(h.Name, h.x.n, h.x.lo, h.x.hi)
}

// Reset zeroes the contents.
func (h *H1) Reset() {
	h.h = hbook.NewH1D(h.x.n, h.x.lo, h.x.hi)
}

// #endregion h1

// #region h2
// H2 is a two-dimensional weighted histogram backed by hbook.H2D. Only
// in-range bins are addressable; hbook keeps the outflow regions aggregated.
type H2 struct {
	Name    string
	x, y    axis
	h       *hbook.H2D
	entries int64
}

// NewH2 creates a histogram with nx by ny uniform bins.
func NewH2(name string, nx int, xlo, xhi float64, ny int, ylo, yhi float64) *H2 {
	x := newAxis(nx, xlo, xhi)
	y := newAxis(ny, ylo, yhi)
	return &H2{
		Name: name,
		x:    x,
		y:    y,
		h:    hbook.NewH2D(x.n, x.lo, x.hi, y.n, y.lo, y.hi),
	}
}

// NBins returns the number of in-range bins along each axis.
func (h *H2) NBins() (nx, ny int) { return h.x.n, h.y.n }

// Fill adds weight w at (x, y).
func (h *H2) Fill(x, y, w float64) {
	h.h.Fill(coord(x), coord(y), w)
	h.entries++
}

// Bin returns the sum of weights in in-range bin (bx, by), numbered from 1.
func (h *H2) Bin(bx, by int) float64 {
	if bx < 1 || bx > h.x.n || by < 1 || by > h.y.n {
		return 0
	}
	return h.h.Binning.Bins[(by-1)*h.x.n+(bx-1)].SumW()
}

// Entries returns the number of fills.
func (h *H2) Entries() int64 { return h.entries }

// Integral returns the sum of weights over in-range bins.
func (h *H2) Integral() float64 {
	var s float64
	for _, bin := range h.h.Binning.Bins {
		s += bin.SumW()
	}
	return s
}

// Merge adds the in-range contents of o bin by bin. hbook has no H2D sum, so
// each non-empty bin of o is refilled at its centre.
func (h *H2) Merge(o *H2) error {
	if !h.x.equal(o.x) || !h.y.equal(o.y) {
		return fmt.Errorf("merge %s into %s: %w", o.Name, h.Name, ErrBinningMismatch)
	}
	for by := 1; by <= o.y.n; by++ {
		for bx := 1; bx <= o.x.n; bx++ {
			if w := o.Bin(bx, by); w != 0 {
				h.h.Fill(h.x.center(bx), h.y.center(by), w)
			}
		}
	}
	h.entries += o.entries
	return nil
}

// Clone returns an empty histogram with the same name and binning.
func (h *H2) Clone() *H2 {
	return NewH2(h.Name, h.x.n, h.x.lo, h.x.hi, h.y.n, h.y.lo, h.y.hi)
}

// #endregion h2
