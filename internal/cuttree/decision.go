package cuttree

import "github.com/danielpatrickdp/cutflow/internal/record"

// #region decision
// Decision supplies a cut's local pass flag and weight. The set of variants is
// closed: *Funcs, *Fields and Record.
type Decision interface {
	decide(rec record.Store, cut, syst string) (pass bool, weight float64, st status)
}

type status int

const (
	decided status = iota
	unset          // no source configured; pass through permissively
	skipped        // record lacks the cut; leave this subtree untouched
)

// #endregion decision

// #region funcs
// Funcs is the callback variant. Pass nil means the source is unset. Weight
// nil means unit weight.
type Funcs struct {
	Pass   func() bool
	Weight func() float64
}

func (f *Funcs) decide(record.Store, string, string) (bool, float64, status) {
	if f == nil || f.Pass == nil {
		return false, 0, unset
	}
	w := 1.0
	if f.Weight != nil {
		w = f.Weight()
	}
	return f.Pass(), w, decided
}

// #endregion funcs

// #region fields
// Fields is the externally-set variant. The caller overwrites it once per
// record before evaluation; until the first Set it reads as unset.
type Fields struct {
	pass   bool
	weight float64
	set    bool
}

// Set stores this record's pass flag and weight.
func (f *Fields) Set(pass bool, weight float64) {
	f.pass = pass
	f.weight = weight
	f.set = true
}

// Values returns the stored pass flag and weight and whether Set was ever called.
func (f *Fields) Values() (pass bool, weight float64, ok bool) {
	return f.pass, f.weight, f.set
}

func (f *Fields) decide(record.Store, string, string) (bool, float64, status) {
	if f == nil || !f.set {
		return false, 0, unset
	}
	return f.pass, f.weight, decided
}

// #endregion fields

// #region record
// Record is the record-store variant. It reads the bool field "<cut><syst>" and
// the float field "<cut><syst>_weight"; a missing weight field means unit
// weight. A missing bool field skips the cut and its subtree for this record.
type Record struct{}

func (Record) decide(rec record.Store, cut, syst string) (bool, float64, status) {
	if rec == nil {
		return false, 0, skipped
	}
	name := cut + syst
	pass, ok := rec.Bool(name)
	if !ok {
		return false, 0, skipped
	}
	w, ok := record.Number(rec, name+"_weight")
	if !ok {
		w = 1
	}
	return pass, w, decided
}

// #endregion record

// #region kind
func kindOf(d Decision) Strategy {
	switch d.(type) {
	case *Fields:
		return StrategyFields
	case Record:
		return StrategyRecord
	default:
		return StrategyFuncs
	}
}

// #endregion kind
