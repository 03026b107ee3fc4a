package cuttree

import (
	"errors"
	"fmt"
	"strings"

	"github.com/danielpatrickdp/cutflow/internal/hist"
)

// #region errors
var (
	// ErrCutNotFound is returned when a requested cut name is not in the tree.
	ErrCutNotFound = errors.New("cut not found")

	// ErrFieldMissing is returned when a field bound to a histogram is absent
	// from the record being filled.
	ErrFieldMissing = errors.New("record field missing")

	// ErrSystNotRegistered is returned when a systematic context is addressed on
	// a cut that never registered it.
	ErrSystNotRegistered = errors.New("systematic not registered")
)

// #endregion errors

// #region strategy
// Strategy selects which decision-source variant new cuts are built with.
type Strategy int

const (
	// StrategyFuncs sources a cut's decision from a callback pair.
	StrategyFuncs Strategy = iota
	// StrategyFields sources it from fields the caller overwrites per record.
	StrategyFields
	// StrategyRecord reads it from the record under the cut's name.
	StrategyRecord
)

func (s Strategy) String() string {
	switch s {
	case StrategyFuncs:
		return "funcs"
	case StrategyFields:
		return "fields"
	case StrategyRecord:
		return "record"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// ParseStrategy maps a config string to a Strategy. Empty means StrategyRecord.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "funcs", "lambda", "callback":
		return StrategyFuncs, nil
	case "fields", "variable":
		return StrategyFields, nil
	case "record", "":
		return StrategyRecord, nil
	}
	return 0, fmt.Errorf("unknown decision strategy %q", s)
}

// SelfResets reports whether cuts built with this strategy drop out of the
// walk for records that lack them. The other strategies keep the previous
// record's pass/weight unless Clear is called before evaluation.
func (s Strategy) SelfResets() bool { return s == StrategyRecord }

func (s Strategy) newDecision() Decision {
	switch s {
	case StrategyFields:
		return &Fields{}
	case StrategyRecord:
		return Record{}
	default:
		return &Funcs{}
	}
}

// #endregion strategy

// #region bindings
// NominalKey is the histogram-binding key used when no systematic context is given.
const NominalKey = "Nominal"

// Binding1D attaches a 1-D histogram to one record field.
type Binding1D struct {
	Hist  *hist.H1
	Field string
}

// Binding2D attaches a 2-D histogram to two record fields.
type Binding2D struct {
	Hist           *hist.H2
	FieldX, FieldY string
}

func systKey(syst string) string {
	if syst == "" {
		return NominalKey
	}
	return syst
}

// #endregion bindings

// #region event-key
// EventKey identifies one record: run, luminosity segment and event number.
type EventKey struct {
	Run  int64
	Lumi int64
	Evt  uint64
}

// String formats the key as run:lumi:evt.
func (k EventKey) String() string {
	return fmt.Sprintf("%d:%d:%d", k.Run, k.Lumi, k.Evt)
}

// Compare orders keys lexicographically by run, lumi, then evt.
func (k EventKey) Compare(o EventKey) int {
	switch {
	case k.Run != o.Run:
		if k.Run < o.Run {
			return -1
		}
		return 1
	case k.Lumi != o.Lumi:
		if k.Lumi < o.Lumi {
			return -1
		}
		return 1
	case k.Evt != o.Evt:
		if k.Evt < o.Evt {
			return -1
		}
		return 1
	}
	return 0
}

// #endregion event-key

// #region observer
// Observer receives evaluation diagnostics. Implementations must be cheap;
// they are called from the per-record walk.
type Observer interface {
	// Evaluated is called once per tree evaluation.
	Evaluated(syst string)
	// Passed is called for every non-root cut that passes.
	Passed(cut, syst string)
	// Fallback is called when a cut has no decision source set and is passed
	// through permissively.
	Fallback(cut, syst string)
}

type nopObserver struct{}

func (nopObserver) Evaluated(string) {}
func (nopObserver) Passed(string, string) {}
func (nopObserver) Fallback(string, string) {}

// #endregion observer
