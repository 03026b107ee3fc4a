package cuttree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/danielpatrickdp/cutflow/internal/record"
)

type dec struct {
	pass bool
	w    float64
}

type countingObserver struct {
	evaluated int
	passed    map[string]int
	fallbacks map[string]int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{passed: map[string]int{}, fallbacks: map[string]int{}}
}

func (o *countingObserver) Evaluated(string) { o.evaluated++ }
func (o *countingObserver) Passed(cut, _ string) { o.passed[cut]++ }
func (o *countingObserver) Fallback(cut, syst string) { o.fallbacks[cut+"|"+syst]++ }

// funcsTree builds Root -> A -> B plus Root -> C with fixed callback decisions.
func funcsTree(t *testing.T, decisions map[string]dec, opts ...Option) *Tree {
	t.Helper()
	tr := New("Root", append([]Option{WithStrategy(StrategyFuncs)}, opts...)...)
	a := tr.Root().AddCut("A")
	a.AddCut("B")
	tr.Root().AddCut("C")
	for name, d := range decisions {
		d := d
		n, err := tr.Cut(name)
		require.NoError(t, err)
		n.SetFuncs(func() bool { return d.pass }, func() float64 { return d.w })
	}
	return tr
}

// #region test-root-identity
func TestRootIsIdentityForEveryStrategy(t *testing.T) {
	for _, s := range []Strategy{StrategyFuncs, StrategyFields, StrategyRecord} {
		tr := New("Root", WithStrategy(s))
		tr.Root().AddCut("A")
		tr.Clear()

		// Record fields named after the root must not influence it
		tr.Evaluate(record.Map{"Root": false, "Root_weight": 7.0}, "", false)

		assert.True(t, tr.Root().Pass(), "strategy %s", s)
		assert.Equal(t, 1.0, tr.Root().Weight(), "strategy %s", s)
	}
}

// #endregion test-root-identity

// #region test-aggregation
func TestAggregationIsProductAndConjunction(t *testing.T) {
	cases := []map[string]dec{
		{"A": {true, 0.5}, "B": {true, 3}, "C": {true, 2}},
		{"A": {false, 0.5}, "B": {true, 3}, "C": {true, 2}},
		{"A": {true, 0.25}, "B": {false, 4}, "C": {false, 0}},
	}
	for i, c := range cases {
		tr := funcsTree(t, c)
		tr.Clear()
		tr.Evaluate(nil, "", false)

		for _, path := range [][]string{{"A"}, {"A", "B"}, {"C"}} {
			wantPass, wantW := true, 1.0
			for _, name := range path {
				wantPass = wantPass && c[name].pass
				wantW *= c[name].w
			}
			n, _ := tr.Find(path[len(path)-1])
			assert.Equalf(t, wantPass, n.Pass(), "case %d cut %s pass", i, n.Name())
			assert.InDeltaf(t, wantW, n.Weight(), 1e-12, "case %d cut %s weight", i, n.Name())
		}
	}
}

func TestEvaluateTwiceIsIdempotent(t *testing.T) {
	tr := funcsTree(t, map[string]dec{"A": {true, 0.5}, "B": {true, 0.5}, "C": {false, 2}})

	tr.Clear()
	tr.Evaluate(nil, "", false)
	first := snapshot(tr)
	tr.Evaluate(nil, "", false)
	assert.Equal(t, first, snapshot(tr))
}

func TestNodeEvaluateUsesParentState(t *testing.T) {
	tr := funcsTree(t, map[string]dec{"A": {true, 0.5}, "B": {true, 3}, "C": {true, 1}})
	tr.Clear()
	tr.Evaluate(nil, "", false)

	a, _ := tr.Find("A")
	a.SetFuncs(func() bool { return true }, func() float64 { return 2 })
	a.Evaluate(nil, "", false)

	b, _ := tr.Find("B")
	assert.Equal(t, 2.0, a.Weight())
	assert.Equal(t, 6.0, b.Weight())
}

// #endregion test-aggregation

// #region test-fallback
func TestUnsetFuncsPassesPermissively(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	obs := newCountingObserver()
	tr := New("Root", WithStrategy(StrategyFuncs), WithLogger(zap.New(core)), WithObserver(obs))
	a := tr.Root().AddCut("A")
	a.SetFuncs(func() bool { return true }, func() float64 { return 0.5 })
	a.AddCut("Unset")

	tr.Clear()
	tr.Evaluate(nil, "", false)

	u, _ := tr.Find("Unset")
	assert.True(t, u.Pass())
	assert.Equal(t, 0.5, u.Weight(), "fallback weight should equal the parent's aggregated weight")
	assert.Equal(t, 1, obs.fallbacks["Unset|"])
	assert.Equal(t, 1, obs.evaluated)

	entries := logs.FilterField(zap.String("cut", "Unset")).All()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Message, "cowardly passing")
}

func TestUnsetFallbackFollowsFailedParent(t *testing.T) {
	tr := New("Root", WithStrategy(StrategyFuncs))
	a := tr.Root().AddCut("A")
	a.SetFuncs(func() bool { return false }, func() float64 { return 3 })
	a.AddCut("Unset")

	tr.Clear()
	tr.Evaluate(nil, "", false)

	u, _ := tr.Find("Unset")
	assert.False(t, u.Pass())
	assert.Equal(t, 3.0, u.Weight())
}

func TestNilWeightFuncIsUnitWeight(t *testing.T) {
	tr := New("Root", WithStrategy(StrategyFuncs))
	a := tr.Root().AddCut("A")
	a.SetFuncs(func() bool { return true }, nil)
	tr.Evaluate(nil, "", false)
	assert.Equal(t, 1.0, a.Weight())
}

// #endregion test-fallback

// #region test-fields
func TestFieldsVariant(t *testing.T) {
	obs := newCountingObserver()
	tr := New("Root", WithStrategy(StrategyFields), WithObserver(obs))
	a := tr.Root().AddCut("A")
	b := a.AddCut("B")

	fa, _ := a.Fields()
	fb, _ := b.Fields()

	// Before any Set: permissive fallback
	tr.Clear()
	tr.Evaluate(nil, "", false)
	assert.True(t, b.Pass())
	assert.Equal(t, 2, len(obs.fallbacks))

	fa.Set(true, 0.5)
	fb.Set(false, 4)
	tr.Clear()
	tr.Evaluate(nil, "", false)
	assert.True(t, a.Pass())
	assert.False(t, b.Pass())
	assert.Equal(t, 2.0, b.Weight())

	pass, w, ok := fb.Values()
	assert.True(t, ok)
	assert.False(t, pass)
	assert.Equal(t, 4.0, w)
}

// #endregion test-fields

// #region test-record
func TestRecordVariantReadsNamedFields(t *testing.T) {
	tr := New("Root")
	a := tr.Root().AddCut("A")
	b := a.AddCut("B")

	tr.Evaluate(record.Map{"A": true, "A_weight": 0.5, "B": true}, "", false)
	assert.True(t, b.Pass())
	assert.Equal(t, 0.5, b.Weight(), "missing B_weight should mean unit weight")

	tr.Evaluate(record.Map{"A": true, "A_weight": float32(2), "B": false, "B_weight": 3.0}, "", false)
	assert.False(t, b.Pass())
	assert.Equal(t, 6.0, b.Weight())
}

func TestRecordVariantSkipsSubtreeOnMissingField(t *testing.T) {
	tr := New("Root")
	a := tr.Root().AddCut("A")
	b := a.AddCut("B")
	c := tr.Root().AddCut("C")

	tr.Evaluate(record.Map{"A": true, "A_weight": 0.5, "B": true, "B_weight": 2.0, "C": true}, "", false)
	require.True(t, b.Pass())
	require.Equal(t, 1.0, b.Weight())

	// A is absent: A and B keep the previous record's results, C is still evaluated
	tr.Evaluate(record.Map{"B": false, "C": false}, "", false)
	assert.True(t, a.Pass())
	assert.Equal(t, 0.5, a.Weight())
	assert.True(t, b.Pass(), "B must not be re-evaluated below a skipped cut")
	assert.Equal(t, 1.0, b.Weight())
	assert.False(t, c.Pass())

	// Clear makes the skip visible
	tr.Clear()
	tr.Evaluate(record.Map{"C": true}, "", false)
	assert.False(t, a.Pass())
	assert.False(t, b.Pass())
	assert.Equal(t, 0.0, b.Weight())
}

func TestRecordVariantSystematicSuffix(t *testing.T) {
	tr := New("Root")
	jet := tr.Root().AddCut("Jet")
	lep := tr.Root().AddCut("Lep")
	jet.AddSyst("JES_up")

	rec := record.Map{
		"Jet": true, "Jet_weight": 1.0,
		"JetJES_up": true, "JetJES_up_weight": 1.2,
		"Lep": true, "Lep_weight": 0.9,
	}
	tr.Evaluate(rec, "", false)
	nomJet, nomLep := jet.Weight(), lep.Weight()

	tr.Evaluate(rec, "JES_up", false)
	assert.Equal(t, 1.0, nomJet)
	assert.Equal(t, 1.2, jet.Weight())
	assert.Equal(t, nomLep, lep.Weight(), "cut without the override must read its own fields")

	// Override registered but its field absent: skip, keep the nominal result
	delete(rec, "JetJES_up")
	tr.Evaluate(rec, "", false)
	tr.Evaluate(rec, "JES_up", false)
	assert.Equal(t, 1.0, jet.Weight())
}

// #endregion test-record

// #region test-syst-dispatch
func TestSystematicDispatchFuncs(t *testing.T) {
	tr := New("Root", WithStrategy(StrategyFuncs))
	presel := tr.Root().AddCut("Presel")
	presel.SetFuncs(func() bool { return true }, func() float64 { return 0.5 })
	jet := presel.AddCut("Jet")
	jet.SetFuncs(func() bool { return true }, func() float64 { return 1.0 })
	lep := presel.AddCut("Lep")
	lep.SetFuncs(func() bool { return true }, func() float64 { return 0.8 })
	jetChild := jet.AddCut("JetChild")
	jetChild.SetFuncs(func() bool { return true }, func() float64 { return 1.0 })

	tr.Root().AddSystMatching("JES_up", []string{"Jet"})
	require.NoError(t, jet.SetSystFuncs("JES_up", func() bool { return true }, func() float64 { return 1.1 }))
	require.NoError(t, jetChild.SetSystFuncs("JES_up", func() bool { return true }, func() float64 { return 1.0 }))

	tr.Clear()
	tr.Evaluate(nil, "", false)
	nomJet, nomLep, nomChild := jet.Weight(), lep.Weight(), jetChild.Weight()

	tr.Clear()
	tr.Evaluate(nil, "JES_up", false)

	assert.NotEqual(t, nomJet, jet.Weight())
	assert.InDelta(t, 0.55, jet.Weight(), 1e-12, "override aggregates through the structural parent")
	assert.Equal(t, nomLep, lep.Weight())
	assert.InDelta(t, 0.55, jetChild.Weight(), 1e-12)
	assert.InDelta(t, 0.5, nomChild, 1e-12)

	// An unknown context falls back to every cut's own source
	tr.Clear()
	tr.Evaluate(nil, "PU_up", false)
	assert.Equal(t, nomJet, jet.Weight())
}

func TestUnsetSystOverrideFallsBackPermissively(t *testing.T) {
	obs := newCountingObserver()
	tr := New("Root", WithStrategy(StrategyFuncs), WithObserver(obs))
	a := tr.Root().AddCut("A")
	a.SetFuncs(func() bool { return false }, func() float64 { return 0 })
	a.AddSyst("JER_down")

	tr.Clear()
	tr.Evaluate(nil, "JER_down", false)
	assert.True(t, a.Pass())
	assert.Equal(t, 1.0, a.Weight())
	assert.Equal(t, 1, obs.fallbacks["A|JER_down"])
}

// #endregion test-syst-dispatch

// #region test-event-keys
func TestEvaluateRecordsEventKeysOnPass(t *testing.T) {
	tr := New("Root")
	a := tr.Root().AddCut("A")
	b := a.AddCut("B")

	rec := record.Map{"A": true, "B": false, "run": int64(1), "lumi": int64(2), "evt": uint64(3)}
	tr.Evaluate(rec, "", true)
	tr.Evaluate(rec, "", false)

	assert.Equal(t, []EventKey{{1, 2, 3}}, tr.Root().Events())
	assert.Equal(t, []EventKey{{1, 2, 3}}, a.Events())
	assert.Empty(t, b.Events())

	// Missing identifier fields: nothing recorded
	tr.Evaluate(record.Map{"A": true, "B": true, "run": int64(1)}, "", true)
	assert.Len(t, a.Events(), 1)
}

// #endregion test-event-keys

// #region test-clear
func TestClearResetsSubtree(t *testing.T) {
	tr := funcsTree(t, map[string]dec{"A": {true, 2}, "B": {true, 2}, "C": {true, 2}})
	tr.Evaluate(nil, "", false)
	tr.Clear()
	tr.Walk(func(n *Node) bool {
		assert.False(t, n.Pass(), n.Name())
		assert.Equal(t, 0.0, n.Weight(), n.Name())
		return true
	})
}

// #endregion test-clear

func snapshot(tr *Tree) map[string][2]float64 {
	out := map[string][2]float64{}
	tr.Walk(func(n *Node) bool {
		p := 0.0
		if n.Pass() {
			p = 1
		}
		out[n.Name()] = [2]float64{p, n.Weight()}
		return true
	})
	return out
}
