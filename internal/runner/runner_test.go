package runner

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/danielpatrickdp/cutflow/internal/config"
	"github.com/danielpatrickdp/cutflow/internal/cuttree"
	"github.com/danielpatrickdp/cutflow/internal/record"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const analysisYAML = `
root: Root
cuts:
  - name: Presel
    cuts:
      - name: SRJet
      - name: CRJet
systematics:
  - name: JES_up
    patterns: [Jet]
hists:
  - name: met
    field: met
    bins: 10
    lo: 0
    hi: 100
    cuts: [Presel, SRJet]
cutflows:
  - name: SR
    cuts: [Presel, SRJet]
`

func builder(t *testing.T, yaml string) Builder {
	t.Helper()
	cfg, err := config.Parse([]byte(yaml))
	require.NoError(t, err)
	return func() (*config.Analysis, error) { return cfg.Build() }
}

// syntheticRecords alternates SR and CR events with varying weights.
func syntheticRecords(n int) []record.Store {
	recs := make([]record.Store, 0, n)
	for i := 0; i < n; i++ {
		sr := i%2 == 0
		recs = append(recs, record.Map{
			"run": int64(1 + i%3), "lumi": int64(i / 3), "evt": uint64(1000 - i),
			"Presel": i%5 != 0, "Presel_weight": 1.0,
			"SRJet": sr, "SRJet_weight": 0.5,
			"CRJet": !sr,
			"SRJetJES_up": i%4 == 0, "SRJetJES_up_weight": 0.25,
			"CRJetJES_up": !sr,
			"met": float64(i % 100),
		})
	}
	return recs
}

func histContents(a *config.Analysis) map[string][]float64 {
	out := map[string][]float64{}
	for _, h := range a.Hists1D {
		bins := make([]float64, h.NBins()+2)
		for b := range bins {
			bins[b] = h.Bin(b)
		}
		out[h.Name] = bins
	}
	return out
}

// #region test-sequential
func TestRunSequential(t *testing.T) {
	recs := syntheticRecords(20)
	res, err := Run(context.Background(), Slice(recs...), builder(t, analysisYAML), Options{Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)

	assert.EqualValues(t, 20, res.Records)
	// Presel fails for i = 0, 5, 10, 15.
	assert.Equal(t, 16.0, res.Yields["Presel"])
	assert.Equal(t, 20.0, res.Yields["Root"])
	// SR: even i not divisible by 5 -> 2,4,6,8,12,14,16,18 at weight 0.5.
	assert.InDelta(t, 4.0, res.Yields["SRJet"], 1e-12)

	sr, _ := res.Analysis.Tree.Find("SRJet")
	assert.Len(t, sr.Events(), 8)
	events := sr.Events()
	for i := 1; i < len(events); i++ {
		assert.LessOrEqual(t, events[i-1].Compare(events[i]), 0, "events must be sorted")
	}

	h := sr.Hists1D("JES_up")[0].Hist
	// JES_up SR: i%4 == 0 and i%5 != 0 -> 4, 8, 12, 16 at weight 0.25.
	assert.InDelta(t, 1.0, h.Integral(), 1e-12)

	sflow := res.Analysis.Weighted["SR"]
	assert.InDelta(t, 16.0, sflow.Bin(1), 1e-12)
	assert.InDelta(t, 8.0, res.Analysis.Raw["SR"].Bin(2), 1e-12)
}

func TestRunCounter(t *testing.T) {
	var n countRecords
	_, err := Run(context.Background(), Slice(syntheticRecords(7)...), builder(t, analysisYAML), Options{Counter: &n})
	require.NoError(t, err)
	assert.EqualValues(t, 7, n.Load())
}

type countRecords struct{ atomic.Int64 }

func (c *countRecords) RecordProcessed() { c.Add(1) }

func TestRunPermissiveFuncs(t *testing.T) {
	cfg, err := config.Parse([]byte(analysisYAML))
	require.NoError(t, err)
	build := func() (*config.Analysis, error) {
		return cfg.Build(cuttree.WithStrategy(cuttree.StrategyFuncs))
	}
	res, err := Run(context.Background(), Slice(syntheticRecords(3)...), build, Options{})
	require.NoError(t, err)
	// No callbacks are set, so every cut passes through with unit weight.
	assert.Equal(t, 3.0, res.Yields["SRJet"])
	assert.Equal(t, 3.0, res.Yields["CRJet"])
}

// #endregion test-sequential

// #region test-parallel
func TestRunParallelMatchesSequential(t *testing.T) {
	recs := syntheticRecords(101)
	build := builder(t, analysisYAML)

	seq, err := Run(context.Background(), Slice(recs...), build, Options{})
	require.NoError(t, err)
	par, err := Run(context.Background(), Slice(recs...), build, Options{Workers: 4})
	require.NoError(t, err)

	assert.Equal(t, seq.Records, par.Records)
	for cut, y := range seq.Yields {
		assert.InDelta(t, y, par.Yields[cut], 1e-9, "yield of %s", cut)
	}
	want, got := histContents(seq.Analysis), histContents(par.Analysis)
	if diff := cmp.Diff(want, got, cmpFloat()); diff != "" {
		t.Errorf("histograms differ (-seq +par):\n%s", diff)
	}

	seq.Analysis.Tree.Walk(func(n *cuttree.Node) bool {
		p, _ := par.Analysis.Tree.Find(n.Name())
		if diff := cmp.Diff(n.Events(), p.Events()); diff != "" {
			t.Errorf("events of %s differ (-seq +par):\n%s", n.Name(), diff)
		}
		return true
	})
}

func cmpFloat() cmp.Option {
	return cmp.Comparer(func(a, b float64) bool {
		d := a - b
		return d < 1e-9 && d > -1e-9
	})
}

// #endregion test-parallel

// #region test-errors
func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, Slice(syntheticRecords(5)...), builder(t, analysisYAML), Options{})
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)

	_, err = Run(ctx, Slice(syntheticRecords(50)...), builder(t, analysisYAML), Options{Workers: 3})
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

type failingSource struct{ after int }

func (s *failingSource) Next() (record.Store, error) {
	if s.after == 0 {
		return nil, errors.New("disk on fire")
	}
	s.after--
	return syntheticRecords(1)[0], nil
}

func TestRunSourceError(t *testing.T) {
	for _, workers := range []int{1, 3} {
		_, err := Run(context.Background(), &failingSource{after: 2}, builder(t, analysisYAML), Options{Workers: workers})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disk on fire")
		assert.Contains(t, err.Error(), "read record 3")
	}
}

func TestRunMissingHistogramField(t *testing.T) {
	rec := syntheticRecords(1)[0].(record.Map)
	delete(rec, "met")
	rec["Presel"] = true
	for _, workers := range []int{1, 2} {
		_, err := Run(context.Background(), Slice(rec), builder(t, analysisYAML), Options{Workers: workers})
		assert.True(t, errors.Is(err, cuttree.ErrFieldMissing), "got %v", err)
	}
}

func TestRunBuildError(t *testing.T) {
	_, err := Run(context.Background(), Slice(), func() (*config.Analysis, error) {
		return nil, errors.New("bad definition")
	}, Options{Workers: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad definition")
}

func TestReaderSource(t *testing.T) {
	src := FromReader(record.NewReader(strings.NewReader(`{"Presel": true, "SRJet": false, "CRJet": true, "met": 3}` + "\n")))
	res, err := Run(context.Background(), src, builder(t, analysisYAML), Options{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Records)
	assert.Equal(t, 1.0, res.Yields["CRJet"])

	_, err = src.Next()
	assert.Equal(t, io.EOF, err)
}

// #endregion test-errors
