// Package runner drives the record loop: each record is evaluated against a
// cut tree under the nominal and every systematic context, histograms are
// filled and linear cutflows booked. With several workers each one owns an
// independent analysis and the results are merged once all have finished.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/cutflow/internal/config"
	"github.com/danielpatrickdp/cutflow/internal/cutflow"
	"github.com/danielpatrickdp/cutflow/internal/cuttree"
	"github.com/danielpatrickdp/cutflow/internal/record"
)

// #region source
// Source yields records until it returns io.EOF. It is read from one
// goroutine only.
type Source interface {
	Next() (record.Store, error)
}

type sliceSource struct {
	recs []record.Store
	i    int
}

// Slice returns a Source over in-memory records.
func Slice(recs ...record.Store) Source { return &sliceSource{recs: recs} }

func (s *sliceSource) Next() (record.Store, error) {
	if s.i >= len(s.recs) {
		return nil, io.EOF
	}
	r := s.recs[s.i]
	s.i++
	return r, nil
}

type readerSource struct{ r *record.Reader }

// FromReader adapts a JSONL record reader.
func FromReader(r *record.Reader) Source { return readerSource{r: r} }

func (s readerSource) Next() (record.Store, error) {
	rec, err := s.r.Next()
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// #endregion source

// #region options
// Builder returns a fresh, independent analysis.
type Builder func() (*config.Analysis, error)

// Counter receives one call per processed record.
type Counter interface {
	RecordProcessed()
}

// Options configures Run.
type Options struct {
	// Workers is the number of independent analyses; 0 or 1 runs sequentially.
	Workers int
	// AlwaysClear resets the tree before every record even for strategies
	// that self-reset, so cuts missing from a record read as failed instead of
	// keeping the previous record's result.
	AlwaysClear bool
	Logger      *zap.Logger
	Counter     Counter
}

// Result is the merged outcome of a run.
type Result struct {
	Records  int64
	Analysis *config.Analysis
	// Yields is the sum of nominal weights of passing records per cut.
	Yields map[string]float64
}

// #endregion options

// #region run
// Run processes every record from src. Cancellation is checked between records.
func Run(ctx context.Context, src Source, build Builder, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Workers <= 1 {
		w, err := newWorker(0, build, opts, logger)
		if err != nil {
			return nil, err
		}
		for {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			rec, err := src.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("read record %d: %w", w.records+1, err)
			}
			if err := w.process(rec); err != nil {
				return nil, err
			}
		}
		return w.result(), nil
	}
	return runParallel(ctx, src, build, opts, logger)
}

func runParallel(ctx context.Context, src Source, build Builder, opts Options, logger *zap.Logger) (*Result, error) {
	workers := make([]*worker, opts.Workers)
	for i := range workers {
		w, err := newWorker(i, build, opts, logger)
		if err != nil {
			return nil, err
		}
		workers[i] = w
	}

	g, gctx := errgroup.WithContext(ctx)
	recs := make(chan record.Store, opts.Workers*4)
	var read atomic.Int64

	g.Go(func() error {
		defer close(recs)
		for {
			rec, err := src.Next()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("read record %d: %w", read.Load()+1, err)
			}
			read.Add(1)
			select {
			case recs <- rec:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})
	for _, w := range workers {
		w := w
		g.Go(func() error {
			for rec := range recs {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := w.process(rec); err != nil {
					return err
				}
			}
			logger.Debug("worker finished", zap.Int("worker", w.id), zap.Int64("records", w.records))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := workers[0].result()
	for _, w := range workers[1:] {
		if err := res.Analysis.Merge(w.analysis); err != nil {
			return nil, err
		}
		res.Records += w.records
		for cut, y := range w.yields {
			res.Yields[cut] += y
		}
	}
	res.Analysis.SortEvents()
	return res, nil
}

// #endregion run

// #region worker
type worker struct {
	id       int
	analysis *config.Analysis
	opts     Options
	records  int64
	yields   map[string]float64
}

func newWorker(id int, build Builder, opts Options, logger *zap.Logger) (*worker, error) {
	a, err := build()
	if err != nil {
		return nil, fmt.Errorf("build analysis for worker %d: %w", id, err)
	}
	logger.Debug("worker ready", zap.Int("worker", id), zap.Strings("systematics", a.Systematics))
	return &worker{id: id, analysis: a, opts: opts, yields: make(map[string]float64)}, nil
}

func (w *worker) process(rec record.Store) error {
	a := w.analysis
	w.records++
	reset := w.opts.AlwaysClear || !a.Tree.Strategy().SelfResets()

	if reset {
		a.Tree.Clear()
	}
	a.Tree.Evaluate(rec, "", a.RecordEvents)
	if err := a.Tree.FillHistograms(rec, "", 1); err != nil {
		return fmt.Errorf("record %d: %w", w.records, err)
	}
	a.Tree.Walk(func(n *cuttree.Node) bool {
		if n.Pass() {
			w.yields[n.Name()] += n.Weight()
		}
		return true
	})

	for _, syst := range a.Systematics {
		if reset {
			a.Tree.Clear()
		}
		a.Tree.Evaluate(rec, syst, false)
		if err := a.Tree.FillHistograms(rec, syst, 1); err != nil {
			return fmt.Errorf("record %d syst %s: %w", w.records, syst, err)
		}
	}

	if err := cutflow.FillAll(a.Lists, rec, a.Weighted, a.Raw); err != nil {
		return fmt.Errorf("record %d: %w", w.records, err)
	}
	if w.opts.Counter != nil {
		w.opts.Counter.RecordProcessed()
	}
	return nil
}

func (w *worker) result() *Result {
	w.analysis.SortEvents()
	return &Result{Records: w.records, Analysis: w.analysis, Yields: w.yields}
}

// #endregion worker
