package cuttree

import (
	"go.uber.org/zap"

	"github.com/danielpatrickdp/cutflow/internal/record"
)

// #region evaluate
// Evaluate computes pass and weight for every cut under one systematic context
// (empty for nominal). With recordEvents, cuts that pass append the record's
// run:lumi:evt key to their event log when the record carries all three.
//
// Callers using StrategyFuncs or StrategyFields must call Clear before each
// record; otherwise cuts skipped on this record keep stale results.
func (t *Tree) Evaluate(rec record.Store, syst string, recordEvents bool) {
	t.observer.Evaluated(syst)
	t.root.Evaluate(rec, syst, recordEvents)
}

// Clear resets every cut to pass=false, weight=0.
func (t *Tree) Clear() { t.root.Clear() }

// Evaluate computes this cut and its subtree, aggregating against the parent's
// most recent result. On the root it is equivalent to Tree.Evaluate.
func (n *Node) Evaluate(rec record.Store, syst string, recordEvents bool) {
	aggPass, aggWeight := true, 1.0
	if n.parent != nil {
		aggPass, aggWeight = n.parent.pass, n.parent.weight
	}
	n.evaluate(rec, syst, recordEvents, aggPass, aggWeight)
}

func (n *Node) evaluate(rec record.Store, syst string, recordEvents bool, aggPass bool, aggWeight float64) {
	if n.parent == nil {
		n.pass = true
		n.weight = 1
	} else {
		d, dsyst := n.decisionFor(syst)
		pass, w, st := d.decide(rec, n.name, dsyst)
		switch st {
		case skipped:
			return
		case unset:
			n.tree.logger.Warn("cowardly passing the event because cut and weight func not set",
				zap.String("cut", n.name),
				zap.String("syst", syst))
			n.tree.observer.Fallback(n.name, syst)
			n.pass = aggPass
			n.weight = aggWeight
		default:
			n.pass = pass && aggPass
			n.weight = w * aggWeight
		}
		if n.pass {
			n.tree.observer.Passed(n.name, syst)
		}
	}

	if recordEvents && n.pass && rec != nil {
		if key, ok := eventKey(rec); ok {
			n.events = append(n.events, key)
		}
	}

	for _, c := range n.children {
		c.evaluate(rec, syst, recordEvents, n.pass, n.weight)
	}
}

// decisionFor resolves the decision source for a context. The returned suffix
// is the context name when an override is used, which the record variant
// appends to field names.
func (n *Node) decisionFor(syst string) (Decision, string) {
	if syst != "" {
		if d, ok := n.systs[syst]; ok {
			return d, syst
		}
	}
	return n.decision, ""
}

// Clear resets this cut and its subtree to pass=false, weight=0.
func (n *Node) Clear() {
	n.pass = false
	n.weight = 0
	for _, c := range n.children {
		c.Clear()
	}
}

func eventKey(rec record.Store) (EventKey, bool) {
	run, ok := rec.Int(record.FieldRun)
	if !ok {
		return EventKey{}, false
	}
	lumi, ok := rec.Int(record.FieldLumi)
	if !ok {
		return EventKey{}, false
	}
	evt, ok := rec.Uint(record.FieldEvt)
	if !ok {
		return EventKey{}, false
	}
	return EventKey{Run: run, Lumi: lumi, Evt: evt}, true
}

// #endregion evaluate
