package cuttree

import (
	"fmt"
	"io"
	"slices"
)

// #region event-log
// Events returns a copy of the cut's event-key log in insertion (or sorted) order.
func (n *Node) Events() []EventKey { return slices.Clone(n.events) }

// AddEvent appends a key to the cut's event log.
func (n *Node) AddEvent(run, lumi int64, evt uint64) {
	n.events = append(n.events, EventKey{Run: run, Lumi: lumi, Evt: evt})
}

// AppendEvents appends keys collected elsewhere, e.g. by a worker-local tree.
func (n *Node) AppendEvents(keys ...EventKey) {
	n.events = append(n.events, keys...)
}

// SortEvents orders the event log by run, lumi, evt. Duplicates are kept.
func (n *Node) SortEvents() {
	slices.SortStableFunc(n.events, EventKey.Compare)
}

// ClearEvents empties the event log.
func (n *Node) ClearEvents() { n.events = nil }

// WriteEvents writes a header line followed by one run:lumi:evt per line.
func (n *Node) WriteEvents(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "Event list for cut = %s\n", n.name); err != nil {
		return err
	}
	for _, k := range n.events {
		if _, err := fmt.Fprintln(w, k.String()); err != nil {
			return err
		}
	}
	return nil
}

// #endregion event-log
