package cuttree

import (
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"
)

// #region tree
// Tree owns a hierarchy of cuts rooted at a single node. A Tree holds
// per-record scratch state and must not be evaluated from more than one
// goroutine at a time; run one Tree per worker and merge their histograms, or
// serialize access externally.
type Tree struct {
	root     *Node
	strategy Strategy
	logger   *zap.Logger
	observer Observer
}

// Option configures a Tree.
type Option func(*Tree)

// WithStrategy sets the decision-source variant for cuts added to the tree.
func WithStrategy(s Strategy) Option {
	return func(t *Tree) { t.strategy = s }
}

// WithLogger sets the logger used for evaluation diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(t *Tree) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithObserver sets the receiver of evaluation diagnostics.
func WithObserver(o Observer) Option {
	return func(t *Tree) {
		if o != nil {
			t.observer = o
		}
	}
}

// New creates a tree with a root cut of the given name. The root always
// evaluates to pass with unit weight.
func New(rootName string, opts ...Option) *Tree {
	t := &Tree{
		strategy: StrategyRecord,
		logger:   zap.NewNop(),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(t)
	}
	t.root = t.newNode(rootName, nil)
	return t
}

func (t *Tree) newNode(name string, parent *Node) *Node {
	return &Node{
		name:     name,
		tree:     t,
		parent:   parent,
		decision: t.strategy.newDecision(),
	}
}

// Root returns the root cut.
func (t *Tree) Root() *Node { return t.root }

// Strategy returns the decision-source variant new cuts are built with.
func (t *Tree) Strategy() Strategy { return t.strategy }

// Find returns the first cut named name in preorder.
func (t *Tree) Find(name string) (*Node, bool) { return t.root.Find(name) }

// Cut returns the first cut named name in preorder, or ErrCutNotFound.
func (t *Tree) Cut(name string) (*Node, error) { return t.root.Cut(name) }

// Walk visits every cut in preorder until fn returns false.
func (t *Tree) Walk(fn func(*Node) bool) { t.root.walk(fn) }

// Systematics returns every systematic context registered anywhere in the tree, sorted.
func (t *Tree) Systematics() []string {
	seen := map[string]bool{}
	t.Walk(func(n *Node) bool {
		for s := range n.systs {
			seen[s] = true
		}
		return true
	})
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

// #endregion tree

// #region node
// Node is one named cut. It exclusively owns its children and keeps a
// non-owning reference to its parent.
type Node struct {
	name     string
	tree     *Tree
	parent   *Node
	children []*Node

	decision Decision
	systs    map[string]Decision

	pass   bool
	weight float64

	hists1d map[string][]Binding1D
	hists2d map[string][]Binding2D

	events []EventKey
}

// Name returns the cut name.
func (n *Node) Name() string { return n.name }

// Parent returns the parent cut, or nil for the root.
func (n *Node) Parent() *Node { return n.parent }

// Children returns the child cuts in declaration order.
func (n *Node) Children() []*Node { return slices.Clone(n.children) }

// IsRoot reports whether n has no parent.
func (n *Node) IsRoot() bool { return n.parent == nil }

// Pass returns the aggregated pass flag from the most recent evaluation.
func (n *Node) Pass() bool { return n.pass }

// Weight returns the aggregated weight from the most recent evaluation.
func (n *Node) Weight() float64 { return n.weight }

// Decision returns the cut's own decision source.
func (n *Node) Decision() Decision { return n.decision }

// #endregion node

// #region add-cut
// AddCut appends a child cut built with the tree's strategy and returns it.
func (n *Node) AddCut(name string) *Node {
	child := n.tree.newNode(name, n)
	n.children = append(n.children, child)
	return child
}

// #endregion add-cut

// #region decision-setters
// SetDecision replaces the cut's own decision source.
func (n *Node) SetDecision(d Decision) {
	if d == nil {
		d = n.tree.strategy.newDecision()
	}
	n.decision = d
}

// SetFuncs installs a callback pair as the cut's own decision source.
func (n *Node) SetFuncs(pass func() bool, weight func() float64) {
	n.decision = &Funcs{Pass: pass, Weight: weight}
}

// SetSystFuncs installs a callback pair for a registered systematic context.
func (n *Node) SetSystFuncs(syst string, pass func() bool, weight func() float64) error {
	if _, ok := n.systs[syst]; !ok {
		return fmt.Errorf("cut %s syst %s: %w", n.name, syst, ErrSystNotRegistered)
	}
	n.systs[syst] = &Funcs{Pass: pass, Weight: weight}
	return nil
}

// Fields returns the cut's externally-set decision fields, if that is its variant.
func (n *Node) Fields() (*Fields, bool) {
	f, ok := n.decision.(*Fields)
	return f, ok
}

// SystFields returns the externally-set fields of a registered systematic context.
func (n *Node) SystFields(syst string) (*Fields, error) {
	d, ok := n.systs[syst]
	if !ok {
		return nil, fmt.Errorf("cut %s syst %s: %w", n.name, syst, ErrSystNotRegistered)
	}
	f, ok := d.(*Fields)
	if !ok {
		return nil, fmt.Errorf("cut %s syst %s uses %s decisions, not fields", n.name, syst, kindOf(d))
	}
	return f, nil
}

// #endregion decision-setters

// #region systematics
// AddSyst registers a systematic context on this cut. The context gets its own
// decision source of the same variant as the cut's; evaluation under that
// context substitutes it while still aggregating through this cut's parent.
// Registering an existing context is a no-op.
func (n *Node) AddSyst(syst string) {
	if _, ok := n.systs[syst]; ok {
		return
	}
	if n.systs == nil {
		n.systs = make(map[string]Decision)
	}
	n.systs[syst] = kindOf(n.decision).newDecision()
}

// AddSystMatching registers syst on this cut and every descendant whose name
// contains any of the patterns.
func (n *Node) AddSystMatching(syst string, patterns []string) {
	n.walk(func(c *Node) bool {
		for _, p := range patterns {
			if strings.Contains(c.name, p) {
				c.AddSyst(syst)
				break
			}
		}
		return true
	})
}

// HasSyst reports whether syst is registered on this cut.
func (n *Node) HasSyst(syst string) bool {
	_, ok := n.systs[syst]
	return ok
}

// Systematics returns the contexts registered on this cut, sorted.
func (n *Node) Systematics() []string {
	out := make([]string, 0, len(n.systs))
	for s := range n.systs {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

// #endregion systematics

// #region find
// Find searches this subtree depth-first, children in declaration order, and
// returns the first cut named name. Cut names are expected to be unique.
func (n *Node) Find(name string) (*Node, bool) {
	if n.name == name {
		return n, true
	}
	for _, c := range n.children {
		if found, ok := c.Find(name); ok {
			return found, true
		}
	}
	return nil, false
}

// Cut is Find with a not-found error naming the requested cut.
func (n *Node) Cut(name string) (*Node, error) {
	c, ok := n.Find(name)
	if !ok {
		return nil, fmt.Errorf("asked for cut %q under %q: %w", name, n.name, ErrCutNotFound)
	}
	return c, nil
}

func (n *Node) walk(fn func(*Node) bool) bool {
	if !fn(n) {
		return false
	}
	for _, c := range n.children {
		if !c.walk(fn) {
			return false
		}
	}
	return true
}

// #endregion find

// #region queries
// CutList returns the names from the root down to the named cut, inclusive.
func (n *Node) CutList(name string) ([]string, error) {
	c, err := n.Cut(name)
	if err != nil {
		return nil, err
	}
	var list []string
	for p := c; p != nil; p = p.parent {
		list = append(list, p.name)
	}
	slices.Reverse(list)
	return list, nil
}

// EndCuts returns the names of all leaf cuts under n in preorder.
func (n *Node) EndCuts() []string {
	var out []string
	n.walk(func(c *Node) bool {
		if len(c.children) == 0 {
			out = append(out, c.name)
		}
		return true
	})
	return out
}

// CutListBelow returns the names of the named cut and all its descendants in preorder.
func (n *Node) CutListBelow(name string) ([]string, error) {
	c, err := n.Cut(name)
	if err != nil {
		return nil, err
	}
	var out []string
	c.walk(func(d *Node) bool {
		out = append(out, d.name)
		return true
	})
	return out, nil
}

// #endregion queries
