package evc

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/epistimio/orion-go/internal/trial"
)

// Node is one experiment version in the EVC DAG. Exactly one root exists
// per refers.root_id; the root's inbound adapter chain is empty.
type Node struct {
	ExperimentID    string
	Parent          *Node
	Children        []*Node
	InboundAdapters Chain // adapters applied when crossing from Parent to this node
}

// IsRoot reports whether n has no parent.
func (n *Node) IsRoot() bool { return n.Parent == nil }

// TrialSource supplies the trials belonging to one experiment, abstracting
// over the storage backend so Tree stays storage-agnostic.
type TrialSource interface {
	TrialsForExperiment(experimentID string) ([]*trial.Trial, error)
}

// Tree is the lazily-built EVC DAG plus an LRU cache of composed adapter
// chains between pairs of nodes, avoiding recomputation on repeated
// FetchTrialsFromTree calls against the same leaf.
type Tree struct {
	nodes map[string]*Node
	cache *lru.Cache[edgeKey, Chain]
}

type edgeKey struct {
	from, to string
}

// NewTree builds an EVC tree from a flat parent-pointer listing:
// parentByID maps an experiment id to its refers.parent_id (empty for the
// root) and adaptersByID maps it to the adapter chain on its inbound edge.
func NewTree(parentByID map[string]string, adaptersByID map[string]Chain) *Tree {
	t := &Tree{nodes: make(map[string]*Node)}
	cache, _ := lru.New[edgeKey, Chain](256)
	t.cache = cache

	get := func(id string) *Node {
		if n, ok := t.nodes[id]; ok {
			return n
		}
		n := &Node{ExperimentID: id, InboundAdapters: adaptersByID[id]}
		t.nodes[id] = n
		return n
	}

	for id := range parentByID {
		get(id)
	}
	for id, parentID := range parentByID {
		if parentID == "" {
			continue
		}
		child := get(id)
		parent := get(parentID)
		child.Parent = parent
		parent.Children = append(parent.Children, child)
	}
	return t
}

// Node returns the tree node for an experiment id, if present.
func (t *Tree) Node(id string) (*Node, bool) {
	n, ok := t.nodes[id]
	return n, ok
}

// pathTo returns the sequence of nodes from the root down to n, inclusive.
func pathTo(n *Node) []*Node {
	var rev []*Node
	for cur := n; cur != nil; cur = cur.Parent {
		rev = append(rev, cur)
	}
	out := make([]*Node, len(rev))
	for i, node := range rev {
		out[len(rev)-1-i] = node
	}
	return out
}

// chainBetween composes the adapter chain along the path from `from` to
// `to`, in the forward (from→to, i.e. ancestor→descendant or
// descendant→ancestor) direction requested by the caller. It is cached by
// (from.ExperimentID, to.ExperimentID).
func (t *Tree) chainBetween(from, to *Node) Chain {
	key := edgeKey{from.ExperimentID, to.ExperimentID}
	if c, ok := t.cache.Get(key); ok {
		return c
	}

	fromPath := pathTo(from)
	toPath := pathTo(to)

	// Find the lowest common ancestor depth.
	lca := 0
	for lca < len(fromPath) && lca < len(toPath) && fromPath[lca] == toPath[lca] {
		lca++
	}

	var chain Chain
	// Walk up from `from` to the LCA, applying each step's inbound adapters
	// backward (descendant -> ancestor).
	for i := len(fromPath) - 1; i >= lca; i-- {
		chain = append(chain, reverseAdapter{fromPath[i].InboundAdapters})
	}
	// Walk down from the LCA to `to`, applying each step's inbound adapters
	// forward (ancestor -> descendant).
	for i := lca; i < len(toPath); i++ {
		chain = append(chain, toPath[i].InboundAdapters)
	}

	t.cache.Add(key, chain)
	return chain
}

// reverseAdapter flips a Chain's Forward/Backward so it can be embedded as
// a single Adapter step applied in the opposite direction.
type reverseAdapter struct{ c Chain }

func (r reverseAdapter) Forward(t *trial.Trial) (*trial.Trial, bool)  { return r.c.Backward(t) }
func (r reverseAdapter) Backward(t *trial.Trial) (*trial.Trial, bool) { return r.c.Forward(t) }

// FetchTrialsFromTree returns the union of: leaf's own trials, plus, for
// every ancestor and descendant, that experiment's trials after running
// them through the composed adapter chain along the path to leaf. Trials
// any adapter filters out are dropped. Deduplication is by hash; if the
// same parameter assignment exists in leaf and elsewhere, leaf's copy wins.
func (t *Tree) FetchTrialsFromTree(leafID string, src TrialSource, hashOf func(*trial.Trial) string) ([]*trial.Trial, error) {
	leaf, ok := t.nodes[leafID]
	if !ok {
		return nil, &ErrConflictUnresolvable{Reason: "unknown experiment in EVC tree: " + leafID}
	}

	seen := make(map[string]*trial.Trial)

	leafTrials, err := src.TrialsForExperiment(leafID)
	if err != nil {
		return nil, err
	}
	for _, tr := range leafTrials {
		seen[hashOf(tr)] = tr
	}

	for otherID, node := range t.nodes {
		if otherID == leafID {
			continue
		}
		otherTrials, err := src.TrialsForExperiment(otherID)
		if err != nil {
			return nil, err
		}
		chain := t.chainBetween(node, leaf)
		for _, tr := range otherTrials {
			adapted, ok := chain.Forward(tr)
			if !ok {
				continue
			}
			key := hashOf(adapted)
			if _, exists := seen[key]; exists {
				continue // leaf's own copy (or a previously seen one) wins
			}
			seen[key] = adapted
		}
	}

	out := make([]*trial.Trial, 0, len(seen))
	for _, tr := range seen {
		out = append(out, tr)
	}
	return out, nil
}
