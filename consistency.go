package robustpgo

import (
	"slices"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// consistencyGraph links pairwise consistent separators and tracks the
// maximum clique of the graph as nodes are added.
type consistencyGraph struct {
	g     *simple.UndirectedGraph
	order []int64 // node ids in insertion order
	best  []int64 // current maximum clique, sorted
}

func newConsistencyGraph() *consistencyGraph {
	return &consistencyGraph{g: simple.NewUndirectedGraph()}
}

// add inserts node id linked to the consistent nodes already in the graph and
// updates the maximum clique. A clique that did not exist before the insertion
// must contain id, so only the neighbourhood of id is searched: the new
// maximum is either the previous one or id joined with the largest clique of
// its neighbourhood. The previous maximum wins ties.
func (c *consistencyGraph) add(id int64, consistent []int64) {
	c.g.AddNode(simple.Node(id))
	for _, n := range consistent {
		if n == id || c.g.Node(n) == nil {
			continue
		}
		c.g.SetEdge(simple.Edge{F: simple.Node(id), T: simple.Node(n)})
	}
	c.order = append(c.order, id)

	candidate := append(largestClique(neighbourhood(c.g, id)), id)
	slices.Sort(candidate)
	if len(candidate) > len(c.best) {
		c.best = candidate
	}
}

// contains returns whether id belongs to the maximum clique.
func (c *consistencyGraph) contains(id int64) bool {
	_, found := slices.BinarySearch(c.best, id)
	return found
}

// clique returns the current maximum clique.
func (c *consistencyGraph) clique() []int64 {
	return slices.Clone(c.best)
}

// neighbourhood returns the subgraph induced by the neighbours of id.
func neighbourhood(g *simple.UndirectedGraph, id int64) *simple.UndirectedGraph {
	sub := simple.NewUndirectedGraph()
	nodes := graph.NodesOf(g.From(id))
	for _, n := range nodes {
		sub.AddNode(n)
	}
	for i, u := range nodes {
		for _, v := range nodes[i+1:] {
			if g.HasEdgeBetween(u.ID(), v.ID()) {
				sub.SetEdge(simple.Edge{F: u, T: v})
			}
		}
	}
	return sub
}

// largestClique returns an exact maximum clique of g. Among cliques of equal
// size the one with the lexicographically smallest sorted ids is returned.
func largestClique(g graph.Undirected) []int64 {
	if g.Nodes().Len() == 0 {
		return nil
	}
	var best []int64
	for _, clique := range topo.BronKerbosch(g) {
		ids := make([]int64, len(clique))
		for i, n := range clique {
			ids[i] = n.ID()
		}
		slices.Sort(ids)
		if len(ids) > len(best) || (len(ids) == len(best) && slices.Compare(ids, best) < 0) {
			best = ids
		}
	}
	return best
}
