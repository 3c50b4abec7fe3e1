package decompile

import "github.com/bkovari/relinq/internal/qexpr"

// nodeID addresses a node inside an arena. Links between nodes are
// plain ids, never pointers, so the whole graph (cycles and
// back-references included) is dropped with the arena.
type nodeID int

const noNode nodeID = -1

// node is a mutable control-flow node during structuring. It owns an
// expression (nil while the block is still opaque), true/false
// successor edges, and a redundant multiset of predecessor ids for
// O(1) incoming-edge queries.
type node struct {
	expr    qexpr.Expression
	onTrue  nodeID
	onFalse nodeID
	origins []nodeID

	yield  qexpr.Expression
	ret    qexpr.Expression
	offset int
}

// arena owns every node of one analysis.
type arena struct {
	nodes []node
}

func newArena() *arena {
	return &arena{}
}

func (a *arena) add(expr qexpr.Expression) nodeID {
	a.nodes = append(a.nodes, node{expr: expr, onTrue: noNode, onFalse: noNode, offset: -1})
	return nodeID(len(a.nodes) - 1)
}

func (a *arena) at(id nodeID) *node {
	return &a.nodes[id]
}

func removeOrigin(origins []nodeID, id nodeID) []nodeID {
	for i, o := range origins {
		if o == id {
			return append(origins[:i], origins[i+1:]...)
		}
	}
	return origins
}

// setOnTrue binds the true (green) edge, keeping origins consistent.
func (a *arena) setOnTrue(id, target nodeID) {
	n := a.at(id)
	if n.onTrue != noNode {
		old := a.at(n.onTrue)
		old.origins = removeOrigin(old.origins, id)
	}
	n.onTrue = target
	if target != noNode {
		a.at(target).origins = append(a.at(target).origins, id)
	}
}

// setOnFalse binds the false (red) edge, keeping origins consistent.
func (a *arena) setOnFalse(id, target nodeID) {
	n := a.at(id)
	if n.onFalse != noNode {
		old := a.at(n.onFalse)
		old.origins = removeOrigin(old.origins, id)
	}
	n.onFalse = target
	if target != noNode {
		a.at(target).origins = append(a.at(target).origins, id)
	}
}

// setTargets binds both outgoing edges.
func (a *arena) setTargets(id, onTrue, onFalse nodeID) {
	a.setOnTrue(id, onTrue)
	a.setOnFalse(id, onFalse)
}

// seizeOrigins retargets every edge entering src so it enters dst
// instead.
func (a *arena) seizeOrigins(dst, src nodeID) {
	// The origin list shrinks as edges are rebound; iterate a copy.
	origins := append([]nodeID{}, a.at(src).origins...)
	for _, origin := range origins {
		if a.at(origin).onTrue == src {
			a.setOnTrue(origin, dst)
		} else if a.at(origin).onFalse == src {
			a.setOnFalse(origin, dst)
		}
	}
}

// twist swaps the true and false edges and logically negates the
// node's expression. It is the single mechanism for resolving edge
// polarity, never special-cased per operator.
func (a *arena) twist(id nodeID) {
	n := a.at(id)
	if n.expr != nil {
		n.expr = qexpr.Negate(n.expr)
	}
	n.onTrue, n.onFalse = n.onFalse, n.onTrue
}

// isOriginConsistent checks that all incoming edges are exclusively
// true (green) or exclusively false (red).
func (a *arena) isOriginConsistent(id nodeID) bool {
	trueAll, falseAll := true, true
	for _, origin := range a.at(id).origins {
		if a.at(origin).onTrue != id {
			trueAll = false
		}
		if a.at(origin).onFalse != id {
			falseAll = false
		}
	}
	return trueAll || falseAll
}

// topoSort produces a topological order of all nodes reachable from
// root, true-edge first.
func (a *arena) topoSort(root nodeID) []nodeID {
	var result []nodeID
	seen := map[nodeID]bool{root: true}

	var walk func(id nodeID)
	walk = func(id nodeID) {
		n := a.at(id)
		if n.onTrue != noNode && !seen[n.onTrue] {
			seen[n.onTrue] = true
			walk(n.onTrue)
		}
		if n.onFalse != noNode && !seen[n.onFalse] {
			seen[n.onFalse] = true
			walk(n.onFalse)
		}
		result = append(result, id)
	}
	walk(root)

	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return result
}
