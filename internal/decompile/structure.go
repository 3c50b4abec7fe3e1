package decompile

import "github.com/bkovari/relinq/internal/qexpr"

// structureRegion reduces a region of condition nodes to a single
// structured expression.
//
// region lists the condition nodes in source block order; every edge
// leaving the region must already point at trueN or falseN, the
// synthetic terminal nodes. The region's entry is region[0].
func (a *arena) structureRegion(region []nodeID, trueN, falseN nodeID) (qexpr.Expression, error) {
	if len(region) == 0 {
		return nil, irreducibleFlow("empty condition region")
	}

	ordered := make([]nodeID, 0, len(region)+2)
	ordered = append(ordered, region...)
	ordered = append(ordered, trueN, falseN)

	// Align edge colors so that every node's incoming edges are
	// either uniformly true (green) or uniformly false (red) edges.
	// A node already twisted anchors the polarity of later decisions.
	marked := make(map[nodeID]bool)
	for _, id := range ordered {
		edgeType := false
		for _, origin := range a.at(id).origins {
			if marked[origin] {
				edgeType = a.at(origin).onTrue == id
				break
			}
		}
		for _, origin := range a.at(id).origins {
			if edgeType != (a.at(origin).onTrue == id) {
				a.twist(origin)
				marked[origin] = true
			}
		}
	}
	for _, id := range ordered {
		if !a.isOriginConsistent(id) {
			return nil, irreducibleFlow("edge colors could not be normalized")
		}
	}

	// The true terminal must be reached exclusively along true edges.
	// If it is not, the whole region formed the inverted expression;
	// twisting every node flips it back.
	if !a.originsAllTrue(trueN) {
		for _, id := range ordered {
			a.twist(id)
		}
		for _, id := range ordered {
			if !a.isOriginConsistent(id) {
				return nil, irreducibleFlow("edge colors inconsistent after region inversion")
			}
		}
		if !a.originsAllTrue(trueN) {
			return nil, irreducibleFlow("true terminal unreachable along true edges")
		}
	}

	root := region[0]
	sorted := a.topoSort(root)
	sorted = removeID(sorted, trueN)
	sorted = removeID(sorted, falseN)

	return a.foldRegion(sorted)
}

func (a *arena) originsAllTrue(id nodeID) bool {
	for _, origin := range a.at(id).origins {
		if a.at(origin).onTrue != id {
			return false
		}
	}
	return true
}

func removeID(ids []nodeID, id nodeID) []nodeID {
	for i, existing := range ids {
		if existing == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// foldRegion repeatedly replaces the longest contiguous run of nodes
// sharing a common successor with a single composite node: a run
// sharing onFalse folds into a Conjunction, a run sharing onTrue into
// a Disjunction. Conjunction binds tighter and is checked first.
// Expression order inside a fold preserves source block order.
func (a *arena) foldRegion(sorted []nodeID) (qexpr.Expression, error) {
	for len(sorted) > 1 {
		folded := false

		for start := 0; start < len(sorted)-1 && !folded; start++ {
			// Conjunction: a run of AND-connected tests all bail to
			// the same false successor.
			end := start + 1
			for end < len(sorted) && a.at(sorted[start]).onFalse == a.at(sorted[end]).onFalse {
				end++
			}
			if end-start > 1 {
				sorted = a.foldRun(sorted, start, end, true)
				folded = true
				break
			}

			// Disjunction: a run of OR-connected tests all succeed to
			// the same true successor.
			end = start + 1
			for end < len(sorted) && a.at(sorted[start]).onTrue == a.at(sorted[end]).onTrue {
				end++
			}
			if end-start > 1 {
				sorted = a.foldRun(sorted, start, end, false)
				folded = true
				break
			}
		}

		if !folded {
			// No fold in a full pass over more than one node: the
			// graph is not reducible to a single expression. Surface
			// the error rather than guessing.
			return nil, irreducibleFlow("cannot fold %d remaining nodes into one expression", len(sorted))
		}
	}

	return a.at(sorted[0]).expr, nil
}

// foldRun replaces sorted[start:end] with one composite node.
func (a *arena) foldRun(sorted []nodeID, start, end int, conjunction bool) []nodeID {
	members := sorted[start:end]
	exprs := make([]qexpr.Expression, len(members))
	for i, id := range members {
		exprs[i] = a.at(id).expr
	}

	var composite qexpr.Expression
	var onTrue, onFalse nodeID
	if conjunction {
		composite = qexpr.Conjunction{Operands: exprs}
		onTrue = a.at(members[len(members)-1]).onTrue
		onFalse = a.at(members[0]).onFalse
	} else {
		composite = qexpr.Disjunction{Operands: exprs}
		onTrue = a.at(members[0]).onTrue
		onFalse = a.at(members[len(members)-1]).onFalse
	}

	id := a.add(composite)
	a.setTargets(id, onTrue, onFalse)
	a.seizeOrigins(id, members[0])
	for _, member := range members {
		a.setTargets(member, noNode, noNode)
	}

	replaced := make([]nodeID, 0, len(sorted)-(end-start)+1)
	replaced = append(replaced, sorted[:start]...)
	replaced = append(replaced, id)
	replaced = append(replaced, sorted[end:]...)
	return replaced
}
