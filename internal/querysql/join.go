package querysql

// JoinKind is the SQL join flavor of an extracted join marker.
type JoinKind int

const (
	JoinInner JoinKind = iota
	JoinLeft
	JoinRight
	JoinFull
)

func (k JoinKind) String() string {
	switch k {
	case JoinLeft:
		return "LEFT"
	case JoinRight:
		return "RIGHT"
	case JoinFull:
		return "FULL"
	default:
		return "INNER"
	}
}

// EntityJoin is one extracted join condition between two entity
// aliases.
type EntityJoin struct {
	Kind        JoinKind
	LeftAlias   string
	LeftColumn  string
	RightAlias  string
	RightColumn string
}

// Swap flips the two sides. Left and right joins invert into each
// other; inner and full joins are self-symmetric.
func (j EntityJoin) Swap() EntityJoin {
	kind := j.Kind
	switch kind {
	case JoinLeft:
		kind = JoinRight
	case JoinRight:
		kind = JoinLeft
	}
	return EntityJoin{
		Kind:        kind,
		LeftAlias:   j.RightAlias,
		LeftColumn:  j.RightColumn,
		RightAlias:  j.LeftAlias,
		RightColumn: j.LeftColumn,
	}
}

// JoinSet stores extracted joins keyed by the lexicographically
// ordered alias pair, so a join between a and b is found regardless
// of argument order. At most one join per alias pair; a later add for
// the same pair replaces the earlier one.
type JoinSet struct {
	joins map[[2]string]EntityJoin
}

func NewJoinSet() *JoinSet {
	return &JoinSet{joins: make(map[[2]string]EntityJoin)}
}

func pairKey(a, b string) [2]string {
	if a > b {
		a, b = b, a
	}
	return [2]string{a, b}
}

func (s *JoinSet) Add(j EntityJoin) {
	s.joins[pairKey(j.LeftAlias, j.RightAlias)] = j
}

// Pop removes and returns the join between the two aliases, swapped
// if it was recorded in the opposite direction.
func (s *JoinSet) Pop(leftAlias, rightAlias string) (EntityJoin, bool) {
	key := pairKey(leftAlias, rightAlias)
	j, ok := s.joins[key]
	if !ok {
		return EntityJoin{}, false
	}
	delete(s.joins, key)
	if j.LeftAlias != leftAlias {
		return j.Swap(), true
	}
	return j, true
}

func (s *JoinSet) Empty() bool {
	return len(s.joins) == 0
}
