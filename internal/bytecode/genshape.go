package bytecode

// IterArg is the name of the synthetic local holding the iterable a
// generator-shaped program receives. The prologue loads it; the
// decompiler strips it.
const IterArg = ".0"

// BeginGenerator emits the canonical generator prologue: load the
// iterable argument, mark the loop head, advance the iterator
// (branching to the epilogue when exhausted) and store the iteration
// value into the declared entity aliases. It returns the loop-head
// and epilogue labels.
//
// Condition instructions follow, with each failed test branching back
// to head; then the projection value and EndGenerator.
func (b *Builder) BeginGenerator(aliases ...string) (head, end Label) {
	head = b.NewLabel()
	end = b.NewLabel()

	b.LoadLocal(IterArg)
	b.Mark(head)
	b.ForIter(end)
	if len(aliases) == 1 {
		b.StoreLocal(aliases[0])
	} else {
		b.Unpack(len(aliases))
		for _, alias := range aliases {
			b.StoreLocal(alias)
		}
	}
	return head, end
}

// EndGenerator emits the yield of the projection value on top of the
// stack, the back-jump to the loop head, and the epilogue returning
// the end-of-iteration sentinel.
func (b *Builder) EndGenerator(head, end Label) {
	b.Yield()
	b.Pop()
	b.Jump(head)
	b.Mark(end)
	b.LoadConst(nil)
	b.Return()
}
