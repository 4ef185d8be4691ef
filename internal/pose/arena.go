package pose

// noIndex marks an absent parent or a free arena slot.
const noIndex int32 = -1

// node is one arena entry. Parent and children are arena indices, never
// pointers, so a removal can't leave a live reference behind.
type node struct {
	handle   Handle
	label    string
	parent   int32
	children []int32 // insertion order
	local    Transform
	live     bool
}

// arena owns every node. Freed slots are reused via the free list.
type arena struct {
	nodes []node
	free  []int32
	index map[Handle]int32
	root  int32
}

func newArena() *arena {
	return &arena{
		index: make(map[Handle]int32),
		root:  noIndex,
	}
}

func (a *arena) lookup(h Handle) (int32, bool) {
	i, ok := a.index[h]
	return i, ok
}

func (a *arena) get(i int32) *node {
	return &a.nodes[i]
}

// insert adds a node under parent (noIndex for the root) and returns its index.
// Callers validate the parent and the handle first.
func (a *arena) insert(h Handle, parent int32, local Transform, label string) int32 {
	n := node{
		handle: h,
		label:  label,
		parent: parent,
		local:  local,
		live:   true,
	}

	var i int32
	if k := len(a.free); k > 0 {
		i = a.free[k-1]
		a.free = a.free[:k-1]
		a.nodes[i] = n
	} else {
		i = int32(len(a.nodes))
		a.nodes = append(a.nodes, n)
	}

	a.index[h] = i
	if parent == noIndex {
		a.root = i
	} else {
		p := a.get(parent)
		p.children = append(p.children, i)
	}
	return i
}

// remove detaches the subtree rooted at i and frees every node in it.
// It returns the number of nodes removed.
func (a *arena) remove(i int32) int {
	if p := a.get(i).parent; p != noIndex {
		parent := a.get(p)
		for k, c := range parent.children {
			if c == i {
				parent.children = append(parent.children[:k], parent.children[k+1:]...)
				break
			}
		}
	}

	removed := 0
	stack := []int32{i}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := a.get(cur)
		stack = append(stack, n.children...)
		delete(a.index, n.handle)
		*n = node{parent: noIndex}
		a.free = append(a.free, cur)
		removed++
	}

	if i == a.root {
		a.root = noIndex
	}
	return removed
}

// preorder appends the subtree rooted at i in depth-first pre-order,
// children visited in insertion order.
func (a *arena) preorder(i int32, visit func(i int32, depth int)) {
	type frame struct {
		idx   int32
		depth int
	}
	stack := []frame{{i, 0}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		visit(f.idx, f.depth)

		children := a.get(f.idx).children
		for k := len(children) - 1; k >= 0; k-- {
			stack = append(stack, frame{children[k], f.depth + 1})
		}
	}
}

// world composes local transforms from the root down to i.
func (a *arena) world(i int32) Transform {
	var chain []int32
	for cur := i; cur != noIndex; cur = a.get(cur).parent {
		chain = append(chain, cur)
	}
	t := Identity()
	for k := len(chain) - 1; k >= 0; k-- {
		t = t.Compose(a.get(chain[k]).local)
	}
	return t
}

func (a *arena) len() int {
	return len(a.index)
}
