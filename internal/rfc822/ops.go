package rfc822

// RfindType returns the handle of the nearest node preceding pivot (on
// pivot's own list, not descending into Addr children) whose Kind is
// kind, or nilH if none exists.
func RfindType(t *Tree, pivot Handle, kind Kind) Handle {
	for h := t.Prev(pivot); h != nilH; h = t.Prev(h) {
		if t.Kind(h) == kind {
			return h
		}
	}
	return nilH
}

// SubKeepBefore detaches the suffix of the top-level list running from
// pivot (inclusive) to its end, and returns it as a new Tree whose own
// top-level list holds exactly those nodes. The original tree is left
// holding only the nodes strictly before pivot.
func SubKeepBefore(t *Tree, pivot Handle) *Tree {
	sub := newTree()
	if pivot == nilH {
		return sub
	}

	owner := t.Owner(pivot)
	tail := t.n(owner).prev

	// Detach [pivot, tail] from t's list.
	before := t.Prev(pivot)
	if before == nilH {
		t.n(owner).next = owner
	} else {
		t.n(before).next = owner
	}
	t.n(owner).prev = before
	if before == nilH {
		t.n(owner).prev = owner
	}

	// Splice [pivot, tail] onto a fresh sentinel allocated in t's arena,
	// which becomes sub's head.
	subHead := t.newSentinel()
	t.n(subHead).next = pivot
	t.n(subHead).prev = tail
	t.n(pivot).prev = subHead
	t.n(tail).next = subHead

	// Re-parent every moved node (and, for Addr nodes, leave their
	// nested children list alone — it belongs to a different arena
	// generation and is only ever walked through t, not sub, but since
	// sub copies t's node slice space conceptually we keep operating on
	// the same underlying arena below).
	reparent(t, pivot, subHead)

	// sub shares t's backing arena so Addr children handles recorded
	// before the move remain valid in both trees.
	sub.nodes = t.nodes
	sub.head = subHead
	return sub
}

// reparent walks from start until it loops back to newOwner, updating
// each node's owner field.
func reparent(t *Tree, start, newOwner Handle) {
	for h := start; ; {
		t.n(h).owner = newOwner
		h = t.n(h).next
		if h == newOwner {
			break
		}
	}
}

// SubAppend splices sub's entire top-level list onto the end of t's
// top-level list. sub must not be reused afterward.
func SubAppend(t *Tree, sub *Tree) {
	first := sub.First(sub.head)
	if first == nilH {
		return
	}

	// sub and t may have diverged backing slices (if sub was built
	// independently via Scan rather than via SubKeepBefore); normalize by
	// copying sub's real nodes into t's arena and relinking.
	base := Handle(len(t.nodes))
	for _, nd := range sub.nodes {
		shifted := nd
		if nd.prev != nilH {
			shifted.prev = nd.prev + base
		}
		if nd.next != nilH {
			shifted.next = nd.next + base
		}
		if nd.owner != nilH {
			shifted.owner = nd.owner + base
		}
		if nd.children != nilH {
			shifted.children = nd.children + base
		}
		t.nodes = append(t.nodes, shifted)
	}

	newFirst := first + base
	newOwner := sub.n(sub.head).owner + base // == sub.head + base
	newLast := t.n(newOwner).prev

	tail := t.n(t.head).prev
	t.n(tail).next = newFirst
	t.n(newFirst).prev = tail
	t.n(t.head).prev = newLast
	t.n(newLast).next = t.head

	reparent(t, newFirst, t.head)
}

// FreeTree exists for parity with the arena-of-records model the lexer is
// specified against; in Go the arena is released when the *Tree is no
// longer reachable, so this only resets bookkeeping for reuse.
func FreeTree(t *Tree) {
	t.nodes = t.nodes[:0]
	t.head = t.newSentinel()
}

// IsSingleEmptyQstring reports whether the tree's entire top-level token
// list is exactly one empty quoted string — the "" input that phase 2
// rewrites to "postmaster".
func IsSingleEmptyQstring(t *Tree) bool {
	h := t.First(t.head)
	if h == nilH || t.Kind(h) != Qstring || t.Text(h) != "" {
		return false
	}
	return t.Next(h) == nilH
}

// HasOperator reports whether any top-level token has one of the given
// kinds, used to detect leftover '@', '!'-as-atom-text, or '%'-as-atom-text
// markers after domain stripping.
func HasOperator(t *Tree, kinds ...Kind) bool {
	want := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}
	for h := t.First(t.head); h != nilH; h = t.Next(h) {
		if want[t.Kind(h)] {
			return true
		}
	}
	return false
}
