// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tree

// VisitFunc is called for each node in pre-order. ancestors runs from the
// root to the parent of n and is only valid for the duration of the call.
// Returning false skips the children of n.
type VisitFunc func(n *Node, ancestors []*Node) bool

// WalkStack traverses root depth-first in pre-order, visiting every node
// exactly once and passing its ancestor stack.
//
// Description:
//
//	The walk validates the structure as it goes. A nil child, a node
//	reachable twice (shared ownership or a cycle) or a call whose block
//	slot is not a block yields a *MalformedTreeError and stops the walk.
//	Nodes visited before the violation have already been passed to fn.
//
// Outputs:
//
//	error - nil, or a *MalformedTreeError.
func WalkStack(root *Node, fn VisitFunc) error {
	if root == nil {
		return &MalformedTreeError{Index: -1, Reason: "nil root"}
	}
	w := walker{seen: make(map[*Node]struct{}), fn: fn}
	w.seen[root] = struct{}{}
	if err := checkSlots(root); err != nil {
		return err
	}
	return w.visit(root)
}

type walker struct {
	seen  map[*Node]struct{}
	stack []*Node
	fn    VisitFunc
}

func (w *walker) visit(n *Node) error {
	if !w.fn(n, w.stack) {
		return nil
	}

	w.stack = append(w.stack, n)
	defer func() { w.stack = w.stack[:len(w.stack)-1] }()

	for i, c := range n.children {
		if c == nil {
			return &MalformedTreeError{Parent: n, Index: i, Reason: "nil child"}
		}
		if _, dup := w.seen[c]; dup {
			return &MalformedTreeError{Parent: n, Index: i, Reason: "node has more than one parent"}
		}
		w.seen[c] = struct{}{}
		if err := checkSlots(c); err != nil {
			return err
		}
		if err := w.visit(c); err != nil {
			return err
		}
	}
	return nil
}

// checkSlots rejects nodes whose slots contradict their kind.
func checkSlots(n *Node) error {
	switch {
	case n.block != nil && n.kind != KindCall:
		return &MalformedTreeError{Parent: n, Index: -1, Reason: "block attached to non-call"}
	case n.block != nil && n.block.kind != KindBlock:
		return &MalformedTreeError{Parent: n, Index: -1, Reason: "call block slot holds " + n.block.kind.String()}
	case n.kind == KindCall && n.value == "":
		return &MalformedTreeError{Parent: n, Index: -1, Reason: "call without method name"}
	case n.kind == KindOpAsgn && len(n.body) != 2:
		return &MalformedTreeError{Parent: n, Index: -1, Reason: "operator assignment needs target and value"}
	}
	return nil
}

// Walk traverses root in pre-order without ancestor information.
func Walk(root *Node, fn func(n *Node) bool) error {
	return WalkStack(root, func(n *Node, _ []*Node) bool { return fn(n) })
}

// Find returns every node of the given kinds under root (root included),
// in pre-order. With no kinds, every node is returned.
func Find(root *Node, kinds ...Kind) ([]*Node, error) {
	var out []*Node
	err := Walk(root, func(n *Node) bool {
		if len(kinds) == 0 || hasKind(n.kind, kinds) {
			out = append(out, n)
		}
		return true
	})
	return out, err
}

// ChildrenOfKind returns the direct children of n with one of the given kinds.
func ChildrenOfKind(n *Node, kinds ...Kind) []*Node {
	var out []*Node
	for _, c := range n.children {
		if c != nil && hasKind(c.kind, kinds) {
			out = append(out, c)
		}
	}
	return out
}

func hasKind(k Kind, kinds []Kind) bool {
	for _, want := range kinds {
		if k == want {
			return true
		}
	}
	return false
}
