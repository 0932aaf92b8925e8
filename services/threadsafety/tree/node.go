// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tree provides the read-only syntax tree the thread-safety rules
// operate on.
//
// Description:
//
//	A Node is an immutable element of a parsed source unit. Nodes are built
//	once by an adapter (see package ruby) or by hand in tests through New,
//	and are never modified afterwards. Every structural slot a rule may
//	care about (receiver, arguments, attached block, body) has an accessor,
//	and Children returns all of them in source order for generic traversal.
//
// Thread Safety:
//
//	Nodes are immutable after New returns and are safe for concurrent reads.
package tree

import "fmt"

// Range is a half-open byte span [Start, End) in the source unit.
type Range struct {
	Start int
	End   int
}

// IsZero reports whether the range is unset.
func (r Range) IsZero() bool {
	return r.Start == 0 && r.End == 0
}

// Len returns the span length in bytes.
func (r Range) Len() int {
	return r.End - r.Start
}

// Contains reports whether other lies entirely within r.
func (r Range) Contains(other Range) bool {
	return other.Start >= r.Start && other.End <= r.End
}

// String formats the range as "start:end".
func (r Range) String() string {
	return fmt.Sprintf("%d:%d", r.Start, r.End)
}

// Spec describes a node to construct with New.
//
// Only the slots meaningful for Kind should be set; see the Kind constants
// for which slot each variant uses. Head defaults to Range when zero.
type Spec struct {
	Kind  Kind
	Value string

	Range Range
	Head  Range

	Name       *Node
	Superclass *Node
	Receiver   *Node
	Params     *Node
	Arguments  []*Node
	Block      *Node
	Body       []*Node

	SafeNav bool
}

// Node is one immutable element of a syntax tree.
type Node struct {
	kind  Kind
	value string
	rng   Range
	head  Range

	name       *Node
	superclass *Node
	receiver   *Node
	params     *Node
	args       []*Node
	block      *Node
	body       []*Node
	safeNav    bool

	children []*Node
}

// New builds a Node from spec. Slices are copied, so the caller may reuse them.
//
// New performs no validation: a nil entry in Arguments or Body, or a node
// passed to two parents, is reported as a MalformedTreeError by Walk.
func New(spec Spec) *Node {
	n := &Node{
		kind:       spec.Kind,
		value:      spec.Value,
		rng:        spec.Range,
		head:       spec.Head,
		name:       spec.Name,
		superclass: spec.Superclass,
		receiver:   spec.Receiver,
		params:     spec.Params,
		args:       append([]*Node(nil), spec.Arguments...),
		block:      spec.Block,
		body:       append([]*Node(nil), spec.Body...),
		safeNav:    spec.SafeNav,
	}
	if n.head.IsZero() {
		n.head = n.rng
	}

	children := make([]*Node, 0, 5+len(n.args)+len(n.body))
	for _, slot := range []*Node{n.name, n.superclass, n.receiver, n.params} {
		if slot != nil {
			children = append(children, slot)
		}
	}
	children = append(children, n.args...)
	if n.block != nil {
		children = append(children, n.block)
	}
	children = append(children, n.body...)
	n.children = children

	return n
}

// Kind returns the syntactic variant.
func (n *Node) Kind() Kind { return n.kind }

// Value returns the identifying text: method, constant or variable name,
// or literal content. Empty for structural nodes.
func (n *Node) Value() string { return n.value }

// Range returns the full source span, including any attached block.
func (n *Node) Range() Range { return n.rng }

// HeadRange returns the span a diagnostic about this node is anchored on:
// a call without its attached block, or the name token of an assignment.
func (n *Node) HeadRange() Range { return n.head }

// Children returns all child nodes in source order. The slice must not be modified.
func (n *Node) Children() []*Node { return n.children }

// Name returns the name constant of a class or module.
func (n *Node) Name() *Node { return n.name }

// Superclass returns the superclass expression of a class, or nil.
func (n *Node) Superclass() *Node { return n.superclass }

// Receiver returns the receiver of a call, the scope of a constant, the
// object of a singleton method, or the target of `class <<`. Nil when absent.
func (n *Node) Receiver() *Node { return n.receiver }

// Params returns the parameter list of a method definition or block, or nil.
func (n *Node) Params() *Node { return n.params }

// Arguments returns the arguments of a call. The slice must not be modified.
func (n *Node) Arguments() []*Node { return n.args }

// Block returns the block attached to a call, or nil.
func (n *Node) Block() *Node { return n.block }

// Body returns the statement body or operands. The slice must not be modified.
func (n *Node) Body() []*Node { return n.body }

// SafeNav reports whether a call used `&.`.
func (n *Node) SafeNav() bool { return n.safeNav }

// HasBlock reports whether a call has an attached block or passes one
// with a trailing `&expr` argument.
func (n *Node) HasBlock() bool {
	if n.block != nil {
		return true
	}
	if len(n.args) == 0 {
		return false
	}
	last := n.args[len(n.args)-1]
	return last != nil && last.kind == KindBlockPass
}

// IsCall reports whether n is a call to one of the given method names.
// With no names, any call matches.
func (n *Node) IsCall(methods ...string) bool {
	if n == nil || n.kind != KindCall {
		return false
	}
	if len(methods) == 0 {
		return true
	}
	for _, m := range methods {
		if n.value == m {
			return true
		}
	}
	return false
}

// IsCommand reports whether n is a receiverless call to method.
func (n *Node) IsCommand(method string) bool {
	return n.IsCall(method) && n.receiver == nil
}

// Assigned returns the value written by an Ivasgn or Lvasgn, or nil when
// the node is the target of an operator assignment.
func (n *Node) Assigned() *Node {
	if (n.kind == KindIvasgn || n.kind == KindLvasgn) && len(n.body) > 0 {
		return n.body[0]
	}
	return nil
}

// ParamList returns the parameters of a Def, Defs or Block, or nil.
func (n *Node) ParamList() []*Node {
	if n.params == nil {
		return nil
	}
	return n.params.body
}

// String renders a compact s-expression, useful in test failures.
func (n *Node) String() string {
	if n == nil {
		return "nil"
	}
	s := "(" + n.kind.String()
	if n.value != "" {
		s += " " + fmt.Sprintf("%q", n.value)
	}
	for _, c := range n.children {
		s += " " + c.String()
	}
	return s + ")"
}
