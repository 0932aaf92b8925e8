// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pattern matches tree nodes against declarative structural patterns.
//
// Description:
//
//	A Pattern is plain data: a set of acceptable kinds and values plus
//	optional constraints on the receiver, arguments and children. Rules
//	declare what a hazardous call looks like instead of hand-writing the
//	traversal that recognizes it.
//
//	    // Thread.new / ::Thread.fork / Thread&.start, any arguments
//	    p := pattern.Call("new", "fork", "start").Recv(pattern.TopConst("Thread"))
//	    if res, ok := pattern.Match(p, node); ok { ... }
//
//	Patterns are immutable values: every refinement method returns a
//	modified copy and leaves the receiver untouched.
//
// Thread Safety:
//
//	Patterns and Match are safe for concurrent use.
package pattern

import "github.com/AleutianAI/threadguard/services/threadsafety/tree"

type op uint8

const (
	opNode op = iota
	opAny
	opRest
	opNone
	opOr
	opRef
)

// Pattern is a structural template matched against a *tree.Node.
type Pattern struct {
	op      op
	kinds   []tree.Kind
	values  []string
	capture string
	alts    []Pattern
	ref     string

	recv     *Pattern
	args     []Pattern
	argsSet  bool
	children []Pattern
	kidsSet  bool
	block    *bool
	safeNav  *bool
}

// Kind matches a node of any of the given kinds.
func Kind(kinds ...tree.Kind) Pattern {
	return Pattern{op: opNode, kinds: append([]tree.Kind(nil), kinds...)}
}

// Call matches a call to any of the given methods. With no methods, any call.
func Call(methods ...string) Pattern {
	return Kind(tree.KindCall).Value(methods...)
}

// Any matches exactly one node of any shape.
func Any() Pattern {
	return Pattern{op: opAny}
}

// Rest matches zero or more nodes. Only meaningful inside Args or Children;
// elsewhere it behaves like Any.
func Rest() Pattern {
	return Pattern{op: opRest}
}

// None matches an absent slot, e.g. a call without receiver.
func None() Pattern {
	return Pattern{op: opNone}
}

// Or matches the first alternative that succeeds. Captures of failed
// alternatives are discarded; the winning alternative's captures are kept.
func Or(alts ...Pattern) Pattern {
	return Pattern{op: opOr, alts: append([]Pattern(nil), alts...)}
}

// Ref matches a node whose Value equals the Value of the node already
// captured under name. It never matches when name is unbound. Use OfKind
// to also restrict the node's kind.
func Ref(name string) Pattern {
	return Pattern{op: opRef, ref: name}
}

// TopConst matches a constant with one of the given names that is either
// unscoped (`Thread`) or explicitly top-level (`::Thread`). With no names,
// any such constant matches.
func TopConst(names ...string) Pattern {
	return Kind(tree.KindConst).Value(names...).Recv(Or(None(), Kind(tree.KindCBase)))
}

// Value restricts the node's Value to one of values. With no values the
// restriction is removed.
func (p Pattern) Value(values ...string) Pattern {
	p.values = append([]string(nil), values...)
	return p
}

// OfKind restricts the node's kind to one of kinds. With no kinds the
// restriction is removed.
func (p Pattern) OfKind(kinds ...tree.Kind) Pattern {
	p.kinds = append([]tree.Kind(nil), kinds...)
	return p
}

// Capture binds the matched node (or node sequence, for Rest) to name.
func (p Pattern) Capture(name string) Pattern {
	p.capture = name
	return p
}

// Recv constrains the receiver slot. Use None() to require no receiver.
func (p Pattern) Recv(r Pattern) Pattern {
	p.recv = &r
	return p
}

// Args constrains the argument list positionally. Args() with no patterns
// requires an empty list; use Rest() to allow trailing arguments.
func (p Pattern) Args(args ...Pattern) Pattern {
	p.args = append([]Pattern{}, args...)
	p.argsSet = true
	return p
}

// Children constrains Children() positionally, with the same rules as Args.
func (p Pattern) Children(children ...Pattern) Pattern {
	p.children = append([]Pattern{}, children...)
	p.kidsSet = true
	return p
}

// WithBlock requires (true) or forbids (false) an attached block or
// block-pass argument.
func (p Pattern) WithBlock(want bool) Pattern {
	p.block = &want
	return p
}

// SafeNav requires (true) or forbids (false) `&.` call syntax.
func (p Pattern) SafeNav(want bool) Pattern {
	p.safeNav = &want
	return p
}
