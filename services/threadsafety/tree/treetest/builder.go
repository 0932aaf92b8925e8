// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package treetest builds syntax trees by hand for tests.
//
// Every node a Builder creates gets a distinct synthetic Range, so tests
// can assert which node a diagnostic is anchored on without real source.
// Calls with a block and assignments get a HeadRange strictly inside
// their Range.
package treetest

import "github.com/AleutianAI/threadguard/services/threadsafety/tree"

// Builder creates nodes with unique synthetic ranges. Not safe for
// concurrent use.
type Builder struct {
	next int
}

// New returns a Builder.
func New() *Builder {
	return &Builder{}
}

func (b *Builder) span() (tree.Range, tree.Range) {
	b.next++
	start := b.next * 100
	return tree.Range{Start: start, End: start + 50}, tree.Range{Start: start, End: start + 10}
}

func (b *Builder) node(spec tree.Spec, narrowHead bool) *tree.Node {
	rng, head := b.span()
	spec.Range = rng
	if narrowHead {
		spec.Head = head
	}
	return tree.New(spec)
}

// Program wraps top-level statements.
func (b *Builder) Program(body ...*tree.Node) *tree.Node {
	return b.node(tree.Spec{Kind: tree.KindProgram, Body: body}, false)
}

// Const builds an unscoped constant reference, or `A::B` style names when
// several are given.
func (b *Builder) Const(names ...string) *tree.Node {
	var scope *tree.Node
	for _, name := range names {
		scope = b.node(tree.Spec{Kind: tree.KindConst, Value: name, Receiver: scope}, false)
	}
	return scope
}

// TopConst builds `::Name`.
func (b *Builder) TopConst(name string) *tree.Node {
	cbase := b.node(tree.Spec{Kind: tree.KindCBase}, false)
	return b.node(tree.Spec{Kind: tree.KindConst, Value: name, Receiver: cbase}, false)
}

// Class builds `class Name ... end`.
func (b *Builder) Class(name string, body ...*tree.Node) *tree.Node {
	return b.node(tree.Spec{Kind: tree.KindClass, Name: b.Const(name), Body: body}, false)
}

// ClassNode builds a class with explicit name and superclass nodes.
func (b *Builder) ClassNode(name, superclass *tree.Node, body ...*tree.Node) *tree.Node {
	return b.node(tree.Spec{Kind: tree.KindClass, Name: name, Superclass: superclass, Body: body}, false)
}

// Module builds `module Name ... end`.
func (b *Builder) Module(name string, body ...*tree.Node) *tree.Node {
	return b.node(tree.Spec{Kind: tree.KindModule, Name: b.Const(name), Body: body}, false)
}

// SClass builds `class << self ... end`.
func (b *Builder) SClass(body ...*tree.Node) *tree.Node {
	self := b.node(tree.Spec{Kind: tree.KindSelf}, false)
	return b.node(tree.Spec{Kind: tree.KindSClass, Receiver: self, Body: body}, false)
}

// Params builds a parameter list of required positional parameters.
func (b *Builder) Params(names ...string) *tree.Node {
	params := make([]*tree.Node, 0, len(names))
	for _, name := range names {
		params = append(params, b.node(tree.Spec{Kind: tree.KindArg, Value: name}, false))
	}
	return b.node(tree.Spec{Kind: tree.KindParams, Body: params}, false)
}

// Def builds `def name(params) body end`. params may be nil.
func (b *Builder) Def(name string, params *tree.Node, body ...*tree.Node) *tree.Node {
	return b.node(tree.Spec{Kind: tree.KindDef, Value: name, Params: params, Body: body}, true)
}

// Defs builds `def self.name(params) body end`.
func (b *Builder) Defs(name string, params *tree.Node, body ...*tree.Node) *tree.Node {
	self := b.node(tree.Spec{Kind: tree.KindSelf}, false)
	return b.node(tree.Spec{Kind: tree.KindDefs, Value: name, Receiver: self, Params: params, Body: body}, true)
}

// Call builds `recv.method(args)`. recv may be nil.
func (b *Builder) Call(recv *tree.Node, method string, args ...*tree.Node) *tree.Node {
	return b.node(tree.Spec{Kind: tree.KindCall, Value: method, Receiver: recv, Arguments: args}, false)
}

// SafeCall builds `recv&.method(args)`.
func (b *Builder) SafeCall(recv *tree.Node, method string, args ...*tree.Node) *tree.Node {
	return b.node(tree.Spec{Kind: tree.KindCall, Value: method, Receiver: recv, Arguments: args, SafeNav: true}, false)
}

// BlockCall builds `recv.method(args) { body }`.
func (b *Builder) BlockCall(recv *tree.Node, method string, args []*tree.Node, body ...*tree.Node) *tree.Node {
	block := b.node(tree.Spec{Kind: tree.KindBlock, Body: body}, false)
	return b.node(tree.Spec{Kind: tree.KindCall, Value: method, Receiver: recv, Arguments: args, Block: block}, true)
}

// BlockPass builds a `&name` argument.
func (b *Builder) BlockPass(name string) *tree.Node {
	return b.node(tree.Spec{Kind: tree.KindBlockPass, Body: []*tree.Node{b.Lvar(name)}}, false)
}

// Ivar builds an instance variable read.
func (b *Builder) Ivar(name string) *tree.Node {
	return b.node(tree.Spec{Kind: tree.KindIvar, Value: name}, false)
}

// Ivasgn builds `@name = value`.
func (b *Builder) Ivasgn(name string, value *tree.Node) *tree.Node {
	return b.node(tree.Spec{Kind: tree.KindIvasgn, Value: name, Body: []*tree.Node{value}}, true)
}

// OrAsgn builds `@name ||= value`.
func (b *Builder) OrAsgn(name string, value *tree.Node) *tree.Node {
	target := b.node(tree.Spec{Kind: tree.KindIvasgn, Value: name}, false)
	return b.node(tree.Spec{Kind: tree.KindOpAsgn, Value: "||", Body: []*tree.Node{target, value}}, false)
}

// Lvar builds a local variable read.
func (b *Builder) Lvar(name string) *tree.Node {
	return b.node(tree.Spec{Kind: tree.KindLvar, Value: name}, false)
}

// Sym builds `:name`.
func (b *Builder) Sym(name string) *tree.Node {
	return b.node(tree.Spec{Kind: tree.KindSym, Value: name}, false)
}

// Str builds a plain string literal.
func (b *Builder) Str(s string) *tree.Node {
	return b.node(tree.Spec{Kind: tree.KindStr, Value: s}, false)
}

// Int builds an integer literal.
func (b *Builder) Int(s string) *tree.Node {
	return b.node(tree.Spec{Kind: tree.KindInt, Value: s}, false)
}
