// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package scope classifies the execution context of every node in a tree.
//
// Description:
//
//	Instance variables touched from an instance method belong to one
//	object. The same syntax inside a singleton method, a `class << self`
//	body, a `class_methods do` block or a class_eval block touches state
//	of the class object itself, which every thread shares. The Resolver
//	makes that distinction once per tree so rules can ask for it by node.
//
//	The Resolver also recognizes "wrapper" classes: long-lived objects
//	built around a single wrapped dependency, the shape of a Rack
//	middleware.
//
// Thread Safety:
//
//	A Resolver and the Maps it returns are safe for concurrent use.
package scope

import "github.com/AleutianAI/threadguard/services/threadsafety/tree"

// Context is the execution-context classification of a node.
type Context uint8

const (
	// UnknownScope means no enclosing method-like context: top-level code
	// or a class body. Rules never report on it.
	UnknownScope Context = iota

	// InstanceScope means the code runs with an ordinary object as self.
	InstanceScope

	// ClassScope means the code runs with a class or module as self.
	ClassScope
)

// String returns the lowercase name of the context.
func (c Context) String() string {
	switch c {
	case InstanceScope:
		return "instance"
	case ClassScope:
		return "class"
	default:
		return "unknown"
	}
}

// Map holds the classification computed by Resolver.Resolve for one tree.
type Map struct {
	contexts map[*tree.Node]Context
	methods  map[*tree.Node]Context
	wrappers []*Wrapper
	byClass  map[*tree.Node]*Wrapper
}

// Scope returns the context n executes in. Nodes not part of the resolved
// tree are UnknownScope.
func (m *Map) Scope(n *tree.Node) Context {
	return m.contexts[n]
}

// Method returns the context the body of a Def or Defs node executes in.
// Any other node yields UnknownScope.
func (m *Map) Method(def *tree.Node) Context {
	return m.methods[def]
}

// Wrappers returns the wrapper classes found in the tree, in source order.
func (m *Map) Wrappers() []*Wrapper {
	return m.wrappers
}

// Wrapper returns the wrapper record for class, or nil when class is not
// a wrapper.
func (m *Map) Wrapper(class *tree.Node) *Wrapper {
	return m.byClass[class]
}

// Len returns the number of classified nodes.
func (m *Map) Len() int {
	return len(m.contexts)
}
