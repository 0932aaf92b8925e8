// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scope

import (
	"fmt"

	"github.com/AleutianAI/threadguard/services/threadsafety/pattern"
	"github.com/AleutianAI/threadguard/services/threadsafety/tree"
)

// DefaultLifecycleCallbacks are the ActionDispatch callback registrations
// whose blocks run per request against a controller instance.
var DefaultLifecycleCallbacks = []string{
	"prepend_around_action",
	"prepend_before_action",
	"before_action",
	"append_before_action",
	"around_action",
	"append_around_action",
	"append_after_action",
	"after_action",
	"prepend_after_action",
}

// Options configures a Resolver.
type Options struct {
	// LifecycleCallbacks are receiverless calls whose blocks are evaluated
	// against an instance and are therefore never class scope. Nil means
	// DefaultLifecycleCallbacks; an empty non-nil slice disables the list.
	LifecycleCallbacks []string
}

// Resolver computes scope Maps. It holds only configuration.
type Resolver struct {
	callbacks map[string]struct{}
}

// NewResolver creates a Resolver.
//
// Inputs:
//
//	opts - Configuration. The zero value uses DefaultLifecycleCallbacks.
//
// Outputs:
//
//	*Resolver - Ready to use; safe for concurrent Resolve calls.
func NewResolver(opts Options) *Resolver {
	names := opts.LifecycleCallbacks
	if names == nil {
		names = DefaultLifecycleCallbacks
	}
	r := &Resolver{callbacks: make(map[string]struct{}, len(names))}
	for _, name := range names {
		r.callbacks[name] = struct{}{}
	}
	return r
}

var (
	// Class.new, Module.new, Struct.new, Data.define
	newLexicalScope = pattern.Or(
		pattern.Call("new").Recv(pattern.TopConst("Class", "Module", "Struct")),
		pattern.Call("define").Recv(pattern.TopConst("Data")),
	)

	// Example.class_eval / ::Example.class_exec
	classEval = pattern.Call("class_eval", "class_exec").Recv(pattern.TopConst())

	// receiverless or self-addressed call
	selfCall = pattern.Or(pattern.None(), pattern.Kind(tree.KindSelf))
)

// Resolve classifies every node of root in a single pre-order pass.
//
// Description:
//
//	Each node's context is derived from its ancestor chain, which the walk
//	maintains. Method definitions additionally get the context of their
//	own body (Map.Method). Wrapper classes are detected as their class
//	node is visited.
//
// Inputs:
//
//	root - The tree to classify.
//
// Outputs:
//
//	*Map  - The classification. Never nil when err is nil.
//	error - A *tree.MalformedTreeError if root is not a valid tree.
//
// Limitations:
//
//	Classification is purely lexical. A method that is only later made a
//	singleton via `extend` is classified InstanceScope.
func (r *Resolver) Resolve(root *tree.Node) (*Map, error) {
	m := &Map{
		contexts: make(map[*tree.Node]Context),
		methods:  make(map[*tree.Node]Context),
		byClass:  make(map[*tree.Node]*Wrapper),
	}
	promoted := make(map[*tree.Node]bool)

	err := tree.WalkStack(root, func(n *tree.Node, ancestors []*tree.Node) bool {
		m.contexts[n] = r.classify(ancestors, promoted)

		switch n.Kind() {
		case tree.KindDef, tree.KindDefs:
			inner := make([]*tree.Node, len(ancestors)+1)
			copy(inner, ancestors)
			inner[len(ancestors)] = n
			m.methods[n] = r.classify(inner, promoted)
		case tree.KindClass:
			if w := detectWrapper(n); w != nil {
				m.wrappers = append(m.wrappers, w)
				m.byClass[n] = w
			}
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("resolving scope: %w", err)
	}
	return m, nil
}

// classify derives the context of a node from its ancestors (root first,
// parent last).
func (r *Resolver) classify(anc []*tree.Node, promoted map[*tree.Node]bool) Context {
	if r.inMethodDefinition(anc) {
		return InstanceScope
	}
	if inSingletonDef(anc) ||
		inSingletonClassDef(anc) ||
		inClassMethodsBlock(anc) ||
		inClassMethodsModule(anc) ||
		inModuleFunction(anc, promoted) ||
		inClassEval(anc) ||
		inDefineSingletonMethod(anc) {
		return ClassScope
	}
	if nearestDef(anc) >= 0 {
		return InstanceScope
	}
	return UnknownScope
}

// blockCall returns the call a block at anc[i] is attached to, or nil.
func blockCall(anc []*tree.Node, i int) *tree.Node {
	if i == 0 || anc[i].Kind() != tree.KindBlock {
		return nil
	}
	if call := anc[i-1]; call.Block() == anc[i] {
		return call
	}
	return nil
}

func isNewLexicalScope(anc []*tree.Node, i int) bool {
	call := blockCall(anc, i)
	return call != nil && pattern.Matches(newLexicalScope, call)
}

// nearestDef returns the index of the closest Def or Defs ancestor that
// is not hidden behind a new lexical scope, or -1.
func nearestDef(anc []*tree.Node) int {
	for i := len(anc) - 1; i >= 0; i-- {
		if anc[i].Kind().IsMethodDefinition() {
			return i
		}
		if isNewLexicalScope(anc, i) {
			return -1
		}
	}
	return -1
}

// inMethodDefinition reports a `define_method` or lifecycle-callback block
// between the node and the nearest new lexical scope. Such bodies run
// against an instance even when written inside a class method.
func (r *Resolver) inMethodDefinition(anc []*tree.Node) bool {
	for i := len(anc) - 1; i >= 0; i-- {
		if isNewLexicalScope(anc, i) {
			return false
		}
		call := blockCall(anc, i)
		if call == nil || !pattern.Matches(pattern.Call().Recv(selfCall), call) {
			continue
		}
		if call.Value() == "define_method" {
			return true
		}
		if _, ok := r.callbacks[call.Value()]; ok {
			return true
		}
	}
	return false
}

// def self.foo
func inSingletonDef(anc []*tree.Node) bool {
	i := nearestDef(anc)
	return i >= 0 && anc[i].Kind() == tree.KindDefs
}

// class << self; def foo
func inSingletonClassDef(anc []*tree.Node) bool {
	i := nearestDef(anc)
	if i < 0 || anc[i].Kind() != tree.KindDef {
		return false
	}
	for j := i - 1; j >= 0; j-- {
		switch anc[j].Kind() {
		case tree.KindSClass:
			return true
		case tree.KindClass, tree.KindModule:
			return false
		}
	}
	return false
}

// class_methods do ... end
func inClassMethodsBlock(anc []*tree.Node) bool {
	for i := len(anc) - 1; i >= 0; i-- {
		if isNewLexicalScope(anc, i) {
			return false
		}
		if call := blockCall(anc, i); call != nil && call.IsCommand("class_methods") {
			return true
		}
	}
	return false
}

// module ClassMethods; def foo
func inClassMethodsModule(anc []*tree.Node) bool {
	i := nearestDef(anc)
	if i < 0 || anc[i].Kind() != tree.KindDef {
		return false
	}
	owner := enclosingContainer(anc, i)
	if owner < 0 || anc[owner].Kind() != tree.KindModule {
		return false
	}
	name := anc[owner].Name()
	return name != nil && name.Value() == "ClassMethods"
}

// enclosingContainer returns the index of the node whose body directly
// holds anc[i], looking through Begin groupings.
func enclosingContainer(anc []*tree.Node, i int) int {
	for j := i - 1; j >= 0; j-- {
		if anc[j].Kind() != tree.KindBegin {
			return j
		}
	}
	return -1
}

// inModuleFunction reports a nearest Def promoted by `module_function`,
// either a bare directive earlier in the same body or a
// `module_function :name` later in it.
func inModuleFunction(anc []*tree.Node, promoted map[*tree.Node]bool) bool {
	i := nearestDef(anc)
	if i < 0 || anc[i].Kind() != tree.KindDef {
		return false
	}
	def := anc[i]
	if v, ok := promoted[def]; ok {
		return v
	}
	v := false
	if i > 0 {
		v = promotedByModuleFunction(anc[i-1].Body(), def)
	}
	promoted[def] = v
	return v
}

func promotedByModuleFunction(siblings []*tree.Node, def *tree.Node) bool {
	pos := -1
	for k, s := range siblings {
		if s == def {
			pos = k
			break
		}
	}
	if pos < 0 {
		return false
	}
	for _, s := range siblings[:pos] {
		if s.IsCommand("module_function") && len(s.Arguments()) == 0 {
			return true
		}
	}
	for _, s := range siblings[pos+1:] {
		if !s.IsCommand("module_function") {
			continue
		}
		for _, arg := range s.Arguments() {
			if (arg.Kind() == tree.KindSym || arg.Kind() == tree.KindStr) && arg.Value() == def.Value() {
				return true
			}
		}
	}
	return false
}

// inClassEval reports that the innermost block around the node, with no
// method definition in between, belongs to `Const.class_eval` or
// `Const.class_exec`. Definitions nested in such a block define instance
// methods and are not class scope.
func inClassEval(anc []*tree.Node) bool {
	for i := len(anc) - 1; i >= 0; i-- {
		if anc[i].Kind().IsMethodDefinition() {
			return false
		}
		call := blockCall(anc, i)
		if call == nil {
			continue
		}
		return pattern.Matches(classEval, call)
	}
	return false
}

// define_singleton_method(:foo) do ... end
func inDefineSingletonMethod(anc []*tree.Node) bool {
	for i := len(anc) - 1; i >= 0; i-- {
		if isNewLexicalScope(anc, i) {
			return false
		}
		if call := blockCall(anc, i); call != nil && call.IsCall("define_singleton_method") {
			return true
		}
	}
	return false
}
