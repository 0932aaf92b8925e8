// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pattern

import "github.com/AleutianAI/threadguard/services/threadsafety/tree"

// Result maps capture names to the nodes they matched.
type Result struct {
	captures map[string][]*tree.Node
}

// Get returns the first node bound to name, or nil.
func (r Result) Get(name string) *tree.Node {
	if nodes := r.captures[name]; len(nodes) > 0 {
		return nodes[0]
	}
	return nil
}

// All returns every node bound to name. For a Rest capture this is the
// matched sequence, possibly empty.
func (r Result) All(name string) []*tree.Node {
	return r.captures[name]
}

// Has reports whether name was bound, even to an empty sequence.
func (r Result) Has(name string) bool {
	_, ok := r.captures[name]
	return ok
}

func (r Result) clone() Result {
	c := Result{captures: make(map[string][]*tree.Node, len(r.captures))}
	for k, v := range r.captures {
		c.captures[k] = v
	}
	return c
}

func (r Result) bind(name string, nodes ...*tree.Node) {
	if name != "" {
		r.captures[name] = nodes
	}
}

// Match tests n against p.
//
// Description:
//
//	Matching is structural and order-sensitive for Args and Children.
//	A nil n (an absent slot) only matches None, or an Or containing None.
//	No match is reported as ok == false; Match never panics or errors.
//
// Outputs:
//
//	Result - captures, valid only when ok is true.
//	bool   - whether n matched.
func Match(p Pattern, n *tree.Node) (Result, bool) {
	res := Result{captures: make(map[string][]*tree.Node)}
	out, ok := match(p, n, res)
	if !ok {
		return Result{}, false
	}
	return out, true
}

// Matches is Match without captures.
func Matches(p Pattern, n *tree.Node) bool {
	_, ok := Match(p, n)
	return ok
}

func match(p Pattern, n *tree.Node, res Result) (Result, bool) {
	switch p.op {
	case opNone:
		if n != nil {
			return res, false
		}
		return res, true

	case opAny, opRest:
		if n == nil {
			return res, false
		}
		res = res.clone()
		res.bind(p.capture, n)
		return res, true

	case opOr:
		for _, alt := range p.alts {
			if out, ok := match(alt, n, res); ok {
				if p.capture != "" && n != nil {
					out = out.clone()
					out.bind(p.capture, n)
				}
				return out, true
			}
		}
		return res, false

	case opRef:
		bound := res.Get(p.ref)
		if n == nil || bound == nil || bound.Value() != n.Value() {
			return res, false
		}
		if len(p.kinds) > 0 && !containsKind(p.kinds, n.Kind()) {
			return res, false
		}
		res = res.clone()
		res.bind(p.capture, n)
		return res, true
	}

	if n == nil {
		return res, false
	}
	if len(p.kinds) > 0 && !containsKind(p.kinds, n.Kind()) {
		return res, false
	}
	if len(p.values) > 0 && !containsString(p.values, n.Value()) {
		return res, false
	}
	if p.block != nil && n.HasBlock() != *p.block {
		return res, false
	}
	if p.safeNav != nil && n.SafeNav() != *p.safeNav {
		return res, false
	}

	var ok bool
	if p.recv != nil {
		if res, ok = match(*p.recv, n.Receiver(), res); !ok {
			return res, false
		}
	}
	if p.argsSet {
		if res, ok = matchSeq(p.args, n.Arguments(), res); !ok {
			return res, false
		}
	}
	if p.kidsSet {
		if res, ok = matchSeq(p.children, n.Children(), res); !ok {
			return res, false
		}
	}

	res = res.clone()
	res.bind(p.capture, n)
	return res, true
}

// matchSeq matches a positional pattern list. Rest tries the shortest
// span first and grows it until the remainder matches.
func matchSeq(ps []Pattern, nodes []*tree.Node, res Result) (Result, bool) {
	if len(ps) == 0 {
		return res, len(nodes) == 0
	}

	head := ps[0]
	if head.op == opRest {
		for k := 0; k <= len(nodes); k++ {
			attempt := res.clone()
			attempt.bind(head.capture, nodes[:k:k]...)
			if out, ok := matchSeq(ps[1:], nodes[k:], attempt); ok {
				return out, true
			}
		}
		return res, false
	}

	if len(nodes) == 0 {
		return res, false
	}
	out, ok := match(head, nodes[0], res)
	if !ok {
		return res, false
	}
	return matchSeq(ps[1:], nodes[1:], out)
}

func containsKind(kinds []tree.Kind, k tree.Kind) bool {
	for _, want := range kinds {
		if want == k {
			return true
		}
	}
	return false
}

func containsString(values []string, s string) bool {
	for _, want := range values {
		if want == s {
			return true
		}
	}
	return false
}
