// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ruby

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/AleutianAI/threadguard/services/threadsafety/tree"
)

// tree-sitter-ruby node types the converter distinguishes.
const (
	nodeComment         = "comment"
	nodeError           = "ERROR"
	nodeBodyStatement   = "body_statement"
	nodeBlockBody       = "block_body"
	nodeClass           = "class"
	nodeModule          = "module"
	nodeSingletonClass  = "singleton_class"
	nodeSuperclass      = "superclass"
	nodeMethod          = "method"
	nodeSingletonMethod = "singleton_method"
	nodeCall            = "call"
	nodeMethodCall      = "method_call"
	nodeBlockArgument   = "block_argument"
	nodeBlock           = "block"
	nodeDoBlock         = "do_block"
	nodeLambda          = "lambda"
	nodeIdentifier      = "identifier"
	nodeConstant        = "constant"
	nodeScopeResolution = "scope_resolution"
	nodeSelf            = "self"
	nodeIvar            = "instance_variable"
	nodeCvar            = "class_variable"
	nodeGvar            = "global_variable"
	nodeAssignment      = "assignment"
	nodeOpAssignment    = "operator_assignment"
	nodeSimpleSymbol    = "simple_symbol"
	nodeDelimitedSymbol = "delimited_symbol"
	nodeHashKeySymbol   = "hash_key_symbol"
	nodeString          = "string"
	nodeStringContent   = "string_content"
	nodeInterpolation   = "interpolation"
	nodeInteger         = "integer"
	nodeArray           = "array"
	nodeHash            = "hash"
	nodePair            = "pair"
	nodeBegin           = "begin"
	nodeEnsure          = "ensure"
	nodeParenthesized   = "parenthesized_statements"
	nodeExceptionVar    = "exception_variable"

	nodeOptionalParam    = "optional_parameter"
	nodeSplatParam       = "splat_parameter"
	nodeHashSplatParam   = "hash_splat_parameter"
	nodeKeywordParam     = "keyword_parameter"
	nodeBlockParam       = "block_parameter"
	nodeDestructuredPar  = "destructured_parameter"
	nodeForwardParameter = "forward_parameter"
)

var literalTypes = map[string]bool{
	"nil":       true,
	"true":      true,
	"false":     true,
	"float":     true,
	"rational":  true,
	"complex":   true,
	"regex":     true,
	"character": true,
}

// converter turns one tree-sitter CST into the tree model. It is used
// for a single Parse call.
type converter struct {
	src      []byte
	path     string
	scope    *locals
	errors   []*SyntaxError
	comments []tree.Range
	count    int
}

func newConverter(src []byte, path string) *converter {
	return &converter{src: src, path: path}
}

// =============================================================================
// HELPERS
// =============================================================================

func (c *converter) text(n *sitter.Node) string {
	return string(c.src[n.StartByte():n.EndByte()])
}

func rangeOf(n *sitter.Node) tree.Range {
	return tree.Range{Start: int(n.StartByte()), End: int(n.EndByte())}
}

func (c *converter) node(spec tree.Spec) *tree.Node {
	c.count++
	return tree.New(spec)
}

// enter starts a local-variable scope and returns the function that
// leaves it. inherit keeps the enclosing names visible.
func (c *converter) enter(inherit bool) func() {
	saved := c.scope
	if inherit {
		c.scope = newLocals(saved)
	} else {
		c.scope = newLocals(nil)
	}
	return func() { c.scope = saved }
}

// namedChildren returns the named children of n, minus comments and
// children stored under one of the skipped field names.
func namedChildren(n *sitter.Node, skipFields ...string) []*sitter.Node {
	var out []*sitter.Node
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child == nil || !child.IsNamed() || child.Type() == nodeComment {
			continue
		}
		if len(skipFields) > 0 {
			field := n.FieldNameForChild(i)
			skip := false
			for _, f := range skipFields {
				if field == f {
					skip = true
					break
				}
			}
			if skip {
				continue
			}
		}
		out = append(out, child)
	}
	return out
}

// statements converts nodes in order, flattening body wrappers so that a
// definition's statements are direct children of the definition.
func (c *converter) statements(nodes []*sitter.Node) []*tree.Node {
	var out []*tree.Node
	for _, n := range nodes {
		switch n.Type() {
		case nodeBodyStatement, nodeBlockBody:
			out = append(out, c.statements(namedChildren(n))...)
		default:
			if conv := c.convert(n); conv != nil {
				out = append(out, conv)
			}
		}
	}
	return out
}

// other wraps n and its converted named children as KindOther.
func (c *converter) other(n *sitter.Node) *tree.Node {
	return c.node(tree.Spec{
		Kind:  tree.KindOther,
		Range: rangeOf(n),
		Body:  c.statements(namedChildren(n)),
	})
}

// =============================================================================
// CONVERSION
// =============================================================================

// program converts the CST root and collects syntax errors and comments.
func (c *converter) program(root *sitter.Node) *tree.Node {
	if root.HasError() {
		c.collectErrors(root)
	}
	c.collectComments(root)
	defer c.enter(false)()
	return c.node(tree.Spec{
		Kind:  tree.KindProgram,
		Range: tree.Range{Start: 0, End: len(c.src)},
		Body:  c.statements(namedChildren(root)),
	})
}

func (c *converter) collectErrors(n *sitter.Node) {
	if n.IsMissing() || n.Type() == nodeError {
		c.errors = append(c.errors, &SyntaxError{
			Path:    c.path,
			Range:   rangeOf(n),
			Line:    int(n.StartPoint().Row) + 1,
			Missing: n.IsMissing(),
			Token:   n.Type(),
		})
		if n.IsMissing() {
			return
		}
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if child := n.Child(i); child != nil && (child.HasError() || child.IsMissing()) {
			c.collectErrors(child)
		}
	}
}

func (c *converter) collectComments(n *sitter.Node) {
	if n.Type() == nodeComment {
		c.comments = append(c.comments, rangeOf(n))
		return
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if child := n.Child(i); child != nil {
			c.collectComments(child)
		}
	}
}

// convert maps one CST node. It returns nil for nodes with no
// counterpart (comments, tokens the parser invented).
func (c *converter) convert(n *sitter.Node) *tree.Node {
	if n == nil || n.IsMissing() || n.Type() == nodeComment {
		return nil
	}

	switch t := n.Type(); t {
	case nodeClass:
		return c.class(n)
	case nodeModule:
		return c.module(n)
	case nodeSingletonClass:
		return c.singletonClass(n)
	case nodeMethod, nodeSingletonMethod:
		return c.method(n)
	case nodeCall, nodeMethodCall:
		return c.call(n)
	case nodeLambda:
		return c.lambda(n)
	case nodeAssignment:
		return c.assignment(n)
	case nodeOpAssignment:
		return c.opAssignment(n)

	case nodeIdentifier:
		name := c.text(n)
		if c.scope.has(name) {
			return c.node(tree.Spec{Kind: tree.KindLvar, Value: name, Range: rangeOf(n)})
		}
		return c.node(tree.Spec{Kind: tree.KindCall, Value: name, Range: rangeOf(n)})
	case nodeConstant, nodeScopeResolution:
		return c.constant(n)
	case nodeSelf:
		return c.node(tree.Spec{Kind: tree.KindSelf, Range: rangeOf(n)})
	case nodeIvar:
		return c.node(tree.Spec{Kind: tree.KindIvar, Value: c.text(n), Range: rangeOf(n)})
	case nodeCvar:
		return c.node(tree.Spec{Kind: tree.KindCvar, Value: c.text(n), Range: rangeOf(n)})
	case nodeGvar:
		return c.node(tree.Spec{Kind: tree.KindGvar, Value: c.text(n), Range: rangeOf(n)})

	case nodeSimpleSymbol:
		return c.node(tree.Spec{Kind: tree.KindSym, Value: strings.TrimPrefix(c.text(n), ":"), Range: rangeOf(n)})
	case nodeHashKeySymbol:
		return c.node(tree.Spec{Kind: tree.KindSym, Value: c.text(n), Range: rangeOf(n)})
	case nodeDelimitedSymbol:
		return c.stringLike(n, tree.KindSym, tree.KindDSym)
	case nodeString:
		return c.stringLike(n, tree.KindStr, tree.KindDStr)
	case nodeInteger:
		return c.node(tree.Spec{Kind: tree.KindInt, Value: c.text(n), Range: rangeOf(n)})

	case nodeArray:
		return c.node(tree.Spec{Kind: tree.KindArray, Range: rangeOf(n), Body: c.statements(namedChildren(n))})
	case nodeHash:
		return c.node(tree.Spec{Kind: tree.KindHash, Range: rangeOf(n), Body: c.statements(namedChildren(n))})
	case nodePair:
		return c.node(tree.Spec{Kind: tree.KindPair, Range: rangeOf(n), Body: c.statements(namedChildren(n))})
	case nodeBlockArgument:
		return c.node(tree.Spec{Kind: tree.KindBlockPass, Range: rangeOf(n), Body: c.statements(namedChildren(n))})

	case nodeBegin, nodeEnsure, nodeParenthesized:
		return c.node(tree.Spec{Kind: tree.KindBegin, Range: rangeOf(n), Body: c.statements(namedChildren(n))})
	case nodeExceptionVar:
		c.declareIdentifiers(n)
		return c.other(n)

	default:
		if literalTypes[t] {
			return c.node(tree.Spec{Kind: tree.KindLiteral, Value: c.text(n), Range: rangeOf(n)})
		}
		return c.other(n)
	}
}

// constant converts `Foo`, `Foo::Bar` and `::Foo`.
func (c *converter) constant(n *sitter.Node) *tree.Node {
	if n.Type() != nodeScopeResolution {
		return c.node(tree.Spec{Kind: tree.KindConst, Value: c.text(n), Range: rangeOf(n)})
	}

	var scope *tree.Node
	if s := n.ChildByFieldName("scope"); s != nil {
		scope = c.convert(s)
	} else {
		start := int(n.StartByte())
		scope = c.node(tree.Spec{Kind: tree.KindCBase, Range: tree.Range{Start: start, End: start + 2}})
	}

	value := c.text(n)
	if name := n.ChildByFieldName("name"); name != nil {
		value = c.text(name)
	}
	return c.node(tree.Spec{Kind: tree.KindConst, Value: value, Range: rangeOf(n), Receiver: scope})
}

func (c *converter) class(n *sitter.Node) *tree.Node {
	var name, superclass *tree.Node
	if nn := n.ChildByFieldName("name"); nn != nil {
		name = c.constant(nn)
	}
	if sc := n.ChildByFieldName("superclass"); sc != nil {
		if sc.Type() == nodeSuperclass {
			if kids := namedChildren(sc); len(kids) > 0 {
				superclass = c.convert(kids[0])
			}
		} else {
			superclass = c.convert(sc)
		}
	}

	defer c.enter(false)()
	return c.node(tree.Spec{
		Kind:       tree.KindClass,
		Range:      rangeOf(n),
		Name:       name,
		Superclass: superclass,
		Body:       c.statements(namedChildren(n, "name", "superclass")),
	})
}

func (c *converter) module(n *sitter.Node) *tree.Node {
	var name *tree.Node
	if nn := n.ChildByFieldName("name"); nn != nil {
		name = c.constant(nn)
	}

	defer c.enter(false)()
	return c.node(tree.Spec{
		Kind:  tree.KindModule,
		Range: rangeOf(n),
		Name:  name,
		Body:  c.statements(namedChildren(n, "name")),
	})
}

func (c *converter) singletonClass(n *sitter.Node) *tree.Node {
	var target *tree.Node
	if v := n.ChildByFieldName("value"); v != nil {
		target = c.convert(v)
	}

	defer c.enter(false)()
	return c.node(tree.Spec{
		Kind:     tree.KindSClass,
		Range:    rangeOf(n),
		Receiver: target,
		Body:     c.statements(namedChildren(n, "value")),
	})
}

// method converts `def name` and `def obj.name`. The head is the
// signature line up to the end of the parameter list.
func (c *converter) method(n *sitter.Node) *tree.Node {
	kind := tree.KindDef
	var object *tree.Node
	if n.Type() == nodeSingletonMethod {
		kind = tree.KindDefs
		if o := n.ChildByFieldName("object"); o != nil {
			object = c.convert(o)
		}
	}

	name := ""
	head := rangeOf(n)
	if nn := n.ChildByFieldName("name"); nn != nil {
		name = c.text(nn)
		head.End = int(nn.EndByte())
	}

	defer c.enter(false)()

	var params *tree.Node
	if p := n.ChildByFieldName("parameters"); p != nil {
		params = c.params(p)
		head.End = int(p.EndByte())
	}

	return c.node(tree.Spec{
		Kind:     kind,
		Value:    name,
		Range:    rangeOf(n),
		Head:     head,
		Receiver: object,
		Params:   params,
		Body:     c.statements(namedChildren(n, "object", "name", "parameters")),
	})
}

// params converts a parameter list and declares every name it binds.
func (c *converter) params(n *sitter.Node) *tree.Node {
	var out []*tree.Node
	for _, p := range namedChildren(n) {
		if conv := c.param(p); conv != nil {
			out = append(out, conv)
		}
	}
	return c.node(tree.Spec{Kind: tree.KindParams, Range: rangeOf(n), Body: out})
}

func (c *converter) param(n *sitter.Node) *tree.Node {
	var kind tree.Kind
	switch n.Type() {
	case nodeIdentifier:
		name := c.text(n)
		c.scope.declare(name)
		return c.node(tree.Spec{Kind: tree.KindArg, Value: name, Range: rangeOf(n)})
	case nodeOptionalParam:
		kind = tree.KindOptArg
	case nodeKeywordParam:
		kind = tree.KindKwArg
	case nodeSplatParam, nodeHashSplatParam, nodeForwardParameter:
		kind = tree.KindRestArg
	case nodeBlockParam:
		kind = tree.KindBlockArg
	case nodeDestructuredPar:
		c.declareIdentifiers(n)
		return c.node(tree.Spec{Kind: tree.KindOther, Range: rangeOf(n)})
	default:
		// block-local `|x; y|` names arrive as bare identifiers in some
		// grammar versions and wrapped in others
		c.declareIdentifiers(n)
		return c.node(tree.Spec{Kind: tree.KindOther, Range: rangeOf(n)})
	}

	name := ""
	if nn := n.ChildByFieldName("name"); nn != nil {
		name = c.text(nn)
		c.scope.declare(name)
	}
	var body []*tree.Node
	if v := n.ChildByFieldName("value"); v != nil {
		if conv := c.convert(v); conv != nil {
			body = append(body, conv)
		}
	}
	return c.node(tree.Spec{Kind: kind, Value: name, Range: rangeOf(n), Body: body})
}

// declareIdentifiers declares every identifier directly or transitively
// under n, for destructuring forms.
func (c *converter) declareIdentifiers(n *sitter.Node) {
	if n.Type() == nodeIdentifier {
		c.scope.declare(c.text(n))
		return
	}
	for _, child := range namedChildren(n) {
		c.declareIdentifiers(child)
	}
}

// call converts a method call. Both the current grammar (a single `call`
// node with receiver, method, arguments and block fields) and the older
// one (`method_call` wrapping a receiver-only `call`) are accepted.
func (c *converter) call(n *sitter.Node) *tree.Node {
	recvNode := n.ChildByFieldName("receiver")
	methodNode := n.ChildByFieldName("method")
	argsNode := n.ChildByFieldName("arguments")
	blockNode := n.ChildByFieldName("block")

	if n.Type() == nodeMethodCall && methodNode != nil && methodNode.Type() == nodeCall {
		recvNode = methodNode.ChildByFieldName("receiver")
		methodNode = methodNode.ChildByFieldName("method")
	}

	var recv *tree.Node
	if recvNode != nil {
		recv = c.convert(recvNode)
	}

	name := "call"
	if methodNode != nil && methodNode.EndByte() > methodNode.StartByte() {
		name = c.text(methodNode)
	}

	safeNav := false
	if recvNode != nil && methodNode != nil && methodNode.StartByte() >= recvNode.EndByte() {
		safeNav = strings.Contains(string(c.src[recvNode.EndByte():methodNode.StartByte()]), "&.")
	}

	var args []*tree.Node
	if argsNode != nil {
		args = c.statements(namedChildren(argsNode))
	}

	head := rangeOf(n)
	if blockNode != nil {
		end := int(n.StartByte())
		for _, part := range []*sitter.Node{recvNode, methodNode, argsNode} {
			if part != nil && int(part.EndByte()) > end {
				end = int(part.EndByte())
			}
		}
		head.End = end
	}

	var block *tree.Node
	if blockNode != nil {
		block = c.block(blockNode)
	}

	return c.node(tree.Spec{
		Kind:      tree.KindCall,
		Value:     name,
		Range:     rangeOf(n),
		Head:      head,
		Receiver:  recv,
		Arguments: args,
		Block:     block,
		SafeNav:   safeNav,
	})
}

// block converts `{ |x| ... }` and `do |x| ... end`. Blocks see the
// enclosing locals.
func (c *converter) block(n *sitter.Node) *tree.Node {
	defer c.enter(true)()

	var params *tree.Node
	if p := n.ChildByFieldName("parameters"); p != nil {
		params = c.params(p)
	}
	return c.node(tree.Spec{
		Kind:   tree.KindBlock,
		Range:  rangeOf(n),
		Params: params,
		Body:   c.statements(namedChildren(n, "parameters")),
	})
}

// lambda converts `->(x) { ... }` into KindOther around its block body.
func (c *converter) lambda(n *sitter.Node) *tree.Node {
	defer c.enter(true)()

	var body []*tree.Node
	if p := n.ChildByFieldName("parameters"); p != nil {
		body = append(body, c.params(p))
	}
	for _, child := range namedChildren(n, "parameters") {
		if child.Type() == nodeBlock || child.Type() == nodeDoBlock {
			body = append(body, c.statements(namedChildren(child, "parameters"))...)
			continue
		}
		if conv := c.convert(child); conv != nil {
			body = append(body, conv)
		}
	}
	return c.node(tree.Spec{Kind: tree.KindOther, Range: rangeOf(n), Body: body})
}

// assignment converts `lhs = rhs`. Instance and local variable targets
// become Ivasgn and Lvasgn anchored on the name; other targets keep
// their shape under KindOther.
func (c *converter) assignment(n *sitter.Node) *tree.Node {
	left := n.ChildByFieldName("left")
	right := n.ChildByFieldName("right")
	if left == nil {
		return c.other(n)
	}

	switch left.Type() {
	case nodeIvar, nodeIdentifier:
		kind := tree.KindIvasgn
		if left.Type() == nodeIdentifier {
			kind = tree.KindLvasgn
			c.scope.declare(c.text(left))
		}
		var body []*tree.Node
		if conv := c.convert(right); conv != nil {
			body = append(body, conv)
		}
		return c.node(tree.Spec{
			Kind:  kind,
			Value: c.text(left),
			Range: rangeOf(n),
			Head:  rangeOf(left),
			Body:  body,
		})
	default:
		c.declareTargets(left)
		var body []*tree.Node
		for _, side := range []*sitter.Node{left, right} {
			if conv := c.convert(side); conv != nil {
				body = append(body, conv)
			}
		}
		return c.node(tree.Spec{Kind: tree.KindOther, Range: rangeOf(n), Body: body})
	}
}

// declareTargets declares the plain identifiers of a multiple-assignment
// target list. Attribute and index targets bind nothing.
func (c *converter) declareTargets(n *sitter.Node) {
	switch n.Type() {
	case nodeIdentifier:
		c.scope.declare(c.text(n))
	case "left_assignment_list", "destructured_left_assignment", "rest_assignment":
		for _, child := range namedChildren(n) {
			c.declareTargets(child)
		}
	}
}

// opAssignment converts `lhs op= rhs`. The target is a value-less
// Ivasgn or Lvasgn covering only the name.
func (c *converter) opAssignment(n *sitter.Node) *tree.Node {
	left := n.ChildByFieldName("left")
	right := n.ChildByFieldName("right")
	if left == nil {
		return c.other(n)
	}

	op := ""
	if o := n.ChildByFieldName("operator"); o != nil {
		op = strings.TrimSuffix(c.text(o), "=")
	} else if right != nil && right.StartByte() >= left.EndByte() {
		op = strings.TrimSuffix(strings.TrimSpace(string(c.src[left.EndByte():right.StartByte()])), "=")
	}

	var target *tree.Node
	switch left.Type() {
	case nodeIvar:
		target = c.node(tree.Spec{Kind: tree.KindIvasgn, Value: c.text(left), Range: rangeOf(left)})
	case nodeIdentifier:
		c.scope.declare(c.text(left))
		target = c.node(tree.Spec{Kind: tree.KindLvasgn, Value: c.text(left), Range: rangeOf(left)})
	default:
		target = c.convert(left)
	}
	if target == nil {
		target = c.node(tree.Spec{Kind: tree.KindOther, Range: rangeOf(left)})
	}

	value := c.convert(right)
	if value == nil {
		end := int(n.EndByte())
		value = c.node(tree.Spec{Kind: tree.KindOther, Range: tree.Range{Start: end, End: end}})
	}

	return c.node(tree.Spec{
		Kind:  tree.KindOpAsgn,
		Value: op,
		Range: rangeOf(n),
		Body:  []*tree.Node{target, value},
	})
}

// stringLike converts strings and delimited symbols. Without
// interpolation the node is plain with its unquoted content as Value;
// with interpolation the interpolated expressions become children.
func (c *converter) stringLike(n *sitter.Node, plain, interpolated tree.Kind) *tree.Node {
	var content strings.Builder
	var body []*tree.Node
	dynamic := false
	for _, child := range namedChildren(n) {
		switch child.Type() {
		case nodeStringContent:
			content.WriteString(c.text(child))
		case nodeInterpolation:
			dynamic = true
			body = append(body, c.statements(namedChildren(child))...)
		default:
			content.WriteString(c.text(child))
		}
	}

	if dynamic {
		return c.node(tree.Spec{Kind: interpolated, Value: c.text(n), Range: rangeOf(n), Body: body})
	}
	return c.node(tree.Spec{Kind: plain, Value: content.String(), Range: rangeOf(n)})
}
