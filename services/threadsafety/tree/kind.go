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

// Kind tags the syntactic variant of a Node.
type Kind uint8

const (
	// KindInvalid is the zero value and never appears in a well-formed tree.
	KindInvalid Kind = iota

	// KindProgram is the root of a source unit. Body holds top-level statements.
	KindProgram

	// KindBegin groups statements (begin/ensure/rescue clauses, parenthesized bodies).
	KindBegin

	// KindClass is `class Name < Super`. Name and Superclass slots, Body.
	KindClass

	// KindModule is `module Name`. Name slot, Body.
	KindModule

	// KindSClass is `class << target`. Receiver holds the target, Body.
	KindSClass

	// KindDef is an instance method definition. Value is the method name.
	KindDef

	// KindDefs is a singleton method definition (`def self.x`). Receiver holds the object.
	KindDefs

	// KindParams is a parameter list. Body holds the parameters.
	KindParams

	// KindArg is a required positional parameter.
	KindArg

	// KindOptArg is an optional positional parameter.
	KindOptArg

	// KindRestArg is a splat parameter.
	KindRestArg

	// KindKwArg is a keyword parameter.
	KindKwArg

	// KindBlockArg is a `&block` parameter.
	KindBlockArg

	// KindCall is a method call. Value is the method name.
	KindCall

	// KindBlock is the block attached to a call. Params slot, Body.
	KindBlock

	// KindBlockPass is a `&expr` call argument. Body holds the expression, if any.
	KindBlockPass

	// KindConst is a constant reference. Receiver holds the scope (Const or CBase), if any.
	KindConst

	// KindCBase is the leading `::` of a top-level constant reference.
	KindCBase

	// KindSelf is `self`.
	KindSelf

	// KindIvar is an instance variable read.
	KindIvar

	// KindIvasgn is an instance variable write. Body holds the value unless
	// the node is the target of an operator assignment.
	KindIvasgn

	// KindLvar is a local variable read.
	KindLvar

	// KindLvasgn is a local variable write.
	KindLvasgn

	// KindGvar is a global variable read.
	KindGvar

	// KindCvar is a class variable read.
	KindCvar

	// KindOpAsgn is `target op= value`. Value is the operator; Body is [target, value].
	KindOpAsgn

	// KindSym is a plain symbol literal. Value excludes the leading colon.
	KindSym

	// KindStr is a plain string literal. Value is the unquoted content.
	KindStr

	// KindDSym is an interpolated symbol.
	KindDSym

	// KindDStr is an interpolated string.
	KindDStr

	// KindInt is an integer literal.
	KindInt

	// KindLiteral is any other literal (nil, true, false, float, regexp...).
	KindLiteral

	// KindArray is an array literal.
	KindArray

	// KindHash is a hash literal.
	KindHash

	// KindPair is a hash or keyword-argument pair.
	KindPair

	// KindOther is any construct the rules do not distinguish. Children are kept.
	KindOther
)

var kindNames = [...]string{
	KindInvalid:   "invalid",
	KindProgram:   "program",
	KindBegin:     "begin",
	KindClass:     "class",
	KindModule:    "module",
	KindSClass:    "sclass",
	KindDef:       "def",
	KindDefs:      "defs",
	KindParams:    "params",
	KindArg:       "arg",
	KindOptArg:    "optarg",
	KindRestArg:   "restarg",
	KindKwArg:     "kwarg",
	KindBlockArg:  "blockarg",
	KindCall:      "call",
	KindBlock:     "block",
	KindBlockPass: "block_pass",
	KindConst:     "const",
	KindCBase:     "cbase",
	KindSelf:      "self",
	KindIvar:      "ivar",
	KindIvasgn:    "ivasgn",
	KindLvar:      "lvar",
	KindLvasgn:    "lvasgn",
	KindGvar:      "gvar",
	KindCvar:      "cvar",
	KindOpAsgn:    "op_asgn",
	KindSym:       "sym",
	KindStr:       "str",
	KindDSym:      "dsym",
	KindDStr:      "dstr",
	KindInt:       "int",
	KindLiteral:   "literal",
	KindArray:     "array",
	KindHash:      "hash",
	KindPair:      "pair",
	KindOther:     "other",
}

// String returns the short lowercase name of the kind.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// IsMethodDefinition reports whether k is Def or Defs.
func (k Kind) IsMethodDefinition() bool {
	return k == KindDef || k == KindDefs
}

// IsContainer reports whether nodes of kind k hold a statement body that
// may contain method definitions.
func (k Kind) IsContainer() bool {
	switch k {
	case KindProgram, KindBegin, KindClass, KindModule, KindSClass, KindBlock:
		return true
	default:
		return false
	}
}
