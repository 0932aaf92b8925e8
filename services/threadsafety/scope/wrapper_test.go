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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/threadguard/services/threadsafety/tree"
	"github.com/AleutianAI/threadguard/services/threadsafety/tree/treetest"
)

func resolve(t *testing.T, root *tree.Node) *Map {
	t.Helper()
	m, err := NewResolver(Options{}).Resolve(root)
	require.NoError(t, err)
	return m
}

func TestWrapper_Detected(t *testing.T) {
	b := treetest.New()
	class := b.Class("TestMiddleware",
		b.Def("initialize", b.Params("app"),
			b.Ivasgn("@app", b.Lvar("app")),
			b.Ivasgn("@counter", b.Call(b.Const("Concurrent", "AtomicReference"), "new", b.Int("0"))),
			b.Ivasgn("@unsafe", b.Int("0")),
		),
		b.Def("call", b.Params("env"), b.Call(b.Ivar("@app"), "call", b.Lvar("env"))),
	)
	m := resolve(t, b.Program(class))

	w := m.Wrapper(class)
	require.NotNil(t, w)
	assert.Equal(t, "app", w.Param)
	assert.Equal(t, "@app", w.Field)
	assert.Equal(t, []string{"@counter"}, w.SafeFields)
	assert.True(t, w.Exempt("@app"))
	assert.True(t, w.Exempt("@counter"))
	assert.False(t, w.Exempt("@unsafe"))
	assert.Len(t, m.Wrappers(), 1)
	assert.Equal(t, "initialize", w.Constructor.Value())
	assert.Equal(t, "call", w.Call.Value())
}

func TestWrapper_ConstructorWithOptions(t *testing.T) {
	b := treetest.New()
	class := b.Class("TestMiddleware",
		b.Def("initialize", b.Params("app", "options"),
			b.Ivasgn("@app", b.Lvar("app")),
			b.Ivasgn("@options", b.Lvar("options")),
		),
		b.Def("call", b.Params("env")),
	)
	w := resolve(t, b.Program(class)).Wrapper(class)
	require.NotNil(t, w)
	assert.Equal(t, "@app", w.Field)
	assert.False(t, w.Exempt("@options"))
}

func TestWrapper_FieldAssignedAfterOtherStatements(t *testing.T) {
	b := treetest.New()
	class := b.Class("TestMiddleware",
		b.Def("initialize", b.Params("app"),
			b.Ivasgn("@started", b.Call(b.Const("Time"), "now")),
			b.Ivasgn("@app", b.Lvar("app")),
			b.Ivasgn("@copy", b.Lvar("app")),
		),
		b.Def("call", b.Params("env")),
	)
	w := resolve(t, b.Program(class)).Wrapper(class)
	require.NotNil(t, w)
	assert.Equal(t, "@app", w.Field)
	assert.False(t, w.Exempt("@started"))
	assert.False(t, w.Exempt("@copy"))
}

func TestWrapper_CallBeforeConstructor(t *testing.T) {
	b := treetest.New()
	class := b.Class("TestMiddleware",
		b.Def("call", b.Params("env")),
		b.Def("initialize", b.Params("app"), b.Ivasgn("@app", b.Lvar("app"))),
	)
	assert.NotNil(t, resolve(t, b.Program(class)).Wrapper(class))
}

func TestWrapper_NotDetected(t *testing.T) {
	tests := []struct {
		name  string
		class func(b *treetest.Builder) *tree.Node
	}{
		{
			name: "constructor only",
			class: func(b *treetest.Builder) *tree.Node {
				return b.Class("SomeClass", b.Def("initialize", b.Params("user"), b.Ivasgn("@user", b.Lvar("user"))))
			},
		},
		{
			name: "call only",
			class: func(b *treetest.Builder) *tree.Node {
				return b.Class("SomeClass", b.Def("call", b.Params("env"), b.Ivasgn("@env", b.Lvar("env"))))
			},
		},
		{
			name: "call without parameters",
			class: func(b *treetest.Builder) *tree.Node {
				return b.Class("SomeClass",
					b.Def("initialize", b.Params("user", "context"), b.Ivasgn("@user", b.Lvar("user"))),
					b.Def("call", nil, b.Ivar("@user")),
				)
			},
		},
		{
			name: "call with two parameters",
			class: func(b *treetest.Builder) *tree.Node {
				return b.Class("SomeClass",
					b.Def("initialize", b.Params("app"), b.Ivasgn("@app", b.Lvar("app"))),
					b.Def("call", b.Params("env", "user")),
				)
			},
		},
		{
			name: "parameter never stored",
			class: func(b *treetest.Builder) *tree.Node {
				return b.Class("SomeClass",
					b.Def("initialize", b.Params("app"), b.Ivasgn("@user", b.Call(b.Const("User"), "new"))),
					b.Def("call", b.Params("env")),
				)
			},
		},
		{
			name: "string with the parameter's name stored",
			class: func(b *treetest.Builder) *tree.Node {
				return b.Class("SomeClass",
					b.Def("initialize", b.Params("app"), b.Ivasgn("@app", b.Str("app"))),
					b.Def("call", b.Params("env")),
				)
			},
		},
		{
			name: "parameter stored only inside a block",
			class: func(b *treetest.Builder) *tree.Node {
				return b.Class("SomeClass",
					b.Def("initialize", b.Params("app"),
						b.BlockCall(nil, "tap", nil, b.Ivasgn("@app", b.Lvar("app"))),
					),
					b.Def("call", b.Params("env")),
				)
			},
		},
		{
			name: "namespaced class name",
			class: func(b *treetest.Builder) *tree.Node {
				return b.ClassNode(b.Const("Rack", "Timer"), nil,
					b.Def("initialize", b.Params("app"), b.Ivasgn("@app", b.Lvar("app"))),
					b.Def("call", b.Params("env")),
				)
			},
		},
		{
			name: "class with superclass",
			class: func(b *treetest.Builder) *tree.Node {
				return b.ClassNode(b.Const("Timer"), b.Const("Base"),
					b.Def("initialize", b.Params("app"), b.Ivasgn("@app", b.Lvar("app"))),
					b.Def("call", b.Params("env")),
				)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := treetest.New()
			class := tt.class(b)
			m := resolve(t, b.Program(class))
			assert.Nil(t, m.Wrapper(class))
			assert.Empty(t, m.Wrappers())
		})
	}
}

func TestWrapper_NestedClasses(t *testing.T) {
	b := treetest.New()
	middleware := func(name string) *tree.Node {
		return b.Class(name,
			b.Def("initialize", b.Params("app"), b.Ivasgn("@app", b.Lvar("app"))),
			b.Def("call", b.Params("env")),
		)
	}
	first := middleware("First")
	second := middleware("Second")
	root := b.Program(b.Module("Middlewares", first, second))

	m := resolve(t, root)
	require.Len(t, m.Wrappers(), 2)
	assert.Same(t, first, m.Wrappers()[0].Class)
	assert.Same(t, second, m.Wrappers()[1].Class)
}
