// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package report

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/threadguard/services/threadsafety/tree"
)

func TestReporter_PreservesOrder(t *testing.T) {
	r := NewReporter()
	r.Add("b-rule", []Diagnostic{
		{Message: "second", Range: tree.Range{Start: 20, End: 25}},
		{Message: "first", Range: tree.Range{Start: 1, End: 5}},
	})
	r.Add("a-rule", []Diagnostic{{Message: "third", Range: tree.Range{Start: 0, End: 1}}})

	got := r.Diagnostics()
	require.Len(t, got, 3)
	assert.Equal(t, []string{"second", "first", "third"}, []string{got[0].Message, got[1].Message, got[2].Message})
	assert.Equal(t, "b-rule", got[0].RuleID)
	assert.Equal(t, "a-rule", got[2].RuleID)
}

func TestReporter_KeepsExplicitRuleID(t *testing.T) {
	r := NewReporter()
	r.Add("outer", []Diagnostic{{RuleID: "inner", Message: "m"}})
	assert.Equal(t, "inner", r.Diagnostics()[0].RuleID)
}

func TestReporter_DiagnosticsIsCopy(t *testing.T) {
	r := NewReporter()
	r.Add("rule", []Diagnostic{{Message: "m"}})

	got := r.Diagnostics()
	got[0].Message = "changed"
	assert.Equal(t, "m", r.Diagnostics()[0].Message)
}

func TestReporter_Fail(t *testing.T) {
	cause := errors.New("boom")
	r := NewReporter()
	r.Add("ok-rule", []Diagnostic{{Message: "m"}})
	r.Fail("bad-rule", cause)

	rep := r.Report("run-1", "app.rb")
	assert.Equal(t, "run-1", rep.RunID)
	assert.Equal(t, "app.rb", rep.Path)
	assert.Len(t, rep.Diagnostics, 1)
	require.Len(t, rep.Errors, 1)
	assert.Equal(t, "bad-rule", rep.Errors[0].RuleID)

	err := rep.Err()
	require.Error(t, err)
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "rule bad-rule: boom")
}

func TestReport_ErrNilWithoutFailures(t *testing.T) {
	rep := NewReporter().Report("", "")
	assert.NoError(t, rep.Err())
	assert.NotNil(t, rep.Diagnostics)
	assert.Empty(t, rep.Diagnostics)
}

func TestReporter_Filter(t *testing.T) {
	r := NewReporter()
	r.Add("keep", []Diagnostic{{Message: "a"}})
	r.Add("drop", []Diagnostic{{Message: "b"}})
	r.Add("keep", []Diagnostic{{Message: "c"}})

	r.Filter(func(d Diagnostic) bool { return d.RuleID == "keep" })

	got := r.Diagnostics()
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Message)
	assert.Equal(t, "c", got[1].Message)
}

func TestDiagnostic_String(t *testing.T) {
	d := Diagnostic{RuleID: "new-thread", Message: "Avoid it.", Range: tree.Range{Start: 3, End: 9}}
	assert.Equal(t, "3:9 new-thread: Avoid it.", d.String())
}
