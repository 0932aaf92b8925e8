// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateRuleID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"single word", "panics", false},
		{"kebab", "rack-middleware-instance-variable", false},
		{"with digit", "rule2-x", false},

		{"empty", "", true},
		{"uppercase", "NewThread", true},
		{"cop name", "ThreadSafety/NewThread", true},
		{"leading hyphen", "-thread", true},
		{"double hyphen", "new--thread", true},
		{"trailing hyphen", "new-", true},
		{"underscore", "new_thread", true},
		{"starts with digit", "2x", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRuleID(tt.id)
			assert.Equal(t, tt.wantErr, err != nil, "ValidateRuleID(%q) = %v", tt.id, err)
		})
	}
}

func TestValidateRuleIDs(t *testing.T) {
	tests := []struct {
		name    string
		ids     []string
		wantErr string
	}{
		{"all valid", []string{"new-thread", "dir-chdir"}, ""},
		{"empty slice", nil, ""},
		{"one invalid", []string{"new-thread", "Bad"}, "invalid rule ids"},
		{"duplicate", []string{"new-thread", "new-thread"}, "duplicate rule ids"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRuleIDs(tt.ids)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestValidateMethodName(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		wantErr bool
	}{
		{"plain", "before_action", false},
		{"predicate", "valid?", false},
		{"bang", "save!", false},
		{"setter", "name=", false},
		{"capitalized", "Integer", false},

		{"empty", "", true},
		{"space", "before action", true},
		{"operator", "+", true},
		{"double suffix", "x?!", true},
		{"leading digit", "1st", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMethodName(tt.method)
			assert.Equal(t, tt.wantErr, err != nil, "ValidateMethodName(%q) = %v", tt.method, err)
		})
	}
}

func TestValidateIdentifierFragment(t *testing.T) {
	tests := []struct {
		name     string
		fragment string
		wantErr  bool
	}{
		{"word", "options", false},
		{"digits", "2", false},
		{"underscore", "_cache", false},

		{"empty", "", true},
		{"sigil", "@options", true},
		{"space", "a b", true},
		{"dash", "a-b", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIdentifierFragment(tt.fragment)
			assert.Equal(t, tt.wantErr, err != nil, "ValidateIdentifierFragment(%q) = %v", tt.fragment, err)
		})
	}
}
