// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides validators for names that configuration and
// embedders hand to the rule engine.
//
// Configuration values end up compared against identifiers read from
// source, so a value that could never match (a stray `@`, whitespace, an
// operator) is almost always a typo. These validators reject such values
// at configuration time instead of letting a rule silently never fire.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// ruleIDPattern matches kebab-case rule identifiers: new-thread, dir-chdir.
	ruleIDPattern = regexp.MustCompile(`^[a-z][a-z0-9]*(-[a-z0-9]+)*$`)

	// methodNamePattern matches Ruby method names usable as a bare call,
	// including predicate, bang and setter suffixes.
	methodNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*[?!=]?$`)

	// fragmentPattern matches part of a Ruby variable name without sigil.
	fragmentPattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,64}$`)
)

// ValidateRuleID validates a rule identifier.
//
// Valid IDs are lowercase words of letters and digits joined by single
// hyphens, starting with a letter.
//
// Example:
//
//	if err := validation.ValidateRuleID(rule.ID()); err != nil {
//	    return nil, fmt.Errorf("register rule: %w", err)
//	}
func ValidateRuleID(id string) error {
	if id == "" {
		return fmt.Errorf("rule id cannot be empty")
	}
	if !ruleIDPattern.MatchString(id) {
		return fmt.Errorf("invalid rule id: %q (must be lowercase kebab-case)", id)
	}
	return nil
}

// ValidateRuleIDs validates several rule IDs and rejects duplicates.
// The error lists every offending ID.
func ValidateRuleIDs(ids []string) error {
	var invalid, duplicate []string
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if err := ValidateRuleID(id); err != nil {
			invalid = append(invalid, id)
			continue
		}
		if _, ok := seen[id]; ok {
			duplicate = append(duplicate, id)
			continue
		}
		seen[id] = struct{}{}
	}

	var problems []string
	if len(invalid) > 0 {
		problems = append(problems, fmt.Sprintf("invalid rule ids: %q", invalid))
	}
	if len(duplicate) > 0 {
		problems = append(problems, fmt.Sprintf("duplicate rule ids: %q", duplicate))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}

// ValidateMethodName validates a Ruby method name such as
// `before_action`, `valid?` or `name=`.
func ValidateMethodName(name string) error {
	if name == "" {
		return fmt.Errorf("method name cannot be empty")
	}
	if !methodNamePattern.MatchString(name) {
		return fmt.Errorf("invalid method name: %q", name)
	}
	return nil
}

// ValidateIdentifierFragment validates a substring of a variable name,
// given without its `@` sigil.
func ValidateIdentifierFragment(fragment string) error {
	if fragment == "" {
		return fmt.Errorf("identifier cannot be empty")
	}
	if strings.HasPrefix(fragment, "@") {
		return fmt.Errorf("invalid identifier: %q (omit the @ sigil)", fragment)
	}
	if !fragmentPattern.MatchString(fragment) {
		return fmt.Errorf("invalid identifier: %q (letters, digits and underscores only)", fragment)
	}
	return nil
}
