// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package directive reads inline suppression comments.
//
// A comment of the form
//
//	# threadguard:disable new-thread, dir-chdir
//
// suppresses the named rules on its line. When the comment is the only
// thing on its line it applies to the next line instead. The name `all`
// suppresses every rule.
//
// Sources already annotated for RuboCop keep working. Cop names such as
// `ThreadSafety/NewThread` have the department prefix dropped and are
// converted to rule IDs. A `# rubocop:disable` at the end of a code line
// covers that line. On a line of its own it opens a region that lasts
// until a `# rubocop:enable` naming the same rule (or `all`), or to the end
// of the file.
//
// Anything after ` -- ` is a free-form reason and ignored.
package directive

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/AleutianAI/threadguard/services/threadsafety/tree"
)

// All is the rule name that suppresses every rule.
const All = "all"

type action uint8

const (
	disableLine action = iota
	disableRegion
	enableRegion
)

var prefixes = []struct {
	text string
	act  action
}{
	{"threadguard:disable", disableLine},
	{"rubocop:disable", disableRegion},
	{"rubocop:enable", enableRegion},
}

// region is a half-open line range [from, to) where rule is disabled.
type region struct {
	rule     string
	from, to int
}

// Set holds the suppressions of one source unit. The zero value and a
// nil *Set suppress nothing.
//
// Thread Safety: Safe for concurrent reads once built.
type Set struct {
	lineStarts []int
	byLine     map[int]map[string]struct{}
	regions    []region
}

// Parse builds the suppressions declared by comments in src.
//
// Inputs:
//
//	src      - The source the comments came from.
//	comments - Byte spans of comments, each starting at its `#`. Spans
//	           outside src are ignored. Order does not matter.
//
// Outputs:
//
//	*Set - Never nil.
func Parse(src []byte, comments []tree.Range) *Set {
	s := &Set{
		lineStarts: lineStarts(src),
		byLine:     make(map[int]map[string]struct{}),
	}

	ordered := make([]tree.Range, 0, len(comments))
	for _, r := range comments {
		if r.Start < 0 || r.End > len(src) || r.Start >= r.End {
			continue
		}
		ordered = append(ordered, r)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Start < ordered[j].Start })

	open := make(map[string]int)
	for _, r := range ordered {
		act, names := parseComment(string(src[r.Start:r.End]))
		if len(names) == 0 {
			continue
		}
		line := s.line(r.Start)
		alone := standalone(src[s.lineStarts[line]:r.Start])

		switch {
		case act == enableRegion:
			s.closeRegions(open, names, line)
		case act == disableRegion && alone:
			for _, name := range names {
				if _, ok := open[name]; !ok {
					open[name] = line
				}
			}
		default:
			if alone {
				line++
			}
			s.addLine(line, names)
		}
	}
	s.closeRegions(open, []string{All}, math.MaxInt)
	return s
}

// closeRegions ends the open regions for names at line. `all` ends them all.
func (s *Set) closeRegions(open map[string]int, names []string, line int) {
	for _, name := range names {
		for rule, from := range open {
			if name != All && name != rule {
				continue
			}
			s.regions = append(s.regions, region{rule: rule, from: from, to: line})
			delete(open, rule)
		}
	}
}

func (s *Set) addLine(line int, names []string) {
	set, ok := s.byLine[line]
	if !ok {
		set = make(map[string]struct{}, len(names))
		s.byLine[line] = set
	}
	for _, name := range names {
		set[name] = struct{}{}
	}
}

// Suppressed reports whether ruleID is disabled on the line containing
// offset.
func (s *Set) Suppressed(ruleID string, offset int) bool {
	if s == nil || (len(s.byLine) == 0 && len(s.regions) == 0) {
		return false
	}
	line := s.line(offset)
	if set, ok := s.byLine[line]; ok {
		if _, ok := set[All]; ok {
			return true
		}
		if _, ok := set[ruleID]; ok {
			return true
		}
	}
	for _, r := range s.regions {
		if line >= r.from && line < r.to && (r.rule == All || r.rule == ruleID) {
			return true
		}
	}
	return false
}

// Len returns the number of suppressions: lines carrying one plus
// disabled regions.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.byLine) + len(s.regions)
}

// line returns the 0-indexed line containing offset.
func (s *Set) line(offset int) int {
	i := sort.Search(len(s.lineStarts), func(i int) bool {
		return s.lineStarts[i] > offset
	})
	if i == 0 {
		return 0
	}
	return i - 1
}

func lineStarts(src []byte) []int {
	starts := []int{0}
	for i, b := range src {
		if b == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

func standalone(prefix []byte) bool {
	for _, b := range prefix {
		if b != ' ' && b != '\t' {
			return false
		}
	}
	return true
}

// parseComment returns the directive a comment carries and the rule IDs
// it names, or nil names.
func parseComment(text string) (action, []string) {
	text = strings.TrimSpace(strings.TrimPrefix(text, "#"))

	var (
		rest    string
		act     action
		matched bool
	)
	for _, p := range prefixes {
		if after, ok := strings.CutPrefix(text, p.text); ok {
			rest, act, matched = after, p.act, true
			break
		}
	}
	if !matched || (rest != "" && rest[0] != ' ' && rest[0] != '\t') {
		return act, nil
	}
	if before, _, found := strings.Cut(rest, " -- "); found {
		rest = before
	}

	var names []string
	for _, field := range strings.Split(rest, ",") {
		if name := normalize(strings.TrimSpace(field)); name != "" {
			names = append(names, name)
		}
	}
	return act, names
}

// normalize turns `ThreadSafety/NewThread` into `new-thread`. Names that
// are already rule IDs pass through lowercased.
func normalize(name string) string {
	if name == "" {
		return ""
	}
	if strings.EqualFold(name, All) {
		return All
	}
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}

	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
