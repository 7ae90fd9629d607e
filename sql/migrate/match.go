// Copyright 2023-present The Strata Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package migrate

import "sort"

// A MatchKind classifies the relation between a local migration and the
// applied migration of the same name.
type MatchKind int

const (
	// MatchApplied: present in both sets with agreeing content hashes.
	MatchApplied MatchKind = iota
	// MatchVariant: present in both sets with disagreeing content hashes.
	MatchVariant
	// MatchDivergent: present only in the applied set.
	MatchDivergent
	// MatchPending: present only in the local set.
	MatchPending
)

// String implements fmt.Stringer.
func (k MatchKind) String() string {
	switch k {
	case MatchApplied:
		return "applied"
	case MatchVariant:
		return "variant"
	case MatchDivergent:
		return "divergent"
	default:
		return "pending"
	}
}

// A Match pairs a local migration with its applied counterpart. Local is nil
// for divergent matches and Applied is nil for pending ones.
type Match struct {
	Kind    MatchKind
	Local   *Migration
	Applied *Migration
}

// Name returns the shared migration name of the pair.
func (m Match) Name() string {
	if m.Local != nil {
		return m.Local.Name
	}
	return m.Applied.Name
}

// Reversible reports whether a down step for this match could execute: the
// applied record's down SQL is authoritative for what is in the database, with
// the local file as fallback for pairs whose tracking row stored none.
func (m Match) Reversible() bool {
	switch m.Kind {
	case MatchPending:
		return m.Local.Reversible()
	case MatchDivergent:
		return m.Applied.Reversible()
	default:
		return m.Applied.Reversible() || m.Local.Reversible()
	}
}

// BestDown returns the record whose down SQL reverses what is actually in the
// database: the applied record when it stored one, else the local file.
func (m Match) BestDown() *Migration {
	if m.Applied == nil {
		return m.Local
	}
	if !m.Applied.Reversible() && m.Local != nil && m.Local.Reversible() {
		return m.Local
	}
	return m.Applied
}

// hashEq reports whether two optional content hashes agree. Two absent hashes
// agree; an absent hash against a recorded one does not, so rows written
// outside the tool surface as variants.
func hashEq(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Matches pairs the two sorted migration sets by name and classifies every
// name in their union. The result is sorted ascending by name. Names are
// unique within each set.
func Matches(local, applied []*Migration) []Match {
	ms := make([]Match, 0, len(local)+len(applied))
	index := make(map[string]int, len(local))
	for _, l := range local {
		index[l.Name] = len(ms)
		ms = append(ms, Match{Kind: MatchPending, Local: l})
	}
	for _, a := range applied {
		i, ok := index[a.Name]
		if !ok {
			ms = append(ms, Match{Kind: MatchDivergent, Applied: a})
			continue
		}
		ms[i].Applied = a
		if hashEq(ms[i].Local.Hash, a.Hash) {
			ms[i].Kind = MatchApplied
		} else {
			ms[i].Kind = MatchVariant
		}
	}
	sort.Slice(ms, func(i, j int) bool { return ms[i].Name() < ms[j].Name() })
	return ms
}
