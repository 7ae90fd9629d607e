// Copyright 2023-present The Strata Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package migrate

type (
	// A Planner compiles the match list of a local and an applied migration
	// set into execution plans for the user-facing commands. Planning is pure:
	// it never touches the database or the filesystem.
	Planner struct {
		matches    []Match
		count      *int
		strict     bool
		ignoreDiv  bool
		ignoreIrev bool
	}

	// PlanOption allows configuring a Planner using functional arguments.
	PlanOption func(*Planner)
)

// Count bounds the number of migrations a plan operates on.
func Count(n int) PlanOption {
	return func(p *Planner) {
		p.count = &n
	}
}

// Strict makes up-planning fail when pending migrations precede applied ones.
func Strict(strict bool) PlanOption {
	return func(p *Planner) {
		p.strict = strict
	}
}

// IgnoreDivergent leaves applied migrations with no local counterpart alone.
func IgnoreDivergent(ignore bool) PlanOption {
	return func(p *Planner) {
		p.ignoreDiv = ignore
	}
}

// IgnoreIrreversible skips migrations lacking down SQL instead of failing.
func IgnoreIrreversible(ignore bool) PlanOption {
	return func(p *Planner) {
		p.ignoreIrev = ignore
	}
}

// NewPlanner matches the two sorted migration sets and returns a Planner over
// the result. Both sets are required; an empty set is valid, a nil one is not.
func NewPlanner(local, applied []*Migration, opts ...PlanOption) (*Planner, error) {
	if local == nil || applied == nil {
		return nil, ErrMissingSource
	}
	p := &Planner{matches: Matches(local, applied)}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Status returns the match list for display.
func (p *Planner) Status() []Match {
	return p.matches
}

// AnyDivergent reports whether the applied set holds a migration with no
// local counterpart.
func (p *Planner) AnyDivergent() bool {
	for _, m := range p.matches {
		if m.Kind == MatchDivergent {
			return true
		}
	}
	return false
}

// AnyVariant reports whether any pair disagrees on content.
func (p *Planner) AnyVariant() bool {
	for _, m := range p.matches {
		if m.Kind == MatchVariant {
			return true
		}
	}
	return false
}

// SafeToMigrate reports whether the sets agree on everything applied.
func (p *Planner) SafeToMigrate() bool {
	return !p.AnyDivergent() && !p.AnyVariant()
}

// Up plans applying pending migrations in ascending order. With a count only
// the first count pending migrations are planned. In strict mode the plan
// fails with ErrDirty when a non-pending match follows a pending one, i.e.
// the developer holds unapplied migrations dated before applied ones.
func (p *Planner) Up() (Plan, error) {
	var (
		plan    Plan
		dirty   bool
		pending bool
	)
	for _, m := range p.matches {
		if m.Kind != MatchPending {
			if pending {
				dirty = true
			}
			continue
		}
		pending = true
		if p.count != nil && *p.count == len(plan) {
			continue
		}
		plan = append(plan, Step{Direction: Up, Migration: m.Local})
	}
	if p.strict && dirty {
		return nil, ErrDirty
	}
	return plan, nil
}

// Down plans rolling back the most recently applied migrations, walking the
// matches newest first. Divergent migrations are rolled back too unless
// ignored. Without a count a single migration is rolled back.
func (p *Planner) Down() (Plan, error) {
	var plan Plan
	if p.count != nil && *p.count == 0 {
		return plan, nil
	}
	for i := len(p.matches) - 1; i >= 0; i-- {
		m := p.matches[i]
		switch m.Kind {
		case MatchDivergent:
			if p.ignoreDiv {
				continue
			}
			plan = append(plan, Step{Direction: Down, Migration: m.Applied})
		case MatchApplied, MatchVariant:
			switch {
			case m.Reversible():
				plan = append(plan, Step{Direction: Down, Migration: m.BestDown()})
			case !p.ignoreIrev:
				return nil, ErrIrreversible
			}
		}
		if p.count != nil {
			if *p.count == len(plan) {
				break
			}
		} else if len(plan) == 1 {
			break
		}
	}
	return plan, nil
}

// Fix plans restoring equivalence between the two sets: every divergent or
// variant migration is rolled back, applied migrations ahead of the first
// disagreement are peeled and re-applied so ordering is preserved, and
// pending migrations are applied. Downs run newest first, then ups oldest
// first.
func (p *Planner) Fix() (Plan, error) {
	var (
		bad         bool
		rollbackRev Plan
		rollup      Plan
	)
	for _, m := range p.matches {
		switch m.Kind {
		case MatchDivergent:
			bad = true
			if !m.Reversible() {
				return nil, ErrIrreversible
			}
			rollbackRev = append(rollbackRev, Step{Direction: Down, Migration: m.Applied})
		case MatchVariant:
			bad = true
			if !m.Reversible() {
				return nil, ErrIrreversible
			}
			rollbackRev = append(rollbackRev, Step{Direction: Down, Migration: m.BestDown()})
			rollup = append(rollup, Step{Direction: Up, Migration: m.Local})
		case MatchApplied:
			if !bad {
				continue
			}
			if !m.Reversible() {
				return nil, ErrIrreversible
			}
			rollbackRev = append(rollbackRev, Step{Direction: Down, Migration: m.BestDown()})
			rollup = append(rollup, Step{Direction: Up, Migration: m.Local})
		case MatchPending:
			bad = true
			rollup = append(rollup, Step{Direction: Up, Migration: m.Local})
		}
	}
	plan := make(Plan, 0, len(rollbackRev)+len(rollup))
	for i := len(rollbackRev) - 1; i >= 0; i-- {
		plan = append(plan, rollbackRev[i])
	}
	return append(plan, rollup...), nil
}

// Redo plans rolling back and re-applying the most recently applied
// migrations, newest first. Divergent migrations have no local file to
// re-apply, so redo refuses them with ErrDivergent unless ignored. Without a
// count a single migration is redone.
func (p *Planner) Redo() (Plan, error) {
	var (
		rollback  Plan
		rollupRev Plan
	)
	if p.count != nil && *p.count == 0 {
		return rollback, nil
	}
	for i := len(p.matches) - 1; i >= 0; i-- {
		m := p.matches[i]
		switch m.Kind {
		case MatchDivergent:
			if p.ignoreDiv {
				continue
			}
			return nil, ErrDivergent
		case MatchApplied, MatchVariant:
			switch {
			case m.Reversible():
				rollback = append(rollback, Step{Direction: Down, Migration: m.BestDown()})
				rollupRev = append(rollupRev, Step{Direction: Up, Migration: m.Local})
			case !p.ignoreIrev:
				return nil, ErrIrreversible
			}
		}
		if p.count != nil {
			if *p.count == len(rollback) {
				break
			}
		} else if len(rollback) == 1 {
			break
		}
	}
	plan := rollback
	for i := len(rollupRev) - 1; i >= 0; i-- {
		plan = append(plan, rollupRev[i])
	}
	return plan, nil
}
