// Copyright 2023-present The Strata Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package migrate_test

import (
	"testing"

	"github.com/strata-db/strata/sql/migrate"

	"github.com/stretchr/testify/require"
)

func TestMatches_Classification(t *testing.T) {
	for _, tt := range []struct {
		name    string
		local   *migrate.Migration
		applied *migrate.Migration
		want    migrate.MatchKind
	}{
		{
			name:  "local only is pending",
			local: mig("test"),
			want:  migrate.MatchPending,
		},
		{
			name:    "applied only is divergent",
			applied: mig("test"),
			want:    migrate.MatchDivergent,
		},
		{
			name:    "absent hashes agree",
			local:   mig("test"),
			applied: mig("test"),
			want:    migrate.MatchApplied,
		},
		{
			name:    "equal hashes agree",
			local:   migHash("test", "h1"),
			applied: migHash("test", "h1"),
			want:    migrate.MatchApplied,
		},
		{
			name:    "unequal hashes disagree",
			local:   migHash("test", "h1"),
			applied: migHash("test", "h2"),
			want:    migrate.MatchVariant,
		},
		{
			name:    "recorded hash against absent local hash disagrees",
			local:   mig("test"),
			applied: migHash("test", "h1"),
			want:    migrate.MatchVariant,
		},
		{
			name:    "local hash against absent recorded hash disagrees",
			local:   migHash("test", "h1"),
			applied: mig("test"),
			want:    migrate.MatchVariant,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			var local, applied []*migrate.Migration
			if tt.local != nil {
				local = append(local, tt.local)
			}
			if tt.applied != nil {
				applied = append(applied, tt.applied)
			}
			ms := migrate.Matches(local, applied)
			require.Len(t, ms, 1)
			require.Equal(t, tt.want, ms[0].Kind)
			require.Equal(t, tt.local, ms[0].Local)
			require.Equal(t, tt.applied, ms[0].Applied)
		})
	}
}

func TestMatches_Sorted(t *testing.T) {
	local := []*migrate.Migration{mig("a"), mig("c"), mig("e")}
	applied := []*migrate.Migration{mig("b"), mig("c"), mig("d")}
	ms := migrate.Matches(local, applied)
	require.Len(t, ms, 5)
	for i, name := range []string{"a", "b", "c", "d", "e"} {
		require.Equal(t, name, ms[i].Name())
	}
}

func TestMatch_BestDown(t *testing.T) {
	appliedDown, localDown := "stored down", "local down"

	// The applied record's stored down sql is authoritative.
	m := migrate.Matches(
		[]*migrate.Migration{{Name: "test", Down: &localDown}},
		[]*migrate.Migration{{Name: "test", Down: &appliedDown}},
	)[0]
	require.True(t, m.Reversible())
	require.Equal(t, &appliedDown, m.BestDown().Down)

	// Tracking rows without a stored down sql fall back to the local file.
	m = migrate.Matches(
		[]*migrate.Migration{{Name: "test", Down: &localDown}},
		[]*migrate.Migration{{Name: "test"}},
	)[0]
	require.True(t, m.Reversible())
	require.Equal(t, &localDown, m.BestDown().Down)

	// Neither side carries a down sql.
	m = migrate.Matches(
		[]*migrate.Migration{{Name: "test"}},
		[]*migrate.Migration{{Name: "test"}},
	)[0]
	require.False(t, m.Reversible())

	// Pending migrations roll back through their own down sql.
	m = migrate.Matches(
		[]*migrate.Migration{{Name: "test", Down: &localDown}},
		nil,
	)[0]
	require.True(t, m.Reversible())
	require.Equal(t, &localDown, m.BestDown().Down)

	// Divergent migrations only have the applied side.
	m = migrate.Matches(
		nil,
		[]*migrate.Migration{{Name: "test"}},
	)[0]
	require.False(t, m.Reversible())
}

func TestMatchKind_String(t *testing.T) {
	require.Equal(t, "applied", migrate.MatchApplied.String())
	require.Equal(t, "variant", migrate.MatchVariant.String())
	require.Equal(t, "divergent", migrate.MatchDivergent.String())
	require.Equal(t, "pending", migrate.MatchPending.String())
}
