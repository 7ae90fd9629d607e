// Copyright 2023-present The Strata Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package migrate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"time"
)

var (
	// ErrNameRequired is returned by the Builder for empty or blank migration names.
	ErrNameRequired = errors.New("sql/migrate: migration name required")
	// ErrDirNotFound is returned when the configured migration directory does not exist.
	ErrDirNotFound = errors.New("sql/migrate: migration directory not found")
	// ErrDirty is returned by strict up-planning when pending migrations
	// precede already applied ones.
	ErrDirty = errors.New("sql/migrate: out-of-order pending migrations")
	// ErrDivergent is returned by redo-planning when the database holds a
	// migration with no local counterpart.
	ErrDivergent = errors.New("sql/migrate: divergent migration in database")
	// ErrIrreversible is returned when a plan requires rolling back a
	// migration that has no down SQL.
	ErrIrreversible = errors.New("sql/migrate: migration has no down sql")
	// ErrMissingSource is returned when a Planner is built without both
	// migration sources.
	ErrMissingSource = errors.New("sql/migrate: local and database migrations required")
)

type (
	// A Migration is one schema change: the SQL that applies it, the SQL that
	// reverses it, and a content hash over the up SQL. Local migrations read
	// from disk carry Up and Hash; migrations loaded from the database
	// tracking table carry Down and Hash but no Up. A nil field is unknown.
	// Migrations are immutable once built.
	Migration struct {
		// Name identifies the migration and defines its order. Conventionally
		// prefixed "YYYY-MM-DD-HHMMSS_" so lexicographic order is chronological.
		Name string
		// Up holds the SQL that applies the migration.
		Up *string
		// Down holds the SQL that reverses the migration. Absent means the
		// migration cannot be rolled back.
		Down *string
		// Hash is the hex-encoded SHA-256 digest of the raw up-SQL bytes.
		Hash *string
	}

	// A Builder constructs Migration values.
	Builder struct {
		name    string
		date    time.Time
		hasDate bool
		up      *string
		down    *string
	}
)

// Reversible reports whether the migration carries down SQL.
func (m *Migration) Reversible() bool {
	return m.Down != nil
}

// stampFormat is the timestamp prefix layout for migration names.
const stampFormat = "2006-01-02-150405"

var reStamp = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}-\d{6}_`)

// NewBuilder returns a Builder for a migration with the given name.
func NewBuilder(name string) *Builder {
	return &Builder{name: name}
}

// Date sets the timestamp stamped into the migration name.
func (b *Builder) Date(t time.Time) *Builder {
	b.date, b.hasDate = t, true
	return b
}

// UpSQL sets the up SQL.
func (b *Builder) UpSQL(sql string) *Builder {
	b.up = &sql
	return b
}

// DownSQL sets the down SQL.
func (b *Builder) DownSQL(sql string) *Builder {
	b.down = &sql
	return b
}

// Build validates the inputs and returns the migration. If a date was given
// and the name does not already carry a timestamp prefix, the UTC timestamp
// is prepended. The content hash is computed when up SQL is present.
func (b *Builder) Build() (*Migration, error) {
	if strings.TrimSpace(b.name) == "" {
		return nil, ErrNameRequired
	}
	name := b.name
	if b.hasDate && !reStamp.MatchString(name) {
		name = b.date.UTC().Format(stampFormat) + "_" + name
	}
	m := &Migration{Name: name, Up: b.up, Down: b.down}
	if b.up != nil {
		h := hashSQL(*b.up)
		m.Hash = &h
	}
	return m, nil
}

// hashSQL returns the hex-encoded SHA-256 digest of the raw SQL bytes.
// Whitespace is not normalised: editing a file in any way changes its hash.
func hashSQL(sql string) string {
	h := sha256.Sum256([]byte(sql))
	return hex.EncodeToString(h[:])
}

// A Direction tells whether a step applies or reverses a migration.
type Direction int

const (
	// Up applies a migration.
	Up Direction = iota
	// Down reverses a migration.
	Down
)

// String implements fmt.Stringer.
func (d Direction) String() string {
	if d == Down {
		return "down"
	}
	return "up"
}

type (
	// A Step is one planned operation: run the migration in the given direction.
	Step struct {
		Direction Direction
		Migration *Migration
	}

	// A Plan is an ordered list of steps. Up steps appear in ascending name
	// order and contiguous down steps in descending name order.
	Plan []Step
)

// Driver is the database-side contract. Implementations execute migration SQL
// and maintain the tracking table recording what has been applied. ApplyUp and
// ApplyDown must run the user SQL and the tracking-table write in a single
// transaction each.
type Driver interface {
	// InitUpSQL returns the statement creating the tracking table.
	InitUpSQL() string
	// InitDownSQL returns the statement dropping the tracking table.
	InitDownSQL() string
	// Migrations returns the applied migrations recorded in the tracking
	// table, sorted ascending by name. Up SQL is not stored and is absent.
	Migrations(context.Context) ([]*Migration, error)
	// ApplyUp executes the migration's up SQL and inserts its tracking row.
	ApplyUp(context.Context, *Migration) error
	// ApplyDown executes the migration's down SQL and deletes its tracking row.
	ApplyDown(context.Context, *Migration) error
}

// RunPlan executes the plan steps in order. Down steps on irreversible
// migrations are skipped. The first driver error aborts the plan; steps
// already committed stay applied.
func RunPlan(ctx context.Context, drv Driver, plan Plan, log Logger) error {
	if log == nil {
		log = NopLogger{}
	}
	for _, s := range plan {
		log.Log(LogStep{Step: s})
		switch s.Direction {
		case Up:
			if err := drv.ApplyUp(ctx, s.Migration); err != nil {
				log.Log(LogError{Error: err})
				return err
			}
		case Down:
			if !s.Migration.Reversible() {
				continue
			}
			if err := drv.ApplyDown(ctx, s.Migration); err != nil {
				log.Log(LogError{Error: err})
				return err
			}
		}
	}
	log.Log(LogDone{})
	return nil
}

type (
	// A Logger logs plan execution.
	Logger interface {
		Log(LogEntry)
	}

	// LogEntry marks the types passed to a Logger.
	LogEntry interface {
		logEntry()
	}

	// LogPlan is sent instead of execution when a plan is only shown.
	LogPlan struct {
		Plan Plan
	}

	// LogStep is sent before a step executes.
	LogStep struct {
		Step Step
	}

	// LogDone is sent after the last step committed.
	LogDone struct{}

	// LogError is sent when a step fails.
	LogError struct {
		Error error
	}

	// NopLogger is a Logger that does nothing.
	NopLogger struct{}
)

func (LogPlan) logEntry()  {}
func (LogStep) logEntry()  {}
func (LogDone) logEntry()  {}
func (LogError) logEntry() {}

// Log implements the Logger interface.
func (NopLogger) Log(LogEntry) {}

// InitMigrationName is the name of the bootstrap migration installing the
// tracking table. It is stamped with the zero epoch so it sorts first.
const InitMigrationName = "strata_init"

type (
	// An Executor binds a migration directory and a database driver and runs
	// the user-facing commands. Both migration sets are reloaded from scratch
	// on every command.
	Executor struct {
		drv   Driver
		dir   Dir
		local []*Migration // static set replacing dir reads, e.g. embedded migrations
		log   Logger

		number     int
		hasNumber  bool
		showPlan   bool
		strict     bool
		ignoreDiv  bool
		ignoreIrev bool
	}

	// ExecutorOption allows configuring an Executor using functional arguments.
	ExecutorOption func(*Executor) error
)

// NewExecutor creates a new Executor. The dir may be nil when a static local
// migration set is supplied with WithLocalMigrations.
func NewExecutor(drv Driver, dir Dir, opts ...ExecutorOption) (*Executor, error) {
	if drv == nil {
		return nil, errors.New("sql/migrate: execute: no driver given")
	}
	e := &Executor{drv: drv, dir: dir}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	if e.dir == nil && e.local == nil {
		return nil, errors.New("sql/migrate: execute: no migration source given")
	}
	if e.log == nil {
		e.log = NopLogger{}
	}
	return e, nil
}

// WithLogger sets the Logger of an Executor.
func WithLogger(log Logger) ExecutorOption {
	return func(e *Executor) error {
		e.log = log
		return nil
	}
}

// WithLocalMigrations supplies a pre-loaded local migration set, e.g. one
// materialised from an embedded filesystem, replacing directory reads.
func WithLocalMigrations(ms []*Migration) ExecutorOption {
	return func(e *Executor) error {
		e.local = ms
		return nil
	}
}

// WithNumber bounds the number of migrations a command operates on.
func WithNumber(n int) ExecutorOption {
	return func(e *Executor) error {
		e.number, e.hasNumber = n, true
		return nil
	}
}

// WithShowPlan logs the computed plan instead of executing it.
func WithShowPlan(show bool) ExecutorOption {
	return func(e *Executor) error {
		e.showPlan = show
		return nil
	}
}

// WithStrict forbids applying pending migrations that are out of order with
// respect to the applied set.
func WithStrict(strict bool) ExecutorOption {
	return func(e *Executor) error {
		e.strict = strict
		return nil
	}
}

// WithIgnoreDivergent leaves migrations with no local counterpart alone.
func WithIgnoreDivergent(ignore bool) ExecutorOption {
	return func(e *Executor) error {
		e.ignoreDiv = ignore
		return nil
	}
}

// WithIgnoreIrreversible skips migrations lacking down SQL instead of failing.
func WithIgnoreIrreversible(ignore bool) ExecutorOption {
	return func(e *Executor) error {
		e.ignoreIrev = ignore
		return nil
	}
}

// localMigrations returns the local migration set.
func (e *Executor) localMigrations() ([]*Migration, error) {
	if e.local != nil {
		return e.local, nil
	}
	return e.dir.Migrations()
}

// planner loads both migration sets and builds a Planner carrying the
// executor's tunables.
func (e *Executor) planner(ctx context.Context) (*Planner, error) {
	local, err := e.localMigrations()
	if err != nil {
		return nil, err
	}
	applied, err := e.drv.Migrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("sql/migrate: load applied migrations: %w", err)
	}
	if applied == nil {
		applied = []*Migration{}
	}
	opts := []PlanOption{
		Strict(e.strict),
		IgnoreDivergent(e.ignoreDiv),
		IgnoreIrreversible(e.ignoreIrev),
	}
	if e.hasNumber {
		opts = append(opts, Count(e.number))
	}
	return NewPlanner(local, applied, opts...)
}

// run executes the plan, or only logs it when show-plan is set.
func (e *Executor) run(ctx context.Context, plan Plan) error {
	if e.showPlan {
		e.log.Log(LogPlan{Plan: plan})
		return nil
	}
	return RunPlan(ctx, e.drv, plan, e.log)
}

// Init bootstraps the migration directory and the database tracking table:
// it writes the init migration from the driver's init SQL, tolerating a
// pre-existing bootstrap directory, and applies it against an empty applied
// set. The tracking table cannot be read before this migration has run.
func (e *Executor) Init(ctx context.Context) error {
	if e.dir == nil {
		return errors.New("sql/migrate: init: no migration directory given")
	}
	if err := e.dir.Init(); err != nil {
		return err
	}
	init, err := NewBuilder(InitMigrationName).
		Date(time.Unix(0, 0)).
		UpSQL(e.drv.InitUpSQL()).
		DownSQL(e.drv.InitDownSQL()).
		Build()
	if err != nil {
		return err
	}
	if err := e.dir.WriteMigration(init); err != nil && !errors.Is(err, fs.ErrExist) {
		return err
	}
	local, err := e.dir.Migrations()
	if err != nil {
		return err
	}
	p, err := NewPlanner(local, []*Migration{}, Count(1))
	if err != nil {
		return err
	}
	plan, err := p.Up()
	if err != nil {
		return err
	}
	return RunPlan(ctx, e.drv, plan, e.log)
}

// Generate writes a new timestamped migration with empty up and down files
// and returns it.
func (e *Executor) Generate(name string) (*Migration, error) {
	if e.dir == nil {
		return nil, errors.New("sql/migrate: generate: no migration directory given")
	}
	m, err := NewBuilder(name).
		Date(time.Now()).
		UpSQL("").
		DownSQL("").
		Build()
	if err != nil {
		return nil, err
	}
	if err := e.dir.WriteMigration(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Status returns the match list for display.
func (e *Executor) Status(ctx context.Context) ([]Match, error) {
	p, err := e.planner(ctx)
	if err != nil {
		return nil, err
	}
	return p.Status(), nil
}

// Up applies pending migrations in ascending order.
func (e *Executor) Up(ctx context.Context) error {
	p, err := e.planner(ctx)
	if err != nil {
		return err
	}
	plan, err := p.Up()
	if err != nil {
		return err
	}
	return e.run(ctx, plan)
}

// Down rolls back the most recently applied migrations.
func (e *Executor) Down(ctx context.Context) error {
	p, err := e.planner(ctx)
	if err != nil {
		return err
	}
	plan, err := p.Down()
	if err != nil {
		return err
	}
	return e.run(ctx, plan)
}

// Fix restores equivalence between the local and applied sets.
func (e *Executor) Fix(ctx context.Context) error {
	p, err := e.planner(ctx)
	if err != nil {
		return err
	}
	plan, err := p.Fix()
	if err != nil {
		return err
	}
	return e.run(ctx, plan)
}

// Redo rolls back and reapplies the most recently applied migrations.
func (e *Executor) Redo(ctx context.Context) error {
	p, err := e.planner(ctx)
	if err != nil {
		return err
	}
	plan, err := p.Redo()
	if err != nil {
		return err
	}
	return e.run(ctx, plan)
}
