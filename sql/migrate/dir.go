// Copyright 2023-present The Strata Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package migrate

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

const (
	// UpFileName is the file holding a migration's up SQL.
	UpFileName = "up.sql"
	// DownFileName is the file holding a migration's down SQL.
	DownFileName = "down.sql"
)

// Dir wraps the functionality used to interact with a migration directory:
// one subdirectory per migration, holding up.sql and an optional down.sql.
type Dir interface {
	// Init creates the directory if it does not exist yet.
	Init() error
	// Migrations returns the local migration set sorted ascending by name.
	Migrations() ([]*Migration, error)
	// WriteMigration persists a migration. If the migration already exists,
	// an error satisfying errors.Is(err, fs.ErrExist) is returned.
	WriteMigration(*Migration) error
}

// LocalDir implements Dir for a local filesystem path.
type LocalDir struct {
	path string
}

var _ Dir = (*LocalDir)(nil)

// NewLocalDir returns a Dir for the given path. The path need not exist yet;
// Init creates it and Migrations reports ErrDirNotFound until it does.
func NewLocalDir(path string) *LocalDir {
	return &LocalDir{path: path}
}

// Path returns the local path used for opening this dir.
func (d *LocalDir) Path() string {
	return d.path
}

// Init implements Dir.Init.
func (d *LocalDir) Init() error {
	if err := os.MkdirAll(d.path, 0755); err != nil {
		return fmt.Errorf("sql/migrate: create migration directory: %w", err)
	}
	return nil
}

// Migrations implements Dir.Migrations. Subdirectories without an up.sql are
// skipped, which also lets unrelated directories live under the path.
func (d *LocalDir) Migrations() ([]*Migration, error) {
	entries, err := os.ReadDir(d.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("%w: %q", ErrDirNotFound, d.path)
	case err != nil:
		return nil, fmt.Errorf("sql/migrate: read migration directory: %w", err)
	}
	ms := make([]*Migration, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		m, err := readMigration(os.DirFS(d.path), e.Name())
		if err != nil {
			return nil, err
		}
		if m != nil {
			ms = append(ms, m)
		}
	}
	sort.Slice(ms, func(i, j int) bool { return ms[i].Name < ms[j].Name })
	return ms, nil
}

// WriteMigration implements Dir.WriteMigration.
func (d *LocalDir) WriteMigration(m *Migration) error {
	sub := filepath.Join(d.path, m.Name)
	if _, err := os.Stat(sub); err == nil {
		return fmt.Errorf("sql/migrate: migration %q: %w", m.Name, fs.ErrExist)
	}
	if err := os.MkdirAll(sub, 0755); err != nil {
		return fmt.Errorf("sql/migrate: write migration %q: %w", m.Name, err)
	}
	if m.Up != nil {
		if err := os.WriteFile(filepath.Join(sub, UpFileName), []byte(*m.Up), 0644); err != nil {
			return fmt.Errorf("sql/migrate: write migration %q: %w", m.Name, err)
		}
	}
	if m.Down != nil {
		if err := os.WriteFile(filepath.Join(sub, DownFileName), []byte(*m.Down), 0644); err != nil {
			return fmt.Errorf("sql/migrate: write migration %q: %w", m.Name, err)
		}
	}
	return nil
}

// readMigration loads one migration subdirectory from fsys. It returns
// (nil, nil) when the subdirectory holds no up.sql.
func readMigration(fsys fs.FS, name string) (*Migration, error) {
	up, err := fs.ReadFile(fsys, filepath.ToSlash(filepath.Join(name, UpFileName)))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("sql/migrate: read migration %q: %w", name, err)
	}
	b := NewBuilder(name).UpSQL(string(up))
	down, err := fs.ReadFile(fsys, filepath.ToSlash(filepath.Join(name, DownFileName)))
	switch {
	case err == nil:
		b.DownSQL(string(down))
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("sql/migrate: read migration %q: %w", name, err)
	}
	return b.Build()
}

// LoadFS materialises the migration set held by fsys, typically an embed.FS
// compiled into the binary. The layout is the same as on disk: one directory
// per migration. Use the result with WithLocalMigrations.
func LoadFS(fsys fs.FS) ([]*Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("sql/migrate: read embedded migrations: %w", err)
	}
	ms := make([]*Migration, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		m, err := readMigration(fsys, e.Name())
		if err != nil {
			return nil, err
		}
		if m != nil {
			ms = append(ms, m)
		}
	}
	sort.Slice(ms, func(i, j int) bool { return ms[i].Name < ms[j].Name })
	return ms, nil
}

// MemDir provides an in-memory Dir implementation.
type MemDir struct {
	ms map[string]*Migration
}

var _ Dir = (*MemDir)(nil)

// Init implements Dir.Init.
func (d *MemDir) Init() error {
	if d.ms == nil {
		d.ms = make(map[string]*Migration)
	}
	return nil
}

// Migrations implements Dir.Migrations.
func (d *MemDir) Migrations() ([]*Migration, error) {
	ms := make([]*Migration, 0, len(d.ms))
	for _, m := range d.ms {
		ms = append(ms, m)
	}
	sort.Slice(ms, func(i, j int) bool { return ms[i].Name < ms[j].Name })
	return ms, nil
}

// WriteMigration implements Dir.WriteMigration.
func (d *MemDir) WriteMigration(m *Migration) error {
	if _, ok := d.ms[m.Name]; ok {
		return fmt.Errorf("sql/migrate: migration %q: %w", m.Name, fs.ErrExist)
	}
	if d.ms == nil {
		d.ms = make(map[string]*Migration)
	}
	d.ms[m.Name] = m
	return nil
}
