package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/polyref/internal/compiler"
	"github.com/roach88/polyref/internal/config"
	"github.com/roach88/polyref/internal/entity"
	"github.com/roach88/polyref/internal/store"
)

// session is the configuration and registry shared by database commands.
type session struct {
	cfg      *config.Config
	loaded   *LoadResult
	registry *entity.MemoryRegistry
}

// openSession loads config and the registry definitions. Invalid
// definitions fail the command.
func openSession(opts *RootOptions, f *OutputFormatter) (*session, error) {
	cfg, err := opts.config(f.GetErrWriter())
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeConfig, err)
	}

	slog.Debug("loading registry", "dir", cfg.Registry)
	loaded, loadErrs := LoadRegistry(cfg.Registry, LoadModeFailFast)
	if len(loadErrs) > 0 {
		code := ErrCodeGeneric
		var loadErr *LoadError
		if errors.As(loadErrs[0], &loadErr) {
			code = loadErr.Code
		}
		return nil, f.Fail(ExitCommandError, code, loadErrs[0])
	}
	if verrs := compiler.Validate(loaded.Types, loaded.Fields); len(verrs) > 0 {
		return nil, f.Fail(ExitFailure, verrs[0].Code,
			fmt.Errorf("registry has %d invalid definition(s), first: %w", len(verrs), verrs[0]))
	}

	reg, err := loaded.Registry()
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeGeneric, err)
	}
	slog.Debug("registry loaded", "types", len(loaded.Types), "fields", len(loaded.Fields))
	return &session{cfg: cfg, loaded: loaded, registry: reg}, nil
}

// connect opens the configured database. The store shares the session
// registry so no tables are created.
func (s *session) connect(ctx context.Context, f *OutputFormatter) (*store.Store, error) {
	db := s.cfg.Database
	slog.Debug("connecting", "driver", db.Driver, "prefix", db.Prefix)
	st, err := store.Connect(ctx, db.Driver, db.DSN, db.Prefix, store.WithRegistry(s.registry))
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeDatabase, err)
	}
	return st, nil
}

// connectEmpty opens the configured database with an empty registry, for
// commands that install the definitions themselves.
func (s *session) connectEmpty(ctx context.Context, f *OutputFormatter) (*store.Store, error) {
	db := s.cfg.Database
	st, err := store.Connect(ctx, db.Driver, db.DSN, db.Prefix)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeDatabase, err)
	}
	return st, nil
}

func closeStore(st *store.Store) {
	if err := st.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

// tablePrefix applies the configured table prefix without a database.
type tablePrefix string

func (p tablePrefix) PrefixTable(table string) string { return string(p) + table }
