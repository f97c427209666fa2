package pgf

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/joshuapare/ngfkit/db"
)

// Parser decodes a binary grammar into the store sc is bound to and returns
// the new root. It runs inside a writer scope.
type Parser interface {
	ReadPGF(sc *db.Scope, r io.Reader) (db.Ref[Root], error)
}

// ParserFunc adapts a function to Parser.
type ParserFunc func(sc *db.Scope, r io.Reader) (db.Ref[Root], error)

// ReadPGF calls f.
func (f ParserFunc) ReadPGF(sc *db.Scope, r io.Reader) (db.Ref[Root], error) {
	return f(sc, r)
}

// ErrNoParser is returned by entry points that need a Parser when none is
// given.
var ErrNoParser = errors.New("pgf: no grammar parser configured")

// Grammar is a grammar held in a store.
type Grammar struct {
	store *db.Store
}

func newGrammar(s *db.Store) *Grammar {
	return &Grammar{store: s}
}

// Open wraps an already open store whose root is a grammar.
func Open(s *db.Store) (*Grammar, error) {
	var null bool
	err := s.Read(func(sc *db.Scope) error {
		null = db.GetRoot[Root](sc).IsNull()
		return nil
	})
	if err != nil {
		return nil, err
	}
	if null {
		return nil, db.FormatError("open grammar", "store has no root")
	}
	return newGrammar(s), nil
}

// Store returns the store holding the grammar.
func (g *Grammar) Store() *db.Store { return g.store }

// Read runs fn in a reader scope on the grammar's store.
func (g *Grammar) Read(fn func(sc *db.Scope) error) error { return g.store.Read(fn) }

// Write runs fn in a writer scope on the grammar's store.
func (g *Grammar) Write(fn func(sc *db.Scope) error) error { return g.store.Write(fn) }

// Sync makes the grammar durable.
func (g *Grammar) Sync(ctx context.Context) error { return g.store.Sync(ctx) }

// Close closes the underlying store.
func (g *Grammar) Close() error { return g.store.Close() }

// ReadPGF parses the .pgf file at path into a transient store.
func ReadPGF(path string, p Parser, opts *db.Options) (*Grammar, error) {
	if p == nil {
		return nil, ErrNoParser
	}
	s, err := db.Open("", db.OpenOrCreate, opts)
	if err != nil {
		return nil, err
	}
	err = s.Write(func(sc *db.Scope) error {
		if !db.GetRoot[Root](sc).IsNull() {
			return nil
		}
		return parseInto(sc, path, p)
	})
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.Logger().Debug("read pgf", "source", path)
	return newGrammar(s), nil
}

// BootNGF parses the .pgf file at pgfPath into a new store at ngfPath, which
// must not exist, and syncs it. On failure the new file is removed.
func BootNGF(ctx context.Context, pgfPath, ngfPath string, p Parser, opts *db.Options) (*Grammar, error) {
	if p == nil {
		return nil, ErrNoParser
	}
	s, err := db.Open(ngfPath, db.CreateExclusive, opts)
	if err != nil {
		return nil, err
	}
	err = s.Write(func(sc *db.Scope) error {
		return parseInto(sc, pgfPath, p)
	})
	if err == nil {
		err = s.Sync(ctx)
	}
	if err != nil {
		_ = s.Close()
		_ = os.Remove(ngfPath)
		return nil, err
	}
	s.Logger().Debug("booted ngf", "source", pgfPath)
	return newGrammar(s), nil
}

// ReadNGF opens the store at path, creating it if needed. A store without a
// root is given an empty grammar of the current version, which is synced
// before ReadNGF returns.
func ReadNGF(ctx context.Context, path string, opts *db.Options) (*Grammar, error) {
	s, err := db.Open(path, db.OpenOrCreate, opts)
	if err != nil {
		return nil, err
	}
	var seeded bool
	err = s.Write(func(sc *db.Scope) error {
		if !db.GetRoot[Root](sc).IsNull() {
			return nil
		}
		r, err := NewRoot(sc, "")
		if err != nil {
			return err
		}
		seeded = true
		return db.SetRoot(sc, r)
	})
	if err == nil && seeded {
		err = s.Sync(ctx)
	}
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	if seeded {
		s.Logger().Debug("seeded empty grammar")
	}
	return newGrammar(s), nil
}

// parseInto runs p over the file at path and publishes the result as root.
func parseInto(sc *db.Scope, path string, p Parser) error {
	f, err := os.Open(path)
	if err != nil {
		return db.SystemError("read pgf", path, err)
	}
	defer f.Close()

	r, err := p.ReadPGF(sc, f)
	if err != nil {
		var e *db.Error
		if errors.As(err, &e) {
			return err
		}
		return &db.Error{Kind: db.KindFormat, Op: "read pgf", Path: path, Err: err}
	}
	if r.IsNull() {
		return db.FormatError("read pgf", path+": parser returned no grammar")
	}
	return db.SetRoot(sc, r)
}
