// Package engine is the database's top-level handle: it owns the pager,
// the schema dictionary, and compiles/runs statements against them.
package engine

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/joeandaverde/ridgedb/internal/metadata"
	"github.com/joeandaverde/ridgedb/internal/pager"
	"github.com/joeandaverde/ridgedb/internal/storage"
	"github.com/joeandaverde/ridgedb/internal/virtualmachine"
	"github.com/joeandaverde/ridgedb/tsql"
)

// Config describes how to open a database.
type Config struct {
	// Path is the location of the database file on disk. An empty Path
	// opens a private in-memory database.
	Path string `yaml:"path"`

	// PageSize is the page size used when formatting a brand new database
	// file. Ignored when opening an existing file - its own header
	// dictates the page size.
	PageSize int `yaml:"page_size"`
}

const defaultPageSize = storage.DefaultPageSize

// Engine is a single open database: a pager over a file or memory source,
// a cached schema dictionary, and the logger every statement execution
// reports through.
type Engine struct {
	Log        *log.Logger
	Config     *Config
	pager      pager.Pager
	dictionary *metadata.Dictionary
}

// Open formats (if necessary) and opens the database described by cfg.
func Open(cfg *Config) (*Engine, error) {
	logger := log.New()

	pageSize := cfg.PageSize
	if pageSize == 0 {
		pageSize = defaultPageSize
	}

	var src storage.PageSource
	if cfg.Path == "" {
		logger.Debug("opening in-memory database")
		mem := storage.NewMemoryFile(pageSize)
		if err := pager.Initialize(mem); err != nil {
			return nil, err
		}
		src = mem
	} else {
		logger.Debugf("opening database file %s", cfg.Path)

		isNew := false
		if _, err := os.Stat(cfg.Path); os.IsNotExist(err) {
			isNew = true
		}

		file, err := storage.OpenDbFile(cfg.Path, pageSize)
		if err != nil {
			return nil, err
		}
		src = file

		if isNew {
			if err := pager.Initialize(file); err != nil {
				return nil, err
			}
		}
	}

	p := pager.NewPager(src)
	dict := metadata.NewDictionary()
	if err := dict.Reload(p); err != nil {
		return nil, err
	}

	return &Engine{
		Log:        logger,
		Config:     cfg,
		pager:      p,
		dictionary: dict,
	}, nil
}

// Close flushes any dirty pages to the underlying source.
func (e *Engine) Close() error {
	return e.pager.Flush()
}

// Statement is a compiled statement ready to be driven with Step. ID
// tags the statement for log correlation across Prepare/Step/Finalize.
type Statement struct {
	ID       uuid.UUID
	prepared *virtualmachine.PreparedStatement
	program  *virtualmachine.Program
	mutating bool
}

// Columns returns the names of the columns a query's result rows carry.
func (s *Statement) Columns() []string {
	return s.prepared.Columns
}

// Status mirrors virtualmachine.Status so callers never import that
// package directly.
type Status = virtualmachine.Status

const (
	StatusDone = virtualmachine.StatusDone
	StatusRow  = virtualmachine.StatusRow
)

// Step advances the statement's program until it produces a row, finishes,
// or errors.
func (s *Statement) Step() (Status, error) {
	return s.program.Step()
}

// Row returns the most recent row produced by a StatusRow Step.
func (s *Statement) Row() []interface{} {
	return s.program.Row()
}

// Prepare parses and compiles a single SQL statement.
func (e *Engine) Prepare(sql string) (*Statement, error) {
	return e.prepare(sql, false)
}

// PrepareExplain compiles sql the same way Prepare does, but the resulting
// Statement yields the compiled instruction stream as rows instead of
// executing them.
func (e *Engine) PrepareExplain(sql string) (*Statement, error) {
	return e.prepare(sql, true)
}

func (e *Engine) prepare(sql string, explain bool) (*Statement, error) {
	id := uuid.New()
	e.Log.WithField("stmt", id).Debug("PREPARE: ", sql)

	stmt, err := tsql.Parse(sql)
	if err != nil {
		e.Log.WithField("stmt", id).WithError(err).Error("parse failed")
		return nil, err
	}

	var ps *virtualmachine.PreparedStatement
	if explain {
		ps, err = virtualmachine.PrepareExplain(stmt, e.pager)
	} else {
		ps, err = virtualmachine.Prepare(stmt, e.pager)
	}
	if err != nil {
		e.Log.WithField("stmt", id).WithError(err).Error("compile failed")
		return nil, err
	}

	program := virtualmachine.NewProgram(&virtualmachine.Flags{AutoCommit: true}, e.pager, ps)

	return &Statement{
		ID:       id,
		prepared: ps,
		program:  program,
		mutating: stmt.Mutates(),
	}, nil
}

// Finalize drains a statement to completion and flushes schema-mutating
// effects into the cached dictionary.
func (e *Engine) Finalize(s *Statement) error {
	for {
		status, err := s.Step()
		if err != nil {
			return err
		}
		if status == StatusDone {
			break
		}
	}

	if err := e.pager.Flush(); err != nil {
		return err
	}

	if s.mutating {
		if err := e.dictionary.Reload(e.pager); err != nil {
			return err
		}
	}

	return nil
}

// Exists reports whether name is a known table in the schema.
func (e *Engine) Exists(name string) bool {
	return e.dictionary.Exists(name)
}

// Row is a fully materialized result row, convenient for callers that want
// every row of a statement's output at once rather than stepping by hand.
type Row struct {
	Data []interface{}
}

// Run prepares, executes, and collects every row from sql in one call.
func (e *Engine) Run(sql string) ([]Row, []string, error) {
	stmt, err := e.Prepare(sql)
	if err != nil {
		return nil, nil, err
	}

	var rows []Row
	for {
		status, err := stmt.Step()
		if err != nil {
			return nil, nil, err
		}
		if status == StatusDone {
			break
		}
		rows = append(rows, Row{Data: stmt.Row()})
	}

	if err := e.pager.Flush(); err != nil {
		return nil, nil, err
	}
	if stmt.mutating {
		if err := e.dictionary.Reload(e.pager); err != nil {
			return nil, nil, err
		}
	}

	return rows, stmt.Columns(), nil
}

var _ fmt.Stringer = (*Config)(nil)

// String renders the config for logging without leaking the full path in
// every log line's prefix.
func (c *Config) String() string {
	if c.Path == "" {
		return "<memory>"
	}
	return c.Path
}
