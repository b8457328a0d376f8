// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package twoway

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"reflect"
	"sync/atomic"

	"github.com/canonical/twoway/dialect"
	"github.com/canonical/twoway/internal/typeinfo"
)

var ErrNoRows = sql.ErrNoRows
var ErrTXDone = sql.ErrTxDone

// DB runs templates on a database.
type DB struct {
	// sqldb is the underlying database/sql DB object.
	sqldb *sql.DB
	opts  options
}

// NewDB creates a new [DB] from a [sql.DB]. Templates are built with the
// dialect set by [WithDialect], [dialect.Standard] by default.
func NewDB(sqldb *sql.DB, opts ...Option) *DB {
	if sqldb == nil {
		return nil
	}
	return &DB{sqldb: sqldb, opts: newOptions(opts)}
}

// PlainDB returns the underlying database object.
func (db *DB) PlainDB() *sql.DB {
	return db.sqldb
}

// Dialect returns the dialect templates are built with.
func (db *DB) Dialect() dialect.Dialect {
	return db.opts.dialect
}

// querier is an object that statements can be run on, e.g. a sql.DB or
// sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Query represents a query on a database. It is designed to be run once.
type Query struct {
	// run executes the Query against the DB or the TX. If exec is true the
	// statement is run with ExecContext and no rows are returned.
	run func(ctx context.Context, exec bool) (*sql.Rows, sql.Result, error)
	ctx context.Context
	err error
	ps  *PreparedSQL
}

// Query builds a template with the given bindings into a query. The query is
// run on the database when one of [Query.Iter], [Query.Run], [Query.Get] or
// [Query.GetAll] is executed.
func (db *DB) Query(ctx context.Context, t *Template, bindings M) *Query {
	return db.query(ctx, db.sqldb, t, nil, bindings)
}

// QueryEntity is like [DB.Query] but also passes the entity whose columns
// fill in the expand and populate directives of the template.
func (db *DB) QueryEntity(ctx context.Context, t *Template, entity any, bindings M) *Query {
	return db.query(ctx, db.sqldb, t, entity, bindings)
}

func (db *DB) query(ctx context.Context, q querier, t *Template, entity any, bindings M) *Query {
	if ctx == nil {
		ctx = context.Background()
	}
	ps, err := t.Build(bindings, &BuildOptions{
		Dialect:       db.opts.dialect,
		Entity:        entity,
		Functions:     db.opts.functions,
		CheckEmbedded: db.opts.checkEmbedded,
	})
	if err != nil {
		return &Query{ctx: ctx, err: err}
	}
	args, err := ps.Args()
	if err != nil {
		return &Query{ctx: ctx, err: fmt.Errorf("invalid parameter in template %q: %w", ps.ID, err)}
	}

	logger := db.opts.logger
	run := func(innerCtx context.Context, exec bool) (rows *sql.Rows, result sql.Result, err error) {
		logger.DebugContext(innerCtx, "executing statement",
			slog.String("template", ps.ID),
			slog.String("sql", ps.SQL),
			slog.String("formatted", ps.Formatted),
		)
		if exec {
			result, err = q.ExecContext(innerCtx, ps.SQL, args...)
		} else {
			rows, err = q.QueryContext(innerCtx, ps.SQL, args...)
		}
		if err != nil {
			logger.DebugContext(innerCtx, "statement failed", slog.String("template", ps.ID), slog.Any("error", err))
		}
		return rows, result, err
	}
	return &Query{ctx: ctx, run: run, ps: ps}
}

// PreparedSQL returns the SQL and parameters the query runs with. It returns
// nil if the template could not be built.
func (q *Query) PreparedSQL() *PreparedSQL {
	return q.ps
}

// Run runs the query and disregards any results. Run is an alias for
// [Query.Get] that takes no arguments.
func (q *Query) Run() error {
	return q.Get()
}

// Get runs the query and decodes the first row returned into the provided
// output arguments, pointers to structs or maps with string keys. It returns
// [ErrNoRows] if output arguments were provided but no results were found.
//
// A pointer to an empty [Outcome] struct may be provided as the first output
// variable. Without other output arguments the statement is executed with no
// result rows and the outcome holds its [sql.Result].
func (q *Query) Get(outputArgs ...any) error {
	if q.err != nil {
		return q.err
	}
	var outcome *Outcome
	if len(outputArgs) > 0 {
		if oc, ok := outputArgs[0].(*Outcome); ok {
			outcome = oc
			outcome.result = nil
			outputArgs = outputArgs[1:]
		}
	}

	if len(outputArgs) == 0 {
		_, result, err := q.run(q.ctx, true)
		if err != nil {
			return err
		}
		if outcome != nil {
			outcome.result = result
		}
		return nil
	}

	iter := q.Iter()
	if !iter.Next() {
		err := iter.Close()
		if err == nil {
			err = ErrNoRows
		}
		return err
	}
	err := iter.Get(outputArgs...)
	if cerr := iter.Close(); err == nil {
		err = cerr
	}
	return err
}

// Iterator is used to iterate over the results of the query.
type Iterator struct {
	rows *sql.Rows
	cols []string
	err  error
}

// Iter returns an [Iterator] to iterate through the results row by row.
// [Iterator.Close] must be run once iteration is finished.
func (q *Query) Iter() *Iterator {
	if q.err != nil {
		return &Iterator{err: q.err}
	}
	rows, _, err := q.run(q.ctx, false)
	if err != nil {
		return &Iterator{err: err}
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return &Iterator{err: err}
	}
	return &Iterator{rows: rows, cols: cols}
}

// Next prepares the next row for [Iterator.Get]. If an error occurs during
// iteration it will be returned with [Iterator.Close].
func (iter *Iterator) Next() bool {
	if iter.err != nil || iter.rows == nil {
		return false
	}
	return iter.rows.Next()
}

// Columns returns the names of the result columns, or nil if the query
// failed.
func (iter *Iterator) Columns() []string {
	return iter.cols
}

// Get decodes the result from the previous [Iterator.Next] call into the
// provided output arguments. Each column goes to the first struct with a
// matching "db" tag, or else to the first map.
func (iter *Iterator) Get(outputArgs ...any) (err error) {
	if iter.err != nil {
		return iter.err
	}
	defer func() {
		if err != nil {
			err = fmt.Errorf("cannot get result: %s", err)
		}
	}()

	if iter.rows == nil {
		return fmt.Errorf("iteration ended")
	}
	outputs, err := typeinfo.ValidateOutputs(outputArgs)
	if err != nil {
		return err
	}
	ptrs, proxies, err := typeinfo.ScanTargets(iter.cols, outputs)
	if err != nil {
		return err
	}
	if err := iter.rows.Scan(ptrs...); err != nil {
		return err
	}
	for _, proxy := range proxies {
		proxy.OnSuccess()
	}
	return nil
}

// Close finishes the iteration and returns any errors encountered. Close can
// be called multiple times on the [Iterator] and the same error will be
// returned.
func (iter *Iterator) Close() error {
	if iter.rows == nil {
		return iter.err
	}
	err := iter.rows.Close()
	if err == nil {
		err = iter.rows.Err()
	}
	iter.rows = nil
	if iter.err == nil {
		iter.err = err
	}
	return err
}

// Outcome holds metadata about executed statements, and can be provided as
// the first output argument to [Query.Get] or [Query.GetAll] to populate it
// with information about the execution.
type Outcome struct {
	result sql.Result
}

// Result returns a [sql.Result] containing information about the statement
// execution. If no result is set then Result returns nil.
func (o *Outcome) Result() sql.Result {
	return o.result
}

// GetAll iterates over the query and scans all rows into the provided slices.
// sliceArgs must contain pointers to slices of each of the output types.
//
// [ErrNoRows] will be returned if no rows are found.
func (q *Query) GetAll(sliceArgs ...any) (err error) {
	if q.err != nil {
		return q.err
	}
	if len(sliceArgs) > 0 {
		if outcome, ok := sliceArgs[0].(*Outcome); ok {
			outcome.result = nil
			sliceArgs = sliceArgs[1:]
		}
	}
	if len(sliceArgs) == 0 {
		return fmt.Errorf("need at least one pointer to slice")
	}

	// Check slice inputs are valid using reflection.
	var slicePtrVals = []reflect.Value{}
	var sliceVals = []reflect.Value{}
	for _, ptr := range sliceArgs {
		ptrVal := reflect.ValueOf(ptr)
		if ptrVal.Kind() != reflect.Pointer {
			return fmt.Errorf("need pointer to slice, got %s", ptrVal.Kind())
		}
		if ptrVal.IsNil() {
			return fmt.Errorf("need pointer to slice, got nil")
		}
		slicePtrVals = append(slicePtrVals, ptrVal)
		sliceVal := ptrVal.Elem()
		if sliceVal.Kind() != reflect.Slice {
			return fmt.Errorf("need pointer to slice, got pointer to %s", sliceVal.Kind())
		}
		sliceVals = append(sliceVals, sliceVal)
	}

	// Iterate over the query results.
	rowsReturned := false
	iter := q.Iter()
	for iter.Next() {
		rowsReturned = true
		var outputArgs = []any{}
		for _, sliceVal := range sliceVals {
			elemType := sliceVal.Type().Elem()
			var outputArg reflect.Value
			switch elemType.Kind() {
			case reflect.Pointer:
				if elemType.Elem().Kind() != reflect.Struct {
					iter.Close()
					return fmt.Errorf("need slice of structs/maps, got slice of pointer to %s", elemType.Elem().Kind())
				}
				outputArg = reflect.New(elemType.Elem())
			case reflect.Struct:
				outputArg = reflect.New(elemType)
			case reflect.Map:
				outputArg = reflect.MakeMap(elemType)
			default:
				iter.Close()
				return fmt.Errorf("need slice of structs/maps, got slice of %s", elemType.Kind())
			}
			outputArgs = append(outputArgs, outputArg.Interface())
		}
		if err := iter.Get(outputArgs...); err != nil {
			iter.Close()
			return err
		}
		for i, outputArg := range outputArgs {
			switch k := sliceVals[i].Type().Elem().Kind(); k {
			case reflect.Pointer, reflect.Map:
				sliceVals[i] = reflect.Append(sliceVals[i], reflect.ValueOf(outputArg))
			case reflect.Struct:
				sliceVals[i] = reflect.Append(sliceVals[i], reflect.ValueOf(outputArg).Elem())
			default:
				iter.Close()
				return fmt.Errorf("internal error: output arg has unexpected kind %s", k)
			}
		}
	}
	err = iter.Close()
	if err != nil {
		return err
	} else if !rowsReturned {
		return ErrNoRows
	}

	for i, ptrVal := range slicePtrVals {
		ptrVal.Elem().Set(sliceVals[i])
	}
	return nil
}

// TX represents a transaction on the database.
type TX struct {
	sqltx *sql.Tx
	db    *DB
	done  atomic.Bool
}

func (tx *TX) setDone() error {
	if !tx.done.CompareAndSwap(false, true) {
		return ErrTXDone
	}
	return nil
}

// Begin starts a transaction. A transaction must be ended with a
// [TX.Commit] or [TX.Rollback].
func (db *DB) Begin(ctx context.Context, opts *TXOptions) (*TX, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	sqltx, err := db.sqldb.BeginTx(ctx, opts.plainTXOptions())
	if err != nil {
		return nil, err
	}
	return &TX{sqltx: sqltx, db: db}, nil
}

// Commit commits the transaction.
func (tx *TX) Commit() error {
	err := tx.setDone()
	if err == nil {
		err = tx.sqltx.Commit()
	}
	return err
}

// Rollback aborts the transaction.
func (tx *TX) Rollback() error {
	err := tx.setDone()
	if err == nil {
		err = tx.sqltx.Rollback()
	}
	return err
}

// TXOptions holds the transaction options to be used in [DB.Begin].
type TXOptions struct {
	// Isolation is the transaction isolation level.
	// If zero, the driver or database's default level is used.
	Isolation sql.IsolationLevel
	ReadOnly  bool
}

func (txopts *TXOptions) plainTXOptions() *sql.TxOptions {
	if txopts == nil {
		return nil
	}
	return &sql.TxOptions{Isolation: txopts.Isolation, ReadOnly: txopts.ReadOnly}
}

// Query builds a template into a query on the transaction. The query is run
// when one of [Query.Iter], [Query.Run], [Query.Get] or [Query.GetAll] is
// executed.
func (tx *TX) Query(ctx context.Context, t *Template, bindings M) *Query {
	return tx.QueryEntity(ctx, t, nil, bindings)
}

// QueryEntity is like [TX.Query] but also passes the entity for the expand
// and populate directives.
func (tx *TX) QueryEntity(ctx context.Context, t *Template, entity any, bindings M) *Query {
	if ctx == nil {
		ctx = context.Background()
	}
	if tx.done.Load() {
		return &Query{ctx: ctx, err: ErrTXDone}
	}
	return tx.db.query(ctx, tx.sqltx, t, entity, bindings)
}
