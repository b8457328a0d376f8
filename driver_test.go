// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package twoway

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"strings"
	"sync"

	"github.com/mattn/go-sqlite3"
)

// This file contains a wrapper sql.Driver over the SQLite driver which
// records the statements run on each connection along with their arguments.
// Tests use it to check the SQL that templates are built into.

// RecordedStmt is a statement run on the recording driver.
type RecordedStmt struct {
	Query string
	Args  []any
}

// recordedStmts stores the statements run, indexed by test name. The
// recordedMutex must be held when accessing it.
var recordedStmts = map[string][]RecordedStmt{}
var recordedMutex sync.Mutex

type recordingDriver struct {
	driver.Driver
}

type recordingConn struct {
	testName string
	*sqlite3.SQLiteConn
}

func (c *recordingConn) record(query string, args []driver.NamedValue) {
	vals := make([]any, len(args))
	for i, a := range args {
		vals[i] = a.Value
	}
	recordedMutex.Lock()
	defer recordedMutex.Unlock()
	recordedStmts[c.testName] = append(recordedStmts[c.testName], RecordedStmt{Query: query, Args: vals})
}

func (c *recordingConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	rows, err := c.SQLiteConn.QueryContext(ctx, query, args)
	if err == nil {
		c.record(query, args)
	}
	return rows, err
}

func (c *recordingConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	res, err := c.SQLiteConn.ExecContext(ctx, query, args)
	if err == nil {
		c.record(query, args)
	}
	return res, err
}

const testNameTag = "testName"

// Open expects the DSN to contain the test name using the testNameTag
// attribute.
func (d *recordingDriver) Open(name string) (driver.Conn, error) {
	var testName string
	if _, parameters, ok := strings.Cut(name, "?"); ok {
		for _, p := range strings.Split(parameters, "&") {
			if k, v, _ := strings.Cut(p, "="); k == testNameTag {
				testName = v
			}
		}
	}
	if testName == "" {
		panic("internal error: testName is not found in the db DSN")
	}

	baseConn, err := d.Driver.Open(name)
	if err != nil {
		return nil, err
	}
	if baseConn, ok := baseConn.(*sqlite3.SQLiteConn); ok {
		return &recordingConn{SQLiteConn: baseConn, testName: testName}, nil
	}
	panic("internal error: base driver is not SQLite")
}

// RecordedStmts returns the statements run by a test.
func RecordedStmts(testName string) []RecordedStmt {
	recordedMutex.Lock()
	defer recordedMutex.Unlock()
	return append([]RecordedStmt(nil), recordedStmts[testName]...)
}

// OpenRecordingDB opens an in memory SQLite database whose statements are
// recorded under testName.
func OpenRecordingDB(testName string) (*sql.DB, error) {
	return sql.Open("sqlite3_recorded", "file:"+testName+"?mode=memory&cache=shared&"+testNameTag+"="+testName)
}

func init() {
	sql.Register("sqlite3_recorded", &recordingDriver{
		&sqlite3.SQLiteDriver{},
	})
}
