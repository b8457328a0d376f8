// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package twoway_test

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"

	. "gopkg.in/check.v1"

	"github.com/canonical/twoway"
	"github.com/canonical/twoway/dialect"
)

type PackageSuite struct{}

var _ = Suite(&PackageSuite{})

type Address struct {
	ID       int    `db:"id"`
	District string `db:"district"`
	Street   string `db:"street"`
}

type Person struct {
	ID         int    `db:"id"`
	Fullname   string `db:"name"`
	PostalCode int    `db:"address_id"`
}

type PersonName struct {
	Fullname string `db:"name"`
}

func createExampleDB(sqldb *sql.DB, createTables string, inserts []string) error {
	if _, err := sqldb.Exec(createTables); err != nil {
		return err
	}
	for _, insert := range inserts {
		if _, err := sqldb.Exec(insert); err != nil {
			return err
		}
	}
	return nil
}

// personAndAddressDB opens a database recording its statements under the
// test name and fills it with example rows.
func personAndAddressDB(c *C) (*sql.DB, func()) {
	createTables := `
CREATE TABLE person (
	name text,
	id integer,
	address_id integer,
	email text
);
CREATE TABLE address (
	id integer,
	district text,
	street text
);
`
	dropTables := `
DROP TABLE person;
DROP TABLE address;
`
	inserts := []string{
		"INSERT INTO person VALUES ('Fred', 30, 1000, 'fred@email.com');",
		"INSERT INTO person VALUES ('Mark', 20, 1500, 'mark@email.com');",
		"INSERT INTO person VALUES ('Mary', 40, 3500, 'mary@email.com');",
		"INSERT INTO person VALUES ('James', 35, 4500, 'james@email.com');",
		"INSERT INTO address VALUES (1000, 'Happy Land', 'Main Street');",
		"INSERT INTO address VALUES (1500, 'Sad World', 'Church Road');",
		"INSERT INTO address VALUES (3500, 'Ambivalent Commons', 'Station Lane');",
	}

	sqldb, err := twoway.OpenRecordingDB(c.TestName())
	c.Assert(err, IsNil)
	c.Assert(createExampleDB(sqldb, createTables, inserts), IsNil)
	return sqldb, func() {
		_, err := sqldb.Exec(dropTables)
		c.Check(err, IsNil)
		c.Check(sqldb.Close(), IsNil)
	}
}

// lastStmt returns the last statement the test ran through the recording
// driver.
func lastStmt(c *C) twoway.RecordedStmt {
	stmts := twoway.RecordedStmts(c.TestName())
	c.Assert(stmts, Not(HasLen), 0)
	return stmts[len(stmts)-1]
}

func (s *PackageSuite) TearDownTest(c *C) {
	twoway.InvalidateAll()
}

func (s *PackageSuite) TestGet(c *C) {
	sqldb, cleanup := personAndAddressDB(c)
	defer cleanup()
	db := twoway.NewDB(sqldb)

	t := twoway.MustPrepare("person/by-id.sql", `SELECT /*%expand "p"*/* FROM person AS p WHERE p.id = /*id*/0`)
	var p Person
	err := db.QueryEntity(nil, t, Person{}, twoway.M{"id": 30}).Get(&p)
	c.Assert(err, IsNil)
	c.Check(p, Equals, Person{ID: 30, Fullname: "Fred", PostalCode: 1000})

	stmt := lastStmt(c)
	c.Check(stmt.Query, Equals, "SELECT p.id, p.name, p.address_id FROM person AS p WHERE p.id = ?")
	c.Check(stmt.Args, DeepEquals, []any{int64(30)})
}

func (s *PackageSuite) TestGetIntoMap(c *C) {
	sqldb, cleanup := personAndAddressDB(c)
	defer cleanup()
	db := twoway.NewDB(sqldb)

	t := twoway.MustPrepare("person/name-and-street.sql", `
SELECT p.name, a.street
FROM person AS p JOIN address AS a ON p.address_id = a.id
WHERE p.name = /*name*/'Mark'`)
	var p PersonName
	m := twoway.M{}
	err := db.Query(nil, t, twoway.M{"name": "Mary"}).Get(&p, m)
	c.Assert(err, IsNil)
	c.Check(p.Fullname, Equals, "Mary")
	c.Check(m, DeepEquals, twoway.M{"street": "Station Lane"})
}

func (s *PackageSuite) TestGetAllWithInList(c *C) {
	sqldb, cleanup := personAndAddressDB(c)
	defer cleanup()
	db := twoway.NewDB(sqldb)

	t := twoway.MustPrepare("person/by-names.sql", `SELECT /*%expand*/* FROM person
/*%if isNotEmpty(names)*/WHERE name IN /*names*/('Fred')/*%end*/
ORDER BY id`)

	var people []Person
	err := db.QueryEntity(nil, t, Person{}, twoway.M{"names": []string{"Fred", "Mary"}}).GetAll(&people)
	c.Assert(err, IsNil)
	c.Check(people, DeepEquals, []Person{{30, "Fred", 1000}, {40, "Mary", 3500}})
	stmt := lastStmt(c)
	c.Check(stmt.Query, Equals, "SELECT id, name, address_id FROM person\nWHERE name IN (?, ?)\nORDER BY id")
	c.Check(stmt.Args, DeepEquals, []any{"Fred", "Mary"})

	// Without names the condition is dropped.
	people = nil
	err = db.QueryEntity(nil, t, Person{}, twoway.M{"names": nil}).GetAll(&people)
	c.Assert(err, IsNil)
	c.Check(people, HasLen, 4)
	c.Check(lastStmt(c).Query, Equals, "SELECT id, name, address_id FROM person\n\nORDER BY id")
}

func (s *PackageSuite) TestGetAllWithLoop(c *C) {
	sqldb, cleanup := personAndAddressDB(c)
	defer cleanup()
	db := twoway.NewDB(sqldb)

	t := twoway.MustPrepare("person/by-prefixes.sql",
		`SELECT name FROM person WHERE /*%for n : prefixes*/name LIKE /*@prefix(n)*/'a%'/*%if n_has_next*/ OR /*%end*//*%end*/ ORDER BY name`)

	var names []PersonName
	err := db.Query(nil, t, twoway.M{"prefixes": []string{"Ma", "J"}}).GetAll(&names)
	c.Assert(err, IsNil)
	c.Check(names, DeepEquals, []PersonName{{"James"}, {"Mark"}, {"Mary"}})
	stmt := lastStmt(c)
	c.Check(stmt.Query, Equals, "SELECT name FROM person WHERE name LIKE ? OR name LIKE ? ORDER BY name")
	c.Check(stmt.Args, DeepEquals, []any{"Ma%", "J%"})
}

func (s *PackageSuite) TestIter(c *C) {
	sqldb, cleanup := personAndAddressDB(c)
	defer cleanup()
	db := twoway.NewDB(sqldb)

	t := twoway.MustPrepare("address/all.sql", `SELECT /*%expand*/* FROM address ORDER BY id`)
	iter := db.QueryEntity(nil, t, Address{}, nil).Iter()
	var addresses []Address
	for iter.Next() {
		var a Address
		c.Assert(iter.Get(&a), IsNil)
		addresses = append(addresses, a)
	}
	c.Assert(iter.Close(), IsNil)
	c.Check(addresses, DeepEquals, []Address{
		{1000, "Happy Land", "Main Street"},
		{1500, "Sad World", "Church Road"},
		{3500, "Ambivalent Commons", "Station Lane"},
	})

	// Get after the end of iteration.
	c.Check(iter.Get(&Address{}), ErrorMatches, "cannot get result: iteration ended")
	c.Check(iter.Close(), IsNil)
}

func (s *PackageSuite) TestIterGetErrors(c *C) {
	sqldb, cleanup := personAndAddressDB(c)
	defer cleanup()
	db := twoway.NewDB(sqldb)

	var tests = []struct {
		summary string
		outputs []any
		err     string
	}{{
		summary: "nil parameter",
		outputs: []any{nil},
		err:     "cannot get result: need map or pointer to struct, got nil",
	}, {
		summary: "nil pointer parameter",
		outputs: []any{(*Person)(nil)},
		err:     "cannot get result: need map or pointer to struct, got nil",
	}, {
		summary: "non pointer parameter",
		outputs: []any{Person{}},
		err:     "cannot get result: need map or pointer to struct, got struct",
	}, {
		summary: "not a struct",
		outputs: []any{&[]any{}},
		err:     "cannot get result: need map or pointer to struct, got pointer to slice",
	}, {
		summary: "multiple of the same type",
		outputs: []any{&Person{}, &Person{}},
		err:     `cannot get result: type "Person" provided more than once`,
	}, {
		summary: "column with no destination",
		outputs: []any{&PersonName{}},
		err:     `cannot get result: column "id" not found in outputs`,
	}}

	t := twoway.MustPrepare("person/all.sql", "SELECT id, name FROM person")
	for _, test := range tests {
		iter := db.Query(nil, t, nil).Iter()
		c.Assert(iter.Next(), Equals, true)
		err := iter.Get(test.outputs...)
		c.Check(err, ErrorMatches, test.err, Commentf("test %q failed", test.summary))
		c.Check(iter.Close(), IsNil)
	}
}

func (s *PackageSuite) TestErrNoRows(c *C) {
	sqldb, cleanup := personAndAddressDB(c)
	defer cleanup()
	db := twoway.NewDB(sqldb)

	t := twoway.MustPrepare("person/by-id.sql", `SELECT /*%expand*/* FROM person WHERE id = /*id*/0`)
	err := db.QueryEntity(nil, t, Person{}, twoway.M{"id": 1234}).Get(&Person{})
	c.Check(errors.Is(err, twoway.ErrNoRows), Equals, true)
	c.Check(errors.Is(err, sql.ErrNoRows), Equals, true)

	var people []Person
	err = db.QueryEntity(nil, t, Person{}, twoway.M{"id": 1234}).GetAll(&people)
	c.Check(err, Equals, twoway.ErrNoRows)
	c.Check(people, IsNil)
}

func (s *PackageSuite) TestGetAllErrors(c *C) {
	sqldb, cleanup := personAndAddressDB(c)
	defer cleanup()
	db := twoway.NewDB(sqldb)

	t := twoway.MustPrepare("person/all.sql", "SELECT id, name FROM person")
	var tests = []struct {
		summary string
		slices  []any
		err     string
	}{{
		summary: "no slices",
		slices:  []any{},
		err:     "need at least one pointer to slice",
	}, {
		summary: "only an outcome",
		slices:  []any{&twoway.Outcome{}},
		err:     "need at least one pointer to slice",
	}, {
		summary: "not a pointer",
		slices:  []any{[]Person{}},
		err:     "need pointer to slice, got slice",
	}, {
		summary: "nil pointer",
		slices:  []any{(*[]Person)(nil)},
		err:     "need pointer to slice, got nil",
	}, {
		summary: "pointer to struct",
		slices:  []any{&Person{}},
		err:     "need pointer to slice, got pointer to struct",
	}, {
		summary: "slice of ints",
		slices:  []any{&[]int{}},
		err:     "need slice of structs/maps, got slice of int",
	}}
	for _, test := range tests {
		err := db.Query(nil, t, nil).GetAll(test.slices...)
		c.Check(err, ErrorMatches, test.err, Commentf("test %q failed", test.summary))
	}
}

func (s *PackageSuite) TestBuildErrorsReturnedByQuery(c *C) {
	sqldb, cleanup := personAndAddressDB(c)
	defer cleanup()
	db := twoway.NewDB(sqldb)

	recorded := len(twoway.RecordedStmts(c.TestName()))
	t := twoway.MustPrepare("person/expand.sql", "SELECT /*%expand*/* FROM person")
	q := db.Query(nil, t, nil)
	c.Check(q.PreparedSQL(), IsNil)
	err := q.Get(&Person{})
	c.Assert(err, ErrorMatches, `cannot build template "person/expand.sql": line 1, column 8: expand needs an entity`)
	var buildErr *twoway.BuildError
	c.Check(errors.As(err, &buildErr), Equals, true)

	t = twoway.MustPrepare("person/by-missing.sql", "SELECT * FROM person WHERE id = /*missing*/1")
	err = db.Query(nil, t, nil).Run()
	var evalErr *twoway.EvaluationError
	c.Assert(errors.As(err, &evalErr), Equals, true)
	c.Check(evalErr.Expr, Equals, "missing")
	c.Check(evalErr.Location, Equals, twoway.Location{Line: 1, Column: 35, Offset: 34})

	// Nothing reached the database.
	c.Check(twoway.RecordedStmts(c.TestName()), HasLen, recorded)
}

func (s *PackageSuite) TestRunWithOutcome(c *C) {
	sqldb, cleanup := personAndAddressDB(c)
	defer cleanup()
	db := twoway.NewDB(sqldb)

	t := twoway.MustPrepare("person/update.sql", `UPDATE person SET /*%populate*/name = 'x' WHERE id = /*id*/0`)
	var outcome twoway.Outcome
	err := db.QueryEntity(nil, t, PersonName{Fullname: "Freddy"}, twoway.M{"id": 30}).Get(&outcome)
	c.Assert(err, IsNil)
	c.Assert(outcome.Result(), NotNil)
	n, err := outcome.Result().RowsAffected()
	c.Assert(err, IsNil)
	c.Check(n, Equals, int64(1))

	stmt := lastStmt(c)
	c.Check(stmt.Query, Equals, "UPDATE person SET name = ? WHERE id = ?")
	c.Check(stmt.Args, DeepEquals, []any{"Freddy", int64(30)})

	var p PersonName
	get := twoway.MustPrepare("person/name-by-id.sql", `SELECT name FROM person WHERE id = /*id*/0`)
	c.Assert(db.Query(nil, get, twoway.M{"id": 30}).Get(&p), IsNil)
	c.Check(p.Fullname, Equals, "Freddy")
}

func (s *PackageSuite) TestLiteralAndEmbeddedVariables(c *C) {
	sqldb, cleanup := personAndAddressDB(c)
	defer cleanup()
	db := twoway.NewDB(sqldb)

	t := twoway.MustPrepare("person/top.sql", `SELECT name FROM person ORDER BY /*#order*/ LIMIT /*^limit*/10`)
	q := db.Query(nil, t, twoway.M{"order": "id DESC", "limit": 2})
	var names []PersonName
	c.Assert(q.GetAll(&names), IsNil)
	c.Check(names, DeepEquals, []PersonName{{"Mary"}, {"James"}})
	c.Check(q.PreparedSQL().SQL, Equals, "SELECT name FROM person ORDER BY id DESC LIMIT 2")
	c.Check(lastStmt(c).Query, Equals, "SELECT name FROM person ORDER BY id DESC LIMIT 2")

	// Embedded text that could break out of the statement is refused.
	err := db.Query(nil, t, twoway.M{"order": "id; DROP TABLE person", "limit": 2}).Run()
	c.Check(err, ErrorMatches, `.*embedded text "id; DROP TABLE person" rejected: embedded text must not contain ";"`)
}

func (s *PackageSuite) TestQueryMultipleRuns(c *C) {
	sqldb, cleanup := personAndAddressDB(c)
	defer cleanup()
	db := twoway.NewDB(sqldb)

	recorded := len(twoway.RecordedStmts(c.TestName()))
	t := twoway.MustPrepare("person/by-id.sql", `SELECT /*%expand*/* FROM person WHERE id = /*id*/0`)
	q := db.QueryEntity(nil, t, Person{}, twoway.M{"id": 20})
	for i := 0; i < 3; i++ {
		var p Person
		c.Assert(q.Get(&p), IsNil)
		c.Check(p.Fullname, Equals, "Mark")
	}
	c.Check(twoway.RecordedStmts(c.TestName()), HasLen, recorded+3)
}

func (s *PackageSuite) TestTransactions(c *C) {
	sqldb, cleanup := personAndAddressDB(c)
	defer cleanup()

	selectStmt := twoway.MustPrepare("person/by-address.sql",
		`SELECT /*%expand*/* FROM person WHERE address_id = /*p.address_id*/0`)
	insertStmt := twoway.MustPrepare("person/insert.sql",
		`INSERT INTO person VALUES (/*p.name*/'', /*p.id*/0, /*p.address_id*/0, 'fred@email.com')`)
	var derek = Person{ID: 85, Fullname: "Derek", PostalCode: 8000}
	ctx := context.Background()

	db := twoway.NewDB(sqldb)
	tx, err := db.Begin(ctx, nil)
	c.Assert(err, IsNil)

	// Insert derek then rollback.
	c.Assert(tx.Query(ctx, insertStmt, twoway.M{"p": derek}).Run(), IsNil)
	c.Assert(tx.Rollback(), IsNil)

	// Check derek isnt in db; insert derek; commit.
	tx, err = db.Begin(ctx, nil)
	c.Assert(err, IsNil)
	var derekCheck = Person{}
	err = tx.QueryEntity(ctx, selectStmt, Person{}, twoway.M{"p": derek}).Get(&derekCheck)
	c.Assert(err, Equals, twoway.ErrNoRows)
	c.Assert(tx.Query(ctx, insertStmt, twoway.M{"p": &derek}).Run(), IsNil)
	c.Assert(tx.Commit(), IsNil)

	// Check derek is now in the db.
	tx, err = db.Begin(ctx, &twoway.TXOptions{})
	c.Assert(err, IsNil)
	c.Assert(tx.QueryEntity(ctx, selectStmt, Person{}, twoway.M{"p": derek}).Get(&derekCheck), IsNil)
	c.Assert(derekCheck, Equals, derek)
	c.Assert(tx.Commit(), IsNil)
}

func (s *PackageSuite) TestTransactionErrors(c *C) {
	sqldb, cleanup := personAndAddressDB(c)
	defer cleanup()

	insertStmt := twoway.MustPrepare("person/insert.sql",
		`INSERT INTO person VALUES (/*p.name*/'', /*p.id*/0, /*p.address_id*/0, 'fred@email.com')`)
	var derek = Person{ID: 85, Fullname: "Derek", PostalCode: 8000}
	ctx := context.Background()
	db := twoway.NewDB(sqldb)

	// Test running query after commit.
	tx, err := db.Begin(ctx, nil)
	c.Assert(err, IsNil)
	q := tx.Query(ctx, insertStmt, twoway.M{"p": derek})
	c.Assert(tx.Commit(), IsNil)
	c.Assert(q.Run(), ErrorMatches, "sql: transaction has already been committed or rolled back")

	// Test building a query after rollback.
	tx, err = db.Begin(ctx, nil)
	c.Assert(err, IsNil)
	c.Assert(tx.Rollback(), IsNil)
	err = tx.Query(ctx, insertStmt, twoway.M{"p": derek}).Run()
	c.Assert(err, Equals, twoway.ErrTXDone)

	// A transaction ends once.
	c.Assert(tx.Commit(), Equals, twoway.ErrTXDone)
	c.Assert(tx.Rollback(), Equals, twoway.ErrTXDone)
}

func (s *PackageSuite) TestLogging(c *C) {
	sqldb, cleanup := personAndAddressDB(c)
	defer cleanup()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	db := twoway.NewDB(sqldb, twoway.WithLogger(logger), twoway.WithDialect(dialect.SQLite))
	c.Check(db.Dialect(), Equals, dialect.SQLite)

	t := twoway.MustPrepare("person/name-by-id.sql", `SELECT name FROM person WHERE id = /*id*/0`)
	c.Assert(db.Query(nil, t, twoway.M{"id": 30}).Get(&PersonName{}), IsNil)
	out := buf.String()
	c.Check(strings.Contains(out, `msg="executing statement"`), Equals, true, Commentf("log: %s", out))
	c.Check(strings.Contains(out, "WHERE id = 30"), Equals, true, Commentf("log: %s", out))

	buf.Reset()
	bad := twoway.MustPrepare("person/bad.sql", `SELECT name FROM nowhere WHERE id = /*id*/0`)
	c.Assert(db.Query(nil, bad, twoway.M{"id": 30}).Run(), NotNil)
	c.Check(strings.Contains(buf.String(), `msg="statement failed"`), Equals, true, Commentf("log: %s", buf.String()))
}

func (s *PackageSuite) TestNewDBNil(c *C) {
	c.Check(twoway.NewDB(nil), IsNil)
	sqldb, cleanup := personAndAddressDB(c)
	defer cleanup()
	c.Check(twoway.NewDB(sqldb).PlainDB(), Equals, sqldb)
	c.Check(twoway.NewDB(sqldb).Dialect(), Equals, dialect.Standard)
}
