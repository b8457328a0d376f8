// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package example walks through the twoway API on an in-memory SQLite
// database.
package example

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/canonical/twoway"
	"github.com/canonical/twoway/dialect"
)

type Location struct {
	ID   int    `db:"room_id"`
	Name string `db:"name"`
	Team string `db:"team"`
}

type Person struct {
	Name string `db:"name"`
	ID   int    `db:"id"`
	Team string `db:"team"`
}

type placement struct {
	Person   string `db:"name"`
	Location string `db:"location"`
}

var (
	create = twoway.MustPrepare("example/create.sql", `
	CREATE TABLE person (
		name text,
		id integer,
		team text
	);
	CREATE TABLE location (
		room_id integer,
		name text,
		team text
	)`)

	insertPerson = twoway.MustPrepare("example/insert-person.sql",
		`INSERT INTO person (/*%expand*/*) VALUES (/*p.name*/'Fred', /*p.id*/1, /*p.team*/'sales')`)

	insertLocation = twoway.MustPrepare("example/insert-location.sql",
		`INSERT INTO location (/*%expand*/*) VALUES (/*l.room_id*/1, /*l.name*/'Basement', /*l.team*/'sales')`)

	selectTeam = twoway.MustPrepare("example/select-team.sql", `
		SELECT /*%expand*/*
		FROM person
		WHERE team = /*team*/'engineering'
		ORDER BY id`)

	selectPlacements = twoway.MustPrepare("example/select-placements.sql", `
		SELECT p.name, l.name AS location
		FROM location AS l
			JOIN person AS p
			ON p.team = l.team
		WHERE l.room_id IN /*rooms*/(1, 2)
		ORDER BY p.id`)

	drop = twoway.MustPrepare("example/drop.sql", "DROP TABLE person; DROP TABLE location;")
)

// Run fills a database with people and the rooms of their teams, then
// prints who is where to w.
func Run(ctx context.Context, w io.Writer) error {
	sqldb, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return err
	}
	defer sqldb.Close()
	sqldb.SetMaxOpenConns(1)

	db := twoway.NewDB(sqldb, twoway.WithDialect(dialect.SQLite))
	if err := db.Query(ctx, create, nil).Run(); err != nil {
		return err
	}

	var al = Person{"Alastair", 1, "engineering"}
	var ed = Person{"Ed", 2, "engineering"}
	var marco = Person{"Marco", 3, "engineering"}
	var pedro = Person{"Pedro", 4, "management"}
	var serdar = Person{"Serdar", 5, "presentation engineering"}
	var joe = Person{"Joe", 6, "marketing"}
	var ben = Person{"Ben", 7, "legal"}
	var sam = Person{"Sam", 8, "hr"}
	var paul = Person{"Paul", 9, "sales"}
	var mark = Person{"Mark", 10, "leadership"}
	var gus = Person{"Gustavo", 11, "leadership"}
	var people = []Person{ed, al, marco, pedro, serdar, joe, ben, sam, paul, mark, gus}
	for _, p := range people {
		if err := db.QueryEntity(ctx, insertPerson, p, twoway.M{"p": p}).Run(); err != nil {
			return err
		}
	}

	l1 := Location{1, "Basement", "engineering"}
	l2 := Location{34, "Floor 2", "presentation engineering"}
	l3 := Location{19, "Floor 3", "management"}
	l4 := Location{66, "The Market", "marketing"}
	l5 := Location{7, "Court", "legal"}
	l6 := Location{9, "Floors 4 to 89", "hr"}
	l7 := Location{73, "Bar", "Sales"}
	l8 := Location{32, "Penthouse", "leadership"}
	var locations = []Location{l1, l2, l3, l4, l5, l6, l7, l8}
	for _, l := range locations {
		if err := db.QueryEntity(ctx, insertLocation, l, twoway.M{"l": l}).Run(); err != nil {
			return err
		}
	}

	// Find someone on the engineering team.
	var pal Person
	// Get returns a single result.
	err = db.QueryEntity(ctx, selectTeam, Person{}, twoway.M{"team": "engineering"}).Get(&pal)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s is on the engineering team.\n", pal.Name)

	// Find out who works in l1.
	var roomDwellers []Person
	// GetAll returns all the results.
	err = db.QueryEntity(ctx, selectTeam, Person{}, twoway.M{"team": l1.Team}).GetAll(&roomDwellers)
	if err != nil {
		return err
	}
	names := make([]string, len(roomDwellers))
	for i, p := range roomDwellers {
		names[i] = p.Name
	}
	fmt.Fprintf(w, "%s work in the %s.\n", strings.Join(names, ", "), l1.Name)

	// Print out who is in the rooms l3 and l5.
	iter := db.Query(ctx, selectPlacements, twoway.M{"rooms": []int{l3.ID, l5.ID}}).Iter()
	// Results can be iterated through with Iter.
	for iter.Next() {
		var pl placement
		if err := iter.Get(&pl); err != nil {
			iter.Close()
			return err
		}
		fmt.Fprintf(w, "%s is in %s.\n", pl.Person, pl.Location)
	}
	if err := iter.Close(); err != nil {
		return err
	}

	return db.Query(ctx, drop, nil).Run()
}
