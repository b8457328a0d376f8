// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package demo runs templates kept as .sql files embedded in the binary.
package demo

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io"

	"github.com/canonical/twoway"
)

//go:embed queries
var queries embed.FS

// Templates holds the demo templates.
var Templates = twoway.NewRepository(queries, "queries")

type Person struct {
	Name     string `db:"name"`
	Height   int    `db:"height_cm"`
	HomeTown string `db:"home_town"`
}

type Place struct {
	Name       string `db:"town_name"`
	Population int    `db:"population"`
}

// Run creates and fills the demo tables in sqldb and prints who is taller
// than Jim to w.
func Run(ctx context.Context, sqldb *sql.DB, w io.Writer, opts ...twoway.Option) error {
	db := twoway.NewDB(sqldb, opts...)

	var people = []Person{{"Jim", 150, "Kabul"}, {"Saba", 162, "Berlin"}, {"Dave", 169, "Brasília"}, {"Sophie", 174, "Berlin"}, {"Kiri", 168, "Cape Town"}}
	var places = []Place{{"Kabul", 13000000}, {"Berlin", 3677472}, {"Brasília", 3039444}, {"Cape Town", 4710000}}

	// Create the tables
	if err := db.Query(ctx, Templates.MustGet("create.sql"), nil).Run(); err != nil {
		return err
	}

	// Insert the people and places
	tx, err := db.Begin(ctx, nil)
	if err != nil {
		return err
	}
	for _, person := range people {
		err := tx.QueryEntity(ctx, Templates.MustGet("people/insert.sql"), person, twoway.M{"p": person}).Run()
		if err != nil {
			tx.Rollback()
			return err
		}
	}
	for _, place := range places {
		err := tx.QueryEntity(ctx, Templates.MustGet("places/insert.sql"), place, twoway.M{"l": place}).Run()
		if err != nil {
			tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	// Find people taller than Jim
	jim := people[0]
	if err := printTaller(ctx, db, w, jim); err != nil {
		return err
	}

	// Find cities with people taller than Jim
	tallCities := []Place{}
	tallPeople := []Person{}
	err = db.QueryEntity(ctx, Templates.MustGet("places/taller-than.sql"), Person{}, twoway.M{"p": jim}).GetAll(&tallCities, &tallPeople)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "This is a list of cities with people taller than Jim: %v\n", tallCities)
	fmt.Fprintf(w, "This is a list of people taller than Jim: %v\n", tallPeople)

	// Jim grows
	jim.Height = 170
	var outcome twoway.Outcome
	err = db.QueryEntity(ctx, Templates.MustGet("people/update.sql"), jim, twoway.M{"p": jim}).Get(&outcome)
	if err != nil {
		return err
	}
	if n, err := outcome.Result().RowsAffected(); err != nil {
		return err
	} else if n != 1 {
		return fmt.Errorf("updated %d rows for %s", n, jim.Name)
	}
	fmt.Fprintf(w, "%s is now %d cm tall.\n", jim.Name, jim.Height)
	return printTaller(ctx, db, w, jim)
}

func printTaller(ctx context.Context, db *twoway.DB, w io.Writer, than Person) error {
	iter := db.QueryEntity(ctx, Templates.MustGet("people/taller-than.sql"), Person{}, twoway.M{"p": than}).Iter()
	for iter.Next() {
		p := Person{}
		if err := iter.Get(&p); err != nil {
			iter.Close()
			return err
		}
		fmt.Fprintf(w, "%s is taller than %s.\n", p.Name, than.Name)
	}
	return iter.Close()
}
