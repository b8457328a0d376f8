// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/canonical/twoway"
)

type execOutput struct {
	Columns []string         `json:"columns" yaml:"columns"`
	Rows    []map[string]any `json:"rows" yaml:"rows"`
}

func newExecCmd() *cobra.Command {
	var noRows bool
	var entity string
	cmd := &cobra.Command{
		Use:   "exec <template> [name=value...]",
		Short: "Build a template and run it on a database",
		Long: `Build a template and run the statement on the database given by the driver
and dsn settings. Result rows are printed as a table, or with --no-rows the
number of rows affected is printed.`,
		Example: `  twoway exec --driver sqlite3 --dsn app.db emp/by-dept.sql 'depts=[10]'
  twoway exec --driver pgx --dsn postgres://localhost/app --no-rows emp/raise.sql pct=5`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e := getEnv(cmd.Context())
			ctx := cmd.Context()

			repo, err := e.repository()
			if err != nil {
				return err
			}
			t, err := repo.Get(args[0])
			if err != nil {
				return err
			}
			params, err := loadParams(e.cfg.Params, args[1:])
			if err != nil {
				return err
			}
			opts, err := buildOptions(e, params, entity)
			if err != nil {
				return err
			}

			sqldb, err := openDB(ctx, e.cfg, e.logger)
			if err != nil {
				return err
			}
			defer sqldb.Close()
			db := twoway.NewDB(sqldb, e.options()...)
			e.logger.Debug("running template", "template", t.ID(), "driver", e.cfg.Driver, "dialect", db.Dialect().Name())
			q := db.QueryEntity(ctx, t, opts.Entity, params)

			if noRows {
				var outcome twoway.Outcome
				if err := q.Get(&outcome); err != nil {
					return err
				}
				n, err := outcome.Result().RowsAffected()
				if err != nil {
					return err
				}
				return printAffected(cmd.OutOrStdout(), e.cfg.Output, n)
			}

			out, err := readRows(q)
			if err != nil {
				return err
			}
			return printRows(cmd.OutOrStdout(), e.cfg.Output, out)
		},
	}
	cmd.Flags().BoolVar(&noRows, "no-rows", false, "run a statement that returns no rows and print the rows affected")
	cmd.Flags().StringVarP(&entity, "entity", "e", "", "binding holding the entity for expand and populate")
	return cmd
}

func readRows(q *twoway.Query) (*execOutput, error) {
	iter := q.Iter()
	out := &execOutput{Rows: []map[string]any{}}
	for iter.Next() {
		row := twoway.M{}
		if err := iter.Get(row); err != nil {
			iter.Close()
			return nil, err
		}
		for k, v := range row {
			if b, ok := v.([]byte); ok {
				row[k] = string(b)
			}
		}
		out.Rows = append(out.Rows, row)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	out.Columns = iter.Columns()
	return out, nil
}

func printRows(w io.Writer, output string, out *execOutput) error {
	if output != "text" {
		return encode(w, output, out)
	}
	if len(out.Rows) == 0 {
		_, err := fmt.Fprintln(w, "(0 rows)")
		return err
	}
	header := make([]any, len(out.Columns))
	for i, col := range out.Columns {
		header[i] = col
	}
	t := newTable(w, header...)
	for _, row := range out.Rows {
		r := make([]any, len(out.Columns))
		for i, col := range out.Columns {
			r[i] = formatValue(row[col])
		}
		t.AppendRow(r)
	}
	t.Render()
	_, err := fmt.Fprintf(w, "(%d rows)\n", len(out.Rows))
	return err
}

func printAffected(w io.Writer, output string, n int64) error {
	if output != "text" {
		return encode(w, output, map[string]int64{"rows_affected": n})
	}
	_, err := fmt.Fprintf(w, "%d rows affected\n", n)
	return err
}
