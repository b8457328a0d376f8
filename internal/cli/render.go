// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/canonical/twoway"
)

type renderParam struct {
	Type  string `json:"type" yaml:"type"`
	Value any    `json:"value" yaml:"value"`
}

type renderOutput struct {
	Template  string        `json:"template" yaml:"template"`
	SQL       string        `json:"sql" yaml:"sql"`
	Params    []renderParam `json:"params" yaml:"params"`
	Formatted string        `json:"formatted" yaml:"formatted"`
}

func newRenderCmd() *cobra.Command {
	var formatted bool
	var entity string
	cmd := &cobra.Command{
		Use:   "render <template> [name=value...]",
		Short: "Build a template and print the SQL",
		Long: `Build a template with the given bindings and print the resulting SQL and
its parameters. Bindings are read from the params file and from name=value
arguments, whose values are parsed as YAML.`,
		Example: `  # Print the SQL and parameters
  twoway render emp/search.sql name=Smith 'depts=[10, 20]'

  # Print the SQL with the parameters inlined
  twoway render emp/search.sql --params search.yaml --formatted`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e := getEnv(cmd.Context())
			ps, err := buildTemplate(e, args[0], args[1:], entity)
			if err != nil {
				return err
			}
			return printRender(cmd.OutOrStdout(), e.cfg.Output, ps, formatted)
		},
	}
	cmd.Flags().BoolVarP(&formatted, "formatted", "f", false, "print the SQL with the parameters inlined")
	cmd.Flags().StringVarP(&entity, "entity", "e", "", "binding holding the entity for expand and populate")
	return cmd
}

// buildTemplate loads a template from the repository and builds it with the
// bindings of the params file and args.
func buildTemplate(e *env, name string, args []string, entity string) (*twoway.PreparedSQL, error) {
	repo, err := e.repository()
	if err != nil {
		return nil, err
	}
	t, err := repo.Get(name)
	if err != nil {
		return nil, err
	}
	params, err := loadParams(e.cfg.Params, args)
	if err != nil {
		return nil, err
	}
	opts, err := buildOptions(e, params, entity)
	if err != nil {
		return nil, err
	}
	return t.Build(params, opts)
}

func buildOptions(e *env, params twoway.M, entity string) (*twoway.BuildOptions, error) {
	opts := &twoway.BuildOptions{Dialect: e.cfg.SQLDialect()}
	if e.cfg.AllowEmbedded {
		opts.CheckEmbedded = twoway.AllowEmbedded
	}
	if entity != "" {
		v, ok := params[entity]
		if !ok || v == nil {
			return nil, fmt.Errorf("entity binding %q not found", entity)
		}
		opts.Entity = v
	}
	return opts, nil
}

func printRender(w io.Writer, output string, ps *twoway.PreparedSQL, formatted bool) error {
	args, err := ps.Args()
	if err != nil {
		return err
	}
	if output != "text" {
		out := renderOutput{
			Template:  ps.ID,
			SQL:       ps.SQL,
			Params:    make([]renderParam, len(args)),
			Formatted: ps.Formatted,
		}
		for i, arg := range args {
			out.Params[i] = renderParam{Type: ps.Params[i].Type.String(), Value: arg}
		}
		return encode(w, output, out)
	}

	if formatted {
		_, err := fmt.Fprintln(w, ps.Formatted)
		return err
	}
	if _, err := fmt.Fprintln(w, ps.SQL); err != nil {
		return err
	}
	if len(args) == 0 {
		return nil
	}
	t := newTable(w, "#", "Type", "Value")
	for i, arg := range args {
		t.AppendRow([]any{i + 1, ps.Params[i].Type.String(), formatValue(arg)})
	}
	t.Render()
	return nil
}
