// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/canonical/twoway"
)

type checkResult struct {
	Template string `json:"template" yaml:"template"`
	OK       bool   `json:"ok" yaml:"ok"`
	Location string `json:"location,omitempty" yaml:"location,omitempty"`
	Error    string `json:"error,omitempty" yaml:"error,omitempty"`
}

func newCheckCmd() *cobra.Command {
	var build bool
	cmd := &cobra.Command{
		Use:   "check [template...]",
		Short: "Check templates for syntax errors",
		Long: `Parse templates and report the ones that are malformed. With no arguments
every .sql file of the template directory is checked. With --build each
template is also built with the bindings of the params file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e := getEnv(cmd.Context())
			repo, err := e.repository()
			if err != nil {
				return err
			}
			names := args
			if len(names) == 0 {
				if names, err = repo.Names(); err != nil {
					return err
				}
			}
			var params twoway.M
			if build {
				if params, err = loadParams(e.cfg.Params, nil); err != nil {
					return err
				}
			}

			results := make([]checkResult, 0, len(names))
			failed := 0
			for _, name := range names {
				res := checkResult{Template: name, OK: true}
				t, err := repo.Get(name)
				if err == nil && build {
					var opts *twoway.BuildOptions
					if opts, err = buildOptions(e, params, ""); err == nil {
						_, err = t.Build(params, opts)
					}
				}
				if err != nil {
					res.OK = false
					res.Location, res.Error = describeError(err)
					failed++
					e.logger.Debug("template check failed", "template", name, "error", err)
				}
				results = append(results, res)
			}

			if err := printCheck(cmd.OutOrStdout(), e.cfg.Output, results); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d templates have errors", failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&build, "build", "b", false, "also build each template with the params file")
	return cmd
}

// describeError splits a template error into its location and reason.
func describeError(err error) (string, string) {
	var syntaxErr *twoway.SyntaxError
	var evalErr *twoway.EvaluationError
	var buildErr *twoway.BuildError
	switch {
	case errors.As(err, &syntaxErr):
		return syntaxErr.Location.String(), syntaxErr.Reason
	case errors.As(err, &evalErr):
		reason := evalErr.Reason
		if evalErr.Cause != nil {
			reason += ": " + evalErr.Cause.Error()
		}
		return evalErr.Location.String(), reason
	case errors.As(err, &buildErr):
		reason := buildErr.Reason
		if buildErr.Cause != nil {
			reason += ": " + buildErr.Cause.Error()
		}
		return buildErr.Location.String(), reason
	}
	return "", err.Error()
}

func printCheck(w io.Writer, output string, results []checkResult) error {
	if output != "text" {
		return encode(w, output, results)
	}
	t := newTable(w, "Template", "Status", "Location", "Error")
	for _, res := range results {
		status := "ok"
		if !res.OK {
			status = "error"
		}
		t.AppendRow([]any{res.Template, status, res.Location, res.Error})
	}
	t.Render()
	return nil
}
