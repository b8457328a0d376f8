// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package parse_test

import (
	"errors"
	"strings"

	. "gopkg.in/check.v1"

	"github.com/canonical/twoway/internal/parse"
)

type ParserSuite struct{}

var _ = Suite(&ParserSuite{})

var parseTests = []struct {
	summary  string
	input    string
	expected string
}{{
	"bind variable",
	"SELECT * FROM emp WHERE id = /*id*/1",
	"[Fragment[SELECT * FROM emp WHERE id = ] Bind[id]]",
}, {
	"text and comments make one fragment",
	"a /* c */ b -- d\ne",
	"[Fragment[a /* c */ b -- d\ne]]",
}, {
	"if elseif else",
	"WHERE /*%if a > 1*/x = /*a*/1 /*%elseif b*/y /*%else*/z /*%end*/",
	"[Fragment[WHERE ] If[(a > 1) [Fragment[x = ] Bind[a] Fragment[ ]] b [Fragment[y ]] Else [Fragment[z ]]]]",
}, {
	"empty branches",
	"/*%if a*//*%else*//*%end*/",
	"[If[a [] Else []]]",
}, {
	"nested blocks",
	"/*%for n : names*/n = /*n*/'a'/*%if n_has_next*/ OR /*%end*//*%end*/",
	"[For[n : names [Fragment[n = ] Bind[n] If[n_has_next [Fragment[ OR ]]]]]]",
}, {
	"expand with alias",
	`SELECT /*%expand "e"*/* FROM emp e`,
	`[Fragment[SELECT ] Expand["e"] Fragment[ FROM emp e]]`,
}, {
	"expand with parenthesised alias",
	`/*%expand("e")*/*`,
	`[Expand["e"]]`,
}, {
	"expand without alias",
	"/*%expand*/*",
	"[Expand[]]",
}, {
	"populate",
	"UPDATE emp SET /*%populate*/ name = 'x' WHERE id = /*id*/1",
	"[Fragment[UPDATE emp SET ] Populate[] Fragment[ WHERE id = ] Bind[id]]",
}, {
	"populate with alias",
	`UPDATE emp e SET /*%populate "e"*/e.name = 'x' WHERE e.id = /*id*/1`,
	`[Fragment[UPDATE emp e SET ] Populate["e"] Fragment[ WHERE e.id = ] Bind[id]]`,
}, {
	"embedded and literal variables",
	"ORDER BY /*# order */ /*^kind*/'a'",
	"[Fragment[ORDER BY ] Embedded[order] Fragment[ ] Literal[kind]]",
}, {
	"function call with word operators",
	"/*%if isNotEmpty(name) and not done*/x/*%end*/",
	"[If[(isNotEmpty(name) && (!done)) [Fragment[x]]]]",
}}

func (s *ParserSuite) TestParse(c *C) {
	for i, test := range parseTests {
		tree, err := parse.Parse(test.input, "test.sql")
		if err != nil {
			c.Errorf("test %d failed (Parse):\nsummary: %s\ninput: %s\nexpected: %s\nerr: %s\n", i, test.summary, test.input, test.expected, err)
		} else if tree.String() != test.expected {
			c.Errorf("test %d failed (Parse):\nsummary: %s\ninput: %s\nexpected: %s\nactual:   %s\n", i, test.summary, test.input, test.expected, tree.String())
		}
	}
}

var parseErrorTests = []struct {
	summary string
	input   string
	err     string
}{{
	"unterminated if",
	"SELECT 1 /*%if a*/ x",
	`cannot parse template "test.sql": line 1, column 21: unterminated if block`,
}, {
	"unterminated for",
	"/*%for n : names*/x",
	`cannot parse template "test.sql": line 1, column 20: unterminated for block`,
}, {
	"stray end",
	"/*%end*/",
	`cannot parse template "test.sql": line 1, column 1: end without matching if or for`,
}, {
	"stray else",
	"x /*%else*/",
	`cannot parse template "test.sql": line 1, column 3: else without matching if`,
}, {
	"else in for",
	"/*%for n : names*/x/*%else*/y/*%end*/",
	`cannot parse template "test.sql": line 1, column 20: else without matching if`,
}, {
	"elseif after else",
	"/*%if a*/ /*%else*/ /*%elseif b*/ /*%end*/",
	`cannot parse template "test.sql": line 1, column 21: elseif after else`,
}, {
	"duplicate else",
	"/*%if a*//*%else*//*%else*//*%end*/",
	`cannot parse template "test.sql": line 1, column 19: duplicate else`,
}, {
	"empty condition",
	"/*%if */x/*%end*/",
	`cannot parse template "test.sql": line 1, column 1: empty if condition expression`,
}, {
	"bad condition",
	"/*%if a = 1*/x/*%end*/",
	`cannot parse template "test.sql": line 1, column 9: invalid if condition expression: unexpected "=", use "==" for comparison`,
}, {
	"bad bind expression on a later line",
	"SELECT\n  /*id + */1",
	`cannot parse template "test.sql": line 2, column 9: invalid bind variable expression: unexpected end of expression`,
}, {
	"for without colon",
	"/*%for n names*/x/*%end*/",
	`cannot parse template "test.sql": line 1, column 1: for directive needs the form "item : list"`,
}, {
	"bad loop variable",
	"/*%for 1n : names*/x/*%end*/",
	`cannot parse template "test.sql": line 1, column 1: invalid loop variable name "1n"`,
}, {
	"keyword loop variable",
	"/*%for null : names*/x/*%end*/",
	`cannot parse template "test.sql": line 1, column 1: invalid loop variable name "null"`,
}, {
	"expand with identifier",
	"/*%expand e*/*",
	`cannot parse template "test.sql": line 1, column 1: expand takes an optional string alias, got "e"`,
}, {
	"populate with argument",
	"/*%populate x*/a",
	`cannot parse template "test.sql": line 1, column 1: populate takes an optional string alias, got "x"`,
}, {
	"text after end",
	"/*%if a*/x/*%end y*/",
	`cannot parse template "test.sql": line 1, column 11: unexpected "y" after end`,
}, {
	"tokenizer errors carry the template id",
	"/*x*/",
	`cannot parse template "test.sql": line 1, column 6: missing test literal after bind variable`,
}}

func (s *ParserSuite) TestParseErrors(c *C) {
	for i, test := range parseErrorTests {
		_, err := parse.Parse(test.input, "test.sql")
		if err == nil {
			c.Errorf("test %d failed (Parse):\nsummary: %s\ninput: %s\nexpected error: %s\n", i, test.summary, test.input, test.err)
			continue
		}
		c.Check(err.Error(), Equals, test.err, Commentf("test %d: %s", i, test.summary))
		var se *parse.SyntaxError
		c.Check(errors.As(err, &se), Equals, true)
	}
}

func (s *ParserSuite) TestUnterminatedLocation(c *C) {
	input := "SELECT *\nFROM emp\nWHERE /*%if a*/ x = 1"
	_, err := parse.Parse(input, "emp.sql")
	var se *parse.SyntaxError
	c.Assert(errors.As(err, &se), Equals, true)
	c.Check(se.TemplateID, Equals, "emp.sql")
	c.Check(se.Reason, Equals, "unterminated if block")
	c.Check(se.Location.Offset, Equals, len(input))
	c.Check(se.Location.Line, Equals, 3)
}

func (s *ParserSuite) TestSourceRoundTrip(c *C) {
	input := `SELECT /*%expand "e"*/* FROM emp e -- all
WHERE 1 = 1
/*%if name != null*/  AND name LIKE /*@prefix(name)*/'a%'
/*%elseif ids != null*/  AND id IN /*ids*/(1, 2)
/*%else*/  AND 1 = 0
/*%end*/
/*%for o : orders*/ /*# o */ /*%end*/
ORDER BY /*^sort*/'id'`
	tree, err := parse.Parse(input, "emp.sql")
	c.Assert(err, IsNil)
	var sb strings.Builder
	for _, n := range tree.Nodes {
		sb.WriteString(n.Source())
	}
	c.Check(sb.String(), Equals, input)
	c.Check(tree.ID, Equals, "emp.sql")
	c.Check(tree.Text, Equals, input)
}

func (s *ParserSuite) TestNodeFields(c *C) {
	tree, err := parse.Parse("WHERE id IN /*ids*/(1, 2)\n/*%for x : xs*//*x*/1/*%end*/", "")
	c.Assert(err, IsNil)
	c.Assert(tree.Nodes, HasLen, 4)

	bind := tree.Nodes[1].(*parse.BindVariable)
	c.Check(bind.InList(), Equals, true)
	c.Check(bind.Dummy, Equals, "(1, 2)")
	c.Check(bind.Expr.Text, Equals, "ids")
	c.Check(bind.Expr.Offset, Equals, 14)
	c.Check(bind.Pos(), Equals, parse.Location{Line: 1, Column: 13, Offset: 12})

	loop := tree.Nodes[3].(*parse.ForBlock)
	c.Check(loop.Item, Equals, "x")
	c.Check(loop.Index, Equals, "x_index")
	c.Check(loop.HasNext, Equals, "x_has_next")
	c.Check(loop.List.Text, Equals, "xs")
	c.Check(loop.Pos().Line, Equals, 2)
	inner := loop.Body[0].(*parse.BindVariable)
	c.Check(inner.InList(), Equals, false)
}
