// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package parse_test

import (
	. "gopkg.in/check.v1"

	"github.com/canonical/twoway/internal/parse"
)

type TokenizerSuite struct{}

var _ = Suite(&TokenizerSuite{})

var tokenizeTests = []struct {
	summary  string
	input    string
	expected []string
}{{
	"bind variable",
	"SELECT * FROM emp WHERE id = /*id*/1",
	[]string{"Text[SELECT * FROM emp WHERE id = ]", "Bind[/*id*/1]", "EOF[]"},
}, {
	"line comment stops before the line break",
	"a -- note\nb",
	[]string{"Text[a ]", "Comment[-- note]", "Text[\nb]", "EOF[]"},
}, {
	"comments inside strings are text",
	"'/*x*/' /*# order */",
	[]string{"Text['/*x*/' ]", "Embedded[/*# order */]", "EOF[]"},
}, {
	"if block",
	"/*%if a*/x/*%end*/",
	[]string{"Directive[/*%if a*/]", "Text[x]", "End[/*%end*/]", "EOF[]"},
}, {
	"expand takes the star",
	"/*%expand*/ * FROM",
	[]string{"Directive[/*%expand*/ *]", "Text[ FROM]", "EOF[]"},
}, {
	"populate stops at where",
	"SET /*%populate*/ x = 1 WHERE id = 1",
	[]string{"Text[SET ]", "Directive[/*%populate*/ x = 1]", "Text[ WHERE id = 1]", "EOF[]"},
}, {
	"literal variable and list test literal",
	"/*^kind*/'a' /*ids*/(1, 2)",
	[]string{"Literal[/*^kind*/'a']", "Text[ ]", "Bind[/*ids*/(1, 2)]", "EOF[]"},
}, {
	"typed test literal",
	"/*d*/date'2020-01-01'",
	[]string{"Bind[/*d*/date'2020-01-01']", "EOF[]"},
}, {
	"plain comments",
	"/* plain */ /**/",
	[]string{"Comment[/* plain */]", "Text[ ]", "Comment[/**/]", "EOF[]"},
}, {
	"function call bind",
	"/*@prefix(name)*/'x%'",
	[]string{"Bind[/*@prefix(name)*/'x%']", "EOF[]"},
}, {
	"test literal stops at line comment",
	"/*n*/10-- ten",
	[]string{"Bind[/*n*/10]", "Comment[-- ten]", "EOF[]"},
}, {
	"test literal stops before a cast",
	"WHERE id = /*id*/1::bigint",
	[]string{"Text[WHERE id = ]", "Bind[/*id*/1]", "Text[::bigint]", "EOF[]"},
}, {
	"test literal stops before an operator",
	"select /*a*/1-/*b*/2",
	[]string{"Text[select ]", "Bind[/*a*/1]", "Text[-]", "Bind[/*b*/2]", "EOF[]"},
}, {
	"test literal stops before a plus",
	"select /*a*/1+1",
	[]string{"Text[select ]", "Bind[/*a*/1]", "Text[+1]", "EOF[]"},
}, {
	"test literal stops before a comma",
	"values (/*a*/1,/*b*/TRUE)",
	[]string{"Text[values (]", "Bind[/*a*/1]", "Text[,]", "Bind[/*b*/TRUE]", "Text[)]", "EOF[]"},
}, {
	"signed and exponent test literals",
	"/*a*/-1.5e+3 /*b*/+2",
	[]string{"Bind[/*a*/-1.5e+3]", "Text[ ]", "Bind[/*b*/+2]", "EOF[]"},
}, {
	"date and timestamp test literals",
	"/*a*/2020-01-01 /*b*/2020-01-01T10:30:00::timestamp",
	[]string{"Bind[/*a*/2020-01-01]", "Text[ ]", "Bind[/*b*/2020-01-01T10:30:00]", "Text[::timestamp]", "EOF[]"},
}, {
	"identifier test literal stops before a cast",
	"/*a*/NULL::int",
	[]string{"Bind[/*a*/NULL]", "Text[::int]", "EOF[]"},
}, {
	"empty input",
	"",
	[]string{"EOF[]"},
}}

func (s *TokenizerSuite) TestTokenize(c *C) {
	for i, test := range tokenizeTests {
		toks, err := parse.Tokenize(test.input)
		if err != nil {
			c.Errorf("test %d failed (Tokenize):\nsummary: %s\ninput: %s\nerr: %s\n", i, test.summary, test.input, err)
			continue
		}
		actual := make([]string, len(toks))
		for j, tok := range toks {
			actual[j] = tok.String()
		}
		c.Check(actual, DeepEquals, test.expected, Commentf("test %d: %s", i, test.summary))
	}
}

func (s *TokenizerSuite) TestTokenFields(c *C) {
	toks, err := parse.Tokenize("a\n  /*x*/1")
	c.Assert(err, IsNil)
	c.Assert(toks, HasLen, 3)
	bind := toks[1]
	c.Check(bind.Kind, Equals, parse.TokenBind)
	c.Check(bind.Location, Equals, parse.Location{Line: 2, Column: 3, Offset: 4})
	c.Check(bind.Body, Equals, "x")
	c.Check(bind.BodyOffset, Equals, 6)
	c.Check(bind.Dummy, Equals, "1")

	toks, err = parse.Tokenize("/*%if a > 1*/")
	c.Assert(err, IsNil)
	c.Check(toks[0].Keyword, Equals, parse.KeywordIf)
	c.Check(toks[0].Body, Equals, " a > 1")
	c.Check(toks[0].BodyOffset, Equals, 5)
}

func (s *TokenizerSuite) TestNextAfterEOF(c *C) {
	t := parse.NewTokenizer("x")
	tok, err := t.Next()
	c.Assert(err, IsNil)
	c.Check(tok.Kind, Equals, parse.TokenText)
	for i := 0; i < 2; i++ {
		tok, err = t.Next()
		c.Assert(err, IsNil)
		c.Check(tok.Kind, Equals, parse.TokenEOF)
		c.Check(tok.Location.Offset, Equals, 1)
	}
}

var tokenizeErrorTests = []struct {
	summary string
	input   string
	err     string
}{{
	"missing test literal",
	"/*x*/",
	"cannot parse template: line 1, column 6: missing test literal after bind variable",
}, {
	"missing literal variable test literal",
	"/*^x*/ 1",
	"cannot parse template: line 1, column 7: missing test literal after literal variable",
}, {
	"sign without a digit is not a test literal",
	"/*x*/-a",
	"cannot parse template: line 1, column 6: missing test literal after bind variable",
}, {
	"cast is not a test literal",
	"/*x*/::int",
	"cannot parse template: line 1, column 6: missing test literal after bind variable",
}, {
	"unterminated comment",
	"select /* oops",
	"cannot parse template: line 1, column 8: unterminated comment",
}, {
	"unknown directive",
	"/*%iff x*/",
	`cannot parse template: line 1, column 1: unknown directive "iff"`,
}, {
	"unterminated string",
	"select 'abc",
	"cannot parse template: line 1, column 8: missing closing quote in string literal",
}, {
	"unterminated quoted identifier",
	`select "abc`,
	"cannot parse template: line 1, column 8: missing closing quote in quoted identifier",
}, {
	"expand without star",
	"/*%expand*/ x",
	`cannot parse template: line 1, column 12: expand directive must be followed by "*"`,
}, {
	"unclosed list test literal",
	"/*a*/(1, 2",
	"cannot parse template: line 1, column 6: missing closing parenthesis",
}}

func (s *TokenizerSuite) TestTokenizeErrors(c *C) {
	for i, test := range tokenizeErrorTests {
		_, err := parse.Tokenize(test.input)
		if err == nil {
			c.Errorf("test %d failed (Tokenize):\nsummary: %s\ninput: %s\nexpected error: %s\n", i, test.summary, test.input, test.err)
			continue
		}
		c.Check(err.Error(), Equals, test.err, Commentf("test %d: %s", i, test.summary))
	}
}
