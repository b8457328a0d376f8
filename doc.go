// Package twoway builds SQL statements from two-way SQL templates.
//
// A two-way template is plain SQL that can be run as is in any SQL tool. The
// dynamic parts of the statement are written as block comments, each followed
// by a test value that makes the template valid on its own. When a template is
// built, the comments and test values are replaced using the bindings given by
// the program, and the result is a statement with driver placeholders and the
// list of their parameters.
//
// # Basics
//
// Given a table of employees, the template
//
//	SELECT * FROM emp WHERE salary > /*minSalary*/1000 AND dept = /*dept*/'sales'
//
// runs unchanged in an SQL tool. Built with the bindings
//
//	twoway.M{"minSalary": 2000, "dept": "engineering"}
//
// it becomes the statement
//
//	SELECT * FROM emp WHERE salary > ? AND dept = ?
//
// with the parameters 2000 and "engineering". The placeholder style depends
// on the [dialect.Dialect] the template is built with.
//
// # Directives
//
// Each directive is a block comment. Ordinary block comments, that is those
// starting with a space, a newline or any character not listed here, are left
// alone. Line comments are never interpreted.
//
//   - /*expr*/value is a bind variable. The test value following the comment is
//     replaced by a placeholder and the value of expr becomes a parameter. If
//     the test value is a parenthesised list, such as /*ids*/(1, 2), a list
//     value is bound as one placeholder per element.
//   - /*#expr*/ is an embedded variable. The text of the value is spliced into
//     the statement as is. It is meant for identifiers and fragments chosen by
//     the program, and is checked by [CheckEmbedded] unless another check is set.
//   - /*^expr*/value is a literal variable. The test value is replaced by the
//     value of expr rendered as an SQL literal.
//   - /*%if cond*/ ... /*%elseif cond*/ ... /*%else*/ ... /*%end*/ includes the
//     body of the first branch whose condition is true.
//   - /*%for item : list*/ ... /*%end*/ repeats its body for each element of
//     list. Inside the body item holds the element, item_index its position
//     from zero and item_has_next whether more elements follow.
//   - /*%expand*/* and /*%expand "alias"*/* are replaced by the column list of
//     the entity passed with [DB.QueryEntity] or [BuildOptions].
//   - /*%populate*/ and /*%populate "alias"*/ replace the text up to the next
//     WHERE with "column = ?" assignments for the columns of the entity.
//
// # Expressions
//
// Directive expressions are parsed along with the template. They support
// names, property access with ".", the literals null, true, false, numbers and
// quoted strings, the comparison operators, the arithmetic operators and the
// logical operators "&&", "||" and "!" with their spellings "and", "or" and
// "not". The symbol "!" applies to the operand right after it, so !a == b
// compares !a with b, while "not" applies to a whole comparison, so
// not a == b is the same as !(a == b). Functions are called as name(args) or @name(args). Besides the
// built in functions such as isNotEmpty and len, each dialect provides escape,
// prefix, infix and suffix for LIKE patterns, and the program may add its own
// with [WithFunctions].
//
// Properties are looked up on structs by "db" tag and then by field name, and
// on maps with string keys by key.
//
// # Templates and the cache
//
// [Prepare] parses a template and keeps it in a process wide cache under its
// ID, usually the file the template came from. A [Repository] reads templates
// from an [io/fs.FS] through the same cache, and can watch a directory on disk
// to drop templates as their files change. A parsed [Template] never changes
// and can be built by any number of goroutines at once.
//
// # Running statements
//
// [DB] wraps a [database/sql.DB]. [DB.Query] builds a template and returns a
// [Query], whose results are read into structs and maps with [Query.Get],
// [Query.GetAll] and [Query.Iter]. Result columns go to the struct fields with
// a matching "db" tag.
package twoway
