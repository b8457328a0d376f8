// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

/*
Package typeinfo contains the reflection over user types needed by twoway.
As much as possible, reflection code is limited to this package. It resolves
property access in template expressions, lists the columns of entity structs
for the expand and populate directives, and locates the targets that query
results are scanned into.
*/
package typeinfo
