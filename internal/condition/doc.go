// Package condition provides the backend-neutral query representation used
// by every adapter.
//
// A Condition is a predicate tree (Where), an optional projection, an
// ordering list and skip/limit counts:
//
//	{ where: { field: literal | {op: operand}, or: [ {...}, ... ] },
//	  fields: "a b -c",
//	  order:  { field: 1 | -1 },
//	  skip: n, limit: n }
//
// OPERATORS:
//
// Operators have one canonical spelling. Aliases accepted on decode are
// rewritten so adapters never see them:
//
//	inq   → in
//	neq   → ne
//	regex → like
//
// A nil literal is a null test, never a literal equality. Backends express
// it with their native null check (IS NULL, {$type: 10}).
//
// SEALED INTERFACES:
//
// Constraint is sealed with a marker method. Only Equals and Ops implement
// it, so translators can switch on it exhaustively.
//
// Match and Apply are the reference in-process evaluator. The memory
// adapter runs every query through them; other adapters use them to
// emulate operators their backend lacks.
package condition
