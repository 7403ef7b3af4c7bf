// Package condition implements the predicate language used by branching
// policies.
//
// A Condition is a pure predicate over a transaction. Comparisons take two
// operands, each produced by a Resolver: a static literal or a dotted-path
// lookup into the transaction. Combinators (all, any, not) compose other
// conditions.
//
// # Documents
//
// Every condition and resolver has a declarative form:
//
//	{"type": "equals", "left": {"type": "path", "path": "request.payload.model"},
//	                   "right": {"type": "static", "value": "gpt-4"}}
//	{"type": "all", "conditions": [...]}
//	{"type": "not", "cond": {...}}
//
// Loader turns a document into a live Condition using a Registry, and
// Condition.Document turns it back. Loading the output of Document yields a
// condition whose Document is deep-equal to the original.
//
// # Absent operands
//
// A path that selects nothing resolves to transaction.Absent. Every
// comparison involving Absent is false, except not_equals which is true.
// Such comparisons never fail.
package condition
