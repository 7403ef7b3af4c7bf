// Package transaction defines the per-call record that flows through a policy
// pipeline.
//
// A Transaction is created once per inbound chat-completion call, handed to the
// root control policy, mutated in place by whichever policy currently holds it,
// and finally consumed by the response builder. It is never shared between
// concurrently executing calls.
//
// # Side Data
//
// Policies signal each other (and annotate logs) through SideData, a string-keyed
// map restricted to the closed Value variant set: string, number, bool, list and
// map. Arbitrary Go values cannot be stored.
//
//	t.Data.Set(transaction.KeyCallerID, transaction.String("team-a"))
//	t.Data.Append(transaction.KeyCallOrder, transaction.String("auth"))
//
// # Path Lookup
//
// Lookup navigates the known shape of a Transaction with dotted paths:
//
//	id
//	request.method | request.endpoint | request.credential
//	request.headers.<name>
//	request.payload.<key>[.<key>|.<index>]...
//	response.endpoint
//	response.payload.<key>...
//	data.<key>...
//
// Segments that do not exist resolve to Absent, a sentinel distinct from nil.
// Malformed paths (empty segments, unknown roots) return a *PathError.
package transaction
