/*
Package objtx is the object-layer transaction manager: per-transaction
object identity resolution, dirty tracking, lazy materialization with a
bounded in-memory cache, singleton management, lazy schema-version
persistence, and inline-object (de)serialization against a versioned
type registry (pkg/schema).

A Transaction is opened by an Owner (pkg/objdb.Database in this module)
against a single pkg/kv transaction handle and is not safe for
concurrent use from more than one goroutine. Readers may run
concurrently with a single writer; that invariant is enforced by the
Owner, not by Transaction itself.
*/
package objtx
