/*
Package schema is the global table-metadata registry consumed by the
object transaction core. A TableInfo binds a Go type to a persistent
table: its id, name, current client-side schema version, the last
version persisted to storage, the per-table singleton OID, and the
code-generated (or hand-written) Creator/Initializer/Saver/Loader/
FreeContent functions the transaction core treats as opaque.

Table ids are assigned the first time a type is registered, either
explicitly via Register or implicitly via GetOrRegister when the owning
database permits it.
*/
package schema
