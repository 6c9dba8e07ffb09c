/*
Package oid encodes object identifiers as order-preserving variable-length
byte strings.

An OID is an unsigned 64-bit integer, monotonically allocated by the
owning database; zero means "unassigned". Encoded keys must sort in the
same order as the numeric value so that a cursor walking the underlying
key-value engine in key order also walks objects in OID order.
*/
package oid
