/*
Package boltkv implements pkg/kv on top of go.etcd.io/bbolt.

Each kv "bucket" (a key-space prefix — AllObjects,
TableNames, TableVersions, TableSingletons, AllDictionaries,
AllRelationsPK, AllRelationsSK, Meta) becomes its own bbolt bucket,
created up front with CreateBucketIfNotExists, the same approach the teacher's
BoltStore used for nodes/services/containers/secrets/... buckets. bbolt
already gives every transaction a monotonic number (Tx.ID), cursors that
walk a bucket in key order, and Update/View semantics that serialize
writers — exactly the primitives the object transaction core assumes of
its underlying engine.
*/
package boltkv
