package main

import (
	"fmt"

	"github.com/cuemby/objstore/pkg/kv/boltkv"
	"github.com/cuemby/objstore/pkg/log"
	"github.com/cuemby/objstore/pkg/objdb"
	"github.com/cuemby/objstore/pkg/objtx"
	"github.com/cuemby/objstore/pkg/oid"
)

// openDatabase opens the bbolt-backed file at path, recovers the
// highest OID already on disk so a fresh process doesn't hand out ids
// that collide with a previous run's objects, and registers the demo
// schema against it. Every subcommand that touches the store goes
// through this so the registry is always populated before the first
// transaction opens.
func openDatabase(path string) (*objdb.Database, error) {
	store, err := boltkv.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	lastOID, err := recoverLastOID(store)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("recovering oid allocator: %w", err)
	}

	db := objdb.Open(store, lastOID, 0, objdb.Options{AllowAutoRegistration: false})
	if err := registerDemoSchema(db); err != nil {
		_ = store.Close()
		return nil, err
	}

	if instanceID, err := db.InstanceID(); err == nil {
		cliLog := log.WithComponent("cli")
		cliLog.Debug().Str("instance_id", instanceID).Str("db", path).Msg("opened")
	}
	return db, nil
}

// recoverLastOID scans the object key space for the highest previously
// assigned OID. Keys are order-preserving encoded, so the last key
// visited by a forward cursor walk is the highest one.
func recoverLastOID(store *boltkv.Store) (oid.OID, error) {
	tx, err := store.Begin(false)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	cur, err := tx.Cursor(objtx.PrefixAllObjects)
	if err != nil {
		return 0, err
	}

	var last []byte
	for k, _, ok := cur.First(); ok; k, _, ok = cur.Next() {
		last = k
	}
	if last == nil {
		return 0, nil
	}
	id, _, err := oid.Decode(last)
	if err != nil {
		return 0, fmt.Errorf("decoding last oid key: %w", err)
	}
	return id, nil
}
