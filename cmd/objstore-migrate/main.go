package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"os"

	bolt "go.etcd.io/bbolt"
)

var (
	dbFile     = flag.String("db", "objstore.db", "Path to the objstore data file")
	dryRun     = flag.Bool("dry-run", false, "Show what would be migrated without making changes")
	backupPath = flag.String("backup", "", "Path to back up the database before migration (default: <db>.backup)")
	renameFlag = flag.String("rename", "", "Rewrite a table's stored name, as <table-id>:<new-name>")
	bumpFlag   = flag.String("bump-version", "", "Force a table's persisted version forward, as <table-id>:<version>")
)

// This tool is the concrete, hands-on twin of pkg/objtx's schema
// persistor: where the persistor lazily rewrites a table's
// TableVersions/TableNames entries the next time a transaction commits,
// this walks those same two buckets directly and rewrites them without
// opening the object layer at all, for an operator fixing up a data
// file between process restarts.
func main() {
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("objstore schema migration tool")
	log.Println("===============================")

	if _, err := os.Stat(*dbFile); os.IsNotExist(err) {
		log.Fatalf("database not found at %s", *dbFile)
	}

	log.Printf("database: %s", *dbFile)
	log.Printf("dry run: %v", *dryRun)

	if !*dryRun {
		backupFile := *backupPath
		if backupFile == "" {
			backupFile = *dbFile + ".backup"
		}
		log.Printf("creating backup: %s", backupFile)
		if err := copyFile(*dbFile, backupFile); err != nil {
			log.Fatalf("failed to create backup: %v", err)
		}
		log.Println("backup created successfully")
	}

	db, err := bolt.Open(*dbFile, 0600, nil)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	if err := listTables(db); err != nil {
		log.Fatalf("listing tables failed: %v", err)
	}

	if *renameFlag != "" {
		id, newName, err := parseIDAndString(*renameFlag)
		if err != nil {
			log.Fatalf("invalid -rename value: %v", err)
		}
		if err := renameTable(db, id, newName, *dryRun); err != nil {
			log.Fatalf("rename failed: %v", err)
		}
	}

	if *bumpFlag != "" {
		id, versionStr, err := parseIDAndString(*bumpFlag)
		if err != nil {
			log.Fatalf("invalid -bump-version value: %v", err)
		}
		var version uint64
		if _, err := fmt.Sscanf(versionStr, "%d", &version); err != nil {
			log.Fatalf("invalid version in -bump-version: %v", err)
		}
		if err := bumpVersion(db, id, version, *dryRun); err != nil {
			log.Fatalf("bump-version failed: %v", err)
		}
	}

	if *dryRun {
		log.Println("dry run completed. No changes made.")
	} else {
		log.Println("migration completed successfully")
	}
}

func tableIDKey(id uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], id)
	return k[:]
}

// tableVersionKey mirrors pkg/objtx.BuildKeyForTableVersions: each
// version a table advances through gets its own TableVersions entry,
// the table id followed by the version number, rather than one entry
// per table that a version bump would overwrite.
func tableVersionKey(id uint64, version uint64) []byte {
	var k [12]byte
	binary.BigEndian.PutUint64(k[:8], id)
	binary.BigEndian.PutUint32(k[8:], uint32(version))
	return k[:]
}

func parseIDAndString(spec string) (uint64, string, error) {
	for i := 0; i < len(spec); i++ {
		if spec[i] == ':' {
			var id uint64
			if _, err := fmt.Sscanf(spec[:i], "%d", &id); err != nil {
				return 0, "", err
			}
			return id, spec[i+1:], nil
		}
	}
	return 0, "", fmt.Errorf("expected <id>:<value>, got %q", spec)
}

// listTables prints every table id currently described by the
// TableNames bucket, along with the newest version found among its
// (possibly several) TableVersions entries, so an operator can see what
// ids exist before choosing one to rename or bump.
func listTables(db *bolt.DB) error {
	return db.View(func(tx *bolt.Tx) error {
		names := tx.Bucket([]byte("TableNames"))
		versions := tx.Bucket([]byte("TableVersions"))
		if names == nil || versions == nil {
			log.Println("no schema buckets found - database has never committed a table")
			return nil
		}

		log.Println("registered tables:")
		return names.ForEach(func(k, v []byte) error {
			id := binary.BigEndian.Uint64(k)
			version := latestVersion(versions, id)
			log.Printf("  id=%d name=%q version=%d", id, string(v), version)
			return nil
		})
	})
}

// latestVersion scans every TableVersions key prefixed with id's 8-byte
// big-endian encoding and returns the highest version number recorded,
// since a table can carry one entry per version it ever advanced
// through.
func latestVersion(versions *bolt.Bucket, id uint64) uint64 {
	prefix := tableIDKey(id)
	c := versions.Cursor()
	var best uint64
	for k, raw := c.Seek(prefix); k != nil && len(k) >= 8 && string(k[:8]) == string(prefix); k, raw = c.Next() {
		v, _ := binary.Uvarint(raw)
		if v > best {
			best = v
		}
	}
	return best
}

// renameTable rewrites the TableNames entry for id. The AllObjects key
// space is keyed by OID, not by table, so no object record needs to
// move; only the descriptor itself changes.
func renameTable(db *bolt.DB, id uint64, newName string, dryRun bool) error {
	if dryRun {
		log.Printf("[dry run] would rename table %d to %q", id, newName)
		return nil
	}
	return db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte("TableNames"))
		if err != nil {
			return err
		}
		if err := b.Put(tableIDKey(id), []byte(newName)); err != nil {
			return fmt.Errorf("renaming table %d: %w", id, err)
		}
		log.Printf("renamed table %d to %q", id, newName)
		return nil
	})
}

// bumpVersion forces a new TableVersions entry for id, for the case
// where a schema change landed in code but the process crashed before
// the next commit's lazy persistor flush recorded it. It adds a new
// versioned entry rather than overwriting the last one, preserving the
// table's version history the same way a normal commit would.
func bumpVersion(db *bolt.DB, id, version uint64, dryRun bool) error {
	if dryRun {
		log.Printf("[dry run] would bump table %d to version %d", id, version)
		return nil
	}
	return db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte("TableVersions"))
		if err != nil {
			return err
		}
		if err := b.Put(tableVersionKey(id, version), binary.AppendUvarint(nil, version)); err != nil {
			return fmt.Errorf("bumping table %d: %w", id, err)
		}
		log.Printf("bumped table %d to version %d", id, version)
		return nil
	})
}

func copyFile(src, dst string) error {
	input, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, input, 0600)
}
