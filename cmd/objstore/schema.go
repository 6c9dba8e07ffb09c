package main

import (
	"encoding/binary"
	"fmt"
	"reflect"
	"time"

	"github.com/cuemby/objstore/pkg/objdb"
	"github.com/cuemby/objstore/pkg/objtx"
	"github.com/cuemby/objstore/pkg/schema"
)

// Note and Config are the demo tables this CLI exercises. A real
// embedder of objstore registers its own generated Saver/Loader pairs
// for its own types; these two stand in for that so `objstore apply`,
// `get`, and `enumerate` have something concrete to operate on without
// requiring a code-generation step for the demo.

type Note struct {
	Title     string
	Body      string
	CreatedAt int64 // unix seconds
}

type Config struct {
	DefaultAuthor string
}

func noteSaver(w schema.Writer, obj any) error {
	n := obj.(*Note)
	if err := writeString(w, n.Title); err != nil {
		return err
	}
	if err := writeString(w, n.Body); err != nil {
		return err
	}
	return writeVarint(w, uint64(n.CreatedAt))
}

func noteLoaderV1(r schema.Reader, obj any) error {
	n := obj.(*Note)
	var err error
	if n.Title, err = readString(r); err != nil {
		return err
	}
	if n.Body, err = readString(r); err != nil {
		return err
	}
	created, err := readVarint(r)
	if err != nil {
		return err
	}
	n.CreatedAt = int64(created)
	return nil
}

func configSaver(w schema.Writer, obj any) error {
	c := obj.(*Config)
	return writeString(w, c.DefaultAuthor)
}

func configLoaderV1(r schema.Reader, obj any) error {
	c := obj.(*Config)
	var err error
	c.DefaultAuthor, err = readString(r)
	return err
}

// registerDemoSchema binds Note and Config to db's registry.
func registerDemoSchema(db *objdb.Database) error {
	noteInfo := schema.NewTableInfo("note", reflect.TypeOf((*Note)(nil)))
	noteInfo.ClientTypeVersion = 1
	noteInfo.Saver = noteSaver
	noteInfo.SetLoader(1, noteLoaderV1)
	if _, err := db.RegisterTable(noteInfo); err != nil {
		return fmt.Errorf("registering note table: %w", err)
	}

	configInfo := schema.NewTableInfo("config", reflect.TypeOf((*Config)(nil)))
	configInfo.ClientTypeVersion = 1
	configInfo.Saver = configSaver
	configInfo.SetLoader(1, configLoaderV1)
	configInfo.Initializer = func() any { return &Config{DefaultAuthor: "anonymous"} }
	if _, err := db.RegisterTable(configInfo); err != nil {
		return fmt.Errorf("registering config table: %w", err)
	}
	return nil
}

func writeString(w schema.Writer, s string) error {
	if err := writeVarint(w, uint64(len(s))); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}

func writeVarint(w schema.Writer, v uint64) error {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], v)
	_, err := w.Write(buf[:n])
	return err
}

func readString(r schema.Reader) (string, error) {
	n, err := readVarint(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if n > 0 {
		if _, err := readFull(r, buf); err != nil {
			return "", err
		}
	}
	return string(buf), nil
}

func readVarint(r schema.Reader) (uint64, error) {
	br, ok := r.(interface{ ReadByte() (byte, error) })
	if !ok {
		return 0, fmt.Errorf("reader does not support byte-at-a-time reads")
	}
	return binary.ReadUvarint(br)
}

func readFull(r schema.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, fmt.Errorf("short read")
		}
	}
	return total, nil
}

// nowUnix is a seam so tests could stub the clock; the CLI itself just
// calls time.Now().
var nowUnix = func() int64 { return time.Now().Unix() }

// singletonForUpdate materializes the Config singleton inside tx,
// creating the default instance on first use.
func singletonForUpdate(tx *objtx.Transaction) (*Config, error) {
	return objtx.Singleton[*Config](tx)
}
