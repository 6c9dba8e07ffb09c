package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/cuemby/objstore/pkg/oid"
)

var getCmd = &cobra.Command{
	Use:   "get <oid>",
	Short: "Fetch one object by its oid and print it",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

func runGet(cmd *cobra.Command, args []string) error {
	raw, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid oid %q: %w", args[0], err)
	}
	id := oid.OID(raw)

	db, err := openDatabase(dbPath(cmd))
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.BeginRead()
	if err != nil {
		return fmt.Errorf("opening reader: %w", err)
	}
	defer tx.Dispose()

	obj, err := tx.Get(id)
	if err != nil {
		return fmt.Errorf("reading oid %s: %w", id, err)
	}
	if obj == nil {
		fmt.Printf("oid %s not found\n", id)
		return nil
	}

	switch v := obj.(type) {
	case *Note:
		fmt.Printf("oid %s: Note{Title: %q, Body: %q, CreatedAt: %d}\n", id, v.Title, v.Body, v.CreatedAt)
	default:
		fmt.Printf("oid %s: %+v\n", id, obj)
	}
	return nil
}
