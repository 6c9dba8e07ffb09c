package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/objstore/pkg/objtx"
)

var enumerateCmd = &cobra.Command{
	Use:   "enumerate",
	Short: "List every stored Note",
	RunE:  runEnumerate,
}

func runEnumerate(cmd *cobra.Command, args []string) error {
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

	count := 0
	for note, err := range objtx.All[*Note](tx) {
		if err != nil {
			return fmt.Errorf("enumerating notes: %w", err)
		}
		fmt.Printf("%q: %s\n", note.Title, note.Body)
		count++
	}
	fmt.Printf("%d note(s)\n", count)
	return nil
}
