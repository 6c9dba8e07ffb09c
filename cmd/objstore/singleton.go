package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/objstore/pkg/objtx"
)

var singletonGetCmd = &cobra.Command{
	Use:   "singleton-get",
	Short: "Print the config singleton",
	RunE:  runSingletonGet,
}

var singletonSetCmd = &cobra.Command{
	Use:   "singleton-set <default-author>",
	Short: "Set the config singleton's default author",
	Args:  cobra.ExactArgs(1),
	RunE:  runSingletonSet,
}

func runSingletonGet(cmd *cobra.Command, args []string) error {
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

	cfg, err := objtx.Singleton[*Config](tx)
	if err != nil {
		return fmt.Errorf("reading config singleton: %w", err)
	}
	fmt.Printf("defaultAuthor: %q\n", cfg.DefaultAuthor)
	return nil
}

func runSingletonSet(cmd *cobra.Command, args []string) error {
	db, err := openDatabase(dbPath(cmd))
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.BeginUpdate()
	if err != nil {
		return fmt.Errorf("opening writer: %w", err)
	}
	defer tx.Dispose()

	cfg, err := singletonForUpdate(tx)
	if err != nil {
		return fmt.Errorf("reading config singleton: %w", err)
	}
	cfg.DefaultAuthor = args[0]
	if _, err := tx.Store(cfg); err != nil {
		return fmt.Errorf("storing config: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	fmt.Printf("defaultAuthor -> %q\n", args[0])
	return nil
}
