package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var openCmd = &cobra.Command{
	Use:   "open",
	Short: "Create the data file and its table buckets if they don't exist",
	Long: `Open creates the objstore data file named by --db (if it does not
already exist), creates every key-space bucket the engine needs, and
registers the built-in demo tables against it, then exits. It is useful
for provisioning a fresh file before the first apply.`,
	RunE: runOpen,
}

func runOpen(cmd *cobra.Command, args []string) error {
	db, err := openDatabase(dbPath(cmd))
	if err != nil {
		return err
	}
	defer db.Close()
	fmt.Printf("opened %s\n", dbPath(cmd))
	return nil
}
