package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/objstore/pkg/log"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a manifest of notes and config to the data file",
	Long: `Apply reads a YAML manifest describing Note resources and an
optional Config singleton, then stores them in a single transaction.

Example manifest:

  notes:
    - title: "First note"
      body: "Hello, objstore."
  config:
    defaultAuthor: "ada"

Examples:
  objstore apply -f seed.yaml`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "YAML manifest to apply (required)")
	_ = applyCmd.MarkFlagRequired("file")
}

// manifest is the demo CLI's apply document: a flat list of notes to
// store and an optional config singleton to overwrite.
type manifest struct {
	Notes []struct {
		Title string `yaml:"title"`
		Body  string `yaml:"body"`
	} `yaml:"notes"`
	Config *struct {
		DefaultAuthor string `yaml:"defaultAuthor"`
	} `yaml:"config"`
}

func runApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("reading manifest: %w", err)
	}

	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("parsing manifest: %w", err)
	}

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

	for _, n := range m.Notes {
		note := &Note{Title: n.Title, Body: n.Body, CreatedAt: nowUnix()}
		id, err := tx.Store(note)
		if err != nil {
			return fmt.Errorf("storing note %q: %w", n.Title, err)
		}
		oidLog := log.WithOID(id.String())
		oidLog.Info().Str("table", "note").Msg("stored")
		fmt.Printf("note %q -> oid %s\n", n.Title, id)
	}

	if m.Config != nil {
		cfg, err := singletonForUpdate(tx)
		if err != nil {
			return err
		}
		cfg.DefaultAuthor = m.Config.DefaultAuthor
		if _, err := tx.Store(cfg); err != nil {
			return fmt.Errorf("storing config: %w", err)
		}
		fmt.Printf("config.defaultAuthor -> %q\n", cfg.DefaultAuthor)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	return nil
}
