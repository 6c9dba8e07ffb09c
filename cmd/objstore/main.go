package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/objstore/pkg/log"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "objstore",
	Short: "objstore - an embedded object-layer transaction manager",
	Long: `objstore is a command-line tool for opening an objstore data file
and running ad-hoc transactions against its built-in demo Note and
Config tables: applying a YAML manifest of notes and an optional Config
singleton update, fetching an object by OID, enumerating notes, reading
and writing the Config singleton, printing identity-map and writer-lock
statistics, and serving metrics and health endpoints.`,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("db", "objstore.db", "Path to the objstore data file")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(openCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(enumerateCmd)
	rootCmd.AddCommand(singletonGetCmd)
	rootCmd.AddCommand(singletonSetCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(serveCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

func dbPath(cmd *cobra.Command) string {
	p, _ := cmd.Flags().GetString("db")
	return p
}
