// Command datacopy copies records of related types between two SQL databases,
// rewriting every reference to the ids the destination assigns.
//
// Usage:
//
//	datacopy init                      # write a commented datacopy.yaml
//	datacopy order                     # print the load order of the destination
//	datacopy compare                   # report fields present on one side only
//	datacopy export                    # capture source records to JSON files
//	datacopy import                    # load the exported records
//	datacopy full                      # compare, export and import
//	datacopy delete                    # delete destination records (deleteDestination must be true)
//	datacopy history                   # list past runs
//
// Settings are read from --config and can be overridden with DATACOPY_* environment variables.
package main

import (
	"fmt"
	"os"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "datacopy",
	Short: "Copy related records between databases",
	Long: `datacopy copies records of related types from a source database to a
destination database. Types are loaded parents first, references are rewritten
to the ids the destination assigns, and references that form cycles are written
in a second pass.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "datacopy.yaml", "settings file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level, overrides log.level")

	rootCmd.AddGroup(
		&cobra.Group{ID: "run", Title: "Migration Commands:"},
		&cobra.Group{ID: "info", Title: "Information Commands:"},
	)
	rootCmd.AddCommand(orderCmd, compareCmd, exportCmd, importCmd, deleteCmd, fullCmd, historyCmd, initCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
