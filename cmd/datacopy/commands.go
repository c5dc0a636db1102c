package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/getpup/datacopy"
)

// step runs one migrator operation and returns its bad record count.
type step func(ctx context.Context, m datacopy.Migrator) (int, error)

// migrationCommand builds a command that opens a session, runs fn, prints the
// results and saves the run to the history. exclusive commands write to the
// destination and hold its lock.
func migrationCommand(use, short, long string, exclusive bool, fn step) *cobra.Command {
	return &cobra.Command{
		Use:     use,
		GroupID: "run",
		Short:   short,
		Long:    long,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := openSession(ctx, exclusive)
			if err != nil {
				return err
			}
			defer s.close()

			started := time.Now()
			bad, runErr := fn(ctx, s.migrator)
			printResults(cmd.OutOrStdout(), s.migrator.Results())
			s.record(ctx, use, started, bad, runErr)
			if runErr != nil {
				return runErr
			}
			if bad > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "\n%d records failed\n", bad)
			}
			return nil
		},
	}
}

var compareCmd = migrationCommand("compare",
	"Compare the schemas of both instances",
	`Discover the configured types on both instances and report the fields that
exist on one side only. Those fields are left out of every copy.`,
	false,
	func(ctx context.Context, m datacopy.Migrator) (int, error) {
		res, err := m.Compare(ctx)
		return res.Total(datacopy.StageSchema).Bad, err
	})

var exportCmd = migrationCommand("export",
	"Export source records to JSON files",
	`Write the records of every data and metadata type of the source to
<rootDir>/<source>/<Type>.json. Destination metadata is exported as well.`,
	false,
	func(ctx context.Context, m datacopy.Migrator) (int, error) {
		res, err := m.Export(ctx)
		return res.Total(datacopy.StageExport).Bad, err
	})

var importCmd = migrationCommand("import",
	"Load exported records into the destination",
	`Load the exported source records into the destination, parents first.
Metadata records are matched by their matchBy fields, and two-pass references
are written once every type is loaded. With deleteDestination set, destination
records are deleted first.`,
	true,
	func(ctx context.Context, m datacopy.Migrator) (int, error) {
		return m.ImportAll(ctx)
	})

var deleteCmd = migrationCommand("delete",
	"Delete destination records, children first",
	`Delete every destination record of the configured data types, in reverse
load order. Does nothing unless deleteDestination is true.`,
	true,
	func(ctx context.Context, m datacopy.Migrator) (int, error) {
		return m.DeleteAll(ctx)
	})

var fullCmd = migrationCommand("full",
	"Compare, export and import in one run",
	`Run compare, export and import in sequence.`,
	true,
	func(ctx context.Context, m datacopy.Migrator) (int, error) {
		return m.Full(ctx)
	})

var orderCmd = &cobra.Command{
	Use:     "order",
	GroupID: "info",
	Short:   "Print the load order of the destination",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer s.close()

		order, err := s.migrator.LoadOrder(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), strings.Join(order, " -> "))
		return nil
	},
}
