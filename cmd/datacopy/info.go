package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/getpup/datacopy/config"
	"github.com/getpup/datacopy/history"
)

var historyCmd = &cobra.Command{
	Use:     "history [run-id]",
	GroupID: "info",
	Short:   "List past runs, or show the results of one",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings()
		if err != nil {
			return err
		}
		store, err := history.Open(settings.HistoryPath)
		if err != nil {
			return err
		}
		defer store.Close()

		out := cmd.OutOrStdout()
		if len(args) == 1 {
			run, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printRun(out, run)
			return nil
		}

		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := store.List(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(out, "No runs recorded")
			return nil
		}
		printRuns(out, runs)
		return nil
	},
}

var initCmd = &cobra.Command{
	Use:     "init",
	GroupID: "info",
	Short:   "Write a commented settings file",
	Long: `Write a commented starter settings file to the --config path.
An existing file is never overwritten.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.WriteSample(cfgFile); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", cfgFile)
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "number of runs to list, 0 for all")
}
