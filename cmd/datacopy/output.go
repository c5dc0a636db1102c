package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/getpup/datacopy"
	"github.com/getpup/datacopy/history"
)

var stages = []datacopy.Stage{
	datacopy.StageSchema,
	datacopy.StageDelete,
	datacopy.StageExport,
	datacopy.StageImport,
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// printResults writes one row per stage, alias and type, followed by a total per stage.
func printResults(w io.Writer, r datacopy.Results) {
	tw := newTable(w)
	fmt.Fprintln(tw, "STAGE\tINSTANCE\tTYPE\tGOOD\tBAD")
	for _, stage := range stages {
		aliases := r.Aliases(stage)
		if len(aliases) == 0 {
			continue
		}
		for _, alias := range aliases {
			for _, typ := range r.Types(stage, alias) {
				c := r.Get(stage, alias, typ)
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\n", stage, alias, typ, c.Good, c.Bad)
			}
		}
		total := r.Total(stage)
		fmt.Fprintf(tw, "%s\t\tTOTAL\t%d\t%d\n", stage, total.Good, total.Bad)
	}
	_ = tw.Flush()
}

func printRuns(w io.Writer, runs []history.Run) {
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tCOMMAND\tSOURCE\tDESTINATION\tSTARTED\tDURATION\tBAD\tSTATUS")
	for _, run := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			run.ID, run.Command, run.Source, run.Destination,
			run.StartedAt.Local().Format(time.DateTime), run.Duration().Round(time.Millisecond),
			run.Bad, status(run))
	}
	_ = tw.Flush()
}

func printRun(w io.Writer, run history.Run) {
	fmt.Fprintf(w, "Run %s: %s from %s to %s\n", run.ID, run.Command, run.Source, run.Destination)
	fmt.Fprintf(w, "Started %s, took %s\n", run.StartedAt.Local().Format(time.DateTime), run.Duration().Round(time.Millisecond))
	fmt.Fprintf(w, "Status: %s\n", status(run))
	if run.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", run.Error)
	}
	fmt.Fprintln(w)
	printResults(w, run.Results)
}

func status(run history.Run) string {
	if run.Succeeded() {
		return "ok"
	}
	return "failed"
}
