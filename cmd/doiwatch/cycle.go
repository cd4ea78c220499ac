package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hazz-dev/doiwatch/internal/monitor"
)

type cycleRunner interface {
	RunCycle(ctx context.Context) (monitor.Summary, error)
}

func executeCycle(cmd *cobra.Command, mon cycleRunner) error {
	summary, err := mon.RunCycle(cmd.Context())
	if err != nil {
		return err
	}
	printSummary(cmd.OutOrStdout(), summary)
	if summary.NewlyBrokenCount > 0 {
		return fmt.Errorf("%d DOI(s) newly broken", summary.NewlyBrokenCount)
	}
	return nil
}

func printSummary(out io.Writer, summary monitor.Summary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DOI\tSTATUS\tHTTP\tERROR")
	for _, r := range summary.Results {
		state := "healthy"
		switch {
		case r.Skipped:
			state = "skipped"
		case !r.Healthy:
			state = "broken"
		}
		httpStatus := "—"
		if r.HTTPStatus != nil {
			httpStatus = fmt.Sprintf("%d", *r.HTTPStatus)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Identifier, state, httpStatus, r.Error)
	}
	w.Flush()

	fmt.Fprintf(out, "\nchecked %d, newly broken %d, skipped %d\n",
		summary.CheckedCount, summary.NewlyBrokenCount, summary.SkippedCount)
	if summary.AlertFailed {
		fmt.Fprintln(out, "note: alert notification failed")
	}
}
