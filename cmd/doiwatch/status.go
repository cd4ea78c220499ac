package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hazz-dev/doiwatch/internal/health"
)

type statusStore interface {
	ListIdentifiers(ctx context.Context) ([]string, error)
	GetStatus(ctx context.Context, doi string) (*health.Record, error)
}

func executeStatus(cmd *cobra.Command, db statusStore) error {
	out := cmd.OutOrStdout()
	ctx := cmd.Context()

	ids, err := db.ListIdentifiers(ctx)
	if err != nil {
		return fmt.Errorf("listing identifiers: %w", err)
	}
	if len(ids) == 0 {
		fmt.Fprintln(out, "No DOIs monitored. Run 'doiwatch add <doi>' first.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DOI\tSTATUS\tHTTP\tLAST CHECKED\tERROR")
	for _, id := range ids {
		rec, err := db.GetStatus(ctx, id)
		if err != nil {
			if !errors.Is(err, health.ErrCorruptRecord) {
				return fmt.Errorf("reading status: %w", err)
			}
			fmt.Fprintf(w, "%s\tcorrupt\t—\t—\t%s\n", id, err)
			continue
		}
		if rec == nil || rec.Healthy == nil {
			fmt.Fprintf(w, "%s\tunknown\t—\t—\t\n", id)
			continue
		}

		state := "healthy"
		if !*rec.Healthy {
			state = "broken"
		}
		httpStatus := "—"
		if rec.HTTPStatus != nil {
			httpStatus = fmt.Sprintf("%d", *rec.HTTPStatus)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			id, state, httpStatus,
			rec.LastCheckedAt.Local().Format("2006-01-02 15:04:05"),
			rec.Error,
		)
	}
	w.Flush()
	return nil
}
