package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ops-dashboard/internal/backfill"
)

func backfillCmd() *cobra.Command {
	var seriesID uint
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Generate missing occurrences for one series or all of them",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			var results []backfill.Result
			if seriesID != 0 {
				res, err := a.series.Backfill(cmd.Context(), seriesID)
				if err != nil {
					return err
				}
				results = append(results, res)
			} else {
				results, err = a.series.BackfillAll(cmd.Context())
				if err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			for _, res := range results {
				fmt.Fprintf(out, "series %d: %d created, %d failed\n", res.SeriesID, len(res.Created), len(res.Failed))
				for _, f := range res.Failed {
					fmt.Fprintf(out, "  %s: %s\n", f.Date.In(a.cfg.Location).Format("2006-01-02 15:04"), f.Reason)
				}
			}
			return nil
		},
	}
	cmd.Flags().UintVarP(&seriesID, "series", "s", 0, "only backfill this series")
	return cmd
}
