package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ops-dashboard/internal/clock"
	"ops-dashboard/internal/recurrence"
	"ops-dashboard/internal/service"
)

func previewCmd() *cobra.Command {
	var (
		interval   int
		days       string
		dayOfMonth int
		from       string
		count      int
	)
	cmd := &cobra.Command{
		Use:   "preview <daily|weekly|monthly|yearly>",
		Short: "Print the next dates a recurrence rule produces",
		Example: `  opsdashboard preview weekly --interval 2 --days 1,5
  opsdashboard preview monthly --from 2024-01-31 --count 6`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec := recurrence.RuleSpec{Pattern: recurrence.Pattern(args[0]), Interval: interval}
			if days != "" {
				weekdays, err := recurrence.ParseWeekdays(days)
				if err != nil {
					return err
				}
				spec.DaysOfWeek = weekdays
			}
			if dayOfMonth > 0 {
				spec.DayOfMonth = &dayOfMonth
			}

			anchor := clock.System{Location: time.UTC}.Now()
			if from != "" {
				var err error
				anchor, err = time.Parse("2006-01-02", from)
				if err != nil {
					return fmt.Errorf("invalid --from %q: %w", from, err)
				}
			}

			preview, err := service.Preview(spec, anchor, count)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, preview.Summary)
			for _, d := range preview.Dates {
				fmt.Fprintln(out, d.Format("Mon 2006-01-02"))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&interval, "interval", "i", 1, "repeat every N periods")
	cmd.Flags().StringVarP(&days, "days", "d", "", "weekdays for weekly rules, 0 = Sunday (e.g. 1,3,5)")
	cmd.Flags().IntVar(&dayOfMonth, "day-of-month", 0, "day of month for monthly rules")
	cmd.Flags().StringVar(&from, "from", "", "anchor date (YYYY-MM-DD), defaults to today")
	cmd.Flags().IntVarP(&count, "count", "n", 5, "number of dates")
	return cmd
}
