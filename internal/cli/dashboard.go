package cli

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize/english"
	"github.com/lazypower/atlas/internal/engine"
	"github.com/spf13/cobra"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Show due reviews and recent practice",
	Args:  cobra.NoArgs,
	RunE:  runDashboard,
}

func runDashboard(cmd *cobra.Command, args []string) error {
	return withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
		d, err := eng.Dashboard(ctx)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "## Atlas")
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Due reviews:      %d\n", d.DueReviews)
		fmt.Fprintf(out, "Last 7 days:      %s\n", english.Plural(d.AttemptsLast7, "attempt", ""))
		fmt.Fprintf(out, "Last 30 days:     %s\n", english.Plural(d.AttemptsLast30, "attempt", ""))

		if len(d.RecentAttempts) == 0 {
			fmt.Fprintln(out, "\nNo attempts yet. Start one with: atlas attempt start <problem-id>")
			return nil
		}
		fmt.Fprintf(out, "\n## Recent attempts\n\n")
		printAttempts(cmd, d.RecentAttempts, eng.Clock())
		return nil
	})
}
