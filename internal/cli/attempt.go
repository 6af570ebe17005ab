package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lazypower/atlas/internal/engine"
	"github.com/lazypower/atlas/internal/store"
	"github.com/spf13/cobra"
)

var attemptCmd = &cobra.Command{
	Use:     "attempt",
	Aliases: []string{"attempts", "a"},
	Short:   "Time attempts at problems",
}

var (
	attemptOutcome    string
	attemptAnswer     string
	attemptNotes      string
	attemptConfidence int

	attemptListProblem int64
	attemptListLimit   int
)

var attemptStartCmd = &cobra.Command{
	Use:   "start <problem-id>",
	Short: "Start the clock on a new attempt",
	Args:  cobra.ExactArgs(1),
	RunE:  runAttemptStart,
}

var attemptFinishCmd = &cobra.Command{
	Use:   "finish <attempt-id>",
	Short: "Stop the clock and record the result",
	Args:  cobra.ExactArgs(1),
	RunE:  runAttemptFinish,
}

var attemptListCmd = &cobra.Command{
	Use:   "list",
	Short: "List attempts, newest first",
	Args:  cobra.NoArgs,
	RunE:  runAttemptList,
}

func init() {
	attemptFinishCmd.Flags().StringVar(&attemptOutcome, "outcome", store.OutcomeStuck, "outcome: "+strings.Join(store.Outcomes, ", "))
	attemptFinishCmd.Flags().StringVar(&attemptAnswer, "answer", "", "final answer")
	attemptFinishCmd.Flags().StringVar(&attemptNotes, "notes", "", "solution notes")
	attemptFinishCmd.Flags().IntVar(&attemptConfidence, "confidence", 3, "confidence 1-5")

	attemptListCmd.Flags().Int64Var(&attemptListProblem, "problem", 0, "only attempts on this problem")
	attemptListCmd.Flags().IntVarP(&attemptListLimit, "limit", "n", 20, "maximum number of attempts")

	attemptCmd.AddCommand(attemptStartCmd)
	attemptCmd.AddCommand(attemptFinishCmd)
	attemptCmd.AddCommand(attemptListCmd)
}

func runAttemptStart(cmd *cobra.Command, args []string) error {
	problemID, err := parseID(args[0])
	if err != nil {
		return err
	}
	return withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
		a, err := eng.StartAttempt(ctx, problemID)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Started attempt #%d on %q at %s\n",
			a.ID, a.ProblemTitle, time.UnixMilli(a.StartedAt).Format(time.Kitchen))
		fmt.Fprintf(cmd.OutOrStdout(), "Finish with: atlas attempt finish %d --outcome solved\n", a.ID)
		return nil
	})
}

func runAttemptFinish(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	in := engine.AttemptInput{
		Outcome:       attemptOutcome,
		FinalAnswer:   attemptAnswer,
		SolutionNotes: attemptNotes,
		Confidence:    attemptConfidence,
	}
	return withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
		a, err := eng.FinishAttempt(ctx, id, in)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Attempt #%d finished: %s in %s (confidence %d)\n",
			a.ID, a.Outcome, a.DurationDisplay(), a.Confidence)
		return nil
	})
}

func runAttemptList(cmd *cobra.Command, args []string) error {
	return withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
		attempts, err := eng.DB.ListAttempts(ctx, attemptListProblem, attemptListLimit)
		if err != nil {
			return fmt.Errorf("list attempts: %w", err)
		}
		out := cmd.OutOrStdout()
		if len(attempts) == 0 {
			fmt.Fprintln(out, "No attempts yet.")
			return nil
		}
		printAttempts(cmd, attempts, eng.Clock())
		return nil
	})
}

func printAttempts(cmd *cobra.Command, attempts []store.Attempt, now time.Time) {
	tw := newTable(cmd.OutOrStdout())
	fmt.Fprintln(tw, "ID\tPROBLEM\tSTARTED\tOUTCOME\tTIME\tCONF")
	for _, a := range attempts {
		outcome := a.Outcome
		if !a.Finished() {
			outcome = "in progress"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\n", a.ID, clip(a.ProblemTitle, 36),
			relTime(time.UnixMilli(a.StartedAt), now), outcome, a.DurationDisplay(), a.Confidence)
	}
	tw.Flush()
}
