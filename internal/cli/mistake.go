package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/lazypower/atlas/internal/engine"
	"github.com/spf13/cobra"
)

var mistakeCmd = &cobra.Command{
	Use:     "mistake",
	Aliases: []string{"mistakes", "m"},
	Short:   "Record mistakes made in attempts",
}

var (
	mistakeType       string
	mistakeSeverity   int
	mistakeLabel      string
	mistakePostmortem string
	mistakeConceptual bool
	mistakeExecution  bool
	mistakeStrategy   bool
	mistakeFixPlan    string
	mistakeReviewDate string

	mistakeListAttempt int64
)

var mistakeAddCmd = &cobra.Command{
	Use:   "add <attempt-id>",
	Short: "Record a mistake and schedule it for review",
	Args:  cobra.ExactArgs(1),
	RunE:  runMistakeAdd,
}

var mistakeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List mistakes, most severe first",
	Args:  cobra.NoArgs,
	RunE:  runMistakeList,
}

var mistakeTypesCmd = &cobra.Command{
	Use:   "types",
	Short: "List the mistake taxonomy",
	Args:  cobra.NoArgs,
	RunE:  runMistakeTypes,
}

func init() {
	mistakeAddCmd.Flags().StringVarP(&mistakeType, "type", "t", "", "mistake type name or id (see: atlas mistake types)")
	mistakeAddCmd.Flags().IntVar(&mistakeSeverity, "severity", 3, "severity 1-5")
	mistakeAddCmd.Flags().StringVarP(&mistakeLabel, "label", "l", "", "short label, used as the review prompt")
	mistakeAddCmd.Flags().StringVar(&mistakePostmortem, "postmortem", "", "what went wrong, used as the review answer")
	mistakeAddCmd.Flags().BoolVar(&mistakeConceptual, "conceptual", false, "conceptual gap")
	mistakeAddCmd.Flags().BoolVar(&mistakeExecution, "execution", false, "execution error")
	mistakeAddCmd.Flags().BoolVar(&mistakeStrategy, "strategy", false, "strategy error")
	mistakeAddCmd.Flags().StringVar(&mistakeFixPlan, "fix", "", "plan to avoid it next time")
	mistakeAddCmd.Flags().StringVar(&mistakeReviewDate, "review-date", "", "first review date YYYY-MM-DD (default today)")

	mistakeListCmd.Flags().Int64Var(&mistakeListAttempt, "attempt", 0, "only mistakes of this attempt")

	mistakeCmd.AddCommand(mistakeAddCmd)
	mistakeCmd.AddCommand(mistakeListCmd)
	mistakeCmd.AddCommand(mistakeTypesCmd)
}

func runMistakeAdd(cmd *cobra.Command, args []string) error {
	attemptID, err := parseID(args[0])
	if err != nil {
		return err
	}
	in := engine.MistakeInput{
		MistakeType:        mistakeType,
		Severity:           mistakeSeverity,
		ShortLabel:         mistakeLabel,
		DetailedPostmortem: mistakePostmortem,
		ConceptualGap:      mistakeConceptual,
		ExecutionError:     mistakeExecution,
		StrategyError:      mistakeStrategy,
		FixPlan:            mistakeFixPlan,
		NextReviewDate:     mistakeReviewDate,
	}
	if id, err := strconv.ParseInt(mistakeType, 10, 64); err == nil {
		in.MistakeTypeID = id
		in.MistakeType = ""
	}

	return withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
		m, item, err := eng.RecordMistake(ctx, attemptID, in)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Recorded mistake #%d (%s): %s\n", m.ID, m.MistakeTypeName, m.ShortLabel)
		fmt.Fprintf(cmd.OutOrStdout(), "Review #%d %s\n", item.ID, relDue(item.DueDate, eng.Today()))
		return nil
	})
}

func runMistakeList(cmd *cobra.Command, args []string) error {
	return withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
		mistakes, err := eng.DB.ListMistakes(ctx, mistakeListAttempt)
		if err != nil {
			return fmt.Errorf("list mistakes: %w", err)
		}
		out := cmd.OutOrStdout()
		if len(mistakes) == 0 {
			fmt.Fprintln(out, "No mistakes recorded.")
			return nil
		}

		tw := newTable(out)
		fmt.Fprintln(tw, "ID\tATTEMPT\tTYPE\tSEV\tLABEL\tCONCEPT\tEXEC\tSTRATEGY")
		for _, m := range mistakes {
			fmt.Fprintf(tw, "%d\t%d\t%s\t%d\t%s\t%s\t%s\t%s\n", m.ID, m.AttemptID, m.MistakeTypeName,
				m.Severity, clip(m.ShortLabel, 40), yesNo(m.ConceptualGap), yesNo(m.ExecutionError), yesNo(m.StrategyError))
		}
		return tw.Flush()
	})
}

func runMistakeTypes(cmd *cobra.Command, args []string) error {
	return withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
		types, err := eng.DB.ListMistakeTypes(ctx)
		if err != nil {
			return fmt.Errorf("list mistake types: %w", err)
		}
		tw := newTable(cmd.OutOrStdout())
		fmt.Fprintln(tw, "ID\tNAME\tDESCRIPTION")
		for _, t := range types {
			fmt.Fprintf(tw, "%d\t%s\t%s\n", t.ID, t.Name, clip(t.Description, 60))
		}
		return tw.Flush()
	})
}
