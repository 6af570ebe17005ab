package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize/english"
	"github.com/lazypower/atlas/internal/api"
	"github.com/lazypower/atlas/internal/engine"
	"github.com/lazypower/atlas/internal/scheduler"
	"github.com/spf13/cobra"
)

var reviewCmd = &cobra.Command{
	Use:     "review",
	Aliases: []string{"reviews", "r"},
	Short:   "Spaced review of recorded mistakes",
}

var reviewQueueCmd = &cobra.Command{
	Use:   "queue",
	Short: "List the items due today",
	Args:  cobra.NoArgs,
	RunE:  runReviewQueue,
}

var reviewShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a review item with its answer and history",
	Args:  cobra.ExactArgs(1),
	RunE:  runReviewShow,
}

var reviewGradeCmd = &cobra.Command{
	Use:   "grade <id> <again|hard|good|easy|0-3>",
	Short: "Grade your recall of an item and reschedule it",
	Args:  cobra.ExactArgs(2),
	RunE:  runReviewGrade,
}

func init() {
	reviewCmd.AddCommand(reviewQueueCmd)
	reviewCmd.AddCommand(reviewShowCmd)
	reviewCmd.AddCommand(reviewGradeCmd)
}

// dueText renders the position of an item relative to the day it was viewed.
func dueText(item api.ReviewItem) string {
	due, err := time.ParseInLocation(api.DateLayout, item.DueDate, time.UTC)
	if err != nil {
		return item.DueDate
	}
	today := due.AddDate(0, 0, item.OverdueDays-item.DaysUntilDue)
	return relDue(due, today)
}

func runReviewQueue(cmd *cobra.Command, args []string) error {
	var q *api.Queue
	if c := remoteClient(cmd); c != nil {
		var err error
		if q, err = c.Queue(); err != nil {
			return err
		}
	} else {
		err := withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
			queue, err := eng.Queue(ctx)
			if err != nil {
				return err
			}
			q = &api.Queue{Today: queue.Today.Format(api.DateLayout), Count: queue.Count, Items: []api.ReviewItem{}}
			for i := range queue.Items {
				q.Items = append(q.Items, api.NewReviewItem(&queue.Items[i], queue.Today))
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if q.Count == 0 {
		fmt.Fprintf(out, "Nothing due on %s.\n", q.Today)
		return nil
	}
	fmt.Fprintf(out, "%s due on %s\n\n", english.Plural(q.Count, "review", ""), q.Today)
	tw := newTable(out)
	fmt.Fprintln(tw, "ID\tDUE\tEASE\tINTERVAL\tPROMPT")
	for _, item := range q.Items {
		fmt.Fprintf(tw, "%d\t%s\t%.2f\t%s\t%s\n", item.ID, dueText(item), item.EaseFactor,
			english.Plural(item.IntervalDays, "day", ""), clip(item.Prompt, 50))
	}
	return tw.Flush()
}

func runReviewShow(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	var (
		item    *api.ReviewItem
		history []api.ReviewLog
	)
	if c := remoteClient(cmd); c != nil {
		if item, err = c.Review(id); err != nil {
			return err
		}
		if history, err = c.History(id); err != nil {
			return err
		}
	} else {
		err = withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
			r, err := eng.DB.GetReviewItem(ctx, id)
			if err != nil {
				return err
			}
			if r == nil {
				return fmt.Errorf("review item %d: %w", id, engine.ErrNotFound)
			}
			v := api.NewReviewItem(r, eng.Today())
			item = &v

			logs, err := eng.DB.ListReviewLogs(ctx, id)
			if err != nil {
				return err
			}
			for i := range logs {
				history = append(history, api.NewReviewLog(&logs[i]))
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "## Review #%d\n\n", item.ID)
	fmt.Fprintf(out, "Prompt:   %s\n", item.Prompt)
	fmt.Fprintf(out, "Answer:   %s\n", item.AnswerKey)
	fmt.Fprintf(out, "Ease:     %.2f\n", item.EaseFactor)
	fmt.Fprintf(out, "Interval: %s\n", english.Plural(item.IntervalDays, "day", ""))
	fmt.Fprintf(out, "Due:      %s (%s)\n", item.DueDate, dueText(*item))

	if len(history) == 0 {
		return nil
	}
	fmt.Fprintf(out, "\n## History\n\n")
	tw := newTable(out)
	fmt.Fprintln(tw, "GRADED\tRATING\tEASE\tINTERVAL\tDUE")
	for _, l := range history {
		fmt.Fprintf(tw, "%s\t%s\t%.2f -> %.2f\t%d -> %d\t%s\n", l.GradedAt.Format(time.DateTime), l.RatingName,
			l.EaseBefore, l.EaseAfter, l.IntervalBefore, l.IntervalAfter, l.DueDate)
	}
	return tw.Flush()
}

func runReviewGrade(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	rating, err := scheduler.ParseRating(args[1])
	if err != nil {
		return err
	}

	var res *api.GradeResult
	if c := remoteClient(cmd); c != nil {
		if res, err = c.Grade(id, rating); err != nil {
			return err
		}
	} else {
		err = withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
			graded, err := eng.GradeReview(ctx, id, rating)
			if err != nil {
				return err
			}
			res = &api.GradeResult{
				Item: api.NewReviewItem(&graded.Item, eng.Today()),
				Log:  api.NewReviewLog(&graded.Log),
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Graded #%d %s: ease %.2f, next review %s (%s)\n",
		res.Item.ID, res.Log.RatingName, res.Item.EaseFactor, res.Item.DueDate, dueText(res.Item))
	return nil
}
