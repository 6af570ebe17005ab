package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lazypower/atlas/internal/engine"
	"github.com/lazypower/atlas/internal/store"
	"github.com/spf13/cobra"
)

var problemCmd = &cobra.Command{
	Use:     "problem",
	Aliases: []string{"problems", "p"},
	Short:   "Manage practice problems",
}

var (
	problemTitle         string
	problemSource        string
	problemTopic         string
	problemDifficulty    int
	problemTags          string
	problemStatement     string
	problemStatementFile string

	listTopics        string
	listDifficultyMin int
	listDifficultyMax int
	listTag           string
	listSource        string
)

var problemAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a problem",
	Args:  cobra.NoArgs,
	RunE:  runProblemAdd,
}

var problemListCmd = &cobra.Command{
	Use:   "list",
	Short: "List problems, newest first",
	Args:  cobra.NoArgs,
	RunE:  runProblemList,
}

var problemShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a problem and its attempts",
	Args:  cobra.ExactArgs(1),
	RunE:  runProblemShow,
}

var problemEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Change fields of a problem",
	Long:  "Change fields of a problem. Only the flags given are updated.",
	Args:  cobra.ExactArgs(1),
	RunE:  runProblemEdit,
}

var problemDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a problem with its attempts and mistakes",
	Args:  cobra.ExactArgs(1),
	RunE:  runProblemDelete,
}

func init() {
	for _, c := range []*cobra.Command{problemAddCmd, problemEditCmd} {
		c.Flags().StringVar(&problemTitle, "title", "", "problem title")
		c.Flags().StringVar(&problemSource, "source", "", "where the problem comes from, e.g. ISL 2019 N3")
		c.Flags().StringVar(&problemTopic, "topic", "", "topic: "+strings.Join(store.Topics, ", "))
		c.Flags().IntVar(&problemDifficulty, "difficulty", 0, "difficulty 1-10 (default 5)")
		c.Flags().StringVar(&problemTags, "tags", "", "comma-separated tags")
		c.Flags().StringVar(&problemStatement, "statement", "", "problem statement")
		c.Flags().StringVar(&problemStatementFile, "statement-file", "", "read the statement from a file, - for stdin")
	}

	problemListCmd.Flags().StringVar(&listTopics, "topic", "", "comma-separated topics to include")
	problemListCmd.Flags().IntVar(&listDifficultyMin, "difficulty-min", 0, "minimum difficulty")
	problemListCmd.Flags().IntVar(&listDifficultyMax, "difficulty-max", 0, "maximum difficulty")
	problemListCmd.Flags().StringVar(&listTag, "tag", "", "tag substring")
	problemListCmd.Flags().StringVar(&listSource, "source", "", "source substring")

	problemCmd.AddCommand(problemAddCmd)
	problemCmd.AddCommand(problemListCmd)
	problemCmd.AddCommand(problemShowCmd)
	problemCmd.AddCommand(problemEditCmd)
	problemCmd.AddCommand(problemDeleteCmd)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(s, "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

// statementFromFlags returns the statement text, reading --statement-file if given.
func statementFromFlags(cmd *cobra.Command) (string, error) {
	if problemStatementFile == "" {
		return problemStatement, nil
	}
	var (
		data []byte
		err  error
	)
	if problemStatementFile == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(problemStatementFile)
	}
	if err != nil {
		return "", fmt.Errorf("read statement: %w", err)
	}
	return string(data), nil
}

func runProblemAdd(cmd *cobra.Command, args []string) error {
	statement, err := statementFromFlags(cmd)
	if err != nil {
		return err
	}
	in := engine.ProblemInput{
		Title:      problemTitle,
		Source:     problemSource,
		Topic:      problemTopic,
		Difficulty: problemDifficulty,
		Tags:       problemTags,
		Statement:  statement,
	}
	return withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
		p, err := eng.CreateProblem(ctx, in)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created problem #%d: %s [%s, difficulty %d]\n", p.ID, p.Title, p.Topic, p.Difficulty)
		return nil
	})
}

func runProblemList(cmd *cobra.Command, args []string) error {
	f := store.ProblemFilter{
		DifficultyMin: listDifficultyMin,
		DifficultyMax: listDifficultyMax,
		Tag:           listTag,
		Source:        listSource,
	}
	for _, t := range strings.Split(listTopics, ",") {
		if t = strings.ToUpper(strings.TrimSpace(t)); t != "" {
			f.Topics = append(f.Topics, t)
		}
	}

	return withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
		problems, err := eng.DB.ListProblems(ctx, f)
		if err != nil {
			return fmt.Errorf("list problems: %w", err)
		}
		out := cmd.OutOrStdout()
		if len(problems) == 0 {
			fmt.Fprintln(out, "No problems found.")
			return nil
		}

		tw := newTable(out)
		fmt.Fprintln(tw, "ID\tTITLE\tTOPIC\tDIFF\tSOURCE\tTAGS")
		for _, p := range problems {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\n",
				p.ID, clip(p.Title, 40), p.Topic, p.Difficulty, clip(p.Source, 24), p.Tags)
		}
		return tw.Flush()
	})
}

func runProblemShow(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	return withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
		p, err := eng.DB.GetProblem(ctx, id)
		if err != nil {
			return err
		}
		if p == nil {
			return fmt.Errorf("problem %d: %w", id, engine.ErrNotFound)
		}
		attempts, err := eng.DB.ListAttempts(ctx, id, 0)
		if err != nil {
			return fmt.Errorf("list attempts: %w", err)
		}

		out := cmd.OutOrStdout()
		now := eng.Clock()
		fmt.Fprintf(out, "## #%d %s\n\n", p.ID, p.Title)
		fmt.Fprintf(out, "Topic:      %s\n", store.TopicLabels[p.Topic])
		fmt.Fprintf(out, "Difficulty: %d\n", p.Difficulty)
		if p.Source != "" {
			fmt.Fprintf(out, "Source:     %s\n", p.Source)
		}
		if p.Tags != "" {
			fmt.Fprintf(out, "Tags:       %s\n", p.Tags)
		}
		fmt.Fprintf(out, "Added:      %s\n\n", relTime(time.UnixMilli(p.CreatedAt), now))
		fmt.Fprintln(out, p.Statement)

		if len(attempts) == 0 {
			return nil
		}
		fmt.Fprintf(out, "\n## Attempts\n\n")
		printAttempts(cmd, attempts, now)
		return nil
	})
}

func runProblemEdit(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	statement, err := statementFromFlags(cmd)
	if err != nil {
		return err
	}

	return withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
		p, err := eng.DB.GetProblem(ctx, id)
		if err != nil {
			return err
		}
		if p == nil {
			return fmt.Errorf("problem %d: %w", id, engine.ErrNotFound)
		}

		in := engine.ProblemInput{
			Title:      p.Title,
			Source:     p.Source,
			Topic:      p.Topic,
			Difficulty: p.Difficulty,
			Tags:       p.Tags,
			Statement:  p.Statement,
		}
		flags := cmd.Flags()
		if flags.Changed("title") {
			in.Title = problemTitle
		}
		if flags.Changed("source") {
			in.Source = problemSource
		}
		if flags.Changed("topic") {
			in.Topic = problemTopic
		}
		if flags.Changed("difficulty") {
			in.Difficulty = problemDifficulty
		}
		if flags.Changed("tags") {
			in.Tags = problemTags
		}
		if flags.Changed("statement") || flags.Changed("statement-file") {
			in.Statement = statement
		}

		updated, err := eng.UpdateProblem(ctx, id, in)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Updated problem #%d: %s\n", updated.ID, updated.Title)
		return nil
	})
}

func runProblemDelete(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	return withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
		if err := eng.DB.DeleteProblem(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted problem #%d\n", id)
		return nil
	})
}
