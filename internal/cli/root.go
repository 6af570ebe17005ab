package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/lazypower/atlas/internal/client"
	"github.com/lazypower/atlas/internal/config"
	"github.com/lazypower/atlas/internal/engine"
	"github.com/lazypower/atlas/internal/store"
	"github.com/spf13/cobra"
)

var (
	configPath string
	dbFlag     string
	remote     bool
	remoteURL  string

	cfg    config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "atlas",
	Short: "Mistake atlas and spaced review for olympiad practice",
	Long: "Atlas tracks practice problems, timed attempts and the mistakes made in them, " +
		"and schedules each mistake for spaced review until it sticks.",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.atlas/config.toml)")
	rootCmd.PersistentFlags().StringVar(&dbFlag, "db", "", "database path (overrides config and ATLAS_DB)")
	rootCmd.PersistentFlags().BoolVar(&remote, "remote", false, "talk to a running server for review commands")
	rootCmd.PersistentFlags().StringVar(&remoteURL, "url", "", "server URL for --remote (default $ATLAS_URL or "+client.DefaultServerURL+")")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(dashboardCmd)
	rootCmd.AddCommand(problemCmd)
	rootCmd.AddCommand(attemptCmd)
	rootCmd.AddCommand(mistakeCmd)
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}

func loadConfig(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return err
	}
	if dbFlag != "" {
		cfg.Database.Path = dbFlag
	}
	logger, err = cfg.Log.NewLogger(os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	return nil
}

// openDB opens the configured database, falling back to the default path.
func openDB() (*store.DB, error) {
	dbPath := cfg.Database.Path
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, err
		}
	}
	return store.Open(dbPath)
}

// withEngine opens the database, runs fn against a fresh engine and closes
// the database afterwards.
func withEngine(cmd *cobra.Command, fn func(ctx context.Context, eng *engine.Engine) error) error {
	db, err := openDB()
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	eng := engine.New(db, logger)
	return fn(cmd.Context(), eng)
}

// remoteClient returns a client when --remote is set and the server answers.
// A nil client means the command should use the local database.
func remoteClient(cmd *cobra.Command) *client.Client {
	if !remote {
		return nil
	}
	c := client.NewClient(remoteURL)
	if !c.Healthy() {
		fmt.Fprintf(cmd.ErrOrStderr(), "note: server at %s unreachable, using local database\n", c.URL())
		return nil
	}
	return c
}
