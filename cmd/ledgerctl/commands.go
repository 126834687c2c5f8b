package main

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Dan9191/microfin/internal/app"
	"github.com/Dan9191/microfin/internal/config"
	"github.com/Dan9191/microfin/internal/middleware"
	"github.com/Dan9191/microfin/internal/repository"
	"github.com/Dan9191/microfin/internal/scheduler"
)

var rootCmd = &cobra.Command{
	Use:          "ledgerctl",
	Short:        "Operate the microfin ledger",
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(migrateCmd, sweepCmd, userCmd)
	migrateCmd.AddCommand(newMigrateCmd("up", "Apply all pending migrations"))
	migrateCmd.AddCommand(newMigrateCmd("down", "Roll back the latest migration"))
	migrateCmd.AddCommand(newMigrateCmd("status", "Print migration status"))

	userCreateCmd.Flags().String("email", "", "Contact address for notifications")
	userCreateCmd.Flags().String("username", "", "Display name")
	userCreateCmd.Flags().Duration("token-ttl", 24*time.Hour, "Lifetime of the printed access token")
	userCmd.AddCommand(userCreateCmd, userTokenCmd)
	userTokenCmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
}

// environment is what every subcommand needs; callers close db.
type environment struct {
	cfg *config.Config
	log *logrus.Logger
	db  *sql.DB
}

func setup(ctx context.Context) (*environment, error) {
	cfg, err := config.NewConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	log := app.NewLogger(cfg.LogLevel)
	db, err := app.OpenDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &environment{cfg: cfg, log: log, db: db}, nil
}

// ─── migrate ────────────────────────────────────────────────────────────────

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

func newMigrateCmd(command, short string) *cobra.Command {
	return &cobra.Command{
		Use:   command,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer env.db.Close()
			return repository.Migrate(cmd.Context(), env.db, command)
		},
	}
}

// ─── sweep ──────────────────────────────────────────────────────────────────

var sweepCmd = &cobra.Command{
	Use:       "sweep expirations|settlements|donations",
	Short:     "Run one sweep now",
	Long:      `Run one scheduled sweep immediately. Sweeps never retry failed records; re-running a sweep is safe because every record is re-checked under lock.`,
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"expirations", "settlements", "donations"},
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer env.db.Close()

		engine := app.NewEngine(env.db, env.cfg, env.log, prometheus.NewRegistry())
		sched, err := scheduler.New(scheduler.Params{
			Log:      env.log,
			Metrics:  engine.Metrics,
			Location: env.cfg.Location(),
			Entries:  scheduler.SweepEntries(engine.Service, env.cfg),
		})
		if err != nil {
			return err
		}
		return sched.RunNow(cmd.Context(), args[0])
	},
}

// ─── user ───────────────────────────────────────────────────────────────────

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user contact records and access tokens",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user and print an access token for it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		emailAddr, _ := cmd.Flags().GetString("email")
		username, _ := cmd.Flags().GetString("username")
		ttl, _ := cmd.Flags().GetDuration("token-ttl")

		env, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer env.db.Close()

		engine := app.NewEngine(env.db, env.cfg, env.log, prometheus.NewRegistry())
		user, err := engine.Service.CreateUser(cmd.Context(), emailAddr, username)
		if err != nil {
			return err
		}
		token, err := middleware.IssueToken(env.cfg.JWTSecret, user.ID, ttl, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "user_id: %d\ntoken: %s\n", user.ID, token)
		return nil
	},
}

var userTokenCmd = &cobra.Command{
	Use:   "token USER_ID",
	Short: "Print an access token for an existing user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || userID <= 0 {
			return fmt.Errorf("invalid user id %q", args[0])
		}
		ttl, _ := cmd.Flags().GetDuration("ttl")
		cfg, err := config.NewConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		token, err := middleware.IssueToken(cfg.JWTSecret, userID, ttl, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}
