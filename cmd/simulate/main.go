package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/whodunit/internal/simulate"
	"github.com/okian/whodunit/pkg/logger"
	"github.com/spf13/cobra"
)

const defaultRunTimeout = 10 * time.Minute

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := simulate.DefaultConfig()
	cfg.Workers = runtime.NumCPU() * 2

	var (
		logFormat  string
		logLevel   string
		runTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Play concurrent whodunit games against a running server and verify the outcome",
		Long: `simulate registers players, opens cases, races several players for each
culprit and detective slot, and submits guesses. It then checks that every
slot was taken exactly once, every case is Resolved and every score matches
the server's published scoring policy.`,
		Example: `  simulate
  simulate --games 500 --contenders 8 --url http://localhost:8080
  simulate --verbose --report out/report.json`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := logger.Init(logger.WithFormat(logFormat), logger.WithWriter(cmd.ErrOrStderr())); err != nil {
				return fmt.Errorf("initialize logging: %w", err)
			}
			if err := logger.SetLevelString(logLevel); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), runTimeout)
			defer cancel()

			report, err := simulate.Run(ctx, cfg)
			if report != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d/%d resolved (%d solved, %d unsolved), %d mismatches in %s\n",
					report.RunID, report.Resolved, report.Games, report.Solved, report.Unsolved,
					len(report.Mismatches), report.Duration.Round(time.Millisecond))
				for _, m := range report.Mismatches {
					fmt.Fprintln(cmd.OutOrStdout(), "  mismatch:", m)
				}
			}
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "url", cfg.BaseURL, "Base URL of the service")
	f.IntVar(&cfg.Users, "users", cfg.Users, "Number of players to register")
	f.IntVar(&cfg.Games, "games", cfg.Games, "Number of cases to play")
	f.IntVar(&cfg.Contenders, "contenders", cfg.Contenders, "Players racing for each culprit and detective slot")
	f.IntVar(&cfg.Workers, "workers", cfg.Workers, "Games played concurrently")
	f.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "HTTP request timeout")
	f.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "Seed for clue and suspect choices")
	f.Int64Var(&cfg.UserBase, "user-base", 0, "First user id (default: derived from the run id)")
	f.StringVar(&cfg.Report, "report", "", "Write a JSON report to this file")
	f.BoolVarP(&cfg.Verbose, "verbose", "v", false, "Log every game and the final leaderboard")
	f.StringVar(&logFormat, "log-format", "text", "Log format: text or json")
	f.StringVar(&logLevel, "log-level", "info", "Log level")
	f.DurationVar(&runTimeout, "run-timeout", defaultRunTimeout, "Upper bound for the whole run")
	return cmd
}
