package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/developer-az/commit-warrior/internal/cache"
	"github.com/developer-az/commit-warrior/internal/commits"
	"github.com/developer-az/commit-warrior/internal/config"
	"github.com/developer-az/commit-warrior/internal/github"
	"github.com/developer-az/commit-warrior/internal/retry"
)

var (
	userFlag    string
	tokenFlag   string
	dateFlag    string
	verboseFlag bool
)

var rootCmd = &cobra.Command{
	Use:           "commit-warrior",
	Short:         "Check whether a GitHub user has committed today",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one commit check and print the result as JSON",
	RunE:  runCheck,
}

var rateLimitCmd = &cobra.Command{
	Use:   "ratelimit",
	Short: "Print the token's current GitHub API quota",
	RunE:  runRateLimit,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check that the token belongs to the user",
	RunE:  runValidate,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&userFlag, "user", "u", "", "GitHub username (default $GITHUB_USERNAME)")
	rootCmd.PersistentFlags().StringVarP(&tokenFlag, "token", "t", "", "GitHub token (default $GITHUB_TOKEN)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Log API activity to stderr")
	checkCmd.Flags().StringVarP(&dateFlag, "date", "d", "", "Day to check as YYYY-MM-DD (default today)")
	rootCmd.AddCommand(checkCmd, rateLimitCmd, validateCmd)
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// errCheckFailed signals a non-zero exit after the result was printed
var errCheckFailed = errors.New("check failed")

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, checker, err := setup()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.CheckTimeout)
	defer cancel()

	day := time.Now()
	if dateFlag != "" {
		day, err = checker.Days().Parse(dateFlag)
		if err != nil {
			return fmt.Errorf("invalid --date %q, expected YYYY-MM-DD", dateFlag)
		}
	}

	res := checker.CheckDate(ctx, credential(cfg), day)
	if err := printJSON(cmd.OutOrStdout(), res); err != nil {
		return err
	}
	if !res.Success {
		return errCheckFailed
	}
	return nil
}

func runRateLimit(cmd *cobra.Command, args []string) error {
	cfg, checker, err := setup()
	if err != nil {
		return err
	}

	rl, err := checker.RemoteRateLimit(cmd.Context(), credential(cfg).Token)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), rl)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, checker, err := setup()
	if err != nil {
		return err
	}

	v, err := checker.ValidateToken(cmd.Context(), credential(cfg))
	if err != nil {
		return err
	}
	if err := printJSON(cmd.OutOrStdout(), v); err != nil {
		return err
	}
	if !v.Valid {
		return fmt.Errorf("token belongs to %s", v.TokenUsername)
	}
	return nil
}

func setup() (*config.Config, *commits.Checker, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	level := slog.LevelWarn
	if verboseFlag {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	source := github.NewSource(
		github.NewClient(cfg.GitHubAPIURL, nil, logger),
		cache.New(cfg.CacheMaxEntries, cache.WithLogger(logger)),
		retry.New(retry.DefaultOptions(), logger),
		cfg.EventPages,
		logger,
	)
	checker := commits.NewChecker(source, commits.Options{
		Detector: commits.DetectorOptions{
			MaxRepositories: cfg.MaxRepositories,
			Concurrency:     cfg.RepoConcurrency,
			ExcludeMerges:   cfg.ExcludeMergeCommits,
		},
		ValidateToken: cfg.ValidateToken,
		Location:      cfg.Location,
	}, logger)
	return cfg, checker, nil
}

// credential prefers flags over the environment
func credential(cfg *config.Config) github.Credential {
	cred := github.Credential{Username: cfg.GitHubUsername, Token: cfg.GitHubToken}
	if userFlag != "" {
		cred.Username = userFlag
	}
	if tokenFlag != "" {
		cred.Token = tokenFlag
	}
	return cred
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
