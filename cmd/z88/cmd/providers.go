package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/helix-collective/z88/internal/adapters/llm"
	"github.com/helix-collective/z88/internal/core"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Inspect LLM providers",
}

var providersTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Send a probe prompt to every configured provider",
	RunE:  runProvidersTest,
}

var providersTimeout time.Duration

func init() {
	rootCmd.AddCommand(providersCmd)
	providersCmd.AddCommand(providersTestCmd)
	providersTestCmd.Flags().DurationVar(&providersTimeout, "timeout", 30*time.Second, "overall probe timeout")
}

func runProvidersTest(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, os.Stderr)

	ctx, cancel := context.WithTimeout(cmd.Context(), providersTimeout)
	defer cancel()

	router, err := llm.NewRouter(ctx, cfg.Providers, cfg.LLM, llm.WithLogger(logger))
	if err != nil {
		return err
	}
	results := router.TestAll(ctx)

	out := cmd.OutOrStdout()
	available := 0
	for _, p := range core.AllProviders() {
		switch {
		case !cfg.Providers.Get(p).Configured():
			fmt.Fprintf(out, "  %s %-11s %s\n", color.HiBlackString("○"), p, color.HiBlackString("no API key"))
		case results[p]:
			available++
			fmt.Fprintf(out, "  %s %-11s %s\n", color.GreenString("✓"), p, router.Model(p))
		default:
			fmt.Fprintf(out, "  %s %-11s %s\n", color.RedString("✗"), p, router.Model(p))
		}
	}
	if available == 0 {
		return fmt.Errorf("no provider answered")
	}
	return nil
}

func sorted(s []string) []string {
	sort.Strings(s)
	return s
}
