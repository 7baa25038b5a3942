package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pactown/pactown/pkg/orchestrator"
)

var testCmd = &cobra.Command{
	Use:   "test SERVICE",
	Short: "Run a service's artifact tests against its live endpoint",
	Long: `Run the test specs declared in the service's README.md.

Each spec is an HTTP request (METHOD /path [status] [body]) sent to
the service's registered endpoint. The service must be running.

Examples:
  pactown test api`,
	Args: cobra.ExactArgs(1),
	RunE: runTest,
}

func init() {
	rootCmd.AddCommand(testCmd)
}

func runTest(cmd *cobra.Command, args []string) error {
	name := args[0]

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	eng, err := orchestrator.New(cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results, err := eng.RunTests(ctx, name)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Printf("No tests declared for %s\n", name)
		return nil
	}

	failed := 0
	for _, r := range results {
		if r.Passed() {
			fmt.Printf("✓ %s %s (%s)\n", r.Spec.Method, r.Spec.Path, r.Result.Duration.Round(time.Millisecond))
		} else {
			failed++
			fmt.Printf("✗ %s %s: %s\n", r.Spec.Method, r.Spec.Path, r.Result.Message)
		}
	}

	fmt.Printf("\n%d/%d passed\n", len(results)-failed, len(results))
	if failed > 0 {
		return fmt.Errorf("%d of %d tests failed", failed, len(results))
	}
	return nil
}
