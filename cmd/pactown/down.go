package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pactown/pactown/pkg/orchestrator"
)

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Stop all services in the ecosystem",
	Long: `Stop every running service in reverse dependency order.

Services started by a previous invocation are found through the
persisted registry and sandbox state, so down works from a fresh
process.`,
	RunE: runDown,
}

var restartCmd = &cobra.Command{
	Use:   "restart SERVICE",
	Short: "Restart a single service",
	Long: `Stop one service and start it again with a fresh sandbox.

The artifact is re-parsed on restart, so edits to the service's
README.md take effect.`,
	Args: cobra.ExactArgs(1),
	RunE: runRestart,
}

func init() {
	rootCmd.AddCommand(downCmd)
	rootCmd.AddCommand(restartCmd)
}

func runDown(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	eng, err := orchestrator.New(cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	if err := eng.Down(); err != nil {
		return err
	}
	fmt.Println("✓ All services stopped")
	return nil
}

func runRestart(cmd *cobra.Command, args []string) error {
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

	if err := eng.Restart(ctx, name, orchestrator.Options{}); err != nil {
		return err
	}
	fmt.Printf("✓ Restarted %s\n", name)
	return nil
}
