package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pactown/pactown/pkg/api"
	"github.com/pactown/pactown/pkg/config"
	"github.com/pactown/pactown/pkg/log"
	"github.com/pactown/pactown/pkg/metrics"
	"github.com/pactown/pactown/pkg/orchestrator"
	"github.com/pactown/pactown/pkg/resolver"
)

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Start all services in the ecosystem",
	Long: `Start every service in dependency order and supervise the result.

Services whose dependencies are already satisfied start together in
parallel waves. Once the ecosystem is up the command keeps running,
restarting crashed services until interrupted. Ctrl+C stops everything
in reverse dependency order.

Examples:
  # Start and supervise
  pactown up -f saas.pactown.yaml

  # Show the startup plan without starting anything
  pactown up --dry-run

  # Enforce tenant quotas and expose the admin endpoint
  pactown up --user alice --listen 127.0.0.1:9911`,
	RunE: runUp,
}

func init() {
	upCmd.Flags().BoolP("dry-run", "n", false, "Show what would be started without starting it")
	upCmd.Flags().Bool("no-health", false, "Don't wait for health checks")
	upCmd.Flags().BoolP("quiet", "q", false, "Minimal output")
	upCmd.Flags().BoolP("sequential", "s", false, "Start services one at a time")
	upCmd.Flags().IntP("workers", "w", orchestrator.DefaultWorkers, "Max parallel starts per wave")
	upCmd.Flags().String("user", "", "Tenant to charge starts against (enables policy enforcement)")
	upCmd.Flags().String("listen", "", "Serve the admin HTTP endpoint on this address")

	rootCmd.AddCommand(upCmd)
}

func runUp(cmd *cobra.Command, args []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	noHealth, _ := cmd.Flags().GetBool("no-health")
	quiet, _ := cmd.Flags().GetBool("quiet")
	sequential, _ := cmd.Flags().GetBool("sequential")
	workers, _ := cmd.Flags().GetInt("workers")
	user, _ := cmd.Flags().GetString("user")
	listen, _ := cmd.Flags().GetString("listen")

	if quiet && !cmd.Flags().Changed("log-level") {
		jsonOut, _ := cmd.Flags().GetBool("log-json")
		log.Init(log.Config{Level: log.WarnLevel, JSONOutput: jsonOut})
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if dryRun {
		return printPlan(cfg)
	}

	eng, err := orchestrator.New(cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	if user != "" {
		pol, cleanup, err := openPolicy(cfg, true)
		if err != nil {
			return err
		}
		defer cleanup()
		eng.SetPolicy(pol, user)
	}

	if listen != "" {
		coll := metrics.NewCollector(eng)
		coll.Start()
		defer coll.Stop()

		srv := api.NewServer(eng, cfg.Name, Version)
		go func() {
			if err := srv.Start(listen); err != nil {
				logger := log.WithComponent("api")
				logger.Error().Err(err).Msg("Admin server stopped")
			}
		}()
		if !quiet {
			fmt.Printf("Admin endpoint on http://%s\n", listen)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := orchestrator.Options{
		SkipHealth: noHealth,
		Sequential: sequential,
		Workers:    workers,
	}
	if err := eng.Up(ctx, opts); err != nil {
		return err
	}

	if !quiet {
		fmt.Printf("✓ Ecosystem up: %s (%d services)\n\n", cfg.Name, len(cfg.Services))
		for _, ep := range eng.Registry().List() {
			fmt.Printf("  %-20s %s\n", ep.Name, ep.URL())
		}
		fmt.Println("\nPress Ctrl+C to stop all services.")
	}
	return eng.Run(ctx, opts)
}

// printPlan renders the startup waves without touching any sandbox.
func printPlan(cfg *config.Config) error {
	waves, err := resolver.New(cfg).Waves()
	if err != nil {
		return err
	}

	fmt.Printf("Dry run: %s\n\n", cfg.Name)
	fmt.Println("Would start services in order:")
	step := 1
	for i, wave := range waves {
		for _, name := range wave {
			svc := cfg.Service(name)
			var deps []string
			for _, dep := range svc.DependsOn {
				deps = append(deps, dep.Name)
			}
			line := fmt.Sprintf("  %d. %s:%d", step, name, svc.Port)
			if len(deps) > 0 {
				line += fmt.Sprintf(" (deps: %s)", strings.Join(deps, ", "))
			}
			fmt.Printf("%s [wave %d]\n", line, i+1)
			step++
		}
	}
	return nil
}
