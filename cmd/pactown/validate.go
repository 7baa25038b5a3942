package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pactown/pactown/pkg/artifact"
	"github.com/pactown/pactown/pkg/errdefs"
	"github.com/pactown/pactown/pkg/resolver"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the ecosystem configuration",
	Long: `Check the config and every service artifact without starting anything.

Validation covers YAML shape, artifact existence and run commands,
undefined dependencies, and dependency cycles. All problems are
reported at once.`,
	RunE: runValidate,
}

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Show the dependency graph in startup order",
	RunE:  runGraph,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(graphCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var issues []string
	for _, svc := range cfg.Services {
		art, err := artifact.ParseFile(svc.Readme)
		if err != nil {
			issues = append(issues, fmt.Sprintf("service %q: %v", svc.Name, err))
			continue
		}
		if art.Run == "" {
			issues = append(issues, fmt.Sprintf("service %q: artifact %s declares no run command", svc.Name, svc.Readme))
		}
	}
	issues = append(issues, resolver.New(cfg).Validate()...)

	if len(issues) > 0 {
		for _, issue := range issues {
			fmt.Printf("✗ %s\n", issue)
		}
		return errdefs.Config("%d validation issue(s)", len(issues))
	}

	fmt.Printf("✓ %s: %d services, configuration valid\n", cfg.Name, len(cfg.Services))
	return nil
}

func runGraph(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	out, err := resolver.New(cfg).Graph()
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}
