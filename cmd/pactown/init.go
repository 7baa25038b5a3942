package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pactown/pactown/pkg/errdefs"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter ecosystem configuration",
	RunE:  runInit,
}

func init() {
	initCmd.Flags().StringP("name", "n", "my-ecosystem", "Ecosystem name")
	initCmd.Flags().StringP("output", "o", "saas.pactown.yaml", "Output file")

	rootCmd.AddCommand(initCmd)
}

const starterConfig = `name: %s
version: 0.1.0
description: %s - a pactown ecosystem
base_port: 8000
sandbox_root: ./.pactown-sandboxes
registry:
  url: http://localhost:8800
  namespace: default
services:
  api:
    readme: services/api/README.md
    port: 8001
    health_check: /health
  web:
    readme: services/web/README.md
    port: 8002
    health_check: /
    depends_on:
      - api
`

func runInit(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("name")
	output, _ := cmd.Flags().GetString("output")

	if _, err := os.Stat(output); err == nil {
		return errdefs.Config("%s already exists", output)
	}
	content := fmt.Sprintf(starterConfig, name, name)
	if err := os.WriteFile(output, []byte(content), 0o644); err != nil {
		return err
	}

	fmt.Printf("✓ Created %s\n", output)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Create the service README.md files")
	fmt.Printf("  2. Run: pactown validate -f %s\n", output)
	fmt.Printf("  3. Run: pactown up -f %s\n", output)
	return nil
}
