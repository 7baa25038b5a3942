package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pactown/pactown/pkg/config"
	"github.com/pactown/pactown/pkg/errdefs"
	"github.com/pactown/pactown/pkg/log"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(errdefs.ExitCode(err))
	}
}

var rootCmd = &cobra.Command{
	Use:   "pactown",
	Short: "Pactown - Markdown-defined service ecosystem orchestrator",
	Long: `Pactown runs an ecosystem of services defined by Markdown artifacts.

Each service is a README.md with tagged code blocks for its files,
dependencies, run command, and tests. Pactown resolves the dependency
graph, allocates ports, materializes one sandbox per service, and
starts everything in the right order with health checks and restarts.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, _ := cmd.Flags().GetString("log-level")
		jsonOut, _ := cmd.Flags().GetBool("log-json")
		log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut})
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Pactown version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringP("file", "f", "saas.pactown.yaml", "Ecosystem config file")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Emit logs as JSON instead of console text")
}

// loadConfig reads the config named by --file. Relative artifact paths
// resolve against the config file's directory, so the command works
// from anywhere.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("file")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	base := filepath.Dir(path)
	for _, svc := range cfg.Services {
		if !filepath.IsAbs(svc.Readme) {
			svc.Readme = filepath.Join(base, svc.Readme)
		}
	}
	return cfg, nil
}
