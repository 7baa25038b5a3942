package main

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/pactown/pactown/pkg/security"
)

var anomaliesCmd = &cobra.Command{
	Use:   "anomalies",
	Short: "Summarize recorded policy anomalies",
	Long: `Aggregate the anomaly log by type, severity, and user.

The log is written during up --user whenever the policy denies,
throttles, or flags a start.`,
	RunE: runAnomalies,
}

func init() {
	anomaliesCmd.Flags().Int("hours", 24, "Trailing window to summarize")
	anomaliesCmd.Flags().String("user", "", "Restrict the summary to one user")

	rootCmd.AddCommand(anomaliesCmd)
}

func runAnomalies(cmd *cobra.Command, args []string) error {
	hours, _ := cmd.Flags().GetInt("hours")
	user, _ := cmd.Flags().GetString("user")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	events, err := security.ReadLog(filepath.Join(cfg.SandboxRoot, security.LogFileName))
	if err != nil {
		return err
	}

	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	summary := security.Summarize(events, since, user, hours)

	fmt.Printf("Anomalies in the last %dh", hours)
	if user != "" {
		fmt.Printf(" for %s", user)
	}
	fmt.Printf(": %d\n", summary.Total)
	if summary.Total == 0 {
		return nil
	}

	fmt.Println("\nBy severity:")
	for _, sev := range []string{"critical", "high", "medium", "low"} {
		if n := summary.BySeverity[sev]; n > 0 {
			fmt.Printf("  %-10s %d\n", sev, n)
		}
	}

	fmt.Println("\nBy type:")
	for _, typ := range sortedKeys(summary.ByType) {
		fmt.Printf("  %-25s %d\n", typ, summary.ByType[typ])
	}

	if len(summary.TopUsers) > 0 && user == "" {
		fmt.Println("\nTop users:")
		for _, u := range sortedKeys(summary.TopUsers) {
			fmt.Printf("  %-20s %d\n", u, summary.TopUsers[u])
		}
	}

	if len(summary.RecentCritical) > 0 {
		fmt.Println("\nRecent critical:")
		for _, ev := range summary.RecentCritical {
			fmt.Printf("  %s  %s  %s: %s\n",
				ev.Timestamp.Format(time.RFC3339), ev.UserID, ev.Type, ev.Details)
		}
	}
	return nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
