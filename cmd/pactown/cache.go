package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pactown/pactown/pkg/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the dependency environment cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache contents and hit counters",
	RunE:  runCacheStats,
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Evict stale and over-limit environments",
	RunE:  runCachePrune,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every environment not referenced by a running service",
	RunE:  runCacheClear,
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cachePruneCmd)
	cacheCmd.AddCommand(cacheClearCmd)

	rootCmd.AddCommand(cacheCmd)
}

// openCache loads the cache under the configured sandbox root,
// rescanning persisted entries from disk.
func openCache(cmd *cobra.Command) (*cache.Cache, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return cache.New(cfg.SandboxRoot)
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	c, err := openCache(cmd)
	if err != nil {
		return err
	}

	stats := c.Stats()
	fmt.Printf("Dependency cache: %s\n", c.Root())
	fmt.Printf("Entries: %d/%d  Hits: %d  Misses: %d  Evictions: %d\n\n",
		stats.Entries, stats.MaxEntries, stats.Hits, stats.Misses, stats.Evictions)

	if len(stats.List) == 0 {
		fmt.Println("(empty)")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "HASH\tDEPS\tAGE\tREFS")
	for _, e := range stats.List {
		fmt.Fprintf(w, "%s\t%d\t%.1fh\t%d\n", e.Hash, e.DepCount, e.AgeHours, e.RefCount)
	}
	return w.Flush()
}

func runCachePrune(cmd *cobra.Command, args []string) error {
	c, err := openCache(cmd)
	if err != nil {
		return err
	}

	removed := c.Prune()
	fmt.Printf("✓ Pruned %d environment(s)\n", removed)
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	c, err := openCache(cmd)
	if err != nil {
		return err
	}

	removed := c.Clear()
	fmt.Printf("✓ Removed %d environment(s)\n", removed)
	return nil
}
