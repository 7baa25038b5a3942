package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pactown/pactown/pkg/config"
	"github.com/pactown/pactown/pkg/errdefs"
	"github.com/pactown/pactown/pkg/security"
	"github.com/pactown/pactown/pkg/storage"
	"github.com/pactown/pactown/pkg/types"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Manage tenant quota profiles",
	Long: `Manage the persisted per-tenant profiles enforced during startup.

Profiles live in a database under the sandbox root and apply whenever
up runs with --user.`,
}

var policySetTierCmd = &cobra.Command{
	Use:   "set-tier USER TIER",
	Short: "Assign a quota tier to a user (free, basic, pro, enterprise)",
	Args:  cobra.ExactArgs(2),
	RunE:  runPolicySetTier,
}

var policyBlockCmd = &cobra.Command{
	Use:   "block USER",
	Short: "Deny all starts for a user",
	Args:  cobra.ExactArgs(1),
	RunE:  runPolicyBlock,
}

var policyUnblockCmd = &cobra.Command{
	Use:   "unblock USER",
	Short: "Lift a user's block",
	Args:  cobra.ExactArgs(1),
	RunE:  runPolicyUnblock,
}

var policyShowCmd = &cobra.Command{
	Use:   "show [USER]",
	Short: "Show persisted profiles",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPolicyShow,
}

func init() {
	policyBlockCmd.Flags().String("reason", "blocked by operator", "Reason recorded on the profile")

	policyCmd.AddCommand(policySetTierCmd)
	policyCmd.AddCommand(policyBlockCmd)
	policyCmd.AddCommand(policyUnblockCmd)
	policyCmd.AddCommand(policyShowCmd)

	rootCmd.AddCommand(policyCmd)
}

// openPolicy wires the persisted profile store, resource monitor, and
// anomaly log under the sandbox root. The monitor samples only when
// sample is set; profile management does not need load readings. The
// returned cleanup must be called exactly once.
func openPolicy(cfg *config.Config, sample bool) (*security.Policy, func(), error) {
	if err := os.MkdirAll(cfg.SandboxRoot, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create sandbox root: %w", err)
	}
	store, err := storage.NewBoltStore(cfg.SandboxRoot)
	if err != nil {
		return nil, nil, err
	}
	monitor := security.NewResourceMonitor()
	if sample {
		monitor.Start()
	}
	anomalies := security.NewAnomalyLogger(filepath.Join(cfg.SandboxRoot, security.LogFileName))
	pol := security.New(store, monitor, anomalies)
	cleanup := func() {
		monitor.Stop()
		store.Close()
	}
	return pol, cleanup, nil
}

func runPolicySetTier(cmd *cobra.Command, args []string) error {
	user, tier := args[0], types.Tier(args[1])
	switch tier {
	case types.TierFree, types.TierBasic, types.TierPro, types.TierEnterprise:
	default:
		return errdefs.Config("unknown tier %q (want free, basic, pro, or enterprise)", args[1])
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	pol, cleanup, err := openPolicy(cfg, false)
	if err != nil {
		return err
	}
	defer cleanup()

	profile, err := pol.SetTier(user, tier)
	if err != nil {
		return err
	}
	fmt.Printf("✓ %s is now %s: %d concurrent, %d starts/min, %d starts/hour\n",
		profile.UserID, profile.Tier,
		profile.MaxConcurrentServices, profile.MaxRequestsPerMinute, profile.MaxServicesPerHour)
	return nil
}

func runPolicyBlock(cmd *cobra.Command, args []string) error {
	user := args[0]
	reason, _ := cmd.Flags().GetString("reason")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	pol, cleanup, err := openPolicy(cfg, false)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := pol.Block(user, reason); err != nil {
		return err
	}
	fmt.Printf("✓ Blocked %s: %s\n", user, reason)
	return nil
}

func runPolicyUnblock(cmd *cobra.Command, args []string) error {
	user := args[0]

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	pol, cleanup, err := openPolicy(cfg, false)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := pol.Unblock(user); err != nil {
		return err
	}
	fmt.Printf("✓ Unblocked %s\n", user)
	return nil
}

func runPolicyShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	pol, cleanup, err := openPolicy(cfg, false)
	if err != nil {
		return err
	}
	defer cleanup()

	if len(args) == 1 {
		return printProfile(pol.ProfileOrDefault(args[0]))
	}

	profiles, err := pol.Profiles()
	if err != nil {
		return err
	}
	if len(profiles) == 0 {
		fmt.Println("No profiles stored. Users default to the free tier.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "USER\tTIER\tCONCURRENT\tSTARTS/MIN\tSTARTS/HOUR\tBLOCKED")
	for _, p := range profiles {
		blocked := "-"
		if p.Blocked {
			blocked = p.BlockedReason
			if blocked == "" {
				blocked = "yes"
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\n",
			p.UserID, p.Tier, p.MaxConcurrentServices,
			p.MaxRequestsPerMinute, p.MaxServicesPerHour, blocked)
	}
	return w.Flush()
}

func printProfile(p *types.UserProfile) error {
	fmt.Printf("User:        %s\n", p.UserID)
	fmt.Printf("Tier:        %s\n", p.Tier)
	fmt.Printf("Concurrent:  %d services\n", p.MaxConcurrentServices)
	fmt.Printf("Rate:        %d starts/min, %d starts/hour\n", p.MaxRequestsPerMinute, p.MaxServicesPerHour)
	fmt.Printf("Resources:   %d MB memory, %d%% CPU\n", p.MaxMemoryMB, p.MaxCPUPercent)
	if len(p.AllowedPorts) > 0 {
		fmt.Printf("Ports:       %v\n", p.AllowedPorts)
	} else {
		fmt.Printf("Ports:       any\n")
	}
	if p.Blocked {
		fmt.Printf("Blocked:     yes (%s)\n", p.BlockedReason)
	}
	return nil
}
