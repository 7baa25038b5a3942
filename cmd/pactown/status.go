package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pactown/pactown/pkg/errdefs"
	"github.com/pactown/pactown/pkg/orchestrator"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show status of all services",
	Long: `Show each declared service with its state, endpoint, and health.

Running services are probed live, so the health column reflects this
moment rather than the last supervisor observation.`,
	RunE: runStatus,
}

var logsCmd = &cobra.Command{
	Use:   "logs SERVICE",
	Short: "Show captured output of a service",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogs,
}

func init() {
	logsCmd.Flags().IntP("tail", "t", 50, "Number of trailing lines to show (0 for everything)")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(logsCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	eng, err := orchestrator.New(cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	statuses := eng.Status(cmd.Context())

	fmt.Printf("Ecosystem: %s\n\n", cfg.Name)
	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "SERVICE\tSTATE\tPORT\tPID\tHEALTH\tUPTIME")
	for _, st := range statuses {
		port := "-"
		if st.Port != 0 {
			port = strconv.Itoa(st.Port)
		}
		pid := "-"
		if st.PID != 0 {
			pid = strconv.Itoa(st.PID)
		}
		uptime := "-"
		if st.Uptime > 0 {
			uptime = st.Uptime.Round(time.Second).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			st.Name, st.State, port, pid, st.Health, uptime)
	}
	return w.Flush()
}

func runLogs(cmd *cobra.Command, args []string) error {
	name := args[0]
	tail, _ := cmd.Flags().GetInt("tail")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Service(name) == nil {
		return errdefs.Config("unknown service %q", name)
	}

	eng, err := orchestrator.New(cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	data, err := eng.Sandboxes().Logs(name, tail)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}
