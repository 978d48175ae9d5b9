package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path"
	"slices"
	"time"

	"github.com/encodeous/tint"
	"github.com/goccy/go-yaml"
	slogmulti "github.com/samber/slog-multi"
	"github.com/spf13/cobra"

	"github.com/weftnet/weft/sim"
	"github.com/weftnet/weft/state"
)

var (
	logPath string
	verbose bool
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run <scenario.yaml>",
	Short: "Simulate a scenario and print the converged forwarding tables",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadScenario(args[0])
		if err != nil {
			return err
		}

		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		log, err := buildLogger(cfg.Name, level)
		if err != nil {
			return err
		}

		start := time.Now()
		reports, err := sim.RunScenario(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		log.Info("scenario complete", "scenario", cfg.Name, "simulated", cfg.Duration(), "elapsed", time.Since(start))

		for _, report := range reports {
			printReport(cmd, report)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	runCmd.Flags().StringVarP(&logPath, "log", "l", "", "Also write logs to this file")
}

func loadScenario(file string) (*state.ScenarioCfg, error) {
	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	var cfg state.ScenarioCfg
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", file, err)
	}
	if cfg.Name == "" {
		cfg.Name = path.Base(file)
	}
	if err := state.ScenarioValidator(&cfg); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", file, err)
	}
	return &cfg, nil
}

func buildLogger(prefix string, level slog.Level) (*slog.Logger, error) {
	handlers := []slog.Handler{
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:        level,
			AddSource:    false,
			CustomPrefix: prefix,
		}),
	}
	if logPath != "" {
		if err := os.MkdirAll(path.Dir(logPath), 0700); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(logPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0600)
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(slogmulti.Fanout(handlers...)), nil
}

func printReport(cmd *cobra.Command, report sim.Report) {
	cmd.Printf("=== %s ===\n", report.Protocol)
	routers := make([]state.Addr, 0, len(report.Tables))
	for addr := range report.Tables {
		routers = append(routers, addr)
	}
	slices.Sort(routers)
	for _, addr := range routers {
		cmd.Printf("%s:\n", addr)
		table := report.Tables[addr]
		dests := make([]state.Addr, 0, len(table))
		for dst := range table {
			dests = append(dests, dst)
		}
		slices.Sort(dests)
		for _, dst := range dests {
			route := table[dst]
			mark := ""
			if optimal, ok := report.Optimal[addr][dst]; !ok || route.Cost != optimal {
				mark = "  (suboptimal)"
			}
			cmd.Printf("  -> %-12s cost %-3d port %d%s\n", dst, route.Cost, route.Port, mark)
		}
	}
	if report.ProbesSent > 0 {
		cmd.Printf("probes: %d/%d delivered\n", report.ProbesDelivered, report.ProbesSent)
	}
}
