package cmd

import (
	"github.com/spf13/cobra"
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check <scenario.yaml>",
	Short: "Validate a scenario file and print its topology",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadScenario(args[0])
		if err != nil {
			return err
		}
		cmd.Printf("scenario %s: %d nodes, %d links, %d events, protocols %v\n",
			cfg.Name, len(cfg.Nodes), len(cfg.Links), len(cfg.Events), cfg.Protocols)
		for _, l := range cfg.Links {
			cmd.Printf("  %s <-%d-> %s", l.A, l.Cost, l.B)
			if l.LatencyMs > 0 {
				cmd.Printf("  latency %dms", l.LatencyMs)
			}
			if l.Loss > 0 {
				cmd.Printf("  loss %.0f%%", l.Loss*100)
			}
			cmd.Println()
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
