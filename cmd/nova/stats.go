package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/AverageNftEnjoyer/Nova-sub008/internal/usage"
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show aggregated token usage and estimated spend",
	RunE: func(cmd *cobra.Command, args []string) error {
		tracker, err := usage.NewTracker(workspace)
		if err != nil {
			return err
		}
		stats := tracker.Stats()

		fmt.Printf("Total: %d tokens (%d in / %d out), est. $%.4f\n",
			stats.Total.Total, stats.Total.Input, stats.Total.Output, stats.Total.Cost)

		printBreakdown("By provider", stats.ByProvider)
		printBreakdown("By model", stats.ByModel)
		printBreakdown("By lane", stats.ByLane)
		return nil
	},
}

func printBreakdown(title string, m map[string]usage.TokenCounts) {
	if len(m) == 0 {
		return
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Println(title + ":")
	for _, k := range keys {
		c := m[k]
		fmt.Printf("  %-28s %10d tokens  $%.4f\n", k, c.Total, c.Cost)
	}
}
