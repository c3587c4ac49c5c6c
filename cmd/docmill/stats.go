package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show task and scheduler statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := apiClient(cmd).Statistics()
		if err != nil {
			return fmt.Errorf("failed to fetch statistics: %v", err)
		}

		if t := stats.Tasks; t != nil {
			fmt.Println("Tasks:")
			fmt.Printf("  Total: %d\n", t.TotalTasks)
			fmt.Printf("  Pending: %d\n", t.PendingTasks)
			fmt.Printf("  Processing: %d\n", t.ProcessingTasks)
			fmt.Printf("  Completed: %d\n", t.CompletedTasks)
			fmt.Printf("  Failed: %d\n", t.FailedTasks)
			fmt.Printf("  Cancelled: %d\n", t.CancelledTasks)
			fmt.Printf("  Success Rate: %.1f%%\n", t.SuccessRate)
			fmt.Printf("  Avg Processing Time: %.2fs\n", t.AvgProcessingTimeSecs)
		}

		if s := stats.Scheduler; s != nil {
			fmt.Println("Scheduler:")
			fmt.Printf("  Running: %v\n", s.IsRunning)
			fmt.Printf("  Active Tasks: %d\n", s.ActiveTasks)
			fmt.Printf("  Total Processed: %d\n", s.TotalProcessed)
			fmt.Println("  Queue Depths:")
			for _, lane := range sortedLanes(s.QueueDepths) {
				fmt.Printf("    %s: %d\n", lane, s.QueueDepths[lane])
			}
			fmt.Printf("  Active Workspaces: %d (%d bytes)\n",
				s.WorkspaceStats.ActiveWorkspaces, s.WorkspaceStats.WorkspaceBytes)
		}
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check service health",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := apiClient(cmd).Health()
		if err != nil {
			return fmt.Errorf("health check failed: %v", err)
		}

		fmt.Printf("Status: %s\n", h.Status)
		if s := h.Scheduler; s != nil {
			fmt.Printf("  Scheduler Running: %v\n", s.IsRunning)
			fmt.Printf("  Active Tasks: %d\n", s.ActiveTasks)
		}

		names := make([]string, 0, len(h.Dependencies))
		for name := range h.Dependencies {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			dep := h.Dependencies[name]
			mark := "✓"
			if !dep.Healthy {
				mark = "✗"
			}
			if dep.Message != "" {
				fmt.Printf("  %s %s: %s\n", mark, name, dep.Message)
			} else {
				fmt.Printf("  %s %s\n", mark, name)
			}
		}

		if h.Status != "healthy" {
			return fmt.Errorf("service is %s", h.Status)
		}
		return nil
	},
}

func init() {
	statsCmd.Flags().String("server", "http://localhost:8000", "Docmill API address")
	healthCmd.Flags().String("server", "http://localhost:8000", "Docmill API address")

	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(healthCmd)
}

func sortedLanes(depths map[string]int) []string {
	lanes := make([]string, 0, len(depths))
	for lane := range depths {
		lanes = append(lanes, lane)
	}
	sort.Strings(lanes)
	return lanes
}
