package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var auditLimit int

func init() {
	auditCmd.AddCommand(auditListCmd)
	auditListCmd.Flags().IntVar(&auditLimit, "limit", 100, "Maximum number of events to show")
}

// auditCmd is the parent command for audit log operations.
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit log operations",
}

// auditListCmd lists recent audit events.
var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent audit events",
	RunE: func(cmd *cobra.Command, args []string) error {
		events, err := auditLog.List(auditLimit)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Println("No audit events found")
			return nil
		}

		for _, e := range events {
			line := fmt.Sprintf("%s %s %s %s", e.Timestamp.Format(time.RFC3339), e.Source, e.Operation, e.Result)
			if e.Target != "" {
				line += " target:" + e.Target
			}
			if e.Detail != "" {
				line += " detail:" + e.Detail
			}
			fmt.Println(line)
		}
		fmt.Printf("\nTotal: %d events\n", len(events))
		return nil
	},
}
