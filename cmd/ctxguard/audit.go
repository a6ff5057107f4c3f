package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// newAuditCmd creates the 'audit' command family for read-only
// introspection of the decision trail.
func newAuditCmd() *cobra.Command {
	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the append-only audit log",
		Long: `The audit command reads the hash-chained decision trail. Every context
switch and gated command leaves exactly one entry; 'verify' walks the chain
and reports the first entry where it breaks, which is how truncation or
in-place edits get caught.

Examples:
  ctxguard audit tail           # Last 10 entries
  ctxguard audit tail 50        # Last 50 entries
  ctxguard audit verify         # Check chain integrity`,
	}

	auditCmd.AddCommand(newAuditTailCmd())
	auditCmd.AddCommand(newAuditVerifyCmd())
	return auditCmd
}

// newAuditTailCmd creates 'audit tail [n]'.
func newAuditTailCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tail [n]",
		Short: "Show the most recent audit entries",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n := 10
			if len(args) == 1 {
				parsed, err := strconv.Atoi(args[0])
				if err != nil || parsed < 1 {
					return fmt.Errorf("invalid entry count %q", args[0])
				}
				n = parsed
			}

			entries, err := sess.auditLog.Tail(n)
			if err != nil {
				return err
			}

			if viper.GetString("output") == "json" {
				jsonData, err := json.MarshalIndent(entries, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal audit entries: %w", err)
				}
				fmt.Println(string(jsonData))
				return nil
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Time", "Actor", "Action", "Context", "Tier", "Outcome", "Detail"})
			table.SetBorder(false)
			table.SetAutoWrapText(false)
			for _, e := range entries {
				table.Append([]string{
					e.Timestamp.Format("2006-01-02 15:04:05"),
					e.Actor,
					string(e.Action),
					e.TargetContext,
					e.Tier,
					string(e.Outcome),
					e.Detail,
				})
			}
			table.Render()
			return nil
		},
	}
}

// newAuditVerifyCmd creates 'audit verify'.
func newAuditVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Verify the audit log's hash chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, brokenIndex, err := sess.auditLog.Verify()
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("audit chain broken at entry %d: the log has been truncated or edited", brokenIndex)
			}
			fmt.Println("audit chain intact")
			return nil
		},
	}
}
