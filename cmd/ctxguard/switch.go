package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newSwitchCmd creates the 'switch' command, which moves the current
// context pointer through the safety gate.
func newSwitchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "switch <context>",
		Short: "Switch the current context (gated for sensitive tiers)",
		Long: `Move the current-context pointer to the named context.

Switching to a production or unclassified context requires typing the exact
context name at the confirmation prompt within the configured timeout
(default 60s). Anything else - a wrong phrase, a timeout, or Ctrl-C - is a
denial, recorded in the audit log, exit code 2.

Automation can skip the prompt with --force; that override is recorded in
the audit log distinctly from an interactive confirmation.

Examples:
  ctxguard switch dev-local          # No prompt: dev tier
  ctxguard switch prod-us-east       # Prompts for the context name
  ctxguard switch prod-us-east --force   # Non-interactive override`,

		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := sess.ensureStore(); err != nil {
				return err
			}

			force, _ := cmd.Flags().GetBool("force")
			name := args[0]

			if err := sess.dispatcher.Switch(cmd.Context(), name, force); err != nil {
				return err
			}

			fmt.Printf("Switched to context %q\n", name)
			return nil
		},
	}

	cmd.Flags().Bool("force", false, "skip interactive confirmation (audited as an override)")
	return cmd
}
