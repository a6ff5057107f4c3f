package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/celikgo/ctxguard/internal/dispatch"
)

// newExecCmd creates the 'exec' command: run a command against a named
// context, with destructive verbs gated by tier.
func newExecCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec <context> -- <command...>",
		Short: "Run a command against a context (destructive verbs are gated)",
		Long: `Execute a kubectl-like command against the named context. Read-only verbs
(get, describe, version, logs, top) run without a prompt on any tier.
Destructive verbs (delete, apply, create, patch, scale, replace, drain) and
unknown verbs require confirmation on production and unclassified contexts.

The exit code passes through from the executed command, with two reserved
values: 2 always means "denied by the safety gate", so a downstream command
that itself exits 2 is reported as 3.

Supported commands:
  version
  get pods|deployments|namespaces
  delete pod <name>
  scale deployment <name> --replicas=N

Examples:
  ctxguard exec dev-local -- get pods
  ctxguard exec prod-us-east -- delete pod api-7c9f4   # Prompts
  ctxguard exec prod-us-east --force -- scale deployment api --replicas=5`,

		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := sess.ensureStore(); err != nil {
				return err
			}

			name := args[0]
			var argv []string
			if dash := cmd.ArgsLenAtDash(); dash >= 0 {
				// Everything after "--" is the command; the context name
				// must come before it.
				if dash != 1 {
					return fmt.Errorf("expected exactly one context name before --, got %d", dash)
				}
				argv = args[1:]
			} else {
				argv = args[1:]
			}

			force, _ := cmd.Flags().GetBool("force")

			output, code, err := sess.dispatcher.Exec(cmd.Context(), name, argv, force)
			if output != "" {
				fmt.Print(output)
			}
			if err != nil {
				if code > 0 {
					return &dispatch.ExitError{Code: code, Err: err}
				}
				return err
			}
			if code != 0 {
				return &dispatch.ExitError{Code: code}
			}
			return nil
		},
	}

	cmd.Flags().Bool("force", false, "skip interactive confirmation (audited as an override)")
	return cmd
}
