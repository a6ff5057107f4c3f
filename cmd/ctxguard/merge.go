package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/celikgo/ctxguard/internal/store"
)

// newMergeCmd creates the 'merge' command: fold additional credential
// files into the primary one.
func newMergeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merge <path...>",
		Short: "Merge credential files into the primary credential file",
		Long: `Load the configured credential files, fold the named source files into
them (in argument order, last wins on name conflicts), and save the result
atomically to the primary credential file. Merging the same sources twice
produces the same store as merging them once.

With strictMerge enabled in the configuration, a name defined by more than
one source is an error instead of a silent override.

Examples:
  ctxguard merge team-clusters.yaml
  ctxguard merge a.yaml b.yaml          # b.yaml wins any conflicts with a.yaml
  ctxguard merge new.yaml --to merged.yaml`,

		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := sess.ensureStore(); err != nil {
				return err
			}

			// Each source is loaded on its own first so a parse error
			// names the offending file and nothing is written.
			for _, path := range args {
				src, err := store.Load([]string{path}, store.LoadOptions{Strict: sess.cfg.StrictMerge})
				if err != nil {
					return err
				}
				if sess.cfg.StrictMerge {
					if err := sess.st.MergeStrict(src); err != nil {
						return fmt.Errorf("merging %s: %w", path, err)
					}
				} else {
					sess.st.Merge(src)
				}
			}

			if issues := sess.st.Validate(); len(issues) > 0 {
				fmt.Fprintln(os.Stderr, "Warning: merged store has validation issues:")
				for _, issue := range issues {
					fmt.Fprintf(os.Stderr, "  - %s\n", issue)
				}
			}

			target, _ := cmd.Flags().GetString("to")
			if target == "" {
				target = sess.cfg.PrimaryCredentialPath()
			}

			if err := sess.st.Save(target); err != nil {
				return err
			}

			fmt.Printf("Merged %d file(s) into %s\n", len(args), target)
			return nil
		},
	}

	cmd.Flags().String("to", "", "target file (default: primary credential file)")
	return cmd
}
