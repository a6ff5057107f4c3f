package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"sigs.k8s.io/yaml"

	"github.com/celikgo/ctxguard/internal/classify"
)

// contextRow is the list command's view of one context: the stored triple
// plus the derived tier and the current-pointer marker.
type contextRow struct {
	Name      string        `json:"name"`
	Cluster   string        `json:"cluster"`
	Namespace string        `json:"namespace"`
	Tier      classify.Tier `json:"tier"`
	Current   bool          `json:"current"`
}

// newListCmd creates the 'list' command, which shows every context with
// its derived sensitivity tier. Read-only: it never touches the gate and
// always exits 0 when the credential files load.
func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all contexts with their sensitivity tiers",
		Long: `Display every context from the credential files along with the tier the
classifier derives for it. The tier is what the safety gate will enforce:
production and unclassified contexts require confirmation before switches
and destructive commands.

Examples:
  ctxguard list                   # Table with colored tier annotations
  ctxguard list --output=json    # Machine-readable listing`,

		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := sess.ensureStore(); err != nil {
				return err
			}

			current := ""
			if cur, ok := sess.reg.Current(); ok {
				current = cur.Name
			}

			var rows []contextRow
			for _, ctx := range sess.reg.List() {
				namespace := ctx.Namespace
				if namespace == "" {
					namespace = "default"
				}
				rows = append(rows, contextRow{
					Name:      ctx.Name,
					Cluster:   ctx.Cluster,
					Namespace: namespace,
					Tier:      classify.Classify(ctx, sess.rules),
					Current:   ctx.Name == current,
				})
			}

			switch viper.GetString("output") {
			case "json":
				return outputContextsJSON(rows)
			case "yaml":
				return outputContextsYAML(rows)
			default:
				return outputContextsTable(rows)
			}
		},
	}
}

// outputContextsTable renders the default human-readable listing.
func outputContextsTable(rows []contextRow) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "CURRENT\tNAME\tCLUSTER\tNAMESPACE\tTIER")
	for _, row := range rows {
		marker := ""
		if row.Current {
			marker = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			marker, row.Name, row.Cluster, row.Namespace, tierLabel(row.Tier))
	}
	return nil
}

// tierLabel colors a tier for terminal output. Production is loud on
// purpose; unclassified is not green precisely because unknown names are
// treated as sensitive, not safe.
func tierLabel(tier classify.Tier) string {
	switch tier {
	case classify.TierProduction:
		return color.New(color.FgRed, color.Bold).Sprint(string(tier))
	case classify.TierStaging:
		return color.New(color.FgYellow).Sprint(string(tier))
	case classify.TierDev:
		return color.New(color.FgGreen).Sprint(string(tier))
	default:
		return color.New(color.FgMagenta).Sprint(string(tier))
	}
}

func outputContextsJSON(rows []contextRow) error {
	output := struct {
		Contexts []contextRow `json:"contexts"`
		Count    int          `json:"count"`
	}{
		Contexts: rows,
		Count:    len(rows),
	}

	jsonData, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal contexts to JSON: %w", err)
	}

	fmt.Println(string(jsonData))
	return nil
}

func outputContextsYAML(rows []contextRow) error {
	output := struct {
		Contexts []contextRow `json:"contexts"`
		Count    int          `json:"count"`
	}{
		Contexts: rows,
		Count:    len(rows),
	}

	yamlData, err := yaml.Marshal(output)
	if err != nil {
		return fmt.Errorf("failed to marshal contexts to YAML: %w", err)
	}

	fmt.Print(string(yamlData))
	return nil
}
