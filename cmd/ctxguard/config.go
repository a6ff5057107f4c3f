package main

import (
	"fmt"
	"os"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"

	"github.com/celikgo/ctxguard/internal/classify"
	"github.com/celikgo/ctxguard/internal/config"
)

// newConfigCmd creates the config command for managing the tool's own
// configuration: classification rules, gate timeout, credential file
// paths, and the audit log location.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage ctxguard configuration",
		Long: `The config command helps you set up and manage the ctxguard configuration
file. The configuration defines:

- Which credential files hold your contexts (and their merge order)
- The classification rules that map context names to sensitivity tiers
- How long the safety gate waits for a confirmation phrase
- Where the audit log lives

Examples:
  ctxguard config init        # Create a sample configuration file
  ctxguard config show        # Display current configuration
  ctxguard config validate    # Check configuration and credential files
  ctxguard config path        # Show where the config file is located`,
	}

	configCmd.AddCommand(newConfigInitCmd())
	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigValidateCmd())
	configCmd.AddCommand(newConfigPathCmd())

	return configCmd
}

// newConfigInitCmd creates the 'config init' subcommand.
func newConfigInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new configuration file",
		Long: `Create a new configuration file with sample classification rules and
commented settings. After running this command:

1. Edit the rules to match your context naming conventions
2. Point credentialFiles at your credential file(s)
3. Check the result with 'ctxguard config validate'`,

		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, err := getConfigInitPath()
			if err != nil {
				return fmt.Errorf("failed to determine config path: %w", err)
			}

			if _, err := os.Stat(configPath); err == nil {
				overwrite, _ := cmd.Flags().GetBool("force")
				if !overwrite {
					return fmt.Errorf("configuration file already exists at %s\nUse --force to overwrite", configPath)
				}
				fmt.Printf("Overwriting existing configuration file at %s\n", configPath)
			}

			configDir := filepath.Dir(configPath)
			if err := os.MkdirAll(configDir, 0o755); err != nil {
				return fmt.Errorf("failed to create config directory %s: %w", configDir, err)
			}

			if err := os.WriteFile(configPath, []byte(sampleConfig), 0o644); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}

			fmt.Printf("Configuration file created at: %s\n\n", configPath)
			fmt.Println("Next steps:")
			fmt.Println("1. Edit the classification rules to match your context names")
			fmt.Println("2. Point credentialFiles at your credential file(s)")
			fmt.Println("3. Validate: ctxguard config validate")
			fmt.Println("4. List your contexts: ctxguard list")

			return nil
		},
	}

	cmd.Flags().Bool("force", false, "overwrite existing configuration file")
	return cmd
}

// newConfigShowCmd creates the 'config show' subcommand.
func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := sess.cfg

			fmt.Printf("ctxguard configuration\n")
			fmt.Printf("======================\n\n")

			fmt.Println("Credential files (merge order, last wins):")
			for i, path := range cfg.CredentialPaths() {
				fmt.Printf("  %d. %s\n", i+1, path)
			}
			if os.Getenv(config.EnvCredentialFiles) != "" {
				fmt.Println("  (set via CTXGUARD_CREDENTIALS)")
			}

			fmt.Printf("\nAudit log: %s\n", cfg.AuditLog)
			fmt.Printf("Confirmation timeout: %d seconds\n", cfg.ConfirmTimeout)
			fmt.Printf("Execution timeout: %d seconds\n", cfg.ExecTimeout)
			fmt.Printf("Strict merge: %t\n\n", cfg.StrictMerge)

			rules := cfg.Rules
			source := "configured"
			if len(rules) == 0 {
				rules = classify.DefaultRules()
				source = "built-in defaults"
			}
			fmt.Printf("Classification rules (%s, first match wins):\n", source)
			for i, rule := range rules {
				fmt.Printf("  %d. %-20s -> %s\n", i+1, rule.Pattern, rule.Tier)
			}
			fmt.Println("  (no match            -> unclassified, confirmation required)")

			return nil
		},
	}
}

// newConfigValidateCmd creates the 'config validate' subcommand. Unlike
// show, this also loads the credential files and reports referential
// integrity issues.
func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration and credential files",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("Validating ctxguard configuration...")

			// Rule compilation already succeeded in PersistentPreRunE, so
			// syntax is known-good by the time we get here.
			fmt.Println("Configuration file syntax is valid")
			fmt.Printf("Classification rules compile (%d rule(s))\n", len(sess.rules))

			if err := sess.ensureStore(); err != nil {
				return fmt.Errorf("credential files failed to load: %w", err)
			}
			fmt.Printf("Credential files loaded (%d context(s))\n", len(sess.reg.List()))

			issues := sess.st.Validate()
			if len(issues) == 0 {
				fmt.Println("Referential integrity checks passed")
				return nil
			}

			fmt.Printf("\nFound %d issue(s):\n", len(issues))
			for _, issue := range issues {
				fmt.Printf("  - %s\n", issue)
			}
			return fmt.Errorf("credential store has %d validation issue(s)", len(issues))
		},
	}
}

// newConfigPathCmd creates the 'config path' subcommand.
func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file location",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := findConfigPath()

			if configPath == "" {
				fmt.Println("No configuration file found.")
				fmt.Println("\nThe tool looks for configuration in these locations (in order):")
				fmt.Println("1. ./ctxguard.yaml (current directory)")
				if homeDir, err := homedir.Dir(); err == nil {
					fmt.Printf("2. %s/.ctxguard/config.yaml (user home directory)\n", homeDir)
					if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
						fmt.Printf("3. %s/ctxguard/config.yaml (XDG config directory)\n", xdgConfig)
					} else {
						fmt.Printf("3. %s/.config/ctxguard/config.yaml (XDG config directory)\n", homeDir)
					}
				}
				fmt.Println("\nRun 'ctxguard config init' to create a configuration file.")
				return nil
			}

			fmt.Printf("Configuration file: %s\n", configPath)
			if info, err := os.Stat(configPath); err == nil {
				fmt.Printf("Last modified: %s\n", info.ModTime().Format("2006-01-02 15:04:05"))
				fmt.Printf("File size: %d bytes\n", info.Size())
			}

			return nil
		},
	}
}

// getConfigInitPath determines where to create a new configuration file,
// following the XDG Base Directory Specification.
func getConfigInitPath() (string, error) {
	homeDir, err := homedir.Dir()
	if err != nil {
		return "", err
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "ctxguard", "config.yaml"), nil
}

// findConfigPath attempts to locate the current configuration file.
func findConfigPath() string {
	if _, err := os.Stat("./ctxguard.yaml"); err == nil {
		return "./ctxguard.yaml"
	}

	homeDir, err := homedir.Dir()
	if err != nil {
		return ""
	}

	path := filepath.Join(homeDir, ".ctxguard", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return path
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		configDir = filepath.Join(homeDir, ".config")
	}
	path = filepath.Join(configDir, "ctxguard", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return path
	}

	return ""
}

// sampleConfig is the template written by 'config init'.
const sampleConfig = `# ctxguard configuration
# This file controls classification, safety gating, and file locations.

# Credential files, merged in order (last listed wins on name conflicts).
# Override with the CTXGUARD_CREDENTIALS environment variable.
credentialFiles:
  - ~/.ctxguard/credentials.yaml

# Append-only, hash-chained audit trail of safety decisions.
auditLog: ~/.ctxguard/audit.log

# How long (seconds) the safety gate waits for the confirmation phrase.
confirmTimeout: 60

# Per-API-call timeout (seconds) for executed commands.
execTimeout: 30

# Make credential-file name collisions an error instead of last-wins.
strictMerge: false

# Classification rules, first match wins. Context names that match no rule
# are "unclassified" and still require confirmation - unknown is treated as
# sensitive, never as safe.
rules:
  - pattern: "*prod*"
    tier: production
  - pattern: "*staging*"
    tier: staging
  - pattern: "*stage*"
    tier: staging
  - pattern: "*dev*"
    tier: dev
`
