package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/celikgo/ctxguard/internal/audit"
	"github.com/celikgo/ctxguard/internal/classify"
	"github.com/celikgo/ctxguard/internal/config"
	"github.com/celikgo/ctxguard/internal/dispatch"
	"github.com/celikgo/ctxguard/internal/gate"
	"github.com/celikgo/ctxguard/internal/kube"
	"github.com/celikgo/ctxguard/internal/registry"
	"github.com/celikgo/ctxguard/internal/store"
)

// Exit codes. 2 is reserved for safety denials and is never produced by a
// downstream command (a downstream 2 is reported as 3).
const (
	exitOK     = 0
	exitError  = 1
	exitDenied = 2
	exitRemap  = 3
)

// sess holds the wired components for the current invocation. It is built
// once in PersistentPreRunE and passed down to every command.
var sess *session

// session is the explicit replacement for the pile of exported shell
// variables this tool grew out of: everything a command needs travels in
// here, nothing lives in ambient process state.
type session struct {
	cfg      *config.Config
	rules    []classify.CompiledRule
	auditLog *audit.Log

	// Credential state is loaded lazily so commands like `config init`
	// and `audit verify` work before any credential file exists.
	st         *store.Store
	reg        *registry.Registry
	dispatcher *dispatch.Dispatcher
}

// ensureStore loads the credential files and wires the registry, gate and
// dispatcher. Commands that touch contexts call this first.
func (s *session) ensureStore() error {
	if s.st != nil {
		return nil
	}

	st, err := store.Load(s.cfg.CredentialPaths(), store.LoadOptions{Strict: s.cfg.StrictMerge})
	if err != nil {
		return err
	}
	s.st = st
	s.reg = registry.New(st)

	prompter := &gate.TerminalPrompter{In: os.Stdin, Out: os.Stderr}
	g := gate.New(s.auditLog, prompter, time.Duration(s.cfg.ConfirmTimeout)*time.Second)
	executor := kube.NewExecutor(time.Duration(s.cfg.ExecTimeout) * time.Second)

	s.dispatcher = dispatch.New(s.reg, s.st, s.rules, g, s.auditLog, executor, s.cfg.PrimaryCredentialPath())
	return nil
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ctxguard",
	Short: "Context-aware cluster operations with safety gating",
	Long: `ctxguard manages multiple Kubernetes cluster credential sets ("contexts")
and gates every context switch and destructive command behind a sensitivity
classification: production and unclassified contexts require an explicit,
typed confirmation before anything happens to them.

Every decision - allowed, confirmed, or denied - lands in an append-only,
hash-chained audit log, so the trail of who switched where and what ran
against which cluster is durable and tamper-evident.

Examples:
  ctxguard list                         # Show all contexts with their tiers
  ctxguard switch prod-us-east          # Switch context (confirmation gated)
  ctxguard exec dev-local -- get pods   # Run a command against a context
  ctxguard audit tail 20                # Show the last 20 audit entries
  ctxguard audit verify                 # Check audit chain integrity
  ctxguard merge extra.yaml             # Merge another credential file

Exit codes:
  0  success
  1  error (including unknown context names)
  2  denied by the safety gate (reserved; never reused by commands)
  3  a downstream command exited with code 2

Configuration:
  ctxguard looks for configuration in these locations (in order):
  1. ./ctxguard.yaml (current directory)
  2. ~/.ctxguard/config.yaml (user home directory)
  3. $XDG_CONFIG_HOME/ctxguard/config.yaml (XDG config directory)

  Credential files come from the config's credentialFiles list, or from the
  CTXGUARD_CREDENTIALS environment variable (path-list separated; files
  merge in listed order and the last-listed file wins on name conflicts).

  Use 'ctxguard config init' to create a sample configuration file.`,

	SilenceUsage:  true,
	SilenceErrors: true,

	// PersistentPreRunE wires the session before any command runs. The
	// credential store itself is loaded lazily by the commands that need
	// it, so config and audit inspection work on a fresh machine.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if viper.GetBool("verbose") {
			logrus.SetLevel(logrus.DebugLevel)
		} else {
			logrus.SetLevel(logrus.WarnLevel)
		}
		logrus.SetOutput(os.Stderr)

		cfg, err := config.LoadConfig(viper.GetString("config"))
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		ruleSet := cfg.Rules
		if len(ruleSet) == 0 {
			ruleSet = classify.DefaultRules()
		}
		rules, err := classify.Compile(ruleSet)
		if err != nil {
			return fmt.Errorf("failed to compile classification rules: %w", err)
		}

		auditLog, err := audit.Open(cfg.AuditLog)
		if err != nil {
			return fmt.Errorf("failed to open audit log: %w", err)
		}

		sess = &session{cfg: cfg, rules: rules, auditLog: auditLog}
		return nil
	},
}

func main() {
	// Ctrl-C and SIGTERM cancel the command context; a confirmation wait
	// in progress turns that into a denial plus an audit record.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps error classes to the documented exit codes. Safety
// denials are checked first so a denial can never masquerade as a plain
// execution failure.
func exitCodeFor(err error) int {
	if errors.Is(err, gate.ErrDenied) {
		return exitDenied
	}
	var exitErr *dispatch.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	// Not-found and everything else fall through to the generic code.
	return exitError
}

func init() {
	// Global flags that apply to all commands
	rootCmd.PersistentFlags().String("config", "", "config file path (default: auto-detect)")
	rootCmd.PersistentFlags().Bool("verbose", false, "enable verbose output")
	rootCmd.PersistentFlags().String("output", "table", "output format (table, json, yaml)")

	// Bind flags to viper for configuration management. Binding failures
	// are programming errors, so panic is the right response.
	if err := viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")); err != nil {
		panic(fmt.Sprintf("failed to bind config flag: %v", err))
	}
	if err := viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose")); err != nil {
		panic(fmt.Sprintf("failed to bind verbose flag: %v", err))
	}
	if err := viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output")); err != nil {
		panic(fmt.Sprintf("failed to bind output flag: %v", err))
	}

	viper.SetEnvPrefix("CTXGUARD")
	viper.AutomaticEnv()

	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newSwitchCmd())
	rootCmd.AddCommand(newExecCmd())
	rootCmd.AddCommand(newAuditCmd())
	rootCmd.AddCommand(newMergeCmd())
	rootCmd.AddCommand(newConfigCmd())
}
