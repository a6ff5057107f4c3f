// Package dispatch ties the registry, classifier, safety gate and audit
// log together. Every user-requested operation flows through here: the
// dispatcher resolves the target context, derives its tier, asks the gate
// for a decision, and only forwards to the executor after an explicit
// Allowed. Nothing in this repository calls the executor from anywhere
// else.
package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/celikgo/ctxguard/internal/audit"
	"github.com/celikgo/ctxguard/internal/classify"
	"github.com/celikgo/ctxguard/internal/gate"
	"github.com/celikgo/ctxguard/internal/registry"
	"github.com/celikgo/ctxguard/internal/store"
)

// Executor is the external Kubernetes API client collaborator. It is a
// black box from the dispatcher's point of view: it receives a fully
// resolved context and an argv-style command, executes it, and reports
// output plus an exit code.
type Executor interface {
	Execute(ctx context.Context, target store.Context, cluster store.ClusterEndpoint, cred store.Credential, argv []string) (output string, exitCode int, err error)
}

// DeniedError reports a safety refusal together with what caused it, so
// the user sees which tier or timeout produced the denial instead of a
// bare "no".
type DeniedError struct {
	ContextName string
	Tier        classify.Tier
	Reason      string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("denied: context %q (tier %s): %s", e.ContextName, e.Tier, e.Reason)
}

// Unwrap lets callers match the denial class with errors.Is(err, gate.ErrDenied).
func (e *DeniedError) Unwrap() error {
	return gate.ErrDenied
}

// ExitError carries a downstream command's non-zero exit code up to the
// process boundary. Exit code 2 is reserved for safety denials, so a
// downstream 2 is remapped to 3 before it gets here.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("command exited with code %d: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("command exited with code %d", e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// destructiveVerbs flags the command verbs that modify cluster state.
// Anything not listed in readOnlyVerbs is also treated as destructive:
// when we do not know what a verb does, the cautious assumption is that it
// writes.
var destructiveVerbs = map[string]bool{
	"apply":   true,
	"create":  true,
	"delete":  true,
	"patch":   true,
	"replace": true,
	"scale":   true,
	"drain":   true,
}

var readOnlyVerbs = map[string]bool{
	"get":      true,
	"describe": true,
	"version":  true,
	"logs":     true,
	"top":      true,
}

// IsDestructive reports whether a command verb is treated as modifying
// cluster state. Unknown verbs count as destructive.
func IsDestructive(verb string) bool {
	if readOnlyVerbs[verb] {
		return false
	}
	return true
}

// Dispatcher is the top-level orchestrator behind the CLI commands.
type Dispatcher struct {
	reg      *registry.Registry
	st       *store.Store
	rules    []classify.CompiledRule
	gate     *gate.Gate
	auditLog gate.Recorder
	exec     Executor
	credPath string // File the current-context pointer persists to
	log      *logrus.Entry
}

// New wires a dispatcher. credPath is where a successful switch persists
// the moved current-context pointer.
func New(reg *registry.Registry, st *store.Store, rules []classify.CompiledRule, g *gate.Gate, rec gate.Recorder, exec Executor, credPath string) *Dispatcher {
	return &Dispatcher{
		reg:      reg,
		st:       st,
		rules:    rules,
		gate:     g,
		auditLog: rec,
		exec:     exec,
		credPath: credPath,
		log:      logrus.WithField("component", "dispatch"),
	}
}

// Classify derives the tier for a context using the dispatcher's rule set.
func (d *Dispatcher) Classify(ctx store.Context) classify.Tier {
	return classify.Classify(ctx, d.rules)
}

// Switch moves the current-context pointer to name, gated by the safety
// engine. On denial the pointer does not move and a DeniedError is
// returned; on success the store is persisted so the switch survives the
// process.
func (d *Dispatcher) Switch(ctx context.Context, name string, override bool) error {
	target, ok := d.reg.Get(name)
	if !ok {
		return fmt.Errorf("%w: %q", registry.ErrNotFound, name)
	}

	tier := d.Classify(target)
	decision, err := d.gate.Decide(ctx, gate.Request{
		Kind:     gate.KindSwitch,
		Context:  target,
		Tier:     tier,
		Override: override,
	})
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return &DeniedError{ContextName: name, Tier: tier, Reason: decision.Reason}
	}

	if err := d.reg.SetCurrent(name); err != nil {
		return err
	}
	if err := d.st.Save(d.credPath); err != nil {
		return fmt.Errorf("switch allowed but persisting current context failed: %w", err)
	}

	d.log.WithFields(logrus.Fields{"context": name, "tier": tier}).Info("switched context")
	return nil
}

// Exec runs an argv-style command against the named context. The command
// is classified as destructive or read-only by its verb, gated, and only
// then handed to the executor. The returned exit code is the downstream
// command's, except that a downstream 2 is remapped to 3 because 2 is
// reserved for safety denials.
func (d *Dispatcher) Exec(ctx context.Context, name string, argv []string, override bool) (string, int, error) {
	if len(argv) == 0 {
		// Refused before the gate is ever consulted; still auditable.
		entry := audit.Entry{
			Action:        audit.ActionDeny,
			TargetContext: name,
			Outcome:       audit.OutcomeDenied,
			Detail:        "empty command",
		}
		if err := d.auditLog.Append(entry); err != nil {
			return "", 0, fmt.Errorf("refusing to proceed without an audit record: %w", err)
		}
		return "", 0, &DeniedError{ContextName: name, Reason: "no command given"}
	}

	target, cluster, cred, err := d.reg.Resolve(name)
	if err != nil {
		return "", 0, err
	}

	tier := d.Classify(target)
	command := strings.Join(argv, " ")
	decision, err := d.gate.Decide(ctx, gate.Request{
		Kind:        gate.KindCommand,
		Context:     target,
		Tier:        tier,
		Destructive: IsDestructive(argv[0]),
		Command:     command,
		Override:    override,
	})
	if err != nil {
		return "", 0, err
	}
	if !decision.Allowed {
		return "", 0, &DeniedError{ContextName: name, Tier: tier, Reason: decision.Reason}
	}

	d.log.WithFields(logrus.Fields{
		"context":    name,
		"tier":       tier,
		"command":    command,
		"credential": cred.Redacted(),
	}).Info("executing command")

	output, code, err := d.exec.Execute(ctx, target, cluster, cred, argv)
	if code == 2 {
		// 2 belongs to the safety gate alone.
		code = 3
	}
	return output, code, err
}
