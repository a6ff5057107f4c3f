// Package gate implements the safety gate: the state machine that decides
// whether a context switch or a destructive command proceeds immediately,
// requires interactive confirmation, or is denied. The gate is the only
// component allowed to say "Allowed", and it never says it without first
// writing an audit record - if the record cannot be written, the answer is
// a denial, not a shrug.
package gate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/celikgo/ctxguard/internal/audit"
	"github.com/celikgo/ctxguard/internal/classify"
	"github.com/celikgo/ctxguard/internal/store"
)

// ErrDenied marks a safety refusal. It is a different error class from
// execution failure on purpose: callers and tests must be able to tell
// "refused for safety" apart from "ran and failed".
var ErrDenied = errors.New("operation denied by safety gate")

// DefaultConfirmTimeout bounds how long the gate waits for the
// confirmation phrase before denying.
const DefaultConfirmTimeout = 60 * time.Second

// State enumerates the gate's state machine. A request drives the machine
// Idle -> Evaluating -> {AwaitingConfirmation,} -> Allowed|Denied -> Idle.
type State int

const (
	StateIdle State = iota
	StateEvaluating
	StateAwaitingConfirmation
	StateAllowed
	StateDenied
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateEvaluating:
		return "Evaluating"
	case StateAwaitingConfirmation:
		return "AwaitingConfirmation"
	case StateAllowed:
		return "Allowed"
	case StateDenied:
		return "Denied"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// RequestKind says what the caller wants to do.
type RequestKind int

const (
	// KindSwitch is a context-switch request.
	KindSwitch RequestKind = iota
	// KindCommand is a request to run a command against a context.
	KindCommand
)

// Request is one operation presented to the gate. The tier has already
// been derived by the classifier; the gate never classifies on its own.
type Request struct {
	Kind        RequestKind
	Context     store.Context
	Tier        classify.Tier
	Destructive bool   // Set for delete/apply/create/patch/scale style commands
	Command     string // Human-readable command, for prompts and audit detail
	Override    bool   // Pre-authorized non-interactive override (e.g. automation)
}

func (r Request) action() audit.Action {
	if r.Kind == KindSwitch {
		return audit.ActionSwitch
	}
	return audit.ActionCommand
}

// Decision is the gate's terminal answer for one request.
type Decision struct {
	Allowed bool
	Outcome audit.Outcome
	Reason  string // Names the rule/tier/timeout behind the outcome
}

// Recorder is the slice of the audit log the gate needs. Narrowed to an
// interface so tests can substitute a failing or in-memory recorder.
type Recorder interface {
	Append(entry audit.Entry) error
}

// Prompter presents the confirmation contract to the user and reports what
// came back and when. The deadline is passed through so implementations can
// stop blocking once it passes.
type Prompter interface {
	Confirm(ctx context.Context, prompt string, deadline time.Time) (input string, receivedAt time.Time, err error)
}

// Gate evaluates requests. It is single-threaded by design - this is an
// interactive CLI, and the only suspension point is the confirmation wait.
type Gate struct {
	rec      Recorder
	prompter Prompter
	timeout  time.Duration
	log      *logrus.Entry

	state State
	now   func() time.Time
}

// New builds a gate. A zero or negative timeout falls back to
// DefaultConfirmTimeout.
func New(rec Recorder, prompter Prompter, timeout time.Duration) *Gate {
	if timeout <= 0 {
		timeout = DefaultConfirmTimeout
	}
	return &Gate{
		rec:      rec,
		prompter: prompter,
		timeout:  timeout,
		log:      logrus.WithField("component", "gate"),
		state:    StateIdle,
		now:      time.Now,
	}
}

// State exposes the current machine state, mainly for tests.
func (g *Gate) State() State {
	return g.state
}

// Decide runs one request through the state machine and returns the
// terminal decision. Exactly one audit entry is written per call; if that
// write fails the decision is a denial and the returned error wraps
// audit.ErrUnavailable.
//
// The ctx cancels the confirmation wait (Ctrl-C routes here via
// signal.NotifyContext in the command layer); cancellation is a denial,
// never an "ignore and proceed".
func (g *Gate) Decide(ctx context.Context, req Request) (Decision, error) {
	g.state = StateEvaluating
	defer func() { g.state = StateIdle }()

	decision := g.evaluate(ctx, req)

	if decision.Allowed {
		g.state = StateAllowed
	} else {
		g.state = StateDenied
	}

	entry := audit.Entry{
		Action:        req.action(),
		TargetContext: req.Context.Name,
		Tier:          string(req.Tier),
		Outcome:       decision.Outcome,
		Detail:        decision.Reason,
	}
	if err := g.rec.Append(entry); err != nil {
		// Fail closed: an unrecordable decision is a denial regardless of
		// what the evaluation said.
		g.state = StateDenied
		g.log.WithError(err).Error("audit append failed, denying operation")
		return Decision{
			Allowed: false,
			Outcome: audit.OutcomeDenied,
			Reason:  "audit log unavailable",
		}, fmt.Errorf("refusing to proceed without an audit record: %w", err)
	}

	g.log.WithFields(logrus.Fields{
		"context": req.Context.Name,
		"tier":    req.Tier,
		"outcome": decision.Outcome,
	}).Debug("safety decision recorded")

	return decision, nil
}

// evaluate performs the actual Evaluating-state logic, including the
// AwaitingConfirmation wait when needed.
func (g *Gate) evaluate(ctx context.Context, req Request) Decision {
	needsConfirmation := req.Tier.RequiresConfirmation() &&
		(req.Kind == KindSwitch || req.Destructive)

	if !needsConfirmation {
		return Decision{
			Allowed: true,
			Outcome: audit.OutcomeAllowed,
			Reason:  fmt.Sprintf("tier %s does not require confirmation for this operation", req.Tier),
		}
	}

	if req.Override {
		return Decision{
			Allowed: true,
			Outcome: audit.OutcomeOverrideAllowed,
			Reason:  fmt.Sprintf("non-interactive override supplied for tier %s", req.Tier),
		}
	}

	// Confirmation contract: the user must type the exact context name,
	// not just "y". Typing the name of the thing you are about to touch is
	// much harder to do by accident.
	g.state = StateAwaitingConfirmation
	phrase := req.Context.Name
	deadline := g.now().Add(g.timeout)

	prompt := fmt.Sprintf(
		"Context %q is classified as %s.\nOperation: %s\nType the context name %q to confirm (timeout %s): ",
		req.Context.Name, req.Tier, req.describeOperation(), phrase, g.timeout,
	)

	input, receivedAt, err := g.prompter.Confirm(ctx, prompt, deadline)
	if err != nil {
		return Decision{
			Allowed: false,
			Outcome: audit.OutcomeDenied,
			Reason:  fmt.Sprintf("confirmation aborted: %v", err),
		}
	}

	if ok, reason := acceptConfirmation(input, phrase, receivedAt, deadline, g.timeout); !ok {
		return Decision{
			Allowed: false,
			Outcome: audit.OutcomeDenied,
			Reason:  reason,
		}
	}

	return Decision{
		Allowed: true,
		Outcome: audit.OutcomeConfirmedByUser,
		Reason:  fmt.Sprintf("confirmation phrase matched for tier %s", req.Tier),
	}
}

// acceptConfirmation applies the confirmation contract: the input must
// equal the phrase exactly and must arrive strictly before the deadline.
// Input landing at the deadline instant is late - denial is the only safe
// default on the boundary.
func acceptConfirmation(input, phrase string, receivedAt, deadline time.Time, timeout time.Duration) (bool, string) {
	if !receivedAt.Before(deadline) {
		return false, fmt.Sprintf("confirmation timed out after %s", timeout)
	}
	if input != phrase {
		return false, fmt.Sprintf("confirmation phrase did not match (expected %q)", phrase)
	}
	return true, ""
}

func (r Request) describeOperation() string {
	if r.Kind == KindSwitch {
		return "switch context"
	}
	if r.Command != "" {
		return r.Command
	}
	return "run command"
}
