// Package classify maps context names to sensitivity tiers through ordered
// glob rules. Classification is a pure function: the same context and rule
// set always produce the same tier, which keeps the safety gate's decisions
// reproducible from the audit log alone.
package classify

import (
	"fmt"

	"github.com/gobwas/glob"

	"github.com/celikgo/ctxguard/internal/store"
)

// Tier is the sensitivity classification of a context.
type Tier string

const (
	TierDev          Tier = "dev"
	TierStaging      Tier = "staging"
	TierProduction   Tier = "production"
	TierUnclassified Tier = "unclassified"
)

// RequiresConfirmation reports whether switching to (or running a
// destructive command against) a context of this tier needs an explicit
// confirmation. Unclassified is deliberately on the cautious side of the
// line: a name nobody wrote a rule for is treated as sensitive, never as
// safe. Production is never a default - it can only come from an explicit
// rule match.
func (t Tier) RequiresConfirmation() bool {
	return t == TierProduction || t == TierUnclassified
}

// Rule pairs one glob pattern with the tier it assigns. Rules are evaluated
// in order and the first match wins, so narrow patterns belong before broad
// ones.
type Rule struct {
	Pattern string `yaml:"pattern" json:"pattern"` // Glob matched against the context name, e.g. "*prod*"
	Tier    Tier   `yaml:"tier" json:"tier"`
}

// CompiledRule is a Rule whose pattern has been parsed once up front.
type CompiledRule struct {
	Rule
	matcher glob.Glob
}

// Compile parses each rule's glob pattern and rejects unknown tiers.
// Compiling once at startup keeps Classify itself allocation-free and makes
// a bad pattern a configuration error instead of a silent never-match.
func Compile(rules []Rule) ([]CompiledRule, error) {
	compiled := make([]CompiledRule, 0, len(rules))
	for i, r := range rules {
		switch r.Tier {
		case TierDev, TierStaging, TierProduction:
		case TierUnclassified:
			return nil, fmt.Errorf("rule %d (%q): unclassified is a derived tier, not an assignable one", i, r.Pattern)
		default:
			return nil, fmt.Errorf("rule %d (%q): unknown tier %q", i, r.Pattern, r.Tier)
		}

		m, err := glob.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %d: invalid pattern %q: %w", i, r.Pattern, err)
		}
		compiled = append(compiled, CompiledRule{Rule: r, matcher: m})
	}
	return compiled, nil
}

// DefaultRules are used when the configuration defines none. They mirror
// the naming conventions most teams already follow, and anything they miss
// falls through to unclassified, which still requires confirmation.
func DefaultRules() []Rule {
	return []Rule{
		{Pattern: "*prod*", Tier: TierProduction},
		{Pattern: "*staging*", Tier: TierStaging},
		{Pattern: "*stage*", Tier: TierStaging},
		{Pattern: "*dev*", Tier: TierDev},
	}
}

// Classify returns the tier of a context: first matching rule wins, no
// match means unclassified. Pure and deterministic - no I/O, no clock, no
// randomness.
func Classify(ctx store.Context, rules []CompiledRule) Tier {
	for _, r := range rules {
		if r.matcher.Match(ctx.Name) {
			return r.Tier
		}
	}
	return TierUnclassified
}
