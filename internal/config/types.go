package config

import "github.com/celikgo/ctxguard/internal/classify"

// Config holds the tool's own settings - which credential files to read,
// where the audit log lives, how contexts are classified, and how the
// safety gate behaves. This is deliberately separate from the credential
// file itself: credentials describe clusters, this describes ctxguard.
type Config struct {
	// CredentialFiles are the credential sources, merged in order with
	// last-listed-wins on name conflicts. The CTXGUARD_CREDENTIALS
	// environment variable overrides this list entirely.
	CredentialFiles []string `yaml:"credentialFiles,omitempty" json:"credentialFiles,omitempty"`

	// AuditLog is the path of the append-only audit trail.
	AuditLog string `yaml:"auditLog,omitempty" json:"auditLog,omitempty"`

	// Rules classify context names into sensitivity tiers, first match
	// wins. Empty means the built-in defaults.
	Rules []classify.Rule `yaml:"rules,omitempty" json:"rules,omitempty"`

	// ConfirmTimeout is how many seconds the safety gate waits for the
	// confirmation phrase before denying.
	ConfirmTimeout int `yaml:"confirmTimeout,omitempty" json:"confirmTimeout,omitempty"`

	// ExecTimeout is the per-API-call timeout in seconds for executed
	// commands.
	ExecTimeout int `yaml:"execTimeout,omitempty" json:"execTimeout,omitempty"`

	// StrictMerge makes credential-file name collisions an error instead
	// of last-source-wins.
	StrictMerge bool `yaml:"strictMerge,omitempty" json:"strictMerge,omitempty"`
}
