package store

import "fmt"

// CredentialKind identifies what kind of authentication material a
// Credential carries. The payload fields that matter depend on the kind.
type CredentialKind string

const (
	// KindClientCert authenticates with a TLS client certificate and key.
	KindClientCert CredentialKind = "clientCert"
	// KindBearerToken authenticates with an opaque bearer token.
	KindBearerToken CredentialKind = "bearerToken"
	// KindBasicAuth authenticates with a username and password.
	KindBasicAuth CredentialKind = "basicAuth"
)

// ClusterEndpoint identifies a reachable Kubernetes API server
// Think of this as the "street address" of a cluster - where it lives
// and how to verify we are really talking to it
type ClusterEndpoint struct {
	Name               string `yaml:"name" json:"name"`                                             // Unique key, e.g. "prod-us-east"
	ServerURL          string `yaml:"server" json:"server"`                                         // API server URL, e.g. "https://10.0.0.1:6443"
	CAData             []byte `yaml:"caData,omitempty" json:"caData,omitempty"`                     // PEM certificate authority bytes
	InsecureSkipVerify bool   `yaml:"insecureSkipVerify,omitempty" json:"insecureSkipVerify,omitempty"` // Skip TLS verification (dev clusters only)
}

// Credential holds authentication material for one user identity.
// The payload is kind-dependent: only the fields matching Kind are consulted.
// Credentials are sensitive - they must never appear in logs or audit
// records in plaintext. Use Redacted() whenever a credential needs to be
// referenced in output.
type Credential struct {
	Name string         `yaml:"name" json:"name"` // Unique key, e.g. "prod-admin"
	Kind CredentialKind `yaml:"kind" json:"kind"`

	// ClientCert payload
	ClientCertData []byte `yaml:"clientCertData,omitempty" json:"clientCertData,omitempty"`
	ClientKeyData  []byte `yaml:"clientKeyData,omitempty" json:"clientKeyData,omitempty"`

	// BearerToken payload
	Token string `yaml:"token,omitempty" json:"token,omitempty"`

	// BasicAuth payload
	Username string `yaml:"username,omitempty" json:"username,omitempty"`
	Password string `yaml:"password,omitempty" json:"password,omitempty"`
}

// Redacted returns a safe reference to this credential for logs and audit
// records: the kind and name only, never the payload.
func (c Credential) Redacted() string {
	return fmt.Sprintf("%s:%s", c.Kind, c.Name)
}

// Context is a named (cluster, credential, namespace) triple - it answers
// "where does a command run, and as whom". An empty Namespace means the
// Kubernetes "default" namespace.
type Context struct {
	Name       string `yaml:"name" json:"name"`                           // Unique key, e.g. "prod-us-east-admin"
	Cluster    string `yaml:"cluster" json:"cluster"`                     // References ClusterEndpoint.Name
	Credential string `yaml:"credential" json:"credential"`               // References Credential.Name
	Namespace  string `yaml:"namespace,omitempty" json:"namespace,omitempty"` // Default namespace for commands
}

// credentialFile is the on-disk schema of one credential source file.
// Multiple source files merge into a single Store with last-source-wins
// semantics, which is why this stays a plain ordered document rather than
// a keyed map.
type credentialFile struct {
	Clusters       []ClusterEndpoint `yaml:"clusters,omitempty" json:"clusters,omitempty"`
	Credentials    []Credential      `yaml:"credentials,omitempty" json:"credentials,omitempty"`
	Contexts       []Context         `yaml:"contexts,omitempty" json:"contexts,omitempty"`
	CurrentContext string            `yaml:"currentContext,omitempty" json:"currentContext,omitempty"`
}

// ValidationIssue describes one referential-integrity problem found by
// Validate. Issues are surfaced, never thrown - the caller decides whether
// a broken reference is fatal for its operation.
type ValidationIssue struct {
	Context string `json:"context,omitempty"` // Context the issue belongs to, if any
	Field   string `json:"field"`             // Which field is broken
	Ref     string `json:"ref,omitempty"`     // The dangling reference, if any
	Message string `json:"message"`
}

func (v ValidationIssue) String() string {
	if v.Context != "" {
		return fmt.Sprintf("context %q: %s", v.Context, v.Message)
	}
	return v.Message
}
