package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	homedir "github.com/mitchellh/go-homedir"
	"sigs.k8s.io/yaml"
)

// Sentinel errors for the credential store. Callers match these with
// errors.Is to decide how to report the failure.
var (
	// ErrParse means a source file exists but is not valid YAML or does
	// not follow the credential file schema.
	ErrParse = errors.New("credential file parse error")
	// ErrIO means a read or write against the filesystem failed. Save
	// guarantees the previous file is intact whenever ErrIO is returned.
	ErrIO = errors.New("credential file I/O error")
	// ErrDuplicate is returned by strict-mode loads when two source files
	// define the same name and the merge is not allowed to pick a winner.
	ErrDuplicate = errors.New("duplicate entry in strict merge")
)

// Store owns the three credential collections (clusters, credentials,
// contexts) plus the current-context pointer. It is the single component
// allowed to read or write the credential file; everything else queries it
// through the registry.
//
// A Store is built by Load and is not safe for concurrent mutation - this
// tool is a single-threaded CLI, and cross-process writers are serialized
// by an advisory file lock inside Save.
type Store struct {
	clusters    []ClusterEndpoint
	credentials []Credential
	contexts    []Context
	current     string

	clusterIdx    map[string]int
	credentialIdx map[string]int
	contextIdx    map[string]int
}

// LoadOptions tunes merge behavior.
type LoadOptions struct {
	// Strict makes name collisions across source files an error instead
	// of applying last-source-wins.
	Strict bool
}

// New returns an empty store. Mostly useful for tests and for merge
// targets; normal startup goes through Load.
func New() *Store {
	return &Store{
		clusterIdx:    make(map[string]int),
		credentialIdx: make(map[string]int),
		contextIdx:    make(map[string]int),
	}
}

// Load reads one or more credential source files and merges them into a
// single store. Later files win on name conflicts (last-source-wins), which
// matches how the CTXGUARD_CREDENTIALS path list is documented: the
// last-listed file has the final say.
//
// A missing file is an error - if the caller wants "first existing path",
// it filters the list first. Malformed content fails with ErrParse and
// nothing is returned; a load never produces partial state.
func Load(paths []string, opts LoadOptions) (*Store, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no credential file paths given", ErrIO)
	}

	s := New()
	for _, path := range paths {
		expanded, err := homedir.Expand(path)
		if err != nil {
			return nil, fmt.Errorf("%w: cannot expand path %s: %v", ErrIO, path, err)
		}

		data, err := os.ReadFile(expanded)
		if err != nil {
			return nil, fmt.Errorf("%w: reading %s: %v", ErrIO, expanded, err)
		}

		var file credentialFile
		if err := yaml.UnmarshalStrict(data, &file); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrParse, expanded, err)
		}

		if err := s.mergeFile(file, expanded, opts.Strict); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Merge folds another already-loaded store into this one, with the other
// store winning on name conflicts. Used by the merge command after each
// source has been loaded (and therefore parse-checked) individually.
func (s *Store) Merge(other *Store) {
	for _, c := range other.clusters {
		s.putCluster(c)
	}
	for _, c := range other.credentials {
		s.putCredential(c)
	}
	for _, c := range other.contexts {
		s.putContext(c)
	}
	if other.current != "" {
		s.current = other.current
	}
}

// MergeStrict folds another store in like Merge, except a name this store
// already defines is an ErrDuplicate instead of a silent override. All
// names are checked before anything is applied, so a rejected merge leaves
// the store exactly as it was.
func (s *Store) MergeStrict(other *Store) error {
	for _, c := range other.clusters {
		if _, exists := s.clusterIdx[c.Name]; exists {
			return fmt.Errorf("%w: cluster %q defined by more than one source", ErrDuplicate, c.Name)
		}
	}
	for _, c := range other.credentials {
		if _, exists := s.credentialIdx[c.Name]; exists {
			return fmt.Errorf("%w: credential %q defined by more than one source", ErrDuplicate, c.Name)
		}
	}
	for _, c := range other.contexts {
		if _, exists := s.contextIdx[c.Name]; exists {
			return fmt.Errorf("%w: context %q defined by more than one source", ErrDuplicate, c.Name)
		}
	}
	s.Merge(other)
	return nil
}

// mergeFile folds one parsed source file into the store.
// Entries keep the position of their first occurrence so List output stays
// stable, but their content is replaced by later sources (last wins).
func (s *Store) mergeFile(file credentialFile, source string, strict bool) error {
	for _, c := range file.Clusters {
		if c.Name == "" {
			return fmt.Errorf("%w: %s: cluster with empty name", ErrParse, source)
		}
		if _, exists := s.clusterIdx[c.Name]; exists && strict {
			return fmt.Errorf("%w: cluster %q redefined by %s", ErrDuplicate, c.Name, source)
		}
		s.putCluster(c)
	}

	for _, c := range file.Credentials {
		if c.Name == "" {
			return fmt.Errorf("%w: %s: credential with empty name", ErrParse, source)
		}
		if _, exists := s.credentialIdx[c.Name]; exists && strict {
			return fmt.Errorf("%w: credential %q redefined by %s", ErrDuplicate, c.Name, source)
		}
		s.putCredential(c)
	}

	for _, c := range file.Contexts {
		if c.Name == "" {
			return fmt.Errorf("%w: %s: context with empty name", ErrParse, source)
		}
		if _, exists := s.contextIdx[c.Name]; exists && strict {
			return fmt.Errorf("%w: context %q redefined by %s", ErrDuplicate, c.Name, source)
		}
		s.putContext(c)
	}

	if file.CurrentContext != "" {
		s.current = file.CurrentContext
	}

	return nil
}

func (s *Store) putCluster(c ClusterEndpoint) {
	if i, exists := s.clusterIdx[c.Name]; exists {
		s.clusters[i] = c
		return
	}
	s.clusterIdx[c.Name] = len(s.clusters)
	s.clusters = append(s.clusters, c)
}

func (s *Store) putCredential(c Credential) {
	if i, exists := s.credentialIdx[c.Name]; exists {
		s.credentials[i] = c
		return
	}
	s.credentialIdx[c.Name] = len(s.credentials)
	s.credentials = append(s.credentials, c)
}

func (s *Store) putContext(c Context) {
	if i, exists := s.contextIdx[c.Name]; exists {
		s.contexts[i] = c
		return
	}
	s.contextIdx[c.Name] = len(s.contexts)
	s.contexts = append(s.contexts, c)
}

// Save serializes the store atomically: write to a temp file in the target
// directory, fsync, then rename over the destination. A crash at any point
// leaves either the old file or the new file, never a torn mix of both.
//
// Concurrent CLI invocations are serialized with an advisory lock next to
// the target file; readers are not blocked (a stale read is acceptable,
// a corrupt file is not). The file is always written mode 0600 because it
// carries credentials.
func (s *Store) Save(path string) error {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return fmt.Errorf("%w: cannot expand path %s: %v", ErrIO, path, err)
	}

	dir := filepath.Dir(expanded)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("%w: creating %s: %v", ErrIO, dir, err)
	}

	// Advisory lock serializes writers across processes. The lock file
	// lives next to the credential file so it shares its lifetime and
	// permissions story.
	lock := flock.New(expanded + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("%w: locking %s: %v", ErrIO, expanded, err)
	}
	defer lock.Unlock()

	data, err := yaml.Marshal(s.file())
	if err != nil {
		return fmt.Errorf("%w: serializing store: %v", ErrIO, err)
	}

	tmp, err := os.CreateTemp(dir, ".credentials-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: creating temp file in %s: %v", ErrIO, dir, err)
	}
	tmpName := tmp.Name()

	// Any failure from here on must remove the temp file and leave the
	// original untouched.
	fail := func(step string, cause error) error {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: %s: %v", ErrIO, step, cause)
	}

	if err := tmp.Chmod(0o600); err != nil {
		return fail("restricting temp file permissions", err)
	}
	if _, err := tmp.Write(data); err != nil {
		return fail("writing temp file", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("syncing temp file", err)
	}
	if err := tmp.Close(); err != nil {
		return fail("closing temp file", err)
	}
	if err := os.Rename(tmpName, expanded); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: renaming %s over %s: %v", ErrIO, tmpName, expanded, err)
	}

	return nil
}

// file converts the in-memory collections back to the on-disk schema.
func (s *Store) file() credentialFile {
	return credentialFile{
		Clusters:       s.clusters,
		Credentials:    s.credentials,
		Contexts:       s.contexts,
		CurrentContext: s.current,
	}
}

// Validate checks referential integrity without failing: every context must
// point at an existing cluster and credential, every credential must carry
// the payload its kind requires. The caller decides which issues abort.
func (s *Store) Validate() []ValidationIssue {
	var issues []ValidationIssue

	for _, cluster := range s.clusters {
		if cluster.ServerURL == "" {
			issues = append(issues, ValidationIssue{
				Field:   "server",
				Message: fmt.Sprintf("cluster %q has no server URL", cluster.Name),
			})
		}
	}

	for _, cred := range s.credentials {
		switch cred.Kind {
		case KindClientCert:
			if len(cred.ClientCertData) == 0 || len(cred.ClientKeyData) == 0 {
				issues = append(issues, ValidationIssue{
					Field:   "clientCertData",
					Message: fmt.Sprintf("credential %q is kind clientCert but is missing certificate or key data", cred.Name),
				})
			}
		case KindBearerToken:
			if cred.Token == "" {
				issues = append(issues, ValidationIssue{
					Field:   "token",
					Message: fmt.Sprintf("credential %q is kind bearerToken but has no token", cred.Name),
				})
			}
		case KindBasicAuth:
			if cred.Username == "" {
				issues = append(issues, ValidationIssue{
					Field:   "username",
					Message: fmt.Sprintf("credential %q is kind basicAuth but has no username", cred.Name),
				})
			}
		default:
			issues = append(issues, ValidationIssue{
				Field:   "kind",
				Message: fmt.Sprintf("credential %q has unknown kind %q", cred.Name, cred.Kind),
			})
		}
	}

	for _, ctx := range s.contexts {
		if _, ok := s.clusterIdx[ctx.Cluster]; !ok {
			issues = append(issues, ValidationIssue{
				Context: ctx.Name,
				Field:   "cluster",
				Ref:     ctx.Cluster,
				Message: fmt.Sprintf("references unknown cluster %q", ctx.Cluster),
			})
		}
		if _, ok := s.credentialIdx[ctx.Credential]; !ok {
			issues = append(issues, ValidationIssue{
				Context: ctx.Name,
				Field:   "credential",
				Ref:     ctx.Credential,
				Message: fmt.Sprintf("references unknown credential %q", ctx.Credential),
			})
		}
	}

	if s.current != "" {
		if _, ok := s.contextIdx[s.current]; !ok {
			issues = append(issues, ValidationIssue{
				Field:   "currentContext",
				Ref:     s.current,
				Message: fmt.Sprintf("current context %q does not exist", s.current),
			})
		}
	}

	return issues
}

// Contexts returns the contexts in insertion order. The slice is a copy;
// mutating it does not touch the store.
func (s *Store) Contexts() []Context {
	out := make([]Context, len(s.contexts))
	copy(out, s.contexts)
	return out
}

// Clusters returns the cluster endpoints in insertion order.
func (s *Store) Clusters() []ClusterEndpoint {
	out := make([]ClusterEndpoint, len(s.clusters))
	copy(out, s.clusters)
	return out
}

// Credentials returns the credentials in insertion order.
func (s *Store) Credentials() []Credential {
	out := make([]Credential, len(s.credentials))
	copy(out, s.credentials)
	return out
}

// Context looks up one context by name.
func (s *Store) Context(name string) (Context, bool) {
	i, ok := s.contextIdx[name]
	if !ok {
		return Context{}, false
	}
	return s.contexts[i], true
}

// Cluster looks up one cluster endpoint by name.
func (s *Store) Cluster(name string) (ClusterEndpoint, bool) {
	i, ok := s.clusterIdx[name]
	if !ok {
		return ClusterEndpoint{}, false
	}
	return s.clusters[i], true
}

// Credential looks up one credential by name.
func (s *Store) Credential(name string) (Credential, bool) {
	i, ok := s.credentialIdx[name]
	if !ok {
		return Credential{}, false
	}
	return s.credentials[i], true
}

// CurrentContext returns the name of the current context, which may be
// empty if none has been selected yet.
func (s *Store) CurrentContext() string {
	return s.current
}

// SetCurrentContext records the current-context pointer. The name must
// resolve; the registry layer turns a miss into ErrNotFound for callers.
func (s *Store) SetCurrentContext(name string) bool {
	if _, ok := s.contextIdx[name]; !ok {
		return false
	}
	s.current = name
	return true
}

// AddContext inserts or replaces a context. Used by manual-add flows and
// by tests building stores without files.
func (s *Store) AddContext(c Context) {
	s.putContext(c)
}

// AddCluster inserts or replaces a cluster endpoint.
func (s *Store) AddCluster(c ClusterEndpoint) {
	s.putCluster(c)
}

// AddCredential inserts or replaces a credential.
func (s *Store) AddCredential(c Credential) {
	s.putCredential(c)
}
