package store

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadSingleFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "creds.yaml", `
clusters:
  - name: prod-east
    server: https://10.0.0.1:6443
credentials:
  - name: prod-admin
    kind: bearerToken
    token: secret-token
contexts:
  - name: prod-east-admin
    cluster: prod-east
    credential: prod-admin
    namespace: platform
currentContext: prod-east-admin
`)

	s, err := Load([]string{path}, LoadOptions{})
	require.NoError(t, err)

	require.Len(t, s.Contexts(), 1)
	ctx, ok := s.Context("prod-east-admin")
	require.True(t, ok)
	assert.Equal(t, "prod-east", ctx.Cluster)
	assert.Equal(t, "prod-admin", ctx.Credential)
	assert.Equal(t, "platform", ctx.Namespace)
	assert.Equal(t, "prod-east-admin", s.CurrentContext())

	cred, ok := s.Credential("prod-admin")
	require.True(t, ok)
	assert.Equal(t, KindBearerToken, cred.Kind)
	assert.Equal(t, "bearerToken:prod-admin", cred.Redacted())
}

func TestLoadMalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "broken.yaml", "contexts: [this is: not: valid")

	_, err := Load([]string{path}, LoadOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParse)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load([]string{filepath.Join(t.TempDir(), "nope.yaml")}, LoadOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIO)
}

func TestMergeLastSourceWins(t *testing.T) {
	dir := t.TempDir()
	first := writeFile(t, dir, "a.yaml", `
contexts:
  - name: shared
    cluster: east
    credential: admin
    namespace: team-a
`)
	second := writeFile(t, dir, "b.yaml", `
contexts:
  - name: shared
    cluster: east
    credential: admin
    namespace: team-b
`)

	s, err := Load([]string{first, second}, LoadOptions{})
	require.NoError(t, err)

	// Exactly one "shared" context, equal to the later source's version.
	require.Len(t, s.Contexts(), 1)
	ctx, ok := s.Context("shared")
	require.True(t, ok)
	assert.Equal(t, "team-b", ctx.Namespace)
}

func TestMergeStrictModeRejectsDuplicates(t *testing.T) {
	dir := t.TempDir()
	first := writeFile(t, dir, "a.yaml", `
contexts:
  - name: shared
    cluster: east
    credential: admin
`)
	second := writeFile(t, dir, "b.yaml", `
contexts:
  - name: shared
    cluster: west
    credential: admin
`)

	_, err := Load([]string{first, second}, LoadOptions{Strict: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestMergeStrictRejectsCrossStoreDuplicates(t *testing.T) {
	dir := t.TempDir()
	// Each file is clean on its own; the collision only exists across them,
	// as when the merge command folds sources in one at a time.
	first := writeFile(t, dir, "a.yaml", `
contexts:
  - name: shared
    cluster: east
    credential: admin
    namespace: team-a
`)
	second := writeFile(t, dir, "b.yaml", `
contexts:
  - name: shared
    cluster: east
    credential: admin
    namespace: team-b
`)

	base, err := Load([]string{first}, LoadOptions{Strict: true})
	require.NoError(t, err)
	src, err := Load([]string{second}, LoadOptions{Strict: true})
	require.NoError(t, err)

	err = base.MergeStrict(src)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Contains(t, err.Error(), "shared")

	// The rejected merge changed nothing.
	ctx, ok := base.Context("shared")
	require.True(t, ok)
	assert.Equal(t, "team-a", ctx.Namespace)
}

func TestMergeStrictAcceptsDisjointSources(t *testing.T) {
	dir := t.TempDir()
	first := writeFile(t, dir, "a.yaml", `
clusters:
  - name: east
    server: https://10.0.0.1:6443
contexts:
  - name: one
    cluster: east
    credential: admin
`)
	second := writeFile(t, dir, "b.yaml", `
credentials:
  - name: admin
    kind: bearerToken
    token: tok
contexts:
  - name: two
    cluster: east
    credential: admin
`)

	base, err := Load([]string{first}, LoadOptions{Strict: true})
	require.NoError(t, err)
	src, err := Load([]string{second}, LoadOptions{Strict: true})
	require.NoError(t, err)

	require.NoError(t, base.MergeStrict(src))
	assert.Len(t, base.Contexts(), 2)
	assert.Len(t, base.Clusters(), 1)
	assert.Len(t, base.Credentials(), 1)
}

func TestMergeIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "creds.yaml", `
clusters:
  - name: east
    server: https://10.0.0.1:6443
credentials:
  - name: admin
    kind: bearerToken
    token: tok
contexts:
  - name: one
    cluster: east
    credential: admin
  - name: two
    cluster: east
    credential: admin
`)

	once, err := Load([]string{path}, LoadOptions{})
	require.NoError(t, err)
	twice, err := Load([]string{path, path}, LoadOptions{})
	require.NoError(t, err)

	assert.Equal(t, once.Contexts(), twice.Contexts())
	assert.Equal(t, once.Clusters(), twice.Clusters())
	assert.Equal(t, once.Credentials(), twice.Credentials())
}

func TestInsertionOrderPreserved(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "creds.yaml", `
contexts:
  - name: zebra
    cluster: c
    credential: u
  - name: alpha
    cluster: c
    credential: u
  - name: middle
    cluster: c
    credential: u
`)

	s, err := Load([]string{path}, LoadOptions{})
	require.NoError(t, err)

	var names []string
	for _, ctx := range s.Contexts() {
		names = append(names, ctx.Name)
	}
	assert.Equal(t, []string{"zebra", "alpha", "middle"}, names)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := New()
	s.AddCluster(ClusterEndpoint{Name: "east", ServerURL: "https://10.0.0.1:6443", CAData: []byte("ca-pem")})
	s.AddCredential(Credential{Name: "admin", Kind: KindClientCert, ClientCertData: []byte("cert"), ClientKeyData: []byte("key")})
	s.AddCredential(Credential{Name: "ci", Kind: KindBearerToken, Token: "tok"})
	s.AddContext(Context{Name: "east-admin", Cluster: "east", Credential: "admin", Namespace: "kube-system"})
	s.AddContext(Context{Name: "east-ci", Cluster: "east", Credential: "ci"})
	require.True(t, s.SetCurrentContext("east-ci"))

	path := filepath.Join(t.TempDir(), "creds.yaml")
	require.NoError(t, s.Save(path))

	loaded, err := Load([]string{path}, LoadOptions{})
	require.NoError(t, err)

	assert.Equal(t, s.Clusters(), loaded.Clusters())
	assert.Equal(t, s.Credentials(), loaded.Credentials())
	assert.Equal(t, s.Contexts(), loaded.Contexts())
	assert.Equal(t, "east-ci", loaded.CurrentContext())
}

func TestSaveRestrictsPermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file modes are not meaningful on Windows")
	}

	s := New()
	s.AddCredential(Credential{Name: "admin", Kind: KindBearerToken, Token: "tok"})

	path := filepath.Join(t.TempDir(), "creds.yaml")
	require.NoError(t, s.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// Save over an existing file keeps the restriction.
	require.NoError(t, s.Save(path))
	info, err = os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestSaveFailureLeavesNoPartialState(t *testing.T) {
	dir := t.TempDir()

	// A non-empty directory at the target path makes the final rename
	// fail after the temp file was already written.
	target := filepath.Join(dir, "creds.yaml")
	require.NoError(t, os.MkdirAll(filepath.Join(target, "occupied"), 0o700))

	s := New()
	s.AddContext(Context{Name: "ctx", Cluster: "c", Credential: "u"})

	err := s.Save(target)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIO)

	// The failed write must not leave temp files behind.
	matches, err := filepath.Glob(filepath.Join(dir, ".credentials-*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name       string
		build      func() *Store
		wantIssues int
	}{
		{
			name: "clean store",
			build: func() *Store {
				s := New()
				s.AddCluster(ClusterEndpoint{Name: "east", ServerURL: "https://x"})
				s.AddCredential(Credential{Name: "admin", Kind: KindBearerToken, Token: "tok"})
				s.AddContext(Context{Name: "ctx", Cluster: "east", Credential: "admin"})
				return s
			},
			wantIssues: 0,
		},
		{
			name: "dangling cluster and credential refs",
			build: func() *Store {
				s := New()
				s.AddContext(Context{Name: "ctx", Cluster: "ghost", Credential: "phantom"})
				return s
			},
			wantIssues: 2,
		},
		{
			name: "credential missing payload for its kind",
			build: func() *Store {
				s := New()
				s.AddCredential(Credential{Name: "empty", Kind: KindClientCert})
				return s
			},
			wantIssues: 1,
		},
		{
			name: "current context does not resolve",
			build: func() *Store {
				s := New()
				s.AddContext(Context{Name: "a", Cluster: "c", Credential: "u"})
				s.current = "gone"
				return s
			},
			// Dangling current plus the two dangling refs of context a.
			wantIssues: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issues := tt.build().Validate()
			assert.Len(t, issues, tt.wantIssues)
		})
	}
}

func TestSetCurrentContextRequiresExistingName(t *testing.T) {
	s := New()
	s.AddContext(Context{Name: "real", Cluster: "c", Credential: "u"})

	assert.False(t, s.SetCurrentContext("imaginary"))
	assert.True(t, s.SetCurrentContext("real"))
	assert.Equal(t, "real", s.CurrentContext())
}
