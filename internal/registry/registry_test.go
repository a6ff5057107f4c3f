package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celikgo/ctxguard/internal/store"
)

func testStore() *store.Store {
	s := store.New()
	s.AddCluster(store.ClusterEndpoint{Name: "east", ServerURL: "https://10.0.0.1:6443"})
	s.AddCredential(store.Credential{Name: "admin", Kind: store.KindBearerToken, Token: "tok"})
	s.AddContext(store.Context{Name: "prod-east", Cluster: "east", Credential: "admin"})
	s.AddContext(store.Context{Name: "dev-local", Cluster: "east", Credential: "admin", Namespace: "sandbox"})
	return s
}

func TestListPreservesInsertionOrder(t *testing.T) {
	reg := New(testStore())

	contexts := reg.List()
	require.Len(t, contexts, 2)
	assert.Equal(t, "prod-east", contexts[0].Name)
	assert.Equal(t, "dev-local", contexts[1].Name)
}

func TestGet(t *testing.T) {
	reg := New(testStore())

	ctx, ok := reg.Get("dev-local")
	require.True(t, ok)
	assert.Equal(t, "sandbox", ctx.Namespace)

	_, ok = reg.Get("missing")
	assert.False(t, ok)
}

func TestCurrentAndSetCurrent(t *testing.T) {
	reg := New(testStore())

	_, ok := reg.Current()
	assert.False(t, ok, "no current context until one is set")

	require.NoError(t, reg.SetCurrent("prod-east"))
	current, ok := reg.Current()
	require.True(t, ok)
	assert.Equal(t, "prod-east", current.Name)

	// Switching moves only the pointer; the other context is untouched.
	require.NoError(t, reg.SetCurrent("dev-local"))
	other, ok := reg.Get("prod-east")
	require.True(t, ok)
	assert.Equal(t, "east", other.Cluster)
}

func TestSetCurrentUnknownName(t *testing.T) {
	reg := New(testStore())

	err := reg.SetCurrent("does-not-exist")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolve(t *testing.T) {
	reg := New(testStore())

	ctx, cluster, cred, err := reg.Resolve("prod-east")
	require.NoError(t, err)
	assert.Equal(t, "prod-east", ctx.Name)
	assert.Equal(t, "https://10.0.0.1:6443", cluster.ServerURL)
	assert.Equal(t, "tok", cred.Token)
}

func TestResolveDanglingReferences(t *testing.T) {
	s := store.New()
	s.AddContext(store.Context{Name: "broken", Cluster: "ghost", Credential: "phantom"})
	reg := New(s)

	_, _, _, err := reg.Resolve("broken")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "ghost")
}

func TestRebuildReplacesView(t *testing.T) {
	s := testStore()
	reg := New(s)
	require.Len(t, reg.List(), 2)

	// A reload produces a fresh store; rebuilding is constructing a new
	// registry over it, and the new view wholly replaces the old.
	fresh := store.New()
	fresh.AddContext(store.Context{Name: "only", Cluster: "c", Credential: "u"})
	reg = New(fresh)

	contexts := reg.List()
	require.Len(t, contexts, 1)
	assert.Equal(t, "only", contexts[0].Name)
}
