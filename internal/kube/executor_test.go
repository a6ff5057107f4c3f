package kube

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	autoscalingv1 "k8s.io/api/autoscaling/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/version"
	fakediscovery "k8s.io/client-go/discovery/fake"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"

	"github.com/celikgo/ctxguard/internal/store"
)

func testExecutor(client kubernetes.Interface) *Executor {
	e := NewExecutor(5 * time.Second)
	e.newClient = func(cluster store.ClusterEndpoint, cred store.Credential) (kubernetes.Interface, error) {
		return client, nil
	}
	return e
}

func testTarget() (store.Context, store.ClusterEndpoint, store.Credential) {
	return store.Context{Name: "dev-cluster", Cluster: "east", Credential: "admin", Namespace: "team-a"},
		store.ClusterEndpoint{Name: "east", ServerURL: "https://east.example.com:6443"},
		store.Credential{Name: "admin", Kind: store.KindBearerToken, Token: "tok"}
}

func testPod(name, namespace string, phase corev1.PodPhase, ready bool) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:              name,
			Namespace:         namespace,
			CreationTimestamp: metav1.NewTime(time.Now().Add(-2 * time.Hour)),
		},
		Spec: corev1.PodSpec{
			Containers: []corev1.Container{{Name: "app", Image: "app:latest"}},
		},
		Status: corev1.PodStatus{
			Phase: phase,
			ContainerStatuses: []corev1.ContainerStatus{
				{Name: "app", Ready: ready, RestartCount: 1},
			},
		},
	}
}

func TestExecuteVersion(t *testing.T) {
	client := fake.NewSimpleClientset()
	client.Discovery().(*fakediscovery.FakeDiscovery).FakedServerVersion = &version.Info{GitVersion: "v1.33.1"}

	target, cluster, cred := testTarget()
	out, code, err := testExecutor(client).Execute(context.Background(), target, cluster, cred, []string{"version"})
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, "Server version: v1.33.1\n", out)
}

func TestExecuteGetPods(t *testing.T) {
	client := fake.NewSimpleClientset(
		testPod("api-0", "team-a", corev1.PodRunning, true),
		testPod("worker-1", "team-a", corev1.PodPending, false),
		testPod("elsewhere", "team-b", corev1.PodRunning, true),
	)

	target, cluster, cred := testTarget()
	out, code, err := testExecutor(client).Execute(context.Background(), target, cluster, cred, []string{"get", "pods"})
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "api-0")
	assert.Contains(t, out, "Running")
	assert.Contains(t, out, "worker-1")
	assert.Contains(t, out, "Pending")
	assert.NotContains(t, out, "elsewhere", "pods outside the context namespace must not appear")
}

func TestExecuteGetPodsAlias(t *testing.T) {
	client := fake.NewSimpleClientset(testPod("api-0", "team-a", corev1.PodRunning, true))

	target, cluster, cred := testTarget()
	out, _, err := testExecutor(client).Execute(context.Background(), target, cluster, cred, []string{"get", "po"})
	require.NoError(t, err)
	assert.Contains(t, out, "api-0")
}

func TestExecuteDefaultNamespace(t *testing.T) {
	client := fake.NewSimpleClientset(testPod("api-0", "default", corev1.PodRunning, true))

	target, cluster, cred := testTarget()
	target.Namespace = ""
	out, _, err := testExecutor(client).Execute(context.Background(), target, cluster, cred, []string{"get", "pods"})
	require.NoError(t, err)
	assert.Contains(t, out, "api-0")
}

func TestExecuteGetDeployments(t *testing.T) {
	replicas := int32(3)
	client := fake.NewSimpleClientset(&appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Name:              "api",
			Namespace:         "team-a",
			CreationTimestamp: metav1.NewTime(time.Now().Add(-48 * time.Hour)),
		},
		Spec:   appsv1.DeploymentSpec{Replicas: &replicas},
		Status: appsv1.DeploymentStatus{ReadyReplicas: 2},
	})

	target, cluster, cred := testTarget()
	out, code, err := testExecutor(client).Execute(context.Background(), target, cluster, cred, []string{"get", "deployments"})
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "api")
	assert.Contains(t, out, "2/3")
}

func TestExecuteGetNamespaces(t *testing.T) {
	client := fake.NewSimpleClientset(
		&corev1.Namespace{
			ObjectMeta: metav1.ObjectMeta{Name: "team-a"},
			Status:     corev1.NamespaceStatus{Phase: corev1.NamespaceActive},
		},
	)

	target, cluster, cred := testTarget()
	out, _, err := testExecutor(client).Execute(context.Background(), target, cluster, cred, []string{"get", "ns"})
	require.NoError(t, err)
	assert.Contains(t, out, "team-a")
	assert.Contains(t, out, "Active")
}

func TestExecuteDeletePod(t *testing.T) {
	client := fake.NewSimpleClientset(testPod("api-0", "team-a", corev1.PodRunning, true))

	target, cluster, cred := testTarget()
	out, code, err := testExecutor(client).Execute(context.Background(), target, cluster, cred, []string{"delete", "pod", "api-0"})
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Contains(t, out, `pod "api-0" deleted`)

	_, err = client.CoreV1().Pods("team-a").Get(context.Background(), "api-0", metav1.GetOptions{})
	assert.Error(t, err, "pod should be gone after delete")
}

func TestExecuteDeleteMissingPod(t *testing.T) {
	client := fake.NewSimpleClientset()

	target, cluster, cred := testTarget()
	_, code, err := testExecutor(client).Execute(context.Background(), target, cluster, cred, []string{"delete", "pod", "nope"})
	require.Error(t, err)
	assert.Equal(t, 1, code)
}

func TestExecuteScaleDeployment(t *testing.T) {
	client := fake.NewSimpleClientset()

	var scaledTo int32
	client.PrependReactor("update", "deployments", func(action k8stesting.Action) (bool, runtime.Object, error) {
		update, ok := action.(k8stesting.UpdateAction)
		require.True(t, ok)
		if action.GetSubresource() != "scale" {
			return false, nil, nil
		}
		scale, ok := update.GetObject().(*autoscalingv1.Scale)
		require.True(t, ok)
		assert.Equal(t, "api", scale.Name)
		scaledTo = scale.Spec.Replicas
		return true, update.GetObject(), nil
	})

	target, cluster, cred := testTarget()
	out, code, err := testExecutor(client).Execute(context.Background(), target, cluster, cred,
		[]string{"scale", "deployment", "api", "--replicas=5"})
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, int32(5), scaledTo)
	assert.Contains(t, out, `deployment "api" scaled to 5 replicas`)
}

func TestExecuteScaleRejectsBadArgs(t *testing.T) {
	client := fake.NewSimpleClientset()
	target, cluster, cred := testTarget()
	e := testExecutor(client)

	tests := []struct {
		name string
		argv []string
	}{
		{"missing replicas flag", []string{"scale", "deployment", "api"}},
		{"wrong resource", []string{"scale", "pod", "api-0", "--replicas=2"}},
		{"negative replicas", []string{"scale", "deployment", "api", "--replicas=-1"}},
		{"non-numeric replicas", []string{"scale", "deployment", "api", "--replicas=lots"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, code, err := e.Execute(context.Background(), target, cluster, cred, tt.argv)
			require.Error(t, err)
			assert.Equal(t, 1, code)
		})
	}
}

func TestExecuteUnsupportedVerb(t *testing.T) {
	client := fake.NewSimpleClientset()
	target, cluster, cred := testTarget()

	_, code, err := testExecutor(client).Execute(context.Background(), target, cluster, cred, []string{"drain", "node-1"})
	require.Error(t, err)
	assert.Equal(t, 1, code)
	assert.Contains(t, err.Error(), "unsupported command verb")
}

func TestExecuteUnsupportedGetResource(t *testing.T) {
	client := fake.NewSimpleClientset()
	target, cluster, cred := testTarget()

	_, code, err := testExecutor(client).Execute(context.Background(), target, cluster, cred, []string{"get", "secrets"})
	require.Error(t, err)
	assert.Equal(t, 1, code)
}

func TestExecuteClientBuildFailure(t *testing.T) {
	e := NewExecutor(time.Second)
	target, cluster, cred := testTarget()
	cred.Kind = store.CredentialKind("carrier-pigeon")

	_, code, err := e.Execute(context.Background(), target, cluster, cred, []string{"get", "pods"})
	require.Error(t, err)
	assert.Equal(t, 1, code)
	assert.Contains(t, err.Error(), "unsupported kind")
}

func TestBuildClientCredentialKinds(t *testing.T) {
	e := NewExecutor(time.Second)
	cluster := store.ClusterEndpoint{Name: "east", ServerURL: "https://east.example.com:6443"}

	tests := []struct {
		name string
		cred store.Credential
	}{
		{"bearer token", store.Credential{Name: "tok", Kind: store.KindBearerToken, Token: "s3cret"}},
		{"basic auth", store.Credential{Name: "basic", Kind: store.KindBasicAuth, Username: "admin", Password: "pw"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := e.buildClient(cluster, tt.cred)
			require.NoError(t, err)
			assert.NotNil(t, client)
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Second, "30s"},
		{5 * time.Minute, "5m"},
		{3 * time.Hour, "3h"},
		{49 * time.Hour, "2d"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatDuration(tt.d))
	}
}
