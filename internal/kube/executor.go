// Package kube is the real Kubernetes API client behind the dispatcher.
// It turns a resolved (context, cluster, credential) triple into a
// client-go clientset and executes a small kubectl-like command vocabulary
// against it. Nothing here makes safety decisions - by the time a command
// arrives, the gate has already said Allowed.
package kube

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/celikgo/ctxguard/internal/store"
)

// DefaultTimeout bounds every API call so a dead cluster cannot hang the
// CLI indefinitely.
const DefaultTimeout = 30 * time.Second

// Executor executes commands against clusters described by the credential
// store. The clientset factory is swappable so tests can substitute the
// fake clientset without a running cluster.
type Executor struct {
	timeout   time.Duration
	log       *logrus.Entry
	newClient func(cluster store.ClusterEndpoint, cred store.Credential) (kubernetes.Interface, error)
}

// NewExecutor builds an executor with the given per-call timeout. A zero
// or negative timeout falls back to DefaultTimeout.
func NewExecutor(timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	e := &Executor{
		timeout: timeout,
		log:     logrus.WithField("component", "kube"),
	}
	e.newClient = e.buildClient
	return e
}

// Execute runs one argv-style command and returns its rendered output plus
// an exit code. Exit code semantics: 0 success, 1 execution failure. The
// executor never uses 2 - that code belongs to the safety gate.
func (e *Executor) Execute(ctx context.Context, target store.Context, cluster store.ClusterEndpoint, cred store.Credential, argv []string) (string, int, error) {
	client, err := e.newClient(cluster, cred)
	if err != nil {
		return "", 1, errors.Wrapf(err, "connecting to cluster %q", cluster.Name)
	}

	namespace := target.Namespace
	if namespace == "" {
		namespace = "default"
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	e.log.WithFields(logrus.Fields{
		"cluster":   cluster.Name,
		"namespace": namespace,
		"argv":      argv,
	}).Debug("executing against cluster")

	out, err := e.run(callCtx, client, namespace, argv)
	if err != nil {
		return "", 1, err
	}
	return out, 0, nil
}

// buildClient assembles a rest.Config from the store's own types. This is
// the one place credential payloads are consumed; they go straight into
// the client configuration and nowhere else.
func (e *Executor) buildClient(cluster store.ClusterEndpoint, cred store.Credential) (kubernetes.Interface, error) {
	cfg := &rest.Config{
		Host:    cluster.ServerURL,
		Timeout: e.timeout,
		TLSClientConfig: rest.TLSClientConfig{
			CAData:   cluster.CAData,
			Insecure: cluster.InsecureSkipVerify,
		},
	}
	// CAData and Insecure are mutually exclusive in client-go.
	if cfg.TLSClientConfig.Insecure {
		cfg.TLSClientConfig.CAData = nil
	}

	switch cred.Kind {
	case store.KindClientCert:
		cfg.TLSClientConfig.CertData = cred.ClientCertData
		cfg.TLSClientConfig.KeyData = cred.ClientKeyData
	case store.KindBearerToken:
		cfg.BearerToken = cred.Token
	case store.KindBasicAuth:
		cfg.Username = cred.Username
		cfg.Password = cred.Password
	default:
		return nil, errors.Errorf("credential %q has unsupported kind %q", cred.Name, cred.Kind)
	}

	client, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "creating Kubernetes client")
	}
	return client, nil
}
