package kube

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	autoscalingv1 "k8s.io/api/autoscaling/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// run interprets the supported command vocabulary. The vocabulary is the
// kubectl-shaped subset this tool actually needs; anything else is an
// execution error, never a silent no-op.
func (e *Executor) run(ctx context.Context, client kubernetes.Interface, namespace string, argv []string) (string, error) {
	verb := argv[0]
	args := argv[1:]

	switch verb {
	case "version":
		return e.runVersion(client)
	case "get":
		if len(args) == 0 {
			return "", errors.New("get requires a resource type (pods, deployments, namespaces)")
		}
		switch args[0] {
		case "pods", "pod", "po":
			return e.runGetPods(ctx, client, namespace)
		case "deployments", "deployment", "deploy":
			return e.runGetDeployments(ctx, client, namespace)
		case "namespaces", "namespace", "ns":
			return e.runGetNamespaces(ctx, client)
		default:
			return "", errors.Errorf("unsupported resource type %q for get", args[0])
		}
	case "delete":
		if len(args) != 2 || (args[0] != "pod" && args[0] != "pods" && args[0] != "po") {
			return "", errors.New("delete supports exactly: delete pod <name>")
		}
		return e.runDeletePod(ctx, client, namespace, args[1])
	case "scale":
		return e.runScale(ctx, client, namespace, args)
	default:
		return "", errors.Errorf("unsupported command verb %q", verb)
	}
}

func (e *Executor) runVersion(client kubernetes.Interface) (string, error) {
	info, err := client.Discovery().ServerVersion()
	if err != nil {
		return "", errors.Wrap(err, "querying server version")
	}
	return fmt.Sprintf("Server version: %s\n", info.GitVersion), nil
}

func (e *Executor) runGetPods(ctx context.Context, client kubernetes.Interface, namespace string) (string, error) {
	pods, err := client.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return "", errors.Wrapf(err, "listing pods in namespace %q", namespace)
	}

	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "NAME\tREADY\tSTATUS\tRESTARTS\tAGE")
	for _, pod := range pods.Items {
		ready := 0
		for _, cs := range pod.Status.ContainerStatuses {
			if cs.Ready {
				ready++
			}
		}
		var restarts int32
		for _, cs := range pod.Status.ContainerStatuses {
			restarts += cs.RestartCount
		}
		fmt.Fprintf(w, "%s\t%d/%d\t%s\t%d\t%s\n",
			pod.Name,
			ready, len(pod.Spec.Containers),
			string(pod.Status.Phase),
			restarts,
			formatDuration(time.Since(pod.CreationTimestamp.Time)),
		)
	}
	w.Flush()
	return b.String(), nil
}

func (e *Executor) runGetDeployments(ctx context.Context, client kubernetes.Interface, namespace string) (string, error) {
	deployments, err := client.AppsV1().Deployments(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return "", errors.Wrapf(err, "listing deployments in namespace %q", namespace)
	}

	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "NAME\tREADY\tREPLICAS\tAGE")
	for _, d := range deployments.Items {
		replicas := int32(0)
		if d.Spec.Replicas != nil {
			replicas = *d.Spec.Replicas
		}
		fmt.Fprintf(w, "%s\t%d/%d\t%d\t%s\n",
			d.Name,
			d.Status.ReadyReplicas, replicas,
			replicas,
			formatDuration(time.Since(d.CreationTimestamp.Time)),
		)
	}
	w.Flush()
	return b.String(), nil
}

func (e *Executor) runGetNamespaces(ctx context.Context, client kubernetes.Interface) (string, error) {
	namespaces, err := client.CoreV1().Namespaces().List(ctx, metav1.ListOptions{})
	if err != nil {
		return "", errors.Wrap(err, "listing namespaces")
	}

	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "NAME\tSTATUS\tAGE")
	for _, ns := range namespaces.Items {
		fmt.Fprintf(w, "%s\t%s\t%s\n",
			ns.Name,
			string(ns.Status.Phase),
			formatDuration(time.Since(ns.CreationTimestamp.Time)),
		)
	}
	w.Flush()
	return b.String(), nil
}

func (e *Executor) runDeletePod(ctx context.Context, client kubernetes.Interface, namespace, name string) (string, error) {
	if err := client.CoreV1().Pods(namespace).Delete(ctx, name, metav1.DeleteOptions{}); err != nil {
		return "", errors.Wrapf(err, "deleting pod %q in namespace %q", name, namespace)
	}
	return fmt.Sprintf("pod %q deleted\n", name), nil
}

// runScale handles: scale deployment <name> --replicas=N
func (e *Executor) runScale(ctx context.Context, client kubernetes.Interface, namespace string, args []string) (string, error) {
	if len(args) != 3 || (args[0] != "deployment" && args[0] != "deployments" && args[0] != "deploy") {
		return "", errors.New("scale supports exactly: scale deployment <name> --replicas=N")
	}
	name := args[1]

	const prefix = "--replicas="
	if !strings.HasPrefix(args[2], prefix) {
		return "", errors.Errorf("expected %sN, got %q", prefix, args[2])
	}
	replicas, err := strconv.ParseInt(strings.TrimPrefix(args[2], prefix), 10, 32)
	if err != nil || replicas < 0 {
		return "", errors.Errorf("invalid replica count %q", strings.TrimPrefix(args[2], prefix))
	}

	scale := &autoscalingv1.Scale{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
		Spec:       autoscalingv1.ScaleSpec{Replicas: int32(replicas)},
	}
	if _, err := client.AppsV1().Deployments(namespace).UpdateScale(ctx, name, scale, metav1.UpdateOptions{}); err != nil {
		return "", errors.Wrapf(err, "scaling deployment %q to %d replicas", name, replicas)
	}
	return fmt.Sprintf("deployment %q scaled to %d replicas\n", name, replicas), nil
}

// formatDuration converts a duration to the compact form kubectl uses for
// AGE columns.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	} else if d < 24*time.Hour {
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	return fmt.Sprintf("%dd", int(d.Hours()/24))
}
