// Package k8s implements the Platform Port (C2) against a real Kubernetes
// cluster via k8s.io/client-go, the dependency jordigilh-kubernaut pulls in
// for the same purpose: scheduling Jobs/Deployments/Services/PDBs and
// reasoning about their status. Every Create* call collapses a 409-Conflict
// into "fetch and return the existing resource" per spec.md §4.2.
package k8s

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	appsv1 "k8s.io/api/apps/v1"
	policyv1 "k8s.io/api/policy/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/agentware/agentctl/platform"
)

// Platform implements platform.Platform against a Kubernetes API server.
type Platform struct {
	client     kubernetes.Interface
	httpClient *http.Client
}

// New wraps an already-configured client-go Clientset.
func New(client kubernetes.Interface) *Platform {
	return &Platform{client: client, httpClient: http.DefaultClient}
}

func (p *Platform) CreateJob(ctx context.Context, spec platform.JobSpec, override bool) (*platform.Job, error) {
	job := buildJob(spec)
	created, err := p.client.BatchV1().Jobs(spec.Namespace).Create(ctx, job, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		if override {
			if err := p.DeleteJob(ctx, spec.Namespace, spec.Name); err != nil {
				return nil, fmt.Errorf("k8s: override delete job %s: %w", spec.Name, err)
			}
			created, err = p.client.BatchV1().Jobs(spec.Namespace).Create(ctx, job, metav1.CreateOptions{})
			if err != nil {
				return nil, fmt.Errorf("k8s: recreate job %s: %w", spec.Name, err)
			}
			return fromJob(created), nil
		}
		return p.GetJob(ctx, spec.Namespace, spec.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("k8s: create job %s: %w", spec.Name, err)
	}
	return fromJob(created), nil
}

func (p *Platform) GetJob(ctx context.Context, namespace, name string) (*platform.Job, error) {
	job, err := p.client.BatchV1().Jobs(namespace).Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("k8s: get job %s: %w", name, err)
	}
	return fromJob(job), nil
}

func (p *Platform) DeleteJob(ctx context.Context, namespace, name string) error {
	propagation := metav1.DeletePropagationForeground
	err := p.client.BatchV1().Jobs(namespace).Delete(ctx, name, metav1.DeleteOptions{PropagationPolicy: &propagation})
	if apierrors.IsNotFound(err) {
		return nil
	}
	return err
}

func (p *Platform) CreateDeployment(ctx context.Context, spec platform.DeploymentSpec, override bool) (*platform.Deployment, error) {
	dep := buildDeployment(spec)
	created, err := p.client.AppsV1().Deployments(spec.Namespace).Create(ctx, dep, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		if override {
			if err := p.DeleteDeployment(ctx, spec.Namespace, spec.Name); err != nil {
				return nil, fmt.Errorf("k8s: override delete deployment %s: %w", spec.Name, err)
			}
			created, err = p.client.AppsV1().Deployments(spec.Namespace).Create(ctx, dep, metav1.CreateOptions{})
			if err != nil {
				return nil, fmt.Errorf("k8s: recreate deployment %s: %w", spec.Name, err)
			}
			return fromDeployment(created), nil
		}
		return p.GetDeployment(ctx, spec.Namespace, spec.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("k8s: create deployment %s: %w", spec.Name, err)
	}
	return fromDeployment(created), nil
}

func (p *Platform) GetDeployment(ctx context.Context, namespace, name string) (*platform.Deployment, error) {
	dep, err := p.client.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("k8s: get deployment %s: %w", name, err)
	}
	return fromDeployment(dep), nil
}

func (p *Platform) DeleteDeployment(ctx context.Context, namespace, name string) error {
	err := p.client.AppsV1().Deployments(namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if apierrors.IsNotFound(err) {
		return nil
	}
	return err
}

func (p *Platform) CreateService(ctx context.Context, spec platform.ServiceSpec, override bool) (*platform.Service, error) {
	svc := buildService(spec)
	created, err := p.client.CoreV1().Services(spec.Namespace).Create(ctx, svc, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		if override {
			if err := p.DeleteService(ctx, spec.Namespace, spec.Name); err != nil {
				return nil, fmt.Errorf("k8s: override delete service %s: %w", spec.Name, err)
			}
			created, err = p.client.CoreV1().Services(spec.Namespace).Create(ctx, svc, metav1.CreateOptions{})
			if err != nil {
				return nil, fmt.Errorf("k8s: recreate service %s: %w", spec.Name, err)
			}
			return fromService(created), nil
		}
		return p.GetService(ctx, spec.Namespace, spec.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("k8s: create service %s: %w", spec.Name, err)
	}
	return fromService(created), nil
}

func (p *Platform) GetService(ctx context.Context, namespace, name string) (*platform.Service, error) {
	svc, err := p.client.CoreV1().Services(namespace).Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("k8s: get service %s: %w", name, err)
	}
	return fromService(svc), nil
}

func (p *Platform) DeleteService(ctx context.Context, namespace, name string) error {
	err := p.client.CoreV1().Services(namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if apierrors.IsNotFound(err) {
		return nil
	}
	return err
}

func (p *Platform) CreatePodDisruptionBudget(ctx context.Context, spec platform.PodDisruptionBudgetSpec, override bool) (*platform.PodDisruptionBudget, error) {
	pdb := buildPDB(spec)
	created, err := p.client.PolicyV1().PodDisruptionBudgets(spec.Namespace).Create(ctx, pdb, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		if override {
			if err := p.DeletePodDisruptionBudget(ctx, spec.Namespace, spec.Name); err != nil {
				return nil, fmt.Errorf("k8s: override delete pdb %s: %w", spec.Name, err)
			}
			created, err = p.client.PolicyV1().PodDisruptionBudgets(spec.Namespace).Create(ctx, pdb, metav1.CreateOptions{})
			if err != nil {
				return nil, fmt.Errorf("k8s: recreate pdb %s: %w", spec.Name, err)
			}
			return fromPDB(created), nil
		}
		return p.GetPodDisruptionBudget(ctx, spec.Namespace, spec.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("k8s: create pdb %s: %w", spec.Name, err)
	}
	return fromPDB(created), nil
}

func (p *Platform) GetPodDisruptionBudget(ctx context.Context, namespace, name string) (*platform.PodDisruptionBudget, error) {
	pdb, err := p.client.PolicyV1().PodDisruptionBudgets(namespace).Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("k8s: get pdb %s: %w", name, err)
	}
	return fromPDB(pdb), nil
}

func (p *Platform) DeletePodDisruptionBudget(ctx context.Context, namespace, name string) error {
	err := p.client.PolicyV1().PodDisruptionBudgets(namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if apierrors.IsNotFound(err) {
		return nil
	}
	return err
}

var errNonOKResponse = errors.New("k8s: service call returned non-2xx status")

func buildJob(spec platform.JobSpec) *batchv1.Job {
	env := make([]corev1.EnvVar, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, corev1.EnvVar{Name: k, Value: v})
	}
	backoffLimit := int32(0)
	return &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Name: spec.Name, Namespace: spec.Namespace},
		Spec: batchv1.JobSpec{
			BackoffLimit: &backoffLimit,
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: map[string]string{"job-name": spec.Name}},
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyNever,
					Containers: []corev1.Container{{
						Name:    "build",
						Image:   spec.Image,
						Command: spec.Command,
						Args:    spec.Args,
						Env:     env,
					}},
				},
			},
		},
	}
}

func fromJob(j *batchv1.Job) *platform.Job {
	return &platform.Job{
		Name:      j.Name,
		Namespace: j.Namespace,
		Active:    j.Status.Active,
		Succeeded: j.Status.Succeeded,
		Failed:    j.Status.Failed,
		Phase:     platform.JobPhaseFromCounts(j.Status.Succeeded, j.Status.Failed, j.Status.Active),
	}
}

func buildDeployment(spec platform.DeploymentSpec) *appsv1.Deployment {
	replicas := spec.Replicas
	if replicas == 0 {
		replicas = 1
	}
	labels := map[string]string{"app": spec.Name, "agentctl/agent": spec.Name}
	env := make([]corev1.EnvVar, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, corev1.EnvVar{Name: k, Value: v})
	}
	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: spec.Name, Namespace: spec.Namespace, Labels: labels},
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{MatchLabels: labels},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{{
						Name:  "agent",
						Image: spec.Image,
						Ports: []corev1.ContainerPort{{ContainerPort: spec.Port}},
						Env:   env,
					}},
				},
			},
		},
	}
}

func fromDeployment(d *appsv1.Deployment) *platform.Deployment {
	reported := d.Status.ObservedGeneration > 0 || d.Status.AvailableReplicas > 0 || d.Status.Replicas > 0
	return &platform.Deployment{
		Name:              d.Name,
		Namespace:         d.Namespace,
		AvailableReplicas: d.Status.AvailableReplicas,
		Replicas:          d.Status.Replicas,
		Phase:             platform.DeploymentPhaseFromReplicas(d.Status.AvailableReplicas, reported),
	}
}

func buildService(spec platform.ServiceSpec) *corev1.Service {
	targetPort := spec.TargetPort
	if targetPort == 0 {
		targetPort = spec.Port
	}
	return &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{Name: spec.Name, Namespace: spec.Namespace},
		Spec: corev1.ServiceSpec{
			Type:     corev1.ServiceTypeClusterIP,
			Selector: spec.Selector,
			Ports: []corev1.ServicePort{{
				Port:       spec.Port,
				TargetPort: intOrStringFromInt32(targetPort),
			}},
		},
	}
}

func fromService(s *corev1.Service) *platform.Service {
	port := int32(0)
	if len(s.Spec.Ports) > 0 {
		port = s.Spec.Ports[0].Port
	}
	return &platform.Service{Name: s.Name, Namespace: s.Namespace, Port: port}
}

func buildPDB(spec platform.PodDisruptionBudgetSpec) *policyv1.PodDisruptionBudget {
	minAvailable := intOrStringFromInt32(spec.MinAvailable)
	return &policyv1.PodDisruptionBudget{
		ObjectMeta: metav1.ObjectMeta{Name: spec.Name, Namespace: spec.Namespace},
		Spec: policyv1.PodDisruptionBudgetSpec{
			MinAvailable: &minAvailable,
			Selector:     &metav1.LabelSelector{MatchLabels: spec.Selector},
		},
	}
}

func fromPDB(p *policyv1.PodDisruptionBudget) *platform.PodDisruptionBudget {
	return &platform.PodDisruptionBudget{Name: p.Name, Namespace: p.Namespace}
}
