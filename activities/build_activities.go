package activities

import (
	"fmt"

	"context"

	"github.com/google/go-containerregistry/pkg/name"

	"github.com/agentware/agentctl/domain"
	"github.com/agentware/agentctl/internal/apperr"
	"github.com/agentware/agentctl/platform"
)

func (d *Deps) namespaceOrDefault(ns string) string {
	if ns != "" {
		return ns
	}
	return d.AgentsNamespace
}

// resolveDestinationImage builds the agent's image reference and validates
// it through go-containerregistry's reference parser before any Job is
// created, catching a malformed registry URL or sanitized name up front
// rather than surfacing it as an opaque build-job failure. WeakValidation
// tolerates the registry-host:port shapes a self-hosted/dev registry uses.
func resolveDestinationImage(registryURL, svcName string) (string, error) {
	candidate := fmt.Sprintf("%s/%s:latest", registryURL, svcName)
	ref, err := name.ParseReference(candidate, name.WeakValidation)
	if err != nil {
		return "", fmt.Errorf("parse image reference %q: %w", candidate, err)
	}
	return ref.Name(), nil
}

// BuildAndPushInput is the argument to build_and_push.
type BuildAndPushInput struct {
	AgentName          string `json:"agent_name"`
	ContextArchivePath string `json:"context_archive_path"`
	Namespace          string `json:"namespace,omitempty"`
}

// BuildAndPushResult carries the coordinates the Build Workflow records on
// the agent row via a follow-up update_agent_status call.
type BuildAndPushResult struct {
	DockerImage       string `json:"docker_image"`
	BuildJobName      string `json:"build_job_name"`
	BuildJobNamespace string `json:"build_job_namespace"`
}

// BuildAndPush schedules a Job that reads the uploaded build context and
// pushes the resulting image to the registry tagged latest, per spec.md
// §4.4 step 2. Idempotent under override=false: a retry after a crash before
// the workflow recorded the result just observes the already-running job.
func (d *Deps) BuildAndPush(ctx context.Context, in BuildAndPushInput) (any, error) {
	svcName := domain.SanitizeServiceName(in.AgentName)
	ns := d.namespaceOrDefault(in.Namespace)
	jobName := "build-" + svcName

	destImage, err := resolveDestinationImage(d.RegistryURL, svcName)
	if err != nil {
		return nil, apperr.Wrap(apperr.ClientError, err, "build_and_push: resolve destination image for %s", in.AgentName)
	}

	spec := platform.JobSpec{
		Name:                jobName,
		Namespace:           ns,
		ContextArchivePath:  in.ContextArchivePath,
		BuildContextPVCName: d.BuildContextPVCName,
		BuildContextsPath:   d.BuildContextsPath,
		DestinationImage:    destImage,
		RegistrySecretName:  d.BuildRegistrySecretName,
	}
	job, err := d.Platform.CreateJob(ctx, spec, false)
	if err != nil {
		return nil, apperr.Wrap(apperr.ServiceError, err, "build_and_push: create job %s/%s", ns, jobName)
	}
	return BuildAndPushResult{
		DockerImage:       destImage,
		BuildJobName:      job.Name,
		BuildJobNamespace: job.Namespace,
	}, nil
}

// ResourceRef names a namespaced platform resource. Shared by every
// get/delete activity in this file.
type ResourceRef struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
}

// GetBuildJob wraps get_job. Returns nil (not an error) when the job is
// gone, e.g. after a prior delete_build_job.
func (d *Deps) GetBuildJob(ctx context.Context, in ResourceRef) (any, error) {
	job, err := withPlatformRetry(ctx, func() (*platform.Job, error) {
		return d.Platform.GetJob(ctx, in.Namespace, in.Name)
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.ServiceError, err, "get_build_job: %s/%s", in.Namespace, in.Name)
	}
	return job, nil
}

// DeleteBuildJob wraps delete_job. Tolerates a missing job.
func (d *Deps) DeleteBuildJob(ctx context.Context, in ResourceRef) (any, error) {
	if err := d.Platform.DeleteJob(ctx, in.Namespace, in.Name); err != nil {
		return nil, apperr.Wrap(apperr.ServiceError, err, "delete_build_job: %s/%s", in.Namespace, in.Name)
	}
	return nil, nil
}

// CreateDeploymentInput is the argument to create_deployment.
type CreateDeploymentInput struct {
	Namespace string            `json:"namespace,omitempty"`
	Name      string            `json:"name"`
	Image     string            `json:"image"`
	Replicas  int32             `json:"replicas"`
	Port      int32             `json:"port"`
	Env       map[string]string `json:"env,omitempty"`
	Override  bool              `json:"override,omitempty"`
}

// CreateDeployment rolls out the agent's image, per spec.md §4.4 step 4.
func (d *Deps) CreateDeployment(ctx context.Context, in CreateDeploymentInput) (any, error) {
	ns := d.namespaceOrDefault(in.Namespace)
	replicas := in.Replicas
	if replicas == 0 {
		replicas = 1
	}
	dep, err := d.Platform.CreateDeployment(ctx, platform.DeploymentSpec{
		Name:      in.Name,
		Namespace: ns,
		Image:     in.Image,
		Replicas:  replicas,
		Port:      in.Port,
		Env:       in.Env,
	}, in.Override)
	if err != nil {
		return nil, apperr.Wrap(apperr.ServiceError, err, "create_deployment: %s/%s", ns, in.Name)
	}
	return dep, nil
}

// GetDeployment wraps get_deployment, polled every 5s by the Build Workflow
// until status=Ready or the poll budget elapses.
func (d *Deps) GetDeployment(ctx context.Context, in ResourceRef) (any, error) {
	dep, err := withPlatformRetry(ctx, func() (*platform.Deployment, error) {
		return d.Platform.GetDeployment(ctx, in.Namespace, in.Name)
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.ServiceError, err, "get_deployment: %s/%s", in.Namespace, in.Name)
	}
	return dep, nil
}

// DeleteDeployment wraps delete_deployment. Used both on explicit teardown
// and as compensation when steps 4-6 partially fail.
func (d *Deps) DeleteDeployment(ctx context.Context, in ResourceRef) (any, error) {
	if err := d.Platform.DeleteDeployment(ctx, in.Namespace, in.Name); err != nil {
		return nil, apperr.Wrap(apperr.ServiceError, err, "delete_deployment: %s/%s", in.Namespace, in.Name)
	}
	return nil, nil
}

// CreateServiceInput is the argument to create_service.
type CreateServiceInput struct {
	Namespace  string            `json:"namespace,omitempty"`
	Name       string            `json:"name"`
	Selector   map[string]string `json:"selector"`
	Port       int32             `json:"port"`
	TargetPort int32             `json:"target_port"`
	Override   bool              `json:"override,omitempty"`
}

// CreateService selects the agent's Deployment, per spec.md §4.4 step 5.
func (d *Deps) CreateService(ctx context.Context, in CreateServiceInput) (any, error) {
	ns := d.namespaceOrDefault(in.Namespace)
	port := in.Port
	if port == 0 {
		port = d.ServicePort
	}
	svc, err := d.Platform.CreateService(ctx, platform.ServiceSpec{
		Name:       in.Name,
		Namespace:  ns,
		Selector:   in.Selector,
		Port:       port,
		TargetPort: in.TargetPort,
	}, in.Override)
	if err != nil {
		return nil, apperr.Wrap(apperr.ServiceError, err, "create_service: %s/%s", ns, in.Name)
	}
	return svc, nil
}

// GetService wraps get_service.
func (d *Deps) GetService(ctx context.Context, in ResourceRef) (any, error) {
	svc, err := withPlatformRetry(ctx, func() (*platform.Service, error) {
		return d.Platform.GetService(ctx, in.Namespace, in.Name)
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.ServiceError, err, "get_service: %s/%s", in.Namespace, in.Name)
	}
	return svc, nil
}

// DeleteService wraps delete_service, used as step-7 compensation.
func (d *Deps) DeleteService(ctx context.Context, in ResourceRef) (any, error) {
	if err := d.Platform.DeleteService(ctx, in.Namespace, in.Name); err != nil {
		return nil, apperr.Wrap(apperr.ServiceError, err, "delete_service: %s/%s", in.Namespace, in.Name)
	}
	return nil, nil
}

// CreatePodDisruptionBudgetInput is the argument to
// create_pod_disruption_budget.
type CreatePodDisruptionBudgetInput struct {
	Namespace    string            `json:"namespace,omitempty"`
	Name         string            `json:"name"`
	Selector     map[string]string `json:"selector"`
	MinAvailable int32             `json:"min_available"`
	Override     bool              `json:"override,omitempty"`
}

// CreatePodDisruptionBudget guards the agent's availability, per spec.md
// §4.4 step 6. Errors here are recorded but non-fatal; the Build Workflow
// does not compensate steps 4-5 solely because this activity failed.
func (d *Deps) CreatePodDisruptionBudget(ctx context.Context, in CreatePodDisruptionBudgetInput) (any, error) {
	ns := d.namespaceOrDefault(in.Namespace)
	minAvailable := in.MinAvailable
	if minAvailable == 0 {
		minAvailable = 1
	}
	pdb, err := d.Platform.CreatePodDisruptionBudget(ctx, platform.PodDisruptionBudgetSpec{
		Name:         in.Name,
		Namespace:    ns,
		Selector:     in.Selector,
		MinAvailable: minAvailable,
	}, in.Override)
	if err != nil {
		return nil, apperr.Wrap(apperr.ServiceError, err, "create_pod_disruption_budget: %s/%s", ns, in.Name)
	}
	return pdb, nil
}
