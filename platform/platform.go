// Package platform defines the Platform Port (C2): an abstract contract
// over the workload platform that schedules Jobs, Deployments, Services,
// and PodDisruptionBudgets, plus in-cluster HTTP calls into a named
// service. All create operations are idempotent under override=false,
// collapsing a 409-Conflict into "return the existing resource" per
// spec.md §4.2.
package platform

import "context"

// JobPhase mirrors the platform→domain status mapping spec.md §4.2 defines
// for Jobs.
type JobPhase string

const (
	JobPending   JobPhase = "Pending"
	JobRunning   JobPhase = "Running"
	JobSucceeded JobPhase = "Succeeded"
	JobFailed    JobPhase = "Failed"
)

// DeploymentPhase mirrors the platform→domain status mapping for
// Deployments.
type DeploymentPhase string

const (
	DeploymentReady       DeploymentPhase = "Ready"
	DeploymentUnavailable DeploymentPhase = "Unavailable"
	DeploymentUnknown     DeploymentPhase = "Unknown"
)

// JobSpec describes a build-and-push Job to schedule.
type JobSpec struct {
	Name      string
	Namespace string
	Image     string
	Command   []string
	Args      []string
	Env       map[string]string

	// ContextArchivePath is the shared-volume path to the uploaded build
	// context tarball, mounted from BuildContextPVCName.
	ContextArchivePath  string
	BuildContextPVCName string
	BuildContextsPath   string

	// DestinationImage is the tag the build job must push to.
	DestinationImage string
	// RegistrySecretName names the Docker credentials secret to mount.
	RegistrySecretName string
}

// Job is the read-back view of a scheduled build Job.
type Job struct {
	Name      string
	Namespace string
	Phase     JobPhase
	Active    int32
	Succeeded int32
	Failed    int32
}

// DeploymentSpec describes the agent's rollout.
type DeploymentSpec struct {
	Name      string
	Namespace string
	Image     string
	Replicas  int32
	Port      int32
	Env       map[string]string
}

// Deployment is the read-back view of an agent's rollout.
type Deployment struct {
	Name               string
	Namespace          string
	Phase              DeploymentPhase
	AvailableReplicas  int32
	Replicas           int32
}

// ServiceSpec describes the ClusterIP Service fronting a Deployment.
type ServiceSpec struct {
	Name      string
	Namespace string
	Selector  map[string]string
	Port      int32
	TargetPort int32
}

// Service is the read-back view of a Service.
type Service struct {
	Name      string
	Namespace string
	Port      int32
}

// PodDisruptionBudgetSpec describes a PDB guarding an agent's availability.
type PodDisruptionBudgetSpec struct {
	Name         string
	Namespace    string
	Selector     map[string]string
	MinAvailable int32
}

// PodDisruptionBudget is the read-back view of a PDB.
type PodDisruptionBudget struct {
	Name      string
	Namespace string
}

// Platform is the Platform Port. Every Create* call is idempotent under
// override=false: a 409-Conflict from the backing platform is collapsed
// into returning the existing resource rather than propagating as an
// error. Every Get* call returns (nil, nil) rather than an error on a
// missing resource.
type Platform interface {
	CreateJob(ctx context.Context, spec JobSpec, override bool) (*Job, error)
	GetJob(ctx context.Context, namespace, name string) (*Job, error)
	DeleteJob(ctx context.Context, namespace, name string) error

	CreateDeployment(ctx context.Context, spec DeploymentSpec, override bool) (*Deployment, error)
	GetDeployment(ctx context.Context, namespace, name string) (*Deployment, error)
	DeleteDeployment(ctx context.Context, namespace, name string) error

	CreateService(ctx context.Context, spec ServiceSpec, override bool) (*Service, error)
	GetService(ctx context.Context, namespace, name string) (*Service, error)
	DeleteService(ctx context.Context, namespace, name string) error

	CreatePodDisruptionBudget(ctx context.Context, spec PodDisruptionBudgetSpec, override bool) (*PodDisruptionBudget, error)
	GetPodDisruptionBudget(ctx context.Context, namespace, name string) (*PodDisruptionBudget, error)
	DeletePodDisruptionBudget(ctx context.Context, namespace, name string) error

	// CallService resolves to http://{name}.{namespace}:{port|default}/{path}
	// and propagates the service's JSON response. A non-2xx status becomes
	// a retryable error.
	CallService(ctx context.Context, req CallServiceRequest) (map[string]any, error)
}

// CallServiceRequest describes an in-cluster HTTP call to a named Service.
type CallServiceRequest struct {
	Namespace string
	Name      string
	Port      int32 // 0 uses the adapter's default port
	Path      string
	Method    string // default POST
	Payload   map[string]any
}

// JobPhaseFromCounts applies spec.md §4.2's Job status mapping:
// (succeeded>0)->Succeeded; (failed>0)->Failed; (active>0)->Running; else Pending.
func JobPhaseFromCounts(succeeded, failed, active int32) JobPhase {
	switch {
	case succeeded > 0:
		return JobSucceeded
	case failed > 0:
		return JobFailed
	case active > 0:
		return JobRunning
	default:
		return JobPending
	}
}

// DeploymentPhaseFromReplicas applies spec.md §4.2's Deployment status
// mapping: (available_replicas>0)->Ready; (available_replicas==0)->Unavailable;
// else Unknown (e.g. the field is not yet reported).
func DeploymentPhaseFromReplicas(availableReplicas int32, reported bool) DeploymentPhase {
	if !reported {
		return DeploymentUnknown
	}
	if availableReplicas > 0 {
		return DeploymentReady
	}
	return DeploymentUnavailable
}
